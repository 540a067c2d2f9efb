// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/config"
	"github.com/ManuGH/seedlink/internal/log"
)

// PerformStartupChecks validates the local environment before serving.
// Remote reachability is not checked here; the first catalog build reports
// it through the readiness probe instead.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkFFmpeg(logger, cfg.Streams.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg check failed: %w", err)
	}

	if cfg.Streams.CacheDir != "" && cfg.Streams.CacheTTL > 0 {
		if err := checkWritableDir(logger, cfg.Streams.CacheDir); err != nil {
			return fmt.Errorf("video cache directory check failed: %w", err)
		}
	}

	if err := checkRemoteFiles(logger, cfg.Remote); err != nil {
		return fmt.Errorf("remote credentials check failed: %w", err)
	}

	if cfg.Links.SecretFile != "" {
		if err := checkFileReadable(cfg.Links.SecretFile); err != nil {
			return fmt.Errorf("link secret file: %w", err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkFFmpeg(logger zerolog.Logger, bin string) error {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", bin, err)
	}
	logger.Info().Str("ffmpeg", path).Msg("ffmpeg available")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("cache directory is writable")
	return nil
}

func checkRemoteFiles(logger zerolog.Logger, rc config.RemoteConfig) error {
	if rc.Backend != config.BackendSFTP {
		return nil
	}
	if rc.KeyPath != "" {
		if err := checkFileReadable(rc.KeyPath); err != nil {
			return fmt.Errorf("ssh key: %w", err)
		}
	}
	if rc.KnownHostsPath != "" {
		if err := checkFileReadable(rc.KnownHostsPath); err != nil {
			return fmt.Errorf("known hosts: %w", err)
		}
	} else {
		logger.Warn().Msg("SSH_KNOWN_HOSTS not set; remote host key is not verified")
	}
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(filepath.Clean(path)) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
