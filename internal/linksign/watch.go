// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package linksign

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const rotateDebounce = 250 * time.Millisecond

// SecretWatcher rotates a Signer whenever its secret file changes.
type SecretWatcher struct {
	path    string
	signer  *Signer
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	current []byte
	done    chan struct{}
}

// WatchSecretFile starts watching path and rotates signer on every change
// that yields a valid, different secret. The parent directory is watched so
// editors and orchestrators that replace the file via rename are covered.
func WatchSecretFile(ctx context.Context, path string, signer *Signer, logger zerolog.Logger) (*SecretWatcher, error) {
	path = filepath.Clean(path)
	current, err := readSecret(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch secret dir: %w", err)
	}

	w := &SecretWatcher{
		path:    path,
		signer:  signer,
		logger:  logger,
		watcher: watcher,
		current: current,
		done:    make(chan struct{}),
	}
	logger.Info().
		Str("event", "links.secret_watch_started").
		Str("path", path).
		Msg("watching link secret file")

	go w.loop(ctx)
	return w, nil
}

// Done is closed once the watcher has stopped.
func (w *SecretWatcher) Done() <-chan struct{} { return w.done }

func (w *SecretWatcher) loop(ctx context.Context) {
	defer close(w.done)
	defer func() { _ = w.watcher.Close() }()

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(rotateDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.rotate()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("event", "links.secret_watch_error").Msg("secret watcher error")
		}
	}
}

func (w *SecretWatcher) rotate() {
	next, err := readSecret(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("event", "links.secret_reload_failed").Msg("keeping current link secret")
		return
	}
	if bytes.Equal(next, w.current) {
		return
	}
	if err := w.signer.Rotate(next); err != nil {
		w.logger.Warn().Err(err).Str("event", "links.secret_reload_failed").Msg("keeping current link secret")
		return
	}
	w.current = next
	w.logger.Info().Str("event", "links.secret_rotated").Msg("link secret rotated, outstanding links revoked")
}

func readSecret(path string) ([]byte, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return bytes.TrimSpace(data), nil
}
