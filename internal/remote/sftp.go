// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPConfig configures the SFTP source.
type SFTPConfig struct {
	Address        string // host:port
	Username       string
	Password       string
	KeyPath        string
	KeyText        string
	KnownHostsPath string
	DialTimeout    time.Duration

	// HostKeyCallback overrides KnownHostsPath when set.
	HostKeyCallback ssh.HostKeyCallback
}

// SFTP reads the library over SFTP. Every operation opens its own SSH
// connection, which keeps a broken connection from poisoning later calls;
// cancelling the operation context closes the connection.
type SFTP struct {
	address     string
	dialTimeout time.Duration
	client      *ssh.ClientConfig
	logger      zerolog.Logger
}

// NewSFTP validates credentials and host key policy and returns a source.
// No connection is made until the first operation.
func NewSFTP(cfg SFTPConfig, logger zerolog.Logger) (*SFTP, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	hostKey := cfg.HostKeyCallback
	if hostKey == nil {
		if cfg.KnownHostsPath != "" {
			hostKey, err = knownhosts.New(filepath.Clean(cfg.KnownHostsPath))
			if err != nil {
				return nil, fmt.Errorf("load known_hosts: %w", err)
			}
		} else {
			logger.Warn().
				Str("event", "remote.hostkey_unverified").
				Str("address", cfg.Address).
				Msg("SSH_KNOWN_HOSTS not set, server host key is not verified")
			hostKey = ssh.InsecureIgnoreHostKey() // #nosec G106 -- operator opted out of known_hosts
		}
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SFTP{
		address:     cfg.Address,
		dialTimeout: timeout,
		client: &ssh.ClientConfig{
			User:            cfg.Username,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		},
		logger: logger,
	}, nil
}

func authMethods(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	keyData := []byte(cfg.KeyText)
	if len(keyData) == 0 && cfg.KeyPath != "" {
		// #nosec G304 -- operator supplied path
		data, err := os.ReadFile(filepath.Clean(cfg.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		keyData = data
	}
	if len(keyData) > 0 {
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		pw := cfg.Password
		methods = append(methods,
			ssh.Password(pw),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pw
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, errors.New("sftp: no authentication method configured")
	}
	return methods, nil
}

type sftpSession struct {
	conn net.Conn
	ssh  *ssh.Client
	sftp *sftp.Client
	stop func() bool
}

func (s *sftpSession) Close() error {
	s.stop()
	err := s.sftp.Close()
	_ = s.ssh.Close()
	return err
}

func (s *SFTP) connect(ctx context.Context) (*sftpSession, error) {
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return nil, Classify(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	_ = conn.SetDeadline(time.Now().Add(s.dialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, s.address, s.client)
	if err != nil {
		stop()
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Classify(ctxErr)
		}
		return nil, Classify(err)
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(c, chans, reqs)
	sc, err := sftp.NewClient(sshClient)
	if err != nil {
		stop()
		_ = sshClient.Close()
		return nil, Classify(err)
	}
	return &sftpSession{conn: conn, ssh: sshClient, sftp: sc, stop: stop}, nil
}

// ListTree walks root recursively. Symlinks are reported, not followed.
// Subdirectories that vanished or deny access are logged and skipped. Any
// other walk error, including a lost connection, fails the whole listing so
// a partial tree never replaces a good catalog.
func (s *SFTP) ListTree(ctx context.Context, root string) ([]Entry, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	prefix := strings.TrimSuffix(root, "/") + "/"
	var out []Entry

	walker := sess.sftp.Walk(root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, Classify(err)
		}
		p := walker.Path()
		if err := walker.Err(); err != nil {
			if path.Clean(p) == path.Clean(root) || !skippableWalkErr(err) {
				return nil, Classify(err)
			}
			s.logger.Warn().Err(err).
				Str("event", "remote.walk_skip").
				Str("remote_path", p).
				Msg("skipping unreadable remote path")
			continue
		}
		if path.Clean(p) == path.Clean(root) {
			continue
		}
		info := walker.Stat()
		out = append(out, Entry{
			Path:  strings.TrimPrefix(p, prefix),
			IsDir: info.IsDir(),
			Size:  info.Size(),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

func skippableWalkErr(err error) bool {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.FxCode() {
		case sftp.ErrSSHFxNoSuchFile, sftp.ErrSSHFxPermissionDenied:
			return true
		}
	}
	return false
}

// ReadDir lists one directory without descending.
func (s *SFTP) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()

	infos, err := sess.sftp.ReadDir(dir)
	if err != nil {
		return nil, Classify(err)
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, Entry{Path: info.Name(), IsDir: info.IsDir(), Size: info.Size()})
	}
	return out, nil
}

// Stat returns metadata for one path.
func (s *SFTP) Stat(ctx context.Context, p string) (Entry, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = sess.Close() }()

	info, err := sess.sftp.Stat(p)
	if err != nil {
		return Entry{}, Classify(err)
	}
	return Entry{Path: p, IsDir: info.IsDir(), Size: info.Size()}, nil
}

// Open returns a reader that owns its connection; closing it tears the
// connection down.
func (s *SFTP) Open(ctx context.Context, p string, rng *ByteRange) (io.ReadCloser, error) {
	sess, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	f, err := sess.sftp.Open(p)
	if err != nil {
		_ = sess.Close()
		return nil, Classify(err)
	}
	r, err := limitRange(f, rng)
	if err != nil {
		_ = f.Close()
		_ = sess.Close()
		return nil, Classify(err)
	}
	return &readCloser{
		Reader: r,
		close: func() error {
			ferr := f.Close()
			serr := sess.Close()
			if ferr != nil {
				return ferr
			}
			return serr
		},
	}, nil
}
