// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remote abstracts the slow filesystem the library lives on.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/pkg/sftp"
)

// Entry is one node of a remote listing.
type Entry struct {
	Path  string // slash separated; relative to the listed root in ListTree results
	IsDir bool
	Size  int64
}

// ByteRange selects part of a file. Length < 0 means "to the end".
type ByteRange struct {
	Start  int64
	Length int64
}

// Source is the read-only remote filesystem.
type Source interface {
	// ListTree returns every file and directory below root, recursively.
	ListTree(ctx context.Context, root string) ([]Entry, error)
	// ReadDir returns the immediate children of dir. Entry paths are base
	// names.
	ReadDir(ctx context.Context, dir string) ([]Entry, error)
	// Stat returns metadata for a single absolute path.
	Stat(ctx context.Context, path string) (Entry, error)
	// Open returns a reader over the file, limited to rng when non-nil.
	Open(ctx context.Context, path string, rng *ByteRange) (io.ReadCloser, error)
}

var (
	ErrUnreachable = errors.New("remote unreachable")
	ErrAuthFailed  = errors.New("remote authentication failed")
	ErrTimeout     = errors.New("remote timeout")
	ErrNotFound    = errors.New("remote path not found")
)

// IsTransient reports whether err is a connectivity problem worth retrying
// later, as opposed to a definitive answer from the remote.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrAuthFailed)
}

// Classify maps transport and protocol errors onto the package sentinels.
// Context cancellation is passed through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrTimeout) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var status *sftp.StatusError
	if errors.As(err, &status) {
		switch status.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case sftp.ErrSSHFxPermissionDenied:
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// limitRange positions r at rng.Start and limits it to rng.Length.
func limitRange(f io.ReadSeeker, rng *ByteRange) (io.Reader, error) {
	if rng == nil {
		return f, nil
	}
	if rng.Start < 0 {
		return nil, fmt.Errorf("invalid range start %d", rng.Start)
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return nil, err
	}
	if rng.Length < 0 {
		return f, nil
	}
	return io.LimitReader(f, rng.Length), nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }
