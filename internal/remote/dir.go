// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Dir serves a locally mounted copy of the library (sshfs, NFS, a synced
// folder). Paths are absolute local paths.
type Dir struct {
	logger zerolog.Logger
}

// NewDir returns a local directory source.
func NewDir(logger zerolog.Logger) *Dir {
	return &Dir{logger: logger}
}

// ListTree walks root with filepath.WalkDir. Unreadable subdirectories are
// logged and skipped.
func (d *Dir) ListTree(ctx context.Context, root string) ([]Entry, error) {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return nil, Classify(err)
	}

	var out []Entry
	err := filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == root {
				return err
			}
			d.logger.Warn().Err(err).
				Str("event", "remote.walk_skip").
				Str("remote_path", p).
				Msg("skipping unreadable path")
			if de != nil && de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		e := Entry{Path: filepath.ToSlash(rel), IsDir: de.IsDir()}
		if !e.IsDir {
			info, err := de.Info()
			if err != nil {
				return nil // vanished mid-walk
			}
			e.Size = info.Size()
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// ReadDir lists one directory without descending.
func (d *Dir) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	des, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil, Classify(err)
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		e := Entry{Path: de.Name(), IsDir: de.IsDir()}
		if !e.IsDir {
			info, err := de.Info()
			if err != nil {
				continue
			}
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	return out, nil
}

// Stat returns metadata for one path.
func (d *Dir) Stat(ctx context.Context, p string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, Classify(err)
	}
	info, err := os.Stat(filepath.Clean(p))
	if err != nil {
		return Entry{}, Classify(err)
	}
	return Entry{Path: p, IsDir: info.IsDir(), Size: info.Size()}, nil
}

// Open opens p for reading, limited to rng when non-nil.
func (d *Dir) Open(ctx context.Context, p string, rng *ByteRange) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	// #nosec G304 -- paths come from the catalog, which only holds listed files
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return nil, Classify(err)
	}
	r, err := limitRange(f, rng)
	if err != nil {
		_ = f.Close()
		return nil, Classify(err)
	}
	return &readCloser{Reader: r, close: f.Close}, nil
}
