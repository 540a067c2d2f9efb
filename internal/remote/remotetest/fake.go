// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package remotetest provides an in-memory remote.Source for tests.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/seedlink/internal/remote"
)

// Source is an in-memory remote.Source with call counting, failure
// injection and an optional gate that holds ListTree until released.
type Source struct {
	mu      sync.Mutex
	files   map[string][]byte
	dirs    map[string]struct{}
	listErr error
	openErr error
	gate    chan struct{}
	stall   int64
	opened  []*Reader

	listCalls atomic.Int64
	openCalls atomic.Int64
}

// New returns an empty fake.
func New() *Source {
	return &Source{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
		stall: -1,
	}
}

// AddFile stores content at the absolute path p.
func (s *Source) AddFile(p string, content []byte) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path.Clean(p)] = content
	return s
}

// AddDir records an explicit, possibly empty, directory.
func (s *Source) AddDir(p string) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path.Clean(p)] = struct{}{}
	return s
}

// Remove deletes a file.
func (s *Source) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path.Clean(p))
}

// FailList makes ListTree return err (nil clears it).
func (s *Source) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailOpen makes Open and Stat return err (nil clears it).
func (s *Source) FailOpen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// Hold makes subsequent ListTree calls block until the returned func runs.
func (s *Source) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Stall makes readers from subsequent Open calls block after delivering at
// most n bytes, until the Open context is done or the reader is closed.
func (s *Source) Stall(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = n
}

// ListCalls returns how many times ListTree ran.
func (s *Source) ListCalls() int { return int(s.listCalls.Load()) }

// OpenCalls returns how many times Open ran.
func (s *Source) OpenCalls() int { return int(s.openCalls.Load()) }

// Readers returns every reader handed out by Open.
func (s *Source) Readers() []*Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Reader(nil), s.opened...)
}

func (s *Source) ListTree(ctx context.Context, root string) ([]remote.Entry, error) {
	s.listCalls.Add(1)

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, remote.Classify(ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	root = path.Clean(root)
	prefix := strings.TrimSuffix(root, "/") + "/"
	dirs := make(map[string]struct{})
	var out []remote.Entry
	addParents := func(rel string) {
		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	for p, content := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		out = append(out, remote.Entry{Path: rel, Size: int64(len(content))})
		addParents(rel)
	}
	for p := range s.dirs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		dirs[rel] = struct{}{}
		addParents(rel)
	}
	if len(out) == 0 && len(dirs) == 0 {
		if _, ok := s.dirs[root]; !ok {
			return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, root)
		}
	}
	for d := range dirs {
		out = append(out, remote.Entry{Path: d, IsDir: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Source) ReadDir(ctx context.Context, dir string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, remote.Classify(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	dir = path.Clean(dir)
	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]bool)
	var out []remote.Entry
	for p, content := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			if name := rest[:i]; !seen[name] {
				seen[name] = true
				out = append(out, remote.Entry{Path: name, IsDir: true})
			}
			continue
		}
		out = append(out, remote.Entry{Path: rest, Size: int64(len(content))})
	}
	if len(out) == 0 {
		if _, ok := s.dirs[dir]; !ok {
			return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, dir)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Source) Stat(ctx context.Context, p string) (remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return remote.Entry{}, remote.Classify(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return remote.Entry{}, s.openErr
	}
	content, ok := s.files[path.Clean(p)]
	if !ok {
		return remote.Entry{}, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	return remote.Entry{Path: p, Size: int64(len(content))}, nil
}

func (s *Source) Open(ctx context.Context, p string, rng *remote.ByteRange) (io.ReadCloser, error) {
	s.openCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, remote.Classify(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	content, ok := s.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	if rng != nil {
		start := rng.Start
		if start > int64(len(content)) {
			start = int64(len(content))
		}
		end := int64(len(content))
		if rng.Length >= 0 && start+rng.Length < end {
			end = start + rng.Length
		}
		content = content[start:end]
	}
	r := &Reader{src: bytes.NewReader(content), closedc: make(chan struct{})}
	if s.stall >= 0 {
		r.src = io.LimitReader(r.src, s.stall)
		r.stallCtx = ctx
	}
	s.opened = append(s.opened, r)
	return r, nil
}

// Reader records whether it was closed.
type Reader struct {
	src       io.Reader
	stallCtx  context.Context
	closed    atomic.Bool
	closedc   chan struct{}
	closeOnce sync.Once
}

func (r *Reader) Read(b []byte) (int, error) {
	n, err := r.src.Read(b)
	if err != io.EOF || r.stallCtx == nil {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	select {
	case <-r.stallCtx.Done():
		return 0, remote.Classify(r.stallCtx.Err())
	case <-r.closedc:
		return 0, io.ErrClosedPipe
	}
}

func (r *Reader) Close() error {
	r.closed.Store(true)
	r.closeOnce.Do(func() { close(r.closedc) })
	return nil
}

// Closed reports whether Close was called.
func (r *Reader) Closed() bool { return r.closed.Load() }
