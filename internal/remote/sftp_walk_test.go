// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"sort"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memInfo struct {
	name string
	dir  bool
	size int64
}

func (m memInfo) Name() string       { return m.name }
func (m memInfo) Size() int64        { return m.size }
func (m memInfo) ModTime() time.Time { return time.Unix(1_700_000_000, 0) }
func (m memInfo) IsDir() bool        { return m.dir }
func (m memInfo) Sys() any           { return nil }
func (m memInfo) Mode() fs.FileMode {
	if m.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

type listerAt []os.FileInfo

func (l listerAt) ListAt(dst []os.FileInfo, off int64) (int, error) {
	if off >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[off:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

// memTree is a read-only SFTP backend. Listing a path in denied fails with
// a permission error; listing a path in drop closes the connection.
type memTree struct {
	conn   net.Conn
	files  map[string]int64
	denied map[string]bool
	drop   map[string]bool
}

func (m *memTree) info(p string) (memInfo, bool) {
	if size, ok := m.files[p]; ok {
		return memInfo{name: path.Base(p), size: size}, true
	}
	for f := range m.files {
		if len(f) > len(p) && f[:len(p)+1] == p+"/" {
			return memInfo{name: path.Base(p), dir: true}, true
		}
	}
	if m.denied[p] || m.drop[p] {
		return memInfo{name: path.Base(p), dir: true}, true
	}
	return memInfo{}, false
}

func (m *memTree) children(dir string) listerAt {
	seen := make(map[string]bool)
	var out listerAt
	add := func(p string) {
		rest := p[len(dir)+1:]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				rest = rest[:i]
				break
			}
		}
		child := dir + "/" + rest
		if seen[child] {
			return
		}
		seen[child] = true
		info, _ := m.info(child)
		out = append(out, info)
	}
	for p := range m.files {
		if len(p) > len(dir) && p[:len(dir)+1] == dir+"/" {
			add(p)
		}
	}
	for p := range m.denied {
		if path.Dir(p) == dir {
			add(p)
		}
	}
	for p := range m.drop {
		if path.Dir(p) == dir {
			add(p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (m *memTree) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	p := path.Clean(r.Filepath)
	switch r.Method {
	case "List":
		if m.drop[p] {
			_ = m.conn.Close()
			return nil, errors.New("connection dropped")
		}
		if m.denied[p] {
			return nil, os.ErrPermission
		}
		return m.children(p), nil
	case "Stat", "Lstat":
		info, ok := m.info(p)
		if !ok {
			return nil, os.ErrNotExist
		}
		return listerAt{info}, nil
	}
	return nil, sftp.ErrSSHFxOpUnsupported
}

func (m *memTree) Fileread(*sftp.Request) (io.ReaderAt, error)  { return nil, sftp.ErrSSHFxOpUnsupported }
func (m *memTree) Filewrite(*sftp.Request) (io.WriterAt, error) { return nil, sftp.ErrSSHFxOpUnsupported }
func (m *memTree) Filecmd(*sftp.Request) error                  { return sftp.ErrSSHFxOpUnsupported }

func memHandlers(files map[string]int64, denied, drop []string) func(net.Conn) sftp.Handlers {
	return func(conn net.Conn) sftp.Handlers {
		m := &memTree{conn: conn, files: files, denied: map[string]bool{}, drop: map[string]bool{}}
		for _, p := range denied {
			m.denied[p] = true
		}
		for _, p := range drop {
			m.drop[p] = true
		}
		return sftp.Handlers{FileGet: m, FilePut: m, FileCmd: m, FileList: m}
	}
}

var walkFiles = map[string]int64{
	"/lib/Isaac Asimov/Foundation/foundation.epub": 10,
	"/lib/Ursula Le Guin/Earthsea/earthsea.epub":   7,
}

func TestSFTPListTreeSkipsDeniedDirectory(t *testing.T) {
	addr, hostKey := startSFTPServerWith(t, "seed", "hunter2",
		memHandlers(walkFiles, []string{"/lib/private"}, nil))
	s := newTestSFTP(t, addr, hostKey, "hunter2")

	entries, err := s.ListTree(context.Background(), "/lib")
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "Isaac Asimov/Foundation/foundation.epub")
	assert.Contains(t, paths, "Ursula Le Guin/Earthsea/earthsea.epub")
	assert.Contains(t, paths, "private")
}

func TestSFTPListTreeFailsOnLostConnection(t *testing.T) {
	addr, hostKey := startSFTPServerWith(t, "seed", "hunter2",
		memHandlers(walkFiles, nil, []string{"/lib/Isaac Asimov"}))
	s := newTestSFTP(t, addr, hostKey, "hunter2")

	entries, err := s.ListTree(context.Background(), "/lib")
	require.ErrorIs(t, err, ErrUnreachable, "a truncated walk is never reported as a complete tree")
	assert.Nil(t, entries)
}

func TestSkippableWalkErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"permission", fs.ErrPermission, true},
		{"not exist", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, true},
		{"connection lost", sftp.ErrSSHFxConnectionLost, false},
		{"eof", io.EOF, false},
		{"unexpected eof", io.ErrUnexpectedEOF, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, skippableWalkErr(tc.err))
		})
	}
}
