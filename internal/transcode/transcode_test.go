// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcode

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/seedlink/internal/linksign"
)

func TestProfileArgs(t *testing.T) {
	args := DefaultProfile.Args()
	joined := strings.Join(args, " ")

	assert.True(t, strings.HasPrefix(joined, "-hide_banner -loglevel error -i pipe:0 "))
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.Contains(t, joined, "-vf scale=-2:'min(720,ih)'")
	assert.Contains(t, joined, "-c:v libx264 -preset ultrafast -crf 28 -maxrate 2M -bufsize 4M")
	assert.Contains(t, joined, "-c:a aac -b:a 128k -ac 2")
	assert.Contains(t, joined, "-movflags +faststart+frag_keyframe+empty_moov -f mp4")

	uncapped := Profile{Name: "source"}.Args()
	assert.NotContains(t, uncapped, "-vf")
}

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer(3)
	assert.Empty(t, r.Lines())

	r.Add("a")
	r.Add("b")
	assert.Equal(t, []string{"a", "b"}, r.Lines())

	r.Add("c")
	r.Add("d")
	r.Add("e")
	assert.Equal(t, []string{"c", "d", "e"}, r.Lines())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"pipe:0: Invalid data found when processing input", "invalid_input"},
		{"[mov,mp4] moov atom not found", "invalid_input"},
		{"Unknown encoder 'libx264'", "encoder_missing"},
		{"av_interleaved_write_frame(): Broken pipe", "stream_connect_reset"},
		{"Error reading: Input/output error", "io_error"},
		{"frame=  100 fps= 25", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStderr(tt.line), tt.line)
	}

	assert.Equal(t, "invalid_input", Classify([]string{"Broken pipe", "Invalid data found when processing input", "noise"}))
	assert.Empty(t, Classify(nil))
}

func TestExitError(t *testing.T) {
	err := error(&ExitError{Code: 1, Class: "invalid_input", Diagnostics: []string{"first", "last"}})
	assert.True(t, errors.Is(err, ErrTranscodeFailed))
	assert.Equal(t, "ffmpeg exited with code 1 (invalid_input): last", err.Error())

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Code)
}

func testRef() linksign.EntryRef {
	return linksign.EntryRef{Category: "movies", Group: "Alien (1979)", Title: "Alien", Path: "/m/Alien (1979)/Alien.mkv"}
}

func TestKey(t *testing.T) {
	k := Key(testRef(), "web")
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key(testRef(), "web"))
	assert.NotEqual(t, k, Key(testRef(), "other"))

	moved := testRef()
	moved.Path = "/m/elsewhere.mkv"
	assert.NotEqual(t, k, Key(moved, "web"))

	// Field boundaries are part of the key.
	a := linksign.EntryRef{Category: "movies", Group: "ab", Title: "c"}
	b := linksign.EntryRef{Category: "movies", Group: "a", Title: "bc"}
	assert.NotEqual(t, Key(a, "web"), Key(b, "web"))
}

func TestOutputCache_CommitAndLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := NewOutputCache(dir, time.Hour, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	key := Key(testRef(), DefaultProfile.Name)
	_, ok := c.Lookup(key)
	assert.False(t, ok)

	p, err := c.Create(key)
	require.NoError(t, err)
	_, err = p.Write([]byte("fragmented "))
	require.NoError(t, err)
	_, err = p.Write([]byte("mp4"))
	require.NoError(t, err)

	_, ok = c.Lookup(key)
	assert.False(t, ok, "pending output is not visible")

	require.NoError(t, p.Commit())
	path, ok := c.Lookup(key)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fragmented mp4", string(data))
	assert.Equal(t, 1, c.Len())
}

func TestOutputCache_ReplaceKeepsNewFile(t *testing.T) {
	c, err := NewOutputCache(t.TempDir(), time.Hour, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	key := Key(testRef(), "web")

	for _, body := range []string{"first", "second"} {
		p, err := c.Create(key)
		require.NoError(t, err)
		_, err = p.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, p.Commit())
	}

	path, ok := c.Lookup(key)
	require.True(t, ok)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1, "replaced output is deleted")
}

func TestOutputCache_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	c, err := NewOutputCache(dir, time.Hour, 8, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	key := Key(testRef(), "web")

	p, err := c.Create(key)
	require.NoError(t, err)
	_, err = p.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = p.Write([]byte("6789"))
	require.ErrorIs(t, err, ErrOutputTooLarge)
	p.Abort()

	_, ok := c.Lookup(key)
	assert.False(t, ok)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOutputCache_ExpiryDeletesFile(t *testing.T) {
	c, err := NewOutputCache(t.TempDir(), 50*time.Millisecond, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()
	key := Key(testRef(), "web")

	p, err := c.Create(key)
	require.NoError(t, err)
	_, err = p.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Commit())
	path, ok := c.Lookup(key)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	_, ok = c.Lookup(key)
	assert.False(t, ok)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestOutputCache_PurgesLeftovers(t *testing.T) {
	dir := t.TempDir()
	key := Key(testRef(), "web")
	leftovers := []string{key + "-abcd1234.mp4", "." + key + "-abcd1234.mp4123456"}
	for _, name := range append(leftovers, "keep.txt") {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	c, err := NewOutputCache(dir, time.Hour, 0, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.txt", files[0].Name())

	_, err = NewOutputCache(dir, 0, 0, zerolog.Nop())
	assert.Error(t, err)
}
