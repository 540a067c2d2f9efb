// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcode

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/cache"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
)

// ErrOutputTooLarge is returned by Pending.Write once the size cap is hit.
var ErrOutputTooLarge = errors.New("transcode output exceeds cache limit")

const keyLen = sha256.Size * 2

// OutputCache keeps finished transcodes on disk for a fixed TTL. Files are
// only visible after ffmpeg exited cleanly and the pending file was renamed
// into place; expiry deletes them.
type OutputCache struct {
	dir      string
	ttl      time.Duration
	maxBytes int64
	index    cache.Cache
	logger   zerolog.Logger
}

// NewOutputCache prepares dir and removes leftovers of a previous run.
// maxBytes <= 0 disables the per-file size cap.
func NewOutputCache(dir string, ttl time.Duration, maxBytes int64, logger zerolog.Logger) (*OutputCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("output cache ttl must be positive, got %s", ttl)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcode cache dir: %w", err)
	}
	c := &OutputCache{
		dir:      dir,
		ttl:      ttl,
		maxBytes: maxBytes,
		logger:   logger.With().Str(log.FieldComponent, "transcode_cache").Logger(),
	}
	if n, err := c.purge(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to purge transcode cache dir")
	} else if n > 0 {
		c.logger.Info().Int("files", n).Msg("purged transcode cache leftovers")
	}

	janitor := ttl / 4
	if janitor > time.Minute {
		janitor = time.Minute
	}
	if janitor < time.Second {
		janitor = time.Second
	}
	c.index = cache.NewMemoryCache(janitor, cache.WithOnEvict(c.remove))
	return c, nil
}

// Key derives the cache key for an entry rendered with a profile.
func Key(ref linksign.EntryRef, profile string) string {
	h := sha256.New()
	for _, part := range []string{ref.Category, ref.Group, ref.Title, ref.Path, profile} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the path of a committed output.
func (c *OutputCache) Lookup(key string) (string, bool) {
	v, ok := c.index.Get(key)
	if !ok {
		metrics.RecordTranscodeCache("miss")
		return "", false
	}
	p := v.(string)
	if _, err := os.Stat(p); err != nil {
		c.index.Delete(key)
		metrics.RecordTranscodeCache("miss")
		return "", false
	}
	metrics.RecordTranscodeCache("hit")
	return p, true
}

// Create starts a pending output for key.
func (c *OutputCache) Create(key string) (*Pending, error) {
	// Every commit gets its own file name so replacing an index entry never
	// deletes the file that replaced it.
	name := key + "-" + uuid.NewString()[:8] + ".mp4"
	path := filepath.Join(c.dir, name)
	f, err := renameio.NewPendingFile(path, renameio.WithTempDir(c.dir), renameio.WithPermissions(0o640))
	if err != nil {
		return nil, fmt.Errorf("create pending transcode file: %w", err)
	}
	return &Pending{cache: c, key: key, path: path, file: f}, nil
}

// Len returns the number of committed outputs.
func (c *OutputCache) Len() int { return c.index.Stats().CurrentSize }

// Close stops expiry and deletes every committed output.
func (c *OutputCache) Close() {
	c.index.Clear()
	c.index.Close()
}

func (c *OutputCache) remove(key string, v any) {
	p, _ := v.(string)
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn().Err(err).Str("file", p).Msg("failed to delete expired transcode")
		return
	}
	metrics.RecordTranscodeCache("evict")
	c.logger.Debug().Str("key", key[:12]).Msg("transcode evicted")
}

func (c *OutputCache) purge() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !isCacheFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			n++
		}
	}
	return n, nil
}

// isCacheFile matches committed files and renameio temp files, which carry
// a leading dot.
func isCacheFile(name string) bool {
	name = strings.TrimPrefix(name, ".")
	if len(name) < keyLen {
		return false
	}
	_, err := hex.DecodeString(name[:keyLen])
	return err == nil
}

// Pending is an output being written. Exactly one of Commit or Abort must
// be called.
type Pending struct {
	cache *OutputCache
	key   string
	path  string
	file  *renameio.PendingFile
	n     int64
}

func (p *Pending) Write(b []byte) (int, error) {
	if limit := p.cache.maxBytes; limit > 0 && p.n+int64(len(b)) > limit {
		return 0, ErrOutputTooLarge
	}
	n, err := p.file.Write(b)
	p.n += int64(n)
	return n, err
}

// Commit publishes the output atomically.
func (p *Pending) Commit() error {
	if err := p.file.CloseAtomicallyReplace(); err != nil {
		_ = p.file.Cleanup()
		metrics.RecordTranscodeCache("abort")
		return fmt.Errorf("commit transcode: %w", err)
	}
	p.cache.index.Set(p.key, p.path, p.cache.ttl)
	metrics.RecordTranscodeCache("store")
	p.cache.logger.Debug().Str("key", p.key[:12]).Int64(log.FieldBytes, p.n).Msg("transcode cached")
	return nil
}

// Abort discards the output.
func (p *Pending) Abort() {
	if err := p.file.Cleanup(); err != nil {
		p.cache.logger.Debug().Err(err).Msg("cleanup pending transcode")
	}
	metrics.RecordTranscodeCache("abort")
}
