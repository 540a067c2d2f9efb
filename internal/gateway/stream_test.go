// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/transcode"
)

func (f *fixture) movieStream() string {
	return "/stream/" + f.token(library.Movies, "Alien (1979)", "Alien", linksign.ActionStream).Raw
}

// openHeld starts a held stream and reads its first chunk. cancel drops
// the client connection.
func (f *fixture) openHeld(path string) (cancel func()) {
	f.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	resp := f.do(ctx, http.MethodGet, path)
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, len(heldChunk))
	_, err := io.ReadFull(resp.Body, buf)
	require.NoError(f.t, err)
	require.Equal(f.t, heldChunk, string(buf))
	return func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func (f *fixture) allReadersClosed() bool {
	for _, r := range f.src.Readers() {
		if !r.Closed() {
			return false
		}
	}
	return true
}

func TestStream_Transcodes(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	f := newFixture(t, behaviorEcho)
	defer f.close()

	resp := f.get(f.movieStream())
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "transcoded:mkv-source", body)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "none", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "inline; filename=Alien.mp4", resp.Header.Get("Content-Disposition"))
	assert.Empty(t, resp.Header.Get("Content-Length"), "transcoded output is chunked")
	assert.Equal(t, 1, f.runner.Starts())

	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.allReadersClosed())
}

func TestStream_PassthroughForNativeFormats(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionStream)

	resp := f.get("/stream/" + tok.Raw)
	assert.Equal(t, "native mp4 bytes", readBody(t, resp))
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "inline; filename=Heat.mp4", resp.Header.Get("Content-Disposition"))

	resp = f.get("/stream/"+tok.Raw, "Range", "bytes=7-9")
	assert.Equal(t, "mp4", readBody(t, resp))
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)

	assert.Equal(t, 0, f.runner.Starts())
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStream_RejectsNonVideoAndWrongAction(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()

	book := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionStream)
	resp := f.get("/stream/" + book.Raw)
	_ = readBody(t, resp)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	dl := f.token(library.Movies, "Alien (1979)", "Alien", linksign.ActionDownload)
	resp = f.get("/stream/" + dl.Raw)
	_ = readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Equal(t, 0, f.runner.Starts())
}

func TestStream_ServesCachedTranscode(t *testing.T) {
	f := newFixture(t, behaviorEcho, withCache(t))
	defer f.close()
	path := f.movieStream()

	first := readBody(t, f.get(path))
	require.Equal(t, "transcoded:mkv-source", first)
	require.Eventually(t, func() bool { return f.cache.Len() == 1 }, time.Second, 5*time.Millisecond)

	resp := f.get(path)
	assert.Equal(t, first, readBody(t, resp))
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, f.runner.Starts(), "second request is served from disk")

	resp = f.get(path, "Range", "bytes=0-9")
	assert.Equal(t, "transcoded", readBody(t, resp))
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
}

func TestStream_FailedTranscode(t *testing.T) {
	f := newFixture(t, behaviorFail, withCache(t))
	defer f.close()

	resp := f.get(f.movieStream())
	body := readBody(t, resp)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "transcoding failed")
	assert.Equal(t, 0, f.cache.Len(), "failed output is never cached")
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStream_IdleTimeoutBeforeFirstByte(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	f := newFixture(t, behaviorSilent, func(c *Config, _ *Deps) { c.IdleTimeout = 50 * time.Millisecond })
	defer f.close()

	resp := f.get(f.movieStream())
	_ = readBody(t, resp)

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	procs := f.runner.Procs()
	require.Len(t, procs, 1)
	assert.True(t, procs[0].Terminated())
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.allReadersClosed())
}

func TestStream_MaxDurationEndsStream(t *testing.T) {
	f := newFixture(t, behaviorHold, func(c *Config, _ *Deps) { c.MaxDuration = 100 * time.Millisecond })
	defer f.close()

	resp := f.get(f.movieStream())
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode, "headers were already sent")
	assert.Equal(t, heldChunk, body)
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, f.runner.Procs()[0].Terminated())
}

func TestStream_StalledPassthroughReleasesSlot(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	f := newFixture(t, behaviorEcho, func(c *Config, _ *Deps) {
		c.IdleTimeout = 50 * time.Millisecond
		c.MaxDuration = 200 * time.Millisecond
	})
	defer f.close()
	f.src.Stall(6)
	tok := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionStream)

	resp := f.get("/stream/" + tok.Raw)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Error(t, err, "response is cut short")

	require.Eventually(t, func() bool {
		return f.limiter.Active() == 0 && f.allReadersClosed()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.runner.Starts())
}

func TestStream_MaxDurationBoundsPassthrough(t *testing.T) {
	f := newFixture(t, behaviorEcho, func(c *Config, _ *Deps) { c.MaxDuration = 100 * time.Millisecond })
	defer f.close()
	f.src.Stall(0)
	tok := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionStream)

	resp := f.get("/stream/" + tok.Raw)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStreamOutcome(t *testing.T) {
	live := context.Background()
	gone, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, "ok", streamOutcome(live, false, nil))
	assert.Equal(t, "timeout", streamOutcome(gone, true, context.Canceled), "a fired watchdog is a timeout, not a departed client")
	assert.Equal(t, "client_gone", streamOutcome(gone, false, context.Canceled))
	assert.Equal(t, "failed", streamOutcome(live, false, transcode.ErrTranscodeFailed))
	assert.Equal(t, "error", streamOutcome(live, false, io.ErrUnexpectedEOF))
}

func TestStream_AdmissionBound(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	f := newFixture(t, behaviorHold)
	defer f.close()
	path := f.movieStream()

	stop1 := f.openHeld(path)
	stop2 := f.openHeld(path)
	assert.Equal(t, int64(2), f.limiter.Active())

	resp := f.get(path)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "10", resp.Header.Get("Retry-After"))
	assert.Contains(t, body, "too many streams")
	assert.Equal(t, 2, f.runner.Starts(), "rejected request never spawns a transcoder")

	stop1()
	require.Eventually(t, func() bool { return f.limiter.Active() == 1 }, 2*time.Second, 5*time.Millisecond)

	stop3 := f.openHeld(path)
	assert.Equal(t, int64(2), f.limiter.Active())

	stop2()
	stop3()
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStream_ClientDisconnectReleasesEverything(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	f := newFixture(t, behaviorHold)
	defer f.close()
	path := f.movieStream()

	stop := f.openHeld(path)
	procs := f.runner.Procs()
	require.Len(t, procs, 1)
	assert.False(t, procs[0].Terminated())

	stop()
	require.Eventually(t, func() bool {
		return procs[0].Terminated() && f.limiter.Active() == 0 && f.allReadersClosed()
	}, 2*time.Second, 5*time.Millisecond)

	next := f.openHeld(path)
	next()
	require.Eventually(t, func() bool { return f.limiter.Active() == 0 }, 2*time.Second, 5*time.Millisecond)
}
