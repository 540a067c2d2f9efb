// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/seedlink/internal/admission"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/remote/remotetest"
	"github.com/ManuGH/seedlink/internal/transcode"
)

const (
	bookPath   = "/media/books/Isaac Asimov/Foundation/foundation.epub"
	moviePath  = "/media/movies/Alien (1979)/Alien.mkv"
	nativePath = "/media/movies/Heat (1995)/Heat.mp4"
)

var leakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t       *testing.T
	src     *remotetest.Source
	lib     *library.Library
	signer  *linksign.Signer
	clock   *testClock
	runner  *fakeRunner
	limiter *admission.Limiter
	cache   *transcode.OutputCache
	srv     *httptest.Server
	client  *http.Client
}

type fixtureOption func(*Config, *Deps)

func withCache(t *testing.T) fixtureOption {
	return func(_ *Config, d *Deps) {
		c, err := transcode.NewOutputCache(t.TempDir(), time.Hour, 0, zerolog.Nop())
		require.NoError(t, err)
		d.Cache = c
	}
}

func newFixture(t *testing.T, b behavior, opts ...fixtureOption) *fixture {
	t.Helper()

	src := remotetest.New().
		AddFile(bookPath, []byte("0123456789")).
		AddFile("/media/books/Émile Zola/Germinal/germinal été.epub", []byte("zola")).
		AddFile(moviePath, []byte("mkv-source")).
		AddFile(nativePath, []byte("native mp4 bytes"))
	ix := library.NewIndexer(src, []library.Root{
		{Category: library.Books, Path: "/media/books", Extensions: []string{".epub"}},
		{Category: library.Movies, Path: "/media/movies", Extensions: []string{".mkv", ".mp4"}},
	}, zerolog.Nop())
	lib := library.New(ix, library.Options{TTL: time.Hour, RebuildTimeout: 5 * time.Second, Logger: zerolog.Nop()})

	clock := &testClock{now: time.Now()}
	signer, err := linksign.NewSigner([]byte("0123456789abcdef0123456789abcdef"), linksign.WithClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		src:     src,
		lib:     lib,
		signer:  signer,
		clock:   clock,
		runner:  &fakeRunner{behavior: b},
		limiter: admission.NewLimiter(2),
	}
	cfg := Config{RetryAfter: 10 * time.Second}
	deps := Deps{
		Signer:  signer,
		Library: lib,
		Source:  src,
		Limiter: f.limiter,
		Runner:  f.runner,
		Logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	f.cache = deps.Cache

	f.srv = httptest.NewServer(New(cfg, deps).Routes())
	f.client = &http.Client{Transport: &http.Transport{}}
	return f
}

func (f *fixture) close() {
	f.client.CloseIdleConnections()
	f.srv.Close()
	if f.cache != nil {
		f.cache.Close()
	}
}

func (f *fixture) token(cat library.Category, group, title string, action linksign.Action) linksign.Token {
	f.t.Helper()
	e, err := f.lib.Find(context.Background(), cat, group, title)
	require.NoError(f.t, err)
	tok, err := f.signer.Issue(e.Ref(), action, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) get(path string, header ...string) *http.Response {
	f.t.Helper()
	return f.do(context.Background(), http.MethodGet, path, header...)
}

func (f *fixture) do(ctx context.Context, method, path string, header ...string) *http.Response {
	f.t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, f.srv.URL+path, nil)
	require.NoError(f.t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := f.client.Do(req)
	require.NoError(f.t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDownload_FullFile(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionDownload)

	resp := f.get("/download/" + tok.Raw)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0123456789", body)
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "application/epub+zip", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=foundation.epub", resp.Header.Get("Content-Disposition"))
}

func TestDownload_Ranges(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionDownload)

	tests := []struct {
		name         string
		rangeHeader  string
		wantStatus   int
		wantBody     string
		contentRange string
	}{
		{"closed range", "bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"open ended", "bytes=7-", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"suffix", "bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"suffix longer than file", "bytes=-50", http.StatusPartialContent, "0123456789", "bytes 0-9/10"},
		{"end clamped", "bytes=5-100", http.StatusPartialContent, "56789", "bytes 5-9/10"},
		{"multi range falls back to full", "bytes=0-1,4-5", http.StatusOK, "0123456789", ""},
		{"other unit ignored", "items=0-1", http.StatusOK, "0123456789", ""},
		{"malformed ignored", "bytes=5-2", http.StatusOK, "0123456789", ""},
		{"start past end", "bytes=10-", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"empty suffix", "bytes=-0", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.get("/download/"+tok.Raw, "Range", tt.rangeHeader)
			body := readBody(t, resp)

			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.contentRange, resp.Header.Get("Content-Range"))
			if tt.wantStatus != http.StatusRequestedRangeNotSatisfiable {
				assert.Equal(t, tt.wantBody, body)
			}
		})
	}
}

func TestDownload_HeadDoesNotOpen(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionDownload)

	resp := f.do(context.Background(), http.MethodHead, "/download/"+tok.Raw)
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	assert.Equal(t, 0, f.src.OpenCalls())
}

func TestDownload_NonASCIIFilename(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Books, "Émile Zola", "Germinal", linksign.ActionDownload)

	resp := f.get("/download/" + tok.Raw)
	assert.Equal(t, "zola", readBody(t, resp))
	assert.Equal(t, "attachment; filename*=utf-8''germinal%20%C3%A9t%C3%A9.epub", resp.Header.Get("Content-Disposition"))
}

func TestDownload_Rejections(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	download := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionDownload)
	stream := f.token(library.Movies, "Alien (1979)", "Alien", linksign.ActionStream)

	tampered := []byte(download.Raw)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	ghost, err := f.signer.Issue(linksign.EntryRef{Category: "books", Group: "Nobody", Title: "Nothing", Path: "/media/books/x.epub"}, linksign.ActionDownload, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"malformed", "/download/not-a-token", http.StatusForbidden, "link invalid"},
		{"tampered", "/download/" + string(tampered), http.StatusForbidden, "link invalid"},
		{"wrong action", "/download/" + stream.Raw, http.StatusForbidden, "link invalid"},
		{"unknown entry", "/download/" + ghost.Raw, http.StatusNotFound, "file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.get(tt.path)
			body := readBody(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, body, tt.wantBody)
			assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
		})
	}

	t.Run("file gone from remote", func(t *testing.T) {
		f.src.Remove(bookPath)
		resp := f.get("/download/" + download.Raw)
		assert.Contains(t, readBody(t, resp), "file not found")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(time.Hour + time.Second)
		resp := f.get("/download/" + download.Raw)
		assert.Contains(t, readBody(t, resp), "link expired")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

var linkRE = regexp.MustCompile(`href="[^"]*/(download|stream)/([^"]+)"`)

func TestLinksPage(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()

	t.Run("video entry gets stream link and player", func(t *testing.T) {
		tok := f.token(library.Movies, "Alien (1979)", "Alien", linksign.ActionDownload)
		resp := f.get("/links/" + tok.Raw)
		body := readBody(t, resp)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Contains(t, body, "<title>Alien</title>")
		assert.Contains(t, body, "<video controls")

		links := map[string]string{}
		for _, m := range linkRE.FindAllStringSubmatch(body, -1) {
			links[m[1]] = m[2]
		}
		require.Len(t, links, 2)
		assert.Equal(t, tok.Raw, links["download"], "presented token is reused for its own action")

		st, err := f.signer.Verify(links["stream"])
		require.NoError(t, err)
		assert.Equal(t, linksign.ActionStream, st.Action)
		assert.Equal(t, tok.Ref, st.Ref)
		assert.True(t, st.ExpiresAt.Equal(tok.ExpiresAt), "derived link never outlives the presented one")
	})

	t.Run("book has no stream link", func(t *testing.T) {
		tok := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionStream)
		resp := f.get("/links/" + tok.Raw)
		body := readBody(t, resp)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, "/stream/")
		assert.NotContains(t, body, "<video")
		m := linkRE.FindStringSubmatch(body)
		require.NotNil(t, m)
		dl, err := f.signer.Verify(m[2])
		require.NoError(t, err)
		assert.Equal(t, linksign.ActionDownload, dl.Action)
	})

	t.Run("invalid token", func(t *testing.T) {
		resp := f.get("/links/garbage")
		_ = readBody(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestLinksPage_PublicBaseURL(t *testing.T) {
	f := newFixture(t, behaviorEcho, func(c *Config, _ *Deps) { c.PublicBaseURL = "https://media.example.org/" })
	defer f.close()
	tok := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionDownload)

	body := readBody(t, f.get("/links/"+tok.Raw))
	assert.Contains(t, body, `href="https://media.example.org/download/`+tok.Raw+`"`)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "", humanSize(0))
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KiB", humanSize(1536))
	assert.Equal(t, "2.0 GiB", humanSize(2<<30))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{linksign.ErrExpired, http.StatusForbidden},
		{ErrWrongAction, http.StatusForbidden},
		{library.ErrNotFound, http.StatusNotFound},
		{admission.ErrOverloaded, http.StatusServiceUnavailable},
		{transcode.ErrTranscodeTimeout, http.StatusGatewayTimeout},
		{&transcode.ExitError{Code: 1}, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}

func TestParseRangeEmptyFile(t *testing.T) {
	r, err := parseRange("bytes=0-", 0)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, errRangeNotSatisfiable)

	r, err = parseRange("", 0)
	assert.Nil(t, r)
	assert.NoError(t, err)

	assert.True(t, strings.HasPrefix(disposition("inline", "/a/b c.mp4"), "inline; filename="))
}

func TestLinkURLs(t *testing.T) {
	tok := linksign.Token{Action: linksign.ActionStream, Raw: "a.b.c"}
	assert.Equal(t, "https://x.example/links/a.b.c", PageURL("https://x.example/", tok))
	assert.Equal(t, "https://x.example/stream/a.b.c", DirectURL("https://x.example", tok))
	assert.Equal(t, "/links/a.b.c", PageURL("", tok))
}
