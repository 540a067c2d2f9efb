// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
)

const heatSRT = "1\r\n00:00:01,000 --> 00:00:02,500\r\nHello\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\n1984\r\n"

var trackRE = regexp.MustCompile(`<track kind="subtitles" src="([^"]+)"([^>]*)>`)

func withSidecars(f *fixture) {
	f.src.AddFile("/media/movies/Heat (1995)/Heat.en.srt", []byte(heatSRT))
	f.src.AddFile("/media/movies/Heat (1995)/Heat.vtt", []byte("WEBVTT\n\n00:00.000 --> 00:01.000\nHi\n"))
	f.src.AddFile("/media/movies/Heat (1995)/Heatwave.srt", []byte("unrelated"))
}

func TestSubtitles_LinksPageAndServing(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	withSidecars(f)
	tok := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionDownload)

	body := readBody(t, f.get("/links/"+tok.Raw))
	tracks := trackRE.FindAllStringSubmatch(body, -1)
	require.Len(t, tracks, 2, body)
	assert.Contains(t, tracks[0][2], `srclang="en"`)
	assert.Contains(t, tracks[0][2], `label="English"`)
	assert.Contains(t, tracks[0][2], "default")
	assert.NotContains(t, tracks[1][2], "srclang")
	assert.NotContains(t, tracks[1][2], "default")

	resp := f.get(tracks[0][1])
	got := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vtt; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nHello\n\n00:00:03.000 --> 00:00:04.000\n1984\n", got)

	resp = f.get(tracks[1][1])
	assert.Equal(t, "WEBVTT\n\n00:00.000 --> 00:01.000\nHi\n", readBody(t, resp), "WebVTT is served as is")
}

func TestSubtitles_Rejections(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	withSidecars(f)
	stream := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionStream)
	download := f.token(library.Movies, "Heat (1995)", "Heat", linksign.ActionDownload)
	book := f.token(library.Books, "Isaac Asimov", "Foundation", linksign.ActionStream)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"index out of range", "/subtitles/" + stream.Raw + "/2", http.StatusNotFound},
		{"index not a number", "/subtitles/" + stream.Raw + "/..%2Fsecret", http.StatusNotFound},
		{"download token", "/subtitles/" + download.Raw + "/0", http.StatusForbidden},
		{"not a video", "/subtitles/" + book.Raw + "/0", http.StatusUnsupportedMediaType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.get(tc.path)
			_ = readBody(t, resp)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestLinksPage_NoSidecarsNoTracks(t *testing.T) {
	f := newFixture(t, behaviorEcho)
	defer f.close()
	tok := f.token(library.Movies, "Alien (1979)", "Alien", linksign.ActionDownload)

	body := readBody(t, f.get("/links/"+tok.Raw))
	assert.Contains(t, body, "<video controls")
	assert.NotContains(t, body, "<track")
}

func TestSRTToVTT(t *testing.T) {
	in := "\ufeff1\n00:00:01,000 --> 00:00:02,000\nOne\n\n2\n00:00:02,500 --> 00:00:03,000\n2\n"
	want := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nOne\n\n00:00:02.500 --> 00:00:03.000\n2\n"
	assert.Equal(t, want, string(srtToVTT([]byte(in))))
}
