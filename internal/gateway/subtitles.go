// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/remote"
)

const maxSubtitleBytes = 4 << 20

// errSubtitleTooLarge is mapped to 502.
var errSubtitleTooLarge = errors.New("subtitle file too large")

// sidecar is a subtitle file next to a video: "Movie.srt", "Movie.en.vtt".
type sidecar struct {
	path  string
	lang  string // BCP 47, empty when the name carries none
	label string
	srt   bool
}

// sidecars lists the subtitle files sharing e's base name, ordered by name.
func (g *Gateway) sidecars(ctx context.Context, e library.Entry) ([]sidecar, error) {
	dir := path.Dir(e.RemotePath)
	name := path.Base(e.RemotePath)
	stem := name[:len(name)-len(path.Ext(name))]

	children, err := g.source.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })

	var out []sidecar
	for _, c := range children {
		if c.IsDir {
			continue
		}
		ext := strings.ToLower(path.Ext(c.Path))
		if ext != ".srt" && ext != ".vtt" {
			continue
		}
		base := c.Path[:len(c.Path)-len(ext)]
		if len(base) < len(stem) || !strings.EqualFold(base[:len(stem)], stem) {
			continue
		}
		s := sidecar{path: path.Join(dir, c.Path), srt: ext == ".srt", label: "Subtitles"}
		switch rest := base[len(stem):]; {
		case rest == "":
		case strings.HasPrefix(rest, "."):
			rest = rest[1:]
			s.label = rest
			if tag, err := language.Parse(strings.SplitN(rest, ".", 2)[0]); err == nil {
				s.lang = tag.String()
				if n := display.English.Tags().Name(tag); n != "" {
					s.label = n
				}
			}
		default:
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	_, e, logger, err := g.authorize(r, linksign.ActionStream)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	if !isVideo(e.Extension) {
		g.writeError(w, r, logger, fmt.Errorf("%w: %s", ErrNotVideo, e.Extension))
		return
	}

	subs, err := g.sidecars(r.Context(), e)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	n := chi.URLParam(r, "n")
	i, err := strconv.Atoi(n)
	if err != nil || i < 0 || i >= len(subs) {
		g.writeError(w, r, logger, fmt.Errorf("%w: subtitle %q", remote.ErrNotFound, n))
		return
	}
	sub := subs[i]

	body, err := g.source.Open(r.Context(), sub.path, nil)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(io.LimitReader(body, maxSubtitleBytes+1))
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	if len(data) > maxSubtitleBytes {
		g.writeError(w, r, logger, errSubtitleTooLarge)
		return
	}
	if sub.srt {
		data = srtToVTT(data)
	}

	h := w.Header()
	h.Set("Content-Type", "text/vtt; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(data)
	logger.Debug().Str(log.FieldRemotePath, sub.path).Msg("subtitle served")
}

var srtTiming = regexp.MustCompile(`(\d{1,2}:\d{2}:\d{2}),(\d{3})`)

// srtToVTT rewrites SubRip cues as WebVTT: a header, no cue counters and
// dots as the millisecond separator.
func srtToVTT(src []byte) []byte {
	text := strings.TrimPrefix(string(src), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(strings.Trim(text, "\n"), "\n")

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, line := range lines {
		if isCueCounter(line) && i+1 < len(lines) && strings.Contains(lines[i+1], "-->") {
			continue
		}
		if strings.Contains(line, "-->") {
			line = srtTiming.ReplaceAllString(line, "$1.$2")
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func isCueCounter(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, c := range line {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
