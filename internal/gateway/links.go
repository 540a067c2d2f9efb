// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/seedlink/internal/linksign"
)

var linksPage = template.Must(template.New("links").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#222}
a.button{display:inline-block;margin:.5rem .5rem 0 0;padding:.6rem 1rem;border-radius:.4rem;background:#2b6cb0;color:#fff;text-decoration:none}
video{width:100%;margin-top:1rem;background:#000}
.meta{color:#666}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Group}} &middot; {{.Format}}{{if .Size}} &middot; {{.Size}}{{end}}</p>
<p class="meta">Links expire {{.Expires}}.</p>
<p>
<a class="button" href="{{.DownloadURL}}">Download</a>
{{- if .StreamURL}}
<a class="button" href="{{.StreamURL}}">Open stream</a>
{{- end}}
</p>
{{- if .StreamURL}}
<video controls preload="metadata" src="{{.StreamURL}}">
{{- range $i, $t := .Subtitles}}
<track kind="subtitles" src="{{$t.URL}}"{{with $t.Lang}} srclang="{{.}}"{{end}} label="{{$t.Label}}"{{if eq $i 0}} default{{end}}>
{{- end}}
</video>
{{- end}}
</body>
</html>
`))

type linksView struct {
	Title       string
	Group       string
	Format      string
	Size        string
	Expires     string
	DownloadURL string
	StreamURL   string
	Subtitles   []trackView
}

type trackView struct {
	URL   string
	Lang  string
	Label string
}

func (g *Gateway) handleLinks(w http.ResponseWriter, r *http.Request) {
	tok, e, logger, err := g.authorize(r, "")
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}

	view := linksView{
		Title:   e.DisplayTitle(),
		Group:   e.Group,
		Format:  e.Extension,
		Size:    humanSize(e.SizeBytes),
		Expires: tok.ExpiresAt.UTC().Format(time.RFC1123),
	}

	download, err := g.sibling(tok, linksign.ActionDownload)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	view.DownloadURL = g.url("download", download)

	if isVideo(e.Extension) {
		stream, err := g.sibling(tok, linksign.ActionStream)
		if err != nil {
			g.writeError(w, r, logger, err)
			return
		}
		view.StreamURL = g.url("stream", stream)

		subs, err := g.sidecars(r.Context(), e)
		if err != nil {
			logger.Debug().Err(err).Msg("subtitle lookup failed")
		}
		for i, s := range subs {
			view.Subtitles = append(view.Subtitles, trackView{
				URL:   g.url("subtitles", stream) + "/" + strconv.Itoa(i),
				Lang:  s.lang,
				Label: s.label,
			})
		}
	}

	var buf bytes.Buffer
	if err := linksPage.Execute(&buf, view); err != nil {
		g.writeError(w, r, logger, fmt.Errorf("render links page: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// sibling returns a token for action that expires with tok.
func (g *Gateway) sibling(tok linksign.Token, action linksign.Action) (string, error) {
	if tok.Action == action {
		return tok.Raw, nil
	}
	d, err := g.signer.Derive(tok, action)
	if err != nil {
		return "", err
	}
	return d.Raw, nil
}

func humanSize(n int64) string {
	if n <= 0 {
		return ""
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
