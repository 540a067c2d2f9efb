// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
	"github.com/ManuGH/seedlink/internal/remote"
)

func (g *Gateway) handleDownload(w http.ResponseWriter, r *http.Request) {
	_, e, logger, err := g.authorize(r, linksign.ActionDownload)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}

	status, n, err := g.serveRemote(w, r, e, "attachment", nil, logger)
	if err != nil && status == 0 {
		g.writeError(w, r, logger, err)
		status, _ = statusFor(err)
	}
	metrics.RecordDownload(status, n)
	ev := logger.Info()
	if err != nil {
		ev = logger.Debug().Err(err)
	}
	ev.Int(log.FieldStatus, status).Int64(log.FieldBytes, n).Msg("download served")
}

// serveRemote writes the remote file of e honoring a single Range. status
// is 0 when nothing was written yet, in which case the caller renders err.
// Reads from the source are reported to wd, which may be nil.
func (g *Gateway) serveRemote(w http.ResponseWriter, r *http.Request, e library.Entry, kind string, wd *watchdog, logger zerolog.Logger) (int, int64, error) {
	st, err := g.source.Stat(r.Context(), e.RemotePath)
	if err != nil {
		return 0, 0, err
	}
	size := st.Size

	rng, err := parseRange(r.Header.Get("Range"), size)
	if errors.Is(err, errRangeNotSatisfiable) {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		return 0, 0, err
	}

	var (
		status = http.StatusOK
		length = size
		remRng *remote.ByteRange
	)
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.length()
		remRng = &remote.ByteRange{Start: rng.start, Length: length}
	}

	var body io.ReadCloser
	if r.Method != http.MethodHead {
		body, err = g.source.Open(r.Context(), e.RemotePath, remRng)
		if err != nil {
			return 0, 0, err
		}
		defer func() {
			if err := body.Close(); err != nil {
				logger.Debug().Err(err).Msg("close remote reader")
			}
		}()
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(e.Extension))
	h.Set("Content-Disposition", disposition(kind, e.RemotePath))
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	if rng != nil {
		h.Set("Content-Range", rng.contentRange(size))
	}
	w.WriteHeader(status)
	if body == nil {
		return status, 0, nil
	}
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return status, 0, err
	}

	n, err := io.Copy(w, progressReader{r: body, wd: wd})
	return status, n, err
}
