// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamAdmissionTotal counts admission decisions (admitted/overloaded).
	StreamAdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_stream_admission_total",
		Help: "Stream admission decisions, by result.",
	}, []string{"result"})

	// ActiveStreams is the number of stream slots currently held.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seedlink_streams_active",
		Help: "Current number of admitted stream sessions.",
	})

	// StreamSessionsTotal counts finished stream sessions.
	StreamSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_stream_sessions_total",
		Help: "Finished stream sessions, by mode (passthrough/transcode/cached) and outcome.",
	}, []string{"mode", "outcome"})

	// StreamSessionDuration tracks stream session lifetimes.
	StreamSessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seedlink_stream_session_duration_seconds",
		Help:    "Duration of stream sessions, by mode.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
	}, []string{"mode"})

	// StreamBytesTotal counts bytes written to stream clients.
	StreamBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_stream_bytes_total",
		Help: "Bytes sent to stream clients, by mode.",
	}, []string{"mode"})

	// DownloadsTotal counts finished downloads by HTTP status.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_downloads_total",
		Help: "Finished downloads, by status class.",
	}, []string{"status"})

	// DownloadBytesTotal counts bytes sent for downloads.
	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seedlink_download_bytes_total",
		Help: "Bytes sent for downloads.",
	})

	// TranscodeCacheTotal counts transcoded output cache lookups and commits.
	TranscodeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_transcode_cache_total",
		Help: "Transcoded output cache events, by event (hit/miss/commit/abort/evict).",
	}, []string{"event"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_transcoder_terminate_total",
		Help: "Transcoder process group terminations, by signal and outcome.",
	}, []string{"signal", "outcome"})
)

// RecordStreamAdmission records one admission decision.
func RecordStreamAdmission(admitted bool) {
	if admitted {
		StreamAdmissionTotal.WithLabelValues("admitted").Inc()
		return
	}
	StreamAdmissionTotal.WithLabelValues("overloaded").Inc()
}

// SetActiveStreams updates the active stream gauge.
func SetActiveStreams(n int64) {
	ActiveStreams.Set(float64(n))
}

// RecordStreamSession records a finished stream session.
func RecordStreamSession(mode, outcome string, d time.Duration, bytes int64) {
	StreamSessionsTotal.WithLabelValues(mode, outcome).Inc()
	StreamSessionDuration.WithLabelValues(mode).Observe(d.Seconds())
	StreamBytesTotal.WithLabelValues(mode).Add(float64(bytes))
}

// RecordDownload records a finished download.
func RecordDownload(status int, bytes int64) {
	DownloadsTotal.WithLabelValues(statusClass(status)).Inc()
	DownloadBytesTotal.Add(float64(bytes))
}

// RecordTranscodeCache records an output cache event.
func RecordTranscodeCache(event string) {
	TranscodeCacheTotal.WithLabelValues(event).Inc()
}

// IncProcTerminate counts a signal sent to a transcoder process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
