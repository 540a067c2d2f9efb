// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for seedlink.
// Labels are bounded: category, action and result enums only; never paths,
// titles or token material.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogRebuildTotal counts catalog rebuilds by category and result.
	CatalogRebuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_catalog_rebuild_total",
		Help: "Total catalog rebuilds, by category and result (ok/error).",
	}, []string{"category", "result"})

	// CatalogRebuildDuration tracks the wall time of a full remote listing and normalization.
	CatalogRebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seedlink_catalog_rebuild_duration_seconds",
		Help:    "Duration of catalog rebuilds, by category.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"category"})

	// CatalogEntries is the entry count of the latest successful catalog.
	CatalogEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seedlink_catalog_entries",
		Help: "Number of entries in the current catalog, by category.",
	}, []string{"category"})

	// CatalogSkippedTotal counts listing entries the normalizer could not place.
	CatalogSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_catalog_skipped_total",
		Help: "Total remote entries skipped during normalization, by category.",
	}, []string{"category"})

	// CatalogCacheTotal counts cache lookups by outcome (hit/miss/stale).
	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_catalog_cache_total",
		Help: "Catalog cache lookups, by category and outcome (hit/miss/stale/error).",
	}, []string{"category", "outcome"})

	// CatalogAge is seconds since the cached catalog was computed.
	CatalogAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seedlink_catalog_age_seconds",
		Help: "Age of the cached catalog when last served, by category.",
	}, []string{"category"})
)

// RecordCatalogRebuild records one rebuild attempt.
func RecordCatalogRebuild(category string, d time.Duration, entries, skipped int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogRebuildTotal.WithLabelValues(category, result).Inc()
	CatalogRebuildDuration.WithLabelValues(category).Observe(d.Seconds())
	if err == nil {
		CatalogEntries.WithLabelValues(category).Set(float64(entries))
		CatalogSkippedTotal.WithLabelValues(category).Add(float64(skipped))
	}
}

// RecordCatalogCache records a cache lookup outcome and the served age.
func RecordCatalogCache(category, outcome string, age time.Duration) {
	CatalogCacheTotal.WithLabelValues(category, outcome).Inc()
	if outcome != "error" {
		CatalogAge.WithLabelValues(category).Set(age.Seconds())
	}
}
