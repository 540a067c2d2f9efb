// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linksIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_links_issued_total",
		Help: "Total signed links issued, by action.",
	}, []string{"action"})

	linksVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_links_verified_total",
		Help: "Total link verifications, by result (ok/expired/signature_mismatch/malformed).",
	}, []string{"result"})
)

// RecordLinkIssued increments the issued counter.
func RecordLinkIssued(action string) {
	linksIssued.WithLabelValues(action).Inc()
}

// RecordLinkVerified increments the verification counter.
func RecordLinkVerified(result string) {
	linksVerified.WithLabelValues(result).Inc()
}
