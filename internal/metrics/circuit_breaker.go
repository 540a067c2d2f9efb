// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seedlink_breaker_state",
		Help: "Breaker guarding a remote dependency; the current state is 1, the others 0",
	}, []string{"breaker", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seedlink_breaker_trips_total",
		Help: "Transitions of a breaker into the open state",
	}, []string{"breaker", "reason"})
)

// SetCircuitBreakerState marks state as the current one for breaker.
func SetCircuitBreakerState(breaker, state string) {
	for _, s := range [...]string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(breaker, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(breaker, reason string) {
	circuitBreakerTrips.WithLabelValues(breaker, reason).Inc()
}
