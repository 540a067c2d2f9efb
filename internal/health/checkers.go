// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/seedlink/internal/admission"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/resilience"
)

// StatusSource reports catalog state without triggering rebuilds.
type StatusSource interface {
	Status() []library.CategoryStatus
}

// CatalogChecker reports the library. A category that never built is
// unhealthy only once a build was attempted and failed; one serving a stale
// catalog after a failed rebuild is degraded.
type CatalogChecker struct {
	lib StatusSource
}

func NewCatalogChecker(lib StatusSource) *CatalogChecker {
	return &CatalogChecker{lib: lib}
}

func (c *CatalogChecker) Name() string { return "library" }

func (c *CatalogChecker) Check(context.Context) CheckResult {
	statuses := c.lib.Status()
	res := CheckResult{Status: StatusHealthy, Message: "all categories built", Details: statuses}

	var failed, degraded, pending []string
	for _, st := range statuses {
		switch st.Status {
		case library.StatusFailed:
			failed = append(failed, string(st.Category))
		case library.StatusDegraded:
			degraded = append(degraded, string(st.Category))
		case library.StatusNever:
			pending = append(pending, string(st.Category))
		}
	}

	switch {
	case len(failed) > 0:
		res.Status = StatusUnhealthy
		res.Message = "catalog unavailable: " + strings.Join(failed, ", ")
	case len(degraded) > 0:
		res.Status = StatusDegraded
		res.Message = "serving stale catalog: " + strings.Join(degraded, ", ")
	case len(pending) > 0:
		res.Message = "not built yet: " + strings.Join(pending, ", ")
	}
	return res
}

// BreakerState reports a circuit breaker's state.
type BreakerState interface {
	BreakerState() string
}

// BreakerChecker degrades while the remote breaker is not closed. Requests
// still fail fast in that state, but cached catalogs keep being served.
type BreakerChecker struct {
	name string
	src  BreakerState
}

func NewBreakerChecker(name string, src BreakerState) *BreakerChecker {
	return &BreakerChecker{name: name, src: src}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	state := c.src.BreakerState()
	switch resilience.State(state) {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: "circuit closed"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit half-open, probing remote"}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + state + ", remote calls fail fast"}
	}
}

// StreamChecker reports stream admission. A full limiter is degraded.
type StreamChecker struct {
	limiter *admission.Limiter
}

func NewStreamChecker(l *admission.Limiter) *StreamChecker {
	return &StreamChecker{limiter: l}
}

func (c *StreamChecker) Name() string { return "streams" }

func (c *StreamChecker) Check(context.Context) CheckResult {
	msg := fmt.Sprintf("%d/%d streams active", c.limiter.Active(), c.limiter.Size())
	if reason := c.limiter.Decide(); reason != admission.ReasonAdmitted {
		return CheckResult{Status: StatusDegraded, Message: msg + ", new streams rejected: " + string(reason)}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
