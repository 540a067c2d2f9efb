// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by all seedlink spans.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Library attributes
	LibraryCategoryKey = "library.category"
	LibraryEntriesKey  = "library.entries"
	LibrarySkippedKey  = "library.skipped"

	// Link attributes
	LinkActionKey      = "link.action"
	LinkFingerprintKey = "link.fingerprint"

	// Stream attributes
	StreamModeKey    = "stream.mode"
	StreamProfileKey = "stream.profile"
	StreamBytesKey   = "stream.bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CatalogAttributes describes a catalog rebuild.
func CatalogAttributes(category string, entries, skipped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LibraryCategoryKey, category),
		attribute.Int(LibraryEntriesKey, entries),
		attribute.Int(LibrarySkippedKey, skipped),
	}
}

// StreamAttributes describes one gateway session. Empty values are omitted.
func StreamAttributes(action, fingerprint, mode, profile string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if action != "" {
		attrs = append(attrs, attribute.String(LinkActionKey, action))
	}
	if fingerprint != "" {
		attrs = append(attrs, attribute.String(LinkFingerprintKey, fingerprint))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(StreamModeKey, mode))
	}
	if profile != "" {
		attrs = append(attrs, attribute.String(StreamProfileKey, profile))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
