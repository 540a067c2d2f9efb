// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"
	FieldTokenID   = "token_fp"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Library fields
	FieldCategory   = "category"
	FieldGroup      = "group"
	FieldTitle      = "title"
	FieldRemotePath = "remote_path"
	FieldRoot       = "root"
	FieldEntries    = "entries"

	// Link / stream fields
	FieldAction  = "action"
	FieldProfile = "profile"
	FieldMode    = "mode"
	FieldBytes   = "bytes"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// HTTP fields
	FieldMethod   = "method"
	FieldRoute    = "route"
	FieldStatus   = "status"
	FieldDuration = "duration"
	FieldRemote   = "remote_addr"
)
