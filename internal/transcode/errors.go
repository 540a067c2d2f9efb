// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTranscodeFailed means ffmpeg could not be started or exited non-zero.
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrTranscodeTimeout means the stream produced no output in time.
	ErrTranscodeTimeout = errors.New("transcode timed out")
	// ErrTerminated is returned by Wait after Terminate stopped the process.
	ErrTerminated = errors.New("transcode terminated")
)

// ExitError describes a non-zero ffmpeg exit.
type ExitError struct {
	Code        int
	Class       string
	Diagnostics []string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with code %d", e.Code)
	if e.Class != "" {
		msg += " (" + e.Class + ")"
	}
	if n := len(e.Diagnostics); n > 0 {
		msg += ": " + e.Diagnostics[n-1]
	}
	return msg
}

func (e *ExitError) Unwrap() error { return ErrTranscodeFailed }

// ClassifyStderr maps one ffmpeg stderr line to a short failure class, or
// "" if the line is not recognized.
func ClassifyStderr(line string) string {
	s := strings.ToLower(line)
	switch {
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "broken pipe"):
		return "stream_connect_reset"
	case strings.Contains(s, "input/output error"):
		return "io_error"
	case strings.Contains(s, "invalid data found when processing input"),
		strings.Contains(s, "moov atom not found"):
		return "invalid_input"
	case strings.Contains(s, "unknown encoder"),
		strings.Contains(s, "encoder not found"):
		return "encoder_missing"
	}
	return ""
}

// Classify returns the class of the last recognized line.
func Classify(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if c := ClassifyStderr(lines[i]); c != "" {
			return c
		}
	}
	return ""
}
