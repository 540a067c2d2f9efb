// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureBase(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Configure(Config{Level: "debug", Output: buf, Service: "seedlink-test", Version: "v0.0.0"})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	return buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out))
	return out
}

func TestWithComponentAddsFields(t *testing.T) {
	buf := captureBase(t)

	l := WithComponent("indexer")
	l.Info().Str(FieldCategory, "books").Msg("rebuilt")

	line := decodeLine(t, buf)
	assert.Equal(t, "indexer", line[FieldComponent])
	assert.Equal(t, "books", line[FieldCategory])
	assert.Equal(t, "seedlink-test", line["service"])
	assert.Equal(t, "v0.0.0", line["version"])
}

func TestConfigureAdjustsLevel(t *testing.T) {
	buf := captureBase(t)

	Configure(Config{Level: "warn"})
	l := WithComponent("gateway")
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Equal(t, "shown", decodeLine(t, buf)["message"])
}

func TestDerive(t *testing.T) {
	buf := captureBase(t)

	l := Derive(func(c *zerolog.Context) { *c = c.Str(FieldAction, "stream") })
	l.Info().Msg("x")
	assert.Equal(t, "stream", decodeLine(t, buf)[FieldAction])

	buf.Reset()
	nilBuild := Derive(nil)
	nilBuild.Info().Msg("y")
	assert.Equal(t, "y", decodeLine(t, buf)["message"])
}
