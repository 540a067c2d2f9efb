// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://example.com", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_Port(t *testing.T) {
	for _, port := range []int{1, 22, 8080, 65535} {
		v := New()
		v.Port("p", port)
		assert.True(t, v.IsValid(), "port %d", port)
	}
	for _, port := range []int{-1, 0, 65536} {
		v := New()
		v.Port("p", port)
		assert.False(t, v.IsValid(), "port %d", port)
	}
}

func TestValidator_RemoteRoot(t *testing.T) {
	tests := []struct {
		root    string
		wantErr bool
	}{
		{"/media/books", false},
		{"/media/books/", false},
		{"/", false},
		{"", true},
		{"media/books", true},
		{"/media/../etc", true},
		{"/media//books", true},
	}
	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			v := New()
			v.RemoteRoot("root", tt.root)
			assert.Equal(t, tt.wantErr, !v.IsValid(), "err: %v", v.Err())
		})
	}
}

func TestValidator_Extensions(t *testing.T) {
	v := New()
	v.Extensions("ext", []string{".epub", ".tar.gz"})
	assert.True(t, v.IsValid())

	v = New()
	v.Extensions("ext", nil)
	assert.False(t, v.IsValid())

	v = New()
	v.Extensions("ext", []string{"epub", ".", ".a b"})
	assert.Len(t, v.Errors(), 3)
}

func TestValidator_MinLenRedacts(t *testing.T) {
	v := New()
	v.MinLen("LINK_SECRET", "short", 16)
	require.False(t, v.IsValid())
	assert.NotContains(t, v.Err().Error(), "short")
	assert.Equal(t, "<redacted>", v.Errors()[0].Value)
}

func TestValidator_Durations(t *testing.T) {
	v := New()
	v.PositiveDuration("ttl", time.Second)
	v.PositiveDuration("zero", 0)
	require.Len(t, v.Errors(), 1)
	assert.Equal(t, "zero", v.Errors()[0].Field)
}

func TestValidationError_Aggregates(t *testing.T) {
	v := New()
	assert.NoError(t, v.Err())

	v.NotEmpty("a", " ")
	v.Positive("b", 0)
	v.OneOf("c", "x", []string{"sftp", "local"})
	v.Range("d", 11, 1, 10)
	v.NonNegative("e", -1)
	v.Custom("f", 1, func(interface{}) error { return errors.New("nope") })

	err := v.Err()
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors(), 6)
	assert.Equal(t, 5, strings.Count(err.Error(), "; "))
}
