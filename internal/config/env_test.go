// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		envSet       bool
		want         string
	}{
		{name: "environment variable set", key: "TEST_STRING", defaultValue: "default", envValue: "from-env", envSet: true, want: "from-env"},
		{name: "environment variable not set", key: "TEST_STRING_UNSET", defaultValue: "default", want: "default"},
		{name: "environment variable empty string", key: "TEST_STRING_EMPTY", defaultValue: "default", envValue: "", envSet: true, want: "default"},
		{name: "sensitive variable (password)", key: "TEST_PASSWORD", defaultValue: "default", envValue: "secret123", envSet: true, want: "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, ParseString(tt.key, tt.defaultValue))
		})
	}
}

func TestParseIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT", "12")
	assert.Equal(t, 12, ParseInt("TEST_INT", 3))

	t.Setenv("TEST_INT", "twelve")
	assert.Equal(t, 3, ParseInt("TEST_INT", 3))

	assert.Equal(t, 7, ParseInt("TEST_INT_UNSET", 7))
}

func TestParseSeconds(t *testing.T) {
	t.Setenv("TEST_SECONDS", "45")
	assert.Equal(t, 45*time.Second, ParseSeconds("TEST_SECONDS", time.Minute))
	assert.Equal(t, time.Minute, ParseSeconds("TEST_SECONDS_UNSET", time.Minute))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "1m30s")
	assert.Equal(t, 90*time.Second, ParseDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_DUR", "soon")
	assert.Equal(t, time.Second, ParseDuration("TEST_DUR", time.Second))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES"} {
		t.Setenv("TEST_BOOL", v)
		assert.True(t, ParseBool("TEST_BOOL", false), v)
	}
	for _, v := range []string{"false", "0", "no"} {
		t.Setenv("TEST_BOOL", v)
		assert.False(t, ParseBool("TEST_BOOL", true), v)
	}
	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, ParseBool("TEST_BOOL", true))
}

func TestParseList(t *testing.T) {
	t.Setenv("TEST_LIST", " .epub, .PDF ,,.mobi ")
	assert.Equal(t, []string{".epub", ".PDF", ".mobi"}, ParseList("TEST_LIST", nil))

	t.Setenv("TEST_LIST", "  ")
	assert.Equal(t, []string{"x"}, ParseList("TEST_LIST", []string{"x"}))
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, isSensitiveKey("LINK_SECRET"))
	assert.True(t, isSensitiveKey("SFTP_PASSWORD"))
	assert.True(t, isSensitiveKey("API_TOKEN"))
	assert.True(t, isSensitiveKey("SSH_KEY_TEXT"))
	assert.False(t, isSensitiveKey("SFTP_HOST"))
}
