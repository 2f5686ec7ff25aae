// Copyright 2025 Joseph Cumines
//
// Audit logger unit tests

package server

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewAuditLogger_Disabled(t *testing.T) {
	logger, err := NewAuditLogger("")
	require.NoError(t, err)
	assert.False(t, logger.IsEnabled(), "no file path disables the logger")
	logger.LogToolCall("get_operation", json.RawMessage(`{}`), "ok", time.Millisecond)
	assert.NoError(t, logger.Close())
}

func TestNewAuditLogger_InvalidPath(t *testing.T) {
	_, err := NewAuditLogger("/nonexistent/directory/audit.log")
	assert.Error(t, err)
}

func TestAuditLogger_NilLogger(t *testing.T) {
	var logger *AuditLogger
	assert.False(t, logger.IsEnabled())
	logger.LogToolCall("get_operation", nil, "ok", time.Millisecond)
	assert.NoError(t, logger.Close())
}

func TestAuditLogger_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	logger, err := NewAuditLogger(logPath)
	require.NoError(t, err)
	logger.LogToolCall("cancel_operation", json.RawMessage(`{"name":"operations/op-1"}`), "ok", 50*time.Millisecond)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "Close is idempotent")

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &record), "audit record is not JSON: %s", content)

	for key, want := range map[string]any{
		"msg":              "tool_invocation",
		"tool":             "cancel_operation",
		"status":           "ok",
		"arguments":        `{"name":"operations/op-1"}`,
		"duration_seconds": 0.05,
	} {
		assert.Equal(t, want, record[key], key)
	}
	assert.Contains(t, record, "time")
}

func TestAuditLogger_Writer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLoggerTo(zapcore.AddSync(&buf))
	logger.LogToolCall("list_operations", json.RawMessage(`{"page_token":"abc","token":"s3cret"}`), "ok", 0)

	out := buf.String()
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "abc", "page_token is kept")
}

func TestRedactArguments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
		excluded []string
	}{
		{
			name:     "no sensitive data",
			input:    `{"name":"operations/op-1","page_size":10}`,
			expected: []string{"operations/op-1", "10"},
			excluded: []string{"REDACTED"},
		},
		{
			name:     "direct key",
			input:    `{"password":"hunter2","name":"x"}`,
			expected: []string{"[REDACTED]", `"name":"x"`},
			excluded: []string{"hunter2"},
		},
		{
			name:     "partial and case insensitive",
			input:    `{"X-Api_Key_Value":"k","Authorization":"Bearer t"}`,
			excluded: []string{`"k"`, "Bearer t"},
		},
		{
			name:     "nested",
			input:    `{"outer":{"secret":"s"},"list":[{"access_token":"a"}]}`,
			expected: []string{"outer", "list"},
			excluded: []string{`"s"`, `"a"`},
		},
		{
			name:     "page tokens kept",
			input:    `{"page_token":"b2Zmc2V0OjI"}`,
			expected: []string{"b2Zmc2V0OjI"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactArguments(json.RawMessage(tt.input))
			for _, want := range tt.expected {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.excluded {
				assert.NotContains(t, got, bad)
			}
		})
	}

	assert.Equal(t, "{}", redactArguments(nil))
	assert.Equal(t, "[unparseable]", redactArguments(json.RawMessage(`not json`)))
}
