// Copyright 2025 Joseph Cumines
//
// Audit logging for MCP tool invocations

package server

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditLogger writes one JSON line per tool invocation: tool, redacted
// arguments, outcome and duration. A nil or disabled AuditLogger discards
// everything.
type AuditLogger struct {
	logger *zap.Logger
	file   *os.File
}

// redactedKeys are argument keys, matched case insensitively and as
// substrings, whose values are never written.
var redactedKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"private_key",
	"authorization",
	"bearer",
	"cookie",
	"passphrase",
}

// safeKeys match redactedKeys but carry no secrets.
var safeKeys = map[string]bool{
	"page_token":      true,
	"next_page_token": true,
}

// NewAuditLogger opens filePath for appending. An empty path returns a
// disabled logger.
func NewAuditLogger(filePath string) (*AuditLogger, error) {
	if filePath == "" {
		return &AuditLogger{}, nil
	}
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	a := NewAuditLoggerTo(zapcore.AddSync(file))
	a.file = file
	return a, nil
}

// NewAuditLoggerTo writes audit records to ws.
func NewAuditLoggerTo(ws zapcore.WriteSyncer) *AuditLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.InfoLevel)
	return &AuditLogger{logger: zap.New(core)}
}

// IsEnabled reports whether records are written.
func (a *AuditLogger) IsEnabled() bool {
	return a != nil && a.logger != nil
}

// LogToolCall records a tool invocation.
func (a *AuditLogger) LogToolCall(tool string, args json.RawMessage, status string, duration time.Duration) {
	if !a.IsEnabled() {
		return
	}
	a.logger.Info("tool_invocation",
		zap.String("tool", tool),
		zap.String("arguments", redactArguments(args)),
		zap.String("status", status),
		zap.Float64("duration_seconds", duration.Seconds()),
	)
}

// Close flushes and closes the audit file, if any.
func (a *AuditLogger) Close() error {
	if !a.IsEnabled() {
		return nil
	}
	_ = a.logger.Sync()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

func redactArguments(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "[unparseable]"
	}
	redactMapValues(parsed)
	redacted, err := json.Marshal(parsed)
	if err != nil {
		return "[error]"
	}
	return string(redacted)
}

func redactMapValues(m map[string]any) {
	for key, value := range m {
		if isSensitiveKey(key) {
			m[key] = "[REDACTED]"
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			redactMapValues(v)
		case []any:
			for _, item := range v {
				if nested, ok := item.(map[string]any); ok {
					redactMapValues(nested)
				}
			}
		}
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if safeKeys[lower] {
		return false
	}
	for _, k := range redactedKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
