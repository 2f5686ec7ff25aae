// Copyright 2025 Joseph Cumines
//
// MCP server exposing the operations client as tools

package server

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/operations"
	"github.com/joeycumines/lro-client/internal/transport"
)

const (
	// ProtocolVersion is the MCP revision the server speaks.
	ProtocolVersion = "2024-11-05"

	serverName    = "lro-ops"
	serverVersion = "0.1.0"

	// errCodeRateLimited is an implementation-defined JSON-RPC server error.
	errCodeRateLimited = -32000
)

// Server answers MCP requests. Tools run synchronously on the caller's
// goroutine.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Server struct {
	client  *operations.Client
	cfg     *config.Config
	logger  *zap.Logger
	audit   *AuditLogger
	metrics *transport.Metrics
	limiter *transport.RateLimiter
	tools   map[string]*Tool
}

// Tool is one MCP tool.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Tool struct {
	Handler     func(ctx context.Context, args map[string]any) (*ToolResult, error) `json:"-"`
	InputSchema InputSchema                                                         `json:"inputSchema"`
	Name        string                                                              `json:"name"`
	Description string                                                              `json:"description"`
}

// InputSchema is the JSON Schema subset used for tool arguments.
type InputSchema struct {
	Properties map[string]Property `json:"properties"`
	Type       string              `json:"type"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ToolCall is the params of a tools/call request.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the result of a tools/call request.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditLogger sets the audit logger for tool invocations.
func WithAuditLogger(a *AuditLogger) Option {
	return func(s *Server) { s.audit = a }
}

// WithMetrics records tool calls into m.
func WithMetrics(m *transport.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimiter overrides the limiter derived from the configured rate.
func WithRateLimiter(l *transport.RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// NewServer returns a server over client.
func NewServer(client *operations.Client, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		client:  client,
		cfg:     cfg,
		logger:  zap.NewNop(),
		limiter: transport.NewRateLimiter(cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tools = s.registerTools()
	return s
}

// Serve handles messages from tr until its input ends or ctx is done.
func (s *Server) Serve(ctx context.Context, tr transport.Transport) error {
	s.logger.Info("MCP server starting",
		zap.Int("tools", len(s.tools)),
		zap.Int("rate_burst", s.limiter.Burst()),
	)
	defer s.logger.Info("MCP server stopped")
	return transport.Serve(ctx, tr, s.Handle, s.logger)
}

// Tools returns the registered tools, sorted by name.
func (s *Server) Tools() []*Tool {
	out := make([]*Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Tool) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Handle answers one JSON-RPC message. Notifications yield a nil response.
func (s *Server) Handle(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.Method {
	case "":
		if len(msg.ID) == 0 {
			return nil, nil
		}
		return transport.NewError(msg.ID, transport.ErrCodeInvalidRequest, "Invalid Request: missing method"), nil
	case "initialize":
		return transport.NewResult(msg.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
		})
	case "ping":
		return transport.NewResult(msg.ID, map[string]any{})
	case "tools/list":
		return transport.NewResult(msg.ID, map[string]any{"tools": s.Tools()})
	case "tools/call":
		return s.handleToolCall(ctx, msg), nil
	}

	if msg.IsNotification() {
		s.logger.Debug("ignoring notification", zap.String("method", msg.Method))
		return nil, nil
	}
	return transport.NewError(msg.ID, transport.ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method)), nil
}

func (s *Server) handleToolCall(ctx context.Context, msg *transport.Message) *transport.Message {
	var call ToolCall
	if err := json.Unmarshal(msg.Params, &call); err != nil {
		return transport.NewError(msg.ID, transport.ErrCodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
	}

	tool, ok := s.tools[call.Name]
	if !ok {
		return transport.NewError(msg.ID, transport.ErrCodeMethodNotFound, fmt.Sprintf("Tool not found: %s", call.Name))
	}

	if !s.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordRateLimited(call.Name)
		}
		s.audit.LogToolCall(call.Name, call.Arguments, "rate_limited", 0)
		return transport.NewError(msg.ID, errCodeRateLimited, "Rate limit exceeded")
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 && string(call.Arguments) != "null" {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return transport.NewError(msg.ID, transport.ErrCodeInvalidParams, fmt.Sprintf("Invalid arguments: %v", err))
		}
	}
	if errObj := validateToolInput(tool, args); errObj != nil {
		return &transport.Message{JSONRPC: transport.Version, ID: msg.ID, Error: errObj}
	}

	start := time.Now()
	result, err := tool.Handler(ctx, args)
	duration := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		status = "failed"
	case result.IsError:
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordRequest(call.Name, status, duration)
	}
	s.audit.LogToolCall(call.Name, call.Arguments, status, duration)
	s.logger.Debug("tool call",
		zap.String("tool", call.Name),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)

	if err != nil {
		s.logger.Error("tool failed", zap.String("tool", call.Name), zap.Error(err))
		return transport.NewError(msg.ID, transport.ErrCodeInternalError, err.Error())
	}

	resp, err := transport.NewResult(msg.ID, result)
	if err != nil {
		return transport.NewError(msg.ID, transport.ErrCodeInternalError, err.Error())
	}
	return resp
}
