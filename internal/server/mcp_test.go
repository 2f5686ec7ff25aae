// Copyright 2025 Joseph Cumines
//
// MCP server tests against an in-memory Operations server

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/operations"
	"github.com/joeycumines/lro-client/internal/opstest"
	"github.com/joeycumines/lro-client/internal/transport"
)

type harness struct {
	server  *Server
	ops     *opstest.Server
	metrics *transport.Metrics
	audit   *bytes.Buffer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ops := opstest.NewServer()
	for i := 1; i <= 3; i++ {
		ops.Put(&longrunningpb.Operation{Name: opstest.OperationName(i), Done: i == 3})
	}
	client := operations.NewClientWithTransport(opstest.Serve(t, ops),
		operations.WithPollBackoff(gax.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}))

	h := &harness{ops: ops, metrics: transport.NewMetrics(false), audit: &bytes.Buffer{}}
	cfg := config.Default()
	cfg.RequestTimeout = 5 * time.Second
	opts = append([]Option{
		WithMetrics(h.metrics),
		WithAuditLogger(NewAuditLoggerTo(zapcore.AddSync(h.audit))),
	}, opts...)
	h.server = NewServer(client, cfg, opts...)
	return h
}

func request(t *testing.T, id int, method string, params any) *transport.Message {
	t.Helper()
	msg := &transport.Message{JSONRPC: transport.Version, Method: method, ID: mustJSON(t, id)}
	if params != nil {
		msg.Params = mustJSON(t, params)
	}
	return msg
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// callTool runs tools/call and decodes the tool result.
func (h *harness) callTool(t *testing.T, name string, args map[string]any) *ToolResult {
	t.Helper()
	resp, err := h.server.Handle(context.Background(), request(t, 1, "tools/call", map[string]any{"name": name, "arguments": args}))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "unexpected JSON-RPC error: %+v", resp.Error)
	var result ToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return &result
}

func resultText(r *ToolResult) string {
	var parts []string
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

func TestHandle_Initialize(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Handle(context.Background(), request(t, 1, "initialize", map[string]any{}))
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	var result struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Contains(t, result.Capabilities, "tools")
	assert.Equal(t, serverName, result.ServerInfo.Name)
}

func TestHandle_Notifications(t *testing.T) {
	h := newHarness(t)

	for _, method := range []string{"notifications/initialized", "notifications/cancelled", "anything"} {
		resp, err := h.server.Handle(context.Background(), &transport.Message{JSONRPC: transport.Version, Method: method})
		require.NoError(t, err)
		assert.Nil(t, resp, "notification %s must not be answered", method)
	}
}

func TestHandle_UnknownMethod(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Handle(context.Background(), request(t, 7, "resources/list", nil))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "7", string(resp.ID))
}

func TestHandle_ToolsList(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Handle(context.Background(), request(t, 1, "tools/list", nil))
	require.NoError(t, err)

	var result struct {
		Tools []struct {
			Name        string      `json:"name"`
			Description string      `json:"description"`
			InputSchema InputSchema `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"cancel_operation", "delete_operation", "get_operation", "list_operations", "wait_operation"}, names)

	list := result.Tools[3]
	assert.Equal(t, "integer", list.InputSchema.Properties["page_size"].Type)
	assert.Equal(t, "string", list.InputSchema.Properties["filter"].Type)
	assert.Empty(t, list.InputSchema.Required)
	assert.Equal(t, []string{"name"}, result.Tools[2].InputSchema.Required)
	assert.Contains(t, result.Tools[2].Description, "GET /v1/")
}

func TestTool_ListOperations(t *testing.T) {
	h := newHarness(t)

	result := h.callTool(t, "list_operations", map[string]any{"name": "operations", "page_size": 2})
	require.False(t, result.IsError, resultText(result))
	text := resultText(result)
	assert.Contains(t, text, "Found 2 operation(s)")
	assert.Contains(t, text, opstest.OperationName(1))
	assert.Contains(t, text, "next_page_token: ")

	result = h.callTool(t, "list_operations", map[string]any{"name": "operations", "filter": "done=true"})
	require.False(t, result.IsError)
	assert.Contains(t, resultText(result), "Found 1 operation(s)")
	assert.Contains(t, resultText(result), opstest.OperationName(3)+" (done)")

}

func TestTool_GetOperation(t *testing.T) {
	h := newHarness(t)

	result := h.callTool(t, "get_operation", map[string]any{"name": opstest.OperationName(1)})
	require.False(t, result.IsError, resultText(result))
	assert.Contains(t, resultText(result), "is running")
	assert.Contains(t, resultText(result), `"operations/op-1"`)
}

func TestTool_GetOperation_NotFound(t *testing.T) {
	h := newHarness(t)

	result := h.callTool(t, "get_operation", map[string]any{"name": "operations/missing"})
	require.True(t, result.IsError)
	assert.Contains(t, resultText(result), "NotFound")
	assert.Contains(t, resultText(result), "Suggestion:")
}

func TestTool_UnknownArgument(t *testing.T) {
	h := newHarness(t)

	result := h.callTool(t, "cancel_operation", map[string]any{"name": opstest.OperationName(1), "force": true})
	require.True(t, result.IsError)
	assert.Contains(t, resultText(result), `unknown field "force"`)

	op, ok := h.ops.Operation(opstest.OperationName(1))
	require.True(t, ok)
	assert.False(t, op.GetDone(), "nothing was sent")
}

func TestTool_InvalidArguments(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{name: "missing name", tool: "get_operation", args: map[string]any{}},
		{name: "wrong type", tool: "list_operations", args: map[string]any{"page_size": "ten"}},
		{name: "fractional integer", tool: "list_operations", args: map[string]any{"page_size": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.server.Handle(context.Background(), request(t, 1, "tools/call", map[string]any{"name": tt.tool, "arguments": tt.args}))
			require.NoError(t, err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, transport.ErrCodeInvalidParams, resp.Error.Code)
		})
	}
}

func TestTool_UnknownTool(t *testing.T) {
	h := newHarness(t)

	resp, err := h.server.Handle(context.Background(), request(t, 1, "tools/call", map[string]any{"name": "click"}))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, transport.ErrCodeMethodNotFound, resp.Error.Code)
}

func TestTool_CancelThenWait(t *testing.T) {
	h := newHarness(t)
	name := opstest.OperationName(2)

	result := h.callTool(t, "cancel_operation", map[string]any{"name": name})
	require.False(t, result.IsError, resultText(result))

	result = h.callTool(t, "wait_operation", map[string]any{"name": name})
	require.True(t, result.IsError)
	assert.Contains(t, resultText(result), "Operation failed")
	assert.Contains(t, resultText(result), "Canceled")
}

func TestTool_WaitOperation(t *testing.T) {
	h := newHarness(t)
	name := opstest.OperationName(1)
	h.ops.CompleteAfter(name, 1, durationpb.New(time.Second))

	result := h.callTool(t, "wait_operation", map[string]any{"name": name, "timeout_seconds": 5})
	require.False(t, result.IsError, resultText(result))
	assert.Contains(t, resultText(result), "completed successfully")
	assert.Contains(t, resultText(result), "google.protobuf.Duration")
}

func TestTool_WaitOperation_Timeout(t *testing.T) {
	h := newHarness(t)

	result := h.callTool(t, "wait_operation", map[string]any{"name": opstest.OperationName(1), "timeout_seconds": 0.05})
	require.True(t, result.IsError)
}

func TestTool_WaitOperation_DeadlineDuringCall(t *testing.T) {
	tr := &opstest.RecordingTransport{
		OnInvoke: func(ctx context.Context, _ *opstest.Call) error {
			<-ctx.Done()
			return status.FromContextError(ctx.Err()).Err()
		},
	}
	h := &harness{server: NewServer(operations.NewClientWithTransport(tr), config.Default())}

	result := h.callTool(t, "wait_operation", map[string]any{"name": opstest.OperationName(1), "timeout_seconds": 0.05})
	require.True(t, result.IsError)
	assert.Contains(t, resultText(result), "did not complete within")
	assert.Equal(t, 1, tr.CallCount())
}

func TestTool_DeleteOperation(t *testing.T) {
	h := newHarness(t)
	name := opstest.OperationName(3)

	result := h.callTool(t, "delete_operation", map[string]any{"name": name})
	require.False(t, result.IsError, resultText(result))
	_, ok := h.ops.Operation(name)
	assert.False(t, ok)
}

func TestTool_RateLimited(t *testing.T) {
	h := newHarness(t, WithRateLimiter(transport.NewRateLimiter(0.001)))

	result := h.callTool(t, "get_operation", map[string]any{"name": opstest.OperationName(1)})
	require.False(t, result.IsError)

	resp, err := h.server.Handle(context.Background(), request(t, 2, "tools/call", map[string]any{
		"name":      "get_operation",
		"arguments": map[string]any{"name": opstest.OperationName(1)},
	}))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errCodeRateLimited, resp.Error.Code)
	assert.Contains(t, h.audit.String(), `"status":"rate_limited"`)
}

func TestTool_MetricsAndAudit(t *testing.T) {
	h := newHarness(t)

	h.callTool(t, "get_operation", map[string]any{"name": opstest.OperationName(1)})
	h.callTool(t, "get_operation", map[string]any{"name": "operations/missing"})

	expected := `
# HELP lro_mcp_requests_total MCP tool calls by tool and outcome.
# TYPE lro_mcp_requests_total counter
lro_mcp_requests_total{status="error",tool="get_operation"} 1
lro_mcp_requests_total{status="ok",tool="get_operation"} 1
`
	require.NoError(t, testutil.GatherAndCompare(h.metrics.Gatherer(), strings.NewReader(expected), "lro_mcp_requests_total"))

	lines := strings.Split(strings.TrimSpace(h.audit.String()), "\n")
	require.Len(t, lines, 2)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "tool_invocation", record["msg"])
	assert.Equal(t, "get_operation", record["tool"])
	assert.Equal(t, "ok", record["status"])
}

func TestServe_Stdio(t *testing.T) {
	h := newHarness(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_operation","arguments":{"name":"operations/op-3"}}}`,
	}, "\n") + "\n"
	var out bytes.Buffer
	tr := transport.NewStdioTransport(strings.NewReader(input), &out)

	require.NoError(t, h.server.Serve(context.Background(), tr))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "the notification is not answered")
	var last transport.Message
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &last))
	assert.Equal(t, "2", string(last.ID))
	assert.Contains(t, string(last.Result), "is done")
}
