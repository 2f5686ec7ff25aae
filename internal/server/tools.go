// Copyright 2025 Joseph Cumines
//
// Operations tool handlers

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/joeycumines/lro-client/internal/dispatch"
)

const waitOperation = "wait_operation"

var fieldDescriptions = map[string]string{
	"name":       "Operation resource name, or for list_operations the parent collection (e.g., operations)",
	"filter":     `Standard list filter (e.g., "done=true")`,
	"page_size":  "Maximum number of operations to return",
	"page_token": "page_token from a previous list_operations result",
}

var toolDescriptions = map[string]string{
	dispatch.ListOperations:  "List long-running operations (one page)",
	dispatch.GetOperation:    "Get the latest state of a long-running operation",
	dispatch.DeleteOperation: "Delete a long-running operation record",
	dispatch.CancelOperation: "Request cancellation of a long-running operation",
}

// registerTools builds one tool per Operations method, with its input schema
// derived from the request message, plus wait_operation.
func (s *Server) registerTools() map[string]*Tool {
	handlers := map[string]func(context.Context, map[string]any) (*ToolResult, error){
		dispatch.ListOperations:  s.handleListOperations,
		dispatch.GetOperation:    s.handleGetOperation,
		dispatch.DeleteOperation: s.handleDeleteOperation,
		dispatch.CancelOperation: s.handleCancelOperation,
	}

	tools := make(map[string]*Tool, len(handlers)+1)
	for _, m := range dispatch.Methods() {
		tools[m.Name] = &Tool{
			Name:        m.Name,
			Description: fmt.Sprintf("%s (%s)", toolDescriptions[m.Name], m.HTTPBinding()),
			InputSchema: methodSchema(m),
			Handler:     handlers[m.Name],
		}
	}
	tools[waitOperation] = &Tool{
		Name:        waitOperation,
		Description: "Poll a long-running operation until it is done, then report its result",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"name":            {Type: "string", Description: fieldDescriptions["name"]},
				"timeout_seconds": {Type: "number", Description: "Maximum time to wait (default: LRO_REQUEST_TIMEOUT)"},
			},
			Required: []string{"name"},
		},
		Handler: s.handleWaitOperation,
	}
	return tools
}

func methodSchema(m *dispatch.Method) InputSchema {
	fields := m.NewRequest().ProtoReflect().Descriptor().Fields()
	schema := InputSchema{Type: "object", Properties: make(map[string]Property, len(m.Fields))}
	for _, name := range m.Fields {
		fd := fields.ByName(name)
		schema.Properties[string(name)] = Property{
			Type:        jsonType(fd.Kind()),
			Description: fieldDescriptions[string(name)],
		}
	}
	// only list_operations is addressed by a parent rather than a name
	if m.Name != dispatch.ListOperations {
		schema.Required = []string{"name"}
	}
	return schema
}

func jsonType(kind protoreflect.Kind) string {
	switch kind {
	case protoreflect.BoolKind:
		return "boolean"
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind, protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return "integer"
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return "number"
	}
	return "string"
}

func (s *Server) handleListOperations(ctx context.Context, args map[string]any) (*ToolResult, error) {
	it, err := s.client.ListOperations(ctx, dispatch.Fields(args))
	if err != nil {
		return toolErrorResult(err, dispatch.ListOperations)
	}
	page := it.Response()

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d operation(s)", len(page.GetOperations()))
	for _, op := range page.GetOperations() {
		fmt.Fprintf(&b, "\n- %s (%s)", op.GetName(), operationState(op.GetDone(), op.GetError() != nil))
	}
	if token := page.GetNextPageToken(); token != "" {
		fmt.Fprintf(&b, "\nnext_page_token: %s", token)
	}
	return protoResult(b.String(), page)
}

func (s *Server) handleGetOperation(ctx context.Context, args map[string]any) (*ToolResult, error) {
	op, err := s.client.GetOperation(ctx, dispatch.Fields(args))
	if err != nil {
		return toolErrorResult(err, dispatch.GetOperation)
	}
	p := op.Proto()
	return protoResult(fmt.Sprintf("Operation %s is %s", op.Name(), operationState(p.GetDone(), p.GetError() != nil)), p)
}

func (s *Server) handleDeleteOperation(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if _, err := s.client.DeleteOperation(ctx, dispatch.Fields(args)); err != nil {
		return toolErrorResult(err, dispatch.DeleteOperation)
	}
	return textResultf("Deleted operation %v", args["name"]), nil
}

func (s *Server) handleCancelOperation(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if _, err := s.client.CancelOperation(ctx, dispatch.Fields(args)); err != nil {
		return toolErrorResult(err, dispatch.CancelOperation)
	}
	return textResultf("Cancellation requested for operation %v; use get_operation or wait_operation to observe the outcome", args["name"]), nil
}

func (s *Server) handleWaitOperation(ctx context.Context, args map[string]any) (*ToolResult, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return errorResult("name parameter is required (e.g., operations/{id})"), nil
	}
	for key := range args {
		if key != "name" && key != "timeout_seconds" {
			return errorResultf("Invalid parameters: %s: %s %q", waitOperation, dispatch.ErrUnknownField, key), nil
		}
	}

	timeout := s.cfg.RequestTimeout
	if secs, ok := args["timeout_seconds"].(float64); ok {
		if secs <= 0 {
			return errorResult("timeout_seconds must be positive"), nil
		}
		timeout = time.Duration(secs * float64(time.Second))
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	op, err := s.client.WaitOperation(ctx, name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || grpcstatus.Code(err) == codes.DeadlineExceeded {
			return errorResultf("Operation %s did not complete within %s", name, timeout), nil
		}
		return toolErrorResult(err, waitOperation)
	}
	if err := op.Result(nil); err != nil {
		return toolErrorResult(err, waitOperation)
	}
	return protoResult(fmt.Sprintf("Operation %s completed successfully", op.Name()), op.Proto())
}

func operationState(done, failed bool) string {
	switch {
	case !done:
		return "running"
	case failed:
		return "failed"
	}
	return "done"
}
