// Copyright 2025 Joseph Cumines
//
// Result formatting and argument validation for tool handlers

package server

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/joeycumines/lro-client/internal/dispatch"
	"github.com/joeycumines/lro-client/internal/transport"
)

var resultMarshal = protojson.MarshalOptions{Multiline: true, Indent: "  "}

func errorResult(msg string) *ToolResult {
	return &ToolResult{
		IsError: true,
		Content: []Content{{Type: "text", Text: msg}},
	}
}

func errorResultf(format string, args ...any) *ToolResult {
	return errorResult(fmt.Sprintf(format, args...))
}

func textResult(text string) *ToolResult {
	return &ToolResult{
		Content: []Content{{Type: "text", Text: text}},
	}
}

func textResultf(format string, args ...any) *ToolResult {
	return textResult(fmt.Sprintf(format, args...))
}

// protoResult renders m as indented protojson, prefixed by summary.
func protoResult(summary string, m proto.Message) (*ToolResult, error) {
	data, err := resultMarshal.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", m, err)
	}
	return &ToolResult{Content: []Content{
		{Type: "text", Text: summary},
		{Type: "text", Text: string(data)},
	}}, nil
}

// formatGRPCError formats a gRPC error for tool output, with a suggestion
// for common status codes.
func formatGRPCError(err error, toolName string) string {
	if err == nil {
		return ""
	}

	st, ok := grpcstatus.FromError(err)
	if !ok {
		return fmt.Sprintf("Error in %s: %s", toolName, err.Error())
	}

	var suggestion string
	switch st.Code() {
	case codes.NotFound:
		suggestion = "Verify the operation name (e.g., operations/{id}); it may have been deleted"
	case codes.InvalidArgument:
		suggestion = "Check the filter and page_token values"
	case codes.Unavailable:
		suggestion = "The gRPC server may be down or unreachable. Check LRO_SERVER_ADDR"
	case codes.DeadlineExceeded:
		suggestion = "The call timed out. Try increasing LRO_REQUEST_TIMEOUT"
	case codes.Unauthenticated, codes.PermissionDenied:
		suggestion = "Check LRO_TOKEN and that TLS is enabled"
	case codes.Unimplemented:
		suggestion = "The server does not implement this method of google.longrunning.Operations"
	case codes.ResourceExhausted:
		suggestion = "Quota exhausted. Try again later"
	}

	result := fmt.Sprintf("Error in %s: %s - %s", toolName, st.Code(), st.Message())
	if suggestion != "" {
		result += "\nSuggestion: " + suggestion
	}
	return result
}

// toolErrorResult converts a client error into a tool error result. Errors
// that are not part of the client's taxonomy are returned for the caller to
// report as internal errors.
func toolErrorResult(err error, toolName string) (*ToolResult, error) {
	switch {
	case errors.Is(err, dispatch.ErrUnknownField), errors.Is(err, dispatch.ErrInvalidRequestShape):
		return errorResultf("Invalid parameters: %v", err), nil
	case errors.Is(err, dispatch.ErrTransport):
		return errorResult(formatGRPCError(err, toolName)), nil
	case errors.Is(err, dispatch.ErrOperation):
		return errorResultf("Operation failed: %v", err), nil
	}
	return nil, err
}

// validateToolInput checks args against the required fields and property
// types of the tool's input schema. Extra properties are left to the
// handler.
func validateToolInput(tool *Tool, args map[string]any) *transport.ErrorObj {
	for _, field := range tool.InputSchema.Required {
		if _, ok := args[field]; !ok {
			return invalidParams("missing required field: %s", field)
		}
	}
	for name, value := range args {
		prop, ok := tool.InputSchema.Properties[name]
		if !ok || value == nil {
			continue
		}
		if err := validateType(name, value, prop.Type); err != nil {
			return invalidParams("%v", err)
		}
	}
	return nil
}

func invalidParams(format string, args ...any) *transport.ErrorObj {
	return &transport.ErrorObj{
		Code:    transport.ErrCodeInvalidParams,
		Message: fmt.Sprintf(format, args...),
	}
}

// validateType validates a decoded JSON value against a JSON Schema type.
func validateType(fieldName string, value any, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q must be a string, got %T", fieldName, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field %q must be a number, got %T", fieldName, value)
		}
	case "integer":
		if !isInteger(value) {
			return fmt.Errorf("field %q must be an integer, got %v", fieldName, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean, got %T", fieldName, value)
		}
	}
	return nil
}

// isInteger reports whether value is a whole number. Decoding JSON into
// interface values yields float64 for all numbers.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	}
	return false
}
