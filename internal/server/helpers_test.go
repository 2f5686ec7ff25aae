// Copyright 2025 Joseph Cumines

package server

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joeycumines/lro-client/internal/dispatch"
	"github.com/joeycumines/lro-client/internal/transport"
)

func TestErrorAndTextResults(t *testing.T) {
	r := errorResultf("error %d", 42)
	assert.True(t, r.IsError)
	assert.Equal(t, "error 42", r.Content[0].Text)

	r = textResultf("count: %d", 99)
	assert.False(t, r.IsError)
	assert.Equal(t, Content{Type: "text", Text: "count: 99"}, r.Content[0])
}

func TestFormatGRPCError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		suggest bool
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: "Error in get_operation: boom"},
		{name: "not found", err: status.Error(codes.NotFound, "gone"), want: "Error in get_operation: NotFound - gone", suggest: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: "Error in get_operation: Unavailable - down", suggest: true},
		{name: "aborted", err: status.Error(codes.Aborted, "race"), want: "Error in get_operation: Aborted - race"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatGRPCError(tt.err, "get_operation")
			assert.True(t, strings.HasPrefix(got, tt.want), "got %q, want prefix %q", got, tt.want)
			if tt.suggest {
				assert.Contains(t, got, "Suggestion:")
			} else {
				assert.NotContains(t, got, "Suggestion:")
			}
		})
	}
}

func TestToolErrorResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "unknown field", err: &dispatch.UnknownFieldError{Method: "get_operation", Field: "x"}, contains: "Invalid parameters"},
		{name: "shape", err: &dispatch.RequestShapeError{Method: "get_operation", Reason: "bad"}, contains: "Invalid parameters"},
		{name: "transport", err: &dispatch.TransportError{Method: "get_operation", Code: codes.NotFound, Message: "gone", Err: status.Error(codes.NotFound, "gone")}, contains: "NotFound - gone"},
		{name: "operation", err: &dispatch.OperationError{Method: "get_operation", Name: "operations/1", Code: codes.Canceled}, contains: "Operation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := toolErrorResult(tt.err, "get_operation")
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, result.Content[0].Text, tt.contains)
		})
	}

	other := errors.New("unexpected")
	_, err := toolErrorResult(other, "get_operation")
	assert.Same(t, other, err, "unclassified errors are returned as-is")
}

func TestValidateToolInput(t *testing.T) {
	tool := &Tool{InputSchema: InputSchema{
		Type: "object",
		Properties: map[string]Property{
			"name":      {Type: "string"},
			"page_size": {Type: "integer"},
			"timeout":   {Type: "number"},
		},
		Required: []string{"name"},
	}}
	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{name: "valid", args: map[string]any{"name": "x", "page_size": 10.0, "timeout": 1.5}},
		{name: "extra allowed", args: map[string]any{"name": "x", "extra": true}},
		{name: "null ignored", args: map[string]any{"name": "x", "page_size": nil}},
		{name: "missing required", args: map[string]any{}, wantErr: true},
		{name: "wrong string type", args: map[string]any{"name": 1.0}, wantErr: true},
		{name: "fractional integer", args: map[string]any{"name": "x", "page_size": 2.5}, wantErr: true},
		{name: "wrong number type", args: map[string]any{"name": "x", "timeout": "1s"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errObj := validateToolInput(tool, tt.args)
			if !tt.wantErr {
				assert.Nil(t, errObj)
				return
			}
			require.NotNil(t, errObj)
			assert.Equal(t, transport.ErrCodeInvalidParams, errObj.Code)
		})
	}
}
