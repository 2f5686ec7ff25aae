// Copyright 2025 Joseph Cumines

// Package transport carries JSON-RPC 2.0 messages for the MCP server, and
// provides the server's metrics and rate limiting.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

// JSON-RPC 2.0 error codes.
// See: https://www.jsonrpc.org/specification#error_object
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Version is the value of the jsonrpc member of every message.
const Version = "2.0"

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// Transport moves JSON-RPC 2.0 messages. Implementations must be safe for
// concurrent use.
//
// ReadMessage returns io.EOF once the peer closes the stream.
type Transport interface {
	ReadMessage() (*Message, error)
	WriteMessage(msg *Message) error
	Close() error
	IsClosed() bool
}

// Message is a JSON-RPC 2.0 request, notification or response.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Message struct {
	Error   *ErrorObj       `json:"error,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// ErrorObj is a JSON-RPC 2.0 error object.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type ErrorObj struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    int             `json:"code"`
}

// IsNotification reports whether msg is a request without an id, which
// must not be answered.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// NewResult builds a success response to the request with id.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, ID: id, Result: data}, nil
}

// NewError builds an error response to the request with id. A missing id is
// sent as null.
func NewError(id json.RawMessage, code int, message string) *Message {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &ErrorObj{Code: code, Message: message},
	}
}

var _ Transport = (*StdioTransport)(nil)

// Handler answers one inbound message. A nil response sends nothing.
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Serve reads messages from tr and handles them sequentially until the input
// ends, tr is closed or ctx is done. Handler errors are sent as internal
// errors; unparseable lines are answered with a parse error. A nil logger
// disables logging.
func Serve(ctx context.Context, tr Transport, handler Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	write := func(msg *Message) {
		if err := tr.WriteMessage(msg); err != nil {
			logger.Error("failed to write message", zap.Error(err))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := tr.ReadMessage()
		if err != nil {
			var perr *ParseError
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, ErrClosed):
				logger.Info("input closed, exiting")
				return nil
			case errors.As(err, &perr):
				logger.Warn("unparseable message", zap.Error(perr.Err))
				write(NewError(nil, ErrCodeParseError, "Parse error"))
				continue
			}
			return err
		}

		response, err := handler(ctx, msg)
		if err != nil {
			logger.Error("failed to handle message", zap.String("method", msg.Method), zap.Error(err))
			if msg.IsNotification() {
				continue
			}
			response = NewError(msg.ID, ErrCodeInternalError, err.Error())
		}
		if response != nil {
			write(response)
		}
	}
}
