// Copyright 2025 Joseph Cumines
//
// Package dispatch is the request-normalization and call-dispatch core shared
// by every operations client method.
//
// A call flows through three steps:
//   - Coerce resolves caller input (a request message or a field mapping) and
//     call options into one canonical request
//   - Dispatcher.Dispatch issues exactly one RPC through a Transport and
//     returns the decoded response plus a CallHandle
//   - the operations package adapts the raw response for the caller
//
// Retries happen only when the call options embed a gax retry policy.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// RequestIDHeader carries a per-call id, shared by every retry attempt of a
// call, so that server logs can correlate attempts.
const RequestIDHeader = "x-goog-request-id"

// Transport is the RPC channel the Dispatcher invokes. *grpc.ClientConn
// satisfies it.
type Transport interface {
	Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error
}

// Recorder observes completed calls, e.g. for metrics.
type Recorder interface {
	RecordCall(method string, code codes.Code, duration time.Duration)
}

// Dispatcher issues RPCs for canonical requests. It is immutable after
// construction and safe for concurrent use.
type Dispatcher struct {
	transport Transport
	logger    *zap.Logger
	recorder  Recorder
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for per-call debug logs.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRecorder sets a Recorder notified once per call.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher returns a Dispatcher over transport.
func NewDispatcher(transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch invokes method with req, returning the decoded response and the
// handle of the call. On failure the error is a *TransportError.
func (d *Dispatcher) Dispatch(ctx context.Context, method *Method, req proto.Message, opts []gax.CallOption) (proto.Message, *CallHandle, error) {
	handle := &CallHandle{
		method:    method.Name,
		requestID: uuid.NewString(),
	}
	resp := method.NewResponse()

	ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, handle.requestID)
	start := time.Now()

	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		handle.attempts++
		proto.Reset(resp)
		callOpts := append(settings.GRPC[:len(settings.GRPC):len(settings.GRPC)], handle.callOptions()...)
		return d.transport.Invoke(ctx, method.FullName, req, resp, callOpts...)
	}, opts...)

	handle.duration = time.Since(start)

	if err != nil {
		terr := newTransportError(method.Name, err)
		handle.status = status.New(terr.Code, terr.Message)
		d.observe(handle)
		d.logger.Warn("call failed",
			zap.String("method", method.Name),
			zap.String("request_id", handle.requestID),
			zap.Stringer("code", terr.Code),
			zap.String("message", terr.Message),
			zap.Int("attempts", handle.attempts),
			zap.Duration("duration", handle.duration),
		)
		return nil, handle, terr
	}

	handle.status = status.New(codes.OK, "")
	d.observe(handle)
	d.logger.Debug("call completed",
		zap.String("method", method.Name),
		zap.String("request_id", handle.requestID),
		zap.Int("attempts", handle.attempts),
		zap.Duration("duration", handle.duration),
	)
	return resp, handle, nil
}

// DispatchFunc is Dispatch with callback delivery: onComplete is invoked
// exactly once, before returning, if and only if the call succeeds. The
// same response and handle are also returned.
func (d *Dispatcher) DispatchFunc(ctx context.Context, method *Method, req proto.Message, opts []gax.CallOption, onComplete func(proto.Message, *CallHandle)) (proto.Message, *CallHandle, error) {
	resp, handle, err := d.Dispatch(ctx, method, req, opts)
	if err != nil {
		return nil, handle, err
	}
	if onComplete != nil {
		onComplete(resp, handle)
	}
	return resp, handle, nil
}

func (d *Dispatcher) observe(h *CallHandle) {
	if d.recorder != nil {
		d.recorder.RecordCall(h.method, h.status.Code(), h.duration)
	}
}
