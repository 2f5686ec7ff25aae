// Copyright 2025 Joseph Cumines
//
// Package operations is a client facade over the google.longrunning.Operations
// service.
//
// Every method accepts either a structured request, dispatch.Message(req), or
// a field mapping, dispatch.Fields{...}, followed by optional gax call
// options. Results are returned directly, and the ...Func variants also
// deliver them, together with the low-level dispatch.CallHandle, to a
// callback that runs exactly once, before returning, only on success.
package operations

import (
	"context"
	"errors"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/joeycumines/lro-client/internal/config"
	"github.com/joeycumines/lro-client/internal/dispatch"
)

var (
	listMethod   = dispatch.MustLookup(dispatch.ListOperations)
	getMethod    = dispatch.MustLookup(dispatch.GetOperation)
	deleteMethod = dispatch.MustLookup(dispatch.DeleteOperation)
	cancelMethod = dispatch.MustLookup(dispatch.CancelOperation)
)

// CallOptions contains the default call options for each method. They are
// applied before, and so are overridden by, per-call options.
type CallOptions struct {
	ListOperations  []gax.CallOption
	GetOperation    []gax.CallOption
	DeleteOperation []gax.CallOption
	CancelOperation []gax.CallOption
}

// DefaultCallOptions derives per-method defaults from cfg: the request
// timeout, and a retry policy on the configured codes. A nil cfg yields no
// defaults.
func DefaultCallOptions(cfg *config.Config) (*CallOptions, error) {
	if cfg == nil {
		return &CallOptions{}, nil
	}

	var common []gax.CallOption
	if cfg.RequestTimeout > 0 {
		common = append(common, gax.WithTimeout(cfg.RequestTimeout))
	}

	retryCodes, err := cfg.Retry.GRPCCodes()
	if err != nil {
		return nil, err
	}
	if len(retryCodes) > 0 {
		backoff := gax.Backoff{
			Initial:    cfg.Retry.Initial,
			Max:        cfg.Retry.Max,
			Multiplier: cfg.Retry.Multiplier,
		}
		common = append(common, gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes(retryCodes, backoff)
		}))
	}

	return &CallOptions{
		ListOperations:  common,
		GetOperation:    common,
		DeleteOperation: common,
		CancelOperation: common,
	}, nil
}

// defaultPollBackoff is used by Operation.Wait unless overridden.
var defaultPollBackoff = gax.Backoff{
	Initial:    time.Second,
	Max:        30 * time.Second,
	Multiplier: 1.3,
}

// Client calls the Operations service. It is immutable after construction
// and safe for concurrent use.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Client struct {
	dispatcher  *dispatch.Dispatcher
	conn        *grpc.ClientConn
	callOptions *CallOptions
	logger      *zap.Logger
	pollBackoff gax.Backoff
}

type clientSettings struct {
	callOptions *CallOptions
	logger      *zap.Logger
	recorder    dispatch.Recorder
	pollBackoff gax.Backoff
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

// WithCallOptions replaces the per-method default call options.
func WithCallOptions(opts *CallOptions) ClientOption {
	return func(s *clientSettings) {
		if opts != nil {
			s.callOptions = opts
		}
	}
}

// WithLogger sets the logger for the client and its dispatcher.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(s *clientSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets a recorder notified of every dispatched call.
func WithRecorder(r dispatch.Recorder) ClientOption {
	return func(s *clientSettings) { s.recorder = r }
}

// WithPollBackoff sets the pause schedule between polls in Operation.Wait.
func WithPollBackoff(bo gax.Backoff) ClientOption {
	return func(s *clientSettings) { s.pollBackoff = bo }
}

// NewClient dials the server described by cfg, which is required. Options
// are applied after the defaults derived from cfg. The connection is owned
// by the client; release it with Close.
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("operations: nil config")
	}
	callOpts, err := DefaultCallOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	bo := defaultPollBackoff
	bo.Initial = cfg.PollInterval
	bo.Max = max(cfg.PollInterval, defaultPollBackoff.Max)

	defaults := []ClientOption{WithCallOptions(callOpts), WithPollBackoff(bo)}
	c := newClient(conn, append(defaults, opts...))
	c.conn = conn
	return c, nil
}

// NewClientWithTransport returns a client over an injected transport, which
// the client does not own.
func NewClientWithTransport(tr dispatch.Transport, opts ...ClientOption) *Client {
	return newClient(tr, opts)
}

func newClient(tr dispatch.Transport, opts []ClientOption) *Client {
	s := clientSettings{
		callOptions: &CallOptions{},
		logger:      zap.NewNop(),
		pollBackoff: defaultPollBackoff,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Client{
		dispatcher: dispatch.NewDispatcher(tr,
			dispatch.WithLogger(s.logger),
			dispatch.WithRecorder(s.recorder),
		),
		callOptions: s.callOptions,
		logger:      s.logger,
		pollBackoff: s.pollBackoff,
	}
}

// Close releases the connection, if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ListOperations lists operations matching the request, returning an
// iterator seeded with the first page. Later pages are fetched on demand
// using the same call options.
func (c *Client) ListOperations(ctx context.Context, in dispatch.Input, opts ...gax.CallOption) (*OperationIterator, error) {
	return c.ListOperationsFunc(ctx, in, nil, opts...)
}

// ListOperationsFunc is ListOperations with callback delivery.
func (c *Client) ListOperationsFunc(ctx context.Context, in dispatch.Input, fn func(*OperationIterator, *dispatch.CallHandle), opts ...gax.CallOption) (*OperationIterator, error) {
	return invoke(ctx, c, listMethod, in, c.callOptions.ListOperations, opts, c.adaptList, fn)
}

// GetOperation fetches the latest state of an operation.
func (c *Client) GetOperation(ctx context.Context, in dispatch.Input, opts ...gax.CallOption) (*Operation, error) {
	return c.GetOperationFunc(ctx, in, nil, opts...)
}

// GetOperationFunc is GetOperation with callback delivery.
func (c *Client) GetOperationFunc(ctx context.Context, in dispatch.Input, fn func(*Operation, *dispatch.CallHandle), opts ...gax.CallOption) (*Operation, error) {
	return invoke(ctx, c, getMethod, in, c.callOptions.GetOperation, opts, c.adaptGet, fn)
}

// DeleteOperation deletes an operation record. The server acknowledgement is
// returned as-is.
func (c *Client) DeleteOperation(ctx context.Context, in dispatch.Input, opts ...gax.CallOption) (*emptypb.Empty, error) {
	return c.DeleteOperationFunc(ctx, in, nil, opts...)
}

// DeleteOperationFunc is DeleteOperation with callback delivery.
func (c *Client) DeleteOperationFunc(ctx context.Context, in dispatch.Input, fn func(*emptypb.Empty, *dispatch.CallHandle), opts ...gax.CallOption) (*emptypb.Empty, error) {
	return invoke(ctx, c, deleteMethod, in, c.callOptions.DeleteOperation, opts, adaptEmpty, fn)
}

// CancelOperation requests cancellation of an operation. The server
// acknowledgement is returned as-is.
func (c *Client) CancelOperation(ctx context.Context, in dispatch.Input, opts ...gax.CallOption) (*emptypb.Empty, error) {
	return c.CancelOperationFunc(ctx, in, nil, opts...)
}

// CancelOperationFunc is CancelOperation with callback delivery.
func (c *Client) CancelOperationFunc(ctx context.Context, in dispatch.Input, fn func(*emptypb.Empty, *dispatch.CallHandle), opts ...gax.CallOption) (*emptypb.Empty, error) {
	return invoke(ctx, c, cancelMethod, in, c.callOptions.CancelOperation, opts, adaptEmpty, fn)
}

// WaitOperation gets the named operation and polls it until done.
func (c *Client) WaitOperation(ctx context.Context, name string, opts ...gax.CallOption) (*Operation, error) {
	if name == "" {
		return nil, &dispatch.RequestShapeError{Method: dispatch.GetOperation, Field: "name", Reason: "must not be empty"}
	}
	op, err := c.GetOperation(ctx, dispatch.Message(&longrunningpb.GetOperationRequest{Name: name}), opts...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("waiting for operation", zap.String("name", name), zap.Bool("done", op.Done()))
	return op.Wait(ctx, opts...)
}

// adapter converts a raw response into the caller-facing result.
type adapter[T any] func(ctx context.Context, req proto.Message, opts []gax.CallOption, resp proto.Message, handle *dispatch.CallHandle) T

// invoke runs one facade call: coerce, dispatch, then adapt. fn, if non-nil,
// receives the adapted result exactly once, only on success.
func invoke[T any](ctx context.Context, c *Client, method *dispatch.Method, in dispatch.Input, defaults, opts []gax.CallOption, adapt adapter[T], fn func(T, *dispatch.CallHandle)) (T, error) {
	var out T

	req, resolved, err := dispatch.Coerce(method, in, defaults, opts)
	if err != nil {
		return out, err
	}

	_, _, err = c.dispatcher.DispatchFunc(ctx, method, req, resolved, func(resp proto.Message, handle *dispatch.CallHandle) {
		out = adapt(ctx, req, resolved, resp, handle)
		if fn != nil {
			fn(out, handle)
		}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Client) adaptList(ctx context.Context, req proto.Message, opts []gax.CallOption, resp proto.Message, handle *dispatch.CallHandle) *OperationIterator {
	return newOperationIterator(ctx, c, req.(*longrunningpb.ListOperationsRequest), opts, resp.(*longrunningpb.ListOperationsResponse), handle)
}

func (c *Client) adaptGet(_ context.Context, _ proto.Message, _ []gax.CallOption, resp proto.Message, handle *dispatch.CallHandle) *Operation {
	return &Operation{client: c, proto: resp.(*longrunningpb.Operation), handle: handle}
}

func adaptEmpty(_ context.Context, _ proto.Message, _ []gax.CallOption, resp proto.Message, _ *dispatch.CallHandle) *emptypb.Empty {
	return resp.(*emptypb.Empty)
}
