// Copyright 2025 Joseph Cumines
//
// Package opstest provides test doubles for the operations client: a
// recording Transport, an in-memory google.longrunning.Operations server, and
// a bufconn harness connecting the two worlds.
package opstest

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// Call is one recorded transport invocation.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Call struct {
	Method   string
	Request  proto.Message
	Reply    proto.Message
	Metadata metadata.MD
	Options  []grpc.CallOption
}

// RecordingTransport is a dispatch.Transport that records every call and
// answers from canned responses keyed by full method name.
//
// The reply message passed by the caller is filled in place, so the recorded
// Reply is the exact value the caller receives.
type RecordingTransport struct {
	// Responses maps full method name to the message merged into the reply.
	Responses map[string]proto.Message
	// Errors maps full method name to the error returned instead.
	Errors map[string]error
	// Header and Trailer are delivered through grpc.Header/grpc.Trailer
	// call options.
	Header  metadata.MD
	Trailer metadata.MD
	// OnInvoke, if set, runs before the response is produced; a non-nil
	// return overrides the canned outcome.
	OnInvoke func(ctx context.Context, call *Call) error

	calls []*Call
	mu    sync.Mutex
}

// Invoke implements dispatch.Transport.
func (t *RecordingTransport) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	md, _ := metadata.FromOutgoingContext(ctx)
	call := &Call{
		Method:   method,
		Request:  args.(proto.Message),
		Reply:    reply.(proto.Message),
		Metadata: md,
		Options:  opts,
	}

	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()

	// captured before OnInvoke so metadata also flows on failure
	for _, opt := range opts {
		switch o := opt.(type) {
		case grpc.HeaderCallOption:
			*o.HeaderAddr = t.Header.Copy()
		case grpc.TrailerCallOption:
			*o.TrailerAddr = t.Trailer.Copy()
		}
	}

	if t.OnInvoke != nil {
		if err := t.OnInvoke(ctx, call); err != nil {
			return err
		}
	}
	if err := t.Errors[method]; err != nil {
		return err
	}
	if resp := t.Responses[method]; resp != nil {
		proto.Merge(call.Reply, resp)
	}
	return nil
}

// Calls returns the recorded calls in order.
func (t *RecordingTransport) Calls() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (t *RecordingTransport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
