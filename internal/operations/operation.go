// Copyright 2025 Joseph Cumines

package operations

import (
	"context"
	"errors"
	"fmt"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"

	"github.com/joeycumines/lro-client/internal/dispatch"
)

var (
	// ErrNotDone is returned when a result is extracted from an operation
	// that has not completed.
	ErrNotDone = errors.New("operation not done")
	// ErrNoMetadata is returned by Metadata when the record carries none.
	ErrNoMetadata = errors.New("operation has no metadata")
)

// Operation is a handle on a long-running operation record returned by
// GetOperation. It never modifies the wrapped record: polling returns a new
// Operation. It holds no background resources.
type Operation struct {
	client *Client
	proto  *longrunningpb.Operation
	handle *dispatch.CallHandle
}

// Proto returns the exact record decoded by the transport.
func (op *Operation) Proto() *longrunningpb.Operation { return op.proto }

// CallHandle returns the handle of the call that produced the record.
func (op *Operation) CallHandle() *dispatch.CallHandle { return op.handle }

// Name is the server-assigned operation name.
func (op *Operation) Name() string { return op.proto.GetName() }

// Done reports whether the operation has completed, successfully or not.
func (op *Operation) Done() bool { return op.proto.GetDone() }

// Metadata unmarshals the operation metadata into meta.
func (op *Operation) Metadata(meta proto.Message) error {
	m := op.proto.GetMetadata()
	if m == nil {
		return ErrNoMetadata
	}
	return m.UnmarshalTo(meta)
}

// Result extracts the outcome of a completed operation. If the record
// carries an error, an *dispatch.OperationError is returned. Otherwise the
// response is unmarshalled into resp, which may be nil to only check for
// success.
func (op *Operation) Result(resp proto.Message) error {
	if !op.Done() {
		return fmt.Errorf("%s %q: %w", dispatch.GetOperation, op.Name(), ErrNotDone)
	}
	if st := op.proto.GetError(); st != nil {
		return &dispatch.OperationError{
			Method:  dispatch.GetOperation,
			Name:    op.Name(),
			Code:    codes.Code(st.GetCode()),
			Message: st.GetMessage(),
		}
	}
	if resp == nil {
		return nil
	}
	packed := op.proto.GetResponse()
	if packed == nil {
		return fmt.Errorf("%s %q: completed without a response", dispatch.GetOperation, op.Name())
	}
	if err := packed.UnmarshalTo(resp); err != nil {
		return fmt.Errorf("%s %q: unmarshal response: %w", dispatch.GetOperation, op.Name(), err)
	}
	return nil
}

// Poll fetches the latest state of the operation. A done operation is
// returned as-is without a call.
func (op *Operation) Poll(ctx context.Context, opts ...gax.CallOption) (*Operation, error) {
	if op.Done() {
		return op, nil
	}
	return op.client.GetOperation(ctx, dispatch.Message(&longrunningpb.GetOperationRequest{Name: op.Name()}), opts...)
}

// Wait polls until the operation is done or ctx ends, sleeping between polls
// according to the client's poll backoff. The most recent handle is returned
// alongside any error.
func (op *Operation) Wait(ctx context.Context, opts ...gax.CallOption) (*Operation, error) {
	bo := op.client.pollBackoff
	cur := op
	for !cur.Done() {
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return cur, fmt.Errorf("wait for operation %q: %w", cur.Name(), err)
		}
		next, err := cur.Poll(ctx, opts...)
		if err != nil {
			return cur, err
		}
		cur = next
	}
	return cur, nil
}

// Cancel requests cancellation. The server makes a best effort; poll to
// observe the outcome.
func (op *Operation) Cancel(ctx context.Context, opts ...gax.CallOption) error {
	_, err := op.client.CancelOperation(ctx, dispatch.Message(&longrunningpb.CancelOperationRequest{Name: op.Name()}), opts...)
	return err
}

// Delete tells the server the caller is no longer interested in the result.
func (op *Operation) Delete(ctx context.Context, opts ...gax.CallOption) error {
	_, err := op.client.DeleteOperation(ctx, dispatch.Message(&longrunningpb.DeleteOperationRequest{Name: op.Name()}), opts...)
	return err
}
