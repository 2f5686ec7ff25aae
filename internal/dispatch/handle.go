// Copyright 2025 Joseph Cumines

package dispatch

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// CallHandle is the transport-level record of one dispatched call. It is
// populated by the Dispatcher and must be treated as read-only by callers.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type CallHandle struct {
	method    string
	requestID string
	header    metadata.MD
	trailer   metadata.MD
	peer      peer.Peer
	status    *status.Status
	attempts  int
	duration  time.Duration
}

// Method is the snake_case name of the dispatched method.
func (h *CallHandle) Method() string { return h.method }

// RequestID is the id sent in the request id header of every attempt.
func (h *CallHandle) RequestID() string { return h.requestID }

// Header is the response header metadata of the final attempt.
func (h *CallHandle) Header() metadata.MD { return h.header }

// Trailer is the trailing metadata of the final attempt.
func (h *CallHandle) Trailer() metadata.MD { return h.trailer }

// Peer is the server the final attempt was sent to, if known.
func (h *CallHandle) Peer() *peer.Peer {
	if h.peer.Addr == nil {
		return nil
	}
	return &h.peer
}

// Status is the final status of the call; OK for successful calls.
func (h *CallHandle) Status() *status.Status { return h.status }

// Attempts is the number of transport invocations made, greater than one
// only if the call options carried a retry policy.
func (h *CallHandle) Attempts() int { return h.attempts }

// Duration is the wall time spent dispatching, retries included.
func (h *CallHandle) Duration() time.Duration { return h.duration }

// callOptions returns the grpc call options that capture per-attempt
// transport metadata into h.
func (h *CallHandle) callOptions() []grpc.CallOption {
	h.header = nil
	h.trailer = nil
	h.peer = peer.Peer{}
	return []grpc.CallOption{
		grpc.Header(&h.header),
		grpc.Trailer(&h.trailer),
		grpc.Peer(&h.peer),
	}
}
