// Copyright 2025 Joseph Cumines

package opstest

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// Server is an in-memory google.longrunning.Operations server. Operations
// are listed in insertion order.
type Server struct {
	longrunningpb.UnimplementedOperationsServer

	ops     map[string]*longrunningpb.Operation
	pending map[string]*pendingResult
	order   []string
	mu      sync.Mutex
}

type pendingResult struct {
	response proto.Message
	polls    int
}

// NewServer returns an empty Server.
func NewServer() *Server {
	return &Server{
		ops:     make(map[string]*longrunningpb.Operation),
		pending: make(map[string]*pendingResult),
	}
}

// Put stores a copy of op, replacing any operation with the same name.
func (s *Server) Put(op *longrunningpb.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.GetName()]; !ok {
		s.order = append(s.order, op.GetName())
	}
	s.ops[op.GetName()] = proto.Clone(op).(*longrunningpb.Operation)
}

// Operation returns a copy of the stored operation.
func (s *Server) Operation(name string) (*longrunningpb.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[name]
	if !ok {
		return nil, false
	}
	return proto.Clone(op).(*longrunningpb.Operation), true
}

// CompleteAfter arranges for the named operation to complete with response
// once it has been fetched polls more times via GetOperation.
func (s *Server) CompleteAfter(name string, polls int, response proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = &pendingResult{response: response, polls: polls}
}

// ListOperations implements longrunningpb.OperationsServer. The filter
// accepts "", "done=true" and "done=false".
func (s *Server) ListOperations(_ context.Context, req *longrunningpb.ListOperationsRequest) (*longrunningpb.ListOperationsResponse, error) {
	match, err := parseFilter(req.GetFilter())
	if err != nil {
		return nil, err
	}
	offset, err := decodePageToken(req.GetPageToken())
	if err != nil {
		return nil, err
	}
	size := int(req.GetPageSize())
	switch {
	case size < 0:
		return nil, status.Error(codes.InvalidArgument, "page_size must not be negative")
	case size == 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*longrunningpb.Operation
	for _, name := range s.order {
		op := s.ops[name]
		if req.GetName() != "" && !strings.HasPrefix(name, req.GetName()+"/") {
			continue
		}
		if match(op) {
			matched = append(matched, op)
		}
	}
	if offset > len(matched) {
		return nil, status.Error(codes.InvalidArgument, "page_token is out of range")
	}

	end := min(offset+size, len(matched))
	resp := &longrunningpb.ListOperationsResponse{}
	for _, op := range matched[offset:end] {
		resp.Operations = append(resp.Operations, proto.Clone(op).(*longrunningpb.Operation))
	}
	if end < len(matched) {
		resp.NextPageToken = encodePageToken(end)
	}
	return resp, nil
}

// GetOperation implements longrunningpb.OperationsServer.
func (s *Server) GetOperation(_ context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	if p, ok := s.pending[req.GetName()]; ok && !op.GetDone() {
		if p.polls <= 0 {
			packed, err := anypb.New(p.response)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "pack response: %v", err)
			}
			op.Done = true
			op.Result = &longrunningpb.Operation_Response{Response: packed}
			delete(s.pending, req.GetName())
		} else {
			p.polls--
		}
	}
	return proto.Clone(op).(*longrunningpb.Operation), nil
}

// DeleteOperation implements longrunningpb.OperationsServer.
func (s *Server) DeleteOperation(_ context.Context, req *longrunningpb.DeleteOperationRequest) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[req.GetName()]; !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	delete(s.ops, req.GetName())
	delete(s.pending, req.GetName())
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == req.GetName() })
	return &emptypb.Empty{}, nil
}

// CancelOperation implements longrunningpb.OperationsServer. Cancelling a
// running operation completes it with a CANCELLED error; cancelling a done
// operation is a no-op.
func (s *Server) CancelOperation(_ context.Context, req *longrunningpb.CancelOperationRequest) (*emptypb.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	if !op.GetDone() {
		op.Done = true
		op.Result = &longrunningpb.Operation_Error{Error: &spb.Status{
			Code:    int32(codes.Canceled),
			Message: "operation cancelled",
		}}
		delete(s.pending, req.GetName())
	}
	return &emptypb.Empty{}, nil
}

func parseFilter(filter string) (func(*longrunningpb.Operation) bool, error) {
	switch strings.ReplaceAll(filter, " ", "") {
	case "":
		return func(*longrunningpb.Operation) bool { return true }, nil
	case "done=true":
		return func(op *longrunningpb.Operation) bool { return op.GetDone() }, nil
	case "done=false":
		return func(op *longrunningpb.Operation) bool { return !op.GetDone() }, nil
	}
	return nil, status.Errorf(codes.InvalidArgument, "unsupported filter %q", filter)
}

// page tokens are opaque to clients
func encodePageToken(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("offset:" + strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, "malformed page_token")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(raw), "offset:"))
	if err != nil || n < 0 || !strings.HasPrefix(string(raw), "offset:") {
		return 0, status.Error(codes.InvalidArgument, "malformed page_token")
	}
	return n, nil
}

// Serve starts srv on an in-process bufconn listener and returns a client
// connection to it. Both are closed when the test ends.
func Serve(t testing.TB, srv longrunningpb.OperationsServer, opts ...grpc.ServerOption) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer(opts...)
	longrunningpb.RegisterOperationsServer(gs, srv)

	go func() {
		if err := gs.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			t.Logf("opstest: server exited with error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("opstest: dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})
	return conn
}

// OperationName formats a conventional operation resource name.
func OperationName(id int) string {
	return fmt.Sprintf("operations/op-%d", id)
}
