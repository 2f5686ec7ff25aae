// Copyright 2025 Joseph Cumines
//
// Method schema table for the google.longrunning.Operations service

package dispatch

import (
	"cmp"
	"fmt"
	"slices"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	"google.golang.org/genproto/googleapis/api/annotations"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Method names used across the client, logs, metrics and tool names.
const (
	ListOperations  = "list_operations"
	GetOperation    = "get_operation"
	DeleteOperation = "delete_operation"
	CancelOperation = "cancel_operation"
)

// Method describes one RPC of the operations service: how to address it on
// the wire, which request fields a field mapping may set, and how to
// allocate its request and response messages.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Method struct {
	// Name is the snake_case method name, e.g. "get_operation".
	Name string
	// FullName is the gRPC method path, e.g.
	// "/google.longrunning.Operations/GetOperation".
	FullName string
	// Fields lists the request fields settable from a field mapping.
	Fields []protoreflect.Name

	desc     protoreflect.MethodDescriptor
	request  protoreflect.MessageType
	response protoreflect.MessageType
}

// NewRequest allocates an empty request message.
func (m *Method) NewRequest() proto.Message { return m.request.New().Interface() }

// NewResponse allocates an empty response message.
func (m *Method) NewResponse() proto.Message { return m.response.New().Interface() }

// RequestName is the full protobuf name of the request message.
func (m *Method) RequestName() protoreflect.FullName { return m.request.Descriptor().FullName() }

// HTTPRule returns the google.api.http binding declared on the method, or
// nil if there is none.
func (m *Method) HTTPRule() *annotations.HttpRule {
	rule, _ := proto.GetExtension(m.desc.Options(), annotations.E_Http).(*annotations.HttpRule)
	return rule
}

// HTTPBinding renders the HTTP rule as "VERB pattern", or "" if the method
// has no binding.
func (m *Method) HTTPBinding() string {
	rule := m.HTTPRule()
	if rule == nil {
		return ""
	}
	switch p := rule.GetPattern().(type) {
	case *annotations.HttpRule_Get:
		return "GET " + p.Get
	case *annotations.HttpRule_Post:
		return "POST " + p.Post
	case *annotations.HttpRule_Delete:
		return "DELETE " + p.Delete
	case *annotations.HttpRule_Put:
		return "PUT " + p.Put
	case *annotations.HttpRule_Patch:
		return "PATCH " + p.Patch
	case *annotations.HttpRule_Custom:
		return p.Custom.GetKind() + " " + p.Custom.GetPath()
	}
	return ""
}

func (m *Method) hasField(name protoreflect.Name) bool {
	return slices.Contains(m.Fields, name)
}

var methods = mustBuildMethods(map[string]struct {
	rpc    protoreflect.Name
	fields []protoreflect.Name
}{
	ListOperations:  {rpc: "ListOperations", fields: []protoreflect.Name{"name", "filter", "page_size", "page_token"}},
	GetOperation:    {rpc: "GetOperation", fields: []protoreflect.Name{"name"}},
	DeleteOperation: {rpc: "DeleteOperation", fields: []protoreflect.Name{"name"}},
	CancelOperation: {rpc: "CancelOperation", fields: []protoreflect.Name{"name"}},
})

// Lookup returns the schema for a snake_case method name.
func Lookup(name string) (*Method, bool) {
	m, ok := methods[name]
	return m, ok
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) *Method {
	m, ok := methods[name]
	if !ok {
		panic(fmt.Sprintf("dispatch: unknown method %q", name))
	}
	return m
}

// Methods returns every method in the table, sorted by name.
func Methods() []*Method {
	out := make([]*Method, 0, len(methods))
	for _, m := range methods {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Method) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func mustBuildMethods(table map[string]struct {
	rpc    protoreflect.Name
	fields []protoreflect.Name
}) map[string]*Method {
	svc := longrunningpb.File_google_longrunning_operations_proto.Services().ByName("Operations")
	if svc == nil {
		panic("dispatch: google.longrunning.Operations not registered")
	}

	out := make(map[string]*Method, len(table))
	for name, s := range table {
		md := svc.Methods().ByName(s.rpc)
		if md == nil {
			panic(fmt.Sprintf("dispatch: %s has no method %s", svc.FullName(), s.rpc))
		}
		reqType, err := protoregistry.GlobalTypes.FindMessageByName(md.Input().FullName())
		if err != nil {
			panic(fmt.Sprintf("dispatch: request type for %s: %v", md.FullName(), err))
		}
		respType, err := protoregistry.GlobalTypes.FindMessageByName(md.Output().FullName())
		if err != nil {
			panic(fmt.Sprintf("dispatch: response type for %s: %v", md.FullName(), err))
		}
		for _, f := range s.fields {
			if md.Input().Fields().ByName(f) == nil {
				panic(fmt.Sprintf("dispatch: %s has no field %s", md.Input().FullName(), f))
			}
		}
		out[name] = &Method{
			Name:     name,
			FullName: fmt.Sprintf("/%s/%s", svc.FullName(), md.Name()),
			Fields:   s.fields,
			desc:     md,
			request:  reqType,
			response: respType,
		}
	}
	return out
}
