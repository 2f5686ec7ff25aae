// Copyright 2025 Joseph Cumines
//
// Request coercion: caller input shapes to canonical request messages

package dispatch

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Input is the caller-facing request value. It is one of:
//   - Message(m): a structured request message of the method's request type
//   - Fields{...}: a mapping from request field name to value
//
// Options are supplied separately, as the trailing variadic arguments of
// every client method, so both shapes pair with options the same way.
type Input interface {
	input()
}

// Fields is a field mapping keyed by protobuf field name (e.g. "page_size").
type Fields map[string]any

func (Fields) input() {}

type message struct {
	m proto.Message
}

func (message) input() {}

// Message wraps a structured request message as an Input.
func Message(m proto.Message) Input {
	return message{m: m}
}

// Coerce resolves in into the canonical request message for method, and
// prepends defaults to opts. It has no side effects; a structured request is
// returned as-is.
func Coerce(method *Method, in Input, defaults []gax.CallOption, opts []gax.CallOption) (proto.Message, []gax.CallOption, error) {
	var (
		req proto.Message
		err error
	)

	switch v := in.(type) {
	case message:
		req, err = coerceMessage(method, v.m)
	case Fields:
		req, err = coerceFields(method, v)
	case nil:
		err = &RequestShapeError{Method: method.Name, Reason: "no request given"}
	default:
		err = &RequestShapeError{Method: method.Name, Reason: fmt.Sprintf("unsupported input %T", in)}
	}
	if err != nil {
		return nil, nil, err
	}

	return req, resolveOptions(defaults, opts), nil
}

// resolveOptions returns defaults followed by opts, without aliasing either
// slice; later options take precedence when gax resolves them.
func resolveOptions(defaults, opts []gax.CallOption) []gax.CallOption {
	out := make([]gax.CallOption, 0, len(defaults)+len(opts))
	out = append(out, defaults...)
	return append(out, opts...)
}

func coerceMessage(method *Method, m proto.Message) (proto.Message, error) {
	if m == nil {
		return nil, &RequestShapeError{Method: method.Name, Reason: "nil request message"}
	}
	pm := m.ProtoReflect()
	if !pm.IsValid() {
		return nil, &RequestShapeError{Method: method.Name, Reason: fmt.Sprintf("nil %T", m)}
	}
	if got := pm.Descriptor().FullName(); got != method.RequestName() {
		return nil, &RequestShapeError{
			Method: method.Name,
			Reason: fmt.Sprintf("request is %s, want %s", got, method.RequestName()),
		}
	}
	return m, nil
}

func coerceFields(method *Method, fields Fields) (proto.Message, error) {
	if fields == nil {
		return nil, &RequestShapeError{Method: method.Name, Reason: "nil field mapping"}
	}

	// sorted so that the reported error is deterministic
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	req := method.NewRequest()
	pm := req.ProtoReflect()
	desc := pm.Descriptor().Fields()

	for _, key := range keys {
		name := protoreflect.Name(key)
		if !method.hasField(name) {
			return nil, &UnknownFieldError{Method: method.Name, Field: key}
		}
		fd := desc.ByName(name)
		value := fields[key]
		if value == nil {
			continue
		}
		v, err := fieldValue(fd, value)
		if err != nil {
			return nil, &RequestShapeError{Method: method.Name, Field: key, Reason: err.Error()}
		}
		pm.Set(fd, v)
	}

	return req, nil
}

// fieldValue converts a loosely-typed mapping value to the kind of fd. Only
// the scalar kinds that appear in the operations request schemas are
// supported.
func fieldValue(fd protoreflect.FieldDescriptor, value any) (protoreflect.Value, error) {
	if fd.IsList() || fd.IsMap() {
		return protoreflect.Value{}, fmt.Errorf("repeated fields are not supported")
	}
	switch fd.Kind() {
	case protoreflect.StringKind:
		s, ok := value.(string)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("must be a string, got %T", value)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BoolKind:
		b, ok := value.(bool)
		if !ok {
			return protoreflect.Value{}, fmt.Errorf("must be a boolean, got %T", value)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := toInt64(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return protoreflect.Value{}, fmt.Errorf("%d overflows int32", n)
		}
		return protoreflect.ValueOfInt32(int32(n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := toInt64(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(n), nil
	}
	return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s", strings.ToLower(fd.Kind().String()))
}

// toInt64 accepts any Go integer, or a whole float as produced when JSON is
// decoded into interface values.
func toInt64(value any) (int64, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("must be an integer, got %v", f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%v overflows int64", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("must be an integer, got %T", value)
}
