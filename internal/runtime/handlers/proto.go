package handlers

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
)

// ProtoContext provides strongly typed access to the incoming payload.
type ProtoContext[T proto.Message] struct {
	MessageContextBase
	Payload T
}

// ProtoResponse describes the envelope a synchronous proto handler returns.
// A nil Message yields a null payload.
type ProtoResponse struct {
	Name       string
	Message    proto.Message
	Properties envelope.Properties
}

type ProtoSyncHandler[T proto.Message] func(ctx context.Context, in ProtoContext[T]) (ProtoResponse, error)

type ProtoAsyncHandler[T proto.Message] func(ctx context.Context, in ProtoContext[T]) error

// ProtoSync builds a synchronous registration whose payload is decoded into a
// fresh clone of prototype with protojson. A typed nil prototype is accepted.
func ProtoSync[T proto.Message](name string, prototype T, handler ProtoSyncHandler[T], opts ...Option) (Registration, error) {
	if handler == nil {
		return Registration{}, errors.ErrHandlerRequired
	}
	prototype, err := EnsureProtoPrototype(prototype)
	if err != nil {
		return Registration{}, err
	}
	cfg := applyOptions(opts)

	invoke := func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		in, err := decodeProto(env, prototype, cfg)
		if err != nil {
			return nil, err
		}
		out, err := handler(ctx, in)
		if err != nil {
			return nil, err
		}
		return buildProtoResponse(in.MessageContextBase, out, cfg)
	}
	return Registration{Name: name, Mode: Synchronous, Invoker: invoke, Component: cfg.component}, nil
}

// ProtoAsync builds an asynchronous registration for protobuf payloads.
func ProtoAsync[T proto.Message](name string, prototype T, handler ProtoAsyncHandler[T], opts ...Option) (Registration, error) {
	if handler == nil {
		return Registration{}, errors.ErrHandlerRequired
	}
	prototype, err := EnsureProtoPrototype(prototype)
	if err != nil {
		return Registration{}, err
	}
	cfg := applyOptions(opts)

	invoke := func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		in, err := decodeProto(env, prototype, cfg)
		if err != nil {
			return nil, err
		}
		return nil, handler(ctx, in)
	}
	return Registration{Name: name, Mode: Asynchronous, Invoker: invoke, Component: cfg.component}, nil
}

func decodeProto[T proto.Message](env *envelope.Envelope, prototype T, cfg handlerOptions) (ProtoContext[T], error) {
	if env == nil {
		return ProtoContext[T]{}, errors.ErrEnvelopeRequired
	}
	typed, err := clonePrototype(prototype)
	if err != nil {
		return ProtoContext[T]{}, err
	}
	if !env.Payload().IsNull() {
		if err := env.Payload().DecodeProto(typed); err != nil {
			return ProtoContext[T]{}, fmt.Errorf("failed to unmarshal %T payload: %w", prototype, err)
		}
	}
	if cfg.validate != nil {
		if err := cfg.validate(typed); err != nil {
			return ProtoContext[T]{}, err
		}
	}
	return ProtoContext[T]{MessageContextBase: newContextBase(env, cfg), Payload: typed}, nil
}

func buildProtoResponse(base MessageContextBase, out ProtoResponse, cfg handlerOptions) (*envelope.Envelope, error) {
	md := base.Derive(out.Name).WithProperties(out.Properties)
	if out.Message == nil || isNilProto(out.Message) {
		return envelope.New(md, envelope.NullPayload()), nil
	}
	if cfg.validate != nil {
		if err := cfg.validate(out.Message); err != nil {
			return nil, err
		}
	}
	payload, err := envelope.PayloadFromProto(out.Message)
	if err != nil {
		return nil, err
	}
	md = md.WithProperty(MetadataKeyEventSchema, string(proto.MessageName(out.Message)))
	return envelope.New(md, payload), nil
}

func clonePrototype[T proto.Message](prototype T) (T, error) {
	if isNilProto(prototype) {
		var zero T
		return zero, errors.ErrConsumeTypeRequired
	}

	cloned := proto.Clone(prototype)
	proto.Reset(cloned)

	typed, ok := cloned.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected prototype type %T", cloned)
	}
	return typed, nil
}

// EnsureProtoPrototype returns candidate, or a fresh instance of its type when
// candidate is a typed nil pointer.
func EnsureProtoPrototype[T proto.Message](candidate T) (T, error) {
	if !isNilProto(candidate) {
		return candidate, nil
	}

	var zero T
	typ := reflect.TypeOf(candidate)
	if typ == nil {
		return zero, errors.ErrConsumeTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return zero, errors.ErrConsumePointerNeeded
	}

	typed, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

func isNilProto[T proto.Message](prototype T) bool {
	msg := proto.Message(prototype)
	if msg == nil {
		return true
	}

	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
