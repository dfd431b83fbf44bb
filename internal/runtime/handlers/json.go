package handlers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
)

// JSONContext exposes the decoded payload alongside the incoming envelope.
type JSONContext[T any] struct {
	MessageContextBase
	Payload T
}

// JSONResponse describes the envelope a synchronous JSON handler returns. An
// empty Name reuses the request name; a zero Message yields a null payload.
type JSONResponse[O any] struct {
	Name       string
	Message    O
	Properties envelope.Properties
}

// JSONSyncHandler processes a typed payload and returns a typed response.
type JSONSyncHandler[T any, O any] func(ctx context.Context, in JSONContext[T]) (JSONResponse[O], error)

// JSONAsyncHandler processes a typed payload without producing a response.
type JSONAsyncHandler[T any] func(ctx context.Context, in JSONContext[T]) error

// JSONSync builds a synchronous registration whose payload is decoded into T.
// T must be a pointer type.
func JSONSync[T any, O any](name string, handler JSONSyncHandler[T, O], opts ...Option) (Registration, error) {
	if handler == nil {
		return Registration{}, errors.ErrHandlerRequired
	}
	factory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return Registration{}, err
	}
	cfg := applyOptions(opts)

	invoke := func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		in, err := decodeJSON(env, factory, cfg)
		if err != nil {
			return nil, err
		}
		out, err := handler(ctx, in)
		if err != nil {
			return nil, err
		}
		return buildJSONResponse(in.MessageContextBase, out, cfg)
	}
	return Registration{Name: name, Mode: Synchronous, Invoker: invoke, Component: cfg.component}, nil
}

// JSONAsync builds an asynchronous registration whose payload is decoded into T.
func JSONAsync[T any](name string, handler JSONAsyncHandler[T], opts ...Option) (Registration, error) {
	if handler == nil {
		return Registration{}, errors.ErrHandlerRequired
	}
	factory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return Registration{}, err
	}
	cfg := applyOptions(opts)

	invoke := func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		in, err := decodeJSON(env, factory, cfg)
		if err != nil {
			return nil, err
		}
		return nil, handler(ctx, in)
	}
	return Registration{Name: name, Mode: Asynchronous, Invoker: invoke, Component: cfg.component}, nil
}

func decodeJSON[T any](env *envelope.Envelope, factory func() T, cfg handlerOptions) (JSONContext[T], error) {
	if env == nil {
		return JSONContext[T]{}, errors.ErrEnvelopeRequired
	}
	typed := factory()
	if !env.Payload().IsNull() {
		if err := env.Payload().Decode(typed); err != nil {
			return JSONContext[T]{}, fmt.Errorf("failed to unmarshal JSON payload: %w", err)
		}
	}
	if cfg.validate != nil {
		if err := cfg.validate(typed); err != nil {
			return JSONContext[T]{}, err
		}
	}
	return JSONContext[T]{MessageContextBase: newContextBase(env, cfg), Payload: typed}, nil
}

func buildJSONResponse[O any](base MessageContextBase, out JSONResponse[O], cfg handlerOptions) (*envelope.Envelope, error) {
	md := base.Derive(out.Name).WithProperties(out.Properties)
	if isZeroValue(out.Message) {
		return envelope.New(md, envelope.NullPayload()), nil
	}
	if cfg.validate != nil {
		if err := cfg.validate(out.Message); err != nil {
			return nil, err
		}
	}
	payload, err := envelope.PayloadFrom(out.Message)
	if err != nil {
		return nil, err
	}
	md = md.WithProperty(MetadataKeyEventSchema, fmt.Sprintf("%T", out.Message))
	return envelope.New(md, payload), nil
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errors.ErrConsumeTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errors.ErrConsumePointerNeeded
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}

func isZeroValue(v any) bool {
	val := reflect.ValueOf(v)
	return !val.IsValid() || val.IsZero()
}
