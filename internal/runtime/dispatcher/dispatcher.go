// Package dispatcher routes envelopes to the handler bound to their name and
// invocation mode.
//
// A Dispatcher owns exactly one registry. Handlers are registered at startup;
// afterwards the dispatcher holds no per-call mutable state and may be used
// from any number of goroutines. Dispatch runs on the caller's goroutine.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
	"github.com/drblury/dispatchflow/internal/runtime/registry"
	"github.com/drblury/dispatchflow/internal/runtime/tracelog"
)

const tracerName = "github.com/drblury/dispatchflow/dispatcher"

// State reports whether any handler has been registered.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// SynchronousDispatcher dispatches an envelope and returns the handler's result.
type SynchronousDispatcher interface {
	SynchronousDispatch(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
}

// AsynchronousDispatcher dispatches an envelope without waiting for a result.
type AsynchronousDispatcher interface {
	AsynchronousDispatch(ctx context.Context, env *envelope.Envelope) error
}

// SynchronousDispatcherFunc adapts a function to SynchronousDispatcher.
type SynchronousDispatcherFunc func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)

func (f SynchronousDispatcherFunc) SynchronousDispatch(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return f(ctx, env)
}

// AsynchronousDispatcherFunc adapts a function to AsynchronousDispatcher.
type AsynchronousDispatcherFunc func(ctx context.Context, env *envelope.Envelope) error

func (f AsynchronousDispatcherFunc) AsynchronousDispatch(ctx context.Context, env *envelope.Envelope) error {
	return f(ctx, env)
}

// Dispatcher resolves handlers through its registry and invokes them.
type Dispatcher struct {
	logger    logging.ServiceLogger
	registry  *registry.Registry
	hooks     Hooks
	metrics   *Metrics
	tracer    trace.Tracer
	component string
	stats     statsTable
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRegistry supplies a pre-built registry instead of an empty one.
func WithRegistry(r *registry.Registry) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(d *Dispatcher) { d.hooks = d.hooks.Merge(h) }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithComponent names the service component that owns the dispatcher. It is
// recorded on registrations that do not name a component themselves.
func WithComponent(name string) Option {
	return func(d *Dispatcher) { d.component = name }
}

// New returns a dispatcher. A nil logger discards log output.
func New(logger logging.ServiceLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: logging.OrNop(logger),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.registry == nil {
		d.registry, _ = registry.New(d.logger)
	}
	return d
}

// Register adds the handlers of each component. Each component is registered
// atomically; registration stops at the first failing component.
func (d *Dispatcher) Register(components ...handlers.Component) error {
	for _, c := range components {
		if err := d.registry.RegisterComponent(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterHandlers adds registrations directly, all or none.
func (d *Dispatcher) RegisterHandlers(regs ...handlers.Registration) error {
	if d.component != "" {
		stamped := make([]handlers.Registration, len(regs))
		for i, reg := range regs {
			if reg.Component == "" {
				reg.Component = d.component
			}
			stamped[i] = reg
		}
		regs = stamped
	}
	return d.registry.Register(regs...)
}

// Registry exposes the dispatcher's registry for introspection.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

func (d *Dispatcher) State() State {
	if d.registry.Len() > 0 {
		return StateReady
	}
	return StateUninitialized
}

// Stats returns per-binding statistics for every binding dispatched so far.
func (d *Dispatcher) Stats() []BindingStats {
	return d.stats.snapshot()
}

// SynchronousDispatch invokes the synchronous handler bound to the envelope's
// name and returns its result unmodified. Missing handler and handler errors
// are returned unchanged.
func (d *Dispatcher) SynchronousDispatch(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return d.Dispatch(ctx, handlers.Synchronous, env)
}

// AsynchronousDispatch invokes the asynchronous handler bound to the envelope's
// name exactly once and discards any result.
func (d *Dispatcher) AsynchronousDispatch(ctx context.Context, env *envelope.Envelope) error {
	_, err := d.Dispatch(ctx, handlers.Asynchronous, env)
	return err
}

// Synchronous returns d as a SynchronousDispatcher.
func (d *Dispatcher) Synchronous() SynchronousDispatcher {
	return SynchronousDispatcherFunc(d.SynchronousDispatch)
}

// Asynchronous returns d as an AsynchronousDispatcher.
func (d *Dispatcher) Asynchronous() AsynchronousDispatcher {
	return AsynchronousDispatcherFunc(d.AsynchronousDispatch)
}

// Dispatch invokes the handler bound to (env name, mode). The result is always
// nil for asynchronous dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, mode handlers.Mode, env *envelope.Envelope) (*envelope.Envelope, error) {
	if env == nil {
		return nil, errors.ErrEnvelopeRequired
	}
	if !mode.Valid() {
		return nil, errors.ErrInvalidMode
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tracelog.Log(d.logger, "pre", env)

	name := env.Name()
	info := DispatchInfo{
		Name:       name,
		Mode:       mode,
		EnvelopeID: env.ID(),
		Causation:  env.Metadata().Causation(),
		Context:    ctx,
		StartedAt:  time.Now(),
	}

	method, err := d.registry.Get(name, mode)
	if err != nil {
		d.metrics.missing(mode.String())
		d.hooks.fail(info, err)
		return nil, err
	}
	info.Component = method.Component()

	ctx, span := d.tracer.Start(ctx, "dispatch "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("dispatch.message.name", name),
			attribute.String("dispatch.message.id", env.ID()),
			attribute.String("dispatch.mode", mode.String()),
			attribute.String("dispatch.component", info.Component),
			attribute.StringSlice("dispatch.message.causation", info.Causation),
		),
	)
	defer span.End()
	info.Context = ctx

	counter := d.stats.get(name, mode, info.Component)
	counter.onStart()
	d.metrics.begin(mode.String())
	d.hooks.start(info)

	finished := false
	defer func() {
		if finished {
			return
		}
		// The panic keeps propagating; only the bookkeeping is closed out.
		r := recover()
		d.finish(info, counter, span, fmt.Errorf("%w: %v", errors.ErrHandlerPanicked, r))
		if r != nil {
			panic(r)
		}
	}()

	result, err := method.Execute(ctx, env)
	finished = true

	d.finish(info, counter, span, err)
	if err != nil {
		return nil, err
	}

	if result != nil {
		tracelog.Log(d.logger, "post", result)
	} else {
		tracelog.Log(d.logger, "post", env)
	}
	return result, nil
}

func (d *Dispatcher) finish(info DispatchInfo, counter *bindingCounter, span trace.Span, err error) {
	info.Duration = time.Since(info.StartedAt)
	counter.onFinish(info.Duration, err)
	d.metrics.observe(info.Name, info.Mode.String(), info.Duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.hooks.fail(info, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	d.hooks.done(info)
}
