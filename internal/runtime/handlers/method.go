// Package handlers models the units of business logic the dispatcher invokes:
// registrations declared at startup and the methods the registry binds them to.
package handlers

import (
	"context"
	sterrors "errors"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
)

// Invoker is the callable behind a registration. Asynchronous invokers may
// return a nil envelope; it is discarded either way.
type Invoker func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)

// Registration declares that Invoker handles messages named Name in Mode.
// Component names the owning service component and is informational.
type Registration struct {
	Name      string
	Mode      Mode
	Invoker   Invoker
	Component string
}

// Validate reports every problem with the registration.
func (r Registration) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.ErrHandlerNameRequired)
	}
	if !r.Mode.Valid() {
		errs = append(errs, errors.ErrInvalidMode)
	}
	if r.Invoker == nil {
		errs = append(errs, errors.ErrHandlerRequired)
	}
	return sterrors.Join(errs...)
}

// Sync declares a synchronous handler.
func Sync(name string, fn func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)) Registration {
	return Registration{Name: name, Mode: Synchronous, Invoker: fn}
}

// Async declares an asynchronous handler.
func Async(name string, fn func(ctx context.Context, env *envelope.Envelope) error) Registration {
	reg := Registration{Name: name, Mode: Asynchronous}
	if fn != nil {
		reg.Invoker = func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
			return nil, fn(ctx, env)
		}
	}
	return reg
}

// Method is a registration bound into a registry.
type Method struct {
	name      string
	mode      Mode
	component string
	invoke    Invoker
}

// NewMethod validates reg and wraps it.
func NewMethod(reg Registration) (Method, error) {
	if err := reg.Validate(); err != nil {
		return Method{}, err
	}
	return Method{name: reg.Name, mode: reg.Mode, component: reg.Component, invoke: reg.Invoker}, nil
}

func (m Method) Name() string      { return m.name }
func (m Method) Mode() Mode        { return m.mode }
func (m Method) Component() string { return m.component }

func (m Method) IsSynchronous() bool { return m.mode == Synchronous }

// Execute invokes the handler. A synchronous handler that returns neither an
// envelope nor an error yields ErrNilResult. Asynchronous execution returns a
// nil envelope and only the handler's error.
func (m Method) Execute(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	if m.invoke == nil {
		return nil, errors.ErrHandlerRequired
	}
	result, err := m.invoke(ctx, env)
	if m.mode == Asynchronous {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.ErrNilResult
	}
	return result, nil
}

// Component groups the registrations a service component contributes.
type Component interface {
	ComponentName() string
	Handlers() []Registration
}

type staticComponent struct {
	name string
	regs []Registration
}

// NewComponent builds a Component from a fixed list of registrations.
func NewComponent(name string, regs ...Registration) Component {
	return staticComponent{name: name, regs: append([]Registration(nil), regs...)}
}

func (c staticComponent) ComponentName() string { return c.name }

func (c staticComponent) Handlers() []Registration {
	return append([]Registration(nil), c.regs...)
}
