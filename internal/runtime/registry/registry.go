// Package registry binds message names to handler methods.
//
// A registry is populated at startup and read on every dispatch. Writers
// build a new map and publish it atomically, so lookups never take a lock
// and always observe a complete set of bindings.
package registry

import (
	sterrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

type bindingKey struct {
	name string
	mode handlers.Mode
}

type bindingTable map[bindingKey]handlers.Method

// Binding describes one registered (name, mode) pair.
type Binding struct {
	Name      string        `json:"name"`
	Mode      handlers.Mode `json:"mode"`
	Component string        `json:"component,omitempty"`
}

// Registry maps (name, mode) pairs to exactly one handler method. The zero
// value is an empty registry that logs nothing.
type Registry struct {
	logger logging.ServiceLogger

	writeMu sync.Mutex
	table   atomic.Pointer[bindingTable]
}

// New returns a registry holding regs. It fails if any registration is
// invalid or duplicated.
func New(logger logging.ServiceLogger, regs ...handlers.Registration) (*Registry, error) {
	r := &Registry{logger: logging.OrNop(logger)}
	empty := bindingTable{}
	r.table.Store(&empty)
	if err := r.Register(regs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register binds every registration or none of them. A registration whose
// (name, mode) is already bound, or appears twice in regs, fails with a
// *errors.DuplicateHandlerError and leaves the registry unchanged.
func (r *Registry) Register(regs ...handlers.Registration) error {
	if len(regs) == 0 {
		return nil
	}

	logger := logging.OrNop(r.logger)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.load()
	staged := make(bindingTable, len(regs))
	var errs []error
	for i, reg := range regs {
		method, err := handlers.NewMethod(reg)
		if err != nil {
			errs = append(errs, fmt.Errorf("registration %d (%q): %w", i, reg.Name, err))
			continue
		}
		key := bindingKey{name: reg.Name, mode: reg.Mode}
		_, bound := current[key]
		_, repeated := staged[key]
		if bound || repeated {
			errs = append(errs, &errors.DuplicateHandlerError{
				Name:      reg.Name,
				Mode:      reg.Mode.String(),
				Component: reg.Component,
			})
			continue
		}
		staged[key] = method
	}
	if len(errs) > 0 {
		err := sterrors.Join(errs...)
		logger.Error("Handler registration rejected", err, logging.LogFields{"registrations": len(regs)})
		return err
	}

	next := make(bindingTable, len(current)+len(staged))
	for k, m := range current {
		next[k] = m
	}
	for k, m := range staged {
		next[k] = m
		logger.Debug("Handler registered", logging.LogFields{
			"message_name": k.name,
			"mode":         k.mode.String(),
			"component":    m.Component(),
		})
	}
	r.table.Store(&next)
	return nil
}

// RegisterComponent registers every handler the component declares. The
// component name is recorded on registrations that do not carry one.
func (r *Registry) RegisterComponent(c handlers.Component) error {
	if c == nil {
		return errors.ErrComponentRequired
	}
	regs := c.Handlers()
	for i := range regs {
		if regs[i].Component == "" {
			regs[i].Component = c.ComponentName()
		}
	}
	return r.Register(regs...)
}

// Get returns the method bound to (name, mode) or a *errors.MissingHandlerError.
func (r *Registry) Get(name string, mode handlers.Mode) (handlers.Method, error) {
	if m, ok := r.load()[bindingKey{name: name, mode: mode}]; ok {
		return m, nil
	}
	return handlers.Method{}, &errors.MissingHandlerError{Name: name, Mode: mode.String()}
}

func (r *Registry) Has(name string, mode handlers.Mode) bool {
	_, ok := r.load()[bindingKey{name: name, mode: mode}]
	return ok
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return len(r.load())
}

// Bindings lists every binding ordered by name, then mode.
func (r *Registry) Bindings() []Binding {
	table := r.load()
	out := make([]Binding, 0, len(table))
	for k, m := range table {
		out = append(out, Binding{Name: k.name, Mode: k.mode, Component: m.Component()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

func (r *Registry) load() bindingTable {
	if t := r.table.Load(); t != nil {
		return *t
	}
	return nil
}
