package dispatcher

import (
	"context"
	"time"

	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

// DispatchInfo describes one dispatch call to hooks.
type DispatchInfo struct {
	// Name is the message name being dispatched.
	Name string
	// Mode is the requested invocation mode.
	Mode handlers.Mode
	// Component owns the resolved handler. Empty when no handler was found.
	Component string
	// EnvelopeID is the id of the inbound envelope.
	EnvelopeID string
	// Causation is the inbound causation chain, nil when absent.
	Causation []string
	// Context is the context passed to the handler.
	Context context.Context
	// StartedAt is when the dispatch began.
	StartedAt time.Time
	// Duration is only set for OnDispatchDone and OnDispatchError.
	Duration time.Duration
}

// Hooks are optional callbacks around every dispatch. A panicking hook is
// recovered and never changes the dispatch outcome.
type Hooks struct {
	// OnDispatchStart runs after the handler is resolved, before it executes.
	OnDispatchStart func(info DispatchInfo)

	// OnDispatchDone runs when the handler returns without error.
	OnDispatchDone func(info DispatchInfo)

	// OnDispatchError runs when resolution or execution fails.
	OnDispatchError func(info DispatchInfo, err error)
}

// Merge returns hooks that call h first, then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnDispatchStart: chainInfoHooks(h.OnDispatchStart, other.OnDispatchStart),
		OnDispatchDone:  chainInfoHooks(h.OnDispatchDone, other.OnDispatchDone),
		OnDispatchError: chainErrorHooks(h.OnDispatchError, other.OnDispatchError),
	}
}

func chainInfoHooks(a, b func(DispatchInfo)) func(DispatchInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info DispatchInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(DispatchInfo, error)) func(DispatchInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info DispatchInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

func (h Hooks) start(info DispatchInfo) {
	if h.OnDispatchStart != nil {
		guard(func() { h.OnDispatchStart(info) })
	}
}

func (h Hooks) done(info DispatchInfo) {
	if h.OnDispatchDone != nil {
		guard(func() { h.OnDispatchDone(info) })
	}
}

func (h Hooks) fail(info DispatchInfo, err error) {
	if h.OnDispatchError != nil {
		guard(func() { h.OnDispatchError(info, err) })
	}
}

func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// LoggingHooks logs dispatch lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) Hooks {
	logger = logging.OrNop(logger)
	return Hooks{
		OnDispatchStart: func(info DispatchInfo) {
			logger.Debug("Dispatch started", logging.LogFields{
				"message_name": info.Name,
				"message_id":   info.EnvelopeID,
				"mode":         info.Mode.String(),
				"component":    info.Component,
			})
		},
		OnDispatchDone: func(info DispatchInfo) {
			logger.Info("Dispatch completed", logging.LogFields{
				"message_name": info.Name,
				"message_id":   info.EnvelopeID,
				"mode":         info.Mode.String(),
				"duration_ms":  info.Duration.Milliseconds(),
			})
		},
		OnDispatchError: func(info DispatchInfo, err error) {
			logger.Error("Dispatch failed", err, logging.LogFields{
				"message_name": info.Name,
				"message_id":   info.EnvelopeID,
				"mode":         info.Mode.String(),
				"duration_ms":  info.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks adapts plain counters to hooks.
func MetricsHooks(onStart, onDone, onError func(name string, mode handlers.Mode)) Hooks {
	return Hooks{
		OnDispatchStart: func(info DispatchInfo) {
			if onStart != nil {
				onStart(info.Name, info.Mode)
			}
		},
		OnDispatchDone: func(info DispatchInfo) {
			if onDone != nil {
				onDone(info.Name, info.Mode)
			}
		},
		OnDispatchError: func(info DispatchInfo, _ error) {
			if onError != nil {
				onError(info.Name, info.Mode)
			}
		},
	}
}

// AlertingHooks only reacts to failures.
func AlertingHooks(alert func(info DispatchInfo, err error)) Hooks {
	return Hooks{OnDispatchError: alert}
}
