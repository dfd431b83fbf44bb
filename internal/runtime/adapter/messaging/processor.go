// Package messaging feeds messages consumed from a Watermill subscriber into
// the dispatcher.
package messaging

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
	"github.com/drblury/dispatchflow/internal/runtime/tracelog"
)

// InvalidMessageError reports a consumed message that is not a valid envelope.
// Retrying such a message cannot succeed.
type InvalidMessageError struct {
	MessageID string
	Err       error
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("messaging: message %s is not a valid envelope: %v", e.MessageID, e.Err)
}

func (e *InvalidMessageError) Unwrap() error {
	return e.Err
}

// Consumer accepts an envelope converted from a message.
type Consumer func(ctx context.Context, env *envelope.Envelope) error

// Processor validates consumed messages and converts them into envelopes.
type Processor struct {
	logger logging.ServiceLogger
}

func NewProcessor(logger logging.ServiceLogger) *Processor {
	return &Processor{logger: logging.OrNop(logger)}
}

// Process converts msg and passes the envelope to consumer. Conversion
// failures are returned as *InvalidMessageError without calling consumer.
func (p *Processor) Process(ctx context.Context, consumer Consumer, msg *message.Message) error {
	if consumer == nil {
		return errors.ErrHandlerRequired
	}
	tracelog.LogMessage(p.logger, "pre dispatching", msg)

	env, err := envelope.FromMessage(msg)
	if err != nil {
		id := ""
		if msg != nil {
			id = msg.UUID
		}
		return &InvalidMessageError{MessageID: id, Err: err}
	}
	tracelog.Log(p.logger, "converted message, pre", env)

	if ctx == nil {
		ctx = context.Background()
	}
	if err := consumer(ctx, env); err != nil {
		return err
	}
	tracelog.Log(p.logger, "accepted by consumer, post", env)
	return nil
}

// Handler returns a router handler that dispatches each message asynchronously.
func Handler(d dispatcher.AsynchronousDispatcher, p *Processor) message.NoPublishHandlerFunc {
	if p == nil {
		p = NewProcessor(nil)
	}
	return func(msg *message.Message) error {
		if d == nil {
			return errors.ErrDispatcherRequired
		}
		return p.Process(msg.Context(), d.AsynchronousDispatch, msg)
	}
}
