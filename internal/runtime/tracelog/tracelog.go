// Package tracelog renders envelopes and inbound messages for diagnostic
// logging. Nothing in this package panics or returns an error to callers that
// only want a loggable string.
package tracelog

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

// EnvelopeTraceValues holds the fields of an envelope that identify it in logs.
type EnvelopeTraceValues struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Causation []string `json:"causation"`
}

// ValuesOf extracts trace values. An absent causation chain becomes an empty
// slice so the rendered form always carries a causation array.
func ValuesOf(env *envelope.Envelope) EnvelopeTraceValues {
	if env == nil {
		return EnvelopeTraceValues{Causation: []string{}}
	}
	md := env.Metadata()
	causation := md.Causation()
	if causation == nil {
		causation = []string{}
	}
	return EnvelopeTraceValues{ID: md.ID(), Name: md.Name(), Causation: causation}
}

// ToTraceString renders {"id":…,"name":…,"causation":[…]}. Failures are
// rendered as {"error":…} instead of being returned.
func ToTraceString(env *envelope.Envelope) string {
	s, err := SafeTraceString(env)
	if err != nil {
		return errorObject(err)
	}
	return s
}

// SafeTraceString is ToTraceString for callers that want to see the failure.
func SafeTraceString(env *envelope.Envelope) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = "", fmt.Errorf("tracelog: panic while rendering envelope: %v", r)
		}
	}()
	if env == nil {
		return "", fmt.Errorf("tracelog: nil envelope")
	}
	return jsoncodec.MarshalToString(ValuesOf(env))
}

// Trace renders a human readable line such as
// "pre dispatching message with ID {…} and NAME {…} with causation message IDs {a, b}".
// The causation clause is omitted when the chain is absent.
func Trace(action string, env *envelope.Envelope) string {
	if env == nil {
		return action + " dispatching nil envelope"
	}
	md := env.Metadata()
	line := fmt.Sprintf("%s dispatching message with ID {%s} and NAME {%s}", action, md.ID(), md.Name())
	if !md.HasCausation() {
		return line
	}
	return fmt.Sprintf("%s with causation message IDs {%s}", line, strings.Join(md.Causation(), ", "))
}

// MessageTraceString renders the transport identity of an inbound message:
// its UUID, the topic it was consumed from and its correlation id.
func MessageTraceString(msg *message.Message) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = errorObject(fmt.Errorf("tracelog: panic while rendering message: %v", r))
		}
	}()
	if msg == nil {
		return errorObject(fmt.Errorf("tracelog: nil message"))
	}
	values := struct {
		MessageID     string `json:"message_id"`
		Topic         string `json:"topic"`
		CorrelationID string `json:"correlation_id"`
	}{
		MessageID:     msg.UUID,
		Topic:         message.SubscribeTopicFromCtx(msg.Context()),
		CorrelationID: middleware.MessageCorrelationID(msg),
	}
	out, err := jsoncodec.MarshalToString(values)
	if err != nil {
		return errorObject(err)
	}
	return out
}

// Log writes a trace line for env. Anything that goes wrong while rendering or
// logging is swallowed.
func Log(logger logging.ServiceLogger, action string, env *envelope.Envelope) {
	defer func() { _ = recover() }()
	if logger == nil {
		return
	}
	logger.Trace(Trace(action, env), logging.LogFields{"envelope": ToTraceString(env)})
}

// LogMessage writes a trace line for an inbound transport message.
func LogMessage(logger logging.ServiceLogger, action string, msg *message.Message) {
	defer func() { _ = recover() }()
	if logger == nil {
		return
	}
	logger.Trace(action+" processing message", logging.LogFields{"message": MessageTraceString(msg)})
}

func errorObject(err error) string {
	out, marshalErr := jsoncodec.MarshalToString(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return `{"error":"unrenderable"}`
	}
	return out
}
