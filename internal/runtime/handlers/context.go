package handlers

import (
	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/ids"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

// Property keys set by the typed handler helpers.
const (
	// MetadataKeyCorrelationID tracks related messages across services.
	MetadataKeyCorrelationID = envelope.PropertyCorrelationID

	// MetadataKeyEventSchema identifies the Go or proto type of a response payload.
	MetadataKeyEventSchema = "event_message_schema"
)

// MessageContextBase is shared by the JSON and proto handler contexts.
type MessageContextBase struct {
	Envelope *envelope.Envelope
	Logger   logging.ServiceLogger
	NewID    ids.Generator
}

func (b MessageContextBase) Metadata() envelope.Metadata {
	return b.Envelope.Metadata()
}

// Get retrieves a metadata property by key.
func (b MessageContextBase) Get(key string) string {
	v, _ := b.Envelope.Metadata().Get(key)
	return v
}

// CorrelationID returns the correlation ID property, if present.
func (b MessageContextBase) CorrelationID() string {
	return b.Get(MetadataKeyCorrelationID)
}

// Derive returns metadata for a message caused by the incoming envelope.
func (b MessageContextBase) Derive(name string) envelope.Metadata {
	newID := b.NewID
	if newID == nil {
		newID = ids.CreateULID
	}
	if name == "" {
		name = b.Envelope.Name()
	}
	return b.Envelope.Metadata().Derive(newID(), name)
}

func newContextBase(env *envelope.Envelope, opts handlerOptions) MessageContextBase {
	logger := logging.OrNop(opts.logger).With(logging.LogFields{
		"message_id":   env.ID(),
		"message_name": env.Name(),
	})
	return MessageContextBase{Envelope: env, Logger: logger, NewID: opts.newID}
}

// Option customises typed handler registrations.
type Option func(*handlerOptions)

type handlerOptions struct {
	logger    logging.ServiceLogger
	newID     ids.Generator
	validate  func(any) error
	component string
}

// WithLogger sets the logger exposed on the handler context.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(o *handlerOptions) { o.logger = logger }
}

// WithIDGenerator sets the generator used for response envelope ids.
func WithIDGenerator(gen ids.Generator) Option {
	return func(o *handlerOptions) { o.newID = gen }
}

// WithValidator runs validate against every decoded request and every response
// message before it is encoded.
func WithValidator(validate func(any) error) Option {
	return func(o *handlerOptions) { o.validate = validate }
}

// WithComponent records the owning component on the registration.
func WithComponent(name string) Option {
	return func(o *handlerOptions) { o.component = name }
}

func applyOptions(opts []Option) handlerOptions {
	cfg := handlerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
