package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// TopicResolver picks the topic an envelope is published to.
type TopicResolver interface {
	TopicFor(env *envelope.Envelope) (string, error)
}

// TopicResolverFunc adapts a function to TopicResolver.
type TopicResolverFunc func(env *envelope.Envelope) (string, error)

func (f TopicResolverFunc) TopicFor(env *envelope.Envelope) (string, error) {
	return f(env)
}

// NameTopicResolver publishes every envelope to a topic named after it.
var NameTopicResolver TopicResolver = TopicResolverFunc(func(env *envelope.Envelope) (string, error) {
	return env.Name(), nil
})

// StaticTopicResolver maps message names to topics. Names without an entry go
// to Fallback, or to the topic named after them when Fallback is empty.
type StaticTopicResolver struct {
	Topics   map[string]string
	Fallback string
}

func (r StaticTopicResolver) TopicFor(env *envelope.Envelope) (string, error) {
	if topic, ok := r.Topics[env.Name()]; ok {
		return topic, nil
	}
	if r.Fallback != "" {
		return r.Fallback, nil
	}
	return env.Name(), nil
}

// EnvelopePublisher emits envelopes onto the configured transport.
type EnvelopePublisher struct {
	publisher message.Publisher
	resolver  TopicResolver
}

// NewEnvelopePublisher returns a publisher using resolver, or NameTopicResolver
// when resolver is nil.
func NewEnvelopePublisher(publisher message.Publisher, resolver TopicResolver) *EnvelopePublisher {
	if resolver == nil {
		resolver = NameTopicResolver
	}
	return &EnvelopePublisher{publisher: publisher, resolver: resolver}
}

// Publish converts env into a message and publishes it to the resolved topic.
func (p *EnvelopePublisher) Publish(ctx context.Context, env *envelope.Envelope) error {
	if p == nil || p.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if env == nil {
		return errspkg.ErrEnvelopeRequired
	}
	if err := env.Metadata().Validate(); err != nil {
		return err
	}

	topic, err := p.resolver.TopicFor(env)
	if err != nil {
		return fmt.Errorf("resolve topic for %q: %w", env.Name(), err)
	}
	return PublishEnvelope(ctx, p.publisher, topic, env)
}

// PublishEnvelope publishes env to topic through publisher.
func PublishEnvelope(ctx context.Context, publisher message.Publisher, topic string, env *envelope.Envelope) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := envelope.ToMessage(env)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// Publish emits the envelope using the Service publisher so handlers can
// raise events without touching the Watermill APIs directly.
func (s *Service) Publish(ctx context.Context, env *envelope.Envelope) error {
	if s == nil {
		return errors.New("dispatch service is nil")
	}
	return s.envelopes.Publish(ctx, env)
}
