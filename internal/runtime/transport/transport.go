// Package transport builds the Watermill publisher/subscriber pair a service
// uses for its listeners and its envelope publisher. Builders are looked up by
// the configured pub/sub system name in a Registry.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes the subscriber and then the publisher. A pub/sub backed by one
// value (gochannel) is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Subscriber != nil {
		errs = append(errs, t.Subscriber.Close())
	}
	if t.Publisher != nil && !sameEndpoint(t.Publisher, t.Subscriber) {
		errs = append(errs, t.Publisher.Close())
	}
	return errors.Join(errs...)
}

func sameEndpoint(pub message.Publisher, sub message.Subscriber) bool {
	s, ok := sub.(message.Publisher)
	return ok && s == pub
}

// Config exposes the values builders read. *config.Config implements it.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetRedisURL() string
	GetRedisConsumerGroup() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Factory abstracts how a service initialises its message transport.
type Factory interface {
	Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, cfg, logger)
}

// DefaultFactory returns a factory backed by a registry holding the built-in
// transports.
func DefaultFactory() Factory {
	return NewDefaultRegistry()
}
