package transport

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	HTTPPublisherFactory = func(cfg http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return http.NewPublisher(cfg, logger)
	}
	HTTPSubscriberFactory = func(addr string, cfg http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return http.NewSubscriber(addr, cfg, logger)
	}
)

type httpServerStarter interface {
	StartHTTPServer() error
}

func httpTransport(_ context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	base := cfg.GetHTTPPublisherURL()
	publisher, err := HTTPPublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(joinTopicURL(base, topic), msg)
			},
		},
		logger,
	)
	if err != nil {
		return Transport{}, err
	}

	subscriber, err := HTTPSubscriberFactory(
		cfg.GetHTTPServerAddress(),
		http.SubscriberConfig{UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc},
		logger,
	)
	if err != nil {
		return Transport{}, err
	}

	if s, ok := subscriber.(httpServerStarter); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
				logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	}

	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// joinTopicURL appends topic to base with exactly one slash between them.
func joinTopicURL(base, topic string) string {
	if base == "" {
		return topic
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(topic, "/")
}
