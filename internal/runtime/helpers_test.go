package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	transportpkg "github.com/drblury/dispatchflow/internal/runtime/transport"
)

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	topic string
	msg   *message.Message
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, m := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, msg: m})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.published))
	for _, pm := range p.published {
		topics = append(topics, pm.topic)
	}
	return topics
}

func (p *testPublisher) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.published...)
}

type testSubscriber struct {
	err    error
	closed bool
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed = true
	return nil
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{
		ComponentName: "people",
		PubSubSystem:  "channel",
	}
}

// staticFactory always returns the same publisher and subscriber.
func staticFactory(pub message.Publisher, sub message.Subscriber) transportpkg.Factory {
	return transportpkg.FactoryFunc(func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Publisher: pub, Subscriber: sub}, nil
	})
}

// newTestService builds a service over stub transports with the default
// middleware chain disabled.
func newTestService(t *testing.T) (*Service, *testPublisher) {
	t.Helper()
	pub := &testPublisher{}
	svc, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(pub, &testSubscriber{}),
		DisableDefaultMiddlewares: true,
		Registerer:                prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pub
}

// newChannelService builds a service over an in-memory gochannel transport.
func newChannelService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) (*Service, *gochannel.GoChannel) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	deps.TransportFactory = staticFactory(pubSub, pubSub)
	if deps.Registerer == nil {
		deps.Registerer = prometheus.NewRegistry()
	}
	svc, err := TryNewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pubSub
}
