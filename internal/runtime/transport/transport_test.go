package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dispatchflow/internal/runtime/config"
)

type testPublisher struct {
	closed int
}

func (p *testPublisher) Publish(string, ...*message.Message) error { return nil }

func (p *testPublisher) Close() error {
	p.closed++
	return nil
}

type testSubscriber struct {
	closed int
	err    error
}

func (s *testSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed++
	return s.err
}

type testPubSub struct {
	testPublisher
	testSubscriber
}

func (ps *testPubSub) Close() error {
	ps.testPublisher.closed++
	return nil
}

// swap replaces *target for the duration of the test.
func swap[T any](t *testing.T, target *T, value T) {
	t.Helper()
	orig := *target
	*target = value
	t.Cleanup(func() { *target = orig })
}

func TestDefaultRegistryBuildsChannel(t *testing.T) {
	for _, name := range []string{"", "channel", "GoChannel"} {
		t.Run(name, func(t *testing.T) {
			tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: name}, watermill.NopLogger{})
			require.NoError(t, err)
			require.NotNil(t, tr.Publisher)
			require.NotNil(t, tr.Subscriber)
			assert.NoError(t, tr.Close())
		})
	}
}

func TestChannelTransportDeliversMessages(t *testing.T) {
	tr, err := channelTransport(context.Background(), &config.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	messages, err := tr.Subscriber.Subscribe(context.Background(), "orders")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"ok":true}`))
	require.NoError(t, tr.Publisher.Publish("orders", msg))

	select {
	case received := <-messages:
		assert.Equal(t, msg.Payload, received.Payload)
		received.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRegistryBuildErrors(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Build(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = r.Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport: "carrier-pigeon"`)
}

func TestRegistryCustomBuilder(t *testing.T) {
	r := NewRegistry()
	pub := &testPublisher{}
	r.Register("Memory", func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: pub, Subscriber: &testSubscriber{}}, nil
	}, Capabilities{SupportsAck: true})

	assert.True(t, r.Has("memory"))
	assert.Equal(t, []string{"memory"}, r.Names())
	assert.Equal(t, "memory", r.Capabilities("MEMORY").Name)
	assert.True(t, r.Capabilities("memory").SupportsAck)

	tr, err := r.Build(context.Background(), &config.Config{PubSubSystem: "memory"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
}

func TestDefaultRegistryNames(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "gochannel", "http", "kafka", "nats", "rabbitmq", "redis"},
		NewDefaultRegistry().Names(),
	)
}

func TestCapabilities(t *testing.T) {
	r := NewDefaultRegistry()

	assert.Equal(t, RabbitMQCapabilities, r.Capabilities("rabbitmq"))
	assert.True(t, r.Capabilities("channel").RequiresDLQEmulation())
	assert.True(t, r.Capabilities("channel").SupportsReliableDelivery())
	assert.False(t, r.Capabilities("nats").SupportsReliableDelivery())
	assert.False(t, r.Capabilities("aws").RequiresDLQEmulation())

	unknown := r.Capabilities("unknown-transport")
	assert.Equal(t, "unknown-transport", unknown.Name)
	assert.False(t, unknown.SupportsNativeDLQ)
}

func TestTransportClose(t *testing.T) {
	t.Run("separate endpoints", func(t *testing.T) {
		pub, sub := &testPublisher{}, &testSubscriber{err: errors.New("boom")}
		err := Transport{Publisher: pub, Subscriber: sub}.Close()
		require.Error(t, err)
		assert.Equal(t, 1, pub.closed)
		assert.Equal(t, 1, sub.closed)
	})

	t.Run("shared endpoint closed once", func(t *testing.T) {
		ps := &testPubSub{}
		require.NoError(t, Transport{Publisher: ps, Subscriber: ps}.Close())
		assert.Equal(t, 1, ps.testPublisher.closed)
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, Transport{}.Close())
	})
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(context.Context, Config, watermill.LoggerAdapter) (Transport, error) {
		called = true
		return Transport{}, nil
	})
	_, err := f.Build(context.Background(), &config.Config{}, nil)
	require.NoError(t, err)
	assert.True(t, called)
}
