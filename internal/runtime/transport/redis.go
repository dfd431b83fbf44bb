package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

const (
	redisFieldUUID       = "uuid"
	redisFieldPayload    = "payload"
	redisFieldMetaPrefix = "meta:"

	redisDefaultGroup = "dispatchflow"
	redisBatchSize    = 64
	redisBlock        = 2 * time.Second
	redisRetryBackoff = 200 * time.Millisecond
	redisNackBackoff  = 100 * time.Millisecond
)

var errRedisSubscriberClosed = errors.New("redis: subscriber closed")

// RedisStreams is the part of the go-redis client the Redis Streams
// transport uses. *redis.Client implements it.
type RedisStreams interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

var RedisClientFactory = func(opts *redis.Options) RedisStreams {
	return redis.NewClient(opts)
}

// redisTransport maps topics to streams. Every service instance joins the
// configured consumer group, so a topic is load balanced across instances.
func redisTransport(_ context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	opts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return Transport{}, fmt.Errorf("redis: %w", err)
	}
	group := cfg.GetRedisConsumerGroup()
	if group == "" {
		group = redisDefaultGroup
	}

	client := RedisClientFactory(opts)
	return Transport{
		Publisher:  &redisPublisher{client: client},
		Subscriber: newRedisSubscriber(client, group, logger),
	}, nil
}

// redisPublisher owns the client; closing it closes the connection pool.
type redisPublisher struct {
	client RedisStreams
}

func (p *redisPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		values := make(map[string]any, 2+len(msg.Metadata))
		values[redisFieldUUID] = msg.UUID
		values[redisFieldPayload] = []byte(msg.Payload)
		for k, v := range msg.Metadata {
			values[redisFieldMetaPrefix+k] = v
		}
		if err := p.client.XAdd(msg.Context(), &redis.XAddArgs{Stream: topic, Values: values}).Err(); err != nil {
			return fmt.Errorf("redis: publish %s to %q: %w", msg.UUID, topic, err)
		}
	}
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

type redisSubscriber struct {
	client   RedisStreams
	group    string
	consumer string
	logger   watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newRedisSubscriber(client RedisStreams, group string, logger watermill.LoggerAdapter) *redisSubscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &redisSubscriber{
		client:   client,
		group:    group,
		consumer: group + "-" + watermill.NewShortUUID(),
		logger:   logger,
		closing:  make(chan struct{}),
	}
}

func (s *redisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errRedisSubscriberClosed
	default:
	}

	// A new group starts at the beginning of the stream so entries published
	// before the first subscription are delivered.
	err := s.client.XGroupCreateMkStream(ctx, topic, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis: create group %q on %q: %w", s.group, topic, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer cancel()
		s.consume(ctx, topic, out)
	}()
	return out, nil
}

func (s *redisSubscriber) consume(ctx context.Context, topic string, out chan<- *message.Message) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{topic, ">"},
		Count:    redisBatchSize,
		Block:    redisBlock,
	}
	fields := watermill.LogFields{"topic": topic, "group": s.group, "consumer": s.consumer}

	for ctx.Err() == nil {
		streams, err := s.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Reading Redis stream failed", err, fields)
			select {
			case <-time.After(redisRetryBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				if !s.deliver(ctx, topic, entry, out) {
					return
				}
			}
		}
	}
}

// deliver hands entry to the router until it is acked. A nacked entry is
// sent again after a short pause.
func (s *redisSubscriber) deliver(ctx context.Context, topic string, entry redis.XMessage, out chan<- *message.Message) bool {
	for {
		msg := decodeRedisEntry(entry)
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			if err := s.client.XAck(ctx, topic, s.group, entry.ID).Err(); err != nil {
				s.logger.Error("Acking Redis stream entry failed", err, watermill.LogFields{
					"topic":    topic,
					"entry_id": entry.ID,
				})
			}
			return true
		case <-msg.Nacked():
			select {
			case <-time.After(redisNackBackoff):
			case <-ctx.Done():
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (s *redisSubscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}

func decodeRedisEntry(entry redis.XMessage) *message.Message {
	uuid := redisString(entry.Values[redisFieldUUID])
	if uuid == "" {
		uuid = entry.ID
	}
	msg := message.NewMessage(uuid, []byte(redisString(entry.Values[redisFieldPayload])))
	for k, v := range entry.Values {
		if key, ok := strings.CutPrefix(k, redisFieldMetaPrefix); ok {
			msg.Metadata.Set(key, redisString(v))
		}
	}
	return msg
}

func redisString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
