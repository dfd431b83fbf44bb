package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

const (
	NameChannel   = "channel"
	NameGoChannel = "gochannel"
	NameKafka     = "kafka"
	NameRabbitMQ  = "rabbitmq"
	NameNATS      = "nats"
	NameRedis     = "redis"
	NameHTTP      = "http"
	NameAWS       = "aws"
)

type registryEntry struct {
	builder      Builder
	capabilities Capabilities
}

// Registry maps pub/sub system names to builders and their capabilities.
// Names are matched case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// NewDefaultRegistry returns a registry with every built-in transport.
// The empty name and "gochannel" select the in-memory channel transport.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameChannel, channelTransport, ChannelCapabilities)
	r.Register(NameGoChannel, channelTransport, ChannelCapabilities)
	r.Register("", channelTransport, ChannelCapabilities)
	r.Register(NameKafka, kafkaTransport, KafkaCapabilities)
	r.Register(NameRabbitMQ, rabbitTransport, RabbitMQCapabilities)
	r.Register(NameNATS, natsTransport, NATSCapabilities)
	r.Register(NameRedis, redisTransport, RedisCapabilities)
	r.Register(NameHTTP, httpTransport, HTTPCapabilities)
	r.Register(NameAWS, awsTransport, AWSCapabilities)
	return r
}

// Register adds or replaces the builder for name.
func (r *Registry) Register(name string, builder Builder, caps Capabilities) {
	key := normalizeName(name)
	if caps.Name == "" {
		caps.Name = key
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = registryEntry{builder: builder, capabilities: caps}
}

// Capabilities returns the capabilities for a registered transport, or a zero
// value carrying only the name when the transport is unknown.
func (r *Registry) Capabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[normalizeName(name)]; ok {
		return e.capabilities
	}
	return Capabilities{Name: name}
}

// Build creates a transport using the builder registered for cfg's pub/sub system.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := normalizeName(cfg.GetPubSubSystem())

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok || e.builder == nil {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}
	return e.builder(ctx, cfg, logger)
}

// Names returns the registered transport names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[normalizeName(name)]
	return ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
