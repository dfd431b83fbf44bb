package transport

// Capabilities describes the delivery features a transport backend offers.
// The admin endpoint reports them next to the handler bindings.
type Capabilities struct {
	Name string `json:"name"`

	// SupportsDelay indicates the transport can natively delay message delivery.
	SupportsDelay bool `json:"supports_delay"`
	// SupportsNativeDLQ indicates the transport has built-in dead letter queue support.
	// Without it the poison queue middleware routes failed messages.
	SupportsNativeDLQ bool `json:"supports_native_dlq"`
	// SupportsOrdering indicates messages within a partition or stream arrive in order.
	SupportsOrdering     bool `json:"supports_ordering"`
	SupportsTracing      bool `json:"supports_tracing"`
	SupportsBatching     bool `json:"supports_batching"`
	SupportsAck          bool `json:"supports_ack"`
	SupportsNack         bool `json:"supports_nack"`
	SupportsPartitioning bool `json:"supports_partitioning"`

	// MaxMessageSize is in bytes; 0 means unlimited or unknown.
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// RequiresDLQEmulation reports whether failed messages must be routed by the
// application.
func (c Capabilities) RequiresDLQEmulation() bool {
	return !c.SupportsNativeDLQ
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             NameChannel,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 NameKafka,
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		SupportsAck:          true,
		SupportsPartitioning: true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:              NameRabbitMQ,
		SupportsDelay:     true,
		SupportsNativeDLQ: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
	}

	NATSCapabilities = Capabilities{
		Name:            NameNATS,
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	// Unacked entries stay in the consumer group's pending list.
	RedisCapabilities = Capabilities{
		Name:             NameRedis,
		SupportsOrdering: true,
		SupportsBatching: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   536870912,
	}

	AWSCapabilities = Capabilities{
		Name:              NameAWS,
		SupportsDelay:     true,
		SupportsNativeDLQ: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsBatching:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		MaxMessageSize:    262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            NameHTTP,
		SupportsTracing: true,
	}
)
