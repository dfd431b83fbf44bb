package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

var (
	KafkaPublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	KafkaSubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

func kafkaTransport(_ context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	publisher, err := KafkaPublisherFactory(kafkaPublisherConfig(cfg), logger)
	if err != nil {
		return Transport{}, err
	}
	subscriber, err := KafkaSubscriberFactory(kafkaSubscriberConfig(cfg), logger)
	if err != nil {
		_ = publisher.Close()
		return Transport{}, err
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func kafkaPublisherConfig(cfg Config) kafka.PublisherConfig {
	sarama := kafka.DefaultSaramaSyncPublisherConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sarama.ClientID = id
	}
	return kafka.PublisherConfig{
		Brokers:               cfg.GetKafkaBrokers(),
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: sarama,
	}
}

func kafkaSubscriberConfig(cfg Config) kafka.SubscriberConfig {
	sarama := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sarama.ClientID = id
	}
	return kafka.SubscriberConfig{
		Brokers:               cfg.GetKafkaBrokers(),
		Unmarshaler:           kafka.DefaultMarshaler{},
		ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
		OverwriteSaramaConfig: sarama,
	}
}
