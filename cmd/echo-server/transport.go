package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/amqp"
	"github.com/coregx/echobus/adapters/kafka"
	"github.com/coregx/echobus/adapters/memory"
	"github.com/coregx/echobus/cmd/echo-server/internal/config"
)

// transport is the broker connection pair used by the server.
type transport struct {
	producer echobus.Producer
	consumer echobus.Consumer
}

func (t *transport) Close() error {
	var errs []error
	if t.consumer != nil {
		errs = append(errs, t.consumer.Close())
	}
	if t.producer != nil {
		errs = append(errs, t.producer.Close())
	}
	return errors.Join(errs...)
}

// openTransport connects to the configured broker and subscribes to topic.
func openTransport(ctx context.Context, cfg config.BrokerConfig, topic string, logger echobus.Logger) (*transport, error) {
	switch cfg.Kind {
	case "memory":
		broker := memory.NewBroker(cfg.Partitions)
		return &transport{
			producer: broker.Producer(),
			consumer: broker.Consumer(cfg.GroupID, topic),
		}, nil

	case "kafka":
		kcfg := kafka.DefaultConfig()
		kcfg.Brokers = cfg.Brokers
		kcfg.GroupID = cfg.GroupID
		kcfg.Partitions = cfg.Partitions
		kcfg.ReplicationFactor = cfg.ReplicationFactor

		if err := kafka.EnsureTopics(ctx, kcfg, topic); err != nil {
			return nil, fmt.Errorf("ensure topics: %w", err)
		}
		producer, err := kafka.NewProducer(kcfg, logger)
		if err != nil {
			return nil, err
		}
		consumer, err := kafka.NewConsumer(kcfg, topic)
		if err != nil {
			producer.Close()
			return nil, err
		}
		return &transport{producer: producer, consumer: consumer}, nil

	case "amqp":
		producer, err := amqp.NewProducer(cfg.AMQPURL, logger)
		if err != nil {
			return nil, err
		}
		consumer, err := amqp.NewConsumer(cfg.AMQPURL, cfg.GroupID, cfg.Prefetch, topic)
		if err != nil {
			producer.Close()
			return nil, err
		}
		return &transport{producer: producer, consumer: consumer}, nil

	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
