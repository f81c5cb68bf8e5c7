package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/coregx/echobus"
	kafkago "github.com/segmentio/kafka-go"
)

// TopicConfigs returns the topic definitions for topics and their dead-letter topics.
func TopicConfigs(cfg Config, topics ...string) []kafkago.TopicConfig {
	configs := make([]kafkago.TopicConfig, 0, 2*len(topics))
	for _, topic := range topics {
		for _, name := range []string{topic, echobus.DeadLetterTopic(topic)} {
			configs = append(configs, kafkago.TopicConfig{
				Topic:             name,
				NumPartitions:     cfg.Partitions,
				ReplicationFactor: cfg.ReplicationFactor,
			})
		}
	}
	return configs
}

// EnsureTopics creates topics and their dead-letter topics on the cluster controller.
// Topics that already exist are left untouched.
func EnsureTopics(ctx context.Context, cfg Config, topics ...string) error {
	if err := cfg.Validate(); err != nil {
		return echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "invalid kafka configuration", err)
	}

	conn, err := kafkago.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}

	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrl, err := kafkago.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", addr, err)
	}
	defer ctrl.Close()

	for _, tc := range TopicConfigs(cfg, topics...) {
		if err := ctrl.CreateTopics(tc); err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", tc.Topic, err)
		}
	}
	return nil
}
