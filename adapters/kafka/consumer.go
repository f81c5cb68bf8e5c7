package kafka

import (
	"context"

	"github.com/coregx/echobus"
	kafkago "github.com/segmentio/kafka-go"
)

// Consumer implements echobus.Consumer on a consumer-group kafka.Reader.
type Consumer struct {
	reader *kafkago.Reader
}

// NewConsumer joins cfg.GroupID and subscribes to topics.
func NewConsumer(cfg Config, topics ...string) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, echobus.NewError(echobus.ErrCodeConfiguration, "at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, echobus.NewError(echobus.ErrCodeConfiguration, "consumer group is required")
	}
	if len(topics) == 0 {
		return nil, echobus.NewError(echobus.ErrCodeConfiguration, "at least one topic is required")
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader}, nil
}

// Fetch returns the next record without committing it.
func (c *Consumer) Fetch(ctx context.Context) (echobus.Record, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return echobus.Record{}, err
	}
	return fromMessage(msg), nil
}

// Commit commits rec's offset for the group.
func (c *Consumer) Commit(ctx context.Context, rec echobus.Record) error {
	return c.reader.CommitMessages(ctx, kafkago.Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	})
}

// Close leaves the group and closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
