package kafka

import (
	"context"

	"github.com/coregx/echobus"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer implements echobus.Producer on an asynchronous kafka.Writer.
type Producer struct {
	writer *kafkago.Writer
	logger echobus.Logger
}

// NewProducer creates a producer for cfg.Brokers.
func NewProducer(cfg Config, logger echobus.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, echobus.NewError(echobus.ErrCodeConfiguration, "at least one broker is required")
	}
	if logger == nil {
		logger = &echobus.NoopLogger{}
	}

	p := &Producer{logger: logger}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion:   p.complete,
	}
	return p, nil
}

// Send queues rec on the writer. The future completes once the batch holding rec
// is acknowledged or rejected.
func (p *Producer) Send(ctx context.Context, rec echobus.Record) *echobus.SendFuture {
	future := echobus.NewSendFuture()

	msg := toMessage(rec)
	msg.WriterData = future

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		future.Complete(echobus.RecordMetadata{}, echobus.NewErrorWithCause(echobus.ErrCodePublish, "failed to queue record", err))
	}
	return future
}

// complete is the writer's Completion callback.
func (p *Producer) complete(messages []kafkago.Message, err error) {
	for _, msg := range messages {
		future, ok := msg.WriterData.(*echobus.SendFuture)
		if !ok {
			p.logger.Warnf("Kafka completion for untracked message on topic %s", msg.Topic)
			continue
		}
		if err != nil {
			future.Complete(echobus.RecordMetadata{}, echobus.NewErrorWithCause(echobus.ErrCodePublish, "broker rejected record", err))
			continue
		}
		future.Complete(metadata(msg), nil)
	}
}

// Close flushes pending records and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
