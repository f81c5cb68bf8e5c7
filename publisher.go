package echobus

import (
	"context"
	"fmt"

	"github.com/coregx/echobus/model"
	"github.com/google/uuid"
)

// Publisher serializes envelopes and hands them to a Producer without waiting
// for the broker.
type Publisher struct {
	producer     Producer
	defaultTopic string
	logger       Logger
	metrics      *Metrics
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherProducer: broker producer
//   - WithPublisherLogger: logger instance
//
// Example:
//
//	publisher, err := echobus.NewPublisher(
//	    echobus.WithPublisherProducer(producer),
//	    echobus.WithPublisherTopic("echo"),
//	    echobus.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	// Validate required dependencies
	if p.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithPublisherProducer)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherProducer sets the broker producer.
func WithPublisherProducer(producer Producer) PublisherOption {
	return func(p *Publisher) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		p.producer = producer
		return nil
	}
}

// WithPublisherTopic sets the topic used for envelopes that carry none.
func WithPublisherTopic(topic string) PublisherOption {
	return func(p *Publisher) error {
		if topic == "" {
			return fmt.Errorf("topic cannot be empty")
		}
		p.defaultTopic = topic
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherMetrics enables publish counters.
func WithPublisherMetrics(metrics *Metrics) PublisherOption {
	return func(p *Publisher) error {
		p.metrics = metrics
		return nil
	}
}

// Publish sends env to its topic, or to the default topic when env.Topic is empty.
//
// The call returns as soon as the record is handed to the producer. The outcome is
// logged once the broker answers; callers may additionally Wait on the future or
// ignore it. Publish never retries: an invalid envelope or a broker rejection simply
// completes the future with an error.
func (p *Publisher) Publish(ctx context.Context, env model.Envelope) *SendFuture {
	if err := env.Validate(); err != nil {
		return FailedFuture(NewErrorWithCause(ErrCodeValidation, "invalid envelope", err))
	}

	topic := env.Topic
	if topic == "" {
		topic = p.defaultTopic
	}
	if topic == "" {
		return FailedFuture(NewError(ErrCodeValidation, fmt.Sprintf("no topic for envelope %s", env.ID)))
	}

	rec, err := EncodeEnvelope(topic, env)
	if err != nil {
		return FailedFuture(err)
	}
	rec.Headers[HeaderPublishID] = uuid.NewString()

	return p.producer.Send(ctx, rec).Then(func(meta RecordMetadata, err error) {
		p.metrics.published(topic, err)
		if err != nil {
			p.logger.Errorf("Failed to publish envelope: id=%s, topic=%s, error=%v", env.ID, topic, err)
			return
		}
		p.logger.Debugf("Published envelope: id=%s, topic=%s, partition=%d, offset=%d",
			env.ID, meta.Topic, meta.Partition, meta.Offset)
	})
}
