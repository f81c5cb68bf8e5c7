package echobus

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/echobus/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultEchoTopic is the topic echo requests are published to unless configured otherwise.
const DefaultEchoTopic = "topic-1"

// Message texts that make Handle fail on purpose, matched case-insensitively.
const (
	SimulateNonRetryable = "BAD"
	SimulateRetryable    = "RETRY"
)

// EchoRequest is the body of an echo call.
type EchoRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Validate checks the request carries an id and a UTF-8 message.
func (r EchoRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Message, model.ValidUTF8),
	)
}

// EchoResponse echoes the accepted request back to the caller.
type EchoResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// EchoService is the business side of the pipeline: it publishes echo requests
// and, as the handler bound to the echo topic, persists consumed envelopes.
type EchoService struct {
	publisher *Publisher
	store     MessageRepository
	topic     string
	logger    Logger
}

// EchoOption configures an EchoService.
type EchoOption func(*EchoService) error

// NewEchoService creates a new EchoService with the provided options.
//
// Required options:
//   - WithEchoPublisher: publisher for echo requests
//   - WithEchoStore: message repository
//   - WithEchoLogger: logger instance
//
// Optional:
//   - WithEchoTopic: target topic (default: DefaultEchoTopic)
func NewEchoService(opts ...EchoOption) (*EchoService, error) {
	s := &EchoService{topic: DefaultEchoTopic}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply echo option", err)
		}
	}

	if s.publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "Publisher is required (use WithEchoPublisher)")
	}
	if s.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithEchoStore)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithEchoLogger)")
	}

	return s, nil
}

// WithEchoPublisher sets the publisher.
func WithEchoPublisher(publisher *Publisher) EchoOption {
	return func(s *EchoService) error {
		if publisher == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		s.publisher = publisher
		return nil
	}
}

// WithEchoStore sets the message repository.
func WithEchoStore(store MessageRepository) EchoOption {
	return func(s *EchoService) error {
		if store == nil {
			return fmt.Errorf("message repository cannot be nil")
		}
		s.store = store
		return nil
	}
}

// WithEchoTopic sets the topic echo requests are published to.
func WithEchoTopic(topic string) EchoOption {
	return func(s *EchoService) error {
		if topic == "" {
			return fmt.Errorf("topic cannot be empty")
		}
		s.topic = topic
		return nil
	}
}

// WithEchoLogger sets the logger instance.
func WithEchoLogger(logger Logger) EchoOption {
	return func(s *EchoService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// Topic returns the topic echo requests are published to.
func (s *EchoService) Topic() string {
	return s.topic
}

// SendEcho publishes req and returns without waiting for the broker.
// Only an invalid request is reported; broker failures surface in the logs.
func (s *EchoService) SendEcho(ctx context.Context, req EchoRequest) (EchoResponse, error) {
	if err := req.Validate(); err != nil {
		return EchoResponse{}, NewErrorWithCause(ErrCodeValidation, "invalid echo request", err)
	}

	s.logger.Debugf("Processing echo request: id=%s", req.ID)
	s.publisher.Publish(ctx, model.NewEnvelope(req.ID, req.Message, s.topic))

	return EchoResponse{ID: req.ID, Message: req.Message}, nil
}

// Handle implements Handler for the echo topic.
//
// "BAD" fails permanently and "RETRY" fails transiently (both case-insensitive);
// any other message is stored under the topic it was consumed from.
func (s *EchoService) Handle(ctx context.Context, env model.Envelope) error {
	s.logger.Debugf("Processing consumed envelope: id=%s, topic=%s, partition=%d, offset=%d, message=%q, headers=%v",
		env.ID, env.Topic, env.Partition, env.Offset, env.Message, env.Headers)

	switch {
	case strings.EqualFold(env.Message, SimulateNonRetryable):
		s.logger.Warnf("Simulating non-retryable error for envelope id=%s", env.ID)
		return NewNonRetryableError(env.ID, "invalid echo message content: "+env.Message)
	case strings.EqualFold(env.Message, SimulateRetryable):
		s.logger.Warnf("Simulating retryable error for envelope id=%s", env.ID)
		return NewRetryableError(env.ID, "simulated transient failure")
	}

	saved, err := s.store.Save(ctx, model.NewStoredMessage(env.Topic, env.Message))
	if err != nil {
		return AsRetryable(env.ID, err)
	}

	s.logger.Infof("Saved message: id=%d, topic=%s, message=%q", saved.ID, saved.Topic, saved.Message)
	return nil
}

// ListMessages returns stored messages matching the optional topic and text filters.
func (s *EchoService) ListMessages(ctx context.Context, filter MessageFilter) ([]model.StoredMessage, error) {
	return s.store.Find(ctx, filter)
}
