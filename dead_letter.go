package echobus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/coregx/echobus/model"
)

// DeadLetterSuffix is appended to a topic name to form its dead-letter topic.
const DeadLetterSuffix = ".DLT"

// DeadLetterTopic returns the dead-letter topic of topic.
func DeadLetterTopic(topic string) string {
	return topic + DeadLetterSuffix
}

// Failure describes the terminal failure of one delivery.
type Failure struct {
	Err            error
	Kind           ErrorKind
	Attempts       int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}

// DeadLetterSink receives deliveries that reached the DeadLettered state.
type DeadLetterSink interface {
	Send(ctx context.Context, rec Record, failure Failure) *SendFuture
}

// DeadLetterPublisher republishes failed records to "<topic>.DLT" and optionally
// keeps an audit row per dead-lettered delivery.
type DeadLetterPublisher struct {
	producer            Producer
	repo                DeadLetterRepository
	notificationService NotificationService
	logger              Logger
	now                 func() time.Time
}

// DeadLetterOption configures a DeadLetterPublisher.
type DeadLetterOption func(*DeadLetterPublisher) error

// NewDeadLetterPublisher creates a new DeadLetterPublisher with the provided options.
//
// Required options:
//   - WithDeadLetterProducer: broker producer for the dead-letter topics
//   - WithDeadLetterLogger: logger instance
//
// Optional:
//   - WithDeadLetterRepository: audit table (default: none)
//   - WithDeadLetterNotifications: notification service (default: NoOp)
func NewDeadLetterPublisher(opts ...DeadLetterOption) (*DeadLetterPublisher, error) {
	d := &DeadLetterPublisher{
		notificationService: &NoOpNotificationService{},
		now:                 time.Now,
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dead-letter option", err)
		}
	}

	if d.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithDeadLetterProducer)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithDeadLetterLogger)")
	}

	return d, nil
}

// WithDeadLetterProducer sets the broker producer.
func WithDeadLetterProducer(producer Producer) DeadLetterOption {
	return func(d *DeadLetterPublisher) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		d.producer = producer
		return nil
	}
}

// WithDeadLetterRepository enables the audit table.
func WithDeadLetterRepository(repo DeadLetterRepository) DeadLetterOption {
	return func(d *DeadLetterPublisher) error {
		if repo == nil {
			return fmt.Errorf("dead-letter repository cannot be nil")
		}
		d.repo = repo
		return nil
	}
}

// WithDeadLetterNotifications sets the service told about every dead-lettered envelope.
func WithDeadLetterNotifications(service NotificationService) DeadLetterOption {
	return func(d *DeadLetterPublisher) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		d.notificationService = service
		return nil
	}
}

// WithDeadLetterLogger sets the logger instance.
func WithDeadLetterLogger(logger Logger) DeadLetterOption {
	return func(d *DeadLetterPublisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// Send republishes rec to its dead-letter topic.
//
// Key, value and headers are kept as delivered; the failure is described in the
// dlt-* headers. When an audit repository is configured the row is saved first.
// A failed save is logged and does not prevent the publish.
func (d *DeadLetterPublisher) Send(ctx context.Context, rec Record, failure Failure) *SendFuture {
	out := d.record(rec, failure)

	dl := model.NewDeadLetter(model.Envelope{
		ID:        string(rec.Key),
		Message:   string(rec.Value),
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Headers:   rec.Headers,
		Timestamp: rec.Time,
	}, out.Topic, model.DeadLetterFailure{
		Kind:           failure.Kind.String(),
		Type:           out.Headers[HeaderDLTExceptionType],
		Message:        out.Headers[HeaderDLTExceptionMessage],
		Attempts:       failure.Attempts,
		FirstAttemptAt: failure.FirstAttemptAt,
		LastAttemptAt:  failure.LastAttemptAt,
	})

	if d.repo != nil {
		saved, err := d.repo.Save(ctx, dl)
		if err != nil {
			d.logger.Errorf("Failed to save dead letter audit row: id=%s, topic=%s, error=%v", dl.EnvelopeID, dl.Topic, err)
		} else {
			dl = saved
		}
	}

	return d.producer.Send(ctx, out).Then(func(meta RecordMetadata, err error) {
		if err != nil {
			d.logger.Errorf("Failed to publish dead letter: id=%s, dlt=%s, error=%v", dl.EnvelopeID, out.Topic, err)
			return
		}
		d.logger.Debugf("Dead letter published: id=%s, dlt=%s, partition=%d, offset=%d",
			dl.EnvelopeID, meta.Topic, meta.Partition, meta.Offset)
		if nerr := d.notificationService.NotifyDeadLettered(context.WithoutCancel(ctx), dl); nerr != nil {
			d.logger.Warnf("Failed to send dead-letter notification: %v", nerr)
		}
	})
}

// record builds the dead-letter record for rec.
func (d *DeadLetterPublisher) record(rec Record, failure Failure) Record {
	headers := rec.Headers.Clone()
	headers[HeaderDLTExceptionKind] = failure.Kind.String()
	headers[HeaderDLTOriginalTopic] = rec.Topic
	headers[HeaderDLTOriginalPart] = strconv.Itoa(rec.Partition)
	headers[HeaderDLTOriginalOffset] = strconv.FormatInt(rec.Offset, 10)
	headers[HeaderDLTOriginalTime] = strconv.FormatInt(rec.Time.UnixMilli(), 10)
	headers[HeaderDLTAttempts] = strconv.Itoa(failure.Attempts)
	if failure.Err != nil {
		headers[HeaderDLTExceptionType] = errorType(failure.Err)
		headers[HeaderDLTExceptionMessage] = failure.Err.Error()
	}

	return Record{
		Topic:     DeadLetterTopic(rec.Topic),
		Partition: -1,
		Offset:    -1,
		Key:       rec.Key,
		Value:     rec.Value,
		Headers:   headers,
		Time:      d.now(),
	}
}
