package echobus

import (
	"context"
	"time"

	"github.com/coregx/echobus/model"
)

// NotificationService defines an optional interface for sending notifications
// about pipeline events (scheduled retries, dead-lettered envelopes).
//
// Implementations might send emails, Slack messages, SMS, or log to monitoring systems.
type NotificationService interface {
	// NotifyRetryScheduled is called when a failed attempt will be retried after delay.
	// This is informational and happens before any dead-lettering.
	NotifyRetryScheduled(ctx context.Context, env model.Envelope, attempt int, delay time.Duration, err error) error

	// NotifyDeadLettered is called once an envelope has been routed to its dead-letter topic.
	NotifyDeadLettered(ctx context.Context, dl model.DeadLetter) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyRetryScheduled does nothing.
func (n *NoOpNotificationService) NotifyRetryScheduled(_ context.Context, _ model.Envelope, _ int, _ time.Duration, _ error) error {
	return nil
}

// NotifyDeadLettered does nothing.
func (n *NoOpNotificationService) NotifyDeadLettered(_ context.Context, _ model.DeadLetter) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyRetryScheduled logs the scheduled retry.
func (n *LoggingNotificationService) NotifyRetryScheduled(_ context.Context, env model.Envelope, attempt int, delay time.Duration, err error) error {
	n.logger.Warnf("Retry scheduled: id=%s, topic=%s, attempt=%d, delay=%v, error=%v",
		env.ID, env.Topic, attempt, delay, err)
	return nil
}

// NotifyDeadLettered logs the dead-lettered envelope.
func (n *LoggingNotificationService) NotifyDeadLettered(_ context.Context, dl model.DeadLetter) error {
	n.logger.Warnf("Envelope dead-lettered: id=%s, topic=%s, dlt=%s, attempts=%d, kind=%s, error=%s",
		dl.EnvelopeID, dl.Topic, dl.DeadLetterTopic, dl.Attempts, dl.ErrorKind, dl.LastError)
	return nil
}
