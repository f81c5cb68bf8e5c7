package echobus

import (
	"fmt"
	"time"

	"github.com/coregx/echobus/retry"
)

// Option is a function that configures a Dispatcher.
//
// Example:
//
//	dispatcher, err := echobus.NewDispatcher(
//	    echobus.WithConsumer(consumer),
//	    echobus.WithRegistry(registry),
//	    echobus.WithDeadLetterSink(dlt),
//	    echobus.WithLogger(logger),
//	    echobus.WithRetryPolicy(retry.DefaultFixed()), // optional
//	)
type Option func(*Dispatcher) error

// Sleeper blocks the calling partition worker for d.
type Sleeper func(d time.Duration)

// WithConsumer sets the broker consumer the dispatcher fetches from.
//
// Required by Run. Dispatch can be used without a consumer.
func WithConsumer(consumer Consumer) Option {
	return func(d *Dispatcher) error {
		if consumer == nil {
			return fmt.Errorf("consumer cannot be nil")
		}
		d.consumer = consumer
		return nil
	}
}

// WithRegistry sets the topic to handler bindings.
//
// This is a required option for NewDispatcher.
func WithRegistry(registry *Registry) Option {
	return func(d *Dispatcher) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		d.registry = registry
		return nil
	}
}

// WithDeadLetterSink sets where terminally failed records are routed.
//
// This is a required option for NewDispatcher.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(d *Dispatcher) error {
		if sink == nil {
			return fmt.Errorf("dead-letter sink cannot be nil")
		}
		d.deadLetters = sink
		return nil
	}
}

// WithLogger sets the logger instance for the dispatcher.
// Logger is required and must not be nil.
//
// This is a required option for NewDispatcher.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithRetryPolicy sets the retry policy. The default is retry.DefaultExponential():
// 1s → 2s → 4s → 8s, then dead-letter.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(d *Dispatcher) error {
		if policy == nil {
			return fmt.Errorf("retry policy cannot be nil")
		}
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("invalid retry policy %s: %w", policy, err)
		}
		d.policy = policy
		return nil
	}
}

// WithNotifications sets an optional notification service told about every scheduled retry.
func WithNotifications(service NotificationService) Option {
	return func(d *Dispatcher) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		d.notificationService = service
		return nil
	}
}

// WithMetrics enables delivery metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(d *Dispatcher) error {
		d.metrics = metrics
		return nil
	}
}

// WithSleeper replaces time.Sleep between attempts. Tests use it to record delays.
func WithSleeper(sleep Sleeper) Option {
	return func(d *Dispatcher) error {
		if sleep == nil {
			return fmt.Errorf("sleeper cannot be nil")
		}
		d.sleep = sleep
		return nil
	}
}

// WithClock replaces time.Now for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		d.now = now
		return nil
	}
}

// WithDeadLetterTimeout bounds how long a worker waits for the dead-letter publish
// to be acknowledged. Default is 30s. The offset is committed either way.
func WithDeadLetterTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout <= 0 {
			return fmt.Errorf("dead-letter timeout must be > 0, got %v", timeout)
		}
		d.deadLetterTimeout = timeout
		return nil
	}
}

// WithPartitionBuffer sets how many fetched records may queue up per partition
// before fetching pauses. Default is 64.
func WithPartitionBuffer(size int) Option {
	return func(d *Dispatcher) error {
		if size <= 0 {
			return fmt.Errorf("partition buffer must be > 0, got %d", size)
		}
		d.partitionBuffer = size
		return nil
	}
}
