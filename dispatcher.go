package echobus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/echobus/model"
	"github.com/coregx/echobus/retry"
)

// DeliveryState is the state of one delivery inside the dispatcher.
//
//	Received → Processing → Succeeded
//	                      → RetryScheduled → Processing
//	                      → DeadLettered
//
// Succeeded and DeadLettered are terminal; both advance the committed offset.
type DeliveryState int

const (
	StateReceived DeliveryState = iota
	StateProcessing
	StateRetryScheduled
	StateSucceeded
	StateDeadLettered
)

// String returns the state name used in logs and metric labels.
func (s DeliveryState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateProcessing:
		return "processing"
	case StateRetryScheduled:
		return "retry_scheduled"
	case StateSucceeded:
		return "succeeded"
	case StateDeadLettered:
		return "dead_lettered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the delivery is finished.
func (s DeliveryState) Terminal() bool {
	return s == StateSucceeded || s == StateDeadLettered
}

// Outcome is the terminal result of Dispatch.
type Outcome struct {
	State    DeliveryState
	Attempts int           // Handler invocations, including the first
	Err      error         // Last error; nil on success
	Elapsed  time.Duration // First attempt to terminal state
}

// commitTimeout bounds a single offset commit.
const commitTimeout = 10 * time.Second

// Dispatcher consumes records, invokes the handler bound to their topic, and routes
// failures into the retry loop or to the dead-letter sink.
//
// Key responsibilities:
//   - Decode records into envelopes
//   - Retry retryable and unclassified failures as the retry policy allows
//   - Dead-letter non-retryable failures and exhausted retries
//   - Commit each offset only after its delivery reached a terminal state
//
// Records of one topic-partition are processed strictly in order by a dedicated worker
// goroutine; different partitions proceed independently. A retry sleep therefore stalls
// only its own partition.
type Dispatcher struct {
	consumer            Consumer
	registry            *Registry
	deadLetters         DeadLetterSink
	policy              retry.Policy
	logger              Logger
	notificationService NotificationService
	metrics             *Metrics
	sleep               Sleeper
	now                 func() time.Time
	deadLetterTimeout   time.Duration
	partitionBuffer     int
}

// NewDispatcher creates a new dispatcher with the provided options.
//
// Required options:
//   - WithRegistry: topic to handler bindings
//   - WithDeadLetterSink: destination of terminally failed records
//   - WithLogger: logger instance
//
// Optional options:
//   - WithConsumer: broker consumer (required by Run)
//   - WithRetryPolicy: retry policy (default: retry.DefaultExponential())
//   - WithNotifications, WithMetrics, WithSleeper, WithClock,
//     WithDeadLetterTimeout, WithPartitionBuffer
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	// Default configuration
	d := &Dispatcher{
		policy:              retry.DefaultExponential(),
		notificationService: &NoOpNotificationService{},
		sleep:               time.Sleep,
		now:                 time.Now,
		deadLetterTimeout:   30 * time.Second,
		partitionBuffer:     64,
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	// Validate required dependencies
	if d.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithRegistry)")
	}
	if d.deadLetters == nil {
		return nil, NewError(ErrCodeConfiguration, "DeadLetterSink is required (use WithDeadLetterSink)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return d, nil
}

// RetrySchedule returns a human-readable description of the active retry policy.
func (d *Dispatcher) RetrySchedule() string {
	return retry.Schedule(d.policy)
}

// Dispatch drives one delivered record to a terminal state and returns the outcome.
//
// Cancellation of ctx is not observed once Dispatch has started: handler calls,
// retry sleeps and the dead-letter publish all run to completion. Dispatch never
// commits; Run does that after Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := d.now()

	env, err := DecodeEnvelope(rec)
	if err != nil {
		return d.deadLetter(ctx, rec, Failure{
			Err:            AsNonRetryable(string(rec.Key), err),
			Kind:           KindNonRetryable,
			Attempts:       1,
			FirstAttemptAt: start,
			LastAttemptAt:  start,
		}, start)
	}

	handler, ok := d.registry.Lookup(rec.Topic)
	if !ok {
		return d.deadLetter(ctx, rec, Failure{
			Err:            NewNonRetryableError(env.ID, fmt.Sprintf("no handler bound to topic %s", rec.Topic)),
			Kind:           KindNonRetryable,
			Attempts:       1,
			FirstAttemptAt: start,
			LastAttemptAt:  start,
		}, start)
	}

	backoff := d.policy.Start()
	for attempt := 1; ; attempt++ {
		attemptAt := d.now()
		err := d.invoke(ctx, handler, env)
		if err == nil {
			elapsed := d.now().Sub(start)
			d.metrics.delivered(rec.Topic, StateSucceeded, elapsed)
			d.logger.Debugf("Processed envelope: id=%s, topic=%s, partition=%d, offset=%d, attempts=%d",
				env.ID, rec.Topic, rec.Partition, rec.Offset, attempt)
			return Outcome{State: StateSucceeded, Attempts: attempt, Elapsed: elapsed}
		}

		kind := Classify(err)
		if kind.Retryable() {
			if delay, ok := backoff.Next(); ok {
				d.retryScheduled(ctx, env, attempt, delay, err)
				d.sleep(delay)
				continue
			}
		}

		return d.deadLetter(ctx, rec, Failure{
			Err:            err,
			Kind:           kind,
			Attempts:       attempt,
			FirstAttemptAt: start,
			LastAttemptAt:  attemptAt,
		}, start)
	}
}

// invoke calls the handler, turning a panic into an unclassified error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, env model.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, env)
}

func (d *Dispatcher) retryScheduled(ctx context.Context, env model.Envelope, attempt int, delay time.Duration, err error) {
	d.metrics.retried(env.Topic)
	d.logger.Warnf("Attempt %d failed for envelope %s (topic=%s, partition=%d, offset=%d), retrying in %v: %v",
		attempt, env.ID, env.Topic, env.Partition, env.Offset, delay, err)

	if nerr := d.notificationService.NotifyRetryScheduled(ctx, env, attempt, delay, err); nerr != nil {
		d.logger.Warnf("Failed to send retry notification: %v", nerr)
	}
}

// deadLetter publishes rec to its dead-letter topic and waits for the acknowledgement.
// A failed publish is logged; the delivery is terminal regardless.
func (d *Dispatcher) deadLetter(ctx context.Context, rec Record, failure Failure, start time.Time) Outcome {
	d.logger.Errorf("Dead-lettering record %s/%d@%d after %d attempt(s) (%s): %v",
		rec.Topic, rec.Partition, rec.Offset, failure.Attempts, failure.Kind, failure.Err)

	waitCtx, cancel := context.WithTimeout(ctx, d.deadLetterTimeout)
	defer cancel()

	if _, err := d.deadLetters.Send(ctx, rec, failure).Wait(waitCtx); err != nil {
		d.metrics.deadLetterFailed(rec.Topic)
		d.logger.Errorf("Dead-letter publish failed for %s/%d@%d, committing anyway: %v",
			rec.Topic, rec.Partition, rec.Offset, err)
	}

	elapsed := d.now().Sub(start)
	d.metrics.delivered(rec.Topic, StateDeadLettered, elapsed)
	return Outcome{State: StateDeadLettered, Attempts: failure.Attempts, Err: failure.Err, Elapsed: elapsed}
}

type partitionKey struct {
	topic     string
	partition int
}

// Run fetches records until ctx is canceled and dispatches them on per-partition workers.
//
// A full partition buffer blocks fetching, which is the only backpressure point.
// On cancellation Run stops fetching, lets every worker finish its in-flight delivery,
// and returns nil. Records fetched but not yet started are left uncommitted and will be
// redelivered. A fetch error other than cancellation stops Run and is returned.
//
// This method blocks and should typically be run in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.consumer == nil {
		return NewError(ErrCodeConfiguration, "Consumer is required to run (use WithConsumer)")
	}

	workers := make(map[partitionKey]chan Record)
	var wg sync.WaitGroup
	defer func() {
		for _, ch := range workers {
			close(ch)
		}
		wg.Wait()
		d.logger.Info("Dispatcher stopped")
	}()

	d.logger.Infof("Dispatcher started: topics=%v, policy=%s", d.registry.Topics(), d.policy)

	for {
		rec, err := d.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch failed: %w", err)
		}

		key := partitionKey{topic: rec.Topic, partition: rec.Partition}
		ch, ok := workers[key]
		if !ok {
			ch = make(chan Record, d.partitionBuffer)
			workers[key] = ch
			wg.Add(1)
			go d.work(ctx, key, ch, &wg)
		}

		select {
		case ch <- rec:
		case <-ctx.Done():
			return nil
		}
	}
}

// work processes the records of one partition in order.
func (d *Dispatcher) work(ctx context.Context, key partitionKey, records <-chan Record, wg *sync.WaitGroup) {
	defer wg.Done()
	d.metrics.workerStarted()
	defer d.metrics.workerStopped()

	d.logger.Debugf("Partition worker started: topic=%s, partition=%d", key.topic, key.partition)

	for rec := range records {
		if ctx.Err() != nil {
			return
		}

		outcome := d.Dispatch(ctx, rec)

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		if err := d.consumer.Commit(commitCtx, rec); err != nil {
			d.logger.Errorf("Failed to commit %s/%d@%d (%s): %v",
				rec.Topic, rec.Partition, rec.Offset, outcome.State, err)
		}
		cancel()
	}
}
