package echobus_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/memory"
	"github.com/coregx/echobus/model"
	"github.com/coregx/echobus/retry"
	"github.com/stretchr/testify/require"
)

// captureLogger records every formatted line by level.
type captureLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{lines: make(map[string][]string)}
}

func (l *captureLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[level] = append(l.lines[level], fmt.Sprintf(format, args...))
}

func (l *captureLogger) Debugf(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *captureLogger) Infof(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *captureLogger) Warnf(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *captureLogger) Errorf(format string, args ...interface{}) { l.add("error", format, args...) }
func (l *captureLogger) Info(message string)                       { l.add("info", "%s", message) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines[level])
}

// sleepRecorder replaces time.Sleep and remembers the requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// pipeline wires the echo service, publisher, dispatcher and dead-letter sink
// on a memory broker.
type pipeline struct {
	broker      *memory.Broker
	store       *memory.MessageStore
	deadLetters *memory.DeadLetterStore
	echo        *echobus.EchoService
	publisher   *echobus.Publisher
	dispatcher  *echobus.Dispatcher
	sleeper     *sleepRecorder
	logger      *captureLogger
}

func newPipeline(t *testing.T, policy retry.Policy, extra ...echobus.Option) *pipeline {
	t.Helper()

	p := &pipeline{
		broker:      memory.NewBroker(2),
		store:       memory.NewMessageStore(),
		deadLetters: memory.NewDeadLetterStore(),
		sleeper:     &sleepRecorder{},
		logger:      newCaptureLogger(),
	}
	producer := p.broker.Producer()

	var err error
	p.publisher, err = echobus.NewPublisher(
		echobus.WithPublisherProducer(producer),
		echobus.WithPublisherLogger(p.logger),
	)
	require.NoError(t, err)

	p.echo, err = echobus.NewEchoService(
		echobus.WithEchoPublisher(p.publisher),
		echobus.WithEchoStore(p.store),
		echobus.WithEchoLogger(p.logger),
	)
	require.NoError(t, err)

	registry := echobus.NewRegistry()
	require.NoError(t, registry.Bind(p.echo.Topic(), p.echo))

	sink, err := echobus.NewDeadLetterPublisher(
		echobus.WithDeadLetterProducer(producer),
		echobus.WithDeadLetterRepository(p.deadLetters),
		echobus.WithDeadLetterLogger(p.logger),
	)
	require.NoError(t, err)

	opts := []echobus.Option{
		echobus.WithConsumer(p.broker.Consumer("echo-group", registry.Topics()...)),
		echobus.WithRegistry(registry),
		echobus.WithDeadLetterSink(sink),
		echobus.WithLogger(p.logger),
		echobus.WithRetryPolicy(policy),
		echobus.WithSleeper(p.sleeper.sleep),
		echobus.WithDeadLetterTimeout(time.Second),
	}
	p.dispatcher, err = echobus.NewDispatcher(append(opts, extra...)...)
	require.NoError(t, err)

	return p
}

// publish sends an envelope on the echo topic and waits for the broker.
func (p *pipeline) publish(t *testing.T, id, message string) echobus.Record {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	meta, err := p.publisher.Publish(ctx, model.NewEnvelope(id, message, p.echo.Topic())).Wait(ctx)
	require.NoError(t, err)

	for _, rec := range p.broker.Records(meta.Topic) {
		if rec.Partition == meta.Partition && rec.Offset == meta.Offset {
			return rec
		}
	}
	t.Fatalf("record %s/%d@%d not found", meta.Topic, meta.Partition, meta.Offset)
	return echobus.Record{}
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond, msg)
}

// fixedTwoRetries allows three deliveries without real delays.
func fixedTwoRetries() retry.Policy {
	return retry.Fixed{Delay: time.Millisecond, MaxAttempts: 3}
}
