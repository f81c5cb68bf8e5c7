package amqp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coregx/echobus"
	"github.com/streadway/amqp"
)

// ErrClosed is returned once the connection or channel has been closed.
var ErrClosed = errors.New("amqp: closed")

// Producer implements echobus.Producer on a confirm-mode channel.
type Producer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger echobus.Logger

	mu       sync.Mutex
	declared map[string]bool
	seq      uint64
	pending  map[uint64]pendingSend
	closed   bool

	confirms chan amqp.Confirmation
	done     chan struct{}
}

type pendingSend struct {
	future *echobus.SendFuture
	topic  string
	at     time.Time
}

// NewProducer dials url and opens a channel in confirm mode.
func NewProducer(url string, logger echobus.Logger) (*Producer, error) {
	if logger == nil {
		logger = &echobus.NoopLogger{}
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to connect to broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to open channel", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to enable publisher confirms", err)
	}

	p := &Producer{
		conn:     conn,
		ch:       ch,
		logger:   logger,
		declared: make(map[string]bool),
		pending:  make(map[uint64]pendingSend),
		done:     make(chan struct{}),
	}
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 256))
	go p.confirmLoop()

	return p, nil
}

// Send publishes rec to the queue named rec.Topic, declaring the queue on first use.
func (p *Producer) Send(ctx context.Context, rec echobus.Record) *echobus.SendFuture {
	if err := ctx.Err(); err != nil {
		return echobus.FailedFuture(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return echobus.FailedFuture(ErrClosed)
	}
	if !p.declared[rec.Topic] {
		if err := declareQueue(p.ch, rec.Topic); err != nil {
			return echobus.FailedFuture(echobus.NewErrorWithCause(echobus.ErrCodePublish, "failed to declare queue "+rec.Topic, err))
		}
		p.declared[rec.Topic] = true
	}

	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	if err := p.ch.Publish("", rec.Topic, false, false, toPublishing(rec)); err != nil {
		return echobus.FailedFuture(echobus.NewErrorWithCause(echobus.ErrCodePublish, "failed to publish record", err))
	}

	// Confirm-mode delivery tags start at 1 and count every publish on the channel.
	p.seq++
	future := echobus.NewSendFuture()
	p.pending[p.seq] = pendingSend{future: future, topic: rec.Topic, at: rec.Time}
	return future
}

func (p *Producer) confirmLoop() {
	defer close(p.done)

	for c := range p.confirms {
		p.mu.Lock()
		send, ok := p.pending[c.DeliveryTag]
		delete(p.pending, c.DeliveryTag)
		p.mu.Unlock()

		if !ok {
			p.logger.Warnf("AMQP confirm for unknown delivery tag %d", c.DeliveryTag)
			continue
		}
		if !c.Ack {
			send.future.Complete(echobus.RecordMetadata{}, echobus.NewError(echobus.ErrCodePublish, "broker nacked record"))
			continue
		}
		send.future.Complete(echobus.RecordMetadata{
			Topic:     send.topic,
			Partition: 0,
			Offset:    int64(c.DeliveryTag),
			Timestamp: send.at,
		}, nil)
	}

	// The channel is gone; nothing left pending will ever be confirmed.
	p.mu.Lock()
	for tag, send := range p.pending {
		send.future.Complete(echobus.RecordMetadata{}, ErrClosed)
		delete(p.pending, tag)
	}
	p.mu.Unlock()
}

// Close closes the channel and the connection. Unconfirmed sends fail with ErrClosed.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	chErr := p.ch.Close()
	<-p.done
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}
