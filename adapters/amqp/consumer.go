package amqp

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/echobus"
	"github.com/streadway/amqp"
)

// Consumer implements echobus.Consumer with manual acknowledgements.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	deliveries chan amqp.Delivery

	mu      sync.Mutex
	unacked map[uint64]amqp.Delivery

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewConsumer dials url and consumes the queues named by topics.
// prefetch bounds the unacknowledged deliveries held by this consumer.
func NewConsumer(url, consumerTag string, prefetch int, topics ...string) (*Consumer, error) {
	if len(topics) == 0 {
		return nil, echobus.NewError(echobus.ErrCodeConfiguration, "at least one topic is required")
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
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			conn.Close()
			return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to set prefetch", err)
		}
	}

	c := &Consumer{
		conn:       conn,
		ch:         ch,
		deliveries: make(chan amqp.Delivery),
		unacked:    make(map[uint64]amqp.Delivery),
	}

	for i, topic := range topics {
		if err := declareQueue(ch, topic); err != nil {
			conn.Close()
			return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to declare queue "+topic, err)
		}
		tag := fmt.Sprintf("%s-%d", consumerTag, i)
		in, err := ch.Consume(topic, tag, false, false, false, false, nil)
		if err != nil {
			conn.Close()
			return nil, echobus.NewErrorWithCause(echobus.ErrCodeConfiguration, "failed to consume "+topic, err)
		}
		c.wg.Add(1)
		go c.forward(in)
	}

	go func() {
		c.wg.Wait()
		close(c.deliveries)
	}()

	return c, nil
}

func (c *Consumer) forward(in <-chan amqp.Delivery) {
	defer c.wg.Done()
	for d := range in {
		c.deliveries <- d
	}
}

// Fetch returns the next delivery of any consumed queue.
func (c *Consumer) Fetch(ctx context.Context) (echobus.Record, error) {
	select {
	case <-ctx.Done():
		return echobus.Record{}, ctx.Err()
	case d, ok := <-c.deliveries:
		if !ok {
			return echobus.Record{}, ErrClosed
		}
		c.mu.Lock()
		c.unacked[d.DeliveryTag] = d
		c.mu.Unlock()
		return fromDelivery(d), nil
	}
}

// Commit acknowledges the delivery behind rec.
func (c *Consumer) Commit(_ context.Context, rec echobus.Record) error {
	tag := uint64(rec.Offset)

	c.mu.Lock()
	d, ok := c.unacked[tag]
	delete(c.unacked, tag)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("amqp: no unacknowledged delivery with tag %d", tag)
	}
	return d.Ack(false)
}

// Close cancels the consumers and closes the connection.
// Unacknowledged deliveries are requeued by the broker.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		// Drain so forwarders blocked on send can exit.
		go func() {
			for range c.deliveries {
			}
		}()
	})
	return err
}
