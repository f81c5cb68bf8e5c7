package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/coregx/echobus"
)

// ErrClosed is returned by Fetch and Send after Close.
var ErrClosed = errors.New("memory: closed")

// DefaultPartitions is the partition count of topics created implicitly.
const DefaultPartitions = 2

// Broker is an in-process partitioned log.
// Topics are created on first use with the broker's partition count.
type Broker struct {
	mu         sync.Mutex
	partitions int
	logs       map[string][][]echobus.Record
	committed  map[offsetKey]int64
	failures   map[string]error
	changed    chan struct{}
	now        func() time.Time
}

type offsetKey struct {
	group     string
	topic     string
	partition int
}

// NewBroker creates a broker whose topics have the given partition count.
// A non-positive count falls back to DefaultPartitions.
func NewBroker(partitions int) *Broker {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &Broker{
		partitions: partitions,
		logs:       make(map[string][][]echobus.Record),
		committed:  make(map[offsetKey]int64),
		failures:   make(map[string]error),
		changed:    make(chan struct{}),
		now:        time.Now,
	}
}

// Partitions returns the partition count of every topic.
func (b *Broker) Partitions() int {
	return b.partitions
}

// PartitionFor returns the partition a key is stored on. Records without a key go to partition 0.
func (b *Broker) PartitionFor(key []byte) int {
	if len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(b.partitions))
}

// FailTopic makes every later send to topic fail with err. A nil err clears the failure.
func (b *Broker) FailTopic(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.failures, topic)
		return
	}
	b.failures[topic] = err
}

// Records returns a copy of every record stored on topic, partition by partition.
func (b *Broker) Records(topic string) []echobus.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []echobus.Record
	for _, partition := range b.logs[topic] {
		out = append(out, partition...)
	}
	return out
}

// Committed returns the next offset group will read from topic/partition.
func (b *Broker) Committed(group, topic string, partition int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.committed[offsetKey{group: group, topic: topic, partition: partition}]
}

// Producer returns a producer writing to the broker.
func (b *Broker) Producer() *Producer {
	return &Producer{broker: b}
}

// Consumer returns a consumer of topics in the given consumer group.
// Reading starts at the offsets the group last committed.
func (b *Broker) Consumer(group string, topics ...string) *Consumer {
	sorted := append([]string(nil), topics...)
	sort.Strings(sorted)

	return &Consumer{
		broker:    b,
		group:     group,
		topics:    sorted,
		positions: make(map[offsetKey]int64),
		closed:    make(chan struct{}),
	}
}

// store appends rec and wakes up waiting consumers. Caller must not hold b.mu.
func (b *Broker) store(rec echobus.Record) (echobus.RecordMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failures[rec.Topic]; err != nil {
		return echobus.RecordMetadata{}, err
	}

	log := b.topicLog(rec.Topic)
	partition := b.PartitionFor(rec.Key)

	rec.Partition = partition
	rec.Offset = int64(len(log[partition]))
	rec.Headers = rec.Headers.Clone()
	if rec.Time.IsZero() {
		rec.Time = b.now()
	}
	log[partition] = append(log[partition], rec)

	close(b.changed)
	b.changed = make(chan struct{})

	return echobus.RecordMetadata{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Time,
	}, nil
}

// topicLog returns the partitions of topic, creating them if needed. Caller holds b.mu.
func (b *Broker) topicLog(topic string) [][]echobus.Record {
	log, ok := b.logs[topic]
	if !ok {
		log = make([][]echobus.Record, b.partitions)
		b.logs[topic] = log
	}
	return log
}

// Producer implements echobus.Producer on a Broker.
type Producer struct {
	broker *Broker
	mu     sync.RWMutex
	closed bool
}

// Send appends rec before returning, so records sent one after another keep their order.
// The future is completed on a separate goroutine like a network producer would.
func (p *Producer) Send(_ context.Context, rec echobus.Record) *echobus.SendFuture {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return echobus.FailedFuture(ErrClosed)
	}

	meta, err := p.broker.store(rec)
	future := echobus.NewSendFuture()
	go future.Complete(meta, err)
	return future
}

// Close stops the producer. Later sends fail with ErrClosed.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// Consumer implements echobus.Consumer on a Broker.
type Consumer struct {
	broker *Broker
	group  string
	topics []string

	mu        sync.Mutex
	positions map[offsetKey]int64
	cursor    int

	closeOnce sync.Once
	closed    chan struct{}
}

// Fetch returns the next unread record, blocking until one is appended or ctx ends.
// Partitions are served round-robin so one busy partition cannot starve the others.
func (c *Consumer) Fetch(ctx context.Context) (echobus.Record, error) {
	for {
		select {
		case <-c.closed:
			return echobus.Record{}, ErrClosed
		default:
		}

		rec, ok, changed := c.next()
		if ok {
			return rec, nil
		}

		select {
		case <-changed:
		case <-c.closed:
			return echobus.Record{}, ErrClosed
		case <-ctx.Done():
			return echobus.Record{}, ctx.Err()
		}
	}
}

// next returns the next record if any, or the channel signalling the next append.
func (c *Consumer) next() (echobus.Record, bool, <-chan struct{}) {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	slots := len(c.topics) * b.partitions
	for i := 0; i < slots; i++ {
		slot := (c.cursor + i) % slots
		topic := c.topics[slot/b.partitions]
		key := offsetKey{group: c.group, topic: topic, partition: slot % b.partitions}

		pos, ok := c.positions[key]
		if !ok {
			pos = b.committed[key]
		}

		log := b.logs[topic]
		if log == nil || pos >= int64(len(log[key.partition])) {
			continue
		}

		c.positions[key] = pos + 1
		c.cursor = slot + 1
		rec := log[key.partition][pos]
		rec.Headers = rec.Headers.Clone()
		return rec, true, nil
	}

	return echobus.Record{}, false, b.changed
}

// Commit records rec.Offset+1 as the group's position on rec's partition.
// Commits never move a position backwards.
func (c *Consumer) Commit(_ context.Context, rec echobus.Record) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	key := offsetKey{group: c.group, topic: rec.Topic, partition: rec.Partition}
	if next := rec.Offset + 1; next > b.committed[key] {
		b.committed[key] = next
	}
	return nil
}

// Close unblocks pending fetches. Later fetches fail with ErrClosed.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
