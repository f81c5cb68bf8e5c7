package echobus

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/echobus/model"
)

// Record is one broker record as seen by producers and consumers.
// Partition and Offset are -1 until the broker has assigned them.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   model.Headers
	Time      time.Time
}

// RecordMetadata identifies where the broker stored a record.
type RecordMetadata struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// Producer hands records to a broker.
//
// Send must not block on the broker round-trip: it returns a SendFuture that is
// completed from the producer's own goroutine once the broker acknowledges or rejects
// the record. Records sent with the same key to the same topic must be stored in send order.
type Producer interface {
	Send(ctx context.Context, rec Record) *SendFuture
	Close() error
}

// Consumer delivers records of its subscribed topics.
//
// Fetch blocks until a record is available or ctx ends. Commit marks rec and every
// earlier record of the same partition as processed. Implementations must tolerate
// Commit being called from goroutines other than the one calling Fetch.
type Consumer interface {
	Fetch(ctx context.Context) (Record, error)
	Commit(ctx context.Context, rec Record) error
	Close() error
}

// SendFuture is the eventual outcome of one Producer.Send.
// It completes exactly once and is safe for concurrent use.
type SendFuture struct {
	once sync.Once
	done chan struct{}
	meta RecordMetadata
	err  error
}

// NewSendFuture creates a pending future. Producers complete it with Complete.
func NewSendFuture() *SendFuture {
	return &SendFuture{done: make(chan struct{})}
}

// FailedFuture returns a future that has already completed with err.
func FailedFuture(err error) *SendFuture {
	f := NewSendFuture()
	f.Complete(RecordMetadata{}, err)
	return f
}

// Complete resolves the future. Only the first call has an effect.
func (f *SendFuture) Complete(meta RecordMetadata, err error) {
	f.once.Do(func() {
		f.meta = meta
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has completed.
func (f *SendFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx ends.
func (f *SendFuture) Wait(ctx context.Context) (RecordMetadata, error) {
	select {
	case <-f.done:
		return f.meta, f.err
	case <-ctx.Done():
		return RecordMetadata{}, ctx.Err()
	}
}

// Then runs fn on a separate goroutine once the future completes, and returns f.
func (f *SendFuture) Then(fn func(RecordMetadata, error)) *SendFuture {
	go func() {
		<-f.done
		fn(f.meta, f.err)
	}()
	return f
}
