package echobus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/adapters/memory"
	"github.com/coregx/echobus/model"
	"github.com/coregx/echobus/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoService_SendEcho(t *testing.T) {
	p := newPipeline(t, retry.DefaultExponential())

	resp, err := p.echo.SendEcho(context.Background(), echobus.EchoRequest{ID: "id-1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, echobus.EchoResponse{ID: "id-1", Message: "hello"}, resp)

	eventually(t, func() bool { return len(p.broker.Records(echobus.DefaultEchoTopic)) == 1 }, "published to the echo topic")
	rec := p.broker.Records(echobus.DefaultEchoTopic)[0]
	assert.Equal(t, "id-1", string(rec.Key))
}

func TestEchoService_SendEchoValidates(t *testing.T) {
	p := newPipeline(t, retry.DefaultExponential())

	for _, req := range []echobus.EchoRequest{
		{Message: "hello"},
		{ID: "1", Message: "ab\xffcd"},
	} {
		_, err := p.echo.SendEcho(context.Background(), req)
		var libErr *echobus.Error
		require.ErrorAs(t, err, &libErr)
		assert.Equal(t, echobus.ErrCodeValidation, libErr.Code)
	}

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, p.broker.Records(echobus.DefaultEchoTopic))
}

func TestEchoService_Handle(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		expected    echobus.ErrorKind
		wantErr     bool
		description string
	}{
		{name: "Plain text", message: "hello", wantErr: false, description: "Persisted"},
		{name: "Empty text", message: "", wantErr: false, description: "Persisted as is"},
		{name: "Contains BAD", message: "not BAD at all", wantErr: false, description: "Only an exact match fails"},
		{name: "BAD", message: "BAD", expected: echobus.KindNonRetryable, wantErr: true},
		{name: "bad", message: "bad", expected: echobus.KindNonRetryable, wantErr: true},
		{name: "RETRY", message: "RETRY", expected: echobus.KindRetryable, wantErr: true},
		{name: "Retry", message: "Retry", expected: echobus.KindRetryable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, retry.DefaultExponential())
			env := model.NewEnvelope("id-1", tt.message, "topic-7")

			err := p.echo.Handle(context.Background(), env)
			if !tt.wantErr {
				require.NoError(t, err, tt.description)
				rows, ferr := p.store.Find(context.Background(), echobus.MessageFilter{})
				require.NoError(t, ferr)
				require.Len(t, rows, 1)
				assert.Equal(t, "topic-7", rows[0].Topic, "stored under the origin topic")
				assert.Equal(t, tt.message, rows[0].Message)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.expected, echobus.Classify(err))
			assert.Equal(t, 0, p.store.Len())
		})
	}
}

// failingStore fails every save.
type failingStore struct {
	*memory.MessageStore
}

func (failingStore) Save(context.Context, model.StoredMessage) (model.StoredMessage, error) {
	return model.StoredMessage{}, errors.New("connection refused")
}

func TestEchoService_StoreFailureIsRetryable(t *testing.T) {
	publisher, err := echobus.NewPublisher(
		echobus.WithPublisherProducer(memory.NewBroker(1).Producer()),
		echobus.WithPublisherLogger(&echobus.NoopLogger{}),
	)
	require.NoError(t, err)

	svc, err := echobus.NewEchoService(
		echobus.WithEchoPublisher(publisher),
		echobus.WithEchoStore(failingStore{memory.NewMessageStore()}),
		echobus.WithEchoLogger(&echobus.NoopLogger{}),
	)
	require.NoError(t, err)

	err = svc.Handle(context.Background(), model.NewEnvelope("id-1", "hello", "topic-1"))
	assert.Equal(t, echobus.KindRetryable, echobus.Classify(err))
	assert.ErrorContains(t, err, "connection refused")
}

func TestEchoService_ListMessages(t *testing.T) {
	p := newPipeline(t, retry.DefaultExponential())
	ctx := context.Background()

	for _, env := range []model.Envelope{
		model.NewEnvelope("1", "Hello World", "topic-1"),
		model.NewEnvelope("2", "hello there", "topic-2"),
		model.NewEnvelope("3", "other", "topic-1"),
	} {
		require.NoError(t, p.echo.Handle(ctx, env))
	}

	all, err := p.echo.ListMessages(ctx, echobus.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byTopic, err := p.echo.ListMessages(ctx, echobus.MessageFilter{Topic: "topic-1"})
	require.NoError(t, err)
	assert.Len(t, byTopic, 2)

	both, err := p.echo.ListMessages(ctx, echobus.MessageFilter{Topic: "topic-1", Text: "HELLO"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "Hello World", both[0].Message)
}

func TestNewEchoService_Validation(t *testing.T) {
	publisher, err := echobus.NewPublisher(
		echobus.WithPublisherProducer(memory.NewBroker(1).Producer()),
		echobus.WithPublisherLogger(&echobus.NoopLogger{}),
	)
	require.NoError(t, err)
	store := memory.NewMessageStore()
	logger := &echobus.NoopLogger{}

	tests := []struct {
		name string
		opts []echobus.EchoOption
	}{
		{name: "Missing publisher", opts: []echobus.EchoOption{echobus.WithEchoStore(store), echobus.WithEchoLogger(logger)}},
		{name: "Missing store", opts: []echobus.EchoOption{echobus.WithEchoPublisher(publisher), echobus.WithEchoLogger(logger)}},
		{name: "Missing logger", opts: []echobus.EchoOption{echobus.WithEchoPublisher(publisher), echobus.WithEchoStore(store)}},
		{name: "Empty topic", opts: []echobus.EchoOption{echobus.WithEchoTopic("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := echobus.NewEchoService(tt.opts...)
			assert.Error(t, err)
		})
	}

	svc, err := echobus.NewEchoService(
		echobus.WithEchoPublisher(publisher),
		echobus.WithEchoStore(store),
		echobus.WithEchoLogger(logger),
		echobus.WithEchoTopic("custom"),
	)
	require.NoError(t, err)
	assert.Equal(t, "custom", svc.Topic())
}
