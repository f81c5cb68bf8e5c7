package kafka

import (
	"testing"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert_RoundTrip(t *testing.T) {
	ts := time.UnixMilli(1700000000000).UTC()
	rec := echobus.Record{
		Topic:   "topic-1",
		Key:     []byte("id-1"),
		Value:   []byte(`{"id":"id-1","message":"hi"}`),
		Headers: model.Headers{"a": "1", "b": "2"},
		Time:    ts,
	}

	msg := toMessage(rec)
	assert.Equal(t, "topic-1", msg.Topic)
	assert.Equal(t, rec.Key, msg.Key)
	assert.Equal(t, rec.Value, msg.Value)
	assert.Len(t, msg.Headers, 2)

	msg.Partition = 1
	msg.Offset = 33
	back := fromMessage(msg)
	assert.Equal(t, 1, back.Partition)
	assert.Equal(t, int64(33), back.Offset)
	assert.Equal(t, rec.Headers, back.Headers)
	assert.Equal(t, ts, back.Time)

	meta := metadata(msg)
	assert.Equal(t, echobus.RecordMetadata{Topic: "topic-1", Partition: 1, Offset: 33, Timestamp: ts}, meta)
}

func TestFromMessage_NoHeaders(t *testing.T) {
	rec := fromMessage(kafkago.Message{Topic: "t"})
	assert.NotNil(t, rec.Headers)
	assert.Empty(t, rec.Headers)
}

func TestProducer_CompleteResolvesFutures(t *testing.T) {
	p := &Producer{logger: &echobus.NoopLogger{}}
	ok := echobus.NewSendFuture()
	ko := echobus.NewSendFuture()

	p.complete([]kafkago.Message{{Topic: "t", Partition: 1, Offset: 5, WriterData: ok}}, nil)
	p.complete([]kafkago.Message{{Topic: "t", WriterData: ko}, {Topic: "t"}}, assert.AnError)

	meta, err := ok.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Partition)
	assert.Equal(t, int64(5), meta.Offset)

	_, err = ko.Wait(t.Context())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTopicConfigs(t *testing.T) {
	cfg := DefaultConfig()
	configs := TopicConfigs(cfg, "topic-1", "topic-2")

	require.Len(t, configs, 4)
	assert.Equal(t, "topic-1", configs[0].Topic)
	assert.Equal(t, "topic-1.DLT", configs[1].Topic)
	assert.Equal(t, "topic-2.DLT", configs[3].Topic)
	for _, c := range configs {
		assert.Equal(t, 2, c.NumPartitions)
		assert.Equal(t, 1, c.ReplicationFactor)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Brokers = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Brokers = []string{""}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Partitions = 0
	assert.Error(t, cfg.Validate())
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(Config{GroupID: "g"}, "t")
	assert.Error(t, err)
	_, err = NewConsumer(Config{Brokers: []string{"localhost:9092"}}, "t")
	assert.Error(t, err)
	_, err = NewConsumer(DefaultConfig())
	assert.Error(t, err)
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(Config{}, nil)
	assert.Error(t, err)

	p, err := NewProducer(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.IsType(t, &kafkago.Hash{}, p.writer.Balancer)
	assert.True(t, p.writer.Async)
	require.NoError(t, p.Close())
}
