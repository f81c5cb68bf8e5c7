package kafka

import (
	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
	kafkago "github.com/segmentio/kafka-go"
)

func toMessage(rec echobus.Record) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	return kafkago.Message{
		Topic:   rec.Topic,
		Key:     rec.Key,
		Value:   rec.Value,
		Headers: headers,
		Time:    rec.Time,
	}
}

func fromMessage(msg kafkago.Message) echobus.Record {
	headers := make(model.Headers, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return echobus.Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Time:      msg.Time,
	}
}

func metadata(msg kafkago.Message) echobus.RecordMetadata {
	return echobus.RecordMetadata{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
