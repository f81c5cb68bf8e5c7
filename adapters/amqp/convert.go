package amqp

import (
	"fmt"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
	"github.com/streadway/amqp"
)

func toPublishing(rec echobus.Record) amqp.Publishing {
	headers := make(amqp.Table, len(rec.Headers))
	for k, v := range rec.Headers {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(rec.Key),
		Timestamp:    rec.Time,
		Body:         rec.Value,
	}
}

func fromDelivery(d amqp.Delivery) echobus.Record {
	headers := make(model.Headers, len(d.Headers))
	for k, v := range d.Headers {
		switch s := v.(type) {
		case string:
			headers[k] = s
		case []byte:
			headers[k] = string(s)
		default:
			headers[k] = fmt.Sprint(v)
		}
	}

	var key []byte
	if d.MessageId != "" {
		key = []byte(d.MessageId)
	}

	return echobus.Record{
		Topic:     d.RoutingKey,
		Partition: 0,
		Offset:    int64(d.DeliveryTag),
		Key:       key,
		Value:     d.Body,
		Headers:   headers,
		Time:      d.Timestamp,
	}
}
