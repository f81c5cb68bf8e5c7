// Package amqp connects echobus to RabbitMQ with github.com/streadway/amqp.
//
// Every topic maps to a durable queue of the same name on the default exchange.
// The producer runs its channel in confirm mode and completes each SendFuture when the
// broker confirms the matching delivery tag. RabbitMQ has no partitions, so records are
// reported on partition 0 and the offset is the channel's publish or delivery sequence.
//
// The consumer disables auto-ack. Commit acknowledges the delivery, which is what lets
// the broker drop the message.
package amqp
