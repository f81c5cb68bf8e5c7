// Package kafka connects echobus to Apache Kafka with github.com/segmentio/kafka-go.
//
// Producer wraps an asynchronous kafka.Writer with a hash balancer, so records with the
// same key land on the same partition. Each send is correlated with its future through
// kafka.Message.WriterData and completed from the writer's Completion callback.
//
// Consumer wraps a consumer-group kafka.Reader. Offsets are committed explicitly with
// CommitMessages once the dispatcher is done with a record; auto-commit is never used.
//
// EnsureTopics creates a topic and its dead-letter topic with the configured partition
// count and replication factor.
package kafka
