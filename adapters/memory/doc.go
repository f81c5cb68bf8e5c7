// Package memory provides in-process implementations of the echobus broker and
// repository interfaces.
//
// Broker is a partitioned, append-only log with consumer-group offsets. It keeps the
// guarantees the dispatcher relies on (per-key partition affinity, in-order delivery
// within a partition, redelivery of uncommitted records) without an external broker.
// MessageStore and DeadLetterStore keep rows in slices.
//
// Everything here is safe for concurrent use and is meant for tests, demos and
// single-process deployments (broker.kind=memory). Nothing survives a restart.
package memory
