// Package echobus is a retryable message-processing pipeline with classified failure routing.
//
// Envelopes are published to a topic through a broker Producer, consumed through a
// Consumer and handed to the Handler bound to their topic. A failed handler call is
// classified by its error: retryable and unclassified failures are redelivered on the
// configured retry.Policy, non-retryable failures and exhausted budgets are republished
// to the dead-letter topic ("<topic>.DLT") with diagnostic headers. Every offset is
// committed only after its record reached a terminal state.
//
// # Quick Start
//
//	broker := memory.NewBroker(memory.DefaultPartitions)
//	logger := echobus.NewSlogLogger(slog.Default())
//
//	publisher, _ := echobus.NewPublisher(
//	    echobus.WithPublisherProducer(broker.Producer()),
//	    echobus.WithPublisherLogger(logger),
//	)
//
//	service, _ := echobus.NewEchoService(
//	    echobus.WithEchoPublisher(publisher),
//	    echobus.WithEchoStore(memory.NewMessageStore()),
//	    echobus.WithEchoLogger(logger),
//	)
//
//	registry := echobus.NewRegistry()
//	_ = registry.Bind(service.Topic(), service)
//
//	sink, _ := echobus.NewDeadLetterPublisher(
//	    echobus.WithDeadLetterProducer(broker.Producer()),
//	    echobus.WithDeadLetterLogger(logger),
//	)
//
//	dispatcher, _ := echobus.NewDispatcher(
//	    echobus.WithConsumer(broker.Consumer("echo-group", service.Topic())),
//	    echobus.WithRegistry(registry),
//	    echobus.WithDeadLetterSink(sink),
//	    echobus.WithRetryPolicy(retry.DefaultFixed()),
//	    echobus.WithLogger(logger),
//	)
//	go dispatcher.Run(ctx)
//
//	_, _ = service.SendEcho(ctx, echobus.EchoRequest{ID: "1", Message: "hello"})
//
// # Error Classification
//
// Handlers return *ProcessingError values built with NewRetryableError, NewNonRetryableError,
// AsRetryable or AsNonRetryable. Any other error is KindUnclassified and is retried.
// A handler panic is recovered and treated as unclassified.
//
// # Retry Policies
//
// retry.Exponential (default 1s, 2s, 4s, 8s with a 10s elapsed budget, 5 attempts) and
// retry.Fixed (default 2s between 3 attempts). Schedule renders the plan for logs.
//
// # Adapters
//
//   - adapters/kafka: segmentio/kafka-go writer, consumer-group reader and topic setup
//   - adapters/amqp: RabbitMQ queues with publisher confirms and manual acks
//   - adapters/memory: partitioned in-process broker and stores for tests and demos
//   - adapters/relica: MySQL, PostgreSQL and SQLite repositories; apply Migrate first
//
// The cmd/echo-server binary wires these into an HTTP service.
package echobus
