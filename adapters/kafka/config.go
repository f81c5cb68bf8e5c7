package kafka

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the connection and topic settings shared by producer, consumer and admin.
type Config struct {
	Brokers           []string      // Bootstrap brokers (host:port)
	GroupID           string        // Consumer group
	Partitions        int           // Partitions of created topics
	ReplicationFactor int           // Replicas of created topics
	BatchTimeout      time.Duration // Max time a record waits in the writer batch
}

// DefaultConfig returns a single local broker with 2 partitions and 1 replica.
func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "echo-group",
		Partitions:        2,
		ReplicationFactor: 1,
		BatchTimeout:      10 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.GroupID, validation.Required),
		validation.Field(&c.Partitions, validation.Required, validation.Min(1)),
		validation.Field(&c.ReplicationFactor, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchTimeout, validation.Min(time.Duration(0))),
	)
}
