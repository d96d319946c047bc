package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Start offsets for a consumer group that has no committed offset yet
const (
	StartOffsetEarliest = kafka.FirstOffset
	StartOffsetLatest   = kafka.LastOffset
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack

	// Consumer settings
	MinBytes      int
	MaxBytes      int
	MaxWait       time.Duration
	CommitTimeout time.Duration
	// StartOffset applies only while the group has no committed offset
	StartOffset int64
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "production-service",
		ClientID:      "production-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes:      1,
		MaxBytes:      10e6,
		MaxWait:       500 * time.Millisecond,
		CommitTimeout: 5 * time.Second,
		StartOffset:   StartOffsetEarliest,
	}
}

// Topics contains the production Kafka topic names. Batches and assignments
// each get their own channel so observers can subscribe per entity type.
var Topics = struct {
	Batches             string
	Assignments         string
	WorkerNotifications string
}{
	Batches:             "production.batches",
	Assignments:         "production.assignments",
	WorkerNotifications: "production.worker-notifications",
}

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// DefaultTopicConfigs returns default configurations for production topics
func DefaultTopicConfigs() []TopicConfig {
	week := int64(7 * 24 * 60 * 60 * 1000)
	return []TopicConfig{
		{Name: Topics.Batches, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.Assignments, Partitions: 6, ReplicationFactor: 3, RetentionMs: week},
		{Name: Topics.WorkerNotifications, Partitions: 3, ReplicationFactor: 3, RetentionMs: week},
	}
}
