package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/changefeed"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/kafka"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

// Bridge feeds change events from the entity topics onto the local bus. Each
// process joins with its own consumer group so every instance sees every
// change.
type Bridge struct {
	consumer *kafka.InstrumentedConsumer
	bus      *changefeed.Bus
	logger   *logging.Logger
	group    string
}

// NewBridge creates a bridge. The consumer group gets a per-instance suffix.
func NewBridge(config *kafka.Config, bus *changefeed.Bus, m *metrics.Metrics, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}

	cfg := bridgeConsumerConfig(config, uuid.NewString()[:8])

	b := &Bridge{
		consumer: kafka.NewInstrumentedConsumer(kafka.NewConsumer(&cfg, logger.Logger), m, logger),
		bus:      bus,
		logger:   logger.WithComponent("changefeed-bridge"),
		group:    cfg.ConsumerGroup,
	}
	b.consumer.SubscribeAll(kafka.Topics.Batches, b.Handle)
	b.consumer.SubscribeAll(kafka.Topics.Assignments, b.Handle)
	return b
}

// bridgeConsumerConfig derives the per-instance consumer settings. A fresh
// group starts at the newest offset; history is covered by reseeding from the
// store, not by replaying the topics.
func bridgeConsumerConfig(config *kafka.Config, instance string) kafka.Config {
	cfg := *config
	cfg.ConsumerGroup = fmt.Sprintf("%s-changefeed-%s", config.ConsumerGroup, instance)
	cfg.StartOffset = kafka.StartOffsetLatest
	return cfg
}

// Handle converts one CloudEvent into a change event and publishes it.
// Undecodable events are logged and skipped so they do not block the topic.
func (b *Bridge) Handle(ctx context.Context, event *cloudevents.CloudEvent) error {
	change, err := changefeed.FromCloudEvent(event)
	if err != nil {
		b.logger.WithError(err).Warn("Skipping undecodable change event",
			"eventId", event.ID,
			"eventType", event.Type,
		)
		return nil
	}
	b.bus.Publish(change)
	return nil
}

// Group returns the consumer group this instance joined
func (b *Bridge) Group() string {
	return b.group
}

// Start consumes until ctx is cancelled
func (b *Bridge) Start(ctx context.Context) error {
	b.logger.Info("Starting changefeed bridge", "group", b.group)
	return b.consumer.Start(ctx)
}

// Close closes the underlying readers
func (b *Bridge) Close() error {
	return b.consumer.Close()
}
