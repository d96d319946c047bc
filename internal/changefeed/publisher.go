package changefeed

import (
	"context"
	"fmt"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
)

// BusProducer publishes outbox events straight onto the in-process bus. It is
// the outbox producer when no Kafka cluster is configured.
type BusProducer struct {
	bus *Bus
}

// NewBusProducer creates a producer for the bus
func NewBusProducer(bus *Bus) *BusProducer {
	return &BusProducer{bus: bus}
}

// PublishEvent implements outbox.EventProducer. The topic is implied by the
// change record's entity.
func (p *BusProducer) PublishEvent(_ context.Context, topic string, event *cloudevents.CloudEvent) error {
	change, err := FromCloudEvent(event)
	if err != nil {
		return fmt.Errorf("decode change event from %s: %w", topic, err)
	}
	p.bus.Publish(change)
	return nil
}
