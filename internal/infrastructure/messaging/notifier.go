package messaging

import (
	"context"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/cloudevents"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/kafka"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/outbox"
)

// WorkerNotification is the data of a production.worker.notified event
type WorkerNotification struct {
	WorkerID string         `json:"workerId"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// EventNotifier implements domain.Notifier by publishing a CloudEvent to the
// worker notification topic
type EventNotifier struct {
	producer outbox.EventProducer
	factory  *cloudevents.EventFactory
}

// NewEventNotifier creates a notifier on top of producer
func NewEventNotifier(producer outbox.EventProducer, factory *cloudevents.EventFactory) *EventNotifier {
	if factory == nil {
		factory = cloudevents.NewEventFactory(cloudevents.SourceProduction)
	}
	return &EventNotifier{producer: producer, factory: factory}
}

// NotifyWorker publishes the notification keyed by worker
func (n *EventNotifier) NotifyWorker(ctx context.Context, workerID, message string, payload map[string]any) error {
	event := n.factory.CreateEvent(ctx, cloudevents.WorkerNotified, "worker/"+workerID, WorkerNotification{
		WorkerID: workerID,
		Message:  message,
		Payload:  payload,
	})
	return n.producer.PublishEvent(ctx, kafka.Topics.WorkerNotifications, event)
}

// LogNotifier implements domain.Notifier by logging. Used when no broker is
// configured.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogNotifier{logger: logger.WithComponent("notifier")}
}

// NotifyWorker logs the message
func (n *LogNotifier) NotifyWorker(ctx context.Context, workerID, message string, payload map[string]any) error {
	n.logger.WithContext(ctx).Info("Worker notified",
		"workerId", workerID,
		"message", message,
		"payload", payload,
	)
	return nil
}
