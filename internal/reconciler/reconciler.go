package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/repository"
	"github.com/jwalitptl/notify-engine/pkg/errors"
	"github.com/jwalitptl/notify-engine/pkg/logger"
	"github.com/jwalitptl/notify-engine/pkg/messaging"
	"github.com/jwalitptl/notify-engine/pkg/metrics"
)

// Event is the normalized shape of a provider delivery callback.
type Event struct {
	ExternalID string          `json:"external_id"`
	EventType  string          `json:"event_type"`
	Timestamp  time.Time       `json:"timestamp"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Normalizer translates one provider's webhook payload into Events.
// A single payload may carry several status updates.
type Normalizer interface {
	Normalize(payload []byte) ([]Event, error)
}

// Reconciler consumes asynchronous delivery callbacks and updates
// delivery status independent of the send path. It is stateless;
// idempotency comes from the store's forward-only transition rule.
type Reconciler struct {
	queue       repository.QueueRepository
	broker      messaging.Broker
	normalizers map[string]Normalizer
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

func New(queue repository.QueueRepository, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics) *Reconciler {
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{
		queue:       queue,
		broker:      broker,
		normalizers: make(map[string]Normalizer),
		logger:      log,
		metrics:     m,
	}
}

// Register attaches a payload normalizer for a provider key.
func (r *Reconciler) Register(providerKey string, n Normalizer) {
	r.normalizers[strings.ToLower(providerKey)] = n
}

// Ingest normalizes a raw provider payload and applies every event in
// it. Unknown providers are an error; unknown event types inside a
// payload are skipped.
func (r *Reconciler) Ingest(ctx context.Context, providerKey string, payload []byte) error {
	normalizer, ok := r.normalizers[strings.ToLower(providerKey)]
	if !ok {
		return errors.NewNotFound("webhook provider", nil)
	}

	events, err := normalizer.Normalize(payload)
	if err != nil {
		return errors.NewValidation("unparseable webhook payload", err)
	}

	for _, event := range events {
		if err := r.Apply(ctx, event); err != nil {
			// Not-found externalIds are surfaced; a race with the send
			// path commit is possible and the provider will redeliver.
			return err
		}
	}
	return nil
}

// Apply maps one event to a delivery status change. Replays and
// out-of-order events are absorbed by the store's ordering rule.
func (r *Reconciler) Apply(ctx context.Context, event Event) error {
	status, ok := mapEventType(event.EventType)
	if !ok {
		r.logger.Debug("skipping unknown delivery event type", "event_type", event.EventType)
		return nil
	}
	if event.ExternalID == "" {
		return errors.NewValidation("delivery event missing external id", nil)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if err := r.queue.UpdateDeliveryStatus(ctx, event.ExternalID, status, ts); err != nil {
		return fmt.Errorf("failed to apply delivery event: %w", err)
	}

	if r.metrics != nil {
		r.metrics.DeliveryEvents.WithLabelValues(status.String()).Inc()
	}
	if err := r.broker.Publish(ctx, messaging.ChannelDelivery, map[string]interface{}{
		"external_id": event.ExternalID,
		"status":      status.String(),
		"at":          ts,
	}); err != nil {
		r.logger.Error(err, "failed to publish delivery event", "external_id", event.ExternalID)
	}
	r.logger.Info("delivery event applied",
		"external_id", event.ExternalID,
		"status", status.String(),
	)
	return nil
}

// mapEventType folds the provider event vocabulary into the delivery
// status axis.
func mapEventType(eventType string) (model.DeliveryStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "delivered", "delivery", "message.delivered":
		return model.DeliveryDelivered, true
	case "read", "opened", "message.read":
		return model.DeliveryRead, true
	case "failed", "undelivered", "bounce", "message.failed":
		return model.DeliveryFailed, true
	}
	return "", false
}
