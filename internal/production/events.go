package production

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Bus subjects.
const (
	SubjectStockEntry  = "production.stock_entry"
	SubjectTransitions = "production.transitions"
)

// StockSink receives the stock entries emitted by packing transitions.
type StockSink interface {
	PublishStockEntry(ctx context.Context, entry StockEntry) error
}

// Publisher sends raw payloads to a subject (NATS in production).
type Publisher interface {
	Publish(ctx context.Context, subject string, msg []byte) error
}

// ChangeNotifier is told when shipments or payments changed so derived
// projections can be refreshed.
type ChangeNotifier interface {
	ShipmentsChanged(ctx context.Context) error
}

// Observer counts transition outcomes.
type Observer interface {
	TransitionSucceeded(transition string)
	TransitionRejected(transition, class string)
}

// TransitionEvent is published after every committed transition.
type TransitionEvent struct {
	Transition string      `json:"transition"`
	OrderID    int64       `json:"order_id"`
	ShipmentID int64       `json:"shipment_id,omitempty"`
	Status     OrderStatus `json:"status"`
	Actor      string      `json:"actor"`
	At         time.Time   `json:"at"`
}

// PublishingStockSink publishes stock entries as JSON on a bus subject.
type PublishingStockSink struct {
	pub     Publisher
	subject string
}

// NewPublishingStockSink constructs a sink. An empty subject uses SubjectStockEntry.
func NewPublishingStockSink(pub Publisher, subject string) *PublishingStockSink {
	if subject == "" {
		subject = SubjectStockEntry
	}
	return &PublishingStockSink{pub: pub, subject: subject}
}

// PublishStockEntry implements StockSink.
func (s *PublishingStockSink) PublishStockEntry(ctx context.Context, entry StockEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode stock entry: %w", err)
	}
	return s.pub.Publish(ctx, s.subject, body)
}
