// Package notify is the realtime announcement collaborator. All calls are
// fire-and-forget: failures are logged and never affect the state change
// they describe.
package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rideline/rideline/internal/adapters/rabbit"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/observability"
)

type Notifier interface {
	InventoryChanged(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int)
	HoldsReleased(ctx context.Context, tripID uuid.UUID, seatNos []string)
	TripMaterialized(ctx context.Context, baseID uuid.UUID, serviceDate string, tripID uuid.UUID)
	BookingConfirmed(ctx context.Context, bookingID uuid.UUID)
}

type RabbitNotifier struct {
	pub    *rabbit.Publisher
	logger observability.Logger
}

func NewRabbitNotifier(pub *rabbit.Publisher, logger observability.Logger) *RabbitNotifier {
	return &RabbitNotifier{pub: pub, logger: logger}
}

func (n *RabbitNotifier) publish(ctx context.Context, key string, body map[string]interface{}) {
	payload, _ := json.Marshal(body)
	msg := amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	}
	if err := n.pub.Publish(ctx, key, msg); err != nil {
		n.logger.WithField("event", key).Error("notify publish failed: ", err)
	}
}

func (n *RabbitNotifier) InventoryChanged(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) {
	n.publish(ctx, domain.EventInventoryChanged, map[string]interface{}{
		"trip_id": tripID, "seat_no": seatNo, "legs": legs,
	})
}

func (n *RabbitNotifier) HoldsReleased(ctx context.Context, tripID uuid.UUID, seatNos []string) {
	n.publish(ctx, domain.EventHoldsReleased, map[string]interface{}{
		"trip_id": tripID, "seat_nos": seatNos,
	})
}

func (n *RabbitNotifier) TripMaterialized(ctx context.Context, baseID uuid.UUID, serviceDate string, tripID uuid.UUID) {
	n.publish(ctx, domain.EventTripMaterialized, map[string]interface{}{
		"base_id": baseID, "service_date": serviceDate, "trip_id": tripID,
	})
}

func (n *RabbitNotifier) BookingConfirmed(ctx context.Context, bookingID uuid.UUID) {
	n.publish(ctx, domain.EventBookingConfirmed, map[string]interface{}{
		"booking_id": bookingID,
	})
}

// Nop satisfies Notifier where no broker is wired (tests, CLI tools).
type Nop struct{}

func (Nop) InventoryChanged(context.Context, uuid.UUID, string, []int)     {}
func (Nop) HoldsReleased(context.Context, uuid.UUID, []string)             {}
func (Nop) TripMaterialized(context.Context, uuid.UUID, string, uuid.UUID) {}
func (Nop) BookingConfirmed(context.Context, uuid.UUID)                    {}
