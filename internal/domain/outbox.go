package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxNew       = "NEW"
	OutboxPublished = "PUBLISHED"

	EventInventoryChanged = "inventory.changed"
	EventHoldsReleased    = "holds.released"
	EventTripMaterialized = "trip.materialized"
	EventBookingConfirmed = "booking.confirmed"
)

// OutboxEvent is written in the same transaction as the state change it
// announces and drained to the broker by the outbox publisher.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	Status        string
	DedupeKey     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// CellRef addresses one cell within a known trip. Used as the key of the
// hold manager's overlay snapshot.
type CellRef struct {
	SeatNo   string
	LegIndex int
}
