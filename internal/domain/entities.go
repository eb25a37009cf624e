package domain

import (
	"time"

	"github.com/google/uuid"
)

// TTLClass names a hold duration tier. Call sites always pass the class
// explicitly; durations come from config, never from inspecting raw seconds.
type TTLClass string

const (
	TTLShort TTLClass = "short"
	TTLLong  TTLClass = "long"
)

// SeatLegCell is the atomic unit of inventory: one seat on one leg of one
// trip. Booked is the durable attribute; HoldRef is filled in from the
// process-local hold overlay and is nil on reads that bypass it.
type SeatLegCell struct {
	TripID   uuid.UUID
	SeatNo   string
	LegIndex int
	Booked   bool
	HoldRef  *uuid.UUID
}

// Hold is a time-boxed, operator-owned reservation of one seat across a
// contiguous leg range.
type Hold struct {
	Ref        uuid.UUID
	TripID     uuid.UUID
	SeatNo     string
	Legs       []int
	Class      TTLClass
	ExpiresAt  time.Time
	OperatorID uuid.UUID
	BookingID  *uuid.UUID
}

const (
	BookingPending  = "PENDING"
	BookingPaid     = "PAID"
	BookingCanceled = "CANCELED"
	BookingRefunded = "REFUNDED"
)

type Booking struct {
	ID             uuid.UUID
	TripID         uuid.UUID
	OriginSeq      int
	DestinationSeq int
	Status         string
	TotalAmount    float64
	IdempotencyKey string
	Passengers     []Passenger
	CreatedAt      time.Time
}

type Passenger struct {
	BookingID uuid.UUID
	Name      string
	SeatNo    string
	Fare      float64
}

type Payment struct {
	BookingID uuid.UUID
	Amount    float64
	Method    string
	Status    string
}

const (
	TripScheduled = "SCHEDULED"
	TripCanceled  = "CANCELED"
)

// Trip is a concrete, bookable run. BaseID is nil for trips created by hand;
// when set, (BaseID, ServiceDate) is unique.
type Trip struct {
	ID          uuid.UUID
	BaseID      *uuid.UUID
	ServiceDate string // YYYY-MM-DD in the base timezone
	VehicleID   uuid.UUID
	LayoutID    uuid.UUID
	Status      string
	Stops       []TripStop
	Legs        []Leg
}

type TripStop struct {
	TripID   uuid.UUID
	Seq      int
	StopID   uuid.UUID
	ArriveAt *time.Time
	DepartAt *time.Time
}

// Leg is the segment between two consecutive stops. LegIndex equals FromSeq.
type Leg struct {
	TripID   uuid.UUID
	LegIndex int
	FromSeq  int
	ToSeq    int
}

type FareQuote struct {
	Total     float64
	Breakdown map[int]float64 // amount per leg index
}
