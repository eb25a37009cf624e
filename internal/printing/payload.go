// Package printing renders post-commit ticket payloads. Invoked only after
// a booking transaction has committed.
package printing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rideline/rideline/internal/domain"
)

type Generator interface {
	Generate(ctx context.Context, b *domain.Booking) ([]byte, error)
}

type ticketPayload struct {
	BookingID      string       `json:"booking_id"`
	TripID         string       `json:"trip_id"`
	OriginSeq      int          `json:"origin_seq"`
	DestinationSeq int          `json:"destination_seq"`
	Total          float64      `json:"total"`
	Passengers     []ticketLine `json:"passengers"`
	IssuedAt       time.Time    `json:"issued_at"`
}

type ticketLine struct {
	Name   string  `json:"name"`
	SeatNo string  `json:"seat_no"`
	Fare   float64 `json:"fare"`
}

// JSONGenerator is the default payload renderer.
type JSONGenerator struct{}

func (JSONGenerator) Generate(ctx context.Context, b *domain.Booking) ([]byte, error) {
	p := ticketPayload{
		BookingID:      b.ID.String(),
		TripID:         b.TripID.String(),
		OriginSeq:      b.OriginSeq,
		DestinationSeq: b.DestinationSeq,
		Total:          b.TotalAmount,
		IssuedAt:       time.Now().UTC(),
	}
	for _, pa := range b.Passengers {
		p.Passengers = append(p.Passengers, ticketLine{Name: pa.Name, SeatNo: pa.SeatNo, Fare: pa.Fare})
	}
	return json.Marshal(p)
}
