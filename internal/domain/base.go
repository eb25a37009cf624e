package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripBase is a recurring virtual schedule template. Read-only master data;
// materialization never mutates it.
type TripBase struct {
	ID        uuid.UUID
	PatternID uuid.UUID
	Active    bool
	Weekdays  uint8 // bit 0 = Sunday .. bit 6 = Saturday
	ValidFrom *time.Time
	ValidTo   *time.Time
	Timezone  string
	VehicleID uuid.UUID
	LayoutID  uuid.UUID
	Stops     []BaseStop
}

// BaseStop carries the template's local HH:MM times for one stop. The first
// stop needs a departure, the last an arrival, intermediate stops both.
type BaseStop struct {
	Seq    int
	StopID uuid.UUID
	Arrive string // "HH:MM", empty when absent
	Depart string
}

// RunsOn reports whether the template's day-of-week bitset includes wd.
func (b *TripBase) RunsOn(wd time.Weekday) bool {
	return b.Weekdays&(1<<uint(wd)) != 0
}

// Layout is a vehicle seat plan. Disabled seats never enter inventory.
type Layout struct {
	ID    uuid.UUID
	Name  string
	Seats []LayoutSeat
}

type LayoutSeat struct {
	SeatNo   string
	Disabled bool
}

func (l *Layout) ActiveSeats() []string {
	seats := make([]string, 0, len(l.Seats))
	for _, s := range l.Seats {
		if !s.Disabled {
			seats = append(seats, s.SeatNo)
		}
	}
	return seats
}
