package domain

import (
	"time"

	"github.com/google/uuid"
)

// LegRange expands [originSeq, destinationSeq) into leg indexes. Returns nil
// for an empty or inverted range.
func LegRange(originSeq, destinationSeq int) []int {
	if originSeq < 0 || originSeq >= destinationSeq {
		return nil
	}
	legs := make([]int, 0, destinationSeq-originSeq)
	for i := originSeq; i < destinationSeq; i++ {
		legs = append(legs, i)
	}
	return legs
}

// Contiguous reports whether legs form an unbroken ascending run.
func Contiguous(legs []int) bool {
	if len(legs) == 0 {
		return false
	}
	for i := 1; i < len(legs); i++ {
		if legs[i] != legs[i-1]+1 {
			return false
		}
	}
	return true
}

func NewHold(tripID uuid.UUID, seatNo string, legs []int, class TTLClass, operatorID uuid.UUID, ttl time.Duration) *Hold {
	cp := make([]int, len(legs))
	copy(cp, legs)
	return &Hold{
		Ref:        uuid.New(),
		TripID:     tripID,
		SeatNo:     seatNo,
		Legs:       cp,
		Class:      class,
		ExpiresAt:  time.Now().Add(ttl),
		OperatorID: operatorID,
	}
}

func (h *Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}
