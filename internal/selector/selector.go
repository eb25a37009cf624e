// Package selector picks seats that are simultaneously free across a leg
// range. Output order is deterministic so identical inventory state always
// yields identical assignments.
package selector

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
)

// CellSource is the merged inventory view (booked state plus hold overlay).
type CellSource interface {
	ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error)
}

type Selector struct {
	cells CellSource
}

func New(cells CellSource) *Selector {
	return &Selector{cells: cells}
}

// Select returns count seat numbers free on every requested leg, ascending
// lexicographic. When fewer qualify, a ShortfallError carries the exact
// availability instead of a silent partial list.
func (s *Selector) Select(ctx context.Context, tripID uuid.UUID, legs []int, count int) ([]string, error) {
	if count <= 0 || !domain.Contiguous(legs) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "need a positive count and a contiguous leg range")
	}

	cells, err := s.cells.ReadCells(ctx, tripID, legs)
	if err != nil {
		return nil, err
	}

	free := make(map[string]int)
	for _, c := range cells {
		if !c.Booked && c.HoldRef == nil {
			free[c.SeatNo]++
		}
	}

	var qualifying []string
	for seat, n := range free {
		if n == len(legs) {
			qualifying = append(qualifying, seat)
		}
	}
	sort.Strings(qualifying)

	if len(qualifying) < count {
		return nil, &domain.ShortfallError{Requested: count, Available: len(qualifying)}
	}
	return qualifying[:count], nil
}
