package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/observability"
)

// Service is the read/build facade over the cell matrix. Reads merge the
// durable booked state with the hold manager's in-process overlay so callers
// see one consistent view.
type Service struct {
	store  Store
	holds  HoldOverlay
	logger observability.Logger
}

func NewService(store Store, holds HoldOverlay, logger observability.Logger) *Service {
	return &Service{store: store, holds: holds, logger: logger}
}

// Build provisions one cell per (active seat, leg). Any prior cells for the
// trip are replaced. The trip must already carry derived legs.
func (s *Service) Build(ctx context.Context, trip *domain.Trip, layout *domain.Layout) error {
	if len(trip.Legs) == 0 {
		return errors.Wrap(domain.ErrPrecondition, "trip has no legs")
	}
	seats := layout.ActiveSeats()
	if len(seats) == 0 {
		return errors.Wrap(domain.ErrPrecondition, "layout has no active seats")
	}
	if err := s.store.BuildInventory(ctx, trip, seats); err != nil {
		return err
	}
	s.logger.WithField("trip_id", trip.ID).Info("inventory built: ", len(seats)*len(trip.Legs), " cells")
	return nil
}

// ReadCells returns the current state of every seat's cells on the requested
// legs, hold overlay applied. No side effects.
func (s *Service) ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error) {
	cells, err := s.store.ReadCells(ctx, tripID, legs)
	if err != nil {
		return nil, err
	}
	overlay := s.holds.Snapshot(tripID)
	if len(overlay) == 0 {
		return cells, nil
	}
	for i := range cells {
		if ref, ok := overlay[domain.CellRef{SeatNo: cells[i].SeatNo, LegIndex: cells[i].LegIndex}]; ok {
			r := ref
			cells[i].HoldRef = &r
		}
	}
	return cells, nil
}
