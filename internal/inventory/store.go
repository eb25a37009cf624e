package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
)

// Tx is the transactional surface over seat-leg cells and booking rows.
// LockCells takes row-level exclusive locks; callers lock seats in ascending
// order to stay deadlock-free. One production implementation (pgx) and one
// in-memory fake exist.
type Tx interface {
	GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error)
	LockCells(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) ([]domain.SeatLegCell, error)
	MarkBooked(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) error
	InsertBooking(ctx context.Context, b *domain.Booking) error
	InsertPayment(ctx context.Context, p *domain.Payment) error
	InsertOutbox(ctx context.Context, ev domain.OutboxEvent) error
}

// Store is the durable side of the inventory. Cells are mutated only through
// Tx (booking) or BuildInventory (materialization); nothing else writes them.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error)
	BuildInventory(ctx context.Context, trip *domain.Trip, seats []string) error
	GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error)
}

// HoldOverlay exposes the process-local hold state for merging into reads.
type HoldOverlay interface {
	Snapshot(tripID uuid.UUID) map[domain.CellRef]uuid.UUID
}
