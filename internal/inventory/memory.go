package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
)

type cellID struct {
	trip uuid.UUID
	seat string
	leg  int
}

// MemoryStore is the in-memory counterpart of the pgx repository, used by
// unit tests. One coarse mutex stands in for row locks: a transaction holds
// it from begin to commit, so competing transactions serialize exactly like
// FOR UPDATE waiters and always re-read fresh state.
type MemoryStore struct {
	mu       sync.Mutex
	cells    map[cellID]domain.SeatLegCell
	trips    map[uuid.UUID]*domain.Trip
	byBase   map[string]uuid.UUID
	bookings map[uuid.UUID]*domain.Booking
	byKey    map[string]uuid.UUID
	payments []domain.Payment
	outbox   []domain.OutboxEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cells:    make(map[cellID]domain.SeatLegCell),
		trips:    make(map[uuid.UUID]*domain.Trip),
		byBase:   make(map[string]uuid.UUID),
		bookings: make(map[uuid.UUID]*domain.Booking),
		byKey:    make(map[string]uuid.UUID),
	}
}

type memTx struct {
	s *MemoryStore

	// buffered writes, applied on commit
	booked   []cellID
	bookings []*domain.Booking
	payments []domain.Payment
	outbox   []domain.OutboxEvent
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	// Same signal the idempotency_key unique column raises.
	for _, b := range tx.bookings {
		if b.IdempotencyKey != "" {
			if _, exists := s.byKey[b.IdempotencyKey]; exists {
				return domain.ErrDuplicateBooking
			}
		}
	}
	for _, id := range tx.booked {
		c := s.cells[id]
		c.Booked = true
		s.cells[id] = c
	}
	for _, b := range tx.bookings {
		s.bookings[b.ID] = b
		if b.IdempotencyKey != "" {
			s.byKey[b.IdempotencyKey] = b.ID
		}
	}
	s.payments = append(s.payments, tx.payments...)
	s.outbox = append(s.outbox, tx.outbox...)
	return nil
}

func (tx *memTx) GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error) {
	return tx.s.bookingByKeyLocked(key)
}

func (tx *memTx) LockCells(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) ([]domain.SeatLegCell, error) {
	var out []domain.SeatLegCell
	for _, leg := range legs {
		if c, ok := tx.s.cells[cellID{tripID, seatNo, leg}]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tx *memTx) MarkBooked(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) error {
	for _, leg := range legs {
		tx.booked = append(tx.booked, cellID{tripID, seatNo, leg})
	}
	return nil
}

func (tx *memTx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	cp := *b
	tx.bookings = append(tx.bookings, &cp)
	return nil
}

func (tx *memTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	tx.payments = append(tx.payments, *p)
	return nil
}

func (tx *memTx) InsertOutbox(ctx context.Context, ev domain.OutboxEvent) error {
	tx.outbox = append(tx.outbox, ev)
	return nil
}

func (s *MemoryStore) ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int]bool, len(legs))
	for _, leg := range legs {
		want[leg] = true
	}
	var out []domain.SeatLegCell
	for id, c := range s.cells {
		if id.trip == tripID && want[id.leg] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeatNo != out[j].SeatNo {
			return out[i].SeatNo < out[j].SeatNo
		}
		return out[i].LegIndex < out[j].LegIndex
	})
	return out, nil
}

func (s *MemoryStore) BuildInventory(ctx context.Context, trip *domain.Trip, seats []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.cells {
		if id.trip == trip.ID {
			delete(s.cells, id)
		}
	}
	for _, seat := range seats {
		for _, leg := range trip.Legs {
			id := cellID{trip.ID, seat, leg.LegIndex}
			s.cells[id] = domain.SeatLegCell{
				TripID:   trip.ID,
				SeatNo:   seat,
				LegIndex: leg.LegIndex,
			}
		}
	}
	return nil
}

func (s *MemoryStore) GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingByKeyLocked(key)
}

func (s *MemoryStore) bookingByKeyLocked(key string) (*domain.Booking, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	id, ok := s.byKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.bookings[id]
	return &cp, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// FindTripByBase and CreateTrip give the materializer the same contract the
// pgx repository provides, including the duplicate-trip race signal.
func (s *MemoryStore) FindTripByBase(ctx context.Context, baseID uuid.UUID, serviceDate string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byBase[baseID.String()+"|"+serviceDate]
	if !ok {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) CreateTrip(ctx context.Context, trip *domain.Trip, seats []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trip.BaseID != nil {
		key := trip.BaseID.String() + "|" + trip.ServiceDate
		if _, ok := s.byBase[key]; ok {
			return domain.ErrDuplicateTrip
		}
		s.byBase[key] = trip.ID
	}
	cp := *trip
	s.trips[trip.ID] = &cp
	for _, seat := range seats {
		for _, leg := range trip.Legs {
			id := cellID{trip.ID, seat, leg.LegIndex}
			s.cells[id] = domain.SeatLegCell{TripID: trip.ID, SeatNo: seat, LegIndex: leg.LegIndex}
		}
	}
	return nil
}

func (s *MemoryStore) GetTrip(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Outbox returns a copy of the buffered events, for assertions.
func (s *MemoryStore) Outbox() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}
