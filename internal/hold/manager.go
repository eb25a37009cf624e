// Package hold implements the process-local reservation layer. A hold pins
// one seat across a contiguous leg range for one operator until it expires,
// is released, or is consumed by a booking. The hold table and the cell
// overlay are guarded by a single mutex and always change together; a hold
// is never observable with only some of its cells marked.
package hold

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
)

// CellReader supplies the durable booked state. It is consulted before the
// manager lock is taken; no I/O happens while the lock is held.
type CellReader interface {
	ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error)
}

type Options struct {
	ShortTTL      time.Duration
	LongTTL       time.Duration
	SweepInterval time.Duration
}

type cellKey struct {
	trip uuid.UUID
	seat string
	leg  int
}

type Manager struct {
	cells    CellReader
	notifier notify.Notifier
	logger   observability.Logger
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	holds map[uuid.UUID]*domain.Hold
	refs  map[cellKey]uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cells CellReader, notifier notify.Notifier, logger observability.Logger, opts Options) *Manager {
	if opts.ShortTTL <= 0 {
		opts.ShortTTL = 2 * time.Minute
	}
	if opts.LongTTL <= 0 {
		opts.LongTTL = 25 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	return &Manager{
		cells:    cells,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		holds:    make(map[uuid.UUID]*domain.Hold),
		refs:     make(map[cellKey]uuid.UUID),
		done:     make(chan struct{}),
	}
}

// Start launches the expiry sweep. The sweep interval is fixed and
// independent of any individual hold's TTL.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop cancels the sweep and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

func (m *Manager) ttl(class domain.TTLClass) (time.Duration, error) {
	switch class {
	case domain.TTLShort:
		return m.opts.ShortTTL, nil
	case domain.TTLLong:
		return m.opts.LongTTL, nil
	default:
		return 0, errors.Wrapf(domain.ErrInvalidInput, "unknown ttl class %q", class)
	}
}

// Create reserves seatNo across legs for operatorID. Returns the hold and
// alreadyHeld=true when the same operator already holds exactly these cells
// under one hold. All requested cells are claimed as one unit or not at all.
func (m *Manager) Create(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int, class domain.TTLClass, operatorID uuid.UUID) (*domain.Hold, bool, error) {
	if !domain.Contiguous(legs) {
		return nil, false, errors.Wrap(domain.ErrInvalidInput, "legs must be a non-empty contiguous range")
	}
	ttl, err := m.ttl(class)
	if err != nil {
		return nil, false, err
	}

	// Durable booked check happens before the lock; the booking path holds
	// row locks so a cell that turns booked after this read is caught again
	// at conversion time.
	cells, err := m.cells.ReadCells(ctx, tripID, legs)
	if err != nil {
		return nil, false, err
	}
	found := 0
	for _, c := range cells {
		if c.SeatNo != seatNo {
			continue
		}
		found++
		if c.Booked {
			observability.HoldConflictsTotal.Inc()
			return nil, false, &domain.ConflictError{Seats: []string{seatNo}}
		}
	}
	if found != len(legs) {
		return nil, false, &domain.IncompleteInventoryError{SeatNo: seatNo, Want: len(legs), Got: found}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if existing := m.commonHoldLocked(tripID, seatNo, legs, now); existing != nil {
		if existing.OperatorID == operatorID {
			return existing, true, nil
		}
		observability.HoldConflictsTotal.Inc()
		return nil, false, &domain.HeldByOtherError{SeatNo: seatNo}
	}
	for _, leg := range legs {
		key := cellKey{tripID, seatNo, leg}
		ref, ok := m.refs[key]
		if !ok {
			continue
		}
		h := m.holds[ref]
		if h.Expired(now) {
			m.dropLocked(h)
			continue
		}
		observability.HoldConflictsTotal.Inc()
		if h.OperatorID != operatorID {
			return nil, false, &domain.HeldByOtherError{SeatNo: seatNo}
		}
		// Same operator, but the requested range does not line up with the
		// existing hold. Reported as a plain conflict.
		return nil, false, &domain.ConflictError{Seats: []string{seatNo}}
	}

	h := &domain.Hold{
		Ref:        uuid.New(),
		TripID:     tripID,
		SeatNo:     seatNo,
		Legs:       append([]int(nil), legs...),
		Class:      class,
		ExpiresAt:  now.Add(ttl),
		OperatorID: operatorID,
	}
	m.holds[h.Ref] = h
	for _, leg := range legs {
		m.refs[cellKey{tripID, seatNo, leg}] = h.Ref
	}
	observability.HoldsActive.Set(float64(len(m.holds)))
	return h, false, nil
}

// Release drops a hold and clears its cells. Unknown refs are a no-op.
func (m *Manager) Release(ctx context.Context, ref uuid.UUID) {
	m.mu.Lock()
	h, ok := m.holds[ref]
	if ok {
		m.dropLocked(h)
	}
	m.mu.Unlock()

	if ok {
		m.notifier.HoldsReleased(ctx, h.TripID, []string{h.SeatNo})
	}
}

// Consume drops holds that were just converted into a booking. The booking
// coordinator announces the cell changes itself, so no release notification
// is emitted here.
func (m *Manager) Consume(refs ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		if h, ok := m.holds[ref]; ok {
			m.dropLocked(h)
		}
	}
}

// IsHeld reports whether all requested legs share one unexpired hold.
func (m *Manager) IsHeld(tripID uuid.UUID, seatNo string, legs []int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commonHoldLocked(tripID, seatNo, legs, m.now()) != nil
}

// Owner returns the common unexpired hold covering the requested legs.
func (m *Manager) Owner(tripID uuid.UUID, seatNo string, legs []int) (ref uuid.UUID, operatorID uuid.UUID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.commonHoldLocked(tripID, seatNo, legs, m.now()); h != nil {
		return h.Ref, h.OperatorID, true
	}
	return uuid.Nil, uuid.Nil, false
}

// CellOwners returns every unexpired hold touching one of the seat's
// requested cells, mapped ref to owning operator. Unlike Owner it also
// reports holds covering only part of the range, so a booking can refuse to
// commit over any foreign hold.
func (m *Manager) CellOwners(tripID uuid.UUID, seatNo string, legs []int) map[uuid.UUID]uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	owners := make(map[uuid.UUID]uuid.UUID)
	for _, leg := range legs {
		ref, ok := m.refs[cellKey{tripID, seatNo, leg}]
		if !ok {
			continue
		}
		if h := m.holds[ref]; h != nil && !h.Expired(now) {
			owners[ref] = h.OperatorID
		}
	}
	return owners
}

// Lookup returns a copy of the hold for ref, if it is still alive.
func (m *Manager) Lookup(ref uuid.UUID) (domain.Hold, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[ref]
	if !ok || h.Expired(m.now()) {
		return domain.Hold{}, false
	}
	return *h, true
}

// Extend refreshes a hold's deadline under a new TTL class. Used to convert
// a short picking hold into a long one when a booking attempt begins; the
// booking id is recorded on the hold so the transition is auditable.
func (m *Manager) Extend(ref uuid.UUID, class domain.TTLClass, bookingID *uuid.UUID) bool {
	ttl, err := m.ttl(class)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[ref]
	if !ok || h.Expired(m.now()) {
		return false
	}
	h.Class = class
	h.ExpiresAt = m.now().Add(ttl)
	if bookingID != nil {
		h.BookingID = bookingID
	}
	return true
}

// Snapshot returns the overlay of held cells for a trip.
func (m *Manager) Snapshot(tripID uuid.UUID) map[domain.CellRef]uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make(map[domain.CellRef]uuid.UUID)
	for key, ref := range m.refs {
		if key.trip != tripID {
			continue
		}
		if h := m.holds[ref]; h != nil && !h.Expired(now) {
			out[domain.CellRef{SeatNo: key.seat, LegIndex: key.leg}] = ref
		}
	}
	return out
}

// Sweep releases every expired hold. Safe to run concurrently with the
// request-driven operations; it is also what the background ticker calls.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	type released struct {
		trip uuid.UUID
		seat string
	}
	var dropped []released
	for _, h := range m.holds {
		if h.Expired(now) {
			m.dropLocked(h)
			dropped = append(dropped, released{h.TripID, h.SeatNo})
		}
	}
	m.mu.Unlock()

	if len(dropped) == 0 {
		return
	}
	observability.SweepReleasedTotal.Add(float64(len(dropped)))
	m.logger.Info("hold sweep released ", len(dropped), " holds")
	for _, d := range dropped {
		m.notifier.HoldsReleased(ctx, d.trip, []string{d.seat})
	}
}

func (m *Manager) commonHoldLocked(tripID uuid.UUID, seatNo string, legs []int, now time.Time) *domain.Hold {
	if len(legs) == 0 {
		return nil
	}
	first, ok := m.refs[cellKey{tripID, seatNo, legs[0]}]
	if !ok {
		return nil
	}
	for _, leg := range legs[1:] {
		if ref, ok := m.refs[cellKey{tripID, seatNo, leg}]; !ok || ref != first {
			return nil
		}
	}
	h := m.holds[first]
	if h == nil || h.Expired(now) {
		return nil
	}
	return h
}

// dropLocked removes a hold and all of its cells as one unit.
func (m *Manager) dropLocked(h *domain.Hold) {
	delete(m.holds, h.Ref)
	for _, leg := range h.Legs {
		key := cellKey{h.TripID, h.SeatNo, leg}
		if m.refs[key] == h.Ref {
			delete(m.refs, key)
		}
	}
	observability.HoldsActive.Set(float64(len(m.holds)))
}
