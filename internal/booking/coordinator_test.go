package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/fare"
	"github.com/rideline/rideline/internal/hold"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
	"github.com/rideline/rideline/internal/printing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *inventory.MemoryStore
	holds  *hold.Manager
	coord  *Coordinator
	tripID uuid.UUID
}

// newFixture provisions a three-stop trip (legs 0 and 1) with seats 1A and
// 1B, priced at 12500 per leg.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inventory.NewMemoryStore()
	logger := observability.NewLogger()
	holds := hold.NewManager(store, notify.Nop{}, logger, hold.Options{
		ShortTTL: 2 * time.Minute,
		LongTTL:  25 * time.Minute,
	})

	trip := &domain.Trip{
		ID: uuid.New(),
		Legs: []domain.Leg{
			{LegIndex: 0, FromSeq: 0, ToSeq: 1},
			{LegIndex: 1, FromSeq: 1, ToSeq: 2},
		},
	}
	require.NoError(t, store.BuildInventory(context.Background(), trip, []string{"1A", "1B"}))

	coord := NewCoordinator(store, holds, fare.Fixed{PerLeg: 12500}, notify.Nop{}, printing.JSONGenerator{}, logger, 0.01)
	return &fixture{store: store, holds: holds, coord: coord, tripID: trip.ID}
}

func (f *fixture) request(seats ...string) Request {
	req := Request{
		TripID:         f.tripID,
		OriginSeq:      0,
		DestinationSeq: 2,
		OperatorID:     uuid.New(),
		Amount:         25000 * float64(len(seats)),
		Method:         "cash",
	}
	for _, s := range seats {
		req.Passengers = append(req.Passengers, PassengerSpec{Name: "P " + s, SeatNo: s})
	}
	return req
}

func TestBookCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.Book(ctx, f.request("1A", "1B"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.BookingPaid, res.Booking.Status)
	assert.Equal(t, 50000.0, res.Booking.TotalAmount)
	assert.Len(t, res.Booking.Passengers, 2)
	assert.NotEmpty(t, res.PrintPayload)

	stored, err := f.store.GetBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, stored.ID)

	cells, err := f.store.ReadCells(ctx, f.tripID, []int{0, 1})
	require.NoError(t, err)
	for _, c := range cells {
		assert.True(t, c.Booked, "seat %s leg %d", c.SeatNo, c.LegIndex)
	}

	// One inventory-changed event per seat went through the outbox.
	assert.Len(t, f.store.Outbox(), 2)
}

func TestBookPaymentMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("off by more than tolerance is rejected", func(t *testing.T) {
		req := f.request("1A")
		req.Amount = 24999
		_, err := f.coord.Book(ctx, req)
		var mismatch *domain.PaymentMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, 25000.0, mismatch.Quoted)
		assert.Equal(t, 24999.0, mismatch.Supplied)

		// Nothing was written.
		cells, err := f.store.ReadCells(ctx, f.tripID, []int{0, 1})
		require.NoError(t, err)
		for _, c := range cells {
			assert.False(t, c.Booked)
		}
		assert.Empty(t, f.store.Outbox())
	})

	t.Run("exact amount succeeds", func(t *testing.T) {
		req := f.request("1A")
		req.Amount = 25000.00
		_, err := f.coord.Book(ctx, req)
		require.NoError(t, err)
	})

	t.Run("within tolerance succeeds", func(t *testing.T) {
		req := f.request("1B")
		req.Amount = 25000.005
		_, err := f.coord.Book(ctx, req)
		require.NoError(t, err)
	})
}

func TestBookConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Book(ctx, f.request("1A"))
	require.NoError(t, err)

	_, err = f.coord.Book(ctx, f.request("1A"))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"1A"}, conflict.Seats)
}

func TestBookOverlappingLegConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Book leg 0 only, then attempt the full range over the same seat.
	first := f.request("1A")
	first.DestinationSeq = 1
	first.Amount = 12500
	_, err := f.coord.Book(ctx, first)
	require.NoError(t, err)

	_, err = f.coord.Book(ctx, f.request("1A"))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))

	// The disjoint remainder is still bookable.
	rest := f.request("1A")
	rest.OriginSeq = 1
	rest.Amount = 12500
	_, err = f.coord.Book(ctx, rest)
	assert.NoError(t, err)
}

func TestBookConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.Book(ctx, f.request("1A"))
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		var conflict *domain.ConflictError
		require.True(t, errors.As(err, &conflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, committed, "exactly one attempt may win the seat")
}

func TestBookIdempotencyReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request("1A")
	req.IdempotencyKey = "key-aaaaaaaaaaaaaaaa"

	first, err := f.coord.Book(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	again, err := f.coord.Book(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Booking.ID, again.Booking.ID)

	// The replay wrote nothing new.
	assert.Len(t, f.store.Outbox(), 1)
}

func TestBookHoldInteraction(t *testing.T) {
	ctx := context.Background()

	t.Run("seat held by another operator blocks", func(t *testing.T) {
		f := newFixture(t)
		other := uuid.New()
		_, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0, 1}, domain.TTLShort, other)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, f.request("1A"))
		var heldErr *domain.HeldByOtherError
		require.True(t, errors.As(err, &heldErr))
		assert.Equal(t, "1A", heldErr.SeatNo)
	})

	t.Run("own hold is consumed on commit", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("1A")
		h, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0, 1}, domain.TTLShort, req.OperatorID)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, req)
		require.NoError(t, err)
		assert.False(t, f.holds.IsHeld(f.tripID, "1A", []int{0, 1}))
		_ = h
	})

	t.Run("own hold survives a failed attempt", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("1A")
		req.Amount = 1
		_, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0, 1}, domain.TTLShort, req.OperatorID)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, req)
		var mismatch *domain.PaymentMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.True(t, f.holds.IsHeld(f.tripID, "1A", []int{0, 1}))
	})

	t.Run("partial-range hold by another operator blocks", func(t *testing.T) {
		f := newFixture(t)
		other := uuid.New()
		_, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0}, domain.TTLShort, other)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, f.request("1A"))
		var heldErr *domain.HeldByOtherError
		require.True(t, errors.As(err, &heldErr))
		assert.Equal(t, "1A", heldErr.SeatNo)

		// Nothing was booked and the single-leg hold is untouched.
		cells, err := f.store.ReadCells(ctx, f.tripID, []int{0, 1})
		require.NoError(t, err)
		for _, c := range cells {
			assert.False(t, c.Booked)
		}
		assert.True(t, f.holds.IsHeld(f.tripID, "1A", []int{0}))
	})

	t.Run("own partial-range hold is consumed on commit", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("1A")
		h, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0}, domain.TTLShort, req.OperatorID)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, req)
		require.NoError(t, err)
		assert.False(t, f.holds.IsHeld(f.tripID, "1A", []int{0}))
		_, ok := f.holds.Lookup(h.Ref)
		assert.False(t, ok, "no hold may linger over booked cells")
	})

	t.Run("failed attempt never records a booking id", func(t *testing.T) {
		f := newFixture(t)
		req := f.request("1A")
		req.Amount = 1
		h, _, err := f.holds.Create(ctx, f.tripID, "1A", []int{0, 1}, domain.TTLShort, req.OperatorID)
		require.NoError(t, err)

		_, err = f.coord.Book(ctx, req)
		var mismatch *domain.PaymentMismatchError
		require.True(t, errors.As(err, &mismatch))

		kept, ok := f.holds.Lookup(h.Ref)
		require.True(t, ok)
		assert.Nil(t, kept.BookingID)
	})
}

// lateDuplicateStore simulates a concurrent request committing the same
// idempotency key between the fast-path lookup and the transaction: the
// first key lookup misses, the transaction then hits the unique column.
type lateDuplicateStore struct {
	*inventory.MemoryStore
	misses int
}

func (s *lateDuplicateStore) GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error) {
	if s.misses > 0 {
		s.misses--
		return nil, domain.ErrNotFound
	}
	return s.MemoryStore.GetBookingByKey(ctx, key)
}

func (s *lateDuplicateStore) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	return domain.ErrDuplicateBooking
}

func TestBookDuplicateKeyRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request("1A")
	req.IdempotencyKey = "key-bbbbbbbbbbbbbbbb"
	first, err := f.coord.Book(ctx, req)
	require.NoError(t, err)

	store := &lateDuplicateStore{MemoryStore: f.store, misses: 1}
	coord := NewCoordinator(store, f.holds, fare.Fixed{PerLeg: 12500}, notify.Nop{}, printing.JSONGenerator{}, observability.NewLogger(), 0.01)

	res, err := coord.Book(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, first.Booking.ID, res.Booking.ID)
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("inverted range", func(t *testing.T) {
		req := f.request("1A")
		req.OriginSeq, req.DestinationSeq = 2, 0
		_, err := f.coord.Book(ctx, req)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("no passengers", func(t *testing.T) {
		req := f.request()
		_, err := f.coord.Book(ctx, req)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("seat assigned twice", func(t *testing.T) {
		req := f.request("1A", "1A")
		_, err := f.coord.Book(ctx, req)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("unknown seat is incomplete inventory", func(t *testing.T) {
		_, err := f.coord.Book(ctx, f.request("9Z"))
		var inc *domain.IncompleteInventoryError
		require.True(t, errors.As(err, &inc))
		assert.Equal(t, "9Z", inc.SeatNo)
	})
}
