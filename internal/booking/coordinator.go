// Package booking converts verified seat state into durable bookings. This
// is the only path that marks a cell booked; everything happens in one
// transaction, and a failed attempt leaves holds exactly as they were.
package booking

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/fare"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
	"github.com/rideline/rideline/internal/printing"
)

// HoldGate is the slice of the hold manager the coordinator needs: ownership
// checks before commit, hold consumption after.
type HoldGate interface {
	CellOwners(tripID uuid.UUID, seatNo string, legs []int) map[uuid.UUID]uuid.UUID
	Extend(ref uuid.UUID, class domain.TTLClass, bookingID *uuid.UUID) bool
	Consume(refs ...uuid.UUID)
}

type PassengerSpec struct {
	Name   string
	SeatNo string
}

type Request struct {
	TripID         uuid.UUID
	OriginSeq      int
	DestinationSeq int
	Passengers     []PassengerSpec
	OperatorID     uuid.UUID
	Amount         float64
	Method         string
	IdempotencyKey string
}

// Result carries the committed booking plus the post-commit print payload.
type Result struct {
	Booking      *domain.Booking
	PrintPayload []byte
	Replayed     bool
}

type Coordinator struct {
	store     inventory.Store
	holds     HoldGate
	quoter    fare.Quoter
	notifier  notify.Notifier
	printer   printing.Generator
	logger    observability.Logger
	tolerance float64
}

func NewCoordinator(store inventory.Store, holds HoldGate, quoter fare.Quoter, notifier notify.Notifier, printer printing.Generator, logger observability.Logger, tolerance float64) *Coordinator {
	return &Coordinator{
		store:     store,
		holds:     holds,
		quoter:    quoter,
		notifier:  notifier,
		printer:   printer,
		logger:    logger,
		tolerance: tolerance,
	}
}

// Book runs one all-or-nothing booking attempt. Seats are locked in
// ascending order; every conflict names the offending seat; the payment
// amount is checked against the quote before any write.
func (c *Coordinator) Book(ctx context.Context, req Request) (*Result, error) {
	if req.IdempotencyKey != "" {
		if existing, err := c.store.GetBookingByKey(ctx, req.IdempotencyKey); err == nil {
			return &Result{Booking: existing, Replayed: true}, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	legs := domain.LegRange(req.OriginSeq, req.DestinationSeq)
	if legs == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "origin must precede destination")
	}
	if len(req.Passengers) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "no passengers")
	}

	// Lock ordering: ascending seat number, so concurrent bookings over
	// overlapping seat sets cannot deadlock.
	seats := make([]string, 0, len(req.Passengers))
	bySeat := make(map[string]PassengerSpec, len(req.Passengers))
	for _, p := range req.Passengers {
		if _, dup := bySeat[p.SeatNo]; dup {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "seat %s assigned twice", p.SeatNo)
		}
		bySeat[p.SeatNo] = p
		seats = append(seats, p.SeatNo)
	}
	sort.Strings(seats)

	b := &domain.Booking{
		ID:             uuid.New(),
		TripID:         req.TripID,
		OriginSeq:      req.OriginSeq,
		DestinationSeq: req.DestinationSeq,
		Status:         domain.BookingPaid,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	var replayed *domain.Booking
	var consumed []uuid.UUID

	err := c.store.WithTx(ctx, func(tx inventory.Tx) error {
		// Re-check the key under the transaction: a concurrent retry may
		// have committed between the fast path above and here.
		if req.IdempotencyKey != "" {
			existing, err := tx.GetBookingByKey(ctx, req.IdempotencyKey)
			if err == nil {
				replayed = existing
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		var conflicts []string
		for _, seat := range seats {
			cells, err := tx.LockCells(ctx, req.TripID, seat, legs)
			if err != nil {
				return err
			}
			if len(cells) != len(legs) {
				return &domain.IncompleteInventoryError{SeatNo: seat, Want: len(legs), Got: len(cells)}
			}
			for _, cell := range cells {
				if cell.Booked {
					conflicts = append(conflicts, seat)
					break
				}
			}
		}
		if len(conflicts) > 0 {
			return &domain.ConflictError{Seats: conflicts}
		}

		// Row locks are in place; now check the hold overlay cell by cell.
		// Any foreign hold blocks the booking, even one covering only part
		// of the requested range.
		consumed = consumed[:0]
		for _, seat := range seats {
			for ref, operatorID := range c.holds.CellOwners(req.TripID, seat, legs) {
				if operatorID != req.OperatorID {
					return &domain.HeldByOtherError{SeatNo: seat}
				}
				consumed = append(consumed, ref)
			}
		}
		// Keep owned holds alive while payment settles: short picking holds
		// become long booking holds. No booking id is recorded on them; the
		// booking may still fail, and on commit the holds are consumed.
		for _, ref := range consumed {
			c.holds.Extend(ref, domain.TTLLong, nil)
		}

		quote, err := c.quoter.QuoteFare(ctx, req.TripID, req.OriginSeq, req.DestinationSeq)
		if err != nil {
			return err
		}
		total := quote.Total * float64(len(req.Passengers))
		if math.Abs(req.Amount-total) > c.tolerance {
			return &domain.PaymentMismatchError{Quoted: total, Supplied: req.Amount}
		}

		b.TotalAmount = total
		b.Passengers = b.Passengers[:0]
		for _, seat := range seats {
			p := bySeat[seat]
			b.Passengers = append(b.Passengers, domain.Passenger{
				BookingID: b.ID,
				Name:      p.Name,
				SeatNo:    seat,
				Fare:      quote.Total,
			})
		}

		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &domain.Payment{
			BookingID: b.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Status:    "CAPTURED",
		}); err != nil {
			return err
		}

		for _, seat := range seats {
			if err := tx.MarkBooked(ctx, req.TripID, seat, legs); err != nil {
				return err
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"trip_id": req.TripID, "seat_no": seat, "legs": legs,
			})
			ev := domain.OutboxEvent{
				ID:            uuid.New(),
				AggregateType: "trip",
				AggregateID:   req.TripID,
				EventType:     domain.EventInventoryChanged,
				Payload:       payload,
				DedupeKey:     uuid.New().String(),
			}
			if err := tx.InsertOutbox(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key can commit while this
		// attempt waits on the cell locks; it then surfaces here as a key
		// unique violation or as booked-cell conflicts. Replay the winner
		// instead of failing.
		if req.IdempotencyKey != "" {
			if existing, ferr := c.store.GetBookingByKey(ctx, req.IdempotencyKey); ferr == nil {
				observability.BookingsTotal.WithLabelValues("replayed").Inc()
				return &Result{Booking: existing, Replayed: true}, nil
			}
		}
		observability.BookingsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	if replayed != nil {
		observability.BookingsTotal.WithLabelValues("replayed").Inc()
		return &Result{Booking: replayed, Replayed: true}, nil
	}

	// Committed. Consume the converted holds and announce; neither may undo
	// the booking.
	c.holds.Consume(consumed...)
	for _, seat := range seats {
		c.notifier.InventoryChanged(ctx, req.TripID, seat, legs)
	}
	c.notifier.BookingConfirmed(ctx, b.ID)

	payload, perr := c.printer.Generate(ctx, b)
	if perr != nil {
		c.logger.WithField("booking_id", b.ID).Error("print payload generation failed: ", perr)
	}
	observability.BookingsTotal.WithLabelValues("committed").Inc()
	return &Result{Booking: b, PrintPayload: payload}, nil
}

func outcome(err error) string {
	switch {
	case errors.HasType(err, (*domain.ConflictError)(nil)), errors.HasType(err, (*domain.HeldByOtherError)(nil)):
		return "conflict"
	case errors.HasType(err, (*domain.PaymentMismatchError)(nil)):
		return "payment_mismatch"
	case errors.HasType(err, (*domain.IncompleteInventoryError)(nil)):
		return "incomplete_inventory"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
