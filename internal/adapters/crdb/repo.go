package crdb

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/rideline/rideline/internal/observability"
)

const (
	serializationFailureCode = "40001"
	uniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one SERIALIZABLE transaction. Conflict-class driver
// errors are mapped to domain sentinels; anything else rolls back untouched.
func (r *Repository) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	start := time.Now()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	observability.DBTxDuration.Observe(time.Since(start).Seconds())
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailureCode:
			return domain.ErrSerializationFailure
		case uniqueViolationCode:
			switch {
			case strings.Contains(pgErr.ConstraintName, "idempotency"):
				return domain.ErrDuplicateBooking
			case strings.Contains(pgErr.ConstraintName, "trips"):
				return domain.ErrDuplicateTrip
			}
		}
	}
	return err
}

// Tx wraps a pgx transaction with the inventory.Tx surface.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error) {
	return scanBookingByKey(ctx, t.tx, key)
}

// LockCells takes FOR UPDATE locks on one seat's cells for the given legs,
// in ascending leg order. Callers iterate seats in ascending order so
// competing multi-seat bookings cannot deadlock.
func (t *Tx) LockCells(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) ([]domain.SeatLegCell, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT trip_id, seat_no, leg_index, booked
		FROM seat_leg_cells
		WHERE trip_id = $1 AND seat_no = $2 AND leg_index = ANY($3)
		ORDER BY leg_index
		FOR UPDATE
	`, tripID, seatNo, legs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []domain.SeatLegCell
	for rows.Next() {
		var c domain.SeatLegCell
		if err := rows.Scan(&c.TripID, &c.SeatNo, &c.LegIndex, &c.Booked); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (t *Tx) MarkBooked(ctx context.Context, tripID uuid.UUID, seatNo string, legs []int) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE seat_leg_cells SET booked = TRUE
		WHERE trip_id = $1 AND seat_no = $2 AND leg_index = ANY($3) AND booked = FALSE
	`, tripID, seatNo, legs)
	if err != nil {
		return err
	}
	if int(result.RowsAffected()) != len(legs) {
		return &domain.ConflictError{Seats: []string{seatNo}}
	}
	return nil
}

func (t *Tx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	var key interface{}
	if b.IdempotencyKey != "" {
		key = b.IdempotencyKey
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (id, trip_id, origin_seq, destination_seq, status, total_amount, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.TripID, b.OriginSeq, b.DestinationSeq, b.Status, b.TotalAmount, key)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range b.Passengers {
		batch.Queue(`
			INSERT INTO passengers (booking_id, name, seat_no, fare)
			VALUES ($1, $2, $3, $4)
		`, b.ID, p.Name, p.SeatNo, p.Fare)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *Tx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (booking_id, amount, method, status)
		VALUES ($1, $2, $3, $4)
	`, p.BookingID, p.Amount, p.Method, p.Status)
	return err
}

func (r *Repository) ReadCells(ctx context.Context, tripID uuid.UUID, legs []int) ([]domain.SeatLegCell, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT trip_id, seat_no, leg_index, booked
		FROM seat_leg_cells
		WHERE trip_id = $1 AND leg_index = ANY($2)
		ORDER BY seat_no, leg_index
	`, tripID, legs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []domain.SeatLegCell
	for rows.Next() {
		var c domain.SeatLegCell
		if err := rows.Scan(&c.TripID, &c.SeatNo, &c.LegIndex, &c.Booked); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// BuildInventory replaces the trip's matrix: one cell per (seat, leg),
// all free.
func (r *Repository) BuildInventory(ctx context.Context, trip *domain.Trip, seats []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM seat_leg_cells WHERE trip_id = $1`, trip.ID); err != nil {
		return err
	}
	if err := insertCells(ctx, tx, trip, seats); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertCells(ctx context.Context, tx pgx.Tx, trip *domain.Trip, seats []string) error {
	batch := &pgx.Batch{}
	for _, seat := range seats {
		for _, leg := range trip.Legs {
			batch.Queue(`
				INSERT INTO seat_leg_cells (trip_id, seat_no, leg_index, booked)
				VALUES ($1, $2, $3, FALSE)
			`, trip.ID, seat, leg.LegIndex)
		}
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repository) GetBookingByKey(ctx context.Context, key string) (*domain.Booking, error) {
	return scanBookingByKey(ctx, r.pool, key)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanBookingByKey(ctx context.Context, q queryer, key string) (*domain.Booking, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	var b domain.Booking
	err := q.QueryRow(ctx, `
		SELECT id, trip_id, origin_seq, destination_seq, status, total_amount, COALESCE(idempotency_key, ''), created_at
		FROM bookings WHERE idempotency_key = $1
	`, key).Scan(&b.ID, &b.TripID, &b.OriginSeq, &b.DestinationSeq, &b.Status, &b.TotalAmount, &b.IdempotencyKey, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := scanPassengers(ctx, q, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	err := r.pool.QueryRow(ctx, `
		SELECT id, trip_id, origin_seq, destination_seq, status, total_amount, COALESCE(idempotency_key, ''), created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.TripID, &b.OriginSeq, &b.DestinationSeq, &b.Status, &b.TotalAmount, &b.IdempotencyKey, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := scanPassengers(ctx, r.pool, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanPassengers(ctx context.Context, q queryer, b *domain.Booking) error {
	rows, err := q.Query(ctx, `
		SELECT booking_id, name, seat_no, fare
		FROM passengers WHERE booking_id = $1 ORDER BY seat_no
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(&p.BookingID, &p.Name, &p.SeatNo, &p.Fare); err != nil {
			return err
		}
		b.Passengers = append(b.Passengers, p)
	}
	return rows.Err()
}
