package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rideline/rideline/internal/domain"
)

// FindTripByBase resolves the unique trip for (base, service date).
func (r *Repository) FindTripByBase(ctx context.Context, baseID uuid.UUID, serviceDate string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM trips WHERE base_id = $1 AND service_date = $2
	`, baseID, serviceDate).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// CreateTrip persists the trip with its stop times, legs and fresh inventory
// as one transaction. A concurrent materialization of the same (base, date)
// surfaces as ErrDuplicateTrip via the unique constraint.
func (r *Repository) CreateTrip(ctx context.Context, trip *domain.Trip, seats []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO trips (id, base_id, service_date, vehicle_id, layout_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, trip.ID, trip.BaseID, trip.ServiceDate, trip.VehicleID, trip.LayoutID, trip.Status)
	if err != nil {
		return mapPgError(err)
	}

	batch := &pgx.Batch{}
	for _, s := range trip.Stops {
		batch.Queue(`
			INSERT INTO trip_stops (trip_id, seq, stop_id, arrive_at, depart_at)
			VALUES ($1, $2, $3, $4, $5)
		`, trip.ID, s.Seq, s.StopID, s.ArriveAt, s.DepartAt)
	}
	for _, l := range trip.Legs {
		batch.Queue(`
			INSERT INTO legs (trip_id, leg_index, from_seq, to_seq)
			VALUES ($1, $2, $3, $4)
		`, trip.ID, l.LegIndex, l.FromSeq, l.ToSeq)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapPgError(err)
	}

	if err := insertCells(ctx, tx, trip, seats); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetTrip(ctx context.Context, id uuid.UUID) (*domain.Trip, error) {
	var t domain.Trip
	err := r.pool.QueryRow(ctx, `
		SELECT id, base_id, service_date, vehicle_id, layout_id, status
		FROM trips WHERE id = $1
	`, id).Scan(&t.ID, &t.BaseID, &t.ServiceDate, &t.VehicleID, &t.LayoutID, &t.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	stopRows, err := r.pool.Query(ctx, `
		SELECT trip_id, seq, stop_id, arrive_at, depart_at
		FROM trip_stops WHERE trip_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer stopRows.Close()
	for stopRows.Next() {
		var s domain.TripStop
		if err := stopRows.Scan(&s.TripID, &s.Seq, &s.StopID, &s.ArriveAt, &s.DepartAt); err != nil {
			return nil, err
		}
		t.Stops = append(t.Stops, s)
	}
	if err := stopRows.Err(); err != nil {
		return nil, err
	}

	legRows, err := r.pool.Query(ctx, `
		SELECT trip_id, leg_index, from_seq, to_seq
		FROM legs WHERE trip_id = $1 ORDER BY leg_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer legRows.Close()
	for legRows.Next() {
		var l domain.Leg
		if err := legRows.Scan(&l.TripID, &l.LegIndex, &l.FromSeq, &l.ToSeq); err != nil {
			return nil, err
		}
		t.Legs = append(t.Legs, l)
	}
	return &t, legRows.Err()
}
