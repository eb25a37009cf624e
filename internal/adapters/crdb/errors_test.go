package crdb

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rideline/rideline/internal/domain"
)

func TestMapPgError(t *testing.T) {
	err := mapPgError(&pgconn.PgError{Code: "40001"})
	if !errors.Is(err, domain.ErrSerializationFailure) {
		t.Errorf("expected serialization failure, got %v", err)
	}

	err = mapPgError(&pgconn.PgError{Code: "23505", ConstraintName: "trips_base_id_service_date_key"})
	if !errors.Is(err, domain.ErrDuplicateTrip) {
		t.Errorf("expected duplicate trip, got %v", err)
	}

	err = mapPgError(&pgconn.PgError{Code: "23505", ConstraintName: "bookings_idempotency_key_key"})
	if !errors.Is(err, domain.ErrDuplicateBooking) {
		t.Errorf("expected duplicate booking key, got %v", err)
	}

	plain := errors.New("connection reset")
	if got := mapPgError(plain); got != plain {
		t.Errorf("expected unrelated errors to pass through, got %v", got)
	}
}
