package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rideline/rideline/internal/adapters/crdb"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schema = `
	CREATE DATABASE IF NOT EXISTS rideline;
	SET DATABASE = rideline;
	CREATE TABLE IF NOT EXISTS trips (
		id UUID PRIMARY KEY,
		base_id UUID,
		service_date TEXT,
		vehicle_id UUID,
		layout_id UUID,
		status TEXT,
		UNIQUE (base_id, service_date)
	);
	CREATE TABLE IF NOT EXISTS trip_stops (
		trip_id UUID,
		seq INT,
		stop_id UUID,
		arrive_at TIMESTAMPTZ,
		depart_at TIMESTAMPTZ,
		PRIMARY KEY (trip_id, seq)
	);
	CREATE TABLE IF NOT EXISTS legs (
		trip_id UUID,
		leg_index INT,
		from_seq INT,
		to_seq INT,
		PRIMARY KEY (trip_id, leg_index)
	);
	CREATE TABLE IF NOT EXISTS seat_leg_cells (
		trip_id UUID,
		seat_no TEXT,
		leg_index INT,
		booked BOOL NOT NULL DEFAULT FALSE,
		PRIMARY KEY (trip_id, seat_no, leg_index)
	);
	CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		trip_id UUID,
		origin_seq INT,
		destination_seq INT,
		status TEXT,
		total_amount FLOAT8,
		idempotency_key TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS passengers (
		booking_id UUID,
		name TEXT,
		seat_no TEXT,
		fare FLOAT8,
		PRIMARY KEY (booking_id, seat_no)
	);
	CREATE TABLE IF NOT EXISTS payments (
		booking_id UUID,
		amount FLOAT8,
		method TEXT,
		status TEXT
	);
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT,
		aggregate_id UUID,
		event_type TEXT,
		payload_json JSONB,
		dedupe_key TEXT,
		status TEXT NOT NULL DEFAULT 'NEW',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ
	);
`

func setupRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, dsn+"/rideline?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	return crdb.NewRepository(pool), pool
}

func testTrip(baseID uuid.UUID) *domain.Trip {
	id := uuid.New()
	return &domain.Trip{
		ID:          id,
		BaseID:      &baseID,
		ServiceDate: "2026-08-24",
		VehicleID:   uuid.New(),
		LayoutID:    uuid.New(),
		Status:      domain.TripScheduled,
		Stops: []domain.TripStop{
			{TripID: id, Seq: 0, StopID: uuid.New()},
			{TripID: id, Seq: 1, StopID: uuid.New()},
			{TripID: id, Seq: 2, StopID: uuid.New()},
		},
		Legs: []domain.Leg{
			{TripID: id, LegIndex: 0, FromSeq: 0, ToSeq: 1},
			{TripID: id, LegIndex: 1, FromSeq: 1, ToSeq: 2},
		},
	}
}

func TestRepository_CreateTrip(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	baseID := uuid.New()
	trip := testTrip(baseID)
	if err := repo.CreateTrip(ctx, trip, []string{"1A", "1B"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	id, err := repo.FindTripByBase(ctx, baseID, trip.ServiceDate)
	if err != nil {
		t.Fatal(err)
	}
	if id != trip.ID {
		t.Errorf("expected trip %s, got %s", trip.ID, id)
	}

	fetched, err := repo.GetTrip(ctx, trip.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Stops) != 3 || len(fetched.Legs) != 2 {
		t.Errorf("expected 3 stops and 2 legs, got %d and %d", len(fetched.Stops), len(fetched.Legs))
	}

	cells, err := repo.ReadCells(ctx, trip.ID, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 4 {
		t.Errorf("expected 4 cells, got %d", len(cells))
	}

	dup := testTrip(baseID)
	err = repo.CreateTrip(ctx, dup, []string{"1A"})
	if !errors.Is(err, domain.ErrDuplicateTrip) {
		t.Errorf("expected duplicate trip error, got %v", err)
	}
}

func TestRepository_BookingTx(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	trip := testTrip(uuid.New())
	if err := repo.CreateTrip(ctx, trip, []string{"1A", "1B"}); err != nil {
		t.Fatal(err)
	}

	b := &domain.Booking{
		ID:             uuid.New(),
		TripID:         trip.ID,
		OriginSeq:      0,
		DestinationSeq: 2,
		Status:         domain.BookingPaid,
		TotalAmount:    25000,
		IdempotencyKey: "repo-test-key-0001",
		Passengers: []domain.Passenger{
			{Name: "A Rider", SeatNo: "1A", Fare: 25000},
		},
	}
	b.Passengers[0].BookingID = b.ID

	err := repo.WithTx(ctx, func(tx inventory.Tx) error {
		cells, err := tx.LockCells(ctx, trip.ID, "1A", []int{0, 1})
		if err != nil {
			return err
		}
		if len(cells) != 2 {
			t.Fatalf("expected 2 locked cells, got %d", len(cells))
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &domain.Payment{BookingID: b.ID, Amount: 25000, Method: "cash", Status: "CAPTURED"}); err != nil {
			return err
		}
		return tx.MarkBooked(ctx, trip.ID, "1A", []int{0, 1})
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	fetched, err := repo.GetBookingByKey(ctx, "repo-test-key-0001")
	if err != nil {
		t.Fatal(err)
	}
	if fetched.ID != b.ID || len(fetched.Passengers) != 1 {
		t.Errorf("expected booking %s with 1 passenger, got %s with %d", b.ID, fetched.ID, len(fetched.Passengers))
	}

	// Booking the same seat again trips the booked guard inside MarkBooked.
	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		return tx.MarkBooked(ctx, trip.ID, "1A", []int{0, 1})
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected conflict error, got %v", err)
	}

	cells, err := repo.ReadCells(ctx, trip.ID, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cells {
		if c.SeatNo == "1A" && !c.Booked {
			t.Errorf("seat 1A leg %d should be booked", c.LegIndex)
		}
		if c.SeatNo == "1B" && c.Booked {
			t.Errorf("seat 1B leg %d should stay free", c.LegIndex)
		}
	}
}

func TestRepository_Outbox(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	trip := testTrip(uuid.New())
	if err := repo.CreateTrip(ctx, trip, []string{"1A"}); err != nil {
		t.Fatal(err)
	}

	ev := domain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "trip",
		AggregateID:   trip.ID,
		EventType:     domain.EventInventoryChanged,
		Payload:       []byte(`{"seat_no":"1A"}`),
		DedupeKey:     uuid.New().String(),
	}
	err := repo.WithTx(ctx, func(tx inventory.Tx) error {
		return tx.InsertOutbox(ctx, ev)
	})
	if err != nil {
		t.Fatal(err)
	}

	events, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != ev.ID {
		t.Fatalf("expected the inserted event back, got %d events", len(events))
	}

	if err := repo.MarkPublished(ctx, ev.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	events, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected no unpublished events, got %d", len(events))
	}
}
