// Package materialize turns a recurring trip base plus a calendar date into
// a concrete, bookable trip. Materialization is idempotent: for one
// (base, date) pair exactly one trip, one set of stop times, one set of legs
// and one inventory matrix ever exist, no matter how many callers race.
package materialize

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/notify"
	"github.com/rideline/rideline/internal/observability"
)

const dateLayout = "2006-01-02"

// Catalog is the read-only master-data collaborator.
type Catalog interface {
	GetTripBase(ctx context.Context, id uuid.UUID) (*domain.TripBase, error)
	GetLayout(ctx context.Context, id uuid.UUID) (*domain.Layout, error)
}

// TripStore persists the materialized trip. CreateTrip writes trip, stop
// times, legs and cells in one transaction and reports ErrDuplicateTrip when
// the (base, date) uniqueness constraint fires.
type TripStore interface {
	FindTripByBase(ctx context.Context, baseID uuid.UUID, serviceDate string) (uuid.UUID, error)
	CreateTrip(ctx context.Context, trip *domain.Trip, seats []string) error
}

type Materializer struct {
	catalog  Catalog
	store    TripStore
	notifier notify.Notifier
	logger   observability.Logger
}

func NewMaterializer(catalog Catalog, store TripStore, notifier notify.Notifier, logger observability.Logger) *Materializer {
	return &Materializer{catalog: catalog, store: store, notifier: notifier, logger: logger}
}

// Eligible reports whether the base runs on serviceDate: active, inside the
// validity window, and flagged for the date's weekday in the base timezone.
func Eligible(base *domain.TripBase, serviceDate string) (bool, error) {
	loc, err := time.LoadLocation(base.Timezone)
	if err != nil {
		return false, errors.Wrapf(domain.ErrInvalidInput, "bad timezone %q", base.Timezone)
	}
	day, err := time.ParseInLocation(dateLayout, serviceDate, loc)
	if err != nil {
		return false, errors.Wrapf(domain.ErrInvalidInput, "bad service date %q", serviceDate)
	}
	if !base.Active {
		return false, nil
	}
	if base.ValidFrom != nil && day.Before(*base.ValidFrom) {
		return false, nil
	}
	if base.ValidTo != nil && day.After(*base.ValidTo) {
		return false, nil
	}
	return base.RunsOn(day.Weekday()), nil
}

// EnsureTrip returns the trip id for (baseID, serviceDate), creating the
// trip if it does not exist yet. A lost creation race is recovered by
// re-fetching the winner's trip; the caller never sees the collision.
func (m *Materializer) EnsureTrip(ctx context.Context, baseID uuid.UUID, serviceDate string) (uuid.UUID, error) {
	if id, err := m.store.FindTripByBase(ctx, baseID, serviceDate); err == nil {
		return id, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, err
	}

	base, err := m.catalog.GetTripBase(ctx, baseID)
	if err != nil {
		return uuid.Nil, err
	}
	ok, err := Eligible(base, serviceDate)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, domain.ErrBaseNotEligible
	}

	layout, err := m.catalog.GetLayout(ctx, base.LayoutID)
	if err != nil {
		return uuid.Nil, err
	}
	seats := layout.ActiveSeats()
	if len(seats) == 0 {
		return uuid.Nil, errors.Wrap(domain.ErrPrecondition, "layout has no active seats")
	}

	trip, err := buildTrip(base, serviceDate)
	if err != nil {
		return uuid.Nil, err
	}

	start := time.Now()
	if err := m.store.CreateTrip(ctx, trip, seats); err != nil {
		if errors.Is(err, domain.ErrDuplicateTrip) {
			// A concurrent caller won the race; their trip is ours too.
			return m.store.FindTripByBase(ctx, baseID, serviceDate)
		}
		return uuid.Nil, err
	}
	observability.DBTxDuration.Observe(time.Since(start).Seconds())
	observability.TripsMaterializedTotal.Inc()

	m.logger.WithField("base_id", baseID).Info("materialized trip ", trip.ID, " for ", serviceDate)
	m.notifier.TripMaterialized(ctx, baseID, serviceDate, trip.ID)
	return trip.ID, nil
}

// buildTrip resolves the template's local HH:MM stop times against the
// service date and derives the legs. First stop needs a departure, last an
// arrival, intermediate stops both; effective times must strictly increase.
func buildTrip(base *domain.TripBase, serviceDate string) (*domain.Trip, error) {
	if len(base.Stops) < 2 {
		return nil, errors.Wrap(domain.ErrPrecondition, "base needs at least two stops")
	}
	loc, err := time.LoadLocation(base.Timezone)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "bad timezone %q", base.Timezone)
	}
	day, err := time.ParseInLocation(dateLayout, serviceDate, loc)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "bad service date %q", serviceDate)
	}

	baseID := base.ID
	trip := &domain.Trip{
		ID:          uuid.New(),
		BaseID:      &baseID,
		ServiceDate: serviceDate,
		VehicleID:   base.VehicleID,
		LayoutID:    base.LayoutID,
		Status:      domain.TripScheduled,
	}

	last := day.Add(-time.Second)
	for i, stop := range base.Stops {
		first := i == 0
		lastStop := i == len(base.Stops)-1

		arrive, err := resolveClock(day, loc, stop.Arrive)
		if err != nil {
			return nil, errors.Wrapf(err, "stop %d arrival", stop.Seq)
		}
		depart, err := resolveClock(day, loc, stop.Depart)
		if err != nil {
			return nil, errors.Wrapf(err, "stop %d departure", stop.Seq)
		}

		switch {
		case first && depart == nil:
			return nil, errors.Wrap(domain.ErrInvalidInput, "first stop needs a departure time")
		case lastStop && arrive == nil:
			return nil, errors.Wrap(domain.ErrInvalidInput, "last stop needs an arrival time")
		case !first && !lastStop && (arrive == nil) != (depart == nil):
			return nil, errors.Wrapf(domain.ErrInvalidInput, "stop %d needs both arrival and departure, or neither", stop.Seq)
		}

		if arrive != nil {
			if !arrive.After(last) {
				return nil, errors.Wrapf(domain.ErrInvalidInput, "stop %d arrival is not after the previous stop", stop.Seq)
			}
			last = *arrive
		}
		if depart != nil {
			if depart.Before(last) {
				return nil, errors.Wrapf(domain.ErrInvalidInput, "stop %d departure precedes its arrival", stop.Seq)
			}
			last = *depart
		}

		trip.Stops = append(trip.Stops, domain.TripStop{
			TripID:   trip.ID,
			Seq:      stop.Seq,
			StopID:   stop.StopID,
			ArriveAt: arrive,
			DepartAt: depart,
		})
	}

	// Leg index equals the origin stop's seq, so [originSeq, destinationSeq)
	// addresses legs directly.
	for i := 0; i < len(trip.Stops)-1; i++ {
		trip.Legs = append(trip.Legs, domain.Leg{
			TripID:   trip.ID,
			LegIndex: trip.Stops[i].Seq,
			FromSeq:  trip.Stops[i].Seq,
			ToSeq:    trip.Stops[i+1].Seq,
		})
	}
	return trip, nil
}

func resolveClock(day time.Time, loc *time.Location, hhmm string) (*time.Time, error) {
	if hhmm == "" {
		return nil, nil
	}
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "bad time %q", hhmm)
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return &t, nil
}
