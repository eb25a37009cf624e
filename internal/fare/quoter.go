// Package fare is the quoting collaborator. Quotes are pure reads; the
// booking coordinator validates payment amounts against them inside its
// transaction scope.
package fare

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/domain"
)

type Quoter interface {
	QuoteFare(ctx context.Context, tripID uuid.UUID, originSeq, destinationSeq int) (*domain.FareQuote, error)
}

// TripSource resolves a trip to its base for rule lookup.
type TripSource interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*domain.Trip, error)
}

// RuleSource reads per-leg prices from master data.
type RuleSource interface {
	GetTripBase(ctx context.Context, id uuid.UUID) (*domain.TripBase, error)
	GetFareRule(ctx context.Context, patternID uuid.UUID) (float64, error)
}

// CatalogQuoter prices a leg range from the pattern's fare rule.
type CatalogQuoter struct {
	trips TripSource
	rules RuleSource
}

func NewCatalogQuoter(trips TripSource, rules RuleSource) *CatalogQuoter {
	return &CatalogQuoter{trips: trips, rules: rules}
}

func (q *CatalogQuoter) QuoteFare(ctx context.Context, tripID uuid.UUID, originSeq, destinationSeq int) (*domain.FareQuote, error) {
	legs := domain.LegRange(originSeq, destinationSeq)
	if legs == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "empty leg range")
	}
	trip, err := q.trips.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.BaseID == nil {
		return nil, errors.Wrap(domain.ErrNotFound, "trip has no base, no fare rule applies")
	}
	base, err := q.rules.GetTripBase(ctx, *trip.BaseID)
	if err != nil {
		return nil, err
	}
	perLeg, err := q.rules.GetFareRule(ctx, base.PatternID)
	if err != nil {
		return nil, err
	}

	quote := &domain.FareQuote{Breakdown: make(map[int]float64, len(legs))}
	for _, leg := range legs {
		quote.Breakdown[leg] = perLeg
		quote.Total += perLeg
	}
	return quote, nil
}

// Fixed quotes a flat per-leg price. Test and fallback implementation.
type Fixed struct {
	PerLeg float64
}

func (f Fixed) QuoteFare(ctx context.Context, tripID uuid.UUID, originSeq, destinationSeq int) (*domain.FareQuote, error) {
	legs := domain.LegRange(originSeq, destinationSeq)
	if legs == nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "empty leg range")
	}
	quote := &domain.FareQuote{Breakdown: make(map[int]float64, len(legs))}
	for _, leg := range legs {
		quote.Breakdown[leg] = f.PerLeg
		quote.Total += f.PerLeg
	}
	return quote, nil
}
