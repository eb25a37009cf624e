package domain

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrPrecondition         = errors.New("precondition failed")
	ErrBaseNotEligible      = errors.New("base not eligible")
	ErrDuplicateTrip        = errors.New("duplicate trip")
	ErrDuplicateBooking     = errors.New("duplicate booking key")
	ErrExpiredOrMissingHold = errors.New("hold expired or missing")
)

// ConflictError reports seats that are already booked on at least one of the
// requested legs. Always surfaced as a value so the caller can offer
// alternatives.
type ConflictError struct {
	Seats []string
}

func (e *ConflictError) Error() string {
	return "seats already booked: " + strings.Join(e.Seats, ", ")
}

// HeldByOtherError reports a seat held by a different operator.
type HeldByOtherError struct {
	SeatNo string
}

func (e *HeldByOtherError) Error() string {
	return fmt.Sprintf("seat %s held by another operator", e.SeatNo)
}

// IncompleteInventoryError means the cell set for a seat does not cover the
// requested legs: inventory was never built, or only partially.
type IncompleteInventoryError struct {
	SeatNo string
	Want   int
	Got    int
}

func (e *IncompleteInventoryError) Error() string {
	return fmt.Sprintf("seat %s: %d of %d leg cells provisioned", e.SeatNo, e.Got, e.Want)
}

// PaymentMismatchError is returned before any write when the supplied amount
// disagrees with the quote beyond the configured tolerance.
type PaymentMismatchError struct {
	Quoted   float64
	Supplied float64
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment %.2f does not match quote %.2f", e.Supplied, e.Quoted)
}

// ShortfallError is returned by seat selection when fewer seats qualify than
// requested. A partial list is never returned silently.
type ShortfallError struct {
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("requested %d seats, only %d free across all legs", e.Requested, e.Available)
}
