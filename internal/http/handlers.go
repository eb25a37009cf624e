package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rideline/rideline/internal/adapters/crdb"
	mongoadapter "github.com/rideline/rideline/internal/adapters/mongo"
	"github.com/rideline/rideline/internal/booking"
	"github.com/rideline/rideline/internal/config"
	"github.com/rideline/rideline/internal/domain"
	"github.com/rideline/rideline/internal/hold"
	"github.com/rideline/rideline/internal/idempotency"
	"github.com/rideline/rideline/internal/inventory"
	"github.com/rideline/rideline/internal/materialize"
	"github.com/rideline/rideline/internal/observability"
	"github.com/rideline/rideline/internal/selector"
)

type Handlers struct {
	cfg     *config.Config
	holds   *hold.Manager
	sel     *selector.Selector
	coord   *booking.Coordinator
	mat     *materialize.Materializer
	inv     *inventory.Service
	repo    *crdb.Repository
	catalog *mongoadapter.CatalogRepository
	idemp   *idempotency.Idempotency
	audit   *mongoadapter.AuditLogger
	logger  observability.Logger
}

func NewHandlers(cfg *config.Config, holds *hold.Manager, sel *selector.Selector, coord *booking.Coordinator, mat *materialize.Materializer, inv *inventory.Service, repo *crdb.Repository, catalog *mongoadapter.CatalogRepository, idemp *idempotency.Idempotency, audit *mongoadapter.AuditLogger, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		holds:   holds,
		sel:     sel,
		coord:   coord,
		mat:     mat,
		inv:     inv,
		repo:    repo,
		catalog: catalog,
		idemp:   idemp,
		audit:   audit,
		logger:  logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeDomainError maps the error taxonomy to statuses. Conflict-class
// results always name the seats so the client can offer alternatives.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	var (
		conflict   *domain.ConflictError
		heldOther  *domain.HeldByOtherError
		shortfall  *domain.ShortfallError
		mismatch   *domain.PaymentMismatchError
		incomplete *domain.IncompleteInventoryError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "conflict", "seats": conflict.Seats})
	case errors.As(err, &heldOther):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "held-by-other", "seat_no": heldOther.SeatNo})
	case errors.As(err, &shortfall):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "shortfall", "requested": shortfall.Requested, "available": shortfall.Available,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": "payment-mismatch", "quoted": mismatch.Quoted, "supplied": mismatch.Supplied,
		})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": "incomplete-inventory", "seat_no": incomplete.SeatNo, "want": incomplete.Want, "got": incomplete.Got,
		})
	case errors.Is(err, domain.ErrBaseNotEligible):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": "base-not-eligible"})
	case errors.Is(err, domain.ErrExpiredOrMissingHold):
		writeJSON(w, http.StatusGone, map[string]interface{}{"error": "hold-expired-or-missing"})
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPrecondition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrSerializationFailure), errors.Is(err, domain.ErrDuplicateBooking):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TripID         uuid.UUID `json:"trip_id"`
		SeatNo         string    `json:"seat_no"`
		OriginSeq      int       `json:"origin_seq"`
		DestinationSeq int       `json:"destination_seq"`
		TTLClass       string    `json:"ttl_class"`
		OperatorID     uuid.UUID `json:"operator_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TTLClass == "" {
		req.TTLClass = string(domain.TTLShort)
	}
	legs := domain.LegRange(req.OriginSeq, req.DestinationSeq)
	if legs == nil {
		http.Error(w, "origin must precede destination", http.StatusBadRequest)
		return
	}

	held, already, err := h.holds.Create(r.Context(), req.TripID, req.SeatNo, legs, domain.TTLClass(req.TTLClass), req.OperatorID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	result := "held"
	if already {
		status = http.StatusOK
		result = "already-held-by-you"
	} else if h.audit != nil {
		h.audit.LogHold(r.Context(), held)
	}
	writeJSON(w, status, map[string]interface{}{
		"hold_ref":   held.Ref,
		"result":     result,
		"ttl_class":  held.Class,
		"expires_at": held.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	ref, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, "invalid hold ref", http.StatusBadRequest)
		return
	}
	h.holds.Release(r.Context(), ref)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ExtendHold(w http.ResponseWriter, r *http.Request) {
	ref, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, "invalid hold ref", http.StatusBadRequest)
		return
	}
	var req struct {
		TTLClass string `json:"ttl_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.holds.Extend(ref, domain.TTLClass(req.TTLClass), nil) {
		h.writeDomainError(w, domain.ErrExpiredOrMissingHold)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) SelectSeats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TripID         uuid.UUID `json:"trip_id"`
		OriginSeq      int       `json:"origin_seq"`
		DestinationSeq int       `json:"destination_seq"`
		Count          int       `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	legs := domain.LegRange(req.OriginSeq, req.DestinationSeq)
	if legs == nil {
		http.Error(w, "origin must precede destination", http.StatusBadRequest)
		return
	}

	seats, err := h.sel.Select(r.Context(), req.TripID, legs, req.Count)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seats": seats})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		TripID         uuid.UUID `json:"trip_id"`
		OriginSeq      int       `json:"origin_seq"`
		DestinationSeq int       `json:"destination_seq"`
		Passengers     []struct {
			Name   string `json:"name"`
			SeatNo string `json:"seat_no"`
		} `json:"passengers"`
		OperatorID uuid.UUID `json:"operator_id"`
		Amount     float64   `json:"amount"`
		Method     string    `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	breq := booking.Request{
		TripID:         req.TripID,
		OriginSeq:      req.OriginSeq,
		DestinationSeq: req.DestinationSeq,
		OperatorID:     req.OperatorID,
		Amount:         req.Amount,
		Method:         req.Method,
		IdempotencyKey: key,
	}
	for _, p := range req.Passengers {
		breq.Passengers = append(breq.Passengers, booking.PassengerSpec{Name: p.Name, SeatNo: p.SeatNo})
	}

	result, err := h.coord.Book(r.Context(), breq)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.audit != nil && !result.Replayed {
		h.audit.LogBooking(r.Context(), req.OperatorID, result.Booking)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	data := writeJSON(w, status, map[string]interface{}{
		"booking_id":    result.Booking.ID,
		"status":        result.Booking.Status,
		"total":         result.Booking.TotalAmount,
		"print_payload": json.RawMessage(orNull(result.PrintPayload)),
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
}

func orNull(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("null")
	}
	return payload
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	b, err := h.repo.GetBooking(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id":      b.ID,
		"trip_id":         b.TripID,
		"origin_seq":      b.OriginSeq,
		"destination_seq": b.DestinationSeq,
		"status":          b.Status,
		"total":           b.TotalAmount,
		"passengers":      b.Passengers,
	})
}

func (h *Handlers) MaterializeTrip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseID      uuid.UUID `json:"base_id"`
		ServiceDate string    `json:"service_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tripID, err := h.mat.EnsureTrip(r.Context(), req.BaseID, req.ServiceDate)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.audit != nil {
		h.audit.LogMaterialized(r.Context(), req.BaseID, tripID, req.ServiceDate)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip_id": tripID})
}

func (h *Handlers) BuildInventory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}
	trip, err := h.repo.GetTrip(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	layout, err := h.catalog.GetLayout(r.Context(), trip.LayoutID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.inv.Build(r.Context(), trip, layout); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SeatMap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid trip id", http.StatusBadRequest)
		return
	}
	trip, err := h.repo.GetTrip(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	legs := make([]int, 0, len(trip.Legs))
	for _, l := range trip.Legs {
		legs = append(legs, l.LegIndex)
	}

	cells, err := h.inv.ReadCells(r.Context(), id, legs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	type cellView struct {
		SeatNo   string `json:"seat_no"`
		LegIndex int    `json:"leg_index"`
		State    string `json:"state"`
	}
	views := make([]cellView, 0, len(cells))
	for _, c := range cells {
		state := "free"
		if c.Booked {
			state = "booked"
		} else if c.HoldRef != nil {
			state = "held"
		}
		views = append(views, cellView{SeatNo: c.SeatNo, LegIndex: c.LegIndex, State: state})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip_id": id, "cells": views})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
