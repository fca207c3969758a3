package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/morningmarket/morningmarket-backend/api/responses"
	"github.com/morningmarket/morningmarket-backend/internal/reservations"
	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

// AdminConfirmPickup marks a reservation as handed over at the counter.
func AdminConfirmPickup(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservations service unavailable"))
			return
		}

		reservationID, err := parseUUIDParam(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.ConfirmPickup(r.Context(), reservationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, reservation)
	}
}

// AdminAggregates returns the folded per-product totals for a sell date.
func AdminAggregates(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		raw := strings.TrimSpace(r.URL.Query().Get("date"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "date query parameter is required"))
			return
		}
		date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date, expected YYYY-MM-DD"))
			return
		}

		aggs, err := svc.AggregatesForDate(r.Context(), date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, aggs)
	}
}

// AdminSettlementOrphans lists claimed-but-unfinished settlement batches.
func AdminSettlementOrphans(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		orphans, err := svc.ListOrphanedBatches(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, orphans)
	}
}

// AdminRefoldBatch re-drives an orphaned settlement batch to completion.
func AdminRefoldBatch(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		batchUID := strings.TrimSpace(chi.URLParam(r, "batchUid"))
		if batchUID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "batch uid is required"))
			return
		}

		result, err := svc.RefoldBatch(r.Context(), batchUID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
