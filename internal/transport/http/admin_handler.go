package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/enterprise/internal/codes"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/notification"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// ReportTypes returns the reporting configuration choices for a customer
func (h *Handler) ReportTypes(w http.ResponseWriter, r *http.Request) {
	choices, err := h.reports.ReportTypes(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, customer.ErrCustomerNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]string{"detail": "Could not find the enterprise customer."})
			return
		}
		respondServiceError(w, r, err, "failed to load report types")
		return
	}
	respondJSON(w, http.StatusOK, choices)
}

// RequestCodes emails a coupon code request to customer success
func (h *Handler) RequestCodes(w http.ResponseWriter, r *http.Request) {
	var req codes.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.codes.RequestCodes(r.Context(), GetUserID(r.Context()), req); err != nil {
		var missing *codes.MissingParamsError
		switch {
		case errors.As(err, &missing):
			respondError(w, http.StatusBadRequest, missing.Error())
		case errors.Is(err, codes.ErrSendFailed):
			respondError(w, http.StatusInternalServerError, "Request codes email could not be sent")
		default:
			respondServiceError(w, r, err, "failed to request codes")
		}
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// ReadNotification marks an admin notification read for the caller
func (h *Handler) ReadNotification(w http.ResponseWriter, r *http.Request) {
	var req notification.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	marker, err := h.notifications.MarkRead(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		var missing *notification.MissingParamsError
		if errors.As(err, &missing) {
			respondError(w, http.StatusBadRequest, missing.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Notification read request failed")
		return
	}
	respondJSON(w, http.StatusOK, marker)
}

// PlotlyToken issues an embedded analytics token for one customer
func (h *Handler) PlotlyToken(w http.ResponseWriter, r *http.Request) {
	customerUUID := chi.URLParam(r, "uuid")
	if _, err := h.customers.Get(r.Context(), customerUUID); err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	token, err := h.analytics.Issue(customerUUID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue analytics token",
			logger.EnterpriseID(customerUUID),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to issue analytics token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
