package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/enrollment"
)

// EnrollBulk enrolls learners of one customer in course runs under their
// subsidies. The status reflects the worst outcome: 409 when anything
// failed, 202 when something is pending, 201 otherwise.
func (h *Handler) EnrollBulk(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	var req enrollment.BulkEnrollRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.enrollment.Enroll(r.Context(), GetUserID(r.Context()), c, req)
	if err != nil {
		var verr *enrollment.ValidationError
		var cverr *customer.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, verr.Error())
		case errors.As(err, &cverr):
			respondError(w, http.StatusBadRequest, cverr.Error())
		default:
			respondServiceError(w, r, err, "failed to enroll learners")
		}
		return
	}
	respondJSON(w, result.StatusCode(), result)
}
