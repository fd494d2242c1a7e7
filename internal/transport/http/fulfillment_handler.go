package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/subsidy"
)

const msgFulfillmentNotFound = "No enrollment found for the given fulfillment source uuid."

// fulfillmentScope limits fulfillment lookups to the caller's customer.
// Staff see every enterprise.
func (h *Handler) fulfillmentScope(r *http.Request) (subsidy.Scope, error) {
	if p := GetPrincipal(r.Context()); p != nil && p.IsStaff {
		return subsidy.Scope{AllEnterprises: true}, nil
	}
	enterpriseID, err := h.CallerCustomer(r)
	if errors.Is(err, customer.ErrCustomerUserNotFound) {
		return subsidy.Scope{}, nil
	}
	return subsidy.Scope{EnterpriseID: enterpriseID}, err
}

// GetFulfillment returns one subsidy fulfillment
func (h *Handler) GetFulfillment(w http.ResponseWriter, r *http.Request) {
	scope, err := h.fulfillmentScope(r)
	if err != nil {
		respondServiceError(w, r, err, "failed to resolve enterprise")
		return
	}

	f, err := h.subsidies.Get(r.Context(), chi.URLParam(r, "uuid"), scope)
	if err != nil {
		if subsidy.IsNotFound(err) {
			respondError(w, http.StatusNotFound, msgFulfillmentNotFound)
			return
		}
		respondServiceError(w, r, err, "failed to retrieve subsidy fulfillment")
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// CancelEnrollment terminates the enrollment behind one fulfillment
func (h *Handler) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	scope, err := h.fulfillmentScope(r)
	if err != nil {
		respondServiceError(w, r, err, "failed to resolve enterprise")
		return
	}

	fulfillmentUUID := chi.URLParam(r, "uuid")
	status, err := h.subsidies.CancelEnrollment(r.Context(), GetUserID(r.Context()), scope, fulfillmentUUID)
	if err != nil {
		var modErr *subsidy.EnrollmentModificationError
		switch {
		case errors.Is(err, subsidy.ErrAlreadyRevoked):
			respondError(w, http.StatusBadRequest, "Enrollment is already canceled.")
		case subsidy.IsNotFound(err):
			respondError(w, http.StatusNotFound, msgFulfillmentNotFound)
		case errors.As(err, &modErr):
			slog.ErrorContext(r.Context(), "subsidized enrollment termination failed",
				logger.FulfillmentUUID(fulfillmentUUID),
				logger.Error(err),
			)
			respondError(w, http.StatusInternalServerError, modErr.Error())
		default:
			respondServiceError(w, r, err, "failed to cancel enrollment")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// ListUnenrolledFulfillments lists recently unenrolled fulfillments
func (h *Handler) ListUnenrolledFulfillments(w http.ResponseWriter, r *http.Request) {
	scope, err := h.fulfillmentScope(r)
	if err != nil {
		respondServiceError(w, r, err, "failed to resolve enterprise")
		return
	}

	q := r.URL.Query()
	var after *time.Time
	if raw := q.Get("unenrolled_after"); raw != "" {
		t, err := parseDateTime(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unenrolled_after must be an ISO-8601 datetime")
			return
		}
		after = &t
	}
	kind := subsidy.KindLearnerCredit
	if truthy(q.Get("retrieve_licensed_enrollments")) {
		kind = subsidy.KindLicense
	}

	fs, err := h.subsidies.ListUnenrolled(r.Context(), scope, kind, after)
	if err != nil {
		respondServiceError(w, r, err, "failed to list unenrolled fulfillments")
		return
	}
	respondJSON(w, http.StatusOK, fs)
}

// LicenseRevokeRequest identifies the learner whose licensed
// enrollments are terminated
type LicenseRevokeRequest struct {
	UserID       json.Number `json:"user_id"`
	EnterpriseID string      `json:"enterprise_id"`
}

// LicenseRevoke terminates every licensed enrollment of one learner
func (h *Handler) LicenseRevoke(w http.ResponseWriter, r *http.Request) {
	var req LicenseRevokeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID, err := req.UserID.Int64()
	if err != nil || userID <= 0 || req.EnterpriseID == "" {
		respondError(w, http.StatusBadRequest, "user_id and enterprise_id must be provided.")
		return
	}

	results, err := h.subsidies.RevokeLicensesForUser(r.Context(), GetUserID(r.Context()), req.EnterpriseID, userID)
	if err != nil {
		if errors.Is(err, customer.ErrCustomerUserNotFound) {
			respondError(w, http.StatusNotFound, "enterprise customer user not found")
			return
		}
		respondServiceError(w, r, err, "failed to revoke licensed enrollments")
		return
	}

	status := http.StatusOK
	if results.AnyFailures() {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, results)
}

// BulkExpirationRequest lists expired licenses
type BulkExpirationRequest struct {
	ExpiredLicenseUUIDs []string `json:"expired_license_uuids"`
	// IgnoreModifiedAfter skips enrollments changed at or after it
	IgnoreModifiedAfter string `json:"ignore_enrollments_modified_after"`
}

// BulkLicenseExpiration terminates the enrollments of expired licenses
func (h *Handler) BulkLicenseExpiration(w http.ResponseWriter, r *http.Request) {
	var req BulkExpirationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ExpiredLicenseUUIDs) == 0 {
		respondError(w, http.StatusBadRequest, "Parameter expired_license_uuids must be provided")
		return
	}

	var cutoff *time.Time
	if req.IgnoreModifiedAfter != "" {
		t, err := parseDateTime(req.IgnoreModifiedAfter)
		if err != nil {
			respondError(w, http.StatusBadRequest,
				"Parameter ignore_enrollments_modified_after is malformed, please provide a date in ISO-8601 format")
			return
		}
		cutoff = &t
	}

	result, err := h.subsidies.ExpireLicenses(r.Context(), GetUserID(r.Context()), req.ExpiredLicenseUUIDs, cutoff)
	if err != nil {
		if errors.Is(err, subsidy.ErrNoLicenseUUIDs) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, r, err, "failed to expire licensed enrollments")
		return
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateTime accepts ISO-8601 datetimes. Values without an offset are UTC.
func parseDateTime(raw string) (time.Time, error) {
	var err error
	for _, layout := range dateTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// truthy accepts yes and the strconv.ParseBool spellings of true. Anything
// else, including unparseable values, is false.
func truthy(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "yes" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
