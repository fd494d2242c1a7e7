package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/enterprise/internal/catalog"
	"github.com/opentrusty/enterprise/internal/customer"
)

// linkedFilter restricts listings to customers the caller is linked to.
// Staff see every customer.
func linkedFilter(r *http.Request) customer.ListFilter {
	var filter customer.ListFilter
	if p := GetPrincipal(r.Context()); p != nil && !p.IsStaff {
		id := p.UserID
		filter.LinkedUserID = &id
	}
	return filter
}

// ListCustomers lists the customers visible to the caller
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.List(r.Context(), linkedFilter(r))
	if err != nil {
		respondServiceError(w, r, err, "failed to list enterprise customers")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// basicCustomer is the lightweight listing representation
type basicCustomer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BasicListCustomers supports name and uuid lookups
func (h *Handler) BasicListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := linkedFilter(r)
	filter.NameStarts = q.Get("startswith")
	filter.NameOrUUID = q.Get("name_or_uuid")

	customers, err := h.customers.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err, "failed to list enterprise customers")
		return
	}
	out := make([]basicCustomer, 0, len(customers))
	for _, c := range customers {
		out = append(out, basicCustomer{ID: c.UUID, Name: c.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

// DashboardListCustomers lists customers for the admin dashboard
func (h *Handler) DashboardListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customers, err := h.customers.DashboardList(r.Context(), linkedFilter(r), customer.DashboardQuery{
		EnterpriseID: q.Get("enterprise_id"),
		Slug:         q.Get("enterprise_slug"),
		Search:       q.Get("search"),
	})
	if err != nil {
		respondServiceError(w, r, err, "failed to list enterprise customers")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// GetCustomer returns one customer visible to the caller
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	filter := linkedFilter(r)
	filter.UUID = chi.URLParam(r, "uuid")

	customers, err := h.customers.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err, "failed to retrieve enterprise customer")
		return
	}
	if len(customers) == 0 {
		respondError(w, http.StatusNotFound, "enterprise customer not found")
		return
	}
	respondJSON(w, http.StatusOK, customers[0])
}

// CreateCustomer creates a customer
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.customers.Create(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		if errors.Is(err, customer.ErrCustomerExists) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondServiceError(w, r, err, "failed to create enterprise customer")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// UpdateCustomer applies a partial update
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customer.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.customers.Update(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "uuid"), req)
	if err != nil {
		respondServiceError(w, r, err, "failed to update enterprise customer")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ToggleUniversalLinkRequest sets the universal link flag
type ToggleUniversalLinkRequest struct {
	EnableUniversalLink *bool `json:"enable_universal_link"`
}

// ToggleUniversalLink enables or disables universal linking
func (h *Handler) ToggleUniversalLink(w http.ResponseWriter, r *http.Request) {
	var req ToggleUniversalLinkRequest
	if err := decodeJSON(r, &req); err != nil || req.EnableUniversalLink == nil {
		respondError(w, http.StatusBadRequest, "enable_universal_link is required")
		return
	}

	changed, err := h.customers.ToggleUniversalLink(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "uuid"), *req.EnableUniversalLink)
	if err != nil {
		respondServiceError(w, r, err, "failed to toggle universal link")
		return
	}
	if !changed {
		respondJSON(w, http.StatusOK, map[string]string{"detail": "No changes"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enable_universal_link": *req.EnableUniversalLink})
}

// UnlinkUsersRequest lists the emails to unlink
type UnlinkUsersRequest struct {
	UserEmails []string `json:"user_emails"`
	// IsRelinkable defaults to true
	IsRelinkable *bool `json:"is_relinkable"`
}

// UnlinkUsers unlinks every email in one transaction
func (h *Handler) UnlinkUsers(w http.ResponseWriter, r *http.Request) {
	var req UnlinkUsersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	relinkable := req.IsRelinkable == nil || *req.IsRelinkable

	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	if err := h.customers.UnlinkUsers(r.Context(), c, req.UserEmails, relinkable); err != nil {
		var unlinkErr *customer.UnlinkError
		if errors.As(err, &unlinkErr) {
			respondServiceError(w, r, err, "Could not unlink "+unlinkErr.Email+" from "+c.Name)
			return
		}
		respondServiceError(w, r, err, "failed to unlink users")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unlinked": len(req.UserEmails)})
}

// pendingUser is one entry of a link pending learners request
type pendingUser struct {
	UserEmail string `json:"user_email"`
}

// LinkPendingUsers links learner emails, creating pending memberships for
// emails without an account. A single object or a list is accepted.
func (h *Handler) LinkPendingUsers(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		respondError(w, http.StatusBadRequest, "At least one user email is required.")
		return
	}

	var users []pendingUser
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &users); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		var one pendingUser
		if err := json.Unmarshal(trimmed, &one); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if one.UserEmail != "" {
			users = append(users, one)
		}
	}

	emails := make([]string, 0, len(users))
	for _, u := range users {
		if email := strings.TrimSpace(u.UserEmail); email != "" {
			emails = append(emails, email)
		}
	}

	c, err := h.customers.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	created, err := h.customers.LinkLearners(r.Context(), c, emails)
	if err != nil {
		if errors.Is(err, customer.ErrNoEmails) {
			respondError(w, http.StatusBadRequest, "At least one user email is required.")
			return
		}
		respondServiceError(w, r, err, "failed to link learners")
		return
	}
	if !created {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusCreated, users)
}

// ContainsContentItems reports whether the customer's catalogs hold the
// given course runs and programs
func (h *Handler) ContainsContentItems(w http.ResponseWriter, r *http.Request) {
	courseRunIDs := splitValues(rawQueryValues(r, "course_run_ids"))
	programUUIDs := splitValues(rawQueryValues(r, "program_uuids"))

	customerUUID := chi.URLParam(r, "uuid")
	if _, err := h.customers.Get(r.Context(), customerUUID); err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	ok, err := h.catalog.ContainsContentItems(r.Context(), customerUUID, courseRunIDs, programUUIDs)
	if err != nil {
		if errors.Is(err, catalog.ErrNoContentItems) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, r, err, "failed to check catalog content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"contains_content_items": ok})
}

// ListIntegratedChannels lists the customer's LMS channel configurations
func (h *Handler) ListIntegratedChannels(w http.ResponseWriter, r *http.Request) {
	views, err := h.integrations.ListForCustomer(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		respondServiceError(w, r, err, "failed to list integrated channels")
		return
	}
	respondJSON(w, http.StatusOK, views)
}

// UpdateBranding creates or updates the customer's branding
func (h *Handler) UpdateBranding(w http.ResponseWriter, r *http.Request) {
	var upd customer.BrandingUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.customers.UpdateBranding(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "uuid"), upd); err != nil {
		respondServiceError(w, r, err, "Error with updating branding configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rawQueryValues returns every value of key without turning '+' into a
// space. Course run keys carry literal plus signs.
func rawQueryValues(r *http.Request, key string) []string {
	var out []string
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k != key {
			continue
		}
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
		out = append(out, v)
	}
	return out
}

// splitValues flattens repeated and comma separated query values
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
