package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/enterprise/internal/customer"
)

// ListInviteKeys lists the invite keys of one customer
func (h *Handler) ListInviteKeys(w http.ResponseWriter, r *http.Request) {
	customerUUID := r.URL.Query().Get("enterprise_customer_uuid")
	if customerUUID == "" {
		respondError(w, http.StatusBadRequest, "enterprise_customer_uuid is required")
		return
	}

	keys, err := h.customers.ListInviteKeys(r.Context(), customerUUID)
	if err != nil {
		respondServiceError(w, r, err, "failed to list invite keys")
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

// CreateInviteKey creates an invite key
func (h *Handler) CreateInviteKey(w http.ResponseWriter, r *http.Request) {
	var req customer.CreateInviteKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	k, err := h.customers.CreateInviteKey(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err, "failed to create invite key")
		return
	}
	respondJSON(w, http.StatusCreated, k)
}

// GetInviteKey returns one invite key
func (h *Handler) GetInviteKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.customers.GetInviteKey(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, customer.ErrInviteKeyNotFound) {
			respondError(w, http.StatusNotFound, "invite key not found")
			return
		}
		respondServiceError(w, r, err, "failed to retrieve invite key")
		return
	}
	respondJSON(w, http.StatusOK, k)
}

// UpdateInviteKeyRequest carries the mutable invite key fields
type UpdateInviteKeyRequest struct {
	IsActive *bool `json:"is_active"`
}

// UpdateInviteKey deactivates an invite key
func (h *Handler) UpdateInviteKey(w http.ResponseWriter, r *http.Request) {
	var req UpdateInviteKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	k, err := h.customers.UpdateInviteKey(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "uuid"), req.IsActive)
	if err != nil {
		switch {
		case errors.Is(err, customer.ErrInviteKeyNotFound):
			respondError(w, http.StatusNotFound, "invite key not found")
		case errors.Is(err, customer.ErrInviteKeyReactivation):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		default:
			respondServiceError(w, r, err, "failed to update invite key")
		}
		return
	}
	respondJSON(w, http.StatusOK, k)
}

// inviteLinkResponse names the customer the caller was linked to
type inviteLinkResponse struct {
	EnterpriseCustomerSlug string `json:"enterprise_customer_slug"`
	EnterpriseCustomerUUID string `json:"enterprise_customer_uuid"`
}

// LinkUserWithInviteKey links the caller to the invite key's customer.
// 201 when a membership was created, 200 when one already existed.
func (h *Handler) LinkUserWithInviteKey(w http.ResponseWriter, r *http.Request) {
	cu, created, err := h.customers.LinkWithInviteKey(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "uuid"))
	if err != nil {
		var linkErr *customer.LinkUserError
		switch {
		case errors.Is(err, customer.ErrInviteKeyNotFound):
			respondError(w, http.StatusNotFound, "invite key not found")
		case errors.Is(err, customer.ErrInviteKeyInvalid):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Enterprise customer invite key is not valid"})
		case errors.Is(err, customer.ErrNotRelinkable), errors.As(err, &linkErr):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		default:
			respondServiceError(w, r, err, "failed to link user")
		}
		return
	}

	c, err := h.customers.Get(r.Context(), cu.EnterpriseCustomerUUID)
	if err != nil {
		respondServiceError(w, r, err, "failed to load enterprise customer")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, inviteLinkResponse{
		EnterpriseCustomerSlug: c.Slug,
		EnterpriseCustomerUUID: c.UUID,
	})
}
