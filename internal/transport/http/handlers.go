// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/enterprise/internal/analytics"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/authz"
	"github.com/opentrusty/enterprise/internal/catalog"
	"github.com/opentrusty/enterprise/internal/codes"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/enrollment"
	"github.com/opentrusty/enterprise/internal/integration"
	"github.com/opentrusty/enterprise/internal/notification"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/reporting"
	"github.com/opentrusty/enterprise/internal/subsidy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// BasePath prefixes every enterprise API route
const BasePath = "/enterprise/api/v1"

// Services groups the domain services served over HTTP
type Services struct {
	Customers     *customer.Service
	Enrollment    *enrollment.BulkService
	Subsidies     *subsidy.Service
	Catalog       *catalog.Service
	Integrations  *integration.Service
	Codes         *codes.Service
	Notifications *notification.Service
	Reports       *reporting.Service
	Analytics     *analytics.TokenIssuer
	Authz         *authz.Service
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	customers     *customer.Service
	enrollment    *enrollment.BulkService
	subsidies     *subsidy.Service
	catalog       *catalog.Service
	integrations  *integration.Service
	codes         *codes.Service
	notifications *notification.Service
	reports       *reporting.Service
	analytics     *analytics.TokenIssuer
	authz         *authz.Service
	verifier      *TokenVerifier
	auditLogger   audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, verifier *TokenVerifier, auditLogger audit.Logger) *Handler {
	return &Handler{
		customers:     svc.Customers,
		enrollment:    svc.Enrollment,
		subsidies:     svc.Subsidies,
		catalog:       svc.Catalog,
		integrations:  svc.Integrations,
		codes:         svc.Codes,
		notifications: svc.Notifications,
		reports:       svc.Reports,
		analytics:     svc.Analytics,
		authz:         svc.Authz,
		verifier:      verifier,
		auditLogger:   auditLogger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.StripSlashes)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route(BasePath, func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		h.routes(r)
	})

	return r
}

// routes registers the authenticated API. Each route carries its own
// permission guard.
func (h *Handler) routes(r chi.Router) {
	enroll := authz.PermEnrollLearners
	admin := authz.PermAccessAdminDashboard
	byPath := PathParam("uuid")

	// Enrollment and subsidy lifecycle
	r.With(h.RequirePermission(enroll, byPath)).
		Post("/enrollment-source/{uuid}/enroll-bulk", h.EnrollBulk)
	r.Route("/subsidy-fulfillment/{uuid}", func(r chi.Router) {
		r.With(h.RequirePermission(admin, h.CallerCustomer)).Get("/", h.GetFulfillment)
		r.With(h.RequirePermission(enroll, h.CallerCustomer)).Post("/cancel-enrollment", h.CancelEnrollment)
	})
	r.With(h.RequirePermission(authz.PermManageFulfillments, h.CallerCustomer)).
		Get("/operator/subsidy-fulfillment/unenrolled", h.ListUnenrolledFulfillments)
	r.With(h.RequirePermission(admin, BodyField("enterprise_id"))).
		Post("/licensed-enrollment/license-revoke", h.LicenseRevoke)
	r.With(h.RequirePermission(enroll, NoContext)).
		Post("/licensed-enrollment/bulk-expiration", h.BulkLicenseExpiration)

	// Customers
	r.Route("/enterprise-customer", func(r chi.Router) {
		r.Get("/", h.ListCustomers)
		r.Get("/dashboard_list", h.DashboardListCustomers)
		r.With(h.RequirePermission(admin, NoContext)).Get("/basic_list", h.BasicListCustomers)
		r.With(h.RequirePermission(admin, NoContext)).Post("/", h.CreateCustomer)

		r.Route("/{uuid}", func(r chi.Router) {
			r.Get("/", h.GetCustomer)
			r.With(h.RequirePermission(admin, byPath)).Patch("/", h.UpdateCustomer)
			r.With(h.RequirePermission(admin, byPath)).Patch("/toggle_universal_link", h.ToggleUniversalLink)
			r.With(h.RequirePermission(admin, byPath)).Post("/unlink_users", h.UnlinkUsers)
			r.With(h.RequirePermission(authz.PermViewCatalog, byPath)).Get("/contains_content_items", h.ContainsContentItems)
			r.With(h.RequirePermission(admin, byPath)).Get("/integrated-channels", h.ListIntegratedChannels)
		})
	})
	r.With(h.RequirePermission(admin, byPath)).
		Post("/link_pending_enterprise_users/{uuid}", h.LinkPendingUsers)

	// Invite keys
	r.Route("/enterprise-customer-invite-key", func(r chi.Router) {
		r.With(h.RequirePermission(admin, QueryParam("enterprise_customer_uuid"))).Get("/", h.ListInviteKeys)
		r.With(h.RequirePermission(admin, BodyField("enterprise_customer_uuid"))).Post("/", h.CreateInviteKey)
		r.Route("/{uuid}", func(r chi.Router) {
			r.With(h.RequirePermission(admin, h.InviteKeyCustomer)).Get("/", h.GetInviteKey)
			r.With(h.RequirePermission(admin, h.InviteKeyCustomer)).Patch("/", h.UpdateInviteKey)
			r.Post("/link-user", h.LinkUserWithInviteKey)
		})
	})

	// Admin portal
	r.With(h.RequirePermission(admin, byPath)).
		Patch("/enterprise-customer-branding/update-branding/{uuid}", h.UpdateBranding)
	r.With(h.RequirePermission(admin, byPath)).
		Get("/enterprise_report_types/{uuid}", h.ReportTypes)
	r.With(h.RequirePermission(admin, NoContext)).Post("/request_codes", h.RequestCodes)
	r.With(h.RequirePermission(admin, NoContext)).Post("/read_notification", h.ReadNotification)
	r.With(h.RequirePermission(admin, byPath)).Get("/plotly_token/{uuid}", h.PlotlyToken)
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "enterprise",
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps errors shared by the customer-scoped handlers.
// Anything unrecognised is logged and reported as fallback.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *customer.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, customer.ErrCustomerNotFound):
		respondError(w, http.StatusNotFound, "enterprise customer not found")
	default:
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func getIPAddress(r *http.Request) string {
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return getClientIP(r)
}
