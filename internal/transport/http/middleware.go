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
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// Authorization principles:
// 1. Every permission is checked against one enterprise context
// 2. The context comes from the path, the body or the caller's membership
// 3. Staff callers hold every permission in every context
// 4. Objects owned by another enterprise are reported as not found

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware verifies the bearer token and adds the principal to context
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		p, err := h.verifier.Verify(raw)
		if err != nil {
			slog.WarnContext(r.Context(), "rejected access token",
				logger.RemoteAddr(getIPAddress(r)),
				logger.Error(err),
			)
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// KeyFunc extracts the enterprise context a permission is checked against.
// An empty context asks whether the permission is held for any enterprise.
type KeyFunc func(r *http.Request) (string, error)

// NoContext checks the permission without an enterprise context
func NoContext(*http.Request) (string, error) {
	return "", nil
}

// PathParam uses a URL parameter as the enterprise context
func PathParam(name string) KeyFunc {
	return func(r *http.Request) (string, error) {
		return chi.URLParam(r, name), nil
	}
}

// QueryParam uses a query string parameter as the enterprise context
func QueryParam(name string) KeyFunc {
	return func(r *http.Request) (string, error) {
		return r.URL.Query().Get(name), nil
	}
}

// BodyField uses a top-level JSON body field as the enterprise context.
// The body is restored so the handler can decode it again.
func BodyField(name string) KeyFunc {
	return func(r *http.Request) (string, error) {
		if r.Body == nil {
			return "", nil
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var fields map[string]any
		if json.Unmarshal(body, &fields) != nil {
			return "", nil
		}
		switch v := fields[name].(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return "", nil
		}
	}
}

// CallerCustomer uses the customer the caller is most recently active in
func (h *Handler) CallerCustomer(r *http.Request) (string, error) {
	return h.customers.PrimaryCustomerUUID(r.Context(), GetUserID(r.Context()))
}

// InviteKeyCustomer uses the customer owning the invite key in the path
func (h *Handler) InviteKeyCustomer(r *http.Request) (string, error) {
	k, err := h.customers.GetInviteKey(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		return "", err
	}
	return k.EnterpriseCustomerUUID, nil
}

// RequirePermission rejects callers that do not hold perm within the
// context returned by keyFn
func (h *Handler) RequirePermission(perm string, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				respondError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if p.IsStaff {
				next.ServeHTTP(w, r)
				return
			}

			enterpriseID, err := keyFn(r)
			if err != nil {
				switch {
				case errors.Is(err, customer.ErrCustomerUserNotFound):
					h.denied(r, perm, "")
					respondError(w, http.StatusForbidden, "access denied")
					return
				case errors.Is(err, customer.ErrInviteKeyNotFound):
					respondError(w, http.StatusNotFound, "invite key not found")
					return
				}
				slog.ErrorContext(r.Context(), "failed to resolve permission context", logger.Error(err))
				respondError(w, http.StatusInternalServerError, "failed to check permissions")
				return
			}

			allowed, err := h.authz.HasPermission(r.Context(), p, perm, enterpriseID)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to check permission", logger.Error(err))
				respondError(w, http.StatusInternalServerError, "failed to check permissions")
				return
			}
			if !allowed {
				h.denied(r, perm, enterpriseID)
				respondError(w, http.StatusForbidden, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) denied(r *http.Request, perm, enterpriseID string) {
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:         audit.TypeAccessDenied,
		EnterpriseID: enterpriseID,
		ActorID:      strconv.FormatInt(GetUserID(r.Context()), 10),
		Resource:     r.Method + " " + r.URL.Path,
		IPAddress:    getIPAddress(r),
		UserAgent:    r.UserAgent(),
		Metadata:     map[string]any{"permission": perm},
	})
}
