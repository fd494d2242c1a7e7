package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// AUTHENTICATION AND AUTHORIZATION MIDDLEWARE TESTS
// =============================================================================

// TestPurpose: Validates that API routes reject requests without a bearer token.
// Scope: Unit Test
// Security: Unauthenticated callers must never reach a handler
// Expected: Returns HTTP 401 and the health check stays public.
// Test Case ID: MW-01
func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "not authenticated")

	w = env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

// TestPurpose: Validates that forged and expired tokens are rejected.
// Scope: Unit Test
// Security: Token signature and expiry are enforced
// Expected: Returns HTTP 401 for a wrong key, an expired token and a token without expiry.
// Test Case ID: MW-02
func TestAuthMiddleware_InvalidTokens(t *testing.T) {
	env := newTestEnv(t)

	sign := func(claims accessClaims, key string) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return raw
	}
	valid := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}

	tokens := map[string]string{
		"wrong key":  sign(accessClaims{UserID: 10, RegisteredClaims: valid}, "another-secret"),
		"expired":    sign(accessClaims{UserID: 10, RegisteredClaims: expired}, testJWTSecret),
		"no expiry":  sign(accessClaims{UserID: 10}, testJWTSecret),
		"no user id": sign(accessClaims{RegisteredClaims: valid}, testJWTSecret),
		"garbage":    "not-a-jwt",
	}
	for name, token := range tokens {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer", "", token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

// TestPurpose: Validates token claim parsing into a principal.
// Scope: Unit Test
// Expected: The subject is used when user_id is absent and role claims become assignments.
// Test Case ID: MW-03
func TestTokenVerifier_Claims(t *testing.T) {
	v := NewTokenVerifier(AuthConfig{JWTSecret: testJWTSecret, JWTIssuer: "https://lms.example.com/oauth2"})

	claims := accessClaims{
		Username: "acme-admin",
		Roles:    []string{authz.RoleAdmin + ":" + acmeUUID, authz.RoleLearner},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "10",
			Issuer:    "https://lms.example.com/oauth2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.UserID)
	assert.Equal(t, "acme-admin", p.Username)
	assert.False(t, p.IsStaff)
	require.Len(t, p.Assignments, 2)
	assert.Equal(t, acmeUUID, p.Assignments[0].EnterpriseID)
	assert.Equal(t, authz.AllEnterprises, p.Assignments[1].EnterpriseID)

	claims.Issuer = "https://evil.example.com"
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// TestPurpose: Validates the accepted Authorization header schemes.
// Scope: Unit Test
// Expected: Bearer and JWT schemes are accepted; anything else is missing.
// Test Case ID: MW-04
func TestBearerToken_Schemes(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc": true,
		"JWT abc":    true,
		"bearer abc": true,
		"Basic abc":  false,
		"Bearer":     false,
		"":           false,
	}
	for header, ok := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		token, err := bearerToken(req)
		if ok {
			assert.NoError(t, err, header)
			assert.Equal(t, "abc", token)
		} else {
			assert.ErrorIs(t, err, ErrMissingToken, header)
		}
	}
}

// TestPurpose: Validates that staff callers bypass permission checks.
// Scope: Unit Test
// Security: Staff hold every permission in every enterprise
// Expected: Returns HTTP 200 on an admin-only listing.
// Test Case ID: MW-05
func TestRequirePermission_StaffBypass(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer/basic_list", "", env.staff(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")
	assert.Contains(t, w.Body.String(), "Globex")
}

// TestPurpose: Validates tenant isolation of path-scoped permissions.
// Scope: Unit Test
// Security: An admin of one enterprise cannot administer another
// Expected: Returns HTTP 200 for the own enterprise, 403 plus an audit event for the other.
// Test Case ID: MW-06
func TestRequirePermission_CrossTenantDenied(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+acmeUUID+"/integrated-channels", "", token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+globexUUID+"/integrated-channels", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, env.audit.types(), audit.TypeAccessDenied)
}

// TestPurpose: Validates that persisted role assignments grant permissions.
// Scope: Unit Test
// Expected: A token without role claims is allowed through a stored assignment.
// Test Case ID: MW-07
func TestRequirePermission_StoredAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.assignments.byUser[20] = []*authz.Assignment{
		{UserID: 20, Role: authz.RoleAdmin, EnterpriseID: globexUUID},
	}
	token := env.token(t, 20, false)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+globexUUID+"/integrated-channels", "", token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+acmeUUID+"/integrated-channels", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestPurpose: Validates permission checks keyed on the caller's own enterprise.
// Scope: Unit Test
// Security: A caller with no enterprise membership has no enterprise context
// Expected: Returns HTTP 403 when the caller is not linked to any enterprise.
// Test Case ID: MW-08
func TestRequirePermission_CallerWithoutMembership(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, 30, false, authz.RoleAdmin)

	w := env.do(t, http.MethodPost, BasePath+"/subsidy-fulfillment/some-uuid/cancel-enrollment", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, env.audit.types(), audit.TypeAccessDenied)
}

// TestPurpose: Validates that the body key function leaves the body readable.
// Scope: Unit Test
// Expected: String and numeric fields are returned and the handler sees the full body.
// Test Case ID: MW-09
func TestBodyField_RestoresBody(t *testing.T) {
	body := `{"enterprise_id":"` + acmeUUID + `","user_id":42}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	id, err := BodyField("enterprise_id")(req)
	require.NoError(t, err)
	assert.Equal(t, acmeUUID, id)

	n, err := BodyField("user_id")(req)
	require.NoError(t, err)
	assert.Equal(t, "42", n)

	missing, err := BodyField("absent")(req)
	require.NoError(t, err)
	assert.Empty(t, missing)

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}

// TestPurpose: Validates that an unknown invite key is reported before the permission check.
// Scope: Unit Test
// Expected: Returns HTTP 404 for a non-staff admin.
// Test Case ID: MW-10
func TestRequirePermission_UnknownInviteKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer-invite-key/missing", "", env.acmeAdmin(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// RATE LIMITING TESTS
// =============================================================================

// TestPurpose: Validates client address extraction.
// Scope: Unit Test
// Expected: The first X-Forwarded-For hop wins, otherwise the connection host is used.
// Test Case ID: RL-01
func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", getIPAddress(req))
}

// TestPurpose: Validates that a client exceeding its burst is throttled.
// Scope: Unit Test
// Security: Per-client throttling limits abuse
// Expected: The second immediate request returns HTTP 429.
// Test Case ID: RL-02
func TestRateLimitMiddleware_Throttles(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Stop()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimitMiddleware(rl)(next)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.9:1234"
	third := httptest.NewRecorder()
	h.ServeHTTP(third, other)
	assert.Equal(t, http.StatusOK, third.Code)
}

// TestPurpose: Validates eviction of idle clients.
// Scope: Unit Test
// Expected: Clients idle past the timeout are removed; recent ones stay.
// Test Case ID: RL-03
func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	defer rl.Stop()

	rl.GetLimiter("192.0.2.1")
	rl.evict(time.Now().Add(rl.idleTimeout + time.Minute))
	rl.GetLimiter("192.0.2.2")
	rl.evict(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "192.0.2.1")
	assert.Contains(t, rl.visitors, "192.0.2.2")
}
