package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestPurpose: Validates the client-credentials token exchange and its reuse.
// Scope: Unit Test
// Security: Bearer tokens must be attached to every LMS request
// Expected: One token request serves multiple API calls; the JWT scheme is used.
// Test Case ID: PLT-03
func TestClient_TokenReuse(t *testing.T) {
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathAccessToken:
			atomic.AddInt32(&tokenCalls, 1)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "expires_in": 3600})
		default:
			assert.Equal(t, "JWT tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, []map[string]string{{"mode_slug": "audit"}, {"mode_slug": "verified"}})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"})
	ctx := context.Background()

	modes, err := c.CourseModes(ctx, "course-v1:edX+DemoX+Demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "verified"}, modes)

	ok, err := c.HasMode(ctx, "course-v1:edX+DemoX+Demo", ModeAudit)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

// TestPurpose: Validates the enrollment update payload.
// Scope: Unit Test
// Expected: Mode and is_active are sent only when set.
// Test Case ID: PLT-04
func TestClient_UpdateEnrollment(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathEnrollment, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	inactive := false
	require.NoError(t, c.UpdateEnrollment(context.Background(), "learner", "course-v1:X+Y+Z", EnrollmentUpdate{IsActive: &inactive}))

	assert.Equal(t, "learner", got["user"])
	assert.Equal(t, false, got["is_active"])
	_, hasMode := got["mode"]
	assert.False(t, hasMode)
	assert.Equal(t, map[string]any{"course_id": "course-v1:X+Y+Z"}, got["course_details"])
}

// TestPurpose: Validates certificate lookup outcomes.
// Scope: Unit Test
// Expected: 404 yields no certificate without error; 500 yields an APIError.
// Test Case ID: PLT-05
func TestClient_GetCertificate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/certificates/v0/certificates/missing/courses/c1/":
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		case "/api/certificates/v0/certificates/broken/courses/c1/":
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "boom"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"username": "ok", "course_id": "c1", "is_passing": true, "status": "downloadable"})
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	ctx := context.Background()

	cert, err := c.GetCertificate(ctx, "ok", "c1")
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.True(t, cert.IsPassing)

	cert, err = c.GetCertificate(ctx, "missing", "c1")
	require.NoError(t, err)
	assert.Nil(t, cert)

	_, err = c.GetCertificate(ctx, "broken", "c1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}
