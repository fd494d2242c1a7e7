package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates report type lookups.
// Scope: Unit Test
// Expected: Unknown customers return 404 with a detail; known customers return choices.
// Test Case ID: ADM-01
func TestReportTypes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise_report_types/"+licenseUUID, "", env.staff(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"detail":"Could not find the enterprise customer."}`, w.Body.String())

	w = env.do(t, http.MethodGet, BasePath+"/enterprise_report_types/"+acmeUUID, "", env.acmeAdmin(t))
	require.Equal(t, http.StatusOK, w.Code)
	var choices map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &choices))
	assert.NotEmpty(t, choices)
}

// TestPurpose: Validates coupon code requests.
// Scope: Unit Test
// Expected: Missing params return 400, a sent email 200, a mail failure 500.
// Test Case ID: ADM-02
func TestRequestCodes(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)
	path := BasePath + "/request_codes"

	w := env.do(t, http.MethodPost, path, `{"number_of_codes":"50"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email, enterprise_name")

	body := `{"email":"admin@acme.com","enterprise_name":"Acme","number_of_codes":"50"}`
	w = env.do(t, http.MethodPost, path, body, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, body, w.Body.String())
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, []string{"cs@example.com"}, env.mailer.sent[0].To)

	env.mailer.err = errors.New("smtp down")
	w = env.do(t, http.MethodPost, path, body, token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Request codes email could not be sent")
}

// TestPurpose: Validates admin notification read markers.
// Scope: Unit Test
// Expected: Missing params return 400, an unknown enterprise 500, a member 200.
// Test Case ID: ADM-03
func TestReadNotification(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)
	path := BasePath + "/read_notification"

	w := env.do(t, http.MethodPost, path, `{"enterprise_slug":"acme"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "notification_id")

	w = env.do(t, http.MethodPost, path, `{"notification_id":7,"enterprise_slug":"initech"}`, token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Notification read request failed")

	w = env.do(t, http.MethodPost, path, `{"notification_id":7,"enterprise_slug":"acme"}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	var marker map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &marker))
	assert.Equal(t, float64(7), marker["admin_notification"])
	assert.Equal(t, true, marker["is_read"])
}

// TestPurpose: Validates embedded analytics token issuance.
// Scope: Unit Test
// Expected: Known customers receive a token; unknown customers return 404.
// Test Case ID: ADM-04
func TestPlotlyToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, BasePath+"/plotly_token/"+acmeUUID, "", env.acmeAdmin(t))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["token"])

	w = env.do(t, http.MethodGet, BasePath+"/plotly_token/"+licenseUUID, "", env.staff(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
