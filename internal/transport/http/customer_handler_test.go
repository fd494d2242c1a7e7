package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentrusty/enterprise/internal/catalog"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that customer reads are limited to linked customers.
// Scope: Unit Test
// Security: Non-staff callers only see enterprises they are linked to
// Expected: Linked customers return 200, others 404; listings only hold linked customers.
// Test Case ID: CUS-01
func TestCustomerReads_LinkedFilter(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)

	w := env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+acmeUUID, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"acme"`)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+globexUUID, "", token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []customer.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, acmeUUID, listed[0].UUID)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+acmeUUID, "", env.token(t, 30, false))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+globexUUID, "", env.staff(t))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates customer creation.
// Scope: Unit Test
// Expected: Returns 201 for a new slug, 409 for a taken slug, 400 for an invalid slug.
// Test Case ID: CUS-02
func TestCreateCustomer(t *testing.T) {
	env := newTestEnv(t)
	token := env.staff(t)
	path := BasePath + "/enterprise-customer"

	w := env.do(t, http.MethodPost, path, `{"name":"Initech","slug":"initech"}`, token)
	require.Equal(t, http.StatusCreated, w.Code)
	var created customer.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Active)
	assert.Equal(t, customer.ConsentAtEnrollment, created.EnforceDataSharingConsent)

	w = env.do(t, http.MethodPost, path, `{"name":"Acme Again","slug":"acme"}`, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, path, `{"name":"Bad","slug":"Not A Slug!"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, path, `{"name":"Initrode","slug":"initrode"}`, env.token(t, 30, false))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestPurpose: Validates the universal link toggle responses.
// Scope: Unit Test
// Expected: An unchanged flag reports "No changes"; a change echoes the new value; a missing flag is 400.
// Test Case ID: CUS-03
func TestToggleUniversalLink(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)
	path := BasePath + "/enterprise-customer/" + acmeUUID + "/toggle_universal_link"

	w := env.do(t, http.MethodPatch, path, `{"enable_universal_link":false}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"detail":"No changes"}`, w.Body.String())

	w = env.do(t, http.MethodPatch, path, `{"enable_universal_link":true}`, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enable_universal_link":true}`, w.Body.String())
	assert.True(t, env.customers.byUUID[acmeUUID].EnableUniversalLink)

	w = env.do(t, http.MethodPatch, path, `{}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates linking learner emails to a customer.
// Scope: Unit Test
// Expected: No emails is 400, new memberships 201, repeated links 204, invalid emails 400.
// Test Case ID: CUS-04
func TestLinkPendingUsers(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)
	path := BasePath + "/link_pending_enterprise_users/" + acmeUUID

	w := env.do(t, http.MethodPost, path, `[]`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "At least one user email is required.")

	w = env.do(t, http.MethodPost, path, `[{"user_email":"new@acme.com"},{"user_email":"learner@acme.com"}]`, token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, env.pending.rows, 1)
	_, err := env.members.Get(t.Context(), acmeUUID, 30)
	assert.NoError(t, err)

	w = env.do(t, http.MethodPost, path, `{"user_email":"new@acme.com"}`, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, path, `{"user_email":"not-an-email"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates batch unlinking.
// Scope: Unit Test
// Expected: Linked users are unlinked, unknown emails are skipped, and the count echoes the request.
// Test Case ID: CUS-05
func TestUnlinkUsers(t *testing.T) {
	env := newTestEnv(t)
	env.members.add(acmeUUID, 30)
	path := BasePath + "/enterprise-customer/" + acmeUUID + "/unlink_users"

	w := env.do(t, http.MethodPost, path, `{"user_emails":["learner@acme.com","nobody@acme.com"],"is_relinkable":false}`, env.acmeAdmin(t))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unlinked":2}`, w.Body.String())

	cu, err := env.members.Get(t.Context(), acmeUUID, 30)
	require.NoError(t, err)
	assert.False(t, cu.Active)
	assert.False(t, cu.IsRelinkable)
}

// TestPurpose: Validates catalog content membership checks.
// Scope: Unit Test
// Expected: Literal plus signs in course keys survive; no content ids is 400; unknown customers 404.
// Test Case ID: CUS-06
func TestContainsContentItems(t *testing.T) {
	env := newTestEnv(t)
	env.catalogs.byCustomer[acmeUUID] = []*catalog.Catalog{{UUID: "cat-1", EnterpriseCustomerUUID: acmeUUID}}
	env.catalogs.contents["cat-1"] = map[string]bool{courseA: true, "program-1": true}
	token := env.acmeAdmin(t)
	path := BasePath + "/enterprise-customer/" + acmeUUID + "/contains_content_items"

	w := env.do(t, http.MethodGet, path+"?course_run_ids="+courseA+"&program_uuids=program-1", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"contains_content_items":true}`, w.Body.String())

	w = env.do(t, http.MethodGet, path+"?course_run_ids="+courseA+","+courseB, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"contains_content_items":false}`, w.Body.String())

	w = env.do(t, http.MethodGet, path, "", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, BasePath+"/enterprise-customer/"+licenseUUID+"/contains_content_items?program_uuids=program-1", "", env.staff(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestPurpose: Validates branding updates.
// Scope: Unit Test
// Expected: Valid colours return 204 and are stored; malformed values return 400.
// Test Case ID: CUS-07
func TestUpdateBranding(t *testing.T) {
	env := newTestEnv(t)
	token := env.acmeAdmin(t)
	path := BasePath + "/enterprise-customer-branding/update-branding/" + acmeUUID

	w := env.do(t, http.MethodPatch, path, `{"primary_color":"#ff0000","logo":"https://cdn.example.com/acme.png"}`, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPatch, path, `{"primary_color":"red"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestPurpose: Validates the raw query parsing used for course run keys.
// Scope: Unit Test
// Expected: Repeated and comma separated values flatten and '+' is kept.
// Test Case ID: CUS-08
func TestRawQueryValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?course_run_ids=a+b,c&course_run_ids=d%2Be&other=z", nil)
	assert.Equal(t, []string{"a+b", "c", "d+e"}, splitValues(rawQueryValues(req, "course_run_ids")))
	assert.Empty(t, splitValues(rawQueryValues(req, "missing")))
}

// TestPurpose: Validates that customers cannot be deleted through the API.
// Scope: Unit Test
// Security: Unauthenticated callers are rejected before routing
// Expected: DELETE returns 401 without a token and 405 for staff.
// Test Case ID: CUS-09
func TestCustomerDelete_NotExposed(t *testing.T) {
	env := newTestEnv(t)
	path := BasePath + "/enterprise-customer/" + acmeUUID

	w := env.do(t, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodDelete, path, "", env.staff(t))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	_, err := env.customers.GetByUUID(context.Background(), acmeUUID)
	require.NoError(t, err)
}
