package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/enterprise/internal/analytics"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/authz"
	"github.com/opentrusty/enterprise/internal/catalog"
	"github.com/opentrusty/enterprise/internal/codes"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/enrollment"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/integration"
	"github.com/opentrusty/enterprise/internal/notification"
	"github.com/opentrusty/enterprise/internal/observability/metrics"
	"github.com/opentrusty/enterprise/internal/platform"
	"github.com/opentrusty/enterprise/internal/reporting"
	"github.com/opentrusty/enterprise/internal/subsidy"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "transport-test-secret"

const (
	acmeUUID   = "11111111-1111-4111-8111-111111111111"
	globexUUID = "22222222-2222-4222-8222-222222222222"
)

// In-memory stores backing real services in handler tests

type fakeUsers struct {
	byID map[int64]*identity.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*identity.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range f.byID {
		if identity.NormalizeEmail(u.Email) == identity.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) GetByEmails(ctx context.Context, emails []string) (map[string]*identity.User, error) {
	out := make(map[string]*identity.User)
	for _, e := range emails {
		if u, err := f.GetByEmail(ctx, e); err == nil {
			out[identity.NormalizeEmail(e)] = u
		}
	}
	return out, nil
}

type fakeCustomers struct {
	byUUID  map[string]*customer.Customer
	members *fakeMembers
}

func (f *fakeCustomers) Create(_ context.Context, c *customer.Customer) error {
	for _, existing := range f.byUUID {
		if existing.Slug == c.Slug {
			return customer.ErrCustomerExists
		}
	}
	f.byUUID[c.UUID] = c
	return nil
}

func (f *fakeCustomers) GetByUUID(_ context.Context, id string) (*customer.Customer, error) {
	if c, ok := f.byUUID[id]; ok {
		return c, nil
	}
	return nil, customer.ErrCustomerNotFound
}

func (f *fakeCustomers) GetBySlug(_ context.Context, slug string) (*customer.Customer, error) {
	for _, c := range f.byUUID {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, customer.ErrCustomerNotFound
}

func (f *fakeCustomers) Update(_ context.Context, c *customer.Customer) error {
	f.byUUID[c.UUID] = c
	return nil
}

func (f *fakeCustomers) List(_ context.Context, filter customer.ListFilter) ([]*customer.Customer, error) {
	var out []*customer.Customer
	for _, c := range f.byUUID {
		if filter.UUID != "" && c.UUID != filter.UUID {
			continue
		}
		if filter.Slug != "" && c.Slug != filter.Slug {
			continue
		}
		if filter.NameStarts != "" && !strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(filter.NameStarts)) {
			continue
		}
		if filter.LinkedUserID != nil {
			if cu, err := f.members.Get(context.Background(), c.UUID, *filter.LinkedUserID); err != nil || !cu.Active {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

type fakeMembers struct {
	rows   []*customer.CustomerUser
	nextID int64
}

func (f *fakeMembers) find(customerUUID string, userID int64) *customer.CustomerUser {
	for _, cu := range f.rows {
		if cu.EnterpriseCustomerUUID == customerUUID && cu.UserID == userID {
			return cu
		}
	}
	return nil
}

func (f *fakeMembers) add(customerUUID string, userID int64) *customer.CustomerUser {
	f.nextID++
	cu := &customer.CustomerUser{
		ID:                     f.nextID,
		EnterpriseCustomerUUID: customerUUID,
		UserID:                 userID,
		Active:                 true,
		Linked:                 true,
		IsRelinkable:           true,
		UpdatedAt:              time.Now(),
	}
	f.rows = append(f.rows, cu)
	return cu
}

func (f *fakeMembers) Link(_ context.Context, customerUUID string, userID int64, inviteKeyUUID *string) (*customer.CustomerUser, bool, error) {
	if cu := f.find(customerUUID, userID); cu != nil {
		if !cu.Linked && !cu.IsRelinkable {
			return nil, false, customer.ErrNotRelinkable
		}
		cu.Active, cu.Linked = true, true
		return cu, false, nil
	}
	cu := f.add(customerUUID, userID)
	cu.InviteKeyUUID = inviteKeyUUID
	return cu, true, nil
}

func (f *fakeMembers) Get(_ context.Context, customerUUID string, userID int64) (*customer.CustomerUser, error) {
	if cu := f.find(customerUUID, userID); cu != nil {
		return cu, nil
	}
	return nil, customer.ErrCustomerUserNotFound
}

func (f *fakeMembers) Unlink(_ context.Context, customerUUID string, userID int64, relinkable bool) error {
	cu := f.find(customerUUID, userID)
	if cu == nil {
		return customer.ErrCustomerUserNotFound
	}
	cu.Active, cu.Linked = false, false
	if !relinkable {
		cu.IsRelinkable = false
	}
	return nil
}

func (f *fakeMembers) ListActiveForUser(_ context.Context, userID int64) ([]*customer.CustomerUser, error) {
	var out []*customer.CustomerUser
	for _, cu := range f.rows {
		if cu.UserID == userID && cu.Active {
			out = append(out, cu)
		}
	}
	return out, nil
}

type fakePending struct {
	rows   map[string]*customer.PendingCustomerUser
	nextID int64
}

func (f *fakePending) GetOrCreate(_ context.Context, customerUUID, email string) (*customer.PendingCustomerUser, bool, error) {
	key := customerUUID + "|" + email
	if p, ok := f.rows[key]; ok {
		return p, false, nil
	}
	f.nextID++
	p := &customer.PendingCustomerUser{ID: f.nextID, EnterpriseCustomerUUID: customerUUID, UserEmail: email}
	f.rows[key] = p
	return p, true, nil
}

func (f *fakePending) Delete(_ context.Context, customerUUID, email string) error {
	key := customerUUID + "|" + email
	if _, ok := f.rows[key]; !ok {
		return customer.ErrPendingUserNotFound
	}
	delete(f.rows, key)
	return nil
}

type fakeInviteKeys struct {
	byUUID map[string]*customer.InviteKey
}

func (f *fakeInviteKeys) Create(_ context.Context, k *customer.InviteKey) error {
	f.byUUID[k.UUID] = k
	return nil
}

func (f *fakeInviteKeys) Get(_ context.Context, id string) (*customer.InviteKey, error) {
	if k, ok := f.byUUID[id]; ok {
		return k, nil
	}
	return nil, customer.ErrInviteKeyNotFound
}

func (f *fakeInviteKeys) Update(_ context.Context, k *customer.InviteKey) error {
	f.byUUID[k.UUID] = k
	return nil
}

func (f *fakeInviteKeys) ListByCustomer(_ context.Context, customerUUID string) ([]*customer.InviteKey, error) {
	var out []*customer.InviteKey
	for _, k := range f.byUUID {
		if k.EnterpriseCustomerUUID == customerUUID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeInviteKeys) IncrementUsage(_ context.Context, id string) error {
	k, ok := f.byUUID[id]
	if !ok {
		return customer.ErrInviteKeyNotFound
	}
	if k.CurrentUsage >= k.UsageLimit {
		return customer.ErrInviteKeyInvalid
	}
	k.CurrentUsage++
	return nil
}

type fakeBranding struct {
	byCustomer map[string]*customer.Branding
}

func (f *fakeBranding) Upsert(_ context.Context, b *customer.Branding) error {
	f.byCustomer[b.EnterpriseCustomerUUID] = b
	return nil
}

func (f *fakeBranding) Get(_ context.Context, customerUUID string) (*customer.Branding, error) {
	if b, ok := f.byCustomer[customerUUID]; ok {
		return b, nil
	}
	return nil, customer.ErrBrandingNotFound
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeAssignments struct {
	byUser map[int64][]*authz.Assignment
}

func (f *fakeAssignments) ListForUser(_ context.Context, userID int64) ([]*authz.Assignment, error) {
	return f.byUser[userID], nil
}

type fakeFulfillments struct {
	byUUID map[string]*subsidy.Fulfillment
}

func (f *fakeFulfillments) Create(_ context.Context, ff *subsidy.Fulfillment) error {
	f.byUUID[ff.UUID] = ff
	return nil
}

func (f *fakeFulfillments) Get(_ context.Context, id string, scope subsidy.Scope) (*subsidy.Fulfillment, error) {
	ff, ok := f.byUUID[id]
	if !ok || ff.Enrollment == nil || !scope.Allows(ff.Enrollment.EnterpriseCustomerUUID) {
		return nil, subsidy.ErrFulfillmentNotFound
	}
	return ff, nil
}

func (f *fakeFulfillments) GetActiveForEnrollment(_ context.Context, enrollmentID int64) (*subsidy.Fulfillment, error) {
	for _, ff := range f.byUUID {
		if ff.EnterpriseCourseEnrollmentID == enrollmentID && !ff.IsRevoked {
			return ff, nil
		}
	}
	return nil, subsidy.ErrFulfillmentNotFound
}

func (f *fakeFulfillments) Revoke(_ context.Context, ff *subsidy.Fulfillment) error {
	f.byUUID[ff.UUID] = ff
	return nil
}

func (f *fakeFulfillments) ListByLicenseUUIDs(_ context.Context, licenseUUIDs []string) ([]*subsidy.Fulfillment, error) {
	var out []*subsidy.Fulfillment
	for _, id := range licenseUUIDs {
		for _, ff := range f.byUUID {
			if ff.Kind == subsidy.KindLicense && ff.SubsidyReference == id {
				out = append(out, ff)
			}
		}
	}
	return out, nil
}

func (f *fakeFulfillments) ListLicensedForUser(_ context.Context, customerUUID string, userID int64) ([]*subsidy.Fulfillment, error) {
	var out []*subsidy.Fulfillment
	for _, ff := range f.byUUID {
		e := ff.Enrollment
		if ff.Kind == subsidy.KindLicense && !ff.IsRevoked && e != nil &&
			e.EnterpriseCustomerUUID == customerUUID && e.UserID == userID {
			out = append(out, ff)
		}
	}
	return out, nil
}

func (f *fakeFulfillments) ListUnenrolled(_ context.Context, scope subsidy.Scope, kind subsidy.Kind, after *time.Time) ([]*subsidy.Fulfillment, error) {
	out := []*subsidy.Fulfillment{}
	for _, ff := range f.byUUID {
		e := ff.Enrollment
		if ff.Kind != kind || e == nil || e.UnenrolledAt == nil || !scope.Allows(e.EnterpriseCustomerUUID) {
			continue
		}
		if after != nil && e.UnenrolledAt.Before(*after) {
			continue
		}
		out = append(out, ff)
	}
	return out, nil
}

type fakeHistory struct{}

func (fakeHistory) LatestModified(context.Context, []subsidy.UserCourse) (map[subsidy.UserCourse]time.Time, error) {
	return map[subsidy.UserCourse]time.Time{}, nil
}

// fakeLMS stands in for the platform client
type fakeLMS struct {
	overviews  map[string]platform.CourseOverview
	passing    map[string]bool
	auditModes map[string]bool
	updateErr  error
	updates    []string
}

func (f *fakeLMS) GetCourseOverviews(_ context.Context, courseIDs []string) ([]platform.CourseOverview, error) {
	var out []platform.CourseOverview
	for _, id := range courseIDs {
		if o, ok := f.overviews[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeLMS) UpdateEnrollment(_ context.Context, username, courseID string, _ platform.EnrollmentUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, username+"|"+courseID)
	return nil
}

func (f *fakeLMS) GetCertificate(_ context.Context, username, courseID string) (*platform.Certificate, error) {
	return &platform.Certificate{Username: username, CourseID: courseID, IsPassing: f.passing[courseID]}, nil
}

func (f *fakeLMS) HasMode(_ context.Context, courseRunKey, mode string) (bool, error) {
	return mode == platform.ModeAudit && f.auditModes[courseRunKey], nil
}

type fixedModes struct{}

func (fixedModes) BestMode(context.Context, string) (string, error) {
	return platform.ModeVerified, nil
}

// fakeEnroller marks every item a success unless its email is pending
type fakeEnroller struct {
	pending map[string]bool
}

func (f *fakeEnroller) EnrollSubsidized(_ context.Context, _ *customer.Customer, items []enrollment.Item, _ float64) (*enrollment.EnrollResults, error) {
	res := enrollment.NewEnrollResults()
	for _, item := range items {
		o := enrollment.Outcome{Email: item.Email, CourseRunKey: item.CourseRunKey, Created: true}
		if f.pending[item.Email] {
			res.Pending = append(res.Pending, o)
			continue
		}
		res.Successes = append(res.Successes, o)
	}
	return res, nil
}

type nopAnnouncer struct{}

func (nopAnnouncer) TrackEnrollment(context.Context, string, int64, string) error { return nil }

func (nopAnnouncer) NotifyEnrolledLearners(context.Context, enrollment.Notification) error {
	return nil
}

type fakeCatalogs struct {
	byCustomer map[string][]*catalog.Catalog
	contents   map[string]map[string]bool
}

func (f *fakeCatalogs) ListByCustomer(_ context.Context, customerUUID string) ([]*catalog.Catalog, error) {
	return f.byCustomer[customerUUID], nil
}

func (f *fakeCatalogs) ContainsContentItems(_ context.Context, catalogUUID string, courseRunIDs, programUUIDs []string) (bool, error) {
	held := f.contents[catalogUUID]
	for _, ids := range [][]string{courseRunIDs, programUUIDs} {
		for _, id := range ids {
			if !held[id] {
				return false, nil
			}
		}
	}
	return true, nil
}

type fakeMailer struct {
	err  error
	sent []codes.Message
}

func (f *fakeMailer) Send(_ context.Context, msg codes.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeReads struct {
	nextID int64
}

func (f *fakeReads) GetOrCreate(_ context.Context, customerUserID, notificationID int64) (*notification.ReadMarker, bool, error) {
	f.nextID++
	return &notification.ReadMarker{
		ID:                       f.nextID,
		EnterpriseCustomerUserID: customerUserID,
		AdminNotificationID:      notificationID,
		IsRead:                   true,
	}, true, nil
}

type fakeChannels struct{}

func (fakeChannels) Get(context.Context, string) (*integration.Configuration, error) {
	return nil, integration.ErrConfigurationNotFound
}

func (fakeChannels) ListByCustomer(context.Context, string) ([]*integration.Configuration, error) {
	return []*integration.Configuration{}, nil
}

func (fakeChannels) UpdateRefreshToken(context.Context, string, string) error { return nil }

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv wires real services over the in-memory stores
type testEnv struct {
	users        *fakeUsers
	customers    *fakeCustomers
	members      *fakeMembers
	pending      *fakePending
	inviteKeys   *fakeInviteKeys
	assignments  *fakeAssignments
	fulfillments *fakeFulfillments
	lms          *fakeLMS
	enroller     *fakeEnroller
	catalogs     *fakeCatalogs
	mailer       *fakeMailer
	audit        *recordingAudit

	handler *Handler
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	members := &fakeMembers{}
	env := &testEnv{
		users: &fakeUsers{byID: map[int64]*identity.User{
			1:  {ID: 1, Username: "staff", Email: "staff@example.com", IsStaff: true, IsActive: true},
			10: {ID: 10, Username: "acme-admin", Email: "admin@acme.com", IsActive: true},
			20: {ID: 20, Username: "globex-admin", Email: "admin@globex.com", IsActive: true},
			30: {ID: 30, Username: "learner", Email: "learner@acme.com", IsActive: true},
		}},
		customers: &fakeCustomers{
			byUUID: map[string]*customer.Customer{
				acmeUUID:   {UUID: acmeUUID, Name: "Acme", Slug: "acme", Active: true},
				globexUUID: {UUID: globexUUID, Name: "Globex", Slug: "globex", Active: true},
			},
			members: members,
		},
		members:      members,
		pending:      &fakePending{rows: map[string]*customer.PendingCustomerUser{}},
		inviteKeys:   &fakeInviteKeys{byUUID: map[string]*customer.InviteKey{}},
		assignments:  &fakeAssignments{byUser: map[int64][]*authz.Assignment{}},
		fulfillments: &fakeFulfillments{byUUID: map[string]*subsidy.Fulfillment{}},
		lms: &fakeLMS{
			overviews:  map[string]platform.CourseOverview{},
			passing:    map[string]bool{},
			auditModes: map[string]bool{},
		},
		enroller: &fakeEnroller{pending: map[string]bool{}},
		catalogs: &fakeCatalogs{byCustomer: map[string][]*catalog.Catalog{}, contents: map[string]map[string]bool{}},
		mailer:   &fakeMailer{},
		audit:    &recordingAudit{},
	}
	members.add(acmeUUID, 10)
	members.add(globexUUID, 20)

	linker := customer.NewLinker(env.users, env.members, env.pending, env.audit)
	customers := customer.NewService(customer.Repositories{
		Customers:  env.customers,
		Users:      env.users,
		InviteKeys: env.inviteKeys,
		Branding:   &fakeBranding{byCustomer: map[string]*customer.Branding{}},
	}, linker, passthroughTx{}, env.audit)

	instruments := metrics.NopInstruments()
	terminator := subsidy.NewTerminator(env.lms, env.lms, env.lms)

	env.handler = NewHandler(Services{
		Customers:     customers,
		Enrollment:    enrollment.NewBulkService(fixedModes{}, env.users, linker, env.enroller, nopAnnouncer{}, nopAnnouncer{}, instruments, env.audit),
		Subsidies:     subsidy.NewService(env.fulfillments, fakeHistory{}, env.members, env.lms, terminator, instruments, env.audit),
		Catalog:       catalog.NewService(env.catalogs, env.catalogs),
		Integrations:  integration.NewService(fakeChannels{}, integration.TransmitterOptions{}, "https://lms.example.com", env.audit),
		Codes:         codes.NewService(env.mailer, "no-reply@example.com", "cs@example.com", env.audit),
		Notifications: notification.NewService(&fakeReads{}, env.customers, env.members),
		Reports:       reporting.NewService(customers),
		Analytics:     analytics.NewTokenIssuer("plotly-secret", time.Hour),
		Authz:         authz.NewService(env.assignments),
	}, NewTokenVerifier(AuthConfig{JWTSecret: testJWTSecret}), env.audit)

	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)
	env.router = NewRouter(env.handler, rl)
	return env
}

// token signs an access token for userID carrying role claims
func (e *testEnv) token(t *testing.T, userID int64, staff bool, roles ...string) string {
	t.Helper()
	claims := accessClaims{
		UserID:        userID,
		Administrator: staff,
		Roles:         roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return raw
}

// do sends a request through the full router
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// acmeAdmin signs a token for the Acme administrator
func (e *testEnv) acmeAdmin(t *testing.T) string {
	return e.token(t, 10, false, authz.RoleAdmin+":"+acmeUUID)
}

// staff signs a token for a platform staff user
func (e *testEnv) staff(t *testing.T) string {
	return e.token(t, 1, true)
}

// addLicensedEnrollment stores a license fulfillment for the learner
func (e *testEnv) addLicensedEnrollment(fulfillmentUUID, customerUUID, courseID, licenseUUID string) *subsidy.Fulfillment {
	f := &subsidy.Fulfillment{
		UUID:                         fulfillmentUUID,
		Kind:                         subsidy.KindLicense,
		EnterpriseCourseEnrollmentID: int64(len(e.fulfillments.byUUID) + 1),
		SubsidyReference:             licenseUUID,
		Enrollment: &subsidy.CourseEnrollment{
			ID:                     int64(len(e.fulfillments.byUUID) + 1),
			EnterpriseCustomerUUID: customerUUID,
			UserID:                 30,
			Username:               "learner",
			UserEmail:              "learner@acme.com",
			CourseID:               courseID,
		},
	}
	e.fulfillments.byUUID[f.UUID] = f
	e.lms.overviews[courseID] = platform.CourseOverview{ID: courseID}
	return f
}
