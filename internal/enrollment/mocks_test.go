package enrollment

import (
	"context"
	"time"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/subsidy"
	"github.com/stretchr/testify/mock"
)

type mockModes struct {
	mock.Mock
}

func (m *mockModes) BestMode(ctx context.Context, courseRunKey string) (string, error) {
	args := m.Called(ctx, courseRunKey)
	return args.String(0), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *mockUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *mockUsers) GetByEmails(ctx context.Context, emails []string) (map[string]*identity.User, error) {
	args := m.Called(ctx, emails)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*identity.User), args.Error(1)
}

type mockLinker struct {
	mock.Mock
}

func (m *mockLinker) ValidateEmail(ctx context.Context, c *customer.Customer, email string) error {
	return m.Called(ctx, c, email).Error(0)
}

func (m *mockLinker) LinkUser(ctx context.Context, c *customer.Customer, email string) (*customer.LinkResult, error) {
	args := m.Called(ctx, c, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.LinkResult), args.Error(1)
}

type mockEnroller struct {
	mock.Mock
}

func (m *mockEnroller) EnrollSubsidized(ctx context.Context, c *customer.Customer, items []Item, discount float64) (*EnrollResults, error) {
	args := m.Called(ctx, c, items, discount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EnrollResults), args.Error(1)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) TrackEnrollment(ctx context.Context, pathway string, actorID int64, courseRunKey string) error {
	return m.Called(ctx, pathway, actorID, courseRunKey).Error(0)
}

func (m *mockEvents) NotifyEnrolledLearners(ctx context.Context, n Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) Link(ctx context.Context, customerUUID string, userID int64, inviteKeyUUID *string) (*customer.CustomerUser, bool, error) {
	args := m.Called(ctx, customerUUID, userID, inviteKeyUUID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*customer.CustomerUser), args.Bool(1), args.Error(2)
}

func (m *mockMembers) Get(ctx context.Context, customerUUID string, userID int64) (*customer.CustomerUser, error) {
	args := m.Called(ctx, customerUUID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.CustomerUser), args.Error(1)
}

func (m *mockMembers) Unlink(ctx context.Context, customerUUID string, userID int64, relinkable bool) error {
	return m.Called(ctx, customerUUID, userID, relinkable).Error(0)
}

func (m *mockMembers) ListActiveForUser(ctx context.Context, userID int64) ([]*customer.CustomerUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*customer.CustomerUser), args.Error(1)
}

type mockPendingUsers struct {
	mock.Mock
}

func (m *mockPendingUsers) GetOrCreate(ctx context.Context, customerUUID, email string) (*customer.PendingCustomerUser, bool, error) {
	args := m.Called(ctx, customerUUID, email)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*customer.PendingCustomerUser), args.Bool(1), args.Error(2)
}

func (m *mockPendingUsers) Delete(ctx context.Context, customerUUID, email string) error {
	return m.Called(ctx, customerUUID, email).Error(0)
}

type mockLMS struct {
	mock.Mock
}

func (m *mockLMS) Enroll(ctx context.Context, username, courseRunKey, mode string) error {
	return m.Called(ctx, username, courseRunKey, mode).Error(0)
}

type mockEnrollments struct {
	mock.Mock
}

func (m *mockEnrollments) GetOrCreate(ctx context.Context, customerUserID int64, courseID string) (*subsidy.CourseEnrollment, bool, error) {
	args := m.Called(ctx, customerUserID, courseID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*subsidy.CourseEnrollment), args.Bool(1), args.Error(2)
}

type mockFulfillments struct {
	mock.Mock
}

func (m *mockFulfillments) Create(ctx context.Context, f *subsidy.Fulfillment) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFulfillments) Get(ctx context.Context, uuid string, scope subsidy.Scope) (*subsidy.Fulfillment, error) {
	args := m.Called(ctx, uuid, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subsidy.Fulfillment), args.Error(1)
}

func (m *mockFulfillments) GetActiveForEnrollment(ctx context.Context, enrollmentID int64) (*subsidy.Fulfillment, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subsidy.Fulfillment), args.Error(1)
}

func (m *mockFulfillments) Revoke(ctx context.Context, f *subsidy.Fulfillment) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFulfillments) ListByLicenseUUIDs(ctx context.Context, licenseUUIDs []string) ([]*subsidy.Fulfillment, error) {
	args := m.Called(ctx, licenseUUIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*subsidy.Fulfillment), args.Error(1)
}

func (m *mockFulfillments) ListLicensedForUser(ctx context.Context, customerUUID string, userID int64) ([]*subsidy.Fulfillment, error) {
	args := m.Called(ctx, customerUUID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*subsidy.Fulfillment), args.Error(1)
}

func (m *mockFulfillments) ListUnenrolled(ctx context.Context, scope subsidy.Scope, kind subsidy.Kind, after *time.Time) ([]*subsidy.Fulfillment, error) {
	args := m.Called(ctx, scope, kind, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*subsidy.Fulfillment), args.Error(1)
}

type mockPendingEnrollments struct {
	mock.Mock
}

func (m *mockPendingEnrollments) GetOrCreate(ctx context.Context, p *PendingEnrollment) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, audit.Event) {}
