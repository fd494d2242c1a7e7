package subsidy

import (
	"context"
	"sync"
	"time"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/platform"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, f *Fulfillment) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockRepo) Get(ctx context.Context, uuid string, scope Scope) (*Fulfillment, error) {
	args := m.Called(ctx, uuid, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Fulfillment), args.Error(1)
}

func (m *mockRepo) GetActiveForEnrollment(ctx context.Context, enrollmentID int64) (*Fulfillment, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Fulfillment), args.Error(1)
}

func (m *mockRepo) Revoke(ctx context.Context, f *Fulfillment) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockRepo) ListByLicenseUUIDs(ctx context.Context, licenseUUIDs []string) ([]*Fulfillment, error) {
	args := m.Called(ctx, licenseUUIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Fulfillment), args.Error(1)
}

func (m *mockRepo) ListLicensedForUser(ctx context.Context, customerUUID string, userID int64) ([]*Fulfillment, error) {
	args := m.Called(ctx, customerUUID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Fulfillment), args.Error(1)
}

func (m *mockRepo) ListUnenrolled(ctx context.Context, scope Scope, kind Kind, after *time.Time) ([]*Fulfillment, error) {
	args := m.Called(ctx, scope, kind, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Fulfillment), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) LatestModified(ctx context.Context, pairs []UserCourse) (map[UserCourse]time.Time, error) {
	args := m.Called(ctx, pairs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[UserCourse]time.Time), args.Error(1)
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

type mockOverviews struct {
	mock.Mock
}

func (m *mockOverviews) GetCourseOverviews(ctx context.Context, courseIDs []string) ([]platform.CourseOverview, error) {
	args := m.Called(ctx, courseIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]platform.CourseOverview), args.Error(1)
}

type mockLMS struct {
	mock.Mock
}

func (m *mockLMS) UpdateEnrollment(ctx context.Context, username, courseID string, upd platform.EnrollmentUpdate) error {
	return m.Called(ctx, username, courseID, upd).Error(0)
}

func (m *mockLMS) GetCertificate(ctx context.Context, username, courseID string) (*platform.Certificate, error) {
	args := m.Called(ctx, username, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platform.Certificate), args.Error(1)
}

func (m *mockLMS) HasMode(ctx context.Context, courseRunKey, mode string) (bool, error) {
	args := m.Called(ctx, courseRunKey, mode)
	return args.Bool(0), args.Error(1)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func isAudit(u platform.EnrollmentUpdate) bool {
	return u.Mode == platform.ModeAudit && u.IsActive == nil
}

func isDeactivate(u platform.EnrollmentUpdate) bool {
	return u.Mode == "" && u.IsActive != nil && !*u.IsActive
}
