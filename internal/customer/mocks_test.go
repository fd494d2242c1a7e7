package customer

import (
	"context"
	"sync"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/stretchr/testify/mock"
)

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

type mockCustomerUsers struct {
	mock.Mock
}

func (m *mockCustomerUsers) Link(ctx context.Context, customerUUID string, userID int64, inviteKeyUUID *string) (*CustomerUser, bool, error) {
	args := m.Called(ctx, customerUUID, userID, inviteKeyUUID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*CustomerUser), args.Bool(1), args.Error(2)
}

func (m *mockCustomerUsers) Get(ctx context.Context, customerUUID string, userID int64) (*CustomerUser, error) {
	args := m.Called(ctx, customerUUID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CustomerUser), args.Error(1)
}

func (m *mockCustomerUsers) Unlink(ctx context.Context, customerUUID string, userID int64, relinkable bool) error {
	return m.Called(ctx, customerUUID, userID, relinkable).Error(0)
}

func (m *mockCustomerUsers) ListActiveForUser(ctx context.Context, userID int64) ([]*CustomerUser, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*CustomerUser), args.Error(1)
}

type mockPending struct {
	mock.Mock
}

func (m *mockPending) GetOrCreate(ctx context.Context, customerUUID, email string) (*PendingCustomerUser, bool, error) {
	args := m.Called(ctx, customerUUID, email)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*PendingCustomerUser), args.Bool(1), args.Error(2)
}

func (m *mockPending) Delete(ctx context.Context, customerUUID, email string) error {
	return m.Called(ctx, customerUUID, email).Error(0)
}

type mockCustomers struct {
	mock.Mock
}

func (m *mockCustomers) Create(ctx context.Context, c *Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCustomers) GetByUUID(ctx context.Context, id string) (*Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Customer), args.Error(1)
}

func (m *mockCustomers) GetBySlug(ctx context.Context, slug string) (*Customer, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Customer), args.Error(1)
}

func (m *mockCustomers) Update(ctx context.Context, c *Customer) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCustomers) List(ctx context.Context, filter ListFilter) ([]*Customer, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Customer), args.Error(1)
}

type mockInviteKeys struct {
	mock.Mock
}

func (m *mockInviteKeys) Create(ctx context.Context, k *InviteKey) error {
	return m.Called(ctx, k).Error(0)
}

func (m *mockInviteKeys) Get(ctx context.Context, id string) (*InviteKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*InviteKey), args.Error(1)
}

func (m *mockInviteKeys) Update(ctx context.Context, k *InviteKey) error {
	return m.Called(ctx, k).Error(0)
}

func (m *mockInviteKeys) ListByCustomer(ctx context.Context, customerUUID string) ([]*InviteKey, error) {
	args := m.Called(ctx, customerUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*InviteKey), args.Error(1)
}

func (m *mockInviteKeys) IncrementUsage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockBranding struct {
	mock.Mock
}

func (m *mockBranding) Upsert(ctx context.Context, b *Branding) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBranding) Get(ctx context.Context, customerUUID string) (*Branding, error) {
	args := m.Called(ctx, customerUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Branding), args.Error(1)
}

// fakeTx records whether the unit of work committed
type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		f.rolledBack = true
		return err
	}
	f.committed = true
	return nil
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

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
