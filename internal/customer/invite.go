package customer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/opentrusty/enterprise/internal/audit"
)

// Invite key constraints
const (
	MaxInviteKeyUsageLimit = 10000
)

// ErrInviteKeyReactivation is returned when an update tries to re-enable a
// deactivated key.
var ErrInviteKeyReactivation = errors.New("an invite key cannot be reactivated once deactivated")

// CreateInviteKeyRequest carries the fields accepted when creating a key
type CreateInviteKeyRequest struct {
	EnterpriseCustomerUUID string    `json:"enterprise_customer_uuid" validate:"required,uuid"`
	UsageLimit             int       `json:"usage_limit" validate:"required,min=1,max=10000"`
	ExpirationDate         time.Time `json:"expiration_date" validate:"required"`
}

// CreateInviteKey creates a new invite key for a customer
func (s *Service) CreateInviteKey(ctx context.Context, actorID int64, req CreateInviteKeyRequest) (*InviteKey, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, &ValidationError{Err: err}
	}
	now := time.Now()
	if !req.ExpirationDate.After(now) {
		return nil, &ValidationError{Err: errors.New("expiration_date must be in the future")}
	}
	if _, err := s.repo.GetByUUID(ctx, req.EnterpriseCustomerUUID); err != nil {
		return nil, err
	}

	k := &InviteKey{
		UUID:                   uuid.NewString(),
		EnterpriseCustomerUUID: req.EnterpriseCustomerUUID,
		UsageLimit:             req.UsageLimit,
		ExpirationDate:         req.ExpirationDate.UTC(),
		IsActive:               true,
		CreatedAt:              now,
	}
	if err := s.inviteKeys.Create(ctx, k); err != nil {
		return nil, fmt.Errorf("failed to create invite key: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeInviteKeyCreated,
		EnterpriseID: k.EnterpriseCustomerUUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     k.UUID,
		Metadata:     map[string]any{"usage_limit": k.UsageLimit},
	})
	return k, nil
}

// UpdateInviteKey applies an is_active change to a key
func (s *Service) UpdateInviteKey(ctx context.Context, actorID int64, keyUUID string, isActive *bool) (*InviteKey, error) {
	k, err := s.inviteKeys.Get(ctx, keyUUID)
	if err != nil {
		return nil, err
	}
	if isActive == nil || *isActive == k.IsActive {
		return k, nil
	}
	if *isActive && !k.IsActive {
		return nil, ErrInviteKeyReactivation
	}

	k.IsActive = *isActive
	if err := s.inviteKeys.Update(ctx, k); err != nil {
		return nil, fmt.Errorf("failed to update invite key: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeInviteKeyUpdated,
		EnterpriseID: k.EnterpriseCustomerUUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     k.UUID,
		Metadata:     map[string]any{"is_active": k.IsActive},
	})
	return k, nil
}

// GetInviteKey retrieves a key by uuid
func (s *Service) GetInviteKey(ctx context.Context, keyUUID string) (*InviteKey, error) {
	return s.inviteKeys.Get(ctx, keyUUID)
}

// ListInviteKeys returns the keys of a customer
func (s *Service) ListInviteKeys(ctx context.Context, customerUUID string) ([]*InviteKey, error) {
	keys, err := s.inviteKeys.ListByCustomer(ctx, customerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite keys: %w", err)
	}
	return keys, nil
}

// LinkWithInviteKey links the calling user to the key's customer.
// Inactive or unlinked memberships are re-linked. created reports whether
// a new membership was inserted; only new memberships consume key usage.
func (s *Service) LinkWithInviteKey(ctx context.Context, userID int64, keyUUID string) (*CustomerUser, bool, error) {
	k, err := s.inviteKeys.Get(ctx, keyUUID)
	if err != nil {
		return nil, false, err
	}
	if !k.IsValid(time.Now()) {
		return nil, false, ErrInviteKeyInvalid
	}

	c, err := s.repo.GetByUUID(ctx, k.EnterpriseCustomerUUID)
	if err != nil {
		return nil, false, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, false, &LinkUserError{Email: strconv.FormatInt(userID, 10), Err: err}
	}

	res, err := s.linker.LinkAccount(ctx, c, user, &k.UUID)
	if err != nil {
		return nil, false, err
	}
	if res.Created {
		if err := s.inviteKeys.IncrementUsage(ctx, k.UUID); err != nil {
			return nil, false, fmt.Errorf("failed to record invite key usage: %w", err)
		}
	}
	return res.CustomerUser, res.Created, nil
}
