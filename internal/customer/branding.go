package customer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opentrusty/enterprise/internal/audit"
)

// ErrBrandingNotFound is returned when a customer has no branding row
var ErrBrandingNotFound = errors.New("enterprise customer branding not found")

// BrandingUpdate carries the branding fields to change. Nil fields keep
// their stored value.
type BrandingUpdate struct {
	Logo           *string `json:"logo" validate:"omitempty,url"`
	PrimaryColor   *string `json:"primary_color" validate:"omitempty,hexcolor"`
	SecondaryColor *string `json:"secondary_color" validate:"omitempty,hexcolor"`
	TertiaryColor  *string `json:"tertiary_color" validate:"omitempty,hexcolor"`
}

// UpdateBranding creates or updates the customer's branding
func (s *Service) UpdateBranding(ctx context.Context, actorID int64, customerUUID string, upd BrandingUpdate) (*Branding, error) {
	if err := s.validate.StructCtx(ctx, upd); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if _, err := s.repo.GetByUUID(ctx, customerUUID); err != nil {
		return nil, err
	}

	b, err := s.branding.Get(ctx, customerUUID)
	if errors.Is(err, ErrBrandingNotFound) {
		b = &Branding{EnterpriseCustomerUUID: customerUUID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load branding: %w", err)
	}

	if upd.Logo != nil {
		b.LogoURL = *upd.Logo
	}
	if upd.PrimaryColor != nil {
		b.PrimaryColor = *upd.PrimaryColor
	}
	if upd.SecondaryColor != nil {
		b.SecondaryColor = *upd.SecondaryColor
	}
	if upd.TertiaryColor != nil {
		b.TertiaryColor = *upd.TertiaryColor
	}
	b.UpdatedAt = time.Now()

	if err := s.branding.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save branding: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeBrandingUpdated,
		EnterpriseID: customerUUID,
		ActorID:      strconv.FormatInt(actorID, 10),
	})
	return b, nil
}
