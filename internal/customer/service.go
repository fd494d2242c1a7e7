package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// UnlinkError aborts a batch unlink. The surrounding transaction is rolled
// back so no email in the batch is unlinked.
type UnlinkError struct {
	Email string
	Err   error
}

func (e *UnlinkError) Error() string {
	return fmt.Sprintf("could not unlink %s from enterprise: %v", e.Email, e.Err)
}

func (e *UnlinkError) Unwrap() error { return e.Err }

// CreateRequest carries the fields accepted when creating a customer
type CreateRequest struct {
	Name                      string   `json:"name" validate:"required,max=255"`
	Slug                      string   `json:"slug" validate:"required,max=30,hostname_rfc1123"`
	Active                    *bool    `json:"active"`
	EnableDataSharingConsent  bool     `json:"enable_data_sharing_consent"`
	EnforceDataSharingConsent string   `json:"enforce_data_sharing_consent" validate:"omitempty,oneof=at_enrollment externally_managed"`
	EnableLearnerPortal       bool     `json:"enable_learner_portal"`
	AllowedEmailDomains       []string `json:"allowed_email_domains" validate:"dive,fqdn"`
	ContactEmail              string   `json:"contact_email" validate:"omitempty,email"`
}

// UpdateRequest carries a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name                      *string   `json:"name" validate:"omitempty,max=255"`
	Active                    *bool     `json:"active"`
	EnableDataSharingConsent  *bool     `json:"enable_data_sharing_consent"`
	EnforceDataSharingConsent *string   `json:"enforce_data_sharing_consent" validate:"omitempty,oneof=at_enrollment externally_managed"`
	EnableLearnerPortal       *bool     `json:"enable_learner_portal"`
	AllowedEmailDomains       *[]string `json:"allowed_email_domains"`
	ContactEmail              *string   `json:"contact_email" validate:"omitempty,email"`
}

// DashboardQuery selects customers for the admin dashboard. The first
// non-empty field wins: EnterpriseID, then Slug, then Search.
type DashboardQuery struct {
	EnterpriseID string
	Slug         string
	Search       string
}

// Repositories groups the stores used by Service
type Repositories struct {
	Customers  Repository
	Users      identity.Repository
	InviteKeys InviteKeyRepository
	Branding   BrandingRepository
}

// Service provides customer management business logic
type Service struct {
	repo        Repository
	users       identity.Repository
	inviteKeys  InviteKeyRepository
	branding    BrandingRepository
	linker      *Linker
	tx          TxRunner
	validate    *validator.Validate
	auditLogger audit.Logger
}

// NewService creates a new customer service
func NewService(repos Repositories, linker *Linker, tx TxRunner, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repos.Customers,
		users:       repos.Users,
		inviteKeys:  repos.InviteKeys,
		branding:    repos.Branding,
		linker:      linker,
		tx:          tx,
		validate:    validator.New(),
		auditLogger: auditLogger,
	}
}

// Linker returns the linker used by the service
func (s *Service) Linker() *Linker {
	return s.linker
}

// Get retrieves a customer by uuid
func (s *Service) Get(ctx context.Context, customerUUID string) (*Customer, error) {
	return s.repo.GetByUUID(ctx, customerUUID)
}

// GetBySlug retrieves a customer by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Customer, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List returns customers matching filter, ordered by name
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Customer, error) {
	customers, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list enterprise customers: %w", err)
	}
	return customers, nil
}

// BasicList supports the lightweight name/uuid lookups used by admin tools
func (s *Service) BasicList(ctx context.Context, startsWith, nameOrUUID string) ([]*Customer, error) {
	return s.List(ctx, ListFilter{NameStarts: startsWith, NameOrUUID: nameOrUUID})
}

// DashboardList applies the dashboard query precedence on top of base
func (s *Service) DashboardList(ctx context.Context, base ListFilter, q DashboardQuery) ([]*Customer, error) {
	switch {
	case q.EnterpriseID != "":
		base.UUID = q.EnterpriseID
	case q.Slug != "":
		base.Slug = q.Slug
	case q.Search != "":
		base.NameContains = q.Search
	}
	return s.List(ctx, base)
}

// Create creates a new customer
func (s *Service) Create(ctx context.Context, actorID int64, req CreateRequest) (*Customer, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	if _, err := s.repo.GetBySlug(ctx, req.Slug); err == nil {
		return nil, ErrCustomerExists
	} else if !errors.Is(err, ErrCustomerNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	now := time.Now()
	c := &Customer{
		UUID:                      uuid.NewString(),
		Name:                      req.Name,
		Slug:                      req.Slug,
		Active:                    req.Active == nil || *req.Active,
		EnableDataSharingConsent:  req.EnableDataSharingConsent,
		EnforceDataSharingConsent: req.EnforceDataSharingConsent,
		EnableLearnerPortal:       req.EnableLearnerPortal,
		AllowedEmailDomains:       req.AllowedEmailDomains,
		ContactEmail:              req.ContactEmail,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if c.EnforceDataSharingConsent == "" {
		c.EnforceDataSharingConsent = ConsentAtEnrollment
	}
	if c.AllowedEmailDomains == nil {
		c.AllowedEmailDomains = []string{}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create enterprise customer: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeCustomerCreated,
		EnterpriseID: c.UUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     c.Slug,
	})
	return c, nil
}

// Update applies a partial update to a customer
func (s *Service) Update(ctx context.Context, actorID int64, customerUUID string, req UpdateRequest) (*Customer, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	c, err := s.repo.GetByUUID(ctx, customerUUID)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	if req.Name != nil {
		c.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.Active != nil {
		c.Active = *req.Active
		changed = append(changed, "active")
	}
	if req.EnableDataSharingConsent != nil {
		c.EnableDataSharingConsent = *req.EnableDataSharingConsent
		changed = append(changed, "enable_data_sharing_consent")
	}
	if req.EnforceDataSharingConsent != nil {
		c.EnforceDataSharingConsent = *req.EnforceDataSharingConsent
		changed = append(changed, "enforce_data_sharing_consent")
	}
	if req.EnableLearnerPortal != nil {
		c.EnableLearnerPortal = *req.EnableLearnerPortal
		changed = append(changed, "enable_learner_portal")
	}
	if req.AllowedEmailDomains != nil {
		c.AllowedEmailDomains = *req.AllowedEmailDomains
		changed = append(changed, "allowed_email_domains")
	}
	if req.ContactEmail != nil {
		c.ContactEmail = *req.ContactEmail
		changed = append(changed, "contact_email")
	}
	if len(changed) == 0 {
		return c, nil
	}

	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update enterprise customer: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeCustomerUpdated,
		EnterpriseID: c.UUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Metadata:     map[string]any{"fields": strings.Join(changed, ",")},
	})
	return c, nil
}

// ToggleUniversalLink sets the universal link flag. changed is false when
// the flag already had the requested value.
func (s *Service) ToggleUniversalLink(ctx context.Context, actorID int64, customerUUID string, enable bool) (changed bool, err error) {
	c, err := s.repo.GetByUUID(ctx, customerUUID)
	if err != nil {
		return false, err
	}
	if c.EnableUniversalLink == enable {
		return false, nil
	}

	c.EnableUniversalLink = enable
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		return false, fmt.Errorf("failed to toggle universal link: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeUniversalLinkToggled,
		EnterpriseID: c.UUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Metadata:     map[string]any{"enable_universal_link": enable},
	})
	return true, nil
}

// UnlinkUsers unlinks every email in one transaction. Emails with no
// membership are logged and skipped; any other failure rolls the whole
// batch back and is returned as *UnlinkError.
func (s *Service) UnlinkUsers(ctx context.Context, c *Customer, emails []string, relinkable bool) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, email := range emails {
			err := s.linker.UnlinkUser(ctx, c, email, relinkable)
			switch {
			case err == nil:
			case errors.Is(err, ErrCustomerUserNotFound), errors.Is(err, ErrPendingUserNotFound):
				slog.WarnContext(ctx, "user does not exist in enterprise",
					logger.Email(email),
					logger.EnterpriseID(c.UUID),
				)
			default:
				return &UnlinkError{Email: email, Err: err}
			}
		}
		return nil
	})
}

// LinkLearners links each email to the customer, creating pending
// memberships for emails without an account. anyCreated reports whether
// at least one new membership was created.
func (s *Service) LinkLearners(ctx context.Context, c *Customer, emails []string) (anyCreated bool, err error) {
	if len(emails) == 0 {
		return false, ErrNoEmails
	}
	for _, email := range emails {
		if err := s.linker.ValidateEmail(ctx, c, email); err != nil {
			return false, &ValidationError{Err: err}
		}
	}
	for _, email := range emails {
		res, err := s.linker.LinkUser(ctx, c, email)
		if err != nil {
			return anyCreated, err
		}
		anyCreated = anyCreated || res.Created
	}
	return anyCreated, nil
}

// PrimaryCustomerUUID returns the customer the user most recently became
// active in. It backs permission checks keyed on "the caller's customer".
func (s *Service) PrimaryCustomerUUID(ctx context.Context, userID int64) (string, error) {
	memberships, err := s.linker.customerUsers.ListActiveForUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list enterprise memberships: %w", err)
	}
	if len(memberships) == 0 {
		return "", ErrCustomerUserNotFound
	}
	return memberships[0].EnterpriseCustomerUUID, nil
}

// ValidationError reports malformed input rejected before any mutation
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }
