package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// Email validation errors
var (
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrEmailDomainNotAllowed = errors.New("email domain is not allowed for this enterprise")
)

// LinkUserError reports that an email could not be linked to a customer.
// Bulk callers bucket the email instead of aborting the batch.
type LinkUserError struct {
	Email string
	Err   error
}

func (e *LinkUserError) Error() string {
	return fmt.Sprintf("could not link %s to enterprise: %v", e.Email, e.Err)
}

func (e *LinkUserError) Unwrap() error { return e.Err }

// LinkResult describes the membership produced by a link. Exactly one of
// CustomerUser and Pending is set.
type LinkResult struct {
	Email        string
	User         *identity.User
	CustomerUser *CustomerUser
	Pending      *PendingCustomerUser
	Created      bool
}

// Linker resolves emails to customer memberships
type Linker struct {
	users         identity.Repository
	customerUsers UserRepository
	pending       PendingUserRepository
	validate      *validator.Validate
	auditLogger   audit.Logger
}

// NewLinker creates a new linker
func NewLinker(users identity.Repository, customerUsers UserRepository, pending PendingUserRepository, auditLogger audit.Logger) *Linker {
	return &Linker{
		users:         users,
		customerUsers: customerUsers,
		pending:       pending,
		validate:      validator.New(),
		auditLogger:   auditLogger,
	}
}

// ValidateEmail checks the email format and the customer's domain policy
func (l *Linker) ValidateEmail(ctx context.Context, c *Customer, email string) error {
	if err := l.validate.VarCtx(ctx, email, "required,email"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if !c.AllowsEmailDomain(email) {
		return fmt.Errorf("%w: %q", ErrEmailDomainNotAllowed, email)
	}
	return nil
}

// LinkUser links the account registered with email to the customer, or
// records a pending membership when no account exists. Both paths are
// atomic get-or-create operations. Every failure is a *LinkUserError.
func (l *Linker) LinkUser(ctx context.Context, c *Customer, email string) (*LinkResult, error) {
	normalized := identity.NormalizeEmail(email)

	user, err := l.users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		return l.LinkAccount(ctx, c, user, nil)
	case errors.Is(err, identity.ErrUserNotFound):
		p, created, err := l.pending.GetOrCreate(ctx, c.UUID, normalized)
		if err != nil {
			return nil, &LinkUserError{Email: email, Err: err}
		}
		if created {
			l.auditLogger.Log(ctx, audit.Event{
				Type:         audit.TypePendingLearnerLinked,
				EnterpriseID: c.UUID,
				Resource:     normalized,
			})
		}
		return &LinkResult{Email: email, Pending: p, Created: created}, nil
	default:
		return nil, &LinkUserError{Email: email, Err: err}
	}
}

// LinkAccount links an existing account to the customer and clears any
// pending membership for the account's email.
func (l *Linker) LinkAccount(ctx context.Context, c *Customer, user *identity.User, inviteKeyUUID *string) (*LinkResult, error) {
	cu, created, err := l.customerUsers.Link(ctx, c.UUID, user.ID, inviteKeyUUID)
	if err != nil {
		return nil, &LinkUserError{Email: user.Email, Err: err}
	}

	if err := l.pending.Delete(ctx, c.UUID, identity.NormalizeEmail(user.Email)); err != nil && !errors.Is(err, ErrPendingUserNotFound) {
		slog.WarnContext(ctx, "failed to remove pending enterprise user after link",
			logger.EnterpriseID(c.UUID),
			logger.UserID(user.ID),
			logger.Error(err),
		)
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeLearnerLinked,
		EnterpriseID: c.UUID,
		Resource:     fmt.Sprintf("%d", user.ID),
		Metadata:     map[string]any{"created": created},
	})

	return &LinkResult{Email: user.Email, User: user, CustomerUser: cu, Created: created}, nil
}

// UnlinkUser removes the membership for email. It returns
// ErrCustomerUserNotFound or ErrPendingUserNotFound when nothing matches.
func (l *Linker) UnlinkUser(ctx context.Context, c *Customer, email string, relinkable bool) error {
	normalized := identity.NormalizeEmail(email)

	user, err := l.users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		if err := l.customerUsers.Unlink(ctx, c.UUID, user.ID, relinkable); err != nil {
			return err
		}
	case errors.Is(err, identity.ErrUserNotFound):
		if err := l.pending.Delete(ctx, c.UUID, normalized); err != nil {
			return err
		}
	default:
		return err
	}

	l.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeLearnerUnlinked,
		EnterpriseID: c.UUID,
		Resource:     normalized,
		Metadata:     map[string]any{"is_relinkable": relinkable},
	})
	return nil
}
