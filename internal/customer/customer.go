package customer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrCustomerNotFound     = errors.New("enterprise customer not found")
	ErrCustomerExists       = errors.New("enterprise customer slug already exists")
	ErrCustomerUserNotFound = errors.New("enterprise customer user not found")
	ErrPendingUserNotFound  = errors.New("pending enterprise customer user not found")
	ErrInviteKeyNotFound    = errors.New("enterprise customer invite key not found")
	ErrInviteKeyInvalid     = errors.New("enterprise customer invite key is expired or exhausted")
	ErrNotRelinkable        = errors.New("user was permanently unlinked from this enterprise")
	ErrNoEmails             = errors.New("at least one email is required")
)

// Data sharing consent enforcement policies
const (
	ConsentAtEnrollment      = "at_enrollment"
	ConsentExternallyManaged = "externally_managed"
)

// Customer is the tenant root of the enterprise domain
type Customer struct {
	UUID                      string    `json:"uuid"`
	Name                      string    `json:"name"`
	Slug                      string    `json:"slug"`
	Active                    bool      `json:"active"`
	EnableDataSharingConsent  bool      `json:"enable_data_sharing_consent"`
	EnforceDataSharingConsent string    `json:"enforce_data_sharing_consent"`
	EnableUniversalLink       bool      `json:"enable_universal_link"`
	EnableLearnerPortal       bool      `json:"enable_learner_portal"`
	AllowedEmailDomains       []string  `json:"allowed_email_domains"`
	ContactEmail              string    `json:"contact_email,omitempty"`
	CreatedAt                 time.Time `json:"created"`
	UpdatedAt                 time.Time `json:"modified"`
}

// AllowsEmailDomain reports whether email belongs to one of the customer's
// allowed domains. An empty domain list allows every domain.
func (c *Customer) AllowsEmailDomain(email string) bool {
	if len(c.AllowedEmailDomains) == 0 {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range c.AllowedEmailDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if domain == d {
			return true
		}
	}
	return false
}

// CustomerUser is the membership of one platform account in one customer
type CustomerUser struct {
	ID                     int64     `json:"id"`
	EnterpriseCustomerUUID string    `json:"enterprise_customer"`
	UserID                 int64     `json:"user_id"`
	Active                 bool      `json:"active"`
	Linked                 bool      `json:"linked"`
	IsRelinkable           bool      `json:"is_relinkable"`
	InviteKeyUUID          *string   `json:"invite_key,omitempty"`
	CreatedAt              time.Time `json:"created"`
	UpdatedAt              time.Time `json:"modified"`
}

// PendingCustomerUser is a placeholder for an email that has no account yet
type PendingCustomerUser struct {
	ID                     int64     `json:"id"`
	EnterpriseCustomerUUID string    `json:"enterprise_customer"`
	UserEmail              string    `json:"user_email"`
	CreatedAt              time.Time `json:"created"`
}

// InviteKey allows learners to link themselves to a customer
type InviteKey struct {
	UUID                   string    `json:"uuid"`
	EnterpriseCustomerUUID string    `json:"enterprise_customer_uuid"`
	UsageLimit             int       `json:"usage_limit"`
	CurrentUsage           int       `json:"current_usage"`
	ExpirationDate         time.Time `json:"expiration_date"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created"`
}

// IsValid reports whether the key can still be redeemed at now
func (k *InviteKey) IsValid(now time.Time) bool {
	return k.IsActive && now.Before(k.ExpirationDate) && k.CurrentUsage < k.UsageLimit
}

// Branding holds a customer's portal colours and logo
type Branding struct {
	EnterpriseCustomerUUID string    `json:"enterprise_customer"`
	LogoURL                string    `json:"logo"`
	PrimaryColor           string    `json:"primary_color"`
	SecondaryColor         string    `json:"secondary_color"`
	TertiaryColor          string    `json:"tertiary_color"`
	UpdatedAt              time.Time `json:"modified"`
}

// ListFilter narrows customer listings
type ListFilter struct {
	// LinkedUserID restricts results to customers the user is actively linked to
	LinkedUserID *int64
	UUID         string
	Slug         string
	NameContains string
	NameStarts   string
	// NameOrUUID matches a substring of either the name or the uuid
	NameOrUUID string
}

// Repository defines the interface for customer persistence
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByUUID(ctx context.Context, uuid string) (*Customer, error)
	GetBySlug(ctx context.Context, slug string) (*Customer, error)
	Update(ctx context.Context, c *Customer) error
	// List returns customers ordered by name
	List(ctx context.Context, filter ListFilter) ([]*Customer, error)
}

// UserRepository defines the interface for customer membership persistence
type UserRepository interface {
	// Link atomically creates the membership or re-activates an existing
	// one. created is true only when a new row was inserted. A membership
	// that was unlinked permanently returns ErrNotRelinkable.
	Link(ctx context.Context, customerUUID string, userID int64, inviteKeyUUID *string) (cu *CustomerUser, created bool, err error)
	Get(ctx context.Context, customerUUID string, userID int64) (*CustomerUser, error)
	// Unlink deactivates the membership. A non-relinkable unlink also
	// clears IsRelinkable.
	Unlink(ctx context.Context, customerUUID string, userID int64, relinkable bool) error
	// ListActiveForUser returns the user's active memberships, most recently
	// modified first.
	ListActiveForUser(ctx context.Context, userID int64) ([]*CustomerUser, error)
}

// PendingUserRepository defines the interface for pending membership persistence
type PendingUserRepository interface {
	// GetOrCreate is backed by a unique (customer, email) constraint
	GetOrCreate(ctx context.Context, customerUUID, email string) (p *PendingCustomerUser, created bool, err error)
	Delete(ctx context.Context, customerUUID, email string) error
}

// InviteKeyRepository defines the interface for invite key persistence
type InviteKeyRepository interface {
	Create(ctx context.Context, k *InviteKey) error
	Get(ctx context.Context, uuid string) (*InviteKey, error)
	Update(ctx context.Context, k *InviteKey) error
	ListByCustomer(ctx context.Context, customerUUID string) ([]*InviteKey, error)
	// IncrementUsage bumps current_usage only while it is below usage_limit
	// and returns ErrInviteKeyInvalid once the key is exhausted
	IncrementUsage(ctx context.Context, uuid string) error
}

// BrandingRepository defines the interface for branding persistence
type BrandingRepository interface {
	Upsert(ctx context.Context, b *Branding) error
	Get(ctx context.Context, customerUUID string) (*Branding, error)
}

// TxRunner runs fn inside one database transaction. Repositories called
// with the context passed to fn participate in that transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
