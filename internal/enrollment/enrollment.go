package enrollment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/subsidy"
)

// PathwayCustomerAdminEnrollment tags enrollments made by an enterprise admin
const PathwayCustomerAdminEnrollment = "customer-admin-enrollment"

// DefaultDiscount is applied when a request carries no discount
const DefaultDiscount = 100.0

// Item requests one subsidized enrollment. Exactly one of UserID and Email
// identifies the learner and exactly one of LicenseUUID and TransactionID
// names the subsidy.
type Item struct {
	UserID         *int64 `json:"user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	CourseRunKey   string `json:"course_run_key" validate:"required"`
	LicenseUUID    string `json:"license_uuid,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	ActivationLink string `json:"activation_link,omitempty" validate:"omitempty,url"`

	// CourseMode is resolved by the orchestrator
	CourseMode string `json:"-"`
}

// Subsidy returns the kind and reference of the item's subsidy
func (i Item) Subsidy() (subsidy.Kind, string) {
	if i.LicenseUUID != "" {
		return subsidy.KindLicense, i.LicenseUUID
	}
	return subsidy.KindLearnerCredit, i.TransactionID
}

// BulkEnrollRequest is the body of a bulk enrollment. LicensesInfo is an
// alias of EnrollmentsInfo and wins when both are present.
type BulkEnrollRequest struct {
	LicensesInfo    []Item   `json:"licenses_info"`
	EnrollmentsInfo []Item   `json:"enrollments_info"`
	Discount        *float64 `json:"discount" validate:"omitempty,min=0,max=100"`
	Notify          bool     `json:"notify"`
}

// Items returns the requested enrollments
func (r *BulkEnrollRequest) Items() []Item {
	if len(r.LicensesInfo) > 0 {
		return r.LicensesInfo
	}
	return r.EnrollmentsInfo
}

// DiscountPercentage returns the requested discount or DefaultDiscount
func (r *BulkEnrollRequest) DiscountPercentage() float64 {
	if r.Discount == nil {
		return DefaultDiscount
	}
	return *r.Discount
}

// ValidationError is a malformed bulk enrollment request. Index is -1 for
// request-level problems.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("enrollments_info[%d].%s: %s", e.Index, e.Field, e.Message)
}

// Outcome is the result for one enrollment item
type Outcome struct {
	Email          string `json:"email"`
	CourseRunKey   string `json:"course_run_key"`
	Created        bool   `json:"created"`
	ActivationLink string `json:"activation_link,omitempty"`
	Reason         string `json:"reason,omitempty"`

	// User is nil for pending learners
	User *identity.User `json:"-"`
}

// EnrollResults buckets enrollment outcomes
type EnrollResults struct {
	Successes []Outcome `json:"successes"`
	Pending   []Outcome `json:"pending"`
	Failures  []Outcome `json:"failures"`
}

// NewEnrollResults returns results with empty, non-nil buckets
func NewEnrollResults() *EnrollResults {
	return &EnrollResults{
		Successes: []Outcome{},
		Pending:   []Outcome{},
		Failures:  []Outcome{},
	}
}

// BulkEnrollResult is the response of a bulk enrollment
type BulkEnrollResult struct {
	EnrollResults
	InvalidUserIDs        []int64  `json:"invalid_user_ids,omitempty"`
	InvalidEmailAddresses []string `json:"invalid_email_addresses,omitempty"`
}

// StatusCode maps the result to an HTTP status. Failures and invalid
// identities win over pending, pending wins over success.
func (r *BulkEnrollResult) StatusCode() int {
	switch {
	case len(r.Failures) > 0 || len(r.InvalidUserIDs) > 0 || len(r.InvalidEmailAddresses) > 0:
		return http.StatusConflict
	case len(r.Pending) > 0:
		return http.StatusAccepted
	default:
		return http.StatusCreated
	}
}

// PendingEnrollment holds an enrollment for an email without an account.
// It is fulfilled when the learner registers.
type PendingEnrollment struct {
	ID                 int64        `json:"id"`
	PendingUserID      int64        `json:"pending_user"`
	CourseID           string       `json:"course_id"`
	CourseMode         string       `json:"course_mode"`
	SubsidyKind        subsidy.Kind `json:"subsidy_kind"`
	SubsidyReference   string       `json:"subsidy_reference"`
	DiscountPercentage float64      `json:"discount_percentage"`
	CreatedAt          time.Time    `json:"created"`
}

// PendingEnrollmentRepository defines the interface for pending enrollment persistence
type PendingEnrollmentRepository interface {
	// GetOrCreate is backed by a unique (pending user, course) constraint
	GetOrCreate(ctx context.Context, p *PendingEnrollment) (created bool, err error)
}

// ModeResolver picks the enrollment mode for a course run
type ModeResolver interface {
	BestMode(ctx context.Context, courseRunKey string) (string, error)
}

// Linker validates and links learner emails to a customer
type Linker interface {
	ValidateEmail(ctx context.Context, c *customer.Customer, email string) error
	LinkUser(ctx context.Context, c *customer.Customer, email string) (*customer.LinkResult, error)
}

// SubsidizedEnroller enrolls linked learners under their subsidies
type SubsidizedEnroller interface {
	EnrollSubsidized(ctx context.Context, c *customer.Customer, items []Item, discount float64) (*EnrollResults, error)
}

// Tracker records enrollment analytics events
type Tracker interface {
	TrackEnrollment(ctx context.Context, pathway string, actorID int64, courseRunKey string) error
}

// Notification announces new enrollments in one course run
type Notification struct {
	EnterpriseCustomerUUID string            `json:"enterprise_customer_uuid"`
	CourseRunKey           string            `json:"course_run_key"`
	ActorID                int64             `json:"actor_id"`
	Learners               []string          `json:"learners"`
	ActivationLinks        map[string]string `json:"activation_links,omitempty"`
	AdminEnrollment        bool              `json:"admin_enrollment"`
}

// Notifier sends enrollment notifications to learners
type Notifier interface {
	NotifyEnrolledLearners(ctx context.Context, n Notification) error
}
