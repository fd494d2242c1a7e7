package subsidy

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies what pays for a subsidized enrollment
type Kind string

const (
	KindLicense       Kind = "license"
	KindLearnerCredit Kind = "learner_credit"
)

// Domain errors
var (
	ErrFulfillmentNotFound = errors.New("subsidy fulfillment not found")
	ErrAlreadyRevoked      = errors.New("enrollment is already canceled")
	ErrNoLicenseUUIDs      = errors.New("at least one expired license uuid is required")
	ErrEnrollmentNotFound  = errors.New("enterprise course enrollment not found")
)

// CourseEnrollment is an enterprise learner's enrollment in one course run
type CourseEnrollment struct {
	ID                       int64      `json:"id"`
	EnterpriseCustomerUserID int64      `json:"enterprise_customer_user"`
	EnterpriseCustomerUUID   string     `json:"enterprise_customer_uuid"`
	UserID                   int64      `json:"user_id"`
	Username                 string     `json:"username"`
	UserEmail                string     `json:"user_email"`
	CourseID                 string     `json:"course_id"`
	SavedForLater            bool       `json:"saved_for_later"`
	UnenrolledAt             *time.Time `json:"unenrolled_at"`
	CreatedAt                time.Time  `json:"created"`
	ModifiedAt               time.Time  `json:"modified"`
}

// Fulfillment records one enrollment paid for by a license or a learner
// credit transaction. Each course enrollment has at most one fulfillment.
type Fulfillment struct {
	UUID                         string
	Kind                         Kind
	EnterpriseCourseEnrollmentID int64
	// SubsidyReference is the license uuid or the transaction id
	SubsidyReference string
	IsRevoked        bool
	CreatedAt        time.Time
	ModifiedAt       time.Time
	Enrollment       *CourseEnrollment
}

type fulfillmentJSON struct {
	UUID          string            `json:"uuid"`
	Kind          Kind              `json:"fulfillment_type"`
	LicenseUUID   string            `json:"license_uuid,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	IsRevoked     bool              `json:"is_revoked"`
	Created       time.Time         `json:"created"`
	Modified      time.Time         `json:"modified"`
	Enrollment    *CourseEnrollment `json:"enterprise_course_enrollment,omitempty"`
}

// MarshalJSON names the subsidy reference after the fulfillment kind
func (f *Fulfillment) MarshalJSON() ([]byte, error) {
	out := fulfillmentJSON{
		UUID:       f.UUID,
		Kind:       f.Kind,
		IsRevoked:  f.IsRevoked,
		Created:    f.CreatedAt,
		Modified:   f.ModifiedAt,
		Enrollment: f.Enrollment,
	}
	switch f.Kind {
	case KindLicense:
		out.LicenseUUID = f.SubsidyReference
	case KindLearnerCredit:
		out.TransactionID = f.SubsidyReference
	}
	return json.Marshal(out)
}

// Reactivate clears the unenrollment markers. It reports whether anything
// changed.
func (e *CourseEnrollment) Reactivate(now time.Time) bool {
	if e.UnenrolledAt == nil && !e.SavedForLater {
		return false
	}
	e.UnenrolledAt = nil
	e.SavedForLater = false
	e.ModifiedAt = now
	return true
}

// Revoke marks the fulfillment revoked and the enrollment unenrolled and
// saved for later. It returns false, changing nothing, when the
// fulfillment was already revoked.
func (f *Fulfillment) Revoke(now time.Time) bool {
	if f.IsRevoked {
		return false
	}
	f.IsRevoked = true
	f.ModifiedAt = now
	if f.Enrollment != nil {
		f.Enrollment.SavedForLater = true
		if f.Enrollment.UnenrolledAt == nil {
			t := now
			f.Enrollment.UnenrolledAt = &t
		}
		f.Enrollment.ModifiedAt = now
	}
	return true
}

// Scope restricts fulfillment lookups to one tenant. Staff callers use
// AllEnterprises.
type Scope struct {
	EnterpriseID   string
	AllEnterprises bool
}

// Allows reports whether a fulfillment owned by enterpriseID is visible
func (s Scope) Allows(enterpriseID string) bool {
	return s.AllEnterprises || (s.EnterpriseID != "" && s.EnterpriseID == enterpriseID)
}

// UserCourse keys enrollment history by learner and course run
type UserCourse struct {
	UserID   int64
	CourseID string
}

// Repository defines the interface for fulfillment persistence.
// Returned fulfillments carry their Enrollment.
type Repository interface {
	// Create stores f together with the markers of f.Enrollment when set
	Create(ctx context.Context, f *Fulfillment) error
	// Get returns ErrFulfillmentNotFound for fulfillments outside scope
	Get(ctx context.Context, uuid string, scope Scope) (*Fulfillment, error)
	// GetActiveForEnrollment returns the non-revoked fulfillment backing the
	// enrollment or ErrFulfillmentNotFound
	GetActiveForEnrollment(ctx context.Context, enrollmentID int64) (*Fulfillment, error)
	// Revoke persists a revoked fulfillment together with its enrollment's
	// unenrollment markers. It returns ErrAlreadyRevoked when the stored
	// fulfillment is already revoked.
	Revoke(ctx context.Context, f *Fulfillment) error
	ListByLicenseUUIDs(ctx context.Context, licenseUUIDs []string) ([]*Fulfillment, error)
	// ListLicensedForUser returns the user's non-revoked license fulfillments
	// within the customer
	ListLicensedForUser(ctx context.Context, customerUUID string, userID int64) ([]*Fulfillment, error)
	// ListUnenrolled returns fulfillments of kind whose enrollment has been
	// unenrolled, at or after the given time when set
	ListUnenrolled(ctx context.Context, scope Scope, kind Kind, after *time.Time) ([]*Fulfillment, error)
}

// EnrollmentRepository defines the interface for enterprise course
// enrollment persistence
type EnrollmentRepository interface {
	// GetOrCreate is backed by a unique (customer user, course) constraint.
	// An existing row is returned unchanged; re-activation is persisted by
	// Repository.Create with the new fulfillment.
	GetOrCreate(ctx context.Context, customerUserID int64, courseID string) (e *CourseEnrollment, created bool, err error)
}

// HistoryRepository reads the platform's course enrollment history
type HistoryRepository interface {
	// LatestModified returns the most recent history timestamp per pair.
	// Pairs without history are absent from the map.
	LatestModified(ctx context.Context, pairs []UserCourse) (map[UserCourse]time.Time, error)
}
