package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/subsidy"
)

// Failure reasons reported in EnrollResults.Failures
const (
	ReasonDifferentSubsidy = "already enrolled under a different subsidy"
	ReasonNotLinked        = "learner is not linked to the enterprise"
)

// LMSEnroller creates LMS enrollments
type LMSEnroller interface {
	Enroll(ctx context.Context, username, courseRunKey, mode string) error
}

// EnrollerDeps groups the collaborators of Enroller
type EnrollerDeps struct {
	Users              identity.Repository
	Members            customer.UserRepository
	PendingUsers       customer.PendingUserRepository
	LMS                LMSEnroller
	Enrollments        subsidy.EnrollmentRepository
	Fulfillments       subsidy.Repository
	PendingEnrollments PendingEnrollmentRepository
}

// Enroller enrolls learners under license or learner credit subsidies.
// Learners with an account are enrolled in the LMS and get a fulfillment
// record; emails without an account get a pending enrollment.
type Enroller struct {
	deps EnrollerDeps
}

// NewEnroller creates a new subsidized enroller
func NewEnroller(deps EnrollerDeps) *Enroller {
	return &Enroller{deps: deps}
}

// EnrollSubsidized implements SubsidizedEnroller. Per-item problems land in
// Failures; only infrastructure errors on lookups abort the call.
func (e *Enroller) EnrollSubsidized(ctx context.Context, c *customer.Customer, items []Item, discount float64) (*EnrollResults, error) {
	res := NewEnrollResults()
	for _, item := range items {
		user, err := e.deps.Users.GetByEmail(ctx, item.Email)
		switch {
		case errors.Is(err, identity.ErrUserNotFound):
			o, err := e.enrollPending(ctx, c, item, discount)
			if err != nil {
				res.Failures = append(res.Failures, failure(item, err.Error()))
				continue
			}
			res.Pending = append(res.Pending, *o)
			continue
		case err != nil:
			return nil, fmt.Errorf("failed to look up %s: %w", item.Email, err)
		}

		o, err := e.enrollExisting(ctx, c, user, item)
		if err != nil {
			slog.WarnContext(ctx, "subsidized enrollment failed",
				logger.Component("enrollment"),
				logger.EnterpriseID(c.UUID),
				logger.CourseRunKey(item.CourseRunKey),
				logger.UserID(user.ID),
				logger.Error(err),
			)
			res.Failures = append(res.Failures, failure(item, err.Error()))
			continue
		}
		o.User = user
		if o.Reason != "" {
			res.Failures = append(res.Failures, *o)
			continue
		}
		res.Successes = append(res.Successes, *o)
	}
	return res, nil
}

func (e *Enroller) enrollExisting(ctx context.Context, c *customer.Customer, user *identity.User, item Item) (*Outcome, error) {
	member, err := e.deps.Members.Get(ctx, c.UUID, user.ID)
	if errors.Is(err, customer.ErrCustomerUserNotFound) {
		o := failure(item, ReasonNotLinked)
		return &o, nil
	}
	if err != nil {
		return nil, err
	}

	ece, _, err := e.deps.Enrollments.GetOrCreate(ctx, member.ID, item.CourseRunKey)
	if err != nil {
		return nil, fmt.Errorf("failed to record enterprise enrollment: %w", err)
	}

	kind, ref := item.Subsidy()
	active, err := e.deps.Fulfillments.GetActiveForEnrollment(ctx, ece.ID)
	switch {
	case err == nil && active.SubsidyReference != ref:
		o := failure(item, ReasonDifferentSubsidy)
		return &o, nil
	case err == nil:
		return &Outcome{
			Email:          item.Email,
			CourseRunKey:   item.CourseRunKey,
			ActivationLink: item.ActivationLink,
		}, nil
	case !errors.Is(err, subsidy.ErrFulfillmentNotFound):
		return nil, fmt.Errorf("failed to check existing fulfillment: %w", err)
	}

	if err := e.deps.LMS.Enroll(ctx, user.Username, item.CourseRunKey, item.CourseMode); err != nil {
		return nil, fmt.Errorf("failed to enroll in %s: %w", item.CourseRunKey, err)
	}

	// A previously unenrolled row is re-activated only when its new
	// fulfillment is stored.
	ece.Reactivate(time.Now())

	f := &subsidy.Fulfillment{
		UUID:                         uuid.NewString(),
		Kind:                         kind,
		EnterpriseCourseEnrollmentID: ece.ID,
		SubsidyReference:             ref,
		Enrollment:                   ece,
	}
	if err := e.deps.Fulfillments.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to record subsidy fulfillment: %w", err)
	}

	return &Outcome{
		Email:          item.Email,
		CourseRunKey:   item.CourseRunKey,
		Created:        true,
		ActivationLink: item.ActivationLink,
	}, nil
}

func (e *Enroller) enrollPending(ctx context.Context, c *customer.Customer, item Item, discount float64) (*Outcome, error) {
	pendingUser, _, err := e.deps.PendingUsers.GetOrCreate(ctx, c.UUID, item.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to record pending learner: %w", err)
	}

	kind, ref := item.Subsidy()
	created, err := e.deps.PendingEnrollments.GetOrCreate(ctx, &PendingEnrollment{
		PendingUserID:      pendingUser.ID,
		CourseID:           item.CourseRunKey,
		CourseMode:         item.CourseMode,
		SubsidyKind:        kind,
		SubsidyReference:   ref,
		DiscountPercentage: discount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record pending enrollment: %w", err)
	}

	return &Outcome{
		Email:          item.Email,
		CourseRunKey:   item.CourseRunKey,
		Created:        created,
		ActivationLink: item.ActivationLink,
	}, nil
}

func failure(item Item, reason string) Outcome {
	return Outcome{
		Email:        item.Email,
		CourseRunKey: item.CourseRunKey,
		Reason:       reason,
	}
}
