// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/identity"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/observability/metrics"
	"github.com/opentrusty/enterprise/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BulkService orchestrates bulk subsidized enrollments. It is deliberately
// non-transactional: a failure for one learner never undoes another.
type BulkService struct {
	modes       ModeResolver
	users       identity.Repository
	linker      Linker
	enroller    SubsidizedEnroller
	tracker     Tracker
	notifier    Notifier
	validate    *validator.Validate
	instruments *metrics.Instruments
	auditLogger audit.Logger
}

// NewBulkService creates a new bulk enrollment service
func NewBulkService(
	modes ModeResolver,
	users identity.Repository,
	linker Linker,
	enroller SubsidizedEnroller,
	tracker Tracker,
	notifier Notifier,
	instruments *metrics.Instruments,
	auditLogger audit.Logger,
) *BulkService {
	return &BulkService{
		modes:       modes,
		users:       users,
		linker:      linker,
		enroller:    enroller,
		tracker:     tracker,
		notifier:    notifier,
		validate:    validator.New(),
		instruments: instruments,
		auditLogger: auditLogger,
	}
}

// Validate checks the request shape. Email format and domain problems are
// not validation errors; they are reported in the result.
func (s *BulkService) Validate(ctx context.Context, req *BulkEnrollRequest) error {
	if err := s.validate.StructPartialCtx(ctx, req, "Discount"); err != nil {
		return &ValidationError{Index: -1, Field: "discount", Message: "must be between 0 and 100"}
	}

	items := req.Items()
	if len(items) == 0 {
		return &ValidationError{Index: -1, Field: "enrollments_info", Message: "at least one enrollment is required"}
	}

	for i, item := range items {
		hasUser := item.UserID != nil
		hasEmail := strings.TrimSpace(item.Email) != ""
		if hasUser == hasEmail {
			return &ValidationError{Index: i, Field: "email", Message: "exactly one of user_id and email is required"}
		}
		if (item.LicenseUUID == "") == (item.TransactionID == "") {
			return &ValidationError{Index: i, Field: "license_uuid", Message: "exactly one of license_uuid and transaction_id is required"}
		}
		if item.LicenseUUID != "" {
			if _, err := uuid.Parse(item.LicenseUUID); err != nil {
				return &ValidationError{Index: i, Field: "license_uuid", Message: "must be a valid uuid"}
			}
		}
		if err := s.validate.StructCtx(ctx, item); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return &ValidationError{Index: i, Field: jsonField(verrs[0].Field()), Message: "failed " + verrs[0].Tag() + " validation"}
			}
			return &ValidationError{Index: i, Field: "enrollments_info", Message: err.Error()}
		}
	}
	return nil
}

// Enroll bulk-enrolls learners in course runs:
//
//  1. resolve user ids to emails, bucketing unknown ids
//  2. resolve each distinct course run's mode once
//  3. validate every distinct email, then link every email that passed
//  4. enroll the remaining items through the subsidized enroller
//  5. track and notify once per course run with new enrollments
//
// Linking is not rolled back when a later email fails.
func (s *BulkService) Enroll(ctx context.Context, actorID int64, c *customer.Customer, req BulkEnrollRequest) (*BulkEnrollResult, error) {
	ctx, span := tracing.StartSpan(ctx, "enrollment.BulkEnroll", trace.WithAttributes(
		attribute.String("enterprise.customer_uuid", c.UUID),
		attribute.Int("enrollment.items", len(req.Items())),
	))
	defer span.End()

	result, err := s.enroll(ctx, actorID, c, req)
	tracing.RecordError(span, err)
	return result, err
}

func (s *BulkService) enroll(ctx context.Context, actorID int64, c *customer.Customer, req BulkEnrollRequest) (*BulkEnrollResult, error) {
	if err := s.Validate(ctx, &req); err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Items()))
	copy(items, req.Items())

	// Modes are resolved before anything is written.
	batch := NewBatchModeCache(s.modes)
	var courseRuns []string
	for i := range items {
		if _, seen := batch.modes[items[i].CourseRunKey]; !seen {
			courseRuns = append(courseRuns, items[i].CourseRunKey)
		}
		mode, err := batch.BestMode(ctx, items[i].CourseRunKey)
		if err != nil {
			return nil, err
		}
		items[i].CourseMode = mode
	}

	result := &BulkEnrollResult{}
	invalidIDs := newOrderedSet[int64]()
	emails := newOrderedSet[string]()
	usersByID := make(map[int64]*identity.User)

	for i := range items {
		if items[i].UserID == nil {
			items[i].Email = identity.NormalizeEmail(items[i].Email)
			emails.add(items[i].Email)
			continue
		}
		id := *items[i].UserID
		user, ok := usersByID[id]
		if !ok {
			u, err := s.users.GetByID(ctx, id)
			if err != nil && !errors.Is(err, identity.ErrUserNotFound) {
				return nil, fmt.Errorf("failed to resolve user %d: %w", id, err)
			}
			user = u
			usersByID[id] = u
		}
		if user == nil {
			invalidIDs.add(id)
			continue
		}
		items[i].Email = identity.NormalizeEmail(user.Email)
		emails.add(items[i].Email)
	}

	invalidEmails := newOrderedSet[string]()
	for _, email := range emails.values {
		if err := s.linker.ValidateEmail(ctx, c, email); err != nil {
			invalidEmails.add(email)
		}
	}
	for _, email := range emails.values {
		if invalidEmails.has(email) {
			continue
		}
		if _, err := s.linker.LinkUser(ctx, c, email); err != nil {
			slog.WarnContext(ctx, "failed to link learner for bulk enrollment",
				logger.Component("enrollment"),
				logger.EnterpriseID(c.UUID),
				logger.Error(err),
			)
			invalidEmails.add(email)
		}
	}

	eligible := make([]Item, 0, len(items))
	for _, item := range items {
		if item.UserID != nil && invalidIDs.has(*item.UserID) {
			continue
		}
		if invalidEmails.has(item.Email) {
			continue
		}
		eligible = append(eligible, item)
	}

	res := NewEnrollResults()
	if len(eligible) > 0 {
		var err error
		res, err = s.enroller.EnrollSubsidized(ctx, c, eligible, req.DiscountPercentage())
		if err != nil {
			return nil, fmt.Errorf("failed to enroll learners: %w", err)
		}
	}
	result.EnrollResults = *res
	if len(invalidIDs.values) > 0 {
		result.InvalidUserIDs = invalidIDs.values
	}
	if len(invalidEmails.values) > 0 {
		result.InvalidEmailAddresses = invalidEmails.values
	}

	s.announce(ctx, actorID, c, courseRuns, res, req.Notify)

	s.instruments.EnrollItems(ctx, "success", len(res.Successes))
	s.instruments.EnrollItems(ctx, "pending", len(res.Pending))
	s.instruments.EnrollItems(ctx, "failure", len(res.Failures))
	s.instruments.EnrollItems(ctx, "invalid", len(result.InvalidUserIDs)+len(result.InvalidEmailAddresses))

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeBulkEnrollment,
		EnterpriseID: c.UUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Metadata: map[string]any{
			"successes":      len(res.Successes),
			"pending":        len(res.Pending),
			"failures":       len(res.Failures),
			"invalid_ids":    len(result.InvalidUserIDs),
			"invalid_emails": len(result.InvalidEmailAddresses),
			"discount":       req.DiscountPercentage(),
		},
	})
	return result, nil
}

// announce emits one tracking event and at most one notification per course
// run that gained at least one new enrollment.
func (s *BulkService) announce(ctx context.Context, actorID int64, c *customer.Customer, courseRuns []string, res *EnrollResults, notify bool) {
	links := make(map[string]string)
	for _, bucket := range [][]Outcome{res.Successes, res.Pending} {
		for _, o := range bucket {
			if o.ActivationLink != "" {
				links[o.Email] = o.ActivationLink
			}
		}
	}

	for _, course := range courseRuns {
		learners := newOrderedSet[string]()
		for _, bucket := range [][]Outcome{res.Pending, res.Successes} {
			for _, o := range bucket {
				if o.CourseRunKey == course && o.Created {
					learners.add(o.Email)
				}
			}
		}
		if len(learners.values) == 0 {
			continue
		}

		attrs := []any{
			logger.Component("enrollment"),
			logger.EnterpriseID(c.UUID),
			logger.CourseRunKey(course),
			logger.Count("learners", len(learners.values)),
		}
		slog.InfoContext(ctx, "bulk enrolled learners", attrs...)

		if err := s.tracker.TrackEnrollment(ctx, PathwayCustomerAdminEnrollment, actorID, course); err != nil {
			slog.WarnContext(ctx, "failed to track enrollment", append(attrs, logger.Error(err))...)
		}
		if !notify {
			continue
		}
		n := Notification{
			EnterpriseCustomerUUID: c.UUID,
			CourseRunKey:           course,
			ActorID:                actorID,
			Learners:               learners.values,
			ActivationLinks:        links,
			AdminEnrollment:        true,
		}
		if err := s.notifier.NotifyEnrolledLearners(ctx, n); err != nil {
			slog.WarnContext(ctx, "failed to notify enrolled learners", append(attrs, logger.Error(err))...)
		}
	}
}

func jsonField(name string) string {
	switch name {
	case "CourseRunKey":
		return "course_run_key"
	case "ActivationLink":
		return "activation_link"
	default:
		return strings.ToLower(name)
	}
}

type orderedSet[T comparable] struct {
	values []T
	index  map[T]struct{}
}

func newOrderedSet[T comparable]() *orderedSet[T] {
	return &orderedSet[T]{index: make(map[T]struct{})}
}

func (s *orderedSet[T]) add(v T) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = struct{}{}
	s.values = append(s.values, v)
}

func (s *orderedSet[T]) has(v T) bool {
	_, ok := s.index[v]
	return ok
}
