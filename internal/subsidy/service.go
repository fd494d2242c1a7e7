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

package subsidy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opentrusty/enterprise/internal/audit"
	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/observability/metrics"
	"github.com/opentrusty/enterprise/internal/observability/tracing"
	"github.com/opentrusty/enterprise/internal/platform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const msgOverviewNotFound = "course overview not found"

// OverviewSource fetches course run overviews
type OverviewSource interface {
	GetCourseOverviews(ctx context.Context, courseIDs []string) ([]platform.CourseOverview, error)
}

// Outcome is the result of terminating one enrollment
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RevocationResults maps course run keys to their termination outcome
type RevocationResults map[string]Outcome

// AnyFailures reports whether at least one termination failed
func (r RevocationResults) AnyFailures() bool {
	for _, o := range r {
		if !o.Success {
			return true
		}
	}
	return false
}

// SweepItem is the outcome for one fulfillment in an expiration sweep
type SweepItem struct {
	LicenseUUID string `json:"license_uuid"`
	CourseID    string `json:"course_id"`
	Skipped     bool   `json:"skipped"`
	Outcome
}

// SweepResult aggregates an expiration sweep. Skipped items count neither
// as successes nor as failures.
type SweepResult struct {
	Items     []SweepItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
}

// OK reports whether the sweep completed without failures
func (r *SweepResult) OK() bool {
	return r.Failed == 0
}

// Service provides subsidy fulfillment lifecycle business logic
type Service struct {
	repo        Repository
	history     HistoryRepository
	members     customer.UserRepository
	overviews   OverviewSource
	terminator  *Terminator
	instruments *metrics.Instruments
	auditLogger audit.Logger
	now         func() time.Time
}

// NewService creates a new subsidy service
func NewService(
	repo Repository,
	history HistoryRepository,
	members customer.UserRepository,
	overviews OverviewSource,
	terminator *Terminator,
	instruments *metrics.Instruments,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		repo:        repo,
		history:     history,
		members:     members,
		overviews:   overviews,
		terminator:  terminator,
		instruments: instruments,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Get retrieves a fulfillment visible within scope
func (s *Service) Get(ctx context.Context, uuid string, scope Scope) (*Fulfillment, error) {
	return s.repo.Get(ctx, uuid, scope)
}

// ListUnenrolled returns unenrolled fulfillments of kind, optionally only
// those unenrolled at or after after
func (s *Service) ListUnenrolled(ctx context.Context, scope Scope, kind Kind, after *time.Time) ([]*Fulfillment, error) {
	fs, err := s.repo.ListUnenrolled(ctx, scope, kind, after)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenrolled fulfillments: %w", err)
	}
	return fs, nil
}

// CancelEnrollment terminates the enrollment behind one fulfillment and
// revokes the fulfillment unless the course was already completed.
func (s *Service) CancelEnrollment(ctx context.Context, actorID int64, scope Scope, uuid string) (TerminationStatus, error) {
	f, err := s.repo.Get(ctx, uuid, scope)
	if err != nil {
		return "", err
	}
	if f.IsRevoked {
		return "", ErrAlreadyRevoked
	}
	if f.Enrollment == nil {
		return "", ErrEnrollmentNotFound
	}

	overviews, err := s.indexOverviews(ctx, []string{f.Enrollment.CourseID})
	if err != nil {
		return "", err
	}
	overview, ok := overviews[f.Enrollment.CourseID]
	if !ok {
		overview = &platform.CourseOverview{ID: f.Enrollment.CourseID}
	}

	status, err := s.terminator.Terminate(ctx, f.Enrollment, overview)
	if err != nil {
		s.instruments.Termination(ctx, "failed")
		return "", err
	}
	s.instruments.Termination(ctx, string(status))

	if status != StatusCourseCompleted {
		if err := s.revoke(ctx, actorID, f); err != nil {
			return "", err
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeEnrollmentTerminated,
		EnterpriseID: f.Enrollment.EnterpriseCustomerUUID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     f.UUID,
		Metadata: map[string]any{
			"course_id": f.Enrollment.CourseID,
			"status":    string(status),
		},
	})
	return status, nil
}

// RevokeLicensesForUser terminates every licensed enrollment the user holds
// within the customer. The loop never stops early; failures are reported
// per course.
func (s *Service) RevokeLicensesForUser(ctx context.Context, actorID int64, customerUUID string, userID int64) (RevocationResults, error) {
	if _, err := s.members.Get(ctx, customerUUID, userID); err != nil {
		return nil, err
	}

	fs, err := s.repo.ListLicensedForUser(ctx, customerUUID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licensed enrollments: %w", err)
	}

	byCourse := make(map[string]*Fulfillment, len(fs))
	courseIDs := make([]string, 0, len(fs))
	for _, f := range fs {
		if f.IsRevoked || f.Enrollment == nil {
			continue
		}
		if _, seen := byCourse[f.Enrollment.CourseID]; !seen {
			courseIDs = append(courseIDs, f.Enrollment.CourseID)
		}
		byCourse[f.Enrollment.CourseID] = f
	}

	overviews, err := s.indexOverviews(ctx, courseIDs)
	if err != nil {
		return nil, err
	}

	results := make(RevocationResults, len(courseIDs))
	for _, courseID := range courseIDs {
		f := byCourse[courseID]
		overview, ok := overviews[courseID]
		if !ok {
			results[courseID] = Outcome{Success: false, Message: msgOverviewNotFound}
			continue
		}
		status, err := s.terminateAndRevoke(ctx, actorID, f, overview)
		if err != nil {
			results[courseID] = Outcome{Success: false, Message: err.Error()}
			continue
		}
		results[courseID] = Outcome{Success: true, Message: string(status)}
	}

	slog.InfoContext(ctx, "license revocation finished",
		logger.Component("subsidy"),
		logger.EnterpriseID(customerUUID),
		logger.UserID(userID),
		logger.Count("courses", len(courseIDs)),
	)
	return results, nil
}

// ExpireLicenses terminates the enrollments backed by expired licenses.
// When cutoff is set, enrollments whose latest history entry is at or after
// cutoff are skipped. Already revoked fulfillments are skipped. A failure on
// one item never stops the sweep.
func (s *Service) ExpireLicenses(ctx context.Context, actorID int64, licenseUUIDs []string, cutoff *time.Time) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "subsidy.ExpireLicenses", trace.WithAttributes(
		attribute.Int("subsidy.license_count", len(licenseUUIDs)),
	))
	defer span.End()

	result, err := s.expireLicenses(ctx, actorID, licenseUUIDs, cutoff)
	tracing.RecordError(span, err)
	return result, err
}

func (s *Service) expireLicenses(ctx context.Context, actorID int64, licenseUUIDs []string, cutoff *time.Time) (*SweepResult, error) {
	if len(licenseUUIDs) == 0 {
		return nil, ErrNoLicenseUUIDs
	}

	fs, err := s.repo.ListByLicenseUUIDs(ctx, licenseUUIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list licensed enrollments: %w", err)
	}

	courseIDs := make([]string, 0, len(fs))
	pairs := make([]UserCourse, 0, len(fs))
	for _, f := range fs {
		if f.Enrollment == nil {
			continue
		}
		courseIDs = append(courseIDs, f.Enrollment.CourseID)
		pairs = append(pairs, UserCourse{UserID: f.Enrollment.UserID, CourseID: f.Enrollment.CourseID})
	}

	overviews, err := s.indexOverviews(ctx, courseIDs)
	if err != nil {
		return nil, err
	}

	var lastModified map[UserCourse]time.Time
	if cutoff != nil && len(pairs) > 0 {
		lastModified, err = s.history.LatestModified(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("failed to load enrollment history: %w", err)
		}
	}

	result := &SweepResult{Items: make([]SweepItem, 0, len(fs))}
	for _, f := range fs {
		item := SweepItem{LicenseUUID: f.SubsidyReference}
		if f.Enrollment != nil {
			item.CourseID = f.Enrollment.CourseID
		}
		attrs := []any{
			logger.Component("subsidy"),
			logger.LicenseUUID(f.SubsidyReference),
			logger.CourseRunKey(item.CourseID),
		}

		if f.IsRevoked {
			slog.InfoContext(ctx, "expiration skipped, fulfillment already revoked", attrs...)
			item.Skipped = true
			result.add(item)
			continue
		}
		if f.Enrollment == nil {
			item.Message = ErrEnrollmentNotFound.Error()
			result.add(item)
			continue
		}

		if cutoff != nil {
			key := UserCourse{UserID: f.Enrollment.UserID, CourseID: f.Enrollment.CourseID}
			if ts, ok := lastModified[key]; ok && !ts.Before(*cutoff) {
				slog.InfoContext(ctx, "expiration skipped, enrollment modified after cutoff",
					append(attrs, slog.Time("modified", ts), slog.Time("cutoff", *cutoff))...)
				item.Skipped = true
				result.add(item)
				continue
			}
		}

		overview, ok := overviews[f.Enrollment.CourseID]
		if !ok {
			item.Message = msgOverviewNotFound
			result.add(item)
			continue
		}

		status, err := s.terminateAndRevoke(ctx, actorID, f, overview)
		if errors.Is(err, ErrAlreadyRevoked) {
			slog.InfoContext(ctx, "expiration skipped, fulfillment revoked concurrently", attrs...)
			item.Skipped = true
			result.add(item)
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to expire licensed enrollment", append(attrs, logger.Error(err))...)
			item.Message = err.Error()
			result.add(item)
			continue
		}
		item.Success = true
		item.Message = string(status)
		result.add(item)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeLicensesExpired,
		ActorID: strconv.FormatInt(actorID, 10),
		Metadata: map[string]any{
			"requested": len(licenseUUIDs),
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"skipped":   result.Skipped,
		},
	})
	return result, nil
}

func (r *SweepResult) add(item SweepItem) {
	switch {
	case item.Skipped:
		r.Skipped++
	case item.Success:
		r.Succeeded++
	default:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

func (s *Service) terminateAndRevoke(ctx context.Context, actorID int64, f *Fulfillment, overview *platform.CourseOverview) (TerminationStatus, error) {
	status, err := s.terminator.Terminate(ctx, f.Enrollment, overview)
	if err != nil {
		s.instruments.Termination(ctx, "failed")
		return "", err
	}
	s.instruments.Termination(ctx, string(status))

	if status != StatusCourseCompleted {
		if err := s.revoke(ctx, actorID, f); err != nil {
			return "", err
		}
	}
	return status, nil
}

// revoke is a no-op for fulfillments that are already revoked
func (s *Service) revoke(ctx context.Context, actorID int64, f *Fulfillment) error {
	if !f.Revoke(s.now()) {
		return nil
	}
	if err := s.repo.Revoke(ctx, f); err != nil {
		if errors.Is(err, ErrAlreadyRevoked) {
			return err
		}
		return fmt.Errorf("failed to revoke fulfillment %s: %w", f.UUID, err)
	}
	s.instruments.Revocation(ctx, string(f.Kind))

	enterpriseID := ""
	if f.Enrollment != nil {
		enterpriseID = f.Enrollment.EnterpriseCustomerUUID
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:         audit.TypeSubsidyRevoked,
		EnterpriseID: enterpriseID,
		ActorID:      strconv.FormatInt(actorID, 10),
		Resource:     f.UUID,
		Metadata: map[string]any{
			"kind": string(f.Kind),
		},
	})
	return nil
}

func (s *Service) indexOverviews(ctx context.Context, courseIDs []string) (map[string]*platform.CourseOverview, error) {
	index := make(map[string]*platform.CourseOverview, len(courseIDs))
	if len(courseIDs) == 0 {
		return index, nil
	}
	overviews, err := s.overviews.GetCourseOverviews(ctx, dedupe(courseIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch course overviews: %w", err)
	}
	for i := range overviews {
		index[overviews[i].ID] = &overviews[i]
	}
	return index, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// IsNotFound reports whether err means the fulfillment or its membership
// does not exist for the caller
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFulfillmentNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, customer.ErrCustomerUserNotFound)
}
