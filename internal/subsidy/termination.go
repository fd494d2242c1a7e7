package subsidy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/enterprise/internal/observability/logger"
	"github.com/opentrusty/enterprise/internal/platform"
)

// TerminationStatus is the terminal state of an enrollment after termination
type TerminationStatus string

const (
	StatusCourseCompleted TerminationStatus = "course already completed"
	StatusMovedToAudit    TerminationStatus = "moved to audit"
	StatusUnenrolled      TerminationStatus = "unenrolled"
)

// EnrollmentUpdater changes LMS enrollments
type EnrollmentUpdater interface {
	UpdateEnrollment(ctx context.Context, username, courseID string, upd platform.EnrollmentUpdate) error
}

// CertificateSource looks up a learner's certificate. A nil certificate
// with a nil error means none was issued.
type CertificateSource interface {
	GetCertificate(ctx context.Context, username, courseID string) (*platform.Certificate, error)
}

// ModeChecker reports whether a course run offers a mode
type ModeChecker interface {
	HasMode(ctx context.Context, courseRunKey, mode string) (bool, error)
}

// EnrollmentModificationError wraps a failed LMS enrollment change.
// Mode is empty when the change was a deactivation.
type EnrollmentModificationError struct {
	Username     string
	EnterpriseID string
	CourseID     string
	Mode         string
	Err          error
}

func (e *EnrollmentModificationError) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("enrollment termination: unable to update LMS enrollment for User %s and Enterprise %s in Course %s to Course Mode %s because: %v",
			e.Username, e.EnterpriseID, e.CourseID, e.Mode, e.Err)
	}
	return fmt.Sprintf("enrollment termination: unable to unenroll User %s in Enterprise %s from Course %s because: %v",
		e.Username, e.EnterpriseID, e.CourseID, e.Err)
}

func (e *EnrollmentModificationError) Unwrap() error { return e.Err }

// Terminator ends subsidized enrollments: completed runs are left alone,
// runs with an audit track are downgraded, the rest are deactivated.
type Terminator struct {
	updater EnrollmentUpdater
	certs   CertificateSource
	modes   ModeChecker
	now     func() time.Time
}

// NewTerminator creates a new enrollment terminator
func NewTerminator(updater EnrollmentUpdater, certs CertificateSource, modes ModeChecker) *Terminator {
	return &Terminator{
		updater: updater,
		certs:   certs,
		modes:   modes,
		now:     time.Now,
	}
}

// Terminate moves the enrollment to a terminal state. It never revokes the
// subsidy; callers revoke unless the status is StatusCourseCompleted.
func (t *Terminator) Terminate(ctx context.Context, e *CourseEnrollment, overview *platform.CourseOverview) (TerminationStatus, error) {
	courseID := e.CourseID
	if overview != nil && overview.ID != "" {
		courseID = overview.ID
	}
	attrs := []any{
		logger.Component("subsidy"),
		logger.UserID(e.UserID),
		logger.EnterpriseID(e.EnterpriseCustomerUUID),
		logger.CourseRunKey(courseID),
	}

	completed, err := t.hasCompleted(ctx, e, courseID, overview)
	if err != nil {
		return "", err
	}
	if completed {
		slog.InfoContext(ctx, "enrollment termination skipped, course already complete", attrs...)
		return StatusCourseCompleted, nil
	}

	hasAudit, err := t.modes.HasMode(ctx, courseID, platform.ModeAudit)
	if err != nil {
		return "", fmt.Errorf("failed to check audit mode for %s: %w", courseID, err)
	}

	if hasAudit {
		if err := t.updater.UpdateEnrollment(ctx, e.Username, courseID, platform.EnrollmentUpdate{Mode: platform.ModeAudit}); err != nil {
			modErr := &EnrollmentModificationError{
				Username:     e.Username,
				EnterpriseID: e.EnterpriseCustomerUUID,
				CourseID:     courseID,
				Mode:         platform.ModeAudit,
				Err:          err,
			}
			slog.ErrorContext(ctx, "enrollment termination failed", append(attrs, logger.Error(modErr))...)
			return "", modErr
		}
		slog.InfoContext(ctx, "enrollment moved to audit", attrs...)
		return StatusMovedToAudit, nil
	}

	inactive := false
	if err := t.updater.UpdateEnrollment(ctx, e.Username, courseID, platform.EnrollmentUpdate{IsActive: &inactive}); err != nil {
		modErr := &EnrollmentModificationError{
			Username:     e.Username,
			EnterpriseID: e.EnterpriseCustomerUUID,
			CourseID:     courseID,
			Err:          err,
		}
		slog.ErrorContext(ctx, "enrollment termination failed", append(attrs, logger.Error(modErr))...)
		return "", modErr
	}
	slog.InfoContext(ctx, "enrollment deactivated, course has no audit mode", attrs...)
	return StatusUnenrolled, nil
}

func (t *Terminator) hasCompleted(ctx context.Context, e *CourseEnrollment, courseID string, overview *platform.CourseOverview) (bool, error) {
	cert, err := t.certs.GetCertificate(ctx, e.Username, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch certificate for %s: %w", courseID, err)
	}
	status := platform.CourseRunStatus(overview, cert, e.SavedForLater, t.now())
	return status == platform.StatusCompleted, nil
}
