package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/enterprise/internal/enrollment"
	"github.com/opentrusty/enterprise/internal/subsidy"
)

// CourseEnrollmentRepository implements subsidy.EnrollmentRepository
type CourseEnrollmentRepository struct {
	db *DB
}

// NewCourseEnrollmentRepository creates a new enterprise course enrollment repository
func NewCourseEnrollmentRepository(db *DB) *CourseEnrollmentRepository {
	return &CourseEnrollmentRepository{db: db}
}

// GetOrCreate returns the enrollment for the membership and course. An
// existing row is returned as stored.
func (r *CourseEnrollmentRepository) GetOrCreate(ctx context.Context, customerUserID int64, courseID string) (*subsidy.CourseEnrollment, bool, error) {
	var e subsidy.CourseEnrollment
	var created bool
	err := r.db.conn(ctx).QueryRow(ctx, `
		WITH upserted AS (
			INSERT INTO enterprise_course_enrollment (enterprise_customer_user_id, course_id)
			VALUES ($1, $2)
			ON CONFLICT (enterprise_customer_user_id, course_id) DO UPDATE SET
				course_id = EXCLUDED.course_id
			RETURNING id, enterprise_customer_user_id, course_id, saved_for_later,
				unenrolled_at, created_at, modified_at, (xmax = 0) AS created
		)
		SELECT up.id, up.enterprise_customer_user_id, ecu.enterprise_customer_uuid::text, ecu.user_id,
			COALESCE(u.username, ''), COALESCE(u.email, ''), up.course_id, up.saved_for_later,
			up.unenrolled_at, up.created_at, up.modified_at, up.created
		FROM upserted up
		JOIN enterprise_customer_user ecu ON ecu.id = up.enterprise_customer_user_id
		LEFT JOIN auth_user u ON u.id = ecu.user_id
	`, customerUserID, courseID).Scan(
		&e.ID, &e.EnterpriseCustomerUserID, &e.EnterpriseCustomerUUID, &e.UserID,
		&e.Username, &e.UserEmail, &e.CourseID, &e.SavedForLater,
		&e.UnenrolledAt, &e.CreatedAt, &e.ModifiedAt, &created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create course enrollment: %w", err)
	}
	return &e, created, nil
}

// HistoryRepository implements subsidy.HistoryRepository over the
// platform's enrollment history table
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new enrollment history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// LatestModified returns the newest history row date per learner and course
func (r *HistoryRepository) LatestModified(ctx context.Context, pairs []subsidy.UserCourse) (map[subsidy.UserCourse]time.Time, error) {
	out := make(map[subsidy.UserCourse]time.Time, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}
	userIDs := make([]int64, len(pairs))
	courseIDs := make([]string, len(pairs))
	for i, p := range pairs {
		userIDs[i] = p.UserID
		courseIDs[i] = p.CourseID
	}

	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (h.user_id, h.course_id) h.user_id, h.course_id, h.history_date
		FROM student_courseenrollment_history h
		JOIN unnest($1::bigint[], $2::text[]) AS p(user_id, course_id)
			ON p.user_id = h.user_id AND p.course_id = h.course_id
		ORDER BY h.user_id, h.course_id, h.history_date DESC
	`, userIDs, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollment history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key subsidy.UserCourse
		var at time.Time
		if err := rows.Scan(&key.UserID, &key.CourseID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment history: %w", err)
		}
		out[key] = at
	}
	return out, rows.Err()
}

// PendingEnrollmentRepository implements enrollment.PendingEnrollmentRepository
type PendingEnrollmentRepository struct {
	db *DB
}

// NewPendingEnrollmentRepository creates a new pending enrollment repository
func NewPendingEnrollmentRepository(db *DB) *PendingEnrollmentRepository {
	return &PendingEnrollmentRepository{db: db}
}

// GetOrCreate inserts p unless the pending user already holds the course.
// p is filled with the stored row either way.
func (r *PendingEnrollmentRepository) GetOrCreate(ctx context.Context, p *enrollment.PendingEnrollment) (bool, error) {
	var created bool
	var kind string
	err := r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO pending_enrollment (
			pending_user_id, course_id, course_mode, subsidy_kind, subsidy_reference, discount_percentage
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pending_user_id, course_id) DO UPDATE SET
			course_id = EXCLUDED.course_id
		RETURNING id, course_mode, subsidy_kind, subsidy_reference, discount_percentage::float8, created_at, (xmax = 0)
	`, p.PendingUserID, p.CourseID, p.CourseMode, string(p.SubsidyKind), p.SubsidyReference, p.DiscountPercentage).Scan(
		&p.ID, &p.CourseMode, &kind, &p.SubsidyReference, &p.DiscountPercentage, &p.CreatedAt, &created,
	)
	if err != nil {
		return false, fmt.Errorf("failed to get or create pending enrollment: %w", err)
	}
	p.SubsidyKind = subsidy.Kind(kind)
	return created, nil
}
