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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/subsidy"
)

// FulfillmentRepository implements subsidy.Repository
type FulfillmentRepository struct {
	db *DB
}

// NewFulfillmentRepository creates a new subsidy fulfillment repository
func NewFulfillmentRepository(db *DB) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

const fulfillmentSelect = `
	SELECT f.uuid::text, f.kind, f.enterprise_course_enrollment_id, f.subsidy_reference,
		f.is_revoked, f.created_at, f.modified_at,
		e.id, e.enterprise_customer_user_id, ecu.enterprise_customer_uuid::text, ecu.user_id,
		COALESCE(u.username, ''), COALESCE(u.email, ''), e.course_id, e.saved_for_later,
		e.unenrolled_at, e.created_at, e.modified_at
	FROM subsidy_fulfillment f
	JOIN enterprise_course_enrollment e ON e.id = f.enterprise_course_enrollment_id
	JOIN enterprise_customer_user ecu ON ecu.id = e.enterprise_customer_user_id
	LEFT JOIN auth_user u ON u.id = ecu.user_id`

func scanFulfillment(row pgx.Row) (*subsidy.Fulfillment, error) {
	var f subsidy.Fulfillment
	var e subsidy.CourseEnrollment
	var kind string
	err := row.Scan(
		&f.UUID, &kind, &f.EnterpriseCourseEnrollmentID, &f.SubsidyReference,
		&f.IsRevoked, &f.CreatedAt, &f.ModifiedAt,
		&e.ID, &e.EnterpriseCustomerUserID, &e.EnterpriseCustomerUUID, &e.UserID,
		&e.Username, &e.UserEmail, &e.CourseID, &e.SavedForLater,
		&e.UnenrolledAt, &e.CreatedAt, &e.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Kind = subsidy.Kind(kind)
	f.Enrollment = &e
	return &f, nil
}

func collectFulfillments(rows pgx.Rows) ([]*subsidy.Fulfillment, error) {
	defer rows.Close()
	out := []*subsidy.Fulfillment{}
	for rows.Next() {
		f, err := scanFulfillment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fulfillment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create stores a new fulfillment and the markers of its enrollment
// together, so a re-activated enrollment is only saved with its fulfillment.
func (r *FulfillmentRepository) Create(ctx context.Context, f *subsidy.Fulfillment) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		err := r.db.conn(ctx).QueryRow(ctx, `
			INSERT INTO subsidy_fulfillment (
				uuid, kind, enterprise_course_enrollment_id, subsidy_reference, is_revoked
			) VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, modified_at
		`, f.UUID, string(f.Kind), f.EnterpriseCourseEnrollmentID, f.SubsidyReference, f.IsRevoked).
			Scan(&f.CreatedAt, &f.ModifiedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("enrollment %d already has an active fulfillment: %w", f.EnterpriseCourseEnrollmentID, err)
			}
			return fmt.Errorf("failed to insert fulfillment: %w", err)
		}
		if f.Enrollment == nil {
			return nil
		}
		return r.saveEnrollmentMarkers(ctx, f.Enrollment)
	})
}

func (r *FulfillmentRepository) saveEnrollmentMarkers(ctx context.Context, e *subsidy.CourseEnrollment) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE enterprise_course_enrollment
		SET saved_for_later = $2, unenrolled_at = $3, modified_at = $4
		WHERE id = $1
	`, e.ID, e.SavedForLater, e.UnenrolledAt, e.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to save enrollment markers: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subsidy.ErrEnrollmentNotFound
	}
	return nil
}

// Get retrieves a fulfillment visible within scope
func (r *FulfillmentRepository) Get(ctx context.Context, uuid string, scope subsidy.Scope) (*subsidy.Fulfillment, error) {
	if !scope.AllEnterprises && scope.EnterpriseID == "" {
		return nil, subsidy.ErrFulfillmentNotFound
	}
	f, err := scanFulfillment(r.db.conn(ctx).QueryRow(ctx, fulfillmentSelect+`
		WHERE f.uuid::text = $1
			AND ($2 OR ecu.enterprise_customer_uuid::text = $3)
	`, uuid, scope.AllEnterprises, scope.EnterpriseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subsidy.ErrFulfillmentNotFound
		}
		return nil, fmt.Errorf("failed to get fulfillment: %w", err)
	}
	return f, nil
}

// GetActiveForEnrollment retrieves the live fulfillment of an enrollment
func (r *FulfillmentRepository) GetActiveForEnrollment(ctx context.Context, enrollmentID int64) (*subsidy.Fulfillment, error) {
	f, err := scanFulfillment(r.db.conn(ctx).QueryRow(ctx, fulfillmentSelect+`
		WHERE f.enterprise_course_enrollment_id = $1 AND NOT f.is_revoked
	`, enrollmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subsidy.ErrFulfillmentNotFound
		}
		return nil, fmt.Errorf("failed to get active fulfillment: %w", err)
	}
	return f, nil
}

// Revoke persists the revoked fulfillment and its enrollment markers
// together. A fulfillment revoked concurrently yields ErrAlreadyRevoked.
func (r *FulfillmentRepository) Revoke(ctx context.Context, f *subsidy.Fulfillment) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		var revoked bool
		err := r.db.conn(ctx).QueryRow(ctx, `
			UPDATE subsidy_fulfillment SET is_revoked = TRUE, modified_at = $2
			WHERE uuid::text = $1 AND NOT is_revoked
			RETURNING is_revoked
		`, f.UUID, f.ModifiedAt).Scan(&revoked)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := r.db.conn(ctx).QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM subsidy_fulfillment WHERE uuid::text = $1)`, f.UUID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to revoke fulfillment: %w", err)
			}
			if exists {
				return subsidy.ErrAlreadyRevoked
			}
			return subsidy.ErrFulfillmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to revoke fulfillment: %w", err)
		}

		if f.Enrollment == nil {
			return nil
		}
		return r.saveEnrollmentMarkers(ctx, f.Enrollment)
	})
}

// ListByLicenseUUIDs returns license fulfillments for any of the licenses
func (r *FulfillmentRepository) ListByLicenseUUIDs(ctx context.Context, licenseUUIDs []string) ([]*subsidy.Fulfillment, error) {
	if len(licenseUUIDs) == 0 {
		return []*subsidy.Fulfillment{}, nil
	}
	rows, err := r.db.conn(ctx).Query(ctx, fulfillmentSelect+`
		WHERE f.kind = $1 AND f.subsidy_reference = ANY($2)
		ORDER BY f.created_at, f.uuid
	`, string(subsidy.KindLicense), licenseUUIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list fulfillments by license: %w", err)
	}
	return collectFulfillments(rows)
}

// ListLicensedForUser returns the user's live license fulfillments in one customer
func (r *FulfillmentRepository) ListLicensedForUser(ctx context.Context, customerUUID string, userID int64) ([]*subsidy.Fulfillment, error) {
	rows, err := r.db.conn(ctx).Query(ctx, fulfillmentSelect+`
		WHERE f.kind = $1 AND NOT f.is_revoked
			AND ecu.enterprise_customer_uuid::text = $2 AND ecu.user_id = $3
		ORDER BY f.created_at, f.uuid
	`, string(subsidy.KindLicense), customerUUID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licensed fulfillments: %w", err)
	}
	return collectFulfillments(rows)
}

// ListUnenrolled returns fulfillments of kind whose enrollment was unenrolled
func (r *FulfillmentRepository) ListUnenrolled(ctx context.Context, scope subsidy.Scope, kind subsidy.Kind, after *time.Time) ([]*subsidy.Fulfillment, error) {
	if !scope.AllEnterprises && scope.EnterpriseID == "" {
		return []*subsidy.Fulfillment{}, nil
	}
	rows, err := r.db.conn(ctx).Query(ctx, fulfillmentSelect+`
		WHERE f.kind = $1
			AND e.unenrolled_at IS NOT NULL
			AND ($2::timestamptz IS NULL OR e.unenrolled_at >= $2)
			AND ($3 OR ecu.enterprise_customer_uuid::text = $4)
		ORDER BY e.unenrolled_at, f.uuid
	`, string(kind), after, scope.AllEnterprises, scope.EnterpriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unenrolled fulfillments: %w", err)
	}
	return collectFulfillments(rows)
}
