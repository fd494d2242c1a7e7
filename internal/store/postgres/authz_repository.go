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
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/authz"
)

// AssignmentRepository implements authz.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new role assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListForUser retrieves all assignments for a user
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID int64) ([]*authz.Assignment, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT user_id, role, enterprise_id, granted_at
		FROM enterprise_role_assignment
		WHERE user_id = $1
		ORDER BY granted_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	assignments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*authz.Assignment, error) {
		var a authz.Assignment
		err := row.Scan(&a.UserID, &a.Role, &a.EnterpriseID, &a.GrantedAt)
		return &a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan role assignment: %w", err)
	}
	return assignments, nil
}

// Grant assigns role to the user for one enterprise, or all of them
func (r *AssignmentRepository) Grant(ctx context.Context, a *authz.Assignment) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO enterprise_role_assignment (user_id, role, enterprise_id, granted_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, role, enterprise_id) DO NOTHING
	`, a.UserID, a.Role, a.EnterpriseID)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}
