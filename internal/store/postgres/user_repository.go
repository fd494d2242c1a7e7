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

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/identity"
)

// UserRepository implements identity.Repository over the platform user table
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, is_staff, is_active`

func scanUser(row pgx.Row) (*identity.User, error) {
	var u identity.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.IsStaff, &u.IsActive); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	u, err := scanUser(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM auth_user
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	u, err := scanUser(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM auth_user
		WHERE LOWER(email) = $1
		ORDER BY id
		LIMIT 1
	`, identity.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmails retrieves the users matching any of the emails
func (r *UserRepository) GetByEmails(ctx context.Context, emails []string) (map[string]*identity.User, error) {
	out := make(map[string]*identity.User, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = identity.NormalizeEmail(e)
	}

	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT `+userColumns+`
		FROM auth_user
		WHERE LOWER(email) = ANY($1)
		ORDER BY id
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		key := identity.NormalizeEmail(u.Email)
		if _, seen := out[key]; !seen {
			out[key] = u
		}
	}
	return out, rows.Err()
}
