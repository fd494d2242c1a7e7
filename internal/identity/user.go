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

package identity

import (
	"context"
	"errors"
	"strings"
)

// Domain errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// User is a platform learner account.
//
// The user directory is owned by the platform; this service reads it to
// resolve the numeric ids and emails that admins submit, and never writes it.
type User struct {
	ID       int64
	Username string
	Email    string
	IsStaff  bool
	IsActive bool
}

// Repository defines read access to the platform user directory
type Repository interface {
	// GetByID returns the user with the given numeric id
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail returns the user whose email matches case-insensitively
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByEmails returns the users matching any of the emails, keyed by
	// normalized email. Missing emails are absent from the map.
	GetByEmails(ctx context.Context, emails []string) (map[string]*User, error)
}

// NormalizeEmail lowercases and trims an email for lookups and map keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
