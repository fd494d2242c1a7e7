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

package authz

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrAccessDenied = errors.New("access denied")
	ErrRoleNotFound = errors.New("role not found")
)

// AllEnterprises is the assignment context that matches every customer.
const AllEnterprises = "*"

// Role represents a named role with associated permission names
type Role struct {
	Name        string
	Description string
	Permissions []string
}

// HasPermission checks if the role has a specific permission
func (r *Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == "*" || p == permission {
			return true
		}
	}
	return false
}

// Assignment represents a role granted to a user for one enterprise
// customer, or for all of them when EnterpriseID is AllEnterprises.
type Assignment struct {
	UserID       int64
	Role         string
	EnterpriseID string
	GrantedAt    time.Time
}

// Matches reports whether the assignment applies to enterpriseID.
// An empty enterpriseID matches any assignment.
func (a *Assignment) Matches(enterpriseID string) bool {
	if enterpriseID == "" || a.EnterpriseID == AllEnterprises {
		return true
	}
	return strings.EqualFold(a.EnterpriseID, enterpriseID)
}

// AssignmentRepository defines the interface for persisted role assignments
type AssignmentRepository interface {
	// ListForUser retrieves all assignments for a user
	ListForUser(ctx context.Context, userID int64) ([]*Assignment, error)
}

// Principal is the authenticated caller of a request
type Principal struct {
	UserID   int64
	Username string
	Email    string
	IsStaff  bool

	// Assignments carried by the access token. Persisted assignments are
	// merged at check time.
	Assignments []*Assignment
}

// ParseRoleClaims converts "role:context" token claims into assignments.
// A claim without a context applies to all enterprises.
func ParseRoleClaims(userID int64, claims []string) []*Assignment {
	out := make([]*Assignment, 0, len(claims))
	for _, c := range claims {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		role, ctxID, found := strings.Cut(c, ":")
		if !found || ctxID == "" {
			ctxID = AllEnterprises
		}
		out = append(out, &Assignment{UserID: userID, Role: role, EnterpriseID: ctxID})
	}
	return out
}
