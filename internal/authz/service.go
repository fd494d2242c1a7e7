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
	"fmt"
)

// Service evaluates permissions for a principal against an enterprise
type Service struct {
	assignmentRepo AssignmentRepository
	roles          map[string]*Role
}

// NewService creates a new authorization service
func NewService(assignmentRepo AssignmentRepository) *Service {
	return &Service{
		assignmentRepo: assignmentRepo,
		roles:          DefaultRoles(),
	}
}

// Role returns the role definition with the given name
func (s *Service) Role(name string) (*Role, error) {
	r, ok := s.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return r, nil
}

// HasPermission reports whether p holds permission for enterpriseID.
// Staff users hold every permission. An empty enterpriseID asks whether
// the permission is held for any enterprise.
func (s *Service) HasPermission(ctx context.Context, p *Principal, permission, enterpriseID string) (bool, error) {
	if p == nil {
		return false, nil
	}
	if p.IsStaff {
		return true, nil
	}

	if s.grants(p.Assignments, permission, enterpriseID) {
		return true, nil
	}

	if s.assignmentRepo == nil {
		return false, nil
	}
	stored, err := s.assignmentRepo.ListForUser(ctx, p.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to list role assignments: %w", err)
	}
	return s.grants(stored, permission, enterpriseID), nil
}

func (s *Service) grants(assignments []*Assignment, permission, enterpriseID string) bool {
	for _, a := range assignments {
		role, ok := s.roles[a.Role]
		if !ok || !role.HasPermission(permission) {
			continue
		}
		if a.Matches(enterpriseID) {
			return true
		}
	}
	return false
}
