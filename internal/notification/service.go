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

package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opentrusty/enterprise/internal/customer"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// CustomerLookup resolves an enterprise slug
type CustomerLookup interface {
	GetBySlug(ctx context.Context, slug string) (*customer.Customer, error)
}

// Service marks admin notifications as read
type Service struct {
	repo      Repository
	customers CustomerLookup
	members   customer.UserRepository
}

// NewService creates a new notification service
func NewService(repo Repository, customers CustomerLookup, members customer.UserRepository) *Service {
	return &Service{repo: repo, customers: customers, members: members}
}

// MarkRead records that userID read the notification in the slug's enterprise
func (s *Service) MarkRead(ctx context.Context, userID int64, req Request) (*ReadMarker, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	marker, err := s.markRead(ctx, userID, req)
	if err != nil {
		slog.ErrorContext(ctx, "notification read request failed",
			logger.Component("notification"),
			logger.UserID(userID),
			logger.String("enterprise_slug", req.EnterpriseSlug),
			logger.Count("notification_id", int(req.NotificationID)),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}

	slog.InfoContext(ctx, "notification read request successful",
		logger.Component("notification"),
		logger.UserID(userID),
		logger.Count("read_marker_id", int(marker.ID)),
	)
	return marker, nil
}

func (s *Service) markRead(ctx context.Context, userID int64, req Request) (*ReadMarker, error) {
	c, err := s.customers.GetBySlug(ctx, req.EnterpriseSlug)
	if err != nil {
		return nil, err
	}
	cu, err := s.members.Get(ctx, c.UUID, userID)
	if err != nil {
		return nil, err
	}
	marker, _, err := s.repo.GetOrCreate(ctx, cu.ID, req.NotificationID)
	return marker, err
}
