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

package reporting

import (
	"context"

	"github.com/opentrusty/enterprise/internal/customer"
)

// CustomerLookup resolves a customer by uuid
type CustomerLookup interface {
	Get(ctx context.Context, customerUUID string) (*customer.Customer, error)
}

// Service serves reporting configuration options
type Service struct {
	customers CustomerLookup
}

// NewService creates a new reporting service
func NewService(customers CustomerLookup) *Service {
	return &Service{customers: customers}
}

// ReportTypes returns the reporting choices for one customer
func (s *Service) ReportTypes(ctx context.Context, customerUUID string) (map[string][]Choice, error) {
	c, err := s.customers.Get(ctx, customerUUID)
	if err != nil {
		return nil, err
	}
	return ChoicesFor(c.Slug), nil
}
