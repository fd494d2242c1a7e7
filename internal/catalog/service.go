package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks bounds parallel requests to the catalog service
const maxConcurrentChecks = 4

// Service answers content availability questions for a customer
type Service struct {
	repo    Repository
	checker ContentChecker
}

// NewService creates a new catalog service
func NewService(repo Repository, checker ContentChecker) *Service {
	return &Service{repo: repo, checker: checker}
}

// ContainsContentItems reports whether any one of the customer's catalogs
// holds all the given course runs and all the given programs.
func (s *Service) ContainsContentItems(ctx context.Context, customerUUID string, courseRunIDs, programUUIDs []string) (bool, error) {
	if len(courseRunIDs) == 0 && len(programUUIDs) == 0 {
		return false, ErrNoContentItems
	}

	catalogs, err := s.repo.ListByCustomer(ctx, customerUUID)
	if err != nil {
		return false, fmt.Errorf("failed to list catalogs: %w", err)
	}
	if len(catalogs) == 0 {
		return false, nil
	}

	found := make([]bool, len(catalogs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, cat := range catalogs {
		g.Go(func() error {
			courses := true
			if len(courseRunIDs) > 0 {
				ok, err := s.checker.ContainsContentItems(gctx, cat.UUID, courseRunIDs, nil)
				if err != nil {
					return err
				}
				courses = ok
			}
			programs := true
			if courses && len(programUUIDs) > 0 {
				ok, err := s.checker.ContainsContentItems(gctx, cat.UUID, nil, programUUIDs)
				if err != nil {
					return err
				}
				programs = ok
			}
			found[i] = courses && programs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, ok := range found {
		if ok {
			return true, nil
		}
	}
	return false, nil
}
