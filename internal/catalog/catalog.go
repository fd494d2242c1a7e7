package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNoContentItems is returned when neither course runs nor programs are given
var ErrNoContentItems = errors.New("at least one of course_run_ids and program_uuids is required")

// Catalog is one enterprise catalog of a customer
type Catalog struct {
	UUID                   string    `json:"uuid"`
	EnterpriseCustomerUUID string    `json:"enterprise_customer"`
	Title                  string    `json:"title"`
	CreatedAt              time.Time `json:"created"`
}

// Repository defines the interface for catalog persistence
type Repository interface {
	ListByCustomer(ctx context.Context, customerUUID string) ([]*Catalog, error)
}

// ContentChecker asks the catalog service which content a catalog holds
type ContentChecker interface {
	ContainsContentItems(ctx context.Context, catalogUUID string, courseRunIDs, programUUIDs []string) (bool, error)
}
