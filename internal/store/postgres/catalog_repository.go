package postgres

import (
	"context"
	"fmt"

	"github.com/opentrusty/enterprise/internal/catalog"
)

// CatalogRepository implements catalog.Repository
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListByCustomer returns the customer's catalogs ordered by creation
func (r *CatalogRepository) ListByCustomer(ctx context.Context, customerUUID string) ([]*catalog.Catalog, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT uuid::text, enterprise_customer_uuid::text, title, created_at
		FROM enterprise_customer_catalog
		WHERE enterprise_customer_uuid::text = $1
		ORDER BY created_at, uuid
	`, customerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	defer rows.Close()

	var catalogs []*catalog.Catalog
	for rows.Next() {
		var c catalog.Catalog
		if err := rows.Scan(&c.UUID, &c.EnterpriseCustomerUUID, &c.Title, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog: %w", err)
		}
		catalogs = append(catalogs, &c)
	}
	return catalogs, rows.Err()
}
