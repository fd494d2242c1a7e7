package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/customer"
)

// CustomerRepository implements customer.Repository
type CustomerRepository struct {
	db *DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `uuid::text, name, slug, active, enable_data_sharing_consent,
	enforce_data_sharing_consent, enable_universal_link, enable_learner_portal,
	allowed_email_domains, contact_email, created_at, updated_at`

func scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.UUID, &c.Name, &c.Slug, &c.Active, &c.EnableDataSharingConsent,
		&c.EnforceDataSharingConsent, &c.EnableUniversalLink, &c.EnableLearnerPortal,
		&c.AllowedEmailDomains, &c.ContactEmail, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create creates a new customer
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO enterprise_customer (
			uuid, name, slug, active, enable_data_sharing_consent,
			enforce_data_sharing_consent, enable_universal_link, enable_learner_portal,
			allowed_email_domains, contact_email, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		c.UUID, c.Name, c.Slug, c.Active, c.EnableDataSharingConsent,
		c.EnforceDataSharingConsent, c.EnableUniversalLink, c.EnableLearnerPortal,
		c.AllowedEmailDomains, c.ContactEmail, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return customer.ErrCustomerExists
		}
		return fmt.Errorf("failed to insert enterprise customer: %w", err)
	}
	return nil
}

// GetByUUID retrieves a customer by uuid
func (r *CustomerRepository) GetByUUID(ctx context.Context, uuid string) (*customer.Customer, error) {
	return r.getOne(ctx, `uuid::text = $1`, strings.ToLower(uuid))
}

// GetBySlug retrieves a customer by slug
func (r *CustomerRepository) GetBySlug(ctx context.Context, slug string) (*customer.Customer, error) {
	return r.getOne(ctx, `slug = $1`, slug)
}

func (r *CustomerRepository) getOne(ctx context.Context, where string, arg any) (*customer.Customer, error) {
	c, err := scanCustomer(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+customerColumns+`
		FROM enterprise_customer
		WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get enterprise customer: %w", err)
	}
	return c, nil
}

// Update updates customer settings
func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE enterprise_customer SET
			name = $2,
			active = $3,
			enable_data_sharing_consent = $4,
			enforce_data_sharing_consent = $5,
			enable_universal_link = $6,
			enable_learner_portal = $7,
			allowed_email_domains = $8,
			contact_email = $9,
			updated_at = $10
		WHERE uuid::text = $1
	`,
		c.UUID, c.Name, c.Active, c.EnableDataSharingConsent,
		c.EnforceDataSharingConsent, c.EnableUniversalLink, c.EnableLearnerPortal,
		c.AllowedEmailDomains, c.ContactEmail, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update enterprise customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return customer.ErrCustomerNotFound
	}
	return nil
}

// List returns customers matching filter ordered by name
func (r *CustomerRepository) List(ctx context.Context, filter customer.ListFilter) ([]*customer.Customer, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.LinkedUserID != nil {
		add(`uuid IN (
			SELECT enterprise_customer_uuid FROM enterprise_customer_user
			WHERE user_id = $%d AND active AND linked)`, *filter.LinkedUserID)
	}
	if filter.UUID != "" {
		add(`uuid::text = $%d`, strings.ToLower(filter.UUID))
	}
	if filter.Slug != "" {
		add(`slug = $%d`, filter.Slug)
	}
	if filter.NameContains != "" {
		add(`name ILIKE $%d`, "%"+escapeLike(filter.NameContains)+"%")
	}
	if filter.NameStarts != "" {
		add(`name ILIKE $%d`, escapeLike(filter.NameStarts)+"%")
	}
	if filter.NameOrUUID != "" {
		pattern := "%" + escapeLike(filter.NameOrUUID) + "%"
		args = append(args, pattern)
		n := len(args)
		where = append(where, fmt.Sprintf(`(name ILIKE $%d OR uuid::text ILIKE $%d)`, n, n))
	}

	query := `SELECT ` + customerColumns + ` FROM enterprise_customer`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY name, uuid`

	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enterprise customers: %w", err)
	}
	defer rows.Close()

	customers := []*customer.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enterprise customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
