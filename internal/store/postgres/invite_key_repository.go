package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/customer"
)

// InviteKeyRepository implements customer.InviteKeyRepository
type InviteKeyRepository struct {
	db *DB
}

// NewInviteKeyRepository creates a new invite key repository
func NewInviteKeyRepository(db *DB) *InviteKeyRepository {
	return &InviteKeyRepository{db: db}
}

const inviteKeyColumns = `uuid::text, enterprise_customer_uuid::text, usage_limit,
	current_usage, expiration_date, is_active, created_at`

func scanInviteKey(row pgx.Row) (*customer.InviteKey, error) {
	var k customer.InviteKey
	err := row.Scan(
		&k.UUID, &k.EnterpriseCustomerUUID, &k.UsageLimit,
		&k.CurrentUsage, &k.ExpirationDate, &k.IsActive, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Create stores a new key
func (r *InviteKeyRepository) Create(ctx context.Context, k *customer.InviteKey) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO enterprise_customer_invite_key (
			uuid, enterprise_customer_uuid, usage_limit, current_usage,
			expiration_date, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, k.UUID, k.EnterpriseCustomerUUID, k.UsageLimit, k.CurrentUsage, k.ExpirationDate, k.IsActive, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invite key: %w", err)
	}
	return nil
}

// Get retrieves a key by uuid
func (r *InviteKeyRepository) Get(ctx context.Context, uuid string) (*customer.InviteKey, error) {
	k, err := scanInviteKey(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+inviteKeyColumns+`
		FROM enterprise_customer_invite_key
		WHERE uuid::text = $1
	`, uuid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrInviteKeyNotFound
		}
		return nil, fmt.Errorf("failed to get invite key: %w", err)
	}
	return k, nil
}

// Update persists the key's active flag
func (r *InviteKeyRepository) Update(ctx context.Context, k *customer.InviteKey) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE enterprise_customer_invite_key SET is_active = $2
		WHERE uuid::text = $1
	`, k.UUID, k.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update invite key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return customer.ErrInviteKeyNotFound
	}
	return nil
}

// ListByCustomer returns a customer's keys, newest first
func (r *InviteKeyRepository) ListByCustomer(ctx context.Context, customerUUID string) ([]*customer.InviteKey, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT `+inviteKeyColumns+`
		FROM enterprise_customer_invite_key
		WHERE enterprise_customer_uuid::text = $1
		ORDER BY created_at DESC
	`, customerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite keys: %w", err)
	}
	defer rows.Close()

	keys := []*customer.InviteKey{}
	for rows.Next() {
		k, err := scanInviteKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// IncrementUsage consumes one use of the key
func (r *InviteKeyRepository) IncrementUsage(ctx context.Context, uuid string) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE enterprise_customer_invite_key
		SET current_usage = current_usage + 1
		WHERE uuid::text = $1 AND current_usage < usage_limit
	`, uuid)
	if err != nil {
		return fmt.Errorf("failed to increment invite key usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return customer.ErrInviteKeyInvalid
	}
	return nil
}

// BrandingRepository implements customer.BrandingRepository
type BrandingRepository struct {
	db *DB
}

// NewBrandingRepository creates a new branding repository
func NewBrandingRepository(db *DB) *BrandingRepository {
	return &BrandingRepository{db: db}
}

// Upsert creates or replaces a customer's branding
func (r *BrandingRepository) Upsert(ctx context.Context, b *customer.Branding) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO enterprise_customer_branding (
			enterprise_customer_uuid, logo_url, primary_color, secondary_color, tertiary_color, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (enterprise_customer_uuid) DO UPDATE SET
			logo_url = EXCLUDED.logo_url,
			primary_color = EXCLUDED.primary_color,
			secondary_color = EXCLUDED.secondary_color,
			tertiary_color = EXCLUDED.tertiary_color,
			updated_at = EXCLUDED.updated_at
	`, b.EnterpriseCustomerUUID, b.LogoURL, b.PrimaryColor, b.SecondaryColor, b.TertiaryColor, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert branding: %w", err)
	}
	return nil
}

// Get retrieves a customer's branding
func (r *BrandingRepository) Get(ctx context.Context, customerUUID string) (*customer.Branding, error) {
	var b customer.Branding
	err := r.db.conn(ctx).QueryRow(ctx, `
		SELECT enterprise_customer_uuid::text, logo_url, primary_color, secondary_color, tertiary_color, updated_at
		FROM enterprise_customer_branding
		WHERE enterprise_customer_uuid::text = $1
	`, customerUUID).Scan(&b.EnterpriseCustomerUUID, &b.LogoURL, &b.PrimaryColor, &b.SecondaryColor, &b.TertiaryColor, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrBrandingNotFound
		}
		return nil, fmt.Errorf("failed to get branding: %w", err)
	}
	return &b, nil
}
