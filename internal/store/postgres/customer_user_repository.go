package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/customer"
)

// CustomerUserRepository implements customer.UserRepository
type CustomerUserRepository struct {
	db *DB
}

// NewCustomerUserRepository creates a new membership repository
func NewCustomerUserRepository(db *DB) *CustomerUserRepository {
	return &CustomerUserRepository{db: db}
}

const customerUserColumns = `id, enterprise_customer_uuid::text, user_id, active, linked,
	is_relinkable, invite_key_uuid::text, created_at, updated_at`

func scanCustomerUser(row pgx.Row) (*customer.CustomerUser, error) {
	var cu customer.CustomerUser
	err := row.Scan(
		&cu.ID, &cu.EnterpriseCustomerUUID, &cu.UserID, &cu.Active, &cu.Linked,
		&cu.IsRelinkable, &cu.InviteKeyUUID, &cu.CreatedAt, &cu.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cu, nil
}

// Link creates the membership or re-activates an existing relinkable one.
// xmax is zero only for rows inserted by this statement.
func (r *CustomerUserRepository) Link(ctx context.Context, customerUUID string, userID int64, inviteKeyUUID *string) (*customer.CustomerUser, bool, error) {
	var created bool
	var cu customer.CustomerUser
	err := r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO enterprise_customer_user (
			enterprise_customer_uuid, user_id, active, linked, is_relinkable, invite_key_uuid
		) VALUES ($1, $2, TRUE, TRUE, TRUE, $3)
		ON CONFLICT (enterprise_customer_uuid, user_id) DO UPDATE SET
			active = TRUE,
			linked = TRUE,
			invite_key_uuid = COALESCE(EXCLUDED.invite_key_uuid, enterprise_customer_user.invite_key_uuid),
			updated_at = NOW()
		WHERE enterprise_customer_user.is_relinkable
		RETURNING `+customerUserColumns+`, (xmax = 0)
	`, customerUUID, userID, inviteKeyUUID).Scan(
		&cu.ID, &cu.EnterpriseCustomerUUID, &cu.UserID, &cu.Active, &cu.Linked,
		&cu.IsRelinkable, &cu.InviteKeyUUID, &cu.CreatedAt, &cu.UpdatedAt, &created,
	)
	if err != nil {
		// The conflict WHERE filtered the row out: the membership exists
		// but was permanently unlinked.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, customer.ErrNotRelinkable
		}
		return nil, false, fmt.Errorf("failed to link enterprise user: %w", err)
	}
	return &cu, created, nil
}

// Get retrieves one membership
func (r *CustomerUserRepository) Get(ctx context.Context, customerUUID string, userID int64) (*customer.CustomerUser, error) {
	cu, err := scanCustomerUser(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+customerUserColumns+`
		FROM enterprise_customer_user
		WHERE enterprise_customer_uuid::text = $1 AND user_id = $2
	`, customerUUID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerUserNotFound
		}
		return nil, fmt.Errorf("failed to get enterprise user: %w", err)
	}
	return cu, nil
}

// Unlink deactivates the membership
func (r *CustomerUserRepository) Unlink(ctx context.Context, customerUUID string, userID int64, relinkable bool) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE enterprise_customer_user SET
			active = FALSE,
			linked = FALSE,
			is_relinkable = is_relinkable AND $3,
			updated_at = NOW()
		WHERE enterprise_customer_uuid::text = $1 AND user_id = $2
	`, customerUUID, userID, relinkable)
	if err != nil {
		return fmt.Errorf("failed to unlink enterprise user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return customer.ErrCustomerUserNotFound
	}
	return nil
}

// ListActiveForUser returns active memberships, most recently modified first
func (r *CustomerUserRepository) ListActiveForUser(ctx context.Context, userID int64) ([]*customer.CustomerUser, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT `+customerUserColumns+`
		FROM enterprise_customer_user
		WHERE user_id = $1 AND active AND linked
		ORDER BY updated_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enterprise memberships: %w", err)
	}
	defer rows.Close()

	var out []*customer.CustomerUser
	for rows.Next() {
		cu, err := scanCustomerUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enterprise user: %w", err)
		}
		out = append(out, cu)
	}
	return out, rows.Err()
}

// PendingUserRepository implements customer.PendingUserRepository
type PendingUserRepository struct {
	db *DB
}

// NewPendingUserRepository creates a new pending membership repository
func NewPendingUserRepository(db *DB) *PendingUserRepository {
	return &PendingUserRepository{db: db}
}

// GetOrCreate returns the pending membership for email, inserting it when
// absent. The no-op update makes RETURNING yield the existing row.
func (r *PendingUserRepository) GetOrCreate(ctx context.Context, customerUUID, email string) (*customer.PendingCustomerUser, bool, error) {
	var p customer.PendingCustomerUser
	var created bool
	err := r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO pending_enterprise_customer_user (enterprise_customer_uuid, user_email)
		VALUES ($1, $2)
		ON CONFLICT (enterprise_customer_uuid, user_email) DO UPDATE SET
			user_email = EXCLUDED.user_email
		RETURNING id, enterprise_customer_uuid::text, user_email, created_at, (xmax = 0)
	`, customerUUID, email).Scan(&p.ID, &p.EnterpriseCustomerUUID, &p.UserEmail, &p.CreatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create pending enterprise user: %w", err)
	}
	return &p, created, nil
}

// Delete removes a pending membership
func (r *PendingUserRepository) Delete(ctx context.Context, customerUUID, email string) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		DELETE FROM pending_enterprise_customer_user
		WHERE enterprise_customer_uuid::text = $1 AND user_email = $2
	`, customerUUID, email)
	if err != nil {
		return fmt.Errorf("failed to delete pending enterprise user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return customer.ErrPendingUserNotFound
	}
	return nil
}
