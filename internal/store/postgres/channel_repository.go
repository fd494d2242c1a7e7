package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/enterprise/internal/integration"
)

// ChannelConfigRepository implements integration.ConfigurationRepository
type ChannelConfigRepository struct {
	db *DB
}

// NewChannelConfigRepository creates a new integrated channel configuration repository
func NewChannelConfigRepository(db *DB) *ChannelConfigRepository {
	return &ChannelConfigRepository{db: db}
}

const channelConfigColumns = `uuid::text, enterprise_customer_uuid::text, channel_code, active,
	base_url, client_id, client_secret, refresh_token, canvas_account_id,
	transmission_chunk_size, created_at, updated_at`

func scanChannelConfig(row pgx.Row) (*integration.Configuration, error) {
	var c integration.Configuration
	var code string
	err := row.Scan(
		&c.UUID, &c.EnterpriseCustomerUUID, &code, &c.Active,
		&c.BaseURL, &c.ClientID, &c.ClientSecret, &c.RefreshToken, &c.CanvasAccountID,
		&c.TransmissionChunkSize, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ChannelCode = integration.ChannelCode(code)
	return &c, nil
}

// Get retrieves a configuration by uuid
func (r *ChannelConfigRepository) Get(ctx context.Context, uuid string) (*integration.Configuration, error) {
	c, err := scanChannelConfig(r.db.conn(ctx).QueryRow(ctx, `
		SELECT `+channelConfigColumns+`
		FROM integrated_channel_configuration
		WHERE uuid::text = $1
	`, uuid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integration.ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("failed to get channel configuration: %w", err)
	}
	return c, nil
}

// ListByCustomer returns a customer's configurations
func (r *ChannelConfigRepository) ListByCustomer(ctx context.Context, customerUUID string) ([]*integration.Configuration, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT `+channelConfigColumns+`
		FROM integrated_channel_configuration
		WHERE enterprise_customer_uuid::text = $1
		ORDER BY channel_code, created_at
	`, customerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel configurations: %w", err)
	}
	defer rows.Close()

	configs := []*integration.Configuration{}
	for rows.Next() {
		c, err := scanChannelConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel configuration: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// UpdateRefreshToken stores a rotated vendor refresh token
func (r *ChannelConfigRepository) UpdateRefreshToken(ctx context.Context, uuid, token string) error {
	result, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE integrated_channel_configuration
		SET refresh_token = $2, updated_at = NOW()
		WHERE uuid::text = $1
	`, uuid, token)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return integration.ErrConfigurationNotFound
	}
	return nil
}
