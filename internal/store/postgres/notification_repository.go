package postgres

import (
	"context"
	"fmt"

	"github.com/opentrusty/enterprise/internal/notification"
)

// NotificationReadRepository implements notification.Repository
type NotificationReadRepository struct {
	db *DB
}

// NewNotificationReadRepository creates a new read marker repository
func NewNotificationReadRepository(db *DB) *NotificationReadRepository {
	return &NotificationReadRepository{db: db}
}

// GetOrCreate records the read marker once per membership and notification
func (r *NotificationReadRepository) GetOrCreate(ctx context.Context, customerUserID, notificationID int64) (*notification.ReadMarker, bool, error) {
	var m notification.ReadMarker
	var created bool
	err := r.db.conn(ctx).QueryRow(ctx, `
		INSERT INTO admin_notification_read (enterprise_customer_user_id, admin_notification_id, is_read)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (enterprise_customer_user_id, admin_notification_id) DO UPDATE SET
			is_read = TRUE
		RETURNING id, enterprise_customer_user_id, admin_notification_id, is_read, created_at, (xmax = 0)
	`, customerUserID, notificationID).Scan(
		&m.ID, &m.EnterpriseCustomerUserID, &m.AdminNotificationID, &m.IsRead, &m.CreatedAt, &created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record notification read: %w", err)
	}
	return &m, created, nil
}
