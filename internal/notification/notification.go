package notification

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrReadFailed wraps any failure to record a read marker
var ErrReadFailed = errors.New("notification read request failed")

// ReadMarker records that an admin has read one dashboard notification
type ReadMarker struct {
	ID                       int64     `json:"id"`
	EnterpriseCustomerUserID int64     `json:"enterprise_customer_user"`
	AdminNotificationID      int64     `json:"admin_notification"`
	IsRead                   bool      `json:"is_read"`
	CreatedAt                time.Time `json:"created"`
}

// Request identifies the notification and the enterprise it was read in
type Request struct {
	NotificationID int64  `json:"notification_id"`
	EnterpriseSlug string `json:"enterprise_slug"`
}

// MissingParamsError names the required parameters absent from a request
type MissingParamsError struct {
	Params []string
}

func (e *MissingParamsError) Error() string {
	return "Some required parameter(s) missing: " + strings.Join(e.Params, ", ")
}

// Validate reports missing required parameters
func (r Request) Validate() error {
	var missing []string
	if r.NotificationID == 0 {
		missing = append(missing, "notification_id")
	}
	if strings.TrimSpace(r.EnterpriseSlug) == "" {
		missing = append(missing, "enterprise_slug")
	}
	if len(missing) > 0 {
		return &MissingParamsError{Params: missing}
	}
	return nil
}

// Repository defines the interface for read marker persistence
type Repository interface {
	// GetOrCreate is backed by a unique (customer user, notification) constraint
	GetOrCreate(ctx context.Context, customerUserID, notificationID int64) (m *ReadMarker, created bool, err error)
}
