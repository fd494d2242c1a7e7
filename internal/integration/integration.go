package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ChannelCode identifies an external LMS vendor
type ChannelCode string

const (
	ChannelBlackboard ChannelCode = "BLACKBOARD"
	ChannelCanvas     ChannelCode = "CANVAS"
)

// Domain errors
var (
	ErrConfigurationNotFound = errors.New("integrated channel configuration not found")
	ErrUnsupportedChannel    = errors.New("unsupported integrated channel")
	ErrInactiveConfiguration = errors.New("integrated channel configuration is inactive")
	ErrMissingCredentials    = errors.New("integrated channel is missing oauth credentials")
)

// Configuration binds one customer to one external LMS
type Configuration struct {
	UUID                   string      `json:"uuid"`
	EnterpriseCustomerUUID string      `json:"enterprise_customer"`
	ChannelCode            ChannelCode `json:"channel_code"`
	Active                 bool        `json:"active"`
	BaseURL                string      `json:"base_url"`
	ClientID               string      `json:"client_id"`
	ClientSecret           string      `json:"-"`
	RefreshToken           string      `json:"-"`
	// CanvasAccountID is only used by Canvas
	CanvasAccountID       int64     `json:"canvas_account_id,omitempty"`
	TransmissionChunkSize int       `json:"transmission_chunk_size"`
	CreatedAt             time.Time `json:"created"`
	UpdatedAt             time.Time `json:"modified"`
}

// ChunkSize returns the transmission chunk size, at least 1
func (c *Configuration) ChunkSize() int {
	if c.TransmissionChunkSize < 1 {
		return 1
	}
	return c.TransmissionChunkSize
}

// vendorOAuth describes the OAuth endpoints of one vendor, relative to
// the configuration's base URL. callback is relative to the platform root.
type vendorOAuth struct {
	authPath  string
	tokenPath string
	callback  string
	style     oauth2.AuthStyle
	scopes    []string
}

var vendors = map[ChannelCode]vendorOAuth{
	ChannelCanvas: {
		authPath:  "/login/oauth2/auth",
		tokenPath: canvasTokenPath,
		callback:  "/canvas/oauth-complete",
		style:     oauth2.AuthStyleInParams,
	},
	ChannelBlackboard: {
		authPath:  "/learn/api/public/v1/oauth2/authorizationcode",
		tokenPath: blackboardTokenPath,
		callback:  "/blackboard/oauth-complete",
		style:     oauth2.AuthStyleInHeader,
		scopes:    []string{"read", "write", "delete", "offline"},
	},
}

// OAuthConfig returns the OAuth client settings for the configuration's
// vendor. lmsRoot is the public root of the platform that receives the
// OAuth callback.
func (c *Configuration) OAuthConfig(lmsRoot string) (*oauth2.Config, bool) {
	v, ok := vendors[c.ChannelCode]
	if !ok {
		return nil, false
	}
	base := strings.TrimRight(c.BaseURL, "/")
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + v.authPath,
			TokenURL:  base + v.tokenPath,
			AuthStyle: v.style,
		},
		RedirectURL: strings.TrimRight(lmsRoot, "/") + v.callback,
		Scopes:      v.scopes,
	}, true
}

// OAuthAuthorizationURL returns the vendor page where a customer admin
// grants this service access, with the configuration uuid as state. It is
// empty when the configuration lacks a base URL or client id.
func (c *Configuration) OAuthAuthorizationURL(lmsRoot string) string {
	if c.BaseURL == "" || c.ClientID == "" {
		return ""
	}
	conf, ok := c.OAuthConfig(lmsRoot)
	if !ok {
		return ""
	}
	return conf.AuthCodeURL(c.UUID)
}

// ContentMetadataItem is one exported content item shaped for a channel
type ContentMetadataItem struct {
	ContentID       string         `json:"content_id"`
	ChannelMetadata map[string]any `json:"channel_metadata"`
}

// Payload groups the items to create, update and delete on the channel
type Payload struct {
	Create []ContentMetadataItem `json:"create"`
	Update []ContentMetadataItem `json:"update"`
	Delete []ContentMetadataItem `json:"delete"`
}

// Client pushes content metadata to one vendor
type Client interface {
	CreateContentMetadata(ctx context.Context, items []ContentMetadataItem) error
	UpdateContentMetadata(ctx context.Context, items []ContentMetadataItem) error
	DeleteContentMetadata(ctx context.Context, items []ContentMetadataItem) error
}

// ConfigurationRepository defines the interface for channel configuration persistence
type ConfigurationRepository interface {
	Get(ctx context.Context, uuid string) (*Configuration, error)
	ListByCustomer(ctx context.Context, customerUUID string) ([]*Configuration, error)
	// UpdateRefreshToken stores a rotated vendor refresh token
	UpdateRefreshToken(ctx context.Context, uuid, token string) error
}
