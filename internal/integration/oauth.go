package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

// TokenSaver persists rotated refresh tokens
type TokenSaver interface {
	UpdateRefreshToken(ctx context.Context, uuid, token string) error
}

// APIError is a non-2xx response from a vendor
type APIError struct {
	Channel    ChannelCode
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s %s returned %d: %s", e.Channel, e.Method, e.URL, e.StatusCode, e.Body)
}

func newAPIError(channel ChannelCode, resp *resty.Response) *APIError {
	return &APIError{
		Channel:    channel,
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       truncateBody(resp.String()),
	}
}

func truncateBody(body string) string {
	if len(body) > 512 {
		return body[:512]
	}
	return body
}

// refreshTokenAuth exchanges the configuration's refresh token for access
// tokens, rotating the stored refresh token when the vendor issues a new one.
type refreshTokenAuth struct {
	cfg   *Configuration
	oauth *oauth2.Config
	http  *resty.Client
	saver TokenSaver

	mu    sync.Mutex
	token *oauth2.Token
}

func newRefreshTokenAuth(cfg *Configuration, client *resty.Client, saver TokenSaver) (*refreshTokenAuth, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, cfg.UUID)
	}
	conf, ok := cfg.OAuthConfig("")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, cfg.ChannelCode)
	}
	return &refreshTokenAuth{cfg: cfg, oauth: conf, http: client, saver: saver}, nil
}

func (a *refreshTokenAuth) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token.Valid() {
		return a.token.AccessToken, nil
	}

	// token requests share the vendor client's timeout
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.http.GetClient())
	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: a.cfg.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return "", &APIError{
				Channel:    a.cfg.ChannelCode,
				Method:     http.MethodPost,
				URL:        a.oauth.Endpoint.TokenURL,
				StatusCode: rerr.Response.StatusCode,
				Body:       truncateBody(string(rerr.Body)),
			}
		}
		return "", fmt.Errorf("failed to refresh %s access token: %w", a.cfg.ChannelCode, err)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != a.cfg.RefreshToken {
		a.cfg.RefreshToken = tok.RefreshToken
		if a.saver != nil {
			if err := a.saver.UpdateRefreshToken(ctx, a.cfg.UUID, tok.RefreshToken); err != nil {
				return "", fmt.Errorf("failed to store rotated refresh token: %w", err)
			}
		}
	}

	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(time.Hour)
	}
	a.token = tok
	return tok.AccessToken, nil
}

func (a *refreshTokenAuth) request(ctx context.Context) (*resty.Request, error) {
	tok, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return a.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetHeader("Content-Type", "application/json"), nil
}
