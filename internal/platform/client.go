package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/opentrusty/enterprise/internal/observability/logger"
)

// LMS API paths
const (
	pathAccessToken      = "/oauth2/access_token"
	pathCourseModes      = "/api/course_modes/v1/courses/{course_id}/"
	pathEnrollment       = "/api/enrollment/v1/enrollment"
	pathCertificate      = "/api/certificates/v0/certificates/{username}/courses/{course_id}/"
	pathCourseOverviews  = "/api/course_overviews/v1/"
	tokenRefreshLeadTime = 30 * time.Second
)

// ErrNotFound is returned when the LMS reports a missing resource
var ErrNotFound = errors.New("lms resource not found")

// APIError is a non-2xx response from the LMS
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lms %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config holds LMS client settings
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryCount   int
}

// Client talks to the LMS REST API with a client-credentials JWT
type Client struct {
	http         *resty.Client
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a new LMS client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:         rc,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// request returns an authorized request bound to ctx
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.http.R().SetContext(ctx)
	if c.clientID == "" {
		return req, nil
	}
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return req.SetAuthScheme("JWT").SetAuthToken(tok), nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(tokenRefreshLeadTime).Before(c.expiresAt) {
		return c.token, nil
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"token_type":    "jwt",
		}).
		SetResult(&out).
		Post(pathAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to request lms access token: %w", err)
	}
	if resp.IsError() {
		return "", apiError(resp)
	}

	c.token = out.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

type courseMode struct {
	Slug string `json:"mode_slug"`
}

// CourseModes returns the mode slugs offered by a course run
func (c *Client) CourseModes(ctx context.Context, courseRunKey string) ([]string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var modes []courseMode
	resp, err := req.
		SetPathParam("course_id", courseRunKey).
		SetResult(&modes).
		Get(pathCourseModes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch course modes for %s: %w", courseRunKey, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return []string{}, nil
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}

	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, m.Slug)
	}
	return out, nil
}

// HasMode reports whether a course run offers mode
func (c *Client) HasMode(ctx context.Context, courseRunKey, mode string) (bool, error) {
	modes, err := c.CourseModes(ctx, courseRunKey)
	if err != nil {
		return false, err
	}
	for _, m := range modes {
		if m == mode {
			return true, nil
		}
	}
	return false, nil
}

type enrollmentBody struct {
	User          string        `json:"user"`
	Mode          string        `json:"mode,omitempty"`
	IsActive      *bool         `json:"is_active,omitempty"`
	CourseDetails courseDetails `json:"course_details"`
}

type courseDetails struct {
	CourseID string `json:"course_id"`
}

// EnrollmentUpdate describes a change to an LMS enrollment. Empty Mode and
// nil IsActive leave the respective field unchanged.
type EnrollmentUpdate struct {
	Mode     string
	IsActive *bool
}

// Enroll creates or re-activates an LMS enrollment in mode
func (c *Client) Enroll(ctx context.Context, username, courseRunKey, mode string) error {
	active := true
	return c.UpdateEnrollment(ctx, username, courseRunKey, EnrollmentUpdate{Mode: mode, IsActive: &active})
}

// UpdateEnrollment changes the mode or active flag of an LMS enrollment
func (c *Client) UpdateEnrollment(ctx context.Context, username, courseID string, upd EnrollmentUpdate) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(enrollmentBody{
			User:          username,
			Mode:          upd.Mode,
			IsActive:      upd.IsActive,
			CourseDetails: courseDetails{CourseID: courseID},
		}).
		Post(pathEnrollment)
	if err != nil {
		return fmt.Errorf("failed to update enrollment for %s in %s: %w", username, courseID, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}

	slog.DebugContext(ctx, "lms enrollment updated",
		logger.Component("platform"),
		logger.CourseRunKey(courseID),
		logger.String("mode", upd.Mode),
	)
	return nil
}

// GetCertificate returns the learner's certificate for a course run, or
// nil when none has been issued.
func (c *Client) GetCertificate(ctx context.Context, username, courseID string) (*Certificate, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var cert Certificate
	resp, err := req.
		SetPathParams(map[string]string{"username": username, "course_id": courseID}).
		SetResult(&cert).
		Get(pathCertificate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch certificate for %s in %s: %w", username, courseID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return &cert, nil
}

// GetCourseOverviews returns overviews for the given course run keys.
// Unknown keys are absent from the result.
func (c *Client) GetCourseOverviews(ctx context.Context, courseIDs []string) ([]CourseOverview, error) {
	if len(courseIDs) == 0 {
		return []CourseOverview{}, nil
	}
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var overviews []CourseOverview
	resp, err := req.
		SetQueryParam("course_ids", strings.Join(courseIDs, ",")).
		SetResult(&overviews).
		Get(pathCourseOverviews)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch course overviews: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return overviews, nil
}

func apiError(resp *resty.Response) error {
	e := &APIError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       truncate(resp.String(), 512),
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, e.Error())
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
