package integration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	blackboardTokenPath   = "/learn/api/public/v1/oauth2/token"
	blackboardCoursesPath = "/learn/api/public/v3/courses"
)

// BlackboardClient pushes content metadata as Blackboard Learn courses
type BlackboardClient struct {
	cfg  *Configuration
	auth *refreshTokenAuth
}

// NewBlackboardClient creates a Blackboard Learn REST client
func NewBlackboardClient(cfg *Configuration, saver TokenSaver, timeout time.Duration) (*BlackboardClient, error) {
	auth, err := newRefreshTokenAuth(cfg, newVendorHTTP(timeout), saver)
	if err != nil {
		return nil, err
	}
	return &BlackboardClient{cfg: cfg, auth: auth}, nil
}

func (c *BlackboardClient) coursesURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + blackboardCoursesPath
}

func (c *BlackboardClient) courseURL(contentID string) string {
	return c.coursesURL() + "/externalId:" + url.PathEscape(contentID)
}

// CreateContentMetadata creates one course per item
func (c *BlackboardClient) CreateContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		body := blackboardCourse(item)
		if err := c.send(ctx, resty.MethodPost, c.coursesURL(), body); err != nil {
			return fmt.Errorf("failed to create blackboard course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

// UpdateContentMetadata patches the course matching each item's external id
func (c *BlackboardClient) UpdateContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		if err := c.send(ctx, resty.MethodPatch, c.courseURL(item.ContentID), blackboardCourse(item)); err != nil {
			return fmt.Errorf("failed to update blackboard course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

// DeleteContentMetadata removes the course matching each item's external id
func (c *BlackboardClient) DeleteContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		if err := c.send(ctx, resty.MethodDelete, c.courseURL(item.ContentID), nil); err != nil {
			return fmt.Errorf("failed to delete blackboard course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

func (c *BlackboardClient) send(ctx context.Context, method, target string, body any) error {
	req, err := c.auth.request(ctx)
	if err != nil {
		return err
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, target)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(ChannelBlackboard, resp)
	}
	return nil
}

// blackboardCourse keys the course by the content id unless the exported
// metadata already names one.
func blackboardCourse(item ContentMetadataItem) map[string]any {
	body := make(map[string]any, len(item.ChannelMetadata)+2)
	for k, v := range item.ChannelMetadata {
		body[k] = v
	}
	if _, ok := body["externalId"]; !ok {
		body["externalId"] = item.ContentID
	}
	if _, ok := body["courseId"]; !ok {
		body["courseId"] = item.ContentID
	}
	return body
}

func newVendorHTTP(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")
}
