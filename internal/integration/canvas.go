package integration

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const canvasTokenPath = "/login/oauth2/token"

// CanvasClient pushes content metadata as Canvas courses under one account
type CanvasClient struct {
	cfg  *Configuration
	auth *refreshTokenAuth
}

// NewCanvasClient creates a Canvas REST client
func NewCanvasClient(cfg *Configuration, saver TokenSaver, timeout time.Duration) (*CanvasClient, error) {
	if cfg.CanvasAccountID == 0 {
		return nil, fmt.Errorf("%w: canvas account id is required", ErrMissingCredentials)
	}
	auth, err := newRefreshTokenAuth(cfg, newVendorHTTP(timeout), saver)
	if err != nil {
		return nil, err
	}
	return &CanvasClient{cfg: cfg, auth: auth}, nil
}

func (c *CanvasClient) base() string {
	return strings.TrimRight(c.cfg.BaseURL, "/")
}

func (c *CanvasClient) accountCoursesURL() string {
	return c.base() + "/api/v1/accounts/" + strconv.FormatInt(c.cfg.CanvasAccountID, 10) + "/courses"
}

// Canvas addresses courses by SIS id using the sis_course_id: prefix
func (c *CanvasClient) courseURL(contentID string) string {
	return c.base() + "/api/v1/courses/sis_course_id:" + url.PathEscape(contentID)
}

// CreateContentMetadata creates one course per item
func (c *CanvasClient) CreateContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		if err := c.send(ctx, resty.MethodPost, c.accountCoursesURL(), canvasCourse(item)); err != nil {
			return fmt.Errorf("failed to create canvas course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

// UpdateContentMetadata updates the course matching each item's SIS id
func (c *CanvasClient) UpdateContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		if err := c.send(ctx, resty.MethodPut, c.courseURL(item.ContentID), canvasCourse(item)); err != nil {
			return fmt.Errorf("failed to update canvas course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

// DeleteContentMetadata deletes the course matching each item's SIS id
func (c *CanvasClient) DeleteContentMetadata(ctx context.Context, items []ContentMetadataItem) error {
	for _, item := range items {
		target := c.courseURL(item.ContentID) + "?event=delete"
		if err := c.send(ctx, resty.MethodDelete, target, nil); err != nil {
			return fmt.Errorf("failed to delete canvas course %s: %w", item.ContentID, err)
		}
	}
	return nil
}

func (c *CanvasClient) send(ctx context.Context, method, target string, body any) error {
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
		return newAPIError(ChannelCanvas, resp)
	}
	return nil
}

func canvasCourse(item ContentMetadataItem) map[string]any {
	course := make(map[string]any, len(item.ChannelMetadata)+1)
	for k, v := range item.ChannelMetadata {
		course[k] = v
	}
	if _, ok := course["sis_course_id"]; !ok {
		course["sis_course_id"] = item.ContentID
	}
	return map[string]any{"course": course}
}
