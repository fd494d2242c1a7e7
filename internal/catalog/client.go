package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const pathContainsContentItems = "/api/v1/enterprise-catalogs/{uuid}/contains_content_items/"

// Client talks to the enterprise catalog service
type Client struct {
	http *resty.Client
}

// NewClient creates a catalog service client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type containsResponse struct {
	ContainsContentItems bool `json:"contains_content_items"`
}

// ContainsContentItems implements ContentChecker
func (c *Client) ContainsContentItems(ctx context.Context, catalogUUID string, courseRunIDs, programUUIDs []string) (bool, error) {
	q := url.Values{}
	for _, id := range courseRunIDs {
		q.Add("course_run_ids", id)
	}
	for _, id := range programUUIDs {
		q.Add("program_uuids", id)
	}

	var out containsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("uuid", catalogUUID).
		SetQueryParamsFromValues(q).
		SetResult(&out).
		Get(pathContainsContentItems)
	if err != nil {
		return false, fmt.Errorf("failed to query catalog %s: %w", catalogUUID, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("catalog %s returned %d", catalogUUID, resp.StatusCode())
	}
	return out.ContainsContentItems, nil
}
