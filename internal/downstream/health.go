package downstream

import (
	"context"
	"fmt"
	"strings"
)

// HealthChecker checks a backing service's health endpoint.
type HealthChecker struct {
	name string
	url  string
	c    *Client
}

func NewHealthChecker(name, baseURL string, c *Client) *HealthChecker {
	return &HealthChecker{
		name: name,
		url:  strings.TrimRight(baseURL, "/") + "/actuator/health",
		c:    c,
	}
}

func (h *HealthChecker) Name() string { return h.name }

// Check returns nil when the service reports up.
func (h *HealthChecker) Check(ctx context.Context) error {
	resp, err := h.c.Get(ctx, h.url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s health: status %d", h.name, resp.StatusCode)
	}
	return nil
}
