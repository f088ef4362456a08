package notifyapi

import (
	"context"
)

// LiveCounts is the published live-service and organization tally.
type LiveCounts struct {
	LiveServices  int `json:"live_services"`
	Organizations int `json:"organizations"`
}

// GetCountOfLiveServicesAndOrganizations returns the public statistics
// shown on the landing page, cached for an hour.
func (c *Client) GetCountOfLiveServicesAndOrganizations(ctx context.Context) (*LiveCounts, error) {
	var resp LiveCounts
	err := c.cached(ctx, keyLiveCounts, ttlLiveCounts, &resp, func() error {
		return c.get(ctx, "/service/live-services-data", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// PlatformStats is the platform-wide aggregate used by admin reporting.
type PlatformStats struct {
	Email map[string]int `json:"email"`
	SMS   map[string]int `json:"sms"`
}

// GetPlatformStats reports delivery aggregates across every service.
func (c *Client) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	var resp struct {
		Data PlatformStats `json:"data"`
	}
	if err := c.getLong(ctx, "/platform-stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
