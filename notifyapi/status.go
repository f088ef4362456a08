package notifyapi

import (
	"context"
)

// BackendStatus is the backend's own health report.
type BackendStatus struct {
	Status    string `json:"status"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	DBVersion string `json:"db_version,omitempty"`
}

// GetStatus asks the backend whether it is healthy.
func (c *Client) GetStatus(ctx context.Context) (*BackendStatus, error) {
	var resp BackendStatus
	if err := c.get(ctx, "/_status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetGlobalNotificationCount returns today's platform-wide sent total.
func (c *Client) GetGlobalNotificationCount(ctx context.Context) (int, error) {
	var resp struct {
		Data struct {
			Total int `json:"notifications_sent_count"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/notifications/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Total, nil
}

// RemainingGlobalMessages reports how many messages the platform may still
// send today under the global limit. Memoized briefly so dashboard polling
// does not hammer the count endpoint.
func (c *Client) RemainingGlobalMessages(ctx context.Context, globalLimit int) (int, error) {
	var memo struct {
		Remaining int `json:"remaining"`
	}
	err := c.cached(ctx, keyRemainingMessages, ttlRemainingMessages, &memo, func() error {
		sent, err := c.GetGlobalNotificationCount(ctx)
		if err != nil {
			return err
		}
		memo.Remaining = globalLimit - sent
		if memo.Remaining < 0 {
			memo.Remaining = 0
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return memo.Remaining, nil
}
