package notifyapi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Dashboard statistics are rendered fresh on every page load, so none of
// these methods go through the cache.

// GetDailyStats returns per-day delivery outcomes for the last days days,
// keyed day → message type → status → count.
func (c *Client) GetDailyStats(ctx context.Context, serviceID string, days int) (map[string]map[string]map[string]int, error) {
	var out struct {
		Data map[string]map[string]map[string]int `json:"data"`
	}
	query := url.Values{"days": []string{strconv.Itoa(days)}}
	if err := c.get(ctx, "/service/"+serviceID+"/statistics", query, &out); err != nil {
		return nil, errors.Wrap(err, "[Client.GetDailyStats]")
	}
	return out.Data, nil
}

// GetDailyStatsByUser breaks the daily statistics down by sending user.
func (c *Client) GetDailyStatsByUser(ctx context.Context, serviceID string, days int) (map[string]map[string]map[string]int, error) {
	var out struct {
		Data map[string]map[string]map[string]int `json:"data"`
	}
	query := url.Values{"days": []string{strconv.Itoa(days)}}
	if err := c.get(ctx, "/service/"+serviceID+"/statistics/user", query, &out); err != nil {
		return nil, errors.Wrap(err, "[Client.GetDailyStatsByUser]")
	}
	return out.Data, nil
}

// TemplateUsageRow is one template's monthly send count.
type TemplateUsageRow struct {
	TemplateID   string `json:"template_id"`
	Name         string `json:"name"`
	TemplateType string `json:"template_type"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	Count        int    `json:"count"`
}

// GetTemplateUsage returns per-template send counts for a financial year.
func (c *Client) GetTemplateUsage(ctx context.Context, serviceID string, year int) ([]TemplateUsageRow, error) {
	var out struct {
		Stats []TemplateUsageRow `json:"stats"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/notifications/templates_usage/monthly", yearQuery(year), &out); err != nil {
		return nil, errors.Wrap(err, "[Client.GetTemplateUsage]")
	}
	return out.Stats, nil
}
