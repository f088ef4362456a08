package notifyapi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/notify-gov/admin-portal/cache"
)

// MonthlyUsageRow is one month's spend for one notification type.
type MonthlyUsageRow struct {
	Month             string  `json:"month"`
	NotificationType  string  `json:"notification_type"`
	BillableUnits     int     `json:"billable_units"`
	Rate              float64 `json:"rate"`
	Cost              float64 `json:"cost"`
	FreeAllowanceUsed int     `json:"free_allowance_used,omitempty"`
}

// GetMonthlyUsage reports spend per month for the billing year. Short TTL:
// dashboards want near-live numbers, but the aggregation is expensive enough
// to be worth memoizing across a burst of page loads.
func (c *Client) GetMonthlyUsage(ctx context.Context, serviceID string, year int) ([]MonthlyUsageRow, error) {
	var resp struct {
		Data []MonthlyUsageRow `json:"data"`
	}
	key := cache.MustFormat(keyMonthlyUsage, cache.Params{"service_id": serviceID, "year": year})
	err := c.cached(ctx, key, ttlUsage, &resp, func() error {
		return c.getLong(ctx, "/service/"+serviceID+"/billing/monthly-usage", yearQuery(year), &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// YearlyUsageRow is one notification type's aggregate spend for the year.
type YearlyUsageRow struct {
	NotificationType string  `json:"notification_type"`
	BillableUnits    int     `json:"billable_units"`
	Rate             float64 `json:"rate"`
	Cost             float64 `json:"cost"`
}

// GetYearlyUsage reports whole-year aggregates per notification type.
func (c *Client) GetYearlyUsage(ctx context.Context, serviceID string, year int) ([]YearlyUsageRow, error) {
	var resp struct {
		Data []YearlyUsageRow `json:"data"`
	}
	key := cache.MustFormat(keyYearlyUsage, cache.Params{"service_id": serviceID, "year": year})
	err := c.cached(ctx, key, ttlUsage, &resp, func() error {
		return c.getLong(ctx, "/service/"+serviceID+"/billing/yearly-usage-summary", yearQuery(year), &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetFreeSMSFragmentLimit returns the year's free SMS allowance.
func (c *Client) GetFreeSMSFragmentLimit(ctx context.Context, serviceID string, year int) (int, error) {
	var resp struct {
		Data struct {
			FreeSMSFragmentLimit int `json:"free_sms_fragment_limit"`
		} `json:"data"`
	}
	key := cache.MustFormat(keyFreeSMSLimit, cache.Params{"service_id": serviceID, "year": year})
	err := c.cached(ctx, key, ttlUsage, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID+"/billing/free-sms-fragment-limit", yearQuery(year), &resp)
	})
	if err != nil {
		return 0, err
	}
	return resp.Data.FreeSMSFragmentLimit, nil
}

func yearQuery(year int) url.Values {
	if year == 0 {
		return nil
	}
	return url.Values{"financial_year_start": []string{strconv.Itoa(year)}}
}
