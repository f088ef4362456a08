package notifyapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/notify-gov/admin-portal/cache"
	"github.com/notify-gov/admin-portal/services"
)

// Message limits applied when a service goes live or returns to trial mode.
const (
	trialMessageLimit = 50
	liveMessageLimit  = 250000
)

// GetService fetches a service by id, read-through cached under
// service-{service_id}.
func (c *Client) GetService(ctx context.Context, serviceID string) (*services.Service, error) {
	var resp struct {
		Data services.Service `json:"data"`
	}
	key := cache.MustFormat(keyService, cache.Params{"service_id": serviceID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetServices lists services, optionally filtered (e.g. detailed=True,
// only_active=True on the backend side).
func (c *Client) GetServices(ctx context.Context, params map[string]string) ([]services.Service, error) {
	var resp struct {
		Data []services.Service `json:"data"`
	}
	if err := c.get(ctx, "/service", queryValues(params), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateService provisions a new trial-mode service for the user.
func (c *Client) CreateService(ctx context.Context, fields map[string]any) (string, error) {
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/service", fields, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// UpdateService patches service attributes and drops every cache entry in
// the service's keyspace, the template family included.
func (c *Client) UpdateService(ctx context.Context, serviceID string, fields map[string]any) (*services.Service, error) {
	var resp struct {
		Data services.Service `json:"data"`
	}
	if err := c.post(ctx, "/service/"+serviceID, fields, &resp); err != nil {
		return nil, err
	}
	c.invalidateService(ctx, serviceID)
	return &resp.Data, nil
}

// UpdateServiceOrganization moves a service under an organization. Both the
// service keyspace and the organization list caches go stale.
func (c *Client) UpdateServiceOrganization(ctx context.Context, serviceID, organizationID string) error {
	err := c.post(ctx, "/organizations/"+organizationID+"/service", map[string]any{
		"service_id": serviceID,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	c.deleteKeys(ctx, keyOrganizations, keyDomains, keyLiveCounts,
		cache.MustFormat(keyOrganizationName, cache.Params{"organization_id": organizationID}))
	return nil
}

// UpdateStatus flips active/restricted state, also invalidating the cached
// records of every member since user records embed service state.
func (c *Client) UpdateStatus(ctx context.Context, serviceID string, live bool, cachedServiceUserIDs []string) error {
	fields := map[string]any{
		"restricted":                 !live,
		"go_live_at":                 nil,
		"has_active_go_live_request": false,
	}
	if live {
		fields["message_limit"] = liveMessageLimit
	} else {
		fields["message_limit"] = trialMessageLimit
	}
	if _, err := c.UpdateService(ctx, serviceID, fields); err != nil {
		return err
	}
	c.invalidateServiceUsers(ctx, cachedServiceUserIDs)
	// going live (or back to trial) changes the published tally
	c.deleteKeys(ctx, keyLiveCounts)
	return nil
}

// UpdateCountAsLive controls whether the service counts towards published
// live-service statistics.
func (c *Client) UpdateCountAsLive(ctx context.Context, serviceID string, countAsLive bool) error {
	_, err := c.UpdateService(ctx, serviceID, map[string]any{
		"count_as_live": countAsLive,
	})
	if err != nil {
		return err
	}
	c.deleteKeys(ctx, keyLiveCounts)
	return nil
}

// SuspendService turns the service off without deleting anything.
func (c *Client) SuspendService(ctx context.Context, serviceID string, cachedServiceUserIDs []string) error {
	if err := c.post(ctx, "/service/"+serviceID+"/suspend", nil, nil); err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	c.invalidateServiceUsers(ctx, cachedServiceUserIDs)
	return nil
}

// ResumeService reverses a suspension.
func (c *Client) ResumeService(ctx context.Context, serviceID string, cachedServiceUserIDs []string) error {
	if err := c.post(ctx, "/service/"+serviceID+"/resume", nil, nil); err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	c.invalidateServiceUsers(ctx, cachedServiceUserIDs)
	return nil
}

// ArchiveService retires the service. Member user records cache their
// service list, so each cached user entry is dropped alongside the
// service's own keyspace.
func (c *Client) ArchiveService(ctx context.Context, serviceID string, cachedServiceUserIDs []string) error {
	if err := c.post(ctx, "/service/"+serviceID+"/archive", nil, nil); err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	c.invalidateServiceUsers(ctx, cachedServiceUserIDs)
	return nil
}

func (c *Client) invalidateService(ctx context.Context, serviceID string) {
	c.deleteKeys(ctx, cache.MustFormat(keyService, cache.Params{"service_id": serviceID}))
	c.deletePatterns(ctx, cache.MustFormat(keyServicePattern, cache.Params{"service_id": serviceID}))
}

func (c *Client) invalidateServiceUsers(ctx context.Context, userIDs []string) {
	for _, userID := range userIDs {
		c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	}
}

// ReplyToAddress is one of a service's registered reply-to email addresses.
type ReplyToAddress struct {
	ID        string `json:"id"`
	Email     string `json:"email_address"`
	IsDefault bool   `json:"is_default"`
}

// GetReplyToAddresses lists a service's reply-to addresses.
func (c *Client) GetReplyToAddresses(ctx context.Context, serviceID string) ([]ReplyToAddress, error) {
	var resp struct {
		Data []ReplyToAddress `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/email-reply-to", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AddReplyToAddress registers a new reply-to address.
func (c *Client) AddReplyToAddress(ctx context.Context, serviceID, email string, isDefault bool) error {
	err := c.post(ctx, "/service/"+serviceID+"/email-reply-to", map[string]any{
		"email_address": email,
		"is_default":    isDefault,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	return nil
}

// SMSSender is one of a service's registered sender ids.
type SMSSender struct {
	ID        string `json:"id"`
	Sender    string `json:"sms_sender"`
	IsDefault bool   `json:"is_default"`
}

// GetSMSSenders lists a service's SMS sender ids.
func (c *Client) GetSMSSenders(ctx context.Context, serviceID string) ([]SMSSender, error) {
	var resp struct {
		Data []SMSSender `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/sms-sender", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DataRetention is the per-notification-type retention policy of a service.
type DataRetention struct {
	ID               string `json:"id"`
	NotificationType string `json:"notification_type"`
	DaysOfRetention  int    `json:"days_of_retention"`
}

// GetDataRetention returns the service's retention policy, cached under
// service-{service_id}-data-retention.
func (c *Client) GetDataRetention(ctx context.Context, serviceID string) ([]DataRetention, error) {
	var resp struct {
		Data []DataRetention `json:"data"`
	}
	key := cache.MustFormat(keyDataRetention, cache.Params{"service_id": serviceID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID+"/data-retention", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateDataRetention changes one retention row and drops the cached policy.
func (c *Client) UpdateDataRetention(ctx context.Context, serviceID, retentionID string, days int) error {
	err := c.post(ctx, "/service/"+serviceID+"/data-retention/"+retentionID, map[string]any{
		"days_of_retention": days,
	}, nil)
	if err != nil {
		return err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyDataRetention, cache.Params{"service_id": serviceID}))
	return nil
}

// GetGuestList returns the trial-mode recipient allowlist.
func (c *Client) GetGuestList(ctx context.Context, serviceID string) (emails, phones []string, err error) {
	var resp struct {
		Data struct {
			Emails []string `json:"email_addresses"`
			Phones []string `json:"phone_numbers"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/guest-list", nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Data.Emails, resp.Data.Phones, nil
}

// UpdateGuestList replaces the trial-mode recipient allowlist.
func (c *Client) UpdateGuestList(ctx context.Context, serviceID string, emails, phones []string) error {
	return c.put(ctx, "/service/"+serviceID+"/guest-list", map[string]any{
		"email_addresses": emails,
		"phone_numbers":   phones,
	}, nil)
}

// GetInboundSMS pages received text messages for a service.
func (c *Client) GetInboundSMS(ctx context.Context, serviceID string, page int) (json.RawMessage, error) {
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	query := url.Values{}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	if err := c.get(ctx, "/service/"+serviceID+"/inbound-sms", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateServiceCallback registers the delivery-receipt callback endpoint.
func (c *Client) CreateServiceCallback(ctx context.Context, serviceID, callbackURL, bearerToken, userID string) error {
	err := c.post(ctx, "/service/"+serviceID+"/delivery-receipt-api", map[string]any{
		"url":           callbackURL,
		"bearer_token":  bearerToken,
		"updated_by_id": userID,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidateService(ctx, serviceID)
	return nil
}

func queryValues(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	query := url.Values{}
	for name, value := range params {
		query.Set(name, value)
	}
	return query
}
