package notifyapi

import (
	"context"

	"github.com/notify-gov/admin-portal/cache"
	"github.com/notify-gov/admin-portal/organizations"
	"github.com/notify-gov/admin-portal/services"
)

// GetOrganizations lists every organization, cached under "organizations".
func (c *Client) GetOrganizations(ctx context.Context) ([]organizations.Organization, error) {
	var resp struct {
		Data []organizations.Organization `json:"data"`
	}
	err := c.cached(ctx, keyOrganizations, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/organizations", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetOrganization fetches one organization. Not individually cached; the
// list cache covers the common paths.
func (c *Client) GetOrganization(ctx context.Context, organizationID string) (*organizations.Organization, error) {
	var resp struct {
		Data organizations.Organization `json:"data"`
	}
	if err := c.get(ctx, "/organizations/"+organizationID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetOrganizationName resolves an id to a display name, cached under
// organization-{organization_id}-name.
func (c *Client) GetOrganizationName(ctx context.Context, organizationID string) (string, error) {
	var resp struct {
		Data organizations.Organization `json:"data"`
	}
	key := cache.MustFormat(keyOrganizationName, cache.Params{"organization_id": organizationID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/organizations/"+organizationID, nil, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.Data.Name, nil
}

// GetDomains returns every registered email domain. The response derives
// from the organization list, so both caches are populated from one fetch.
func (c *Client) GetDomains(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []organizations.Organization `json:"data"`
	}
	err := c.cached(ctx, keyDomains, cache.DefaultTTL, &resp, func() error {
		if err := c.get(ctx, "/organizations", nil, &resp); err != nil {
			return err
		}
		// same payload also refreshes the organization list
		c.storeThrough(ctx, keyOrganizations, &resp, cache.DefaultTTL)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var domains []string
	for _, org := range resp.Data {
		domains = append(domains, org.Domains...)
	}
	return domains, nil
}

// CreateOrganization registers a new organization and drops the list caches.
func (c *Client) CreateOrganization(ctx context.Context, fields map[string]any) (*organizations.Organization, error) {
	var resp struct {
		Data organizations.Organization `json:"data"`
	}
	if err := c.post(ctx, "/organizations", fields, &resp); err != nil {
		return nil, err
	}
	c.deleteKeys(ctx, keyOrganizations, keyDomains)
	return &resp.Data, nil
}

// UpdateOrganization patches organization attributes. The name key is only
// dropped when the name actually changed.
func (c *Client) UpdateOrganization(ctx context.Context, organizationID string, fields map[string]any) error {
	if err := c.post(ctx, "/organizations/"+organizationID, fields, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, keyOrganizations, keyDomains)
	if _, ok := fields["name"]; ok {
		c.deleteKeys(ctx, cache.MustFormat(keyOrganizationName, cache.Params{"organization_id": organizationID}))
	}
	return nil
}

// GetOrganizationServices lists the services owned by an organization.
func (c *Client) GetOrganizationServices(ctx context.Context, organizationID string) ([]services.Service, error) {
	var resp struct {
		Data []services.Service `json:"data"`
	}
	if err := c.get(ctx, "/organizations/"+organizationID+"/services", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetOrganizationServicesUsage reports per-service spend for the billing
// year. Long timeout: the backend aggregates a year of rows.
func (c *Client) GetOrganizationServicesUsage(ctx context.Context, organizationID string, year int) (map[string]any, error) {
	var resp map[string]any
	query := yearQuery(year)
	if err := c.getLong(ctx, "/organizations/"+organizationID+"/services-with-usage", query, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
