package notifyapi

import "context"

// Provider is one delivery provider with its traffic share.
type Provider struct {
	ID                    string `json:"id"`
	DisplayName           string `json:"display_name"`
	Identifier            string `json:"identifier"`
	NotificationType      string `json:"notification_type"`
	Priority              int    `json:"priority"`
	Active                bool   `json:"active"`
	SupportsInternational bool   `json:"supports_international"`
	UpdatedAt             string `json:"updated_at,omitempty"`
	CreatedBy             string `json:"created_by_name,omitempty"`
}

// GetProviders lists delivery providers. Platform-admin surface only.
func (c *Client) GetProviders(ctx context.Context) ([]Provider, error) {
	var resp struct {
		Data []Provider `json:"provider_details"`
	}
	if err := c.get(ctx, "/provider-details", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateProvider changes a provider's priority or active flag.
func (c *Client) UpdateProvider(ctx context.Context, providerID string, fields map[string]any) error {
	return c.post(ctx, "/provider-details/"+providerID, fields, nil)
}
