package notifyapi

import (
	"context"

	"github.com/notify-gov/admin-portal/cache"
)

// EmailBranding is a reusable email header (logo, banner, colour).
type EmailBranding struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Logo      string `json:"logo,omitempty"`
	Colour    string `json:"colour,omitempty"`
	Text      string `json:"text,omitempty"`
	BrandType string `json:"brand_type"`
}

// GetAllEmailBranding lists every branding option, cached.
func (c *Client) GetAllEmailBranding(ctx context.Context) ([]EmailBranding, error) {
	var resp struct {
		Data []EmailBranding `json:"email_branding"`
	}
	err := c.cached(ctx, keyEmailBranding, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/email-branding", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetEmailBranding fetches one branding option.
func (c *Client) GetEmailBranding(ctx context.Context, brandingID string) (*EmailBranding, error) {
	var resp struct {
		Data EmailBranding `json:"email_branding"`
	}
	key := cache.MustFormat(keyEmailBrandingOne, cache.Params{"branding_id": brandingID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/email-branding/"+brandingID, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CreateEmailBranding adds a branding option and drops the list cache.
func (c *Client) CreateEmailBranding(ctx context.Context, fields map[string]any) error {
	if err := c.post(ctx, "/email-branding", fields, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, keyEmailBranding)
	return nil
}

// UpdateEmailBranding patches a branding option, dropping both the list
// cache and the entry itself.
func (c *Client) UpdateEmailBranding(ctx context.Context, brandingID string, fields map[string]any) error {
	if err := c.post(ctx, "/email-branding/"+brandingID, fields, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, keyEmailBranding,
		cache.MustFormat(keyEmailBrandingOne, cache.Params{"branding_id": brandingID}))
	return nil
}
