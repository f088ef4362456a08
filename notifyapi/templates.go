package notifyapi

import (
	"context"
	"strconv"

	"github.com/notify-gov/admin-portal/cache"
)

// Template is a message template belonging to a service.
type Template struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TemplateType string `json:"template_type"`
	Subject      string `json:"subject,omitempty"`
	Content      string `json:"content"`
	Version      int    `json:"version"`
	Archived     bool   `json:"archived"`
	Folder       string `json:"folder,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// GetTemplates lists a service's templates, cached under
// service-{service_id}-templates.
func (c *Client) GetTemplates(ctx context.Context, serviceID string) ([]Template, error) {
	var resp struct {
		Data []Template `json:"data"`
	}
	key := cache.MustFormat(keyServiceTemplates, cache.Params{"service_id": serviceID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID+"/template", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetTemplate fetches one template at a pinned version (0 means current).
// Pinned versions are immutable so the cache entry never goes stale on its
// own; it is still swept by the service-wide pattern on mutation.
func (c *Client) GetTemplate(ctx context.Context, serviceID, templateID string, version int) (*Template, error) {
	var resp struct {
		Data Template `json:"data"`
	}
	path := "/service/" + serviceID + "/template/" + templateID
	if version > 0 {
		path += "/version/" + strconv.Itoa(version)
	}
	key := cache.MustFormat(keyTemplateVersion, cache.Params{
		"service_id":  serviceID,
		"template_id": templateID,
		"version":     version,
	})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, path, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetTemplateVersions lists the full history of one template.
func (c *Client) GetTemplateVersions(ctx context.Context, serviceID, templateID string) ([]Template, error) {
	var resp struct {
		Data []Template `json:"data"`
	}
	key := cache.MustFormat(keyTemplateVersions, cache.Params{
		"service_id":  serviceID,
		"template_id": templateID,
	})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID+"/template/"+templateID+"/versions", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateTemplate adds a template and sweeps the service's template caches.
func (c *Client) CreateTemplate(ctx context.Context, serviceID string, fields map[string]any) (*Template, error) {
	var resp struct {
		Data Template `json:"data"`
	}
	if err := c.post(ctx, "/service/"+serviceID+"/template", fields, &resp); err != nil {
		return nil, err
	}
	c.invalidateTemplates(ctx, serviceID)
	return &resp.Data, nil
}

// UpdateTemplate patches a template, bumping its version on the backend.
func (c *Client) UpdateTemplate(ctx context.Context, serviceID, templateID string, fields map[string]any) (*Template, error) {
	var resp struct {
		Data Template `json:"data"`
	}
	if err := c.post(ctx, "/service/"+serviceID+"/template/"+templateID, fields, &resp); err != nil {
		return nil, err
	}
	c.invalidateTemplates(ctx, serviceID)
	return &resp.Data, nil
}

// RedactTemplate strips personalised values from the template's stored
// notifications from now on. One-way on the backend side.
func (c *Client) RedactTemplate(ctx context.Context, serviceID, templateID, userID string) error {
	err := c.post(ctx, "/service/"+serviceID+"/template/"+templateID, map[string]any{
		"redact_personalisation": true,
		"created_by":             userID,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidateTemplates(ctx, serviceID)
	return nil
}

// DeleteTemplate archives a template.
func (c *Client) DeleteTemplate(ctx context.Context, serviceID, templateID string) error {
	err := c.post(ctx, "/service/"+serviceID+"/template/"+templateID, map[string]any{
		"archived": true,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidateTemplates(ctx, serviceID)
	return nil
}

// invalidateTemplates drops the template list and every per-version entry
// for the service in one sweep.
func (c *Client) invalidateTemplates(ctx context.Context, serviceID string) {
	c.deleteKeys(ctx, cache.MustFormat(keyServiceTemplates, cache.Params{"service_id": serviceID}))
	c.deletePatterns(ctx, cache.MustFormat(keyTemplatePattern, cache.Params{"service_id": serviceID}))
}
