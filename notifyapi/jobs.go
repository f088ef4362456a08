package notifyapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/notify-gov/admin-portal/cache"
)

// Job is one uploaded batch send.
type Job struct {
	ID                string `json:"id"`
	OriginalName      string `json:"original_file_name"`
	NotificationCount int    `json:"notification_count"`
	JobStatus         string `json:"job_status"`
	TemplateID        string `json:"template"`
	TemplateVersion   int    `json:"template_version"`
	CreatedAt         string `json:"created_at"`
	ScheduledFor      string `json:"scheduled_for,omitempty"`
}

type hasJobsEnvelope struct {
	Data struct {
		HasJobs bool `json:"has_jobs"`
	} `json:"data"`
}

// GetJobs pages a service's jobs, optionally filtered by status.
func (c *Client) GetJobs(ctx context.Context, serviceID string, page int, statuses []string) ([]Job, json.RawMessage, error) {
	var resp struct {
		Data  []Job           `json:"data"`
		Links json.RawMessage `json:"links"`
	}
	query := url.Values{}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	for _, status := range statuses {
		query.Add("statuses", status)
	}
	if err := c.get(ctx, "/service/"+serviceID+"/job", query, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Data, resp.Links, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, serviceID, jobID string) (*Job, error) {
	var resp struct {
		Data Job `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/job/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// HasJobs reports whether the service has ever run a job. The flag is cheap
// to cache because it only ever flips from false to true, and CreateJob
// writes it through directly.
func (c *Client) HasJobs(ctx context.Context, serviceID string) (bool, error) {
	var resp hasJobsEnvelope
	key := cache.MustFormat(keyHasJobs, cache.Params{"service_id": serviceID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/service/"+serviceID+"/job/has_jobs", nil, &resp)
	})
	if err != nil {
		return false, err
	}
	return resp.Data.HasJobs, nil
}

// CreateJob submits an uploaded batch for sending.
func (c *Client) CreateJob(ctx context.Context, serviceID, uploadID string, fields map[string]any) (*Job, error) {
	var resp struct {
		Data Job `json:"data"`
	}
	body := map[string]any{"id": uploadID}
	for name, value := range fields {
		body[name] = value
	}
	if err := c.post(ctx, "/service/"+serviceID+"/job", body, &resp); err != nil {
		return nil, err
	}
	// a job now exists, so write the flag through instead of invalidating
	var flag hasJobsEnvelope
	flag.Data.HasJobs = true
	key := cache.MustFormat(keyHasJobs, cache.Params{"service_id": serviceID})
	if raw, err := json.Marshal(flag); err == nil {
		_ = c.kv.Set(ctx, key, raw, cache.DefaultTTL)
	}
	return &resp.Data, nil
}

// CancelJob cancels a scheduled job. The has_jobs flag goes stale rather
// than being rewritten since cancellation may or may not have been the only
// job.
func (c *Client) CancelJob(ctx context.Context, serviceID, jobID string) error {
	if err := c.post(ctx, "/service/"+serviceID+"/job/"+jobID+"/cancel", nil, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyHasJobs, cache.Params{"service_id": serviceID}))
	return nil
}
