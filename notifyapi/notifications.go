package notifyapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// Notification is one sent message as the backend reports it.
type Notification struct {
	ID               string `json:"id"`
	To               string `json:"to"`
	NotificationType string `json:"notification_type"`
	Status           string `json:"status"`
	TemplateID       string `json:"template_id,omitempty"`
	CreatedAt        string `json:"created_at"`
	SentAt           string `json:"sent_at,omitempty"`
}

// GetNotifications pages a service's sent messages with optional filters
// (statuses, template_type, job id via params).
func (c *Client) GetNotifications(ctx context.Context, serviceID string, page int, params map[string]string, statuses []string) ([]Notification, json.RawMessage, error) {
	var resp struct {
		Data  []Notification  `json:"notifications"`
		Links json.RawMessage `json:"links"`
	}
	query := queryValues(params)
	if query == nil {
		query = url.Values{}
	}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}
	for _, status := range statuses {
		query.Add("status", status)
	}
	if err := c.getLong(ctx, "/service/"+serviceID+"/notifications", query, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Data, resp.Links, nil
}

// GetNotification fetches one sent message.
func (c *Client) GetNotification(ctx context.Context, serviceID, notificationID string) (*Notification, error) {
	var resp Notification
	if err := c.get(ctx, "/service/"+serviceID+"/notifications/"+notificationID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendNotification sends a one-off message composed in the portal.
func (c *Client) SendNotification(ctx context.Context, serviceID string, fields map[string]any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/service/"+serviceID+"/send-notification", fields, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetNotificationCount returns today's sent count for the service.
func (c *Client) GetNotificationCount(ctx context.Context, serviceID string) (int, error) {
	var resp struct {
		Data struct {
			Total int `json:"notifications_sent_count"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/notifications/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Total, nil
}

// GetMonthlyNotificationStats reports per-month delivery outcomes for the
// service's dashboard, keyed by month then type then status.
func (c *Client) GetMonthlyNotificationStats(ctx context.Context, serviceID string, year int) (map[string]map[string]map[string]int, error) {
	var resp struct {
		Data map[string]map[string]map[string]int `json:"data"`
	}
	if err := c.getLong(ctx, "/service/"+serviceID+"/notifications/monthly", yearQuery(year), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
