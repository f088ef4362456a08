package notifyapi

import (
	"context"
	"net/url"

	"github.com/notify-gov/admin-portal/invites"
)

// CreateInvite offers service membership to an email address.
func (c *Client) CreateInvite(ctx context.Context, serviceID, fromUserID, email, authType string, permissions, folderPermissions []string) (*invites.InvitedUser, error) {
	var resp struct {
		Data invites.InvitedUser `json:"data"`
	}
	body := map[string]any{
		"service":            serviceID,
		"from_user":          fromUserID,
		"email_address":      email,
		"auth_type":          authType,
		"permissions":        permissions,
		"folder_permissions": folderPermissions,
	}
	if err := c.post(ctx, "/service/"+serviceID+"/invite", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetInvitesForService lists a service's invitations.
func (c *Client) GetInvitesForService(ctx context.Context, serviceID string) ([]invites.InvitedUser, error) {
	var resp struct {
		Data []invites.InvitedUser `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/invite", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetInvitedUser fetches one service invitation by id.
func (c *Client) GetInvitedUser(ctx context.Context, inviteID string) (*invites.InvitedUser, error) {
	var resp struct {
		Data invites.InvitedUser `json:"data"`
	}
	if err := c.get(ctx, "/invite/service/"+inviteID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CheckInviteToken exchanges an emailed token for its invitation. The
// backend answers 400 for a malformed token and 404 for an unknown one.
func (c *Client) CheckInviteToken(ctx context.Context, inviteToken string) (*invites.InvitedUser, error) {
	var resp struct {
		Data invites.InvitedUser `json:"data"`
	}
	if err := c.get(ctx, "/invite/service/check/"+inviteToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateInviteStatus transitions an invitation (accepted, cancelled).
func (c *Client) UpdateInviteStatus(ctx context.Context, serviceID, inviteID, status string) (*invites.InvitedUser, error) {
	var resp struct {
		Data invites.InvitedUser `json:"data"`
	}
	body := map[string]any{"status": status}
	if err := c.post(ctx, "/service/"+serviceID+"/invite/"+inviteID, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CancelInvite withdraws a pending invitation.
func (c *Client) CancelInvite(ctx context.Context, serviceID, inviteID string) error {
	_, err := c.UpdateInviteStatus(ctx, serviceID, inviteID, invites.StatusCancelled)
	return err
}

// AcceptInvite marks a pending invitation redeemed.
func (c *Client) AcceptInvite(ctx context.Context, serviceID, inviteID string) error {
	_, err := c.UpdateInviteStatus(ctx, serviceID, inviteID, invites.StatusAccepted)
	return err
}

// GetInvitedUserByEmail finds a pending service invitation addressed to the
// email, if one exists. A backend 404 means no pending invitation.
func (c *Client) GetInvitedUserByEmail(ctx context.Context, email string) (*invites.InvitedUser, error) {
	var resp struct {
		Data invites.InvitedUser `json:"data"`
	}
	query := url.Values{"email": []string{email}}
	if err := c.get(ctx, "/invite/service/by-email", query, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetInvitedOrgUserByEmail finds a pending organization invitation addressed
// to the email, if one exists.
func (c *Client) GetInvitedOrgUserByEmail(ctx context.Context, email string) (*invites.InvitedOrgUser, error) {
	var resp struct {
		Data invites.InvitedOrgUser `json:"data"`
	}
	query := url.Values{"email": []string{email}}
	if err := c.get(ctx, "/invite/organization/by-email", query, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CreateOrgInvite offers organization membership to an email address.
func (c *Client) CreateOrgInvite(ctx context.Context, organizationID, invitedByID, email string) (*invites.InvitedOrgUser, error) {
	var resp struct {
		Data invites.InvitedOrgUser `json:"data"`
	}
	body := map[string]any{
		"invited_by":    invitedByID,
		"email_address": email,
	}
	if err := c.post(ctx, "/organizations/"+organizationID+"/invite", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetOrgInvites lists an organization's invitations.
func (c *Client) GetOrgInvites(ctx context.Context, organizationID string) ([]invites.InvitedOrgUser, error) {
	var resp struct {
		Data []invites.InvitedOrgUser `json:"data"`
	}
	if err := c.get(ctx, "/organizations/"+organizationID+"/invite", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetInvitedOrgUser fetches one organization invitation by id.
func (c *Client) GetInvitedOrgUser(ctx context.Context, inviteID string) (*invites.InvitedOrgUser, error) {
	var resp struct {
		Data invites.InvitedOrgUser `json:"data"`
	}
	if err := c.get(ctx, "/invite/organization/"+inviteID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CheckOrgInviteToken exchanges an emailed token for its organization
// invitation.
func (c *Client) CheckOrgInviteToken(ctx context.Context, inviteToken string) (*invites.InvitedOrgUser, error) {
	var resp struct {
		Data invites.InvitedOrgUser `json:"data"`
	}
	if err := c.get(ctx, "/invite/organization/check/"+inviteToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateOrgInviteStatus transitions an organization invitation.
func (c *Client) UpdateOrgInviteStatus(ctx context.Context, organizationID, inviteID, status string) (*invites.InvitedOrgUser, error) {
	var resp struct {
		Data invites.InvitedOrgUser `json:"data"`
	}
	body := map[string]any{"status": status}
	if err := c.post(ctx, "/organizations/"+organizationID+"/invite/"+inviteID, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
