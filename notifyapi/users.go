package notifyapi

import (
	"context"
	"net/url"
	"time"

	"github.com/notify-gov/admin-portal/cache"
	"github.com/notify-gov/admin-portal/users"
)

// GetUser fetches a user by id, read-through cached under user-{user_id}.
func (c *Client) GetUser(ctx context.Context, userID string) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	key := cache.MustFormat(keyUser, cache.Params{"user_id": userID})
	err := c.cached(ctx, key, cache.DefaultTTL, &resp, func() error {
		return c.get(ctx, "/user/"+userID, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetUserByEmail looks a user up by email address. Not cached: it backs the
// sign-in path where staleness would be harmful.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	query := url.Values{"email": []string{email}}
	if err := c.get(ctx, "/user/email", query, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetUserByUUIDAndEmail resolves the backend user for an OIDC subject.
func (c *Client) GetUserByUUIDAndEmail(ctx context.Context, loginUUID, email string) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	query := url.Values{
		"login_uuid": []string{loginUUID},
		"email":      []string{email},
	}
	if err := c.get(ctx, "/user/get-login-gov-user", query, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CreateUser registers a new user record (the invited-user registration
// path; the password is random and never used for sign-in).
func (c *Client) CreateUser(ctx context.Context, fields map[string]any) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	if err := c.post(ctx, "/user", fields, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateUser patches user attributes and invalidates user-{user_id}.
func (c *Client) UpdateUser(ctx context.Context, userID string, fields map[string]any) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	if err := c.post(ctx, "/user/"+userID, fields, &resp); err != nil {
		return nil, err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	return &resp.Data, nil
}

// ActivateUser flips a pending user to active.
func (c *Client) ActivateUser(ctx context.Context, userID string) (*users.User, error) {
	var resp struct {
		Data users.User `json:"data"`
	}
	if err := c.post(ctx, "/user/"+userID+"/activate", nil, &resp); err != nil {
		return nil, err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	return &resp.Data, nil
}

// SetEmailAccessValidatedAt records a fresh proof of email possession.
func (c *Client) SetEmailAccessValidatedAt(ctx context.Context, userID string, at time.Time) error {
	_, err := c.UpdateUser(ctx, userID, map[string]any{
		"email_access_validated_at": at.UTC().Format(time.RFC3339),
	})
	return err
}

// UpdateCurrentSessionID pins the user's account to one browser session.
// Every other session observes the mismatch on its next request.
func (c *Client) UpdateCurrentSessionID(ctx context.Context, userID, sessionID string) error {
	_, err := c.UpdateUser(ctx, userID, map[string]any{
		"current_session_id": sessionID,
	})
	return err
}

// ClearCurrentSessionID detaches the account from its session at sign-out.
func (c *Client) ClearCurrentSessionID(ctx context.Context, userID string) error {
	_, err := c.UpdateUser(ctx, userID, map[string]any{
		"current_session_id": nil,
	})
	return err
}

// SendVerifyCode asks the backend to deliver a verification code.
func (c *Client) SendVerifyCode(ctx context.Context, userID, codeType, to string) error {
	body := map[string]any{"code_type": codeType}
	if to != "" {
		body["to"] = to
	}
	return c.post(ctx, "/user/"+userID+"/verify-code", body, nil)
}

// SendVerificationEmail asks the backend to deliver the email-revalidation
// message carrying the signed link the portal generated.
func (c *Client) SendVerificationEmail(ctx context.Context, userID, email, link string) error {
	body := map[string]any{
		"email_address":     email,
		"verification_link": link,
	}
	return c.post(ctx, "/user/"+userID+"/email-verification", body, nil)
}

// CheckVerifyCode validates a submitted verification code.
func (c *Client) CheckVerifyCode(ctx context.Context, userID, code, codeType string) error {
	body := map[string]any{
		"code":      code,
		"code_type": codeType,
	}
	return c.post(ctx, "/user/"+userID+"/verify/code", body, nil)
}

// AddUserToService attaches a user with the given permission and folder
// grants, invalidating both sides of the relation.
func (c *Client) AddUserToService(ctx context.Context, serviceID, userID string, permissions, folderPermissions []string) error {
	perms := make([]map[string]string, 0, len(permissions))
	for _, p := range permissions {
		perms = append(perms, map[string]string{"permission": p})
	}
	body := map[string]any{
		"permissions":        perms,
		"folder_permissions": folderPermissions,
	}
	if err := c.post(ctx, "/service/"+serviceID+"/users/"+userID, body, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx,
		cache.MustFormat(keyUser, cache.Params{"user_id": userID}),
		cache.MustFormat(keyService, cache.Params{"service_id": serviceID}),
	)
	return nil
}

// RemoveUserFromService detaches a team member.
func (c *Client) RemoveUserFromService(ctx context.Context, serviceID, userID string) error {
	if err := c.delete(ctx, "/service/"+serviceID+"/users/"+userID, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx,
		cache.MustFormat(keyService, cache.Params{"service_id": serviceID}),
		cache.MustFormat(keyUser, cache.Params{"user_id": userID}),
	)
	return nil
}

// SetUserPermissions replaces a user's permission set on a service.
func (c *Client) SetUserPermissions(ctx context.Context, serviceID, userID string, permissions, folderPermissions []string) error {
	perms := make([]map[string]string, 0, len(permissions))
	for _, p := range permissions {
		perms = append(perms, map[string]string{"permission": p})
	}
	body := map[string]any{"permissions": perms}
	if folderPermissions != nil {
		body["folder_permissions"] = folderPermissions
	}
	if err := c.post(ctx, "/user/"+userID+"/service/"+serviceID+"/permission", body, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	return nil
}

// AddUserToOrganization attaches a user to an organization.
func (c *Client) AddUserToOrganization(ctx context.Context, organizationID, userID string) error {
	if err := c.post(ctx, "/organizations/"+organizationID+"/users/"+userID, nil, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	return nil
}

// RemoveUserFromOrganization detaches a user from an organization.
func (c *Client) RemoveUserFromOrganization(ctx context.Context, organizationID, userID string) error {
	if err := c.delete(ctx, "/organizations/"+organizationID+"/users/"+userID, nil); err != nil {
		return err
	}
	c.deleteKeys(ctx, cache.MustFormat(keyUser, cache.Params{"user_id": userID}))
	return nil
}

// GetUsersForService lists the service's team members.
func (c *Client) GetUsersForService(ctx context.Context, serviceID string) ([]users.User, error) {
	var resp struct {
		Data []users.User `json:"data"`
	}
	if err := c.get(ctx, "/service/"+serviceID+"/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetUsersForOrganization lists an organization's members.
func (c *Client) GetUsersForOrganization(ctx context.Context, organizationID string) ([]users.User, error) {
	var resp struct {
		Data []users.User `json:"data"`
	}
	if err := c.get(ctx, "/organizations/"+organizationID+"/users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
