package auth

import (
	"context"
	"time"

	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/users"
)

// API is the slice of the backend client the auth flow depends on. Declared
// here so tests can substitute a fake without a live backend.
type API interface {
	GetUser(ctx context.Context, userID string) (*users.User, error)
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
	GetUserByUUIDAndEmail(ctx context.Context, loginUUID, email string) (*users.User, error)
	ActivateUser(ctx context.Context, userID string) (*users.User, error)
	SetEmailAccessValidatedAt(ctx context.Context, userID string, at time.Time) error
	UpdateCurrentSessionID(ctx context.Context, userID, sessionID string) error
	ClearCurrentSessionID(ctx context.Context, userID string) error
	SendVerifyCode(ctx context.Context, userID, codeType, to string) error
	CheckVerifyCode(ctx context.Context, userID, code, codeType string) error
	SendVerificationEmail(ctx context.Context, userID, email, link string) error
	GetInvitedUserByEmail(ctx context.Context, email string) (*invites.InvitedUser, error)
	GetInvitedOrgUserByEmail(ctx context.Context, email string) (*invites.InvitedOrgUser, error)
	AddUserToService(ctx context.Context, serviceID, userID string, permissions, folderPermissions []string) error
	AddUserToOrganization(ctx context.Context, organizationID, userID string) error
	AcceptInvite(ctx context.Context, serviceID, inviteID string) error
	UpdateOrgInviteStatus(ctx context.Context, organizationID, inviteID, status string) (*invites.InvitedOrgUser, error)
}
