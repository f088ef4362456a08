// Package invites models service and organization invitations and drives
// their redemption state machine.
package invites

import "time"

// Invitation statuses. Accepted, cancelled and expired are terminal; only a
// pending invitation may be redeemed.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// InvitedUser is a pending offer to join a service.
type InvitedUser struct {
	ID                string    `json:"id"`
	ServiceID         string    `json:"service"`
	FromUserID        string    `json:"from_user"`
	Email             string    `json:"email_address"`
	Permissions       []string  `json:"permissions"`
	AuthType          string    `json:"auth_type"`
	FolderPermissions []string  `json:"folder_permissions"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// InvitedOrgUser is a pending offer to join an organization. Organization
// membership carries no per-permission grants.
type InvitedOrgUser struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization"`
	InvitedByID    string    `json:"invited_by"`
	Email          string    `json:"email_address"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Terminal reports whether the status permits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusAccepted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
