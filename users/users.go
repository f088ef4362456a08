// Package users holds the portal-side view of a backend user record and the
// membership/permission helpers the authorization middleware relies on.
package users

import (
	"strings"
	"time"
)

// AuthType determines the user's second factor.
type AuthType string

const (
	SMSAuth   AuthType = "sms_auth"
	EmailAuth AuthType = "email_auth"
)

// State of a user account. Pending users have not completed registration and
// may not authenticate.
const (
	StatePending = "pending"
	StateActive  = "active"
)

// MaxFailedLoginCount locks the account when reached.
const MaxFailedLoginCount = 10

// Known permission tags a view may require. Anything else in a route policy
// is a programmer error.
var KnownPermissions = map[string]struct{}{
	"view_activity":    {},
	"send_messages":    {},
	"manage_templates": {},
	"manage_service":   {},
	"manage_users":     {},
	"manage_settings":  {},
	"manage_api_keys":  {},
}

// User mirrors the backend user record. The portal never persists it; every
// field is authoritative on the backend side.
type User struct {
	ID                     string              `json:"id"`
	Name                   string              `json:"name"`
	Email                  string              `json:"email_address"`
	AuthType               AuthType            `json:"auth_type"`
	MobileNumber           string              `json:"mobile_number,omitempty"`
	State                  string              `json:"state"`
	FailedLoginCount       int                 `json:"failed_login_count"`
	CurrentSessionID       string              `json:"current_session_id"`
	PlatformAdmin          bool                `json:"platform_admin"`
	EmailAccessValidatedAt time.Time           `json:"email_access_validated_at"`
	PasswordChangedAt      *time.Time          `json:"password_changed_at,omitempty"`
	Permissions            map[string][]string `json:"permissions"`
	ServiceIDs             []string            `json:"services"`
	OrganizationIDs        []string            `json:"organizations"`
	PreferredTimezone      string              `json:"preferred_timezone"`
}

// IsLocked reports whether failed sign-in attempts have locked the account.
func (u *User) IsLocked() bool {
	return u.FailedLoginCount >= MaxFailedLoginCount
}

// IsPending reports whether the user has yet to complete registration.
func (u *User) IsPending() bool {
	return u.State == StatePending
}

// CanAuthenticate reports whether a sign-in may proceed for this account.
func (u *User) CanAuthenticate() bool {
	return !u.IsPending() && !u.IsLocked()
}

// EmailAccessStale reports whether the last proof of email possession is
// older than the revalidation window.
func (u *User) EmailAccessStale(window time.Duration, now time.Time) bool {
	if u.EmailAccessValidatedAt.IsZero() {
		return true
	}
	return now.Sub(u.EmailAccessValidatedAt) > window
}

// PermissionsForService returns the user's permission tags on a service.
func (u *User) PermissionsForService(serviceID string) []string {
	return u.Permissions[serviceID]
}

// HasPermissionForService reports whether the user holds at least one of the
// required tags on the service. With no required tags it reports membership.
func (u *User) HasPermissionForService(serviceID string, required ...string) bool {
	if len(required) == 0 {
		return u.BelongsToService(serviceID)
	}
	held := u.Permissions[serviceID]
	for _, want := range required {
		for _, have := range held {
			if want == have {
				return true
			}
		}
	}
	return false
}

// BelongsToService reports direct team membership.
func (u *User) BelongsToService(serviceID string) bool {
	for _, id := range u.ServiceIDs {
		if strings.EqualFold(id, serviceID) {
			return true
		}
	}
	return false
}

// BelongsToOrganization reports organization membership. Both sides are
// normalized to strings before comparing: the backend has historically sent
// organization ids as raw UUIDs and as strings depending on the endpoint.
func (u *User) BelongsToOrganization(organizationID string) bool {
	want := strings.ToLower(strings.TrimSpace(organizationID))
	if want == "" {
		return false
	}
	for _, id := range u.OrganizationIDs {
		if strings.ToLower(strings.TrimSpace(id)) == want {
			return true
		}
	}
	return false
}
