// Package services holds the portal-side view of a backend service (tenant).
package services

// Capability tags a service may carry.
const (
	PermissionEmailAuth      = "email_auth"
	PermissionInboundSMS     = "inbound_sms"
	PermissionUploadDocument = "upload_document"
)

// Service is a read-through aggregate; invariants live on the backend.
type Service struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	OrganizationID   string   `json:"organization_id,omitempty"`
	OrganizationType string   `json:"organization_type,omitempty"`
	Active           bool     `json:"active"`
	Restricted       bool     `json:"restricted"`
	Permissions      []string `json:"permissions"`
	MessageLimit     int      `json:"message_limit"`
}

// HasPermission reports whether the service carries a capability tag.
func (s *Service) HasPermission(tag string) bool {
	for _, p := range s.Permissions {
		if p == tag {
			return true
		}
	}
	return false
}

// TrialMode reports whether the service is still restricted to the trial
// message quota.
func (s *Service) TrialMode() bool {
	return s.Restricted
}
