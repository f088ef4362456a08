// Package organizations holds the portal-side view of a backend organization.
package organizations

// Organization groups services for cross-service visibility and billing.
type Organization struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	OrganizationType    string   `json:"organization_type,omitempty"`
	Domains             []string `json:"domains,omitempty"`
	Active              bool     `json:"active"`
	BillingContactName  string   `json:"billing_contact_name,omitempty"`
	BillingContactEmail string   `json:"billing_contact_email,omitempty"`
	BillingReference    string   `json:"billing_reference,omitempty"`
	PurchaseOrderNumber string   `json:"purchase_order_number,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}
