package notifyapi

import "time"

// Cache key templates. Placeholder names match the parameters of the methods
// they are attached to.
const (
	keyService           = "service-{service_id}"
	keyServicePattern    = "service-{service_id}-*"
	keyServiceTemplates  = "service-{service_id}-templates"
	keyTemplateVersion   = "service-{service_id}-template-{template_id}-version-{version}"
	keyTemplateVersions  = "service-{service_id}-template-{template_id}-versions"
	keyTemplatePattern   = "service-{service_id}-template-*"
	keyDataRetention     = "service-{service_id}-data-retention"
	keyUser              = "user-{user_id}"
	keyOrganizations     = "organizations"
	keyDomains           = "domains"
	keyOrganizationName  = "organization-{organization_id}-name"
	keyLiveCounts        = "live-service-and-organization-counts"
	keyMonthlyUsage      = "monthly-usage-summary-{service_id}-{year}"
	keyYearlyUsage       = "yearly-usage-summary-{service_id}-{year}"
	keyFreeSMSLimit      = "free-sms-fragment-limit-{service_id}-{year}"
	keyHasJobs           = "has_jobs-{service_id}"
	keyEmailBranding     = "email-branding"
	keyEmailBrandingOne  = "email-branding-{branding_id}"
	keyRemainingMessages = "remaining-global-messages"
)

// Non-default TTLs.
const (
	ttlLiveCounts        = time.Hour
	ttlUsage             = 30 * time.Second
	ttlRemainingMessages = 30 * time.Second
)
