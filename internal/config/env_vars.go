package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	environmentVar     = "NOTIFY_ENVIRONMENT"
	httpProtocolVar    = "HTTP_PROTOCOL"
	timezoneVar        = "TIMEZONE"
	headerColourVar    = "HEADER_COLOUR"
	assetDomainVar     = "ASSET_DOMAIN"
	assetPathVar       = "ASSET_PATH"
	logoCDNDomainVar   = "LOGO_CDN_DOMAIN"
	messageLimitVar    = "GLOBAL_SERVICE_MESSAGE_LIMIT"
	orgDashboardVar    = "ORGANIZATION_DASHBOARD_ENABLED"
	e2eTestEmailVar    = "NOTIFY_E2E_TEST_EMAIL"
	betaHostVar        = "BETA_HOST"
	adminBaseURLVar    = "ADMIN_BASE_URL"
	defaultBetaHost    = "beta.notify.gov"
	defaultMsgLimit    = 100000
	EnvironmentProd    = "production"
	EnvironmentSandbox = "sandbox"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "6012")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Notify Admin")
}

func (EnvVars) GetEnvironment() string {
	return GetEnv(environmentVar, "development")
}

func (EnvVars) GetHTTPProtocol() string {
	return GetEnv(httpProtocolVar, "http")
}

func (EnvVars) GetTimezone() string {
	return GetEnv(timezoneVar, "America/New_York")
}

func (EnvVars) GetHeaderColour() string {
	return GetEnv(headerColourVar, "#0b0c0c")
}

func (EnvVars) GetAssetDomain() string {
	return GetEnv(assetDomainVar, "")
}

func (EnvVars) GetAssetPath() string {
	return GetEnv(assetPathVar, "/static/")
}

func (EnvVars) GetLogoCDNDomain() string {
	return GetEnv(logoCDNDomainVar, "")
}

func (EnvVars) GetGlobalServiceMessageLimit() int {
	return GetEnvInt(messageLimitVar, defaultMsgLimit)
}

func (EnvVars) GetOrganizationDashboardEnabled() bool {
	return GetEnvBool(orgDashboardVar, false)
}

// GetE2ETestEmail returns the email used to bypass OIDC during end-to-end
// test runs. Empty in every real environment.
func (EnvVars) GetE2ETestEmail() string {
	return GetEnv(e2eTestEmailVar, "")
}

// GetBetaHost returns the canonical production hostname. Production requests
// arriving on any other host are redirected here.
func (EnvVars) GetBetaHost() string {
	return GetEnv(betaHostVar, defaultBetaHost)
}

// GetAdminBaseURL is the externally visible origin of this portal, used to
// build emailed links and the IdP post-logout redirect.
func (EnvVars) GetAdminBaseURL() string {
	return GetEnv(adminBaseURLVar, "http://localhost:6012")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func GetEnvBool(envVar string, defaultValue bool) bool {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
