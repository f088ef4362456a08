package config

type Config interface {
	EnvConfig
	APIConfig
	RedisConfig
	OIDCConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnvironment() string
	GetHTTPProtocol() string
	GetTimezone() string
	GetHeaderColour() string
	GetAssetDomain() string
	GetAssetPath() string
	GetLogoCDNDomain() string
	GetGlobalServiceMessageLimit() int
	GetOrganizationDashboardEnabled() bool
	GetE2ETestEmail() string
	GetBetaHost() string
	GetAdminBaseURL() string
}

type mainConfig struct {
	EnvVars
	API
	Redis
	OIDC
	Security
}

func New() Config {
	return mainConfig{}
}
