package config

type APIConfig interface {
	GetAPIHostName() string
	GetAdminClientUserName() string
	GetAdminClientSecret() string
	GetRouteSecretKey1() string
	GetRouteSecretKey2() string
	GetCheckProxyHeader() bool
	GetTemplatePreviewAPIHost() string
	GetTemplatePreviewAPIKey() string
	GetAntivirusAPIHost() string
	GetAntivirusAPIKey() string
}

type API struct{}

var _ APIConfig = API{}

func (API) GetAPIHostName() string {
	return GetEnv("API_HOST_NAME", "http://localhost:6011")
}

// GetAdminClientUserName is the client id the backend knows this portal by.
// It becomes the iss claim of every admin JWT.
func (API) GetAdminClientUserName() string {
	return GetEnv("ADMIN_CLIENT_USER_NAME", "notify-admin")
}

func (API) GetAdminClientSecret() string {
	return GetEnv("ADMIN_CLIENT_SECRET", "")
}

func (API) GetRouteSecretKey1() string {
	return GetEnv("ROUTE_SECRET_KEY_1", "")
}

func (API) GetRouteSecretKey2() string {
	return GetEnv("ROUTE_SECRET_KEY_2", "")
}

// GetCheckProxyHeader controls whether inbound requests must carry one of the
// two rotating route secrets in X-Custom-Forwarder.
func (API) GetCheckProxyHeader() bool {
	return GetEnvBool("CHECK_PROXY_HEADER", false)
}

func (API) GetTemplatePreviewAPIHost() string {
	return GetEnv("TEMPLATE_PREVIEW_API_HOST", "http://localhost:6013")
}

func (API) GetTemplatePreviewAPIKey() string {
	return GetEnv("TEMPLATE_PREVIEW_API_KEY", "")
}

func (API) GetAntivirusAPIHost() string {
	return GetEnv("ANTIVIRUS_API_HOST", "http://localhost:6016")
}

func (API) GetAntivirusAPIKey() string {
	return GetEnv("ANTIVIRUS_API_KEY", "")
}
