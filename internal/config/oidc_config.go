package config

import "strings"

type OIDCConfig interface {
	GetLoginDotGovClientID() string
	GetLoginDotGovAccessTokenURL() string
	GetLoginDotGovCertsURL() string
	GetLoginDotGovUserInfoURL() string
	GetLoginDotGovInitialSigninURL() string
	GetLoginDotGovLogoutURL() string
	GetLoginPEM() string
	GetGovernmentEmailDomains() []string
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetLoginDotGovClientID() string {
	return GetEnv("LOGIN_DOT_GOV_CLIENT_ID", "")
}

func (OIDC) GetLoginDotGovAccessTokenURL() string {
	return GetEnv("LOGIN_DOT_GOV_ACCESS_TOKEN_URL", "https://idp.int.identitysandbox.gov/api/openid_connect/token")
}

func (OIDC) GetLoginDotGovCertsURL() string {
	return GetEnv("LOGIN_DOT_GOV_CERTS_URL", "https://idp.int.identitysandbox.gov/api/openid_connect/certs")
}

func (OIDC) GetLoginDotGovUserInfoURL() string {
	return GetEnv("LOGIN_DOT_GOV_USER_INFO_URL", "https://idp.int.identitysandbox.gov/api/openid_connect/userinfo")
}

// GetLoginDotGovInitialSigninURL returns the fully-formed authorization URL
// with NONCE and STATE placeholders still embedded; the sign-in handler
// substitutes both with a signed token before rendering.
func (OIDC) GetLoginDotGovInitialSigninURL() string {
	return GetEnv("LOGIN_DOT_GOV_INITIAL_SIGNIN_URL", "")
}

func (OIDC) GetLoginDotGovLogoutURL() string {
	return GetEnv("LOGIN_DOT_GOV_LOGOUT_URL", "https://idp.int.identitysandbox.gov/openid_connect/logout")
}

// GetLoginPEM returns the RSA private key used for client assertions. The
// deployment tooling often collapses the PEM to a single line; token.NormalizePEM
// restores it before parsing.
func (OIDC) GetLoginPEM() string {
	return GetEnv("LOGIN_PEM", "")
}

func (OIDC) GetGovernmentEmailDomains() []string {
	raw := GetEnv("GOVERNMENT_EMAIL_DOMAINS", ".gov,.mil,.si.edu")
	parts := strings.Split(raw, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			domains = append(domains, p)
		}
	}
	return domains
}
