package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/token"
)

// Placeholders the IdP's pre-built sign-in URL carries.
const (
	noncePlaceholder = "NONCE"
	statePlaceholder = "STATE"
)

const assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// OIDCConfig carries the login.gov endpoints and credentials.
type OIDCConfig struct {
	ClientID         string
	TokenURL         string
	UserInfoURL      string
	CertsURL         string
	InitialSignInURL string
	LogoutURL        string
	PrivateKeyPEM    string
}

// UserInfo is the subset of IdP claims the portal consumes.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// OIDCClient performs the code exchange against login.gov. The token
// endpoint authenticates with a private_key_jwt client assertion rather than
// a client secret.
type OIDCClient struct {
	cfg        OIDCConfig
	signer     *token.RSASigner
	httpClient *http.Client
	verifier   *gooidc.IDTokenVerifier
}

// OIDCOption configures the OIDCClient.
type OIDCOption func(*OIDCClient)

// WithOIDCHTTPClient replaces the transport (primarily for testing).
func WithOIDCHTTPClient(httpClient *http.Client) OIDCOption {
	return func(c *OIDCClient) {
		c.httpClient = httpClient
	}
}

// NewOIDCClient builds the IdP client. The remote key set is fetched lazily
// on first verification, so construction does no I/O.
func NewOIDCClient(ctx context.Context, cfg OIDCConfig, options ...OIDCOption) (*OIDCClient, error) {
	signer, err := token.NewRSASigner(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCClient]")
	}
	c := &OIDCClient{
		cfg:        cfg,
		signer:     signer,
		httpClient: http.DefaultClient,
	}
	for _, opt := range options {
		opt(c)
	}
	if cfg.CertsURL != "" {
		ctx = gooidc.ClientContext(ctx, c.httpClient)
		keySet := gooidc.NewRemoteKeySet(ctx, cfg.CertsURL)
		c.verifier = gooidc.NewVerifier(issuerFromURL(cfg.TokenURL), keySet, &gooidc.Config{
			ClientID: cfg.ClientID,
		})
	}
	return c, nil
}

// SignInURL substitutes the signed state token into the IdP's pre-built
// authorization URL. The same token serves as nonce and state.
func (c *OIDCClient) SignInURL(stateToken string) string {
	signInURL := strings.ReplaceAll(c.cfg.InitialSignInURL, noncePlaceholder, stateToken)
	return strings.ReplaceAll(signInURL, statePlaceholder, stateToken)
}

// LogoutURL builds the IdP logout redirect. The redirect parameter name is
// what login.gov historically accepted from this client registration; do not
// correct it without re-registering.
func (c *OIDCClient) LogoutURL(postLogoutRedirect, state string) string {
	query := url.Values{
		"client_id":                []string{c.cfg.ClientID},
		"post_logout_redirect_api": []string{postLogoutRedirect},
		"state":                    []string{state},
	}
	return c.cfg.LogoutURL + "?" + query.Encode()
}

// ExchangeCode swaps the authorization code for tokens. Any failure maps to
// ErrUnauthorized: a stale or replayed code is an authentication failure,
// not a server error.
func (c *OIDCClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	assertion, err := token.ClientAssertion(c.signer, c.cfg.ClientID, c.cfg.TokenURL)
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCClient.ExchangeCode] client assertion")
	}

	form := url.Values{
		"grant_type":            []string{"authorization_code"},
		"code":                  []string{code},
		"client_assertion_type": []string{assertionType},
		"client_assertion":      []string{assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCClient.ExchangeCode] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.ExchangeCode] token endpoint unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.ExchangeCode] read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errs.ErrUnauthorized, "[OIDCClient.ExchangeCode] token endpoint returned %d", resp.StatusCode)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.ExchangeCode] undecodable token response")
	}
	if tok.AccessToken == "" {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.ExchangeCode] no access token")
	}
	return &tok, nil
}

// VerifyIDToken checks the id_token signature against the IdP's published
// keys. Skipped when no certs URL is configured (tests, e2e bypass).
func (c *OIDCClient) VerifyIDToken(ctx context.Context, tok *oauth2.Token) error {
	if c.verifier == nil {
		return nil
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil
	}
	if _, err := c.verifier.Verify(ctx, rawIDToken); err != nil {
		return errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.VerifyIDToken]")
	}
	return nil
}

// GetUserInfo fetches the IdP's claims for the access token.
func (c *OIDCClient) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[OIDCClient.GetUserInfo] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.GetUserInfo] userinfo unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errs.ErrUnauthorized, "[OIDCClient.GetUserInfo] userinfo returned %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.GetUserInfo] undecodable claims")
	}
	if info.Email == "" || info.Subject == "" {
		return nil, errors.Wrap(errs.ErrUnauthorized, "[OIDCClient.GetUserInfo] claims missing email or sub")
	}
	return &info, nil
}

func issuerFromURL(tokenURL string) string {
	parsed, err := url.Parse(tokenURL)
	if err != nil {
		return tokenURL
	}
	return parsed.Scheme + "://" + parsed.Host
}
