// Package auth implements the sign-in state machine: OIDC code exchange
// against login.gov, the government-email gate, email revalidation, two-factor
// fallback, account activation with pending-invite pickup, and sign-out.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/notify-gov/admin-portal/cache"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/token"
	"github.com/notify-gov/admin-portal/users"
)

// Config carries the knobs the sign-in flow needs from the environment.
type Config struct {
	// GovernmentDomains are the email suffixes allowed to sign in.
	GovernmentDomains []string
	// EmailTokenMaxAge bounds the life of an emailed verification link.
	EmailTokenMaxAge time.Duration
	// RevalidationWindow is how long a proof of email possession stays fresh.
	RevalidationWindow time.Duration
	// AdminBaseURL is the portal's own external URL, used in emailed links.
	AdminBaseURL string
	// E2ETestEmail, when set, bypasses the IdP entirely. Never set outside
	// end-to-end test environments.
	E2ETestEmail string
}

// Service drives the sign-in flow.
type Service struct {
	api        API
	oidc       *OIDCClient
	state      *stateStore
	serializer *token.Serializer
	cfg        Config
	nowTime    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService wires the sign-in flow. api and kv are required; oidc may be
// nil only when the e2e bypass is configured.
func NewService(api API, oidc *OIDCClient, kv *cache.Client, serializer *token.Serializer, cfg Config, options ...Option) (*Service, error) {
	if api == nil {
		return nil, errors.New("[auth.NewService] api is required")
	}
	if kv == nil {
		return nil, errors.New("[auth.NewService] kv is required")
	}
	if serializer == nil {
		return nil, errors.New("[auth.NewService] serializer is required")
	}
	if oidc == nil && cfg.E2ETestEmail == "" {
		return nil, errors.New("[auth.NewService] oidc is required")
	}
	s := &Service{
		api:        api,
		oidc:       oidc,
		state:      &stateStore{kv: kv},
		serializer: serializer,
		cfg:        cfg,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// E2EBypassEmail returns the configured end-to-end test account, empty in
// real environments.
func (s *Service) E2EBypassEmail() string {
	return s.cfg.E2ETestEmail
}

// StateToken signs the caller's remote address into the OIDC state/nonce
// value. The token proves the callback came from the browser that started
// the flow.
func (s *Service) StateToken(remoteAddr string) string {
	return s.serializer.Dumps([]byte(remoteAddr))
}

// SignInURL starts a sign-in attempt: record the state in the KV store and
// return the IdP authorization URL with state and nonce substituted.
func (s *Service) SignInURL(ctx context.Context, remoteAddr string) (string, error) {
	stateToken := s.StateToken(remoteAddr)
	if err := s.state.BeginLogin(ctx, stateToken); err != nil {
		return "", err
	}
	return s.oidc.SignInURL(stateToken), nil
}

// BeginInviteLogin starts an invited sign-in attempt, carrying the invite
// context across the IdP round-trip.
func (s *Service) BeginInviteLogin(ctx context.Context, remoteAddr string, data InviteData) (string, error) {
	data.Nonce = uuid.New().String()
	stateToken := s.StateToken(remoteAddr)
	if err := s.state.BeginInvite(ctx, stateToken, data); err != nil {
		return "", err
	}
	return s.oidc.SignInURL(stateToken), nil
}

// IsGovernmentEmail reports whether the address sits on an allowed domain.
func (s *Service) IsGovernmentEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, suffix := range s.cfg.GovernmentDomains {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if domain == strings.TrimPrefix(suffix, ".") || strings.HasSuffix(domain, suffix) {
			return true
		}
	}
	return false
}

// CallbackResult is the outcome of the OIDC callback leg.
type CallbackResult struct {
	// User is set when sign-in may proceed to activation.
	User *users.User
	// CheckEmail is set when a revalidation email was sent instead; the
	// flow suspends until the user follows the emailed link.
	CheckEmail bool
	// InviteData carries the invite context when the flow started from an
	// invitation email.
	InviteData *InviteData
}

// HandleCallback completes the IdP round-trip: verify and consume the state,
// exchange the code, read the claims, gate on government email, and either
// hand back the user or divert into email revalidation.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if _, err := s.serializer.Loads(state, inviteStateTTL); err != nil {
		return nil, errors.Wrap(err, "[Service.HandleCallback] state token")
	}
	if err := s.state.ConsumeLogin(ctx, state); err != nil {
		return nil, err
	}

	tok, err := s.oidc.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.oidc.VerifyIDToken(ctx, tok); err != nil {
		return nil, err
	}
	info, err := s.oidc.GetUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	if !s.IsGovernmentEmail(info.Email) {
		return nil, errors.Wrapf(errs.ErrNotGovernmentUser, "[Service.HandleCallback] %q", info.Email)
	}

	inviteData, err := s.state.InviteData(ctx, state)
	if err != nil {
		log.Warn().Err(err).Msg("invite context unavailable, continuing as plain sign-in")
		inviteData = nil
	}

	user, err := s.api.GetUserByUUIDAndEmail(ctx, info.Subject, info.Email)
	if err != nil {
		var apiErr *notifyapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			// unknown users go through invited-user registration
			invitedEmail := ""
			if inviteData != nil {
				invitedEmail = inviteData.Email
			}
			if err := s.state.SaveExchange(ctx, state, info.Email, info.Subject, invitedEmail); err != nil {
				return nil, err
			}
			return nil, errors.Wrap(errs.ErrUserNotFound, "[Service.HandleCallback]")
		}
		return nil, err
	}

	if user.EmailAccessStale(s.cfg.RevalidationWindow, s.nowTime()) {
		if err := s.SendRevalidationEmail(ctx, user); err != nil {
			return nil, err
		}
		return &CallbackResult{CheckEmail: true, InviteData: inviteData}, nil
	}
	return &CallbackResult{User: user, InviteData: inviteData}, nil
}

// HandleProfileCallback is the first leg of invited-user registration: it
// consumes the single-use authorization code, checks the IdP email against
// the invitation target, and caches the result under state so the second
// leg (the submitted profile form) never re-exchanges the code.
func (s *Service) HandleProfileCallback(ctx context.Context, code, state string) (*UserInfo, error) {
	if _, err := s.serializer.Loads(state, inviteStateTTL); err != nil {
		return nil, errors.Wrap(err, "[Service.HandleProfileCallback] state token")
	}
	if err := s.state.ConsumeLogin(ctx, state); err != nil {
		return nil, err
	}

	tok, err := s.oidc.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.oidc.VerifyIDToken(ctx, tok); err != nil {
		return nil, err
	}
	info, err := s.oidc.GetUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	inviteData, err := s.state.InviteData(ctx, state)
	if err != nil {
		return nil, err
	}
	invitedEmail := ""
	if inviteData != nil {
		invitedEmail = inviteData.Email
		if !strings.EqualFold(invitedEmail, info.Email) {
			return nil, errors.Wrapf(errs.ErrInviteWrongUser, "[Service.HandleProfileCallback] signed in as %q", info.Email)
		}
	}

	if err := s.state.SaveExchange(ctx, state, info.Email, info.Subject, invitedEmail); err != nil {
		return nil, err
	}
	return info, nil
}

// ExchangeBundle reads back the bundle saved by the first registration leg.
func (s *Service) ExchangeBundle(ctx context.Context, state string) (email, userUUID, invitedEmail string, err error) {
	return s.state.Exchange(ctx, state)
}

// emailTokenPayload is what the emailed verification link carries.
type emailTokenPayload struct {
	UserID     string `json:"user_id"`
	SecretCode string `json:"secret_code"`
}

// EmailToken builds the signed token for a revalidation link.
func (s *Service) EmailToken(userID string) (string, error) {
	payload, err := json.Marshal(emailTokenPayload{
		UserID:     userID,
		SecretCode: uuid.New().String(),
	})
	if err != nil {
		return "", errors.Wrap(err, "[Service.EmailToken] marshal")
	}
	return s.serializer.Dumps(payload), nil
}

// SendRevalidationEmail mails the user a fresh proof-of-possession link.
func (s *Service) SendRevalidationEmail(ctx context.Context, user *users.User) error {
	emailToken, err := s.EmailToken(user.ID)
	if err != nil {
		return err
	}
	link := strings.TrimRight(s.cfg.AdminBaseURL, "/") + "/verify-email/" + emailToken
	if err := s.api.SendVerificationEmail(ctx, user.ID, user.Email, link); err != nil {
		return errors.Wrap(err, "[Service.SendRevalidationEmail]")
	}
	return nil
}

// EmailVerification is the outcome of following an emailed link.
type EmailVerification struct {
	User *users.User
	// TwoFactorRequired is set for SMS-auth users: a code was texted and
	// the flow continues at the two-factor prompt.
	TwoFactorRequired bool
	// AlreadyActive is set when the link was already consumed; the caller
	// redirects to sign-in rather than re-activating.
	AlreadyActive bool
}

// VerifyEmailToken consumes an emailed verification link.
func (s *Service) VerifyEmailToken(ctx context.Context, emailToken string) (*EmailVerification, error) {
	raw, err := s.serializer.Loads(emailToken, s.cfg.EmailTokenMaxAge)
	if err != nil {
		return nil, err
	}
	var payload emailTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Service.VerifyEmailToken] undecodable payload")
	}

	user, err := s.api.GetUser(ctx, payload.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmailToken]")
	}

	if err := s.api.SetEmailAccessValidatedAt(ctx, user.ID, s.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmailToken] record validation")
	}

	if user.State == users.StateActive && !user.EmailAccessStale(s.cfg.RevalidationWindow, s.nowTime()) {
		return &EmailVerification{User: user, AlreadyActive: true}, nil
	}

	if user.AuthType == users.EmailAuth {
		return &EmailVerification{User: user}, nil
	}

	if err := s.api.SendVerifyCode(ctx, user.ID, "sms", ""); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmailToken] send sms code")
	}
	return &EmailVerification{User: user, TwoFactorRequired: true}, nil
}

// CheckTwoFactor validates the texted code.
func (s *Service) CheckTwoFactor(ctx context.Context, userID, code string) error {
	if err := s.api.CheckVerifyCode(ctx, userID, code, "sms"); err != nil {
		return errors.Wrap(errs.ErrUnauthorized, "[Service.CheckTwoFactor]")
	}
	return nil
}

// Destination is where a freshly signed-in user lands.
type Destination struct {
	ServiceID      string
	OrganizationID string
	AddService     bool
	// SessionID is the new current_session_id pinned to this browser.
	SessionID string
}

// Activate is the terminal sign-in helper: pick up any pending invitation
// addressed to the user's email, activate pending accounts, and pin the
// session. The backend is authoritative; membership conflicts are swallowed.
func (s *Service) Activate(ctx context.Context, user *users.User) (*Destination, error) {
	dest := &Destination{AddService: true}

	if invite, err := s.lookupServiceInvite(ctx, user.Email); invite != nil {
		s.redeemServiceInvite(ctx, user, invite, dest)
	} else if err != nil {
		return nil, err
	} else if orgInvite, err := s.lookupOrgInvite(ctx, user.Email); orgInvite != nil {
		s.redeemOrgInvite(ctx, user, orgInvite, dest)
	} else if err != nil {
		return nil, err
	}

	if dest.AddService && len(user.ServiceIDs) > 0 {
		// existing members never see the first-time page
		dest.AddService = false
	}

	if user.IsPending() {
		if _, err := s.api.ActivateUser(ctx, user.ID); err != nil {
			return nil, errors.Wrap(err, "[Service.Activate] activate user")
		}
	}

	dest.SessionID = uuid.New().String()
	if err := s.api.UpdateCurrentSessionID(ctx, user.ID, dest.SessionID); err != nil {
		return nil, errors.Wrap(err, "[Service.Activate] pin session")
	}
	return dest, nil
}

func (s *Service) lookupServiceInvite(ctx context.Context, email string) (*invites.InvitedUser, error) {
	invite, err := s.api.GetInvitedUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Service] lookup service invite")
	}
	if invite == nil || invite.Status != invites.StatusPending {
		return nil, nil
	}
	return invite, nil
}

func (s *Service) lookupOrgInvite(ctx context.Context, email string) (*invites.InvitedOrgUser, error) {
	invite, err := s.api.GetInvitedOrgUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Service] lookup org invite")
	}
	if invite == nil || invite.Status != invites.StatusPending {
		return nil, nil
	}
	return invite, nil
}

func (s *Service) redeemServiceInvite(ctx context.Context, user *users.User, invite *invites.InvitedUser, dest *Destination) {
	if err := s.api.AddUserToService(ctx, invite.ServiceID, user.ID, invite.Permissions, invite.FolderPermissions); err != nil {
		if !isAlreadyMember(err) {
			log.Warn().Err(err).Str("service_id", invite.ServiceID).Msg("invite attach failed")
			return
		}
	}
	if err := s.api.AcceptInvite(ctx, invite.ServiceID, invite.ID); err != nil {
		log.Warn().Err(err).Str("invite_id", invite.ID).Msg("invite accept failed")
	}
	dest.ServiceID = invite.ServiceID
	dest.AddService = false
}

func (s *Service) redeemOrgInvite(ctx context.Context, user *users.User, invite *invites.InvitedOrgUser, dest *Destination) {
	if err := s.api.AddUserToOrganization(ctx, invite.OrganizationID, user.ID); err != nil {
		if !isAlreadyMember(err) {
			log.Warn().Err(err).Str("organization_id", invite.OrganizationID).Msg("org invite attach failed")
			return
		}
	}
	if _, err := s.api.UpdateOrgInviteStatus(ctx, invite.OrganizationID, invite.ID, invites.StatusAccepted); err != nil {
		log.Warn().Err(err).Str("invite_id", invite.ID).Msg("org invite accept failed")
	}
	dest.OrganizationID = invite.OrganizationID
	dest.AddService = false
}

// SignOut clears the backend session pin (best-effort) and returns the IdP
// logout URL to redirect to.
func (s *Service) SignOut(ctx context.Context, userID string) string {
	if userID != "" {
		if err := s.api.ClearCurrentSessionID(ctx, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("clearing session pin failed")
		}
	}
	postLogout := strings.TrimRight(s.cfg.AdminBaseURL, "/") + "/sign-in"
	return s.oidc.LogoutURL(postLogout, uuid.New().String())
}

// SafeRedirect reports whether next may be followed after sign-in: it must
// be a same-host, same-scheme or relative URL. Everything else falls back to
// the accounts chooser.
func SafeRedirect(next, host, scheme string) bool {
	if next == "" {
		return false
	}
	parsed, err := url.Parse(next)
	if err != nil {
		return false
	}
	if parsed.Scheme != "" && parsed.Scheme != scheme {
		return false
	}
	if parsed.Host != "" && parsed.Host != host {
		return false
	}
	return strings.HasPrefix(parsed.Path, "/") && !strings.HasPrefix(parsed.Path, "//")
}

func isNotFound(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// isAlreadyMember matches the backend's idempotence signal on team addition.
func isAlreadyMember(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "already part of service")
}
