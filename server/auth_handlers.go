package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/notify-gov/admin-portal/auth"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites/redemption"
	"github.com/notify-gov/admin-portal/sessions"
	"github.com/notify-gov/admin-portal/users"
)

func (s *Server) index(c echo.Context) error {
	if currentIdentity(c).Authenticated() {
		return c.Redirect(http.StatusFound, routeAccountsOrDashboard)
	}

	banner := ""
	remaining, err := s.api.RemainingGlobalMessages(c.Request().Context(), s.cfg.GetGlobalServiceMessageLimit())
	if err == nil {
		banner = fmt.Sprintf(`<p>%d messages remaining today.</p>`, remaining)
	} else {
		log.Debug().Err(err).Msg("remaining messages lookup failed")
	}

	tally := ""
	if counts, err := s.api.GetCountOfLiveServicesAndOrganizations(c.Request().Context()); err == nil {
		tally = fmt.Sprintf(`<p>%d services across %d organizations send with Notify.</p>`,
			counts.LiveServices, counts.Organizations)
	} else {
		log.Debug().Err(err).Msg("live counts lookup failed")
	}

	body := fmt.Sprintf(`<h1>%s</h1>%s%s<p><a href="%s">Sign in</a></p>`,
		escape(s.cfg.GetAppName()), banner, tally, routeSignIn)
	return s.render(c, http.StatusOK, "Home", body)
}

// signIn is both ends of the OIDC round-trip: without query parameters it
// starts a sign-in attempt, with code and state it is the IdP callback.
func (s *Server) signIn(c echo.Context) error {
	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code != "" && state != "" {
		return s.signInCallback(c, code, state)
	}
	if currentIdentity(c).Authenticated() {
		return c.Redirect(http.StatusFound, routeAccountsOrDashboard)
	}
	if email := s.auth.E2EBypassEmail(); email != "" {
		return s.e2eSignIn(c, email)
	}

	signInURL, err := s.auth.SignInURL(c.Request().Context(), c.RealIP())
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`<h1>Sign in</h1><p><a href="%s">Sign in with Login.gov</a></p>`,
		escape(signInURL))
	return s.render(c, http.StatusOK, "Sign in", body)
}

func (s *Server) signInCallback(c echo.Context, code, state string) error {
	session := sessions.From(c)

	result, err := s.auth.HandleCallback(c.Request().Context(), code, state)
	switch {
	case errors.Is(err, errs.ErrUserNotFound):
		// invited users without an account finish registration instead
		return c.Redirect(http.StatusFound, routeSetUpProfile+"?state="+url.QueryEscape(state))
	case errors.Is(err, errs.ErrNotGovernmentUser):
		session.AddFlash("error", "You must use a government email address to sign in.")
		return err
	case err != nil:
		return err
	}

	if result.CheckEmail {
		body := `<h1>Check your email</h1><p>We sent you a link to confirm your email address. It expires in one hour.</p>`
		return s.render(c, http.StatusOK, "Check your email", body)
	}

	if result.InviteData != nil {
		session.InvitedUserID = result.InviteData.InvitedUserID
		session.InvitedOrgUserID = result.InviteData.InvitedOrgUserID
		session.Touch()
	}

	dest, err := s.establishSession(c, result.User)
	if err != nil {
		return err
	}
	return s.postSignInRedirect(c, dest)
}

// e2eSignIn bypasses the IdP entirely for end-to-end test runs.
func (s *Server) e2eSignIn(c echo.Context, email string) error {
	user, err := s.api.GetUserByEmail(c.Request().Context(), email)
	if err != nil {
		return err
	}
	dest, err := s.establishSession(c, user)
	if err != nil {
		return err
	}
	return s.postSignInRedirect(c, dest)
}

// establishSession runs terminal activation and binds the browser to the new
// session pin. Any invite markers and partial two-factor state are consumed.
func (s *Server) establishSession(c echo.Context, user *users.User) (*auth.Destination, error) {
	dest, err := s.auth.Activate(c.Request().Context(), user)
	if err != nil {
		return nil, err
	}
	session := sessions.From(c)
	session.SetUser(user.ID, dest.SessionID)
	session.InvitedUserID = ""
	session.InvitedOrgUserID = ""
	session.UserDetails = nil
	session.Touch()
	return dest, nil
}

func (s *Server) postSignInRedirect(c echo.Context, dest *auth.Destination) error {
	if next := c.QueryParam("next"); next != "" &&
		auth.SafeRedirect(next, c.Request().Host, s.cfg.GetHTTPProtocol()) {
		return c.Redirect(http.StatusFound, next)
	}
	switch {
	case dest.ServiceID != "":
		return c.Redirect(http.StatusFound, "/services/"+dest.ServiceID)
	case dest.OrganizationID != "":
		return c.Redirect(http.StatusFound, "/organizations/"+dest.OrganizationID)
	case dest.AddService:
		return c.Redirect(http.StatusFound, routeAddService)
	default:
		return c.Redirect(http.StatusFound, routeAccountsOrDashboard)
	}
}

func (s *Server) signOut(c echo.Context) error {
	session := sessions.From(c)
	logoutURL := s.auth.SignOut(c.Request().Context(), session.UserID)
	session.Clear()
	session.AddFlash("default", "You have been signed out.")
	return c.Redirect(http.StatusFound, logoutURL)
}

func (s *Server) verifyCodePage(c echo.Context) error {
	session := sessions.From(c)
	if session.UserDetails == nil {
		return c.Redirect(http.StatusFound, routeSignIn)
	}
	return s.renderVerifyForm(c, http.StatusOK)
}

func (s *Server) verifyCodeSubmit(c echo.Context) error {
	session := sessions.From(c)
	userID, _ := session.UserDetails["user_id"].(string)
	if userID == "" {
		return c.Redirect(http.StatusFound, routeSignIn)
	}
	ctx := c.Request().Context()

	if s.kv.ExceededRateLimit(ctx, "verify-code-"+userID, 5, time.Minute) {
		session.AddFlash("error", "Too many attempts. Wait a minute and try again.")
		return s.renderVerifyForm(c, http.StatusTooManyRequests)
	}

	if err := s.auth.CheckTwoFactor(ctx, userID, c.FormValue("code")); err != nil {
		session.AddFlash("error", "Code not found. Check your phone and try again.")
		return s.renderVerifyForm(c, http.StatusOK)
	}

	user, err := s.api.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	dest, err := s.establishSession(c, user)
	if err != nil {
		return err
	}
	return s.postSignInRedirect(c, dest)
}

func (s *Server) renderVerifyForm(c echo.Context, status int) error {
	body := fmt.Sprintf(`<h1>Enter the code we texted you</h1>
<form method="post" action="%s">%s
<label for="code">Security code</label>
<input id="code" name="code" autocomplete="one-time-code">
<button type="submit">Continue</button>
</form>`, routeVerify, csrfField(c))
	return s.render(c, status, "Check your phone", body)
}

func (s *Server) verifyEmail(c echo.Context) error {
	session := sessions.From(c)
	result, err := s.auth.VerifyEmailToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		session.AddFlash("error", "The link in your email has expired. Sign in to get a new one.")
		return c.Redirect(http.StatusFound, routeSignIn)
	}
	if result.AlreadyActive {
		session.AddFlash("default", "That verification link has already been used. Sign in again.")
		return c.Redirect(http.StatusFound, routeSignIn)
	}
	if result.TwoFactorRequired {
		session.UserDetails = map[string]any{
			"user_id":       result.User.ID,
			"email_address": result.User.Email,
		}
		session.Touch()
		return c.Redirect(http.StatusFound, routeVerify)
	}

	dest, err := s.establishSession(c, result.User)
	if err != nil {
		return err
	}
	return s.postSignInRedirect(c, dest)
}

// profileForm is invited-user registration. With code and state it is the
// IdP callback leg; with only state it re-renders the form from the bundle
// cached by that leg.
func (s *Server) profileForm(c echo.Context) error {
	code, state := c.QueryParam("code"), c.QueryParam("state")
	if state == "" {
		return errs.ErrNotFound
	}

	email := ""
	if code != "" {
		info, err := s.auth.HandleProfileCallback(c.Request().Context(), code, state)
		if errors.Is(err, errs.ErrInviteWrongUser) {
			sessions.From(c).AddFlash("error", "This invitation is for another email address. Sign out and click the link in your invitation again.")
			return err
		}
		if err != nil {
			return err
		}
		email = info.Email
	}

	body := fmt.Sprintf(`<h1>Set up your profile</h1>
<p>%s</p>
<form method="post" action="%s">%s
<input type="hidden" name="state" value="%s">
<label for="name">Full name</label>
<input id="name" name="name">
<label for="mobile_number">Mobile number</label>
<input id="mobile_number" name="mobile_number">
<button type="submit">Continue</button>
</form>`, escape(email), routeSetUpProfile, csrfField(c), escape(state))
	return s.render(c, http.StatusOK, "Set up your profile", body)
}

func (s *Server) profileSubmit(c echo.Context) error {
	session := sessions.From(c)
	ctx := c.Request().Context()

	email, userUUID, _, err := s.auth.ExchangeBundle(ctx, c.FormValue("state"))
	if err != nil {
		session.AddFlash("error", "Your registration expired. Click the link in your invitation to start again.")
		return c.Redirect(http.StatusFound, routeSignIn)
	}

	outcome, err := s.redeemer.CompleteProfile(ctx, redemption.Profile{
		Email:            email,
		LoginUUID:        userUUID,
		Name:             c.FormValue("name"),
		MobileNumber:     c.FormValue("mobile_number"),
		InvitedUserID:    session.InvitedUserID,
		InvitedOrgUserID: session.InvitedOrgUserID,
	})
	if errors.Is(err, errs.ErrInviteNotRedeemable) {
		session.AddFlash("error", "Your invitation is no longer valid. Ask your team to invite you again.")
		return err
	}
	if err != nil {
		return err
	}

	user, err := s.api.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if _, err := s.establishSession(c, user); err != nil {
		return err
	}
	switch {
	case outcome.ServiceID != "":
		return c.Redirect(http.StatusFound, "/services/"+outcome.ServiceID+"/templates")
	case outcome.OrganizationID != "":
		return c.Redirect(http.StatusFound, "/organizations/"+outcome.OrganizationID)
	default:
		return c.Redirect(http.StatusFound, routeAccountsOrDashboard)
	}
}

func (s *Server) addServiceFirstTime(c echo.Context) error {
	body := `<h1>Add your first service</h1><p>You are not a member of any service yet. Create one to start sending notifications.</p>`
	return s.render(c, http.StatusOK, "Add a service", body)
}
