package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/notify-gov/admin-portal/auth"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/sessions"
)

func (s *Server) acceptServiceInvite(c echo.Context) error {
	session := sessions.From(c)
	ctx := c.Request().Context()

	outcome, err := s.redeemer.RedeemService(ctx, c.Param("token"), currentIdentity(c).User)
	if err != nil {
		return s.flashInviteError(c, err)
	}

	if outcome.Cancelled {
		body := "<h1>This invitation has been cancelled</h1><p>Ask the person who invited you to send a new invitation.</p>"
		return s.render(c, http.StatusOK, "Invitation cancelled", body)
	}

	if outcome.Register {
		session.InvitedUserID = outcome.Invite.ID
		session.Touch()
		signInURL, err := s.auth.BeginInviteLogin(ctx, c.RealIP(), auth.InviteData{
			InvitedUserID: outcome.Invite.ID,
			Email:         outcome.Invite.Email,
		})
		if err != nil {
			return err
		}
		return c.Redirect(http.StatusFound, signInURL)
	}

	session.InvitedUserID = ""
	session.Touch()
	return c.Redirect(http.StatusFound, "/services/"+outcome.ServiceID)
}

func (s *Server) acceptOrgInvite(c echo.Context) error {
	session := sessions.From(c)
	ctx := c.Request().Context()

	outcome, err := s.redeemer.RedeemOrg(ctx, c.Param("token"), currentIdentity(c).User)
	if err != nil {
		return s.flashInviteError(c, err)
	}

	if outcome.Cancelled {
		body := "<h1>This invitation has been cancelled</h1><p>Ask the person who invited you to send a new invitation.</p>"
		return s.render(c, http.StatusOK, "Invitation cancelled", body)
	}

	if outcome.Register {
		session.InvitedOrgUserID = outcome.OrgInvite.ID
		session.Touch()
		signInURL, err := s.auth.BeginInviteLogin(ctx, c.RealIP(), auth.InviteData{
			InvitedOrgUserID: outcome.OrgInvite.ID,
			Email:            outcome.OrgInvite.Email,
		})
		if err != nil {
			return err
		}
		return c.Redirect(http.StatusFound, signInURL)
	}

	session.InvitedOrgUserID = ""
	session.Touch()
	return c.Redirect(http.StatusFound, "/organizations/"+outcome.OrganizationID)
}

// flashInviteError turns redemption failures into the user-facing banner
// plus the right status: a bad token restarts at sign-in, the rest render
// their error page.
func (s *Server) flashInviteError(c echo.Context, err error) error {
	session := sessions.From(c)
	switch {
	case errors.Is(err, errs.ErrInviteToken):
		session.AddFlash("error", "Your invitation link is not valid. Ask the person who invited you to send it again.")
		return c.Redirect(http.StatusFound, routeSignIn)
	case errors.Is(err, errs.ErrInviteWrongUser):
		session.AddFlash("error", "You are signed in as a different user. Sign out and click the link in your invitation again.")
		return err
	case errors.Is(err, errs.ErrInviteNotRedeemable):
		session.AddFlash("error", "This invitation has expired or been cancelled. Ask your team to invite you again.")
		return err
	default:
		return err
	}
}
