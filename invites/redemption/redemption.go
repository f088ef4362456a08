// Package redemption drives the invitation redemption state machine for
// service and organization invitations.
package redemption

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/services"
	"github.com/notify-gov/admin-portal/users"
)

// API is the slice of the backend client the redemption flow depends on.
type API interface {
	CheckInviteToken(ctx context.Context, inviteToken string) (*invites.InvitedUser, error)
	CheckOrgInviteToken(ctx context.Context, inviteToken string) (*invites.InvitedOrgUser, error)
	GetInvitedUser(ctx context.Context, inviteID string) (*invites.InvitedUser, error)
	GetInvitedOrgUser(ctx context.Context, inviteID string) (*invites.InvitedOrgUser, error)
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
	CreateUser(ctx context.Context, fields map[string]any) (*users.User, error)
	UpdateUser(ctx context.Context, userID string, fields map[string]any) (*users.User, error)
	ActivateUser(ctx context.Context, userID string) (*users.User, error)
	SetEmailAccessValidatedAt(ctx context.Context, userID string, at time.Time) error
	GetService(ctx context.Context, serviceID string) (*services.Service, error)
	AddUserToService(ctx context.Context, serviceID, userID string, permissions, folderPermissions []string) error
	AddUserToOrganization(ctx context.Context, organizationID, userID string) error
	AcceptInvite(ctx context.Context, serviceID, inviteID string) error
	UpdateOrgInviteStatus(ctx context.Context, organizationID, inviteID, status string) (*invites.InvitedOrgUser, error)
}

// Redeemer drives invitation redemption for both invite kinds.
type Redeemer struct {
	api     API
	nowTime func() time.Time
}

// RedeemerOption configures the Redeemer.
type RedeemerOption func(*Redeemer)

// WithNowTime sets the time source (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RedeemerOption {
	return func(r *Redeemer) {
		r.nowTime = nowFunc
	}
}

// NewRedeemer wires the redemption flow.
func NewRedeemer(api API, options ...RedeemerOption) (*Redeemer, error) {
	if api == nil {
		return nil, errors.New("[redemption.NewRedeemer] api is required")
	}
	r := &Redeemer{api: api, nowTime: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Outcome says what the handler should do after a redemption attempt.
type Outcome struct {
	// Invite / OrgInvite carry the redeemed invitation.
	Invite    *invites.InvitedUser
	OrgInvite *invites.InvitedOrgUser

	// Cancelled renders the cancelled-invitation page, no side effects.
	Cancelled bool
	// Register routes to invited-user registration: the email matches no
	// existing account.
	Register bool
	// ServiceID / OrganizationID name the destination dashboard.
	ServiceID      string
	OrganizationID string
}

// RedeemService resolves a service-invitation token. currentUser may be nil
// for anonymous callers; a signed-in caller with a different email is
// rejected so invitations cannot be hijacked by an open browser session.
func (r *Redeemer) RedeemService(ctx context.Context, inviteToken string, currentUser *users.User) (*Outcome, error) {
	invite, err := r.api.CheckInviteToken(ctx, inviteToken)
	if err != nil {
		return nil, errors.Wrap(errs.ErrInviteToken, "[Redeemer.RedeemService]")
	}

	if currentUser != nil && !strings.EqualFold(currentUser.Email, invite.Email) {
		return nil, errors.Wrapf(errs.ErrInviteWrongUser, "[Redeemer.RedeemService] signed in as %q", currentUser.Email)
	}

	outcome := &Outcome{Invite: invite, ServiceID: invite.ServiceID}
	switch invite.Status {
	case invites.StatusCancelled:
		outcome.Cancelled = true
		return outcome, nil
	case invites.StatusAccepted:
		// idempotent: no state changes, straight to the dashboard
		return outcome, nil
	case invites.StatusPending:
		return outcome, r.acceptServiceInvite(ctx, invite, outcome)
	default:
		return nil, errors.Wrapf(errs.ErrInviteNotRedeemable, "[Redeemer.RedeemService] status %q", invite.Status)
	}
}

func (r *Redeemer) acceptServiceInvite(ctx context.Context, invite *invites.InvitedUser, outcome *Outcome) error {
	user, err := r.api.GetUserByEmail(ctx, invite.Email)
	if err != nil {
		if isNotFound(err) {
			outcome.Register = true
			return nil
		}
		return errors.Wrap(err, "[Redeemer] lookup invited email")
	}

	if err := r.api.SetEmailAccessValidatedAt(ctx, user.ID, r.nowTime()); err != nil {
		return errors.Wrap(err, "[Redeemer] record email validation")
	}
	if err := r.api.AcceptInvite(ctx, invite.ServiceID, invite.ID); err != nil {
		return errors.Wrap(err, "[Redeemer] accept invite")
	}

	if user.BelongsToService(invite.ServiceID) {
		return nil
	}

	if err := r.reconcileAuthType(ctx, user, invite); err != nil {
		return err
	}

	if err := r.api.AddUserToService(ctx, invite.ServiceID, user.ID, invite.Permissions, invite.FolderPermissions); err != nil {
		if !isAlreadyMember(err) {
			return errors.Wrap(err, "[Redeemer] add to service")
		}
	}
	log.Info().
		Str("user_id", user.ID).
		Str("service_id", invite.ServiceID).
		Str("invited_by", invite.FromUserID).
		Strs("permissions", invite.Permissions).
		Msg("invited user joined service")
	return nil
}

// reconcileAuthType aligns the user's second factor with the invitation when
// the service supports email auth. Platform admins keep their setting, and
// sms_auth only applies to users who actually have a mobile number.
func (r *Redeemer) reconcileAuthType(ctx context.Context, user *users.User, invite *invites.InvitedUser) error {
	if user.PlatformAdmin || invite.AuthType == "" {
		return nil
	}
	service, err := r.api.GetService(ctx, invite.ServiceID)
	if err != nil {
		return errors.Wrap(err, "[Redeemer] fetch service for auth reconciliation")
	}
	if !service.HasPermission(services.PermissionEmailAuth) {
		return nil
	}
	if invite.AuthType == string(users.SMSAuth) && user.MobileNumber == "" {
		return nil
	}
	if string(user.AuthType) == invite.AuthType {
		return nil
	}
	if _, err := r.api.UpdateUser(ctx, user.ID, map[string]any{"auth_type": invite.AuthType}); err != nil {
		return errors.Wrap(err, "[Redeemer] update auth type")
	}
	return nil
}

// RedeemOrg resolves an organization-invitation token.
func (r *Redeemer) RedeemOrg(ctx context.Context, inviteToken string, currentUser *users.User) (*Outcome, error) {
	invite, err := r.api.CheckOrgInviteToken(ctx, inviteToken)
	if err != nil {
		return nil, errors.Wrap(errs.ErrInviteToken, "[Redeemer.RedeemOrg]")
	}

	if currentUser != nil && !strings.EqualFold(currentUser.Email, invite.Email) {
		return nil, errors.Wrapf(errs.ErrInviteWrongUser, "[Redeemer.RedeemOrg] signed in as %q", currentUser.Email)
	}

	outcome := &Outcome{OrgInvite: invite, OrganizationID: invite.OrganizationID}
	switch invite.Status {
	case invites.StatusCancelled:
		outcome.Cancelled = true
		return outcome, nil
	case invites.StatusAccepted:
		return outcome, nil
	case invites.StatusPending:
		return outcome, r.acceptOrgInvite(ctx, invite, outcome)
	default:
		return nil, errors.Wrapf(errs.ErrInviteNotRedeemable, "[Redeemer.RedeemOrg] status %q", invite.Status)
	}
}

func (r *Redeemer) acceptOrgInvite(ctx context.Context, invite *invites.InvitedOrgUser, outcome *Outcome) error {
	user, err := r.api.GetUserByEmail(ctx, invite.Email)
	if err != nil {
		if isNotFound(err) {
			outcome.Register = true
			return nil
		}
		return errors.Wrap(err, "[Redeemer] lookup invited email")
	}

	if err := r.api.SetEmailAccessValidatedAt(ctx, user.ID, r.nowTime()); err != nil {
		return errors.Wrap(err, "[Redeemer] record email validation")
	}
	if _, err := r.api.UpdateOrgInviteStatus(ctx, invite.OrganizationID, invite.ID, invites.StatusAccepted); err != nil {
		return errors.Wrap(err, "[Redeemer] accept org invite")
	}

	if user.BelongsToOrganization(invite.OrganizationID) {
		return nil
	}
	if err := r.api.AddUserToOrganization(ctx, invite.OrganizationID, user.ID); err != nil {
		return errors.Wrap(err, "[Redeemer] add to organization")
	}
	log.Info().
		Str("user_id", user.ID).
		Str("organization_id", invite.OrganizationID).
		Str("invited_by", invite.InvitedByID).
		Msg("invited user joined organization")
	return nil
}

// Profile is the submitted registration form from /set-up-your-profile.
type Profile struct {
	Email        string
	LoginUUID    string
	Name         string
	MobileNumber string
	// Exactly one of these is set for invited registrations.
	InvitedUserID    string
	InvitedOrgUserID string
}

// CompleteProfile is the second registration leg: create or update the user
// record, activate it, and attach it to the inviting service/organization.
func (r *Redeemer) CompleteProfile(ctx context.Context, profile Profile) (*Outcome, error) {
	user, err := r.api.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		if !isNotFound(err) {
			return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] lookup")
		}
		// the password is random and never used: sign-in is OIDC-only
		user, err = r.api.CreateUser(ctx, map[string]any{
			"name":          profile.Name,
			"email_address": profile.Email,
			"mobile_number": profile.MobileNumber,
			"login_uuid":    profile.LoginUUID,
			"password":      uuid.New().String(),
			"auth_type":     string(users.SMSAuth),
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] create user")
		}
	} else {
		fields := map[string]any{"name": profile.Name}
		if profile.MobileNumber != "" {
			fields["mobile_number"] = profile.MobileNumber
		}
		if user, err = r.api.UpdateUser(ctx, user.ID, fields); err != nil {
			return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] update user")
		}
	}

	if err := r.api.SetEmailAccessValidatedAt(ctx, user.ID, r.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] record email validation")
	}
	if user.IsPending() {
		if user, err = r.api.ActivateUser(ctx, user.ID); err != nil {
			return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] activate")
		}
	}

	outcome := &Outcome{}
	switch {
	case profile.InvitedUserID != "":
		// the session carries the invite record id, not the emailed token
		invite, err := r.api.GetInvitedUser(ctx, profile.InvitedUserID)
		if err != nil {
			return nil, errors.Wrap(errs.ErrInviteToken, "[Redeemer.CompleteProfile]")
		}
		if invites.Terminal(invite.Status) && invite.Status != invites.StatusAccepted {
			return nil, errors.Wrapf(errs.ErrInviteNotRedeemable, "[Redeemer.CompleteProfile] status %q", invite.Status)
		}
		if err := r.api.AddUserToService(ctx, invite.ServiceID, user.ID, invite.Permissions, invite.FolderPermissions); err != nil {
			if !isAlreadyMember(err) {
				return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] add to service")
			}
		}
		if invite.Status == invites.StatusPending {
			if err := r.api.AcceptInvite(ctx, invite.ServiceID, invite.ID); err != nil {
				log.Warn().Err(err).Str("invite_id", invite.ID).Msg("invite accept failed")
			}
		}
		outcome.ServiceID = invite.ServiceID
	case profile.InvitedOrgUserID != "":
		invite, err := r.api.GetInvitedOrgUser(ctx, profile.InvitedOrgUserID)
		if err != nil {
			return nil, errors.Wrap(errs.ErrInviteToken, "[Redeemer.CompleteProfile]")
		}
		if invites.Terminal(invite.Status) && invite.Status != invites.StatusAccepted {
			return nil, errors.Wrapf(errs.ErrInviteNotRedeemable, "[Redeemer.CompleteProfile] status %q", invite.Status)
		}
		if err := r.api.AddUserToOrganization(ctx, invite.OrganizationID, user.ID); err != nil {
			return nil, errors.Wrap(err, "[Redeemer.CompleteProfile] add to organization")
		}
		if invite.Status == invites.StatusPending {
			if _, err := r.api.UpdateOrgInviteStatus(ctx, invite.OrganizationID, invite.ID, invites.StatusAccepted); err != nil {
				log.Warn().Err(err).Str("invite_id", invite.ID).Msg("org invite accept failed")
			}
		}
		outcome.OrganizationID = invite.OrganizationID
	}
	return outcome, nil
}

func isNotFound(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func isAlreadyMember(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "already part of service")
}
