package redemption_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/invites/redemption"
	"github.com/notify-gov/admin-portal/invites/redemption/repofakes"
	"github.com/notify-gov/admin-portal/services"
	"github.com/notify-gov/admin-portal/users"
)

func newRedeemer(t *testing.T, api *repofakes.FakeAPI) *redemption.Redeemer {
	t.Helper()
	r, err := redemption.NewRedeemer(api)
	require.NoError(t, err)
	return r
}

func pendingInvite() *invites.InvitedUser {
	return &invites.InvitedUser{
		ID:          "inv-1",
		ServiceID:   "s1",
		FromUserID:  "manager-1",
		Email:       "casey@agency.gov",
		Permissions: []string{"send_messages", "manage_templates"},
		AuthType:    string(users.SMSAuth),
		Status:      invites.StatusPending,
	}
}

func existingUser() *users.User {
	return &users.User{
		ID:           "u1",
		Name:         "Casey Operator",
		Email:        "casey@agency.gov",
		AuthType:     users.EmailAuth,
		MobileNumber: "+15555550100",
		State:        users.StateActive,
	}
}

func TestRedeemService(t *testing.T) {
	t.Run("bad token", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		r := newRedeemer(t, api)

		_, err := r.RedeemService(context.Background(), "no-such-token", nil)
		require.ErrorIs(t, err, errs.ErrInviteToken)
	})

	t.Run("signed in as a different email", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		r := newRedeemer(t, api)

		_, err := r.RedeemService(context.Background(), "tok", &users.User{Email: "other@agency.gov"})
		require.ErrorIs(t, err, errs.ErrInviteWrongUser)
	})

	t.Run("signed in as the invited email is fine", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		api.Users["u1"] = existingUser()
		api.Services["s1"] = &services.Service{ID: "s1", Active: true}
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", &users.User{Email: "CASEY@agency.gov"})
		require.NoError(t, err)
		require.Equal(t, "s1", outcome.ServiceID)
	})

	t.Run("cancelled invitation has no side effects", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		invite := pendingInvite()
		invite.Status = invites.StatusCancelled
		api.Invites["tok"] = invite
		api.Users["u1"] = existingUser()
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.True(t, outcome.Cancelled)
		require.Empty(t, api.ServiceMembers)
	})

	t.Run("accepted invitation is idempotent", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		invite := pendingInvite()
		invite.Status = invites.StatusAccepted
		api.Invites["tok"] = invite
		api.Users["u1"] = existingUser()
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.False(t, outcome.Cancelled)
		require.Equal(t, "s1", outcome.ServiceID)
		require.Empty(t, api.ServiceMembers, "no user or service state may change")
		require.Empty(t, api.UserUpdates)
	})

	t.Run("expired invitation cannot be redeemed", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		invite := pendingInvite()
		invite.Status = invites.StatusExpired
		api.Invites["tok"] = invite
		r := newRedeemer(t, api)

		_, err := r.RedeemService(context.Background(), "tok", nil)
		require.ErrorIs(t, err, errs.ErrInviteNotRedeemable)
	})

	t.Run("pending invitation for an existing user attaches and accepts", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		api.Users["u1"] = existingUser()
		api.Services["s1"] = &services.Service{ID: "s1", Active: true}
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, "s1", outcome.ServiceID)
		require.False(t, outcome.Register)

		require.Equal(t, []string{"u1"}, api.ServiceMembers["s1"])
		require.Equal(t, invites.StatusAccepted, api.Invites["tok"].Status)
		require.WithinDuration(t, time.Now(), api.Users["u1"].EmailAccessValidatedAt, time.Minute)
	})

	t.Run("pending invitation for an unknown email routes to registration", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.True(t, outcome.Register)
		require.Empty(t, api.ServiceMembers)
	})

	t.Run("existing member is not re-added", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		user := existingUser()
		user.ServiceIDs = []string{"s1"}
		api.Users["u1"] = user
		r := newRedeemer(t, api)

		outcome, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, "s1", outcome.ServiceID)
		require.Empty(t, api.ServiceMembers["s1"])
		require.Equal(t, invites.StatusAccepted, api.Invites["tok"].Status)
	})
}

func TestAuthTypeReconciliation(t *testing.T) {
	setup := func(emailAuthCapable bool) (*repofakes.FakeAPI, *redemption.Redeemer) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		api.Users["u1"] = existingUser()
		service := &services.Service{ID: "s1", Active: true}
		if emailAuthCapable {
			service.Permissions = []string{services.PermissionEmailAuth}
		}
		api.Services["s1"] = service
		return api, newRedeemer(t, api)
	}

	t.Run("invite auth type applies on an email-auth service", func(t *testing.T) {
		api, r := setup(true)

		_, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, users.SMSAuth, api.Users["u1"].AuthType)
	})

	t.Run("service without the capability keeps the user's setting", func(t *testing.T) {
		api, r := setup(false)

		_, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, users.EmailAuth, api.Users["u1"].AuthType)
	})

	t.Run("sms auth needs a mobile number", func(t *testing.T) {
		api, r := setup(true)
		api.Users["u1"].MobileNumber = ""

		_, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, users.EmailAuth, api.Users["u1"].AuthType)
	})

	t.Run("platform admins are exempt", func(t *testing.T) {
		api, r := setup(true)
		api.Users["u1"].PlatformAdmin = true

		_, err := r.RedeemService(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, users.EmailAuth, api.Users["u1"].AuthType)
	})
}

func TestRedeemOrg(t *testing.T) {
	orgInvite := func(status string) *invites.InvitedOrgUser {
		return &invites.InvitedOrgUser{
			ID:             "org-inv-1",
			OrganizationID: "o1",
			InvitedByID:    "manager-1",
			Email:          "casey@agency.gov",
			Status:         status,
		}
	}

	t.Run("pending invitation attaches and accepts", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.OrgInvites["tok"] = orgInvite(invites.StatusPending)
		api.Users["u1"] = existingUser()
		r := newRedeemer(t, api)

		outcome, err := r.RedeemOrg(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.Equal(t, "o1", outcome.OrganizationID)
		require.Equal(t, []string{"u1"}, api.OrgMembers["o1"])
		require.Equal(t, invites.StatusAccepted, api.OrgInvites["tok"].Status)
	})

	t.Run("wrong signed-in email is rejected", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.OrgInvites["tok"] = orgInvite(invites.StatusPending)
		r := newRedeemer(t, api)

		_, err := r.RedeemOrg(context.Background(), "tok", &users.User{Email: "other@agency.gov"})
		require.ErrorIs(t, err, errs.ErrInviteWrongUser)
	})

	t.Run("unknown email routes to registration", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.OrgInvites["tok"] = orgInvite(invites.StatusPending)
		r := newRedeemer(t, api)

		outcome, err := r.RedeemOrg(context.Background(), "tok", nil)
		require.NoError(t, err)
		require.True(t, outcome.Register)
	})
}

func TestCompleteProfile(t *testing.T) {
	t.Run("new user is created, activated and attached", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		r := newRedeemer(t, api)

		outcome, err := r.CompleteProfile(context.Background(), redemption.Profile{
			Email:         "casey@agency.gov",
			LoginUUID:     "login-uuid-1",
			Name:          "Casey Operator",
			MobileNumber:  "+15555550100",
			InvitedUserID: "inv-1",
		})
		require.NoError(t, err)
		require.Equal(t, "s1", outcome.ServiceID)

		user, err := api.GetUserByEmail(context.Background(), "casey@agency.gov")
		require.NoError(t, err)
		require.Equal(t, users.StateActive, user.State)
		require.Equal(t, []string{user.ID}, api.ServiceMembers["s1"])
		require.Equal(t, invites.StatusAccepted, api.Invites["tok"].Status)
	})

	t.Run("existing user is updated, not recreated", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["tok"] = pendingInvite()
		api.Users["u1"] = existingUser()
		r := newRedeemer(t, api)

		_, err := r.CompleteProfile(context.Background(), redemption.Profile{
			Email:         "casey@agency.gov",
			Name:          "Casey Q Operator",
			MobileNumber:  "+15555550199",
			InvitedUserID: "inv-1",
		})
		require.NoError(t, err)
		require.Len(t, api.Users, 1)
		require.Equal(t, "Casey Q Operator", api.Users["u1"].Name)
		require.Equal(t, "+15555550199", api.Users["u1"].MobileNumber)
	})

	t.Run("cancelled invitation discovered late aborts", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		invite := pendingInvite()
		invite.Status = invites.StatusCancelled
		api.Invites["tok"] = invite
		r := newRedeemer(t, api)

		_, err := r.CompleteProfile(context.Background(), redemption.Profile{
			Email:         "casey@agency.gov",
			Name:          "Casey Operator",
			InvitedUserID: "inv-1",
		})
		require.ErrorIs(t, err, errs.ErrInviteNotRedeemable)
	})

	t.Run("invite is fetched by record id, not emailed token", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.Invites["emailed-token-value"] = pendingInvite()
		r := newRedeemer(t, api)

		outcome, err := r.CompleteProfile(context.Background(), redemption.Profile{
			Email:         "casey@agency.gov",
			Name:          "Casey Operator",
			InvitedUserID: "inv-1",
		})
		require.NoError(t, err)
		require.Equal(t, "s1", outcome.ServiceID)

		_, err = r.CompleteProfile(context.Background(), redemption.Profile{
			Email:         "casey@agency.gov",
			Name:          "Casey Operator",
			InvitedUserID: "emailed-token-value",
		})
		require.ErrorIs(t, err, errs.ErrInviteToken)
	})

	t.Run("org registration attaches to the organization", func(t *testing.T) {
		api := repofakes.NewFakeAPI()
		api.OrgInvites["tok"] = &invites.InvitedOrgUser{
			ID:             "org-inv-1",
			OrganizationID: "o1",
			Email:          "casey@agency.gov",
			Status:         invites.StatusPending,
		}
		r := newRedeemer(t, api)

		outcome, err := r.CompleteProfile(context.Background(), redemption.Profile{
			Email:            "casey@agency.gov",
			Name:             "Casey Operator",
			InvitedOrgUserID: "org-inv-1",
		})
		require.NoError(t, err)
		require.Equal(t, "o1", outcome.OrganizationID)
		require.Len(t, api.OrgMembers["o1"], 1)
	})
}
