package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/notify-gov/admin-portal/auth"
	"github.com/notify-gov/admin-portal/auth/repofakes"
	"github.com/notify-gov/admin-portal/cache"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/token"
	"github.com/notify-gov/admin-portal/users"
)

const (
	testSecret = "application-secret"
	testSalt   = "dangerous-salt"
)

func testPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

type harness struct {
	svc *auth.Service
	api *repofakes.FakeAPI
	mr  *miniredis.Miniredis
}

// newHarness wires the auth service against a fake backend and a stub IdP.
// The IdP accepts any code and answers userinfo with the given claims.
func newHarness(t *testing.T, idpEmail, idpSub string, opts ...auth.Option) *harness {
	t.Helper()

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			if r.Form.Get("code") == "bad-code" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
			require.NotEmpty(t, r.Form.Get("client_assertion"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "idp-access-token",
				"token_type":   "Bearer",
			})
		case "/userinfo":
			require.Equal(t, "Bearer idp-access-token", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":            idpSub,
				"email":          idpEmail,
				"email_verified": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(idp.Close)

	oidcClient, err := auth.NewOIDCClient(context.Background(), auth.OIDCConfig{
		ClientID:         "urn:gov:gsa:openidconnect.profiles:sp:sso:notify",
		TokenURL:         idp.URL + "/token",
		UserInfoURL:      idp.URL + "/userinfo",
		InitialSignInURL: idp.URL + "/authorize?nonce=NONCE&state=STATE",
		LogoutURL:        idp.URL + "/logout",
		PrivateKeyPEM:    testPEM(t),
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	kv := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), true)
	api := repofakes.NewFakeAPI()

	svc, err := auth.NewService(api, oidcClient, kv,
		token.NewSerializer(testSecret, testSalt),
		auth.Config{
			GovernmentDomains:  []string{".gov", ".mil", ".si.edu"},
			EmailTokenMaxAge:   time.Hour,
			RevalidationWindow: 90 * 24 * time.Hour,
			AdminBaseURL:       "https://beta.notify.gov",
		}, opts...)
	require.NoError(t, err)

	return &harness{svc: svc, api: api, mr: mr}
}

func activeUser(email string) *users.User {
	return &users.User{
		ID:                     "u1",
		Name:                   "Casey Operator",
		Email:                  email,
		AuthType:               users.SMSAuth,
		MobileNumber:           "+15555550100",
		State:                  users.StateActive,
		EmailAccessValidatedAt: time.Now().Add(-24 * time.Hour),
	}
}

func TestIsGovernmentEmail(t *testing.T) {
	h := newHarness(t, "", "")

	require.True(t, h.svc.IsGovernmentEmail("casey@agency.gov"))
	require.True(t, h.svc.IsGovernmentEmail("casey@sub.agency.GOV"))
	require.True(t, h.svc.IsGovernmentEmail("casey@navy.mil"))
	require.True(t, h.svc.IsGovernmentEmail("casey@si.edu"))
	require.False(t, h.svc.IsGovernmentEmail("casey@gmail.com"))
	require.False(t, h.svc.IsGovernmentEmail("casey@gov.example.com"))
	require.False(t, h.svc.IsGovernmentEmail("not-an-email"))
}

func TestSignInURL(t *testing.T) {
	h := newHarness(t, "", "")

	signInURL, err := h.svc.SignInURL(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	require.NotContains(t, signInURL, "NONCE")
	require.NotContains(t, signInURL, "STATE")

	// the same signed token fills both placeholders
	parts := strings.SplitN(signInURL, "nonce=", 2)
	require.Len(t, parts, 2)
	nonce := strings.SplitN(parts[1], "&", 2)[0]
	require.Contains(t, signInURL, "state="+nonce)

	require.True(t, h.mr.Exists("login-state-"+nonce))
}

// startSignIn begins a sign-in attempt and returns the registered state.
func startSignIn(t *testing.T, h *harness) string {
	t.Helper()
	signInURL, err := h.svc.SignInURL(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	parts := strings.SplitN(signInURL, "state=", 2)
	require.Len(t, parts, 2)
	return strings.SplitN(parts[1], "&", 2)[0]
}

func TestHandleCallback(t *testing.T) {
	t.Run("fresh user signs straight in", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		h.api.Users["u1"] = activeUser("casey@agency.gov")
		state := startSignIn(t, h)

		result, err := h.svc.HandleCallback(context.Background(), "good-code", state)
		require.NoError(t, err)
		require.False(t, result.CheckEmail)
		require.Equal(t, "u1", result.User.ID)
	})

	t.Run("stale email diverts into revalidation", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		user := activeUser("casey@agency.gov")
		user.EmailAccessValidatedAt = time.Now().Add(-120 * 24 * time.Hour)
		h.api.Users["u1"] = user

		result, err := h.svc.HandleCallback(context.Background(), "good-code", startSignIn(t, h))
		require.NoError(t, err)
		require.True(t, result.CheckEmail)
		require.Nil(t, result.User)
		require.Equal(t, []string{"casey@agency.gov"}, h.api.SentEmails)
	})

	t.Run("never-validated email also diverts", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		user := activeUser("casey@agency.gov")
		user.EmailAccessValidatedAt = time.Time{}
		h.api.Users["u1"] = user

		result, err := h.svc.HandleCallback(context.Background(), "good-code", startSignIn(t, h))
		require.NoError(t, err)
		require.True(t, result.CheckEmail)
	})

	t.Run("non-government email is rejected", func(t *testing.T) {
		h := newHarness(t, "casey@gmail.com", "login-uuid-1")

		_, err := h.svc.HandleCallback(context.Background(), "good-code", startSignIn(t, h))
		require.ErrorIs(t, err, errs.ErrNotGovernmentUser)
	})

	t.Run("IdP rejection maps to unauthorized", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")

		_, err := h.svc.HandleCallback(context.Background(), "bad-code", startSignIn(t, h))
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("unknown user saves the exchange bundle for profile setup", func(t *testing.T) {
		h := newHarness(t, "new@agency.gov", "login-uuid-9")
		state := startSignIn(t, h)

		_, err := h.svc.HandleCallback(context.Background(), "good-code", state)
		require.ErrorIs(t, err, errs.ErrUserNotFound)
		require.True(t, h.mr.Exists("user_email-"+state))
		require.True(t, h.mr.Exists("user_uuid-"+state))
	})

	t.Run("malformed state is rejected", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		h.api.Users["u1"] = activeUser("casey@agency.gov")

		_, err := h.svc.HandleCallback(context.Background(), "good-code", "not-a-signed-token")
		require.ErrorIs(t, err, errs.ErrBadSignature)
	})

	t.Run("well-signed but unregistered state is rejected", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		h.api.Users["u1"] = activeUser("casey@agency.gov")

		forged := h.svc.StateToken("203.0.113.7")
		_, err := h.svc.HandleCallback(context.Background(), "good-code", forged)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})

	t.Run("state is single use", func(t *testing.T) {
		h := newHarness(t, "casey@agency.gov", "login-uuid-1")
		h.api.Users["u1"] = activeUser("casey@agency.gov")
		state := startSignIn(t, h)

		_, err := h.svc.HandleCallback(context.Background(), "good-code", state)
		require.NoError(t, err)
		require.False(t, h.mr.Exists("login-state-"+state))

		_, err = h.svc.HandleCallback(context.Background(), "good-code", state)
		require.ErrorIs(t, err, errs.ErrUnauthorized)
	})
}

func TestVerifyEmailToken(t *testing.T) {
	t.Run("sms-auth user is routed to two-factor", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		user.EmailAccessValidatedAt = time.Now().Add(-120 * 24 * time.Hour)
		h.api.Users["u1"] = user

		emailToken, err := h.svc.EmailToken("u1")
		require.NoError(t, err)

		result, err := h.svc.VerifyEmailToken(context.Background(), emailToken)
		require.NoError(t, err)
		require.True(t, result.TwoFactorRequired)
		require.Equal(t, []string{"u1:sms"}, h.api.SentCodes)

		// the proof of possession was recorded
		refreshed, err := h.api.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		require.WithinDuration(t, time.Now(), refreshed.EmailAccessValidatedAt, time.Minute)
	})

	t.Run("email-auth user needs no second factor", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		user.AuthType = users.EmailAuth
		user.State = users.StatePending
		h.api.Users["u1"] = user

		emailToken, err := h.svc.EmailToken("u1")
		require.NoError(t, err)

		result, err := h.svc.VerifyEmailToken(context.Background(), emailToken)
		require.NoError(t, err)
		require.False(t, result.TwoFactorRequired)
		require.Empty(t, h.api.SentCodes)
	})

	t.Run("already-validated active user is told to sign in again", func(t *testing.T) {
		h := newHarness(t, "", "")
		h.api.Users["u1"] = activeUser("casey@agency.gov")

		emailToken, err := h.svc.EmailToken("u1")
		require.NoError(t, err)

		result, err := h.svc.VerifyEmailToken(context.Background(), emailToken)
		require.NoError(t, err)
		require.True(t, result.AlreadyActive)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		h := newHarness(t, "", "")
		emailToken, err := h.svc.EmailToken("u1")
		require.NoError(t, err)

		_, err = h.svc.VerifyEmailToken(context.Background(), emailToken+"x")
		require.ErrorIs(t, err, errs.ErrBadSignature)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		h := newHarness(t, "", "")
		h.api.Users["u1"] = activeUser("casey@agency.gov")

		stale := token.NewSerializer(testSecret, testSalt,
			token.WithSerializerNowTime(func() time.Time { return past }))
		payload, err := json.Marshal(map[string]string{"user_id": "u1", "secret_code": "c"})
		require.NoError(t, err)

		_, err = h.svc.VerifyEmailToken(context.Background(), stale.Dumps(payload))
		require.ErrorIs(t, err, errs.ErrSignatureExpired)
	})
}

func TestCheckTwoFactor(t *testing.T) {
	h := newHarness(t, "", "")
	h.api.AcceptedCodes["123456"] = true

	require.NoError(t, h.svc.CheckTwoFactor(context.Background(), "u1", "123456"))
	require.ErrorIs(t, h.svc.CheckTwoFactor(context.Background(), "u1", "000000"), errs.ErrUnauthorized)
}

func TestActivate(t *testing.T) {
	t.Run("pending service invite is redeemed", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		h.api.Users["u1"] = user
		h.api.ServiceInvites["casey@agency.gov"] = &invites.InvitedUser{
			ID:          "inv-1",
			ServiceID:   "s1",
			Email:       "casey@agency.gov",
			Permissions: []string{"send_messages"},
			Status:      invites.StatusPending,
		}

		dest, err := h.svc.Activate(context.Background(), user)
		require.NoError(t, err)
		require.Equal(t, "s1", dest.ServiceID)
		require.False(t, dest.AddService)
		require.NotEmpty(t, dest.SessionID)

		require.Equal(t, []string{"u1"}, h.api.ServiceMembers["s1"])
		require.Equal(t, invites.StatusAccepted, h.api.ServiceInvites["casey@agency.gov"].Status)

		pinned, err := h.api.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, dest.SessionID, pinned.CurrentSessionID)
	})

	t.Run("already part of service is swallowed", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		h.api.Users["u1"] = user
		h.api.AlreadyMemberOf = "s1"
		h.api.ServiceInvites["casey@agency.gov"] = &invites.InvitedUser{
			ID:        "inv-1",
			ServiceID: "s1",
			Email:     "casey@agency.gov",
			Status:    invites.StatusPending,
		}

		dest, err := h.svc.Activate(context.Background(), user)
		require.NoError(t, err)
		require.Equal(t, "s1", dest.ServiceID)
		require.Equal(t, invites.StatusAccepted, h.api.ServiceInvites["casey@agency.gov"].Status)
	})

	t.Run("org invite is redeemed when no service invite exists", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		h.api.Users["u1"] = user
		h.api.OrgInvites["casey@agency.gov"] = &invites.InvitedOrgUser{
			ID:             "org-inv-1",
			OrganizationID: "o1",
			Email:          "casey@agency.gov",
			Status:         invites.StatusPending,
		}

		dest, err := h.svc.Activate(context.Background(), user)
		require.NoError(t, err)
		require.Equal(t, "o1", dest.OrganizationID)
		require.Equal(t, []string{"u1"}, h.api.OrgMembers["o1"])
	})

	t.Run("pending user with no invites lands on add-service", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		user.State = users.StatePending
		h.api.Users["u1"] = user

		dest, err := h.svc.Activate(context.Background(), user)
		require.NoError(t, err)
		require.True(t, dest.AddService)

		activated, err := h.api.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, users.StateActive, activated.State)
	})

	t.Run("existing member skips the first-time page", func(t *testing.T) {
		h := newHarness(t, "", "")
		user := activeUser("casey@agency.gov")
		user.ServiceIDs = []string{"s9"}
		h.api.Users["u1"] = user

		dest, err := h.svc.Activate(context.Background(), user)
		require.NoError(t, err)
		require.False(t, dest.AddService)
	})
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, "", "")
	h.api.Users["u1"] = activeUser("casey@agency.gov")
	h.api.Users["u1"].CurrentSessionID = "sess-1"

	logoutURL := h.svc.SignOut(context.Background(), "u1")
	require.Contains(t, logoutURL, "post_logout_redirect_api=")
	require.Contains(t, logoutURL, "client_id=")

	cleared, err := h.api.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, cleared.CurrentSessionID)
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		name string
		next string
		want bool
	}{
		{"relative path", "/services/s1", true},
		{"relative with query", "/services/s1?page=2", true},
		{"same host absolute", "https://beta.notify.gov/services/s1", true},
		{"other host", "https://evil.example.com/services/s1", false},
		{"scheme downgrade", "http://beta.notify.gov/services/s1", false},
		{"scheme-relative", "//evil.example.com/x", false},
		{"empty", "", false},
		{"unparsable", "https://%zz", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, auth.SafeRedirect(tc.next, "beta.notify.gov", "https"))
		})
	}
}
