package sessions_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/sessions"
)

const (
	testSecret = "application-secret"
	testSalt   = "cookie-session"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := sessions.NewCodec(testSecret, testSalt, 30*time.Minute)

	original := &sessions.Session{
		UserID:           "u1",
		CurrentSessionID: "sess-1",
		ServiceID:        "s1",
	}
	value, err := codec.Encode(original)
	require.NoError(t, err)

	decoded, err := codec.Decode(value)
	require.NoError(t, err)
	require.Equal(t, "u1", decoded.UserID)
	require.Equal(t, "sess-1", decoded.CurrentSessionID)
	require.Equal(t, "s1", decoded.ServiceID)
}

func TestCodecRejectsTampering(t *testing.T) {
	codec := sessions.NewCodec(testSecret, testSalt, 30*time.Minute)

	value, err := codec.Encode(&sessions.Session{UserID: "u1"})
	require.NoError(t, err)

	_, err = codec.Decode(value + "x")
	require.ErrorIs(t, err, errs.ErrBadSignature)

	other := sessions.NewCodec("different-secret", testSalt, 30*time.Minute)
	otherValue, err := other.Encode(&sessions.Session{UserID: "u1"})
	require.NoError(t, err)
	_, err = codec.Decode(otherValue)
	require.ErrorIs(t, err, errs.ErrBadSignature)
}

func TestFlashes(t *testing.T) {
	session := &sessions.Session{}
	session.AddFlash("default", "Invite accepted")
	session.AddFlash("error", "Something failed")

	flashes := session.ConsumeFlashes()
	require.Len(t, flashes, 2)
	require.Equal(t, "Invite accepted", flashes[0].Message)

	require.Empty(t, session.ConsumeFlashes(), "flashes render once")
}

func TestClearKeepsFlashes(t *testing.T) {
	session := &sessions.Session{UserID: "u1", ServiceID: "s1"}
	session.AddFlash("default", "You have been signed out")
	session.Clear()

	require.False(t, session.SignedIn())
	require.Empty(t, session.ServiceID)
	require.Len(t, session.Flashes, 1)
}

func TestMiddleware(t *testing.T) {
	codec := sessions.NewCodec(testSecret, testSalt, 30*time.Minute)

	newServer := func(handler echo.HandlerFunc) *echo.Echo {
		e := echo.New()
		e.Use(sessions.Middleware(codec, false))
		e.GET("/", handler)
		return e
	}

	t.Run("fresh request gets an empty session and no cookie", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			require.NotNil(t, sessions.From(c))
			require.False(t, sessions.From(c).SignedIn())
			return c.NoContent(http.StatusOK)
		})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("modified session issues a cookie that round-trips", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			sessions.From(c).SetUser("u1", "sess-1")
			return c.NoContent(http.StatusOK)
		})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, sessions.CookieName, cookies[0].Name)
		require.True(t, cookies[0].HttpOnly)

		decoded, err := codec.Decode(cookies[0].Value)
		require.NoError(t, err)
		require.Equal(t, "u1", decoded.UserID)
	})

	t.Run("signed-in session slides on every response", func(t *testing.T) {
		e := newServer(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		value, err := codec.Encode(&sessions.Session{UserID: "u1"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: value})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Len(t, rec.Result().Cookies(), 1, "cookie must be re-issued")
	})

	t.Run("expired cookie starts a fresh session", func(t *testing.T) {
		value := encodeAt(t, time.Now().Add(-time.Hour), &sessions.Session{UserID: "u1"})

		e := newServer(func(c echo.Context) error {
			require.False(t, sessions.From(c).SignedIn())
			return c.NoContent(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: value})
		e.ServeHTTP(httptest.NewRecorder(), req)
	})
}

func encodeAt(t *testing.T, at time.Time, session *sessions.Session) string {
	t.Helper()
	codec := sessions.NewCodec(testSecret, testSalt, 30*time.Minute,
		sessions.WithCodecNowTime(func() time.Time { return at }))
	value, err := codec.Encode(session)
	require.NoError(t, err)
	return value
}
