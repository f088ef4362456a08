package sessions

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const contextKey = "portal-session"

// From returns the request's session. The middleware guarantees one exists.
func From(c echo.Context) *Session {
	session, _ := c.Get(contextKey).(*Session)
	return session
}

// Middleware loads the signed session cookie, exposes the session to
// handlers and re-issues the cookie after the handler runs. Re-issuing on
// every authenticated response is what makes the expiry sliding: the
// signature timestamp resets on each request.
func Middleware(codec *Codec, secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := load(c, codec)
			c.Set(contextKey, session)

			err := next(c)

			if session.Modified() || session.SignedIn() {
				write(c, codec, session, secure)
			}
			return err
		}
	}
}

func load(c echo.Context, codec *Codec) *Session {
	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}
	}
	session, err := codec.Decode(cookie.Value)
	if err != nil {
		// expired or tampered cookies both start a fresh session
		log.Debug().Err(err).Msg("session cookie rejected")
		return &Session{}
	}
	return session
}

func write(c echo.Context, codec *Codec, session *Session, secure bool) {
	value, err := codec.Encode(session)
	if err != nil {
		log.Error().Err(err).Msg("session encode failed")
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(codec.Lifetime().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
