// Package server is the HTTP front door: routing, the security envelope,
// per-request authorization, and the handlers that compose the auth flow,
// the invitation state machine and the backend client.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/notify-gov/admin-portal/auth"
	"github.com/notify-gov/admin-portal/cache"
	"github.com/notify-gov/admin-portal/internal/config"
	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/invites/redemption"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/sessions"
)

type Server struct {
	echo     *echo.Echo
	cfg      config.Config
	api      *notifyapi.Client
	auth     *auth.Service
	redeemer *redemption.Redeemer
	codec    *sessions.Codec
	kv       *cache.Client
}

func New(cfg config.Config, api *notifyapi.Client, authService *auth.Service, redeemer *redemption.Redeemer, codec *sessions.Codec, kv *cache.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		cfg:      cfg,
		api:      api,
		auth:     authService,
		redeemer: redeemer,
		codec:    codec,
		kv:       kv,
	}

	e.HTTPErrorHandler = s.httpErrorHandler
	s.initMiddleware()
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// httpErrorHandler maps the error taxonomy onto status codes once, for every
// handler. Upstream statuses outside {401, 403, 404, 410} render as 500 so
// backend internals never leak to the browser.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	var httpErr *echo.HTTPError
	var apiErr *notifyapi.APIError

	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
	case errors.As(err, &apiErr):
		status = mapUpstreamStatus(apiErr.StatusCode)
	case errors.Is(err, errs.ErrUnauthorized),
		errors.Is(err, errs.ErrSessionMismatch),
		errors.Is(err, errs.ErrInviteNotRedeemable):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrServiceInactive),
		errors.Is(err, errs.ErrNotGovernmentUser),
		errors.Is(err, errs.ErrInviteWrongUser):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrInviteToken),
		errors.Is(err, errs.ErrBadSignature),
		errors.Is(err, errs.ErrSignatureExpired):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrGone):
		status = http.StatusGone
	}

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Int("status", status).Str("path", c.Request().URL.Path).Msg("request failed")

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.HTML(status, errorPage(status))
}

func mapUpstreamStatus(status int) int {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return status
	default:
		return http.StatusInternalServerError
	}
}
