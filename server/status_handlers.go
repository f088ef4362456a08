package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/notify-gov/admin-portal/cache"
)

// status is the deep healthcheck. Load balancers pass elb=1 or simple=1 and
// get a bare OK without hitting the backend or the credential gate.
func (s *Server) status(c echo.Context) error {
	if c.QueryParam("elb") == "1" || c.QueryParam("simple") == "1" {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	if err := s.checkStatusCredentials(c); err != nil {
		return err
	}

	backend, err := s.api.GetStatus(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "backend unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"backend": backend,
	})
}

func (s *Server) redisStatus(c echo.Context) error {
	if !s.kv.Enabled() {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "redis": "disabled"})
	}

	ctx := c.Request().Context()
	key := "status-probe-" + time.Now().UTC().Format("20060102150405")
	if err := s.kv.Set(ctx, key, []byte("ok"), time.Minute, cache.RaiseOnError()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "error", "redis": "write failed"})
	}
	if _, err := s.kv.Get(ctx, key, cache.RaiseOnError()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "error", "redis": "read failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "redis": "ok"})
}

func (s *Server) checkStatusCredentials(c echo.Context) error {
	wantUser := s.cfg.GetStatusPageUsername()
	wantHash := s.cfg.GetStatusPagePasswordHash()
	if wantUser == "" || wantHash == "" {
		// no credentials configured means the deep check stays private
		return echo.NewHTTPError(http.StatusNotFound, "status page not configured")
	}

	username, password, ok := c.Request().BasicAuth()
	if !ok || username != wantUser ||
		bcrypt.CompareHashAndPassword([]byte(wantHash), []byte(password)) != nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="status"`)
		return echo.NewHTTPError(http.StatusUnauthorized, "credentials required")
	}
	return nil
}

func (s *Server) securityTxt(c echo.Context) error {
	const body = `Contact: mailto:notify-support@gsa.gov
Policy: https://www.gsa.gov/vulnerability-disclosure-policy
Preferred-Languages: en
`
	return c.String(http.StatusOK, body)
}
