package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/notify-gov/admin-portal/internal/config"
	"github.com/notify-gov/admin-portal/internal/requestctx"
	"github.com/notify-gov/admin-portal/sessions"
)

const (
	forwarderHeader = "X-Custom-Forwarder"
	traceIDHeader   = "X-B3-TraceId"
	spanIDHeader    = "X-B3-SpanId"
	cspNonceKey     = "csp-nonce"
)

// Telemetry collectors whitelisted in script-src and connect-src.
var telemetryHosts = []string{
	"https://js-agent.newrelic.com",
	"https://bam.nr-data.net",
}

// permissionsPolicy disables every browser feature the portal never uses.
const permissionsPolicy = "accelerometer=(), ambient-light-sensor=(), autoplay=(), " +
	"battery=(), camera=(), document-domain=(), geolocation=(), gyroscope=(), " +
	"local-fonts=(), magnetometer=(), microphone=(), midi=(), payment=(), " +
	"screen-wake-lock=()"

func (s *Server) initMiddleware() {
	// the host redirect runs pre-router so unknown paths still redirect
	s.echo.Pre(s.betaHostRedirect)

	s.echo.Use(s.traceMiddleware)
	s.echo.Use(s.proxySecretCheck)
	s.echo.Use(s.securityHeaders)
	s.echo.Use(sessions.Middleware(s.codec, s.cfg.GetHTTPProtocol() == "https"))
	s.echo.Use(s.csrfMiddleware())
	s.echo.Use(s.loadUser)
	s.echo.Use(s.resolveCurrent)
}

// betaHostRedirect sends production traffic on any stray hostname to the
// canonical host, preserving path and query.
func (s *Server) betaHostRedirect(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.GetEnvironment() != config.EnvironmentProd {
			return next(c)
		}
		host := hostWithoutPort(c.Request().Host)
		if host == s.cfg.GetBetaHost() {
			return next(c)
		}
		target := fmt.Sprintf("https://%s%s", s.cfg.GetBetaHost(), c.Request().RequestURI)
		return c.Redirect(http.StatusFound, target)
	}
}

// traceMiddleware honors inbound zipkin ids and generates them when absent,
// so every upstream call and log line can be tied to the browser request.
func (s *Server) traceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		trace := requestctx.Trace{
			TraceID: req.Header.Get(traceIDHeader),
			SpanID:  req.Header.Get(spanIDHeader),
		}
		if trace.TraceID == "" {
			trace.TraceID = newTraceID()
		}
		c.Response().Header().Set(traceIDHeader, trace.TraceID)
		c.SetRequest(req.WithContext(requestctx.WithTrace(req.Context(), trace)))
		return next(c)
	}
}

// proxySecretCheck rejects traffic that did not come through the fronting
// proxy. The header must match one of two secrets so they can rotate without
// downtime.
func (s *Server) proxySecretCheck(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.cfg.GetCheckProxyHeader() {
			return next(c)
		}
		supplied := c.Request().Header.Get(forwarderHeader)
		if supplied != "" && (secretsEqual(supplied, s.cfg.GetRouteSecretKey1()) ||
			secretsEqual(supplied, s.cfg.GetRouteSecretKey2())) {
			return next(c)
		}
		return echo.NewHTTPError(http.StatusForbidden, "missing or invalid forwarder secret")
	}
}

func secretsEqual(supplied, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(want)) == 1
}

func (s *Server) securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		nonce := newNonce()
		c.Set(cspNonceKey, nonce)

		header := c.Response().Header()
		header.Set("Content-Security-Policy", s.contentSecurityPolicy(nonce))
		header.Set("X-Frame-Options", "deny")
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("Permissions-Policy", permissionsPolicy)
		if s.cfg.GetHTTPProtocol() == "https" {
			header.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		return next(c)
	}
}

func (s *Server) contentSecurityPolicy(nonce string) string {
	asset := s.cfg.GetAssetDomain()
	logo := s.cfg.GetLogoCDNDomain()
	telemetry := strings.Join(telemetryHosts, " ")
	nonceSrc := fmt.Sprintf("'nonce-%s'", nonce)

	directives := []string{
		joinSources("default-src 'self'", asset),
		"frame-ancestors 'none'",
		"form-action 'self'",
		joinSources("script-src 'self'", asset, "'unsafe-eval'", telemetry, nonceSrc),
		joinSources("connect-src 'self'", telemetry),
		joinSources("style-src 'self'", asset, nonceSrc),
		joinSources("img-src 'self'", asset, logo),
	}
	return strings.Join(directives, "; ")
}

func joinSources(parts ...string) string {
	sources := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			sources = append(sources, p)
		}
	}
	return strings.Join(sources, " ")
}

// cspNonce returns this request's nonce for inline script and style tags.
func cspNonce(c echo.Context) string {
	nonce, _ := c.Get(cspNonceKey).(string)
	return nonce
}

func (s *Server) csrfMiddleware() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:csrf_token,header:X-CSRF-Token",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   s.cfg.GetHTTPProtocol() == "https",
		CookieSameSite: http.SameSiteLaxMode,
		ErrorHandler: func(err error, c echo.Context) error {
			// an expired session explains the missing token; start over
			// at sign-in instead of scaring the user with an error page
			if !sessions.From(c).SignedIn() {
				return c.Redirect(http.StatusFound, routeSignIn)
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "form submission could not be validated")
		},
	})
}

func newNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}

func newTraceID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%x", buf)
}

func hostWithoutPort(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}
