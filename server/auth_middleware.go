package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/internal/requestctx"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/sessions"
	"github.com/notify-gov/admin-portal/users"
)

const identityKey = "portal-identity"

// currentIdentity returns the request's resolved identity. loadUser
// guarantees one exists, possibly anonymous.
func currentIdentity(c echo.Context) *requestctx.Identity {
	identity, _ := c.Get(identityKey).(*requestctx.Identity)
	return identity
}

// loadUser resolves the signed-in user and enforces session pinning: the
// cookie's current_session_id must match the backend's, so a newer sign-in
// anywhere logs this browser out on its next request.
func (s *Server) loadUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := &requestctx.Identity{}
		c.Set(identityKey, identity)
		req := c.Request()
		c.SetRequest(req.WithContext(requestctx.WithIdentity(req.Context(), identity)))

		session := sessions.From(c)
		if session.SignedIn() {
			user, err := s.api.GetUser(c.Request().Context(), session.UserID)
			switch {
			case err != nil && isUpstreamNotFound(err):
				session.Clear()
			case err != nil:
				return err
			case user.CurrentSessionID != session.CurrentSessionID:
				log.Warn().Str("user_id", user.ID).Msg("session id no longer current, signing out")
				session.Clear()
			default:
				identity.User = user
			}
		}
		return next(c)
	}
}

// resolveCurrent picks out the current service and organization for the
// request: service from the URL with a session fallback, organization from
// the URL only. On a successful response the choice is persisted back to the
// session so service-relative pages keep working without a URL id.
func (s *Server) resolveCurrent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if strings.Contains(c.Request().URL.Path, "/static/") {
			return next(c)
		}

		identity := currentIdentity(c)
		session := sessions.From(c)
		ctx := c.Request().Context()

		serviceID := c.Param("service_id")
		serviceFromURL := serviceID != ""
		if serviceID == "" {
			serviceID = session.ServiceID
		}
		if serviceID != "" {
			service, err := s.api.GetService(ctx, serviceID)
			if err != nil {
				return mapResolutionError(err)
			}
			identity.Service = service
		}

		organizationID := c.Param("org_id")
		if organizationID != "" {
			organization, err := s.api.GetOrganization(ctx, organizationID)
			if err != nil {
				return mapResolutionError(err)
			}
			identity.Organization = organization
		}

		err := next(c)

		status := c.Response().Status
		if err == nil && status >= http.StatusOK && status < http.StatusMultipleChoices {
			if serviceFromURL {
				session.ServiceID = serviceID
				session.OrganizationID = ""
				session.Touch()
			} else if organizationID != "" {
				session.OrganizationID = organizationID
				session.ServiceID = ""
				session.Touch()
			}
		}
		return err
	}
}

// mapResolutionError keeps the contract that an unknown id is a 404 page and
// every other upstream failure is a 500, whatever status the backend sent.
func mapResolutionError(err error) error {
	if isUpstreamNotFound(err) {
		return errs.ErrNotFound
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Policy is the authorization descriptor attached to a route at startup.
type Policy struct {
	// Required permission tags; any one of them grants access.
	Required []string
	// RestrictAdmin removes the platform-admin bypass for this view.
	RestrictAdmin bool
	// AllowOrgUser also admits members of the service's parent organization.
	AllowOrgUser bool
}

// requirePermissions enforces a Policy against the current service or
// organization. Mis-annotated routes are programmer errors and panic:
// unknown permission names at startup, a missing scope at request time.
func (s *Server) requirePermissions(policy Policy) echo.MiddlewareFunc {
	for _, perm := range policy.Required {
		if _, ok := users.KnownPermissions[perm]; !ok {
			panic(fmt.Sprintf("unknown permission %q in route policy", perm))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := currentIdentity(c)
			if !identity.Authenticated() {
				return errs.ErrUnauthorized
			}
			if identity.Service == nil && identity.Organization == nil {
				panic("route policy requires a current service or organization")
			}
			user := identity.User

			if user.PlatformAdmin && !policy.RestrictAdmin {
				return next(c)
			}

			if identity.Organization != nil {
				if user.BelongsToOrganization(identity.Organization.ID) {
					return next(c)
				}
				return errs.ErrForbidden
			}

			serviceID := identity.Service.ID
			if len(policy.Required) == 0 && user.BelongsToService(serviceID) {
				return next(c)
			}
			if len(policy.Required) > 0 && user.HasPermissionForService(serviceID, policy.Required...) {
				return next(c)
			}
			if policy.AllowOrgUser && identity.Service.OrganizationID != "" &&
				user.BelongsToOrganization(identity.Service.OrganizationID) {
				return next(c)
			}
			return errs.ErrForbidden
		}
	}
}

// requireUser admits any signed-in user. Used for account-level pages with
// no service or organization scope.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentIdentity(c).Authenticated() {
			return errs.ErrUnauthorized
		}
		return next(c)
	}
}

// requirePlatformAdmin is the stricter gate for admin-only views.
func (s *Server) requirePlatformAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := currentIdentity(c)
		if !identity.Authenticated() {
			return errs.ErrUnauthorized
		}
		if !identity.PlatformAdmin() {
			return errs.ErrForbidden
		}
		return next(c)
	}
}

func isUpstreamNotFound(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
