package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	routeSignIn              = "/sign-in"
	routeSignOut             = "/sign-out"
	routeVerify              = "/verify"
	routeVerifyEmail         = "/verify-email/:token"
	routeSetUpProfile        = "/set-up-your-profile"
	routeAccounts            = "/accounts"
	routeAccountsOrDashboard = "/accounts-or-dashboard"
	routeAddService          = "/add-service"
)

func (s *Server) initRoutes() {
	e := s.echo

	e.GET("/", s.index)
	e.GET(routeSignIn, s.signIn)
	e.GET(routeSignOut, s.signOut)
	e.GET(routeVerify, s.verifyCodePage)
	e.POST(routeVerify, s.verifyCodeSubmit)
	e.GET(routeVerifyEmail, s.verifyEmail)
	e.GET(routeSetUpProfile, s.profileForm)
	e.POST(routeSetUpProfile, s.profileSubmit)

	e.GET(routeAccounts, s.accounts, s.requireUser)
	e.GET(routeAccountsOrDashboard, s.accountsOrDashboard, s.requireUser)
	e.GET(routeAddService, s.addServiceFirstTime, s.requireUser)

	// renamed routes keep permanent redirects so old bookmarks survive
	e.GET("/services", redirectTo(http.StatusMovedPermanently, routeAccounts))
	e.GET("/services-or-dashboard", redirectTo(http.StatusFound, routeAccountsOrDashboard))

	e.GET("/services/:service_id", s.serviceDashboard,
		s.requirePermissions(Policy{AllowOrgUser: true}))
	e.GET("/services/:service_id/daily-stats.json", s.dailyStats,
		s.requirePermissions(Policy{Required: []string{"view_activity"}, AllowOrgUser: true}))
	e.GET("/services/:service_id/daily-stats-by-user.json", s.dailyStatsByUser,
		s.requirePermissions(Policy{Required: []string{"view_activity"}, AllowOrgUser: true}))
	e.GET("/services/:service_id/template-usage", s.templateUsage,
		s.requirePermissions(Policy{Required: []string{"view_activity"}}))
	e.GET("/services/:service_id/usage", s.serviceUsage,
		s.requirePermissions(Policy{Required: []string{"manage_settings"}, AllowOrgUser: true}))
	e.GET("/services/:service_id/templates", s.serviceTemplates,
		s.requirePermissions(Policy{}))
	e.GET("/services/:service_id/notification/:notification_id", s.notificationDetail,
		s.requirePermissions(Policy{Required: []string{"view_activity"}}))
	e.GET("/services/:service_id/download-notifications.csv", s.downloadNotifications,
		s.requirePermissions(Policy{Required: []string{"view_activity"}}))
	e.GET("/services/:service_id/api-keys", s.apiKeys,
		s.requirePermissions(Policy{Required: []string{"manage_api_keys"}, RestrictAdmin: true}))

	e.GET("/organizations", s.organizationsIndex, s.requirePlatformAdmin)
	e.GET("/organizations/add", s.addOrganizationForm, s.requirePlatformAdmin)
	e.POST("/organizations/add", s.addOrganizationSubmit, s.requirePlatformAdmin)
	e.GET("/organizations/:org_id", s.organizationDashboard, s.requirePermissions(Policy{}))
	e.GET("/organizations/:org_id/usage", s.organizationUsage, s.requirePermissions(Policy{}))
	e.GET("/organizations/:org_id/download-usage-report.csv", s.downloadOrganizationUsage,
		s.requirePermissions(Policy{}))
	e.GET("/organizations/:org_id/users", s.organizationUsers, s.requirePermissions(Policy{}))
	e.GET("/organizations/:org_id/settings", s.organizationSettingsForm, s.requirePlatformAdmin)
	e.POST("/organizations/:org_id/settings", s.organizationSettingsSubmit, s.requirePlatformAdmin)

	e.GET("/invitation/:token", s.acceptServiceInvite)
	e.GET("/organization-invitation/:token", s.acceptOrgInvite)

	e.GET("/.well-known/security.txt", s.securityTxt)
	e.GET("/security.txt", s.securityTxt)
	e.GET("/_status", s.status)
	e.GET("/_status/redis", s.redisStatus)
}

func redirectTo(status int, location string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Redirect(status, location)
	}
}
