package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) accounts(c echo.Context) error {
	user := currentIdentity(c).User

	var list strings.Builder
	list.WriteString("<h1>Choose an account</h1><ul>")
	for _, serviceID := range user.ServiceIDs {
		list.WriteString(fmt.Sprintf(`<li><a href="/services/%s">%s</a></li>`,
			escape(serviceID), escape(serviceID)))
	}
	for _, organizationID := range user.OrganizationIDs {
		list.WriteString(fmt.Sprintf(`<li><a href="/organizations/%s">%s</a></li>`,
			escape(organizationID), escape(organizationID)))
	}
	list.WriteString("</ul>")
	if len(user.ServiceIDs) == 0 && len(user.OrganizationIDs) == 0 {
		list.WriteString(fmt.Sprintf(`<p><a href="%s">Add a service</a></p>`, routeAddService))
	}
	return s.render(c, http.StatusOK, "Your services", list.String())
}

// accountsOrDashboard skips the chooser for users with exactly one home.
func (s *Server) accountsOrDashboard(c echo.Context) error {
	user := currentIdentity(c).User
	if len(user.ServiceIDs) == 1 && len(user.OrganizationIDs) == 0 {
		return c.Redirect(http.StatusFound, "/services/"+user.ServiceIDs[0])
	}
	return c.Redirect(http.StatusFound, routeAccounts)
}

func (s *Server) serviceDashboard(c echo.Context) error {
	service := currentIdentity(c).Service

	stats, err := s.api.GetDailyStats(c.Request().Context(), service.ID, 7)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("<h1>%s</h1>", escape(service.Name)))
	if service.Restricted {
		body.WriteString("<p>This service is in trial mode.</p>")
	}
	body.WriteString("<table><tr><th>Day</th><th>Type</th><th>Status</th><th>Count</th></tr>")
	for day, byType := range stats {
		for messageType, byStatus := range byType {
			for status, count := range byStatus {
				body.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td></tr>",
					escape(day), escape(messageType), escape(status), count))
			}
		}
	}
	body.WriteString("</table>")
	body.WriteString(fmt.Sprintf(`<p><a href="/services/%s/usage">Usage</a> <a href="/services/%s/templates">Templates</a></p>`,
		escape(service.ID), escape(service.ID)))
	return s.render(c, http.StatusOK, service.Name, body.String())
}

func (s *Server) dailyStats(c echo.Context) error {
	stats, err := s.api.GetDailyStats(c.Request().Context(), currentIdentity(c).Service.ID, 7)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": stats})
}

func (s *Server) dailyStatsByUser(c echo.Context) error {
	stats, err := s.api.GetDailyStatsByUser(c.Request().Context(), currentIdentity(c).Service.ID, 7)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": stats})
}

func (s *Server) templateUsage(c echo.Context) error {
	service := currentIdentity(c).Service
	rows, err := s.api.GetTemplateUsage(c.Request().Context(), service.ID, requestedYear(c))
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString("<h1>Template usage</h1><table><tr><th>Template</th><th>Month</th><th>Sent</th></tr>")
	for _, row := range rows {
		body.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%d/%d</td><td>%d</td></tr>",
			escape(row.Name), row.Month, row.Year, row.Count))
	}
	body.WriteString("</table>")
	return s.render(c, http.StatusOK, "Template usage", body.String())
}

func (s *Server) serviceUsage(c echo.Context) error {
	service := currentIdentity(c).Service
	ctx := c.Request().Context()
	year := requestedYear(c)

	monthly, err := s.api.GetMonthlyUsage(ctx, service.ID, year)
	if err != nil {
		return err
	}
	freeLimit, err := s.api.GetFreeSMSFragmentLimit(ctx, service.ID, year)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("<h1>Usage</h1><p>Free text message allowance: %d</p>", freeLimit))
	body.WriteString("<table><tr><th>Month</th><th>Type</th><th>Sent</th></tr>")
	for _, row := range monthly {
		body.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%d</td></tr>",
			escape(row.Month), escape(row.NotificationType), row.BillableUnits))
	}
	body.WriteString("</table>")
	return s.render(c, http.StatusOK, "Usage", body.String())
}

func (s *Server) serviceTemplates(c echo.Context) error {
	service := currentIdentity(c).Service
	templates, err := s.api.GetTemplates(c.Request().Context(), service.ID)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString("<h1>Templates</h1><ul>")
	for _, tmpl := range templates {
		body.WriteString(fmt.Sprintf("<li>%s (%s)</li>", escape(tmpl.Name), escape(tmpl.TemplateType)))
	}
	body.WriteString("</ul>")
	return s.render(c, http.StatusOK, "Templates", body.String())
}

// notificationDetail serves both the HTML page and the .json variant; the
// router cannot split a suffix inside one path segment.
func (s *Server) notificationDetail(c echo.Context) error {
	service := currentIdentity(c).Service
	notificationID := c.Param("notification_id")
	asJSON := strings.HasSuffix(notificationID, ".json")
	notificationID = strings.TrimSuffix(notificationID, ".json")

	notification, err := s.api.GetNotification(c.Request().Context(), service.ID, notificationID)
	if err != nil {
		return err
	}
	if asJSON {
		return c.JSON(http.StatusOK, notification)
	}

	body := fmt.Sprintf("<h1>Notification</h1><p>To: %s</p><p>Status: %s</p><p>Sent: %s</p>",
		escape(notification.To), escape(notification.Status), escape(notification.CreatedAt))
	return s.render(c, http.StatusOK, "Notification", body)
}

func (s *Server) downloadNotifications(c echo.Context) error {
	service := currentIdentity(c).Service
	notifications, _, err := s.api.GetNotifications(c.Request().Context(), service.ID, 1, nil, nil)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="notifications.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"Recipient", "Template", "Type", "Status", "Sent"}); err != nil {
		return err
	}
	for _, n := range notifications {
		record := []string{n.To, n.TemplateID, n.NotificationType, n.Status, n.CreatedAt}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// apiKeys is access-controlled even though key management itself lives in
// the service settings surface; platform admins are deliberately excluded.
func (s *Server) apiKeys(c echo.Context) error {
	body := "<h1>API keys</h1><p>Manage keys from your service settings.</p>"
	return s.render(c, http.StatusOK, "API keys", body)
}

func requestedYear(c echo.Context) int {
	if raw := c.QueryParam("year"); raw != "" {
		if year, err := strconv.Atoi(raw); err == nil {
			return year
		}
	}
	return time.Now().Year()
}
