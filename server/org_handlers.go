package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/sessions"
)

func (s *Server) organizationsIndex(c echo.Context) error {
	organizations, err := s.api.GetOrganizations(c.Request().Context())
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(`<h1>Organizations</h1><p><a href="/organizations/add">New organization</a></p><ul>`)
	for _, org := range organizations {
		body.WriteString(fmt.Sprintf(`<li><a href="/organizations/%s">%s</a></li>`,
			escape(org.ID), escape(org.Name)))
	}
	body.WriteString("</ul>")
	return s.render(c, http.StatusOK, "Organizations", body.String())
}

func (s *Server) addOrganizationForm(c echo.Context) error {
	return s.renderOrganizationForm(c, "", "")
}

func (s *Server) addOrganizationSubmit(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		sessions.From(c).AddFlash("error", "Enter an organization name.")
		return s.renderOrganizationForm(c, name, c.FormValue("organization_type"))
	}

	org, err := s.api.CreateOrganization(c.Request().Context(), map[string]any{
		"name":              name,
		"organization_type": c.FormValue("organization_type"),
	})
	if isNameInUse(err) {
		sessions.From(c).AddFlash("error", "This organization name is already in use.")
		return s.renderOrganizationForm(c, name, c.FormValue("organization_type"))
	}
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/organizations/"+org.ID)
}

func (s *Server) renderOrganizationForm(c echo.Context, name, organizationType string) error {
	body := fmt.Sprintf(`<h1>Add an organization</h1>
<form method="post" action="/organizations/add">%s
<label for="name">Name</label>
<input id="name" name="name" value="%s">
<label for="organization_type">Type</label>
<input id="organization_type" name="organization_type" value="%s">
<button type="submit">Create</button>
</form>`, csrfField(c), escape(name), escape(organizationType))
	return s.render(c, http.StatusOK, "Add an organization", body)
}

func (s *Server) organizationDashboard(c echo.Context) error {
	organization := currentIdentity(c).Organization
	services, err := s.api.GetOrganizationServices(c.Request().Context(), organization.ID)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("<h1>%s</h1><ul>", escape(organization.Name)))
	for _, service := range services {
		body.WriteString(fmt.Sprintf(`<li><a href="/services/%s">%s</a></li>`,
			escape(service.ID), escape(service.Name)))
	}
	body.WriteString("</ul>")
	body.WriteString(fmt.Sprintf(`<p><a href="/organizations/%s/usage">Usage</a> <a href="/organizations/%s/users">Team members</a></p>`,
		escape(organization.ID), escape(organization.ID)))
	return s.render(c, http.StatusOK, organization.Name, body.String())
}

func (s *Server) organizationUsage(c echo.Context) error {
	organization := currentIdentity(c).Organization
	usage, err := s.api.GetOrganizationServicesUsage(c.Request().Context(), organization.ID, requestedYear(c))
	if err != nil {
		return err
	}

	pretty, _ := json.MarshalIndent(usage, "", "  ")
	body := fmt.Sprintf("<h1>Usage</h1><pre>%s</pre>", escape(string(pretty)))
	return s.render(c, http.StatusOK, "Usage", body)
}

func (s *Server) downloadOrganizationUsage(c echo.Context) error {
	organization := currentIdentity(c).Organization
	usage, err := s.api.GetOrganizationServicesUsage(c.Request().Context(), organization.ID, requestedYear(c))
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="usage-report.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write([]string{"Key", "Value"}); err != nil {
		return err
	}
	for key, value := range usage {
		encoded, _ := json.Marshal(value)
		if err := w.Write([]string{key, string(encoded)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Server) organizationUsers(c echo.Context) error {
	organization := currentIdentity(c).Organization
	ctx := c.Request().Context()

	members, err := s.api.GetUsersForOrganization(ctx, organization.ID)
	if err != nil {
		return err
	}
	pending, err := s.api.GetOrgInvites(ctx, organization.ID)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString("<h1>Team members</h1><ul>")
	for _, member := range members {
		body.WriteString(fmt.Sprintf("<li>%s (%s)</li>", escape(member.Name), escape(member.Email)))
	}
	for _, invite := range pending {
		if invite.Status == invites.StatusPending {
			body.WriteString(fmt.Sprintf("<li>%s (invited)</li>", escape(invite.Email)))
		}
	}
	body.WriteString("</ul>")
	return s.render(c, http.StatusOK, "Team members", body.String())
}

func (s *Server) organizationSettingsForm(c echo.Context) error {
	organization := currentIdentity(c).Organization
	body := fmt.Sprintf(`<h1>Settings</h1>
<form method="post" action="/organizations/%s/settings">%s
<label for="name">Name</label>
<input id="name" name="name" value="%s">
<label for="notes">Notes</label>
<input id="notes" name="notes" value="%s">
<button type="submit">Save</button>
</form>`, escape(organization.ID), csrfField(c), escape(organization.Name), escape(organization.Notes))
	return s.render(c, http.StatusOK, "Settings", body)
}

func (s *Server) organizationSettingsSubmit(c echo.Context) error {
	organization := currentIdentity(c).Organization
	fields := map[string]any{}
	if name := strings.TrimSpace(c.FormValue("name")); name != "" && name != organization.Name {
		fields["name"] = name
	}
	if notes := c.FormValue("notes"); notes != organization.Notes {
		fields["notes"] = notes
	}
	session := sessions.From(c)
	if len(fields) == 0 {
		return c.Redirect(http.StatusFound, "/organizations/"+organization.ID+"/settings")
	}

	err := s.api.UpdateOrganization(c.Request().Context(), organization.ID, fields)
	if isNameInUse(err) {
		session.AddFlash("error", "This organization name is already in use.")
		return c.Redirect(http.StatusFound, "/organizations/"+organization.ID+"/settings")
	}
	if err != nil {
		return err
	}
	session.AddFlash("default", "Settings saved.")
	return c.Redirect(http.StatusFound, "/organizations/"+organization.ID)
}

// isNameInUse spots the backend's 400 for name-uniqueness forms, the one
// upstream error the settings handlers recover from.
func isNameInUse(err error) bool {
	var apiErr *notifyapi.APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "already")
}
