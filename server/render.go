package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/notify-gov/admin-portal/sessions"
)

// Page rendering is deliberately minimal: the design system and template
// layer live in a separate asset pipeline, so handlers emit bare documents
// with the data a template would receive.

func (s *Server) render(c echo.Context, status int, title, body string) error {
	var banners strings.Builder
	for _, flash := range sessions.From(c).ConsumeFlashes() {
		banners.WriteString(fmt.Sprintf(
			`<div class="banner banner-%s" role="alert">%s</div>`,
			template.HTMLEscapeString(flash.Category),
			template.HTMLEscapeString(flash.Message),
		))
	}

	doc := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s - %s</title>
<style nonce="%s">body{font-family:sans-serif;margin:2rem}.banner{padding:.5rem;border:1px solid}</style>
</head>
<body>
%s
%s
</body>
</html>`,
		template.HTMLEscapeString(title),
		template.HTMLEscapeString(s.cfg.GetAppName()),
		cspNonce(c),
		banners.String(),
		body,
	)
	return c.HTML(status, doc)
}

// csrfField renders the hidden input every form must carry.
func csrfField(c echo.Context) string {
	token, _ := c.Get("csrf").(string)
	return fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s">`, template.HTMLEscapeString(token))
}

func escape(value string) string {
	return template.HTMLEscapeString(value)
}

func errorPage(status int) string {
	var message string
	switch status {
	case http.StatusUnauthorized:
		message = "You need to sign in to see this page."
	case http.StatusForbidden:
		message = "You do not have permission to view this page."
	case http.StatusNotFound:
		message = "Page could not be found."
	case http.StatusGone:
		message = "This page no longer exists."
	default:
		message = "Sorry, we are experiencing technical difficulties."
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%d</title></head>
<body><h1>%d</h1><p>%s</p></body>
</html>`, status, status, message)
}
