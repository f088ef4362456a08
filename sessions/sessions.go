// Package sessions implements the signed-cookie session used by the portal.
// All state lives client-side under an HMAC signature; the server holds no
// session table. Expiry is sliding: every response re-issues the cookie, and
// a cookie older than the configured lifetime fails signature age checking.
package sessions

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/token"
)

// CookieName is the session cookie issued by the portal.
const CookieName = "notify_admin_session"

// Flash is one deferred message rendered on the next page load.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the per-browser state. Everything here round-trips through the
// signed cookie, so additions must stay small and non-secret.
type Session struct {
	UserID           string         `json:"user_id,omitempty"`
	CurrentSessionID string         `json:"current_session_id,omitempty"`
	ServiceID        string         `json:"service_id,omitempty"`
	OrganizationID   string         `json:"organization_id,omitempty"`
	InvitedUserID    string         `json:"invited_user_id,omitempty"`
	InvitedOrgUserID string         `json:"invited_org_user_id,omitempty"`
	UserDetails      map[string]any `json:"user_details,omitempty"`
	Flashes          []Flash        `json:"flashes,omitempty"`

	modified bool
}

// SignedIn reports whether the session carries an authenticated user.
func (s *Session) SignedIn() bool {
	return s != nil && s.UserID != ""
}

// Touch marks the session dirty so the middleware re-serializes it.
func (s *Session) Touch() {
	s.modified = true
}

// Modified reports whether the session needs re-serializing.
func (s *Session) Modified() bool {
	return s.modified
}

// SetUser signs the session in.
func (s *Session) SetUser(userID, currentSessionID string) {
	s.UserID = userID
	s.CurrentSessionID = currentSessionID
	s.modified = true
}

// Clear signs the session out, dropping everything except flashes queued for
// the post-sign-out page.
func (s *Session) Clear() {
	flashes := s.Flashes
	*s = Session{Flashes: flashes, modified: true}
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
	s.modified = true
}

// ConsumeFlashes returns queued messages and clears the queue.
func (s *Session) ConsumeFlashes() []Flash {
	flashes := s.Flashes
	if len(flashes) > 0 {
		s.Flashes = nil
		s.modified = true
	}
	return flashes
}

// Codec signs sessions into cookie values and back.
type Codec struct {
	serializer *token.Serializer
	lifetime   time.Duration
}

// CodecOption configures a Codec.
type CodecOption func(*codecSettings)

type codecSettings struct {
	nowTime func() time.Time
}

// WithCodecNowTime sets the time source (primarily for testing).
func WithCodecNowTime(nowFunc func() time.Time) CodecOption {
	return func(s *codecSettings) {
		s.nowTime = nowFunc
	}
}

// NewCodec builds a codec from the application secret and salt. lifetime is
// the sliding window beyond which a cookie is treated as expired.
func NewCodec(secret, salt string, lifetime time.Duration, options ...CodecOption) *Codec {
	settings := codecSettings{nowTime: time.Now}
	for _, opt := range options {
		opt(&settings)
	}
	return &Codec{
		serializer: token.NewSerializer(secret, salt, token.WithSerializerNowTime(settings.nowTime)),
		lifetime:   lifetime,
	}
}

// Lifetime returns the sliding expiry window.
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Encode serializes and signs a session into a cookie value.
func (c *Codec) Encode(session *Session) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Encode] marshal session")
	}
	return c.serializer.Dumps(payload), nil
}

// Decode verifies a cookie value and returns the session it carries. An
// expired signature maps to ErrSignatureExpired so callers can distinguish
// timeout from tampering.
func (c *Codec) Decode(value string) (*Session, error) {
	payload, err := c.serializer.Loads(value, c.lifetime)
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.Decode]")
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Codec.Decode] undecodable payload")
	}
	return &session, nil
}
