package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/notify-gov/admin-portal/cache"
	errs "github.com/notify-gov/admin-portal/internal/errors"
)

// Cross-request login-flow state lives in the KV store keyed by the OIDC
// state parameter. Unlike API read caching these writes must not be silently
// dropped, so every call opts into raised errors.
const (
	keyLoginState   = "login-state-{state}"
	keyInviteData   = "invitedata-{state}"
	keyLoginNonce   = "login-nonce-{nonce}"
	keyUserEmail    = "user_email-{state}"
	keyUserUUID     = "user_uuid-{state}"
	keyInvitedEmail = "invited_user_email_address-{state}"
)

const (
	loginStateTTL  = 24 * time.Hour
	inviteStateTTL = 48 * time.Hour
)

// InviteData is the invite context carried across the OIDC round-trip.
type InviteData struct {
	InvitedUserID    string `json:"invited_user_id,omitempty"`
	InvitedOrgUserID string `json:"invited_org_user_id,omitempty"`
	Email            string `json:"email_address"`
	Nonce            string `json:"nonce,omitempty"`
}

// stateStore wraps the KV gateway with the login-flow key schema.
type stateStore struct {
	kv *cache.Client
}

// BeginLogin records proof-of-possession of the state token for a plain
// sign-in attempt.
func (s *stateStore) BeginLogin(ctx context.Context, state string) error {
	key := cache.MustFormat(keyLoginState, cache.Params{"state": state})
	if err := s.kv.Set(ctx, key, []byte(state), loginStateTTL, cache.RaiseOnError()); err != nil {
		return errors.Wrap(err, "[stateStore.BeginLogin]")
	}
	return nil
}

// BeginInvite records the invite context and nonce for an invited sign-in.
// The longer TTL matches the invitation email's useful life.
func (s *stateStore) BeginInvite(ctx context.Context, state string, data InviteData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "[stateStore.BeginInvite] marshal")
	}
	stateKey := cache.MustFormat(keyLoginState, cache.Params{"state": state})
	if err := s.kv.Set(ctx, stateKey, []byte(state), inviteStateTTL, cache.RaiseOnError()); err != nil {
		return errors.Wrap(err, "[stateStore.BeginInvite] state")
	}
	dataKey := cache.MustFormat(keyInviteData, cache.Params{"state": state})
	if err := s.kv.Set(ctx, dataKey, payload, inviteStateTTL, cache.RaiseOnError()); err != nil {
		return errors.Wrap(err, "[stateStore.BeginInvite] invite data")
	}
	if data.Nonce != "" {
		nonceKey := cache.MustFormat(keyLoginNonce, cache.Params{"nonce": data.Nonce})
		if err := s.kv.Set(ctx, nonceKey, []byte(data.Nonce), inviteStateTTL, cache.RaiseOnError()); err != nil {
			return errors.Wrap(err, "[stateStore.BeginInvite] nonce")
		}
	}
	return nil
}

// ConsumeLogin checks proof of possession: the state must have been
// recorded by BeginLogin or BeginInvite. The record is deleted on the spot,
// so a state completes at most one callback.
func (s *stateStore) ConsumeLogin(ctx context.Context, state string) error {
	key := cache.MustFormat(keyLoginState, cache.Params{"state": state})
	raw, err := s.kv.Get(ctx, key, cache.RaiseOnError())
	if err != nil {
		return errors.Wrap(err, "[stateStore.ConsumeLogin]")
	}
	if raw == nil {
		return errors.Wrap(errs.ErrUnauthorized, "[stateStore.ConsumeLogin] unknown state")
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "[stateStore.ConsumeLogin] delete")
	}
	return nil
}

// InviteData returns the invite context for a state, or nil when the state
// belongs to a plain sign-in.
func (s *stateStore) InviteData(ctx context.Context, state string) (*InviteData, error) {
	key := cache.MustFormat(keyInviteData, cache.Params{"state": state})
	raw, err := s.kv.Get(ctx, key, cache.RaiseOnError())
	if err != nil {
		return nil, errors.Wrap(err, "[stateStore.InviteData]")
	}
	if raw == nil {
		return nil, nil
	}
	var data InviteData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(errs.ErrInternal, "[stateStore.InviteData] undecodable invite data")
	}
	return &data, nil
}

// SaveExchange stores the post-code-exchange bundle so the profile-setup leg
// never replays the single-use authorization code. Keys are validated
// individually on read: the bundle is not transactional.
func (s *stateStore) SaveExchange(ctx context.Context, state, email, userUUID, invitedEmail string) error {
	entries := map[string]string{
		cache.MustFormat(keyUserEmail, cache.Params{"state": state}):    email,
		cache.MustFormat(keyUserUUID, cache.Params{"state": state}):     userUUID,
		cache.MustFormat(keyInvitedEmail, cache.Params{"state": state}): invitedEmail,
	}
	for key, value := range entries {
		if err := s.kv.Set(ctx, key, []byte(value), inviteStateTTL, cache.RaiseOnError()); err != nil {
			return errors.Wrapf(err, "[stateStore.SaveExchange] %s", key)
		}
	}
	return nil
}

// Exchange reads the post-code-exchange bundle back. Every key must be
// present; a partial bundle means the TTL ran out mid-flow.
func (s *stateStore) Exchange(ctx context.Context, state string) (email, userUUID, invitedEmail string, err error) {
	read := func(template string) (string, error) {
		key := cache.MustFormat(template, cache.Params{"state": state})
		raw, err := s.kv.Get(ctx, key, cache.RaiseOnError())
		if err != nil {
			return "", err
		}
		if raw == nil {
			return "", errors.Wrapf(errs.ErrSignatureExpired, "[stateStore.Exchange] %s missing", key)
		}
		return string(raw), nil
	}
	if email, err = read(keyUserEmail); err != nil {
		return "", "", "", err
	}
	if userUUID, err = read(keyUserUUID); err != nil {
		return "", "", "", err
	}
	if invitedEmail, err = read(keyInvitedEmail); err != nil {
		return "", "", "", err
	}
	return email, userUUID, invitedEmail, nil
}
