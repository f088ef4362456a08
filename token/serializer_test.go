package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/token"
)

func TestSerializer(t *testing.T) {
	s := token.NewSerializer("secret-key", "dangerous-salt")

	t.Run("round trip", func(t *testing.T) {
		signed := s.Dumps([]byte("203.0.113.9"))
		payload, err := s.Loads(signed, time.Hour)
		require.NoError(t, err)
		require.Equal(t, []byte("203.0.113.9"), payload)
	})

	t.Run("tampered payload", func(t *testing.T) {
		signed := s.Dumps([]byte("payload"))
		tampered := "x" + signed[1:]
		_, err := s.Loads(tampered, time.Hour)
		require.ErrorIs(t, err, errs.ErrBadSignature)
	})

	t.Run("different salt fails verification", func(t *testing.T) {
		other := token.NewSerializer("secret-key", "other-salt")
		signed := s.Dumps([]byte("payload"))
		_, err := other.Loads(signed, time.Hour)
		require.ErrorIs(t, err, errs.ErrBadSignature)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := s.Loads("not-a-token", time.Hour)
		require.ErrorIs(t, err, errs.ErrBadSignature)
	})

	t.Run("expired token", func(t *testing.T) {
		now := time.Now()
		past := token.NewSerializer("secret-key", "dangerous-salt",
			token.WithSerializerNowTime(func() time.Time { return now.Add(-2 * time.Hour) }))
		signed := past.Dumps([]byte("payload"))
		_, err := s.Loads(signed, time.Hour)
		require.ErrorIs(t, err, errs.ErrSignatureExpired)
	})
}
