// Package token holds the signing primitives the portal depends on: a timed
// URL-safe serializer for email links and OIDC state, JWT signers, the admin
// JWT used against the backend, and the RS256 client assertion for login.gov.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	errs "github.com/notify-gov/admin-portal/internal/errors"
)

// Serializer produces URL-safe signed strings carrying an issue timestamp.
// Loads enforces a caller-supplied maximum age.
type Serializer struct {
	key     []byte
	nowTime func() time.Time
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithSerializerNowTime sets the time source (primarily for testing).
func WithSerializerNowTime(nowFunc func() time.Time) SerializerOption {
	return func(s *Serializer) {
		s.nowTime = nowFunc
	}
}

// NewSerializer derives a signing key from the application secret and salt.
func NewSerializer(secret, salt string, options ...SerializerOption) *Serializer {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	s := &Serializer{
		key:     mac.Sum(nil),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var encoding = base64.RawURLEncoding

// Dumps signs payload together with the current timestamp.
func (s *Serializer) Dumps(payload []byte) string {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(s.nowTime().Unix()))

	signed := encoding.EncodeToString(payload) + "." + encoding.EncodeToString(ts)
	return signed + "." + encoding.EncodeToString(s.sign(signed))
}

// Loads verifies the signature and the age of a token produced by Dumps and
// returns the original payload. Fails with ErrBadSignature or
// ErrSignatureExpired.
func (s *Serializer) Loads(token string, maxAge time.Duration) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Serializer.Loads] malformed token")
	}

	signed := parts[0] + "." + parts[1]
	signature, err := encoding.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Serializer.Loads] signature not base64")
	}
	if subtle.ConstantTimeCompare(signature, s.sign(signed)) != 1 {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Serializer.Loads] signature mismatch")
	}

	tsBytes, err := encoding.DecodeString(parts[1])
	if err != nil || len(tsBytes) != 8 {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Serializer.Loads] malformed timestamp")
	}
	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(tsBytes)), 0)
	if age := s.nowTime().Sub(issuedAt); age > maxAge {
		return nil, errors.Wrapf(errs.ErrSignatureExpired, "[Serializer.Loads] token is %s old, max age %s", age, maxAge)
	}

	payload, err := encoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(errs.ErrBadSignature, "[Serializer.Loads] malformed payload")
	}
	return payload, nil
}

func (s *Serializer) sign(signed string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(signed))
	return mac.Sum(nil)
}
