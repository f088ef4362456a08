package token

import (
	"crypto/rsa"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// NormalizePEM repairs a PEM key whose newlines were collapsed to spaces by
// environment-variable plumbing. Keys that already contain newlines pass
// through untouched.
func NormalizePEM(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "\n") {
		return raw
	}

	parts := strings.Split(raw, "-----")
	if len(parts) != 5 {
		return raw
	}
	header, body, footer := parts[1], strings.TrimSpace(parts[2]), parts[3]
	lines := strings.Fields(body)

	return "-----" + header + "-----\n" + strings.Join(lines, "\n") + "\n-----" + footer + "-----\n"
}

// ParseRSAPrivateKey parses a PEM-encoded RSA private key, accepting the
// whitespace-collapsed single-line shape.
func ParseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(NormalizePEM(raw)))
	if err != nil {
		return nil, errors.Wrap(err, "[token.ParseRSAPrivateKey] parse PEM")
	}
	return key, nil
}
