package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	errs "github.com/notify-gov/admin-portal/internal/errors"
)

// clockSkew is the tolerance applied to iat when verifying admin JWTs.
const clockSkew = 30 * time.Second

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// CreateAdminJWT builds the short-lived HS256 token the portal sends as a
// bearer on every backend request: iss is the admin client id, iat is now.
func CreateAdminJWT(secret, clientID string) (string, error) {
	claims := jwt.MapClaims{
		"iss": clientID,
		"iat": NowTimeFunc().Unix(),
	}
	signed, err := NewHMACSigner(secret).Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[CreateAdminJWT] sign")
	}
	return signed, nil
}

// VerifyAdminJWT checks an HS256 admin token against the shared secret and
// returns the issuer. maxAge bounds how old the token may be beyond the
// allowed clock skew. Failure modes map to the distinct sentinel errors in
// internal/errors.
func VerifyAdminJWT(tokenString, secret string, maxAge time.Duration) (string, error) {
	signer := NewHMACSigner(secret)
	parsed, err := jwt.Parse(tokenString, signer.GetVerificationKey, jwt.WithoutClaimsValidation())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", errors.Wrap(errs.ErrTokenSignature, "[VerifyAdminJWT]")
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return "", errors.Wrap(errs.ErrTokenAlgorithm, "[VerifyAdminJWT]")
		default:
			return "", errors.Wrap(errs.ErrTokenSignature, "[VerifyAdminJWT] parse")
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.Wrap(errs.ErrTokenSignature, "[VerifyAdminJWT] unexpected claims type")
	}

	issuer, ok := claims["iss"].(string)
	if !ok || issuer == "" {
		return "", errs.ErrTokenMissingIssuer
	}

	iatRaw, ok := claims["iat"]
	if !ok {
		return "", errs.ErrTokenMissingIssuedAt
	}
	iat, ok := iatRaw.(float64)
	if !ok {
		return "", errs.ErrTokenMissingIssuedAt
	}

	now := NowTimeFunc()
	issuedAt := time.Unix(int64(iat), 0)
	if issuedAt.After(now.Add(clockSkew)) {
		return "", errs.ErrTokenFromFuture
	}
	if issuedAt.Before(now.Add(-(maxAge + clockSkew))) {
		return "", errs.ErrTokenExpired
	}

	return issuer, nil
}
