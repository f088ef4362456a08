package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const assertionLifetime = 10 * time.Minute

// ClientAssertion builds the private_key_jwt sent to the IdP token endpoint
// during the OIDC code exchange: iss and sub are both the client id, aud is
// the token endpoint itself.
func ClientAssertion(signer Signer, clientID, tokenURL string) (string, error) {
	claims := jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": tokenURL,
		"jti": uuid.New().String(),
		"exp": NowTimeFunc().Add(assertionLifetime).Unix(),
	}
	signed, err := signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[ClientAssertion] sign")
	}
	return signed, nil
}
