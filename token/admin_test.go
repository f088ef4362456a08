package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	errs "github.com/notify-gov/admin-portal/internal/errors"
	"github.com/notify-gov/admin-portal/token"
)

const testSecret = "admin-client-secret"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestCreateAndVerifyAdminJWT(t *testing.T) {
	signed, err := token.CreateAdminJWT(testSecret, "notify-admin")
	require.NoError(t, err)

	issuer, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
	require.NoError(t, err)
	require.Equal(t, "notify-admin", issuer)
}

func TestVerifyAdminJWT_Failures(t *testing.T) {
	now := time.Now()

	t.Run("wrong secret", func(t *testing.T) {
		signed, err := token.CreateAdminJWT("some-other-secret", "notify-admin")
		require.NoError(t, err)
		_, err = token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenSignature)
	})

	t.Run("missing iss", func(t *testing.T) {
		signed := signHS256(t, jwt.MapClaims{"iat": now.Unix()})
		_, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenMissingIssuer)
	})

	t.Run("missing iat", func(t *testing.T) {
		signed := signHS256(t, jwt.MapClaims{"iss": "notify-admin"})
		_, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenMissingIssuedAt)
	})

	t.Run("iat more than 30s in the future", func(t *testing.T) {
		signed := signHS256(t, jwt.MapClaims{"iss": "notify-admin", "iat": now.Add(2 * time.Minute).Unix()})
		_, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenFromFuture)
	})

	t.Run("iat within clock skew is accepted", func(t *testing.T) {
		signed := signHS256(t, jwt.MapClaims{"iss": "notify-admin", "iat": now.Add(10 * time.Second).Unix()})
		_, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		signed := signHS256(t, jwt.MapClaims{"iss": "notify-admin", "iat": now.Add(-5 * time.Minute).Unix()})
		_, err := token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenExpired)
	})

	t.Run("bad algorithm", func(t *testing.T) {
		rsaSigner, err := token.NewRSASigner(generatePEM(t))
		require.NoError(t, err)
		signed, err := rsaSigner.Sign(jwt.MapClaims{"iss": "notify-admin", "iat": now.Unix()})
		require.NoError(t, err)
		_, err = token.VerifyAdminJWT(signed, testSecret, time.Minute)
		require.ErrorIs(t, err, errs.ErrTokenAlgorithm)
	})
}

func TestClientAssertion(t *testing.T) {
	signer, err := token.NewRSASigner(generatePEM(t))
	require.NoError(t, err)

	signed, err := token.ClientAssertion(signer, "client-abc", "https://idp.example.gov/token")
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, signer.GetVerificationKey)
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)

	require.Equal(t, "client-abc", claims["iss"])
	require.Equal(t, "client-abc", claims["sub"])
	require.Equal(t, "https://idp.example.gov/token", claims["aud"])
	require.NotEmpty(t, claims["jti"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), exp.Time, time.Minute)
}
