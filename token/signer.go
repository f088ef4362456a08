package token

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key used to verify a parsed token
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACsigner implements Signer using symmetric HMAC-SHA256. The backend
// shares the same secret and verifies every admin JWT with it.
type HMACsigner struct {
	secret []byte
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACsigner {
	return &HMACsigner{
		secret: []byte(secret),
	}
}

func (h *HMACsigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACsigner) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACsigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// RSASigner implements Signer using RS256 with the login.gov private key.
type RSASigner struct {
	privateKey *rsa.PrivateKey
}

// NewRSASigner parses a PEM private key (single-line shapes included) and
// returns an RS256 signer.
func NewRSASigner(pemKey string) (*RSASigner, error) {
	key, err := ParseRSAPrivateKey(pemKey)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRSASigner] invalid private key")
	}
	return &RSASigner{privateKey: key}, nil
}

func (r *RSASigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(r.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with RSA key")
	}
	return signedToken, nil
}

func (r *RSASigner) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &r.privateKey.PublicKey, nil
}

func (r *RSASigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}
