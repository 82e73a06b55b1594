package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims the application reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies session tokens issued by the auth provider.
type TokenVerifier struct {
	method jwt.SigningMethod
	key    interface{}
	issuer string
	leeway time.Duration
}

// VerifierConfig selects the verification key. Exactly one of Secret or
// PublicKeyPEM must be set.
type VerifierConfig struct {
	Secret       string // HMAC shared secret
	PublicKeyPEM string // RSA public key for RS256 tokens
	Issuer       string // optional required issuer
}

// NewTokenVerifier creates a verifier from cfg.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	v := &TokenVerifier{issuer: cfg.Issuer, leeway: 30 * time.Second}
	switch {
	case cfg.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse auth public key: %w", err)
		}
		v.method, v.key = jwt.SigningMethodRS256, key
	case cfg.Secret != "":
		v.method, v.key = jwt.SigningMethodHS256, []byte(cfg.Secret)
	default:
		return nil, errors.New("auth verifier requires a secret or public key")
	}
	return v, nil
}

// Verify parses and validates token, returning the principal it asserts.
func (v *TokenVerifier) Verify(token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Principal{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}
