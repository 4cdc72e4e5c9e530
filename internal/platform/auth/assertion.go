package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrSigningKey indicates the RSA private key could not be read or parsed.
var ErrSigningKey = errors.New("assertion signing key unavailable")

// AssertionLifetime is how long a subject assertion stays valid.
const AssertionLifetime = time.Hour

// AssertionClaims are the identity claims placed in every subject assertion.
type AssertionClaims struct {
	Subject  string
	Name     string
	Issuer   string
	Audience string
	PESType  string
}

// DefaultAssertionClaims identifies this service to the eRx token exchange.
func DefaultAssertionClaims() AssertionClaims {
	return AssertionClaims{
		Subject:  `mysl\internal\My Processor`,
		Name:     "My Processor",
		Issuer:   "Televita|1.0",
		Audience: "https://fhir.medicationknowledge.com.au",
		PESType:  "eRx",
	}
}

// AssertionSigner builds RS256-signed subject assertions. The private key is
// read from disk on every call so a rotated key file takes effect without a
// restart.
type AssertionSigner struct {
	keyPath string
	claims  AssertionClaims
	now     func() time.Time
}

// NewAssertionSigner creates a signer for the PEM-encoded RSA key at keyPath.
func NewAssertionSigner(keyPath string, claims AssertionClaims) *AssertionSigner {
	return &AssertionSigner{keyPath: keyPath, claims: claims, now: time.Now}
}

// Sign returns a fresh assertion valid from now for AssertionLifetime, with
// a unique jti.
func (s *AssertionSigner) Sign() (string, error) {
	pemBytes, err := os.ReadFile(s.keyPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSigningKey, s.keyPath, err)
	}

	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":     s.claims.Subject,
		"name":    s.claims.Name,
		"iss":     s.claims.Issuer,
		"aud":     s.claims.Audience,
		"exp":     now.Add(AssertionLifetime).Unix(),
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
		"jti":     uuid.NewString(),
		"pesType": s.claims.PESType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	return signed, nil
}
