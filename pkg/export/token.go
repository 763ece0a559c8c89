package export

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "oficios/export"

// ArtifactClaims are the download-token claims: standard JWT fields plus
// the artifact the bearer may fetch and the checksum the download must
// match.
type ArtifactClaims struct {
	jwt.RegisteredClaims
	ArtifactID string `json:"artifact_id"`
	Kind       string `json:"kind"`
	SHA256     string `json:"sha256"`
}

// TokenIssuer mints and verifies HS256 download tokens for export
// artifacts.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenIssuer builds an issuer. ttl bounds token lifetime; zero or
// negative falls back to one hour.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty token secret")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, ttl: ttl, clock: time.Now}, nil
}

// WithClock overrides the timestamp source. For tests.
func (ti *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	ti.clock = clock
	return ti
}

// Mint signs a download token for the receipt.
func (ti *TokenIssuer) Mint(rec Receipt) (string, error) {
	now := ti.clock().UTC()
	claims := ArtifactClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ArtifactID,
			Subject:   rec.FileID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
		ArtifactID: rec.ArtifactID,
		Kind:       string(rec.Kind),
		SHA256:     rec.SHA256,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

// Verify parses and validates a download token, returning its claims.
func (ti *TokenIssuer) Verify(tokenString string) (*ArtifactClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ArtifactClaims{},
		func(t *jwt.Token) (any, error) { return ti.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return ti.clock().UTC() }),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*ArtifactClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
