package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an embedded analytics token stays valid
const DefaultTokenTTL = time.Hour

// ErrNoSecret is returned when the shared analytics secret is not configured
var ErrNoSecret = errors.New("analytics shared secret is not configured")

// Claims are the claims of an embedded analytics token
type Claims struct {
	EnterpriseUUID string `json:"enterprise_uuid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs short-lived tokens for the embedded analytics server
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer using an HS512 shared secret
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token scoped to one enterprise
func (i *TokenIssuer) Issue(enterpriseUUID string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSecret
	}
	now := i.now().Truncate(time.Second)
	claims := Claims{
		EnterpriseUUID: enterpriseUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign analytics token: %w", err)
	}
	return signed, nil
}
