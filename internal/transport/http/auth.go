// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opentrusty/enterprise/internal/authz"
)

// Token errors
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// accessClaims are the claims of a platform-issued access token.
// Roles use the "role:enterprise_uuid" form.
type accessClaims struct {
	UserID        int64    `json:"user_id"`
	Username      string   `json:"preferred_username"`
	Email         string   `json:"email"`
	Administrator bool     `json:"administrator"`
	Roles         []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC-signed access tokens issued by the platform
type TokenVerifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewTokenVerifier creates a verifier. Issuer and audience are only
// checked when configured.
func NewTokenVerifier(cfg AuthConfig) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	return &TokenVerifier{secret: []byte(cfg.JWTSecret), opts: opts}
}

// Verify parses a raw token into the calling principal
func (v *TokenVerifier) Verify(raw string) (*authz.Principal, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.UserID
	if userID == 0 {
		userID, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			return nil, fmt.Errorf("%w: token carries no user id", ErrInvalidToken)
		}
	}

	return &authz.Principal{
		UserID:      userID,
		Username:    claims.Username,
		Email:       claims.Email,
		IsStaff:     claims.Administrator,
		Assignments: authz.ParseRoleClaims(userID, claims.Roles),
	}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer" or
// "Authorization: JWT" header
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	switch strings.ToLower(scheme) {
	case "bearer", "jwt":
		return strings.TrimSpace(token), nil
	default:
		return "", ErrMissingToken
	}
}
