// Package transport is the websocket edge of the battle service: handshake
// authentication, connection lifecycle and event framing.
package transport

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	pkgerrors "codeverse/pkg/errors"
)

// AuthConfig controls handshake authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
	// AllowAnonymous accepts connections without a token and assigns a
	// guest identity. Meant for local development.
	AllowAnonymous bool `yaml:"allowAnonymous"`
}

type userClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator resolves a websocket handshake into a user identity.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Identify extracts and verifies the caller's identity from the upgrade
// request. The token travels in the "token" query parameter because browser
// websocket clients cannot set headers; an Authorization header works too.
func (a *Authenticator) Identify(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if raw == "" {
		if a.cfg.AllowAnonymous {
			return "guest-" + uuid.NewString(), nil
		}
		return "", pkgerrors.New(pkgerrors.Unauthorized)
	}
	return a.parseToken(raw)
}

func (a *Authenticator) parseToken(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &userClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return "", pkgerrors.New(pkgerrors.TokenExpired)
		}
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*userClaims)
	if !ok || !parsed.Valid {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if a.cfg.JWTIssuer != "" && claims.Issuer != a.cfg.JWTIssuer {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Subject == "" {
		return "", pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims.Subject, nil
}
