package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "codeverse/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject, issuer string, expiresIn time.Duration) string {
	t.Helper()
	claims := userClaims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestIdentifyFromQueryToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret, JWTIssuer: "codeverse"})
	token := signToken(t, "user-7", "codeverse", time.Hour)
	req := httptest.NewRequest("GET", "/ws?token="+token, nil)

	userID, err := auth.Identify(req)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if userID != "user-7" {
		t.Fatalf("user id = %q, want user-7", userID)
	}
}

func TestIdentifyFromAuthorizationHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret})
	token := signToken(t, "user-8", "", time.Hour)
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := auth.Identify(req)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if userID != "user-8" {
		t.Fatalf("user id = %q, want user-8", userID)
	}
}

func TestIdentifyExpiredToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret})
	token := signToken(t, "user-9", "", -time.Minute)
	req := httptest.NewRequest("GET", "/ws?token="+token, nil)

	_, err := auth.Identify(req)
	if pkgerrors.GetCode(err) != pkgerrors.TokenExpired {
		t.Fatalf("error = %v, want TokenExpired", err)
	}
}

func TestIdentifyWrongIssuer(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret, JWTIssuer: "codeverse"})
	token := signToken(t, "user-10", "someone-else", time.Hour)
	req := httptest.NewRequest("GET", "/ws?token="+token, nil)

	_, err := auth.Identify(req)
	if pkgerrors.GetCode(err) != pkgerrors.TokenInvalid {
		t.Fatalf("error = %v, want TokenInvalid", err)
	}
}

func TestIdentifyMissingTokenRejected(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret})
	req := httptest.NewRequest("GET", "/ws", nil)

	_, err := auth.Identify(req)
	if pkgerrors.GetCode(err) != pkgerrors.Unauthorized {
		t.Fatalf("error = %v, want Unauthorized", err)
	}
}

func TestIdentifyAnonymousGuest(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{JWTSecret: testSecret, AllowAnonymous: true})
	req := httptest.NewRequest("GET", "/ws", nil)

	userID, err := auth.Identify(req)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if !strings.HasPrefix(userID, "guest-") {
		t.Fatalf("anonymous user id = %q, want guest- prefix", userID)
	}
}
