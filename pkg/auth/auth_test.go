package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func TestParseBearerValidToken(t *testing.T) {
	verifier := NewVerifier(testSecret)
	token := signToken(t, jwt.MapClaims{
		"user_id": "u-42",
		"phone":   "0612345678",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	identity, err := verifier.ParseBearer("Bearer " + token)
	if err != nil {
		t.Fatalf("ParseBearer() error = %v", err)
	}
	if identity.ID != "u-42" || identity.Phone != "0612345678" {
		t.Errorf("identity = %+v", identity)
	}
	if identity.SessionScope() != "user:u-42" {
		t.Errorf("scope = %q", identity.SessionScope())
	}
}

func TestParseBearerRejectsBadInput(t *testing.T) {
	verifier := NewVerifier(testSecret)

	if _, err := verifier.ParseBearer(""); err != ErrMissingToken {
		t.Errorf("empty header err = %v, want ErrMissingToken", err)
	}
	if _, err := verifier.ParseBearer("Bearer not-a-token"); err != ErrInvalidToken {
		t.Errorf("garbage token err = %v, want ErrInvalidToken", err)
	}

	wrongSecret := signToken(t, jwt.MapClaims{"user_id": "u-1"}, "other-secret")
	if _, err := verifier.ParseBearer("Bearer " + wrongSecret); err != ErrInvalidToken {
		t.Errorf("wrong secret err = %v, want ErrInvalidToken", err)
	}

	expired := signToken(t, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}, testSecret)
	if _, err := verifier.ParseBearer("Bearer " + expired); err != ErrInvalidToken {
		t.Errorf("expired token err = %v, want ErrInvalidToken", err)
	}

	noSubject := signToken(t, jwt.MapClaims{"phone": "0612345678"}, testSecret)
	if _, err := verifier.ParseBearer("Bearer " + noSubject); err != ErrInvalidToken {
		t.Errorf("missing user_id err = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	verifier := NewVerifier(testSecret)
	var seen Identity
	handler := verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/chat", nil)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", recorder.Code)
	}

	token := signToken(t, jwt.MapClaims{"user_id": "u-7"}, testSecret)
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/chat", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", recorder.Code)
	}
	if seen.ID != "u-7" {
		t.Errorf("identity in context = %+v", seen)
	}
}
