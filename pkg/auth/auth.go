// Package auth verifies bearer credentials issued by the identity service.
// Credential issuance, OTP delivery, and refresh live elsewhere; this side
// only validates tokens and extracts the identity they carry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity is the verified caller extracted from a token.
type Identity struct {
	ID    string
	Phone string
}

// SessionScope derives the session identifier prefix for this identity, so
// authenticated callers cannot read each other's conversations.
func (id Identity) SessionScope() string {
	return "user:" + id.ID
}

// Verifier validates HS256 bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ParseBearer extracts and validates the token from an Authorization header
// value.
func (v *Verifier) ParseBearer(header string) (Identity, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Identity{}, ErrMissingToken
	}
	return v.Parse(strings.TrimSpace(header[len(prefix):]))
}

// Parse validates a raw token string.
func (v *Verifier) Parse(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		ID:    stringClaim(claims, "user_id"),
		Phone: stringClaim(claims, "phone"),
	}
	if identity.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

type contextKey struct{}

// IdentityFrom returns the identity attached by Middleware, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// Middleware rejects requests without a valid bearer token and attaches the
// verified identity to the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := v.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, identity)))
	})
}
