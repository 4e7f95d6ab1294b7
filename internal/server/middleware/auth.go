// Package middleware provides HTTP middleware for bearer-token authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// subjectKey is the context key for storing the authenticated token subject.
const subjectKey ContextKey = "subject"

// TokenQueryParam carries the token for clients that cannot set headers,
// such as a browser EventSource.
const TokenQueryParam = "access_token"

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (SubjectGetter, error)
}

// SubjectGetter extracts the subject from validated token claims.
// jwt.RegisteredClaims satisfies it.
type SubjectGetter interface {
	GetSubject() (string, error)
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// token subject to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the token from the Authorization header, falling back to
// the access_token query parameter.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
		return token, token != ""
	}

	// Handle case-insensitive "Bearer" prefix
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// GetSubject extracts the authenticated subject from the request context.
func GetSubject(r *http.Request) (string, error) {
	subject, ok := r.Context().Value(subjectKey).(string)
	if !ok {
		return "", fmt.Errorf("subject not found in request context")
	}
	return subject, nil
}
