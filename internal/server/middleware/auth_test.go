package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator is a test implementation of TokenValidator for unit tests.
type testTokenValidator struct {
	validTokens map[string]string
}

func (v *testTokenValidator) ValidateToken(tokenString string) (SubjectGetter, error) {
	subject, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(subject), nil
}

type testClaims string

func (c testClaims) GetSubject() (string, error) {
	return string(c), nil
}

func TestAuthMiddleware(t *testing.T) {
	validator := &testTokenValidator{validTokens: map[string]string{
		"good-token":  "operator",
		"empty-token": "",
	}}

	tests := []struct {
		name        string
		header      string
		target      string
		wantStatus  int
		wantSubject string
	}{
		{name: "valid bearer", header: "Bearer good-token", target: "/runs", wantStatus: http.StatusOK, wantSubject: "operator"},
		{name: "lowercase scheme", header: "bearer good-token", target: "/runs", wantStatus: http.StatusOK, wantSubject: "operator"},
		{name: "query token", target: "/batches/x/events?access_token=good-token", wantStatus: http.StatusOK, wantSubject: "operator"},
		{name: "missing header", target: "/runs", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", target: "/runs", wantStatus: http.StatusUnauthorized},
		{name: "extra parts", header: "Bearer good-token extra", target: "/runs", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", target: "/runs", wantStatus: http.StatusUnauthorized},
		{name: "empty subject", header: "Bearer empty-token", target: "/runs", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSubject string
			handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				subject, err := GetSubject(r)
				require.NoError(t, err)
				gotSubject = subject
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSubject, gotSubject)
		})
	}
}

func TestGetSubject_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	_, err := GetSubject(req)
	assert.Error(t, err)
}
