// ABOUTME: Tests for the HTTP authentication middleware, API keys, and verifier chain
// ABOUTME: Covers header and query tokens, preflight passthrough, and disabled auth

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/orders-mcp/internal/config"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Bearer abc", token: "abc"},
	}
	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		assert.Equal(t, tt.wantErr, errMsg != "", tt.header)
		assert.Equal(t, tt.token, token)
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	hash, err := HashAPIKey("sk-orders-1")
	require.NoError(t, err)
	other, err := HashAPIKey("sk-orders-2")
	require.NoError(t, err)

	v, err := NewAPIKeyVerifier([]string{hash, other})
	require.NoError(t, err)

	sub, err := v.Verify("sk-orders-2")
	require.NoError(t, err)
	assert.Equal(t, "apikey:1", sub)

	_, err = v.Verify("sk-wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAPIKeyVerifier([]string{"plaintext"})
	assert.Error(t, err)

	_, err = HashAPIKey("")
	assert.Error(t, err)
}

func TestChainVerifier(t *testing.T) {
	jwtV := newTestVerifier(t)
	hash, err := HashAPIKey("sk-orders")
	require.NoError(t, err)
	keyV, err := NewAPIKeyVerifier([]string{hash})
	require.NoError(t, err)

	chain := ChainVerifier{jwtV, keyV}

	token, _ := jwtV.Generate("cli", time.Hour)
	sub, err := chain.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", sub)

	sub, err = chain.Verify("sk-orders")
	require.NoError(t, err)
	assert.Equal(t, "apikey:0", sub)

	expired, _ := jwtV.Generate("cli", -time.Hour)
	_, err = chain.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = chain.Verify("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{Enabled: false, JWTSecret: string(testSecret)})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: string(testSecret)})
	require.NoError(t, err)
	assert.Len(t, v, 1)

	_, err = NewVerifier(config.AuthConfig{Enabled: true, JWTSecret: "short"})
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestHTTPAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	valid, _ := verifier.Generate("claude-desktop", time.Hour)
	expired, _ := verifier.Generate("claude-desktop", -time.Hour)

	var gotIdentity *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := HTTPAuthMiddleware(verifier, nil)(next)

	tests := []struct {
		name     string
		method   string
		target   string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "header token", method: http.MethodPost, target: "/mcp", header: "Bearer " + valid, wantCode: http.StatusOK},
		{name: "query token", method: http.MethodGet, target: "/mcp/sse?token=" + valid, wantCode: http.StatusOK},
		{name: "missing", method: http.MethodPost, target: "/mcp", wantCode: http.StatusUnauthorized, wantBody: "missing authorization header"},
		{name: "bad scheme", method: http.MethodPost, target: "/mcp", header: "Token abc", wantCode: http.StatusUnauthorized, wantBody: "invalid authorization header format"},
		{name: "invalid", method: http.MethodPost, target: "/mcp", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantBody: "invalid token"},
		{name: "expired", method: http.MethodPost, target: "/mcp", header: "Bearer " + expired, wantCode: http.StatusUnauthorized, wantBody: "token expired"},
		{name: "preflight", method: http.MethodOptions, target: "/mcp", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotIdentity = nil
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
			if tt.wantCode == http.StatusOK && tt.method != http.MethodOptions {
				require.NotNil(t, gotIdentity)
				assert.Equal(t, "claude-desktop", gotIdentity.Subject)
			}
		})
	}
}

func TestHTTPAuthMiddleware_Disabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(nil, nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
