package authn

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "auth_service/internal/lib/jwt"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
)

func newTestManager(t *testing.T) *jwtlib.Manager {
	t.Helper()

	m, err := jwtlib.NewManager(
		"auth_service", testAccessSecret, testRefreshSecret, "test-pepper",
		15*time.Minute, time.Hour,
	)
	require.NoError(t, err)

	return m
}

func newTestHandler(t *testing.T, tokens *jwtlib.Manager, captured *Principal) http.Handler {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := New(log, tokens)

	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		*captured = p

		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(handler http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	return rr
}

func TestAuthn_ValidAccessToken(t *testing.T) {
	t.Parallel()

	tokens := newTestManager(t)
	userID := uuid.New()

	data, err := tokens.NewAccessToken(userID, "alice", []string{"USER", "ADMIN"})
	require.NoError(t, err)

	var principal Principal
	handler := newTestHandler(t, tokens, &principal)

	rr := doRequest(handler, "Bearer "+data.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, "alice", principal.Username)
	assert.Equal(t, []string{"USER", "ADMIN"}, principal.Authorities)
}

func TestAuthn_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	tokens := newTestManager(t)
	userID := uuid.New()

	refreshData, err := tokens.NewRefreshToken(userID)
	require.NoError(t, err)

	// Well signed with the access secret, but typed as a refresh token.
	forged := jwtlib.AccessClaims{
		TokenType: jwtlib.TypeRefresh,
		UserID:    userID,
		Username:  "alice",
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forgedToken, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, forged).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	expired := jwtlib.AccessClaims{
		TokenType: jwtlib.TypeAccess,
		UserID:    userID,
		Username:  "alice",
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expiredToken, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, expired).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
	}{
		{name: "missing header", authorization: ""},
		{name: "not bearer", authorization: "Basic dXNlcjpwYXNz"},
		{name: "garbage token", authorization: "Bearer not.a.token"},
		{name: "refresh token", authorization: "Bearer " + refreshData.Token},
		{name: "forged type claim", authorization: "Bearer " + forgedToken},
		{name: "expired token", authorization: "Bearer " + expiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var principal Principal
			handler := newTestHandler(t, tokens, &principal)

			rr := doRequest(handler, tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, uuid.Nil, principal.UserID, "handler must not run")
		})
	}
}

func TestAuthn_EmptyAuthoritiesAreNil(t *testing.T) {
	t.Parallel()

	tokens := newTestManager(t)

	data, err := tokens.NewAccessToken(uuid.New(), "alice", nil)
	require.NoError(t, err)

	var principal Principal
	handler := newTestHandler(t, tokens, &principal)

	rr := doRequest(handler, "Bearer "+data.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, principal.Authorities)
}
