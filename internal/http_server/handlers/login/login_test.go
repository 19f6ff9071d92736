package login

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auth_service/internal/auth"
	jwtlib "auth_service/internal/lib/jwt"
	"auth_service/internal/models"
	"auth_service/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubUserProvider struct {
	user models.User
}

func (s *stubUserProvider) UserByLogin(_ context.Context, login string) (models.User, error) {
	if login != s.user.Username && login != s.user.Email {
		return models.User{}, storage.ErrUserNotFound
	}

	return s.user, nil
}

func (s *stubUserProvider) UserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	if id != s.user.ID {
		return models.User{}, storage.ErrUserNotFound
	}

	return s.user, nil
}

type stubLedger struct {
	saved []models.RefreshTokenRecord
}

func (s *stubLedger) SaveRefreshToken(_ context.Context, record models.RefreshTokenRecord) error {
	s.saved = append(s.saved, record)
	return nil
}

func (s *stubLedger) RefreshTokenByID(_ context.Context, _ uuid.UUID) (models.RefreshTokenRecord, error) {
	return models.RefreshTokenRecord{}, storage.ErrRefreshTokenNotFound
}

func (s *stubLedger) DeleteRefreshToken(_ context.Context, _ uuid.UUID) error {
	return storage.ErrRefreshTokenNotFound
}

func (s *stubLedger) RotateRefreshToken(_ context.Context, _ uuid.UUID, _ models.RefreshTokenRecord) error {
	return storage.ErrRefreshTokenNotFound
}

func newLoginHandler(t *testing.T) http.HandlerFunc {
	t.Helper()

	tokens, err := jwtlib.NewManager(
		"auth_service",
		"test-access-secret-0123456789abcdef",
		"test-refresh-secret-0123456789abcdef",
		"test-pepper",
		15*time.Minute, time.Hour,
	)
	require.NoError(t, err)

	passHash, err := bcrypt.GenerateFromPassword([]byte("longenough1"), bcrypt.MinCost)
	require.NoError(t, err)

	provider := &stubUserProvider{user: models.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
		PassHash: passHash,
		Enabled:  true,
		Roles:    []string{"USER"},
	}}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, auth.New(log, provider, &stubLedger{}, tokens))
}

func postLogin(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	return rr
}

func TestLoginHandler_Success(t *testing.T) {
	handler := newLoginHandler(t)

	rr := postLogin(handler, `{"usernameOrEmail": "alice", "password": "longenough1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "OK", body.Status)
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)
	assert.True(t, body.AccessExpiresAt.After(time.Now()))
	assert.True(t, body.RefreshExpiresAt.After(body.AccessExpiresAt))
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	handler := newLoginHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong password", body: `{"usernameOrEmail": "alice", "password": "wrongwrong"}`},
		{name: "unknown user", body: `{"usernameOrEmail": "mallory", "password": "longenough1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postLogin(handler, tt.body)
			require.Equal(t, http.StatusUnauthorized, rr.Code)

			var body Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "Invalid credentials", body.Error)
			assert.Empty(t, body.AccessToken)
		})
	}
}

func TestLoginHandler_BadRequests(t *testing.T) {
	handler := newLoginHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"usernameOrEmail": `},
		{name: "missing password", body: `{"usernameOrEmail": "alice"}`},
		{name: "empty body", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postLogin(handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}
