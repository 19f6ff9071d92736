package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testPepper        = "test-pepper"
)

func newTestManager(t *testing.T, accessTTL, refreshTTL time.Duration) *Manager {
	t.Helper()

	m, err := NewManager("auth_service", testAccessSecret, testRefreshSecret, testPepper, accessTTL, refreshTTL)
	require.NoError(t, err)

	return m
}

func TestNewManager_RejectsBadConfiguration(t *testing.T) {
	t.Parallel()

	t.Run("short secrets", func(t *testing.T) {
		_, err := NewManager("iss", "short", testRefreshSecret, testPepper, time.Minute, time.Hour)
		require.Error(t, err)
	})

	t.Run("shared secret", func(t *testing.T) {
		_, err := NewManager("iss", testAccessSecret, testAccessSecret, testPepper, time.Minute, time.Hour)
		require.Error(t, err)
	})

	t.Run("missing pepper", func(t *testing.T) {
		_, err := NewManager("iss", testAccessSecret, testRefreshSecret, "", time.Minute, time.Hour)
		require.Error(t, err)
	})
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)
	userID := uuid.New()

	data, err := m.NewAccessToken(userID, "alice", []string{"USER", "ADMIN"})
	require.NoError(t, err)
	require.NotEmpty(t, data.Token)

	claims, err := m.ParseAccess(data.Token)
	require.NoError(t, err)

	assert.Equal(t, TypeAccess, claims.TokenType)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "USER,ADMIN", claims.Authorities)
	assert.Equal(t, "auth_service", claims.Issuer)
	assert.Equal(t, "JWT Access token", claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, data.ExpiresAt, claims.ExpiresAt.Time, time.Second)
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)
	userID := uuid.New()

	data, err := m.NewRefreshToken(userID)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, data.TokenID)

	claims, err := m.ParseRefresh(data.Token)
	require.NoError(t, err)

	assert.Equal(t, TypeRefresh, claims.TokenType)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, data.TokenID.String(), claims.ID)
	assert.Equal(t, "JWT Refresh token", claims.Subject)
}

func TestRefreshToken_UniqueTokenIDs(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)
	userID := uuid.New()

	first, err := m.NewRefreshToken(userID)
	require.NoError(t, err)
	second, err := m.NewRefreshToken(userID)
	require.NoError(t, err)

	assert.NotEqual(t, first.TokenID, second.TokenID)
}

func TestParse_CrossKeyUseFails(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)
	userID := uuid.New()

	accessData, err := m.NewAccessToken(userID, "alice", []string{"USER"})
	require.NoError(t, err)
	refreshData, err := m.NewRefreshToken(userID)
	require.NoError(t, err)

	_, err = m.ParseRefresh(accessData.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = m.ParseAccess(refreshData.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParse_ExpiredToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, -time.Minute, -time.Minute)

	accessData, err := m.NewAccessToken(uuid.New(), "alice", []string{"USER"})
	require.NoError(t, err)
	refreshData, err := m.NewRefreshToken(uuid.New())
	require.NoError(t, err)

	_, err = m.ParseAccess(accessData.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = m.ParseRefresh(refreshData.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_GarbageAndTampering(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ParseAccess("not.a.jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		unsigned := gojwt.NewWithClaims(gojwt.SigningMethodNone, gojwt.MapClaims{
			"typ": TypeAccess,
		})
		token, err := unsigned.SignedString(gojwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.ParseAccess(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		data, err := m.NewAccessToken(uuid.New(), "alice", []string{"USER"})
		require.NoError(t, err)

		_, err = m.ParseAccess(data.Token + "x")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 15*time.Minute, time.Hour)

	sum := sha256.Sum256([]byte("some-token" + testPepper))
	want := base64.StdEncoding.EncodeToString(sum[:])

	assert.Equal(t, want, m.HashToken("some-token"))
	assert.Equal(t, m.HashToken("some-token"), m.HashToken("some-token"))
	assert.NotEqual(t, m.HashToken("some-token"), m.HashToken("other-token"))
}
