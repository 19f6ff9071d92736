package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "ACCESS"
	TypeRefresh = "REFRESH"

	subjectAccess  = "JWT Access token"
	subjectRefresh = "JWT Refresh token"

	minSecretLen = 32 // 256 bits, the floor for HMAC-SHA-256
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type AccessClaims struct {
	TokenType   string    `json:"typ"`
	UserID      uuid.UUID `json:"uid"`
	Username    string    `json:"username"`
	Authorities string    `json:"authorities"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	TokenType string    `json:"typ"`
	UserID    uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

type AccessTokenData struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

type RefreshTokenData struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
	TokenID   uuid.UUID
}

// Manager mints and verifies the two token kinds. Access and refresh tokens
// are signed with separate secrets, so presenting one kind where the other is
// expected fails signature verification before any claim is even read. The
// pepper only salts the ledger hash and never signs anything.
type Manager struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	pepper        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(issuer, accessSecret, refreshSecret, pepper string, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	const op = "jwt.NewManager"

	if len(accessSecret) < minSecretLen || len(refreshSecret) < minSecretLen {
		return nil, fmt.Errorf("%s: token secrets must be at least %d bytes", op, minSecretLen)
	}

	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("%s: access and refresh secrets must differ", op)
	}

	if pepper == "" {
		return nil, fmt.Errorf("%s: storage pepper must be set", op)
	}

	return &Manager{
		issuer:        issuer,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		pepper:        pepper,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

func (m *Manager) NewAccessToken(userID uuid.UUID, username string, roles []string) (AccessTokenData, error) {
	const op = "jwt.NewAccessToken"

	now := time.Now()
	expiresAt := now.Add(m.accessTTL)

	claims := AccessClaims{
		TokenType:   TypeAccess,
		UserID:      userID,
		Username:    username,
		Authorities: strings.Join(roles, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subjectAccess,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return AccessTokenData{}, fmt.Errorf("%s: %w", op, err)
	}

	return AccessTokenData{
		Token:     token,
		Username:  username,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *Manager) NewRefreshToken(userID uuid.UUID) (RefreshTokenData, error) {
	const op = "jwt.NewRefreshToken"

	now := time.Now()
	expiresAt := now.Add(m.refreshTTL)
	tokenID := uuid.New()

	claims := RefreshClaims{
		TokenType: TypeRefresh,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subjectRefresh,
			ID:        tokenID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return RefreshTokenData{}, fmt.Errorf("%s: %w", op, err)
	}

	return RefreshTokenData{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		TokenID:   tokenID,
	}, nil
}

// ParseAccess verifies signature and expiry against the access secret. The
// caller still has to check the typ claim; verification alone does not.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if err := m.parse(tokenStr, claims, m.accessSecret); err != nil {
		return nil, err
	}

	return claims, nil
}

// ParseRefresh is the refresh-secret counterpart of ParseAccess.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}

	if err := m.parse(tokenStr, claims, m.refreshSecret); err != nil {
		return nil, err
	}

	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	const op = "jwt.parse"

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}

		return ErrTokenInvalid
	}

	if !parsedToken.Valid {
		return ErrTokenInvalid
	}

	return nil
}

// HashToken computes the ledger form of a refresh token:
// base64(SHA-256(token + pepper)). One-way, so a leaked ledger does not leak
// usable tokens.
func (m *Manager) HashToken(token string) string {
	sum := sha256.Sum256([]byte(token + m.pepper))

	return base64.StdEncoding.EncodeToString(sum[:])
}
