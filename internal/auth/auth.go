package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jwtlib "auth_service/internal/lib/jwt"
	sl "auth_service/internal/lib/logger"
	"auth_service/internal/models"
	"auth_service/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers every login failure. Unknown user, wrong
	// password and disabled account must be indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongTokenType     = errors.New("wrong token type")
	ErrMalformedToken     = errors.New("token is missing required claims")
	ErrTokenRevoked       = errors.New("refresh token revoked or unknown")
)

type UserProvider interface {
	UserByLogin(ctx context.Context, login string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type TokenLedger interface {
	SaveRefreshToken(ctx context.Context, record models.RefreshTokenRecord) error
	RefreshTokenByID(ctx context.Context, tokenID uuid.UUID) (models.RefreshTokenRecord, error)
	DeleteRefreshToken(ctx context.Context, tokenID uuid.UUID) error
	RotateRefreshToken(ctx context.Context, oldTokenID uuid.UUID, newRecord models.RefreshTokenRecord) error
}

type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Auth struct {
	log         *slog.Logger
	usrProvider UserProvider
	ledger      TokenLedger
	tokens      *jwtlib.Manager
}

func New(
	log *slog.Logger,
	userProvider UserProvider,
	ledger TokenLedger,
	tokens *jwtlib.Manager,
) *Auth {
	return &Auth{
		log:         log,
		usrProvider: userProvider,
		ledger:      ledger,
		tokens:      tokens,
	}
}

// Login checks the credentials against the stored hash and, on success, mints
// an access/refresh pair and persists the hashed refresh record.
func (a *Auth) Login(ctx context.Context, login, password string) (TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid password", slog.String("uid", user.ID.String()))
		return TokenPair{}, ErrInvalidCredentials
	}

	if !user.Enabled {
		log.Info("login attempt on unverified account", slog.String("uid", user.ID.String()))
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, refreshData, err := a.mintPair(user)
	if err != nil {
		log.Error("failed to mint tokens", sl.Err(err))
		return TokenPair{}, err
	}

	err = a.ledger.SaveRefreshToken(ctx, models.RefreshTokenRecord{
		TokenID:   refreshData.TokenID,
		TokenHash: a.tokens.HashToken(refreshData.Token),
		ExpiresAt: refreshData.ExpiresAt,
	})
	if err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return TokenPair{}, err
	}

	log.Info("user logged in successfully", slog.String("uid", user.ID.String()))

	return pair, nil
}

// Refresh rotates a refresh token: verify signature and expiry, assert the
// type claim, require the ledger record to still exist, reload the user so the
// new access token carries current authorities, then atomically swap the old
// ledger record for the new one.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.ParseRefresh(refreshToken)
	if err != nil {
		log.Warn("refresh token failed verification", sl.Err(err))
		return TokenPair{}, err
	}

	if claims.TokenType != jwtlib.TypeRefresh {
		log.Warn("access token presented on the refresh path")
		return TokenPair{}, ErrWrongTokenType
	}

	if claims.ID == "" {
		return TokenPair{}, ErrMalformedToken
	}

	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return TokenPair{}, ErrMalformedToken
	}

	if _, err := a.ledger.RefreshTokenByID(ctx, tokenID); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token not in ledger", slog.String("jti", tokenID.String()))
			return TokenPair{}, ErrTokenRevoked
		}

		log.Error("ledger lookup failed", sl.Err(err))
		return TokenPair{}, err
	}

	// Authorities come from the database, not from year-old claims.
	user, err := a.usrProvider.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token for missing user", slog.String("uid", claims.UserID.String()))
			return TokenPair{}, ErrInvalidCredentials
		}

		log.Error("failed to load user", sl.Err(err))
		return TokenPair{}, err
	}

	pair, refreshData, err := a.mintPair(user)
	if err != nil {
		log.Error("failed to mint tokens", sl.Err(err))
		return TokenPair{}, err
	}

	err = a.ledger.RotateRefreshToken(ctx, tokenID, models.RefreshTokenRecord{
		TokenID:   refreshData.TokenID,
		TokenHash: a.tokens.HashToken(refreshData.Token),
		ExpiresAt: refreshData.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			// A concurrent rotation with the same token won the delete.
			log.Warn("lost rotation race", slog.String("jti", tokenID.String()))
			return TokenPair{}, ErrTokenRevoked
		}

		log.Error("failed to rotate refresh token", sl.Err(err))
		return TokenPair{}, err
	}

	log.Info("tokens refreshed", slog.String("uid", user.ID.String()))

	return pair, nil
}

// Logout revokes the refresh token by removing its ledger record.
func (a *Auth) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	claims, err := a.tokens.ParseRefresh(refreshToken)
	if err != nil {
		log.Warn("refresh token failed verification", sl.Err(err))
		return err
	}

	if claims.TokenType != jwtlib.TypeRefresh {
		return ErrWrongTokenType
	}

	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return ErrMalformedToken
	}

	if err := a.ledger.DeleteRefreshToken(ctx, tokenID); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return ErrTokenRevoked
		}

		log.Error("failed to delete refresh token", sl.Err(err))
		return err
	}

	log.Info("logout successful", slog.String("jti", tokenID.String()))

	return nil
}

func (a *Auth) mintPair(user models.User) (TokenPair, jwtlib.RefreshTokenData, error) {
	accessData, err := a.tokens.NewAccessToken(user.ID, user.Username, user.Roles)
	if err != nil {
		return TokenPair{}, jwtlib.RefreshTokenData{}, err
	}

	refreshData, err := a.tokens.NewRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, jwtlib.RefreshTokenData{}, err
	}

	return TokenPair{
		AccessToken:      accessData.Token,
		AccessExpiresAt:  accessData.ExpiresAt,
		RefreshToken:     refreshData.Token,
		RefreshExpiresAt: refreshData.ExpiresAt,
	}, refreshData, nil
}
