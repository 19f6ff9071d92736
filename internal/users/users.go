package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "auth_service/internal/lib/logger"
	"auth_service/internal/lib/verification"
	"auth_service/internal/models"
	"auth_service/internal/storage"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"
)

const baseRole = "USER"

var (
	ErrIdentityTaken         = errors.New("username or email already taken")
	ErrUserNotFound          = errors.New("user not found")
	ErrAlreadyVerified       = errors.New("user is already verified")
	ErrVerificationExpired   = errors.New("verification code expired, a new one has been issued")
	ErrVerificationIncorrect = errors.New("verification code is incorrect, a new one has been issued")
)

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) (uuid.UUID, error)
	UpdateVerification(ctx context.Context, userID uuid.UUID, code int32, expiry time.Time) error
	SetVerified(ctx context.Context, userID uuid.UUID) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type RegisterRequest struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
}

type Users struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	publisher   Publisher
	codeTTL     time.Duration
	sanitizer   *bluemonday.Policy
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	publisher Publisher,
	codeTTL time.Duration,
) *Users {
	return &Users{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		publisher:   publisher,
		codeTTL:     codeTTL,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Register creates a disabled account with a pending verification code and
// notifies the mail queue. Free-text fields are stripped of all markup before
// they are stored.
func (u *Users) Register(ctx context.Context, req RegisterRequest) (uuid.UUID, error) {
	const op = "users.Register"

	log := u.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	code, err := verification.NewCode()
	if err != nil {
		log.Error("failed to generate verification code", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	expiry := time.Now().Add(u.codeTTL)

	user := models.User{
		ID:         uuid.New(),
		Username:   u.sanitizer.Sanitize(req.Username),
		FirstName:  u.sanitizer.Sanitize(req.FirstName),
		LastName:   u.sanitizer.Sanitize(req.LastName),
		Email:      req.Email,
		PassHash:   passHash,
		Enabled:    false,
		Roles:      []string{baseRole},
		Code:       &code,
		CodeExpiry: &expiry,
	}

	id, err := u.usrSaver.SaveUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("username or email already taken")
			return uuid.Nil, ErrIdentityTaken
		}

		log.Error("failed to save user", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	u.notify(ctx, log, user.Email, user.Username, code)

	log.Info("user registered", slog.String("uid", id.String()))

	return id, nil
}

// Verify drives the UNVERIFIED -> VERIFIED transition. An expired or wrong
// code regenerates a fresh code before the call reports failure; the new code
// is committed regardless, so the old one is dead either way.
func (u *Users) Verify(ctx context.Context, email string, code int32) error {
	const op = "users.Verify"

	log := u.log.With(slog.String("op", op))

	user, err := u.usrProvider.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("verification attempt for unknown email")
			return ErrUserNotFound
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.Enabled {
		return ErrAlreadyVerified
	}

	if user.Code == nil || user.CodeExpiry == nil {
		return fmt.Errorf("%s: unverified account has no pending code", op)
	}

	if time.Now().After(*user.CodeExpiry) {
		if err := u.reissueCode(ctx, log, user); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return ErrVerificationExpired
	}

	if *user.Code != code {
		if err := u.reissueCode(ctx, log, user); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return ErrVerificationIncorrect
	}

	if err := u.usrSaver.SetVerified(ctx, user.ID); err != nil {
		log.Error("failed to enable user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.String("uid", user.ID.String()))

	return nil
}

func (u *Users) reissueCode(ctx context.Context, log *slog.Logger, user models.User) error {
	newCode, err := verification.NewCode()
	if err != nil {
		log.Error("failed to generate verification code", sl.Err(err))
		return err
	}

	expiry := time.Now().Add(u.codeTTL)

	if err := u.usrSaver.UpdateVerification(ctx, user.ID, newCode, expiry); err != nil {
		log.Error("failed to persist new verification code", sl.Err(err))
		return err
	}

	u.notify(ctx, log, user.Email, user.Username, newCode)

	log.Info("verification code reissued", slog.String("uid", user.ID.String()))

	return nil
}

// notify hands the code to the delivery queue. Delivery problems are logged
// and do not undo the state change that produced the code.
func (u *Users) notify(ctx context.Context, log *slog.Logger, email, username string, code int32) {
	msg := models.Message{
		Email:    email,
		Username: username,
		Code:     code,
	}

	if err := u.publisher.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish verification message", sl.Err(err))
	}
}
