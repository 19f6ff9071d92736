package refresh

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"auth_service/internal/auth"
	resp "auth_service/internal/lib/api/response"
	jwtlib "auth_service/internal/lib/jwt"
	sl "auth_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

const bearerPrefix = "Bearer "

type Response struct {
	resp.Response
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// New returns the rotation handler. The refresh token arrives in the
// Authorization header, Bearer format, not in the body.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			log.Warn("missing bearer token")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Authorization header must follow the 'Bearer <token>' format"))

			return
		}

		pair, err := authService.Refresh(r.Context(), strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			switch {
			case errors.Is(err, jwtlib.ErrTokenExpired):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token has expired, please log in again"))
			case errors.Is(err, jwtlib.ErrTokenInvalid),
				errors.Is(err, auth.ErrWrongTokenType),
				errors.Is(err, auth.ErrMalformedToken):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token is invalid"))
			case errors.Is(err, auth.ErrTokenRevoked),
				errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token is no longer valid, please log in again"))
			default:
				log.Error("failed to refresh tokens", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Tokens refreshed successfully")

		ResponseOK(w, r, pair)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	render.JSON(w, r, Response{
		Response:         resp.OK(),
		AccessToken:      pair.AccessToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}
