package logout

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"auth_service/internal/auth"
	resp "auth_service/internal/lib/api/response"
	jwtlib "auth_service/internal/lib/jwt"
	sl "auth_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

const bearerPrefix = "Bearer "

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

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

		err := authService.Logout(r.Context(), strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			if errors.Is(err, jwtlib.ErrTokenExpired) ||
				errors.Is(err, jwtlib.ErrTokenInvalid) ||
				errors.Is(err, auth.ErrWrongTokenType) ||
				errors.Is(err, auth.ErrMalformedToken) ||
				errors.Is(err, auth.ErrTokenRevoked) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token is not valid"))

				return
			}

			log.Error("failed to logout", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("logout successful")

		render.JSON(w, r, resp.OK())
	}
}
