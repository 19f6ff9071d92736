package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	resp "auth_service/internal/lib/api/response"
	jwtlib "auth_service/internal/lib/jwt"
	sl "auth_service/internal/lib/logger"

	"github.com/go-chi/render"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

// Principal is the authenticated identity threaded through the request
// context once the access token checks out.
type Principal struct {
	UserID      uuid.UUID
	Username    string
	Authorities []string
}

type principalKey struct{}

// New rejects any request without a valid access token before handler logic
// runs. A well-signed refresh token is still rejected here on the typ claim.
func New(log *slog.Logger, tokens *jwtlib.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.New"

			log := log.With(slog.String("op", op))

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Authorization header must follow the 'Bearer <token>' format"))

				return
			}

			claims, err := tokens.ParseAccess(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				if errors.Is(err, jwtlib.ErrTokenExpired) {
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, resp.Error("Access token has expired, please refresh"))

					return
				}

				log.Warn("access token failed verification", sl.Err(err))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Access token is invalid"))

				return
			}

			if claims.TokenType != jwtlib.TypeAccess {
				log.Warn("non-access token presented on a secured endpoint")

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Cannot use this token kind on secured endpoints"))

				return
			}

			principal := Principal{
				UserID:      claims.UserID,
				Username:    claims.Username,
				Authorities: splitAuthorities(claims.Authorities),
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)

	return p, ok
}

func splitAuthorities(joined string) []string {
	if joined == "" {
		return nil
	}

	return strings.Split(joined, ",")
}
