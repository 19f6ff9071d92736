package verify

import (
	"errors"
	"log/slog"
	"net/http"

	resp "auth_service/internal/lib/api/response"
	sl "auth_service/internal/lib/logger"
	"auth_service/internal/users"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
	Code  int32  `json:"code" validate:"required"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	userService *users.Users,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		err = userService.Verify(r.Context(), req.Email, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, users.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("No account with that email"))
			case errors.Is(err, users.ErrAlreadyVerified):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User is already verified"))
			case errors.Is(err, users.ErrVerificationExpired):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Verification code expired, a new one has been sent"))
			case errors.Is(err, users.ErrVerificationIncorrect):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Verification code is incorrect, a new one has been sent"))
			default:
				log.Error("failed to verify user", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("email verified successfully")

		render.NoContent(w, r)
	}
}
