package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth_service/internal/auth"
	"auth_service/internal/config"
	"auth_service/internal/http_server/handlers/login"
	"auth_service/internal/http_server/handlers/logout"
	"auth_service/internal/http_server/handlers/refresh"
	"auth_service/internal/http_server/handlers/register"
	"auth_service/internal/http_server/handlers/verify"
	"auth_service/internal/http_server/middleware/authn"
	jwtlib "auth_service/internal/lib/jwt"
	sl "auth_service/internal/lib/logger"
	"auth_service/internal/rabbitmq"
	"auth_service/internal/storage/postgres"
	"auth_service/internal/users"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	if err := postgres.ApplyMigrations(cfg); err != nil {
		log.Error("failed to apply migrations", sl.Err(err))
		os.Exit(1)
	}

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokens, err := jwtlib.NewManager(
		cfg.Tokens.Issuer,
		cfg.Tokens.AccessTokenSecret,
		cfg.Tokens.RefreshTokenSecret,
		cfg.Tokens.StoragePepper,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
	)
	if err != nil {
		log.Error("bad token configuration", sl.Err(err))
		os.Exit(1)
	}

	authService := auth.New(log, storage, storage, tokens)
	userService := users.New(log, storage, storage, msgBroker, cfg.Tokens.VerificationCodeTTL)

	go runLedgerSweep(ctx, log, storage, cfg.Tokens.LedgerSweepInterval)

	router := setupRouter(log, authService, userService, tokens)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	userService *users.Users,
	tokens *jwtlib.Manager,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/auth/login", login.New(log, authService))
	r.Post("/auth/refresh", refresh.New(log, authService))
	r.Post("/auth/logout", logout.New(log, authService))
	r.Post("/user/register", register.New(log, validate, userService))
	r.Post("/user/verify", verify.New(log, validate, userService))

	r.Group(func(r chi.Router) {
		r.Use(authn.New(log, tokens))

		r.Get("/auth", func(w http.ResponseWriter, r *http.Request) {
			principal, _ := authn.PrincipalFromContext(r.Context())
			render.PlainText(w, r, "You are allowed, "+principal.Username)
		})
	})

	return r
}

// runLedgerSweep drops expired ledger rows on a timer. Purely hygiene; an
// expired row is already unusable since token expiry is checked on parse.
func runLedgerSweep(ctx context.Context, log *slog.Logger, storage *postgres.PostgresRepo, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := storage.DeleteExpiredRefreshTokens(ctx)
			if err != nil {
				log.Error("ledger sweep failed", sl.Err(err))
				continue
			}
			if deleted > 0 {
				log.Info("ledger sweep removed expired tokens", slog.Int64("count", deleted))
			}
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
