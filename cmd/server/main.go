// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GavinAlgin/digital-portal/internal/accommodation"
	"github.com/GavinAlgin/digital-portal/internal/audit"
	"github.com/GavinAlgin/digital-portal/internal/authz"
	"github.com/GavinAlgin/digital-portal/internal/config"
	"github.com/GavinAlgin/digital-portal/internal/enrollment"
	"github.com/GavinAlgin/digital-portal/internal/events"
	"github.com/GavinAlgin/digital-portal/internal/identity"
	"github.com/GavinAlgin/digital-portal/internal/idnumber"
	"github.com/GavinAlgin/digital-portal/internal/mail"
	"github.com/GavinAlgin/digital-portal/internal/observability/logger"
	"github.com/GavinAlgin/digital-portal/internal/observability/metrics"
	"github.com/GavinAlgin/digital-portal/internal/observability/tracing"
	"github.com/GavinAlgin/digital-portal/internal/session"
	"github.com/GavinAlgin/digital-portal/internal/store/postgres"
	"github.com/GavinAlgin/digital-portal/internal/support"
	transportHTTP "github.com/GavinAlgin/digital-portal/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting digital portal")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	portalMetrics, err := metrics.NewPortal(meter)
	if err != nil {
		slog.Error("failed to create portal metrics", logger.Error(err))
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	profileRepo := postgres.NewProfileRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	supportRepo := postgres.NewSupportRepository(db)
	accommodationRepo := postgres.NewAccommodationRepository(db)

	// Helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	resetTokens := identity.NewResetTokens(
		[]byte(cfg.Security.ResetTokenSecret),
		cfg.Security.ResetTokenTTL,
		nil,
	)

	// Services
	identityService := identity.NewService(
		userRepo,
		passwordHasher,
		resetTokens,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout, nil)
	gate := authz.NewGate(sessionService, profileRepo, auditLogger, portalMetrics)
	allocator := idnumber.NewAllocator(profileRepo, nil)
	enrollmentService := enrollment.NewService(
		identityService,
		profileRepo,
		allocator,
		auditLogger,
		portalMetrics,
		cfg.Enrollment.AllocationMaxAttempts,
	)
	eventService := events.NewService(eventRepo, auditLogger)
	supportService := support.NewService(supportRepo, portalMetrics, nil)
	accommodationService := accommodation.NewService(accommodationRepo)

	var mailer mail.Mailer
	switch cfg.Mail.Backend {
	case "sendgrid":
		mailer = mail.NewSendgridMailer(cfg.Mail.SendgridAPIKey, cfg.Mail.FromName, cfg.Mail.FromAddress)
	default:
		mailer = mail.NewConsoleMailer(slog.Default())
	}

	// Create the initial admin if the environment asks for one and none
	// exists yet.
	bootstrapService := identity.NewBootstrapService(identityService, profileRepo, auditLogger)
	if err := bootstrapService.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
		os.Exit(1)
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	handler := transportHTTP.NewHandler(
		transportHTTP.HandlerDeps{
			Identity:      identityService,
			Sessions:      sessionService,
			Enrollment:    enrollmentService,
			Events:        eventService,
			Support:       supportService,
			Accommodation: accommodationService,
			Profiles:      profileRepo,
			Gate:          gate,
			Mailer:        mailer,
			AuditLogger:   auditLogger,
		},
		transportHTTP.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookieDomain:   cfg.Session.CookieDomain,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.Session.CookieSecure,
			CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
			CookieSameSite: sameSite,
			Lifetime:       cfg.Session.Lifetime,
		},
		cfg.Mail.FrontendBaseURL,
	)

	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Session sweep
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sessionService.CleanupExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "cleaned up expired sessions", slog.Int64("count", n))
			}
		}
	}()

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
