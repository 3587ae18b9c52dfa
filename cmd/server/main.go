package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"taskhive/internal/clock"
	"taskhive/internal/config"
	"taskhive/internal/credential"
	"taskhive/internal/database"
	"taskhive/internal/handlers"
	"taskhive/internal/reminder"
	"taskhive/internal/repository"
	"taskhive/internal/security"
	"taskhive/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// Initialize database (supports sqlite, postgres, mysql)
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	// Run migrations
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations completed successfully")

	clk := clock.NewReal()

	// Ephemeral credential store (OTP codes, reset tokens)
	creds, closeCreds, err := newCredentialStore(cfg, clk)
	if err != nil {
		log.Fatalf("Failed to initialize credential store: %v", err)
	}
	defer closeCreds()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	// Initialize services
	emailService, err := service.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL, cfg.EmailDebug)
	if err != nil {
		log.Fatalf("Failed to initialize email service: %v", err)
	}
	if !emailService.IsEnabled() {
		log.Println("Reminders, codes and links will be logged, not delivered")
	}

	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, clk)
	authService := service.NewAuthService(userRepo, tokens, emailService)
	userService := service.NewUserService(userRepo, creds, emailService, cfg.OTPTTL, cfg.ResetTokenTTL)
	taskService := service.NewTaskService(taskRepo)
	quoteService := service.NewQuoteService(cfg.QuotesURL)

	// Reminder scheduler
	scheduler := reminder.NewScheduler(taskRepo, emailService, clk, cfg.SchedulerPeriod, cfg.DispatchTimeout)
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Run(schedulerCtx)

	// Initialize handlers
	ipLimiter := security.NewRateLimiter(30, time.Minute)
	redeemLimiter := security.NewRateLimiter(5, 5*time.Minute)
	middleware := handlers.NewMiddleware(tokens, ipLimiter)
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService, redeemLimiter)
	taskHandler := handlers.NewTaskHandler(taskService)
	adminHandler := handlers.NewAdminHandler(userService)
	healthHandler := handlers.NewHealthHandler(quoteService)

	// Setup routes
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("POST /public/register", middleware.RateLimit(authHandler.Register))
	mux.HandleFunc("POST /public/forgot-password", middleware.RateLimit(userHandler.ForgotPassword))
	mux.HandleFunc("POST /public/reset-password", middleware.RateLimit(userHandler.ResetPassword))
	mux.HandleFunc("POST /auth/login", middleware.RateLimit(authHandler.Login))
	mux.HandleFunc("POST /auth/refresh", middleware.RateLimit(authHandler.Refresh))

	// Protected routes
	mux.HandleFunc("GET /users/me", middleware.RequireAuth(userHandler.Me))
	mux.HandleFunc("PUT /users/me", middleware.RequireAuth(userHandler.UpdateMe))
	mux.HandleFunc("POST /auth/verify/send", middleware.RequireAuth(userHandler.SendVerification))
	mux.HandleFunc("POST /auth/verify/confirm", middleware.RequireAuth(userHandler.ConfirmVerification))

	mux.HandleFunc("GET /tasks", middleware.RequireAuth(taskHandler.List))
	mux.HandleFunc("POST /tasks", middleware.RequireAuth(taskHandler.Create))
	mux.HandleFunc("GET /tasks/{id}", middleware.RequireAuth(taskHandler.Get))
	mux.HandleFunc("PUT /tasks/{id}", middleware.RequireAuth(taskHandler.Update))
	mux.HandleFunc("DELETE /tasks/{id}", middleware.RequireAuth(taskHandler.Delete))
	mux.HandleFunc("POST /tasks/{id}/reminder", middleware.RequireAuth(taskHandler.ArmReminder))
	mux.HandleFunc("DELETE /tasks/{id}/reminder", middleware.RequireAuth(taskHandler.DisableReminder))
	mux.HandleFunc("POST /tasks/{id}/reminder/retry", middleware.RequireAuth(taskHandler.RetryReminder))

	// Admin routes
	mux.HandleFunc("GET /admin/users", middleware.RequireAdmin(adminHandler.ListUsers))
	mux.HandleFunc("PUT /admin/users/{id}/roles", middleware.RequireAdmin(adminHandler.UpdateRoles))
	mux.HandleFunc("DELETE /admin/users/{id}", middleware.RequireAdmin(adminHandler.DeleteUser))

	// Wrap with logging middleware
	handler := handlers.Logging(mux)

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// newCredentialStore builds the configured credential backend. The redis
// backend is for multi-instance deployments; the in-memory store covers
// a single process.
func newCredentialStore(cfg *config.Config, clk clock.Clock) (credential.Store, func(), error) {
	switch cfg.CredentialBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, err
		}
		log.Printf("Credential store: redis (%s)", cfg.RedisAddr)
		return credential.NewRedisStore(client), func() { client.Close() }, nil

	case "memory", "":
		log.Println("Credential store: in-memory")
		store := credential.NewMemoryStore(clk)
		return store, store.Close, nil

	default:
		log.Fatalf("Unknown credential backend: %q", cfg.CredentialBackend)
		return nil, nil, nil
	}
}
