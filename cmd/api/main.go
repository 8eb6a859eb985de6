package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/internhub/backend/internal/config"
	"github.com/internhub/backend/internal/handlers"
	"github.com/internhub/backend/internal/logger"
	"github.com/internhub/backend/internal/middleware"
	"github.com/internhub/backend/internal/models"
	"github.com/internhub/backend/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.New()
	log := logger.New(cfg)
	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}

	db, err := models.InitDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	if err := models.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	redisClient := models.InitRedis(cfg, log)
	defer redisClient.Close()

	// Background jobs stop when ctx is cancelled during shutdown
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize services
	userService := services.NewUserService(db, cfg.BcryptCost)
	authService := services.NewAuthService(db, redisClient, cfg, log)
	auditService := services.NewAuditService(db, log)

	notifier, err := services.NewNotifier(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize notifier")
	}

	storeCfg := services.ChallengeStoreConfig{
		TTL:         cfg.RecoveryCodeTTL,
		MaxAttempts: cfg.RecoveryMaxAttempts,
	}
	var challengeStore services.ChallengeStore
	switch strings.ToLower(cfg.RecoveryStore) {
	case "redis":
		challengeStore = services.NewRedisChallengeStore(redisClient, storeCfg)
	case "memory", "":
		memoryStore := services.NewMemoryChallengeStore(storeCfg)
		go purgeChallenges(ctx, memoryStore, cfg.RecoveryPurgeInterval, log)
		challengeStore = memoryStore
	default:
		log.WithField("store", cfg.RecoveryStore).Fatal("Unknown RECOVERY_STORE")
	}

	debugEcho := cfg.RecoveryDebugEcho
	if debugEcho && cfg.IsProduction() {
		log.Warn("RECOVERY_DEBUG_ECHO is ignored in production")
		debugEcho = false
	}

	recoveryService := services.NewRecoveryService(
		challengeStore,
		userService,
		notifier,
		auditService,
		authService,
		services.RecoveryConfig{
			EligibleRole: cfg.RecoveryEligibleRole,
			DebugEcho:    debugEcho,
		},
		log,
	)

	go cleanupRefreshTokens(ctx, authService, log)

	// Create admin user if not exists
	if created, err := userService.EnsureDefaultAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminPhone); err != nil {
		log.WithError(err).Warn("Failed to create default admin")
	} else if created {
		log.WithField("email", cfg.AdminEmail).Info("Default admin created")
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg, log))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	recoveryHandler := handlers.NewRecoveryHandler(recoveryService, log)
	userHandler := handlers.NewUserHandler(userService)
	adminHandler := handlers.NewAdminHandler(auditService)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", middleware.Auth(authService), authHandler.Logout)

			// Password recovery by phone
			password := auth.Group("/password")
			password.Use(middleware.RecoveryRateLimit(redisClient, cfg, log))
			{
				password.POST("/forgot", recoveryHandler.ForgotPassword)
				password.POST("/resend", recoveryHandler.ResendOTP)
				password.POST("/reset", recoveryHandler.ResetPassword)
			}
		}

		// User routes
		user := api.Group("/user")
		user.Use(middleware.Auth(authService))
		{
			user.GET("/profile", userHandler.GetProfile)
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.Auth(authService))
		admin.Use(middleware.RoleRequired(models.RoleAdmin))
		{
			admin.GET("/audit/logs", adminHandler.GetAuditLogs)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithField("port", cfg.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}

// purgeChallenges drops expired in-memory challenges. Expiry is enforced on
// read, so this only bounds memory.
func purgeChallenges(ctx context.Context, store *services.MemoryChallengeStore, interval time.Duration, log *logrus.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Purge(); removed > 0 {
				log.WithField("removed", removed).Debug("Purged expired recovery challenges")
			}
		}
	}
}

func cleanupRefreshTokens(ctx context.Context, authService *services.AuthService, log *logrus.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := authService.CleanupExpiredTokens(ctx)
			if err != nil {
				log.WithError(err).Warn("Refresh token cleanup failed")
			} else if deleted > 0 {
				log.WithField("deleted", deleted).Info("Removed expired refresh tokens")
			}
		}
	}
}
