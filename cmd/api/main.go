package main

import (
	"care-alert/internal/cache"
	"care-alert/internal/handlers"
	"care-alert/internal/middleware"
	"care-alert/internal/models"
	"care-alert/internal/repository"
	"care-alert/internal/services"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title Care Alert API
// @version 1.0
// @description Health alert routing and escalation engine for caregiver networks
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initConfig()

	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := repository.NewDatabase()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	alertRepo := repository.NewAlertRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	tokenRepo := repository.NewDeviceTokenRepository(db)
	attemptRepo := repository.NewNotificationAttemptRepository(db)
	clinicalRepo := repository.NewClinicalRepository(db)
	accountRepo := repository.NewCaregiverAccountRepository(db)

	var directory services.RelationshipDirectory = relationshipRepo
	if addr := viper.GetString("redis.addr"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, relationship cache disabled", zap.Error(err))
		} else {
			directory = cache.NewCachedDirectory(client, relationshipRepo,
				viper.GetDuration("redis.relationship_ttl"), logger)
		}
	}

	wsHandler := handlers.NewWebSocketHandler(logger)

	caregiverRouter := services.NewCaregiverRouter(directory, logger)
	dispatcher := services.NewDispatchEngine(tokenRepo, attemptRepo, map[string]services.Transport{
		models.ChannelPush: services.NewPushTransport(),
	}, logger).WithLimits(viper.GetInt("notify.max_concurrency"), viper.GetDuration("notify.timeout"))
	clinicalRouter := services.NewClinicalRouter(clinicalRepo, logger)
	sweeper := services.NewEscalationSweeper(alertRepo, directory, dispatcher, wsHandler,
		services.DefaultEscalationRules(), sweepInterval(), logger)
	alertService := services.NewAlertService(alertRepo, directory, caregiverRouter,
		dispatcher, clinicalRouter, wsHandler, logger)
	authService := services.NewAuthService(accountRepo, viper.GetString("jwt.secret"), logger)

	alertHandler := handlers.NewAlertHandler(alertService)
	authHandler := handlers.NewAuthHandler(authService)
	escalationHandler := handlers.NewEscalationHandler(sweeper)

	router := initRouter(logger, wsHandler, authHandler, alertHandler, escalationHandler)

	addr := fmt.Sprintf("%s:%d", viper.GetString("app.host"), viper.GetInt("app.port"))

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting API server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	go func() {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("escalation sweeper stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/care-alert")
	viper.AutomaticEnv()
	// So env vars like DATABASE_HOST (not DATABASE.HOST) override config keys like database.host
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.ReadInConfig()
}

func initLogger() (*zap.Logger, error) {
	if viper.GetBool("app.debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func sweepInterval() time.Duration {
	if d := viper.GetDuration("escalation.sweep_interval"); d > 0 {
		return d
	}
	return time.Minute
}

func runMigrations(db *repository.Database) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			sharer_email VARCHAR(128) NOT NULL,
			alert_type VARCHAR(32) NOT NULL,
			severity VARCHAR(32) NOT NULL,
			title VARCHAR(256) NOT NULL,
			message TEXT NOT NULL,
			recommendation TEXT,
			context JSONB,
			routed_to_caregivers TEXT[] NOT NULL DEFAULT '{}',
			routed_to_clinical BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(32) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			acknowledged_at TIMESTAMP,
			acknowledged_by VARCHAR(128),
			resolved_at TIMESTAMP,
			resolved_by VARCHAR(128),
			resolution_note TEXT,
			escalated_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sharer ON alerts (sharer_email, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_escalatable ON alerts (status, severity, created_at)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id UUID PRIMARY KEY,
			sharer_email VARCHAR(128) NOT NULL,
			caregiver_email VARCHAR(128) NOT NULL,
			role VARCHAR(32) NOT NULL DEFAULT 'secondary',
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			permissions JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			UNIQUE(sharer_email, caregiver_email)
		)`,
		`CREATE TABLE IF NOT EXISTS device_tokens (
			id UUID PRIMARY KEY,
			caregiver_email VARCHAR(128) NOT NULL,
			channel VARCHAR(32) NOT NULL,
			token VARCHAR(512) NOT NULL,
			status INT DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_device_tokens_lookup ON device_tokens (caregiver_email, channel, status)`,
		`CREATE TABLE IF NOT EXISTS notification_attempts (
			id UUID PRIMARY KEY,
			alert_id UUID NOT NULL,
			caregiver_email VARCHAR(128) NOT NULL,
			channel VARCHAR(32) NOT NULL,
			priority VARCHAR(32),
			success BOOLEAN NOT NULL,
			error TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS clinical_coordinations (
			id UUID PRIMARY KEY,
			sharer_email VARCHAR(128) NOT NULL,
			provider_name VARCHAR(128) NOT NULL,
			provider_email VARCHAR(128),
			alerting_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS clinical_alerts (
			id UUID PRIMARY KEY,
			coordination_id UUID NOT NULL,
			sharer_email VARCHAR(128) NOT NULL,
			alert_id UUID NOT NULL,
			severity VARCHAR(32) NOT NULL,
			title VARCHAR(256) NOT NULL,
			summary TEXT,
			context JSONB,
			visible_to_caregivers BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS caregiver_accounts (
			id UUID PRIMARY KEY,
			email VARCHAR(128) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			name VARCHAR(128),
			status INT DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			last_login_at TIMESTAMP
		)`,
	}

	ctx := context.Background()
	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}

func initRouter(
	logger *zap.Logger,
	wsHandler *handlers.WebSocketHandler,
	authHandler *handlers.AuthHandler,
	alertHandler *handlers.AlertHandler,
	escalationHandler *handlers.EscalationHandler) *gin.Engine {

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	go wsHandler.HandleBroadcast()

	public := router.Group("/api/v1")
	{
		public.POST("/auth/login", authHandler.Login)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(viper.GetString("jwt.secret")))
	{
		api.GET("/ws", wsHandler.HandleConnection)

		api.POST("/alerts", alertHandler.Create)
		api.POST("/alerts/from-anomaly", alertHandler.CreateFromAnomaly)
		api.POST("/alerts/from-pattern-break", alertHandler.CreateFromPatternBreak)
		api.GET("/alerts", alertHandler.List)
		api.GET("/sharers/:email/alerts", alertHandler.ListForSharer)
		api.POST("/alerts/:id/acknowledge", alertHandler.Acknowledge)
		api.POST("/alerts/:id/resolve", alertHandler.Resolve)

		api.POST("/escalations/process", escalationHandler.Process)
	}

	return router
}
