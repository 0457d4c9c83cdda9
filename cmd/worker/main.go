package main

import (
	"care-alert/internal/models"
	"care-alert/internal/repository"
	"care-alert/internal/services"
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// The worker runs the escalation sweep on its own schedule so the API
// deployment can be scaled without multiplying sweep frequency. Running it
// alongside the in-process sweeper is safe: escalation is a compare-and-set.
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

	sweepInterval := viper.GetDuration("worker.sweep_interval")
	if sweepInterval == 0 {
		sweepInterval = 1 * time.Minute
	}

	logger.Info("starting escalation worker", zap.Duration("sweep_interval", sweepInterval))

	alertRepo := repository.NewAlertRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	tokenRepo := repository.NewDeviceTokenRepository(db)
	attemptRepo := repository.NewNotificationAttemptRepository(db)

	dispatcher := services.NewDispatchEngine(tokenRepo, attemptRepo, map[string]services.Transport{
		models.ChannelPush: services.NewPushTransport(),
	}, logger).WithLimits(viper.GetInt("notify.max_concurrency"), viper.GetDuration("notify.timeout"))
	sweeper := services.NewEscalationSweeper(alertRepo, relationshipRepo, dispatcher, nil,
		services.DefaultEscalationRules(), sweepInterval, logger)

	go func() {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("escalation sweeper stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	logger.Info("worker stopped")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/care-alert")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.ReadInConfig()
}

func initLogger() (*zap.Logger, error) {
	if viper.GetBool("app.debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
