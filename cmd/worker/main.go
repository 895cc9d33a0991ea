// Package main runs the background job worker (correspondence delivery over SMTP).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ngo-platform/backend/config"
	"github.com/ngo-platform/backend/internal/organizations"
	"github.com/ngo-platform/backend/internal/submissions"
	"github.com/ngo-platform/backend/internal/worker"
	"github.com/ngo-platform/backend/pkg/database"
	"github.com/ngo-platform/backend/pkg/mailer"
	"github.com/ngo-platform/backend/pkg/mongodb"
	"github.com/ngo-platform/backend/pkg/queue"
	"github.com/ngo-platform/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Redis.Addr == "" || cfg.Email.SMTPHost == "" {
		logger.Fatal("worker requires REDIS_ADDR and SMTP_HOST")
	}

	ctx := context.Background()
	var (
		orgRepo organizations.Store
		subRepo submissions.Store
	)
	switch cfg.Database.Driver {
	case config.DriverMongo:
		mc, err := mongodb.Connect(ctx, cfg.Mongo.URL, cfg.Mongo.Database, cfg.Mongo.Timeout, logger)
		if err != nil {
			logger.Fatal("mongodb", zap.Error(err))
		}
		defer mc.Close(context.Background())
		if orgRepo, err = organizations.NewMongoRepository(ctx, mc); err != nil {
			logger.Fatal("organizations store", zap.Error(err))
		}
		if subRepo, err = submissions.NewMongoRepository(ctx, mc); err != nil {
			logger.Fatal("submissions store", zap.Error(err))
		}
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		orgRepo = organizations.NewPostgresRepository(pool)
		subRepo = submissions.NewPostgresRepository(pool)
	}

	rdb, err := redis.NewClient(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	smtp := mailer.NewSMTP(mailer.Config{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		User:        cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPass,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	})
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewDeliveryProcessor(subRepo, orgRepo, smtp, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
