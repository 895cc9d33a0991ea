// Package main runs the NGO submission HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ngo-platform/backend/config"
	"github.com/ngo-platform/backend/internal/analyzer"
	"github.com/ngo-platform/backend/internal/correspondence"
	"github.com/ngo-platform/backend/internal/esign"
	"github.com/ngo-platform/backend/internal/identity"
	"github.com/ngo-platform/backend/internal/middleware"
	"github.com/ngo-platform/backend/internal/organizations"
	"github.com/ngo-platform/backend/internal/submissions"
	"github.com/ngo-platform/backend/internal/templates"
	"github.com/ngo-platform/backend/internal/textgen"
	"github.com/ngo-platform/backend/internal/worker"
	"github.com/ngo-platform/backend/pkg/database"
	"github.com/ngo-platform/backend/pkg/mailer"
	"github.com/ngo-platform/backend/pkg/mongodb"
	"github.com/ngo-platform/backend/pkg/queue"
	"github.com/ngo-platform/backend/pkg/redis"
	"github.com/ngo-platform/backend/pkg/response"
	"github.com/ngo-platform/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Stores (organizations + submissions) on the configured driver
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
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		orgRepo = organizations.NewPostgresRepository(pool)
		subRepo = submissions.NewPostgresRepository(pool)
	}

	// Redis backs idempotency keys and the delivery queue; both are off without it
	var (
		idem     submissions.Idempotency
		jobQueue *queue.Queue
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		idem = submissions.NewRedisIdempotency(rdb.Client, cfg.Redis.IdempotencyTTL)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			TemplatesBucket: cfg.AWS.TemplatesBucket,
			DocumentsBucket: cfg.AWS.DocumentsBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	var docuSign *esign.DocuSign
	if cfg.ESign.Enabled {
		docuSign, err = esign.NewDocuSign(esign.Config{
			AccountID:      cfg.ESign.AccountID,
			IntegrationKey: cfg.ESign.IntegrationKey,
			UserID:         cfg.ESign.UserID,
			PrivateKey:     cfg.ESign.PrivateKey,
			BasePath:       cfg.ESign.BasePath,
			OAuthHost:      cfg.ESign.OAuthHost,
			TokenTTL:       cfg.ESign.TokenTTL,
			Timeout:        cfg.Workflow.ESignTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("docusign", zap.Error(err))
		}
	}

	gen := textgen.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logger)
	gate := identity.NewGate(orgRepo, logger)

	var opts []submissions.Option
	if docuSign != nil {
		opts = append(opts, submissions.WithAgreements(docuSign))
	}
	if s3Client != nil {
		opts = append(opts, submissions.WithDocumentStore(s3Client))
	}
	if jobQueue != nil {
		opts = append(opts, submissions.WithDelivery(jobQueue))
	}
	processor := submissions.NewProcessor(gate, analyzer.New(gen), correspondence.New(gen), subRepo, cfg.Workflow, logger, opts...)

	maxUpload := cfg.Server.MaxUploadBytes()
	orgHandler := organizations.NewHandler(orgRepo, logger)
	submissionHandler := submissions.NewHandler(processor, idem, maxUpload, logger)

	var (
		templateFiles   templates.FileStore
		templateCreator templates.Creator
	)
	if s3Client != nil {
		templateFiles = s3Client
	}
	if docuSign != nil {
		templateCreator = docuSign
	}
	templateHandler := templates.NewHandler(gate, templateFiles, templateCreator, orgRepo, cfg.Workflow, maxUpload, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: onboarding and credential retrieval
	router.POST("/onboarding", orgHandler.Onboard)
	router.GET("/apikeys/:id", orgHandler.GetAPIKeys)

	// Protected API (organization credential required)
	api := router.Group("")
	api.Use(middleware.RequireCredential(gate))
	{
		api.POST("/templates/:id", templateHandler.Upload)

		api.POST("/donor", submissionHandler.Donor)
		api.POST("/recipient", submissionHandler.Recipient)
		api.GET("/donors/:id", submissionHandler.ListDonors)
		api.GET("/recipients/:id", submissionHandler.ListRecipients)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (correspondence delivery over SMTP)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if jobQueue != nil && cfg.Email.SMTPHost != "" {
		smtp := mailer.NewSMTP(mailer.Config{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			User:        cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		})
		delivery := worker.NewDeliveryProcessor(subRepo, orgRepo, smtp, jobQueue, logger)
		go delivery.Run(workerCtx)
		logger.Info("delivery worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
