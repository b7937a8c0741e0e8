package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kvasserman/fadelink/config"
	appmodel "github.com/kvasserman/fadelink/internal/app/model"
	apprepository "github.com/kvasserman/fadelink/internal/app/repository"
	appserver "github.com/kvasserman/fadelink/internal/app/server"
	appservice "github.com/kvasserman/fadelink/internal/app/service"
	"github.com/kvasserman/fadelink/internal/app/tokens"
	"github.com/kvasserman/fadelink/internal/auth"
	"github.com/kvasserman/fadelink/internal/infra/logger"
	infraNATS "github.com/kvasserman/fadelink/internal/infra/nats"
	"github.com/kvasserman/fadelink/internal/infra/objstore"
	infraPostgres "github.com/kvasserman/fadelink/internal/infra/postgres"
	infraPrometheus "github.com/kvasserman/fadelink/internal/infra/prometheus"
	infraRedis "github.com/kvasserman/fadelink/internal/infra/redis"
	"go.uber.org/zap"
)

const (
	defaultTokenTTL     = 24 * time.Hour
	openEventPendingTTL = 5 * time.Minute
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret is required")
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.String("minio_endpoint", cfg.Minio.Endpoint),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.User{},
		&appmodel.Document{},
		&appmodel.Link{},
		&appmodel.OpenEvent{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	objects, err := objstore.NewMinioStore(cfg.Minio)
	if err != nil {
		log.Fatal("Failed to create MinIO client", zap.Error(err))
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to ensure MinIO bucket", zap.Error(err))
	}
	log.Info("Connected to MinIO successfully", zap.String("bucket", cfg.Minio.Bucket))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB, pool)
	userRepo := apprepository.NewUserRepository(gormDB)
	docRepo := apprepository.NewDocumentRepository(gormDB)
	openRepo := apprepository.NewOpenEventRepository(gormDB)

	filter := tokens.NewFilter()
	seeded, err := filter.Seed(ctx, linkRepo)
	if err != nil {
		log.Fatal("Failed to seed token filter", zap.Error(err))
	}
	log.Info("Token filter seeded", zap.Int("tokens", seeded))

	openPublisher := appservice.NewOpenPublisher(js)
	openConsumer := appservice.NewOpenConsumer(js, log, openRepo)
	if err := openConsumer.Start(); err != nil {
		log.Fatal("Failed to start open event consumer", zap.Error(err))
	}
	timeoutChecker := appservice.NewOpenTimeoutChecker(log, openRepo, openEventPendingTTL)
	timeoutChecker.Start()
	defer timeoutChecker.Stop()

	tokenTTL := defaultTokenTTL
	if cfg.Auth.TokenTTL != "" {
		if parsed, err := time.ParseDuration(cfg.Auth.TokenTTL); err == nil {
			tokenTTL = parsed
		}
	}
	jwtManager := auth.NewJWTManager([]byte(cfg.Auth.JWTSecret), tokenTTL)

	grantSecret := []byte(cfg.Auth.GrantSecret)
	if len(grantSecret) == 0 {
		grantSecret = []byte(cfg.Auth.JWTSecret)
	}

	accessService := appservice.NewAccessService(appservice.AccessDeps{
		Logger: log,
		Links:  linkRepo,
		Users:  userRepo,
		Filter: filter,
		Cache:  redisClient,
	})
	userService := appservice.NewUserService(log, userRepo)
	documentService := appservice.NewDocumentService(appservice.DocumentDeps{
		Logger:  log,
		Docs:    docRepo,
		Links:   linkRepo,
		Users:   userRepo,
		Objects: objects,
	})
	linkService := appservice.NewLinkService(appservice.LinkDeps{
		Logger:   log,
		Links:    linkRepo,
		Docs:     docRepo,
		Users:    userRepo,
		Opens:    openRepo,
		Registry: filter,
		Cache:    redisClient,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:        log,
		Postgres:      pool,
		Redis:         redisClient,
		NATS:          natsConn,
		JetStream:     js,
		Links:         linkRepo,
		Access:        accessService,
		LinkService:   linkService,
		Documents:     documentService,
		Users:         userService,
		OpenPublisher: openPublisher,
		JWT:           jwtManager,
		GrantSecret:   grantSecret,
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := server.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
