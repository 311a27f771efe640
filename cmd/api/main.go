package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-lms-api/internal/config"
	"github.com/noah-isme/gema-lms-api/internal/database"
	"github.com/noah-isme/gema-lms-api/internal/handler"
	"github.com/noah-isme/gema-lms-api/internal/middleware"
	"github.com/noah-isme/gema-lms-api/internal/models"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/internal/repository"
	"github.com/noah-isme/gema-lms-api/internal/router"
	"github.com/noah-isme/gema-lms-api/internal/service"
	cloud "github.com/noah-isme/gema-lms-api/pkg/cloudinary"
	"github.com/noah-isme/gema-lms-api/pkg/gcs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OTelExporterEndpoint,
		Insecure:    cfg.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("failed to initialise tracing: %v", err)
	}

	db, err := database.ConnectPostgres(ctx, database.PostgresOptions{
		DSN:                cfg.DatabaseURL,
		MaxOpenConns:       cfg.DBMaxOpenConns,
		MaxIdleConns:       cfg.DBMaxIdleConns,
		ConnMaxLifetime:    cfg.DBConnMaxLifetime,
		SlowQueryThreshold: cfg.DBSlowQuery,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	resourceStore, err := gcs.New(ctx, gcs.Config{
		Bucket:          cfg.GCSBucket,
		CredentialsFile: cfg.GCSCredentialsFile,
		EmulatorHost:    cfg.GCSEmulatorHost,
		Endpoint:        cfg.GCSEndpoint,
		SignerEmail:     cfg.GCSSignerEmail,
		PrivateKeyFile:  cfg.GCSPrivateKeyFile,
		UploadTimeout:   cfg.StorageUploadTimeout,
		DeleteTimeout:   cfg.StorageDeleteTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create resource store: %v", err)
	}
	defer resourceStore.Close()

	submissionStore, err := cloud.New(cloud.Config{
		CloudName:     cfg.CloudinaryCloudName,
		APIKey:        cfg.CloudinaryAPIKey,
		APISecret:     cfg.CloudinaryAPISecret,
		Folder:        cfg.CloudinaryUploadFolder,
		APIEndpoint:   cfg.CloudinaryAPIEndpoint,
		UploadTimeout: cfg.StorageUploadTimeout,
		DeleteTimeout: cfg.StorageDeleteTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create submission store: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	activityRepo := repository.NewActivityLogRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	contentRepo := repository.NewContentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.NotificationsChannel, natsConn, logger)
	resourceService := service.NewResourceService(resourceRepo, contentRepo, enrollmentRepo, resourceStore, validate, activityService, service.ResourceOptions{
		Policy: service.FilePolicy{
			AllowedExtensions: cfg.ResourceAllowedExtensions,
			MaxSizeBytes:      cfg.ResourceMaxSizeBytes,
		},
		DownloadTTL:       cfg.DownloadURLTTL,
		UploadTTL:         cfg.UploadURLTTL,
		DeleteConcurrency: cfg.StorageDeleteConcurrency,
	}, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, enrollmentRepo, submissionStore, validate, activityService, service.SubmissionOptions{
		DownloadTTL:       cfg.DownloadURLTTL,
		DeleteConcurrency: cfg.StorageDeleteConcurrency,
	}, logger)
	gradingService := service.NewGradingService(submissionRepo, validate, activityService, notificationService, logger)
	contentService := service.NewContentDeletionService(contentRepo, resourceStore, submissionStore, activityService, cfg.StorageDeleteConcurrency, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.ResourceMaxSizeBytes) + 4<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ResourceHandler:     handler.NewResourceHandler(resourceService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, logger),
		GradingHandler:      handler.NewGradingHandler(gradingService, logger),
		ContentHandler:      handler.NewContentHandler(contentService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		SubmitRateLimit:     middleware.RateLimit("submissions", cfg.SubmissionRateLimit, cfg.SubmissionRateWindow),
		HealthProbes:        healthProbes(db, redisClient, natsConn),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, shutdownTracing)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if natsConn != nil {
		probes = append(probes, handler.HealthProbe{
			Name:  "nats",
			Check: natsConn.FlushWithContext,
		})
	}
	return probes
}

func waitForShutdown(app *fiber.App, shutdownTracing func(context.Context) error) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
