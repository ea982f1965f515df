package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"squad-hub/config"
	"squad-hub/handlers"
	"squad-hub/middleware"
	"squad-hub/models"
	"squad-hub/realtime"
	"squad-hub/services"
	"squad-hub/utils"
	"squad-hub/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormLevel := gormlogger.Warn
	if cfg.LogLevel <= slog.LevelDebug {
		gormLevel = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	hub := realtime.NewHub(logger)
	var bridge realtime.Bridge = hub
	if cfg.NotifyCrossInstance {
		pg, err := realtime.NewPGBridge(cfg.DatabaseURL, db, hub, logger)
		if err != nil {
			return err
		}
		go pg.Run(ctx)
		bridge = pg
	}

	identity := services.NewIdentityService(db, logger, cfg.AllowDegradedIdentity)
	teams := services.NewTeamService(db, bridge, logger)
	requests := services.NewJoinRequestService(db, bridge, logger)
	queue := services.NewQueueService(db, bridge, logger)

	var uploader services.Uploader
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Uploader(ctx, utils.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			return err
		}
		uploader = r2
	} else {
		logger.Warn("R2 is not configured, media uploads are disabled")
	}
	media := services.NewMediaService(uploader, teams, identity, logger)

	if _, err := services.StartScheduler(ctx, services.SchedulerConfig{
		QueueEntryTTL:      cfg.QueueEntryTTL,
		QueueSweepInterval: cfg.QueueSweepInterval,
	}, queue, teams, logger); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, logger, cfg.ProfileSyncURL, cfg.ProfileSyncPath, cfg.GameServiceToken, cfg.ProfileSyncInterval).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    services.MaxImageBytes + 1<<20,
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New())

	// Only gateway traffic is served.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-Identity-Degraded",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware(logger))

	secured := app.Group("/s", middleware.ResolvePlayer(identity, logger))

	handlers.SetupQueueRoutes(app, secured, queue)
	handlers.SetupTeamRoutes(app, secured, teams, requests, media)
	handlers.SetupPlayerRoutes(app, secured, identity, queue, media)

	if cfg.AuthServiceURL != "" {
		authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken)
		handlers.SetupStreamRoutes(app, middleware.SSEAuthMiddleware(authClient, logger), queue, teams, logger)
	} else {
		logger.Warn("AUTH_SERVICE_URL is not set, live streams are disabled")
	}

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.Info("server running",
		slog.Int("port", cfg.Port),
		slog.Bool("cross_instance_notify", cfg.NotifyCrossInstance),
		slog.Bool("degraded_identity", cfg.AllowDegradedIdentity),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}
