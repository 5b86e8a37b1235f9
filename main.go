// Package main provides the main entry point for the Hachiko subscription delivery system
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/Hachiko/app/handlers"
	"github.com/amirphl/Hachiko/app/middleware"
	"github.com/amirphl/Hachiko/app/router"
	"github.com/amirphl/Hachiko/app/scheduler"
	"github.com/amirphl/Hachiko/app/services"
	businessflow "github.com/amirphl/Hachiko/business_flow"
	"github.com/amirphl/Hachiko/config"
	"github.com/amirphl/Hachiko/repository"
	"github.com/amirphl/Hachiko/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Hachiko application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// A disabled cache returns nil; the activity cache degrades to direct queries.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// initializeEmailProvider picks the SMTP provider or the logging mock
func initializeEmailProvider(cfg config.EmailConfig) services.EmailProvider {
	if cfg.UseMock || cfg.Host == "" {
		return services.NewMockEmailProvider()
	}
	return services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail, cfg.FromName)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	teamRepo := repository.NewTeamRepository(db)
	reportRepo := repository.NewReportRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	deliveryLogRepo := repository.NewDeliveryLogRepository(db)

	// Initialize services
	emailProvider := initializeEmailProvider(cfg.Email)
	slackClient := services.NewSlackWebAPIClient(cfg.Slack.APIURL, cfg.Slack.BotToken, cfg.Slack.Timeout)
	renderClient := services.NewHTTPRenderClient(cfg.Render.BaseURL, cfg.Render.APIKey, cfg.Render.Timeout)
	teamCache := services.NewTeamActivityCache(rc, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL)

	tokenService, err := services.NewTokenService(
		cfg.JWT.TokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	resolverFlow := businessflow.NewResolverFlow(reportRepo, dashboardRepo)
	pipeline := businessflow.NewArtifactPipeline(
		artifactRepo,
		renderClient,
		cfg.Scheduler.RenderCap,
		cfg.Scheduler.TaskTimeout,
		utils.DeliverySafetyMargin,
		nil,
	)
	emailChannel := businessflow.NewEmailChannel(emailProvider, tokenService, cfg.Server.PublicBaseURL, nil)
	slackChannel := businessflow.NewSlackChannel(slackClient, cfg.Server.PublicBaseURL, nil)

	deliveryFlow := businessflow.NewDeliveryFlow(
		subscriptionRepo,
		deliveryLogRepo,
		resolverFlow,
		pipeline,
		[]businessflow.Channel{emailChannel, slackChannel},
		utils.SchedulingBuffer,
		db,
		nil,
	)
	unsubscribeFlow := businessflow.NewUnsubscribeFlow(subscriptionRepo, tokenService, deliveryFlow, db, nil)
	subscriptionFlow := businessflow.NewSubscriptionFlow(subscriptionRepo, unsubscribeFlow, utils.SchedulingBuffer, db, nil)

	// Start the sweep scheduler
	subscriptionScheduler := scheduler.NewSubscriptionScheduler(
		subscriptionRepo,
		teamRepo,
		teamCache,
		deliveryFlow,
		db,
		cfg.Scheduler.SweepInterval,
		cfg.Scheduler.SweepLimit,
		cfg.Scheduler.TaskTimeout,
		cfg.Scheduler.LogDir,
	)
	stopFuncs = append(stopFuncs, subscriptionScheduler.Start(context.Background()))

	// Initialize handlers and router
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionFlow, unsubscribeFlow)
	deliveryHandler := handlers.NewDeliveryHandler(deliveryFlow, subscriptionScheduler, cfg.Scheduler.TaskTimeout)
	internalAuth := middleware.NewInternalAuthMiddleware(cfg.Security.InternalAPIToken)

	appRouter := router.NewFiberRouter(subscriptionHandler, deliveryHandler, internalAuth, cfg.Security.AllowedOrigins)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
