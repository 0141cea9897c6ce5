package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/config"
	"github.com/channelport/channelport-api/internal/driver"
	"github.com/channelport/channelport-api/internal/handlers"
	"github.com/channelport/channelport-api/internal/importer"
	"github.com/channelport/channelport-api/internal/launcher"
	"github.com/channelport/channelport-api/internal/middleware"
	"github.com/channelport/channelport-api/internal/migration"
	"github.com/channelport/channelport-api/internal/notification"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/routes"
	"github.com/channelport/channelport-api/internal/runs"
	"github.com/channelport/channelport-api/internal/scheduler"
	"github.com/channelport/channelport-api/internal/statusmap"
	"github.com/channelport/channelport-api/internal/temporal"
	"github.com/channelport/channelport-api/internal/temporal/activities"
	"github.com/channelport/channelport-api/internal/temporal/workflows"
	"github.com/channelport/channelport-api/internal/vault"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
	notifications  notification.Service
	registry       *driver.Registry
	vault          *vault.Vault
	resolver       *importer.Resolver
	mapper         *statusmap.Mapper
	tracker        *runs.Tracker
	launcher       *launcher.Launcher
	scheduler      *scheduler.Scheduler
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Secret storage for integration credentials.
	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize vault")
	}

	// Platform drivers.
	registry, err := driver.NewRegistry(
		driver.NewPrestashopAPIDriver(cfg.Worker.FetchTimeout, logger),
		driver.NewPrestashopDBDriver(cfg.Worker.FetchTimeout, logger),
		driver.NewFileFeedDriver(cfg.Worker.FetchTimeout, logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build driver registry")
	}

	// Notification service with the configured outbound channels.
	notificationRepo := repository.NewNotificationRepository(db)
	var notifiers []notification.Notifier
	if len(cfg.Email.AlertRecipients) > 0 {
		emailNotifier, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	if cfg.Webhook.Enabled {
		webhookNotifier, err := notification.NewWebhookNotifier(cfg.Webhook, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure webhook notifier")
		}
		notifiers = append(notifiers, webhookNotifier)
	}
	notificationService := notification.NewService(notificationRepo, logger, notifiers...)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLoggerAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	tracker := runs.NewTracker(runRepo, notificationService, logger)
	l := launcher.New(taskRepo, tracker, temporalClient, notificationService, logger)

	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
		notifications:  notificationService,
		registry:       registry,
		vault:          v,
		resolver:       importer.NewResolver(cfg.Worker.UploadDir, cfg.Worker.TempDir, cfg.Worker.FetchTimeout, logger),
		mapper:         statusmap.New(repository.NewStatusMappingRepository(db), logger),
		tracker:        tracker,
		launcher:       l,
	}

	// Fire scheduled tasks through the same launcher the API uses.
	app.scheduler = scheduler.New(taskRepo, l, logger)
	if err := app.scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer app.scheduler.Stop()

	// Start the Temporal worker in a separate goroutine.
	temporalWorker := app.startTemporalWorker(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	integrationRepo := repository.NewIntegrationRepository(app.db)
	taskRepo := repository.NewTaskRepository(app.db)
	runRepo := repository.NewRunRepository(app.db)
	statusRepo := repository.NewStatusMappingRepository(app.db)
	userRepo := repository.NewUserRepository(app.db)
	tenantRepo := repository.NewTenantRepository(app.db)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, app.config.JWTSecret, logger)
	integrationHandler := handlers.NewIntegrationHandler(integrationRepo, app.registry, app.vault, app.notifications, app.scheduler, logger)
	taskHandler := handlers.NewTaskHandler(taskRepo, app.resolver, app.launcher, app.scheduler, logger)
	runHandler := handlers.NewRunHandler(runRepo, app.tracker, app.launcher, logger)
	statusHandler := handlers.NewStatusMappingHandler(statusRepo, logger)
	catalogHandler := handlers.NewCatalogHandler(repository.NewCatalogRepository(app.db), logger)
	tenantHandler := handlers.NewTenantHandler(tenantRepo, userRepo, statusRepo, logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, logger)

	return routes.NewRouter(authHandler, integrationHandler, taskHandler, runHandler, statusHandler, catalogHandler, tenantHandler, notificationHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	activityImpl := &activities.Activities{
		TaskRepo:        repository.NewTaskRepository(app.db),
		IntegrationRepo: repository.NewIntegrationRepository(app.db),
		CatalogRepo:     repository.NewCatalogRepository(app.db),
		CustomerRepo:    repository.NewCustomerRepository(app.db),
		OrderRepo:       repository.NewOrderRepository(app.db),
		Tracker:         app.tracker,
		Registry:        app.registry,
		Vault:           app.vault,
		Resolver:        app.resolver,
		Mapper:          app.mapper,
		ChunkSize:       app.config.Worker.ChunkSize,
	}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.ImportWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	temporalWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}
