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

	"github.com/Aliraza-monster/crosspost-automation/internal/automation"
	"github.com/Aliraza-monster/crosspost-automation/internal/config"
	"github.com/Aliraza-monster/crosspost-automation/internal/handlers"
	"github.com/Aliraza-monster/crosspost-automation/internal/joblog"
	"github.com/Aliraza-monster/crosspost-automation/internal/middleware"
	"github.com/Aliraza-monster/crosspost-automation/internal/migration"
	"github.com/Aliraza-monster/crosspost-automation/internal/publisher"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/Aliraza-monster/crosspost-automation/internal/routes"
	"github.com/Aliraza-monster/crosspost-automation/internal/source"
	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config    *config.Config
	db        *sql.DB
	scheduler *automation.Scheduler
	logger    zerolog.Logger

	// Shared between the automation pipeline and the HTTP handlers.
	jobs     repository.JobRepository
	ledger   repository.LedgerRepository
	logs     repository.LogRepository
	facebook *publisher.Facebook
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

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

	app := &application{
		config:   cfg,
		db:       db,
		logger:   logger,
		jobs:     repository.NewJobRepository(db),
		ledger:   repository.NewLedgerRepository(db),
		logs:     repository.NewLogRepository(db),
		facebook: publisher.NewFacebook(cfg.Facebook.GraphVersion, logger),
	}

	// Build the automation pipeline and its scheduler.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	executor := app.initAutomation()
	router := app.initRouter(executor, logger)

	if err := app.scheduler.Start(schedulerCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, cancelScheduler, logger)

	logger.Info().Msg("Application terminated.")
}

// initAutomation wires the media source and executor on top of the shared
// repositories, and stores the scheduler on the application.
func (app *application) initAutomation() *automation.Executor {
	recorder := joblog.NewRecorder(app.logs, app.logger)
	mediaSource := source.NewYtDlp(
		app.config.Source.YtDlpBinary,
		app.config.Source.TempDir,
		app.config.Source.CookiesPath,
		app.logger,
	)

	executor := automation.NewExecutor(
		app.jobs,
		app.ledger,
		recorder,
		mediaSource,
		app.facebook,
		automation.NewInFlight(),
		app.logger,
	)
	app.scheduler = automation.NewScheduler(
		app.jobs,
		executor,
		app.config.Scheduler.CronSpec,
		app.config.Scheduler.WarmupDelay,
		app.config.Scheduler.BatchSize,
		app.logger,
	)
	return executor
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(executor *automation.Executor, logger zerolog.Logger) http.Handler {
	// Repositories with a single consumer live here.
	subscriptionRepo := repository.NewSubscriptionRepository(app.db)
	paymentRepo := repository.NewPaymentRepository(app.db)
	userRepo := repository.NewUserRepository(app.db)

	authHandler := handlers.NewAuthHandler(app.db, app.config, logger)
	jobHandler := handlers.NewJobHandler(app.jobs, app.logs, app.ledger, subscriptionRepo, executor, app.facebook, logger)
	tokenHandler := handlers.NewTokenHandler(app.ledger, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentRepo, app.ledger, logger)
	billingHandler := handlers.NewBillingHandler(subscriptionRepo, logger)
	userHandler := handlers.NewUserHandler(userRepo, logger)

	return routes.NewRouter(authHandler, jobHandler, tokenHandler, paymentHandler, billingHandler, userHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, cancelScheduler context.CancelFunc, logger zerolog.Logger) {
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

	// Stop the scheduler's timer; in-flight runs finish on their own.
	logger.Info().Msg("Stopping scheduler...")
	cancelScheduler()
	app.scheduler.Stop()
	logger.Info().Msg("Scheduler stopped.")
}
