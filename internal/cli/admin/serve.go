package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/helpdesk-learning/internal/api/handlers"
	"github.com/cloo-solutions/helpdesk-learning/internal/config"
	"github.com/cloo-solutions/helpdesk-learning/internal/database"
	"github.com/cloo-solutions/helpdesk-learning/internal/jobs"
	"github.com/cloo-solutions/helpdesk-learning/internal/server"
	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the admin API server together with the scheduled learning sweep and effectiveness refresh",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-sweep", false, "Do not schedule learning sweeps (manual triggers still work)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	if !cfg.HasAdminToken() {
		log.Println("warning: HELPDESK_ADMIN_TOKEN is not set, every admin route will be refused")
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	e, err := buildEngine(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer e.Close()

	sweepInterval := cfg.SweepInterval
	if noSweep, _ := cmd.Flags().GetBool("no-sweep"); noSweep {
		sweepInterval = 0
	}
	sweepWorker := jobs.NewWorker("learning-sweep", e.sweep, sweepInterval)
	go sweepWorker.Start(ctx)

	feedbackWorker := jobs.NewWorker("effectiveness-refresh", jobs.NewEffectivenessRefresh(e.feedback), cfg.FeedbackInterval)
	go feedbackWorker.Start(ctx)

	router := newRouter(cfg, e, sweepWorker)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// in-flight sweep items finish, nothing new is claimed
	cancel()
	sweepWorker.Stop()
	feedbackWorker.Stop()

	log.Println("server exited")
	return nil
}

// newRouter mounts the admin API over the engine. trigger runs a sweep outside
// the schedule.
func newRouter(cfg *config.Config, e *engine, trigger handlers.SweepTrigger) http.Handler {
	var exporter handlers.ArticleExporter
	if e.archiver != nil {
		exporter = e.archiver
	}

	return server.NewRouter(server.RouterConfig{
		AdminToken:      cfg.AdminToken,
		LearningHandler: handlers.NewLearningHandler(e.learning, trigger),
		GovernorHandler: handlers.NewGovernorHandler(e.governorSvc),
		TicketHandler:   handlers.NewTicketHandler(e.confidence, e.settings),
		ArticleHandler:  handlers.NewArticleHandler(e.feedback, e.articles, exporter),
		SettingsHandler: handlers.NewSettingsHandler(e.settings, e.governor),
	})
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
