package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/skyguide-inc/skyguide/internal/infrastructure/config"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/database"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/migration"
	httpRouter "github.com/skyguide-inc/skyguide/internal/interfaces/http"
	sharedConfig "github.com/skyguide-inc/skyguide/internal/shared/config"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
	"github.com/skyguide-inc/skyguide/internal/shared/version"
)

var (
	env                string
	autoMigrate        bool
	skipMigrationCheck bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the SkyGuide HTTP server with specified configuration.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply pending migrations on startup")
	cmd.Flags().BoolVar(&skipMigrationCheck, "skip-migration-check", false, "Skip migration status check on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	ginMode := MapEnvToGinMode(env)

	cfg, err := config.Load(ginMode)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.IsDebug()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("starting server",
		"environment", env,
		"version", version.String(),
		"auto_migrate", autoMigrate)

	gin.SetMode(cfg.Server.Mode)

	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if err := handleMigrations(env, &cfg.Database); err != nil {
		return fmt.Errorf("migration handling failed: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(cmd.Context()).Err(); err != nil {
		_ = redisClient.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("redis connection established", "addr", cfg.Redis.GetAddr())

	router, err := httpRouter.NewRouter(database.Get(), redisClient, cfg, logger.NewLogger())
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	// Runs after srv.Shutdown: hijacked notice sockets are closed here.
	defer router.Shutdown()
	router.SetupRoutes()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router.StartMaintenance(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"address", cfg.Server.GetAddr(),
			"mode", cfg.Server.Mode)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("server exited gracefully")
	return nil
}

func handleMigrations(environment string, dbCfg *sharedConfig.DatabaseConfig) error {
	if skipMigrationCheck {
		logger.Info("skipping migration check")
		return nil
	}

	if autoMigrate {
		if environment == "production" {
			logger.Warn("auto-migration is enabled in production environment")
		}

		logger.Info("running migrations")
		manager, err := migration.NewManager(dbCfg, logger.NewLogger())
		if err != nil {
			return err
		}
		if err := manager.Migrate(database.Get()); err != nil {
			return err
		}
		logger.Info("migrations completed successfully")
		return nil
	}

	logger.Info("checking migration status")

	goose, err := migration.NewGooseStrategy(dbCfg.Driver, logger.NewLogger())
	if err != nil {
		logger.Warn("failed to prepare migration check", "error", err)
		return nil
	}
	current, err := goose.GetVersion(database.Get())
	if err != nil {
		logger.Warn("failed to check migration status", "error", err)
	} else {
		logger.Info("current migration version", "version", current)
	}

	return nil
}

// MapEnvToGinMode maps a deployment environment name to a gin mode.
func MapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	default:
		return "debug"
	}
}
