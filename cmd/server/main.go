package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recipememo-api/internal/api"
	"github.com/recipememo-api/internal/config"
	"github.com/recipememo-api/internal/database"
	"github.com/recipememo-api/internal/realtime"
	"github.com/recipememo-api/internal/repository"
	"github.com/recipememo-api/internal/service"
	"github.com/recipememo-api/internal/storage"
	"github.com/recipememo-api/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recipememo-api",
		Short:         "Recipe and realtime comment API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "migrate-down",
		Short: "Roll back the last applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database, log)
			if err != nil {
				log.Error().Err(err).Msg("Failed to connect to database")
				return err
			}
			defer db.Close()
			return db.MigrateDown(cfg.Server.MigrationsPath)
		},
	})

	return root
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("recipememo-api", "info", "json")
		log.Error().Err(err).Msg("Failed to load configuration")
		return nil, log, err
	}
	return cfg, logger.New("recipememo-api", cfg.Log.Level, cfg.Log.Format), nil
}

func newBroker(ctx context.Context, cfg config.RealtimeConfig, log zerolog.Logger) (realtime.Broker, error) {
	if cfg.Broker != "redis" {
		return realtime.NewMemoryBroker(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return realtime.NewRedisBroker(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}, log)
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().Msg("Starting recipememo API server...")

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return err
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.Server.MigrationsPath); err != nil {
		log.Error().Err(err).Msg("Failed to run database migrations")
		return err
	}

	broker, err := newBroker(ctx, cfg.Realtime, log)
	if err != nil {
		log.Error().Err(err).Str("broker", cfg.Realtime.Broker).Msg("Failed to start realtime broker")
		return err
	}
	defer broker.Close()
	log.Info().Str("broker", cfg.Realtime.Broker).Msg("Realtime broker ready")

	images, err := storage.NewLocalStore(cfg.Upload.Dir, log)
	if err != nil {
		return err
	}

	// Initialize repositories and services
	repos := repository.New(db)
	services := service.NewServices(repos, broker, images, cfg, log)

	router := api.NewRouter(services, cfg, db, log)

	// Request contexts derive from baseCtx; cancelling it ends open comment
	// streams so Shutdown does not wait on them. WriteTimeout defaults to 0
	// for the same streams.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case err, ok := <-serverErr:
		if ok {
			log.Error().Err(err).Msg("Server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	cancelBase()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Server exited gracefully")
	return nil
}
