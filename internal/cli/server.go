package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wager-quiz-service/internal/app"
	"wager-quiz-service/internal/config"
	"wager-quiz-service/internal/infra/memory"
	pgbank "wager-quiz-service/internal/infra/postgres"
	redisstore "wager-quiz-service/internal/infra/redis"
	transport "wager-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	service := app.NewGameService(store)
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("start change fabric: %w", err)
	}

	if cfg.Postgres.URL != "" {
		if err := importBank(ctx, cfg, service); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	router := transport.NewRouter(service, transport.RouterConfig{
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateWindow:     config.Duration(cfg.Server.RateWindow, time.Minute),
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"port": finalPort, "store": cfg.Store.Backend}).Info("starting wager quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.Config) (app.Store, func(), error) {
	if cfg.Store.Backend != config.BackendRedis {
		return memory.NewStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	store := redisstore.NewStore(client, cfg.Store.Namespace, cfg.Store.MaxRetries)
	return store, func() { _ = client.Close() }, nil
}

// importBank migrates Postgres and copies its question bank into the store.
func importBank(ctx context.Context, cfg config.Config, service *app.GameService) error {
	if err := runMigrations(ctx, cfg); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if _, err := service.ImportBank(ctx, pgbank.NewBankLoader(pool)); err != nil {
		return err
	}
	return nil
}
