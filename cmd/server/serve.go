package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"poker-table/internal/auth"
	"poker-table/internal/config"
	"poker-table/internal/db"
	"poker-table/internal/locks"
	"poker-table/internal/logger"
	"poker-table/internal/middleware"
	"poker-table/internal/redis"
	"poker-table/internal/server"
	"poker-table/internal/server/websocket"
	"poker-table/internal/session"
	"poker-table/internal/store"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the table server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	addEnvFileFlag(cmd, &envFile)
	cmd.Flags().String("port", "", "listen port (overrides SERVER_PORT)")
	_ = v.BindPFlag("SERVER_PORT", cmd.Flags().Lookup("port"))
	return cmd
}

// backends holds the optional persistence and coordination services.
type backends struct {
	mirrors store.Multi
	states  store.StateReader
	history server.HandHistory
	locks   *locks.LockManager
	health  func(ctx context.Context) error
	closers []func() error
}

func (b *backends) close(log *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("close backend", zap.Error(err))
		}
	}
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.StoreDriver {
	case config.StoreSQLite, config.StoreMySQL:
		database, err := db.New(cfg.DB, log)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, database.Close)
		mirror, err := store.NewGormMirror(database.DB)
		if err != nil {
			b.close(log)
			return nil, fmt.Errorf("migrate %s store: %w", cfg.StoreDriver, err)
		}
		b.mirrors = append(b.mirrors, mirror)
		b.states = mirror
	case config.StorePostgres:
		mirror, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, mirror.Close)
		b.mirrors = append(b.mirrors, mirror)
		b.states = mirror
		log.Info("postgres store ready")
	}

	if cfg.RedisEnabled {
		client, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		mirror := store.NewRedisMirror(client.Client, cfg.SnapshotTTL)
		b.mirrors = append(b.mirrors, mirror)
		if b.states == nil {
			b.states = mirror
		}
		b.history = mirror
		b.locks = locks.NewLockManager(client.Client, log)
		b.health = client.HealthCheck
	}
	return b, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	var recorder store.Recorder
	var async *store.Async
	if len(b.mirrors) > 0 {
		async = store.NewAsync(b.mirrors, log, 0, 0)
		recorder = async
	}

	registry := session.NewRegistry(session.Config{
		Table:          cfg.Table,
		ActionTimeout:  cfg.ActionTimeout,
		HandEndDelay:   cfg.HandEndDelay,
		ShortCallAllIn: cfg.ShortCallAllIn,
	}, recorder, b.locks, log)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}, log)
	defer limiter.Stop()

	authService := auth.NewService(cfg.JWTSecret)
	if !authService.Enabled() {
		log.Warn("JWT_SECRET is empty, websocket connections are not authenticated")
	}

	wsHandler := websocket.NewHandler(registry, authService, limiter, websocket.Config{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)

	router := server.NewRouter(server.Options{
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.AllowedOrigins,
		Tables:         registry,
		WebSocket:      wsHandler.Serve,
		Limiter:        limiter,
		States:         b.states,
		History:        b.history,
		Health:         b.health,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("port", cfg.ServerPort),
			zap.String("env", cfg.Environment),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("redis", cfg.RedisEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("server stopped", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by the http.Server, so
	// tables are closed first.
	if err := registry.Close(shutdownCtx); err != nil {
		log.Warn("tables did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if async != nil {
		async.Close()
		if dropped := async.Dropped(); dropped > 0 {
			log.Warn("persistence writes dropped", zap.Int64("count", dropped))
		}
	}
	log.Info("server stopped")
	return serveErr
}
