package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/talkrooms/internal/confession"
	"github.com/Tyrowin/talkrooms/internal/presence"
	"github.com/Tyrowin/talkrooms/internal/ratelimit"
	"github.com/Tyrowin/talkrooms/internal/server"
	"github.com/Tyrowin/talkrooms/internal/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	loaded, err := server.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg := server.SetConfig(loaded)
	log := logs.GetLoggerFromString(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Confessions)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing confession store...")
		_ = store.Close()
	}()

	redisClient := openRedis(ctx, cfg.Confessions.RedisURL, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	limiter := ratelimit.NewLimiter(redisClient, "talkrooms:confessions:",
		cfg.Confessions.RateLimit, time.Duration(cfg.Confessions.RateWindow), log)

	hub := server.NewHub(log)
	controller := presence.NewController(hub, log, presence.Options{StrictMembership: cfg.StrictRooms})
	controller.UseRelay(signaling.NewRelay(controller.Broadcaster(), log))
	hub.SetCoordinator(controller)
	server.StartHub(hub)

	router := server.SetupRoutes(hub, confession.NewHandler(store, log), limiter.Middleware)
	httpServer := server.CreateServer(cfg.Port, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := time.Duration(cfg.ShutdownTimeout)
		shutdownErr := server.ShutdownServer(httpServer, timeout, log)
		if err := hub.Shutdown(timeout); err != nil {
			log.Warn("Hub shutdown incomplete", "error", err)
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg server.ConfessionConfig) (confession.Store, error) {
	switch cfg.Store {
	case "memory":
		return confession.NewMemoryStore(), nil
	case "sqlite":
		return confession.OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		return confession.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown CONFESSION_STORE %q", cfg.Store)
	}
}

// openRedis connects when REDIS_URL is set. Without Redis the confession
// limiter lets every request through.
func openRedis(ctx context.Context, url string, log *slog.Logger) *redis.Client {
	if url == "" {
		log.Info("REDIS_URL not set; confession rate limiting disabled")
		return nil
	}
	client, err := ratelimit.NewClient(ctx, url)
	if err != nil {
		log.Warn("Redis unavailable; confession rate limiting disabled", "error", err)
		return nil
	}
	log.Info("Redis connection established")
	return client
}
