package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/party-engine/internal/config"
	"github.com/DoyleJ11/party-engine/internal/engine"
	"github.com/DoyleJ11/party-engine/internal/events"
	"github.com/DoyleJ11/party-engine/internal/games/pictionary"
	"github.com/DoyleJ11/party-engine/internal/games/trivia"
	"github.com/DoyleJ11/party-engine/internal/games/wordchain"
	"github.com/DoyleJ11/party-engine/internal/httpapi"
	"github.com/DoyleJ11/party-engine/internal/hub"
	"github.com/DoyleJ11/party-engine/internal/lock"
	"github.com/DoyleJ11/party-engine/internal/logging"
	"github.com/DoyleJ11/party-engine/internal/store"
	"github.com/DoyleJ11/party-engine/internal/timeouts"
)

type matchStore interface {
	engine.Store
	timeouts.Lister
	io.Closer
}

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	matches, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, matches)

	var rdb *redis.Client
	if cfg.LockBackend == "redis" || cfg.EventsRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		closers = append(closers, rdb)
	}

	lockStore, lockSweeper, err := openLockStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	if c, ok := lockStore.(io.Closer); ok {
		closers = append(closers, c)
	}

	h := hub.NewHub(ctx, log)
	sinks := events.Multi{h, events.NewLogSink(log)}
	if cfg.EventsRedis {
		sinks = append(sinks, events.NewRedisSink(rdb, log))
	}

	eng := engine.New(matches,
		lock.NewRoundTransitionLock(lockStore, cfg.LockTTL),
		sinks,
		registry(cfg),
		engine.WithLogger(log),
		engine.WithMaxAttempts(cfg.MaxAttempts),
	)

	sweeper := timeouts.New(matches, eng, log,
		timeouts.WithInterval(cfg.SweepInterval),
		timeouts.WithLockSweeper(lockSweeper),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.SetupRoutes(eng, h, log),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.Strings("games", eng.Games().Types()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		default:
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func registry(cfg config.Config) *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(trivia.GameType, trivia.New(trivia.DefaultQuestions()))
	reg.Register(pictionary.GameType, pictionary.New([]byte(cfg.GameSecret)))
	reg.Register(wordchain.GameType, wordchain.New())
	return reg
}

func openStore(cfg config.Config, log *zap.Logger) (matchStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		pg, err := store.NewPostgres(cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func openLockStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (lock.Store, timeouts.LockSweeper, error) {
	switch cfg.LockBackend {
	case "memory":
		return lock.NewMemoryStore(), nil, nil
	case "redis":
		return lock.NewRedisStore(rdb, "party:"), nil, nil
	case "postgres":
		pg, err := lock.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}
}
