package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stashkv/stash/internal/auth"
	"github.com/stashkv/stash/internal/config"
	"github.com/stashkv/stash/internal/directory"
	"github.com/stashkv/stash/internal/ratelimit"
	"github.com/stashkv/stash/internal/server"
	redisstore "github.com/stashkv/stash/internal/storage/redis"
)

func main() {
	seedFile := flag.String("seed-file", "", "Path to a YAML file of users to seed on startup")
	seedDemo := flag.Bool("seed-demo", false, "Seed the built-in demo users and print their API keys")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	store, err := redisstore.NewRecordStore(redisstore.Options{
		URL:          cfg.Redis.URL,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "url", cfg.Redis.URL, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	dir, err := openDirectory(cfg.Directory)
	if err != nil {
		logger.Error("failed to open user directory", "driver", cfg.Directory.Driver, "error", err)
		os.Exit(1)
	}
	defer dir.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *seedDemo {
		keys, err := directory.SeedDemoUsers(ctx, dir)
		if err != nil {
			logger.Error("demo seeding failed", "error", err)
			os.Exit(1)
		}
		for id, key := range keys {
			fmt.Printf("seeded %s: %s\n", id, key)
		}
	}

	if *seedFile != "" {
		sf, err := directory.LoadSeedFile(*seedFile)
		if err != nil {
			logger.Error("failed to load seed file", "path", *seedFile, "error", err)
			os.Exit(1)
		}
		keys, err := directory.ApplySeed(ctx, dir, sf)
		if err != nil {
			logger.Error("seeding failed", "path", *seedFile, "error", err)
			os.Exit(1)
		}
		for id, key := range keys {
			fmt.Printf("seeded %s: %s\n", id, key)
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewLimiter(cfg.RateLimit.MaxTrackedUsers)
		if err != nil {
			logger.Error("failed to create rate limiter", "error", err)
			os.Exit(1)
		}
	}

	addr, done, err := server.Start(ctx, cfg, server.Deps{
		Store:    store,
		Dir:      dir,
		Resolver: auth.NewAPIKeyResolver(dir, logger),
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("stash server running", "addr", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	// Wait for in-flight requests to drain.
	<-done
}

// openDirectory builds the user directory for the configured driver,
// wrapped in a circuit breaker so a dead backend fails fast.
func openDirectory(cfg config.DirectoryConfig) (directory.Directory, error) {
	var (
		dir directory.Directory
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		dir, err = directory.NewSQLite(cfg.DSN)
	case "postgres":
		dir, err = directory.NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown directory driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return directory.NewProtected(dir), nil
}

// newLogger builds the process logger from the log config. The console
// format is for local development; production uses JSON.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
