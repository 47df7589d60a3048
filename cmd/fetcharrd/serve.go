package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/fetcharr/fetcharr/internal/api"
	"github.com/fetcharr/fetcharr/internal/cast"
	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/library"
	"github.com/fetcharr/fetcharr/internal/migrations"
	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/server"
	"github.com/fetcharr/fetcharr/internal/sites"
	"github.com/fetcharr/fetcharr/internal/sites/aniworld"
	"github.com/fetcharr/fetcharr/internal/sites/movie4k"
	"github.com/fetcharr/fetcharr/internal/sites/sto"
	"github.com/fetcharr/fetcharr/internal/subscriptions"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			// No config file is fine; everything has a default.
			return config.Default(), nil
		}
		path = discovered
	}
	return config.Load(path)
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	// === Stores ===
	hist, err := history.Open(cfg.Database.HistoryPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	defer func() { _ = hist.Close() }()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.SubscriptionsPath), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Database.SubscriptionsPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(migrations.InitialSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	subsStore := subscriptions.NewStore(db)

	// === Sites and providers ===
	registry := sites.NewRegistry(logger.With("component", "sites"),
		aniworld.New(), sto.New(), movie4k.New())
	resolver := provider.NewResolver(logger.With("component", "provider"))

	// === Download pipeline ===
	queue := download.NewQueue(logger.With("component", "queue"),
		download.WithHistoryLimit(cfg.Downloads.HistoryLimit))
	transferrer := download.NewHTTPTransferrer(
		download.WithStallTimeout(cfg.Downloads.StallWindow))
	pool := download.NewPool(queue, registry, resolver, transferrer,
		cfg.Downloads.Dir, cfg.Downloads.MaxConcurrent,
		logger.With("component", "downloads"))

	// === Subscriptions ===
	checker := subscriptions.NewChecker(subsStore, registry,
		cfg.Subscriptions.CheckInterval, logger.With("component", "subscriptions"))
	if cfg.Subscriptions.AutoDownload {
		checker.AutoDownload = autoDownloadHook(queue, cfg, logger)
	}

	// === Cast and library ===
	castMgr := cast.NewManager(logger.With("component", "cast"),
		cast.WithDiscoverTimeout(cfg.Cast.DiscoverTimeout))
	lib := library.New(cfg.Downloads.Dir)

	// === HTTP ===
	apiSrv, err := api.New(api.ServerDeps{
		Registry: registry,
		Queue:    queue,
		Library:  lib,
		History:  hist,
		Subs:     subsStore,
		Checker:  checker,
		Cast:     castMgr,
	}, api.Config{
		AuthToken:       cfg.Server.AuthToken,
		DownloadDir:     cfg.Downloads.Dir,
		MaxConcurrent:   cfg.Downloads.MaxConcurrent,
		DefaultLanguage: cfg.Defaults.Language,
		PopularTTL:      cfg.Cache.PopularTTL,
		Version:         version,
	}, logger.With("component", "api"))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	apiSrv.RegisterRoutes(mux)

	logger.Info("fetcharrd starting",
		"version", version,
		"addr", cfg.Server.Addr(),
		"download_dir", cfg.Downloads.Dir,
		"max_concurrent", cfg.Downloads.MaxConcurrent,
		"auth", cfg.Server.AuthToken != "",
		"auto_download", cfg.Subscriptions.AutoDownload,
	)

	runner := server.NewRunner(cfg.Server.Addr(), mux, logger.With("component", "http"))
	runner.Add("downloads", pool.Run)
	runner.Add("subscriptions", checker.Run)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}

// autoDownloadHook enqueues every newly found episode of a
// subscription using its preferred language.
func autoDownloadHook(queue *download.Queue, cfg *config.Config, logger *slog.Logger) func(context.Context, *subscriptions.Subscription, int, sites.EpisodeRef) {
	log := logger.With("component", "subscriptions")
	return func(_ context.Context, sub *subscriptions.Subscription, season int, ref sites.EpisodeRef) {
		language := sub.Language
		if language == "" {
			language = cfg.Defaults.Language
		}
		_, err := queue.Enqueue(download.Request{
			Title:      fmt.Sprintf("S%02dE%02d", season, ref.Episode),
			SeriesName: sub.Title,
			Season:     season,
			Episode:    ref.Episode,
			SourceURL:  ref.URL,
			Site:       sub.Site,
			Language:   language,
			Provider:   cfg.Defaults.Provider,
		})
		if err != nil && !errors.Is(err, download.ErrDuplicate) {
			log.Warn("auto download enqueue failed", "series", sub.Title, "error", err)
		}
	}
}
