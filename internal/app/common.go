package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"github.com/blackwell-systems/cratebot/internal/announce"
	"github.com/blackwell-systems/cratebot/internal/config"
	"github.com/blackwell-systems/cratebot/internal/cycle"
	"github.com/blackwell-systems/cratebot/internal/logger"
	"github.com/blackwell-systems/cratebot/internal/registry"
	"github.com/blackwell-systems/cratebot/internal/selector"
	"github.com/blackwell-systems/cratebot/internal/social"
	"github.com/blackwell-systems/cratebot/internal/store"
)

// loadConfig resolves flags, environment and defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(settings)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr, in color when stderr is a terminal.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(cfg.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
}

// openStore opens the database and creates the schema if needed.
func openStore(path string) (*store.Store, error) {
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CreateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return db, nil
}

// openExistingStore opens the database read-side commands use. It does not
// create a missing file.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, store.ErrNotInitialized
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newPoster picks the dry-run poster or the real one. With watch set, the
// secrets file is watched and rotated credentials are picked up; the returned
// close function stops watching.
func newPoster(ctx context.Context, cfg *config.Config, log logger.Logger, watch bool) (social.Poster, func(), error) {
	if cfg.DryRun {
		return social.DryRun{Log: log}, func() {}, nil
	}

	if watch {
		w, err := config.WatchCredentials(ctx, cfg.SecretsFile, cfg.SecretsRequired, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		return social.NewTwitterClient(cfg.SocialURL, w, log), func() { _ = w.Close() }, nil
	}

	creds, err := config.LoadCredentials(cfg.SecretsFile, cfg.SecretsRequired)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	log.Debug("loaded credentials", logger.String("credentials", creds.String()))
	return social.NewTwitterClient(cfg.SocialURL, config.Static(creds), log), func() {}, nil
}

// newRunner wires a cycle runner from cfg.
func newRunner(cfg *config.Config, db *store.Store, poster social.Poster, log logger.Logger) *cycle.Runner {
	client := registry.NewClient(
		registry.WithBaseURL(cfg.RegistryURL),
		registry.WithRateLimit(rate.Limit(cfg.Rate), 1),
		registry.WithLogger(log),
	)
	return cycle.NewRunner(
		client,
		db,
		selector.NewTimeSeeded(),
		announce.New(client, poster, log),
		log,
	)
}

// defaultPIDFile and defaultLogFile live next to the database.
func defaultPIDFile(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DBPath), "cratebot.pid")
}

func defaultLogFile(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DBPath), "cratebot.log")
}
