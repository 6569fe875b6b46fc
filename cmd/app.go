package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/campfire/internal/audio"
	"github.com/jfmyers9/campfire/internal/config"
	"github.com/jfmyers9/campfire/internal/presence"
	"github.com/jfmyers9/campfire/internal/queue"
	"github.com/jfmyers9/campfire/internal/session"
	"github.com/jfmyers9/campfire/internal/store"
	"github.com/jfmyers9/campfire/pkg/bandcamp"
)

const shutdownTimeout = 5 * time.Second

// app is the wired engine shared by all commands. Audio devices and the
// MPD connection are opened on first playback, so catalog-only commands
// can build it cheaply.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   store.Store
	catalog *bandcamp.Client
	backend *audio.Switcher
	manager *queue.Manager
	session *session.Session
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("data_dir", dir).Str("store", cfg.Store).Msg("Using data directory")

	st, err := store.Open(cfg.Store, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	catalog, err := bandcamp.NewClient(bandcamp.Config{
		HTTPClient: &http.Client{Timeout: cfg.Catalog.Timeout},
		BaseURL:    cfg.Catalog.BaseURL,
		Logger:     catalogLogger{logger: logger.With().Str("component", "bandcamp").Logger()},
		PreferHTTP: cfg.RequestHTTP,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}

	backend := audio.NewSwitcher(
		audio.NewNative(nil, logger),
		audio.NewMPD(cfg.MPD.Network, cfg.MPD.Address, cfg.MPD.Password, logger),
	)
	id, err := audio.ParseBackend(cfg.AudioBackend)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := backend.SwitchBackend(id); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to select audio backend: %w", err)
	}
	if err := backend.SetVolume(cfg.Volume); err != nil {
		logger.Warn().Err(err).Msg("Failed to set initial volume")
	}

	resolver := queue.NewResolver(catalog.Albums(), backend, queue.ResolverConfig{
		PreferHTTP:  cfg.RequestHTTP,
		Concurrency: cfg.RevalidateConcurrency,
	}, logger)
	manager := queue.NewManager(catalog.Albums(), backend, resolver, logger)

	sess := session.New(session.Config{
		PollInterval:    cfg.PollInterval,
		SaveQueueOnExit: cfg.SaveQueueOnExit,
		InitialPages:    cfg.Discover.InitialPages,
	}, manager, st, catalog, logger)

	if cfg.Presence.Enabled {
		if cfg.Presence.AppID == "" {
			logger.Warn().Msg("presence.enabled is set without presence.app_id, skipping Discord")
		} else {
			quality, err := bandcamp.ParseQuality(cfg.ArtworkQuality)
			if err != nil {
				logger.Warn().Err(err).Msg("Invalid artwork quality, using high")
				quality = bandcamp.QualityHigh
			}
			sess.AddListener(presence.New(cfg.Presence.AppID, quality, manager, logger))
		}
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		catalog: catalog,
		backend: backend,
		manager: manager,
		session: sess,
	}, nil
}

// Close releases the audio backends and the store.
func (a *app) Close() error {
	return errors.Join(a.backend.Close(), a.store.Close())
}

// runSession starts the session, runs fg in the foreground and shuts the
// session down once fg returns or a shutdown signal arrives.
func (a *app) runSession(pageURLs []string, fg func(ctx context.Context) error) error {
	ctx, cancel := session.NotifyContext(context.Background(), a.logger)
	defer cancel()

	if err := a.session.Start(ctx, pageURLs); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.session.Run(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Session error")
		}
	}()

	fgErr := fg(ctx)
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.session.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("Error during shutdown")
	}
	a.saveVolume()

	return fgErr
}

// saveVolume writes the volume back to the config file when it changed.
func (a *app) saveVolume() {
	volume := a.manager.Volume()
	if volume == a.cfg.Volume {
		return
	}
	if err := config.Set("volume", strconv.Itoa(volume)); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to save volume")
	}
}

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "campfire"), nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
