// Package main provides the interactive practice session.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/loopbox/internal/api/connect"
	"github.com/osa030/loopbox/internal/app/keyboard"
	"github.com/osa030/loopbox/internal/app/notification"
	"github.com/osa030/loopbox/internal/app/session"
	"github.com/osa030/loopbox/internal/infra/config"
	"github.com/osa030/loopbox/internal/infra/logger"
	"github.com/osa030/loopbox/internal/infra/spotify"
	"github.com/osa030/loopbox/internal/infra/storage"
)

var (
	app        = kingpin.New("loopbox-practice", "loopbox interactive practice session")
	configPath = app.Flag("config", "Path to config file (optional)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	offline    = app.Flag("offline", "Keep loops in memory only").Bool()
	user       = app.Flag("user", "Spotify user ID").Envar("LOOPBOX_USER_ID").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stderr", Level: "warn", Component: "practice"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *user != "" {
		cfg.Client.UserID = *user
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Practice error: %v", err)
		os.Exit(1)
	}
}

// repositories is where loops and recent tracks are kept.
type repositories struct {
	loops  *storage.CachedLoops
	remote *apiconnect.Client
	db     *storage.DB
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if *offline || cfg.Client.UserID == "" {
		return &repositories{}, nil
	}
	if cfg.Client.ServerURL != "" {
		client := apiconnect.NewClient(
			http.DefaultClient,
			cfg.Client.ServerURL,
			connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.APIToken)),
		)
		return &repositories{remote: client}, nil
	}

	db, err := storage.Open(ctx, storage.Config{Path: cfg.Storage.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	loops, err := storage.NewCachedLoops(db, cfg.Storage.CacheSize, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create loop cache: %w", err)
	}
	return &repositories{loops: loops, db: db}, nil
}

func (r *repositories) options(opts *session.Options) {
	switch {
	case r.remote != nil:
		opts.Loops = r.remote
		opts.Recent = r.remote
	case r.db != nil:
		opts.Loops = r.loops
		opts.Recent = r.db
	}
}

func (r *repositories) describe(cfg *config.Config) string {
	switch {
	case r.remote != nil:
		return "server " + cfg.Client.ServerURL
	case r.db != nil:
		return "database " + cfg.Storage.Path
	}
	return "memory only"
}

func (r *repositories) Close() {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			zlog.Error().Msgf("Failed to close storage: %v", err)
		}
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	var spClient *spotify.Client
	if cfg.Spotify.Enabled() {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		spClient = c
	}

	transport, err := session.NewTransport(cfg, spClient, nil)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.Close()

	router := keyboard.NewRouter()
	window := newTermWindow()
	opts := session.Options{Transport: transport, Keys: router, Window: window}
	repos.options(&opts)

	mgr, err := session.NewManager(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer mgr.Close()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := mgr.Run(ctx); err != nil {
			zlog.Error().Msgf("Playback loop stopped: %v", err)
		}
	}()

	sh, err := newShell(mgr, router, window, spClient)
	if err != nil {
		return err
	}
	defer sh.Close()
	subID := mgr.Store().Notifier().Subscribe(notification.StreamFunc(sh.onStoreChange))
	defer mgr.Store().Notifier().Unsubscribe(subID)

	fmt.Printf("loopbox practice: transport=%s, loops in %s\n", cfg.Playback.Transport.Type, repos.describe(cfg))
	fmt.Println("Type 'help' for commands.")
	return sh.run(ctx)
}
