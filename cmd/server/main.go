// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/loopbox/internal/api/connect"
	"github.com/osa030/loopbox/internal/api/rest"
	"github.com/osa030/loopbox/internal/infra/config"
	"github.com/osa030/loopbox/internal/infra/logger"
	"github.com/osa030/loopbox/internal/infra/metrics"
	"github.com/osa030/loopbox/internal/infra/storage"
)

var (
	app        = kingpin.New("loopbox-server", "loopbox loop persistence server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// migrate command
	migrateCmd = app.Command("migrate", "Create or upgrade the database schema and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info", Component: "server"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == migrateCmd.FullCommand() {
		if err := migrate(cfg); err != nil {
			zlog.Fatal().Msgf("Migration failed: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

func migrate(cfg *config.Config) error {
	db, err := storage.Open(context.Background(), storage.Config{Path: cfg.Storage.Path})
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Database ready: %s", cfg.Storage.Path)
	return db.Close()
}

// run executes the main server logic. Using a separate function ensures
// deferred cleanup runs even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.Config{Path: cfg.Storage.Path})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			zlog.Error().Msgf("Failed to close storage: %v", err)
		}
	}()

	m := metrics.New()
	loops, err := storage.NewCachedLoops(db, cfg.Storage.CacheSize, m)
	if err != nil {
		return fmt.Errorf("failed to create loop cache: %w", err)
	}

	// REST API for the browser client
	gin.SetMode(gin.ReleaseMode)
	router := rest.NewRouter(rest.Options{
		Loops:    loops,
		Recent:   db,
		APIToken: cfg.Server.APIToken,
		Health:   db.Ping,
		Metrics:  m,
	})

	// Connect API for Go clients
	loopService := apiconnect.NewLoopService(apiconnect.ServiceConfig{
		Loops:   loops,
		Lister:  db,
		Recent:  db,
		Metrics: m,
	})
	servicePath, serviceHandler := apiconnect.NewLoopServiceHandler(
		loopService,
		connect.WithInterceptors(
			apiconnect.NewMetricsInterceptor(m),
			apiconnect.NewTokenInterceptor(cfg.Server.APIToken),
		),
	)

	mux := http.NewServeMux()
	mux.Handle(servicePath, serviceHandler)
	mux.Handle("/", router)

	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s db=%s", serverAddr, cfg.Storage.Path)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the listener a moment before running hooks
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))
	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
