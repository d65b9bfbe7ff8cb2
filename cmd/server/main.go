// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/scenebox/internal/api/rest"
	"github.com/osa030/scenebox/internal/app/filter"
	"github.com/osa030/scenebox/internal/app/session"
	"github.com/osa030/scenebox/internal/infra/config"
	"github.com/osa030/scenebox/internal/infra/engine"
	"github.com/osa030/scenebox/internal/infra/library"
	"github.com/osa030/scenebox/internal/infra/logger"
	"github.com/osa030/scenebox/internal/infra/store"
)

var (
	app        = kingpin.New("scenebox-server", "scenebox local media player")
	configPath = app.Flag("config", "Path to config file (defaults apply when empty)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	startCmd    = app.Command("start", "Start the server (default)").Default()
	scanOnStart = startCmd.Flag("scan", "Scan the library before serving").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available import filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Run server (defer ensures cleanup runs)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		zlog.Info().Msg("No config file given, using defaults")
		return config.Default()
	}
	zlog.Info().Msgf("Loading config from %s", path)
	return config.Load(path)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build import filter chain
	chain, err := filter.Build(cfg.Library.EnabledFilters())
	if err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	// Open event repository
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	repo, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()
	zlog.Info().Msgf("Database opened: path=%s", dbPath)

	// Create playback engine connector
	connector, err := engine.NewConnectorFromConfig(cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to create playback engine: %w", err)
	}

	// Library scanner is optional
	var scanner session.Scanner
	if len(cfg.Library.Paths) > 0 {
		scanner = library.NewScanner(cfg.Library.Paths, cfg.Library.Workers, chain)
	} else {
		zlog.Info().Msg("No library paths configured, scanning is disabled")
	}

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, repo, connector, scanner)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	// Close session manager first so pending play events are logged
	defer sessionMgr.Close()

	if err := sessionMgr.Start(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if *scanOnStart && scanner != nil {
		go func() {
			if _, err := sessionMgr.ScanLibrary(ctx); err != nil {
				zlog.Error().Msgf("Initial library scan failed: %v", err)
			}
		}()
	}

	if cfg.Library.Watch && scanner != nil {
		startWatcher(ctx, cfg, sessionMgr)
	}

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(rest.NewServer(sessionMgr, cfg).Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// startWatcher rescans the library whenever its directories change.
func startWatcher(ctx context.Context, cfg *config.Config, sessionMgr *session.Manager) {
	watcher, err := library.NewWatcher(cfg.Library.Paths, cfg.Library.Debounce(), func(ctx context.Context) {
		if sessionMgr.Scanning() {
			zlog.Debug().Msg("Library changed during a scan, skipping rescan")
			return
		}
		if _, err := sessionMgr.ScanLibrary(ctx); err != nil {
			zlog.Warn().Msgf("Library rescan failed: %v", err)
		}
	})
	if err != nil {
		zlog.Warn().Msgf("Library watch disabled: %v", err)
		return
	}
	go watcher.Run(ctx)
	zlog.Info().Msgf("Watching library: paths=%s", strings.Join(cfg.Library.Paths, ","))
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.Names() {
		f, _ := filter.New(name)
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
