package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/config"
	"github.com/erauner12/mcptools/internal/mcpserver/dispatch"
	"github.com/erauner12/mcptools/internal/mcpserver/server"
	"github.com/erauner12/mcptools/internal/mcpserver/stdio"
	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/providers/clock"
	"github.com/erauner12/mcptools/internal/providers/greeter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	version = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

var (
	configPath  = flag.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
	showVersion = flag.Bool("version", false, "Show version information")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	logLevel    = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	transport   = flag.String("transport", "", "Transport to serve on (http, stdio)")
	addr        = flag.String("addr", "", "Listen address for the http transport")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mcptools version %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("transport", cfg.Transport).
		Strs("providers", cfg.Providers).
		Bool("debug", cfg.Debug).
		Msg("Starting MCP tool server")

	providers, err := buildProviders(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid provider configuration")
	}

	// Provider contract violations are deployment errors; refuse to start
	registry := tools.NewRegistry(providers...)
	if err := registry.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to build tool registry")
	}
	log.Info().Int("tools", registry.Len()).Msg("Tool registry ready")

	dispatcher := dispatch.New(registry,
		dispatch.WithServerInfo(cfg.Server.Name, cfg.Server.Version),
		dispatch.WithProtocolVersion(cfg.ProtocolVersion),
		dispatch.WithLogger(log.Logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, dispatcher); err != nil {
		log.Error().Err(err).Msg("MCP server failed")
		os.Exit(1)
	}

	log.Info().Msg("MCP tool server stopped gracefully")
}

// loadConfig loads the configuration from file and environment
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnvironment()
	}
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides BEFORE validation
	if *debug {
		cfg.Debug = true
		// --debug implies debug level unless a level was given explicitly
		if *logLevel == "info" {
			cfg.LogLevel = "debug"
		}
	}
	if *logLevel != "info" {
		cfg.LogLevel = *logLevel
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return cfg, nil
}

// setupLogging configures the global logger. Logs always go to stderr so the
// stdio transport owns stdout.
func setupLogging(cfg *config.Config) {
	level := parseLogLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	if cfg.Debug {
		// Pretty logging for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
		log.Logger = log.Logger.With().Caller().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().
			Timestamp().
			Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}

// parseLogLevel converts a string log level to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// buildProviders maps configured provider names to implementations
func buildProviders(names []string) ([]tools.Provider, error) {
	providers := make([]tools.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case config.ProviderGreeter:
			providers = append(providers, greeter.New())
		case config.ProviderClock:
			providers = append(providers, clock.New(nil))
		default:
			return nil, errors.Wrapf(config.ErrUnknownProvider, "%q", name)
		}
	}
	return providers, nil
}

// run serves on the configured transport until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, dispatcher *dispatch.Dispatcher) error {
	switch cfg.Transport {
	case config.TransportStdio:
		srv := stdio.New(dispatcher, stdio.Options{MaxConcurrency: cfg.MaxConcurrency})

		// unblock the pending read when a signal arrives
		stop := context.AfterFunc(ctx, func() { _ = os.Stdin.Close() })
		defer stop()

		err := srv.Serve(ctx, os.Stdin, os.Stdout)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	case config.TransportHTTP:
		srv, err := server.New(cfg, dispatcher)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.ListenAddr)
		}()

		select {
		case err := <-errCh:
			_ = srv.Shutdown(context.Background())
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			log.Info().Msg("Shutting down MCP server...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)

	default:
		return errors.Wrapf(config.ErrInvalidTransport, "transport=%q", cfg.Transport)
	}
}
