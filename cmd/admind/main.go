// Admind is the orchestration daemon for administrative workflows.
//
// It turns free-text requests into validated, confidence-gated tool
// invocation plans, executes them with automatic recovery, and exposes
// synchronous and asynchronous submission over HTTP.
//
// Usage:
//
//	# Start with defaults
//	admind
//
//	# Point at a config file
//	admind -config /etc/admind/config.yaml
//
//	# Configure via environment
//	ADMIND_SERVER_PORT=9000 ADMIND_LOGGING_LEVEL=debug admind
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/config"
	"github.com/halcyonlabs/admind/internal/extraction"
	"github.com/halcyonlabs/admind/internal/httpapi"
	"github.com/halcyonlabs/admind/internal/logging"
	"github.com/halcyonlabs/admind/internal/memory"
	"github.com/halcyonlabs/admind/internal/orchestrator"
	"github.com/halcyonlabs/admind/internal/tools"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  admind           Start the admind daemon\n")
			fmt.Fprintf(os.Stderr, "  admind version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("admind by Halcyon Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the full service graph and blocks until the context is
// cancelled: config, logger, capabilities (parser, tools, memory), the
// orchestrator and its worker pool, and the HTTP front end.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting admind",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.String("build_date", buildDate),
	)

	parser, err := extraction.NewParser(extraction.Config{
		DefaultDomain: cfg.Orchestrator.DefaultDomain,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing parser: %w", err)
	}

	registry := tools.NewRegistry(logger)

	store, err := memory.NewStore(cfg.MemoryConfig(), nil, logger)
	if err != nil {
		return fmt.Errorf("initializing memory store: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Capabilities{
		Parser: parser,
		Tools:  registry,
		Memory: store,
	}, cfg.OrchestratorConfig(), logger)
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	service := orchestrator.NewService(orch, cfg.ServiceConfig(), logger)
	defer service.Close()

	server, err := httpapi.NewServer(service, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
