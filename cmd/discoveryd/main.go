// Discoveryd is the perpetual discovery daemon.
//
// It exposes an HTTP API for launching autonomous discovery runs,
// streaming their event logs over SSE and NATS, and stopping them
// gracefully.
//
// Usage:
//
//	# Start with the default config file (~/.config/discoveryd/config.yaml)
//	discoveryd
//
//	# Start with an explicit config file
//	discoveryd --config /etc/discoveryd/config.yaml
//
// Every setting can also come from the environment with the DISCOVERYD_
// prefix, e.g. DISCOVERYD_REASONING_API_KEY.
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
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/governance"
	"github.com/fyrsmithlabs/discoveryd/internal/httpapi"
	"github.com/fyrsmithlabs/discoveryd/internal/logging"
	"github.com/fyrsmithlabs/discoveryd/internal/orchestrator"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/telemetry"
	"github.com/fyrsmithlabs/discoveryd/internal/tools"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("discoveryd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
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

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Daemon shutdown complete")
}

// run starts the daemon and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	logger.Info("starting discoveryd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.Duration("shutdown_timeout", time.Duration(cfg.Server.ShutdownTimeout)))

	if degraded, msg := tel.Degraded(); degraded {
		logger.Warn("telemetry degraded", zap.String("reason", msg))
	}

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("nats_embedded", deps.natsServer != nil),
		zap.String("model", cfg.Reasoning.Model))

	manager, err := httpapi.NewManager(engineFactory(cfg, deps, logger), deps.natsConn, logger)
	if err != nil {
		return fmt.Errorf("initializing run manager: %w", err)
	}

	srv, err := httpapi.NewServer(manager, logger, httpapi.ServerOptions{
		Addr:        cfg.Server.Addr,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout),
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	manager.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	return nil
}

// dependencies holds shared infrastructure for the daemon's lifetime.
type dependencies struct {
	natsServer *natsserver.Server
	natsConn   *nats.Conn
	client     reasoning.Client
	tool       tools.Tool
	logger     *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsServer != nil {
		d.natsServer.Shutdown()
		d.natsServer.WaitForShutdown()
	}
}

func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	client, err := reasoning.New(reasoning.Config{
		BaseURL:           cfg.Reasoning.BaseURL,
		Model:             cfg.Reasoning.Model,
		APIKey:            cfg.Reasoning.APIKey.Value(),
		RequestsPerSecond: cfg.Reasoning.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reasoning client: %w", err)
	}
	deps.client = client

	tool, err := tools.NewSearch(client, logger)
	if err != nil {
		return nil, fmt.Errorf("creating search tool: %w", err)
	}
	deps.tool = tool

	natsURL := cfg.Events.NATSURL
	if natsURL == "" && cfg.Events.Embedded {
		ns, err := startEmbeddedNATS()
		if err != nil {
			return nil, fmt.Errorf("starting embedded NATS server: %w", err)
		}
		deps.natsServer = ns
		natsURL = ns.ClientURL()
		logger.Info("embedded NATS server started", zap.String("url", natsURL))
	}

	if natsURL != "" {
		nc, err := nats.Connect(natsURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connecting to NATS at %s: %w", natsURL, err)
		}
		deps.natsConn = nc
		logger.Info("connected to NATS", zap.String("url", natsURL))
	}

	return deps, nil
}

// startEmbeddedNATS runs an in-process NATS server on a random port for
// deployments without an external broker.
func startEmbeddedNATS() (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("server not ready for connections")
	}

	return ns, nil
}

// engineFactory builds a fresh engine per run, all sharing the reasoning
// client and search tool.
func engineFactory(cfg *config.Config, deps *dependencies, logger *zap.Logger) httpapi.EngineFactory {
	policy := governance.Policy{
		MaxCycles:               cfg.Governance.MaxCycles,
		NoveltyThreshold:        cfg.Governance.NoveltyThreshold,
		MaxRepairAttempts:       cfg.Governance.MaxRepairAttempts,
		ClarificationConfidence: cfg.Governance.ClarificationConfidence,
		MaxRecursionDepth:       cfg.Governance.MaxRecursionDepth,
	}

	return func(log *events.Log) (httpapi.Runner, error) {
		governor, err := governance.NewGovernor(policy, logger)
		if err != nil {
			return nil, fmt.Errorf("creating governor: %w", err)
		}

		engine, err := orchestrator.New(orchestrator.Options{
			Logger:     logger,
			Client:     deps.client,
			Tool:       deps.tool,
			Events:     log,
			Governor:   governor,
			Deliberate: cfg.Engine.Deliberate,
		})
		if err != nil {
			return nil, fmt.Errorf("creating engine: %w", err)
		}
		return engine, nil
	}
}
