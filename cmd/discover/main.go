// Package main implements the discover CLI: one-shot discovery runs and
// manual operations against a running discoveryd server.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/events"
	"github.com/fyrsmithlabs/discoveryd/internal/governance"
	"github.com/fyrsmithlabs/discoveryd/internal/logging"
	"github.com/fyrsmithlabs/discoveryd/internal/orchestrator"
	"github.com/fyrsmithlabs/discoveryd/internal/reasoning"
	"github.com/fyrsmithlabs/discoveryd/internal/tools"
)

var (
	// serverURL is the base URL for the discoveryd HTTP server
	serverURL string
	// configPath overrides the default config file location
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "discover",
	Short: "CLI for autonomous discovery runs",
	Long: `discover launches discovery runs, either in-process or against a
running discoveryd server.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "discoveryd server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
}

// runCmd executes a discovery run in-process, without a daemon.
var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a discovery cycle in-process",
	Long: `Run a discovery cycle for the given goal without a daemon. The event
log is written to stdout as NDJSON; the final report goes to stderr.

Examples:
  # Run with the default config
  discover run "emergent behavior in ant colonies"

  # Run with an explicit config file
  discover run --config ./config.yaml "protein folding shortcuts"`,
	Args: cobra.ExactArgs(1),
	RunE: runLocal,
}

var deliberate bool

func init() {
	runCmd.Flags().BoolVar(&deliberate, "deliberate", false, "enable strategy deliberation before each hypothesis")
}

func runLocal(cmd *cobra.Command, args []string) error {
	goal := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Logs go to stderr via the logging package; stdout stays clean for
	// the NDJSON event stream.
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	client, err := reasoning.New(reasoning.Config{
		BaseURL:           cfg.Reasoning.BaseURL,
		Model:             cfg.Reasoning.Model,
		APIKey:            cfg.Reasoning.APIKey.Value(),
		RequestsPerSecond: cfg.Reasoning.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("creating reasoning client: %w", err)
	}

	tool, err := tools.NewSearch(client, logger)
	if err != nil {
		return fmt.Errorf("creating search tool: %w", err)
	}

	governor, err := governance.NewGovernor(governance.Policy{
		MaxCycles:               cfg.Governance.MaxCycles,
		NoveltyThreshold:        cfg.Governance.NoveltyThreshold,
		MaxRepairAttempts:       cfg.Governance.MaxRepairAttempts,
		ClarificationConfidence: cfg.Governance.ClarificationConfidence,
		MaxRecursionDepth:       cfg.Governance.MaxRecursionDepth,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating governor: %w", err)
	}

	log := events.NewLog(events.NewNDJSONWriter(cmd.OutOrStdout()))

	engine, err := orchestrator.New(orchestrator.Options{
		Logger:     logger,
		Client:     client,
		Tool:       tool,
		Events:     log,
		Governor:   governor,
		Deliberate: deliberate || cfg.Engine.Deliberate,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("stop requested, finishing current cycle")
		engine.Stop()
	}()

	report, err := engine.Run(ctx, goal, "local")
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), report.FinalMessage)

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), string(encoded))

	if report.Eureka {
		return nil
	}
	logger.Debug("no discovery", zap.Int("cycles", report.Cycles))
	return nil
}

// statusCmd fetches a run's state from the server.
var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the state of a run on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, fmt.Sprintf("%s/api/v1/runs/%s", serverURL, args[0]))
	},
}

// stopCmd requests a graceful stop of a run on the server.
var stopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Request a graceful stop of a run on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(fmt.Sprintf("%s/api/v1/runs/%s/stop", serverURL, args[0]), "application/json", nil)
		if err != nil {
			return fmt.Errorf("requesting stop: %w", err)
		}
		defer resp.Body.Close()
		return printResponse(cmd, resp)
	},
}

// watchCmd starts a run on the server and tails its event stream.
var watchCmd = &cobra.Command{
	Use:   "watch <goal>",
	Short: "Start a run on the server and tail its events",
	Long: `Start a run on the discoveryd server and stream its event log to
stdout as NDJSON until the run finishes.

Examples:
  discover watch "emergent behavior in ant colonies"
  discover watch --server http://discovery.internal:8080 "protein folding"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{"goal": args[0]})
	if err != nil {
		return err
	}

	resp, err := http.Post(serverURL+"/api/v1/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return httpError(resp)
	}

	var started struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "run started: %s\n", started.RunID)

	stream, err := http.Get(fmt.Sprintf("%s/api/v1/runs/%s/events", serverURL, started.RunID))
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer stream.Body.Close()

	if stream.StatusCode != http.StatusOK {
		return httpError(stream)
	}

	// Re-emit the SSE data lines as NDJSON.
	scanner := bufio.NewScanner(stream.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			fmt.Fprintln(cmd.OutOrStdout(), data)
		}
	}
	return scanner.Err()
}

// healthCmd checks server health.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check discoveryd server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cmd, serverURL+"/health")
	},
}

func getJSON(cmd *cobra.Command, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()
	return printResponse(cmd, resp)
}

func printResponse(cmd *cobra.Command, resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(body))
}
