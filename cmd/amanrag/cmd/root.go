// Package cmd provides the CLI commands for amanrag.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Persistent flags.
var (
	projectDir  string
	corpusPath  string
	debugMode   bool
	profileOpts profiling.Options
	profSession *profiling.Session
	logCleanup  func()
)

// NewRootCmd creates the root command for the amanrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Hybrid BM25 + dense search over Chinese and English documents",
		Long: `amanrag ranks documents by fusing BM25 keyword scores with dense
similarity, and searches synonym variants of every query in parallel.

Point it at a corpus (JSONL, JSON, YAML, SQLite or PostgreSQL) in
.amanrag.yaml, then search from the command line or serve the engine
to AI assistants over MCP:

  amanrag search "小红书营销"
  amanrag serve`,
		Version:      version.Version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")
	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return stopProfiling()
	}

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .amanrag.yaml")
	cmd.PersistentFlags().StringVar(&corpusPath, "corpus", "", "Corpus file, overrides corpus.path")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.amanrag/logs/")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newExpandCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfiling(*cobra.Command, []string) error {
	if !profileOpts.Enabled() {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profSession = s
	return nil
}

func stopProfiling() error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	if profSession == nil {
		return nil
	}
	err := profSession.Stop()
	profSession = nil
	return err
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_ = stopProfiling()
	}
	return err
}

// loadConfig loads the project configuration, applies the --corpus
// override and installs the logger. Logs go to the log file only unless
// --debug is set, since stdout may carry JSON-RPC.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if corpusPath != "" {
		abs, err := filepath.Abs(corpusPath)
		if err != nil {
			return nil, fmt.Errorf("invalid --corpus: %w", err)
		}
		cfg.Corpus.Path = abs
		cfg.Corpus.DSN = ""
		cfg.Corpus.Driver = ""
	}

	logCfg := logging.ServeConfig(cfg.Server.LogLevel)
	if debugMode {
		logCfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	if logCleanup != nil {
		logCleanup()
	}
	logCleanup = cleanup

	slog.Debug("config_loaded",
		slog.String("dir", projectDir),
		slog.String("corpus", cfg.Corpus.Path),
		slog.String("dense_backend", cfg.Dense.Backend))
	return cfg, nil
}

// reportError logs err with its code so CLI failures show up in the log file.
func reportError(op string, err error) error {
	attrs := append([]any{slog.String("op", op)}, amerrors.LogAttrs(err)...)
	slog.Error("command_failed", attrs...)
	return err
}
