// Package main is the entry point for the spine orchestrator.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/config"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spine",
	Short: "spine - deterministic command orchestration",
	Long: `spine turns short natural-language commands into audited tool calls.

Text is classified into an intent, entities are extracted, a flow is compiled
and every Execute step passes the policy engine before its tool runs. Each
decision lands in a per-tenant hash-chained audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		path := configPath
		if path == "" {
			path = os.Getenv(config.EnvPrefix + "CONFIG")
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "spine %s (commit=%s, built=%s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default $SPINE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd, serveCmd, detectCmd, handleCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
