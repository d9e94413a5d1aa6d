package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/logging"
)

// logManager is the global logging manager, created in init() and
// upgraded once config is available.
var logManager *logging.Manager

// cfg is the loaded configuration, available to every subcommand after
// the persistent pre-run.
var cfg *config.Config

var configPath string

var rootCmd = &cobra.Command{
	Use:   "neuroclimabot",
	Short: "Two-tier climate-document intelligence: ingestion pipeline and query orchestrator",
	Long: "NeuroClimaBot ingests climate documents (research papers, policy texts, scientific " +
		"data, news) into vector and graph stores, runs a social-tipping-point classification " +
		"pipeline over them, and answers questions by fanning out across all stores with " +
		"reranking and multi-stage response generation.",
	PersistentPreRunE: runInitialize,
}

func init() {
	logManager = logging.NewManager()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd, ingestCmd, queryCmd, versionCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.DefaultLevel
		if cfg.LogLevel != "" {
			logger.Warn("invalid log level configured, using default",
				"configured", cfg.LogLevel, "default", "info")
		}
	}

	if err := logManager.Upgrade(cfg.LogFile, level); err != nil {
		logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := rootCmd.Execute()

	if err != nil {
		cmd, _, _ := rootCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = rootCmd
		}

		fmt.Printf("Error: %v\n", err)
		if !cmd.SilenceUsage {
			fmt.Printf("\n")
			cmd.SetOut(os.Stdout)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
