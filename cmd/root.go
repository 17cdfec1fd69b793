package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schovi/nodemux/internal/config"
	"github.com/schovi/nodemux/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "nodemux",
	Short: "Console multiplexer for a set of node shells",
	Long: `nodemux starts a shell per node of a small topology (hosts, switches,
controllers) and lets one operator drive them all from a single console.

Quick start:
  nodemux run                              # Interactive console
  nodemux exec "uname -a"                  # Run on every node, print results
  nodemux exec --on hosts "ip addr"        # Run on one group
  nodemux nodes                            # Show the configured topology`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Close()
		}
	},
}

var (
	configFlag   string
	logLevelFlag string

	cfg *config.Config
	log *logger.Logger
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./nodemux.yaml or ~/.config/nodemux/nodemux.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(configFlag)
	if err != nil {
		return err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}

	log, err = logger.New(logger.Config{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Pretty: cfg.Log.Pretty,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}
