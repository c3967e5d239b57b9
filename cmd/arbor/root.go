package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
)

var (
	cfg    config.Config
	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor is a reactive navigation tree",
	Long: `Arbor builds a navigation tree from extensions over a workspace, keeps its
open/current state in a pluggable store and resolves drag-and-drop moves.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("log-level"); f.Changed {
			c.Log.Level = f.Value.String()
		}
		if f := cmd.Flags().Lookup("workspace"); f.Changed {
			c.Workspace.Path = f.Value.String()
		}
		if f := cmd.Flags().Lookup("backend"); f.Changed {
			c.State.Backend = f.Value.String()
			if err := c.Validate(); err != nil {
				return err
			}
		}
		cfg = c
		logger = logging.New(logging.ParseLevel(cfg.Log.Level))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default .arbor/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("workspace", "", "Workspace fixture file (default: built-in demo)")
	rootCmd.PersistentFlags().String("backend", "", "State backend (memory, file, redis, sqlite)")
}
