package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/domain"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage persisted navigation state",
	Long:  `List, inspect, toggle and remove the path state snapshots of the configured backend.`,
}

var stateLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored state keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg.State)
		if err != nil {
			return err
		}
		defer b.Close()

		keys, err := b.store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing state: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, "No stored state found.")
			return nil
		}
		fmt.Fprintln(out, "Stored state:")
		for _, k := range keys {
			fmt.Fprintln(out, "- "+k)
		}
		return nil
	},
}

var stateInspectCmd = &cobra.Command{
	Use:   "inspect [key]",
	Short: "Print a state snapshot as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := cfg.State.Key
		if len(args) > 0 {
			key = args[0]
		}
		b, err := openBackend(cfg.State)
		if err != nil {
			return err
		}
		defer b.Close()

		entries, err := b.store.Load(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("loading state %q: %w", key, err)
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <key>...",
	Short: "Remove one or more state snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cfg.State)
		if err != nil {
			return err
		}
		defer b.Close()

		var errs []error
		for _, key := range args {
			if err := b.store.Delete(cmd.Context(), key); err != nil {
				errs = append(errs, fmt.Errorf("removing %q: %w", key, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed state '%s'\n", key)
		}
		return errors.Join(errs...)
	},
}

var stateToggleCmd = &cobra.Command{
	Use:   "toggle <path>",
	Short: "Flip a flag of a path, e.g. root~personal~inbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		path := domain.SplitPathKey(args[0])
		value, err := a.Toggle(cmd.Context(), path, domain.StateKey(key))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s=%t\n", domain.PathKey(path), key, value)
		return nil
	},
}

var stateCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Drop entries holding only default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.State().Compact(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateLsCmd, stateInspectCmd, stateRmCmd, stateToggleCmd, stateCompactCmd)
	stateToggleCmd.Flags().StringP("key", "k", string(domain.StateOpen), "Flag to flip (open, current, alternateTree)")
}
