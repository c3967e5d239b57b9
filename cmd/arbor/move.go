package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/pkg/domain"
)

var moveCmd = &cobra.Command{
	Use:   "move <source-path> <target-path>",
	Short: "Drop a node onto another one",
	Long: `Classifies a drag-and-drop of the node at source-path onto target-path
(paths are ~ separated, e.g. root~personal~inbox) and executes it.
With --write the resulting workspace is saved back to its fixture file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		write, _ := cmd.Flags().GetBool("write")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		instr := domain.Instruction{
			Type:       domain.InstructionType(typ),
			SourcePath: domain.SplitPathKey(args[0]),
			TargetPath: domain.SplitPathKey(args[1]),
		}
		for _, path := range [][]string{instr.SourcePath, instr.TargetPath} {
			for _, id := range domain.ParentPath(path) {
				a.Expand(cmd.Context(), id, domain.Outbound)
			}
		}
		if err := a.Flush(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		plan := a.Resolver().Classify(instr)
		if plan.Operation == domain.OpReject {
			return fmt.Errorf("rejected: %s", plan.Reason)
		}
		fmt.Fprintf(out, "%s into %s at %d\n", plan.Operation, plan.Destination.ID, plan.Index)
		if dryRun {
			return nil
		}

		if res := a.Resolver().Execute(cmd.Context(), plan); res.Err != nil {
			return res.Err
		}
		if err := a.Flush(cmd.Context()); err != nil {
			return err
		}
		if write {
			return a.saveWorkspace()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().StringP("type", "t", string(domain.MakeChild), "Instruction (reorder-above, reorder-below, make-child)")
	moveCmd.Flags().Bool("dry-run", false, "Only classify the drop")
	moveCmd.Flags().Bool("write", false, "Save the workspace fixture after the move")
}
