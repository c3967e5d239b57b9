package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/internal/presentation/tree"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
)

var treeCmd = &cobra.Command{
	Use:   "tree [node-id]",
	Short: "Print the navigation tree",
	Long: `Expands the workspace tree from a node (default: root) and prints it with
the persisted open/current markers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		depth, _ := cmd.Flags().GetInt("depth")
		actions, _ := cmd.Flags().GetBool("actions")
		collapse, _ := cmd.Flags().GetBool("collapse")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		root := domain.RootID
		if len(args) > 0 {
			root = args[0]
			if _, err := a.Graph().Resolve(cmd.Context(), root); err != nil {
				return err
			}
		}
		if err := a.ExpandDepth(cmd.Context(), root, depth); err != nil {
			return err
		}

		t := a.Tree(root)
		out := cmd.OutOrStdout()
		overlay := tree.NewOverlay(a.Entries())
		switch format {
		case "text":
			return tree.Text(out, t, tree.Options{
				Overlay:  overlay,
				Profile:  tui.Profile(out),
				Actions:  actions,
				Collapse: collapse,
			})
		case "markdown":
			md := tree.Markdown(t, overlay)
			if !tui.IsTerminal(out) {
				_, err := fmt.Fprint(out, md)
				return err
			}
			render, err := tui.NewRenderer(tui.Width(out))
			if err != nil {
				return err
			}
			rendered, err := render(md)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, rendered)
			return err
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(t)
		}
		return fmt.Errorf("unknown format %q (text, markdown, json, yaml)", format)
	},
}

var mermaidCmd = &cobra.Command{
	Use:   "mermaid [node-id]",
	Short: "Export the navigation tree as a Mermaid diagram",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		root := domain.RootID
		if len(args) > 0 {
			root = args[0]
		}
		if err := a.ExpandDepth(cmd.Context(), root, depth); err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), tree.Mermaid(a.Tree(root), tree.NewOverlay(a.Entries())))
		return err
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(mermaidCmd)
	treeCmd.Flags().StringP("format", "f", "text", "Output format (text, markdown, json, yaml)")
	treeCmd.Flags().IntP("depth", "d", 3, "Levels to expand")
	treeCmd.Flags().Bool("actions", false, "Include actions")
	treeCmd.Flags().Bool("collapse", false, "Hide the children of closed paths")
	mermaidCmd.Flags().IntP("depth", "d", 3, "Levels to expand")
}
