package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kiln-ml/kiln/internal/epctx"
	"github.com/kiln-ml/kiln/internal/graph"
)

func newExtractCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <model>",
		Short: "Dump a context-cache model's compiled binary to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			model, err := graph.ParseFile(modelPath)
			if err != nil {
				return err
			}
			if model.Graph == nil {
				return fmt.Errorf("%s: model has no graph", modelPath)
			}

			attrs, err := mainContextAttrs(model.Graph)
			if err != nil {
				return fmt.Errorf("%s: %w", modelPath, err)
			}

			payload := attrs.PayloadBytes
			if !attrs.EmbedMode {
				binPath, err := epctx.ResolveExternalRef(filepath.Dir(modelPath), attrs.PayloadPath)
				if err != nil {
					return err
				}
				payload, err = os.ReadFile(binPath) //nolint:gosec // G304: resolved and validated above.
				if err != nil {
					return err
				}
			}
			if len(payload) == 0 {
				return fmt.Errorf("%s: main context node carries no payload", modelPath)
			}

			if err := os.WriteFile(output, payload, 0o644); err != nil { //nolint:gosec // G306: cache binaries are not secrets.
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(payload), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "context.bin", "Output file for the compiled binary")

	return cmd
}

// mainContextAttrs finds the main EPContext node in a full model graph.
func mainContextAttrs(g *graph.GraphProto) (epctx.ContextNodeAttrs, error) {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if !epctx.IsContextNode(node) {
			continue
		}
		attrs, err := epctx.ContextAttrsFromNode(node)
		if err != nil {
			return epctx.ContextNodeAttrs{}, err
		}
		if attrs.MainContext {
			return attrs, nil
		}
	}
	return epctx.ContextNodeAttrs{}, fmt.Errorf("no EPContext node with main_context=1")
}
