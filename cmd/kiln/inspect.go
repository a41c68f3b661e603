package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kiln-ml/kiln/internal/epctx"
	"github.com/kiln-ml/kiln/internal/graph"
)

// contextNodeSummary is the inspect output for one EPContext node.
type contextNodeSummary struct {
	Name             string `json:"name"`
	PartitionName    string `json:"partition_name"`
	Source           string `json:"source"`
	SDKVersion       string `json:"sdk_version"`
	MainContext      bool   `json:"main_context"`
	EmbedMode        bool   `json:"embed_mode"`
	PayloadSize      int    `json:"payload_size,omitempty"`
	PayloadPath      string `json:"payload_path,omitempty"`
	MaxSpillFillSize int64  `json:"max_spill_fill_size,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <model>",
		Short: "List the EPContext nodes of a context-cache model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := graph.ParseFile(args[0])
			if err != nil {
				return err
			}
			if model.Graph == nil {
				return fmt.Errorf("%s: model has no graph", args[0])
			}

			var summaries []contextNodeSummary
			for i := range model.Graph.Nodes {
				node := &model.Graph.Nodes[i]
				if !epctx.IsContextNode(node) {
					continue
				}
				attrs, err := epctx.ContextAttrsFromNode(node)
				if err != nil {
					return err
				}
				summaries = append(summaries, contextNodeSummary{
					Name:             node.Name,
					PartitionName:    attrs.PartitionName,
					Source:           attrs.Source,
					SDKVersion:       attrs.SDKVersion,
					MainContext:      attrs.MainContext,
					EmbedMode:        attrs.EmbedMode,
					PayloadSize:      len(attrs.PayloadBytes),
					PayloadPath:      attrs.PayloadPath,
					MaxSpillFillSize: attrs.MaxSpillFillSize,
				})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(summaries) == 0 {
				fmt.Fprintln(out, "no EPContext nodes found")
				return nil
			}
			for _, s := range summaries {
				payload := fmt.Sprintf("inline (%d bytes)", s.PayloadSize)
				if !s.EmbedMode {
					payload = "file " + s.PayloadPath
					if s.PayloadPath == "" {
						payload = "none"
					}
				} else if s.PayloadSize == 0 {
					payload = "none"
				}
				fmt.Fprintf(out, "%s\tmain=%v\tsource=%s\tsdk=%s\tpayload=%s\tmax_spill_fill=%d\n",
					s.Name, s.MainContext, s.Source, s.SDKVersion, payload, s.MaxSpillFillSize)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the node list as JSON")

	return cmd
}
