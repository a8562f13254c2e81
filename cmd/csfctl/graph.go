package main

import (
	"github.com/spf13/cobra"

	"csf-controls-demo/internal/graph"
)

func newGraphCmd() *cobra.Command {
	var (
		outputFormat string
		cluster      bool
	)
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a graph of resource dependencies",
		Long: `Generate a DOT or Mermaid graph of the declared resources. Solid edges
carry data, dashed edges only order declarations, grey edges link a resource
to its parent.

    csfctl graph | dot -Tsvg -o stack.svg
    csfctl graph -f mermaid -c`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := graph.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			p, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			gen := &graph.Generator{Format: format, ClusterByService: cluster}
			return gen.Generate(p.Graph, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&cluster, "cluster", "c", false, "Cluster resources by AWS service")
	opts.addFlags(cmd)
	return cmd
}
