package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"csf-controls-demo/internal/render"
)

func newRenderCmd() *cobra.Command {
	var encode bool
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:       "render stub-status|user-data",
		Short:     "Print a rendered artifact",
		Long:      "Print the nginx stub_status config published to SSM, or the instance boot script.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"stub-status", "user-data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			out := p.StubStatus
			if args[0] == "user-data" {
				out = p.UserData
			}
			if encode {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), render.Base64(out))
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&encode, "base64", false, "Encode the output the way the launch template carries it")
	opts.addFlags(cmd)
	return cmd
}
