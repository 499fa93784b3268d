package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/generator"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the supported output targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TARGET\tEXTENSION\tSERVICE WRAPPER")
			for _, t := range generator.Targets() {
				wrap := "no"
				if t.Executable() {
					wrap = "yes"
				}
				fmt.Fprintf(tw, "%s\t.%s\t%s\n", t, t.Extension(), wrap)
			}
			return tw.Flush()
		},
	}
}
