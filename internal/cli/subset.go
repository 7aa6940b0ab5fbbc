package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/decoder"
)

type subsetOptions struct {
	lines int
}

func newSubsetCmd(_ *state) *cobra.Command {
	opts := &subsetOptions{}

	cmd := &cobra.Command{
		Use:   "subset <extract> <out>",
		Short: "Copy the first lines of an extract for inspection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			n, err := decoder.Subset(in, out, opts.lines)
			if err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d lines to %s\n", n, args[1])
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 5, "number of lines to copy")

	return cmd
}
