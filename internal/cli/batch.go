package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/batch"
)

func newBatchCmd(st *state) *cobra.Command {
	opts := &registryOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Decode every extract under the extract prefix",
		Long: `Build the schema registry, then decode every extract under the configured
extract prefix in parallel. Prints anomaly counts per file and the list of
hard failures, and exits non-zero when any extract failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := st.open(cmd)
			if err != nil {
				return err
			}
			reg, err := opts.registry(cmd.Context(), a)
			if err != nil {
				return err
			}
			runner, err := a.Runner(reg)
			if err != nil {
				return err
			}
			summary, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func printSummary(out io.Writer, summary *batch.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EXTRACT\tDATE\tSCHEMA\tROWS\tANOMALIES\tSTATUS")
	for _, f := range summary.Files {
		status := "decoded"
		switch {
		case f.Err != nil:
			status = "FAILED"
		case f.Skipped:
			status = "skipped"
		}
		schema := f.Vintage
		if schema == "" {
			schema = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			f.Source, f.ExtractDate, schema, f.Rows, formatCounts(f.Anomalies), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nrun %s: %d decoded, %d skipped, %d rows in %s\n",
		summary.RunID, summary.Decoded(), summary.Skipped(), summary.TotalRows(), summary.Duration.Round(time.Millisecond))

	failures := summary.Failures()
	if len(failures) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nhard failures:\n")
	for _, f := range failures {
		fmt.Fprintf(out, "  %s: %v\n", f.Source, f.Err)
	}
	return fmt.Errorf("%d of %d extracts failed", len(failures), len(summary.Files))
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "0"
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("%s=%d", c, counts[c])
	}
	return strings.Join(parts, ",")
}
