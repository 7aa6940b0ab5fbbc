package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type catalogOptions struct {
	output string
}

func newCatalogCmd(st *state) *cobra.Command {
	opts := &catalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List decoded extracts recorded in the catalog",
		Example: `  # List decoded extracts in table format
  cpsdecode catalog

  # List decoded extracts as JSON
  cpsdecode catalog -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := st.open(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			recs, err := a.Catalog().ListExtracts(ctx)
			if err != nil {
				return err
			}
			total, err := a.Catalog().TotalRows(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"extracts":   recs,
					"total_rows": total,
				})
			}

			if len(recs) == 0 {
				fmt.Fprintln(out, "No decoded extracts.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "EXTRACT\tDATE\tSCHEMA\tROWS\tANOMALIES\tTEXT ISSUES\tOUTPUT")
			for _, r := range recs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.SourcePath, r.ExtractDate, r.Vintage, r.RowCount, r.AnomalyCount, r.TextIssueCount, r.OutputPath)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d extracts, %d observations\n", len(recs), total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")

	return cmd
}
