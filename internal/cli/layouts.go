package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/app"
	"github.com/cpsdecode/cpsdecode/internal/registry"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/internal/storage"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// WorkbookName is the object written under the export prefix by --xlsx.
const WorkbookName = "cps_layouts.xlsx"

func registerLayoutsCmd(parent *cobra.Command, st *state) {
	cmd := &cobra.Command{
		Use:   "layouts",
		Short: "Parse and validate record layout documents",
	}

	cmd.AddCommand(newLayoutsParseCmd(st))
	cmd.AddCommand(newLayoutsValidateCmd(st))

	parent.AddCommand(cmd)
}

type layoutsParseOptions struct {
	xlsx bool
}

func newLayoutsParseCmd(st *state) *cobra.Command {
	opts := &layoutsParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Build schemas from every layout document and export them",
		Long: `Parse, correct and validate every configured layout document. Each registered
schema is exported as a CSV table and an infix dictionary under the export
prefix and stored in the catalog.`,
		Example: `  # Parse layouts and export tables and dictionaries
  cpsdecode layouts parse

  # Also write a workbook with one sheet per vintage
  cpsdecode layouts parse --xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := st.open(cmd)
			if err != nil {
				return err
			}
			return runLayoutsParse(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.xlsx, "xlsx", false, "also export all schemas as one workbook")

	return cmd
}

func runLayoutsParse(ctx context.Context, out io.Writer, a *app.App, opts *layoutsParseOptions) error {
	reg, report, err := a.BuildRegistry(ctx)
	if err != nil {
		return err
	}
	if err := printBuildReport(out, report); err != nil {
		return err
	}

	prefix := a.Config().Layouts.ExportPrefix
	textColumns := a.Config().Decode.TextColumns
	for _, s := range reg.Schemas() {
		if err := exportSchema(ctx, a.Storage(), prefix, s, textColumns); err != nil {
			return err
		}
		if err := a.Catalog().SaveSchema(ctx, s); err != nil {
			return err
		}
	}

	if opts.xlsx && reg.Len() > 0 {
		var buf bytes.Buffer
		if err := schema.WriteWorkbook(&buf, reg.Schemas()); err != nil {
			return err
		}
		if err := a.Storage().PutObject(ctx, storage.Join(prefix, WorkbookName), buf.Bytes()); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\n%d of %d layouts registered\n", reg.Len(), len(report.Vintages))
	if failures := report.Failures(); len(failures) > 0 {
		return fmt.Errorf("%d layouts failed", len(failures))
	}
	return nil
}

// exportSchema writes <vintage>.csv and <vintage>.dct under prefix.
func exportSchema(ctx context.Context, store storage.ObjectStorage, prefix string, s *types.Schema, textColumns []string) error {
	var table bytes.Buffer
	if err := schema.WriteTable(&table, s); err != nil {
		return err
	}
	if err := store.PutObject(ctx, storage.Join(prefix, s.Vintage+".csv"), table.Bytes()); err != nil {
		return err
	}

	var dct bytes.Buffer
	if err := schema.WriteInfix(&dct, s, textColumns); err != nil {
		return err
	}
	return store.PutObject(ctx, storage.Join(prefix, s.Vintage+".dct"), dct.Bytes())
}

func newLayoutsValidateCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse, correct and validate layouts without exporting",
		Long:  `Run every layout document through parsing, correction and validation. Exits non-zero when any layout has an integrity violation or cannot be read.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := st.open(cmd)
			if err != nil {
				return err
			}
			_, report, err := a.BuildRegistry(cmd.Context())
			if err != nil {
				return err
			}
			if err := printBuildReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if failures := report.Failures(); len(failures) > 0 {
				return fmt.Errorf("%d layouts failed validation", len(failures))
			}
			return nil
		},
	}
}

func printBuildReport(out io.Writer, report *registry.BuildReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VINTAGE\tEFFECTIVE\tDIALECT\tFIELDS\tANOMALIES\tCORRECTIONS\tWARNINGS\tSTATUS")
	for _, v := range report.Vintages {
		status := "registered"
		if !v.Registered {
			status = "FAILED"
			if v.Err != nil {
				status = "FAILED: " + firstLine(v.Err.Error())
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			v.Vintage, v.EffectiveDate, v.Dialect, v.Fields,
			len(v.ParseAnomalies), len(v.Corrections), len(v.Warnings), status)
	}
	return w.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
