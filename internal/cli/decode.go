package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/app"
	"github.com/cpsdecode/cpsdecode/internal/batch"
	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/internal/sink"
	"github.com/cpsdecode/cpsdecode/internal/storage"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

type decodeOptions struct {
	registryOptions
	date       string
	schemaPath string
	out        string
	format     string
	compress   bool
}

func newDecodeCmd(st *state) *cobra.Command {
	opts := &decodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode <extract>",
		Short: "Decode one local extract file",
		Long: `Decode a fixed-width extract into a table. The survey month comes from --date
or the file name. The schema is resolved from the layouts (or the catalog),
or read from an infix dictionary given with --schema.`,
		Example: `  # Decode using the layout in force for the file's month
  cpsdecode decode --out decoded cpsb9502.dat

  # Decode with an exported dictionary into SQLite
  cpsdecode decode --date 199502 --schema cps_dict_199401.dct --format sqlite --out decoded cpsb9502.dat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd)
			if err != nil {
				return err
			}
			return runDecode(cmd.Context(), cmd.OutOrStdout(), a, args[0], opts)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.date, "date", "", "survey month YYYYMM (default: from the file name)")
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "infix dictionary (.dct) to decode with")
	cmd.Flags().StringVarP(&opts.out, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&opts.format, "format", "", "output format: csv or sqlite (default from config)")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "snappy-compress csv output")

	return cmd
}

func runDecode(ctx context.Context, out io.Writer, a *app.App, extractPath string, opts *decodeOptions) error {
	cfg := a.Config()

	date, err := opts.extractDate(a, extractPath)
	if err != nil {
		return err
	}

	s, textColumns, err := opts.schema(ctx, a, date)
	if err != nil {
		return err
	}

	f, err := os.Open(extractPath)
	if err != nil {
		return err
	}
	defer f.Close()
	src, err := decoder.OpenExtract(f)
	if err != nil {
		return err
	}
	result, err := decoder.New(textColumns).Decode(src, s, date)
	if err != nil {
		return err
	}

	entry := log.WithField("extract", extractPath)
	for _, issue := range result.Issues() {
		if issue.Code == errors.CodeUnexpectedTextColumn {
			entry.WithFields(issue.Fields()).Error(issue.Message)
		} else {
			entry.WithFields(issue.Fields()).Warn(issue.Message)
		}
	}

	store, err := storage.NewLocalStorage(opts.out)
	if err != nil {
		return err
	}
	format := opts.format
	if format == "" {
		format = cfg.Decode.Format
	}
	exp := sink.NewExporter(store, cfg.Decode.WorkDir, sink.Options{
		Format:     format,
		Compress:   opts.compress || (cfg.Decode.Compress && format == sink.FormatCSV),
		KeyColumns: cfg.Decode.KeyColumns,
		BloomFPR:   cfg.Decode.BloomFPR,
	})
	res, err := exp.Export(ctx, sink.Request{
		ExtractID:  uuid.New().String(),
		Source:     extractPath,
		OutputBase: storage.BaseName(extractPath),
		Result:     result,
		Schema:     s,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "decoded %s (%s) with %s: %d rows, %d anomalies -> %s\n",
		extractPath, date, s.Vintage, res.Sidecar.RowCount, res.Sidecar.AnomalyCount(),
		storage.Join(opts.out, res.OutputPath))
	return nil
}

func (o *decodeOptions) extractDate(a *app.App, extractPath string) (types.YearMonth, error) {
	if o.date != "" {
		return types.ParseYearMonth(o.date)
	}
	re, err := a.Config().DateRegexp()
	if err != nil {
		return 0, err
	}
	return batch.ExtractDate(re, extractPath)
}

// schema returns the schema to decode with and the columns kept as text.
func (o *decodeOptions) schema(ctx context.Context, a *app.App, date types.YearMonth) (*types.Schema, []string, error) {
	if o.schemaPath == "" {
		reg, err := o.registry(ctx, a)
		if err != nil {
			return nil, nil, err
		}
		s, err := reg.Resolve(date)
		if err != nil {
			return nil, nil, err
		}
		return s, a.Config().Decode.TextColumns, nil
	}

	f, err := os.Open(o.schemaPath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	dict, err := schema.ReadInfix(f)
	if err != nil {
		return nil, nil, err
	}
	s := &types.Schema{
		Vintage:       storage.BaseName(o.schemaPath),
		EffectiveDate: date,
		Dialect:       types.DialectStandard,
		Fields:        dict.Fields,
	}
	v := schema.NewValidator(a.Config().Layouts.ToleratedInvertedFields)
	if err := v.ValidateDictionary(s).Err(); err != nil {
		return nil, nil, err
	}
	return s, dict.TextColumns, nil
}
