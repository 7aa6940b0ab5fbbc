package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cpsdecode/cpsdecode/internal/app"
	"github.com/cpsdecode/cpsdecode/internal/batch"
	"github.com/cpsdecode/cpsdecode/internal/registry"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

type registryOptions struct {
	fromCatalog bool
}

func (o *registryOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.fromCatalog, "from-catalog", false, "use schemas stored by layouts parse instead of re-parsing layouts")
}

// registry returns the registry from the catalog, or builds it from the
// layout documents and stores the result in the catalog.
func (o *registryOptions) registry(ctx context.Context, a *app.App) (*registry.Registry, error) {
	if o.fromCatalog {
		return a.RegistryFromCatalog(ctx)
	}
	reg, _, err := a.BuildRegistry(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range reg.Schemas() {
		if err := a.Catalog().SaveSchema(ctx, s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newResolveCmd(st *state) *cobra.Command {
	opts := &registryOptions{}

	cmd := &cobra.Command{
		Use:   "resolve [YYYYMM|extract...]",
		Short: "Show the schema in force for survey months or extracts",
		Long: `Print the layout schema that applies to each argument. Arguments are either
six-digit survey months or extract names whose month is taken from the file
name. Without arguments every extract under the extract prefix is listed.`,
		Example: `  # Which layout applies to February 1995?
  cpsdecode resolve 199502

  # Matched layouts for all extracts
  cpsdecode resolve --from-catalog`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			var jobs []batch.Job
			if len(args) == 0 {
				if jobs, err = runner.Plan(cmd.Context()); err != nil {
					return err
				}
			} else {
				re, err := a.Config().DateRegexp()
				if err != nil {
					return err
				}
				for _, arg := range args {
					job := batch.Job{Source: arg}
					if job.ExtractDate, err = types.ParseYearMonth(arg); err != nil {
						job.ExtractDate, job.Err = batch.ExtractDate(re, arg)
					}
					jobs = append(jobs, job)
				}
			}
			return printResolutions(cmd.OutOrStdout(), runner.Resolve(jobs))
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func printResolutions(out io.Writer, res []batch.Resolution) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EXTRACT\tDATE\tSCHEMA\tEFFECTIVE")
	failed := 0
	for _, r := range res {
		date := "-"
		if r.Job.Err == nil {
			date = r.Job.ExtractDate.String()
		}
		if r.Err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "%s\t%s\t-\t%s\n", r.Job.Source, date, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Job.Source, date, r.Schema.Vintage, r.Schema.EffectiveDate)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d could not be resolved", failed, len(res))
	}
	return nil
}
