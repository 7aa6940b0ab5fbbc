package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/internal/layout"
	"github.com/cpsdecode/cpsdecode/internal/observability"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// DocumentReader loads raw layout documents.
type DocumentReader interface {
	ReadObject(ctx context.Context, objectPath string) ([]byte, error)
}

// Pipeline turns one layout document into a corrected, validated schema.
type Pipeline struct {
	parser    *layout.Parser
	corrector *schema.Corrector
	validator *schema.Validator
}

// NewPipeline creates a pipeline from its three stages.
func NewPipeline(parser *layout.Parser, corrector *schema.Corrector, validator *schema.Validator) *Pipeline {
	return &Pipeline{
		parser:    parser,
		corrector: corrector,
		validator: validator,
	}
}

// VintageReport describes what happened to one layout document.
type VintageReport struct {
	Vintage        string
	EffectiveDate  types.YearMonth
	Dialect        types.Dialect
	CandidateLines int
	Fields         int
	ParseAnomalies errors.List
	Corrections    []schema.Correction
	Warnings       errors.List
	Violations     errors.List

	// Err is set when the vintage was not registered
	Err error

	Registered bool
}

// AnomalyCount returns the number of recoverable issues found.
func (v *VintageReport) AnomalyCount() int {
	return len(v.ParseAnomalies) + len(v.Warnings)
}

// BuildReport collects the per-vintage outcomes of a registry build.
type BuildReport struct {
	Vintages []*VintageReport
}

// Failures returns the vintages that could not be registered.
func (r *BuildReport) Failures() []*VintageReport {
	var out []*VintageReport
	for _, v := range r.Vintages {
		if !v.Registered {
			out = append(out, v)
		}
	}
	return out
}

// Process runs parse, correct and validate over one document. The returned
// schema is nil when validation found a violation.
func (p *Pipeline) Process(doc layout.Document) (*types.Schema, *VintageReport) {
	parsed := p.parser.Parse(doc)
	report := &VintageReport{
		Vintage:        doc.Vintage,
		EffectiveDate:  doc.EffectiveDate,
		Dialect:        parsed.Schema.Dialect,
		CandidateLines: parsed.CandidateLines,
		Fields:         len(parsed.Schema.Fields),
		ParseAnomalies: parsed.Anomalies,
	}

	corrected, applied := p.corrector.Apply(parsed.Schema)
	report.Corrections = applied

	validation := p.validator.Validate(corrected)
	report.Warnings = validation.Warnings
	report.Violations = validation.Violations
	if err := validation.Err(); err != nil {
		report.Err = err
		return nil, report
	}
	return corrected, report
}

// checkDistinctDates rejects source lists where two vintages claim the same
// effective date.
func checkDistinctDates(sources []Source) error {
	seen := make(map[types.YearMonth]string, len(sources))
	for _, src := range sources {
		if prev, ok := seen[src.EffectiveDate]; ok {
			return errors.NewRegistryError(errors.CodeDuplicateEffectiveDate,
				fmt.Sprintf("effective date %s claimed by %s and %s", src.EffectiveDate, prev, src.Vintage)).
				WithDetails(map[string]interface{}{"effective_date": src.EffectiveDate.String()})
		}
		seen[src.EffectiveDate] = src.Vintage
	}
	return nil
}

// Build loads every source, runs it through the pipeline and registers the
// survivors. A failing vintage never stops the others; it is reported and left
// out of the registry, so extracts that would resolve to it fail later with
// NO_APPLICABLE_SCHEMA or resolve to an older layout.
func Build(ctx context.Context, reader DocumentReader, sources []Source, p *Pipeline, concurrency int) (*Registry, *BuildReport, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := checkDistinctDates(sources); err != nil {
		return nil, nil, err
	}
	stats := observability.NewPerfStats()

	builder := NewBuilder()
	reports := make([]*VintageReport, len(sources))
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

	for i, src := range sources {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, nil, fmt.Errorf("registry: build cancelled: %w", err)
		}

		wg.Add(1)
		go func(i int, src Source) {
			defer sem.Release(1)
			defer wg.Done()
			reports[i] = buildOne(ctx, reader, src, p, builder)
		}(i, src)
	}
	wg.Wait()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].EffectiveDate < reports[j].EffectiveDate
	})
	report := &BuildReport{Vintages: reports}
	for _, v := range reports {
		logVintage(v)
	}

	reg := builder.Freeze()
	stats.Log(fmt.Sprintf("Registry build (%d of %d layouts)", reg.Len(), len(sources)))
	return reg, report, nil
}

func buildOne(ctx context.Context, reader DocumentReader, src Source, p *Pipeline, builder *Builder) *VintageReport {
	data, err := reader.ReadObject(ctx, src.Path)
	if err != nil {
		return &VintageReport{
			Vintage:       src.Vintage,
			EffectiveDate: src.EffectiveDate,
			Err:           errors.NewStorageError(errors.CodeReadFailed, "read layout "+src.Path, err),
		}
	}

	s, report := p.Process(layout.Document{
		Vintage:       src.Vintage,
		EffectiveDate: src.EffectiveDate,
		Text:          string(data),
	})
	if s == nil {
		return report
	}
	if err := builder.Register(s); err != nil {
		report.Err = err
		return report
	}
	report.Registered = true
	return report
}

func logVintage(v *VintageReport) {
	entry := log.WithFields(log.Fields{
		"vintage":        v.Vintage,
		"effective_date": v.EffectiveDate.String(),
	})

	for _, a := range v.ParseAnomalies {
		entry.WithFields(a.Fields()).Warn(a.Message)
	}
	for _, c := range v.Corrections {
		entry.WithField("correction", c.String()).Debug("applied layout correction")
	}
	for _, w := range v.Warnings {
		entry.WithFields(w.Fields()).Warn(w.Message)
	}
	for _, viol := range v.Violations {
		entry.WithFields(viol.Fields()).Error(viol.Message)
	}

	if v.Err != nil {
		entry.WithError(v.Err).Error("layout not registered")
		return
	}
	entry.WithFields(log.Fields{
		"dialect": string(v.Dialect),
		"fields":  v.Fields,
	}).Debug("layout registered")
}
