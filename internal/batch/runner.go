// Package batch decodes every extract under a storage prefix in parallel.
package batch

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/cpsdecode/cpsdecode/internal/catalog"
	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/internal/observability"
	"github.com/cpsdecode/cpsdecode/internal/registry"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/internal/sink"
	"github.com/cpsdecode/cpsdecode/internal/storage"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Options configure a batch run.
type Options struct {
	ExtractPrefix string
	OutputPrefix  string
	DatePattern   *regexp.Regexp
	Concurrency   int
	SkipExisting  bool
}

// Runner decodes extracts against a frozen registry.
type Runner struct {
	store    storage.ObjectStorage
	registry *registry.Registry
	decoder  *decoder.Decoder
	exporter *sink.Exporter
	catalog  catalog.Catalog
	stats    *observability.AnomalyStats
	opts     Options
	runID    string
}

// NewRunner creates a runner. cat may be nil, in which case decoded extracts
// are not recorded.
func NewRunner(store storage.ObjectStorage, reg *registry.Registry, dec *decoder.Decoder, exp *sink.Exporter, cat catalog.Catalog, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		store:    store,
		registry: reg,
		decoder:  dec,
		exporter: exp,
		catalog:  cat,
		stats:    observability.NewAnomalyStats(),
		opts:     opts,
		runID:    uuid.New().String(),
	}
}

// RunID identifies this run in logs and catalog records.
func (r *Runner) RunID() string {
	return r.runID
}

// Stats returns the per-file anomaly counters.
func (r *Runner) Stats() *observability.AnomalyStats {
	return r.stats
}

// Job is one extract to decode.
type Job struct {
	Source      string
	OutputBase  string
	ExtractDate types.YearMonth

	// Err is set when the extract date could not be derived
	Err error
}

// subsetMarker marks sample files cut from an extract by the subset command.
const subsetMarker = "subset"

// Plan lists the extracts under the extract prefix. Hidden files, metadata
// sidecars and subset samples are left out.
func (r *Runner) Plan(ctx context.Context) ([]Job, error) {
	objects, err := r.store.ListObjects(ctx, r.opts.ExtractPrefix)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeReadFailed, "list extracts under "+r.opts.ExtractPrefix, err)
	}

	jobs := make([]Job, 0, len(objects))
	for _, obj := range objects {
		name := storage.BaseName(obj)
		if strings.HasPrefix(name, ".") || strings.HasSuffix(obj, ".meta.json") ||
			strings.Contains(name, subsetMarker) {
			continue
		}
		job := Job{
			Source:     obj,
			OutputBase: storage.Join(r.opts.OutputPrefix, name),
		}
		job.ExtractDate, job.Err = ExtractDate(r.opts.DatePattern, obj)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Resolution pairs an extract with the schema it resolves to.
type Resolution struct {
	Job    Job
	Schema *types.Schema
	Err    error
}

// Resolve reports which schema each planned extract would be decoded with.
func (r *Runner) Resolve(jobs []Job) []Resolution {
	out := make([]Resolution, len(jobs))
	for i, job := range jobs {
		out[i].Job = job
		if job.Err != nil {
			out[i].Err = job.Err
			continue
		}
		out[i].Schema, out[i].Err = r.registry.Resolve(job.ExtractDate)
	}
	return out
}

// FileResult is the outcome for one extract.
type FileResult struct {
	Source      string
	ExtractID   string
	ExtractDate types.YearMonth
	SchemaDate  types.YearMonth
	Vintage     string
	OutputPath  string
	Rows        int64
	Skipped     bool
	Anomalies   map[string]int

	// Err is a hard failure; the extract produced no output
	Err error
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID    string
	Files    []*FileResult
	Duration time.Duration
}

// Failures returns the files that failed.
func (s *Summary) Failures() []*FileResult {
	var out []*FileResult
	for _, f := range s.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Decoded returns how many extracts were decoded in this run.
func (s *Summary) Decoded() int {
	n := 0
	for _, f := range s.Files {
		if f.Err == nil && !f.Skipped {
			n++
		}
	}
	return n
}

// Skipped returns how many extracts already had outputs.
func (s *Summary) Skipped() int {
	n := 0
	for _, f := range s.Files {
		if f.Skipped {
			n++
		}
	}
	return n
}

// TotalRows sums decoded rows across the run.
func (s *Summary) TotalRows() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.Rows
	}
	return n
}

// Run decodes every planned extract with bounded parallelism. Per-extract
// failures are collected in the summary; the error return is reserved for
// listing failures and cancellation.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	stats := observability.NewPerfStats()
	jobs, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*FileResult, len(jobs))
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	var wg sync.WaitGroup

	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("batch: run cancelled: %w", err)
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer sem.Release(1)
			defer wg.Done()
			results[i] = r.DecodeJob(ctx, job)
		}(i, job)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Source < results[j].Source
	})
	summary := &Summary{RunID: r.runID, Files: results, Duration: stats.Elapsed()}
	stats.Log(fmt.Sprintf("Batch decode (%d extracts)", len(jobs)))
	return summary, nil
}

// DecodeJob resolves, decodes, publishes and records one extract.
func (r *Runner) DecodeJob(ctx context.Context, job Job) *FileResult {
	res := &FileResult{Source: job.Source, ExtractDate: job.ExtractDate}
	entry := log.WithFields(log.Fields{"extract": job.Source, "run_id": r.runID})
	r.stats.Touch(job.Source)

	fail := func(err error) *FileResult {
		res.Err = err
		code := errors.GetCode(err)
		if code == "" {
			code = errors.CodeUnexpected
		}
		r.stats.Record(job.Source, code, 1)
		entry.WithError(err).Error("extract not decoded")
		return res
	}

	if job.Err != nil {
		return fail(job.Err)
	}

	s, err := r.registry.Resolve(job.ExtractDate)
	if err != nil {
		return fail(err)
	}
	res.SchemaDate = s.EffectiveDate
	res.Vintage = s.Vintage
	res.OutputPath = r.exporter.OutputPath(job.OutputBase)

	if r.opts.SkipExisting {
		exists, err := r.store.Exists(ctx, sink.MetadataPath(res.OutputPath))
		if err != nil {
			return fail(errors.NewStorageError(errors.CodeReadFailed, "check output "+res.OutputPath, err))
		}
		if exists {
			res.Skipped = true
			entry.WithField("output", res.OutputPath).Debug("output exists, skipping")
			return res
		}
	}

	decoded, err := r.decode(ctx, job, s)
	if err != nil {
		return fail(err)
	}
	res.Rows = int64(len(decoded.Table.Rows))
	res.Anomalies = r.logIssues(entry, job.Source, decoded)

	res.ExtractID = uuid.New().String()
	out, err := r.exporter.Export(ctx, sink.Request{
		ExtractID:  res.ExtractID,
		Source:     job.Source,
		OutputBase: job.OutputBase,
		Result:     decoded,
		Schema:     s,
	})
	if err != nil {
		return fail(errors.NewStorageError(errors.CodeWriteFailed, "publish "+res.OutputPath, err))
	}

	if r.catalog != nil {
		rec := &catalog.ExtractRecord{
			ExtractID:      res.ExtractID,
			SourcePath:     job.Source,
			ExtractDate:    job.ExtractDate,
			SchemaDate:     s.EffectiveDate,
			Vintage:        s.Vintage,
			Fingerprint:    schema.Fingerprint(s),
			OutputPath:     out.OutputPath,
			Format:         out.Sidecar.Format,
			RowCount:       res.Rows,
			AnomalyCount:   int64(len(decoded.Anomalies)),
			TextIssueCount: int64(len(decoded.TextIssues)),
			Checksum:       out.Checksum,
			RunID:          r.runID,
		}
		if err := r.catalog.RecordExtract(ctx, rec); err != nil {
			return fail(errors.NewStorageError(errors.CodeWriteFailed, "record extract", err))
		}
	}

	entry.WithFields(log.Fields{
		"schema": s.Vintage,
		"rows":   res.Rows,
		"output": out.OutputPath,
	}).Info("extract decoded")
	return res
}

func (r *Runner) decode(ctx context.Context, job Job, s *types.Schema) (*decoder.Result, error) {
	rc, err := r.store.Open(ctx, job.Source)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeReadFailed, "open extract "+job.Source, err)
	}
	defer rc.Close()

	var src io.Reader
	if src, err = decoder.OpenExtract(rc); err != nil {
		return nil, err
	}
	return r.decoder.Decode(src, s, job.ExtractDate)
}

// logIssues logs every recoverable issue and records it in the stats.
func (r *Runner) logIssues(entry *log.Entry, source string, res *decoder.Result) map[string]int {
	for _, a := range res.Anomalies {
		entry.WithFields(a.Fields()).Warn(a.Message)
	}
	for _, issue := range res.TextIssues {
		e := issue.Error()
		entry.WithFields(e.Fields()).Error(e.Message)
	}

	counts := res.Issues().CountByCode()
	for code, n := range counts {
		r.stats.Record(source, code, n)
	}
	return counts
}
