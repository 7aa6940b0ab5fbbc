package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"

	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/internal/storage"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Options control how decoded tables are written.
type Options struct {
	Format     string
	Compress   bool
	KeyColumns []string
	BloomFPR   float64
}

// Request is one decoded extract to publish.
type Request struct {
	ExtractID string
	Source    string

	// OutputBase is the object path without extension
	OutputBase string

	Result *decoder.Result
	Schema *types.Schema
}

// Output describes a published extract.
type Output struct {
	OutputPath   string
	MetadataPath string
	Checksum     string
	SizeBytes    int64
	Sidecar      *MetadataSidecar
}

// Exporter writes tables into a local work directory and uploads them.
type Exporter struct {
	store   storage.ObjectStorage
	workDir string
	opts    Options
	meta    *MetadataGenerator
}

// NewExporter creates an exporter publishing to store.
func NewExporter(store storage.ObjectStorage, workDir string, opts Options) *Exporter {
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	return &Exporter{
		store:   store,
		workDir: workDir,
		opts:    opts,
		meta:    NewMetadataGenerator(opts.KeyColumns, opts.BloomFPR),
	}
}

// OutputPath returns the object path an extract will be written to.
func (e *Exporter) OutputPath(outputBase string) string {
	return outputBase + Extension(e.opts.Format, e.opts.Compress)
}

// Export writes the table, uploads it and then uploads its sidecar. The
// sidecar goes last so its presence marks a complete output.
func (e *Exporter) Export(ctx context.Context, req Request) (*Output, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return nil, fmt.Errorf("sink: failed to create work directory: %w", err)
	}

	outputPath := e.OutputPath(req.OutputBase)
	localPath := filepath.Join(e.workDir, req.ExtractID+Extension(e.opts.Format, e.opts.Compress))
	defer os.Remove(localPath)

	fingerprint := schema.Fingerprint(req.Schema)
	if err := e.writeLocal(ctx, localPath, req, fingerprint); err != nil {
		return nil, err
	}

	checksum, size, err := checksumFile(localPath)
	if err != nil {
		return nil, err
	}

	if err := e.store.Upload(ctx, localPath, outputPath); err != nil {
		return nil, fmt.Errorf("sink: failed to upload %s: %w", outputPath, err)
	}

	sidecar := e.meta.Generate(req.Result, req.Schema, fingerprint)
	sidecar.ExtractID = req.ExtractID
	sidecar.Source = req.Source
	sidecar.Format = e.opts.Format
	sidecar.Checksum = checksum

	data, err := sidecar.ToJSON()
	if err != nil {
		return nil, err
	}
	metaPath := MetadataPath(outputPath)
	if err := e.store.PutObject(ctx, metaPath, data); err != nil {
		return nil, fmt.Errorf("sink: failed to upload %s: %w", metaPath, err)
	}

	return &Output{
		OutputPath:   outputPath,
		MetadataPath: metaPath,
		Checksum:     checksum,
		SizeBytes:    size,
		Sidecar:      sidecar,
	}, nil
}

func (e *Exporter) writeLocal(ctx context.Context, localPath string, req Request, fingerprint string) error {
	t := req.Result.Table
	if e.opts.Format == FormatSQLite {
		return WriteSQLite(ctx, localPath, t, SQLiteMeta(t, req.Schema.Vintage, fingerprint))
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("sink: failed to create %s: %w", localPath, err)
	}
	if e.opts.Compress {
		err = WriteSnappyCSV(f, t)
	} else {
		err = WriteCSV(f, t)
	}
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sink: failed to close %s: %w", localPath, err)
	}
	return nil
}

// checksumFile returns the murmur3 128-bit hash of a file and its size.
func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("sink: failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := murmur3.New128()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("sink: failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
