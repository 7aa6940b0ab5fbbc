// Package app wires configuration into the shared resources used by every
// cpsdecode command: object storage, the catalog, the layout pipeline and
// the decoder.
package app

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cpsdecode/cpsdecode/internal/batch"
	"github.com/cpsdecode/cpsdecode/internal/catalog"
	"github.com/cpsdecode/cpsdecode/internal/config"
	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/internal/layout"
	"github.com/cpsdecode/cpsdecode/internal/registry"
	"github.com/cpsdecode/cpsdecode/internal/schema"
	"github.com/cpsdecode/cpsdecode/internal/sink"
	"github.com/cpsdecode/cpsdecode/internal/storage"
)

// App owns the resources shared by cpsdecode commands.
type App struct {
	cfg *config.Config

	// Shared resources
	storage storage.ObjectStorage
	catalog *catalog.SQLiteCatalog

	mu     sync.Mutex
	opened bool
}

// New validates cfg and prepares local directories.
func New(cfg *config.Config) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Open initializes storage and the catalog. It is safe to call repeatedly.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	var err error

	// Initialize storage
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	entry := log.WithField("type", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == "s3" {
		entry = entry.WithFields(log.Fields{
			"bucket":   a.cfg.Storage.S3.Bucket,
			"region":   a.cfg.Storage.S3.Region,
			"endpoint": a.cfg.Storage.S3.Endpoint,
		})
	} else {
		entry = entry.WithField("path", a.cfg.Storage.Path)
	}
	entry.Debug("storage initialized")

	// Initialize catalog
	a.catalog, err = catalog.NewCatalog(a.cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	log.WithField("path", a.cfg.Catalog.Path).Debug("catalog initialized")

	a.opened = true
	return nil
}

// Storage returns the object storage. Open must have been called.
func (a *App) Storage() storage.ObjectStorage {
	return a.storage
}

// Catalog returns the catalog. Open must have been called.
func (a *App) Catalog() *catalog.SQLiteCatalog {
	return a.catalog
}

// Pipeline builds the parse, correct and validate pipeline from configuration.
func (a *App) Pipeline() (*registry.Pipeline, error) {
	l := a.cfg.Layouts
	selector := layout.NewDialectSelector(l.LegacyMarkers, l.EndMarker)
	corrector, err := schema.NewCorrector(l.Corrections)
	if err != nil {
		return nil, err
	}
	return registry.NewPipeline(
		layout.NewParser(selector),
		corrector,
		schema.NewValidator(l.ToleratedInvertedFields),
	), nil
}

// BuildRegistry parses every configured layout source into a registry.
func (a *App) BuildRegistry(ctx context.Context) (*registry.Registry, *registry.BuildReport, error) {
	if err := a.Open(ctx); err != nil {
		return nil, nil, err
	}
	p, err := a.Pipeline()
	if err != nil {
		return nil, nil, err
	}
	return registry.Build(ctx, a.storage, a.cfg.Layouts.Sources, p, a.cfg.Decode.Concurrency)
}

// RegistryFromCatalog builds a registry from the schemas stored by an earlier
// layouts run.
func (a *App) RegistryFromCatalog(ctx context.Context) (*registry.Registry, error) {
	if err := a.Open(ctx); err != nil {
		return nil, err
	}
	schemas, err := a.catalog.LoadSchemas(ctx)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("catalog %s holds no schemas; run layouts parse first", a.cfg.Catalog.Path)
	}
	return registry.New(schemas...)
}

// Decoder returns a decoder honoring the text column allow-list.
func (a *App) Decoder() *decoder.Decoder {
	return decoder.New(a.cfg.Decode.TextColumns)
}

// Exporter returns an exporter publishing to the app's storage.
func (a *App) Exporter() *sink.Exporter {
	d := a.cfg.Decode
	return sink.NewExporter(a.storage, d.WorkDir, sink.Options{
		Format:     d.Format,
		Compress:   d.Compress,
		KeyColumns: d.KeyColumns,
		BloomFPR:   d.BloomFPR,
	})
}

// Runner returns a batch runner decoding against reg.
func (a *App) Runner(reg *registry.Registry) (*batch.Runner, error) {
	re, err := a.cfg.DateRegexp()
	if err != nil {
		return nil, err
	}
	d := a.cfg.Decode
	return batch.NewRunner(a.storage, reg, a.Decoder(), a.Exporter(), a.catalog, batch.Options{
		ExtractPrefix: d.ExtractPrefix,
		OutputPrefix:  d.OutputPrefix,
		DatePattern:   re,
		Concurrency:   d.Concurrency,
		SkipExisting:  d.SkipExisting,
	}), nil
}

// Close releases shared resources.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			return err
		}
		a.catalog = nil
	}
	a.opened = false
	return nil
}
