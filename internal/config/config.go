// Package config provides configuration for cpsdecode: where layout documents
// and extracts live, the historical correction tables and decode options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cpsdecode/cpsdecode/internal/layout"
	"github.com/cpsdecode/cpsdecode/internal/registry"
	"github.com/cpsdecode/cpsdecode/internal/schema"
)

// Output formats for decoded extracts.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Config holds the full configuration.
type Config struct {
	// DataDir is the base directory for local state (storage root, catalog, work files)
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Layouts configures layout parsing and the registry
	Layouts LayoutsConfig `json:"layouts" yaml:"layouts"`

	// Decode configures extract decoding
	Decode DecodeConfig `json:"decode" yaml:"decode"`

	// Catalog configures the SQLite catalog of schemas and decoded extracts
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// LayoutsConfig holds the layout sources and the tables used to repair them.
type LayoutsConfig struct {
	// Prefix is the object prefix holding raw layout documents
	Prefix string `json:"prefix" yaml:"prefix"`

	// ExportPrefix is where parsed schemas are exported
	ExportPrefix string `json:"export_prefix" yaml:"export_prefix"`

	// Sources lists every layout document; empty means the historical set under Prefix
	Sources []registry.Source `json:"sources" yaml:"sources"`

	// EndMarker truncates each document before supplemental appendices
	EndMarker string `json:"end_marker" yaml:"end_marker"`

	// LegacyMarkers select the legacy dialect when found in a vintage tag
	LegacyMarkers []string `json:"legacy_markers" yaml:"legacy_markers"`

	// Corrections are the known transcription fixes
	Corrections []schema.Correction `json:"corrections" yaml:"corrections"`

	// ToleratedInvertedFields may have start_pos > end_pos
	ToleratedInvertedFields []string `json:"tolerated_inverted_fields" yaml:"tolerated_inverted_fields"`
}

// DecodeConfig holds extract decoding options.
type DecodeConfig struct {
	// ExtractPrefix is the object prefix holding raw extracts
	ExtractPrefix string `json:"extract_prefix" yaml:"extract_prefix"`

	// OutputPrefix is the object prefix for decoded outputs
	OutputPrefix string `json:"output_prefix" yaml:"output_prefix"`

	// Format is the output format: csv or sqlite
	Format string `json:"format" yaml:"format"`

	// Compress snappy-compresses CSV output
	Compress bool `json:"compress" yaml:"compress"`

	// TextColumns are kept as literal text instead of numeric codes
	TextColumns []string `json:"text_columns" yaml:"text_columns"`

	// KeyColumns get a bloom filter in the metadata sidecar
	KeyColumns []string `json:"key_columns" yaml:"key_columns"`

	// BloomFPR is the target false positive rate of key column filters
	BloomFPR float64 `json:"bloom_fpr" yaml:"bloom_fpr"`

	// Concurrency is the number of extracts decoded in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// SkipExisting skips extracts whose output already exists
	SkipExisting bool `json:"skip_existing" yaml:"skip_existing"`

	// DatePattern extracts the year and month from an extract's file name.
	// It must have named groups "year" (2 or 4 digits) and "month".
	DatePattern string `json:"date_pattern" yaml:"date_pattern"`

	// WorkDir holds temporary files such as SQLite outputs before upload
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// CatalogConfig holds catalog configuration.
type CatalogConfig struct {
	// Path is the SQLite database file
	Path string `json:"path" yaml:"path"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is a logrus level name: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is text, json or auto (text on a terminal, json otherwise)
	Format string `json:"format" yaml:"format"`
}

// DefaultDatePattern matches names such as "cpsb9401", "cpsb199401" and
// "CPS_2024_01".
const DefaultDatePattern = `(?P<year>\d{4}|\d{2})_?(?P<month>\d{2})(?:\D|$)`

// DefaultConfig returns the default configuration for local use. Every call
// returns fresh copies of the historical tables.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/cpsdecode",
		Layouts: LayoutsConfig{
			Prefix:                  "layouts",
			ExportPrefix:            "schemas",
			EndMarker:               layout.DefaultEndMarker,
			LegacyMarkers:           layout.DefaultLegacyMarkers(),
			Corrections:             schema.DefaultCorrections(),
			ToleratedInvertedFields: schema.DefaultToleratedInvertedFields(),
		},
		Decode: DecodeConfig{
			ExtractPrefix: "raw",
			OutputPrefix:  "decoded",
			Format:        FormatCSV,
			TextColumns:   schema.DefaultTextColumns(),
			KeyColumns:    []string{"HRHHID"},
			BloomFPR:      0.01,
			Concurrency:   4,
			SkipExisting:  true,
			DatePattern:   DefaultDatePattern,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/cpsdecode"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Decode.WorkDir == "" {
		c.Decode.WorkDir = filepath.Join(c.DataDir, "work")
	}
	if len(c.Layouts.Sources) == 0 {
		c.Layouts.Sources = registry.DefaultSources(c.Layouts.Prefix)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Decode.Format {
	case FormatCSV, FormatSQLite:
	default:
		return fmt.Errorf("invalid decode.format: %s (must be csv or sqlite)", c.Decode.Format)
	}
	if c.Decode.Compress && c.Decode.Format != FormatCSV {
		return fmt.Errorf("decode.compress applies to csv output only")
	}
	if c.Decode.Concurrency < 1 {
		return fmt.Errorf("decode.concurrency must be at least 1, got %d", c.Decode.Concurrency)
	}
	if c.Decode.BloomFPR <= 0 || c.Decode.BloomFPR >= 1 {
		return fmt.Errorf("decode.bloom_fpr must be in (0, 1), got %g", c.Decode.BloomFPR)
	}
	if _, err := c.DateRegexp(); err != nil {
		return err
	}

	if _, err := schema.NewCorrector(c.Layouts.Corrections); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Layouts.Sources))
	for _, src := range c.Layouts.Sources {
		if src.Path == "" {
			return fmt.Errorf("layout source %s has no path", src.Vintage)
		}
		key := src.EffectiveDate.String()
		if seen[key] {
			return fmt.Errorf("duplicate layout effective date %s", key)
		}
		seen[key] = true
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("invalid log.format: %s (must be text, json or auto)", c.Log.Format)
	}

	return nil
}

// DateRegexp compiles the extract date pattern.
func (c *Config) DateRegexp() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Decode.DatePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid decode.date_pattern: %w", err)
	}
	if re.SubexpIndex("year") < 0 || re.SubexpIndex("month") < 0 {
		return nil, fmt.Errorf("decode.date_pattern needs named groups year and month")
	}
	return re, nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CPSDECODE_ prefix.
func LoadFromEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := getenv("CPSDECODE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getenv("CPSDECODE_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Layout configuration
	if v := getenv("CPSDECODE_LAYOUTS_PREFIX"); v != "" {
		cfg.Layouts.Prefix = v
	}

	// Decode configuration
	if v := getenv("CPSDECODE_EXTRACT_PREFIX"); v != "" {
		cfg.Decode.ExtractPrefix = v
	}
	if v := getenv("CPSDECODE_OUTPUT_PREFIX"); v != "" {
		cfg.Decode.OutputPrefix = v
	}
	if v := getenv("CPSDECODE_DECODE_FORMAT"); v != "" {
		cfg.Decode.Format = v
	}
	if v := getenv("CPSDECODE_DECODE_COMPRESS"); v != "" {
		cfg.Decode.Compress = v == "true" || v == "1"
	}
	if v := getenv("CPSDECODE_DECODE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decode.Concurrency = n
		}
	}
	if v := getenv("CPSDECODE_TEXT_COLUMNS"); v != "" {
		cfg.Decode.TextColumns = splitList(v)
	}
	if v := getenv("CPSDECODE_KEY_COLUMNS"); v != "" {
		cfg.Decode.KeyColumns = splitList(v)
	}

	// Storage configuration
	if v := getenv("CPSDECODE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := getenv("CPSDECODE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("CPSDECODE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := getenv("CPSDECODE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := getenv("CPSDECODE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Log configuration
	if v := getenv("CPSDECODE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("CPSDECODE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Decode.WorkDir,
		filepath.Dir(c.Catalog.Path),
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
