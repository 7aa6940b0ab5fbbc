package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpsdecode/cpsdecode/internal/schema"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()

	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Layouts.Sources, 21)
	assert.Equal(t, "layouts/cps_dict_202401.txt", cfg.Layouts.Sources[0].Path)
	assert.Equal(t, filepath.Join(cfg.DataDir, "catalog.db"), cfg.Catalog.Path)
	assert.Equal(t, []string{"HRSAMPLE", "HRSERSUF"}, cfg.Decode.TextColumns)
	assert.Len(t, cfg.Layouts.Corrections, 7)
}

func TestDefaultConfig_FreshCopies(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	a.Layouts.Corrections[0].To = 1
	a.Decode.TextColumns[0] = "CHANGED"

	assert.Equal(t, 679, b.Layouts.Corrections[0].To)
	assert.Equal(t, "HRSAMPLE", b.Decode.TextColumns[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage type", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"format", func(c *Config) { c.Decode.Format = "parquet" }},
		{"compress sqlite", func(c *Config) { c.Decode.Format = FormatSQLite; c.Decode.Compress = true }},
		{"concurrency", func(c *Config) { c.Decode.Concurrency = 0 }},
		{"bloom fpr", func(c *Config) { c.Decode.BloomFPR = 1 }},
		{"date pattern groups", func(c *Config) { c.Decode.DatePattern = `(\d{4})(\d{2})` }},
		{"date pattern syntax", func(c *Config) { c.Decode.DatePattern = `(` }},
		{"correction attribute", func(c *Config) {
			c.Layouts.Corrections = append(c.Layouts.Corrections, schema.Correction{Field: "X", Attribute: "width"})
		}},
		{"duplicate source", func(c *Config) {
			c.Layouts.Sources = append(c.Layouts.Sources, c.Layouts.Sources[0])
		}},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDateRegexp(t *testing.T) {
	cfg := DefaultConfig()
	re, err := cfg.DateRegexp()
	require.NoError(t, err)

	m := re.FindStringSubmatch("cpsb9401")
	require.NotNil(t, m)
	assert.Equal(t, "94", m[re.SubexpIndex("year")])
	assert.Equal(t, "01", m[re.SubexpIndex("month")])

	m = re.FindStringSubmatch("CPS_2024_01")
	require.NotNil(t, m)
	assert.Equal(t, "2024", m[re.SubexpIndex("year")])
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpsdecode.yaml")
	content := `
data_dir: /tmp/cps
decode:
  format: sqlite
  concurrency: 8
layouts:
  sources:
    - vintage: cps_dict_199401
      effective_date: 199401
      path: layouts/jan94.txt
  corrections:
    - effective_date: "199401"
      field: PEAFNOW
      attribute: length
      from: 2
      to: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	cfg.Resolve()

	assert.Equal(t, "/tmp/cps", cfg.DataDir)
	assert.Equal(t, FormatSQLite, cfg.Decode.Format)
	assert.Equal(t, 8, cfg.Decode.Concurrency)
	require.Len(t, cfg.Layouts.Sources, 1)
	assert.Equal(t, "199401", cfg.Layouts.Sources[0].EffectiveDate.String())
	require.Len(t, cfg.Layouts.Corrections, 1)
	assert.Equal(t, schema.AttrLength, cfg.Layouts.Corrections[0].Attribute)
	// untouched sections keep their defaults
	assert.Equal(t, []string{"HRSAMPLE", "HRSERSUF"}, cfg.Decode.TextColumns)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpsdecode.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"decode": {"compress": true}, "log": {"format": "json"}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Decode.Compress)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "cpsdecode.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decode.Concurrency = 11
	cfg.Resolve()

	path := filepath.Join(t.TempDir(), "nested", "cpsdecode.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromEnv(t *testing.T) {
	env := map[string]string{
		"CPSDECODE_DATA_DIR":           "/srv/cps",
		"CPSDECODE_DECODE_FORMAT":      "sqlite",
		"CPSDECODE_DECODE_CONCURRENCY": "16",
		"CPSDECODE_TEXT_COLUMNS":       "HRSAMPLE, HRSERSUF ,GESTCEN",
		"CPSDECODE_STORAGE_TYPE":       "s3",
		"CPSDECODE_S3_BUCKET":          "cps-extracts",
		"CPSDECODE_LOG_LEVEL":          "debug",
	}
	cfg := DefaultConfig()
	LoadFromEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, "/srv/cps", cfg.DataDir)
	assert.Equal(t, FormatSQLite, cfg.Decode.Format)
	assert.Equal(t, 16, cfg.Decode.Concurrency)
	assert.Equal(t, []string{"HRSAMPLE", "HRSERSUF", "GESTCEN"}, cfg.Decode.TextColumns)
	assert.Equal(t, "cps-extracts", cfg.Storage.S3.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CPSDECODE_TEST_DOTENV=loaded\n"), 0644))
	t.Setenv("CPSDECODE_TEST_DOTENV", "")
	os.Unsetenv("CPSDECODE_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CPSDECODE_TEST_DOTENV"))
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path, cfg.Decode.WorkDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
