package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-parser/internal/mapping"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 8, cfg.Server.MaxConcurrent)
	assert.Equal(t, 10, cfg.Upload.MaxMB)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 0.5, cfg.Pipeline.MaxRejectRatio)
	assert.Equal(t, 50, cfg.Pipeline.SampleRows)
	assert.Equal(t, 20, cfg.CSV.SampleLines)
	assert.Equal(t, 0.8, cfg.CSV.MinConsistency)
	assert.Equal(t, 2.5, cfg.PDF.LineTolerance)
	assert.Equal(t, 1.0, cfg.PDF.ColumnGap)
	assert.Equal(t, 0.6, cfg.PDF.MinRowConsistency)
	assert.False(t, cfg.Assist.Enabled)
	assert.Equal(t, "google:gemini-2.5-flash", cfg.Assist.Model)
	assert.Equal(t, 10*time.Second, cfg.Assist.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.GCS.CredentialsFile)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PARSER_SERVER_PORT", "9090")
	t.Setenv("PARSER_PIPELINE_MAX_REJECT_RATIO", "0.25")
	t.Setenv("PARSER_ASSIST_ENABLED", "true")
	t.Setenv("PARSER_ASSIST_TIMEOUT", "3s")
	t.Setenv("PARSER_LOGGING_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Pipeline.MaxRejectRatio)
	assert.True(t, cfg.Assist.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Assist.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_APIKeyFallbacks(t *testing.T) {
	t.Setenv("PARSER_ASSIST_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "google-key", cfg.Assist.APIKey)

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Assist.APIKey)

	t.Setenv("PARSER_ASSIST_API_KEY", "explicit")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Assist.APIKey)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
  max_concurrent: 2
upload:
  max_mb: 1
csv:
  sample_lines: 40
pdf:
  column_gap: 1.5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Server.MaxConcurrent)
	assert.Equal(t, int64(1<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 40, cfg.CSV.SampleLines)
	assert.Equal(t, 1.5, cfg.PDF.ColumnGap)
	// untouched keys keep defaults
	assert.Equal(t, 0.5, cfg.Pipeline.MaxRejectRatio)
}

func TestLoad_ExtraSynonyms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mapping:
  extra_synonyms:
    date: ["Buchungstag"]
    description: ["Verwendungszweck", "Buchungstext"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Buchungstag"}, cfg.Mapping.ExtraSynonyms["date"])

	table := cfg.Synonyms()
	require.NotNil(t, table)
	assert.Contains(t, table[mapping.SlotDate], "buchungstag")
	assert.Contains(t, table[mapping.SlotDescription], "buchungstext")
	assert.Equal(t, "date", table[mapping.SlotDate][0])

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Nil(t, cfg.Synonyms())
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parser.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0o600))
	t.Setenv("PARSER_SERVER_PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PARSER_PIPELINE_MAX_REJECT_RATIO", "1.5")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.max_reject_ratio")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }, "server.max_concurrent"},
		{"upload", func(c *Config) { c.Upload.MaxMB = 0 }, "upload.max_mb"},
		{"ratio zero", func(c *Config) { c.Pipeline.MaxRejectRatio = 0 }, "pipeline.max_reject_ratio"},
		{"sample rows", func(c *Config) { c.Pipeline.SampleRows = 0 }, "pipeline.sample_rows"},
		{"sample lines", func(c *Config) { c.CSV.SampleLines = 1 }, "csv.sample_lines"},
		{"consistency", func(c *Config) { c.CSV.MinConsistency = 2 }, "csv.min_consistency"},
		{"line tolerance", func(c *Config) { c.PDF.LineTolerance = 0 }, "pdf.line_tolerance"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"synonym slot", func(c *Config) {
			c.Mapping.ExtraSynonyms = map[string][]string{"balance": {"saldo"}}
		}, "mapping.extra_synonyms"},
		{"assist model", func(c *Config) { c.Assist.Enabled = true; c.Assist.Model = "gemini" }, "assist.model"},
		{"assist timeout", func(c *Config) { c.Assist.Enabled = true; c.Assist.Timeout = 0 }, "assist.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	cfg := valid()
	cfg.Pipeline.MaxRejectRatio = 1
	assert.NoError(t, cfg.Validate())
}
