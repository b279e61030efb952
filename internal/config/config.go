// Package config loads process settings from defaults, an optional YAML
// file and PARSER_-prefixed environment variables, in that order of
// precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dvloznov/statement-parser/internal/assist"
	"github.com/dvloznov/statement-parser/internal/mapping"
)

// EnvPrefix prefixes every environment override, e.g. PARSER_SERVER_PORT.
const EnvPrefix = "PARSER"

type ServerConfig struct {
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxConcurrent int
}

type UploadConfig struct {
	MaxMB int
}

type PipelineConfig struct {
	MaxRejectRatio float64
	SampleRows     int
}

type CSVConfig struct {
	SampleLines    int
	MinConsistency float64
}

type PDFConfig struct {
	LineTolerance     float64
	ColumnGap         float64
	MinRowConsistency float64
}

type MappingConfig struct {
	// ExtraSynonyms maps a slot name to additional header labels.
	ExtraSynonyms map[string][]string
}

type AssistConfig struct {
	Enabled bool
	Model   string
	APIKey  string
	Timeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type GCSConfig struct {
	CredentialsFile string
}

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig
	Upload   UploadConfig
	Pipeline PipelineConfig
	CSV      CSVConfig
	PDF      PDFConfig
	Mapping  MappingConfig
	Assist   AssistConfig
	Logging  LoggingConfig
	GCS      GCSConfig
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxMB) << 20
}

// Synonyms is the header synonym table with the configured extra labels,
// or nil when none are configured.
func (c *Config) Synonyms() mapping.SynonymTable {
	if len(c.Mapping.ExtraSynonyms) == 0 {
		return nil
	}
	extra := make(map[mapping.Slot][]string, len(c.Mapping.ExtraSynonyms))
	for name, labels := range c.Mapping.ExtraSynonyms {
		if slot, ok := mapping.ParseSlot(name); ok {
			extra[slot] = labels
		}
	}
	return mapping.DefaultSynonyms.Extend(extra)
}

// SetDefaults registers every key with its default so environment
// overrides resolve through AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_concurrent", 8)

	v.SetDefault("upload.max_mb", 10)

	v.SetDefault("pipeline.max_reject_ratio", 0.5)
	v.SetDefault("pipeline.sample_rows", 50)

	v.SetDefault("csv.sample_lines", 20)
	v.SetDefault("csv.min_consistency", 0.8)

	v.SetDefault("pdf.line_tolerance", 2.5)
	v.SetDefault("pdf.column_gap", 1.0)
	v.SetDefault("pdf.min_row_consistency", 0.6)

	v.SetDefault("assist.enabled", false)
	v.SetDefault("assist.model", assist.DefaultModel)
	v.SetDefault("assist.api_key", "")
	v.SetDefault("assist.timeout", assist.DefaultTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("gcs.credentials_file", "")
}

// Load reads configuration into a fresh viper instance.
func Load(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper reads configuration through v, which may already carry bound
// command-line flags. An empty path searches the working directory for
// parser.yaml and tolerates its absence; an explicit path must exist.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("assist.api_key", EnvPrefix+"_ASSIST_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("config: bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("parser")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(path), err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          v.GetInt("server.port"),
			ReadTimeout:   v.GetDuration("server.read_timeout"),
			WriteTimeout:  v.GetDuration("server.write_timeout"),
			MaxConcurrent: v.GetInt("server.max_concurrent"),
		},
		Upload: UploadConfig{
			MaxMB: v.GetInt("upload.max_mb"),
		},
		Pipeline: PipelineConfig{
			MaxRejectRatio: v.GetFloat64("pipeline.max_reject_ratio"),
			SampleRows:     v.GetInt("pipeline.sample_rows"),
		},
		CSV: CSVConfig{
			SampleLines:    v.GetInt("csv.sample_lines"),
			MinConsistency: v.GetFloat64("csv.min_consistency"),
		},
		PDF: PDFConfig{
			LineTolerance:     v.GetFloat64("pdf.line_tolerance"),
			ColumnGap:         v.GetFloat64("pdf.column_gap"),
			MinRowConsistency: v.GetFloat64("pdf.min_row_consistency"),
		},
		Mapping: MappingConfig{
			ExtraSynonyms: v.GetStringMapStringSlice("mapping.extra_synonyms"),
		},
		Assist: AssistConfig{
			Enabled: v.GetBool("assist.enabled"),
			Model:   v.GetString("assist.model"),
			APIKey:  v.GetString("assist.api_key"),
			Timeout: v.GetDuration("assist.timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		GCS: GCSConfig{
			CredentialsFile: v.GetString("gcs.credentials_file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func describe(path string) string {
	if path == "" {
		return "parser.yaml"
	}
	return path
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server.read_timeout must be positive")
	check(c.Server.WriteTimeout > 0, "server.write_timeout must be positive")
	check(c.Server.MaxConcurrent >= 1, "server.max_concurrent must be at least 1")
	check(c.Upload.MaxMB >= 1, "upload.max_mb must be at least 1")
	check(c.Pipeline.MaxRejectRatio > 0 && c.Pipeline.MaxRejectRatio <= 1,
		"pipeline.max_reject_ratio %v must be in (0, 1]", c.Pipeline.MaxRejectRatio)
	check(c.Pipeline.SampleRows >= 1, "pipeline.sample_rows must be at least 1")
	check(c.CSV.SampleLines >= 2, "csv.sample_lines must be at least 2")
	check(c.CSV.MinConsistency > 0 && c.CSV.MinConsistency <= 1,
		"csv.min_consistency %v must be in (0, 1]", c.CSV.MinConsistency)
	check(c.PDF.LineTolerance > 0, "pdf.line_tolerance must be positive")
	check(c.PDF.ColumnGap > 0, "pdf.column_gap must be positive")
	check(c.PDF.MinRowConsistency > 0 && c.PDF.MinRowConsistency <= 1,
		"pdf.min_row_consistency %v must be in (0, 1]", c.PDF.MinRowConsistency)
	for name := range c.Mapping.ExtraSynonyms {
		_, ok := mapping.ParseSlot(name)
		check(ok, "mapping.extra_synonyms: unknown slot %q", name)
	}
	check(c.Logging.Format == "console" || c.Logging.Format == "json",
		"logging.format %q must be console or json", c.Logging.Format)

	if c.Assist.Enabled {
		check(c.Assist.Timeout > 0, "assist.timeout must be positive")
		if _, err := assist.ParseModelID(c.Assist.Model); err != nil {
			errs = append(errs, fmt.Errorf("assist.model: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
