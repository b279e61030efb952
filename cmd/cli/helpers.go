package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/dvloznov/statement-parser/internal/assist"
	"github.com/dvloznov/statement-parser/internal/config"
	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/extract"
	"github.com/dvloznov/statement-parser/internal/pipeline"
	"github.com/dvloznov/statement-parser/internal/source"
)

// runner bundles what both commands need to parse one file.
type runner struct {
	parser   *pipeline.Parser
	opener   *source.Opener
	advisor  pipeline.Advisor
	maxBytes int64
}

func newRunner(ctx context.Context, c *config.Config) (*runner, error) {
	parser, err := pipeline.NewParser(pipeline.Options{
		MaxBytes:       c.MaxUploadBytes(),
		MaxRejectRatio: c.Pipeline.MaxRejectRatio,
		SampleRows:     c.Pipeline.SampleRows,
		CSV: extract.CSVConfig{
			SampleLines:    c.CSV.SampleLines,
			MinConsistency: c.CSV.MinConsistency,
		},
		PDF: extract.PDFConfig{
			LineTolerance:     c.PDF.LineTolerance,
			ColumnGap:         c.PDF.ColumnGap,
			MinRowConsistency: c.PDF.MinRowConsistency,
		},
		Synonyms: c.Synonyms(),
	})
	if err != nil {
		return nil, err
	}

	r := &runner{
		parser:   parser,
		opener:   source.NewOpener(c.GCS.CredentialsFile),
		maxBytes: c.MaxUploadBytes(),
	}

	factory := assist.NewFactory(assist.Config{
		Enabled: c.Assist.Enabled,
		Model:   c.Assist.Model,
		APIKey:  c.Assist.APIKey,
		Timeout: c.Assist.Timeout,
	})
	a, err := factory.For(ctx, "")
	if err != nil {
		log.Warn().Err(err).Msg("Model assist unavailable - parsing without hints")
	} else if a != nil {
		r.advisor = a
	}
	return r, nil
}

// parseURI loads and parses one file.
func (r *runner) parseURI(ctx context.Context, uri string) (pipeline.Result, error) {
	obj, err := r.opener.Open(ctx, uri, r.maxBytes)
	if err != nil {
		return pipeline.Result{}, err
	}
	return r.parser.Parse(ctx, pipeline.Request{
		Filename: obj.Name,
		Data:     obj.Data,
		Advisor:  r.advisor,
	})
}

// failure is the JSON written for a file that could not be parsed.
type failure struct {
	Error  string          `json:"error"`
	Kind   string          `json:"kind,omitempty"`
	Stage  string          `json:"stage,omitempty"`
	Detail string          `json:"detail"`
	Stats  *pipeline.Stats `json:"stats,omitempty"`
}

func newFailure(err error, stats *pipeline.Stats) failure {
	var pe *domain.ParseError
	if errors.As(err, &pe) {
		return failure{Error: "PARSE_FAILED", Kind: string(pe.Kind), Stage: string(pe.Stage), Detail: pe.Message, Stats: stats}
	}
	return failure{Error: "READ_FAILED", Detail: err.Error(), Stats: stats}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
