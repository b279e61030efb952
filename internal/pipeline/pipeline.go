// Package pipeline drives one statement file from upload to validated
// transactions: dispatch, extraction, field mapping, normalization and
// schema validation, in that order and never backwards.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/extract"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/mapping"
	"github.com/dvloznov/statement-parser/internal/normalize"
	"github.com/dvloznov/statement-parser/internal/validate"
)

// Default values for a parsing run.
const (
	// DefaultMaxBytes is the upload limit (10 MiB).
	DefaultMaxBytes = 10 << 20

	// DefaultMaxRejectRatio is the share of rejected rows above which the
	// whole document fails.
	DefaultMaxRejectRatio = 0.5

	// DefaultSampleRows is how many rows feed the mapping and format decisions.
	DefaultSampleRows = 50
)

// Advisor supplies optional, untrusted hints to the mapper and normalizer.
type Advisor interface {
	mapping.Advisor
	normalize.DateAdvisor
}

// Options configures a Parser. Zero values fall back to the defaults.
type Options struct {
	MaxBytes       int64
	MaxRejectRatio float64
	SampleRows     int
	CSV            extract.CSVConfig
	PDF            extract.PDFConfig
	// Synonyms replaces the header synonym table; nil keeps the default.
	Synonyms mapping.SynonymTable
	// TextLayer overrides the PDF text reader.
	TextLayer extract.TextLayer
}

// Request is one file to parse.
type Request struct {
	Filename    string
	ContentType string
	Data        []byte
	// Advisor is optional; nil runs without hints.
	Advisor Advisor
}

// Stats describes how a run went. It is filled in on failure too, as far
// as the run got.
type Stats struct {
	RunID            string                 `json:"run_id"`
	Source           domain.Source          `json:"source,omitempty"`
	Status           string                 `json:"status"`
	Stage            domain.Stage           `json:"stage"`
	Columns          int                    `json:"columns"`
	Heuristics       []string               `json:"heuristics,omitempty"`
	Mapping          map[string]interface{} `json:"mapping,omitempty"`
	MappingMethod    string                 `json:"mapping_method,omitempty"`
	DateLayout       string                 `json:"date_layout,omitempty"`
	DateSource       string                 `json:"date_source,omitempty"`
	DecimalSeparator string                 `json:"decimal_separator,omitempty"`
	DataRows         int                    `json:"data_rows"`
	Accepted         int                    `json:"accepted"`
	Rejected         int                    `json:"rejected"`
	RejectedByKind   map[domain.Kind]int    `json:"rejected_by_kind,omitempty"`
	StartedAt        time.Time              `json:"started_at"`
	FinishedAt       time.Time              `json:"finished_at"`
}

func (s *Stats) reject(kind domain.Kind) {
	if s.RejectedByKind == nil {
		s.RejectedByKind = make(map[domain.Kind]int)
	}
	s.RejectedByKind[kind]++
	s.Rejected++
}

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Result is the outcome of a run. On success Transactions holds every row
// that passed validation, in source row order, and is never nil.
type Result struct {
	Transactions []domain.Transaction
	Stats        Stats
}

// Parser runs the pipeline. It holds only immutable configuration and
// goroutine-safe collaborators, so one Parser serves concurrent requests.
type Parser struct {
	opts       Options
	gate       Gate
	extractors map[domain.Source]extract.Extractor
	validator  *validate.Validator
}

// NewParser compiles the output schema and builds the extractors.
func NewParser(opts Options) (*Parser, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxRejectRatio <= 0 || opts.MaxRejectRatio > 1 {
		opts.MaxRejectRatio = DefaultMaxRejectRatio
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}

	v, err := validate.New()
	if err != nil {
		return nil, err
	}

	return &Parser{
		opts: opts,
		gate: Gate{MaxBytes: opts.MaxBytes},
		extractors: map[domain.Source]extract.Extractor{
			domain.SourceCSV: extract.NewCSVExtractor(opts.CSV),
			domain.SourcePDF: extract.NewPDFExtractor(opts.TextLayer, opts.PDF),
		},
		validator: v,
	}, nil
}

// MaxBytes is the effective upload limit.
func (p *Parser) MaxBytes() int64 { return p.opts.MaxBytes }

// Parse runs one request to completion. On failure it returns a
// *domain.ParseError, nil Transactions, and Stats describing how far the
// run got.
func (p *Parser) Parse(ctx context.Context, req Request) (Result, error) {
	runID := uuid.New().String()
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id":   runID,
		"filename": req.Filename,
	})
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		Request: req,
		Stats:   Stats{RunID: runID, StartedAt: time.Now().UTC()},
	}

	err := p.newPipeline(req).Execute(ctx, state)

	state.Stats.Stage = state.Stage
	state.Stats.FinishedAt = time.Now().UTC()
	if err != nil {
		pe := asParseError(ctx, state.Stage, err)
		state.Stats.Status = StatusFailed
		log.Warn().
			Str("stage", string(pe.Stage)).
			Str("kind", string(pe.Kind)).
			Int("data_rows", state.Stats.DataRows).
			Int("rejected", state.Stats.Rejected).
			Msg("Parsing run failed")
		return Result{Stats: state.Stats}, pe
	}

	state.Stats.Status = StatusSucceeded
	log.Info().
		Str("source", string(state.Source)).
		Int("data_rows", state.Stats.DataRows).
		Int("accepted", state.Stats.Accepted).
		Int("rejected", state.Stats.Rejected).
		Dur("elapsed", state.Stats.FinishedAt.Sub(state.Stats.StartedAt)).
		Msg("Parsing run succeeded")
	return Result{Transactions: state.Transactions, Stats: state.Stats}, nil
}

func (p *Parser) newPipeline(req Request) *Pipeline {
	mapper := mapping.NewMapper(req.Advisor)
	if p.opts.Synonyms != nil {
		mapper = mapper.WithSynonyms(p.opts.Synonyms)
	}
	return NewPipeline(
		&DispatchStep{gate: p.gate},
		&ExtractStep{extractors: p.extractors},
		&MapStep{mapper: mapper, sampleRows: p.opts.SampleRows},
		&NormalizeStep{validator: p.validator, advisor: req.Advisor, maxRejectRatio: p.opts.MaxRejectRatio},
	)
}

// asParseError reduces any run failure to a single ParseError. Context
// errors become CANCELLED at the stage that was running.
func asParseError(ctx context.Context, stage domain.Stage, err error) *domain.ParseError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Wrap(stage, domain.KindCancelled, ctxErr, "run cancelled")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Wrap(stage, domain.KindCancelled, err, "run cancelled")
	}
	var pe *domain.ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return domain.Wrap(stage, domain.KindCorruptDocument, err, "unexpected failure")
}
