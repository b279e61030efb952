package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/extract"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/mapping"
	"github.com/dvloznov/statement-parser/internal/normalize"
	"github.com/dvloznov/statement-parser/internal/validate"
)

// PipelineStep represents a single step in the parsing pipeline.
type PipelineStep interface {
	Stage() domain.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state of one run. It is never shared
// between runs.
type PipelineState struct {
	Request Request
	Stage   domain.Stage

	Source       domain.Source
	Document     *extract.Document
	Fields       mapping.FieldSlotMap
	Sample       []extract.RawRow
	exhausted    bool
	Transactions []domain.Transaction
	Stats        Stats
}

// Step 1: DispatchStep runs the gate.
type DispatchStep struct {
	gate Gate
}

func (s *DispatchStep) Stage() domain.Stage { return domain.StageDispatch }

func (s *DispatchStep) Execute(ctx context.Context, state *PipelineState) error {
	src, err := s.gate.Dispatch(Upload{
		Filename:    state.Request.Filename,
		ContentType: state.Request.ContentType,
		Size:        int64(len(state.Request.Data)),
		Head:        head(state.Request.Data),
	})
	if err != nil {
		return err
	}
	state.Source = src
	state.Stats.Source = src
	return nil
}

// Step 2: ExtractStep segments the payload into raw rows with the extractor
// chosen by the gate.
type ExtractStep struct {
	extractors map[domain.Source]extract.Extractor
}

func (s *ExtractStep) Stage() domain.Stage { return domain.StageExtract }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	ex, ok := s.extractors[state.Source]
	if !ok {
		return domain.Errorf(domain.StageExtract, domain.KindUnsupportedType, "no extractor for %s", state.Source)
	}
	doc, err := ex.Extract(ctx, bytes.NewReader(state.Request.Data))
	if err != nil {
		return err
	}
	state.Document = doc
	state.Stats.Heuristics = doc.Heuristics
	state.Stats.Columns = len(doc.Columns)
	return nil
}

// Step 3: MapStep buffers the sample rows and resolves the field slot map.
type MapStep struct {
	mapper     *mapping.Mapper
	sampleRows int
}

func (s *MapStep) Stage() domain.Stage { return domain.StageMap }

func (s *MapStep) Execute(ctx context.Context, state *PipelineState) error {
	for len(state.Sample) < s.sampleRows {
		row, err := state.Document.Next(ctx)
		if errors.Is(err, io.EOF) {
			state.exhausted = true
			break
		}
		if err != nil {
			return err
		}
		state.Sample = append(state.Sample, row)
	}

	values := make([][]string, len(state.Sample))
	for i, r := range state.Sample {
		values[i] = r.Values()
	}
	fields, err := s.mapper.Map(ctx, state.Document.Columns, state.Document.HasHeader, values)
	if err != nil {
		return err
	}
	state.Fields = fields
	state.Stats.Mapping = fields.Fields()
	state.Stats.MappingMethod = fields.Method
	return nil
}

// Step 4: NormalizeStep decides the document format from the sample, then
// normalizes and validates every row in source order.
type NormalizeStep struct {
	validator      *validate.Validator
	advisor        normalize.DateAdvisor
	maxRejectRatio float64
}

func (s *NormalizeStep) Stage() domain.Stage { return domain.StageNormalize }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	n := normalize.Decide(ctx, state.Fields, state.Sample, s.advisor)
	format := n.Format()
	state.Stats.DateLayout = format.Date.Layout.Name
	state.Stats.DateSource = format.DateSource
	state.Stats.DecimalSeparator = string(format.Amount.DecimalSep)

	state.Transactions = make([]domain.Transaction, 0, len(state.Sample))
	handle := func(row extract.RawRow) error {
		state.Stats.DataRows++
		tx, err := n.Row(row)
		if err == nil {
			tx, err = s.validator.Validate(row.Index, tx, state.Source)
		}
		if err != nil {
			var pe *domain.ParseError
			if !errors.As(err, &pe) || !pe.Kind.RowLevel() {
				return err
			}
			state.Stats.reject(pe.Kind)
			log.Debug().Int("row", row.Index).Int("line", row.Line).Str("kind", string(pe.Kind)).Msg("Dropped row")
			return nil
		}
		state.Transactions = append(state.Transactions, tx)
		return nil
	}

	for _, row := range state.Sample {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handle(row); err != nil {
			return err
		}
	}
	for !state.exhausted {
		row, err := state.Document.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := handle(row); err != nil {
			return err
		}
	}

	state.Stats.Accepted = len(state.Transactions)
	if exceedsThreshold(state.Stats.Rejected, state.Stats.DataRows, s.maxRejectRatio) {
		state.Transactions = nil
		return domain.Errorf(domain.StageNormalize, domain.KindRejectionThreshold,
			"%d of %d rows rejected, limit is %.0f%%", state.Stats.Rejected, state.Stats.DataRows, s.maxRejectRatio*100)
	}
	return nil
}

// exceedsThreshold is true when rejected/total is strictly above ratio.
// Documents without data rows never escalate.
func exceedsThreshold(rejected, total int, ratio float64) bool {
	if total == 0 || ratio >= 1 {
		return false
	}
	return float64(rejected)/float64(total) > ratio
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, checking for cancellation before each.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		state.Stage = step.Stage()
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug().Str("stage", string(state.Stage)).Msg("Entering stage")
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
