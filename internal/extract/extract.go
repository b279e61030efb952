// Package extract turns raw statement bytes into ordered RawRows. Extractors
// only segment; they never interpret values.
package extract

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/statement-parser/internal/domain"
)

// Cell is one (column, value) pair taken verbatim from the source.
type Cell struct {
	Column string
	Value  string
}

// RawRow is one data row. Index is the 1-based data row number, Line the
// source line (CSV) or text line ordinal (PDF) it started on.
type RawRow struct {
	Index int
	Line  int
	Cells []Cell
}

// Value returns the cell value at column position i, or "" when the row is
// shorter than that.
func (r RawRow) Value(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i].Value
}

// Values returns the cell values in column order.
func (r RawRow) Values() []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.Value
	}
	return out
}

// RowReader yields rows in source order and io.EOF after the last one.
type RowReader interface {
	Next(ctx context.Context) (RawRow, error)
}

// Document is the output of an extractor: column identifiers plus a row
// stream. Columns are header labels when HasHeader, positional ids otherwise.
type Document struct {
	Source     domain.Source
	Columns    []string
	HasHeader  bool
	Heuristics []string

	rows RowReader
}

// Next returns the next row or io.EOF.
func (d *Document) Next(ctx context.Context) (RawRow, error) {
	if err := ctx.Err(); err != nil {
		return RawRow{}, err
	}
	return d.rows.Next(ctx)
}

// Extractor builds a Document from a byte stream.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (*Document, error)
}

// PositionalColumn returns the identifier used for column i (0-based) of a
// headerless document.
func PositionalColumn(i int) string {
	return fmt.Sprintf("col_%d", i+1)
}

// NewDocument assembles a Document from already segmented rows. Rows are
// re-indexed 1..n in order.
func NewDocument(source domain.Source, columns []string, hasHeader bool, rows []RawRow) *Document {
	for i := range rows {
		rows[i].Index = i + 1
	}
	return &Document{
		Source:    source,
		Columns:   columns,
		HasHeader: hasHeader,
		rows:      &sliceRows{rows: rows},
	}
}

type sliceRows struct {
	rows []RawRow
	pos  int
}

func (s *sliceRows) Next(ctx context.Context) (RawRow, error) {
	if s.pos >= len(s.rows) {
		return RawRow{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func cellsFor(columns []string, values []string) []Cell {
	n := len(values)
	if len(columns) > n {
		n = len(columns)
	}
	cells := make([]Cell, n)
	for i := 0; i < n; i++ {
		col := PositionalColumn(i)
		if i < len(columns) {
			col = columns[i]
		}
		v := ""
		if i < len(values) {
			v = values[i]
		}
		cells[i] = Cell{Column: col, Value: v}
	}
	return cells
}
