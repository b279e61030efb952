package extract

import (
	"context"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/sniff"
)

const (
	defaultFontSize = 10.0
	wordGapRatio    = 0.2
	// Continuation lines must sit within this many font sizes of the row above.
	continuationSpacing = 2.0
)

// PDFConfig tunes the row segmentation heuristics.
type PDFConfig struct {
	// LineTolerance is the baseline distance, in points, within which
	// fragments belong to the same line.
	LineTolerance float64
	// ColumnGap is the horizontal gap, as a multiple of the font size, that
	// splits a line into separate cells.
	ColumnGap float64
	// AnchorTolerance is the slack, in points, used when clustering cell
	// positions into columns for documents without a header line.
	AnchorTolerance float64
	// MinRowConsistency is the share of transaction lines whose cell count
	// must be within one of the most common count.
	MinRowConsistency float64
}

// DefaultPDFConfig returns the tuning used when nothing is configured.
func DefaultPDFConfig() PDFConfig {
	return PDFConfig{
		LineTolerance:     2.5,
		ColumnGap:         1.0,
		AnchorTolerance:   4,
		MinRowConsistency: 0.6,
	}
}

// PDFExtractor segments the text layer of a PDF into table rows.
type PDFExtractor struct {
	layer TextLayer
	cfg   PDFConfig
}

// NewPDFExtractor creates a PDF extractor. A nil layer uses PlainTextLayer;
// zero config fields fall back to defaults.
func NewPDFExtractor(layer TextLayer, cfg PDFConfig) *PDFExtractor {
	if layer == nil {
		layer = PlainTextLayer{}
	}
	def := DefaultPDFConfig()
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = def.LineTolerance
	}
	if cfg.ColumnGap <= 0 {
		cfg.ColumnGap = def.ColumnGap
	}
	if cfg.AnchorTolerance <= 0 {
		cfg.AnchorTolerance = def.AnchorTolerance
	}
	if cfg.MinRowConsistency <= 0 || cfg.MinRowConsistency > 1 {
		cfg.MinRowConsistency = def.MinRowConsistency
	}
	return &PDFExtractor{layer: layer, cfg: cfg}
}

type textCell struct {
	x0, x1 float64
	text   string
}

type textLine struct {
	page    int
	ordinal int
	y       float64
	size    float64
	cells   []textCell
}

func (l textLine) hasDate() bool {
	for _, c := range l.cells {
		if sniff.LooksLikeDate(c.text) {
			return true
		}
	}
	return false
}

func (l textLine) hasAmount() bool {
	for _, c := range l.cells {
		if sniff.LooksLikeAmount(c.text) {
			return true
		}
	}
	return false
}

func (l textLine) isTransaction() bool { return l.hasDate() && l.hasAmount() }

func (l textLine) isLabels() bool {
	if len(l.cells) < 2 {
		return false
	}
	for _, c := range l.cells {
		if !sniff.LooksLikeLabel(c.text) {
			return false
		}
	}
	return true
}

func (l textLine) text() string {
	parts := make([]string, len(l.cells))
	for i, c := range l.cells {
		parts[i] = c.text
	}
	return strings.Join(parts, " ")
}

// Extract reads the whole document, since the PDF cross-reference table
// needs random access.
func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "read pdf")
	}

	pages, err := e.layer.Pages(ctx, data)
	if err != nil {
		return nil, err
	}

	lines := e.buildLines(pages)
	if len(lines) == 0 {
		return nil, domain.Errorf(domain.StageExtract, domain.KindNoTextLayer,
			"no extractable text in %d pages; scanned documents are not supported", len(pages))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.segment(lines)
}

// buildLines groups fragments into lines by baseline, top to bottom, and
// splits each line into cells on wide horizontal gaps.
func (e *PDFExtractor) buildLines(pages []TextPage) []textLine {
	var lines []textLine
	for _, p := range pages {
		frags := make([]Fragment, 0, len(p.Fragments))
		for _, f := range p.Fragments {
			if f.Text != "" {
				frags = append(frags, f)
			}
		}
		sort.SliceStable(frags, func(i, j int) bool {
			if frags[i].Y != frags[j].Y {
				return frags[i].Y > frags[j].Y
			}
			return frags[i].X < frags[j].X
		})

		var group []Fragment
		var groupY float64
		flush := func() {
			if line, ok := e.mergeLine(p.Number, groupY, group); ok {
				lines = append(lines, line)
			}
			group = nil
		}
		for _, f := range frags {
			if len(group) > 0 && math.Abs(groupY-f.Y) > e.cfg.LineTolerance {
				flush()
			}
			if len(group) == 0 {
				groupY = f.Y
			}
			group = append(group, f)
		}
		if len(group) > 0 {
			flush()
		}
	}
	for i := range lines {
		lines[i].ordinal = i + 1
	}
	return lines
}

func (e *PDFExtractor) mergeLine(page int, y float64, frags []Fragment) (textLine, bool) {
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].X < frags[j].X })

	line := textLine{page: page, y: y}
	var cells []textCell
	for _, f := range frags {
		size := f.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		if size > line.size {
			line.size = size
		}
		end := f.X + f.W

		if n := len(cells); n > 0 && f.X-cells[n-1].x1 <= e.cfg.ColumnGap*size {
			cur := &cells[n-1]
			if f.X-cur.x1 > wordGapRatio*size && !strings.HasSuffix(cur.text, " ") && !strings.HasPrefix(f.Text, " ") {
				cur.text += " "
			}
			cur.text += f.Text
			if end > cur.x1 {
				cur.x1 = end
			}
			continue
		}
		cells = append(cells, textCell{x0: f.X, x1: end, text: f.Text})
	}

	for _, c := range cells {
		c.text = strings.Join(strings.Fields(c.text), " ")
		if c.text != "" {
			line.cells = append(line.cells, c)
		}
	}
	return line, len(line.cells) > 0
}

type anchor struct {
	x0, x1 float64
}

func (e *PDFExtractor) segment(lines []textLine) (*Document, error) {
	heuristics := []string{"line-grouping", "gap-split", "transaction-line"}

	first := -1
	var counts []int
	for i, l := range lines {
		if !l.isTransaction() {
			continue
		}
		if first < 0 {
			first = i
		}
		counts = append(counts, len(l.cells))
	}
	if first < 0 {
		return nil, domain.Errorf(domain.StageExtract, domain.KindTableStructure,
			"no line carries both a date and an amount among %d text lines", len(lines))
	}

	modal := modalCount(counts)
	near := 0
	for _, c := range counts {
		if c >= modal-1 && c <= modal+1 {
			near++
		}
	}
	if share := float64(near) / float64(len(counts)); share < e.cfg.MinRowConsistency {
		return nil, domain.Errorf(domain.StageExtract, domain.KindTableStructure,
			"column counts vary too much: %.0f%% of %d rows agree", share*100, len(counts))
	}

	var header *textLine
	for i := first - 1; i >= 0 && lines[i].page == lines[first].page; i-- {
		if lines[i].isLabels() {
			header = &lines[i]
			break
		}
	}

	var anchors []anchor
	var columns []string
	if header != nil {
		for _, c := range header.cells {
			anchors = append(anchors, anchor{x0: c.x0, x1: c.x1})
			columns = append(columns, c.text)
		}
		heuristics = append(heuristics, "header-guess", "anchor-columns:header")
	} else {
		anchors = e.clusterAnchors(lines[first:])
		columns = positionalColumns(len(anchors))
		heuristics = append(heuristics, "anchor-columns:x-cluster")
	}
	anchors = widenAnchors(anchors)

	var rows []RawRow
	attached := false
	merged := false
	var prev textLine
	for _, l := range lines[first:] {
		switch {
		case l.isTransaction():
			values := assignCells(anchors, l.cells)
			rows = append(rows, RawRow{Line: l.ordinal, Cells: cellsFor(columns, values)})
			attached = true
			prev = l
		case attached && e.continues(prev, l) && (header == nil || l.text() != header.text()):
			appendContinuation(&rows[len(rows)-1], anchors, l)
			merged = true
			prev = l
		default:
			attached = false
		}
	}
	if merged {
		heuristics = append(heuristics, "continuation-merge")
	}

	doc := NewDocument(domain.SourcePDF, columns, header != nil, rows)
	doc.Heuristics = heuristics
	return doc, nil
}

// continues reports whether l is a wrapped description line belonging to
// the row that ended with prev.
func (e *PDFExtractor) continues(prev, l textLine) bool {
	if l.page != prev.page || l.hasDate() || l.hasAmount() {
		return false
	}
	size := prev.size
	if size <= 0 {
		size = defaultFontSize
	}
	return prev.y-l.y <= continuationSpacing*size
}

// clusterAnchors derives columns from overlapping cell spans of transaction
// lines when no header line was found.
func (e *PDFExtractor) clusterAnchors(lines []textLine) []anchor {
	var spans []textCell
	for _, l := range lines {
		if l.isTransaction() {
			spans = append(spans, l.cells...)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].x0 < spans[j].x0 })

	var anchors []anchor
	for _, s := range spans {
		if n := len(anchors); n > 0 && s.x0 <= anchors[n-1].x1+e.cfg.AnchorTolerance {
			if s.x1 > anchors[n-1].x1 {
				anchors[n-1].x1 = s.x1
			}
			continue
		}
		anchors = append(anchors, anchor{x0: s.x0, x1: s.x1})
	}
	return anchors
}

// widenAnchors extends each anchor to the midpoints between its neighbours so
// every x position belongs to exactly one column.
func widenAnchors(anchors []anchor) []anchor {
	out := make([]anchor, len(anchors))
	for i, a := range anchors {
		left, right := math.Inf(-1), math.Inf(1)
		if i > 0 {
			left = (anchors[i-1].x1 + a.x0) / 2
		}
		if i < len(anchors)-1 {
			right = (a.x1 + anchors[i+1].x0) / 2
		}
		out[i] = anchor{x0: left, x1: right}
	}
	return out
}

func nearestAnchor(anchors []anchor, c textCell) int {
	best, bestOverlap := 0, math.Inf(-1)
	for i, a := range anchors {
		overlap := math.Min(a.x1, c.x1) - math.Max(a.x0, c.x0)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	return best
}

func assignCells(anchors []anchor, cells []textCell) []string {
	values := make([]string, len(anchors))
	for _, c := range cells {
		i := nearestAnchor(anchors, c)
		if values[i] != "" {
			values[i] += " "
		}
		values[i] += c.text
	}
	return values
}

// appendContinuation adds wrapped text to the matching column of row, or to
// its longest text cell when that column holds a number.
func appendContinuation(row *RawRow, anchors []anchor, l textLine) {
	for _, c := range l.cells {
		i := nearestAnchor(anchors, c)
		if i >= len(row.Cells) || sniff.LooksLikeAmount(row.Cells[i].Value) || sniff.LooksLikeDate(row.Cells[i].Value) {
			i = longestTextCell(row.Cells)
		}
		if i < 0 {
			continue
		}
		if row.Cells[i].Value != "" {
			row.Cells[i].Value += " "
		}
		row.Cells[i].Value += c.text
	}
}

func longestTextCell(cells []Cell) int {
	best, bestLen := -1, -1
	for i, c := range cells {
		if sniff.LooksLikeAmount(c.Value) || sniff.LooksLikeDate(c.Value) {
			continue
		}
		if len(c.Value) > bestLen {
			best, bestLen = i, len(c.Value)
		}
	}
	return best
}
