package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/sniff"
)

// Delimiters are tried in this order; earlier candidates win ties.
var Delimiters = []rune{',', ';', '\t'}

// CSVConfig tunes delimiter detection.
type CSVConfig struct {
	// SampleLines is how many non-blank lines are read before deciding.
	SampleLines int
	// MinSampleRows is the fewest rows that must agree on a field count.
	MinSampleRows int
	// MinConsistency is the share of post-preamble sampled rows that must
	// have the modal field count.
	MinConsistency float64
}

// DefaultCSVConfig returns the tuning used when nothing is configured.
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		SampleLines:    20,
		MinSampleRows:  2,
		MinConsistency: 0.8,
	}
}

// CSVExtractor reads delimited text in a single streaming pass.
type CSVExtractor struct {
	cfg CSVConfig
}

// NewCSVExtractor creates a CSV extractor; zero fields fall back to defaults.
func NewCSVExtractor(cfg CSVConfig) *CSVExtractor {
	def := DefaultCSVConfig()
	if cfg.SampleLines <= 0 {
		cfg.SampleLines = def.SampleLines
	}
	if cfg.MinSampleRows <= 0 {
		cfg.MinSampleRows = def.MinSampleRows
	}
	if cfg.MinConsistency <= 0 || cfg.MinConsistency > 1 {
		cfg.MinConsistency = def.MinConsistency
	}
	return &CSVExtractor{cfg: cfg}
}

// Extract detects the delimiter and header from a sampled prefix, then
// replays that prefix in front of the rest of the stream.
func (e *CSVExtractor) Extract(ctx context.Context, r io.Reader) (*Document, error) {
	br := bufio.NewReader(decodeText(r))

	sample, err := readSample(br, e.cfg.SampleLines)
	if err != nil {
		return nil, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "read csv")
	}

	choice, ok := e.detectDelimiter(sample)
	if !ok {
		return nil, domain.Errorf(domain.StageExtract, domain.KindDelimiterDetection,
			"no delimiter among %q gives a consistent column count", string(Delimiters))
	}

	cr := newCSVReader(io.MultiReader(bytes.NewReader(sample), br), choice.delim)
	rows := &csvRows{reader: cr}

	for i := 0; i < choice.skip; i++ {
		if _, err := rows.nextRecord(); err != nil {
			return nil, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "skip preamble")
		}
	}

	first, err := rows.nextRecord()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "read first record")
	}

	doc := &Document{
		Source:     domain.SourceCSV,
		Heuristics: []string{"delimiter:" + delimiterName(choice.delim)},
		rows:       rows,
	}
	if choice.skip > 0 {
		doc.Heuristics = append(doc.Heuristics, "preamble-skip")
	}

	switch {
	case first == nil:
		doc.Columns = nil
	case isHeaderRecord(first):
		doc.HasHeader = true
		doc.Columns = headerColumns(first)
		doc.Heuristics = append(doc.Heuristics, "header-row")
	default:
		doc.Columns = positionalColumns(len(first))
		rows.pending = first
		doc.Heuristics = append(doc.Heuristics, "headerless")
	}
	rows.columns = doc.Columns
	return doc, nil
}

func newCSVReader(r io.Reader, delim rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr
}

// readSample reads up to n non-blank lines, keeping every byte it consumed.
func readSample(br *bufio.Reader, n int) ([]byte, error) {
	var buf bytes.Buffer
	for lines := 0; lines < n; {
		line, err := br.ReadString('\n')
		buf.WriteString(line)
		if strings.TrimSpace(line) != "" {
			lines++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

type delimiterChoice struct {
	delim      rune
	fields     int
	consistent int
	skip       int
}

func (e *CSVExtractor) detectDelimiter(sample []byte) (delimiterChoice, bool) {
	var best delimiterChoice
	found := false
	for _, d := range Delimiters {
		c, ok := e.scoreDelimiter(sample, d)
		if !ok {
			continue
		}
		if !found || c.consistent > best.consistent ||
			(c.consistent == best.consistent && c.fields > best.fields) {
			best = c
			found = true
		}
	}
	return best, found
}

func (e *CSVExtractor) scoreDelimiter(sample []byte, d rune) (delimiterChoice, bool) {
	cr := newCSVReader(bytes.NewReader(sample), d)
	var counts []int
	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		if sniff.IsBlank(rec) {
			continue
		}
		counts = append(counts, len(rec))
	}
	if len(counts) == 0 {
		return delimiterChoice{}, false
	}

	modal := modalCount(counts)
	if modal < 2 {
		return delimiterChoice{}, false
	}

	skip := 0
	for skip < len(counts) && counts[skip] != modal {
		skip++
	}
	rest := counts[skip:]
	consistent := 0
	for _, c := range rest {
		if c == modal {
			consistent++
		}
	}

	need := e.cfg.MinSampleRows
	if len(rest) < need {
		need = len(rest)
	}
	if consistent < need || float64(consistent)/float64(len(rest)) < e.cfg.MinConsistency {
		return delimiterChoice{}, false
	}
	return delimiterChoice{delim: d, fields: modal, consistent: consistent, skip: skip}, true
}

// modalCount returns the most frequent count; ties go to the larger count.
func modalCount(counts []int) int {
	freq := make(map[int]int)
	for _, c := range counts {
		freq[c]++
	}
	modal, best := 0, 0
	for c, n := range freq {
		if n > best || (n == best && c > modal) {
			modal, best = c, n
		}
	}
	return modal
}

func isHeaderRecord(rec []string) bool {
	if sniff.IsBlank(rec) {
		return false
	}
	for _, v := range rec {
		if sniff.LooksLikeDate(v) || sniff.LooksLikeAmount(v) {
			return false
		}
	}
	return true
}

func headerColumns(rec []string) []string {
	cols := make([]string, len(rec))
	for i, v := range rec {
		v = strings.TrimSpace(v)
		if v == "" {
			v = PositionalColumn(i)
		}
		cols[i] = v
	}
	return cols
}

func positionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = PositionalColumn(i)
	}
	return cols
}

func delimiterName(d rune) string {
	switch d {
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	case '\t':
		return "tab"
	}
	return string(d)
}

type csvRows struct {
	reader  *csv.Reader
	columns []string
	pending []string
	index   int
}

// nextRecord returns the next non-blank record.
func (c *csvRows) nextRecord() ([]string, error) {
	for {
		rec, err := c.reader.Read()
		if err != nil {
			return nil, err
		}
		if !sniff.IsBlank(rec) {
			return rec, nil
		}
	}
}

func (c *csvRows) Next(ctx context.Context) (RawRow, error) {
	rec := c.pending
	c.pending = nil
	if rec == nil {
		var err error
		rec, err = c.nextRecord()
		if errors.Is(err, io.EOF) {
			return RawRow{}, io.EOF
		}
		if err != nil {
			return RawRow{}, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "malformed csv record")
		}
	}
	line, _ := c.reader.FieldPos(0)
	c.index++
	return RawRow{Index: c.index, Line: line, Cells: cellsFor(c.columns, rec)}, nil
}
