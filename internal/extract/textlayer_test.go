package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-parser/internal/domain"
)

type pdfText struct {
	x, y float64
	s    string
}

// buildPDF writes a one-page PDF with a Helvetica font that carries no
// /Widths, each text run placed absolutely with Tm.
func buildPDF(texts ...pdfText) []byte {
	var content bytes.Buffer
	for _, t := range texts {
		fmt.Fprintf(&content, "BT /F1 10 Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", t.x, t.y, t.s)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var statementPDF = buildPDF(
	pdfText{50, 760, "Date"}, pdfText{130, 760, "Description"}, pdfText{400, 760, "Amount"},
	pdfText{50, 740, "2024-01-15"}, pdfText{130, 740, "Coffee"}, pdfText{400, 740, "-4.50"},
	pdfText{50, 720, "2024-01-16"}, pdfText{130, 720, "Salary"}, pdfText{400, 720, "2500.00"},
)

func TestPlainTextLayer_Pages(t *testing.T) {
	pages, err := PlainTextLayer{}.Pages(context.Background(), statementPDF)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)

	// One fragment per glyph. Without /Widths every glyph of a run reports
	// zero width at the run's origin.
	var date []Fragment
	for _, f := range pages[0].Fragments {
		if f.Y == 760 && f.X == 50 {
			date = append(date, f)
		}
	}
	require.Len(t, date, len("Date"))
	var text strings.Builder
	for _, f := range date {
		assert.Zero(t, f.W)
		assert.Equal(t, 10.0, f.FontSize)
		text.WriteString(f.Text)
	}
	assert.Equal(t, "Date", text.String())
}

func TestPDFExtractor_RealDocument(t *testing.T) {
	ex := NewPDFExtractor(nil, PDFConfig{})

	doc, err := ex.Extract(context.Background(), bytes.NewReader(statementPDF))
	require.NoError(t, err)

	assert.Equal(t, domain.SourcePDF, doc.Source)
	assert.True(t, doc.HasHeader)
	assert.Equal(t, []string{"Date", "Description", "Amount"}, doc.Columns)
	assert.Equal(t, [][]string{
		{"2024-01-15", "Coffee", "-4.50"},
		{"2024-01-16", "Salary", "2500.00"},
	}, drain(t, doc))
}

func TestPDFExtractor_RealDocumentWithoutText(t *testing.T) {
	ex := NewPDFExtractor(nil, PDFConfig{})

	_, err := ex.Extract(context.Background(), bytes.NewReader(buildPDF()))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.KindNoTextLayer)
}
