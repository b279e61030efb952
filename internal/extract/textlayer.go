package extract

import (
	"bytes"
	"context"

	"github.com/dslipak/pdf"

	"github.com/dvloznov/statement-parser/internal/domain"
)

// Fragment is a positioned run of text on a PDF page. Y grows upwards.
type Fragment struct {
	X, Y, W  float64
	FontSize float64
	Text     string
}

// TextPage is the text layer of one page.
type TextPage struct {
	Number    int
	Fragments []Fragment
}

// TextLayer reads positioned text from a PDF. Implementations are swappable;
// the segmentation in PDFExtractor only depends on this interface.
type TextLayer interface {
	Pages(ctx context.Context, data []byte) ([]TextPage, error)
}

// PlainTextLayer reads the embedded text layer with github.com/dslipak/pdf.
// It does no OCR.
type PlainTextLayer struct{}

func (PlainTextLayer) Pages(ctx context.Context, data []byte) (pages []TextPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.Errorf(domain.StageExtract, domain.KindCorruptDocument, "pdf reader failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.Wrap(domain.StageExtract, domain.KindCorruptDocument, err, "open pdf")
	}

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		tp := TextPage{Number: i, Fragments: make([]Fragment, 0, len(content.Text))}
		for _, t := range content.Text {
			tp.Fragments = append(tp.Fragments, Fragment{
				X:        t.X,
				Y:        t.Y,
				W:        t.W,
				FontSize: t.FontSize,
				Text:     t.S,
			})
		}
		pages = append(pages, tp)
	}
	if len(pages) == 0 {
		return nil, domain.Errorf(domain.StageExtract, domain.KindCorruptDocument, "no readable pages among %d", reader.NumPage())
	}
	return pages, nil
}
