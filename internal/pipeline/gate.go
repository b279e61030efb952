package pipeline

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dvloznov/statement-parser/internal/domain"
)

// HeadSize is how many leading bytes the gate inspects.
const HeadSize = 512

var pdfMagic = []byte("%PDF-")

var csvMediaTypes = map[string]bool{
	"text/csv":                    true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true,
}

// Upload describes a submitted file before any parsing happens.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Head        []byte
}

// Gate routes an upload to an extractor or refuses it. It has no side effects.
type Gate struct {
	MaxBytes int64
}

// Dispatch decides the source kind. Checks run in a fixed order: empty,
// too large, declared type, then content signature.
func (g Gate) Dispatch(u Upload) (domain.Source, error) {
	if u.Size == 0 {
		return "", domain.Errorf(domain.StageDispatch, domain.KindEmptyPayload, "file is empty")
	}
	if g.MaxBytes > 0 && u.Size > g.MaxBytes {
		return "", domain.Errorf(domain.StageDispatch, domain.KindPayloadTooLarge,
			"file is %d bytes, limit is %d", u.Size, g.MaxBytes)
	}

	src, err := declaredSource(u.Filename, u.ContentType)
	if err != nil {
		return "", err
	}

	switch src {
	case domain.SourcePDF:
		if !bytes.HasPrefix(bytes.TrimLeft(u.Head, " \t\r\n\f"), pdfMagic) {
			return "", domain.Errorf(domain.StageDispatch, domain.KindUnsupportedType, "not a PDF document")
		}
	case domain.SourceCSV:
		if bytes.IndexByte(u.Head, 0) != -1 {
			return "", domain.Errorf(domain.StageDispatch, domain.KindUnsupportedType, "binary content is not CSV")
		}
	}
	return src, nil
}

// declaredSource prefers the file extension and falls back to the media type
// only when there is no extension.
func declaredSource(filename, contentType string) (domain.Source, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return domain.SourceCSV, nil
	case ".pdf":
		return domain.SourcePDF, nil
	case "":
	default:
		return "", domain.Errorf(domain.StageDispatch, domain.KindUnsupportedType, "unsupported file extension %q", ext)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case csvMediaTypes[mediaType]:
		return domain.SourceCSV, nil
	case mediaType == "application/pdf":
		return domain.SourcePDF, nil
	}
	return "", domain.Errorf(domain.StageDispatch, domain.KindUnsupportedType, "unsupported media type %q", mediaType)
}

// head returns the bytes the gate inspects.
func head(data []byte) []byte {
	if len(data) > HeadSize {
		return data[:HeadSize]
	}
	return data
}
