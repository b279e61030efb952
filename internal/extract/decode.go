package extract

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffWindow = 64 << 10

var boms = [][]byte{
	{0xEF, 0xBB, 0xBF},
	{0xFF, 0xFE},
	{0xFE, 0xFF},
}

// decodeText wraps r so that it yields UTF-8 with "\n" line endings. A BOM
// selects UTF-8 or UTF-16; input without a BOM that is not valid UTF-8 is
// read as Windows-1252.
func decodeText(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, sniffWindow)
	head, _ := br.Peek(sniffWindow)

	var dec transform.Transformer = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	if !hasBOM(head) && !looksUTF8(head) {
		dec = charmap.Windows1252.NewDecoder()
	}
	return transform.NewReader(br, transform.Chain(dec, newlineNormalizer{}))
}

func hasBOM(b []byte) bool {
	for _, bom := range boms {
		if bytes.HasPrefix(b, bom) {
			return true
		}
	}
	return false
}

// looksUTF8 tolerates a rune cut off at the end of the sniff window.
func looksUTF8(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			return !utf8.FullRune(b)
		}
		b = b[size:]
	}
	return true
}

// newlineNormalizer rewrites "\r\n" and lone "\r" to "\n".
type newlineNormalizer struct{}

func (newlineNormalizer) Reset() {}

func (newlineNormalizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == '\r' && nSrc+1 == len(src) && !atEOF {
			return nDst, nSrc, transform.ErrShortSrc
		}
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nSrc++
		if c == '\r' {
			c = '\n'
			if nSrc < len(src) && src[nSrc] == '\n' {
				nSrc++
			}
		}
		dst[nDst] = c
		nDst++
	}
	return nDst, nSrc, nil
}
