package xmltree

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// BOM is byte order mark found at the start of the input.
type BOM int

const (
	NoBOM BOM = iota
	BOMUTF8
	BOMUTF16BigEndian
	BOMUTF16LittleEndian
	BOMUTF32BigEndian
	BOMUTF32LittleEndian
)

var bomNames = [...]string{"none", "UTF-8", "UTF-16BE", "UTF-16LE", "UTF-32BE", "UTF-32LE"}

func (b BOM) String() string {
	if b < 0 || int(b) >= len(bomNames) {
		return "unknown"
	}
	return bomNames[b]
}

// DetectBOM looks at the first bytes of buf. UTF-32 little endian mark has
// to be checked before UTF-16 one, it starts with the same bytes.
func DetectBOM(buf []byte) BOM {
	switch {
	case bytes.HasPrefix(buf, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return BOMUTF32BigEndian
	case bytes.HasPrefix(buf, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return BOMUTF32LittleEndian
	case bytes.HasPrefix(buf, []byte{0xEF, 0xBB, 0xBF}):
		return BOMUTF8
	case bytes.HasPrefix(buf, []byte{0xFE, 0xFF}):
		return BOMUTF16BigEndian
	case bytes.HasPrefix(buf, []byte{0xFF, 0xFE}):
		return BOMUTF16LittleEndian
	}
	return NoBOM
}

// Encoding returns encoding selected by the mark, nil when there is no mark.
// Decoders of returned encodings consume the mark.
func (b BOM) Encoding() encoding.Encoding {
	switch b {
	case BOMUTF8:
		return unicode.UTF8BOM
	case BOMUTF16BigEndian:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case BOMUTF16LittleEndian:
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case BOMUTF32BigEndian:
		return utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM)
	case BOMUTF32LittleEndian:
		return utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM)
	}
	return nil
}

// NewUTF8Reader returns reader producing UTF-8 without byte order mark when
// input starts with one, otherwise input is returned unchanged.
func NewUTF8Reader(r io.Reader) (io.Reader, BOM, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, NoBOM, err
	}
	bom := DetectBOM(head)
	if bom == NoBOM {
		return br, bom, nil
	}
	return transform.NewReader(br, bom.Encoding().NewDecoder()), bom, nil
}
