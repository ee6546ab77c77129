package xmltree

import (
	"bytes"
	"testing"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

func TestDetectBOM(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want BOM
	}{
		{"utf8", []byte{0xEF, 0xBB, 0xBF, '<'}, BOMUTF8},
		{"utf16be", []byte{0xFE, 0xFF, 0x00, '<'}, BOMUTF16BigEndian},
		{"utf16le", []byte{0xFF, 0xFE, '<', 0x00}, BOMUTF16LittleEndian},
		{"utf32be", []byte{0x00, 0x00, 0xFE, 0xFF}, BOMUTF32BigEndian},
		{"utf32le", []byte{0xFF, 0xFE, 0x00, 0x00}, BOMUTF32LittleEndian},
		{"none", []byte("<?xml"), NoBOM},
		{"short", []byte{0xEF}, NoBOM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectBOM(tt.buf); got != tt.want {
				t.Errorf("DetectBOM() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWithBOM(t *testing.T) {
	const src = `<?xml version="1.0" encoding="UTF-16"?><a>ёж</a>`

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	utf32be, err := utf32.UTF32(utf32.BigEndian, utf32.UseBOM).NewEncoder().String(src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := map[string][]byte{
		"utf8":    append([]byte{0xEF, 0xBB, 0xBF}, `<a>ёж</a>`...),
		"utf16le": []byte(utf16),
		"utf32be": []byte(utf32be),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := Parse(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := doc.Root().Text(); got != "ёж" {
				t.Errorf("unexpected text %q", got)
			}
		})
	}
}
