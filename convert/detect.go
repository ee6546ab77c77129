package convert

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"golang.org/x/text/transform"

	"sox/xmltree"
)

// headerSize is enough for filetype to recognize any supported type.
const headerSize = 512

var (
	xmlType       = filetype.NewType("xml", "application/xml")
	xmlExtensions = []string{".xml", ".tei", ".xhtml"}
)

func init() {
	filetype.AddMatcher(xmlType, matchXML)
}

// matchXML accepts UTF-8 input starting (after optional whitespace) with XML
// declaration, comment, doctype or element.
func matchXML(buf []byte) bool {
	buf = bytes.TrimLeft(bytes.TrimPrefix(buf, []byte{0xEF, 0xBB, 0xBF}), " \t\r\n")
	if bytes.HasPrefix(buf, []byte("<?xml")) || bytes.HasPrefix(buf, []byte("<!")) {
		return true
	}
	if len(buf) < 2 || buf[0] != '<' {
		return false
	}
	c := buf[1]
	return c == '_' || c == ':' || c >= 0x80 || (c|0x20 >= 'a' && c|0x20 <= 'z')
}

// utf8Header returns head of the input converted to UTF-8 when it has byte
// order mark.
func utf8Header(buf []byte) []byte {
	bom := xmltree.DetectBOM(buf)
	if bom == xmltree.NoBOM {
		return buf
	}
	out, _, err := transform.Bytes(bom.Encoding().NewDecoder(), buf)
	if err != nil && len(out) == 0 {
		return buf
	}
	return out
}

func readHeader(r io.Reader) ([]byte, error) {
	buf := make([]byte, headerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func hasXMLExt(name string) bool {
	return slices.Contains(xmlExtensions, strings.ToLower(filepath.Ext(name)))
}

// detectXML reads head of the input and reports whether it looks like XML and
// which byte order mark it carries.
func detectXML(r io.Reader) (bool, xmltree.BOM, error) {
	buf, err := readHeader(r)
	if err != nil {
		return false, xmltree.NoBOM, err
	}
	return filetype.Is(utf8Header(buf), xmlType.Extension), xmltree.DetectBOM(buf), nil
}

// isXMLFile checks file extension and content.
func isXMLFile(path string) (bool, xmltree.BOM, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, xmltree.NoBOM, err
	}
	defer f.Close()

	if !hasXMLExt(path) {
		return false, xmltree.NoBOM, nil
	}
	return detectXML(f)
}

func isXMLInArchive(f *zip.File) (bool, xmltree.BOM, error) {
	if !hasXMLExt(f.Name) {
		return false, xmltree.NoBOM, nil
	}
	r, err := f.Open()
	if err != nil {
		return false, xmltree.NoBOM, err
	}
	defer r.Close()
	return detectXML(r)
}

func isArchiveFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return false, nil
	}
	buf, err := readHeader(f)
	if err != nil {
		return false, err
	}
	kind, err := filetype.Archive(buf)
	if err != nil {
		return false, nil
	}
	return kind == matchers.TypeZip, nil
}
