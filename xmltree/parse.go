// Package xmltree is the tree adapter: it parses markup into etree DOM in
// strict XML mode and provides structural selector paths and CSS/XPath
// selection over the resulting tree.
package xmltree

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// DefaultEncoding is assumed when document does not declare one.
const DefaultEncoding = "UTF-8"

var ErrNoRoot = errors.New("document has no root element")

// Parse reads well formed XML. Declared encodings other than UTF-8 are
// converted on the fly, byte order mark takes precedence over declaration.
// Parser errors are returned as is, there is no attempt to recover partial
// document.
func Parse(r io.Reader) (*etree.Document, error) {
	src, bom, err := NewUTF8Reader(r)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    false,
		PreserveCData: true,
		ValidateInput: false,
	}
	if bom != NoBOM {
		doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
			return input, nil
		}
	}
	if _, err := doc.ReadFrom(src); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, ErrNoRoot
	}
	return doc, nil
}

var encodingPattern = regexp.MustCompile(`encoding\s*=\s*["']([^"']+)["']`)

// DeclaredEncoding returns encoding from XML declaration of the document.
func DeclaredEncoding(doc *etree.Document) string {
	for _, t := range doc.Child {
		pi, ok := t.(*etree.ProcInst)
		if !ok || pi.Target != "xml" {
			continue
		}
		if m := encodingPattern.FindStringSubmatch(pi.Inst); m != nil {
			return m[1]
		}
		break
	}
	return DefaultEncoding
}

// RawProcInst reconstructs processing instruction markup. Whitespace after
// target is kept when parser left it in the instruction.
func RawProcInst(pi *etree.ProcInst) string {
	switch {
	case pi.Inst == "":
		return "<?" + pi.Target + "?>"
	case strings.ContainsAny(pi.Inst[:1], " \t\r\n"):
		return "<?" + pi.Target + pi.Inst + "?>"
	default:
		return "<?" + pi.Target + " " + pi.Inst + "?>"
	}
}

// RawComment reconstructs comment markup.
func RawComment(c *etree.Comment) string {
	return "<!--" + c.Data + "-->"
}

// RawDirective reconstructs directive (DOCTYPE and such) markup.
func RawDirective(d *etree.Directive) string {
	return "<!" + d.Data + ">"
}

// NormalizeSpace collapses every run of whitespace into a single space.
// Leading and trailing whitespace is collapsed too, not removed.
func NormalizeSpace(s string) string {
	var (
		b       strings.Builder
		inSpace bool
	)
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
		default:
			b.WriteRune(r)
			inSpace = false
		}
	}
	return b.String()
}

// HasText reports whether element has any non whitespace text below it.
func HasText(el *etree.Element) bool {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			if strings.TrimSpace(v.Data) != "" {
				return true
			}
		case *etree.Element:
			if HasText(v) {
				return true
			}
		}
	}
	return false
}

// Text returns all text below element with whitespace normalized and
// trimmed.
func Text(el *etree.Element) string {
	var b strings.Builder
	collectText(&b, el)
	return strings.TrimSpace(NormalizeSpace(b.String()))
}

func collectText(b *strings.Builder, el *etree.Element) {
	for _, t := range el.Child {
		switch v := t.(type) {
		case *etree.CharData:
			b.WriteString(v.Data)
		case *etree.Element:
			collectText(b, v)
		}
	}
}

// rawText is XPath string-value: concatenated descendant text as is.
func rawText(el *etree.Element) string {
	var b strings.Builder
	collectText(&b, el)
	return b.String()
}
