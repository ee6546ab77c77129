// Package standoff defines flattened document representation: plain text
// plus position tagged spans describing markup which used to surround it.
package standoff

import (
	"strings"
)

// Kind of markup a span stands for.
type Kind int

const (
	KindElement Kind = iota
	KindDeclaration
	KindCData
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindDeclaration:
		return "declaration"
	case KindCData:
		return "cdata"
	default:
		return "unknown"
	}
}

// Payload is span content: *Element, *Declaration or *CData. The set is
// closed, consumers are expected to switch over these types.
type Payload interface {
	kind() Kind
}

// Attr is a single attribute in source order. Key carries namespace prefix
// when present ("xml:id").
type Attr struct {
	Key   string `yaml:"key" ion:"key"`
	Value string `yaml:"value" ion:"value"`
}

// Element describes XML element covering the span.
type Element struct {
	Tag      string
	Attrs    []Attr
	ID       string
	Class    string
	Selector string
}

func (*Element) kind() Kind { return KindElement }

// Attr returns value of the attribute with the given key.
func (e *Element) Attr(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// AttrText returns attributes formatted the way they go into a start tag,
// including leading space: ` pos="det" n="1"`.
func (e *Element) AttrText() string {
	if len(e.Attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, a := range e.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(EscapeAttr(a.Value))
		b.WriteByte('"')
	}
	return b.String()
}

// Declaration keeps verbatim markup which has no text content: processing
// instructions, comments and directives.
type Declaration struct {
	Raw string
}

func (*Declaration) kind() Kind { return KindDeclaration }

// CData marks text which came from a CDATA section. Span covers the section
// content, which is written back verbatim.
type CData struct{}

func (*CData) kind() Kind { return KindCData }

// Span is a [Begin, End) byte interval of document text. Enter and Exit are
// traversal sequence numbers of the opening and closing events, zero when
// span was not produced by traversal.
type Span struct {
	Begin   int
	End     int
	Enter   int
	Exit    int
	Payload Payload
}

func (s Span) Kind() Kind {
	if s.Payload == nil {
		return KindElement
	}
	return s.Payload.kind()
}

// Empty reports zero width span.
func (s Span) Empty() bool { return s.Begin == s.End }

// Element returns element payload or nil.
func (s Span) Element() *Element {
	el, _ := s.Payload.(*Element)
	return el
}

// Declaration returns declaration payload or nil.
func (s Span) Declaration() *Declaration {
	d, _ := s.Payload.(*Declaration)
	return d
}

// CData reports whether span covers CDATA section.
func (s Span) CData() bool {
	_, ok := s.Payload.(*CData)
	return ok
}

// Contains reports whether o lies completely inside s.
func (s Span) Contains(o Span) bool {
	return s.Begin <= o.Begin && o.End <= s.End
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", "]]>", "]]&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")
)

// EscapeText escapes characters which may not appear in XML character data.
func EscapeText(s string) string { return textEscaper.Replace(s) }

// EscapeAttr escapes characters which may not appear in double quoted
// attribute value.
func EscapeAttr(s string) string { return attrEscaper.Replace(s) }
