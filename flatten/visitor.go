// Package flatten turns XML tree into plain text and a list of standoff
// spans. Spans are listed in document order, each element span covering
// text produced by the element and its descendants. CDATA sections get
// spans of their own.
package flatten

import (
	"slices"
	"strings"

	"github.com/beevik/etree"

	"sox/standoff"
	"sox/xmltree"
)

// DefaultBlockTags are elements followed by a newline when whitespace is
// not preserved.
var DefaultBlockTags = []string{"l", "p", "sp"}

// htmlBlocks are elements which are block level in HTML. They are always
// treated as block tags.
var htmlBlocks = map[string]bool{
	"address": true, "article": true, "aside": true, "audio": true, "blockquote": true,
	"body": true, "canvas": true, "caption": true, "center": true, "col": true,
	"colgroup": true, "dd": true, "del": true, "details": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "frame": true, "frameset": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"head": true, "header": true, "hgroup": true, "hr": true, "html": true,
	"ins": true, "li": true, "link": true, "main": true, "math": true,
	"menu": true, "meta": true, "nav": true, "noframes": true, "noscript": true,
	"ol": true, "p": true, "plaintext": true, "pre": true, "script": true,
	"section": true, "style": true, "svg": true, "table": true, "tbody": true,
	"td": true, "template": true, "tfoot": true, "th": true, "thead": true,
	"title": true, "tr": true, "ul": true, "video": true,
}

// Options controls flattening.
type Options struct {
	// PreserveWhitespace keeps text nodes as is. Otherwise every whitespace
	// run is collapsed into single space and block elements are followed by
	// newline.
	PreserveWhitespace bool
	// Ignore, when set, excludes elements from span creation. Content of
	// ignored elements is still flattened.
	Ignore func(el *etree.Element) bool
	// BlockTags replaces DefaultBlockTags when not nil. HTML block elements
	// (body, div, title...) are block tags regardless.
	BlockTags []string
}

// Result of flattening.
type Result struct {
	Text         string
	Spans        []standoff.Span
	Declarations []standoff.Span
	// SelectorMap maps element selector path to index in Spans.
	SelectorMap map[string]int
}

type visitor struct {
	ix     *xmltree.Index
	opts   Options
	blocks map[string]bool

	buf strings.Builder
	seq int
	res *Result
}

// Flatten traverses root with all its descendants. When root is document
// element itself prolog, epilog and whitespace between them are visited
// too. For any other root only declarations preceding the document root
// element are collected (at offset 0) before root is traversed.
func Flatten(ix *xmltree.Index, root *etree.Element, opts Options) *Result {
	v := &visitor{
		ix:     ix,
		opts:   opts,
		blocks: make(map[string]bool),
		res:    &Result{SelectorMap: make(map[string]int)},
	}
	blockTags := opts.BlockTags
	if blockTags == nil {
		blockTags = DefaultBlockTags
	}
	for _, tag := range blockTags {
		v.blocks[tag] = true
	}

	doc := ix.Document()
	if root == &doc.Element {
		v.document(doc)
	} else {
		v.prolog(doc)
		v.element(root)
	}
	v.res.Text = v.buf.String()
	return v.res
}

func (v *visitor) document(doc *etree.Document) {
	for _, t := range doc.Child {
		switch tok := t.(type) {
		case *etree.Element:
			v.element(tok)
		case *etree.CharData:
			// whitespace around root element only matters for round trip
			if v.opts.PreserveWhitespace {
				v.buf.WriteString(tok.Data)
			}
		default:
			v.declaration(t)
		}
	}
}

func (v *visitor) prolog(doc *etree.Document) {
	for _, t := range doc.Child {
		switch t.(type) {
		case *etree.Element:
			return
		case *etree.CharData:
		default:
			v.declaration(t)
		}
	}
}

func (v *visitor) element(el *etree.Element) {
	ignored := v.opts.Ignore != nil && v.opts.Ignore(el)

	idx := -1
	if !ignored {
		v.seq++
		idx = len(v.res.Spans)
		// slot is reserved on entry, so spans are in document order
		v.res.Spans = append(v.res.Spans, standoff.Span{
			Begin:   v.buf.Len(),
			Enter:   v.seq,
			Payload: v.payload(el),
		})
	}

	for _, t := range el.Child {
		switch tok := t.(type) {
		case *etree.Element:
			v.element(tok)
		case *etree.CharData:
			v.text(tok)
		default:
			v.declaration(t)
		}
	}

	if !ignored {
		v.seq++
		span := &v.res.Spans[idx]
		span.End = v.buf.Len()
		span.Exit = v.seq
		v.res.SelectorMap[span.Element().Selector] = idx
	}
	if !v.opts.PreserveWhitespace && (v.blocks[el.FullTag()] || htmlBlocks[el.FullTag()]) {
		v.buf.WriteByte('\n')
	}
}

func (v *visitor) text(cd *etree.CharData) {
	data := cd.Data
	if !v.opts.PreserveWhitespace {
		data = xmltree.NormalizeSpace(data)
	}
	if !cd.IsCData() {
		v.buf.WriteString(data)
		return
	}
	// CDATA section gets its own span, so it could be written back unescaped
	v.seq++
	span := standoff.Span{Begin: v.buf.Len(), Enter: v.seq, Payload: &standoff.CData{}}
	v.buf.WriteString(data)
	v.seq++
	span.End, span.Exit = v.buf.Len(), v.seq
	v.res.Spans = append(v.res.Spans, span)
}

func (v *visitor) declaration(t etree.Token) {
	var raw string
	switch tok := t.(type) {
	case *etree.ProcInst:
		raw = xmltree.RawProcInst(tok)
	case *etree.Comment:
		raw = xmltree.RawComment(tok)
	case *etree.Directive:
		raw = xmltree.RawDirective(tok)
	default:
		return
	}
	v.seq++
	at := v.buf.Len()
	v.res.Declarations = append(v.res.Declarations, standoff.Span{
		Begin:   at,
		End:     at,
		Enter:   v.seq,
		Exit:    v.seq,
		Payload: &standoff.Declaration{Raw: raw},
	})
}

func (v *visitor) payload(el *etree.Element) *standoff.Element {
	e := &standoff.Element{
		Tag:      el.FullTag(),
		Selector: v.ix.Path(el),
	}
	if len(el.Attr) > 0 {
		e.Attrs = make([]standoff.Attr, 0, len(el.Attr))
		for _, a := range el.Attr {
			e.Attrs = append(e.Attrs, standoff.Attr{Key: a.FullKey(), Value: a.Value})
		}
	}
	e.ID = firstAttr(e.Attrs, "xml:id", "id")
	e.Class = firstAttr(e.Attrs, "class", "type")
	return e
}

func firstAttr(attrs []standoff.Attr, keys ...string) string {
	for _, key := range keys {
		if i := slices.IndexFunc(attrs, func(a standoff.Attr) bool { return a.Key == key }); i >= 0 {
			return attrs[i].Value
		}
	}
	return ""
}
