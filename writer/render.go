// Package writer rebuilds markup from flattened text and standoff spans.
package writer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"sox/standoff"
)

var (
	// ErrSpanRange is returned when span or window offsets do not fit text.
	ErrSpanRange = errors.New("offsets out of range")
	// ErrNoPayload is returned for spans which do not describe any markup.
	ErrNoPayload = errors.New("span has no payload")
)

type options struct {
	window      bool
	begin       int
	end         int
	encoding    string
	declaration bool
	inline      []string
	tags        TagFactory
}

// Option changes rendering.
type Option func(*options)

// WithWindow limits output to [begin, end) fragment of text. Spans
// overlapping the window are clipped to it, zero width spans are kept when
// they are inside the window or on its boundary. Negative end stands for the
// end of text.
func WithWindow(begin, end int) Option {
	return func(o *options) {
		o.window, o.begin, o.end = true, begin, end
	}
}

// WithEncoding overrides output encoding used by Write. Encoding of the XML
// declaration is changed to match.
func WithEncoding(name string) Option {
	return func(o *options) {
		o.encoding = name
	}
}

// WithXMLDeclaration makes Write start output with XML declaration, adding
// one when document has none.
func WithXMLDeclaration() Option {
	return func(o *options) {
		o.declaration = true
	}
}

// WithInline makes Write render annotations of the listed types instead of
// source elements. Markup comes from tags, nil means FeatureTags.
func WithInline(tags TagFactory, types ...string) Option {
	return func(o *options) {
		o.inline, o.tags = types, tags
		if o.tags == nil {
			o.tags = FeatureTags{}
		}
	}
}

type eventKind int

const (
	evClose eventKind = iota
	evDeclaration
	evEmpty
	evOpen
)

// piece is markup attached to text: a declaration rendered at its offset, or
// an interval rendered with open and close markup (empty markup when zero
// width).
type piece struct {
	begin, end  int
	enter, exit int
	point       bool
	open, close string
	empty       string
	// verbatim text inside is not escaped
	verbatim bool
}

// event is a piece of markup to be inserted at a text offset.
type event struct {
	kind eventKind
	// index of the piece in combined list
	idx int
	p   *piece
	// seq is traversal sequence number of the event, 0 when unknown
	seq int
	// pair is set for zero width element which enclosed other markup in
	// source, it is rendered as open-close pair when sequence is known
	pair bool
}

// Render returns markup for text and spans. Spans and declarations may come
// in any order, declarations are rendered in the order given.
func Render(text string, spans, decls []standoff.Span, opts ...Option) (string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pieces := make([]piece, 0, len(spans)+len(decls))
	for i, s := range slices.Concat(spans, decls) {
		if err := checkRange(text, s.Begin, s.End); err != nil {
			return "", fmt.Errorf("span %d: %w", i, err)
		}
		p, ok := spanPiece(s)
		if !ok {
			return "", fmt.Errorf("span %d [%d,%d): %w", i, s.Begin, s.End, ErrNoPayload)
		}
		pieces = append(pieces, p)
	}
	return render(text, pieces, o)
}

// RenderInline returns text with annotations written as markup produced by
// tags. Annotations are kept properly nested by offsets, those with equal
// extent are opened in the order given. Declarations are rendered as usual.
func RenderInline(text string, annos []*standoff.Annotation, decls []standoff.Span, tags TagFactory, opts ...Option) (string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if tags == nil {
		tags = FeatureTags{}
	}

	pieces := make([]piece, 0, len(annos)+len(decls))
	for _, a := range annos {
		if a == nil {
			continue
		}
		if err := checkRange(text, a.Begin, a.End); err != nil {
			return "", fmt.Errorf("annotation %d (%s): %w", a.ID, a.Type, err)
		}
		pieces = append(pieces, piece{
			begin: a.Begin, end: a.End,
			open: tags.BeginTag(a), close: tags.EndTag(a), empty: tags.EmptyTag(a),
		})
	}
	for i, s := range decls {
		if err := checkRange(text, s.Begin, s.End); err != nil {
			return "", fmt.Errorf("declaration %d: %w", i, err)
		}
		p, ok := spanPiece(s)
		if !ok {
			return "", fmt.Errorf("declaration %d: %w", i, ErrNoPayload)
		}
		pieces = append(pieces, p)
	}
	return render(text, pieces, o)
}

func checkRange(text string, begin, end int) error {
	if begin < 0 || begin > end || end > len(text) {
		return fmt.Errorf("[%d,%d) with text length %d: %w", begin, end, len(text), ErrSpanRange)
	}
	return nil
}

func spanPiece(s standoff.Span) (piece, bool) {
	p := piece{begin: s.Begin, end: s.End, enter: s.Enter, exit: s.Exit}
	switch v := s.Payload.(type) {
	case *standoff.Declaration:
		p.point, p.open = true, v.Raw
	case *standoff.Element:
		attrs := v.AttrText()
		p.open = "<" + v.Tag + attrs + ">"
		p.close = "</" + v.Tag + ">"
		p.empty = "<" + v.Tag + attrs + "/>"
	case *standoff.CData:
		p.open, p.close, p.empty = "<![CDATA[", "]]>", "<![CDATA[]]>"
		p.verbatim = true
	default:
		return piece{}, false
	}
	return p, true
}

func render(text string, pieces []piece, o options) (string, error) {
	if o.window {
		if o.end < 0 {
			o.end = len(text)
		}
		if o.begin < 0 || o.begin > o.end || o.end > len(text) {
			return "", fmt.Errorf("window [%d,%d) with text length %d: %w", o.begin, o.end, len(text), ErrSpanRange)
		}
		text, pieces = rebase(text, pieces, o.begin, o.end)
	}

	index := buildIndex(pieces)

	offsets := make([]int, 0, len(index))
	for at := range index {
		offsets = append(offsets, at)
	}
	slices.Sort(offsets)

	// walking offsets down from the end, everything above current offset is
	// already final
	chunks := make([]string, 0, 2*len(offsets)+1)
	pos := len(text)
	for i := len(offsets) - 1; i >= 0; i-- {
		at := offsets[i]
		chunks = append(chunks, escape(text, at, pos, pieces), markup(order(index[at])))
		pos = at
	}
	chunks = append(chunks, escape(text, 0, pos, pieces))
	slices.Reverse(chunks)
	return strings.Join(chunks, ""), nil
}

// escape returns text[begin:end]. Every piece boundary is an index offset,
// so the fragment is either completely inside verbatim piece or outside of
// all of them.
func escape(text string, begin, end int, pieces []piece) string {
	if begin == end {
		return ""
	}
	for i := range pieces {
		if p := &pieces[i]; p.verbatim && p.begin <= begin && end <= p.end {
			return text[begin:end]
		}
	}
	return standoff.EscapeText(text[begin:end])
}

func rebase(text string, pieces []piece, begin, end int) (string, []piece) {
	kept := make([]piece, 0, len(pieces))
	for _, p := range pieces {
		empty := p.begin == p.end
		switch {
		case empty && begin <= p.begin && p.begin <= end:
		case !empty && p.begin < end && p.end > begin:
		default:
			continue
		}
		p.begin = max(p.begin, begin) - begin
		p.end = min(p.end, end) - begin
		kept = append(kept, p)
	}
	return text[begin:end], kept
}

func buildIndex(pieces []piece) map[int][]event {
	index := make(map[int][]event)
	for i := range pieces {
		p := &pieces[i]
		switch {
		case p.point:
			index[p.begin] = append(index[p.begin], event{kind: evDeclaration, idx: i, p: p, seq: p.enter})
		case p.begin == p.end:
			index[p.begin] = append(index[p.begin], event{
				kind: evEmpty, idx: i, p: p, seq: p.enter,
				pair: p.enter > 0 && p.exit > p.enter+1,
			})
		default:
			index[p.begin] = append(index[p.begin], event{kind: evOpen, idx: i, p: p, seq: p.enter})
			index[p.end] = append(index[p.end], event{kind: evClose, idx: i, p: p, seq: p.exit})
		}
	}
	return index
}

// order sorts events happening at the same offset. When all of them come
// from traversal their sequence numbers give exact source order. Otherwise
// markup is ordered to keep elements properly nested: closing tags first,
// innermost element first, then declarations, then empty elements, then
// opening tags, outermost element first.
func order(events []event) []event {
	if sequenced(events) {
		expanded := make([]event, 0, len(events))
		for _, ev := range events {
			if ev.kind == evEmpty && ev.pair {
				expanded = append(expanded,
					event{kind: evOpen, idx: ev.idx, p: ev.p, seq: ev.p.enter},
					event{kind: evClose, idx: ev.idx, p: ev.p, seq: ev.p.exit},
				)
				continue
			}
			expanded = append(expanded, ev)
		}
		slices.SortStableFunc(expanded, func(a, b event) int { return a.seq - b.seq })
		return expanded
	}

	slices.SortStableFunc(events, func(a, b event) int {
		if a.kind != b.kind {
			return int(a.kind) - int(b.kind)
		}
		switch a.kind {
		case evClose:
			if a.p.begin != b.p.begin {
				return b.p.begin - a.p.begin
			}
			return b.idx - a.idx
		case evOpen:
			if a.p.end != b.p.end {
				return b.p.end - a.p.end
			}
			return a.idx - b.idx
		default:
			return a.idx - b.idx
		}
	})
	return events
}

func sequenced(events []event) bool {
	for _, ev := range events {
		if ev.seq <= 0 {
			return false
		}
	}
	return true
}

func markup(events []event) string {
	var b strings.Builder
	for _, ev := range events {
		switch ev.kind {
		case evOpen, evDeclaration:
			b.WriteString(ev.p.open)
		case evClose:
			b.WriteString(ev.p.close)
		case evEmpty:
			b.WriteString(ev.p.empty)
		}
	}
	return b.String()
}
