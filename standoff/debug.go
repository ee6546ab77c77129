package standoff

import (
	"sort"

	"github.com/maruel/natural"

	"sox/utils/debug"
)

type treeWriter struct {
	*debug.TreeWriter
}

// String returns a readable dump of the document: spans with covered text,
// declarations and annotations grouped by type. It exists for manual
// inspection during debugging.
func (d *Document) String() string {
	if d == nil {
		return "<nil Document>"
	}
	tw := treeWriter{debug.NewTreeWriter()}
	tw.MaxText = 80
	return tw.document(d).String()
}

func (tw treeWriter) document(d *Document) treeWriter {
	tw.Line(0, "Document id=%q encoding=%q length=%d", d.ID, d.Encoding, len(d.Text))
	tw.TextBlock(1, "Text", d.Text)
	for i := range d.Declarations {
		tw.Line(1, "Declaration[%d] at=%d", i, d.Declarations[i].Begin)
		if decl := d.Declarations[i].Declaration(); decl != nil {
			tw.TextBlock(2, "Raw", decl.Raw)
		}
	}
	for i := range d.Spans {
		tw.span(1, i, &d.Spans[i], d.Text)
	}
	if d.Annotations != nil {
		tw.annotations(1, d.Annotations, d.Text)
	}
	if d.Registry != nil && d.Registry.Len() > 0 {
		ids := make([]string, 0, d.Registry.Len())
		for id := range d.Registry.entries {
			ids = append(ids, id)
		}
		sort.Sort(natural.StringSlice(ids))
		tw.Line(1, "Registry: %d", len(ids))
		for _, id := range ids {
			e := d.Registry.entries[id]
			tw.Line(2, "%q span=%d annotation=%d", id, e.Span, e.Annotation)
		}
	}
	return tw
}

func (tw treeWriter) span(depth, idx int, s *Span, text string) {
	el := s.Element()
	if el == nil {
		tw.Line(depth, "Span[%d] [%d,%d) kind=%s", idx, s.Begin, s.End, s.Kind())
		return
	}
	tw.Line(depth, "Span[%d] [%d,%d) <%s> seq=%d/%d selector=%q", idx, s.Begin, s.End, el.Tag, s.Enter, s.Exit, el.Selector)
	if el.ID != "" || el.Class != "" {
		tw.Line(depth+1, "id=%q class=%q", el.ID, el.Class)
	}
	if len(el.Attrs) > 0 {
		tw.TextBlock(depth+1, "Attrs", el.AttrText())
	}
	if s.Begin >= 0 && s.Begin <= s.End && s.End <= len(text) && !s.Empty() {
		tw.TextBlock(depth+1, "Covered", text[s.Begin:s.End])
	}
}

func (tw treeWriter) annotations(depth int, store *MemoryStore, text string) {
	for _, typ := range store.Types() {
		list := store.Select(typ)
		tw.Line(depth, "Annotations %q: %d", typ, len(list))
		for _, a := range list {
			tw.Line(depth+1, "#%d [%d,%d)", a.ID, a.Begin, a.End)
			if covered := a.Covered(text); covered != "" {
				tw.TextBlock(depth+2, "Covered", covered)
			}
			keys := make([]string, 0, len(a.Features))
			for k := range a.Features {
				keys = append(keys, k)
			}
			sort.Sort(natural.StringSlice(keys))
			for _, k := range keys {
				tw.TextBlock(depth+2, k, a.Features[k])
			}
		}
	}
}
