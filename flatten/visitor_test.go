package flatten

import (
	"strings"
	"testing"

	"github.com/beevik/etree"

	"sox/standoff"
	"sox/xmltree"
)

func mustIndex(t *testing.T, xml string) *xmltree.Index {
	t.Helper()

	doc, err := xmltree.Parse(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("parse xml: %v", err)
	}
	return xmltree.NewIndex(doc)
}

func flattenAll(t *testing.T, xml string, opts Options) *Result {
	t.Helper()

	ix := mustIndex(t, xml)
	return Flatten(ix, &ix.Document().Element, opts)
}

type spanWant struct {
	tag        string
	begin, end int
}

func checkSpans(t *testing.T, got []standoff.Span, want []spanWant) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %d spans, got %d", len(want), len(got))
	}
	for i, w := range want {
		el := got[i].Element()
		if el == nil {
			t.Fatalf("span %d is not an element", i)
		}
		if el.Tag != w.tag || got[i].Begin != w.begin || got[i].End != w.end {
			t.Fatalf("span %d: expected %s [%d,%d), got %s [%d,%d)", i, w.tag, w.begin, w.end, el.Tag, got[i].Begin, got[i].End)
		}
	}
}

func TestFlattenSimpleSentence(t *testing.T) {
	res := flattenAll(t, `<s><det>the</det> <noun>dog</noun> <verb>barks</verb></s>`, Options{})

	if res.Text != "the dog barks" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	checkSpans(t, res.Spans, []spanWant{
		{"s", 0, 13},
		{"det", 0, 3},
		{"noun", 4, 7},
		{"verb", 8, 13},
	})
	if len(res.Declarations) != 0 {
		t.Fatalf("expected no declarations, got %d", len(res.Declarations))
	}
}

func TestFlattenSelectorMap(t *testing.T) {
	res := flattenAll(t, `<s><w>a</w> <w>b</w></s>`, Options{})

	if len(res.SelectorMap) != len(res.Spans) {
		t.Fatalf("selector map has %d entries for %d spans", len(res.SelectorMap), len(res.Spans))
	}
	for sel, idx := range res.SelectorMap {
		if got := res.Spans[idx].Element().Selector; got != sel {
			t.Fatalf("selector %q maps to span with selector %q", sel, got)
		}
	}
	idx, ok := res.SelectorMap["s > w:nth-child(2)"]
	if !ok {
		t.Fatalf("second word not in selector map: %v", res.SelectorMap)
	}
	if s := res.Spans[idx]; s.Begin != 2 || s.End != 3 {
		t.Fatalf("unexpected second word span [%d,%d)", s.Begin, s.End)
	}
}

func TestFlattenWhitespace(t *testing.T) {
	src := "<TEI>\n  <sp>\n    <l>one  two</l>\n    <l>three</l>\n  </sp>\n  <x>four</x>\n</TEI>"

	t.Run("collapsed", func(t *testing.T) {
		res := flattenAll(t, src, Options{})
		want := " " + " " + "one two" + "\n" + " " + "three" + "\n" + " " + "\n" + " " + "four" + " "
		if res.Text != want {
			t.Fatalf("expected %q, got %q", want, res.Text)
		}
		if n := strings.Count(res.Text, "\n"); n != 3 {
			t.Fatalf("expected newline after each block element only, got %d", n)
		}
	})

	t.Run("preserved", func(t *testing.T) {
		res := flattenAll(t, src, Options{PreserveWhitespace: true})
		want := "\n  \n    one  two\n    three\n  \n  four\n"
		if res.Text != want {
			t.Fatalf("expected %q, got %q", want, res.Text)
		}
	})

	t.Run("custom block tags", func(t *testing.T) {
		res := flattenAll(t, `<r><x>a</x><l>b</l></r>`, Options{BlockTags: []string{"x"}})
		if res.Text != "a\nb" {
			t.Fatalf("unexpected text %q", res.Text)
		}
	})

	t.Run("html block tags", func(t *testing.T) {
		res := flattenAll(t, `<text><body><s>a</s></body></text>`, Options{})
		if res.Text != "a\n" {
			t.Fatalf("unexpected text %q", res.Text)
		}
		checkSpans(t, res.Spans, []spanWant{{"text", 0, 2}, {"body", 0, 1}, {"s", 0, 1}})
	})
}

func TestFlattenIgnored(t *testing.T) {
	src := `<s><det><c>t</c><c>h</c><c>e</c></det><c> </c><noun><c>d</c><c>o</c><c>g</c></noun> <verb>barks</verb></s>`
	res := flattenAll(t, src, Options{
		Ignore: func(el *etree.Element) bool { return el.Tag == "c" },
	})

	if res.Text != "the dog barks" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	checkSpans(t, res.Spans, []spanWant{
		{"s", 0, 13},
		{"det", 0, 3},
		{"noun", 4, 7},
		{"verb", 8, 13},
	})
	if len(res.SelectorMap) != 4 {
		t.Fatalf("ignored elements must not be in selector map: %v", res.SelectorMap)
	}
}

func TestFlattenDeclarations(t *testing.T) {
	src := "<?xml version=\"1.0\"?>\n<?xml-stylesheet href=\"a.css\"?>\n<!DOCTYPE r>\n<r>a<!-- c -->b<?pi x?></r>\n<!-- tail -->"
	res := flattenAll(t, src, Options{PreserveWhitespace: true})

	if res.Text != "\n\n\nab\n" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	want := []struct {
		raw string
		at  int
	}{
		{`<?xml version="1.0"?>`, 0},
		{`<?xml-stylesheet href="a.css"?>`, 1},
		{`<!DOCTYPE r>`, 2},
		{`<!-- c -->`, 4},
		{`<?pi x?>`, 5},
		{`<!-- tail -->`, 6},
	}
	if len(res.Declarations) != len(want) {
		t.Fatalf("expected %d declarations, got %d", len(want), len(res.Declarations))
	}
	prev := 0
	for i, w := range want {
		d := res.Declarations[i]
		if d.Declaration() == nil || d.Declaration().Raw != w.raw || d.Begin != w.at || !d.Empty() {
			t.Fatalf("declaration %d: expected %q at %d, got %+v", i, w.raw, w.at, d)
		}
		if d.Enter <= prev {
			t.Fatalf("declaration %d sequence %d not increasing", i, d.Enter)
		}
		prev = d.Enter
	}
}

func TestFlattenTextRoot(t *testing.T) {
	src := "<?xml version=\"1.0\"?>\n<text>\n<head><title>T</title></head><body><s>the <w>dog</w></s></body></text>"
	ix := mustIndex(t, src)
	body := ix.Document().FindElement("//body")

	res := Flatten(ix, body, Options{PreserveWhitespace: true})
	if res.Text != "the dog" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	checkSpans(t, res.Spans, []spanWant{{"body", 0, 7}, {"s", 0, 7}, {"w", 4, 7}})
	if len(res.Declarations) != 1 || res.Declarations[0].Begin != 0 {
		t.Fatalf("expected prolog declaration at 0, got %+v", res.Declarations)
	}
	if _, ok := res.SelectorMap["text > head:nth-child(1) > title:nth-child(1)"]; ok {
		t.Fatalf("element outside text root has span")
	}
	if _, ok := res.SelectorMap["text > body:nth-child(2) > s:nth-child(1) > w:nth-child(1)"]; !ok {
		t.Fatalf("selector paths must be absolute: %v", res.SelectorMap)
	}
}

func TestFlattenSpanPayload(t *testing.T) {
	res := flattenAll(t, `<r><a xml:id="x1" id="y" type="t">a</a><b id="y2" class="c" type="t">b</b><e/></r>`, Options{})

	a, b, e := res.Spans[1], res.Spans[2], res.Spans[3]
	if el := a.Element(); el.ID != "x1" || el.Class != "t" || len(el.Attrs) != 3 || el.Attrs[0].Key != "xml:id" {
		t.Fatalf("unexpected payload %+v", el)
	}
	if el := b.Element(); el.ID != "y2" || el.Class != "c" {
		t.Fatalf("unexpected payload %+v", el)
	}
	if !e.Empty() || e.Begin != 2 {
		t.Fatalf("expected zero width span at 2, got [%d,%d)", e.Begin, e.End)
	}
	if e.Exit != e.Enter+1 {
		t.Fatalf("empty element must have adjacent sequence numbers, got %d/%d", e.Enter, e.Exit)
	}
	if r := res.Spans[0]; r.Enter != 1 || r.Exit != 8 {
		t.Fatalf("unexpected root sequence %d/%d", r.Enter, r.Exit)
	}
}

func TestFlattenCData(t *testing.T) {
	res := flattenAll(t, `<r>a<![CDATA[<b> & c]]><w>d</w></r>`, Options{PreserveWhitespace: true})

	if res.Text != "a<b> & cd" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if len(res.Spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(res.Spans))
	}
	cd := res.Spans[1]
	if !cd.CData() || cd.Kind() != standoff.KindCData || cd.Element() != nil {
		t.Fatalf("expected cdata span, got %s", cd.Kind())
	}
	if cd.Begin != 1 || cd.End != 8 {
		t.Fatalf("expected cdata span [1,8), got [%d,%d)", cd.Begin, cd.End)
	}
	if cd.Enter >= cd.Exit || cd.Exit >= res.Spans[2].Enter {
		t.Fatalf("unexpected sequence %d/%d", cd.Enter, cd.Exit)
	}
	if len(res.SelectorMap) != 2 {
		t.Fatalf("cdata must not be addressable by selector: %v", res.SelectorMap)
	}
}
