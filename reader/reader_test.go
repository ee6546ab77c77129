package reader

import (
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/language"

	"sox/segment"
	"sox/standoff"
	"sox/writer"
	"sox/xmltree"
)

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
}

func mustRead(t *testing.T, r *Reader, xml string) *standoff.Document {
	t.Helper()

	doc, err := r.Read(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return doc
}

func posValue(a *standoff.Annotation, el *etree.Element) {
	if v := el.SelectAttrValue("pos", ""); v != "" {
		a.Set("pos", v)
	}
}

func ignoreC(el *etree.Element) bool { return strings.EqualFold(el.Tag, "c") }

func TestReadSimpleSentence(t *testing.T) {
	r := New(WithLogger(testLogger(t)))
	r.AddRule("det", "POS_DET", nil)
	r.AddRule("s", "Sentence", nil)
	r.AddRule("noun", "POS_NOUN", nil)
	r.AddRule("verb", "POS_VERB", nil)

	doc := mustRead(t, r, `<s><det>the</det> <noun>dog</noun> <verb>barks</verb></s>`)
	if doc.Text != "the dog barks" {
		t.Fatalf("unexpected text %q", doc.Text)
	}
	want := map[string][2]int{
		"Sentence": {0, 13},
		"POS_DET":  {0, 3},
		"POS_NOUN": {4, 7},
		"POS_VERB": {8, 13},
	}
	for typ, w := range want {
		got := doc.Select(typ)
		if len(got) != 1 || got[0].Begin != w[0] || got[0].End != w[1] {
			t.Fatalf("%s: expected [%d,%d), got %+v", typ, w[0], w[1], got)
		}
	}
	if doc.ID == "" || doc.Encoding != "UTF-8" {
		t.Fatalf("unexpected document id %q encoding %q", doc.ID, doc.Encoding)
	}
}

func TestReadCallbacks(t *testing.T) {
	r := New(WithLogger(testLogger(t)))
	r.AddRule("s", "Sentence", nil)
	r.AddRule("pos", "POS", posValue)

	doc := mustRead(t, r, `<text><s><pos pos="det">the</pos> <pos pos="nn">dog</pos> <pos pos="v">barks</pos></s> <s><pos>The</pos> <pos>cat</pos> <pos>too</pos></s></text>`)
	if doc.Text != "the dog barks The cat too" {
		t.Fatalf("unexpected text %q", doc.Text)
	}
	if n := len(doc.Select("Sentence")); n != 2 {
		t.Fatalf("expected 2 sentences, got %d", n)
	}
	pos := doc.Select("POS")
	if len(pos) != 6 {
		t.Fatalf("expected 6 POS, got %d", len(pos))
	}
	if pos[0].Get("pos") != "det" || pos[1].Get("pos") != "nn" || pos[3].Get("pos") != "" {
		t.Fatalf("unexpected pos values %v %v %v", pos[0].Features, pos[1].Features, pos[3].Features)
	}
}

func TestReadTextRootAndGlobalRule(t *testing.T) {
	r := New(WithTextRoot("text > body"), WithLogger(testLogger(t)))
	r.AddGlobalRule("text > head > title:first-child", func(a *standoff.Annotation, el *etree.Element) {
		a.Set("title", xmltree.Text(el))
	})
	r.AddRule("s", "Sentence", nil)
	r.AddRule("pos", "POS", posValue)

	doc := mustRead(t, r, `<text><head><title>The Dog Story</title><title>bla</title></head><body><s><pos pos="det">the</pos> <pos pos="nn">dog</pos> <pos pos="v">barks</pos></s> <s><pos>The</pos> <pos>cat</pos> <pos>too</pos></s></body></text>`)
	if doc.Text != "the dog barks The cat too\n" {
		t.Fatalf("unexpected text %q", doc.Text)
	}
	if n := len(doc.Select("Sentence")); n != 2 {
		t.Fatalf("expected 2 sentences, got %d", n)
	}
	if n := len(doc.Select("POS")); n != 6 {
		t.Fatalf("expected 6 POS, got %d", n)
	}
	meta := doc.Select(DefaultDocumentType)
	if len(meta) != 1 || meta[0].Get("title") != "The Dog Story" {
		t.Fatalf("unexpected document metadata %+v", meta)
	}
}

func TestReadTextRootPreserving(t *testing.T) {
	r := New(WithTextRoot("text > body"), WithPreserveWhitespace(true), WithLogger(testLogger(t)))
	r.AddRule("w", "Token", nil)

	doc := mustRead(t, r, "<text>\n<head><title>Head text</title></head>\n<body>  <w>dog</w>\n</body></text>")
	if doc.Text != "  dog\n" {
		t.Fatalf("text must start at body, got %q", doc.Text)
	}
	tokens := doc.Select("Token")
	if len(tokens) != 1 || tokens[0].Begin != 2 || tokens[0].End != 5 {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if strings.Contains(doc.Text, "Head") {
		t.Fatalf("head content leaked into text")
	}
}

func TestReadDeclarations(t *testing.T) {
	src := "<?xml encoding=\"UTF-8\"?>\n<?xml-stylesheet type=\"text/css\" href=\"../schema/tei.css\"?>\n<text>\n<head>\n<title>The Dog Story</title><title>bla</title></head><body><s><pos pos=\"det\">the</pos> <pos pos=\"nn\">dog</pos> <pos pos=\"v\">barks</pos></s> <s><pos>The</pos> <pos>cat</pos> <pos>too</pos></s></body></text>"
	r := New(WithPreserveWhitespace(true), WithLogger(testLogger(t)))
	r.AddRule("title", "Sentence", nil)
	r.AddRule("s", "Sentence", nil)
	r.AddRule("pos", "POS", posValue)

	doc := mustRead(t, r, src)
	if len(doc.Declarations) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(doc.Declarations))
	}
	if !strings.HasPrefix(doc.Text, "\n\n\n\nT") {
		t.Fatalf("unexpected text start %q", doc.Text[:5])
	}
	sentences := doc.Select("Sentence")
	if len(sentences) != 4 || sentences[0].Begin != 4 {
		t.Fatalf("unexpected sentences %+v", sentences)
	}
	pos := doc.Select("POS")
	if len(pos) != 6 || pos[0].Get("pos") != "det" || pos[1].Get("pos") != "nn" {
		t.Fatalf("unexpected POS %+v", pos)
	}

	out, err := writer.Render(doc.Text, doc.Spans, doc.Declarations)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != src {
		t.Fatalf("round trip mismatch\nexpected %q\ngot      %q", src, out)
	}
}

func TestReadIgnored(t *testing.T) {
	src := `<TEI><teiHeader></teiHeader><body><s><det><c>t</c><c>h</c><c>e</c></det><c> </c><noun><c>d</c><c>o</c><c>g</c></noun> <verb>barks</verb></s></body></TEI>`
	for _, preserve := range []bool{false, true} {
		r := New(WithIgnore(ignoreC), WithPreserveWhitespace(preserve), WithLogger(testLogger(t)))
		r.AddRule("det", "POS_DET", nil)
		r.AddRule("s", "Sentence", nil)
		r.AddRule("noun", "POS_NOUN", nil)
		r.AddRule("verb", "POS_VERB", nil)

		doc := mustRead(t, r, src)
		want := "the dog barks"
		if !preserve {
			// body is a block element
			want += "\n"
		}
		if doc.Text != want {
			t.Fatalf("preserve=%v: unexpected text %q", preserve, doc.Text)
		}
		for _, typ := range []string{"POS_DET", "Sentence", "POS_NOUN", "POS_VERB"} {
			if len(doc.Select(typ)) != 1 {
				t.Fatalf("preserve=%v: expected %s", preserve, typ)
			}
		}
		for _, s := range doc.Spans {
			if s.Element().Tag == "c" {
				t.Fatalf("ignored element has span")
			}
		}
	}
}

func TestReadEmptyElements(t *testing.T) {
	src := `<TEI><teiHeader><date lang="xx"/></teiHeader><body><s><det><c>t</c><c>h</c><c>e</c></det><c> </c><noun><c>d</c><c>o</c><c>g</c></noun> <verb>barks</verb></s></body></TEI>`
	r := New(
		WithPreserveWhitespace(true),
		WithTextRoot("TEI > body"),
		WithIgnore(ignoreC),
		WithLogger(testLogger(t)),
	)
	r.AddRule("det", "POS_DET", nil)
	r.AddRule("s", "Sentence", nil)
	r.AddRule("noun", "POS_NOUN", nil)
	r.AddRule("verb", "POS_VERB", nil)
	r.AddGlobalRule("teiHeader > date", func(a *standoff.Annotation, el *etree.Element) {
		a.Set("language", el.SelectAttrValue("lang", ""))
	})

	doc := mustRead(t, r, src)
	if doc.Text != "the dog barks" {
		t.Fatalf("unexpected text %q", doc.Text)
	}
	meta := doc.Select(DefaultDocumentType)
	if len(meta) != 1 || meta[0].Get("language") != "xx" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestReadIgnoredRuleWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(WithIgnore(ignoreC), WithLogger(zap.New(core)))
	r.AddRule("c", "Char", nil)
	r.AddRule("w", "Token", nil)

	doc := mustRead(t, r, `<w><c>a</c><c>b</c></w>`)
	if len(doc.Select("Char")) != 0 || len(doc.Select("Token")) != 1 {
		t.Fatalf("unexpected annotations")
	}
	if logs.Len() != 2 {
		t.Fatalf("expected 2 warnings, got %d", logs.Len())
	}
}

func TestReadRegistry(t *testing.T) {
	r := New(WithLogger(testLogger(t)))
	r.AddRule("w", "Token", nil)

	doc := mustRead(t, r, `<s><w xml:id="a">one</w> <w xml:id="a">two</w> <w xml:id="b">three</w> <w id="c">four</w></s>`)
	if !doc.Exists("a") || !doc.Exists("b") || !doc.Exists("c") || doc.Exists("d") {
		t.Fatalf("unexpected registry content")
	}
	span, anno, ok := doc.Lookup("a")
	if !ok || anno == nil {
		t.Fatalf("lookup failed")
	}
	if span.Begin != 0 || span.End != 3 || anno.Covered(doc.Text) != "one" {
		t.Fatalf("first registration must win, got [%d,%d) %q", span.Begin, span.End, anno.Covered(doc.Text))
	}
	if _, anno, ok := doc.Lookup("c"); !ok || anno.Covered(doc.Text) != "four" {
		t.Fatalf("element with plain id must be registered")
	}
}

func TestReadErrors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		_, err := New().Read(strings.NewReader(`<a><b></a>`))
		if err == nil {
			t.Fatalf("expected parse error")
		}
	})
	t.Run("root not found", func(t *testing.T) {
		_, err := New(WithTextRoot("TEI > text")).Read(strings.NewReader(`<TEI><body/></TEI>`))
		if !errors.Is(err, ErrRootNotFound) {
			t.Fatalf("expected ErrRootNotFound, got %v", err)
		}
	})
	t.Run("invalid selector", func(t *testing.T) {
		r := New()
		r.AddRule("s[", "Sentence", nil)
		if _, err := r.Read(strings.NewReader(`<s/>`)); err == nil {
			t.Fatalf("expected selector error")
		}
	})
}

func TestReadUniqueIdempotence(t *testing.T) {
	r := New(WithLogger(testLogger(t)))
	r.AddGlobalRule("w", nil)
	r.AddRule("w", "Token", nil)

	doc := mustRead(t, r, `<s><w>a</w> <w>b</w> <w>c</w> <w>d</w></s>`)
	if n := len(doc.Select(DefaultDocumentType)); n != 1 {
		t.Fatalf("expected single unique annotation, got %d", n)
	}
	tokens := doc.Select("Token")
	if len(tokens) != 4 {
		t.Fatalf("expected annotation per match, got %d", len(tokens))
	}
	for i, a := range tokens {
		span := doc.Spans[i+1]
		if a.Begin != span.Begin || a.End != span.End {
			t.Fatalf("token %d [%d,%d) does not match span [%d,%d)", i, a.Begin, a.End, span.Begin, span.End)
		}
	}
}

func TestReadSentences(t *testing.T) {
	r := New(WithSentences(segment.NewSplitter(language.English, testLogger(t))), WithLogger(testLogger(t)))

	doc := mustRead(t, r, `<p>The dog barks. The cat sleeps.</p>`)
	sentences := doc.Select(segment.SentenceType)
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(sentences))
	}
	if sentences[1].End != len(doc.Text) {
		t.Fatalf("sentences must cover text, got %+v", sentences[1])
	}
}

func TestReadCustomStore(t *testing.T) {
	var created []*standoff.MemoryStore
	r := New(WithStore(func() standoff.Store {
		s := standoff.NewMemoryStore()
		created = append(created, s)
		return s
	}))
	r.AddRule("w", "Token", nil)

	mustRead(t, r, `<w>a</w>`)
	mustRead(t, r, `<w>b</w>`)
	if len(created) != 2 || created[0].Len() != 1 || created[1].Len() != 1 {
		t.Fatalf("store must be created per read")
	}
}
