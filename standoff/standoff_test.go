package standoff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/amazon-ion/ion-go/ion"
	yaml "gopkg.in/yaml.v3"
)

func sampleDocument() *Document {
	store := NewMemoryStore()
	d := &Document{
		ID:       "doc-1",
		Encoding: "UTF-8",
		Text:     "The dog",
		Spans: []Span{
			{Begin: 0, End: 7, Enter: 2, Exit: 9, Payload: &Element{Tag: "s", Selector: "s:nth-child(1)"}},
			{Begin: 0, End: 3, Enter: 3, Exit: 4, Payload: &Element{Tag: "w", ID: "w1", Attrs: []Attr{{Key: "xml:id", Value: "w1"}}, Selector: "s:nth-child(1) > w:nth-child(1)"}},
			{Begin: 4, End: 7, Enter: 5, Exit: 6, Payload: &Element{Tag: "w", Class: "noun", Attrs: []Attr{{Key: "type", Value: "noun"}}, Selector: "s:nth-child(1) > w:nth-child(2)"}},
		},
		Declarations: []Span{{Begin: 0, End: 0, Enter: 1, Payload: &Declaration{Raw: "<!-- c -->"}}},
		SelectorMap: map[string]int{
			"s:nth-child(1)":                  0,
			"s:nth-child(1) > w:nth-child(1)": 1,
			"s:nth-child(1) > w:nth-child(2)": 2,
		},
		Store:       store,
		Annotations: store,
		Registry:    NewRegistry(),
	}
	a := store.Create("Token")
	a.Begin, a.End = 0, 3
	a.Set("pos", "DT")
	d.Registry.Register("w1", Entry{Span: 1, Annotation: a.ID})
	return d
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.First("Token"); ok {
		t.Fatal("expected empty store")
	}
	a := s.Create("Token")
	b := s.Create("Sentence")
	c := s.Create("Token")

	if first, ok := s.First("Token"); !ok || first != a {
		t.Errorf("First() = %v, want %v", first, a)
	}
	if got, ok := s.Get(b.ID); !ok || got != b {
		t.Errorf("Get(%d) = %v", b.ID, got)
	}
	if _, ok := s.Get(-1); ok {
		t.Error("Get(-1) must fail")
	}
	if _, ok := s.Get(3); ok {
		t.Error("Get(3) must fail")
	}
	if got := s.Select("Token"); len(got) != 2 || got[0] != a || got[1] != c {
		t.Errorf("Select() = %v", got)
	}
	if got := strings.Join(s.Types(), ","); got != "Sentence,Token" {
		t.Errorf("Types() = %s", got)
	}
	if s.Len() != 3 || len(s.All()) != 3 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestAnnotationFeatures(t *testing.T) {
	var a Annotation
	if a.Get("x") != "" {
		t.Error("expected empty feature")
	}
	a.Set("x", "1")
	if a.Get("x") != "1" {
		t.Errorf("Get() = %q", a.Get("x"))
	}

	a.Begin, a.End = 4, 7
	if got := a.Covered("The dog"); got != "dog" {
		t.Errorf("Covered() = %q", got)
	}
	a.End = 100
	if got := a.Covered("The dog"); got != "" {
		t.Errorf("Covered() out of range = %q", got)
	}
}

func TestRegistryFirstWins(t *testing.T) {
	r := NewRegistry()
	if !r.Register("a", Entry{Span: 1, Annotation: 2}) {
		t.Fatal("first registration must succeed")
	}
	if r.Register("a", Entry{Span: 5, Annotation: 6}) {
		t.Error("duplicate registration must be ignored")
	}
	if e, ok := r.Lookup("a"); !ok || e.Span != 1 || e.Annotation != 2 {
		t.Errorf("Lookup() = %+v", e)
	}
	if r.Exists("b") || r.Len() != 1 {
		t.Errorf("unexpected registry state")
	}
}

func TestDocumentLookup(t *testing.T) {
	d := sampleDocument()

	if !d.Exists("w1") || d.Exists("w2") {
		t.Error("unexpected Exists() result")
	}
	span, anno, ok := d.Lookup("w1")
	if !ok {
		t.Fatal("Lookup() failed")
	}
	if span.Element().Tag != "w" || d.Text[span.Begin:span.End] != "The" {
		t.Errorf("unexpected span %+v", span)
	}
	if anno == nil || anno.Get("pos") != "DT" {
		t.Errorf("unexpected annotation %+v", anno)
	}
	if s, ok := d.SpanFor("s:nth-child(1) > w:nth-child(2)"); !ok || s.Element().Class != "noun" {
		t.Errorf("SpanFor() = %+v", s)
	}
	if _, ok := d.SpanFor("p"); ok {
		t.Error("SpanFor() for unknown selector must fail")
	}
	if len(d.Select("Token")) != 1 {
		t.Error("Select() must return token annotation")
	}

	var empty Document
	if empty.Exists("w1") || empty.Select("Token") != nil {
		t.Error("empty document must have nothing")
	}
	if _, _, ok := empty.Lookup("w1"); ok {
		t.Error("empty document lookup must fail")
	}
}

func TestSpanHelpers(t *testing.T) {
	d := sampleDocument()
	outer, inner := d.Spans[0], d.Spans[1]

	if !outer.Contains(inner) || inner.Contains(outer) {
		t.Error("unexpected Contains() result")
	}
	if outer.Kind() != KindElement || d.Declarations[0].Kind() != KindDeclaration {
		t.Error("unexpected Kind()")
	}
	if d.Declarations[0].Element() != nil || outer.Declaration() != nil {
		t.Error("payload accessors must not cross kinds")
	}
	if !d.Declarations[0].Empty() || outer.Empty() {
		t.Error("unexpected Empty() result")
	}
	if v, ok := inner.Element().Attr("xml:id"); !ok || v != "w1" {
		t.Errorf("Attr() = %q", v)
	}

	el := &Element{Tag: "a", Attrs: []Attr{{Key: "href", Value: `x?a=1&b="2"`}, {Key: "n", Value: "<"}}}
	if got := el.AttrText(); got != ` href="x?a=1&amp;b=&quot;2&quot;" n="&lt;"` {
		t.Errorf("AttrText() = %s", got)
	}
	if got := EscapeText(`a < b & "c" > d ]]>`); got != `a &lt; b &amp; "c" > d ]]&gt;` {
		t.Errorf("EscapeText() = %s", got)
	}
	cd := Span{Begin: 1, End: 2, Payload: &CData{}}
	if !cd.CData() || cd.Kind() != KindCData || outer.CData() {
		t.Error("unexpected CData() result")
	}
	if KindDeclaration.String() != "declaration" || KindCData.String() != "cdata" || Kind(7).String() != "unknown" {
		t.Error("unexpected Kind names")
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    ExportFormat
		wantErr bool
	}{
		{"yaml", ExportYAML, false},
		{"ION", ExportIon, false},
		{"ion-binary", ExportIonBinary, false},
		{"json", ExportYAML, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExportFormat(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExportFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseExportFormat() = %v, want %v", got, tt.want)
			}
		})
	}
	if ExportFormat(9).String() != "ExportFormat(9)" {
		t.Errorf("unexpected name %s", ExportFormat(9))
	}
	if strings.Join(ExportFormatNames(), ",") != "yaml,ion,ion-binary" {
		t.Errorf("ExportFormatNames() = %v", ExportFormatNames())
	}
}

func TestMarshalYAML(t *testing.T) {
	d := sampleDocument()
	d.Spans = append(d.Spans, Span{Begin: 4, End: 7, Enter: 5, Exit: 6, Payload: &CData{}})
	data, err := Marshal(d, ExportYAML)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out struct {
		ID           string `yaml:"id"`
		Text         string `yaml:"text"`
		Declarations []struct {
			At  int    `yaml:"at"`
			Raw string `yaml:"raw"`
		} `yaml:"declarations"`
		Spans []struct {
			Begin int    `yaml:"begin"`
			End   int    `yaml:"end"`
			Tag   string `yaml:"tag"`
			ID    string `yaml:"id"`
		} `yaml:"spans"`
		CData []struct {
			Begin int `yaml:"begin"`
			End   int `yaml:"end"`
		} `yaml:"cdata"`
		Annotations []Annotation `yaml:"annotations"`
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("exported YAML does not parse: %v\n%s", err, data)
	}
	if out.ID != "doc-1" || out.Text != "The dog" {
		t.Errorf("unexpected header %+v", out)
	}
	if len(out.Declarations) != 1 || out.Declarations[0].Raw != "<!-- c -->" {
		t.Errorf("unexpected declarations %+v", out.Declarations)
	}
	if len(out.Spans) != 3 || out.Spans[1].ID != "w1" || out.Spans[2].Begin != 4 {
		t.Errorf("unexpected spans %+v", out.Spans)
	}
	if len(out.CData) != 1 || out.CData[0].Begin != 4 || out.CData[0].End != 7 {
		t.Errorf("unexpected cdata %+v", out.CData)
	}
	if len(out.Annotations) != 1 || out.Annotations[0].Features["pos"] != "DT" {
		t.Errorf("unexpected annotations %+v", out.Annotations)
	}
}

func TestMarshalIon(t *testing.T) {
	d := sampleDocument()

	text, err := Marshal(d, ExportIon)
	if err != nil {
		t.Fatalf("Marshal(ion) error = %v", err)
	}
	if !strings.Contains(string(text), `"The dog"`) {
		t.Errorf("text not found in Ion output:\n%s", text)
	}

	bin, err := Marshal(d, ExportIonBinary)
	if err != nil {
		t.Fatalf("Marshal(ion-binary) error = %v", err)
	}
	if !bytes.HasPrefix(bin, []byte{0xE0, 0x01, 0x00, 0xEA}) {
		t.Errorf("missing Ion binary version marker: % x", bin[:min(4, len(bin))])
	}

	var back struct {
		ID   string `ion:"id"`
		Text string `ion:"text"`
	}
	if err := ion.Unmarshal(bin, &back); err != nil {
		t.Fatalf("binary Ion does not decode: %v", err)
	}
	if back.ID != "doc-1" || back.Text != "The dog" {
		t.Errorf("unexpected decoded value %+v", back)
	}
}

func TestMarshalErrors(t *testing.T) {
	if _, err := Marshal(nil, ExportYAML); err == nil {
		t.Error("expected error for nil document")
	}
	if _, err := Marshal(sampleDocument(), ExportFormat(9)); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestDocumentString(t *testing.T) {
	var nilDoc *Document
	if nilDoc.String() != "<nil Document>" {
		t.Errorf("unexpected nil dump %q", nilDoc.String())
	}
	dump := sampleDocument().String()
	for _, want := range []string{`Document id="doc-1"`, `Text: "The dog"`, `Raw: "<!-- c -->"`, `"w1" span=1 annotation=0`} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump does not contain %q:\n%s", want, dump)
		}
	}
}
