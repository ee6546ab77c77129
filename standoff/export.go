package standoff

import (
	"fmt"
	"strings"

	"github.com/amazon-ion/ion-go/ion"
	yaml "gopkg.in/yaml.v3"
)

// ExportFormat selects serialization used to hand flattened document to
// external tools.
type ExportFormat int

const (
	ExportYAML ExportFormat = iota
	ExportIon
	ExportIonBinary
)

var exportFormatNames = map[ExportFormat]string{
	ExportYAML:      "yaml",
	ExportIon:       "ion",
	ExportIonBinary: "ion-binary",
}

func (f ExportFormat) String() string {
	if name, ok := exportFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("ExportFormat(%d)", int(f))
}

// Ext returns file extension for exported document.
func (f ExportFormat) Ext() string {
	switch f {
	case ExportIon:
		return ".ion"
	case ExportIonBinary:
		return ".10n"
	default:
		return ".yaml"
	}
}

// ParseExportFormat is case insensitive.
func ParseExportFormat(name string) (ExportFormat, error) {
	for f, n := range exportFormatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return ExportYAML, fmt.Errorf("%q is not a valid export format", name)
}

// ExportFormatNames lists accepted names in stable order.
func ExportFormatNames() []string {
	return []string{ExportYAML.String(), ExportIon.String(), ExportIonBinary.String()}
}

type exportDeclaration struct {
	At  int    `yaml:"at" ion:"at"`
	Raw string `yaml:"raw" ion:"raw"`
}

type exportSpan struct {
	Begin    int    `yaml:"begin" ion:"begin"`
	End      int    `yaml:"end" ion:"end"`
	Tag      string `yaml:"tag" ion:"tag"`
	Attrs    []Attr `yaml:"attrs,omitempty" ion:"attrs,omitempty"`
	ID       string `yaml:"id,omitempty" ion:"id,omitempty"`
	Class    string `yaml:"class,omitempty" ion:"class,omitempty"`
	Selector string `yaml:"selector" ion:"selector"`
}

type exportRange struct {
	Begin int `yaml:"begin" ion:"begin"`
	End   int `yaml:"end" ion:"end"`
}

type exportDocument struct {
	ID           string              `yaml:"id" ion:"id"`
	Encoding     string              `yaml:"encoding" ion:"encoding"`
	Text         string              `yaml:"text" ion:"text"`
	Declarations []exportDeclaration `yaml:"declarations,omitempty" ion:"declarations,omitempty"`
	Spans        []exportSpan        `yaml:"spans" ion:"spans"`
	CData        []exportRange       `yaml:"cdata,omitempty" ion:"cdata,omitempty"`
	Annotations  []*Annotation       `yaml:"annotations,omitempty" ion:"annotations,omitempty"`
}

func newExportDocument(d *Document) *exportDocument {
	out := &exportDocument{
		ID:       d.ID,
		Encoding: d.Encoding,
		Text:     d.Text,
		Spans:    make([]exportSpan, 0, len(d.Spans)),
	}
	for _, s := range d.Declarations {
		if decl := s.Declaration(); decl != nil {
			out.Declarations = append(out.Declarations, exportDeclaration{At: s.Begin, Raw: decl.Raw})
		}
	}
	for _, s := range d.Spans {
		if s.CData() {
			out.CData = append(out.CData, exportRange{Begin: s.Begin, End: s.End})
			continue
		}
		el := s.Element()
		if el == nil {
			continue
		}
		out.Spans = append(out.Spans, exportSpan{
			Begin:    s.Begin,
			End:      s.End,
			Tag:      el.Tag,
			Attrs:    el.Attrs,
			ID:       el.ID,
			Class:    el.Class,
			Selector: el.Selector,
		})
	}
	if d.Annotations != nil {
		out.Annotations = d.Annotations.All()
	}
	return out
}

// Marshal serializes document text, spans, declarations and annotations.
func Marshal(d *Document, format ExportFormat) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("nil document")
	}
	ed := newExportDocument(d)

	var (
		data []byte
		err  error
	)
	switch format {
	case ExportYAML:
		data, err = yaml.Marshal(ed)
	case ExportIon:
		data, err = ion.MarshalText(ed)
	case ExportIonBinary:
		data, err = ion.MarshalBinary(ed)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to marshal document as %s: %w", format, err)
	}
	return data, nil
}
