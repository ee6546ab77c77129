package writer

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"sox/standoff"
)

// Write renders document and writes it to w in the document's declared
// encoding, unless WithEncoding asks for a different one. Characters which
// cannot be represented in the target encoding are written as numeric
// character references. When output encoding differs from declared one, XML
// declaration is changed accordingly, or added if there is none.
func Write(w io.Writer, doc *standoff.Document, opts ...Option) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	name := o.encoding
	if name == "" {
		name = doc.Encoding
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return err
	}

	decls := doc.Declarations
	if o.encoding != "" && !sameEncoding(o.encoding, doc.Encoding) {
		decls = setDeclaredEncoding(decls, encodingName(enc, name))
	}

	var out string
	if o.inline != nil {
		if doc.Annotations == nil {
			return fmt.Errorf("unable to render annotations inline: document has no in-memory annotations")
		}
		var annos []*standoff.Annotation
		for _, typ := range o.inline {
			annos = append(annos, doc.Annotations.Select(typ)...)
		}
		// creation order keeps equal extents stable
		slices.SortFunc(annos, func(a, b *standoff.Annotation) int { return a.ID - b.ID })
		annos = slices.Compact(annos)
		out, err = RenderInline(doc.Text, annos, decls, o.tags, opts...)
	} else {
		out, err = Render(doc.Text, doc.Spans, decls, opts...)
	}
	if err != nil {
		return fmt.Errorf("unable to render document: %w", err)
	}

	if (o.declaration || enc != nil) && !xmlDecl.MatchString(out) {
		out = `<?xml version="1.0" encoding="` + encodingName(enc, name) + `"?>` + out
	}

	if enc == nil {
		if _, err := io.WriteString(w, out); err != nil {
			return fmt.Errorf("unable to write output: %w", err)
		}
		return nil
	}

	tw := transform.NewWriter(w, encoding.HTMLEscapeUnsupported(enc.NewEncoder()))
	if _, err := io.WriteString(tw, out); err != nil {
		return multierr.Append(fmt.Errorf("unable to write output: %w", err), tw.Close())
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("unable to flush output: %w", err)
	}
	return nil
}

// lookupEncoding returns nil encoding for UTF-8 which needs no conversion.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported output encoding %q", name)
	}
	return enc, nil
}

// encodingName returns preferred MIME name of the encoding, falling back to
// the name it was requested with.
func encodingName(enc encoding.Encoding, requested string) string {
	if enc == nil {
		return "UTF-8"
	}
	if n, err := ianaindex.MIME.Name(enc); err == nil && n != "" {
		return n
	}
	if n, err := ianaindex.IANA.Name(enc); err == nil && n != "" {
		return n
	}
	return requested
}

func sameEncoding(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	ea, erra := lookupEncoding(a)
	eb, errb := lookupEncoding(b)
	if erra != nil || errb != nil {
		return false
	}
	return encodingName(ea, a) == encodingName(eb, b)
}

var (
	xmlDecl      = regexp.MustCompile(`^<\?xml[\s?]`)
	encodingAttr = regexp.MustCompile(`(\sencoding\s*=\s*)(?:"[^"]*"|'[^']*')`)
	versionAttr  = regexp.MustCompile(`(\sversion\s*=\s*(?:"[^"]*"|'[^']*'))`)
)

// setDeclaredEncoding returns copy of declarations with encoding of the XML
// declaration replaced. Declarations are returned as is when there is no
// XML declaration.
func setDeclaredEncoding(decls []standoff.Span, name string) []standoff.Span {
	for i, s := range decls {
		d := s.Declaration()
		if d == nil || !xmlDecl.MatchString(d.Raw) {
			continue
		}
		raw := d.Raw
		switch {
		case encodingAttr.MatchString(raw):
			raw = encodingAttr.ReplaceAllString(raw, `${1}"`+name+`"`)
		case versionAttr.MatchString(raw):
			raw = versionAttr.ReplaceAllString(raw, `${1} encoding="`+name+`"`)
		default:
			raw = strings.TrimSuffix(raw, "?>") + ` encoding="` + name + `"?>`
		}
		res := make([]standoff.Span, len(decls))
		copy(res, decls)
		res[i].Payload = &standoff.Declaration{Raw: raw}
		return res
	}
	return decls
}
