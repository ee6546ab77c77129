package convert

import (
	"bytes"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"sox/config"
	"sox/standoff"
)

// Values holds variables available for output name template expansion.
type Values struct {
	Name       string
	Dir        string
	Format     string
	DocumentID string
	Root       string
	// Features of the first annotation of document type, usually produced
	// by global rules.
	Meta map[string]string
}

func newValues(doc *standoff.Document, src, docType string, format standoff.ExportFormat) Values {
	v := Values{
		Name:   strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)),
		Dir:    filepath.ToSlash(filepath.Dir(src)),
		Format: format.String(),
		Meta:   map[string]string{},
	}
	if doc == nil {
		return v
	}
	v.DocumentID = doc.ID
	if doc.Tree != nil && doc.Tree.Root() != nil {
		v.Root = doc.Tree.Root().Tag
	}
	if meta := doc.Select(docType); len(meta) > 0 {
		maps.Copy(v.Meta, meta[0].Features)
	}
	return v
}

func expandTemplate(field string, values Values) (string, error) {
	tmpl, err := template.New(config.NameTemplateFieldName).Funcs(sprig.FuncMap()).Option("missingkey=zero").Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", config.NameTemplateFieldName, err)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
