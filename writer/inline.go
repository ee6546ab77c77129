package writer

import (
	"maps"
	"slices"
	"strings"

	"sox/standoff"
)

// TagFactory produces markup for annotations rendered inline.
type TagFactory interface {
	BeginTag(a *standoff.Annotation) string
	EndTag(a *standoff.Annotation) string
	EmptyTag(a *standoff.Annotation) string
}

// FeatureTags names element after annotation type and writes features as
// attributes sorted by name.
type FeatureTags struct{}

func (FeatureTags) BeginTag(a *standoff.Annotation) string {
	return "<" + a.Type + featureAttrs(a) + ">"
}

func (FeatureTags) EndTag(a *standoff.Annotation) string {
	return "</" + a.Type + ">"
}

func (FeatureTags) EmptyTag(a *standoff.Annotation) string {
	return "<" + a.Type + featureAttrs(a) + "/>"
}

func featureAttrs(a *standoff.Annotation) string {
	if len(a.Features) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(a.Features)) {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(standoff.EscapeAttr(a.Features[k]))
		b.WriteString(`"`)
	}
	return b.String()
}
