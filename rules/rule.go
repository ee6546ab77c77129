// Package rules maps selected XML elements onto typed standoff annotations.
package rules

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"sox/standoff"
	"sox/xmltree"
)

// Callback is invoked for every element matched by a rule, after annotation
// was created or, for unique rules, reused.
type Callback func(anno *standoff.Annotation, el *etree.Element)

// Rule maps elements matched by Selector onto annotations of Type. Selector
// is not validated until rule is applied.
type Rule struct {
	Selector string
	Type     string
	Callback Callback
	// Global rules are matched against the whole document rather than text
	// root.
	Global bool
	// Unique rules produce at most one annotation of Type per document, all
	// matches share it.
	Unique bool
}

func (r Rule) String() string {
	var flags []string
	if r.Global {
		flags = append(flags, "global")
	}
	if r.Unique {
		flags = append(flags, "unique")
	}
	if len(flags) == 0 {
		return fmt.Sprintf("%s -> %s", r.Selector, r.Type)
	}
	return fmt.Sprintf("%s -> %s (%s)", r.Selector, r.Type, strings.Join(flags, ","))
}

const (
	// SourceText takes normalized text of the element.
	SourceText = "text()"
	// SourceTag takes element tag.
	SourceTag = "tag()"
	// SourceAttrPrefix marks attribute source: "@pos", "@xml:id".
	SourceAttrPrefix = "@"
)

// FeatureCallback builds callback copying values from matched element into
// annotation features. Keys of features are feature names, values are
// sources: "@attr" for attribute value, "text()" for element text and
// "tag()" for element tag. Missing attributes leave feature unset.
func FeatureCallback(features map[string]string) (Callback, error) {
	for name, src := range features {
		if name == "" {
			return nil, fmt.Errorf("empty feature name for source %q", src)
		}
		switch {
		case src == SourceText, src == SourceTag:
		case strings.HasPrefix(src, SourceAttrPrefix) && len(src) > len(SourceAttrPrefix):
		default:
			return nil, fmt.Errorf("unsupported source %q for feature %q", src, name)
		}
	}
	return func(anno *standoff.Annotation, el *etree.Element) {
		for name, src := range features {
			switch src {
			case SourceText:
				anno.Set(name, xmltree.Text(el))
			case SourceTag:
				anno.Set(name, el.FullTag())
			default:
				if a := findAttr(el, strings.TrimPrefix(src, SourceAttrPrefix)); a != nil {
					anno.Set(name, a.Value)
				}
			}
		}
	}, nil
}

func findAttr(el *etree.Element, key string) *etree.Attr {
	for i := range el.Attr {
		if el.Attr[i].FullKey() == key {
			return &el.Attr[i]
		}
	}
	return nil
}
