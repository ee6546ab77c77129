package rules

import (
	"fmt"
	"slices"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"sox/standoff"
	"sox/xmltree"
)

// Engine keeps rules in registration order.
type Engine struct {
	rules []Rule
}

// Add registers rule.
func (e *Engine) Add(r Rule) {
	e.rules = append(e.rules, r)
}

// AddGlobal registers unique rule matched against the whole document.
// Typically used to fill document metadata from header elements.
func (e *Engine) AddGlobal(selector, typ string, cb Callback) {
	e.Add(Rule{Selector: selector, Type: typ, Callback: cb, Global: true, Unique: true})
}

// Rules returns copy of registered rules.
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Scope is everything rules need from a single read pass.
type Scope struct {
	Index *xmltree.Index
	// Root limits non global rules, document element when nil.
	Root *etree.Element
	// Spans and SelectorMap come out of flattening.
	Spans       []standoff.Span
	SelectorMap map[string]int

	Store    standoff.Store
	Registry *standoff.Registry

	// Ignore is the predicate used during flattening.
	Ignore    func(el *etree.Element) bool
	SkipEmpty bool
}

// Apply runs all rules in registration order. Selector which does not
// compile stops processing.
func (e *Engine) Apply(sc *Scope, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	doc := &sc.Index.Document().Element
	root := sc.Root
	if root == nil {
		root = doc
	}

	for i, r := range e.rules {
		sel, err := xmltree.Compile(r.Selector)
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r, err)
		}
		scope := root
		if r.Global {
			scope = doc
		}
		matches := sel.Select(sc.Index, scope)
		log.Debug("Applying rule", zap.Stringer("rule", r), zap.Int("matches", len(matches)))
		for _, el := range matches {
			e.apply(sc, r, el, log)
		}
	}
	return nil
}

func (e *Engine) apply(sc *Scope, r Rule, el *etree.Element, log *zap.Logger) {
	if sc.Ignore != nil && sc.Ignore(el) {
		log.Warn("Rule matched ignored element, skipping",
			zap.Stringer("rule", r), zap.String("selector", sc.Index.Path(el)))
		return
	}
	if sc.SkipEmpty && len(el.Child) == 0 {
		return
	}

	var anno *standoff.Annotation
	if r.Unique {
		var ok bool
		if anno, ok = sc.Store.First(r.Type); !ok {
			anno = sc.Store.Create(r.Type)
		}
	} else {
		path := sc.Index.Path(el)
		idx, ok := sc.SelectorMap[path]
		if !ok {
			log.Warn("Rule matched element without span, skipping",
				zap.Stringer("rule", r), zap.String("selector", path))
			return
		}
		span := sc.Spans[idx]
		anno = sc.Store.Create(r.Type)
		anno.Begin, anno.End = span.Begin, span.End

		if sc.Registry != nil {
			// same identifier the span exposes: xml:id, else id
			if id := span.Element().ID; id != "" {
				sc.Registry.Register(id, standoff.Entry{Span: idx, Annotation: anno.ID})
			}
		}
	}

	if r.Callback != nil {
		r.Callback(anno, el)
	}
}
