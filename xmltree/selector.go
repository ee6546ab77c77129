package xmltree

import (
	"fmt"
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// XPathPrefix marks selector as XPath expression rather than CSS.
const XPathPrefix = "xpath:"

// Selector finds elements in an indexed document.
type Selector interface {
	// Select returns matching elements inside scope (scope itself included)
	// in document order without duplicates.
	Select(ix *Index, scope *etree.Element) []*etree.Element
	String() string
}

// Compile parses selector expression. CSS syntax is assumed unless
// expression starts with "xpath:". Tag and attribute names in CSS selectors
// are matched case insensitively. XPath expressions are evaluated with
// scope element as context node, so use relative paths (".//pos") to stay
// inside scope.
func Compile(expr string) (Selector, error) {
	if x, ok := strings.CutPrefix(expr, XPathPrefix); ok {
		compiled, err := xpath.Compile(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("invalid xpath selector %q: %w", expr, err)
		}
		return &xpathSelector{src: expr, expr: compiled}, nil
	}
	compiled, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", expr, err)
	}
	return &cssSelector{src: expr, sel: compiled}, nil
}

type cssSelector struct {
	src string
	sel cascadia.Selector
}

func (s *cssSelector) String() string { return s.src }

func (s *cssSelector) Select(ix *Index, scope *etree.Element) []*etree.Element {
	start, ok := ix.mirror[scope]
	if !ok {
		return nil
	}
	var res []*etree.Element
	for _, n := range s.sel.MatchAll(start) {
		if el, ok := ix.back[n]; ok && el != &ix.doc.Element {
			res = append(res, el)
		}
	}
	return res
}

type xpathSelector struct {
	src  string
	expr *xpath.Expr
}

func (s *xpathSelector) String() string { return s.src }

func (s *xpathSelector) Select(ix *Index, scope *etree.Element) []*etree.Element {
	seen := make(map[*etree.Element]bool)
	var res []*etree.Element

	it := s.expr.Select(newNavigator(ix.doc, scope))
	for it.MoveNext() {
		nav, ok := it.Current().(*navigator)
		if !ok || nav.attr >= 0 {
			continue
		}
		el, ok := nav.cur.(*etree.Element)
		if !ok || el == &ix.doc.Element || seen[el] {
			continue
		}
		if scope != &ix.doc.Element && !within(el, scope) {
			continue
		}
		seen[el] = true
		res = append(res, el)
	}
	slices.SortFunc(res, func(a, b *etree.Element) int {
		return ix.Order(a) - ix.Order(b)
	})
	return res
}

func within(el, scope *etree.Element) bool {
	for e := el; e != nil; e = e.Parent() {
		if e == scope {
			return true
		}
	}
	return false
}
