package xmltree

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

// Index is built once per parsed document. It keeps selector path and
// document order number for every element, and a light-weight mirror of
// the tree made of x/net/html nodes which CSS selectors are matched against.
type Index struct {
	doc *etree.Document

	paths map[*etree.Element]string
	order map[*etree.Element]int

	mirrorRoot *html.Node
	mirror     map[*etree.Element]*html.Node
	back       map[*html.Node]*etree.Element
}

// NewIndex walks the whole document.
func NewIndex(doc *etree.Document) *Index {
	ix := &Index{
		doc:        doc,
		paths:      make(map[*etree.Element]string),
		order:      make(map[*etree.Element]int),
		mirrorRoot: &html.Node{Type: html.DocumentNode},
		mirror:     make(map[*etree.Element]*html.Node),
		back:       make(map[*html.Node]*etree.Element),
	}
	ix.mirror[&doc.Element] = ix.mirrorRoot
	ix.back[ix.mirrorRoot] = &doc.Element
	ix.walk(&doc.Element, ix.mirrorRoot, "")
	return ix
}

func (ix *Index) walk(parent *etree.Element, mparent *html.Node, prefix string) {
	position := 0
	for _, t := range parent.Child {
		switch v := t.(type) {
		case *etree.Element:
			position++
			step := v.FullTag()
			if parent != &ix.doc.Element {
				step = fmt.Sprintf("%s:nth-child(%d)", step, position)
			}
			path := step
			if prefix != "" {
				path = prefix + " > " + step
			}
			ix.paths[v] = path
			ix.order[v] = len(ix.order)

			n := &html.Node{Type: html.ElementNode, Data: strings.ToLower(v.FullTag())}
			for _, a := range v.Attr {
				n.Attr = append(n.Attr, html.Attribute{Key: strings.ToLower(a.FullKey()), Val: a.Value})
			}
			mparent.AppendChild(n)
			ix.mirror[v] = n
			ix.back[n] = v
			ix.walk(v, n, path)
		case *etree.CharData:
			mparent.AppendChild(&html.Node{Type: html.TextNode, Data: v.Data})
		case *etree.Comment:
			mparent.AppendChild(&html.Node{Type: html.CommentNode, Data: v.Data})
		}
	}
}

// Document returns indexed tree.
func (ix *Index) Document() *etree.Document { return ix.doc }

// Path returns structural selector path of the element: tag of the root
// followed by "tag:nth-child(n)" steps joined with " > ". Elements which do
// not belong to indexed document get their path computed on the spot.
func (ix *Index) Path(el *etree.Element) string {
	if p, ok := ix.paths[el]; ok {
		return p
	}
	return SelectorPath(el)
}

// Order returns position of element in document order, -1 if element is
// unknown.
func (ix *Index) Order(el *etree.Element) int {
	if o, ok := ix.order[el]; ok {
		return o
	}
	return -1
}

// SelectorPath computes path of the element without an index.
func SelectorPath(el *etree.Element) string {
	var steps []string
	for e := el; e != nil && e.Parent() != nil; e = e.Parent() {
		parent := e.Parent()
		if parent.Parent() == nil {
			steps = append(steps, e.FullTag())
			continue
		}
		position := 0
		for _, sibling := range parent.ChildElements() {
			position++
			if sibling == e {
				break
			}
		}
		steps = append(steps, fmt.Sprintf("%s:nth-child(%d)", e.FullTag(), position))
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}
