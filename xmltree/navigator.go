package xmltree

import (
	"github.com/antchfx/xpath"
	"github.com/beevik/etree"
)

// navigator implements xpath.NodeNavigator directly over etree tokens.
// Only elements, character data and comments are visible, processing
// instructions and directives are skipped.
type navigator struct {
	root *etree.Element
	cur  etree.Token
	attr int
}

var _ xpath.NodeNavigator = (*navigator)(nil)

func newNavigator(doc *etree.Document, at *etree.Element) *navigator {
	return &navigator{root: &doc.Element, cur: at, attr: -1}
}

func visible(t etree.Token) bool {
	switch t.(type) {
	case *etree.Element, *etree.CharData, *etree.Comment:
		return true
	}
	return false
}

func (n *navigator) NodeType() xpath.NodeType {
	if n.attr >= 0 {
		return xpath.AttributeNode
	}
	switch v := n.cur.(type) {
	case *etree.Element:
		if v == n.root {
			return xpath.RootNode
		}
		return xpath.ElementNode
	case *etree.Comment:
		return xpath.CommentNode
	}
	// visible leaves character data only
	return xpath.TextNode
}

func (n *navigator) LocalName() string {
	el, ok := n.cur.(*etree.Element)
	if !ok {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].Key
	}
	return el.Tag
}

func (n *navigator) Prefix() string {
	el, ok := n.cur.(*etree.Element)
	if !ok {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].Space
	}
	return el.Space
}

func (n *navigator) NamespaceURL() string {
	el, ok := n.cur.(*etree.Element)
	if !ok {
		return ""
	}
	if n.attr >= 0 {
		return el.Attr[n.attr].NamespaceURI()
	}
	return el.NamespaceURI()
}

func (n *navigator) Value() string {
	switch v := n.cur.(type) {
	case *etree.Element:
		if n.attr >= 0 {
			return v.Attr[n.attr].Value
		}
		return rawText(v)
	case *etree.CharData:
		return v.Data
	case *etree.Comment:
		return v.Data
	}
	return ""
}

func (n *navigator) Copy() xpath.NodeNavigator {
	c := *n
	return &c
}

func (n *navigator) MoveToRoot() {
	n.cur, n.attr = n.root, -1
}

func (n *navigator) MoveToParent() bool {
	if n.attr >= 0 {
		n.attr = -1
		return true
	}
	if n.cur == etree.Token(n.root) {
		return false
	}
	parent := n.cur.Parent()
	if parent == nil {
		return false
	}
	n.cur = parent
	return true
}

func (n *navigator) MoveToNextAttribute() bool {
	el, ok := n.cur.(*etree.Element)
	if !ok || n.attr+1 >= len(el.Attr) {
		return false
	}
	n.attr++
	return true
}

func (n *navigator) MoveToChild() bool {
	if n.attr >= 0 {
		return false
	}
	el, ok := n.cur.(*etree.Element)
	if !ok {
		return false
	}
	for _, t := range el.Child {
		if visible(t) {
			n.cur = t
			return true
		}
	}
	return false
}

func (n *navigator) MoveToFirst() bool {
	if n.attr >= 0 || n.cur == etree.Token(n.root) {
		return false
	}
	parent := n.cur.Parent()
	if parent == nil {
		return false
	}
	for _, t := range parent.Child {
		if visible(t) {
			n.cur = t
			return true
		}
	}
	return false
}

func (n *navigator) MoveToNext() bool {
	if n.attr >= 0 || n.cur == etree.Token(n.root) {
		return false
	}
	parent := n.cur.Parent()
	if parent == nil {
		return false
	}
	for i := n.cur.Index() + 1; i < len(parent.Child); i++ {
		if visible(parent.Child[i]) {
			n.cur = parent.Child[i]
			return true
		}
	}
	return false
}

func (n *navigator) MoveToPrevious() bool {
	if n.attr >= 0 || n.cur == etree.Token(n.root) {
		return false
	}
	parent := n.cur.Parent()
	if parent == nil {
		return false
	}
	for i := n.cur.Index() - 1; i >= 0; i-- {
		if visible(parent.Child[i]) {
			n.cur = parent.Child[i]
			return true
		}
	}
	return false
}

func (n *navigator) MoveTo(other xpath.NodeNavigator) bool {
	o, ok := other.(*navigator)
	if !ok || o.root != n.root {
		return false
	}
	n.cur, n.attr = o.cur, o.attr
	return true
}
