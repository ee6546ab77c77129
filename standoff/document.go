package standoff

import (
	"github.com/beevik/etree"
)

// Entry is identifier registry record. Both fields are indexes: Span into
// Document.Spans, Annotation into the annotation store.
type Entry struct {
	Span       int
	Annotation int
}

// Registry maps declared element identifiers to their span and annotation.
// First registration for an identifier wins, duplicates are ignored.
type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register records id unless it is already known, returns true when entry
// was added.
func (r *Registry) Register(id string, e Entry) bool {
	if _, exists := r.entries[id]; exists {
		return false
	}
	r.entries[id] = e
	return true
}

func (r *Registry) Exists(id string) bool {
	_, exists := r.entries[id]
	return exists
}

func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func (r *Registry) Len() int { return len(r.entries) }

// Document is the result of a single read pass.
type Document struct {
	// ID is generated for every read, it could be used to tell apart
	// exported documents.
	ID string
	// Encoding declared by the source (UTF-8 when absent). Text is always
	// kept in UTF-8.
	Encoding string

	Text         string
	Spans        []Span
	Declarations []Span
	// SelectorMap maps element selector path to index in Spans.
	SelectorMap map[string]int

	// Store receives annotations produced by rules. Annotations is the same
	// store when it is the in-memory one, nil otherwise.
	Store       Store
	Annotations *MemoryStore
	Registry    *Registry

	// Tree is parsed source, kept for callers which need to look at
	// elements referenced by registry.
	Tree *etree.Document
}

// SpanFor returns span created for element with the given selector path.
func (d *Document) SpanFor(selector string) (Span, bool) {
	idx, ok := d.SelectorMap[selector]
	if !ok {
		return Span{}, false
	}
	return d.Spans[idx], true
}

// Exists checks whether an element identifier was registered by rules.
func (d *Document) Exists(id string) bool {
	return d.Registry != nil && d.Registry.Exists(id)
}

// Lookup returns span and annotation registered for element identifier.
func (d *Document) Lookup(id string) (Span, *Annotation, bool) {
	if d.Registry == nil {
		return Span{}, nil, false
	}
	e, ok := d.Registry.Lookup(id)
	if !ok || e.Span < 0 || e.Span >= len(d.Spans) {
		return Span{}, nil, false
	}
	var anno *Annotation
	if d.Store != nil {
		anno, _ = d.Store.Get(e.Annotation)
	}
	return d.Spans[e.Span], anno, true
}

// Select returns annotations of requested type.
func (d *Document) Select(typ string) []*Annotation {
	if d.Annotations == nil {
		return nil
	}
	return d.Annotations.Select(typ)
}
