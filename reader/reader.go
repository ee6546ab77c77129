// Package reader converts XML documents into flattened text with standoff
// spans and typed annotations produced by selector rules.
package reader

import (
	"errors"
	"fmt"
	"io"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sox/flatten"
	"sox/rules"
	"sox/segment"
	"sox/standoff"
	"sox/xmltree"
)

// DefaultDocumentType is target of rules added with AddGlobalRule.
const DefaultDocumentType = "DocumentMetaData"

// ErrRootNotFound is returned when text root selector matches nothing.
var ErrRootNotFound = errors.New("text root not found")

// Option configures Reader.
type Option func(*Reader)

// WithTextRoot limits document text to the first element matched by
// selector. Non global rules are applied within this element only.
func WithTextRoot(selector string) Option {
	return func(r *Reader) { r.textRoot = selector }
}

// WithPreserveWhitespace keeps text as is, required for exact round trip.
func WithPreserveWhitespace(preserve bool) Option {
	return func(r *Reader) { r.preserve = preserve }
}

// WithIgnore sets predicate excluding elements from span creation.
func WithIgnore(ignore func(el *etree.Element) bool) Option {
	return func(r *Reader) { r.ignore = ignore }
}

// WithSkipEmpty makes rules skip elements which have no child nodes.
func WithSkipEmpty(skip bool) Option {
	return func(r *Reader) { r.skipEmpty = skip }
}

// WithBlockTags replaces default block tags.
func WithBlockTags(tags ...string) Option {
	return func(r *Reader) { r.blockTags = tags }
}

// WithDocumentType changes annotation type targeted by AddGlobalRule.
func WithDocumentType(typ string) Option {
	return func(r *Reader) { r.docType = typ }
}

// WithLogger sets diagnostics sink, nothing is logged by default.
func WithLogger(log *zap.Logger) Option {
	return func(r *Reader) { r.log = log }
}

// WithStore provides annotation store for each read. In-memory store is
// used by default.
func WithStore(newStore func() standoff.Store) Option {
	return func(r *Reader) { r.newStore = newStore }
}

// WithSentences adds sentence annotations to every document using the
// splitter. Nil splitter makes every document text a single sentence.
func WithSentences(s *segment.Splitter) Option {
	return func(r *Reader) { r.sentences, r.splitter = true, s }
}

// Reader keeps configuration and rules, it could be used to read any
// number of documents one at a time.
type Reader struct {
	textRoot  string
	preserve  bool
	ignore    func(el *etree.Element) bool
	skipEmpty bool
	blockTags []string
	docType   string
	log       *zap.Logger
	newStore  func() standoff.Store
	sentences bool
	splitter  *segment.Splitter

	engine rules.Engine
}

func New(opts ...Option) *Reader {
	r := &Reader{
		docType:  DefaultDocumentType,
		log:      zap.NewNop(),
		newStore: func() standoff.Store { return standoff.NewMemoryStore() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddRule maps elements matched by selector within text root onto
// annotations of type typ. Callback may be nil.
func (r *Reader) AddRule(selector, typ string, cb rules.Callback) {
	r.engine.Add(rules.Rule{Selector: selector, Type: typ, Callback: cb})
}

// AddGlobalRule runs callback for elements matched anywhere in the document
// with the single document annotation.
func (r *Reader) AddGlobalRule(selector string, cb rules.Callback) {
	r.engine.AddGlobal(selector, r.docType, cb)
}

// AddGlobalTypedRule is AddRule matched against the whole document.
func (r *Reader) AddGlobalTypedRule(selector, typ string, cb rules.Callback) {
	r.engine.Add(rules.Rule{Selector: selector, Type: typ, Callback: cb, Global: true})
}

// Add registers prepared rule.
func (r *Reader) Add(rule rules.Rule) {
	r.engine.Add(rule)
}

// Rules returns registered rules in order.
func (r *Reader) Rules() []rules.Rule {
	return r.engine.Rules()
}

// Read parses XML from src and builds the document.
func (r *Reader) Read(src io.Reader) (*standoff.Document, error) {
	tree, err := xmltree.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("unable to parse XML: %w", err)
	}
	ix := xmltree.NewIndex(tree)

	root := &tree.Element
	if r.textRoot != "" {
		sel, err := xmltree.Compile(r.textRoot)
		if err != nil {
			return nil, fmt.Errorf("bad text root: %w", err)
		}
		found := sel.Select(ix, root)
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrRootNotFound, r.textRoot)
		}
		root = found[0]
		r.log.Debug("Text root selected", zap.String("selector", ix.Path(root)))
	}

	res := flatten.Flatten(ix, root, flatten.Options{
		PreserveWhitespace: r.preserve,
		Ignore:             r.ignore,
		BlockTags:          r.blockTags,
	})

	store := r.newStore()
	registry := standoff.NewRegistry()
	err = r.engine.Apply(&rules.Scope{
		Index:       ix,
		Root:        root,
		Spans:       res.Spans,
		SelectorMap: res.SelectorMap,
		Store:       store,
		Registry:    registry,
		Ignore:      r.ignore,
		SkipEmpty:   r.skipEmpty,
	}, r.log)
	if err != nil {
		return nil, fmt.Errorf("unable to apply rules: %w", err)
	}

	if r.sentences {
		n := r.splitter.Annotate(res.Text, store)
		r.log.Debug("Sentences added", zap.Int("count", n))
	}

	doc := &standoff.Document{
		Encoding:     xmltree.DeclaredEncoding(tree),
		Text:         res.Text,
		Spans:        res.Spans,
		Declarations: res.Declarations,
		SelectorMap:  res.SelectorMap,
		Store:        store,
		Registry:     registry,
		Tree:         tree,
	}
	if ms, ok := store.(*standoff.MemoryStore); ok {
		doc.Annotations = ms
	}
	if id, err := uuid.NewV7(); err == nil {
		doc.ID = id.String()
	} else {
		r.log.Warn("Unable to generate document id", zap.Error(err))
	}

	r.log.Debug("Document read",
		zap.String("id", doc.ID),
		zap.Int("length", len(doc.Text)),
		zap.Int("spans", len(doc.Spans)),
		zap.Int("declarations", len(doc.Declarations)),
		zap.Int("registered", registry.Len()))
	return doc, nil
}
