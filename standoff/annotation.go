package standoff

import (
	"maps"
	"slices"
)

// Annotation is a typed standoff annotation produced by rules. Begin and
// End are copied from the span of the matched element; annotations created
// by unique rules have no position.
type Annotation struct {
	ID       int               `yaml:"id" ion:"id"`
	Type     string            `yaml:"type" ion:"type"`
	Begin    int               `yaml:"begin" ion:"begin"`
	End      int               `yaml:"end" ion:"end"`
	Features map[string]string `yaml:"features,omitempty" ion:"features,omitempty"`
}

// Set stores feature value.
func (a *Annotation) Set(name, value string) {
	if a.Features == nil {
		a.Features = make(map[string]string)
	}
	a.Features[name] = value
}

// Get returns feature value or empty string.
func (a *Annotation) Get(name string) string {
	return a.Features[name]
}

// Covered returns text covered by the annotation.
func (a *Annotation) Covered(text string) string {
	if a.Begin < 0 || a.End > len(text) || a.Begin > a.End {
		return ""
	}
	return text[a.Begin:a.End]
}

// Store is where annotations live. Rule engine only needs to create new
// annotations, find the first one of a given type and get annotation back
// by its identifier.
type Store interface {
	Create(typ string) *Annotation
	First(typ string) (*Annotation, bool)
	Get(id int) (*Annotation, bool)
}

// MemoryStore keeps annotations in creation order, annotation ID is its
// index.
type MemoryStore struct {
	arena  []*Annotation
	byType map[string][]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byType: make(map[string][]int)}
}

func (s *MemoryStore) Create(typ string) *Annotation {
	a := &Annotation{ID: len(s.arena), Type: typ}
	s.arena = append(s.arena, a)
	s.byType[typ] = append(s.byType[typ], a.ID)
	return a
}

func (s *MemoryStore) First(typ string) (*Annotation, bool) {
	ids := s.byType[typ]
	if len(ids) == 0 {
		return nil, false
	}
	return s.arena[ids[0]], true
}

func (s *MemoryStore) Get(id int) (*Annotation, bool) {
	if id < 0 || id >= len(s.arena) {
		return nil, false
	}
	return s.arena[id], true
}

// All returns all annotations in creation order.
func (s *MemoryStore) All() []*Annotation {
	return slices.Clone(s.arena)
}

// Select returns annotations of requested type in creation order.
func (s *MemoryStore) Select(typ string) []*Annotation {
	ids := s.byType[typ]
	res := make([]*Annotation, 0, len(ids))
	for _, id := range ids {
		res = append(res, s.arena[id])
	}
	return res
}

// Types returns sorted list of annotation types present in the store.
func (s *MemoryStore) Types() []string {
	return slices.Sorted(maps.Keys(s.byType))
}

func (s *MemoryStore) Len() int { return len(s.arena) }
