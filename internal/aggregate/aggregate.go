// Package aggregate groups entity occurrences by their surface text.
package aggregate

import (
	"encoding/json"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Occurrence is one mention of an entity in one record
type Occurrence struct {
	Text    string `json:"text"`
	Record  string `json:"record"`
	Label   string `json:"label"`
	Context string `json:"context"`
}

// Aggregate collects every occurrence stored under one entity text.
// Alternate lists entity strings folded in by clustering.
type Aggregate struct {
	Label       string       `json:"label"`
	Occurrences []Occurrence `json:"occurrences"`
	Alternate   []string     `json:"alternate,omitempty"`
}

// Count returns the number of occurrences
func (a *Aggregate) Count() int {
	return len(a.Occurrences)
}

// Records returns the record identifier of every occurrence, in order
func (a *Aggregate) Records() []string {
	out := make([]string, len(a.Occurrences))
	for i, o := range a.Occurrences {
		out[i] = o.Record
	}
	return out
}

// Contexts returns the context window of every occurrence, in order
func (a *Aggregate) Contexts() []string {
	out := make([]string, len(a.Occurrences))
	for i, o := range a.Occurrences {
		out[i] = o.Context
	}
	return out
}

func (a *Aggregate) clone() *Aggregate {
	return &Aggregate{
		Label:       a.Label,
		Occurrences: append([]Occurrence(nil), a.Occurrences...),
		Alternate:   append([]string(nil), a.Alternate...),
	}
}

// Entry pairs an entity text with its aggregate
type Entry struct {
	Text      string
	Aggregate *Aggregate
}

// Set maps entity text to aggregate, remembering insertion order
type Set struct {
	m *orderedmap.OrderedMap[string, *Aggregate]
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{m: orderedmap.New[string, *Aggregate]()}
}

// Add appends one occurrence under its text, creating the aggregate on first sight.
// The label of the first occurrence is kept.
func (s *Set) Add(occ Occurrence) {
	if agg, ok := s.m.Get(occ.Text); ok {
		agg.Occurrences = append(agg.Occurrences, occ)
		return
	}
	s.m.Set(occ.Text, &Aggregate{Label: occ.Label, Occurrences: []Occurrence{occ}})
}

// AddAll appends occurrences in order
func (s *Set) AddAll(occs []Occurrence) {
	for _, occ := range occs {
		s.Add(occ)
	}
}

// Put merges agg into the entry for text, or inserts a copy of it
func (s *Set) Put(text string, agg *Aggregate) {
	if existing, ok := s.m.Get(text); ok {
		existing.Occurrences = append(existing.Occurrences, agg.Occurrences...)
		existing.Alternate = append(existing.Alternate, agg.Alternate...)
		return
	}
	s.m.Set(text, agg.clone())
}

// Merge folds every entry of other into s and returns s
func (s *Set) Merge(other *Set) *Set {
	if other == nil {
		return s
	}
	for pair := other.m.Oldest(); pair != nil; pair = pair.Next() {
		s.Put(pair.Key, pair.Value)
	}
	return s
}

// Get returns the aggregate stored under text
func (s *Set) Get(text string) (*Aggregate, bool) {
	return s.m.Get(text)
}

// Delete removes and returns the aggregate stored under text
func (s *Set) Delete(text string) (*Aggregate, bool) {
	return s.m.Delete(text)
}

// Has reports whether text is present
func (s *Set) Has(text string) bool {
	_, ok := s.m.Get(text)
	return ok
}

// Len returns the number of distinct entity texts
func (s *Set) Len() int {
	return s.m.Len()
}

// Keys returns entity texts in insertion order
func (s *Set) Keys() []string {
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Entries returns all entries in insertion order
func (s *Set) Entries() []Entry {
	entries := make([]Entry, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{Text: pair.Key, Aggregate: pair.Value})
	}
	return entries
}

// Occurrences returns the total number of occurrences across all entries
func (s *Set) Occurrences() int {
	total := 0
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		total += pair.Value.Count()
	}
	return total
}

// Sorted returns entries by occurrence count, highest first; ties keep insertion order
func (s *Set) Sorted() []Entry {
	entries := s.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Aggregate.Count() > entries[j].Aggregate.Count()
	})
	return entries
}

// Filter returns a new set holding the entries keep accepts
func (s *Set) Filter(keep func(text string, agg *Aggregate) bool) *Set {
	out := NewSet()
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Key, pair.Value) {
			out.m.Set(pair.Key, pair.Value)
		}
	}
	return out
}

// MarshalJSON writes the set as an object keyed by entity text in insertion order
func (s *Set) MarshalJSON() ([]byte, error) {
	return s.m.MarshalJSON()
}

// UnmarshalJSON reads the object form written by MarshalJSON
func (s *Set) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, *Aggregate]()
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	s.m = m
	return nil
}
