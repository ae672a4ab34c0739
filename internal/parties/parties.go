// Package parties loads the known-party authority file and matches entity text against it.
package parties

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/emu-entities/internal/fuzzy"
)

// DefaultFile is the authority file looked up when none is configured
const DefaultFile = "eparties.csv"

// Party is one known name with its EMu internal record number
type Party struct {
	Name string
	IRN  string
}

// List holds parties keyed by full name in file order. A name repeated in
// the file keeps its first position and its last irn.
type List struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewList returns an empty list
func NewList() *List {
	return &List{m: orderedmap.New[string, string]()}
}

// Add inserts or updates a party
func (l *List) Add(name, irn string) {
	l.m.Set(name, irn)
}

// Len returns the number of distinct names
func (l *List) Len() int {
	return l.m.Len()
}

// IRN returns the irn recorded for name
func (l *List) IRN(name string) (string, bool) {
	return l.m.Get(name)
}

// Names returns every name in file order
func (l *List) Names() []string {
	names := make([]string, 0, l.m.Len())
	for pair := l.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Load reads an authority CSV with NamFullName and irn columns
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parties file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses authority CSV from r. A leading byte order mark is ignored.
func Read(r io.Reader) (*List, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read parties header: %w", err)
	}
	nameCol, irnCol := -1, -1
	for i, h := range header {
		switch h {
		case "NamFullName":
			nameCol = i
		case "irn":
			irnCol = i
		}
	}
	if nameCol < 0 || irnCol < 0 {
		return nil, errors.New("parties file needs NamFullName and irn columns")
	}

	list := NewList()
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parties row: %w", err)
		}
		if nameCol >= len(row) || irnCol >= len(row) {
			continue
		}
		list.Add(row[nameCol], row[irnCol])
	}
	return list, nil
}

// Matcher finds the closest known party for an entity string
type Matcher struct {
	list      *List
	index     *fuzzy.Index
	threshold int
}

// NewMatcher indexes list for fuzzy lookups at the given threshold
func NewMatcher(list *List, threshold int) *Matcher {
	if threshold <= 0 {
		threshold = fuzzy.DefaultCutoff
	}
	return &Matcher{list: list, index: fuzzy.NewIndex(list.Names()), threshold: threshold}
}

// Match returns the best scoring party for text, if any reaches the threshold
func (m *Matcher) Match(text string) (Party, int, bool) {
	best, ok := m.index.Best(text, m.threshold, nil)
	if !ok {
		return Party{}, 0, false
	}
	irn, _ := m.list.IRN(best.Choice)
	return Party{Name: best.Choice, IRN: irn}, best.Score, true
}
