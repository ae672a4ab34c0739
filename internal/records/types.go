// Package records streams catalogue records out of EMu XML and CSV exports.
package records

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrParse marks an export that is not well-formed XML or CSV
	ErrParse = errors.New("malformed export")
	// ErrUnknownLayout marks a CSV export whose header matches neither record shape
	ErrUnknownLayout = errors.New("unrecognised export layout")
)

// Kind distinguishes the two record shapes found in EMu exports
type Kind int

const (
	// Archival is a catalogue unit (EADUnitID, title, scope and content)
	Archival Kind = iota
	// Authority is a name authority (irn, NamFullName, biography and history notes)
	Authority
)

func (k Kind) String() string {
	switch k {
	case Archival:
		return "archival"
	case Authority:
		return "authority"
	}
	return "unknown"
}

// EMu field names
const (
	FieldUnitID        = "EADUnitID"
	FieldUnitTitle     = "EADUnitTitle"
	FieldScope         = "EADScopeAndContent"
	FieldIRN           = "irn"
	FieldFullName      = "NamFullName"
	FieldBioNotes      = "BioCommencementNotes"
	FieldHisBeginNotes = "HisBeginDateNotes"
	FieldHisEndNotes   = "HisEndDateNotes"
)

// Record is one catalogue record: an identifier plus the descriptive text lines
type Record struct {
	ID    string
	Kind  Kind
	Lines []string
}

// Reader yields records one at a time; Next returns io.EOF when the export is exhausted
type Reader interface {
	Next() (Record, error)
	Close() error
}

// Open returns a reader for the export at path, chosen by file extension
func Open(path string) (Reader, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return OpenXML(path)
	}
	return OpenCSV(path)
}

// authorityID builds the "irn - name" identifier used for name authority records
func authorityID(irn, name string) string {
	return irn + " - " + name
}

// archivalLines assembles title then scope lines
func archivalLines(title string, hasTitle bool, scope string, hasScope bool) []string {
	var lines []string
	if hasTitle {
		lines = append(lines, title)
	}
	if hasScope {
		lines = append(lines, SplitLines(scope)...)
	}
	return lines
}

// SplitLines splits text on the same boundaries as Python's str.splitlines
func SplitLines(text string) []string {
	var lines []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\r':
			lines = append(lines, string(runes[start:i]))
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			start = i + 1
		case '\n', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			lines = append(lines, string(runes[start:i]))
			start = i + 1
		}
	}
	if start < len(runes) {
		lines = append(lines, string(runes[start:]))
	}
	return lines
}

// Collect drains a reader into a slice
func Collect(r Reader) ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}
