package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// csvReader maps rows of an EMu CSV export onto records using the header row
type csvReader struct {
	closer  io.Closer
	reader  *csv.Reader
	kind    Kind
	columns map[string]int
}

// OpenCSV opens an EMu CSV export (UTF-8, optional BOM) for streaming
func OpenCSV(path string) (Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r, err := NewCSVReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.(*csvReader).closer = file
	return r, nil
}

// NewCSVReader reads the header from r and detects the record shape
func NewCSVReader(r io.Reader) (Reader, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty CSV export", ErrUnknownLayout)
		}
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrParse, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	cr := &csvReader{reader: reader, columns: columns}
	switch {
	case cr.hasColumn(FieldUnitID):
		cr.kind = Archival
	case cr.hasColumn(FieldFullName):
		cr.kind = Authority
	default:
		return nil, fmt.Errorf("%w: header has neither %s nor %s", ErrUnknownLayout, FieldUnitID, FieldFullName)
	}
	return cr, nil
}

func (c *csvReader) hasColumn(name string) bool {
	_, ok := c.columns[name]
	return ok
}

// field returns the value for a column and whether the column exists at all
func (c *csvReader) field(row []string, name string) (string, bool) {
	i, ok := c.columns[name]
	if !ok {
		return "", false
	}
	if i >= len(row) {
		return "", true
	}
	return row[i], true
}

func (c *csvReader) Next() (Record, error) {
	for {
		row, err := c.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch c.kind {
		case Archival:
			ident, _ := c.field(row, FieldUnitID)
			if strings.TrimSpace(ident) == "" {
				continue
			}
			title, hasTitle := c.field(row, FieldUnitTitle)
			scope, hasScope := c.field(row, FieldScope)
			return Record{
				ID:    ident,
				Kind:  Archival,
				Lines: archivalLines(title, hasTitle, scope, hasScope),
			}, nil

		case Authority:
			irn, _ := c.field(row, FieldIRN)
			if strings.TrimSpace(irn) == "" {
				continue
			}
			name, _ := c.field(row, FieldFullName)
			var lines []string
			for _, col := range []string{FieldBioNotes, FieldHisBeginNotes, FieldHisEndNotes} {
				if text, ok := c.field(row, col); ok {
					lines = append(lines, SplitLines(text)...)
				}
			}
			return Record{ID: authorityID(irn, name), Kind: Authority, Lines: lines}, nil
		}
	}
}

func (c *csvReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
