package records

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// xmlReader walks an EMu XML export one token at a time. Every <tuple> is a
// candidate record and is evaluated when its end tag is read, so nested
// tuples surface before their parents.
type xmlReader struct {
	closer io.Closer
	dec    *xml.Decoder
	depth  int
	open   []*tupleFrame
}

type tupleFrame struct {
	depth   int
	hasAttr bool
	atoms   map[string]string
}

type atomElement struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

// OpenXML opens an EMu XML export for streaming
func OpenXML(path string) (Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r := NewXMLReader(file)
	r.(*xmlReader).closer = file
	return r, nil
}

// NewXMLReader streams records from r; Close does not close r
func NewXMLReader(r io.Reader) Reader {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	return &xmlReader{dec: dec}
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func (x *xmlReader) Next() (Record, error) {
	for {
		tok, err := x.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(x.open) > 0 {
					return Record{}, fmt.Errorf("%w: unexpected end of document", ErrParse)
				}
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			x.depth++
			switch el.Name.Local {
			case "tuple":
				x.open = append(x.open, &tupleFrame{
					depth:   x.depth,
					hasAttr: hasAttributes(el.Attr),
					atoms:   make(map[string]string),
				})
			case "atom":
				frame := x.top()
				if frame == nil || frame.depth != x.depth-1 {
					continue
				}
				var atom atomElement
				if err := x.dec.DecodeElement(&atom, &el); err != nil {
					return Record{}, fmt.Errorf("%w: %v", ErrParse, err)
				}
				x.depth--
				if _, seen := frame.atoms[atom.Name]; !seen {
					frame.atoms[atom.Name] = atom.Text
				}
			}

		case xml.EndElement:
			frame := x.top()
			if el.Name.Local == "tuple" && frame != nil && frame.depth == x.depth {
				x.open = x.open[:len(x.open)-1]
				x.depth--
				if rec, ok := frame.record(); ok {
					return rec, nil
				}
				continue
			}
			x.depth--
		}
	}
}

func (x *xmlReader) top() *tupleFrame {
	if len(x.open) == 0 {
		return nil
	}
	return x.open[len(x.open)-1]
}

func (x *xmlReader) Close() error {
	if x.closer != nil {
		return x.closer.Close()
	}
	return nil
}

// hasAttributes ignores namespace declarations, which are not attributes of the element itself
func hasAttributes(attrs []xml.Attr) bool {
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		return true
	}
	return false
}

func (f *tupleFrame) record() (Record, bool) {
	if _, ok := f.atoms[FieldUnitTitle]; ok {
		ident, ok := f.atoms[FieldUnitID]
		if !ok || f.hasAttr || strings.TrimSpace(ident) == "" {
			return Record{}, false
		}
		title, hasTitle := f.atoms[FieldUnitTitle]
		scope, hasScope := f.atoms[FieldScope]
		return Record{
			ID:    ident,
			Kind:  Archival,
			Lines: archivalLines(title, hasTitle, scope, hasScope),
		}, true
	}

	if name, ok := f.atoms[FieldFullName]; ok {
		irn, ok := f.atoms[FieldIRN]
		if !ok || f.hasAttr || strings.TrimSpace(irn) == "" {
			return Record{}, false
		}
		var lines []string
		for _, field := range []string{FieldBioNotes, FieldHisBeginNotes, FieldHisEndNotes} {
			if text, ok := f.atoms[field]; ok {
				lines = append(lines, SplitLines(text)...)
			}
		}
		return Record{ID: authorityID(irn, name), Kind: Authority, Lines: lines}, true
	}

	return Record{}, false
}
