// Package postal splits geocoded addresses into components with libpostal.
//
// Importing this package requires libpostal and cgo.
package postal

import (
	"strings"

	parser "github.com/openvenues/gopostal/parser"
)

// Columns are the component columns added to reconciled CSVs
var Columns = []string{"road", "city", "postcode", "country"}

// Parser extracts road, city, postcode and country from a free-text address
type Parser struct{}

// NewParser returns a libpostal backed parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse returns the components of address keyed by column name. Columns
// libpostal found nothing for are absent.
func (p *Parser) Parse(address string) map[string]string {
	if strings.TrimSpace(address) == "" {
		return nil
	}
	return fromComponents(parser.ParseAddress(address))
}

// Columns returns the column names Parse can fill
func (p *Parser) Columns() []string {
	return Columns
}

// cityLabels lists libpostal labels usable as the city column, best first
var cityLabels = []string{"city", "city_district", "suburb"}

func fromComponents(components []parser.ParsedComponent) map[string]string {
	byLabel := make(map[string]string)
	for _, c := range components {
		if _, seen := byLabel[c.Label]; !seen {
			byLabel[c.Label] = c.Value
		}
	}

	out := make(map[string]string)
	for _, label := range []string{"road", "postcode", "country"} {
		if v, ok := byLabel[label]; ok {
			out[label] = v
		}
	}
	for _, label := range cityLabels {
		if v, ok := byLabel[label]; ok {
			out["city"] = v
			break
		}
	}
	return out
}
