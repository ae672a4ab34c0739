package postal

import (
	"testing"

	parser "github.com/openvenues/gopostal/parser"
	"github.com/stretchr/testify/assert"
)

func TestFromComponents(t *testing.T) {
	got := fromComponents([]parser.ParsedComponent{
		{Label: "house_number", Value: "22"},
		{Label: "road", Value: "george street"},
		{Label: "suburb", Value: "new town"},
		{Label: "city", Value: "edinburgh"},
		{Label: "postcode", Value: "eh2 2pq"},
		{Label: "country", Value: "united kingdom"},
	})

	assert.Equal(t, map[string]string{
		"road":     "george street",
		"city":     "edinburgh",
		"postcode": "eh2 2pq",
		"country":  "united kingdom",
	}, got)

	got = fromComponents([]parser.ParsedComponent{{Label: "suburb", Value: "leith"}})
	assert.Equal(t, map[string]string{"city": "leith"}, got)
}

func TestParseBlank(t *testing.T) {
	assert.Nil(t, NewParser().Parse(" "))
	assert.Equal(t, Columns, NewParser().Columns())
}
