// Package reconcile annotates an extracted-entity CSV with known parties and geocoded places.
package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/geocode"
	"github.com/emu-entities/internal/parties"
)

// Columns appended by the reconciler
const (
	ColName      = "EMU name"
	ColIRN       = "EMU IRN"
	ColScore     = "match score"
	ColAddress   = "address"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
)

// Columns lists the reconciler columns in the order they are appended
var Columns = []string{ColName, ColIRN, ColScore, ColAddress, ColLatitude, ColLongitude}

// AddressParser splits a geocoded address into extra columns
type AddressParser interface {
	Parse(address string) map[string]string
	Columns() []string
}

// Reconciler matches PERSON and ORG rows against known parties and geocodes LOC and GPE rows
type Reconciler struct {
	Parties  *parties.Matcher
	Geocoder geocode.Geocoder
	Address  AddressParser
	Debug    bool
}

// Stats counts what one reconcile run did
type Stats struct {
	Rows     int
	Matched  int
	Geocoded int
}

// New creates a reconciler. addr may be nil.
func New(matcher *parties.Matcher, geocoder geocode.Geocoder, addr AddressParser) *Reconciler {
	return &Reconciler{Parties: matcher, Geocoder: geocoder, Address: addr}
}

// File reconciles the CSV at path and rewrites it in place. The file is only
// replaced once every row has been processed, so a failed lookup leaves it untouched.
func (r *Reconciler) File(ctx context.Context, path string) (Stats, error) {
	defer debug.DebugTiming(r.Debug, "reconcile "+path)()

	header, rows, err := readTable(path)
	if err != nil {
		return Stats{}, err
	}

	header = r.extendHeader(header)
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	labelCol, hasLabel := columns["label"]
	textCol, hasText := columns["text"]
	if !hasLabel || !hasText {
		return Stats{}, errors.New("entity CSV needs label and text columns")
	}

	var stats Stats
	for i, row := range rows {
		if len(row) < len(header) {
			row = append(row, make([]string, len(header)-len(row))...)
			rows[i] = row
		}
		set := func(name, value string) {
			row[columns[name]] = value
		}

		label, text := row[labelCol], row[textCol]
		switch label {
		case "PERSON", "ORG":
			party, score, ok := r.Parties.Match(text)
			if !ok {
				break
			}
			set(ColName, party.Name)
			set(ColIRN, party.IRN)
			set(ColScore, strconv.Itoa(score))
			stats.Matched++
			debug.Info("matched party", "text", text, "name", party.Name, "score", score)
		case "LOC", "GPE":
			loc, err := r.Geocoder.Geocode(ctx, text)
			if err != nil {
				return stats, fmt.Errorf("geocode %q: %w", text, err)
			}
			if loc == nil {
				break
			}
			set(ColAddress, loc.Address)
			set(ColLatitude, strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
			set(ColLongitude, strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
			if r.Address != nil {
				for name, value := range r.Address.Parse(loc.Address) {
					if _, ok := columns[name]; ok {
						set(name, value)
					}
				}
			}
			stats.Geocoded++
			debug.Info("geocoded place", "text", text, "address", loc.Address)
		}
		stats.Rows++
	}

	if err := writeTable(path, header, rows); err != nil {
		return stats, err
	}
	return stats, nil
}

// extendHeader appends the reconciler columns the header does not have yet
func (r *Reconciler) extendHeader(header []string) []string {
	wanted := slices.Clone(Columns)
	if r.Address != nil {
		wanted = append(wanted, r.Address.Columns()...)
	}
	for _, name := range wanted {
		if !slices.Contains(header, name) {
			header = append(header, name)
		}
	}
	return header
}

func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("%s is empty", path)
		}
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return header, rows, nil
}

// writeTable replaces path atomically with a UTF-8 CSV carrying a byte order mark
func writeTable(path string, header []string, rows [][]string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeTable(tmp, header, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// encodeTable writes the byte order mark, header and rows to w
func encodeTable(w io.Writer, header []string, rows [][]string) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("failed to write byte order mark: %w", err)
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
