// Package export writes entity aggregates as JSON, CSV and XLSX, and reads the CSV back.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/emu-entities/internal/aggregate"
)

// Separator joins multi-valued CSV fields
const Separator = "|"

const bom = "\ufeff"

// Header is the column layout of the entity CSV
var Header = []string{"label", "text", "alternate", "records", "context", "occurrences"}

// Rows flattens set into CSV rows, most frequent entity first
func Rows(set *aggregate.Set) [][]string {
	sorted := set.Sorted()
	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, []string{
			e.Aggregate.Label,
			e.Text,
			strings.Join(e.Aggregate.Alternate, Separator),
			strings.Join(e.Aggregate.Records(), Separator),
			strings.Join(e.Aggregate.Contexts(), Separator),
			strconv.Itoa(e.Aggregate.Count()),
		})
	}
	return rows
}

// WriteJSON writes set as an object keyed by entity text, in insertion order
func WriteJSON(w io.Writer, set *aggregate.Set) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("failed to encode entities: %w", err)
	}
	return nil
}

// WriteCSV writes set as UTF-8 CSV with a byte order mark
func WriteCSV(w io.Writer, set *aggregate.Set) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(Rows(set)); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// ReadCSV reads an entity CSV written by WriteCSV. Columns added later, such as
// reconciliation results, are ignored. Each record in the pipe-joined records
// column becomes one occurrence.
func ReadCSV(r io.Reader) (*aggregate.Set, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return aggregate.NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, name := range []string{"label", "text", "records"} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	field := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	set := aggregate.NewSet()
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		text := field(row, "text")
		agg := &aggregate.Aggregate{Label: field(row, "label")}
		if alt := field(row, "alternate"); alt != "" {
			agg.Alternate = strings.Split(alt, Separator)
		}

		records, err := splitRecords(row, field)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", text, err)
		}
		var contexts []string
		if v := field(row, "context"); v != "" || len(records) > 0 {
			contexts = strings.Split(v, Separator)
		}
		for i, rec := range records {
			occ := aggregate.Occurrence{Text: text, Record: rec, Label: agg.Label}
			// a context containing the separator cannot be split back reliably
			if len(contexts) == len(records) {
				occ.Context = contexts[i]
			}
			agg.Occurrences = append(agg.Occurrences, occ)
		}
		set.Put(text, agg)
	}
	return set, nil
}

// splitRecords splits the records cell of row. When the occurrences column is
// present it decides how many ids the cell holds, so a single blank record id
// still yields one occurrence.
func splitRecords(row []string, field func([]string, string) string) ([]string, error) {
	cell := field(row, "records")
	count := field(row, "occurrences")
	if count == "" {
		if cell == "" {
			return nil, nil
		}
		return strings.Split(cell, Separator), nil
	}

	n, err := strconv.Atoi(count)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid occurrences %q", count)
	}
	if n == 0 {
		if cell != "" {
			return nil, fmt.Errorf("records %q given for zero occurrences", cell)
		}
		return nil, nil
	}
	records := strings.Split(cell, Separator)
	if len(records) != n {
		return nil, fmt.Errorf("records cell holds %d ids, occurrences is %d", len(records), n)
	}
	return records, nil
}

// SaveJSON writes set to a JSON file at path
func SaveJSON(path string, set *aggregate.Set) error {
	return saveFile(path, set, WriteJSON)
}

// SaveCSV writes set to a CSV file at path
func SaveCSV(path string, set *aggregate.Set) error {
	return saveFile(path, set, WriteCSV)
}

// LoadCSV reads an entity CSV file
func LoadCSV(path string) (*aggregate.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func saveFile(path string, set *aggregate.Set, write func(io.Writer, *aggregate.Set) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if err := write(w, set); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
