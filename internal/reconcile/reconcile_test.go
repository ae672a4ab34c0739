package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emu-entities/internal/geocode"
	"github.com/emu-entities/internal/parties"
)

type fakeGeocoder struct {
	places map[string]geocode.Location
	fail   string
	calls  []string
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*geocode.Location, error) {
	f.calls = append(f.calls, query)
	if query == f.fail {
		return nil, errors.New("network down")
	}
	loc, ok := f.places[query]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

type fakeAddress struct{}

func (fakeAddress) Parse(address string) map[string]string {
	return map[string]string{"city": strings.ToLower(strings.Split(address, ",")[0])}
}

func (fakeAddress) Columns() []string {
	return []string{"road", "city"}
}

const entitiesCSV = "\ufefflabel,text,alternate,records,context,occurrences\n" +
	"PERSON,John Smith,Jon Smith,E1|E2,a|b,2\n" +
	"GPE,Edinburgh,,E2,c,1\n" +
	"ORG,Unknown Society,,E3,d,1\n" +
	"LOC,Atlantis,,E4,e,1\n" +
	"DATE,1850,,E5,f,1\n"

func newMatcher(t *testing.T) *parties.Matcher {
	list, err := parties.Read(strings.NewReader("irn,NamFullName\n17,\"Smith, John\"\n"))
	require.NoError(t, err)
	return parties.NewMatcher(list, 90)
}

func writeFixture(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "entities.csv")
	require.NoError(t, os.WriteFile(path, []byte(entitiesCSV), 0644))
	return path
}

func TestReconcileFile(t *testing.T) {
	path := writeFixture(t)
	geo := &fakeGeocoder{places: map[string]geocode.Location{
		"Edinburgh": {Address: "Edinburgh, Scotland", Latitude: 55.95206, Longitude: -3.18827},
	}}

	stats, err := New(newMatcher(t), geo, nil).File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Stats{Rows: 5, Matched: 1, Geocoded: 1}, stats)
	assert.Equal(t, []string{"Edinburgh", "Atlantis"}, geo.calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "\ufefflabel,text,alternate,records,context,occurrences,EMU name,EMU IRN,match score,address,latitude,longitude", lines[0])
	assert.Equal(t, `PERSON,John Smith,Jon Smith,E1|E2,a|b,2,"Smith, John",17,100,,,`, lines[1])
	assert.Equal(t, `GPE,Edinburgh,,E2,c,1,,,,"Edinburgh, Scotland",55.95206,-3.18827`, lines[2])
	assert.Equal(t, "ORG,Unknown Society,,E3,d,1,,,,,,", lines[3])
	assert.Equal(t, "LOC,Atlantis,,E4,e,1,,,,,,", lines[4])
	assert.Equal(t, "DATE,1850,,E5,f,1,,,,,,", lines[5])
}

func TestReconcileIsIdempotentOnHeader(t *testing.T) {
	path := writeFixture(t)
	r := New(newMatcher(t), &fakeGeocoder{}, nil)

	_, err := r.File(context.Background(), path)
	require.NoError(t, err)
	_, err = r.File(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Equal(t, 1, strings.Count(header, "EMU name"))
}

func TestReconcileAddressColumns(t *testing.T) {
	path := writeFixture(t)
	geo := &fakeGeocoder{places: map[string]geocode.Location{
		"Edinburgh": {Address: "Edinburgh, Scotland", Latitude: 55.9, Longitude: -3.2},
	}}

	_, err := New(newMatcher(t), geo, fakeAddress{}).File(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	assert.True(t, strings.HasSuffix(lines[0], "longitude,road,city"))
	assert.Equal(t, `GPE,Edinburgh,,E2,c,1,,,,"Edinburgh, Scotland",55.9,-3.2,,edinburgh`, lines[2])
}

func TestReconcileGeocodeErrorLeavesFileUntouched(t *testing.T) {
	path := writeFixture(t)
	geo := &fakeGeocoder{fail: "Atlantis"}

	_, err := New(newMatcher(t), geo, nil).File(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, entitiesCSV, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file is left behind")
}

func TestReconcileMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,count\nJane,1\n"), 0644))

	_, err := New(newMatcher(t), &fakeGeocoder{}, nil).File(context.Background(), path)
	assert.Error(t, err)
}

type limitedWriter struct {
	n int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		written := w.n
		w.n = 0
		return written, errors.New("disk full")
	}
	w.n -= len(p)
	return len(p), nil
}

func TestEncodeTableReportsWriteErrors(t *testing.T) {
	header := []string{"label", "text"}
	rows := [][]string{{"GPE", "Leeds"}}

	var sb strings.Builder
	require.NoError(t, encodeTable(&sb, header, rows))
	assert.Equal(t, "\ufefflabel,text\nGPE,Leeds\n", sb.String())

	err := encodeTable(&limitedWriter{n: 0}, header, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte order mark")

	err = encodeTable(&limitedWriter{n: 3}, header, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
