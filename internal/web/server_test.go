package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/store"
	"github.com/emu-entities/internal/web/handlers"
)

type memoryRuns struct {
	runs []store.RunInfo
	sets map[int64]*aggregate.Set
}

func (m *memoryRuns) ListRuns(ctx context.Context) ([]store.RunInfo, error) {
	return m.runs, nil
}

func (m *memoryRuns) LoadRun(ctx context.Context, runID int64) (*aggregate.Set, error) {
	set, ok := m.sets[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrRunNotFound, runID)
	}
	return set, nil
}

func newTestServer(apiKey string) *Server {
	set := aggregate.NewSet()
	set.Add(aggregate.Occurrence{Text: "Leeds", Record: "E1", Label: "GPE", Context: "in Leeds"})
	set.Add(aggregate.Occurrence{Text: "John Smith", Record: "E1", Label: "PERSON", Context: "from John Smith"})
	set.Add(aggregate.Occurrence{Text: "John Smith", Record: "E2", Label: "PERSON", Context: "John Smith wrote"})

	runs := &memoryRuns{
		runs: []store.RunInfo{{ID: 7, Label: "letters", SourceFile: "letters.xml", Processor: "spacy",
			Entities: 2, Occurrences: 3, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}},
		sets: map[int64]*aggregate.Set{7: set},
	}
	cfg := &Config{Server: ServerConfig{Host: "127.0.0.1", Port: 0}, Auth: AuthConfig{APIKey: apiKey}}
	return NewServer(cfg, runs)
}

func get(t *testing.T, s *Server, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(""), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	rec := get(t, newTestServer(""), "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []store.RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, int64(7), runs[0].ID)
	assert.Equal(t, "letters.xml", runs[0].SourceFile)
}

func TestGetEntities(t *testing.T) {
	s := newTestServer("")

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"all sorted by count", "/api/runs/7/entities", []string{"John Smith", "Leeds"}},
		{"label filter", "/api/runs/7/entities?label=gpe", []string{"Leeds"}},
		{"minimum count", "/api/runs/7/entities?min=2", []string{"John Smith"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp handlers.EntitiesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			var got []string
			for _, e := range resp.Entities {
				got = append(got, e.Text)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), resp.Total)
		})
	}
}

func TestGetEntitiesErrors(t *testing.T) {
	s := newTestServer("")
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/99/entities").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/runs/7/entities?min=abc").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/runs/abc/entities").Code)
}

func TestExportCSV(t *testing.T) {
	rec := get(t, newTestServer(""), "/api/runs/7/entities.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "run-7-entities.csv")

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "PERSON,John Smith,,E1|E2,from John Smith|John Smith wrote,2", lines[1])
}

func TestAPIKey(t *testing.T) {
	s := newTestServer("secret")
	assert.Equal(t, http.StatusUnauthorized, get(t, s, "/api/runs").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/api/runs", "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code, "health is not behind the key")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodOptions, "/api/runs/7/entities", nil)
	req.Header.Set("Origin", "http://review.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")

	post := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, post)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
