package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/export"
	"github.com/emu-entities/internal/store"
)

// RunSource is the read side of the run store
type RunSource interface {
	ListRuns(ctx context.Context) ([]store.RunInfo, error)
	LoadRun(ctx context.Context, runID int64) (*aggregate.Set, error)
}

// RunsHandler serves stored extraction runs
type RunsHandler struct {
	Runs RunSource
}

// EntityResponse is one entity of a run
type EntityResponse struct {
	Text        string                 `json:"text"`
	Label       string                 `json:"label"`
	Count       int                    `json:"count"`
	Alternate   []string               `json:"alternate,omitempty"`
	Occurrences []aggregate.Occurrence `json:"occurrences"`
}

// EntitiesResponse lists the entities of a run, most frequent first
type EntitiesResponse struct {
	RunID    int64            `json:"run_id"`
	Total    int              `json:"total"`
	Entities []EntityResponse `json:"entities"`
}

// Health reports that the server is up
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// ListRuns returns every stored run
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Runs.ListRuns(r.Context())
	if err != nil {
		debug.Error("list runs", "error", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunInfo{}
	}
	writeJSON(w, runs)
}

// GetEntities returns the entities of one run. The label query parameter
// filters by label and min drops entities with fewer occurrences.
func (h *RunsHandler) GetEntities(w http.ResponseWriter, r *http.Request) {
	runID, set, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	label := strings.ToUpper(r.URL.Query().Get("label"))
	minCount := 0
	if v := r.URL.Query().Get("min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid min", http.StatusBadRequest)
			return
		}
		minCount = n
	}

	selected := set.Filter(func(text string, agg *aggregate.Aggregate) bool {
		return (label == "" || agg.Label == label) && agg.Count() >= minCount
	})

	response := EntitiesResponse{RunID: runID, Entities: []EntityResponse{}}
	for _, e := range selected.Sorted() {
		response.Entities = append(response.Entities, EntityResponse{
			Text:        e.Text,
			Label:       e.Aggregate.Label,
			Count:       e.Aggregate.Count(),
			Alternate:   e.Aggregate.Alternate,
			Occurrences: e.Aggregate.Occurrences,
		})
	}
	response.Total = len(response.Entities)

	writeJSON(w, response)
}

// ExportCSV downloads one run in the entity CSV layout
func (h *RunsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	runID, set, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%d-entities.csv"`, runID))
	if err := export.WriteCSV(w, set); err != nil {
		debug.Error("export csv", "run", runID, "error", err)
	}
}

func (h *RunsHandler) loadRun(w http.ResponseWriter, r *http.Request) (int64, *aggregate.Set, bool) {
	runID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return 0, nil, false
	}

	set, err := h.Runs.LoadRun(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return 0, nil, false
	}
	if err != nil {
		debug.Error("load run", "run", runID, "error", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return 0, nil, false
	}
	return runID, set, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
