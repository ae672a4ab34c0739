package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/nlp"
	"github.com/emu-entities/internal/normalize"
	"github.com/emu-entities/internal/records"
)

// Pipeline fans record lines out to a recogniser and aggregates the occurrences
type Pipeline struct {
	Recognizer nlp.Recognizer
	Labels     []string
	Workers    int
	Debug      bool
}

// Stats summarises one pipeline run
type Stats struct {
	Records     int
	Lines       int
	Occurrences int
	Entities    int
	Duration    time.Duration
}

type task struct {
	record string
	line   string
}

// NewPipeline creates a pipeline with the default labels and one worker per CPU
func NewPipeline(rec nlp.Recognizer) *Pipeline {
	return &Pipeline{
		Recognizer: rec,
		Labels:     DefaultLabels,
		Workers:    runtime.NumCPU(),
	}
}

// Run reads every record from r, recognises each non-blank line on a bounded
// worker pool and merges the results in record order. The first error cancels
// outstanding lines and is returned.
func (p *Pipeline) Run(ctx context.Context, r records.Reader) (*aggregate.Set, Stats, error) {
	defer debug.DebugTiming(p.Debug, "extract entities")()
	start := time.Now()

	var stats Stats
	var tasks []task
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read records: %w", err)
		}
		stats.Records++
		for _, line := range rec.Lines {
			if normalize.IsBlank(line) {
				continue
			}
			tasks = append(tasks, task{record: rec.ID, line: line})
		}
	}
	stats.Lines = len(tasks)
	debug.DebugOutput(p.Debug, "Queued %d lines from %d records", stats.Lines, stats.Records)

	labels := p.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*aggregate.Set, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			occs, err := Line(gctx, p.Recognizer, t.record, t.line, labels)
			if err != nil {
				return fmt.Errorf("record %s: %w", t.record, err)
			}
			batch := aggregate.NewSet()
			batch.AddAll(occs)
			results[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	set := aggregate.NewSet()
	for _, batch := range results {
		set.Merge(batch)
	}

	stats.Occurrences = set.Occurrences()
	stats.Entities = set.Len()
	stats.Duration = time.Since(start)
	return set, stats, nil
}
