// Package extract turns record lines into entity occurrences.
package extract

import (
	"context"
	"slices"
	"strings"

	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/nlp"
	"github.com/emu-entities/internal/normalize"
)

// DefaultLabels is the label allow-list used when none is given
var DefaultLabels = []string{"PERSON", "ORG", "GPE", "LOC", "FAC", "EVENT", "LANGUAGE"}

// Context window widths per offset unit
const (
	CharWindow  = 10
	TokenWindow = 3
)

// WindowFor returns the context window width for spans counted in unit
func WindowFor(unit nlp.Unit) int {
	if unit == nlp.Tokens {
		return TokenWindow
	}
	return CharWindow
}

// ParseLabels splits comma or space separated labels and upper-cases them
func ParseLabels(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			label := strings.ToUpper(f)
			if !slices.Contains(out, label) {
				out = append(out, label)
			}
		}
	}
	return out
}

// Line recognises entities in one line of record id and returns an occurrence
// for every span whose label is in labels. Blank lines are not sent to the engine.
func Line(ctx context.Context, rec nlp.Recognizer, id, line string, labels []string) ([]aggregate.Occurrence, error) {
	if normalize.IsBlank(line) {
		return nil, nil
	}

	analysis, err := rec.Recognize(ctx, line)
	if err != nil {
		return nil, err
	}

	var occs []aggregate.Occurrence
	for _, span := range analysis.Spans {
		if !slices.Contains(labels, span.Label) {
			continue
		}
		occs = append(occs, aggregate.Occurrence{
			Text:    span.Text,
			Record:  id,
			Label:   span.Label,
			Context: Context(analysis, span),
		})
		debug.Info("entity", "record", id, "label", span.Label, "text", span.Text)
	}
	return occs, nil
}

// Context returns the text around span, widened by the unit's window on each
// side and clamped to the start and true end of the analysed line
func Context(a *nlp.Analysis, span nlp.Span) string {
	n := WindowFor(a.Unit)
	start := max(0, span.Start-n)
	end := min(a.Limit(), span.End+n)
	if start >= end {
		return ""
	}

	runes := []rune(a.Text)
	if a.Unit == nlp.Tokens {
		from, to := a.Tokens[start].Start, a.Tokens[end-1].End
		if to < from {
			return ""
		}
		return string(runes[from:min(to, len(runes))])
	}
	return string(runes[start:end])
}
