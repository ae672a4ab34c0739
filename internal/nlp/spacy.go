package nlp

import (
	"context"
	"time"
)

// DefaultSpacyModel is the pipeline requested when none is configured
const DefaultSpacyModel = "en_core_web_sm"

// SpacyClient talks to a spaCy pipeline served over HTTP.
// The service answers POST /parse with Doc.to_json().
type SpacyClient struct {
	service
	model string
}

type spacyRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type spacyDoc struct {
	Text string `json:"text"`
	Ents []struct {
		Start int    `json:"start"`
		End   int    `json:"end"`
		Label string `json:"label"`
	} `json:"ents"`
	Tokens []struct {
		ID    int `json:"id"`
		Start int `json:"start"`
		End   int `json:"end"`
	} `json:"tokens"`
}

// NewSpacyClient creates a client for the spaCy service at baseURL
func NewSpacyClient(baseURL, model string, timeout time.Duration) *SpacyClient {
	if model == "" {
		model = DefaultSpacyModel
	}
	return &SpacyClient{service: newService(baseURL, timeout), model: model}
}

// Probe checks that the model is installed
func (c *SpacyClient) Probe(ctx context.Context) error {
	return c.post(ctx, "/parse", spacyRequest{Text: "", Model: c.model}, nil)
}

// Download asks the service to install the model
func (c *SpacyClient) Download(ctx context.Context) error {
	return c.post(ctx, "/download", map[string]string{"model": c.model}, nil)
}

// Recognize parses text and returns entity spans as token indices
func (c *SpacyClient) Recognize(ctx context.Context, text string) (*Analysis, error) {
	var doc spacyDoc
	if err := c.post(ctx, "/parse", spacyRequest{Text: text, Model: c.model}, &doc); err != nil {
		return nil, err
	}

	runes := []rune(text)
	a := &Analysis{Text: text, Unit: Tokens, Tokens: make([]Token, len(doc.Tokens))}
	for i, t := range doc.Tokens {
		a.Tokens[i] = Token{Text: runeSlice(runes, t.Start, t.End), Start: t.Start, End: t.End}
	}

	for _, e := range doc.Ents {
		start, end := tokenRange(a.Tokens, e.Start, e.End)
		if start >= end {
			continue
		}
		a.Spans = append(a.Spans, Span{
			Text:  runeSlice(runes, e.Start, e.End),
			Label: e.Label,
			Start: start,
			End:   end,
		})
	}
	return a, nil
}

// tokenRange maps a character span onto the half-open range of tokens it covers
func tokenRange(tokens []Token, charStart, charEnd int) (int, int) {
	start, end := -1, -1
	for i, t := range tokens {
		if start < 0 && t.End > charStart {
			start = i
		}
		if t.Start < charEnd {
			end = i + 1
		}
	}
	if start < 0 || end < 0 {
		return 0, 0
	}
	return start, end
}
