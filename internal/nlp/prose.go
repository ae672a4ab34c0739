package nlp

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// ProseEngine runs prose's English entity extractor in process.
// It tags PERSON and GPE only and needs no external service.
type ProseEngine struct{}

// NewProseEngine returns the in-process engine
func NewProseEngine() *ProseEngine {
	return &ProseEngine{}
}

// Recognize tokenises and tags text, returning spans as token indices
func (p *ProseEngine) Recognize(ctx context.Context, text string) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("prose: %w", err)
	}
	return analyseTokens(text, doc.Tokens()), nil
}

// analyseTokens locates each prose token in text and decodes its IOB label
func analyseTokens(text string, tokens []prose.Token) *Analysis {
	a := &Analysis{Text: text, Unit: Tokens, Tokens: make([]Token, len(tokens))}
	tagged := make([]taggedToken, len(tokens))

	cursor := 0
	for i, t := range tokens {
		start, end := cursor, cursor
		if idx := strings.Index(text[cursor:], t.Text); idx >= 0 && t.Text != "" {
			start = cursor + idx
			end = start + len(t.Text)
			cursor = end
		}
		a.Tokens[i] = Token{
			Text:  t.Text,
			Start: utf8.RuneCountInString(text[:start]),
			End:   utf8.RuneCountInString(text[:end]),
		}
		tagged[i] = taggedToken{tok: Token{Start: i, End: i + 1}, tag: t.Label}
	}

	for _, s := range decodeBIOES(tagged) {
		first, last := a.Tokens[s.Start], a.Tokens[s.End-1]
		if last.End > first.Start {
			s.Text = runeSlice([]rune(text), first.Start, last.End)
		} else {
			parts := make([]string, 0, s.End-s.Start)
			for _, tok := range a.Tokens[s.Start:s.End] {
				parts = append(parts, tok.Text)
			}
			s.Text = strings.Join(parts, " ")
		}
		a.Spans = append(a.Spans, s)
	}
	return a
}
