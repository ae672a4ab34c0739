// Package nlp wraps the named entity recognition engines behind one interface.
//
// Engines report spans either as character offsets (Stanza) or as token
// indices (spaCy, prose). All offsets are counted in runes of the analysed text.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emu-entities/internal/debug"
)

var (
	// ErrModelMissing is returned when an engine has no model installed for the requested language
	ErrModelMissing = errors.New("nlp model not installed")
	// ErrUnknownProcessor is returned by New for an unrecognised engine name
	ErrUnknownProcessor = errors.New("unknown nlp processor")
)

// Engine names accepted by New
const (
	Stanza = "stanza"
	Spacy  = "spacy"
	Prose  = "prose"
)

// Unit says how Span offsets are counted
type Unit int

const (
	// Chars offsets are rune positions in Analysis.Text
	Chars Unit = iota
	// Tokens offsets are indices into Analysis.Tokens
	Tokens
)

func (u Unit) String() string {
	if u == Tokens {
		return "tokens"
	}
	return "chars"
}

// Token is one token with its rune offsets into the analysed text
type Token struct {
	Text  string
	Start int
	End   int
}

// Span is a recognised entity. Start and End are half-open offsets in the analysis Unit.
type Span struct {
	Text  string
	Label string
	Start int
	End   int
}

// Analysis is the result of running an engine over one line of text
type Analysis struct {
	Text   string
	Unit   Unit
	Tokens []Token
	Spans  []Span
}

// Limit returns the true end of the analysed text in the analysis Unit
func (a *Analysis) Limit() int {
	if a.Unit == Tokens {
		return len(a.Tokens)
	}
	return len([]rune(a.Text))
}

// Recognizer finds named entities in a line of text
type Recognizer interface {
	Recognize(ctx context.Context, text string) (*Analysis, error)
}

// Loader is implemented by engines whose model is installed on demand
type Loader interface {
	Probe(ctx context.Context) error
	Download(ctx context.Context) error
}

// LoadWithDownload probes the engine and, when the model is missing,
// downloads it and probes exactly once more
func LoadWithDownload(ctx context.Context, l Loader) error {
	err := l.Probe(ctx)
	if err == nil || !errors.Is(err, ErrModelMissing) {
		return err
	}

	debug.Warn("model not installed, downloading", "error", err)
	if err := l.Download(ctx); err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}

	if err := l.Probe(ctx); err != nil {
		return fmt.Errorf("model still unavailable after download: %w", err)
	}
	return nil
}

// Config selects and configures an engine
type Config struct {
	Processor  string
	SpacyURL   string
	SpacyModel string
	StanzaURL  string
	StanzaLang string
	Timeout    time.Duration
	Debug      bool
}

// New builds the configured engine and makes sure its model is available
func New(ctx context.Context, cfg Config) (Recognizer, error) {
	switch strings.ToLower(cfg.Processor) {
	case Stanza, "":
		c := NewStanzaClient(cfg.StanzaURL, cfg.StanzaLang, cfg.Timeout)
		c.debug = cfg.Debug
		if err := LoadWithDownload(ctx, c); err != nil {
			return nil, fmt.Errorf("stanza: %w", err)
		}
		return c, nil
	case Spacy:
		c := NewSpacyClient(cfg.SpacyURL, cfg.SpacyModel, cfg.Timeout)
		c.debug = cfg.Debug
		if err := LoadWithDownload(ctx, c); err != nil {
			return nil, fmt.Errorf("spacy: %w", err)
		}
		return c, nil
	case Prose:
		return NewProseEngine(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, cfg.Processor)
}
