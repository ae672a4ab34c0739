package nlp

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultStanzaLang is the pipeline language requested when none is configured
const DefaultStanzaLang = "en"

// StanzaClient talks to a Stanza pipeline served over HTTP.
// The service answers POST /process with Document.to_dict(): a list of
// sentences, each a list of token dicts carrying BIOES ner tags.
type StanzaClient struct {
	service
	lang string
}

type stanzaRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

type stanzaToken struct {
	Text      string `json:"text"`
	StartChar *int   `json:"start_char"`
	EndChar   *int   `json:"end_char"`
	Misc      string `json:"misc"`
	NER       string `json:"ner"`
}

// NewStanzaClient creates a client for the Stanza service at baseURL
func NewStanzaClient(baseURL, lang string, timeout time.Duration) *StanzaClient {
	if lang == "" {
		lang = DefaultStanzaLang
	}
	return &StanzaClient{service: newService(baseURL, timeout), lang: lang}
}

// Probe checks that the language model is installed
func (c *StanzaClient) Probe(ctx context.Context) error {
	return c.post(ctx, "/process", stanzaRequest{Text: "", Lang: c.lang}, nil)
}

// Download asks the service to install the language model
func (c *StanzaClient) Download(ctx context.Context) error {
	return c.post(ctx, "/download", map[string]string{"lang": c.lang}, nil)
}

// Recognize processes text and returns entity spans as character offsets
func (c *StanzaClient) Recognize(ctx context.Context, text string) (*Analysis, error) {
	var sentences [][]json.RawMessage
	if err := c.post(ctx, "/process", stanzaRequest{Text: text, Lang: c.lang}, &sentences); err != nil {
		return nil, err
	}

	runes := []rune(text)
	a := &Analysis{Text: text, Unit: Chars}
	for _, sentence := range sentences {
		var tagged []taggedToken
		for _, raw := range sentence {
			var t stanzaToken
			if err := json.Unmarshal(raw, &t); err != nil {
				continue
			}
			start, end, ok := t.offsets()
			if !ok {
				// words inside a multi-word token carry no offsets of their own
				continue
			}
			tok := Token{Text: t.Text, Start: start, End: end}
			a.Tokens = append(a.Tokens, tok)
			tagged = append(tagged, taggedToken{tok: tok, tag: t.NER})
		}

		for _, s := range decodeBIOES(tagged) {
			s.Text = runeSlice(runes, s.Start, s.End)
			a.Spans = append(a.Spans, s)
		}
	}
	return a, nil
}

// offsets reads start_char/end_char, falling back to the misc field used by older releases
func (t stanzaToken) offsets() (int, int, bool) {
	if t.StartChar != nil && t.EndChar != nil {
		return *t.StartChar, *t.EndChar, true
	}

	start, end := -1, -1
	for _, kv := range strings.Split(t.Misc, "|") {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "start_char":
			start = n
		case "end_char":
			end = n
		}
	}
	return start, end, start >= 0 && end >= start
}

type taggedToken struct {
	tok Token
	tag string
}

// decodeBIOES turns per-token BIOES (or BIO) tags into character spans.
// An entity left open by a missing E- tag is closed at the next boundary.
func decodeBIOES(tokens []taggedToken) []Span {
	var spans []Span
	var open *Span

	closeOpen := func() {
		if open != nil {
			spans = append(spans, *open)
			open = nil
		}
	}

	for _, t := range tokens {
		prefix, label, _ := strings.Cut(t.tag, "-")
		switch prefix {
		case "S":
			closeOpen()
			spans = append(spans, Span{Label: label, Start: t.tok.Start, End: t.tok.End})
		case "B":
			closeOpen()
			open = &Span{Label: label, Start: t.tok.Start, End: t.tok.End}
		case "I", "E":
			if open == nil || open.Label != label {
				closeOpen()
				open = &Span{Label: label, Start: t.tok.Start, End: t.tok.End}
			} else {
				open.End = t.tok.End
			}
			if prefix == "E" {
				closeOpen()
			}
		default:
			closeOpen()
		}
	}
	closeOpen()
	return spans
}
