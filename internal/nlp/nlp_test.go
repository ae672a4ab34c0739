package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jdkato/prose/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpacyClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		var req spacyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en_core_web_sm", req.Model)

		w.Write([]byte(`{
			"text": "Letter from John Smith to Jane.",
			"ents": [{"start": 12, "end": 22, "label": "PERSON"}, {"start": 26, "end": 30, "label": "PERSON"}],
			"tokens": [
				{"id": 0, "start": 0, "end": 6}, {"id": 1, "start": 7, "end": 11},
				{"id": 2, "start": 12, "end": 16}, {"id": 3, "start": 17, "end": 22},
				{"id": 4, "start": 23, "end": 25}, {"id": 5, "start": 26, "end": 30},
				{"id": 6, "start": 30, "end": 31}
			]
		}`))
	}))
	defer srv.Close()

	c := NewSpacyClient(srv.URL, "", 0)
	a, err := c.Recognize(context.Background(), "Letter from John Smith to Jane.")
	require.NoError(t, err)

	assert.Equal(t, Tokens, a.Unit)
	assert.Equal(t, 7, a.Limit())
	assert.Equal(t, "Smith", a.Tokens[3].Text)
	assert.Equal(t, []Span{
		{Text: "John Smith", Label: "PERSON", Start: 2, End: 4},
		{Text: "Jane", Label: "PERSON", Start: 5, End: 6},
	}, a.Spans)
}

func TestStanzaClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process", r.URL.Path)
		w.Write([]byte(`[[
			{"id": 1, "text": "Müller", "start_char": 0, "end_char": 6, "ner": "S-PERSON"},
			{"id": 2, "text": "visited", "start_char": 7, "end_char": 14, "ner": "O"},
			{"id": 3, "text": "New", "misc": "start_char=15|end_char=18", "ner": "B-GPE"},
			{"id": 4, "text": "York", "start_char": 19, "end_char": 23, "ner": "E-GPE"},
			{"id": 5, "text": ".", "start_char": 23, "end_char": 24, "ner": "O"}
		]]`))
	}))
	defer srv.Close()

	c := NewStanzaClient(srv.URL, "", 0)
	a, err := c.Recognize(context.Background(), "Müller visited New York.")
	require.NoError(t, err)

	assert.Equal(t, Chars, a.Unit)
	assert.Equal(t, 24, a.Limit())
	assert.Equal(t, []Span{
		{Text: "Müller", Label: "PERSON", Start: 0, End: 6},
		{Text: "New York", Label: "GPE", Start: 15, End: 23},
	}, a.Spans)
}

func TestDecodeBIOES(t *testing.T) {
	tok := func(i int, tag string) taggedToken {
		return taggedToken{tok: Token{Start: i, End: i + 1}, tag: tag}
	}

	tests := []struct {
		name   string
		tokens []taggedToken
		want   []Span
	}{
		{"single", []taggedToken{tok(0, "S-ORG")}, []Span{{Label: "ORG", Start: 0, End: 1}}},
		{"begin end", []taggedToken{tok(0, "O"), tok(1, "B-PERSON"), tok(2, "I-PERSON"), tok(3, "E-PERSON")},
			[]Span{{Label: "PERSON", Start: 1, End: 4}}},
		{"bio without end", []taggedToken{tok(0, "B-GPE"), tok(1, "I-GPE"), tok(2, "O"), tok(3, "B-PERSON")},
			[]Span{{Label: "GPE", Start: 0, End: 2}, {Label: "PERSON", Start: 3, End: 4}}},
		{"label change", []taggedToken{tok(0, "B-ORG"), tok(1, "I-GPE")},
			[]Span{{Label: "ORG", Start: 0, End: 1}, {Label: "GPE", Start: 1, End: 2}}},
		{"nothing", []taggedToken{tok(0, "O"), tok(1, "")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeBIOES(tt.tokens))
		})
	}
}

func TestAnalyseProseTokens(t *testing.T) {
	text := "Visit of Élodie Brontë to London"
	tokens := []prose.Token{
		{Text: "Visit", Label: "O"},
		{Text: "of", Label: "O"},
		{Text: "Élodie", Label: "B-PERSON"},
		{Text: "Brontë", Label: "I-PERSON"},
		{Text: "to", Label: "O"},
		{Text: "London", Label: "B-GPE"},
	}

	a := analyseTokens(text, tokens)
	assert.Equal(t, Tokens, a.Unit)
	assert.Equal(t, Token{Text: "Brontë", Start: 16, End: 22}, a.Tokens[3])
	assert.Equal(t, []Span{
		{Text: "Élodie Brontë", Label: "PERSON", Start: 2, End: 4},
		{Text: "London", Label: "GPE", Start: 5, End: 6},
	}, a.Spans)
}

// modelServer answers 404 until /download has been called, or forever when broken
func modelServer(t *testing.T, broken bool) (*httptest.Server, *int32, *int32) {
	var probes, downloads int32
	var installed atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			atomic.AddInt32(&downloads, 1)
			if !broken {
				installed.Store(true)
			}
			w.Write([]byte(`{}`))
		default:
			atomic.AddInt32(&probes, 1)
			if !installed.Load() {
				http.Error(w, "model not found", http.StatusNotFound)
				return
			}
			w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &probes, &downloads
}

func TestLoadWithDownloadRetriesOnce(t *testing.T) {
	srv, probes, downloads := modelServer(t, false)

	err := LoadWithDownload(context.Background(), NewStanzaClient(srv.URL, "en", 0))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(probes))
	assert.Equal(t, int32(1), atomic.LoadInt32(downloads))
}

func TestLoadWithDownloadGivesUp(t *testing.T) {
	srv, probes, downloads := modelServer(t, true)

	err := LoadWithDownload(context.Background(), NewStanzaClient(srv.URL, "en", 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelMissing))
	assert.Equal(t, int32(2), atomic.LoadInt32(probes))
	assert.Equal(t, int32(1), atomic.LoadInt32(downloads))
}

func TestServiceErrorIsNotModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewSpacyClient(srv.URL, "", 0).Recognize(context.Background(), "text")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrModelMissing))
	assert.Contains(t, err.Error(), "500")
}

func TestNewUnknownProcessor(t *testing.T) {
	_, err := New(context.Background(), Config{Processor: "nltk"})
	assert.True(t, errors.Is(err, ErrUnknownProcessor))

	r, err := New(context.Background(), Config{Processor: "prose"})
	require.NoError(t, err)
	assert.IsType(t, &ProseEngine{}, r)
}
