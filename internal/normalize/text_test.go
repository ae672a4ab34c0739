package normalize

import (
	"testing"
)

func TestProcess(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"punctuation becomes space", "Smith, John.", "smith  john"},
		{"case folded", "ROYAL Society", "royal society"},
		{"accents folded", "Müller & Søn", "muller   søn"},
		{"underscore kept", "a_b", "a_b"},
		{"only punctuation", "!!!", ""},
		{"surrounding whitespace", "  Jane\tDoe \n", "jane doe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Process(tt.input); got != tt.want {
				t.Errorf("Process(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSortedTokens(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Smith, John", "john smith"},
		{"John Smith", "john smith"},
		{"de la Mare, Walter", "de la mare walter"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SortedTokens(tt.input); got != tt.want {
				t.Errorf("SortedTokens(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFoldAccents(t *testing.T) {
	if got := FoldAccents("Élodie Brontë"); got != "Elodie Bronte" {
		t.Errorf("FoldAccents() = %q", got)
	}
}
