package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPage(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     int
		found    bool
	}{
		{"plain reference", "What is on page 7?", 7, true},
		{"uppercase", "Show me PAGE 12", 12, true},
		{"page number phrasing", "content of page number 3", 3, true},
		{"no space", "what does page4 say", 4, true},
		{"misspelling paage", "show paage 3 please", 3, true},
		{"misspelling pge", "what is on pge 15", 15, true},
		{"first match wins", "page 2 and also page 9", 2, true},
		{"no reference", "summarize the document", 0, false},
		{"page without number", "which page is it on", 0, false},
		{"zero page rejected", "open page 0 now", 0, false},
		{"huge number rejected", "page 99999999999999999999", 0, false},
		{"number without page word", "give me 42 facts", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := detectPage(tt.question)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPageCanonicalBeatsLoose(t *testing.T) {
	// Both patterns could match here; the canonical spelling is tried
	// first and takes the earlier number.
	got, ok := detectPage("pge 9 or page 5")
	assert.True(t, ok)
	assert.Equal(t, 5, got, "canonical pattern outranks the misspelling-tolerant one")
}
