package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_IsDisallowed(t *testing.T) {
	f := New()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"clean review", "Great ramen and friendly staff, will come back.", false},
		{"denied word", "total scam, avoid", true},
		{"denied word mixed case", "This place is a FRAUD.", true},
		{"substring is not a word", "The classic pasta was assorted nicely", false},
		{"masked spelling", "what the f*ck was that soup", true},
		{"masked spelling with punctuation", "sh*t!", true},
		{"caps ratio", "THIS IS THE BEST PLACE", true},
		{"short caps ignored", "OK GOOD", false},
		{"repetition", "good good good good food here", true},
		{"repetition needs more than three words", "delicious delicious delicious", false},
		{"caps and repetition", "SPAM SPAM SPAM BUY NOW", true},
		{"accented letters stay in the word", "the jalapeñass salsa was fine", false},
		{"denied word after accented word", "café ass", true},
		{"denied word in non-latin text", "очень scam", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.IsDisallowed(tc.text))
		})
	}
}

func TestFilter_ExtraTerms(t *testing.T) {
	f := New("  Durian ")
	assert.True(t, f.IsDisallowed("they serve durian here"))
	assert.False(t, New().IsDisallowed("they serve durian here"))
}
