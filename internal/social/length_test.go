package social_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blackwell-systems/cratebot/internal/social"
)

func TestLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"ascii", "serde v1.0.200", 14},
		{"latin accents", "café", 4},
		{"cjk weighs two", "日本語", 6},
		{"emoji weighs two", "🦀", 2},
		{"general punctuation weighs one", "“quoted”", 8},
		{"ellipsis weighs two", "…", 2},
		{"link", "https://crates.io/crates/serde", social.URLLength},
		{"long link", "https://crates.io/crates/" + strings.Repeat("x", 60), social.URLLength},
		{"link on its own line", "serde\nhttps://crates.io/crates/serde", 6 + social.URLLength},
		{"link with trailing period", "https://serde.rs.", social.URLLength + 17},
		{"bare domain", "serde.rs", social.URLLength + 8},
		{"bare domain in parentheses", "(docs.rs)", social.URLLength + 9},
		{"sentence dot is not a domain", "Fast. Safe.", 11},
		{"version is not a domain", "v1.0.200", 8},
		{"abbreviation is not a domain", "e.g.", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, social.Length(tt.text))
		})
	}
}

func TestFits(t *testing.T) {
	t.Parallel()

	assert.True(t, social.Fits(strings.Repeat("a", social.MaxPostLength)))
	assert.False(t, social.Fits(strings.Repeat("a", social.MaxPostLength+1)))
	assert.True(t, social.Fits(strings.Repeat("日", social.MaxPostLength/2)))
	assert.False(t, social.Fits(strings.Repeat("日", social.MaxPostLength/2+1)))
}
