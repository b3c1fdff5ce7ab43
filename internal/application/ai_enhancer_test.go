package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawScan() *domain.ScanResult {
	return &domain.ScanResult{
		Theme:         domain.Theme{Name: "Dawn"},
		FilesAnalyzed: []string{"sections/main-product.liquid"},
		Files:         []domain.ScannedFile{{Key: "sections/main-product.liquid", Content: strings.Repeat("é", 1500)}},
		Elements: domain.ElementMapping{
			"product_title": {Type: domain.KindText, Selector: ".product-title"},
			"product_price": {Type: domain.KindPrice, Selector: ".price"},
		},
	}
}

func TestEnhanceMergesModelOutput(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"product_price\": {\"type\": \"price\", \"selector\": \".price-item--regular\"}, " +
		"\"buy_now\": {\"type\": \"button\", \"selector\": \".shopify-payment-button\"}}\n```"}
	e := NewAIEnhancer(llm, zerolog.Nop())

	got, enhanced := e.Enhance(context.Background(), rawScan())

	assert.True(t, enhanced)
	assert.Equal(t, ".product-title", got["product_title"].Selector)
	assert.Equal(t, ".price-item--regular", got["product_price"].Selector)
	assert.Equal(t, ".shopify-payment-button", got["buy_now"].Selector)
}

func TestEnhanceFallsBackToRaw(t *testing.T) {
	cases := map[string]*fakeLLM{
		"network error": {err: errors.New("connection refused")},
		"no json":       {reply: "I cannot help with that."},
		"invalid json":  {reply: "{not json}"},
	}
	for name, llm := range cases {
		t.Run(name, func(t *testing.T) {
			raw := rawScan()
			got, enhanced := NewAIEnhancer(llm, zerolog.Nop()).Enhance(context.Background(), raw)

			assert.False(t, enhanced)
			assert.Equal(t, raw.Elements, got)
			assert.Equal(t, 1, llm.calls)
		})
	}
}

func TestEnhanceDisabledWithoutProvider(t *testing.T) {
	raw := rawScan()
	got, enhanced := NewAIEnhancer(nil, zerolog.Nop()).Enhance(context.Background(), raw)
	assert.False(t, enhanced)
	assert.Equal(t, raw.Elements, got)
}

func TestBuildEnhancementPromptTruncatesExcerpts(t *testing.T) {
	prompt, err := BuildEnhancementPrompt(rawScan())
	require.NoError(t, err)

	assert.Contains(t, prompt, "Theme: Dawn")
	assert.Contains(t, prompt, "--- sections/main-product.liquid ---")
	// 1500 two-byte runes, cut to 1000 whole runes
	assert.Equal(t, 1000, strings.Count(prompt, "é"))
}
