package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
)

// excerptLimit bounds how much of each theme file is sent to the model.
const excerptLimit = 2000

// AIEnhancer refines a raw scan with a language model. Any failure falls
// back to the raw mapping.
type AIEnhancer struct {
	llm    ports.LLMClient
	logger zerolog.Logger
}

// NewAIEnhancer creates an enhancer; a nil llm disables enhancement.
func NewAIEnhancer(llm ports.LLMClient, logger zerolog.Logger) *AIEnhancer {
	return &AIEnhancer{llm: llm, logger: logger}
}

// Enabled reports whether a provider is configured
func (e *AIEnhancer) Enabled() bool {
	return e != nil && e.llm != nil
}

// Enhance returns raw merged with the model's refinements and whether the
// model contributed. On fallback the result has exactly raw's keys.
func (e *AIEnhancer) Enhance(ctx context.Context, result *domain.ScanResult) (domain.ElementMapping, bool) {
	raw := result.Elements
	if !e.Enabled() {
		return raw.Merge(nil), false
	}

	logger := e.logger.With().
		Str("provider", e.llm.Name()).
		Str("theme", result.Theme.Name).
		Logger()

	prompt, err := BuildEnhancementPrompt(result)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to build AI prompt, using raw scan")
		return raw.Merge(nil), false
	}

	reply, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("AI enhancement failed, using raw scan")
		return raw.Merge(nil), false
	}

	enhanced, err := ParseEnhancement(reply)
	if err != nil {
		logger.Warn().Err(err).Msg("AI reply could not be parsed, using raw scan")
		return raw.Merge(nil), false
	}

	logger.Info().
		Int("raw_elements", len(raw)).
		Int("enhanced_elements", len(enhanced)).
		Msg("AI enhancement applied")
	return raw.Merge(enhanced), true
}

// BuildEnhancementPrompt renders the fixed analysis prompt for a scan
func BuildEnhancementPrompt(result *domain.ScanResult) (string, error) {
	elements, err := json.MarshalIndent(result.Elements, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode raw elements: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are an expert in Shopify theme development. Analyze the theme files below and ")
	b.WriteString("improve the detected product page elements so each has precise CSS selectors.\n\n")
	fmt.Fprintf(&b, "Theme: %s\n", result.Theme.Name)
	fmt.Fprintf(&b, "Files analyzed: %s\n\n", strings.Join(result.FilesAnalyzed, ", "))
	b.WriteString("Raw detected elements:\n")
	b.Write(elements)
	b.WriteString("\n\nFile excerpts:\n")
	for _, f := range result.Files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Key, excerpt(f.Content, excerptLimit))
	}
	b.WriteString("\nRespond with a single JSON object and nothing else. Each key is an element type ")
	b.WriteString("(product_title, product_price, add_to_cart, ...) and each value is an object with ")
	b.WriteString(`"type" (text|html|price|image|button|list), "selector" (comma separated CSS selectors), `)
	b.WriteString(`"css_selectors" (array) and "description".`)
	b.WriteString("\n")
	return b.String(), nil
}

// ParseEnhancement decodes the JSON object between the first '{' and the last '}'
func ParseEnhancement(reply string) (domain.ElementMapping, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var mapping domain.ElementMapping
	if err := json.Unmarshal([]byte(reply[start:end+1]), &mapping); err != nil {
		return nil, fmt.Errorf("failed to decode AI mapping: %w", err)
	}
	return mapping, nil
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	// keep the excerpt valid UTF-8
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
