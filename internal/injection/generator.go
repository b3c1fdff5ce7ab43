package injection

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"adlign-personalization-layer/internal/domain"
)

// Asset keys the generated Liquid files are installed under.
const (
	SnippetKey = "snippets/adlign-injection.liquid"
	SectionKey = "sections/adlign-mapping-section.liquid"
)

//go:embed templates/*
var templateFS embed.FS

var scripts = template.Must(
	template.New("scripts").
		Funcs(template.FuncMap{"json": toJSON}).
		ParseFS(templateFS, "templates/scripts.js.tmpl"),
)

// Replacement is one element the storefront script rewrites. Selectors are
// tried in order until one matches.
type Replacement struct {
	Element   string             `json:"element"`
	Kind      domain.ContentKind `json:"kind"`
	Selectors []string           `json:"selectors"`
	Content   string             `json:"content"`
}

// FallbackSelectors are tried after the mapped selector for well-known elements.
var FallbackSelectors = map[string][]string{
	"product_title":         {"h1", ".product-title", ".product__title", "[data-product-title]"},
	"product_description":   {".product-description", ".product__description", "[data-product-description]"},
	"product_price":         {".product-price", ".price", ".product__price", "[data-product-price]"},
	"product_compare_price": {".price__compare", ".compare-at-price", "[data-compare-price]"},
	"add_to_cart":           {".add-to-cart", ".product-form__submit", "[data-add-to-cart]"},
	"product_vendor":        {".product-vendor", ".vendor", "[data-product-vendor]"},
	"product_main_image":    {".product__media img", ".product-featured-image", "[data-product-featured-image]"},
	"product_badges":        {".product-badge", ".badge"},
}

type landingField struct {
	element string
	kind    domain.ContentKind
	value   func(*domain.LandingPage) string
}

var landingFields = []landingField{
	{"product_title", domain.KindText, func(l *domain.LandingPage) string { return l.CustomTitle }},
	{"product_description", domain.KindHTML, func(l *domain.LandingPage) string { return l.CustomDescription }},
	{"product_price", domain.KindPrice, func(l *domain.LandingPage) string { return l.CustomPriceText }},
	{"product_compare_price", domain.KindPrice, func(l *domain.LandingPage) string { return l.CustomComparePriceText }},
	{"add_to_cart", domain.KindButton, func(l *domain.LandingPage) string { return l.CustomCTAText }},
	{"buy_now", domain.KindButton, func(l *domain.LandingPage) string { return l.CustomCTAText }},
	{"product_vendor", domain.KindText, func(l *domain.LandingPage) string { return l.CustomVendor }},
	{"product_main_image", domain.KindImage, func(l *domain.LandingPage) string {
		if len(l.CustomImages) == 0 {
			return ""
		}
		return l.CustomImages[0]
	}},
	{"product_badges", domain.KindList, func(l *domain.LandingPage) string { return strings.Join(l.CustomBadges, " · ") }},
}

// Selectors returns the selectors to try for element: the mapped selector
// first, then the fallbacks.
func Selectors(mapping domain.ElementMapping, element string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	if desc, ok := mapping[element]; ok {
		add(desc.Selector)
		if desc.Selector == "" {
			for _, s := range desc.CSSSelectors {
				add(s)
			}
		}
	}
	for _, s := range FallbackSelectors[element] {
		add(s)
	}
	return out
}

// LandingReplacements maps a landing's custom fields onto mapped elements.
// Empty fields and elements with no selector are skipped.
func LandingReplacements(landing *domain.LandingPage, mapping domain.ElementMapping) []Replacement {
	out := []Replacement{}
	for _, f := range landingFields {
		content := f.value(landing)
		if content == "" {
			continue
		}
		selectors := Selectors(mapping, f.element)
		if len(selectors) == 0 {
			continue
		}
		out = append(out, Replacement{
			Element:   f.element,
			Kind:      f.kind,
			Selectors: selectors,
			Content:   content,
		})
	}
	return out
}

// TestReplacements pairs caller-provided content, keyed by element type, with
// the mapping. Output is sorted by element type.
func TestReplacements(mapping domain.ElementMapping, content map[string]string) []Replacement {
	out := []Replacement{}
	for _, element := range sortedKeys(content) {
		value := content[element]
		if value == "" {
			continue
		}
		selectors := Selectors(mapping, element)
		if len(selectors) == 0 {
			continue
		}
		kind := domain.KindText
		if desc, ok := mapping[element]; ok && desc.Type != "" {
			kind = desc.Type
		}
		out = append(out, Replacement{Element: element, Kind: kind, Selectors: selectors, Content: value})
	}
	return out
}

// TestScript renders a console-pasteable script that applies content through
// the record's mapping and returns {success, failed, details}.
func TestScript(record *domain.MappingRecord, content map[string]string) (string, error) {
	return render("test", map[string]any{
		"MappingID":    record.ID,
		"Replacements": TestReplacements(record.Mapping, content),
	})
}

// LandingScript renders the storefront script for a landing. It only acts
// when ?adlign_variant equals the landing handle.
func LandingScript(landing *domain.LandingPage, mapping domain.ElementMapping) (string, error) {
	return render("landing", map[string]any{
		"Handle":       landing.Handle,
		"Replacements": LandingReplacements(landing, mapping),
	})
}

// LiquidSnippet returns snippets/adlign-injection.liquid
func LiquidSnippet() string {
	return mustAsset("templates/adlign-injection.liquid")
}

// MappingSection returns sections/adlign-mapping-section.liquid
func MappingSection() string {
	return mustAsset("templates/adlign-mapping-section.liquid")
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s script: %w", name, err)
	}
	return buf.String(), nil
}

func mustAsset(path string) string {
	b, err := templateFS.ReadFile(path)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// toJSON keeps embedded values inert: encoding/json escapes <, > and & so a
// value cannot close the surrounding script tag.
func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
