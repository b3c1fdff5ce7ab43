// Package scanner detects product-page elements in Liquid and HTML theme sources.
//
// Detection walks an ordered rule table. For each element type the first
// matching pattern records the element; CSS class selectors are then
// extracted from the same source with a separate per-type tag table.
package scanner

import (
	"fmt"
	"strings"

	"adlign-personalization-layer/internal/domain"
)

// MaxSelectors caps the selectors kept per element type.
const MaxSelectors = 5

// relevantClassFragments is the allow-list a class name must hit to be kept.
var relevantClassFragments = []string{
	"product", "title", "price", "description", "cart", "image", "badge",
	"review", "variant", "gallery", "media", "form", "button", "tag", "sale",
	"new", "featured", "urgent", "stock", "countdown", "trust", "guarantee",
	"shipping", "discount",
}

// Scanner applies a rule table to theme sources.
type Scanner struct {
	rules []Rule
}

// New creates a scanner with the default rule table.
func New() *Scanner {
	return NewWithRules(DefaultRules())
}

// NewWithRules creates a scanner with a custom rule table, evaluated in order.
func NewWithRules(rules []Rule) *Scanner {
	return &Scanner{rules: rules}
}

// ScanFile returns the elements detected in one source file.
func (s *Scanner) ScanFile(content, fileName string) domain.ElementMapping {
	elements := make(domain.ElementMapping)
	for _, rule := range s.rules {
		if !rule.matches(content) {
			continue
		}
		selectors := ExtractSelectors(content, rule)
		elements[rule.ElementType] = domain.ElementDescriptor{
			Type:         rule.Kind,
			Selector:     strings.Join(selectors, ", "),
			CSSSelectors: selectors,
			Description:  fmt.Sprintf("Element %s detected in %s", rule.ElementType, fileName),
			File:         fileName,
			Patterns:     rule.sources(),
		}
	}
	return elements
}

// ScanFiles scans files in order and merges the results. A later file
// overwrites an earlier one for the same element type.
func (s *Scanner) ScanFiles(files []domain.ScannedFile) domain.ElementMapping {
	merged := make(domain.ElementMapping)
	for _, f := range files {
		for elementType, descriptor := range s.ScanFile(f.Content, f.Key) {
			merged[elementType] = descriptor
		}
	}
	return merged
}

// ExtractSelectors collects class selectors for a rule's element type.
// Order of first appearance is kept, duplicates and irrelevant classes are
// dropped, and at most MaxSelectors are returned.
func ExtractSelectors(content string, rule Rule) []string {
	seen := make(map[string]struct{})
	selectors := make([]string, 0, MaxSelectors)
	for _, extractor := range rule.Extractors {
		for _, match := range extractor.FindAllStringSubmatch(content, -1) {
			for _, class := range strings.Fields(match[1]) {
				if !usableClass(class) {
					continue
				}
				selector := "." + class
				if _, dup := seen[selector]; dup {
					continue
				}
				seen[selector] = struct{}{}
				if !relevant(selector) {
					continue
				}
				selectors = append(selectors, selector)
				if len(selectors) == MaxSelectors {
					return selectors
				}
			}
		}
	}
	return selectors
}

func (r Rule) matches(content string) bool {
	for _, m := range r.Matchers {
		if m.re.MatchString(content) {
			return true
		}
	}
	return false
}

func (r Rule) sources() []string {
	out := make([]string, len(r.Matchers))
	for i, m := range r.Matchers {
		out[i] = m.Source
	}
	return out
}

func relevant(selector string) bool {
	for _, fragment := range relevantClassFragments {
		if strings.Contains(selector, fragment) {
			return true
		}
	}
	return false
}

// usableClass rejects Liquid fragments that end up inside class attributes.
func usableClass(class string) bool {
	return !strings.ContainsAny(class, "{}%'\"|")
}
