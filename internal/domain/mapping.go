package domain

import "time"

// ContentKind tells the injection scripts how to replace an element's content.
type ContentKind string

const (
	KindText   ContentKind = "text"
	KindHTML   ContentKind = "html"
	KindPrice  ContentKind = "price"
	KindImage  ContentKind = "image"
	KindButton ContentKind = "button"
	KindList   ContentKind = "list"
)

// ElementDescriptor describes where a product-page element lives in a theme.
type ElementDescriptor struct {
	Type           ContentKind `json:"type" bson:"type"`
	Selector       string      `json:"selector" bson:"selector"`
	CSSSelectors   []string    `json:"css_selectors,omitempty" bson:"css_selectors,omitempty"`
	Description    string      `json:"description,omitempty" bson:"description,omitempty"`
	File           string      `json:"file,omitempty" bson:"file,omitempty"`
	Patterns       []string    `json:"patterns,omitempty" bson:"patterns,omitempty"`
	LiquidFiles    []string    `json:"liquid_files,omitempty" bson:"liquid_files,omitempty"`
	LiquidPatterns []string    `json:"liquid_patterns,omitempty" bson:"liquid_patterns,omitempty"`
}

// ElementMapping maps an element type (product_title, add_to_cart, ...) to its descriptor.
type ElementMapping map[string]ElementDescriptor

// Merge returns a shallow merge of m and override; override wins per key.
func (m ElementMapping) Merge(override ElementMapping) ElementMapping {
	out := make(ElementMapping, len(m)+len(override))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// ScanType distinguishes the quick product-focused scan from the full theme scan.
type ScanType string

const (
	ScanQuick ScanType = "quick"
	ScanFull  ScanType = "full"
)

// MappingRecord is a persisted scan result.
type MappingRecord struct {
	ID            string         `json:"id"`
	ShopDomain    string         `json:"shop_domain"`
	Label         string         `json:"label"`
	ThemeID       uint64         `json:"theme_id,omitempty"`
	ThemeName     string         `json:"theme_name,omitempty"`
	FilesAnalyzed []string       `json:"files_analyzed,omitempty"`
	TotalFiles    int            `json:"total_files,omitempty"`
	ScanType      ScanType       `json:"scan_type,omitempty"`
	AIEnhanced    bool           `json:"ai_enhanced"`
	Mapping       ElementMapping `json:"mapping"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
