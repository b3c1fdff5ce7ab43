package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/injection"
	"adlign-personalization-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	MetafieldNamespace = "adlign_data"
	TemplateSuffix     = "adlign"

	productTemplateKey   = "templates/product.json"
	adlignTemplateKey    = "templates/product." + TemplateSuffix + ".json"
	injectionSectionID   = "adlign_injection"
	injectionSectionType = "adlign-mapping-section"

	metafieldJSON      = "json"
	metafieldLine      = "single_line_text_field"
	metafieldMultiLine = "multi_line_text_field"

	defaultCTA = "Add to Cart"
)

// AdlignSettings is the JSON stored in the adlign_data.settings metafield
// and read by the Liquid snippet.
type AdlignSettings struct {
	LandingHandle string                  `json:"landing_handle"`
	MappingID     string                  `json:"mapping_id"`
	CampaignName  string                  `json:"campaign_name,omitempty"`
	Mapping       domain.ElementMapping   `json:"mapping"`
	Content       []injection.Replacement `json:"content"`
	Fields        PersonalizedFields      `json:"fields"`
	IsActive      bool                    `json:"is_active"`
	CreatedAt     time.Time               `json:"created_at"`
}

// PersonalizedFields are the values shown on the personalized page, with
// the product's own values filling the gaps.
type PersonalizedFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	CTA         string `json:"cta"`
	Vendor      string `json:"vendor"`
}

type PersonalizeRequest struct {
	ShopDomain    string `json:"shop_domain"`
	ProductID     uint64 `json:"product_id"`
	LandingHandle string `json:"landing_handle"`
	MappingID     string `json:"mapping_id,omitempty"`
}

type PersonalizeResult struct {
	ProductID       uint64             `json:"product_id"`
	ProductHandle   string             `json:"product_handle"`
	LandingHandle   string             `json:"landing_handle"`
	MappingID       string             `json:"mapping_id"`
	Fields          PersonalizedFields `json:"fields"`
	Metafields      []string           `json:"metafields"`
	TemplateSuffix  string             `json:"template_suffix,omitempty"`
	PersonalizedURL string             `json:"personalized_url"`
}

type RestoreResult struct {
	ProductID         uint64   `json:"product_id"`
	PreviousSuffix    string   `json:"previous_template_suffix"`
	TemplateRestored  bool     `json:"template_restored"`
	DeletedMetafields []string `json:"deleted_metafields"`
}

type InstallResult struct {
	Theme           domain.Theme `json:"theme"`
	Uploaded        []string     `json:"uploaded"`
	TemplateUpdated bool         `json:"template_updated"`
}

type Diagnosis struct {
	ProductID               uint64            `json:"product_id"`
	ProductHandle           string            `json:"product_handle"`
	TemplateSuffix          string            `json:"template_suffix"`
	UsingAdlignTemplate     bool              `json:"using_adlign_template"`
	Metafields              []string          `json:"metafields"`
	Settings                *AdlignSettings   `json:"settings,omitempty"`
	Assets                  map[string]bool   `json:"assets"`
	Issues                  []string          `json:"issues"`
	ReadyForPersonalization bool              `json:"ready_for_personalization"`
	URLs                    map[string]string `json:"urls"`
}

// PersonalizationService projects landings onto Shopify products
type PersonalizationService struct {
	tokens   TokenSource
	client   ports.ShopifyClient
	landings ports.LandingRepository
	mappings ports.MappingRepository
	logger   zerolog.Logger
	now      func() time.Time
}

func NewPersonalizationService(
	tokens TokenSource,
	client ports.ShopifyClient,
	landings ports.LandingRepository,
	mappings ports.MappingRepository,
	logger zerolog.Logger,
) *PersonalizationService {
	return &PersonalizationService{
		tokens:   tokens,
		client:   client,
		landings: landings,
		mappings: mappings,
		logger:   logger,
		now:      time.Now,
	}
}

// Personalize writes a landing's content into the product's adlign_data
// metafields and switches the product to the adlign template.
func (s *PersonalizationService) Personalize(ctx context.Context, req PersonalizeRequest) (*PersonalizeResult, error) {
	if req.ShopDomain == "" || req.ProductID == 0 || req.LandingHandle == "" {
		return nil, fmt.Errorf("%w: shop_domain, product_id and landing_handle are required", domain.ErrInvalidInput)
	}

	landing, err := s.landings.GetLanding(ctx, req.ShopDomain, req.LandingHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to get landing: %w", err)
	}
	if landing == nil {
		return nil, fmt.Errorf("%w: landing %s", domain.ErrNotFound, req.LandingHandle)
	}

	mappingID := req.MappingID
	if mappingID == "" {
		mappingID = landing.MappingID
	}
	record, err := s.mappings.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: mapping %s", domain.ErrNotFound, mappingID)
	}

	token, err := s.tokens.AccessToken(ctx, req.ShopDomain)
	if err != nil {
		return nil, err
	}
	product, err := s.client.GetProduct(ctx, req.ShopDomain, token, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	fields := personalizedFields(landing, product)
	settings := AdlignSettings{
		LandingHandle: landing.Handle,
		MappingID:     record.ID,
		CampaignName:  landing.CampaignName,
		Mapping:       record.Mapping,
		Content:       injection.LandingReplacements(landing, record.Mapping),
		Fields:        fields,
		IsActive:      landing.IsActive,
		CreatedAt:     s.now(),
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	logger := s.logger.With().
		Str("shop", req.ShopDomain).
		Uint64("product_id", req.ProductID).
		Str("landing", landing.Handle).
		Logger()

	personalizedURL := fmt.Sprintf("https://%s/products/%s?adlign_variant=%s", req.ShopDomain, product.Handle, landing.Handle)
	result := &PersonalizeResult{
		ProductID:       product.Id,
		ProductHandle:   product.Handle,
		LandingHandle:   landing.Handle,
		MappingID:       record.ID,
		Fields:          fields,
		PersonalizedURL: personalizedURL,
	}

	for _, mf := range landingMetafields(landing, record.ID, string(settingsJSON)) {
		if _, err := s.client.CreateProductMetafield(ctx, req.ShopDomain, token, req.ProductID, mf); err != nil {
			return nil, fmt.Errorf("failed to write metafield %s: %w", mf.Key, err)
		}
		result.Metafields = append(result.Metafields, mf.Key)
	}

	if err := s.client.SetTemplateSuffix(ctx, req.ShopDomain, token, req.ProductID, TemplateSuffix); err != nil {
		logger.Warn().Err(err).Msg("Failed to set product template suffix")
	} else {
		result.TemplateSuffix = TemplateSuffix
	}

	logger.Info().Int("metafields", len(result.Metafields)).Msg("Product personalized")
	return result, nil
}

// Restore undoes Personalize: the product goes back to the default template
// and its adlign_data metafields are removed. Theme assets stay in place
// since other products may still use them.
func (s *PersonalizationService) Restore(ctx context.Context, shop string, productID uint64) (*RestoreResult, error) {
	if shop == "" || productID == 0 {
		return nil, fmt.Errorf("%w: shop_domain and product_id are required", domain.ErrInvalidInput)
	}
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	product, err := s.client.GetProduct(ctx, shop, token, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	logger := s.logger.With().Str("shop", shop).Uint64("product_id", productID).Logger()
	result := &RestoreResult{
		ProductID:         productID,
		PreviousSuffix:    product.TemplateSuffix,
		DeletedMetafields: []string{},
	}

	if product.TemplateSuffix != "" {
		if err := s.client.SetTemplateSuffix(ctx, shop, token, productID, ""); err != nil {
			return nil, fmt.Errorf("failed to clear template suffix: %w", err)
		}
		result.TemplateRestored = true
	}

	metafields, err := s.client.ListProductMetafields(ctx, shop, token, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metafields: %w", err)
	}
	for _, mf := range metafields {
		if mf.Namespace != MetafieldNamespace {
			continue
		}
		if err := s.client.DeleteProductMetafield(ctx, shop, token, productID, mf.Id); err != nil {
			return nil, fmt.Errorf("failed to delete metafield %s: %w", mf.Key, err)
		}
		result.DeletedMetafields = append(result.DeletedMetafields, mf.Key)
	}

	logger.Info().
		Str("previous_suffix", result.PreviousSuffix).
		Int("metafields", len(result.DeletedMetafields)).
		Msg("Product restored")
	return result, nil
}

func personalizedFields(landing *domain.LandingPage, product *goshopify.Product) PersonalizedFields {
	f := PersonalizedFields{
		Title:       firstNonEmpty(landing.CustomTitle, product.Title),
		Description: firstNonEmpty(landing.CustomDescription, product.BodyHTML),
		Price:       landing.CustomPriceText,
		CTA:         firstNonEmpty(landing.CustomCTAText, defaultCTA),
		Vendor:      firstNonEmpty(landing.CustomVendor, product.Vendor),
	}
	if f.Price == "" && len(product.Variants) > 0 && product.Variants[0].Price != nil {
		f.Price = "$" + product.Variants[0].Price.StringFixed(2)
	}
	return f
}

func landingMetafields(landing *domain.LandingPage, mappingID, settings string) []goshopify.Metafield {
	out := []goshopify.Metafield{{
		Namespace: MetafieldNamespace,
		Key:       "settings",
		Value:     settings,
		Type:      metafieldJSON,
	}}
	add := func(key, value string, multiline bool) {
		if value == "" {
			return
		}
		mf := goshopify.Metafield{Namespace: MetafieldNamespace, Key: key, Value: value, Type: metafieldLine}
		if multiline {
			mf.Type = metafieldMultiLine
		}
		out = append(out, mf)
	}
	add("landing_handle", landing.Handle, false)
	add("mapping_id", mappingID, false)
	add("campaign_name", landing.CampaignName, false)
	add("custom_title", landing.CustomTitle, false)
	add("custom_description", landing.CustomDescription, true)
	add("custom_price_text", landing.CustomPriceText, false)
	add("custom_compare_price_text", landing.CustomComparePriceText, false)
	add("custom_cta_text", landing.CustomCTAText, false)
	add("custom_vendor", landing.CustomVendor, false)
	add("custom_badges", strings.Join(landing.CustomBadges, ", "), false)
	return out
}

// InstallSnippet uploads the snippet and section to the main theme and adds
// the section to the product templates. Running it twice changes nothing.
func (s *PersonalizationService) InstallSnippet(ctx context.Context, shop string) (*InstallResult, error) {
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	theme, err := mainTheme(ctx, s.client, shop, token)
	if err != nil {
		return nil, err
	}

	result := &InstallResult{Theme: theme}
	for _, a := range []struct{ key, value string }{
		{injection.SnippetKey, injection.LiquidSnippet()},
		{injection.SectionKey, injection.MappingSection()},
	} {
		key, value := a.key, a.value
		if err := s.client.PutAsset(ctx, shop, token, theme.ID, key, value); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		result.Uploaded = append(result.Uploaded, key)
	}

	current := ""
	asset, err := s.client.GetAsset(ctx, shop, token, theme.ID, productTemplateKey)
	switch {
	case err == nil:
		current = asset.Value
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Info().Str("shop", shop).Msg("No product.json template, creating one")
	default:
		return nil, fmt.Errorf("failed to read %s: %w", productTemplateKey, err)
	}

	updated, changed, err := WithInjectionSection(current)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.client.PutAsset(ctx, shop, token, theme.ID, productTemplateKey, updated); err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", productTemplateKey, err)
		}
		result.Uploaded = append(result.Uploaded, productTemplateKey)
		result.TemplateUpdated = true
	}
	if err := s.client.PutAsset(ctx, shop, token, theme.ID, adlignTemplateKey, updated); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", adlignTemplateKey, err)
	}
	result.Uploaded = append(result.Uploaded, adlignTemplateKey)

	s.logger.Info().
		Str("shop", shop).
		Str("theme", theme.Name).
		Bool("template_updated", changed).
		Msg("Injection snippet installed")
	return result, nil
}

// WithInjectionSection adds the adlign section to a JSON product template,
// appending it to order. An empty template gets a minimal default.
func WithInjectionSection(raw string) (string, bool, error) {
	doc := map[string]any{}
	if body := stripLeadingComment(raw); strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return "", false, fmt.Errorf("%w: product template is not valid JSON: %v", domain.ErrInvalidInput, err)
		}
	} else {
		doc = map[string]any{
			"sections": map[string]any{"main": map[string]any{"type": "main-product"}},
			"order":    []any{"main"},
		}
	}

	changed := false
	sections, _ := doc["sections"].(map[string]any)
	if sections == nil {
		sections = map[string]any{}
		doc["sections"] = sections
	}
	if _, ok := sections[injectionSectionID]; !ok {
		sections[injectionSectionID] = map[string]any{
			"type":     injectionSectionType,
			"settings": map[string]any{"debug": false},
		}
		changed = true
	}

	order, _ := doc["order"].([]any)
	present := false
	for _, id := range order {
		if id == injectionSectionID {
			present = true
			break
		}
	}
	if !present {
		doc["order"] = append(order, injectionSectionID)
		changed = true
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", false, fmt.Errorf("failed to encode product template: %w", err)
	}
	return buf.String(), changed, nil
}

// stripLeadingComment drops the /* ... */ header Shopify puts on generated templates
func stripLeadingComment(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "/*") {
		return raw
	}
	if end := strings.Index(trimmed, "*/"); end >= 0 {
		return trimmed[end+2:]
	}
	return raw
}

// Diagnose reports whether a product is ready to serve personalized content
func (s *PersonalizationService) Diagnose(ctx context.Context, shop string, productID uint64) (*Diagnosis, error) {
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	product, err := s.client.GetProduct(ctx, shop, token, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	d := &Diagnosis{
		ProductID:           product.Id,
		ProductHandle:       product.Handle,
		TemplateSuffix:      product.TemplateSuffix,
		UsingAdlignTemplate: product.TemplateSuffix == TemplateSuffix,
		Metafields:          []string{},
		Assets:              map[string]bool{},
		Issues:              []string{},
		URLs: map[string]string{
			"product": fmt.Sprintf("https://%s/products/%s", shop, product.Handle),
		},
	}

	metafields, err := s.client.ListProductMetafields(ctx, shop, token, productID)
	if err != nil {
		d.Issues = append(d.Issues, "could not list metafields: "+err.Error())
	}
	for _, mf := range metafields {
		if mf.Namespace != MetafieldNamespace {
			continue
		}
		d.Metafields = append(d.Metafields, mf.Key)
		if mf.Key == "settings" {
			var settings AdlignSettings
			if err := json.Unmarshal([]byte(metafieldText(mf.Value)), &settings); err != nil {
				d.Issues = append(d.Issues, "settings metafield is not valid JSON")
			} else {
				d.Settings = &settings
			}
		}
	}
	switch {
	case len(d.Metafields) == 0:
		d.Issues = append(d.Issues, "no adlign_data metafields on product")
	case d.Settings == nil:
		d.Issues = append(d.Issues, "adlign_data.settings metafield missing")
	case !d.Settings.IsActive:
		d.Issues = append(d.Issues, "landing is not active")
	}
	if d.Settings != nil && d.Settings.LandingHandle != "" {
		d.URLs["personalized"] = d.URLs["product"] + "?adlign_variant=" + d.Settings.LandingHandle
	}

	if !d.UsingAdlignTemplate {
		d.Issues = append(d.Issues, fmt.Sprintf("product template suffix is %q, expected %q", product.TemplateSuffix, TemplateSuffix))
	}

	theme, err := mainTheme(ctx, s.client, shop, token)
	if err != nil {
		d.Issues = append(d.Issues, "could not load main theme: "+err.Error())
	} else {
		for _, key := range []string{productTemplateKey, adlignTemplateKey, injection.SnippetKey} {
			_, err := s.client.GetAsset(ctx, shop, token, theme.ID, key)
			switch {
			case err == nil:
				d.Assets[key] = true
			case errors.Is(err, domain.ErrNotFound):
				d.Assets[key] = false
				d.Issues = append(d.Issues, key+" is missing from the main theme")
			default:
				d.Assets[key] = false
				d.Issues = append(d.Issues, "could not read "+key+": "+err.Error())
			}
		}
	}

	d.ReadyForPersonalization = len(d.Issues) == 0
	return d, nil
}

// ListProducts returns up to limit products (1..250, default 50)
func (s *PersonalizationService) ListProducts(ctx context.Context, shop string, limit int) ([]goshopify.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, 250)
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	products, err := s.client.ListProducts(ctx, shop, token, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Metafields returns the product's adlign_data metafields keyed by key
func (s *PersonalizationService) Metafields(ctx context.Context, shop string, productID uint64) (map[string]string, error) {
	token, err := s.tokens.AccessToken(ctx, shop)
	if err != nil {
		return nil, err
	}
	metafields, err := s.client.ListProductMetafields(ctx, shop, token, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metafields: %w", err)
	}
	out := map[string]string{}
	for _, mf := range metafields {
		if mf.Namespace == MetafieldNamespace {
			out[mf.Key] = metafieldText(mf.Value)
		}
	}
	return out, nil
}

func metafieldText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
