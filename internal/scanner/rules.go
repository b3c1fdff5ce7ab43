package scanner

import (
	"regexp"

	"adlign-personalization-layer/internal/domain"
)

// Matcher is one detection pattern. Source is what gets reported in descriptors.
type Matcher struct {
	Source string
	re     *regexp.Regexp
}

// Rule ties an element type to its detection matchers and its class extractors.
// Matchers are tried in order and the first hit wins.
type Rule struct {
	ElementType string
	Kind        domain.ContentKind
	Matchers    []Matcher
	Extractors  []*regexp.Regexp
}

// literal matches a Liquid fragment verbatim.
func literal(s string) Matcher {
	return Matcher{Source: s, re: regexp.MustCompile(regexp.QuoteMeta(s))}
}

// pattern matches a case-insensitive regular expression.
func pattern(expr string) Matcher {
	return Matcher{Source: expr, re: regexp.MustCompile("(?i)" + expr)}
}

// classOf builds "tag with class attribute" matchers, e.g. classOf("h1", "product").
func classOf(tag, fragment string) Matcher {
	return pattern(`<` + tag + `[^>]*class="[^"]*` + fragment + `[^"]*"[^>]*>`)
}

// nearLiquid matches a keyword followed by a Liquid output tag.
func nearLiquid(keyword string) Matcher {
	return pattern(regexp.QuoteMeta(keyword) + `[^}]*\{\{`)
}

func classExtractors(tags ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		out = append(out, regexp.MustCompile(`(?i)<`+tag+`[^>]*class="([^"]*)"[^>]*>`))
	}
	return out
}

var (
	titleTags       = classExtractors("h1", "h2", "h3", "div", "span")
	priceTags       = classExtractors("span", "div", "p", "strong")
	descriptionTags = classExtractors("div", "p", "section")
	cartTags        = classExtractors("button", "input", "a")
	imageTags       = classExtractors("img", "div", "figure")
	badgeTags       = classExtractors("span", "div", "p")
	reviewTags      = classExtractors("div", "section", "article")
	variantTags     = classExtractors("select", "div", "fieldset")
)

// DefaultRules is the detection table in priority order.
func DefaultRules() []Rule {
	return []Rule{
		// Text content
		{ElementType: "product_title", Kind: domain.KindText, Extractors: titleTags, Matchers: []Matcher{
			literal("{{ product.title }}"),
			literal("{{ product.name }}"),
			classOf("h1", "product"),
			classOf("h1", "title"),
			classOf("h2", "product"),
		}},
		{ElementType: "product_description", Kind: domain.KindHTML, Extractors: descriptionTags, Matchers: []Matcher{
			literal("{{ product.description }}"),
			literal("{{ product.body_html }}"),
			classOf("div", "description"),
			classOf("p", "description"),
		}},
		{ElementType: "product_ingredients", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{{ product.metafields.ingredients }}"),
			literal("{{ product.metafields.custom.ingredients }}"),
			nearLiquid("ingredients"),
		}},
		{ElementType: "product_specifications", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{{ product.metafields.specifications }}"),
			literal("{{ product.metafields.custom.specs }}"),
			nearLiquid("specifications"),
			classOf("div", "specifications"),
			classOf("div", "specs"),
		}},
		{ElementType: "product_features", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{{ product.metafields.features }}"),
			nearLiquid("features"),
			classOf("div", "features"),
		}},
		{ElementType: "product_benefits", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{{ product.metafields.benefits }}"),
			nearLiquid("benefits"),
			classOf("div", "benefits"),
		}},

		// Pricing
		{ElementType: "product_price", Kind: domain.KindPrice, Extractors: priceTags, Matchers: []Matcher{
			literal("{{ product.price }}"),
			literal("{{ product.price | money }}"),
			literal("{{ current_variant.price | money }}"),
			classOf("span", "price"),
			classOf("div", "price"),
		}},
		{ElementType: "product_compare_price", Kind: domain.KindPrice, Extractors: priceTags, Matchers: []Matcher{
			literal("{{ product.compare_at_price }}"),
			literal("{{ product.compare_at_price | money }}"),
			literal("{{ current_variant.compare_at_price | money }}"),
		}},
		{ElementType: "product_savings", Kind: domain.KindPrice, Matchers: []Matcher{
			literal("{{ product.compare_at_price | minus: product.price }}"),
			nearLiquid("savings"),
		}},

		// Images and media
		{ElementType: "product_main_image", Kind: domain.KindImage, Extractors: imageTags, Matchers: []Matcher{
			literal("{{ product.featured_image }}"),
			literal("{{ product.featured_image | img_url: 'large' }}"),
			literal("{{ product.featured_image | img_url: 'master' }}"),
			classOf("img", "product"),
			classOf("img", "featured"),
		}},
		{ElementType: "product_gallery", Kind: domain.KindImage, Extractors: imageTags, Matchers: []Matcher{
			literal("{% for image in product.images %}"),
			literal("{% for media in product.media %}"),
			literal("{{ product.images }}"),
			nearLiquid("gallery"),
		}},
		{ElementType: "product_video", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{% for media in product.media %}"),
			literal("{{ media.media_type }}"),
			nearLiquid("video"),
		}},

		// Variants
		{ElementType: "product_variants", Kind: domain.KindHTML, Extractors: variantTags, Matchers: []Matcher{
			literal("{% for variant in product.variants %}"),
			literal("{{ product.variants }}"),
			nearLiquid("variant"),
		}},
		{ElementType: "variant_selector", Kind: domain.KindHTML, Extractors: variantTags, Matchers: []Matcher{
			pattern(`<select[^>]*data-variant[^>]*>`),
			pattern(`<select[^>]*name="[^"]*variant[^"]*"[^>]*>`),
			pattern(`single-option-selector`),
		}},

		// Calls to action
		{ElementType: "add_to_cart", Kind: domain.KindButton, Extractors: cartTags, Matchers: []Matcher{
			classOf("button", "add-to-cart"),
			pattern(`<input[^>]*type="submit"[^>]*value="[^"]*cart[^"]*"[^>]*>`),
			literal("{{ 'products.product.add_to_cart' | t }}"),
			literal("{% form 'product' %}"),
		}},
		{ElementType: "buy_now", Kind: domain.KindButton, Extractors: cartTags, Matchers: []Matcher{
			literal("{{ 'products.product.buy_now' | t }}"),
			nearLiquid("buy-now"),
		}},

		// Badges and marketing
		{ElementType: "product_badges", Kind: domain.KindList, Extractors: badgeTags, Matchers: []Matcher{
			literal("{% if product.tags contains 'sale' %}"),
			literal("{% if product.tags contains 'new' %}"),
			literal("{% if product.tags contains 'featured' %}"),
			literal("{% if product.tags contains 'limited' %}"),
			literal("{% if product.tags contains 'eco' %}"),
			nearLiquid("badge"),
			nearLiquid("tag"),
			classOf("span", "badge"),
			classOf("div", "badge"),
		}},
		{ElementType: "product_urgency", Kind: domain.KindText, Matchers: []Matcher{
			literal("{{ product.inventory_quantity }}"),
			literal("{{ product.inventory_management }}"),
			nearLiquid("urgency"),
			nearLiquid("stock"),
			classOf("span", "urgency"),
			classOf("div", "stock"),
		}},
		{ElementType: "product_countdown", Kind: domain.KindText, Matchers: []Matcher{
			nearLiquid("countdown"),
			nearLiquid("timer"),
			classOf("div", "countdown"),
		}},

		// Reviews
		{ElementType: "product_reviews", Kind: domain.KindHTML, Extractors: reviewTags, Matchers: []Matcher{
			literal("{% render 'product-reviews' %}"),
			literal("{{ product.reviews }}"),
			pattern(`shopify-product-reviews`),
			nearLiquid("reviews"),
		}},
		{ElementType: "product_rating", Kind: domain.KindText, Extractors: reviewTags, Matchers: []Matcher{
			literal("{{ product.rating }}"),
			literal("{{ product.rating_value }}"),
			nearLiquid("rating"),
		}},

		// Extra information
		{ElementType: "product_sku", Kind: domain.KindText, Matchers: []Matcher{
			literal("{{ product.sku }}"),
			literal("{{ current_variant.sku }}"),
		}},
		{ElementType: "product_vendor", Kind: domain.KindText, Matchers: []Matcher{
			literal("{{ product.vendor }}"),
			nearLiquid("vendor"),
		}},
		{ElementType: "product_type", Kind: domain.KindText, Matchers: []Matcher{
			literal("{{ product.type }}"),
			nearLiquid("type"),
		}},

		// Recommendations and navigation
		{ElementType: "product_recommendations", Kind: domain.KindHTML, Matchers: []Matcher{
			literal("{% render 'product-recommendations' %}"),
			literal("{{ product.recommendations }}"),
			nearLiquid("recommendations"),
		}},
		{ElementType: "product_navigation", Kind: domain.KindHTML, Matchers: []Matcher{
			nearLiquid("breadcrumb"),
			classOf("nav", "breadcrumb"),
			classOf("div", "breadcrumb"),
		}},
		{ElementType: "product_related", Kind: domain.KindHTML, Matchers: []Matcher{
			nearLiquid("related"),
			classOf("div", "related"),
		}},

		// Trust
		{ElementType: "product_trust_badges", Kind: domain.KindHTML, Matchers: []Matcher{
			nearLiquid("trust"),
			nearLiquid("guarantee"),
			classOf("div", "trust"),
			classOf("div", "guarantee"),
		}},
		{ElementType: "product_shipping", Kind: domain.KindText, Matchers: []Matcher{
			nearLiquid("shipping"),
			nearLiquid("delivery"),
			classOf("div", "shipping"),
		}},

		// Conversion
		{ElementType: "product_upsell", Kind: domain.KindHTML, Matchers: []Matcher{
			nearLiquid("upsell"),
			nearLiquid("cross-sell"),
			classOf("div", "upsell"),
		}},
		{ElementType: "product_discount", Kind: domain.KindText, Matchers: []Matcher{
			nearLiquid("discount"),
			nearLiquid("coupon"),
			classOf("div", "discount"),
		}},
	}
}
