package application

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/injection"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPersonalization(t *testing.T) (*PersonalizationService, *fakeShopify, stores) {
	t.Helper()
	st := newStores()
	ctx := context.Background()
	require.NoError(t, st.mappings.SaveMapping(ctx, &domain.MappingRecord{
		ID:         "mapping_1",
		ShopDomain: testShop,
		Mapping:    domain.ElementMapping{"product_title": {Type: domain.KindText, Selector: ".product__title"}},
	}))
	require.NoError(t, st.landings.CreateLanding(ctx, &domain.LandingPage{
		ID:           "landing_1",
		Handle:       "vip",
		ShopDomain:   testShop,
		MappingID:    "mapping_1",
		CampaignName: "VIP",
		CustomTitle:  "VIP Soap",
		IsActive:     true,
	}))

	client := newFakeShopify()
	client.products[42] = &goshopify.Product{
		Id:       42,
		Title:    "Coconut Soap",
		BodyHTML: "<p>Soap</p>",
		Vendor:   "Savonnerie",
		Handle:   "coconut-soap",
	}
	svc := NewPersonalizationService(staticTokens("shpat_test"), client, st.landings, st.mappings, zerolog.Nop())
	return svc, client, st
}

func TestPersonalizeWritesMetafieldsAndTemplate(t *testing.T) {
	svc, client, _ := seedPersonalization(t)

	result, err := svc.Personalize(context.Background(), PersonalizeRequest{
		ShopDomain:    testShop,
		ProductID:     42,
		LandingHandle: "vip",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://demo-store.myshopify.com/products/coconut-soap?adlign_variant=vip", result.PersonalizedURL)
	assert.Equal(t, "VIP Soap", result.Fields.Title)
	assert.Equal(t, "<p>Soap</p>", result.Fields.Description)
	assert.Equal(t, "Add to Cart", result.Fields.CTA)
	assert.Equal(t, "Savonnerie", result.Fields.Vendor)
	assert.Equal(t, TemplateSuffix, client.suffixes[42])
	assert.Equal(t, []string{"settings", "landing_handle", "mapping_id", "campaign_name", "custom_title"}, result.Metafields)

	var settings AdlignSettings
	require.NoError(t, json.Unmarshal([]byte(client.metafields[42][0].Value.(string)), &settings))
	assert.Equal(t, "vip", settings.LandingHandle)
	assert.True(t, settings.IsActive)
	require.Len(t, settings.Content, 1)
	assert.Equal(t, "product_title", settings.Content[0].Element)
	assert.Equal(t, ".product__title", settings.Content[0].Selectors[0])
}

func TestPersonalizeMissingLandingOrMapping(t *testing.T) {
	svc, _, _ := seedPersonalization(t)
	ctx := context.Background()

	_, err := svc.Personalize(ctx, PersonalizeRequest{ShopDomain: testShop, ProductID: 42, LandingHandle: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Personalize(ctx, PersonalizeRequest{ShopDomain: testShop, ProductID: 42, LandingHandle: "vip", MappingID: "mapping_x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Personalize(ctx, PersonalizeRequest{ShopDomain: testShop, LandingHandle: "vip"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWithInjectionSectionIsIdempotent(t *testing.T) {
	raw := `/*
 * This file is auto-generated by Shopify.
 */
{
  "sections": {"main": {"type": "main-product", "settings": {"note": "<b>hi</b>"}}},
  "order": ["main"]
}`
	once, changed, err := WithInjectionSection(raw)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, once, `"<b>hi</b>"`)

	var doc struct {
		Sections map[string]struct {
			Type string `json:"type"`
		} `json:"sections"`
		Order []string `json:"order"`
	}
	require.NoError(t, json.Unmarshal([]byte(once), &doc))
	assert.Equal(t, []string{"main", "adlign_injection"}, doc.Order)
	assert.Equal(t, "adlign-mapping-section", doc.Sections["adlign_injection"].Type)

	twice, changed, err := WithInjectionSection(once)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestWithInjectionSectionDefaultTemplate(t *testing.T) {
	out, changed, err := WithInjectionSection("")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, out, `"main-product"`)
	assert.Contains(t, out, `"adlign_injection"`)

	_, _, err = WithInjectionSection("{broken")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInstallSnippetTwice(t *testing.T) {
	svc, client, _ := seedPersonalization(t)
	client.assets["templates/product.json"] = `{"sections":{"main":{"type":"main-product"}},"order":["main"]}`
	ctx := context.Background()

	first, err := svc.InstallSnippet(ctx, testShop)
	require.NoError(t, err)
	assert.True(t, first.TemplateUpdated)
	assert.Equal(t, "Dawn", first.Theme.Name)
	assert.Equal(t, injection.LiquidSnippet(), client.assets[injection.SnippetKey])
	assert.Equal(t, injection.MappingSection(), client.assets[injection.SectionKey])
	assert.Equal(t, client.assets["templates/product.json"], client.assets["templates/product.adlign.json"])

	template := client.assets["templates/product.json"]
	second, err := svc.InstallSnippet(ctx, testShop)
	require.NoError(t, err)
	assert.False(t, second.TemplateUpdated)
	assert.Equal(t, template, client.assets["templates/product.json"])
	assert.Equal(t, 1, strings.Count(template, "adlign_injection\": {"))
}

func TestDiagnose(t *testing.T) {
	svc, client, _ := seedPersonalization(t)
	ctx := context.Background()

	before, err := svc.Diagnose(ctx, testShop, 42)
	require.NoError(t, err)
	assert.False(t, before.ReadyForPersonalization)
	assert.False(t, before.UsingAdlignTemplate)
	assert.NotEmpty(t, before.Issues)

	_, err = svc.InstallSnippet(ctx, testShop)
	require.NoError(t, err)
	_, err = svc.Personalize(ctx, PersonalizeRequest{ShopDomain: testShop, ProductID: 42, LandingHandle: "vip"})
	require.NoError(t, err)

	after, err := svc.Diagnose(ctx, testShop, 42)
	require.NoError(t, err)
	assert.Empty(t, after.Issues)
	assert.True(t, after.ReadyForPersonalization)
	assert.True(t, after.UsingAdlignTemplate)
	require.NotNil(t, after.Settings)
	assert.Equal(t, "vip", after.Settings.LandingHandle)
	assert.Equal(t, "https://demo-store.myshopify.com/products/coconut-soap?adlign_variant=vip", after.URLs["personalized"])
	assert.True(t, after.Assets[injection.SnippetKey])
	assert.Contains(t, client.metafields[42][0].Key, "settings")
}

func TestMetafieldsFiltersNamespace(t *testing.T) {
	svc, client, _ := seedPersonalization(t)
	client.metafields[42] = []goshopify.Metafield{
		{Namespace: MetafieldNamespace, Key: "landing_handle", Value: "vip"},
		{Namespace: "global", Key: "description_tag", Value: "seo"},
	}

	got, err := svc.Metafields(context.Background(), testShop, 42)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"landing_handle": "vip"}, got)
}

func TestRestoreUndoesPersonalize(t *testing.T) {
	svc, client, _ := seedPersonalization(t)
	ctx := context.Background()

	_, err := svc.Personalize(ctx, PersonalizeRequest{ShopDomain: testShop, ProductID: 42, LandingHandle: "vip"})
	require.NoError(t, err)
	_, err = client.CreateProductMetafield(ctx, testShop, "shpat_test", 42, goshopify.Metafield{Namespace: "reviews", Key: "rating", Value: "5"})
	require.NoError(t, err)

	result, err := svc.Restore(ctx, testShop, 42)
	require.NoError(t, err)
	assert.Equal(t, TemplateSuffix, result.PreviousSuffix)
	assert.True(t, result.TemplateRestored)
	assert.ElementsMatch(t, []string{"settings", "landing_handle", "mapping_id", "campaign_name", "custom_title"}, result.DeletedMetafields)

	assert.Equal(t, "", client.suffixes[42])
	require.Len(t, client.metafields[42], 1)
	assert.Equal(t, "reviews", client.metafields[42][0].Namespace)

	diagnosis, err := svc.Diagnose(ctx, testShop, 42)
	require.NoError(t, err)
	assert.False(t, diagnosis.UsingAdlignTemplate)

	again, err := svc.Restore(ctx, testShop, 42)
	require.NoError(t, err)
	assert.False(t, again.TemplateRestored)
	assert.Empty(t, again.DeletedMetafields)
}

func TestRestoreValidation(t *testing.T) {
	svc, _, _ := seedPersonalization(t)
	ctx := context.Background()

	_, err := svc.Restore(ctx, testShop, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Restore(ctx, testShop, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
