package search

import (
	"context"
	"strings"
	"testing"

	"github.com/airbusgeo/eocatalog/config"
)

func normalizeProvider() *config.Provider {
	return &config.Provider{
		Name:   "test",
		Plugin: "query_string",
		MetadataMapping: map[string]config.Mapping{
			"provider_id": {Path: "$.id"},
			"title":       {Path: "$.properties.title"},
			"geometry":    {Path: "$.geometry"},
		},
	}
}

func TestNormalizeItemGeoJSON(t *testing.T) {
	item := RawItem{JSON: map[string]interface{}{
		"id": "42",
		"properties": map[string]interface{}{
			"title": "S2A_MSIL1C",
		},
		"geometry": map[string]interface{}{
			"type":        "Polygon",
			"coordinates": []interface{}{[]interface{}{[]interface{}{0.0, 0.0}, []interface{}{1.0, 0.0}, []interface{}{1.0, 1.0}, []interface{}{0.0, 0.0}}},
		},
	}}
	product, err := NormalizeItem(context.Background(), normalizeProvider(), "S2_MSI_L1C", item, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if product.Provider != "test" || product.ProductType != "S2_MSI_L1C" {
		t.Errorf("unexpected product identity: %s/%s", product.Provider, product.ProductType)
	}
	if product.ProviderID() != "42" {
		t.Errorf("unexpected provider id: %s", product.ProviderID())
	}
	if !strings.HasPrefix(product.GeometryWKT, "POLYGON") {
		t.Errorf("unexpected geometry: %s", product.GeometryWKT)
	}
	if _, ok := product.Properties["geometry"]; ok {
		t.Error("the geometry must not stay in the properties")
	}
	if !strings.HasPrefix(product.ID, "urn:uuid:") {
		t.Errorf("unexpected record id: %s", product.ID)
	}
}

func TestNormalizeItemWKTGeometry(t *testing.T) {
	item := RawItem{JSON: map[string]interface{}{
		"id":       "43",
		"geometry": "POINT (1 2)",
	}}
	product, err := NormalizeItem(context.Background(), normalizeProvider(), "S2_MSI_L1C", item, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if product.GeometryWKT != "POINT (1 2)" {
		t.Errorf("unexpected geometry: %s", product.GeometryWKT)
	}
}

func TestNormalizeAllEmpty(t *testing.T) {
	products, err := NormalizeAll(context.Background(), normalizeProvider(), "S2_MSI_L1C", nil, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if products == nil || len(products) != 0 {
		t.Errorf("expecting an empty non-nil slice, got %v", products)
	}
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	items := []RawItem{
		{JSON: map[string]interface{}{"id": "a"}},
		{JSON: map[string]interface{}{"id": "b"}},
		{JSON: map[string]interface{}{"id": "c"}},
	}
	products, err := NormalizeAll(context.Background(), normalizeProvider(), "S2_MSI_L1C", items, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	for i, expected := range []string{"a", "b", "c"} {
		if products[i].ProviderID() != expected {
			t.Errorf("order not kept: expecting %s at %d, got %s", expected, i, products[i].ProviderID())
		}
	}
}
