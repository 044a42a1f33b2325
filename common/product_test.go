package common

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewProduct(t *testing.T) {
	p := NewProduct("peps", "S2_MSI_L1C")
	if !strings.HasPrefix(p.ID, "urn:uuid:") {
		t.Errorf("unexpected record id: %s", p.ID)
	}
	if p.Properties == nil {
		t.Error("the properties map must be allocated")
	}
	if p.ProviderID() != "" {
		t.Errorf("unexpected provider id: %s", p.ProviderID())
	}
	q := NewProduct("peps", "S2_MSI_L1C")
	if p.ID == q.ID {
		t.Error("record ids must be unique")
	}
}

func TestPropertyKeysSorted(t *testing.T) {
	p := NewProduct("peps", "S2_MSI_L1C")
	p.Properties["title"] = "A"
	p.Properties["cloudCover"] = 10.0
	p.Properties["startDate"] = "2020-01-01"
	keys := p.PropertyKeys()
	if len(keys) != 3 || keys[0] != "cloudCover" || keys[1] != "startDate" || keys[2] != "title" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestAsFeature(t *testing.T) {
	p := NewProduct("peps", "S2_MSI_L1C")
	p.Properties[PropProviderID] = "42"
	p.Properties[PropTitle] = "PROD"
	p.GeometryWKT = "POLYGON ((0 0,1 0,1 1,0 0))"
	p.LocationURLTemplate = "{base}/collections/S2ST/42/download"
	p.LocalFilename = "42.zip"

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("%v", err)
	}
	feature := map[string]interface{}{}
	if err := json.Unmarshal(raw, &feature); err != nil {
		t.Fatalf("%v", err)
	}
	if feature["type"] != "Feature" {
		t.Errorf("unexpected type: %v", feature["type"])
	}
	properties := feature["properties"].(map[string]interface{})
	if properties["eocatalog_provider"] != "peps" {
		t.Errorf("unexpected provider: %v", properties["eocatalog_provider"])
	}
	if properties["eocatalog_download_url"] != "{base}/collections/S2ST/42/download" {
		t.Errorf("unexpected download url: %v", properties["eocatalog_download_url"])
	}
	if properties["title"] != "PROD" {
		t.Errorf("unexpected title: %v", properties["title"])
	}
	geometry := feature["geometry"].(map[string]interface{})
	if geometry["type"] != "Polygon" {
		t.Errorf("unexpected geometry: %v", geometry)
	}
}

func TestProductFromFeature(t *testing.T) {
	p := NewProduct("peps", "S2_MSI_L1C")
	p.Properties[PropProviderID] = "42"
	p.Properties[PropTitle] = "PROD"
	p.GeometryWKT = "POLYGON ((0 0,1 0,1 1,0 0))"
	p.LocationURLTemplate = "{base}/collections/S2ST/42/download"
	p.LocalFilename = "42.zip"

	feature, err := p.AsFeature()
	if err != nil {
		t.Fatalf("%v", err)
	}
	q, err := ProductFromFeature(feature)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if q.ID != p.ID || q.Provider != "peps" || q.ProductType != "S2_MSI_L1C" {
		t.Errorf("unexpected identity: %s %s %s", q.ID, q.Provider, q.ProductType)
	}
	if q.LocationURLTemplate != p.LocationURLTemplate || q.LocalFilename != p.LocalFilename {
		t.Errorf("unexpected location: %s %s", q.LocationURLTemplate, q.LocalFilename)
	}
	if q.ProviderID() != "42" || q.Properties[PropTitle] != "PROD" {
		t.Errorf("unexpected properties: %v", q.Properties)
	}
	if !strings.HasPrefix(q.GeometryWKT, "POLYGON") {
		t.Errorf("unexpected geometry: %s", q.GeometryWKT)
	}
}

func TestAsFeatureBadGeometry(t *testing.T) {
	p := NewProduct("peps", "S2_MSI_L1C")
	p.GeometryWKT = "NOT A GEOMETRY"
	if _, err := p.AsFeature(); err == nil {
		t.Error("expecting an error on a bad geometry")
	}
}
