package common

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/google/uuid"

	"github.com/airbusgeo/eocatalog/service/geometry"
)

// Canonical product property keys
const (
	PropTitle             = "title"
	PropDescription       = "description"
	PropKeywords          = "keywords"
	PropStartDate         = "startDate"
	PropEndDate           = "endDate"
	PropPlatform          = "platform"
	PropInstrument        = "instrument"
	PropResolution        = "resolution"
	PropCloudCover        = "cloudCover"
	PropSnowCover         = "snowCover"
	PropOrbitNumber       = "orbitNumber"
	PropOrganisationName  = "organisationName"
	PropProductIdentifier = "productIdentifier"
	PropProviderID        = "provider_id"
	PropCollection        = "collection"
	PropDownloadLink      = "downloadLink"
	PropQuicklook         = "quicklook"
)

// Product is the normalized record returned by every search plugin, whatever
// the provider protocol. Two products with the same (Provider, provider_id)
// refer to the same remote object.
//
// A Product is created once during normalization and is immutable afterwards,
// except for the downloader/authenticator capabilities attached by the caller
// after the search returns.
type Product struct {
	// ID is a unique id of this record across the api (urn form)
	ID          string
	Provider    string
	ProductType string

	// Properties maps canonical metadata keys to scalar values. Keys the
	// provider did not return are absent, never nil-filled.
	Properties map[string]interface{}

	// GeometryWKT is the product footprint in WGS84, empty if the provider omits it
	GeometryWKT string

	// SearchFootprint is the extent requested by the caller, kept for post-filtering
	SearchFootprint *geometry.Footprint

	// SearchIntersectionWKT is the intersection of GeometryWKT with the search
	// footprint (empty when either is unknown)
	SearchIntersectionWKT string

	// LocationURLTemplate locates the asset. It may embed a {base} placeholder
	// resolved by the download collaborator.
	LocationURLTemplate string

	// LocalFilename is the suggested name of the downloaded archive
	LocalFilename string
}

// NewProduct creates a normalized product with a fresh record id
func NewProduct(provider, productType string) *Product {
	return &Product{
		ID:          uuid.New().URN(),
		Provider:    provider,
		ProductType: productType,
		Properties:  map[string]interface{}{},
	}
}

// ProviderID returns the stable provider-side id of the product ("" if unknown)
func (p *Product) ProviderID() string {
	if v, ok := p.Properties[PropProviderID]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// PropertyKeys returns the canonical keys present in the product, sorted
func (p *Product) PropertyKeys() []string {
	keys := make([]string, 0, len(p.Properties))
	for k := range p.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsFeature builds the geojson representation of the product
func (p *Product) AsFeature() (map[string]interface{}, error) {
	properties := map[string]interface{}{
		"eocatalog_provider":     p.Provider,
		"eocatalog_download_url": p.LocationURLTemplate,
		"eocatalog_local_name":   p.LocalFilename,
		"productType":            p.ProductType,
	}
	for _, k := range p.PropertyKeys() {
		properties[k] = p.Properties[k]
	}

	feature := map[string]interface{}{
		"type":       "Feature",
		"id":         p.ID,
		"properties": properties,
	}
	if p.GeometryWKT != "" {
		g, err := wkt.DecodeString(p.GeometryWKT)
		if err != nil {
			return nil, fmt.Errorf("AsFeature: %w", err)
		}
		feature["geometry"] = geojson.Geometry{Geometry: g}
	}
	return feature, nil
}

// MarshalJSON implements json.Marshaler using the geojson representation
func (p *Product) MarshalJSON() ([]byte, error) {
	f, err := p.AsFeature()
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// ProductFromFeature rebuilds a product from its geojson representation
// (inverse of AsFeature). Features without a record id get a fresh one.
func ProductFromFeature(feature map[string]interface{}) (*Product, error) {
	product := &Product{Properties: map[string]interface{}{}}
	product.ID, _ = feature["id"].(string)
	if product.ID == "" {
		product.ID = uuid.New().URN()
	}
	properties, _ := feature["properties"].(map[string]interface{})
	for k, v := range properties {
		switch k {
		case "eocatalog_provider":
			product.Provider, _ = v.(string)
		case "eocatalog_download_url":
			product.LocationURLTemplate, _ = v.(string)
		case "eocatalog_local_name":
			product.LocalFilename, _ = v.(string)
		case "productType":
			product.ProductType, _ = v.(string)
		default:
			product.Properties[k] = v
		}
	}
	if g, ok := feature["geometry"]; ok && g != nil {
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("ProductFromFeature: %w", err)
		}
		var decoded geojson.Geometry
		if err := decoded.UnmarshalJSON(raw); err != nil {
			return nil, fmt.Errorf("ProductFromFeature: %w", err)
		}
		if product.GeometryWKT, err = wkt.EncodeString(decoded.Geometry); err != nil {
			return nil, fmt.Errorf("ProductFromFeature: %w", err)
		}
	}
	return product, nil
}
