package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/service/geometry"
	"github.com/airbusgeo/eocatalog/service/log"
)

// RawItem is one provider result entry before normalization: a json object,
// a serialized XML entry or a vendor result dict (exposed as JSON).
type RawItem struct {
	JSON map[string]interface{}
	XML  []byte
}

// NormalizeItem builds the normalized product of one raw result item using
// the provider extraction map. Metadata keys the item does not carry are
// omitted; the product geometry is decoded from the "geometry" extraction
// entry (geojson object or WKT string) and the intersection with the search
// footprint is computed when both are known.
func NormalizeItem(ctx context.Context, cfg *config.Provider, productType string, item RawItem, footprint *geometry.Footprint) (*common.Product, error) {
	var properties map[string]interface{}
	var err error
	if item.XML != nil {
		properties, err = PropertiesFromXML(item.XML, cfg.MetadataMapping, cfg.Namespaces)
	} else {
		properties, err = PropertiesFromJSON(item.JSON, cfg.MetadataMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("NormalizeItem: %w", err)
	}

	product := common.NewProduct(cfg.Name, productType)
	product.SearchFootprint = footprint

	if rawGeometry, ok := properties["geometry"]; ok {
		delete(properties, "geometry")
		if product.GeometryWKT, err = geometryToWKT(rawGeometry); err != nil {
			return nil, fmt.Errorf("NormalizeItem: %w", err)
		}
	}
	product.Properties = properties

	if product.GeometryWKT != "" && footprint != nil {
		if fpWKT, err := footprint.ToWKT(); err == nil {
			intersection, err := geometry.Intersection(product.GeometryWKT, fpWKT)
			if err != nil {
				log.Logger(ctx).Warn("NormalizeItem: unable to intersect the requested footprint",
					zap.String("provider", cfg.Name), zap.Error(err))
			} else {
				product.SearchIntersectionWKT = intersection
			}
		}
	}
	return product, nil
}

// NormalizeAll normalizes a batch of raw items, keeping the input order.
// An empty batch yields an empty (non-nil) slice.
func NormalizeAll(ctx context.Context, cfg *config.Provider, productType string, items []RawItem, footprint *geometry.Footprint) ([]*common.Product, error) {
	products := make([]*common.Product, 0, len(items))
	for _, item := range items {
		product, err := NormalizeItem(ctx, cfg, productType, item, footprint)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func geometryToWKT(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		if _, err := wkt.DecodeString(v); err != nil {
			return "", fmt.Errorf("geometryToWKT[%s]: %w", v, err)
		}
		return v, nil
	case map[string]interface{}:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("geometryToWKT: %w", err)
		}
		var g geojson.Geometry
		if err := g.UnmarshalJSON(raw); err != nil {
			return "", fmt.Errorf("geometryToWKT: %w", err)
		}
		return wkt.EncodeString(g.Geometry)
	}
	return "", fmt.Errorf("geometryToWKT: unsupported geometry %T", value)
}
