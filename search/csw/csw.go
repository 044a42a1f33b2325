// Package csw implements the OGC catalog family: the provider is an OGC-CSW
// endpoint searched with filtered GetRecords requests, one per configured
// product-type tag. Records follow the dublin-core element set, so products
// are built directly from the record fields instead of an extraction map.
package csw

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/geometry"
	"github.com/airbusgeo/eocatalog/service/log"
	"github.com/araddon/dateparse"
)

// DownloadScheme is the reference scheme of retrievable assets
const DownloadScheme = "WWW:DOWNLOAD-1.0-http--download"

// defaultDateTag constrains record dates when the provider does not configure
// dedicated start/end properties
const defaultDateTag = "dc:date"

// Search is the OGC catalog plugin of one provider
type Search struct {
	Cfg   *config.Provider
	Authn auth.Authenticator

	mu     sync.Mutex
	client *Client
}

// New creates the plugin (search.Factory)
func New(cfg *config.Provider, authn auth.Authenticator) (search.Plugin, error) {
	if cfg.CSW == nil || len(cfg.CSW.ProductTypeTags) == 0 {
		return nil, search.MisconfiguredError{Provider: cfg.Name, Message: "missing search_definitions.pt_tags"}
	}
	return &Search{Cfg: cfg, Authn: authn}, nil
}

func (s *Search) Provider() string {
	return s.Cfg.Name
}

// catalog returns the handshaked client, memoized on the first success so the
// handshake is retried on the next query after a failure.
func (s *Search) catalog(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client := &Client{Endpoint: s.Cfg.Endpoint, Version: s.Cfg.CSW.Version, Authn: s.Authn}
	if err := client.GetCapabilities(ctx); err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// Query implements search.Plugin. A failed handshake degrades the whole search
// to zero results; a failed tag request degrades that tag only.
func (s *Search) Query(ctx context.Context, productType string, criteria search.Criteria) ([]*common.Product, error) {
	pt, ok := s.Cfg.Products[productType]
	if !ok {
		return nil, search.ErrUnknownProductType{Provider: s.Cfg.Name, ProductType: productType}
	}
	client, err := s.catalog(ctx)
	if err != nil {
		log.Logger(ctx).Warn("catalog handshake failed, skipping provider",
			zap.String("provider", s.Cfg.Name), zap.Error(err))
		return []*common.Product{}, nil
	}

	shared, err := s.sharedConstraints(criteria)
	if err != nil {
		return nil, err
	}
	products := []*common.Product{}
	for _, tag := range s.Cfg.CSW.ProductTypeTags {
		constraint, err := TagConstraint(tag, pt.ProductType)
		if err != nil {
			return nil, fmt.Errorf("csw.Query.%w", err)
		}
		records, err := client.GetRecords(ctx, append([]string{constraint}, shared...))
		if err != nil {
			log.Logger(ctx).Warn("records request failed, skipping tag",
				zap.String("provider", s.Cfg.Name), zap.String("tag", tag.Name), zap.Error(err))
			continue
		}
		for _, record := range records {
			products = append(products, s.product(ctx, productType, record, criteria))
		}
	}
	return products, nil
}

// TagConstraint builds the constraint matching the product type against one
// catalog tag, following the tag matching mode.
func TagConstraint(tag config.CSWTag, productType string) (string, error) {
	switch tag.Matching {
	case "", "fuzzy":
		return PropertyIsLike(tag.Name, "%"+productType+"%"), nil
	case "prefix":
		return PropertyIsLike(tag.Name, productType+"%"), nil
	case "postfix":
		return PropertyIsLike(tag.Name, "%"+productType), nil
	case "exact":
		return PropertyIsEqualTo(tag.Name, productType), nil
	}
	return "", search.MisconfiguredError{Message: fmt.Sprintf("unknown tag matching mode %q", tag.Matching)}
}

func (s *Search) sharedConstraints(criteria search.Criteria) ([]string, error) {
	var constraints []string
	startTag, endTag := s.Cfg.CSW.DateTags.Start, s.Cfg.CSW.DateTags.End
	if startTag == "" {
		startTag = defaultDateTag
	}
	if endTag == "" {
		endTag = defaultDateTag
	}
	if start := criteria.String(search.CritStartDate); start != "" {
		t, err := dateparse.ParseAny(start)
		if err != nil {
			return nil, search.ValidationError{Message: fmt.Sprintf("invalid startDate %q", start)}
		}
		constraints = append(constraints, PropertyIsGreaterOrEqual(startTag, t.UTC().Format("2006-01-02")))
	}
	if end := criteria.String(search.CritEndDate); end != "" {
		t, err := dateparse.ParseAny(end)
		if err != nil {
			return nil, search.ValidationError{Message: fmt.Sprintf("invalid endDate %q", end)}
		}
		constraints = append(constraints, PropertyIsLessOrEqual(endTag, t.UTC().Format("2006-01-02")))
	}
	if footprint := criteria.Footprint(); footprint != nil {
		bbox, err := footprint.AsBBox()
		if err != nil {
			return nil, fmt.Errorf("sharedConstraints: %w", err)
		}
		constraints = append(constraints, BBoxConstraint(bbox.LatMin, bbox.LonMin, bbox.LatMax, bbox.LonMax))
	}
	return constraints, nil
}

func (s *Search) product(ctx context.Context, productType string, record Record, criteria search.Criteria) *common.Product {
	product := common.NewProduct(s.Cfg.Name, productType)
	product.SearchFootprint = criteria.Footprint()
	setProperty(product, common.PropProviderID, record.Identifier)
	setProperty(product, common.PropTitle, record.Title)
	setProperty(product, common.PropDescription, record.Abstract)
	setProperty(product, common.PropStartDate, record.Date)
	setProperty(product, common.PropKeywords, strings.Join(record.Subjects, ","))

	for _, reference := range record.References {
		if reference.Scheme == DownloadScheme {
			product.LocationURLTemplate = reference.URL
			break
		}
	}
	product.LocalFilename = service.Slugify(record.Identifier)

	if wkt, err := recordGeometry(record); err == nil && wkt != "" {
		product.GeometryWKT = wkt
		if footprint := criteria.Footprint(); footprint != nil {
			if fpWKT, err := footprint.ToWKT(); err == nil {
				intersection, err := geometry.Intersection(wkt, fpWKT)
				if err != nil {
					log.Logger(ctx).Warn("unable to intersect the requested footprint",
						zap.String("provider", s.Cfg.Name), zap.Error(err))
				} else {
					product.SearchIntersectionWKT = intersection
				}
			}
		}
	}
	return product
}

func setProperty(product *common.Product, key, value string) {
	if value != "" {
		product.Properties[key] = value
	}
}

// recordGeometry builds the bbox polygon of the record (corners in "lat lon" order)
func recordGeometry(record Record) (string, error) {
	if record.LowerCorner == "" || record.UpperCorner == "" {
		return "", nil
	}
	var latMin, lonMin, latMax, lonMax float64
	if _, err := fmt.Sscanf(record.LowerCorner, "%f %f", &latMin, &lonMin); err != nil {
		return "", fmt.Errorf("recordGeometry: %w", err)
	}
	if _, err := fmt.Sscanf(record.UpperCorner, "%f %f", &latMax, &lonMax); err != nil {
		return "", fmt.Errorf("recordGeometry: %w", err)
	}
	return geometry.FromBBox(lonMin, latMin, lonMax, latMax).ToWKT()
}
