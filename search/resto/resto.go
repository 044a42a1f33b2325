// Package resto implements the collection-based opensearch family (resto
// catalogs): product types live in named collections, the endpoint embeds a
// {collection} placeholder and the answer is a geojson feature collection.
package resto

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/search/qssearch"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
	"github.com/araddon/dateparse"
)

// DefaultMaxCloudCover is the cloud cover ceiling of providers that do not
// configure their own
const DefaultMaxCloudCover = 20

// Search is the collection-based plugin of one provider
type Search struct {
	qssearch.Search
}

// New creates the plugin (search.Factory)
func New(cfg *config.Provider, authn auth.Authenticator) (search.Plugin, error) {
	return &Search{Search: qssearch.Search{Cfg: cfg, Authn: authn}}, nil
}

// Query implements search.Plugin
func (s *Search) Query(ctx context.Context, productType string, criteria search.Criteria) ([]*common.Product, error) {
	pt, err := s.MapProductType(productType)
	if err != nil {
		return nil, err
	}
	criteria = criteria.Clone()
	if pt.ProductType != "" {
		criteria[search.CritProductType] = pt.ProductType
	}
	if err := s.ApplyCloudCover(criteria); err != nil {
		return nil, err
	}
	s.ApplyDateFloor(criteria, pt)

	products := []*common.Product{}
	for _, collection := range s.Collections(productType, pt, criteria) {
		endpoint := service.FormatBrackets(s.Cfg.Endpoint, map[string]string{"collection": collection})
		items, err := s.FetchAll(ctx, endpoint, criteria)
		if err != nil {
			if search.IsTransport(err) {
				log.Logger(ctx).Warn("search request failed, skipping collection",
					zap.String("provider", s.Cfg.Name), zap.String("collection", collection), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("resto.Query.%w", err)
		}
		batch, err := search.NormalizeAll(ctx, s.Cfg, productType, items, criteria.Footprint())
		if err != nil {
			return nil, fmt.Errorf("resto.Query.%w", err)
		}
		for _, product := range batch {
			s.SetLocation(product, collection)
		}
		products = append(products, batch...)
	}
	return products, nil
}

// ApplyCloudCover normalizes the maxCloudCover criterion: the provider default
// when absent, silently capped to the provider ceiling when above it, rejected
// when outside [0, 100]. Applying it twice is a no-op.
func (s *Search) ApplyCloudCover(criteria search.Criteria) error {
	ceiling := s.Cfg.MaxCloudCover
	if ceiling <= 0 {
		ceiling = DefaultMaxCloudCover
	}
	cover, ok := criteria.Float(search.CritMaxCloudCover)
	if !ok {
		criteria[search.CritMaxCloudCover] = ceiling
		return nil
	}
	if cover < 0 || cover > 100 {
		return search.ValidationError{Message: fmt.Sprintf("maxCloudCover must be within [0, 100], got %v", cover)}
	}
	if cover > ceiling {
		cover = ceiling
	}
	criteria[search.CritMaxCloudCover] = cover
	return nil
}

// ApplyDateFloor raises the start date up to the earliest date the provider
// holds data for this product type. Start dates already past the floor are
// left untouched.
func (s *Search) ApplyDateFloor(criteria search.Criteria, pt config.ProductType) {
	if pt.MinStartDate == "" {
		return
	}
	start := criteria.String(search.CritStartDate)
	if start == "" {
		return
	}
	floor, err := dateparse.ParseAny(pt.MinStartDate)
	if err != nil {
		return
	}
	t, err := dateparse.ParseAny(start)
	if err != nil {
		return
	}
	if t.Before(floor) {
		criteria[search.CritStartDate] = floor.UTC().Format("2006-01-02T15:04:05Z")
	}
}

// Collections returns the provider collections to query. When the provider
// declares a collection split for this product type, searches without a start
// date query the legacy collections plus the current one, searches starting
// before the cutover query the legacy collections only and later searches the
// current one.
func (s *Search) Collections(productType string, pt config.ProductType, criteria search.Criteria) []string {
	if split := s.Cfg.CollectionSplit; split != nil && split.Applies(productType) {
		if collections, ok := splitCollections(split, criteria.String(search.CritStartDate)); ok {
			return collections
		}
	}
	if pt.Collection != "" {
		return []string{pt.Collection}
	}
	return []string{s.Cfg.Collection}
}

func splitCollections(split *config.CollectionSplit, startDate string) ([]string, bool) {
	if startDate == "" {
		return append(append([]string{}, split.Before...), split.After), true
	}
	cutover, err := dateparse.ParseAny(split.Cutover)
	if err != nil {
		return nil, false
	}
	start, err := dateparse.ParseAny(startDate)
	if err != nil {
		return nil, false
	}
	if start.After(cutover) {
		return []string{split.After}, true
	}
	return append([]string{}, split.Before...), true
}

// FetchAll pages through the collection results. Providers without a page size
// answer everything in one response.
func (s *Search) FetchAll(ctx context.Context, endpoint string, criteria search.Criteria) ([]search.RawItem, error) {
	searchURL, err := s.SearchURL(endpoint, criteria)
	if err != nil {
		return nil, fmt.Errorf("FetchAll.%w", err)
	}
	if s.Cfg.PageSize <= 0 {
		return s.DoRequest(ctx, searchURL)
	}
	var items []search.RawItem
	for page := 1; ; page++ {
		batch, err := s.DoRequest(ctx, fmt.Sprintf("%s&maxRecords=%d&page=%d", searchURL, s.Cfg.PageSize, page))
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
		if len(batch) < s.Cfg.PageSize {
			return items, nil
		}
	}
}

// SetLocation fills the product location following the provider precedence:
// products operated by a primary archive operator use the templated archive
// path, products carrying an explicit download link use it verbatim, everything
// else falls back to the generic collection download endpoint.
func (s *Search) SetLocation(product *common.Product, collection string) {
	if _, ok := product.Properties[common.PropCollection]; !ok && collection != "" {
		product.Properties[common.PropCollection] = collection
	}
	id := product.ProviderID()
	product.LocalFilename = id + ".zip"

	if organisation, _ := product.Properties[common.PropOrganisationName].(string); s.Cfg.MatchesOperator(organisation) {
		if identifier, _ := product.Properties[common.PropProductIdentifier].(string); identifier != "" {
			product.LocationURLTemplate = "{base}/" + strings.ReplaceAll(identifier, "/eodata/", "") + ".zip"
			if title, _ := product.Properties[common.PropTitle].(string); title != "" {
				product.LocalFilename = title + ".zip"
			}
			return
		}
	}
	if link, _ := product.Properties[common.PropDownloadLink].(string); link != "" {
		product.LocationURLTemplate = link
		return
	}
	product.LocationURLTemplate = fmt.Sprintf("{base}/collections/%s/%s/download", collection, id)
}
