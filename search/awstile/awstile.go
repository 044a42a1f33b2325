// Package awstile implements the tile-bucket variant of the collection-based
// family: the catalog is searched like any resto provider, but the assets live
// in a public object-store bucket whose key is derived from the product title
// and sensing date rather than advertised by the catalog.
package awstile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/search/resto"
	"github.com/airbusgeo/eocatalog/service/log"
	"github.com/araddon/dateparse"
)

// PropCompletionDate is the provider property carrying the sensing completion
// timestamp the tile path is derived from
const PropCompletionDate = "completionDate"

// Search is the tile-bucket plugin of one provider
type Search struct {
	resto.Search
}

// New creates the plugin (search.Factory)
func New(cfg *config.Provider, authn auth.Authenticator) (search.Plugin, error) {
	base, err := resto.New(cfg, authn)
	if err != nil {
		return nil, err
	}
	return &Search{Search: *base.(*resto.Search)}, nil
}

// Query implements search.Plugin
func (s *Search) Query(ctx context.Context, productType string, criteria search.Criteria) ([]*common.Product, error) {
	products, err := s.Search.Query(ctx, productType, criteria)
	if err != nil {
		return nil, err
	}
	kept := make([]*common.Product, 0, len(products))
	for _, product := range products {
		if err := SetTileLocation(product); err != nil {
			log.Logger(ctx).Warn("dropping product without a derivable tile path",
				zap.String("provider", s.Cfg.Name), zap.String("id", product.ProviderID()), zap.Error(err))
			continue
		}
		kept = append(kept, product)
	}
	return kept, nil
}

// SetTileLocation derives the bucket key of the product from its title (the
// tile reference is the 6th underscore-separated token) and its completion
// date, and substitutes the completion timestamp for the end date.
func SetTileLocation(product *common.Product) error {
	title, _ := product.Properties[common.PropTitle].(string)
	parts := strings.Split(title, "_")
	if len(parts) < 7 {
		return fmt.Errorf("SetTileLocation: unexpected title %q", title)
	}
	ref := strings.TrimPrefix(parts[5], "T")
	if len(ref) != 5 {
		return fmt.Errorf("SetTileLocation: unexpected tile reference %q in title %q", parts[5], title)
	}
	completion, _ := product.Properties[PropCompletionDate].(string)
	t, err := dateparse.ParseAny(completion)
	if err != nil {
		return fmt.Errorf("SetTileLocation: %w", err)
	}
	product.LocationURLTemplate = fmt.Sprintf("{base}/tiles/%s/%s/%s/%d/%d/%d/0/",
		ref[:2], ref[2:3], ref[3:], t.Year(), int(t.Month()), t.Day())
	product.LocalFilename = product.ProviderID()
	product.Properties[common.PropEndDate] = completion
	return nil
}
