// Package scihub implements the vendor family: the provider is reached through
// the data hub client instead of generic query-string requests. The client is
// built lazily on the first query and memoized for the lifetime of the plugin.
package scihub

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service/log"
	"github.com/araddon/dateparse"
)

// Search is the data-hub plugin of one provider
type Search struct {
	Cfg *config.Provider

	once   sync.Once
	client *Client
}

// New creates the plugin (search.Factory). The hub speaks basic auth only, so
// the credentials come from the provider configuration instead of an
// authenticator.
func New(cfg *config.Provider, _ auth.Authenticator) (search.Plugin, error) {
	return &Search{Cfg: cfg}, nil
}

func (s *Search) Provider() string {
	return s.Cfg.Name
}

func (s *Search) hub() *Client {
	s.once.Do(func() {
		s.client = &Client{
			Endpoint: s.Cfg.Endpoint,
			Username: s.Cfg.Credential("username"),
			Password: s.Cfg.Credential("password"),
		}
	})
	return s.client
}

// Query implements search.Plugin
func (s *Search) Query(ctx context.Context, productType string, criteria search.Criteria) ([]*common.Product, error) {
	pt, ok := s.Cfg.Products[productType]
	if !ok {
		return nil, search.ErrUnknownProductType{Provider: s.Cfg.Name, ProductType: productType}
	}
	query, err := HubCriteria(pt, criteria)
	if err != nil {
		return nil, err
	}
	entries, err := s.hub().Search(ctx, query)
	if err != nil {
		log.Logger(ctx).Warn("hub search failed, skipping provider",
			zap.String("provider", s.Cfg.Name), zap.Error(err))
		return []*common.Product{}, nil
	}
	items := make([]search.RawItem, 0, len(entries))
	for _, entry := range entries {
		item := make(map[string]interface{}, len(entry))
		for k, v := range entry {
			item[k] = v
		}
		items = append(items, search.RawItem{JSON: item})
	}
	return search.NormalizeAll(ctx, s.Cfg, productType, items, criteria.Footprint())
}

// HubCriteria translates the canonical criteria into the vendor query model:
// compact YYYYMMDD dates, a WKT footprint and a (0, max) cloud cover pair.
func HubCriteria(pt config.ProductType, criteria search.Criteria) (HubQuery, error) {
	query := HubQuery{ProductType: pt.ProductType}

	if start := criteria.String(search.CritStartDate); start != "" {
		t, err := dateparse.ParseAny(start)
		if err != nil {
			return HubQuery{}, search.ValidationError{Message: fmt.Sprintf("invalid startDate %q", start)}
		}
		query.Dates[0] = t.UTC().Format("20060102")
	}
	if end := criteria.String(search.CritEndDate); end != "" {
		t, err := dateparse.ParseAny(end)
		if err != nil {
			return HubQuery{}, search.ValidationError{Message: fmt.Sprintf("invalid endDate %q", end)}
		}
		query.Dates[1] = t.UTC().Format("20060102")
	}
	if footprint := criteria.Footprint(); footprint != nil {
		wkt, err := footprint.ToWKT()
		if err != nil {
			return HubQuery{}, fmt.Errorf("HubCriteria: %w", err)
		}
		query.FootprintWKT = wkt
	}
	if cover, ok := criteria.Float(search.CritMaxCloudCover); ok {
		if cover < 0 || cover > 100 {
			return HubQuery{}, search.ValidationError{Message: fmt.Sprintf("maxCloudCover must be within [0, 100], got %v", cover)}
		}
		query.CloudCover = &[2]int{0, int(cover)}
	}
	return query, nil
}
