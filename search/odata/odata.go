// Package odata implements the two-step OData family: a first request with a
// full-text $search expression lists the matching entities, then a per-entity
// Metadata request completes each one before normalization.
package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/search/qssearch"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// metadataConcurrency caps the parallel per-entity Metadata requests
const metadataConcurrency = 8

// entityKeys are the listing-entity fields kept before the Metadata merge
var entityKeys = []string{"id", "footprint", "quicklook"}

// Search is the OData plugin of one provider
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

	expression, err := SearchExpression(s.Cfg, criteria)
	if err != nil {
		return nil, fmt.Errorf("odata.Query.%w", err)
	}
	entities, err := s.listEntities(ctx, expression)
	if err != nil {
		if search.IsTransport(err) {
			log.Logger(ctx).Warn("search request failed, skipping provider",
				zap.String("provider", s.Cfg.Name), zap.Error(err))
			return []*common.Product{}, nil
		}
		return nil, fmt.Errorf("odata.Query.%w", err)
	}

	items, err := s.completeEntities(ctx, entities)
	if err != nil {
		return nil, fmt.Errorf("odata.Query.%w", err)
	}
	return search.NormalizeAll(ctx, s.Cfg, productType, items, criteria.Footprint())
}

// SearchExpression builds the quoted $search full-text expression: the
// criteria clauses joined with AND.
func SearchExpression(cfg *config.Provider, criteria search.Criteria) (string, error) {
	clauses, err := search.BuildClauses(cfg, criteria)
	if err != nil {
		return "", fmt.Errorf("SearchExpression.%w", err)
	}
	return `"` + strings.Join(clauses, " AND ") + `"`, nil
}

// listEntities runs the listing request and keeps the downloadable entities
func (s *Search) listEntities(ctx context.Context, expression string) ([]map[string]interface{}, error) {
	searchURL := strings.TrimRight(s.Cfg.Endpoint, "/") +
		"?$search=" + neturl.QueryEscape(expression) + "&$format=json"
	body, err := s.get(ctx, searchURL)
	if err != nil {
		return nil, search.TransportError{Provider: s.Cfg.Name, Endpoint: searchURL, Err: err}
	}
	var answer struct {
		Value []map[string]interface{} `json:"value"`
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("listEntities: %w (%s)", err, service.Truncate(string(body), 200))
	}
	entities := make([]map[string]interface{}, 0, len(answer.Value))
	for _, entity := range answer.Value {
		if downloadable, ok := entity["downloadable"].(bool); ok && !downloadable {
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// completeEntities fetches the Metadata list of every entity and merges it into
// the kept listing fields. Entities whose Metadata request fails are logged and
// dropped; the result keeps the listing order.
func (s *Search) completeEntities(ctx context.Context, entities []map[string]interface{}) ([]search.RawItem, error) {
	merged := make([]map[string]interface{}, len(entities))
	wg := errgroup.Group{}
	wg.SetLimit(metadataConcurrency)
	for i, entity := range entities {
		wg.Go(func() error {
			item, err := s.entityMetadata(ctx, entity)
			if err != nil {
				log.Logger(ctx).Warn("dropping entity without metadata",
					zap.String("provider", s.Cfg.Name), zap.Any("id", entity["id"]), zap.Error(err))
				return nil
			}
			merged[i] = item
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("completeEntities.%w", err)
	}
	items := make([]search.RawItem, 0, len(merged))
	for _, item := range merged {
		if item != nil {
			items = append(items, search.RawItem{JSON: item})
		}
	}
	return items, nil
}

func (s *Search) entityMetadata(ctx context.Context, entity map[string]interface{}) (map[string]interface{}, error) {
	id := fmt.Sprintf("%v", entity["id"])
	metadataURL := fmt.Sprintf(`%s("%s")/Metadata`, strings.TrimRight(s.Cfg.Endpoint, "/"), id)
	body, err := s.get(ctx, metadataURL)
	if err != nil {
		return nil, fmt.Errorf("entityMetadata: %w", err)
	}
	var answer struct {
		Value []struct {
			ID    string      `json:"id"`
			Value interface{} `json:"value"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("entityMetadata: %w (%s)", err, service.Truncate(string(body), 200))
	}

	item := map[string]interface{}{}
	for _, key := range entityKeys {
		if v, ok := entity[key]; ok {
			item[key] = v
		}
	}
	for _, m := range answer.Value {
		item[m.ID] = m.Value
	}
	return item, nil
}

func (s *Search) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if s.Authn != nil {
		if err := s.Authn.Authenticate(req); err != nil {
			return nil, err
		}
	}
	return service.GetBodyRetryReq(req, 3)
}
