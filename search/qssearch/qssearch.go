// Package qssearch implements the generic query-string search family: the
// provider exposes a single REST endpoint queried with key=value pairs built
// from the queryable map, and answers a json or XML list of result entries.
package qssearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// Search is the query-string plugin of one provider
type Search struct {
	Cfg   *config.Provider
	Authn auth.Authenticator
}

// New creates the plugin (search.Factory)
func New(cfg *config.Provider, authn auth.Authenticator) (search.Plugin, error) {
	return &Search{Cfg: cfg, Authn: authn}, nil
}

func (s *Search) Provider() string {
	return s.Cfg.Name
}

// MapProductType translates the canonical product type into the provider code
func (s *Search) MapProductType(productType string) (config.ProductType, error) {
	pt, ok := s.Cfg.Products[productType]
	if !ok {
		return config.ProductType{}, search.ErrUnknownProductType{Provider: s.Cfg.Name, ProductType: productType}
	}
	return pt, nil
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

	searchURL, err := s.SearchURL(s.Cfg.Endpoint, criteria)
	if err != nil {
		return nil, fmt.Errorf("qssearch.Query.%w", err)
	}
	items, err := s.DoRequest(ctx, searchURL)
	if err != nil {
		if search.IsTransport(err) {
			log.Logger(ctx).Warn("search request failed, skipping provider",
				zap.String("provider", s.Cfg.Name), zap.Error(err))
			return []*common.Product{}, nil
		}
		return nil, fmt.Errorf("qssearch.Query.%w", err)
	}
	return search.NormalizeAll(ctx, s.Cfg, productType, items, criteria.Footprint())
}

// SearchURL builds the full search url for the given endpoint: queryable
// clauses, literal parameters and the free-text parameter.
func (s *Search) SearchURL(endpoint string, criteria search.Criteria) (string, error) {
	qs, err := search.BuildQueryString(s.Cfg, criteria)
	if err != nil {
		return "", fmt.Errorf("SearchURL.%w", err)
	}
	params := []string{}
	if qs != "" {
		params = append(params, qs)
	}

	literals := make([]string, 0, len(s.Cfg.LiteralSearchParams))
	for k := range s.Cfg.LiteralSearchParams {
		literals = append(literals, k)
	}
	sort.Strings(literals)
	for _, k := range literals {
		params = append(params, k+"="+s.Cfg.LiteralSearchParams[k])
	}

	ftParam, ftValue, err := search.FormatFreeTextSearch(s.Cfg, criteria)
	if err != nil {
		return "", fmt.Errorf("SearchURL.%w", err)
	}
	if ftParam != "" {
		params = append(params, ftParam+"="+neturl.QueryEscape(ftValue))
	}

	return strings.TrimRight(endpoint, "/") + "?" + strings.Join(params, "&"), nil
}

// DoRequest executes one search request and splits the answer into raw result
// items following the configured results entry.
func (s *Search) DoRequest(ctx context.Context, searchURL string) ([]search.RawItem, error) {
	log.Logger(ctx).Sugar().Debugf("[%s] sending search request: %s", s.Cfg.Name, searchURL)
	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("DoRequest.%w", err)
	}
	if s.Authn != nil {
		if err := s.Authn.Authenticate(req); err != nil {
			return nil, fmt.Errorf("DoRequest.%w", err)
		}
	}
	body, err := service.GetBodyRetryReq(req, 3)
	if err != nil {
		return nil, search.TransportError{Provider: s.Cfg.Name, Endpoint: searchURL, Err: err}
	}

	if s.Cfg.ResultType == "xml" {
		return splitXMLEntries(body, s.Cfg)
	}
	return splitJSONEntries(body, s.Cfg)
}

func splitJSONEntries(body []byte, cfg *config.Provider) ([]search.RawItem, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("splitJSONEntries: %w (%s)", err, service.Truncate(string(body), 200))
	}
	entry, ok := search.JSONValue(doc, cfg.ResultsEntry)
	if !ok {
		return nil, fmt.Errorf("splitJSONEntries: results entry %q not found in the answer", cfg.ResultsEntry)
	}
	list, ok := entry.([]interface{})
	if !ok {
		return nil, fmt.Errorf("splitJSONEntries: results entry %q is not a list", cfg.ResultsEntry)
	}
	items := make([]search.RawItem, 0, len(list))
	for _, e := range list {
		item, ok := e.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("splitJSONEntries: results entry %q holds a non-object element", cfg.ResultsEntry)
		}
		items = append(items, search.RawItem{JSON: item})
	}
	return items, nil
}

func splitXMLEntries(body []byte, cfg *config.Provider) ([]search.RawItem, error) {
	root, err := search.ParseXML(body)
	if err != nil {
		return nil, fmt.Errorf("splitXMLEntries: %w", err)
	}
	nodes := root.Find(cfg.ResultsEntry, cfg.Namespaces)
	items := make([]search.RawItem, 0, len(nodes))
	for _, node := range nodes {
		items = append(items, search.RawItem{XML: node.Marshal()})
	}
	return items, nil
}
