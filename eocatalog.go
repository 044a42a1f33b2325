// Package eocatalog aggregates earth-observation catalog providers behind a
// single search api: one canonical criteria set fans out to every configured
// provider, answers are normalized into common products and concatenated in
// configuration order.
package eocatalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/download"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/search/awstile"
	"github.com/airbusgeo/eocatalog/search/csw"
	"github.com/airbusgeo/eocatalog/search/odata"
	"github.com/airbusgeo/eocatalog/search/qssearch"
	"github.com/airbusgeo/eocatalog/search/resto"
	"github.com/airbusgeo/eocatalog/search/scihub"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/log"
)

// Plugin family tags
const (
	PluginQueryString = "query_string"
	PluginResto       = "resto"
	PluginAWSTile     = "aws_tile"
	PluginOData       = "odata"
	PluginCSW         = "csw"
	PluginSciHub      = "scihub"
)

var registerOnce sync.Once

// RegisterPlugins registers the plugin families. It is idempotent and called
// by New, so explicit calls are only needed when instantiating plugins through
// search.New directly.
func RegisterPlugins() {
	registerOnce.Do(func() {
		search.Register(PluginQueryString, qssearch.New)
		search.Register(PluginResto, resto.New)
		search.Register(PluginAWSTile, awstile.New)
		search.Register(PluginOData, odata.New)
		search.Register(PluginCSW, csw.New)
		search.Register(PluginSciHub, scihub.New)
	})
}

// Catalog is the provider aggregator
type Catalog struct {
	cfg     *config.Config
	plugins []search.Plugin
}

// New instantiates every configured provider plugin. A misconfigured provider
// fails the whole construction.
func New(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	RegisterPlugins()
	if cfg.RequestRate > 0 {
		service.SetRequestRate(cfg.RequestRate, 1)
	}
	catalog := &Catalog{cfg: cfg}
	for i := range cfg.Providers {
		provider := &cfg.Providers[i]
		authn, err := Authenticator(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("eocatalog.New[%s]: %w", provider.Name, err)
		}
		plugin, err := search.New(provider, authn)
		if err != nil {
			return nil, fmt.Errorf("eocatalog.New[%s]: %w", provider.Name, err)
		}
		catalog.plugins = append(catalog.plugins, plugin)
	}
	return catalog, nil
}

// Providers returns the configured provider names, in configuration order
func (c *Catalog) Providers() []string {
	names := make([]string, len(c.plugins))
	for i, plugin := range c.plugins {
		names[i] = plugin.Provider()
	}
	return names
}

// Authenticator builds the request authenticator of a provider from its
// credentials: oauth client credentials, basic auth or a literal header.
// Providers without credentials get none.
func Authenticator(ctx context.Context, provider *config.Provider) (auth.Authenticator, error) {
	switch {
	case provider.Credential("client_id") != "":
		tokenURL := provider.Credential("token_url")
		if tokenURL == "" {
			return nil, fmt.Errorf("Authenticator: client_id without token_url")
		}
		return auth.NewOAuth(ctx, provider.Credential("client_id"), provider.Credential("client_secret"), tokenURL), nil
	case provider.Credential("header_key") != "":
		return &auth.Header{Key: provider.Credential("header_key"), Value: provider.Credential("header_value")}, nil
	case provider.Credential("username") != "":
		return &auth.Basic{Username: provider.Credential("username"), Password: provider.Credential("password")}, nil
	}
	return nil, nil
}

// Result is the aggregated product list of a search
type Result []*common.Product

// Search queries every provider in parallel and concatenates the normalized
// products in provider configuration order, deduplicated. Caller and
// configuration errors are propagated; provider transport failures already
// degraded to zero results inside the plugins.
func (c *Catalog) Search(ctx context.Context, productType string, criteria search.Criteria) (Result, error) {
	results := make([][]*common.Product, len(c.plugins))
	wg, ctx := errgroup.WithContext(ctx)
	for i, plugin := range c.plugins {
		wg.Go(func() error {
			products, err := plugin.Query(ctx, productType, criteria)
			if err != nil {
				var unknown search.ErrUnknownProductType
				if errors.As(err, &unknown) {
					log.Logger(ctx).Debug("product type not available on provider",
						zap.String("provider", plugin.Provider()), zap.String("productType", productType))
					return nil
				}
				return fmt.Errorf("[%s] %w", plugin.Provider(), err)
			}
			results[i] = products
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("Catalog.Search.%w", err)
	}
	aggregated := Result{}
	for _, products := range results {
		aggregated = append(aggregated, products...)
	}
	return aggregated.RemoveDoubles(), nil
}

// RemoveDoubles drops the duplicated products, keeping the first occurrence of
// each (provider, provider id) pair. Products without a provider id are kept.
func (r Result) RemoveDoubles() Result {
	seen := service.StringSet{}
	kept := make(Result, 0, len(r))
	for _, product := range r {
		id := product.ProviderID()
		if id != "" {
			key := product.Provider + "/" + id
			if seen.Exists(key) {
				continue
			}
			seen.Push(key)
		}
		kept = append(kept, product)
	}
	return kept
}

// AsFeatureCollection builds the geojson representation of the result
func (r Result) AsFeatureCollection() (map[string]interface{}, error) {
	features := make([]map[string]interface{}, 0, len(r))
	for _, product := range r {
		feature, err := product.AsFeature()
		if err != nil {
			return nil, fmt.Errorf("AsFeatureCollection: %w", err)
		}
		features = append(features, feature)
	}
	return map[string]interface{}{"type": "FeatureCollection", "features": features}, nil
}

// DownloadManager builds the download manager of a provider: http(s) with the
// provider authenticator, ftp with the provider credentials, and the
// object-store collaborators when their ambient credentials allow it.
func (c *Catalog) DownloadManager(ctx context.Context, providerName string) (*download.Manager, error) {
	var provider *config.Provider
	for i := range c.cfg.Providers {
		if c.cfg.Providers[i].Name == providerName {
			provider = &c.cfg.Providers[i]
			break
		}
	}
	if provider == nil {
		return nil, fmt.Errorf("DownloadManager: unknown provider %s", providerName)
	}
	authn, err := Authenticator(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("DownloadManager.%w", err)
	}

	manager := download.NewManager(provider.DownloadEndpoint)
	httpDownloader := &download.HTTP{Authn: authn, CopyAuthOnRedirect: true}
	manager.Register("http", httpDownloader)
	manager.Register("https", httpDownloader)
	manager.Register("ftp", &download.FTP{User: provider.Credential("username"), Password: provider.Credential("password")})
	if s3Downloader, err := download.NewS3(ctx, provider.Credential("access_key"), provider.Credential("secret_key")); err != nil {
		log.Logger(ctx).Warn("object store unavailable", zap.String("scheme", "s3"), zap.Error(err))
	} else {
		manager.Register("s3", s3Downloader)
	}
	if gsDownloader, err := download.NewGS(ctx); err != nil {
		log.Logger(ctx).Warn("object store unavailable", zap.String("scheme", "gs"), zap.Error(err))
	} else {
		manager.Register("gs", gsDownloader)
	}
	return manager, nil
}
