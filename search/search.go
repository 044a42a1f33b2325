// Package search holds the provider-agnostic side of the catalog search
// pipeline: the criteria model, the query-string builder working from the
// per-provider queryable map, the declarative metadata extraction and the
// plugin registry. The transport families live in the sub-packages.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/service/geometry"
)

// Canonical search criteria names
const (
	CritProductType   = "productType"
	CritStartDate     = "startDate"
	CritEndDate       = "endDate"
	CritFootprint     = "footprint"
	CritMaxCloudCover = "maxCloudCover"
)

// Criteria maps canonical search-parameter names to values. A nil value means
// "not specified" and is never forwarded to a provider.
type Criteria map[string]interface{}

// Clone returns a shallow copy (plugins mutate criteria when applying
// provider-specific caps)
func (c Criteria) Clone() Criteria {
	out := make(Criteria, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String returns the string form of a criterion ("" if absent or nil)
func (c Criteria) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Float returns a numeric criterion
func (c Criteria) Float(key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Footprint returns the footprint criterion (nil if absent)
func (c Criteria) Footprint() *geometry.Footprint {
	if f, ok := c[CritFootprint].(*geometry.Footprint); ok {
		return f
	}
	return nil
}

// sortedKeys returns the criteria keys in deterministic order
func (c Criteria) sortedKeys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plugin is one provider search implementation. Query returns the normalized
// products for the canonical product type and criteria. It returns an error
// only for caller or configuration errors, or a provider contract change;
// transport failures degrade to zero results.
type Plugin interface {
	Provider() string
	Query(ctx context.Context, productType string, criteria Criteria) ([]*common.Product, error)
}

// Factory instantiates a plugin family with a validated provider configuration
type Factory func(cfg *config.Provider, authn auth.Authenticator) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a plugin family to the registry. It is called once at startup
// for each member of the closed family set; the registry is read-only afterwards.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = f
}

// New instantiates the plugin designated by cfg.Plugin
func New(cfg *config.Provider, authn auth.Authenticator) (Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, MisconfiguredError{Provider: cfg.Name, Message: err.Error()}
	}
	registryMu.RLock()
	factory, ok := registry[cfg.Plugin]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrPluginNotFound{Plugin: cfg.Plugin}
	}
	return factory(cfg, authn)
}
