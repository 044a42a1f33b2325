package config

import (
	"fmt"
	neturl "net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mapping is one entry of a provider metadata-extraction map.
// In YAML it is either a plain extraction path:
//
//	id: $.id
//
// or a pair [search parameter template, extraction path] when the canonical
// key is also queryable on this provider:
//
//	cloudCover: ["cloudCover=[0,{maxCloudCover}]", $.properties.cloudCover]
type Mapping struct {
	Query string
	Path  string
}

func (m *Mapping) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		m.Path = value.Value
		return nil
	case yaml.SequenceNode:
		var pair []string
		if err := value.Decode(&pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("metadata mapping entry: expecting [search_param, path], got %d elements", len(pair))
		}
		m.Query, m.Path = pair[0], pair[1]
		return nil
	}
	return fmt.Errorf("metadata mapping entry: unexpected yaml node")
}

// Queryable returns true when the canonical key can be forwarded to the provider
func (m Mapping) Queryable() bool { return m.Query != "" }

// ProductType maps a canonical product type to the provider-side codes
type ProductType struct {
	ProductType  string `yaml:"product_type"`
	Collection   string `yaml:"collection"`
	MinStartDate string `yaml:"min_start_date"`
}

// CollectionSplit keeps a provider catalog reorganisation as data: searches
// whose start date falls strictly before Cutover (or searches without a date
// constraint) query the Before collections, the others query After.
type CollectionSplit struct {
	ProductTypes []string `yaml:"product_types"`
	Before       []string `yaml:"before"`
	After        string   `yaml:"after"`
	Cutover      string   `yaml:"cutover"`
}

// FreeTextOperation is one boolean group of the free-text search composition
type FreeTextOperation struct {
	Operator string   `yaml:"operator"`
	Operands []string `yaml:"operands"`
}

// CSWTag is one catalog search tag (a property to match the product type against)
type CSWTag struct {
	Name     string `yaml:"name"`
	Matching string `yaml:"matching"` // fuzzy (default), prefix, postfix or exact
}

// CSWSearch configures the OGC-CSW family
type CSWSearch struct {
	Version         string   `yaml:"version"`
	ProductTypeTags []CSWTag `yaml:"pt_tags"`
	DateTags        struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"date_tags"`
}

// Provider is the per-provider search configuration. It is validated once at
// load time and read-only for the lifetime of the plugin instance.
type Provider struct {
	Name   string `yaml:"name"`
	Plugin string `yaml:"plugin"`

	Endpoint     string `yaml:"api_endpoint"`
	ResultType   string `yaml:"result_type"` // json (default) or xml
	ResultsEntry string `yaml:"results_entry"`

	MetadataMapping map[string]Mapping     `yaml:"metadata_mapping"`
	Products        map[string]ProductType `yaml:"products"`

	Collection      string           `yaml:"collection"`
	CollectionSplit *CollectionSplit `yaml:"collection_split"`

	MaxCloudCover float64 `yaml:"max_cloud_cover"`

	FreeTextSearchParam      string              `yaml:"free_text_search_param"`
	FreeTextSearchOperations []FreeTextOperation `yaml:"free_text_search_operations"`
	LiteralSearchParams      map[string]string   `yaml:"literal_search_params"`

	// DownloadEndpoint resolves the {base} placeholder of location URL templates
	DownloadEndpoint string `yaml:"download_endpoint"`
	// ArchiveOperators lists the organisation names whose products are served
	// from the primary archive (templated archive path instead of download links)
	ArchiveOperators []string `yaml:"archive_operators"`

	Namespaces map[string]string `yaml:"namespaces"`
	CSW        *CSWSearch        `yaml:"search_definitions"`

	Credentials map[string]string `yaml:"credentials"`

	PageSize int `yaml:"page_size"`
}

// Validate fails fast on a configuration lacking the required discriminants
func (p *Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider: missing name")
	}
	if p.Plugin == "" {
		return fmt.Errorf("provider %s: missing plugin", p.Name)
	}
	if p.Endpoint == "" {
		return fmt.Errorf("provider %s: missing api_endpoint", p.Name)
	}
	if _, err := neturl.Parse(p.Endpoint); err != nil {
		return fmt.Errorf("provider %s: invalid api_endpoint: %w", p.Name, err)
	}
	switch p.ResultType {
	case "", "json", "xml":
	default:
		return fmt.Errorf("provider %s: result_type must be json or xml, got %q", p.Name, p.ResultType)
	}
	if len(p.MetadataMapping) == 0 {
		return fmt.Errorf("provider %s: missing metadata_mapping", p.Name)
	}
	if len(p.Products) == 0 {
		return fmt.Errorf("provider %s: missing products table", p.Name)
	}
	for _, op := range p.FreeTextSearchOperations {
		if op.Operator == "" || len(op.Operands) == 0 {
			return fmt.Errorf("provider %s: free_text_search_operations entries need an operator and operands", p.Name)
		}
	}
	return nil
}

// SplitApplies returns whether the collection split concerns the given canonical product type
func (cs *CollectionSplit) Applies(productType string) bool {
	for _, pt := range cs.ProductTypes {
		if pt == productType {
			return true
		}
	}
	return false
}

// Config is the full multi-provider configuration
type Config struct {
	Providers   []Provider `yaml:"providers"`
	RequestRate float64    `yaml:"request_rate"` // outgoing requests per second, 0 = unlimited
}

// Load reads and validates a yaml configuration.
// The path defaults to $EOCATALOG_CONFIG when empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EOCATALOG_CONFIG")
	}
	if path == "" {
		return nil, fmt.Errorf("config.Load: no configuration file (set EOCATALOG_CONFIG or pass -config)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a yaml configuration
func Parse(b []byte) (*Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: %w", err)
	}
	names := map[string]struct{}{}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("config.Parse: %w", err)
		}
		if _, ok := names[p.Name]; ok {
			return nil, fmt.Errorf("config.Parse: duplicate provider %s", p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return &cfg, nil
}

// Credential returns a credential value ("" if absent)
func (p *Provider) Credential(key string) string {
	if p.Credentials == nil {
		return ""
	}
	return p.Credentials[key]
}

// MatchesOperator returns whether the organisation is one of the primary archive operators
func (p *Provider) MatchesOperator(organisation string) bool {
	for _, op := range p.ArchiveOperators {
		if strings.EqualFold(op, organisation) {
			return true
		}
	}
	return false
}
