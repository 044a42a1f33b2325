package qssearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"testing"

	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service/geometry"
)

func provider(endpoint string) *config.Provider {
	return &config.Provider{
		Name:         "test",
		Plugin:       "query_string",
		Endpoint:     endpoint,
		ResultsEntry: "features",
		MetadataMapping: map[string]config.Mapping{
			"productType": {Query: "productType", Path: "$.properties.productType"},
			"provider_id": {Path: "$.id"},
			"title":       {Path: "$.properties.title"},
		},
		Products: map[string]config.ProductType{
			"S2_MSI_L1C": {ProductType: "S2MSI1C"},
		},
	}
}

func TestQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"features":[
			{"id":"1","properties":{"title":"A","productType":"S2MSI1C"}},
			{"id":"2","properties":{"title":"B","productType":"S2MSI1C"}}]}`)
	}))
	defer server.Close()

	plugin, err := New(provider(server.URL), nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	products, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expecting 2 products, got %d", len(products))
	}
	if products[0].ProviderID() != "1" || products[1].ProviderID() != "2" {
		t.Errorf("unexpected products: %s, %s", products[0].ProviderID(), products[1].ProviderID())
	}
	if gotQuery != "productType=S2MSI1C" {
		t.Errorf("unexpected query: %s", gotQuery)
	}
}

func TestQueryFootprintAndFreeText(t *testing.T) {
	var gotValues neturl.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotValues = r.URL.Query()
		fmt.Fprint(w, `{"features":[{"id":"1","properties":{"title":"A","productType":"S2MSI1C"}}]}`)
	}))
	defer server.Close()

	cfg := provider(server.URL)
	cfg.MetadataMapping["footprint"] = config.Mapping{Query: "geometry={footprint#to_wkt}"}
	cfg.FreeTextSearchParam = "q"
	cfg.FreeTextSearchOperations = []config.FreeTextOperation{
		{Operator: "OR", Operands: []string{"platformname:{platform}"}},
	}

	footprint := geometry.FromBBox(1, 43, 2, 44)
	plugin, _ := New(cfg, nil)
	products, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{
		"footprint": footprint,
		"platform":  "SENTINEL 2",
	})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expecting 1 product, got %d", len(products))
	}
	// Spaces, parentheses and commas in the values must reach the provider
	// percent-encoded, and decode back to the original values.
	wkt, _ := footprint.ToWKT()
	if gotValues.Get("geometry") != wkt {
		t.Errorf("unexpected geometry parameter: %s", gotValues.Get("geometry"))
	}
	if gotValues.Get("q") != "((platformname:SENTINEL 2))" {
		t.Errorf("unexpected free text parameter: %s", gotValues.Get("q"))
	}
}

func TestQueryUnknownProductType(t *testing.T) {
	plugin, _ := New(provider("http://localhost"), nil)
	_, err := plugin.Query(context.Background(), "NOT_A_PRODUCT", search.Criteria{})
	var unknown search.ErrUnknownProductType
	if !errors.As(err, &unknown) {
		t.Errorf("expecting ErrUnknownProductType, got %v", err)
	}
	if !search.IsCallerError(err) {
		t.Error("an unknown product type is a caller error")
	}
}

func TestQueryTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	plugin, _ := New(provider(server.URL), nil)
	products, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{})
	if err != nil {
		t.Fatalf("a transport failure must degrade to zero results, got %v", err)
	}
	if products == nil || len(products) != 0 {
		t.Errorf("expecting an empty non-nil result, got %v", products)
	}
}

func TestQueryContractChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":[]}`)
	}))
	defer server.Close()

	plugin, _ := New(provider(server.URL), nil)
	if _, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{}); err == nil {
		t.Error("a missing results entry is a contract change and must be surfaced")
	}
}

func TestQueryXMLEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<feed xmlns="http://www.w3.org/2005/Atom">
			<entry><id>1</id><title>A</title></entry>
			<entry><id>2</id><title>B</title></entry>
		</feed>`)
	}))
	defer server.Close()

	cfg := provider(server.URL)
	cfg.ResultType = "xml"
	cfg.ResultsEntry = "atom:entry"
	cfg.Namespaces = map[string]string{"atom": "http://www.w3.org/2005/Atom"}
	cfg.MetadataMapping = map[string]config.Mapping{
		"productType": {Query: "productType", Path: "atom:productType"},
		"provider_id": {Path: "atom:id"},
		"title":       {Path: "atom:title"},
	}

	plugin, _ := New(cfg, nil)
	products, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expecting 2 products, got %d", len(products))
	}
	if products[1].Properties["title"] != "B" {
		t.Errorf("unexpected second product: %v", products[1].Properties)
	}
}
