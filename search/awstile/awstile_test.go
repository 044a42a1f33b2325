package awstile

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
)

func TestSetTileLocation(t *testing.T) {
	product := common.NewProduct("test", "S2_MSI_L1C")
	product.Properties[common.PropProviderID] = "42"
	product.Properties[common.PropTitle] = "S2A_MSIL1C_20180101T105441_N0206_R051_T31TCJ_20180101T124911"
	product.Properties[PropCompletionDate] = "2018-01-01T12:49:11Z"

	if err := SetTileLocation(product); err != nil {
		t.Fatalf("%v", err)
	}
	if product.LocationURLTemplate != "{base}/tiles/31/T/CJ/2018/1/1/0/" {
		t.Errorf("unexpected tile location: %s", product.LocationURLTemplate)
	}
	if product.LocalFilename != "42" {
		t.Errorf("unexpected local name: %s", product.LocalFilename)
	}
	if product.Properties[common.PropEndDate] != "2018-01-01T12:49:11Z" {
		t.Errorf("the completion date must replace the end date: %v", product.Properties[common.PropEndDate])
	}
}

func TestSetTileLocationBadTitle(t *testing.T) {
	product := common.NewProduct("test", "S2_MSI_L1C")
	product.Properties[common.PropTitle] = "NOT_A_TILE"
	if err := SetTileLocation(product); err == nil {
		t.Error("expecting an error on an underivable title")
	}
}

func TestQueryDropsUnderivable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"features":[
			{"id":"ok","properties":{"title":"S2A_MSIL1C_20180101T105441_N0206_R051_T31TCJ_20180101T124911","completionDate":"2018-01-01T12:49:11Z"}},
			{"id":"bad","properties":{"title":"BROKEN"}}]}`)
	}))
	defer server.Close()

	cfg := &config.Provider{
		Name:         "test",
		Plugin:       "aws_tile",
		Endpoint:     server.URL + "/collections/{collection}/search.json",
		ResultsEntry: "features",
		MetadataMapping: map[string]config.Mapping{
			"productType":    {Query: "productType", Path: "$.properties.productType"},
			"provider_id":    {Path: "$.id"},
			"title":          {Path: "$.properties.title"},
			"completionDate": {Path: "$.properties.completionDate"},
		},
		Products: map[string]config.ProductType{
			"S2_MSI_L1C": {ProductType: "S2MSI1C", Collection: "S2"},
		},
	}
	plugin, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("%v", err)
	}
	products, err := plugin.Query(context.Background(), "S2_MSI_L1C", search.Criteria{})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products) != 1 || products[0].ProviderID() != "ok" {
		t.Errorf("expecting the underivable product to be dropped, got %v", products)
	}
}
