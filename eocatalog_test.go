package eocatalog_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/airbusgeo/eocatalog"
	"github.com/airbusgeo/eocatalog/common"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
)

func provider(name, endpoint string) config.Provider {
	return config.Provider{
		Name:         name,
		Plugin:       eocatalog.PluginQueryString,
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

func answer(ids ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		features := ""
		for i, id := range ids {
			if i > 0 {
				features += ","
			}
			features += fmt.Sprintf(`{"id":%q,"properties":{"title":"PROD_%s"}}`, id, id)
		}
		fmt.Fprintf(w, `{"features":[%s]}`, features)
	}
}

var _ = Describe("Catalog", func() {
	var (
		ctx     context.Context
		serverA *httptest.Server
		serverB *httptest.Server
		catalog *eocatalog.Catalog
	)

	BeforeEach(func() {
		ctx = context.Background()
		serverA = httptest.NewServer(answer("a1", "a2"))
		serverB = httptest.NewServer(answer("b1"))

		cfg := &config.Config{Providers: []config.Provider{
			provider("alpha", serverA.URL),
			provider("beta", serverB.URL),
		}}
		var err error
		catalog, err = eocatalog.New(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		serverA.Close()
		serverB.Close()
	})

	Describe("Search", func() {
		It("concatenates the providers in configuration order", func() {
			result, err := catalog.Search(ctx, "S2_MSI_L1C", search.Criteria{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(3))
			Expect(result[0].Provider).To(Equal("alpha"))
			Expect(result[0].ProviderID()).To(Equal("a1"))
			Expect(result[2].Provider).To(Equal("beta"))
			Expect(result[2].ProviderID()).To(Equal("b1"))
		})

		It("skips providers that do not serve the product type", func() {
			cfg := &config.Config{Providers: []config.Provider{
				provider("alpha", serverA.URL),
			}}
			cfg.Providers[0].Products = map[string]config.ProductType{"OTHER": {ProductType: "x"}}
			limited, err := eocatalog.New(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			result, err := limited.Search(ctx, "S2_MSI_L1C", search.Criteria{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})

		It("degrades a failing provider to zero results", func() {
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusForbidden)
			}))
			defer failing.Close()
			cfg := &config.Config{Providers: []config.Provider{
				provider("alpha", serverA.URL),
				provider("gamma", failing.URL),
			}}
			degraded, err := eocatalog.New(ctx, cfg)
			Expect(err).NotTo(HaveOccurred())
			result, err := degraded.Search(ctx, "S2_MSI_L1C", search.Criteria{})
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(2))
			Expect(result[0].Provider).To(Equal("alpha"))
		})
	})

	Describe("Result", func() {
		It("removes doubles by provider and provider id", func() {
			p1 := common.NewProduct("alpha", "S2_MSI_L1C")
			p1.Properties[common.PropProviderID] = "a1"
			p2 := common.NewProduct("alpha", "S2_MSI_L1C")
			p2.Properties[common.PropProviderID] = "a1"
			p3 := common.NewProduct("beta", "S2_MSI_L1C")
			p3.Properties[common.PropProviderID] = "a1"

			result := eocatalog.Result{p1, p2, p3}.RemoveDoubles()
			Expect(result).To(HaveLen(2))
			Expect(result[0]).To(BeIdenticalTo(p1))
			Expect(result[1]).To(BeIdenticalTo(p3))
		})

		It("keeps the products without a provider id", func() {
			result := eocatalog.Result{
				common.NewProduct("alpha", "S2_MSI_L1C"),
				common.NewProduct("alpha", "S2_MSI_L1C"),
			}.RemoveDoubles()
			Expect(result).To(HaveLen(2))
		})

		It("builds a feature collection", func() {
			result, err := catalog.Search(ctx, "S2_MSI_L1C", search.Criteria{})
			Expect(err).NotTo(HaveOccurred())
			collection, err := result.AsFeatureCollection()
			Expect(err).NotTo(HaveOccurred())
			Expect(collection["type"]).To(Equal("FeatureCollection"))
			Expect(collection["features"]).To(HaveLen(3))
		})
	})

	Describe("Authenticator", func() {
		It("prefers oauth over basic auth", func() {
			p := provider("alpha", serverA.URL)
			p.Credentials = map[string]string{
				"client_id": "id", "client_secret": "secret", "token_url": "https://example.org/token",
				"username": "u", "password": "p",
			}
			authn, err := eocatalog.Authenticator(ctx, &p)
			Expect(err).NotTo(HaveOccurred())
			Expect(fmt.Sprintf("%T", authn)).To(Equal("*auth.OAuth"))
		})

		It("fails on oauth credentials without a token url", func() {
			p := provider("alpha", serverA.URL)
			p.Credentials = map[string]string{"client_id": "id"}
			_, err := eocatalog.Authenticator(ctx, &p)
			Expect(err).To(HaveOccurred())
		})

		It("returns nil without credentials", func() {
			p := provider("alpha", serverA.URL)
			authn, err := eocatalog.Authenticator(ctx, &p)
			Expect(err).NotTo(HaveOccurred())
			Expect(authn).To(BeNil())
		})
	})

	Describe("ParseBBox", func() {
		It("parses the four coordinates", func() {
			footprint, err := eocatalog.ParseBBox("1,43,2,44")
			Expect(err).NotTo(HaveOccurred())
			bbox, err := footprint.AsBBox()
			Expect(err).NotTo(HaveOccurred())
			Expect(bbox.LonMin).To(Equal(1.0))
			Expect(bbox.LatMax).To(Equal(44.0))
		})

		It("rejects malformed boxes", func() {
			_, err := eocatalog.ParseBBox("1,43,2")
			Expect(err).To(HaveOccurred())
		})
	})
})
