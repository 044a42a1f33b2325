package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog"
	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service"
	"github.com/airbusgeo/eocatalog/service/geometry"
	"github.com/airbusgeo/eocatalog/service/log"
)

type appConfig struct {
	ConfigFile  string
	Addr        string
	ProductType string
	StartDate   string
	EndDate     string
	CloudCover  float64
	BBox        string
	AOI         string
	Download    string
}

func newAppConfig() *appConfig {
	config := appConfig{}
	flag.StringVar(&config.ConfigFile, "config", "", "providers configuration file (defaults to $EOCATALOG_CONFIG)")
	flag.StringVar(&config.Addr, "addr", ":8080", "address of the http server")
	flag.StringVar(&config.ProductType, "product-type", "", "canonical product type to search (one-shot mode; without it an http server is started)")
	flag.StringVar(&config.StartDate, "start-date", "", "start of the sensing period")
	flag.StringVar(&config.EndDate, "end-date", "", "end of the sensing period")
	flag.Float64Var(&config.CloudCover, "max-cloud-cover", -1, "maximal cloud cover percentage")
	flag.StringVar(&config.BBox, "bbox", "", "area of interest: lonmin,latmin,lonmax,latmax")
	flag.StringVar(&config.AOI, "aoi", "", "area of interest: geojson file (takes precedence over -bbox)")
	flag.StringVar(&config.Download, "download", "", "download the found products to this directory")
	flag.Parse()
	return &config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	appCfg := newAppConfig()

	cfg, err := config.Load(appCfg.ConfigFile)
	if err != nil {
		return err
	}
	catalog, err := eocatalog.New(ctx, cfg)
	if err != nil {
		return err
	}

	if appCfg.ProductType != "" {
		return oneShot(ctx, catalog, appCfg)
	}

	// HTTP Server
	r := mux.NewRouter()
	catalog.AddHandler(r)
	s := http.Server{
		Addr:    appCfg.Addr,
		Handler: handlers.CompressHandler(handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(r)),
	}

	go func() {
		log.Logger(ctx).Info("catalog server listening", zap.String("addr", appCfg.Addr))
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("catalog.ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

func oneShot(ctx context.Context, catalog *eocatalog.Catalog, appCfg *appConfig) error {
	criteria := search.Criteria{}
	if appCfg.StartDate != "" {
		criteria[search.CritStartDate] = appCfg.StartDate
	}
	if appCfg.EndDate != "" {
		criteria[search.CritEndDate] = appCfg.EndDate
	}
	if appCfg.CloudCover >= 0 {
		criteria[search.CritMaxCloudCover] = appCfg.CloudCover
	}
	if appCfg.BBox != "" {
		footprint, err := eocatalog.ParseBBox(appCfg.BBox)
		if err != nil {
			return err
		}
		criteria[search.CritFootprint] = footprint
	}
	if appCfg.AOI != "" {
		raw, err := os.ReadFile(appCfg.AOI)
		if err != nil {
			return err
		}
		g, err := service.UnmarshalGeometry(raw)
		if err != nil {
			return err
		}
		criteria[search.CritFootprint] = geometry.FromGeometry(g)
	}

	result, err := catalog.Search(ctx, appCfg.ProductType, criteria)
	if err != nil {
		return err
	}
	collection, err := result.AsFeatureCollection()
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(collection); err != nil {
		return err
	}

	if appCfg.Download == "" {
		return nil
	}
	var downloadErr error
	for _, product := range result {
		manager, err := catalog.DownloadManager(ctx, product.Provider)
		if err != nil {
			return err
		}
		log.Logger(ctx).Info("downloading product",
			zap.String("provider", product.Provider), zap.String("id", product.ProviderID()))
		if err := manager.Download(ctx, product, appCfg.Download); err != nil {
			log.Logger(ctx).Warn("download failed",
				zap.String("provider", product.Provider), zap.String("id", product.ProviderID()), zap.Error(err))
			downloadErr = service.MergeErrors(true, downloadErr, err)
		}
	}
	return downloadErr
}
