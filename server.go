package eocatalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service/geometry"
	"github.com/airbusgeo/eocatalog/service/log"
)

// AddHandler registers the catalog api on the router
func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/catalog/providers", c.providersHandler).Methods("GET")
	r.HandleFunc("/catalog/providers/{provider}/queryables", c.queryablesHandler).Methods("GET")
	r.HandleFunc("/catalog/search", c.searchHandler).Methods("GET")
}

func (c *Catalog) providersHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(req, w, map[string]interface{}{"providers": c.Providers()})
}

func (c *Catalog) queryablesHandler(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["provider"]
	for i := range c.cfg.Providers {
		if c.cfg.Providers[i].Name != name {
			continue
		}
		queryables := search.Queryables(&c.cfg.Providers[i])
		keys := make([]string, 0, len(queryables))
		for k := range queryables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeJSON(req, w, map[string]interface{}{"provider": name, "queryables": keys})
		return
	}
	http.Error(w, fmt.Sprintf("unknown provider %s", name), http.StatusNotFound)
}

func (c *Catalog) searchHandler(w http.ResponseWriter, req *http.Request) {
	criteria, productType, err := criteriaFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := c.Search(req.Context(), productType, criteria)
	if err != nil {
		if search.IsCallerError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Logger(req.Context()).Error("search failed", zap.Error(err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	collection, err := result.AsFeatureCollection()
	if err != nil {
		log.Logger(req.Context()).Error("search failed", zap.Error(err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(req, w, collection)
}

func criteriaFromRequest(req *http.Request) (search.Criteria, string, error) {
	q := req.URL.Query()
	productType := q.Get("productType")
	if productType == "" {
		return nil, "", fmt.Errorf("missing productType")
	}
	criteria := search.Criteria{}
	if v := q.Get("startDate"); v != "" {
		criteria[search.CritStartDate] = v
	}
	if v := q.Get("endDate"); v != "" {
		criteria[search.CritEndDate] = v
	}
	if v := q.Get("maxCloudCover"); v != "" {
		cover, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid maxCloudCover %q", v)
		}
		criteria[search.CritMaxCloudCover] = cover
	}
	if lat, lon := q.Get("lat"), q.Get("lon"); lat != "" || lon != "" {
		latV, errLat := strconv.ParseFloat(lat, 64)
		lonV, errLon := strconv.ParseFloat(lon, 64)
		if errLat != nil || errLon != nil {
			return nil, "", fmt.Errorf("invalid point %q,%q", lat, lon)
		}
		criteria[search.CritFootprint] = geometry.FromPoint(latV, lonV)
	}
	if v := q.Get("bbox"); v != "" {
		footprint, err := ParseBBox(v)
		if err != nil {
			return nil, "", err
		}
		criteria[search.CritFootprint] = footprint
	}
	return criteria, productType, nil
}

// ParseBBox parses "lonmin,latmin,lonmax,latmax"
func ParseBBox(s string) (*geometry.Footprint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid bbox %q: expecting lonmin,latmin,lonmax,latmax", s)
	}
	coords := [4]float64{}
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		coords[i] = v
	}
	return geometry.FromBBox(coords[0], coords[1], coords[2], coords[3]), nil
}

func writeJSON(req *http.Request, w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Logger(req.Context()).Error("writeJSON", zap.Error(err))
	}
}
