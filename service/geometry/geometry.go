package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// Point is a WGS84 location
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is a WGS84 bounding box
type BBox struct {
	LonMin float64 `json:"lonmin"`
	LatMin float64 `json:"latmin"`
	LonMax float64 `json:"lonmax"`
	LatMax float64 `json:"latmax"`
}

// Footprint is the extent of a search request: a point, a bounding box or a
// full geometry. At most one of the three is set.
type Footprint struct {
	Point *Point
	BBox  *BBox
	Geom  geom.Geometry
}

func FromPoint(lat, lon float64) *Footprint {
	return &Footprint{Point: &Point{Lat: lat, Lon: lon}}
}

func FromBBox(lonmin, latmin, lonmax, latmax float64) *Footprint {
	return &Footprint{BBox: &BBox{LonMin: lonmin, LatMin: latmin, LonMax: lonmax, LatMax: latmax}}
}

func FromGeometry(g geom.Geometry) *Footprint {
	return &Footprint{Geom: g}
}

// AsBBox returns the bounding box of the footprint
func (f *Footprint) AsBBox() (*BBox, error) {
	switch {
	case f.BBox != nil:
		return f.BBox, nil
	case f.Point != nil:
		return &BBox{LonMin: f.Point.Lon, LatMin: f.Point.Lat, LonMax: f.Point.Lon, LatMax: f.Point.Lat}, nil
	case f.Geom != nil:
		e, err := geom.NewExtentFromGeometry(f.Geom)
		if err != nil {
			return nil, fmt.Errorf("AsBBox: %w", err)
		}
		return &BBox{LonMin: e.MinX(), LatMin: e.MinY(), LonMax: e.MaxX(), LatMax: e.MaxY()}, nil
	}
	return nil, fmt.Errorf("AsBBox: empty footprint")
}

// ToWKT encodes the footprint as WKT (a box becomes a closed polygon)
func (f *Footprint) ToWKT() (string, error) {
	switch {
	case f.Geom != nil:
		return wkt.EncodeString(f.Geom)
	case f.Point != nil:
		return wkt.EncodeString(geom.Point{f.Point.Lon, f.Point.Lat})
	case f.BBox != nil:
		b := f.BBox
		poly := geom.Polygon{{
			{b.LonMin, b.LatMin},
			{b.LonMax, b.LatMin},
			{b.LonMax, b.LatMax},
			{b.LonMin, b.LatMax},
			{b.LonMin, b.LatMin},
		}}
		return wkt.EncodeString(poly)
	}
	return "", fmt.Errorf("ToWKT: empty footprint")
}

// Intersection computes the intersection of two WKT geometries, returned as WKT.
// An empty intersection returns "".
func Intersection(wktA, wktB string) (string, error) {
	ga, err := geos.FromWKT(wktA)
	if err != nil {
		return "", fmt.Errorf("Intersection.FromWKT: %w", err)
	}
	gb, err := geos.FromWKT(wktB)
	if err != nil {
		return "", fmt.Errorf("Intersection.FromWKT: %w", err)
	}
	gi, err := ga.Intersection(gb)
	if err != nil {
		return "", fmt.Errorf("Intersection: %w", err)
	}
	if empty, err := gi.IsEmpty(); err != nil || empty {
		return "", err
	}
	return gi.ToWKT()
}
