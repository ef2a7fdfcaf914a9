// Package layerio reads vector layers from GeoJSON and writes selection
// reports.
package layerio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
)

// Layer is a vector layer decoded from a GeoJSON document.
type Layer struct {
	Name     string
	CRS      crs.CRS
	Features []host.Feature
}

// ParseError reports a document or feature that could not be decoded.
// Feature is -1 for document-level errors.
type ParseError struct {
	Source  string
	Feature int
	Err     error
}

func (e *ParseError) Error() string {
	if e.Feature < 0 {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: feature %d: %v", e.Source, e.Feature, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadFile decodes the GeoJSON file at path. The layer is named after the
// file.
func ReadFile(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Read(data, name)
}

// Read decodes a FeatureCollection or a single Feature.
//
// Feature ids come from the numeric "id" member when every feature has a
// distinct integral one; otherwise features are numbered by position
// starting at 0. Features with a null geometry are kept without geometry.
// The "crs" member selects the layer CRS; EPSG:4326 is assumed without it.
func Read(data []byte, name string) (Layer, error) {
	if !gjson.ValidBytes(data) {
		return Layer{}, &ParseError{Source: name, Feature: -1, Err: fmt.Errorf("invalid JSON")}
	}
	doc := gjson.ParseBytes(data)

	layer := Layer{Name: name, CRS: crs.WGS84()}
	if v := doc.Get("crs.properties.name"); v.Exists() {
		c := crs.New(v.String())
		if !c.IsValid() {
			return Layer{}, &ParseError{Source: name, Feature: -1, Err: fmt.Errorf("unusable crs %q", v.String())}
		}
		layer.CRS = c
	}

	var items []gjson.Result
	switch t := doc.Get("type").String(); t {
	case "FeatureCollection":
		items = doc.Get("features").Array()
	case "Feature":
		items = []gjson.Result{doc}
	default:
		return Layer{}, &ParseError{Source: name, Feature: -1, Err: fmt.Errorf("unsupported GeoJSON type %q", t)}
	}

	layer.Features = make([]host.Feature, len(items))
	for i, item := range items {
		g, err := parseGeometry(item.Get("geometry"))
		if err != nil {
			return Layer{}, &ParseError{Source: name, Feature: i, Err: err}
		}
		layer.Features[i] = host.Feature{ID: int64(i), Geometry: g}
	}
	if ids, ok := explicitIDs(items); ok {
		for i := range layer.Features {
			layer.Features[i].ID = ids[i]
		}
	}
	return layer, nil
}

func explicitIDs(items []gjson.Result) ([]int64, bool) {
	ids := make([]int64, len(items))
	seen := make(map[int64]struct{}, len(items))
	for i, item := range items {
		id := item.Get("id")
		if id.Type != gjson.Number || id.Num != math.Trunc(id.Num) {
			return nil, false
		}
		n := id.Int()
		if _, dup := seen[n]; dup {
			return nil, false
		}
		seen[n] = struct{}{}
		ids[i] = n
	}
	return ids, true
}

func parseGeometry(v gjson.Result) (geom.Geometry, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return geom.Geometry{}, nil
	}
	coords := v.Get("coordinates")

	var (
		g   geom.Geometry
		err error
	)
	switch t := v.Get("type").String(); t {
	case "Point":
		var p geom.Point
		if p, err = parsePosition(coords); err == nil {
			g = geom.NewPoint(p)
		}
	case "MultiPoint":
		var pts []geom.Point
		if pts, err = parsePositions(coords); err == nil {
			g = geom.NewMultiPoint(pts...)
		}
	case "LineString":
		var pts []geom.Point
		if pts, err = parsePositions(coords); err == nil {
			g = geom.NewLineString(pts...)
		}
	case "MultiLineString":
		var lines [][]geom.Point
		for _, c := range coords.Array() {
			pts, perr := parsePositions(c)
			if perr != nil {
				return geom.Geometry{}, perr
			}
			lines = append(lines, pts)
		}
		g = geom.NewMultiLineString(lines...)
	case "Polygon":
		var poly geom.Polygon
		if poly, err = parsePolygon(coords); err == nil {
			g = geom.NewPolygon(poly[0], poly[1:]...)
		}
	case "MultiPolygon":
		var polys []geom.Polygon
		for _, c := range coords.Array() {
			poly, perr := parsePolygon(c)
			if perr != nil {
				return geom.Geometry{}, perr
			}
			polys = append(polys, poly)
		}
		g = geom.NewMultiPolygon(polys...)
	default:
		return geom.Geometry{}, fmt.Errorf("unsupported geometry type %q", t)
	}
	if err != nil {
		return geom.Geometry{}, err
	}
	if err := g.Validate(); err != nil {
		return geom.Geometry{}, err
	}
	return g, nil
}

func parsePolygon(v gjson.Result) (geom.Polygon, error) {
	rings := v.Array()
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon without rings")
	}
	poly := make(geom.Polygon, 0, len(rings))
	for _, r := range rings {
		pts, err := parsePositions(r)
		if err != nil {
			return nil, err
		}
		poly = append(poly, geom.Ring(pts))
	}
	return poly, nil
}

func parsePositions(v gjson.Result) ([]geom.Point, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("coordinates must be an array")
	}
	arr := v.Array()
	pts := make([]geom.Point, 0, len(arr))
	for _, c := range arr {
		p, err := parsePosition(c)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// parsePosition reads [x, y, ...]; extra ordinates are ignored.
func parsePosition(v gjson.Result) (geom.Point, error) {
	arr := v.Array()
	if !v.IsArray() || len(arr) < 2 || arr[0].Type != gjson.Number || arr[1].Type != gjson.Number {
		return geom.Point{}, fmt.Errorf("bad position %s", v.Raw)
	}
	return geom.Pt(arr[0].Float(), arr[1].Float()), nil
}
