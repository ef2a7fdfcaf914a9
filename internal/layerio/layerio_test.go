package layerio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/host/memhost"
	"github.com/dshills/hoverselect/internal/selection"
)

const collection = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
  "features": [
    {"type": "Feature", "id": 10, "geometry": {"type": "Point", "coordinates": [1, 2, 30]}},
    {"type": "Feature", "id": 11, "geometry": {"type": "LineString", "coordinates": [[0, 0], [5, 5]]}},
    {"type": "Feature", "id": 12, "geometry": {"type": "Polygon", "coordinates": [
      [[0, 0], [10, 0], [10, 10], [0, 10], [0, 0]],
      [[2, 2], [4, 2], [4, 4], [2, 2]]
    ]}},
    {"type": "Feature", "id": 13, "geometry": null},
    {"type": "Feature", "id": 14, "geometry": {"type": "MultiPolygon", "coordinates": [
      [[[20, 20], [21, 20], [21, 21], [20, 20]]]
    ]}}
  ]
}`

func TestReadCollection(t *testing.T) {
	layer, err := Read([]byte(collection), "parcels")
	require.NoError(t, err)

	assert.Equal(t, "parcels", layer.Name)
	assert.Equal(t, crs.WebMercator(), layer.CRS)
	require.Len(t, layer.Features, 5)

	ids := make([]int64, len(layer.Features))
	for i, f := range layer.Features {
		ids[i] = f.ID
	}
	assert.Equal(t, []int64{10, 11, 12, 13, 14}, ids)

	assert.Equal(t, geom.NewPoint(geom.Pt(1, 2)), layer.Features[0].Geometry)
	assert.Equal(t, geom.KindLineString, layer.Features[1].Geometry.Kind)
	poly := layer.Features[2].Geometry
	assert.Equal(t, geom.KindPolygon, poly.Kind)
	require.Len(t, poly.Polygons, 1)
	assert.Len(t, poly.Polygons[0], 2, "exterior and hole")
	assert.True(t, layer.Features[3].Geometry.IsEmpty())
	assert.Equal(t, geom.KindMultiPolygon, layer.Features[4].Geometry.Kind)
}

func TestReadPositionalIDs(t *testing.T) {
	doc := `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "id": 7, "geometry": {"type": "Point", "coordinates": [0, 0]}},
	  {"type": "Feature", "id": "road-1", "geometry": {"type": "Point", "coordinates": [1, 1]}},
	  {"type": "Feature", "geometry": {"type": "MultiPoint", "coordinates": [[1, 1], [2, 2]]}}
	]}`
	layer, err := Read([]byte(doc), "mixed")
	require.NoError(t, err)

	assert.Equal(t, crs.WGS84(), layer.CRS)
	for i, f := range layer.Features {
		assert.Equal(t, int64(i), f.ID)
	}
}

func TestReadDuplicateIDsArePositional(t *testing.T) {
	doc := `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "id": 3, "geometry": null},
	  {"type": "Feature", "id": 3, "geometry": null}
	]}`
	layer, err := Read([]byte(doc), "dups")
	require.NoError(t, err)
	assert.Equal(t, int64(0), layer.Features[0].ID)
	assert.Equal(t, int64(1), layer.Features[1].ID)
}

func TestReadSingleFeature(t *testing.T) {
	doc := `{"type": "Feature", "id": 5, "geometry": {"type": "MultiLineString", "coordinates": [[[0, 0], [1, 1]]]}}`
	layer, err := Read([]byte(doc), "one")
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)
	assert.Equal(t, int64(5), layer.Features[0].ID)
	assert.Equal(t, geom.KindMultiLineString, layer.Features[0].Geometry.Kind)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		feature int
	}{
		{"not json", `{"type":`, -1},
		{"wrong type", `{"type": "Topology"}`, -1},
		{"bad geometry type", `{"type": "FeatureCollection", "features": [
		  {"type": "Feature", "geometry": {"type": "Circle", "coordinates": [0, 0]}}]}`, 0},
		{"bad position", `{"type": "FeatureCollection", "features": [
		  {"type": "Feature", "geometry": null},
		  {"type": "Feature", "geometry": {"type": "Point", "coordinates": ["a", 0]}}]}`, 1},
		{"short ring", `{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 1]]]}}`, 0},
		{"empty polygon", `{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": []}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read([]byte(tt.doc), "bad")
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.feature, perr.Feature)
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.geojson")
	require.NoError(t, os.WriteFile(path, []byte(collection), 0o644))

	layer, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "roads", layer.Name)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestSnapshotAndEncode(t *testing.T) {
	store := memhost.NewStore()
	a := store.MustAddLayer(memhost.LayerSpec{ID: "a", Name: "parcels", Features: []host.Feature{{ID: 1}, {ID: 2}, {ID: 5}}})
	store.MustAddLayer(memhost.LayerSpec{ID: "r", Name: "imagery", Kind: host.LayerRaster})
	store.MustAddLayer(memhost.LayerSpec{ID: "b", Name: "roads"})
	require.NoError(t, store.SetSelectedIDs(a, selection.NewSet(5, 1, 2)))

	sel, err := Snapshot(store)
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, []int64{1, 2, 5}, sel[0].IDs)

	doc, err := EncodeSelection(sel)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))

	r := gjson.ParseBytes(doc)
	assert.Equal(t, int64(3), r.Get("total").Int())
	assert.Equal(t, "parcels", r.Get("layers.0.name").String())
	assert.Equal(t, int64(3), r.Get("layers.0.count").Int())
	assert.Equal(t, `[1,2,5]`, r.Get("layers.0.ids").Raw)
	assert.Equal(t, "b", r.Get("layers.1.id").String())
	assert.Equal(t, `[]`, r.Get("layers.1.ids").Raw)
}

func TestWriteSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.json")
	require.NoError(t, WriteSelection(path, []LayerSelection{{LayerID: "a", Name: "parcels", IDs: []int64{4}}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n")
	assert.Equal(t, int64(1), gjson.GetBytes(data, "total").Int())
	assert.Equal(t, int64(4), gjson.GetBytes(data, "layers.0.ids.0").Int())
}
