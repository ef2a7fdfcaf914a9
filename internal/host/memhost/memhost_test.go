package memhost

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/selection"
)

func TestCanvasScreenToMap(t *testing.T) {
	c := NewCanvas(200, 100, geom.Pt(1000, 2000), 0.5, crs.WebMercator())

	assert.Equal(t, geom.Pt(1000, 2000), c.ScreenToMap(geom.Pt(100, 50)))
	assert.Equal(t, geom.Pt(950, 2025), c.ScreenToMap(geom.Pt(0, 0)))

	p := geom.Pt(37, 81)
	assert.Equal(t, p, c.MapToScreen(c.ScreenToMap(p)))

	ext := c.Extent()
	assert.Equal(t, geom.Pt(950, 1975), ext.Min)
	assert.Equal(t, geom.Pt(1050, 2025), ext.Max)
}

func TestCanvasViewportListeners(t *testing.T) {
	c := NewCanvas(10, 10, geom.Point{}, 1, crs.WGS84())
	calls := 0
	c.OnViewportChanged(func() { calls++ })

	c.Zoom(2)
	c.Pan(1, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, c.MapUnitsPerPixel())
	assert.Equal(t, geom.Pt(2, -2), c.ScreenToMap(geom.Pt(5, 5)))
}

func TestRemovedListenersAreNotCalled(t *testing.T) {
	c := NewCanvas(10, 10, geom.Point{}, 1, crs.WGS84())
	s := NewStore()
	var viewport, layers, kept int
	removeViewport := c.OnViewportChanged(func() { viewport++ })
	removeLayers := s.OnLayersChanged(func() { layers++ })
	s.OnLayersChanged(func() { kept++ })

	removeViewport()
	removeLayers()
	removeLayers()
	c.Zoom(2)
	s.MustAddLayer(LayerSpec{ID: "roads", CRS: crs.WGS84()})

	assert.Zero(t, viewport)
	assert.Zero(t, layers)
	assert.Equal(t, 1, kept)
}

func TestCanvasCurrentLayer(t *testing.T) {
	c := NewCanvas(10, 10, geom.Point{}, 1, crs.WGS84())
	_, ok := c.CurrentLayer()
	assert.False(t, ok)

	c.SetCurrentLayer("roads")
	id, ok := c.CurrentLayer()
	assert.True(t, ok)
	assert.Equal(t, "roads", id)
}

func TestStoreLayers(t *testing.T) {
	s := NewStore()
	changes := 0
	s.OnLayersChanged(func() { changes++ })

	id := s.MustAddLayer(LayerSpec{Name: "parcels", CRS: crs.WGS84()})
	_, err := uuid.Parse(id)
	require.NoError(t, err, "generated ids are uuids")

	s.MustAddLayer(LayerSpec{ID: "raster", Kind: host.LayerRaster, Hidden: true, Locked: true})

	layers := s.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, "parcels", layers[0].Name)
	assert.True(t, layers[0].Selectable)
	assert.False(t, layers[1].Selectable)
	assert.True(t, s.IsVisible(id))
	assert.False(t, s.IsVisible("raster"))

	require.NoError(t, s.RemoveLayer("raster"))
	assert.ErrorIs(t, s.RemoveLayer("raster"), host.ErrUnknownLayer)
	assert.Equal(t, 3, changes)

	_, err = s.AddLayer(LayerSpec{ID: id})
	assert.Error(t, err)
	_, err = s.AddLayer(LayerSpec{Features: []host.Feature{{ID: 1}, {ID: 1}}})
	assert.Error(t, err)
}

func TestStoreFeaturesFilter(t *testing.T) {
	s := NewStore()
	id := s.MustAddLayer(LayerSpec{Features: []host.Feature{
		{ID: 1, Geometry: geom.NewPoint(geom.Pt(0, 0))},
		{ID: 2, Geometry: geom.NewPoint(geom.Pt(10, 10))},
		{ID: 3},
	}})

	var all, filtered []int64
	require.NoError(t, s.Features(id, nil, func(f host.Feature) bool {
		all = append(all, f.ID)
		return true
	}))
	box := geom.NewRect(geom.Pt(-1, -1), geom.Pt(1, 1))
	require.NoError(t, s.Features(id, &box, func(f host.Feature) bool {
		filtered = append(filtered, f.ID)
		return true
	}))

	assert.Equal(t, []int64{1, 2, 3}, all)
	assert.Equal(t, []int64{1}, filtered)
}

func TestStoreSelectionAndFaults(t *testing.T) {
	s := NewStore()
	id := s.MustAddLayer(LayerSpec{
		Features:   []host.Feature{{ID: 1}, {ID: 2}},
		SelectedID: []int64{1},
	})

	sel, err := s.SelectedIDs(id)
	require.NoError(t, err)
	sel.Add(2)
	assert.Equal(t, []int64{1}, s.Selected(id), "SelectedIDs returns a copy")

	require.NoError(t, s.SetSelectedIDs(id, selection.NewSet(2)))
	assert.Equal(t, []int64{2}, s.Selected(id))

	boom := errors.New("read only")
	s.FailCommit(id, boom)
	assert.ErrorIs(t, s.SetSelectedIDs(id, selection.NewSet()), boom)
	s.FailCommit(id, nil)
	require.NoError(t, s.SetSelectedIDs(id, selection.NewSet()))

	s.FailFetch(id, 2, boom)
	_, err = s.FeatureByID(id, 2)
	assert.ErrorIs(t, err, boom)
	_, err = s.FeatureByID(id, 99)
	assert.ErrorIs(t, err, host.ErrUnknownFeature)

	s.FailScan(id, boom)
	assert.ErrorIs(t, s.Features(id, nil, func(host.Feature) bool { return true }), boom)

	s.PanicOnScan(id, true)
	assert.Panics(t, func() { _ = s.Features(id, nil, func(host.Feature) bool { return true }) })
}
