package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/debounce"
	"github.com/dshills/hoverselect/internal/engine"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/host/memhost"
	"github.com/dshills/hoverselect/internal/selection"
)

type fixture struct {
	app    *App
	host   *memhost.Host
	clock  *debounce.Manual
	screen tcell.SimulationScreen
	layer  string
}

// newFixture starts an app on an 80x25 simulation screen. The canvas is
// 80x48 pixels at one map unit per pixel, so cell (40, 12) covers the map
// origin.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		host:   memhost.New(crs.WebMercator()),
		clock:  debounce.NewManual(),
		screen: tcell.NewSimulationScreen("UTF-8"),
	}
	f.layer = f.host.Store.MustAddLayer(memhost.LayerSpec{
		ID:   "pts",
		Name: "points",
		CRS:  crs.WebMercator(),
		Features: []host.Feature{
			{ID: 1, Geometry: geom.NewPoint(geom.Pt(0, 0))},
			{ID: 2, Geometry: geom.NewPoint(geom.Pt(30, 0))},
		},
	})
	opts.Plugin.EngineOptions = append(opts.Plugin.EngineOptions, engine.WithScheduler(f.clock))

	app, err := New(f.screen, f.host, opts)
	require.NoError(t, err)
	f.app = app
	t.Cleanup(func() { _ = app.Close() })
	return f
}

func (f *fixture) key(r rune) bool {
	return f.app.HandleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
}

func (f *fixture) special(k tcell.Key) bool {
	return f.app.HandleEvent(tcell.NewEventKey(k, 0, tcell.ModNone))
}

func (f *fixture) hover(x, y int) {
	f.app.HandleEvent(tcell.NewEventMouse(x, y, tcell.ButtonNone, tcell.ModNone))
	f.clock.Advance(time.Second)
	f.app.Draw()
}

func (f *fixture) row(y int) string {
	cells, w, _ := f.screen.GetContents()
	var b strings.Builder
	for x := 0; x < w; x++ {
		c := cells[y*w+x]
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func (f *fixture) rune(x, y int) rune {
	cells, w, _ := f.screen.GetContents()
	c := cells[y*w+x]
	if len(c.Runes) == 0 {
		return ' '
	}
	return c.Runes[0]
}

func TestNewRequiresScreenAndHost(t *testing.T) {
	_, err := New(nil, memhost.New(crs.WebMercator()), Options{})
	assert.Error(t, err)
	_, err = New(tcell.NewSimulationScreen("UTF-8"), nil, Options{})
	assert.Error(t, err)
}

func TestNewActivatesTool(t *testing.T) {
	f := newFixture(t, Options{})

	assert.True(t, f.app.Shell().Active())
	w, h := f.host.Canvas.Size()
	assert.Equal(t, 80, w)
	assert.Equal(t, 48, h)
	id, ok := f.host.Canvas.CurrentLayer()
	require.True(t, ok)
	assert.Equal(t, f.layer, id)
}

func TestHoverSelects(t *testing.T) {
	f := newFixture(t, Options{})

	f.hover(40, 12)
	assert.Equal(t, []int64{1}, f.host.Store.Selected(f.layer))
	assert.Equal(t, runeSelected, f.rune(40, 12))
	assert.Equal(t, runePoint, f.rune(70, 12))
	assert.Contains(t, f.row(24), "Selected 1 feature(s)")
}

func TestHoverOnStatusRowIsIgnored(t *testing.T) {
	f := newFixture(t, Options{})

	f.hover(40, 24)
	assert.Empty(t, f.host.Store.Selected(f.layer))
	assert.Equal(t, 0, f.app.Shell().Engine().Stats().Runs)
}

func TestPanelKeys(t *testing.T) {
	f := newFixture(t, Options{})
	p := f.app.Shell().Panel()

	require.True(t, f.key('m'))
	assert.Equal(t, selection.ModeReplace, p.Values().SelectionMode)
	assert.Contains(t, f.row(24), "Selection mode: replace")

	require.True(t, f.key('r'))
	assert.Equal(t, config.RestrictAll, p.Values().RestrictMode)

	require.True(t, f.key(']'))
	assert.Equal(t, config.DefaultRadiusPixels+PixelRadiusStep, p.Values().PixelRadius)

	require.True(t, f.key('u'))
	assert.Equal(t, config.UnitMapUnits, p.Values().UnitMode)
	before := p.Values().MapUnitRadius
	require.True(t, f.key('['))
	assert.InDelta(t, before/MapUnitRadiusFactor, p.Values().MapUnitRadius, 1e-6)

	require.True(t, f.key('o'))
	assert.False(t, p.Values().ShowFeedback)

	cfg := f.app.Shell().Engine().Config()
	assert.Equal(t, selection.ModeReplace, cfg.SelectionMode)
	assert.Equal(t, config.RestrictAll, cfg.RestrictMode)
	assert.Equal(t, config.UnitMapUnits, cfg.UnitMode)
	assert.False(t, cfg.ShowFeedbackOverlay)
}

func TestViewportKeys(t *testing.T) {
	f := newFixture(t, Options{})

	require.True(t, f.key('+'))
	assert.InDelta(t, 0.8, f.host.Canvas.MapUnitsPerPixel(), 1e-9)
	require.True(t, f.key('-'))
	assert.InDelta(t, 1.0, f.host.Canvas.MapUnitsPerPixel(), 1e-9)

	require.True(t, f.special(tcell.KeyRight))
	assert.InDelta(t, PanStep, f.host.Canvas.Extent().Center().X, 1e-9)
	require.True(t, f.special(tcell.KeyUp))
	assert.InDelta(t, PanStep, f.host.Canvas.Extent().Center().Y, 1e-9)
}

func TestToolToggleKey(t *testing.T) {
	f := newFixture(t, Options{})

	require.True(t, f.key(' '))
	assert.False(t, f.app.Shell().Active())
	f.hover(40, 12)
	assert.Empty(t, f.host.Store.Selected(f.layer))

	require.True(t, f.key(' '))
	assert.True(t, f.app.Shell().Active())
}

func TestRebuildAndClearKeys(t *testing.T) {
	f := newFixture(t, Options{})
	f.hover(40, 12)
	rebuilds := f.app.Shell().Engine().Stats().Rebuilds

	require.True(t, f.key('b'))
	assert.Equal(t, rebuilds+1, f.app.Shell().Engine().Stats().Rebuilds)

	require.True(t, f.key('c'))
	assert.Empty(t, f.host.Store.Selected(f.layer))
	assert.Contains(t, f.row(24), "Cleared selection (1 features)")
}

func TestTabCyclesCurrentLayer(t *testing.T) {
	f := newFixture(t, Options{})
	roads := f.host.Store.MustAddLayer(memhost.LayerSpec{ID: "roads", Name: "roads", CRS: crs.WebMercator()})
	f.host.Store.MustAddLayer(memhost.LayerSpec{ID: "img", Name: "imagery", Kind: host.LayerRaster})

	require.True(t, f.special(tcell.KeyTab))
	id, _ := f.host.Canvas.CurrentLayer()
	assert.Equal(t, roads, id)
	assert.Contains(t, f.row(24), "Current layer: roads")

	require.True(t, f.special(tcell.KeyTab))
	id, _ = f.host.Canvas.CurrentLayer()
	assert.Equal(t, f.layer, id, "raster layers are skipped")
}

func TestExportKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selection.json")
	f := newFixture(t, Options{ExportPath: path})
	f.hover(40, 12)

	require.True(t, f.key('e'))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.GetBytes(data, "total").Int())
	assert.Equal(t, "points", gjson.GetBytes(data, "layers.0.name").String())
	assert.Contains(t, f.row(24), "Exported 1 feature(s)")
}

func TestExportWithoutPath(t *testing.T) {
	f := newFixture(t, Options{})

	require.True(t, f.key('e'))
	assert.Contains(t, f.row(24), "No export path configured")
}

func TestQuitKeys(t *testing.T) {
	f := newFixture(t, Options{})

	assert.False(t, f.key('q'))
	assert.False(t, f.special(tcell.KeyEscape))
	assert.True(t, f.key('x'))
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.app.Close())
	assert.False(t, f.app.Shell().Active())
	assert.NoError(t, f.app.Close())
}

func TestCloseDropsHostListeners(t *testing.T) {
	f := newFixture(t, Options{})
	calls := 0
	f.host.Store.OnLayersChanged(func() { calls++ })
	f.host.Canvas.OnViewportChanged(func() { calls++ })

	require.NoError(t, f.app.Close())
	f.host.Store.MustAddLayer(memhost.LayerSpec{ID: "late", Name: "late", CRS: crs.WebMercator()})
	f.host.Canvas.Zoom(2)

	assert.Equal(t, 2, calls)
	assert.Empty(t, f.app.unhook)
}

func TestStatusLineExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewStatusLine(nil)
	s.now = func() time.Time { return now }

	_, ok := s.Current()
	assert.False(t, ok)

	s.ShowTransientMessage("hello", time.Second)
	text, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	now = now.Add(time.Second)
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestCycle(t *testing.T) {
	assert.Equal(t, selection.ModeReplace, cycle(selectionModes, selection.ModeAdd))
	assert.Equal(t, selection.ModeAdd, cycle(selectionModes, selection.ModeToggle))
	assert.Equal(t, config.RestrictVisible, cycle(restrictModes, config.RestrictActive))
	assert.Equal(t, config.UnitPixels, cycle(unitModes, config.UnitMode(9)))
}
