package plugin

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/debounce"
	"github.com/dshills/hoverselect/internal/engine"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/host/memhost"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/selection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	host  *memhost.Host
	clock *debounce.Manual
	repo  *config.MemoryRepository
	shell *Shell
	layer string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		host:  memhost.New(crs.WebMercator()),
		clock: debounce.NewManual(),
		repo:  config.NewMemoryRepository(),
	}
	h.layer = h.host.Store.MustAddLayer(memhost.LayerSpec{
		Name: "points",
		CRS:  crs.WebMercator(),
		Features: []host.Feature{
			{ID: 1, Geometry: geom.NewPoint(geom.Pt(0, 0))},
			{ID: 2, Geometry: geom.NewPoint(geom.Pt(3, 0))},
			{ID: 3, Geometry: geom.NewPoint(geom.Pt(500, 0))},
		},
	})
	if opts.Repository == nil {
		opts.Repository = h.repo
	}
	opts.EngineOptions = append(opts.EngineOptions, engine.WithScheduler(h.clock))
	h.shell = New(h.host.Services(), opts)
	return h
}

func (h *harness) hover(x, y float64) {
	h.shell.Engine().MouseMoved(h.host.Canvas.MapToScreen(geom.Pt(x, y)))
	h.clock.Advance(time.Second)
}

func TestInitLoadsSettings(t *testing.T) {
	h := newHarness(t, Options{})
	stored := config.Defaults()
	stored.RadiusPixels = 33
	stored.SelectionMode = selection.ModeToggle
	stored.CircleSegments = 64
	require.NoError(t, h.repo.Save(stored))

	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()

	v := h.shell.Panel().Values()
	assert.Equal(t, 33, v.PixelRadius)
	assert.Equal(t, selection.ModeToggle, v.SelectionMode)

	cfg := h.shell.Engine().Config()
	assert.Equal(t, 33, cfg.RadiusPixels)
	assert.Equal(t, 64, cfg.CircleSegments)
	assert.Equal(t, 1, h.shell.Engine().Stats().Rebuilds)
	assert.False(t, h.shell.Active())

	assert.ErrorIs(t, h.shell.Init(), ErrAlreadyInitialized)
}

func TestToggle(t *testing.T) {
	h := newHarness(t, Options{})
	assert.ErrorIs(t, h.shell.Toggle(true), ErrNotInitialized)
	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()

	v := h.shell.Panel().Values()
	v.PixelRadius = 5
	h.shell.Panel().SetValues(v)

	require.NoError(t, h.shell.Toggle(true))
	assert.True(t, h.shell.Active())
	assert.Equal(t, engine.StateIdle, h.shell.Engine().State())
	assert.Equal(t, 5, h.shell.Engine().Config().RadiusPixels)

	h.hover(0, 0)
	assert.Equal(t, []int64{1, 2}, h.host.Store.Selected(h.layer))
	msg, ok := h.host.Status.Last()
	require.True(t, ok)
	assert.Equal(t, "Selected 2 feature(s)", msg.Text)

	require.NoError(t, h.shell.Toggle(false))
	assert.False(t, h.shell.Active())
	assert.Equal(t, engine.StateInactive, h.shell.Engine().State())
}

func TestPanelEditsArePersistedAndApplied(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()
	require.NoError(t, h.shell.Toggle(true))
	saves := h.repo.Saves()
	rebuilds := h.shell.Engine().Stats().Rebuilds

	p := h.shell.Panel()
	p.SetPixelRadius(40)
	p.SetUnitMode(config.UnitMapUnits)
	p.SetMapUnitRadius(2.5)
	p.SetShowFeedback(false)
	p.SetSelectionMode(selection.ModeReplace)

	assert.Equal(t, saves+5, h.repo.Saves())
	stored, err := h.repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 40, stored.RadiusPixels)
	assert.Equal(t, config.UnitMapUnits, stored.UnitMode)
	assert.Equal(t, 2.5, stored.RadiusMapUnits)
	assert.False(t, stored.ShowFeedbackOverlay)
	assert.Equal(t, selection.ModeReplace, stored.SelectionMode)

	cfg := h.shell.Engine().Config()
	assert.Equal(t, 40, cfg.RadiusPixels)
	assert.Equal(t, 2.5, cfg.RadiusMapUnits)
	assert.Equal(t, config.UnitMapUnits, cfg.UnitMode)
	assert.False(t, cfg.ShowFeedbackOverlay)
	assert.Equal(t, rebuilds+1, h.shell.Engine().Stats().Rebuilds, "options change rebuilds")

	_, visible := h.host.Overlay.State()
	assert.False(t, visible)
}

func TestRebuildAndClearRequests(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()

	h.shell.Panel().RequestRebuild()
	msg, ok := h.host.Status.Last()
	require.True(t, ok)
	assert.Equal(t, RebuiltMessage, msg.Text)
	assert.Equal(t, RebuiltMessageDuration, msg.Duration)
	assert.Equal(t, 2, h.shell.Engine().Stats().Rebuilds)

	before := len(h.host.Status.Messages())
	h.shell.Panel().RequestClear()
	assert.Len(t, h.host.Status.Messages(), before, "nothing to clear, no message")

	require.NoError(t, h.host.Store.SetSelectedIDs(h.layer, selection.NewSet(1, 2, 3)))
	h.shell.Panel().RequestClear()
	msg, _ = h.host.Status.Last()
	assert.Equal(t, "Cleared selection (3 features)", msg.Text)
	assert.Equal(t, ClearedMessageDuration, msg.Duration)
	assert.Empty(t, h.host.Store.Selected(h.layer))
}

func TestUnload(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.shell.Init())
	require.NoError(t, h.shell.Toggle(true))
	saves := h.repo.Saves()

	require.NoError(t, h.shell.Unload())
	assert.Equal(t, saves+1, h.repo.Saves())
	assert.False(t, h.shell.Active())
	assert.Equal(t, engine.StateInactive, h.shell.Engine().State())
	_, visible := h.host.Overlay.State()
	assert.False(t, visible)

	h.shell.Panel().SetPixelRadius(99)
	assert.Equal(t, saves+1, h.repo.Saves(), "panel is detached")
	assert.ErrorIs(t, h.shell.Toggle(true), ErrNotInitialized)
	assert.ErrorIs(t, h.shell.Unload(), ErrNotInitialized)
}

func TestLuaHooks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.lua")
	require.NoError(t, os.WriteFile(path, []byte(`
function on_selection_complete(total)
  log("hook saw " .. total)
end
function on_indexes_rebuilt(indexed)
  log("hook indexed " .. indexed)
end
`), 0o644))

	var out syncBuffer
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: &out, Prefix: "test"})
	h := newHarness(t, Options{ScriptPath: path, Logger: logger})
	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()
	require.NoError(t, h.shell.Toggle(true))

	h.hover(0, 0)
	assert.Contains(t, out.String(), "hook saw 2")
	assert.Contains(t, out.String(), "hook indexed 1")
}

func TestInitFailsOnBadScript(t *testing.T) {
	h := newHarness(t, Options{ScriptPath: filepath.Join(t.TempDir(), "missing.lua")})

	var initErr *InitError
	require.ErrorAs(t, h.shell.Init(), &initErr)
	assert.Equal(t, "script", initErr.Component)
	assert.Nil(t, h.shell.Engine())
}

func TestSettingsFileReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	repo := config.NewFileRepository(path, nil)
	stored := config.Defaults()
	stored.CircleSegments = 48
	require.NoError(t, repo.Save(stored))

	h := newHarness(t, Options{
		Repository:   repo,
		SettingsPath: path,
		WatchDelay:   20 * time.Millisecond,
	})
	require.NoError(t, h.shell.Init())
	defer h.shell.Unload()

	h.shell.Panel().SetPixelRadius(25)
	loaded, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.RadiusPixels)
	assert.Equal(t, 48, loaded.CircleSegments, "settings the panel does not show are kept")

	require.NoError(t, os.WriteFile(path, []byte("[select_on_hover]\npixel_radius = 55\nselection_mode = \"toggle\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return h.shell.Panel().Values().PixelRadius == 55
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, selection.ModeToggle, h.shell.Panel().Values().SelectionMode)
	assert.Eventually(t, func() bool {
		return h.shell.Engine().Config().RadiusPixels == 55
	}, 5*time.Second, 10*time.Millisecond)
}
