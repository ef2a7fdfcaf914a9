// Package panel is the headless configuration panel of the hover selection
// tool. It holds the user-editable settings, enforces their input ranges and
// raises change events for the plugin shell to act on.
//
// Values loaded with SetValues never raise events; interactive setters raise
// an event only when the value actually changed. Rebuild and clear requests
// always raise one.
package panel

import (
	"math"
	"sync"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/selection"
)

// Input ranges.
const (
	MinPixelRadius   = 1
	MaxPixelRadius   = 2000
	MinMapUnitRadius = 1e-6
	MaxMapUnitRadius = 1e9

	// MapUnitDecimals is the precision kept for map-unit radii.
	MapUnitDecimals = 6
)

// Event names.
const (
	NameRadiusChanged    = "panel.radius"
	NameOptionsChanged   = "panel.options"
	NameFeedbackChanged  = "panel.feedback"
	NameRebuildRequested = "panel.rebuild"
	NameClearRequested   = "panel.clear"
)

// RadiusChanged carries the full radius state after any radius or unit edit.
type RadiusChanged struct {
	PixelRadius   int
	MapUnitRadius float64
	UnitMode      config.UnitMode
}

func (RadiusChanged) Name() string { return NameRadiusChanged }

// OptionsChanged carries both modes after either one was edited.
type OptionsChanged struct {
	RestrictMode  config.RestrictMode
	SelectionMode selection.Mode
}

func (OptionsChanged) Name() string { return NameOptionsChanged }

type FeedbackChanged struct {
	Show bool
}

func (FeedbackChanged) Name() string { return NameFeedbackChanged }

type RebuildRequested struct{}

func (RebuildRequested) Name() string { return NameRebuildRequested }

type ClearRequested struct{}

func (ClearRequested) Name() string { return NameClearRequested }

// Values is the state shown by the panel.
type Values struct {
	PixelRadius   int
	MapUnitRadius float64
	UnitMode      config.UnitMode
	RestrictMode  config.RestrictMode
	SelectionMode selection.Mode
	ShowFeedback  bool
}

// DefaultValues returns the panel state for default settings.
func DefaultValues() Values {
	return ValuesFrom(config.Defaults())
}

// ValuesFrom extracts the panel fields of cfg.
func ValuesFrom(cfg config.Config) Values {
	return Values{
		PixelRadius:   cfg.RadiusPixels,
		MapUnitRadius: cfg.RadiusMapUnits,
		UnitMode:      cfg.UnitMode,
		RestrictMode:  cfg.RestrictMode,
		SelectionMode: cfg.SelectionMode,
		ShowFeedback:  cfg.ShowFeedbackOverlay,
	}
}

// Apply copies the panel fields onto cfg. Settings the panel does not show
// are kept.
func (v Values) Apply(cfg config.Config) config.Config {
	cfg.RadiusPixels = v.PixelRadius
	cfg.RadiusMapUnits = v.MapUnitRadius
	cfg.UnitMode = v.UnitMode
	cfg.RestrictMode = v.RestrictMode
	cfg.SelectionMode = v.SelectionMode
	cfg.ShowFeedbackOverlay = v.ShowFeedback
	return cfg
}

// Panel is the configuration view-model. It is safe for concurrent use.
type Panel struct {
	mu       sync.Mutex
	values   Values
	notifier *event.Notifier
}

// New creates a panel showing the default values.
func New() *Panel {
	return &Panel{
		values:   clampValues(DefaultValues()),
		notifier: event.New(),
	}
}

// Subscribe registers a listener for every panel event.
func (p *Panel) Subscribe(h event.Handler) *event.Subscription {
	return p.notifier.Subscribe(h)
}

// SubscribeTo registers a listener for one event name.
func (p *Panel) SubscribeTo(name string, h event.Handler) *event.Subscription {
	return p.notifier.SubscribeTo(name, h)
}

// Values returns the current state.
func (p *Panel) Values() Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values
}

// SetValues replaces every field without raising events. Out-of-range radii
// are clamped and unknown modes fall back to the first choice of their list.
func (p *Panel) SetValues(v Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = clampValues(v)
}

// PixelInputEnabled reports whether the pixel radius input is editable.
func (p *Panel) PixelInputEnabled() bool {
	return p.Values().UnitMode == config.UnitPixels
}

// MapUnitInputEnabled reports whether the map-unit radius input is editable.
func (p *Panel) MapUnitInputEnabled() bool {
	return p.Values().UnitMode == config.UnitMapUnits
}

// SetPixelRadius edits the pixel radius.
func (p *Panel) SetPixelRadius(r int) {
	p.edit(func(v *Values) event.Event {
		r = clampInt(r, MinPixelRadius, MaxPixelRadius)
		if r == v.PixelRadius {
			return nil
		}
		v.PixelRadius = r
		return radiusEvent(*v)
	})
}

// SetMapUnitRadius edits the map-unit radius. NaN is ignored.
func (p *Panel) SetMapUnitRadius(r float64) {
	p.edit(func(v *Values) event.Event {
		if math.IsNaN(r) {
			return nil
		}
		r = clampMapUnits(r)
		if r == v.MapUnitRadius {
			return nil
		}
		v.MapUnitRadius = r
		return radiusEvent(*v)
	})
}

// SetUnitMode switches between the pixel and map-unit radius.
func (p *Panel) SetUnitMode(m config.UnitMode) {
	p.edit(func(v *Values) event.Event {
		if !m.Valid() || m == v.UnitMode {
			return nil
		}
		v.UnitMode = m
		return radiusEvent(*v)
	})
}

func (p *Panel) SetRestrictMode(m config.RestrictMode) {
	p.edit(func(v *Values) event.Event {
		if !m.Valid() || m == v.RestrictMode {
			return nil
		}
		v.RestrictMode = m
		return optionsEvent(*v)
	})
}

func (p *Panel) SetSelectionMode(m selection.Mode) {
	p.edit(func(v *Values) event.Event {
		if !m.Valid() || m == v.SelectionMode {
			return nil
		}
		v.SelectionMode = m
		return optionsEvent(*v)
	})
}

// SetShowFeedback toggles the hover circle overlay.
func (p *Panel) SetShowFeedback(show bool) {
	p.edit(func(v *Values) event.Event {
		if show == v.ShowFeedback {
			return nil
		}
		v.ShowFeedback = show
		return FeedbackChanged{Show: show}
	})
}

// RequestRebuild asks for the spatial indexes to be rebuilt.
func (p *Panel) RequestRebuild() {
	p.notifier.Publish(RebuildRequested{})
}

// RequestClear asks for every layer's selection to be cleared.
func (p *Panel) RequestClear() {
	p.notifier.Publish(ClearRequested{})
}

// Close drops every listener.
func (p *Panel) Close() {
	p.notifier.Close()
}

func (p *Panel) edit(fn func(*Values) event.Event) {
	p.mu.Lock()
	ev := fn(&p.values)
	p.mu.Unlock()

	if ev != nil {
		p.notifier.Publish(ev)
	}
}

func radiusEvent(v Values) RadiusChanged {
	return RadiusChanged{PixelRadius: v.PixelRadius, MapUnitRadius: v.MapUnitRadius, UnitMode: v.UnitMode}
}

func optionsEvent(v Values) OptionsChanged {
	return OptionsChanged{RestrictMode: v.RestrictMode, SelectionMode: v.SelectionMode}
}

func clampValues(v Values) Values {
	v.PixelRadius = clampInt(v.PixelRadius, MinPixelRadius, MaxPixelRadius)
	if math.IsNaN(v.MapUnitRadius) {
		v.MapUnitRadius = config.DefaultRadiusMapUnits
	}
	v.MapUnitRadius = clampMapUnits(v.MapUnitRadius)
	if !v.UnitMode.Valid() {
		v.UnitMode = config.UnitPixels
	}
	if !v.RestrictMode.Valid() {
		v.RestrictMode = config.RestrictVisible
	}
	if !v.SelectionMode.Valid() {
		v.SelectionMode = selection.ModeAdd
	}
	return v
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampMapUnits(r float64) float64 {
	scale := math.Pow10(MapUnitDecimals)
	r = math.Round(r*scale) / scale
	return math.Min(math.Max(r, MinMapUnitRadius), MaxMapUnitRadius)
}
