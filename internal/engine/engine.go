// Package engine implements the hover selection tool: a state machine that
// debounces mouse movement over the map canvas and, once the pointer rests,
// selects the features of eligible layers that intersect a circle around
// it.
//
// # States
//
//	Inactive          tool not bound to the canvas
//	ActiveIdle        bound, nothing queued
//	ActivePending     a hover point waits for the debounce timer
//	ActiveProcessing  the pipeline runs for the queued point
//
// Every exported method is serialized by one lock, so a pipeline run is a
// critical section: Deactivate called during a run waits for it to finish.
// Events are published after the lock is released, so listeners may call
// back into the engine.
package engine

import (
	"sync"
	"time"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/cursor"
	"github.com/dshills/hoverselect/internal/debounce"
	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/selection"
	"github.com/dshills/hoverselect/internal/spatialindex"
)

// State is the engine's lifecycle state.
type State int32

const (
	StateInactive State = iota
	StateIdle
	StatePending
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateIdle:
		return "active-idle"
	case StatePending:
		return "active-pending"
	case StateProcessing:
		return "active-processing"
	default:
		return "unknown"
	}
}

// Active reports whether the tool is bound to the canvas.
func (s State) Active() bool { return s != StateInactive }

// SelectedMessageDuration is how long the "Selected N feature(s)" status
// stays up.
const SelectedMessageDuration = 2000 * time.Millisecond

// Stats describes the work done so far.
type Stats struct {
	Runs          int
	LastTotal     int
	LastLayers    int
	LastSkipped   int
	LastDuration  time.Duration
	Rebuilds      int
	IndexedLayers int
}

// Engine is the hover selection state machine.
type Engine struct {
	mu sync.Mutex

	svc       host.Services
	registry  *crs.Registry
	cache     *spatialindex.Cache
	debouncer *debounce.Debouncer
	notifier  *event.Notifier
	logger    *logging.Logger
	style     cursor.Style
	now       func() time.Time

	cfg     config.Config
	state   State
	pending *geom.Point
	glyph   *cursor.Glyph
	stats   Stats
	closed  bool
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	scheduler debounce.Scheduler
	registry  *crs.Registry
	logger    *logging.Logger
	style     *cursor.Style
	now       func() time.Time
}

// WithScheduler replaces the wall-clock debounce scheduler.
func WithScheduler(s debounce.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithRegistry supplies the CRS registry used to reproject the hover
// circle. By default a registry with WGS84 and Web Mercator is used.
func WithRegistry(r *crs.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger for recoverable failures.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStyle overrides the cursor colours.
func WithStyle(s cursor.Style) Option {
	return func(o *options) { o.style = &s }
}

// WithClock overrides time.Now for run durations.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an inactive engine. cfg is validated like SetConfig.
func New(svc host.Services, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = crs.NewRegistry()
	}
	logger := logging.OrNull(o.logger).WithComponent("engine")

	e := &Engine{
		svc:      svc,
		registry: o.registry,
		cache:    spatialindex.New(o.logger),
		logger:   logger,
		style:    cursor.DefaultStyle(),
		now:      o.now,
		cfg:      cfg,
	}
	if o.style != nil {
		e.style = *o.style
	}
	e.notifier = event.New(event.WithPanicHandler(func(ev event.Event, r any) {
		logger.Error("listener for %s panicked: %v", ev.Name(), r)
	}))

	var dopts []debounce.Option
	if o.scheduler != nil {
		dopts = append(dopts, debounce.WithScheduler(o.scheduler))
	}
	e.debouncer = debounce.New(cfg.HoverDelay(), e.onTimer, dopts...)
	return e, nil
}

// Subscribe registers a listener for every engine event.
func (e *Engine) Subscribe(h event.Handler) *event.Subscription {
	return e.notifier.Subscribe(h)
}

// SubscribeTo registers a listener for one event name.
func (e *Engine) SubscribeTo(name string, h event.Handler) *event.Subscription {
	return e.notifier.SubscribeTo(name, h)
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Config returns the configuration in force.
func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Stats returns run and rebuild counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.IndexedLayers = e.cache.Len()
	return s
}

// IndexedLayers returns the ids of layers that currently have an index.
func (e *Engine) IndexedLayers() []string {
	return e.cache.LayerIDs()
}

// Cursor returns the last rendered cursor glyph, or nil before activation.
func (e *Engine) Cursor() *cursor.Glyph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.glyph
}

// Activate binds the tool: it installs the cursor, builds the spatial
// indexes if none exist, and shows the overlay when enabled.
func (e *Engine) Activate() error {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state.Active() {
		return nil
	}

	e.updateCursorLocked(true)
	if e.cache.Len() == 0 {
		evs = append(evs, e.rebuildLocked())
	}
	if e.cfg.ShowFeedbackOverlay && e.svc.Overlay != nil {
		e.svc.Overlay.Show()
	}
	e.setStateLocked(StateIdle, &evs)
	e.logger.Debug("activated with %d indexed layers", e.cache.Len())
	return nil
}

// Deactivate unbinds the tool. The pending hover and its timer are
// discarded and the overlay is reset; the index cache is kept.
func (e *Engine) Deactivate() {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.deactivateLocked(&evs)
}

func (e *Engine) deactivateLocked(evs *[]event.Event) {
	if !e.state.Active() {
		return
	}
	e.debouncer.Cancel()
	e.pending = nil
	if e.svc.Overlay != nil {
		e.svc.Overlay.Reset()
		e.svc.Overlay.Hide()
	}
	e.setStateLocked(StateInactive, evs)
}

// MouseMoved queues a hover at screen position p and restarts the debounce
// timer. It is ignored while inactive.
func (e *Engine) MouseMoved(p geom.Point) {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.state.Active() {
		return
	}
	pt := p
	e.pending = &pt
	e.setStateLocked(StatePending, &evs)
	e.debouncer.Call()
}

// Flush runs the pipeline now for a queued hover, if any.
func (e *Engine) Flush() {
	e.debouncer.Flush()
}

func (e *Engine) onTimer() {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.state != StatePending || e.pending == nil {
		return
	}
	// A move that arrived while this fire waited for the lock re-armed the
	// timer; its point belongs to the next fire.
	if e.debouncer.IsPending() {
		return
	}
	pt := *e.pending
	e.pending = nil
	e.setStateLocked(StateProcessing, &evs)

	evs = append(evs, e.runGuarded(pt))
	e.setStateLocked(StateIdle, &evs)
}

// SetConfig replaces the configuration. An invalid configuration is
// rejected and the previous one stays in force. Changing the restrict mode
// rebuilds the indexes.
func (e *Engine) SetConfig(cfg config.Config) error {
	return e.update(func(c *config.Config) { *c = cfg }, false)
}

// SetRadius changes the radius settings and refreshes the cursor.
func (e *Engine) SetRadius(unit config.UnitMode, pixels int, mapUnits float64) error {
	return e.update(func(c *config.Config) {
		c.UnitMode = unit
		c.RadiusPixels = pixels
		c.RadiusMapUnits = mapUnits
	}, false)
}

// SetOptions changes the restrict and selection modes and rebuilds the
// indexes.
func (e *Engine) SetOptions(restrict config.RestrictMode, mode selection.Mode) error {
	return e.update(func(c *config.Config) {
		c.RestrictMode = restrict
		c.SelectionMode = mode
	}, true)
}

// SetShowFeedback turns the hover overlay on or off.
func (e *Engine) SetShowFeedback(show bool) error {
	return e.update(func(c *config.Config) { c.ShowFeedbackOverlay = show }, false)
}

func (e *Engine) update(mutate func(*config.Config), rebuild bool) error {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	candidate := e.cfg
	mutate(&candidate)
	next, err := candidate.Normalize()
	if err != nil {
		e.logger.Warn("rejected configuration: %v", err)
		return err
	}

	prev := e.cfg
	e.cfg = next
	e.debouncer.SetDelay(next.HoverDelay())
	e.applyFeedbackLocked(prev.ShowFeedbackOverlay)
	e.updateCursorLocked(false)

	restrictChanged := prev.RestrictMode != next.RestrictMode && (e.state.Active() || e.cache.Len() > 0)
	if rebuild || restrictChanged {
		evs = append(evs, e.rebuildLocked())
	}
	return nil
}

func (e *Engine) applyFeedbackLocked(wasShown bool) {
	o := e.svc.Overlay
	if o == nil || !e.state.Active() || wasShown == e.cfg.ShowFeedbackOverlay {
		return
	}
	if e.cfg.ShowFeedbackOverlay {
		o.Show()
		return
	}
	o.Reset()
	o.Hide()
}

// RebuildIndexes discards every index and rebuilds one per eligible layer.
func (e *Engine) RebuildIndexes() event.IndexesRebuilt {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return event.IndexesRebuilt{}
	}
	ev := e.rebuildLocked()
	evs = append(evs, ev)
	return ev
}

func (e *Engine) rebuildLocked() event.IndexesRebuilt {
	var ids []string
	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("listing layers for rebuild: panic: %v", r)
				ids = nil
			}
		}()
		for _, info := range e.eligibleLocked() {
			ids = append(ids, info.ID)
		}
	}()

	res := e.cache.Rebuild(e.svc.Layers, ids)
	e.stats.Rebuilds++
	e.logger.Info("spatial indexes rebuilt: %d of %d eligible layers", res.Indexed, len(ids))
	return event.IndexesRebuilt{Indexed: res.Indexed, Eligible: len(ids)}
}

// LayersChanged reacts to layers being added to or removed from the store.
// While active the indexes are rebuilt immediately; otherwise the cache is
// dropped so the next activation builds a fresh one.
func (e *Engine) LayersChanged() {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.state.Active() {
		evs = append(evs, e.rebuildLocked())
		return
	}
	e.cache.Clear()
}

// ViewportChanged refreshes the cursor after the canvas scale changed.
func (e *Engine) ViewportChanged() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.state.Active() {
		return
	}
	e.updateCursorLocked(false)
}

// ClearSelection empties the selection of every vector layer in the store,
// regardless of the restrict mode, and returns how many features were
// deselected. Layers that fail are logged and skipped.
func (e *Engine) ClearSelection() int {
	var evs []event.Event
	defer func() { e.publish(evs) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0
	}

	count := 0
	for _, info := range e.svc.Layers.Layers() {
		if info.Kind != host.LayerVector {
			continue
		}
		n, err := e.clearLayer(info.ID)
		if err != nil {
			e.logger.WithField("layer", info.Name).Warn("clear selection: %v", err)
			continue
		}
		count += n
	}
	evs = append(evs, event.SelectionCleared{Count: count})
	return count
}

func (e *Engine) clearLayer(id string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LayerPanicError{LayerID: id, Value: r}
		}
	}()
	current, err := e.svc.Layers.SelectedIDs(id)
	if err != nil {
		return 0, &SelectionCommitError{LayerID: id, Err: err}
	}
	if current.Len() == 0 {
		return 0, nil
	}
	if err := e.svc.Layers.SetSelectedIDs(id, selection.NewSet()); err != nil {
		return 0, &SelectionCommitError{LayerID: id, Err: err}
	}
	return current.Len(), nil
}

// Close deactivates the engine, cancels the timer, drops the indexes and
// removes every listener. Later calls are no-ops.
func (e *Engine) Close() {
	var evs []event.Event

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.deactivateLocked(&evs)
	e.debouncer.Cancel()
	e.cache.Clear()
	e.closed = true
	e.mu.Unlock()

	e.publish(evs)
	e.notifier.Close()
}

func (e *Engine) setStateLocked(s State, evs *[]event.Event) {
	if e.state == s {
		return
	}
	*evs = append(*evs, event.StateChanged{From: e.state.String(), To: s.String()})
	e.state = s
}

// updateCursorLocked re-renders the glyph when the display radius changed
// and installs it while active. install forces installation.
func (e *Engine) updateCursorLocked(install bool) {
	r := cursor.DisplayRadius(
		e.cfg.UnitMode == config.UnitMapUnits,
		e.cfg.RadiusPixels,
		e.cfg.RadiusMapUnits,
		e.svc.Canvas.MapUnitsPerPixel(),
	)
	if e.glyph == nil || e.glyph.Radius != r {
		e.glyph = cursor.Render(r, e.style)
		install = install || e.state.Active()
	}
	if install && e.svc.Cursor != nil {
		e.svc.Cursor.SetCursor(e.glyph)
	}
}

func (e *Engine) publish(evs []event.Event) {
	for _, ev := range evs {
		e.notifier.Publish(ev)
	}
}
