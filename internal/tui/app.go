// Package tui is a terminal map canvas for the hover selection tool. It
// renders the layers of an in-memory host on a tcell screen, forwards mouse
// motion to the engine and maps keys onto the configuration panel.
package tui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/cursor"
	"github.com/dshills/hoverselect/internal/engine"
	"github.com/dshills/hoverselect/internal/event"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/host/memhost"
	"github.com/dshills/hoverselect/internal/layerio"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/panel"
	"github.com/dshills/hoverselect/internal/plugin"
	"github.com/dshills/hoverselect/internal/selection"
)

const (
	// CellHeight is the number of canvas pixels covered by one terminal row.
	// Terminal cells are roughly twice as tall as they are wide.
	CellHeight = 2

	// ZoomFactor is applied by the zoom keys.
	ZoomFactor = 1.25

	// PanStep is the pan distance of the arrow keys in pixels.
	PanStep = 8

	// PixelRadiusStep and MapUnitRadiusFactor are applied by the radius keys.
	PixelRadiusStep     = 2
	MapUnitRadiusFactor = 1.25

	// MessageDuration is how long key feedback stays on the status line.
	MessageDuration = 2000 * time.Millisecond
)

// Options configures an App.
type Options struct {
	Plugin plugin.Options

	// Registry transforms layer coordinates for both selection and
	// drawing. Defaults to crs.NewRegistry().
	Registry *crs.Registry

	// Style colours the hover overlay. Defaults to cursor.DefaultStyle().
	Style *cursor.Style

	// ExportPath receives the selection report on the export key.
	ExportPath string

	Logger *logging.Logger
}

// App is a running terminal host.
type App struct {
	screen   tcell.Screen
	host     *memhost.Host
	shell    *plugin.Shell
	status   *StatusLine
	registry *crs.Registry
	style    cursor.Style
	theme    theme

	exportPath string
	logger     *logging.Logger

	subs      []*event.Subscription
	unhook    []func()
	closeOnce sync.Once
	closeErr  error
}

// New initializes the screen, starts the plugin shell for h and switches
// the tool on.
func New(screen tcell.Screen, h *memhost.Host, opts Options) (*App, error) {
	if screen == nil || h == nil {
		return nil, errors.New("tui: screen and host are required")
	}

	a := &App{
		screen:     screen,
		host:       h,
		registry:   opts.Registry,
		style:      cursor.DefaultStyle(),
		exportPath: opts.ExportPath,
		logger:     logging.OrNull(opts.Logger).WithComponent("tui"),
	}
	if a.registry == nil {
		a.registry = crs.NewRegistry()
	}
	if opts.Style != nil {
		a.style = *opts.Style
	}
	a.theme = newTheme(a.style)

	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}
	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.HideCursor()
	a.resize()

	a.status = NewStatusLine(a.requestRedraw)
	svc := h.Services()
	svc.Status = a.status

	popts := opts.Plugin
	popts.EngineOptions = append([]engine.Option{
		engine.WithRegistry(a.registry),
		engine.WithStyle(a.style),
	}, opts.Plugin.EngineOptions...)
	if popts.Logger == nil {
		popts.Logger = opts.Logger
	}
	a.shell = plugin.New(svc, popts)
	if err := a.shell.Init(); err != nil {
		screen.Fini()
		return nil, err
	}

	a.unhook = append(a.unhook,
		h.Store.OnLayersChanged(func() { a.shell.Engine().LayersChanged() }),
		h.Canvas.OnViewportChanged(func() { a.shell.Engine().ViewportChanged() }),
	)
	a.subs = append(a.subs, a.shell.Engine().Subscribe(func(event.Event) { a.requestRedraw() }))

	if _, ok := h.Canvas.CurrentLayer(); !ok {
		if layers := a.vectorLayers(); len(layers) > 0 {
			h.Canvas.SetCurrentLayer(layers[0].ID)
		}
	}
	if err := a.shell.Toggle(true); err != nil {
		a.logger.Warn("activating tool: %v", err)
	}
	return a, nil
}

// Shell returns the plugin shell driven by the app.
func (a *App) Shell() *plugin.Shell { return a.shell }

// Status returns the status line.
func (a *App) Status() *StatusLine { return a.status }

// Run draws the map and processes events until the quit key is pressed or
// the screen is finalized.
func (a *App) Run() error {
	a.Draw()
	for {
		ev := a.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if !a.HandleEvent(ev) {
			return nil
		}
	}
}

// HandleEvent processes one screen event and redraws. It returns false when
// the app should quit.
func (a *App) HandleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventKey:
		if !a.handleKey(e) {
			return false
		}
	case *tcell.EventMouse:
		a.handleMouse(e)
	case *tcell.EventResize:
		a.screen.Sync()
		a.resize()
	case *tcell.EventInterrupt:
		// redraw only
	}
	a.Draw()
	return true
}

// Close switches the tool off, saves the settings and restores the
// terminal.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.status.Stop()
		for _, sub := range a.subs {
			sub.Unsubscribe()
		}
		a.subs = nil
		for _, remove := range a.unhook {
			remove()
		}
		a.unhook = nil
		a.closeErr = a.shell.Unload()
		a.screen.Fini()
	})
	return a.closeErr
}

func (a *App) handleMouse(e *tcell.EventMouse) {
	x, y := e.Position()
	_, h := a.screen.Size()
	if y >= h-1 {
		return
	}
	a.shell.Engine().MouseMoved(cellCenter(x, y))
}

func (a *App) handleKey(e *tcell.EventKey) bool {
	p := a.shell.Panel()
	v := p.Values()

	switch e.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		a.host.Canvas.Pan(0, -PanStep)
	case tcell.KeyDown:
		a.host.Canvas.Pan(0, PanStep)
	case tcell.KeyLeft:
		a.host.Canvas.Pan(-PanStep, 0)
	case tcell.KeyRight:
		a.host.Canvas.Pan(PanStep, 0)
	case tcell.KeyTab:
		a.nextLayer()
	case tcell.KeyRune:
		switch e.Rune() {
		case 'q':
			return false
		case '+', '=':
			a.host.Canvas.Zoom(1 / ZoomFactor)
		case '-':
			a.host.Canvas.Zoom(ZoomFactor)
		case ' ':
			a.toggleTool()
		case 'm':
			mode := cycle(selectionModes, v.SelectionMode)
			p.SetSelectionMode(mode)
			a.say(fmt.Sprintf("Selection mode: %s", mode))
		case 'r':
			mode := cycle(restrictModes, v.RestrictMode)
			p.SetRestrictMode(mode)
			a.say(fmt.Sprintf("Layers: %s", mode))
		case 'u':
			mode := cycle(unitModes, v.UnitMode)
			p.SetUnitMode(mode)
			a.say(fmt.Sprintf("Radius unit: %s", mode))
		case ']':
			a.growRadius(v, true)
		case '[':
			a.growRadius(v, false)
		case 'o':
			p.SetShowFeedback(!v.ShowFeedback)
		case 'b':
			p.RequestRebuild()
		case 'c':
			p.RequestClear()
		case 'e':
			a.export()
		}
	}
	return true
}

var (
	selectionModes = []selection.Mode{selection.ModeAdd, selection.ModeReplace, selection.ModeToggle}
	restrictModes  = []config.RestrictMode{config.RestrictVisible, config.RestrictAll, config.RestrictActive}
	unitModes      = []config.UnitMode{config.UnitPixels, config.UnitMapUnits}
)

func cycle[T comparable](list []T, cur T) T {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

func (a *App) growRadius(v panel.Values, grow bool) {
	p := a.shell.Panel()
	if v.UnitMode == config.UnitMapUnits {
		r := v.MapUnitRadius / MapUnitRadiusFactor
		if grow {
			r = v.MapUnitRadius * MapUnitRadiusFactor
		}
		p.SetMapUnitRadius(r)
		return
	}
	step := -PixelRadiusStep
	if grow {
		step = PixelRadiusStep
	}
	p.SetPixelRadius(v.PixelRadius + step)
}

func (a *App) toggleTool() {
	on := !a.shell.Active()
	if err := a.shell.Toggle(on); err != nil {
		a.say(fmt.Sprintf("Toggle failed: %v", err))
		return
	}
	if on {
		a.say("Select on hover: on")
	} else {
		a.say("Select on hover: off")
	}
}

func (a *App) nextLayer() {
	layers := a.vectorLayers()
	if len(layers) == 0 {
		return
	}
	cur, _ := a.host.Canvas.CurrentLayer()
	next := layers[0]
	for i, l := range layers {
		if l.ID == cur {
			next = layers[(i+1)%len(layers)]
			break
		}
	}
	a.host.Canvas.SetCurrentLayer(next.ID)
	a.say(fmt.Sprintf("Current layer: %s", next.Name))
}

func (a *App) export() {
	if a.exportPath == "" {
		a.say("No export path configured")
		return
	}
	sel, err := layerio.Snapshot(a.host.Store)
	if err == nil {
		err = layerio.WriteSelection(a.exportPath, sel)
	}
	if err != nil {
		a.logger.Error("exporting selection: %v", err)
		a.say(fmt.Sprintf("Export failed: %v", err))
		return
	}
	total := 0
	for _, l := range sel {
		total += len(l.IDs)
	}
	a.logger.Info("exported %d features to %s", total, a.exportPath)
	a.say(fmt.Sprintf("Exported %d feature(s) to %s", total, a.exportPath))
}

func (a *App) say(text string) {
	a.status.ShowTransientMessage(text, MessageDuration)
}

func (a *App) vectorLayers() []host.LayerInfo {
	var out []host.LayerInfo
	for _, l := range a.host.Store.Layers() {
		if l.Kind == host.LayerVector {
			out = append(out, l)
		}
	}
	return out
}

// resize matches the canvas to the screen, leaving the bottom row for the
// status line.
func (a *App) resize() {
	w, h := a.screen.Size()
	rows := max(h-1, 1)
	a.host.Canvas.Resize(w, rows*CellHeight)
}

func (a *App) requestRedraw() {
	// Best effort; a full queue already holds a pending redraw.
	_ = a.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

// cellCenter returns the canvas pixel at the centre of a terminal cell.
func cellCenter(x, y int) geom.Point {
	return geom.Pt(float64(x)+0.5, float64(y*CellHeight)+CellHeight/2.0)
}
