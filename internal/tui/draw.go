package tui

import (
	"fmt"
	"image/color"
	"math"

	"github.com/gdamore/tcell/v2"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/cursor"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/selection"
)

const (
	runePoint    = '•'
	runeLine     = '·'
	runeSelected = '■'
	runeOverlay  = '∘'

	// maxSegmentSteps bounds the cells plotted for one segment.
	maxSegmentSteps = 4096

	helpText = "q quit  space on/off  m mode  r layers  u unit  [ ] radius  o overlay  b rebuild  c clear  e export  tab layer"
)

type theme struct {
	overlay  tcell.Style
	selected tcell.Style
	bar      tcell.Style
}

func newTheme(style cursor.Style) theme {
	return theme{
		overlay:  tcell.StyleDefault.Foreground(rgb(style.Pen)),
		selected: tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true),
		bar:      tcell.StyleDefault.Reverse(true),
	}
}

// layerStyle gives each layer a distinct hue spaced by the golden angle.
func layerStyle(i int) tcell.Style {
	c := colorful.Hsv(math.Mod(float64(i)*137.5, 360), 0.55, 0.95)
	r, g, b := c.RGB255()
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(int32(r), int32(g), int32(b)))
}

func rgb(c color.NRGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// Draw renders the overlay, the visible vector layers and the status line.
func (a *App) Draw() {
	a.screen.Clear()
	w, h := a.screen.Size()
	pl := plotter{app: a, width: w, rows: h - 1}

	if g, visible := a.host.Overlay.State(); visible {
		pl.geometry(g, runeOverlay, runeOverlay, a.theme.overlay)
	}

	project := a.host.Canvas.ProjectCRS()
	extent := a.host.Canvas.Extent()
	for i, info := range a.host.Store.Layers() {
		if info.Kind != host.LayerVector || !a.host.Store.IsVisible(info.ID) {
			continue
		}
		a.drawLayer(pl, info, layerStyle(i), project, extent)
	}

	a.drawStatus(w, h)
	a.screen.Show()
}

func (a *App) drawLayer(pl plotter, info host.LayerInfo, style tcell.Style, project crs.CRS, extent geom.Rect) {
	var filter *geom.Rect
	if r, err := a.registry.TransformRect(extent, project, info.CRS); err == nil {
		filter = &r
	}
	selected, err := a.host.Store.SelectedIDs(info.ID)
	if err != nil {
		selected = selection.NewSet()
	}

	err = a.host.Store.Features(info.ID, filter, func(f host.Feature) bool {
		g, terr := a.registry.Transform(f.Geometry, info.CRS, project)
		if terr != nil {
			return true
		}
		if selected.Has(f.ID) {
			pl.geometry(g, runeSelected, runeSelected, a.theme.selected)
		} else {
			pl.geometry(g, runePoint, runeLine, style)
		}
		return true
	})
	if err != nil {
		a.logger.Debug("drawing layer %s: %v", info.Name, err)
	}
}

func (a *App) drawStatus(w, h int) {
	y := h - 1
	for x := 0; x < w; x++ {
		a.screen.SetContent(x, y, ' ', nil, a.theme.bar)
	}

	left := helpText
	if msg, ok := a.status.Current(); ok {
		left = msg
	}
	right := a.summary()
	drawText(a.screen, 0, y, w, left, a.theme.bar)
	if x := w - len([]rune(right)); x > len([]rune(left)) {
		drawText(a.screen, x, y, w, right, a.theme.bar)
	}
}

// summary describes the tool state for the right side of the status line.
func (a *App) summary() string {
	v := a.shell.Panel().Values()
	radius := fmt.Sprintf("r=%dpx", v.PixelRadius)
	if v.UnitMode == config.UnitMapUnits {
		radius = fmt.Sprintf("r=%gmu", v.MapUnitRadius)
	}
	state := "off"
	if a.shell.Active() {
		state = "on"
	}
	layer := "-"
	if id, ok := a.host.Canvas.CurrentLayer(); ok {
		if info, found := a.host.Store.Layer(id); found {
			layer = info.Name
		}
	}
	return fmt.Sprintf(" %s %s %s %s [%s] ", state, radius, v.SelectionMode, v.RestrictMode, layer)
}

func drawText(s tcell.Screen, x, y, limit int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= limit {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

// plotter rasterizes project coordinates onto terminal cells.
type plotter struct {
	app   *App
	width int
	rows  int
}

func (p plotter) cell(pt geom.Point) (x, y int) {
	s := p.app.host.Canvas.MapToScreen(pt)
	return int(math.Floor(s.X)), int(math.Floor(s.Y / CellHeight))
}

func (p plotter) set(x, y int, r rune, style tcell.Style) {
	if x < 0 || y < 0 || x >= p.width || y >= p.rows {
		return
	}
	p.app.screen.SetContent(x, y, r, nil, style)
}

func (p plotter) point(pt geom.Point, r rune, style tcell.Style) {
	x, y := p.cell(pt)
	p.set(x, y, r, style)
}

func (p plotter) segment(a, b geom.Point, r rune, style tcell.Style) {
	ax, ay := p.cell(a)
	bx, by := p.cell(b)
	dx, dy := bx-ax, by-ay
	steps := min(max(abs(dx), abs(dy)), maxSegmentSteps)
	if steps == 0 {
		p.set(ax, ay, r, style)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := ax + int(math.Round(t*float64(dx)))
		y := ay + int(math.Round(t*float64(dy)))
		p.set(x, y, r, style)
	}
}

func (p plotter) path(pts []geom.Point, r rune, style tcell.Style) {
	for i := 1; i < len(pts); i++ {
		p.segment(pts[i-1], pts[i], r, style)
	}
	if len(pts) == 1 {
		p.point(pts[0], r, style)
	}
}

func (p plotter) geometry(g geom.Geometry, pointRune, lineRune rune, style tcell.Style) {
	for _, pt := range g.Points {
		p.point(pt, pointRune, style)
	}
	for _, line := range g.Lines {
		p.path(line, lineRune, style)
	}
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			p.path(ring, lineRune, style)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
