package memhost

import (
	"sync"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
)

// Canvas is a viewport of width x height pixels centred on a map point.
// Screen Y grows downwards, map Y grows upwards.
type Canvas struct {
	mu         sync.RWMutex
	center     geom.Point
	mupp       float64
	width      int
	height     int
	projectCRS crs.CRS
	current    string
	listeners  listenerList
}

var _ host.Canvas = (*Canvas)(nil)

// NewCanvas creates a canvas.
func NewCanvas(width, height int, center geom.Point, mapUnitsPerPixel float64, project crs.CRS) *Canvas {
	return &Canvas{
		center:     center,
		mupp:       mapUnitsPerPixel,
		width:      width,
		height:     height,
		projectCRS: project,
	}
}

// ScreenToMap implements host.Canvas.
func (c *Canvas) ScreenToMap(p geom.Point) geom.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return geom.Point{
		X: c.center.X + (p.X-float64(c.width)/2)*c.mupp,
		Y: c.center.Y - (p.Y-float64(c.height)/2)*c.mupp,
	}
}

// MapToScreen is the inverse of ScreenToMap. It returns the origin when
// the scale is not positive.
func (c *Canvas) MapToScreen(p geom.Point) geom.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !(c.mupp > 0) {
		return geom.Point{}
	}
	return geom.Point{
		X: (p.X-c.center.X)/c.mupp + float64(c.width)/2,
		Y: (c.center.Y-p.Y)/c.mupp + float64(c.height)/2,
	}
}

// MapUnitsPerPixel implements host.Canvas.
func (c *Canvas) MapUnitsPerPixel() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mupp
}

// CurrentLayer implements host.Canvas.
func (c *Canvas) CurrentLayer() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current != ""
}

// SetCurrentLayer changes the current layer. An empty id clears it.
func (c *Canvas) SetCurrentLayer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
}

// ProjectCRS implements host.Canvas.
func (c *Canvas) ProjectCRS() crs.CRS {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectCRS
}

// Size returns the viewport size in pixels.
func (c *Canvas) Size() (width, height int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// Extent returns the visible map rectangle.
func (c *Canvas) Extent() geom.Rect {
	c.mu.RLock()
	w := float64(c.width) * c.mupp / 2
	h := float64(c.height) * c.mupp / 2
	center := c.center
	c.mu.RUnlock()
	return geom.NewRect(geom.Pt(center.X-w, center.Y-h), geom.Pt(center.X+w, center.Y+h))
}

// OnViewportChanged registers fn to run after the scale, centre or size
// change. The returned func unregisters it.
func (c *Canvas) OnViewportChanged(fn func()) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.listeners.add(fn)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners.remove(id)
	}
}

// SetScale changes the map units per pixel.
func (c *Canvas) SetScale(mapUnitsPerPixel float64) {
	c.update(func() { c.mupp = mapUnitsPerPixel })
}

// Zoom multiplies the scale by factor.
func (c *Canvas) Zoom(factor float64) {
	c.update(func() { c.mupp *= factor })
}

// Pan moves the centre by a screen offset in pixels.
func (c *Canvas) Pan(dx, dy float64) {
	c.update(func() {
		c.center.X += dx * c.mupp
		c.center.Y -= dy * c.mupp
	})
}

// CenterOn moves the centre to p.
func (c *Canvas) CenterOn(p geom.Point) {
	c.update(func() { c.center = p })
}

// Resize changes the viewport size.
func (c *Canvas) Resize(width, height int) {
	c.update(func() {
		c.width = width
		c.height = height
	})
}

func (c *Canvas) update(fn func()) {
	c.mu.Lock()
	fn()
	listeners := c.listeners.snapshot()
	c.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}
