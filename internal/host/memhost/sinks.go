package memhost

import (
	"sync"
	"time"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/cursor"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
)

// Message is one transient status message.
type Message struct {
	Text     string
	Duration time.Duration
}

// Status records status messages.
type Status struct {
	mu       sync.Mutex
	messages []Message
}

var _ host.StatusSink = (*Status)(nil)

// ShowTransientMessage implements host.StatusSink.
func (s *Status) ShowTransientMessage(text string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Text: text, Duration: d})
}

// Messages returns every message shown so far.
func (s *Status) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Last returns the latest message.
func (s *Status) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Overlay records the hover overlay state.
type Overlay struct {
	mu       sync.Mutex
	geometry geom.Geometry
	visible  bool
	updates  int
	resets   int
}

var _ host.Overlay = (*Overlay)(nil)

func (o *Overlay) SetGeometry(g geom.Geometry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.geometry = g
	o.updates++
}

func (o *Overlay) Show() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
}

func (o *Overlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = false
}

func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.geometry = geom.Geometry{}
	o.resets++
}

// State returns the drawn geometry and whether the overlay is shown.
func (o *Overlay) State() (geom.Geometry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.geometry, o.visible
}

// Updates returns the number of SetGeometry calls.
func (o *Overlay) Updates() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updates
}

// Resets returns the number of Reset calls.
func (o *Overlay) Resets() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resets
}

// Cursor records installed cursor glyphs.
type Cursor struct {
	mu    sync.Mutex
	last  *cursor.Glyph
	count int
}

var _ host.CursorSetter = (*Cursor)(nil)

// SetCursor implements host.CursorSetter.
func (c *Cursor) SetCursor(g *cursor.Glyph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = g
	c.count++
}

// Last returns the latest glyph and how many were installed.
func (c *Cursor) Last() (*cursor.Glyph, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.count
}

// Host bundles a complete in-memory host.
type Host struct {
	Canvas  *Canvas
	Store   *Store
	Status  *Status
	Overlay *Overlay
	Cursor  *Cursor
}

// New creates a host with an 800x600 canvas at scale 1 centred on the
// origin.
func New(project crs.CRS) *Host {
	return &Host{
		Canvas:  NewCanvas(800, 600, geom.Point{}, 1, project),
		Store:   NewStore(),
		Status:  &Status{},
		Overlay: &Overlay{},
		Cursor:  &Cursor{},
	}
}

// Services returns the host as engine collaborators.
func (h *Host) Services() host.Services {
	return host.Services{
		Canvas:  h.Canvas,
		Layers:  h.Store,
		Tree:    h.Store,
		Status:  h.Status,
		Overlay: h.Overlay,
		Cursor:  h.Cursor,
	}
}
