// Package host defines the collaborators the hover selection engine needs
// from the surrounding GIS application: the map canvas, the vector layer
// store, the layer tree, and the feedback sinks.
//
// Implementations are expected to be cheap and in-memory; none of these
// calls should block on I/O.
package host

import (
	"errors"
	"time"

	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/cursor"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/selection"
)

// ErrUnknownLayer is returned for operations on a layer id the store does
// not hold.
var ErrUnknownLayer = errors.New("unknown layer")

// ErrUnknownFeature is returned by FeatureByID for a missing feature.
var ErrUnknownFeature = errors.New("unknown feature")

// LayerKind distinguishes vector layers from everything else.
type LayerKind uint8

const (
	LayerVector LayerKind = iota
	LayerRaster
)

func (k LayerKind) String() string {
	if k == LayerVector {
		return "vector"
	}
	return "raster"
}

// LayerInfo describes one layer in the store.
type LayerInfo struct {
	ID         string
	Name       string
	Kind       LayerKind
	CRS        crs.CRS
	Selectable bool
}

// Feature is a feature id with its geometry in the layer's CRS. A feature
// without geometry has an empty Geometry.
type Feature struct {
	ID       int64
	Geometry geom.Geometry
}

// Canvas is the map view the tool is bound to.
type Canvas interface {
	// ScreenToMap converts a screen pixel position to project coordinates.
	ScreenToMap(p geom.Point) geom.Point
	// MapUnitsPerPixel returns the current scale. It may be zero or
	// negative while the canvas is not yet laid out.
	MapUnitsPerPixel() float64
	// CurrentLayer returns the layer highlighted in the layer panel.
	CurrentLayer() (string, bool)
	// ProjectCRS returns the CRS of project coordinates.
	ProjectCRS() crs.CRS
}

// LayerStore gives access to layers, their features and selections.
type LayerStore interface {
	// Layers returns every layer in iteration order.
	Layers() []LayerInfo
	// Features calls fn for each feature of the layer, stopping when fn
	// returns false. A non-nil filter restricts iteration to features whose
	// bounding box intersects it.
	Features(layerID string, filter *geom.Rect, fn func(Feature) bool) error
	// FeatureByID returns one feature.
	FeatureByID(layerID string, id int64) (Feature, error)
	// SelectedIDs returns a copy of the layer's selection.
	SelectedIDs(layerID string) (selection.Set, error)
	// SetSelectedIDs replaces the layer's selection.
	SetSelectedIDs(layerID string, ids selection.Set) error
}

// LayerTree reports layer visibility.
type LayerTree interface {
	IsVisible(layerID string) bool
}

// StatusSink shows short-lived messages to the user.
type StatusSink interface {
	ShowTransientMessage(text string, d time.Duration)
}

// Overlay draws the hover circle above the map.
type Overlay interface {
	SetGeometry(g geom.Geometry)
	Show()
	Hide()
	// Reset clears the drawn geometry.
	Reset()
}

// CursorSetter installs the tool's mouse cursor.
type CursorSetter interface {
	SetCursor(g *cursor.Glyph)
}

// Services bundles the collaborators. Status, Overlay and Cursor are
// optional.
type Services struct {
	Canvas  Canvas
	Layers  LayerStore
	Tree    LayerTree
	Status  StatusSink
	Overlay Overlay
	Cursor  CursorSetter
}

// Validate reports missing required collaborators.
func (s Services) Validate() error {
	switch {
	case s.Canvas == nil:
		return errors.New("host: canvas is required")
	case s.Layers == nil:
		return errors.New("host: layer store is required")
	case s.Tree == nil:
		return errors.New("host: layer tree is required")
	}
	return nil
}
