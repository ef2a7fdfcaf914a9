// Package geom provides the planar geometry used by the hover selection
// engine: points, axis-aligned rectangles, simple feature geometries, circle
// approximation and exact intersection testing.
package geom

import (
	"math"
)

// Point is a 2D point in map or layer coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt creates a new Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns the difference of two points.
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Rect is an axis-aligned bounding box given by its minimum and maximum corners.
// The zero Rect is a degenerate box at the origin; use EmptyRect for "no extent".
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// EmptyRect returns a rectangle that contains nothing and extends to
// anything it is expanded with.
func EmptyRect() Rect {
	return Rect{
		Min: Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
}

// NewRect creates a rectangle from two opposite corners in any order.
func NewRect(a, b Point) Rect {
	return Rect{
		Min: Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// IsEmpty returns true if the rectangle contains no points.
func (r Rect) IsEmpty() bool {
	return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Max.X - r.Min.X
}

// Height returns the vertical extent.
func (r Rect) Height() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Max.Y - r.Min.Y
}

// Center returns the center point of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Contains returns true if the point lies inside or on the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Intersects returns true if the rectangles share at least one point.
// Touching edges count as intersecting.
func (r Rect) Intersects(other Rect) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	return r.Min.X <= other.Max.X && r.Max.X >= other.Min.X &&
		r.Min.Y <= other.Max.Y && r.Max.Y >= other.Min.Y
}

// ExpandPoint returns the smallest rectangle containing r and p.
func (r Rect) ExpandPoint(p Point) Rect {
	return Rect{
		Min: Point{X: math.Min(r.Min.X, p.X), Y: math.Min(r.Min.Y, p.Y)},
		Max: Point{X: math.Max(r.Max.X, p.X), Y: math.Max(r.Max.Y, p.Y)},
	}
}

// Union returns the smallest rectangle containing both rectangles.
func (r Rect) Union(other Rect) Rect {
	if other.IsEmpty() {
		return r
	}
	if r.IsEmpty() {
		return other
	}
	return r.ExpandPoint(other.Min).ExpandPoint(other.Max)
}

// IsFinite reports whether both corners are finite.
func (r Rect) IsFinite() bool {
	return r.Min.IsFinite() && r.Max.IsFinite()
}
