package crs

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dshills/hoverselect/internal/geom"
)

// Web Mercator constants for the spherical model.
const (
	earthRadius      = 6378137.0
	maxMercatorLat   = 85.0511287798066
	degreesPerRadian = 180.0 / math.Pi
)

// definition converts between one CRS and geographic WGS84.
type definition interface {
	toGeographic(p geom.Point) (geom.Point, error)
	fromGeographic(p geom.Point) (geom.Point, error)
	// transformable is false for engineering CRSs that are not tied to the earth.
	transformable() bool
}

// Registry holds the known CRS definitions.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]definition
}

// NewRegistry creates a registry with WGS84 and Web Mercator registered.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]definition)}
	r.defs[CodeWGS84] = geographic{}
	r.defs[CodeWebMercator] = mercator{}
	r.defs["EPSG:900913"] = mercator{}
	r.defs["EPSG:3785"] = mercator{}
	return r
}

// Known reports whether the CRS is registered.
func (r *Registry) Known(c CRS) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[c.code]
	return ok
}

// Codes returns the registered codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.defs))
	for code := range r.defs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// RegisterEngineering registers a local CRS that cannot be reprojected.
// Transforming to or from it always fails with ErrNoTransformPath.
func (r *Registry) RegisterEngineering(c CRS) error {
	if !c.IsValid() {
		return fmt.Errorf("register engineering CRS: %w", ErrUnknownCRS)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[c.code] = engineering{}
	return nil
}

// RegisterAffine registers c as an affine image of base. The matrix maps a
// coordinate in c to base:
//
//	x' = m[0][0]*x + m[0][1]*y + m[0][2]
//	y' = m[1][0]*x + m[1][1]*y + m[1][2]
//
// base must already be registered and transformable.
func (r *Registry) RegisterAffine(c, base CRS, m [2][3]float64) error {
	a, err := newAffine(m)
	if err != nil {
		return fmt.Errorf("register %s: %w", c, err)
	}
	return r.registerAffine(c, base, a)
}

// RegisterAffineFromControlPoints fits an affine transform from c to base
// through matched control points by least squares and registers it. At
// least three non-collinear pairs are needed.
func (r *Registry) RegisterAffineFromControlPoints(c, base CRS, local, target []geom.Point) error {
	a, err := fitAffine(local, target)
	if err != nil {
		return fmt.Errorf("register %s: %w", c, err)
	}
	return r.registerAffine(c, base, a)
}

func (r *Registry) registerAffine(c, base CRS, a *affine) error {
	if !c.IsValid() {
		return fmt.Errorf("register affine CRS: %w", ErrUnknownCRS)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.defs[base.code]
	if !ok {
		return fmt.Errorf("register %s on %s: %w", c, base, ErrUnknownCRS)
	}
	if !b.transformable() {
		return fmt.Errorf("register %s on %s: %w", c, base, ErrNoTransformPath)
	}
	r.defs[c.code] = affineDef{base: b, fwd: a}
	return nil
}

// TransformPoint reprojects a single coordinate from src to dst.
func (r *Registry) TransformPoint(p geom.Point, src, dst CRS) (geom.Point, error) {
	if src.Equal(dst) {
		return p, nil
	}
	from, to, err := r.lookupPair(src, dst)
	if err != nil {
		return geom.Point{}, err
	}
	out, err := transformPoint(p, from, to)
	if err != nil {
		return geom.Point{}, &TransformError{Source: src, Target: dst, Err: err}
	}
	return out, nil
}

// Transform reprojects every vertex of g from src to dst. The input is not
// modified. Equal CRSs return g unchanged.
func (r *Registry) Transform(g geom.Geometry, src, dst CRS) (geom.Geometry, error) {
	if src.Equal(dst) {
		return g, nil
	}
	from, to, err := r.lookupPair(src, dst)
	if err != nil {
		return geom.Geometry{}, err
	}
	out, err := g.Map(func(p geom.Point) (geom.Point, error) {
		return transformPoint(p, from, to)
	})
	if err != nil {
		return geom.Geometry{}, &TransformError{Source: src, Target: dst, Err: err}
	}
	return out, nil
}

// TransformRect reprojects a rectangle by transforming its corners and edge
// midpoints and returning their bounds.
func (r *Registry) TransformRect(rect geom.Rect, src, dst CRS) (geom.Rect, error) {
	if src.Equal(dst) || rect.IsEmpty() {
		return rect, nil
	}
	c := rect.Center()
	probe := geom.NewMultiPoint(
		rect.Min, rect.Max,
		geom.Pt(rect.Min.X, rect.Max.Y), geom.Pt(rect.Max.X, rect.Min.Y),
		geom.Pt(c.X, rect.Min.Y), geom.Pt(c.X, rect.Max.Y),
		geom.Pt(rect.Min.X, c.Y), geom.Pt(rect.Max.X, c.Y),
	)
	out, err := r.Transform(probe, src, dst)
	if err != nil {
		return geom.Rect{}, err
	}
	return out.Bounds(), nil
}

func (r *Registry) lookupPair(src, dst CRS) (definition, definition, error) {
	r.mu.RLock()
	from, okFrom := r.defs[src.code]
	to, okTo := r.defs[dst.code]
	r.mu.RUnlock()

	switch {
	case !okFrom:
		return nil, nil, &TransformError{Source: src, Target: dst, Err: fmt.Errorf("%w: %s", ErrUnknownCRS, src)}
	case !okTo:
		return nil, nil, &TransformError{Source: src, Target: dst, Err: fmt.Errorf("%w: %s", ErrUnknownCRS, dst)}
	}
	if !from.transformable() || !to.transformable() {
		return nil, nil, &TransformError{Source: src, Target: dst, Err: ErrNoTransformPath}
	}
	return from, to, nil
}

func transformPoint(p geom.Point, from, to definition) (geom.Point, error) {
	if !p.IsFinite() {
		return geom.Point{}, fmt.Errorf("%w: non-finite coordinate", ErrOutOfDomain)
	}
	g, err := from.toGeographic(p)
	if err != nil {
		return geom.Point{}, err
	}
	out, err := to.fromGeographic(g)
	if err != nil {
		return geom.Point{}, err
	}
	if !out.IsFinite() {
		return geom.Point{}, fmt.Errorf("%w: result not finite", ErrOutOfDomain)
	}
	return out, nil
}

type geographic struct{}

func checkLatLon(p geom.Point) error {
	if math.Abs(p.Y) > 90 || math.Abs(p.X) > 180 {
		return fmt.Errorf("%w: lon=%g lat=%g", ErrOutOfDomain, p.X, p.Y)
	}
	return nil
}

func (geographic) toGeographic(p geom.Point) (geom.Point, error) {
	return p, checkLatLon(p)
}

func (geographic) fromGeographic(p geom.Point) (geom.Point, error) {
	return p, checkLatLon(p)
}

func (geographic) transformable() bool { return true }

type mercator struct{}

func (mercator) toGeographic(p geom.Point) (geom.Point, error) {
	lon := p.X / earthRadius * degreesPerRadian
	lat := (2*math.Atan(math.Exp(p.Y/earthRadius)) - math.Pi/2) * degreesPerRadian
	out := geom.Pt(lon, lat)
	return out, checkLatLon(out)
}

func (mercator) fromGeographic(p geom.Point) (geom.Point, error) {
	if err := checkLatLon(p); err != nil {
		return geom.Point{}, err
	}
	if math.Abs(p.Y) > maxMercatorLat {
		return geom.Point{}, fmt.Errorf("%w: latitude %g beyond mercator limit", ErrOutOfDomain, p.Y)
	}
	lam := p.X / degreesPerRadian
	phi := p.Y / degreesPerRadian
	return geom.Pt(earthRadius*lam, earthRadius*math.Log(math.Tan(math.Pi/4+phi/2))), nil
}

func (mercator) transformable() bool { return true }

type engineering struct{}

func (engineering) toGeographic(geom.Point) (geom.Point, error) {
	return geom.Point{}, ErrNoTransformPath
}

func (engineering) fromGeographic(geom.Point) (geom.Point, error) {
	return geom.Point{}, ErrNoTransformPath
}

func (engineering) transformable() bool { return false }

// affineDef is a CRS defined as an affine image of a base CRS.
type affineDef struct {
	base definition
	fwd  *affine
}

func (d affineDef) toGeographic(p geom.Point) (geom.Point, error) {
	return d.base.toGeographic(d.fwd.apply(p))
}

func (d affineDef) fromGeographic(p geom.Point) (geom.Point, error) {
	b, err := d.base.fromGeographic(p)
	if err != nil {
		return geom.Point{}, err
	}
	return d.fwd.invert(b), nil
}

func (d affineDef) transformable() bool { return true }
