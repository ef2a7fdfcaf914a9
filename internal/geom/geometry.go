package geom

import "fmt"

// Kind identifies the shape of a Geometry.
type Kind uint8

const (
	// KindEmpty is a geometry with no coordinates.
	KindEmpty Kind = iota
	// KindPoint is a single point.
	KindPoint
	// KindMultiPoint is a collection of points.
	KindMultiPoint
	// KindLineString is a single polyline.
	KindLineString
	// KindMultiLineString is a collection of polylines.
	KindMultiLineString
	// KindPolygon is a single polygon with optional holes.
	KindPolygon
	// KindMultiPolygon is a collection of polygons.
	KindMultiPolygon
)

// String returns the OGC type name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindMultiPoint:
		return "MultiPoint"
	case KindLineString:
		return "LineString"
	case KindMultiLineString:
		return "MultiLineString"
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	default:
		return "Empty"
	}
}

// Ring is a closed sequence of vertices. The closing vertex may be repeated
// or left implicit; both forms are accepted everywhere.
type Ring []Point

// Polygon is an exterior ring followed by zero or more hole rings.
type Polygon []Ring

// Geometry is a simple-features geometry. Only the fields matching Kind are
// populated: Points for point kinds, Lines for line kinds, Polygons for
// polygon kinds. Geometry values are treated as immutable once built.
type Geometry struct {
	Kind     Kind
	Points   []Point
	Lines    [][]Point
	Polygons []Polygon
}

// NewPoint creates a point geometry.
func NewPoint(p Point) Geometry {
	return Geometry{Kind: KindPoint, Points: []Point{p}}
}

// NewMultiPoint creates a multi-point geometry.
func NewMultiPoint(pts ...Point) Geometry {
	return Geometry{Kind: KindMultiPoint, Points: pts}
}

// NewLineString creates a linestring geometry.
func NewLineString(pts ...Point) Geometry {
	return Geometry{Kind: KindLineString, Lines: [][]Point{pts}}
}

// NewMultiLineString creates a multi-linestring geometry.
func NewMultiLineString(lines ...[]Point) Geometry {
	return Geometry{Kind: KindMultiLineString, Lines: lines}
}

// NewPolygon creates a polygon geometry from an exterior ring and optional holes.
func NewPolygon(exterior Ring, holes ...Ring) Geometry {
	poly := make(Polygon, 0, 1+len(holes))
	poly = append(poly, exterior)
	poly = append(poly, holes...)
	return Geometry{Kind: KindPolygon, Polygons: []Polygon{poly}}
}

// NewMultiPolygon creates a multi-polygon geometry.
func NewMultiPolygon(polys ...Polygon) Geometry {
	return Geometry{Kind: KindMultiPolygon, Polygons: polys}
}

// IsEmpty returns true if the geometry has no vertices.
func (g Geometry) IsEmpty() bool {
	return g.Kind == KindEmpty || g.vertexCount() == 0
}

func (g Geometry) vertexCount() int {
	n := len(g.Points)
	for _, l := range g.Lines {
		n += len(l)
	}
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			n += len(ring)
		}
	}
	return n
}

// Bounds returns the bounding box of all vertices. Empty geometries
// return EmptyRect.
func (g Geometry) Bounds() Rect {
	r := EmptyRect()
	g.eachVertex(func(p Point) {
		r = r.ExpandPoint(p)
	})
	return r
}

func (g Geometry) eachVertex(fn func(Point)) {
	for _, p := range g.Points {
		fn(p)
	}
	for _, l := range g.Lines {
		for _, p := range l {
			fn(p)
		}
	}
	for _, poly := range g.Polygons {
		for _, ring := range poly {
			for _, p := range ring {
				fn(p)
			}
		}
	}
}

// Map returns a copy of g with fn applied to every vertex. The first error
// returned by fn aborts the mapping.
func (g Geometry) Map(fn func(Point) (Point, error)) (Geometry, error) {
	out := Geometry{Kind: g.Kind}
	var err error

	mapSlice := func(src []Point) []Point {
		if src == nil || err != nil {
			return nil
		}
		dst := make([]Point, len(src))
		for i, p := range src {
			q, e := fn(p)
			if e != nil {
				err = e
				return nil
			}
			dst[i] = q
		}
		return dst
	}

	out.Points = mapSlice(g.Points)
	if g.Lines != nil {
		out.Lines = make([][]Point, len(g.Lines))
		for i, l := range g.Lines {
			out.Lines[i] = mapSlice(l)
		}
	}
	if g.Polygons != nil {
		out.Polygons = make([]Polygon, len(g.Polygons))
		for i, poly := range g.Polygons {
			rings := make(Polygon, len(poly))
			for j, ring := range poly {
				rings[j] = mapSlice(ring)
			}
			out.Polygons[i] = rings
		}
	}

	if err != nil {
		return Geometry{}, err
	}
	return out, nil
}

// Validate checks that the geometry is structurally sound: the populated
// fields match Kind, rings have at least three vertices and all
// coordinates are finite.
func (g Geometry) Validate() error {
	switch g.Kind {
	case KindEmpty:
		return nil
	case KindPoint:
		if len(g.Points) != 1 {
			return fmt.Errorf("point must have exactly one vertex, has %d", len(g.Points))
		}
	case KindMultiPoint:
	case KindLineString, KindMultiLineString:
		for i, l := range g.Lines {
			if len(l) < 2 {
				return fmt.Errorf("line %d has %d vertices, need at least 2", i, len(l))
			}
		}
	case KindPolygon, KindMultiPolygon:
		for i, poly := range g.Polygons {
			if len(poly) == 0 {
				return fmt.Errorf("polygon %d has no rings", i)
			}
			for j, ring := range poly {
				if len(openRing(ring)) < 3 {
					return fmt.Errorf("polygon %d ring %d has fewer than 3 distinct vertices", i, j)
				}
			}
		}
	default:
		return fmt.Errorf("unknown geometry kind %d", g.Kind)
	}

	var bad bool
	g.eachVertex(func(p Point) {
		if !p.IsFinite() {
			bad = true
		}
	})
	if bad {
		return fmt.Errorf("%s has non-finite coordinates", g.Kind)
	}
	return nil
}

// openRing returns the ring without a repeated closing vertex.
func openRing(r Ring) Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}
