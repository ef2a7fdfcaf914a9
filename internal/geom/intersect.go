package geom

// IntersectsExact reports whether two geometries share at least one point.
// Boundaries count: a line touching a polygon edge intersects it. Empty
// geometries intersect nothing.
func IntersectsExact(a, b Geometry) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	if !a.Bounds().Intersects(b.Bounds()) {
		return false
	}

	pa := primitives(a)
	pb := primitives(b)
	for i := range pa {
		for j := range pb {
			if !pa[i].bounds.Intersects(pb[j].bounds) {
				continue
			}
			if primIntersects(&pa[i], &pb[j]) {
				return true
			}
		}
	}
	return false
}

type primKind uint8

const (
	primPoint primKind = iota
	primLine
	primPolygon
)

// prim is one connected component of a geometry.
type prim struct {
	kind   primKind
	pt     Point
	line   []Point
	poly   Polygon
	bounds Rect
}

func primitives(g Geometry) []prim {
	out := make([]prim, 0, len(g.Points)+len(g.Lines)+len(g.Polygons))
	for _, p := range g.Points {
		out = append(out, prim{kind: primPoint, pt: p, bounds: Rect{Min: p, Max: p}})
	}
	for _, l := range g.Lines {
		if len(l) == 0 {
			continue
		}
		if len(l) == 1 {
			out = append(out, prim{kind: primPoint, pt: l[0], bounds: Rect{Min: l[0], Max: l[0]}})
			continue
		}
		out = append(out, prim{kind: primLine, line: l, bounds: NewLineString(l...).Bounds()})
	}
	for _, poly := range g.Polygons {
		if len(poly) == 0 || len(poly[0]) == 0 {
			continue
		}
		out = append(out, prim{kind: primPolygon, poly: poly, bounds: ringBounds(poly[0])})
	}
	return out
}

func ringBounds(r Ring) Rect {
	b := EmptyRect()
	for _, p := range r {
		b = b.ExpandPoint(p)
	}
	return b
}

func primIntersects(a, b *prim) bool {
	// Order so that a.kind <= b.kind.
	if a.kind > b.kind {
		a, b = b, a
	}

	switch a.kind {
	case primPoint:
		switch b.kind {
		case primPoint:
			return a.pt == b.pt
		case primLine:
			return pointOnPolyline(a.pt, b.line)
		default:
			return pointInPolygon(a.pt, b.poly)
		}
	case primLine:
		if b.kind == primLine {
			return polylinesIntersect(a.line, b.line)
		}
		return lineIntersectsPolygon(a.line, b.poly)
	default:
		return polygonsIntersect(a.poly, b.poly)
	}
}

func pointOnPolyline(p Point, line []Point) bool {
	for i := 0; i+1 < len(line); i++ {
		if onSegment(line[i], line[i+1], p) {
			return true
		}
	}
	return false
}

// pointInPolygon treats the boundary, including hole boundaries, as part of
// the polygon.
func pointInPolygon(p Point, poly Polygon) bool {
	for _, ring := range poly {
		if pointOnRing(p, ring) {
			return true
		}
	}
	if !rayCast(p, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if rayCast(p, hole) {
			return false
		}
	}
	return true
}

func pointOnRing(p Point, r Ring) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		if onSegment(r[i], r[(i+1)%n], p) {
			return true
		}
	}
	return false
}

// rayCast tests strict containment with the even-odd rule.
func rayCast(p Point, r Ring) bool {
	inside := false
	n := len(r)
	for i := 0; i < n; i++ {
		pi, pj := r[i], r[(i+1)%n]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

func polylinesIntersect(a, b []Point) bool {
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

func lineIntersectsPolygon(line []Point, poly Polygon) bool {
	for _, p := range line {
		if pointInPolygon(p, poly) {
			return true
		}
	}
	for _, ring := range poly {
		if polylineCrossesRing(line, ring) {
			return true
		}
	}
	return false
}

func polylineCrossesRing(line []Point, r Ring) bool {
	n := len(r)
	for i := 0; i+1 < len(line); i++ {
		for j := 0; j < n; j++ {
			if segmentsIntersect(line[i], line[i+1], r[j], r[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

func polygonsIntersect(a, b Polygon) bool {
	for _, ra := range a {
		for _, rb := range b {
			if ringsCross(ra, rb) {
				return true
			}
		}
	}
	// No boundary contact: one polygon is inside the other or they are disjoint.
	return pointInPolygon(a[0][0], b) || pointInPolygon(b[0][0], a)
}

func ringsCross(a, b Ring) bool {
	na, nb := len(a), len(b)
	for i := 0; i < na; i++ {
		for j := 0; j < nb; j++ {
			if segmentsIntersect(a[i], a[(i+1)%na], b[j], b[(j+1)%nb]) {
				return true
			}
		}
	}
	return false
}

func orientation(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether p lies on the closed segment a-b.
func onSegment(a, b, p Point) bool {
	if orientation(a, b, p) != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

// segmentsIntersect reports whether closed segments p1-p2 and q1-q2 share a point.
func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := sign(orientation(q1, q2, p1))
	d2 := sign(orientation(q1, q2, p2))
	d3 := sign(orientation(p1, p2, q1))
	d4 := sign(orientation(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}
