package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) Ring {
	return Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
}

func TestBuildCircleDeterministic(t *testing.T) {
	a := BuildCircle(Pt(3.5, -2), 10, 32)
	b := BuildCircle(Pt(3.5, -2), 10, 32)
	require.Equal(t, a, b)
	require.Equal(t, KindPolygon, a.Kind)
	require.Len(t, a.Polygons[0][0], 32)

	for _, p := range a.Polygons[0][0] {
		assert.InDelta(t, 10, p.Distance(Pt(3.5, -2)), 1e-9)
	}
}

func TestBuildCircleClampsSegments(t *testing.T) {
	c := BuildCircle(Pt(0, 0), 1, 1)
	require.Len(t, c.Polygons[0][0], MinCircleSegments)

	c = BuildCircle(Pt(0, 0), 1, 3_000_000_000)
	require.Len(t, c.Polygons[0][0], MaxCircleSegments)
}

func TestBuildCircleDegenerateRadius(t *testing.T) {
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		c := BuildCircle(Pt(1, 2), r, 32)
		assert.Equal(t, KindPoint, c.Kind, "radius %v", r)
		assert.Equal(t, Pt(1, 2), c.Points[0])
	}
}

func TestPixelsToMapUnits(t *testing.T) {
	got, ok := PixelsToMapUnits(20, 0.5)
	require.True(t, ok)
	assert.Equal(t, 10.0, got)

	for _, mupp := range []float64{0, -2, math.NaN()} {
		_, ok := PixelsToMapUnits(20, mupp)
		assert.False(t, ok, "mupp %v", mupp)
	}

	px, ok := MapUnitsToPixels(10, 0.5)
	require.True(t, ok)
	assert.Equal(t, 20.0, px)
}

func TestRectIntersects(t *testing.T) {
	a := NewRect(Pt(0, 0), Pt(10, 10))
	tests := []struct {
		name string
		b    Rect
		want bool
	}{
		{"overlap", NewRect(Pt(5, 5), Pt(15, 15)), true},
		{"touching edge", NewRect(Pt(10, 0), Pt(20, 10)), true},
		{"disjoint", NewRect(Pt(11, 11), Pt(20, 20)), false},
		{"contained", NewRect(Pt(2, 2), Pt(3, 3)), true},
		{"empty", EmptyRect(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(a))
		})
	}
}

func TestGeometryBounds(t *testing.T) {
	g := NewLineString(Pt(1, 5), Pt(-3, 2), Pt(4, -1))
	b := g.Bounds()
	assert.Equal(t, Pt(-3, -1), b.Min)
	assert.Equal(t, Pt(4, 5), b.Max)
	assert.True(t, Geometry{}.Bounds().IsEmpty())
}

func TestGeometryValidate(t *testing.T) {
	require.NoError(t, NewPolygon(square(0, 0, 1, 1)).Validate())
	require.Error(t, NewPolygon(Ring{{0, 0}, {1, 1}, {0, 0}}).Validate())
	require.Error(t, NewLineString(Pt(0, 0)).Validate())
	require.Error(t, NewPoint(Pt(math.NaN(), 0)).Validate())
}

func TestIntersectsExact(t *testing.T) {
	circle := BuildCircle(Pt(0, 0), 5, 64)
	donut := NewPolygon(square(-10, -10, 10, 10), square(-2, -2, 2, 2))

	tests := []struct {
		name string
		a, b Geometry
		want bool
	}{
		{"point inside circle", NewPoint(Pt(1, 1)), circle, true},
		{"point outside circle", NewPoint(Pt(6, 0)), circle, false},
		{"point in bbox corner but outside circle", NewPoint(Pt(4.5, 4.5)), circle, false},
		{"point on polygon edge", NewPoint(Pt(10, 0)), donut, true},
		{"point in hole", NewPoint(Pt(0, 0)), donut, false},
		{"point on hole edge", NewPoint(Pt(2, 0)), donut, true},
		{"line crossing circle", NewLineString(Pt(-10, 0), Pt(10, 0)), circle, true},
		{"line missing circle", NewLineString(Pt(-10, 6), Pt(10, 6)), circle, false},
		{"line inside hole", NewLineString(Pt(-1, 0), Pt(1, 0)), donut, false},
		{"line crossing hole edge", NewLineString(Pt(0, 0), Pt(3, 0)), donut, true},
		{"polygon containing circle", NewPolygon(square(-20, -20, 20, 20)), circle, true},
		{"circle containing polygon", NewPolygon(square(-1, -1, 1, 1)), circle, true},
		{"polygon in hole", NewPolygon(square(-1, -1, 1, 1)), donut, false},
		{"disjoint polygons", NewPolygon(square(20, 20, 30, 30)), circle, false},
		{"crossing lines", NewLineString(Pt(0, 0), Pt(2, 2)), NewLineString(Pt(0, 2), Pt(2, 0)), true},
		{"parallel lines", NewLineString(Pt(0, 0), Pt(2, 0)), NewLineString(Pt(0, 1), Pt(2, 1)), false},
		{"collinear overlap", NewLineString(Pt(0, 0), Pt(2, 0)), NewLineString(Pt(1, 0), Pt(3, 0)), true},
		{"multipoint one inside", NewMultiPoint(Pt(100, 100), Pt(0, 1)), circle, true},
		{"empty", Geometry{}, circle, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IntersectsExact(tt.a, tt.b))
			assert.Equal(t, tt.want, IntersectsExact(tt.b, tt.a), "symmetry")
		})
	}
}

func TestIntersectsExactImpliesBoundsOverlap(t *testing.T) {
	circle := BuildCircle(Pt(3, 3), 2.5, 32)
	query := circle.Bounds()
	for x := -2.0; x <= 8; x += 0.5 {
		for y := -2.0; y <= 8; y += 0.5 {
			g := NewPolygon(square(x, y, x+0.4, y+0.4))
			if IntersectsExact(g, circle) {
				assert.True(t, g.Bounds().Intersects(query), "feature at %v,%v", x, y)
			}
		}
	}
}

func TestGeometryMap(t *testing.T) {
	g := NewPolygon(square(0, 0, 1, 1))
	shifted, err := g.Map(func(p Point) (Point, error) {
		return Pt(p.X+10, p.Y), nil
	})
	require.NoError(t, err)
	assert.Equal(t, Pt(10, 0), shifted.Polygons[0][0][0])
	assert.Equal(t, Pt(0, 0), g.Polygons[0][0][0], "source untouched")
}
