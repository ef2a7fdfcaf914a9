package geom

import "math"

// Vertex count bounds applied by BuildCircle.
const (
	MinCircleSegments = 3
	MaxCircleSegments = 4096
)

// BuildCircle approximates the disk of the given radius around center by a
// regular polygon with segments vertices. The first vertex lies on the
// positive X axis and vertices proceed counter-clockwise; the ring is left
// open. Identical arguments always produce identical vertices.
//
// A non-positive or non-finite radius yields a point geometry at center.
func BuildCircle(center Point, radius float64, segments int) Geometry {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return NewPoint(center)
	}
	segments = min(max(segments, MinCircleSegments), MaxCircleSegments)

	ring := make(Ring, segments)
	for i := 0; i < segments; i++ {
		angle := float64(i) * 2.0 * math.Pi / float64(segments)
		ring[i] = Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return NewPolygon(ring)
}

// PixelsToMapUnits converts a screen distance to map units. It returns
// false when mapUnitsPerPixel is not a positive finite scale, in which case
// the conversion is undefined.
func PixelsToMapUnits(pixels, mapUnitsPerPixel float64) (float64, bool) {
	if !(mapUnitsPerPixel > 0) || math.IsInf(mapUnitsPerPixel, 0) {
		return 0, false
	}
	return pixels * mapUnitsPerPixel, true
}

// MapUnitsToPixels converts a map distance to screen pixels. It returns
// false when mapUnitsPerPixel is not a positive finite scale.
func MapUnitsToPixels(mapUnits, mapUnitsPerPixel float64) (float64, bool) {
	if !(mapUnitsPerPixel > 0) || math.IsInf(mapUnitsPerPixel, 0) {
		return 0, false
	}
	return mapUnits / mapUnitsPerPixel, true
}
