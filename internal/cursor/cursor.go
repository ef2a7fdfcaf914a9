// Package cursor renders the circular hover cursor.
//
// The glyph is a circle outline of the hover radius with a short crosshair
// at its centre. Its side is max(MinSize, 2*radius+8) pixels so the cursor
// stays visible at tiny radii, up to MaxSize.
package cursor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/vector"
)

const (
	// MinSize is the smallest glyph side in pixels.
	MinSize = 16
	// MaxSize bounds the raster for very large radii.
	MaxSize = 1024
	// Padding is added to the diameter.
	Padding = 8
	// CrosshairArm is the crosshair half-length in pixels.
	CrosshairArm = 4
)

// Style controls glyph and overlay colours.
type Style struct {
	Pen       color.NRGBA
	PenWidth  float64
	Fill      color.NRGBA
	LineWidth float64
	Dashed    bool
}

// DefaultStyle returns the blue pen used for the cursor and the translucent
// fill used for the hover overlay.
func DefaultStyle() Style {
	return Style{
		Pen:       color.NRGBA{R: 10, G: 120, B: 200, A: 220},
		PenWidth:  2,
		Fill:      color.NRGBA{R: 10, G: 120, B: 200, A: 80},
		LineWidth: 2,
		Dashed:    true,
	}
}

// ParseColor parses a "#rrggbb" hex colour and applies alpha.
func ParseColor(hex string, alpha uint8) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// Hex formats the RGB part of c as "#rrggbb".
func Hex(c color.NRGBA) string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}

// Glyph is a rendered cursor image with its hotspot.
type Glyph struct {
	Radius  float64
	Size    int
	Hotspot image.Point
	Image   *image.NRGBA
}

// SizeFor returns the glyph side for a pixel radius. Radii above
// (MaxSize-Padding)/2 all get a MaxSize glyph.
func SizeFor(radius float64) int {
	if !(radius > 0) {
		return MinSize
	}
	d := 2*radius + Padding
	if d > MaxSize {
		return MaxSize
	}
	return max(MinSize, int(math.Round(d)))
}

// DisplayRadius returns the on-screen radius in pixels. When useMapUnits is
// set and the scale is usable, the map-unit radius is converted to pixels;
// otherwise the configured pixel radius is used as is.
func DisplayRadius(useMapUnits bool, radiusPixels int, radiusMapUnits, mapUnitsPerPixel float64) float64 {
	if useMapUnits && mapUnitsPerPixel > 0 && !math.IsInf(mapUnitsPerPixel, 0) {
		return radiusMapUnits / mapUnitsPerPixel
	}
	return float64(radiusPixels)
}

// Render draws a glyph for the given pixel radius.
func Render(radius float64, style Style) *Glyph {
	size := SizeFor(radius)
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	c := float32(size) / 2

	r := float32(radius)
	if limit := c - 1; r > limit || !(r > 0) {
		r = limit
	}
	w := float32(style.PenWidth)
	if w <= 0 {
		w = 1
	}

	z := vector.NewRasterizer(size, size)
	ring(z, c, c, r+w/2, r-w/2)
	crosshair(z, c, c, CrosshairArm, w/2)
	z.Draw(img, img.Bounds(), image.NewUniform(style.Pen), image.Point{})

	return &Glyph{
		Radius:  radius,
		Size:    size,
		Hotspot: image.Pt(size/2, size/2),
		Image:   img,
	}
}

const ringSteps = 64

// ring adds an annulus: the outer circle counter-clockwise and the inner one
// clockwise so the rasterizer leaves the hole empty.
func ring(z *vector.Rasterizer, cx, cy, outer, inner float32) {
	circlePath(z, cx, cy, outer, 1)
	if inner > 0 {
		circlePath(z, cx, cy, inner, -1)
	}
}

func circlePath(z *vector.Rasterizer, cx, cy, r float32, dir float64) {
	for i := 0; i <= ringSteps; i++ {
		a := dir * float64(i) * 2 * math.Pi / ringSteps
		x := cx + r*float32(math.Cos(a))
		y := cy + r*float32(math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func crosshair(z *vector.Rasterizer, cx, cy, arm, half float32) {
	rect(z, cx-arm, cy-half, cx+arm, cy+half)
	rect(z, cx-half, cy-arm, cx+half, cy+arm)
}

func rect(z *vector.Rasterizer, x0, y0, x1, y1 float32) {
	z.MoveTo(x0, y0)
	z.LineTo(x1, y0)
	z.LineTo(x1, y1)
	z.LineTo(x0, y1)
	z.ClosePath()
}

// Alpha returns the alpha of the glyph pixel at (x, y).
func (g *Glyph) Alpha(x, y int) uint8 {
	return g.Image.NRGBAAt(x, y).A
}
