package crs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dshills/hoverselect/internal/geom"
)

// affine holds a 2D affine transform and its inverse as homogeneous 3x3
// matrices.
type affine struct {
	fwd *mat.Dense
	inv *mat.Dense
}

func newAffine(m [2][3]float64) (*affine, error) {
	for _, row := range m {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("affine coefficient %g: %w", v, ErrSingularTransform)
			}
		}
	}
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if math.Abs(det) < 1e-12 {
		return nil, ErrSingularTransform
	}

	fwd := mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		0, 0, 1,
	})
	var inv mat.Dense
	if err := inv.Inverse(fwd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularTransform, err)
	}
	return &affine{fwd: fwd, inv: &inv}, nil
}

// fitAffine solves the least-squares affine transform mapping src onto dst.
func fitAffine(src, dst []geom.Point) (*affine, error) {
	n := len(src)
	if n != len(dst) {
		return nil, fmt.Errorf("control points: %d local vs %d target", n, len(dst))
	}
	if n < 3 {
		return nil, fmt.Errorf("control points: need at least 3, got %d", n)
	}

	// [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return nil, fmt.Errorf("control points: %w: %v", ErrSingularTransform, err)
	}

	return newAffine([2][3]float64{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
	})
}

func (a *affine) apply(p geom.Point) geom.Point {
	return mulPoint(a.fwd, p)
}

func (a *affine) invert(p geom.Point) geom.Point {
	return mulPoint(a.inv, p)
}

func mulPoint(m *mat.Dense, p geom.Point) geom.Point {
	return geom.Point{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2),
	}
}
