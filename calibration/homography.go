// Package calibration fits the projective transform between ground-plane
// (yard) coordinates and video pixel coordinates from hand-picked
// correspondence points, and applies it in both directions.
package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// MinCorrespondences is the minimum needed to determine a homography.
	MinCorrespondences = 4

	// DefaultPixelTolerance bounds the mean reprojection error accepted at
	// fit time.
	DefaultPixelTolerance = 3.0

	// detEpsilon rejects numerically singular transforms.
	detEpsilon = 1e-9

	// collinearEpsilon is the triangle-area threshold below which three
	// ground points count as collinear.
	collinearEpsilon = 1e-6
)

// Point is a 2D point, in yards on the ground plane or in pixels on the
// frame depending on context.
type Point struct {
	X, Y float64
}

// Correspondence pairs a ground-plane point with the pixel showing it.
type Correspondence struct {
	Ground Point
	Pixel  Point
}

// Mapping is a fitted ground→pixel homography and its inverse. Immutable and
// safe to share across frame workers.
type Mapping struct {
	h       [3][3]float64 // ground → pixel
	hInv    [3][3]float64 // pixel → ground
	meanErr float64
}

// Fit computes the homography by direct linear transform: a least-squares
// solve of the homogeneous system over all correspondences, normalized so
// H[2][2] = 1. It validates point count, collinearity, determinant magnitude
// and mean reprojection error up front, returning CalibrationError on any
// failure. tolerancePx <= 0 selects DefaultPixelTolerance.
//
// Only point positions are transformed; radii and line widths drawn in
// ground units are not foreshortened with perspective. Overlays are
// schematic annotations, not photometric reconstructions.
func Fit(corrs []Correspondence, tolerancePx float64) (*Mapping, error) {
	if len(corrs) < MinCorrespondences {
		return nil, &CalibrationError{Reason: fmt.Sprintf(
			"need at least %d correspondences, got %d", MinCorrespondences, len(corrs))}
	}
	if i, j, k, ok := collinearTriple(corrs); ok {
		return nil, &CalibrationError{Reason: fmt.Sprintf(
			"ground points %d, %d, %d are collinear", i, j, k)}
	}
	if tolerancePx <= 0 {
		tolerancePx = DefaultPixelTolerance
	}

	// Two rows per correspondence:
	//   [gx gy 1  0  0 0 -px*gx -px*gy] h = px
	//   [0  0  0 gx gy 1 -py*gx -py*gy] h = py
	n := len(corrs)
	a := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i, c := range corrs {
		gx, gy := c.Ground.X, c.Ground.Y
		px, py := c.Pixel.X, c.Pixel.Y
		a.SetRow(2*i, []float64{gx, gy, 1, 0, 0, 0, -px * gx, -px * gy})
		a.SetRow(2*i+1, []float64{0, 0, 0, gx, gy, 1, -py * gx, -py * gy})
		b.SetVec(2*i, px)
		b.SetVec(2*i+1, py)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, &CalibrationError{Reason: fmt.Sprintf("homogeneous system is singular: %v", err)}
	}

	m := &Mapping{h: [3][3]float64{
		{x.AtVec(0), x.AtVec(1), x.AtVec(2)},
		{x.AtVec(3), x.AtVec(4), x.AtVec(5)},
		{x.AtVec(6), x.AtVec(7), 1},
	}}

	hd := mat.NewDense(3, 3, []float64{
		m.h[0][0], m.h[0][1], m.h[0][2],
		m.h[1][0], m.h[1][1], m.h[1][2],
		m.h[2][0], m.h[2][1], m.h[2][2],
	})
	if det := mat.Det(hd); math.Abs(det) < detEpsilon {
		return nil, &CalibrationError{Reason: fmt.Sprintf("degenerate transform, |det|=%.3g", math.Abs(det))}
	}

	var inv mat.Dense
	if err := inv.Inverse(hd); err != nil {
		return nil, &CalibrationError{Reason: fmt.Sprintf("transform not invertible: %v", err)}
	}
	scale := inv.At(2, 2)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.hInv[r][c] = inv.At(r, c) / scale
		}
	}

	residuals := make([]float64, n)
	for i, c := range corrs {
		p := m.ToPixel(c.Ground)
		residuals[i] = math.Hypot(p.X-c.Pixel.X, p.Y-c.Pixel.Y)
	}
	m.meanErr = stat.Mean(residuals, nil)
	if m.meanErr > tolerancePx {
		return nil, &CalibrationError{
			Reason:   fmt.Sprintf("mean reprojection error %.2fpx exceeds tolerance %.2fpx", m.meanErr, tolerancePx),
			Residual: m.meanErr,
		}
	}

	return m, nil
}

// ToPixel projects a ground-plane point into pixel coordinates. Pure and
// total over the real plane; points on the horizon line map to IEEE
// infinities.
func (m *Mapping) ToPixel(g Point) Point {
	return apply(m.h, g)
}

// ToGround projects a pixel back onto the ground plane.
func (m *Mapping) ToGround(p Point) Point {
	return apply(m.hInv, p)
}

// MeanReprojectionError reports the fit residual over the input
// correspondences, in pixels.
func (m *Mapping) MeanReprojectionError() float64 {
	return m.meanErr
}

func apply(h [3][3]float64, p Point) Point {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	return Point{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}

// collinearTriple scans for any three ground points with near-zero triangle
// area. Correspondence sets are small (4-10 points), so the cubic scan is
// fine.
func collinearTriple(corrs []Correspondence) (int, int, int, bool) {
	for i := 0; i < len(corrs); i++ {
		for j := i + 1; j < len(corrs); j++ {
			for k := j + 1; k < len(corrs); k++ {
				a, b, c := corrs[i].Ground, corrs[j].Ground, corrs[k].Ground
				area := (b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)
				if math.Abs(area) < collinearEpsilon {
					return i, j, k, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

// GroundDistance is the Euclidean distance between two ground-plane points,
// in yards. Nearest-neighbor pairing uses ground distance; pixel distance
// would be biased by projective distortion.
func GroundDistance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// CalibrationError reports degenerate or high-residual correspondences.
type CalibrationError struct {
	Reason   string
	Residual float64
}

func (e *CalibrationError) Error() string {
	return "calibration: " + e.Reason
}
