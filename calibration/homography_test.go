package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldCorners maps a 100x53.3 yard field region onto a trapezoid, roughly
// what a broadcast sideline camera produces.
func fieldCorners() []Correspondence {
	return []Correspondence{
		{Ground: Point{X: 10, Y: 0}, Pixel: Point{X: 180, Y: 980}},
		{Ground: Point{X: 110, Y: 0}, Pixel: Point{X: 1760, Y: 960}},
		{Ground: Point{X: 10, Y: 53.3}, Pixel: Point{X: 420, Y: 140}},
		{Ground: Point{X: 110, Y: 53.3}, Pixel: Point{X: 1540, Y: 150}},
	}
}

func TestFitRoundTrip(t *testing.T) {
	t.Parallel()
	m, err := Fit(fieldCorners(), 0)
	require.NoError(t, err)

	// to_ground(to_pixel(p)) ≈ p across the calibrated plane.
	for x := 10.0; x <= 110; x += 7.5 {
		for y := 0.0; y <= 53.3; y += 6.1 {
			g := Point{X: x, Y: y}
			back := m.ToGround(m.ToPixel(g))
			assert.InDelta(t, g.X, back.X, 1e-6)
			assert.InDelta(t, g.Y, back.Y, 1e-6)
		}
	}
}

func TestFitReprojectsCorrespondences(t *testing.T) {
	t.Parallel()
	m, err := Fit(fieldCorners(), 0)
	require.NoError(t, err)

	// Four points determine the homography exactly, so the residual is
	// numerical noise.
	assert.Less(t, m.MeanReprojectionError(), 1e-6)
	for _, c := range fieldCorners() {
		p := m.ToPixel(c.Ground)
		assert.InDelta(t, c.Pixel.X, p.X, 1e-6)
		assert.InDelta(t, c.Pixel.Y, p.Y, 1e-6)
	}
}

func TestFitOverdetermined(t *testing.T) {
	t.Parallel()
	base := fieldCorners()
	m, err := Fit(base, 0)
	require.NoError(t, err)

	// Add midfield correspondences consistent with the fitted transform,
	// lightly perturbed; the least-squares fit must stay within tolerance.
	extra := base
	for _, g := range []Point{{X: 60, Y: 26.65}, {X: 35, Y: 40}} {
		p := m.ToPixel(g)
		extra = append(extra, Correspondence{
			Ground: g,
			Pixel:  Point{X: p.X + 1.5, Y: p.Y - 1.0},
		})
	}

	m2, err := Fit(extra, 3.0)
	require.NoError(t, err)
	assert.Greater(t, m2.MeanReprojectionError(), 0.0)
	assert.LessOrEqual(t, m2.MeanReprojectionError(), 3.0)
}

func TestFitRejectsTooFewPoints(t *testing.T) {
	t.Parallel()
	_, err := Fit(fieldCorners()[:3], 0)
	var cerr *CalibrationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "at least 4")
}

func TestFitRejectsCollinearPoints(t *testing.T) {
	t.Parallel()
	corrs := []Correspondence{
		{Ground: Point{X: 0, Y: 0}, Pixel: Point{X: 0, Y: 0}},
		{Ground: Point{X: 10, Y: 10}, Pixel: Point{X: 100, Y: 90}},
		{Ground: Point{X: 20, Y: 20}, Pixel: Point{X: 200, Y: 180}},
		{Ground: Point{X: 5, Y: 30}, Pixel: Point{X: 60, Y: 290}},
	}
	_, err := Fit(corrs, 0)
	var cerr *CalibrationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "collinear")
}

func TestFitRejectsHighResidual(t *testing.T) {
	t.Parallel()
	corrs := fieldCorners()
	m, err := Fit(corrs, 0)
	require.NoError(t, err)

	// A wildly inconsistent fifth point forces the least-squares residual
	// past any sane pixel tolerance.
	p := m.ToPixel(Point{X: 60, Y: 26.65})
	corrs = append(corrs, Correspondence{
		Ground: Point{X: 60, Y: 26.65},
		Pixel:  Point{X: p.X + 400, Y: p.Y + 400},
	})

	_, err = Fit(corrs, 3.0)
	var cerr *CalibrationError
	require.ErrorAs(t, err, &cerr)
	assert.Greater(t, cerr.Residual, 3.0)
}

func TestToPixelTotal(t *testing.T) {
	t.Parallel()
	m, err := Fit(fieldCorners(), 0)
	require.NoError(t, err)

	// Far outside the calibrated region the transform still answers; no
	// domain restriction beyond IEEE overflow.
	p := m.ToPixel(Point{X: 1e6, Y: -1e6})
	assert.False(t, math.IsNaN(p.X))
	assert.False(t, math.IsNaN(p.Y))
}

func TestGroundDistance(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 5, GroundDistance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4}), 1e-9)
	assert.InDelta(t, 0, GroundDistance(Point{X: 2, Y: 2}, Point{X: 2, Y: 2}), 1e-9)
}
