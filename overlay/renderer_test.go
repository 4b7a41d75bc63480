package overlay

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocv.io/x/gocv"

	"fieldcast/calibration"
	"fieldcast/tracking"
)

func TestClassifySeparation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		distance float64
		want     SeparationTier
	}{
		{"clearly open", 8.2, TierOpen},
		{"just above the open boundary", 5.01, TierOpen},
		{"exactly open boundary falls to moderate", 5.0, TierModerate},
		{"moderate", 3.5, TierModerate},
		{"just above the tight boundary", 2.01, TierModerate},
		{"exactly tight boundary falls to tight", 2.0, TierTight},
		{"tight coverage", 0.4, TierTight},
		{"zero distance", 0, TierTight},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ClassifySeparation(tc.distance, 5.0, 2.0))
		})
	}
}

func TestNewRendererKeepsStyleWithNilPalette(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Style{
		LabelFontSize:   0.4,
		MarkerRadius:    9,
		TrailAlpha:      0.3,
		SeparationOpen:  7.0,
		SeparationTight: 3.0,
		SpeedThreshold:  1.2,
	})
	assert.Equal(t, 9, r.style.MarkerRadius)
	assert.InDelta(t, 0.4, r.style.LabelFontSize, 1e-12)
	assert.InDelta(t, 7.0, r.style.SeparationOpen, 1e-12)
	assert.Equal(t, DefaultStyle().Colors["ball"], r.style.Colors["ball"])
}

func TestNearestOpponentUsesGroundDistance(t *testing.T) {
	t.Parallel()

	// Opponent A is nearest in ground yards; opponent B is nearest in pixel
	// space (projective compression near the far sideline). Ground distance
	// must win.
	target := State{Entity: "r1", Ground: calibration.Point{X: 50, Y: 20}, Pixel: image.Pt(500, 300), Role: RoleTarget}
	states := []State{
		target,
		{Entity: "dA", Ground: calibration.Point{X: 52, Y: 20}, Pixel: image.Pt(900, 300), Role: RoleOpposing},
		{Entity: "dB", Ground: calibration.Point{X: 56, Y: 24}, Pixel: image.Pt(510, 302), Role: RoleOpposing},
		{Entity: "teammate", Ground: calibration.Point{X: 50.5, Y: 20}, Pixel: image.Pt(501, 300), Role: RoleNeutral},
	}

	idx := NearestOpponent(target, states)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, tracking.EntityID("dA"), states[idx].Entity)
}

func TestNearestOpponentNoOpposition(t *testing.T) {
	t.Parallel()
	target := State{Entity: "r1", Role: RoleTarget}
	assert.Equal(t, -1, NearestOpponent(target, []State{target}))
}

func renderFixture() ([]State, tracking.PlayMetadata) {
	jersey := 87
	states := []State{
		{
			Entity: "r1", Club: "KC", Jersey: &jersey,
			Pixel: image.Pt(300, 200), Ground: calibration.Point{X: 50, Y: 20},
			Speed: 6.2, Dir: 45, Role: RoleTarget,
		},
		{
			Entity: "d1", Club: "BUF",
			Pixel: image.Pt(340, 220), Ground: calibration.Point{X: 53, Y: 21},
			Speed: 5.8, Dir: 40, Role: RoleOpposing,
		},
		{
			Entity: tracking.BallEntity, Club: "football",
			Pixel: image.Pt(260, 150), Ground: calibration.Point{X: 46, Y: 18},
			Speed: 19.5, Role: RoleNeutral,
		},
	}
	meta := tracking.PlayMetadata{
		PossessionTeam: "KC", DefensiveTeam: "BUF", Quarter: 2, Down: 1, YardsToGo: 10,
	}
	return states, meta
}

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultStyle())
	states, meta := renderFixture()
	trails := map[tracking.EntityID][]image.Point{
		"r1": {image.Pt(280, 190), image.Pt(290, 195), image.Pt(300, 200)},
	}

	render := func() []byte {
		img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer img.Close()
		r.Render(&img, states, trails, meta)
		buf, err := img.ToBytes()
		require.NoError(t, err)
		out := make([]byte, len(buf))
		copy(out, buf)
		return out
	}

	assert.Equal(t, render(), render(), "identical inputs must produce identical pixels")
}

func TestRenderDrawsMarkers(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultStyle())
	states, meta := renderFixture()

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	before := nonZeroPixels(img)
	r.Render(&img, states, nil, meta)
	after := nonZeroPixels(img)

	assert.Greater(t, after, before, "rendering must touch pixels")
}

func TestRenderLeavesFarCornerUntouched(t *testing.T) {
	t.Parallel()
	r := NewRenderer(DefaultStyle())
	states, meta := renderFixture()

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	r.Render(&img, states, nil, meta)

	// Nothing in the fixture draws near the bottom-right corner.
	v := img.GetVecbAt(479, 639)
	assert.Equal(t, uint8(0), v[0])
	assert.Equal(t, uint8(0), v[1])
	assert.Equal(t, uint8(0), v[2])
}

// nonZeroPixels collapses a BGR mat to one channel and counts lit pixels.
func nonZeroPixels(img gocv.Mat) int {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}
