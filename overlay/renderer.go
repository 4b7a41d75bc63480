// Package overlay draws tracking annotations onto video frames: player
// markers, motion trails, separation lines, speed arrows, and the play info
// panel. Rendering is deterministic for identical inputs, which keeps
// pixel-exact regression tests possible.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"fieldcast/calibration"
	"fieldcast/tracking"
)

// Role classifies an entity for connector-line pairing.
type Role int

const (
	RoleNeutral Role = iota
	RoleTarget       // e.g. the targeted receiver
	RoleOpposing     // e.g. the covering defense
)

// State is one entity's renderable state at one frame. Pixel is the
// calibrated on-screen position; Ground stays in yards because separation
// pairing must use ground-plane distance (pixel distance is biased by
// projective distortion).
type State struct {
	Entity tracking.EntityID
	Club   string
	Jersey *int
	Pixel  image.Point
	Ground calibration.Point
	Speed  float64 // yards/second
	Dir    float64 // heading, degrees
	Role   Role
}

// SeparationTier buckets a target/opponent ground distance for connector
// coloring.
type SeparationTier int

const (
	TierTight    SeparationTier = iota // defender within contest range
	TierModerate                       // contested but throwable
	TierOpen                           // receiver clearly open
)

// ClassifySeparation assigns the tier for a ground distance in yards.
// Boundary values fall to the lower tier: exactly open is TierModerate,
// exactly tight is TierTight.
func ClassifySeparation(distance, open, tight float64) SeparationTier {
	switch {
	case distance > open:
		return TierOpen
	case distance > tight:
		return TierModerate
	default:
		return TierTight
	}
}

// NearestOpponent returns the index of the RoleOpposing state closest to
// target by ground-plane distance, brute force over the ~22 entities on the
// field. Returns -1 when no opposing entity exists.
func NearestOpponent(target State, states []State) int {
	best := -1
	bestDist := math.Inf(1)
	for i, s := range states {
		if s.Role != RoleOpposing {
			continue
		}
		if d := calibration.GroundDistance(target.Ground, s.Ground); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// Style holds the drawing configuration for one run.
type Style struct {
	// Colors keys club tags (and the fallback keys "offense", "defense",
	// "ball") to marker colors.
	Colors map[string]color.RGBA

	LabelFontSize   float64
	MarkerRadius    int
	TrailAlpha      float64
	SeparationOpen  float64 // tier boundary, yards
	SeparationTight float64 // tier boundary, yards
	SpeedThreshold  float64 // yards/s below which no arrow is drawn
}

// DefaultStyle mirrors the broadcast-friendly defaults of the original
// overlay tooling.
func DefaultStyle() Style {
	return Style{
		Colors: map[string]color.RGBA{
			"offense": {R: 255, G: 107, B: 75, A: 255},
			"defense": {R: 78, G: 205, B: 196, A: 255},
			"ball":    {R: 255, G: 217, B: 61, A: 255},
		},
		LabelFontSize:   0.5,
		MarkerRadius:    15,
		TrailAlpha:      0.6,
		SeparationOpen:  5.0,
		SeparationTight: 2.0,
		SpeedThreshold:  0.5,
	}
}

const yardsPerSecToMPH = 2.04545

var (
	white     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black     = color.RGBA{A: 255}
	tierColor = map[SeparationTier]color.RGBA{
		TierOpen:     {G: 255, A: 255},
		TierModerate: {R: 255, G: 255, A: 255},
		TierTight:    {R: 255, A: 255},
	}
)

// Renderer draws one frame's overlay. It holds only immutable style state,
// so a single Renderer is shared by all frame workers.
type Renderer struct {
	style Style
}

// NewRenderer returns a renderer for the given style. A nil palette falls
// back to the default colors; every other field is taken as given.
func NewRenderer(style Style) *Renderer {
	if style.Colors == nil {
		style.Colors = DefaultStyle().Colors
	}
	return &Renderer{style: style}
}

// Render draws all overlay layers onto img in place: trails underneath,
// then separation lines, markers, speed arrows, and the info panel on top.
// Pure with respect to its inputs; trail history arrives precomputed.
func (r *Renderer) Render(img *gocv.Mat, states []State, trails map[tracking.EntityID][]image.Point, meta tracking.PlayMetadata) {
	for _, st := range states {
		if pts, ok := trails[st.Entity]; ok {
			r.drawTrail(img, pts, r.colorFor(st))
		}
	}
	r.drawSeparations(img, states)
	for _, st := range states {
		r.drawMarker(img, st)
	}
	for _, st := range states {
		if st.Speed > r.style.SpeedThreshold && st.Entity != tracking.BallEntity {
			r.drawSpeedArrow(img, st)
		}
	}
	r.drawInfoPanel(img, meta)
}

func (r *Renderer) colorFor(st State) color.RGBA {
	if c, ok := r.style.Colors[st.Club]; ok {
		return c
	}
	switch {
	case st.Entity == tracking.BallEntity:
		if c, ok := r.style.Colors["ball"]; ok {
			return c
		}
	case st.Role == RoleOpposing:
		if c, ok := r.style.Colors["defense"]; ok {
			return c
		}
	default:
		if c, ok := r.style.Colors["offense"]; ok {
			return c
		}
	}
	return white
}

// drawMarker draws the filled entity circle with a white ring and the
// centered jersey number.
func (r *Renderer) drawMarker(img *gocv.Mat, st State) {
	radius := r.style.MarkerRadius
	if st.Entity == tracking.BallEntity {
		radius = radius / 2
	}
	c := r.colorFor(st)

	gocv.Circle(img, st.Pixel, radius, c, -1)
	gocv.Circle(img, st.Pixel, radius, white, 2)

	if st.Jersey == nil {
		return
	}
	text := fmt.Sprintf("%d", *st.Jersey)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, r.style.LabelFontSize, 2)
	at := image.Pt(st.Pixel.X-size.X/2, st.Pixel.Y+size.Y/2)
	gocv.PutText(img, text, at, gocv.FontHersheySimplex, r.style.LabelFontSize, black, 3)
	gocv.PutText(img, text, at, gocv.FontHersheySimplex, r.style.LabelFontSize, white, 2)
}

// drawTrail draws the polyline of recent positions with opacity decaying
// from the newest segment back to the oldest, blended per segment the way
// the original overlay does.
func (r *Renderer) drawTrail(img *gocv.Mat, pts []image.Point, c color.RGBA) {
	if len(pts) < 2 {
		return
	}
	for i := 0; i < len(pts)-1; i++ {
		// pts are oldest first; newer segments get more opacity.
		segAlpha := r.style.TrailAlpha * float64(i+2) / float64(len(pts))
		if segAlpha > 1 {
			segAlpha = 1
		}
		blend := img.Clone()
		gocv.Line(&blend, pts[i], pts[i+1], c, 3)
		gocv.AddWeighted(blend, segAlpha, *img, 1-segAlpha, 0, img)
		blend.Close()
	}
}

// drawSeparations connects each target-role entity to its nearest opposing
// entity, color-coded by ground-distance tier, with the distance labelled at
// the midpoint.
func (r *Renderer) drawSeparations(img *gocv.Mat, states []State) {
	for _, st := range states {
		if st.Role != RoleTarget {
			continue
		}
		oi := NearestOpponent(st, states)
		if oi < 0 {
			continue
		}
		opp := states[oi]
		dist := calibration.GroundDistance(st.Ground, opp.Ground)
		tier := ClassifySeparation(dist, r.style.SeparationOpen, r.style.SeparationTight)
		c := tierColor[tier]

		gocv.Line(img, st.Pixel, opp.Pixel, c, 2)

		mid := image.Pt((st.Pixel.X+opp.Pixel.X)/2, (st.Pixel.Y+opp.Pixel.Y)/2)
		text := fmt.Sprintf("%.1f yd", dist)
		size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.6, 2)
		bg := image.Rect(mid.X-5, mid.Y-size.Y-5, mid.X+size.X+5, mid.Y+5)
		gocv.Rectangle(img, bg, black, -1)
		gocv.PutText(img, text, mid, gocv.FontHersheySimplex, 0.6, c, 2)
	}
}

// drawSpeedArrow draws a heading arrow whose length grows with speed, capped
// at 50px, plus an mph label.
func (r *Renderer) drawSpeedArrow(img *gocv.Mat, st State) {
	c := r.colorFor(st)

	length := math.Min(st.Speed*5, 50)
	rad := st.Dir * math.Pi / 180
	end := image.Pt(
		st.Pixel.X+int(math.Round(length*math.Cos(rad))),
		st.Pixel.Y+int(math.Round(length*math.Sin(rad))),
	)
	gocv.ArrowedLine(img, st.Pixel, end, c, 2)

	text := fmt.Sprintf("%.1f mph", st.Speed*yardsPerSecToMPH)
	at := image.Pt(st.Pixel.X+5, st.Pixel.Y-10)
	gocv.PutText(img, text, at, gocv.FontHersheySimplex, 0.4, black, 2)
	gocv.PutText(img, text, at, gocv.FontHersheySimplex, 0.4, c, 1)
}

// drawInfoPanel draws the fixed-position block of play metadata in the upper
// left, over a semi-transparent background.
func (r *Renderer) drawInfoPanel(img *gocv.Mat, meta tracking.PlayMetadata) {
	pairs := meta.Pairs()
	if len(pairs) == 0 {
		return
	}

	const (
		x          = 20
		y          = 40
		lineHeight = 30
		width      = 280
	)

	bg := image.Rect(x-10, y-30, x+width, y+len(pairs)*lineHeight-10)
	blend := img.Clone()
	gocv.Rectangle(&blend, bg, black, -1)
	gocv.AddWeighted(blend, 0.7, *img, 0.3, 0, img)
	blend.Close()

	cur := y
	for _, p := range pairs {
		gocv.PutText(img, fmt.Sprintf("%s: %s", p.Label, p.Value),
			image.Pt(x, cur), gocv.FontHersheySimplex, 0.7, white, 2)
		cur += lineHeight
	}
}
