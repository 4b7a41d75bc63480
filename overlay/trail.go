package overlay

import (
	"image"
	"math"

	"fieldcast/calibration"
	"fieldcast/timesync"
	"fieldcast/tracking"
)

// TrailBuffer is a fixed-capacity ring of an entity's recent rendered pixel
// positions. It advances exactly once per processed frame, in frame order,
// and is reset at the start of each clip.
type TrailBuffer struct {
	buf  []image.Point
	head int
	size int
}

// NewTrailBuffer returns a buffer holding up to capacity positions.
func NewTrailBuffer(capacity int) *TrailBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TrailBuffer{buf: make([]image.Point, capacity)}
}

// Push appends the newest position, evicting the oldest once full.
func (t *TrailBuffer) Push(p image.Point) {
	t.buf[t.head] = p
	t.head = (t.head + 1) % len(t.buf)
	if t.size < len(t.buf) {
		t.size++
	}
}

// Points snapshots the buffered positions, oldest first.
func (t *TrailBuffer) Points() []image.Point {
	out := make([]image.Point, t.size)
	start := t.head - t.size
	if start < 0 {
		start += len(t.buf)
	}
	for i := 0; i < t.size; i++ {
		out[i] = t.buf[(start+i)%len(t.buf)]
	}
	return out
}

// Len reports how many positions are buffered.
func (t *TrailBuffer) Len() int { return t.size }

// Reset empties the buffer for a new clip.
func (t *TrailBuffer) Reset() {
	t.head = 0
	t.size = 0
}

// FrameTrails holds the precomputed trail polyline for every entity at every
// mapped video frame, oldest point first. Trails require strictly sequential
// advancement, so they are materialized in one sequential pre-pass here; the
// render stage then stays per-frame pure and can run on parallel workers.
type FrameTrails map[int]map[tracking.EntityID][]image.Point

// PrecomputeTrails walks video frames firstFrame..lastFrame in order,
// advancing one trail buffer per entity on every mapped frame, and snapshots
// the polylines per frame. Unmapped frames produce no entry.
func PrecomputeTrails(series *timesync.ResampledSeries, calib *calibration.Mapping, firstFrame, lastFrame, trailLen int) FrameTrails {
	trails := make(FrameTrails)
	buffers := make(map[tracking.EntityID]*TrailBuffer)

	for vf := firstFrame; vf <= lastFrame; vf++ {
		mapped, _, ok := series.FrameAt(vf)
		if !ok {
			continue
		}
		snapshot := make(map[tracking.EntityID][]image.Point, len(mapped.States))
		for _, st := range mapped.States {
			buf, ok := buffers[st.Entity]
			if !ok {
				buf = NewTrailBuffer(trailLen)
				buffers[st.Entity] = buf
			}
			px := calib.ToPixel(calibration.Point{X: st.X, Y: st.Y})
			buf.Push(image.Pt(int(math.Round(px.X)), int(math.Round(px.Y))))
			snapshot[st.Entity] = buf.Points()
		}
		trails[vf] = snapshot
	}
	return trails
}
