// Package timesync aligns the 10 Hz tracking clock with the video frame
// clock. A SyncMap of hand-identified anchor pairs defines a piecewise-linear
// mapping between the two domains; a Synchronizer resamples the tracking
// channels onto the video frame rate and answers per-video-frame queries.
package timesync

import "fmt"

// SyncPoint pairs a tracking frame id with the video frame index showing the
// same instant.
type SyncPoint struct {
	Sample int // tracking frame id
	Frame  int // video frame index
}

// SyncMap is an ordered set of at least two sync points, strictly increasing
// on both axes. Immutable after construction.
type SyncMap struct {
	points []SyncPoint
}

// NewSyncMap validates the anchor set. Fewer than two points, or any pair
// that does not increase on both axes, is a SyncError.
func NewSyncMap(points []SyncPoint) (*SyncMap, error) {
	if len(points) < 2 {
		return nil, &SyncError{Reason: fmt.Sprintf("need at least 2 sync points, got %d", len(points))}
	}
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.Sample <= prev.Sample {
			return nil, &SyncError{Reason: fmt.Sprintf(
				"sample indices not strictly increasing: %d after %d", cur.Sample, prev.Sample)}
		}
		if cur.Frame <= prev.Frame {
			return nil, &SyncError{Reason: fmt.Sprintf(
				"video frames not strictly increasing: %d after %d", cur.Frame, prev.Frame)}
		}
	}
	cp := make([]SyncPoint, len(points))
	copy(cp, points)
	return &SyncMap{points: cp}, nil
}

// Points returns a copy of the anchor pairs.
func (m *SyncMap) Points() []SyncPoint {
	cp := make([]SyncPoint, len(m.points))
	copy(cp, m.points)
	return cp
}

// VideoFrameFor maps a (possibly fractional) tracking frame id to the video
// frame domain. Outside the outermost anchors the nearest segment's slope
// extrapolates; such results are flagged, never dropped.
func (m *SyncMap) VideoFrameFor(sample float64) (frame float64, extrapolated bool) {
	return m.interpolate(sample, func(p SyncPoint) (float64, float64) {
		return float64(p.Sample), float64(p.Frame)
	})
}

// SampleFor is the inverse mapping, video frame index to tracking frame id.
func (m *SyncMap) SampleFor(videoFrame float64) (sample float64, extrapolated bool) {
	return m.interpolate(videoFrame, func(p SyncPoint) (float64, float64) {
		return float64(p.Frame), float64(p.Sample)
	})
}

// interpolate evaluates the piecewise-linear function defined by the anchors,
// with axes selected by pick (input axis first). Strict monotonicity of the
// anchors guarantees positive segment slopes, so the result is monotone in
// the input.
func (m *SyncMap) interpolate(in float64, pick func(SyncPoint) (float64, float64)) (float64, bool) {
	n := len(m.points)
	firstIn, _ := pick(m.points[0])
	lastIn, _ := pick(m.points[n-1])

	seg := func(a, b SyncPoint) float64 {
		ax, ay := pick(a)
		bx, by := pick(b)
		t := (in - ax) / (bx - ax)
		return ay + t*(by-ay)
	}

	switch {
	case in < firstIn:
		return seg(m.points[0], m.points[1]), true
	case in > lastIn:
		return seg(m.points[n-2], m.points[n-1]), true
	}
	for i := 0; i < n-1; i++ {
		bx, _ := pick(m.points[i+1])
		if in <= bx {
			return seg(m.points[i], m.points[i+1]), false
		}
	}
	// Unreachable: in <= lastIn is handled by the loop.
	return seg(m.points[n-2], m.points[n-1]), false
}

// SyncError reports a degenerate or non-monotonic sync configuration, or a
// window/rate combination that cannot be resampled.
type SyncError struct {
	Reason string
}

func (e *SyncError) Error() string {
	return "timesync: " + e.Reason
}
