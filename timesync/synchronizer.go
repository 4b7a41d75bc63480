package timesync

import (
	"fmt"
	"math"
	"sort"

	"fieldcast/tracking"
)

// EntityState is one entity's interpolated state at one resampled step, still
// in ground (yard) coordinates.
type EntityState struct {
	Entity tracking.EntityID
	Club   string
	Jersey *int

	X, Y   float64
	Speed  float64
	Accel  float64
	Orient float64
	Dir    float64
}

// ResampledFrame holds all entity states at one resampled step.
type ResampledFrame struct {
	Index      int     // 0-based resample step
	SampleID   float64 // fractional tracking frame id at this step
	TimeOffset float64 // seconds since the window start
	States     []EntityState
}

// ResampledSeries is the full resampled window plus the sync mapping needed
// to answer per-video-frame queries. Read-only after construction; safe to
// share across frame workers.
type ResampledSeries struct {
	Frames    []ResampledFrame
	TargetFPS int

	syncMap *SyncMap
	startID float64
	endID   float64
	step    float64 // resample step in tracking-frame-id units
}

// Synchronizer binds an event window to a validated sync map.
type Synchronizer struct {
	window  *tracking.EventWindow
	syncMap *SyncMap
}

// New validates the pairing eagerly: a window that spans no time cannot be
// resampled and fails here, before any frame work starts.
func New(window *tracking.EventWindow, m *SyncMap) (*Synchronizer, error) {
	if window == nil || m == nil {
		return nil, &SyncError{Reason: "window and sync map required"}
	}
	if window.Elapsed() <= 0 {
		return nil, &SyncError{Reason: "event window spans no time"}
	}
	return &Synchronizer{window: window, syncMap: m}, nil
}

// Resample produces round(duration*targetFPS) evenly spaced steps across the
// window. Continuous channels interpolate linearly (clamped to recorded
// extrema, so no overshoot); club and jersey carry forward from the most
// recent original sample at or before each step. Angles take the shortest
// arc.
func (s *Synchronizer) Resample(targetFPS int) (*ResampledSeries, error) {
	if targetFPS <= 0 {
		return nil, &SyncError{Reason: fmt.Sprintf("target fps must be positive, got %d", targetFPS)}
	}

	duration := s.window.Elapsed()
	n := int(math.Round(duration * float64(targetFPS)))
	if n < 2 {
		return nil, &SyncError{Reason: fmt.Sprintf(
			"window of %.2fs at %d fps resamples to %d steps; need at least 2", duration, targetFPS, n)}
	}

	startID := float64(s.window.StartID)
	endID := float64(s.window.EndID)
	step := (endID - startID) / float64(n-1)

	frames := make([]ResampledFrame, n)
	for i := range frames {
		frac := float64(i) / float64(n-1)
		frames[i] = ResampledFrame{
			Index:      i,
			SampleID:   startID + frac*(endID-startID),
			TimeOffset: frac * duration,
		}
	}

	for _, id := range s.windowEntities() {
		series := s.entitySeries(id)
		if len(series.ids) < 2 {
			// A single detection cannot be interpolated; the entity is
			// omitted rather than frozen in place.
			continue
		}
		for i := range frames {
			frames[i].States = append(frames[i].States, series.at(frames[i].SampleID))
		}
	}

	return &ResampledSeries{
		Frames:    frames,
		TargetFPS: targetFPS,
		syncMap:   s.syncMap,
		startID:   startID,
		endID:     endID,
		step:      step,
	}, nil
}

func (s *Synchronizer) windowEntities() []tracking.EntityID {
	seen := make(map[tracking.EntityID]bool)
	var out []tracking.EntityID
	for _, f := range s.window.Frames {
		for _, smp := range f.Samples {
			if !seen[smp.Entity] {
				seen[smp.Entity] = true
				out = append(out, smp.Entity)
			}
		}
	}
	return out
}

// entitySeries gathers one entity's per-frame channel values in frame order.
type entitySeries struct {
	entity tracking.EntityID
	ids    []float64
	x, y   []float64
	speed  []float64
	accel  []float64
	orient []float64
	dir    []float64
	club   []string
	jersey []*int
}

func (s *Synchronizer) entitySeries(id tracking.EntityID) *entitySeries {
	es := &entitySeries{entity: id}
	for _, f := range s.window.Frames {
		smp, ok := f.Sample(id)
		if !ok {
			continue
		}
		es.ids = append(es.ids, float64(f.ID))
		es.x = append(es.x, smp.X)
		es.y = append(es.y, smp.Y)
		es.speed = append(es.speed, smp.Speed)
		es.accel = append(es.accel, smp.Accel)
		es.orient = append(es.orient, smp.Orient)
		es.dir = append(es.dir, smp.Dir)
		es.club = append(es.club, smp.Club)
		es.jersey = append(es.jersey, smp.Jersey)
	}
	return es
}

// at interpolates the entity's state at a fractional tracking frame id.
func (es *entitySeries) at(sampleID float64) EntityState {
	// Clamp outside the entity's recorded range: endpoint values carry, so
	// interpolation never overshoots recorded extrema.
	clamped := math.Min(math.Max(sampleID, es.ids[0]), es.ids[len(es.ids)-1])

	// Bracketing segment: ids[j-1] <= clamped <= ids[j].
	j := sort.SearchFloat64s(es.ids, clamped)
	if j == 0 {
		j = 1
	}
	a, b := es.ids[j-1], es.ids[j]
	t := 0.0
	if b > a {
		t = (clamped - a) / (b - a)
	}

	lerp := func(vals []float64) float64 {
		return vals[j-1] + t*(vals[j]-vals[j-1])
	}

	// Categorical fields carry forward from the sample at or before the step.
	carry := j - 1
	if t >= 1 {
		carry = j
	}

	return EntityState{
		Entity: es.entity,
		Club:   es.club[carry],
		Jersey: es.jersey[carry],
		X:      lerp(es.x),
		Y:      lerp(es.y),
		Speed:  lerp(es.speed),
		Accel:  lerp(es.accel),
		Orient: lerpAngle(es.orient[j-1], es.orient[j], t),
		Dir:    lerpAngle(es.dir[j-1], es.dir[j], t),
	}
}

// lerpAngle interpolates degrees over the shortest arc and normalizes to
// [0, 360).
func lerpAngle(a, b, t float64) float64 {
	delta := math.Mod(b-a+540, 360) - 180
	v := math.Mod(a+t*delta, 360)
	if v < 0 {
		v += 360
	}
	return v
}

// FrameAt returns the resampled states nearest the tracking time mapped from
// the given video frame. Rounding ties resolve toward the earlier step. The
// second result reports low confidence (the mapping extrapolated beyond the
// outermost sync anchors); the third reports whether a mapping exists within
// tolerance at all.
func (rs *ResampledSeries) FrameAt(videoFrame int) (*ResampledFrame, bool, bool) {
	sampleID, extrapolated := rs.syncMap.SampleFor(float64(videoFrame))

	// One resample step of slack on each side; beyond that the frame is
	// outside the mapped window and passes through unmodified.
	if sampleID < rs.startID-rs.step || sampleID > rs.endID+rs.step {
		return nil, false, false
	}

	pos := (sampleID - rs.startID) / rs.step
	idx := int(math.Ceil(pos - 0.5)) // round half toward the earlier step
	if idx < 0 {
		idx = 0
	}
	if idx > len(rs.Frames)-1 {
		idx = len(rs.Frames) - 1
	}
	return &rs.Frames[idx], extrapolated, true
}

// MappedVideoRange reports the inclusive video frame span that maps inside
// the window (extrapolated edges included), for pre-pass sizing.
func (rs *ResampledSeries) MappedVideoRange() (first, last int) {
	lo, _ := rs.syncMap.VideoFrameFor(rs.startID - rs.step)
	hi, _ := rs.syncMap.VideoFrameFor(rs.endID + rs.step)
	return int(math.Ceil(lo)), int(math.Floor(hi))
}
