package timesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcast/tracking"
)

func testWindow(t *testing.T, firstID, lastID int) *tracking.EventWindow {
	t.Helper()
	base := time.Date(2025, 11, 2, 20, 15, 0, 0, time.UTC)
	jersey := 87

	var frames []tracking.Frame
	for id := firstID; id <= lastID; id++ {
		ts := base.Add(time.Duration(id-firstID) * 100 * time.Millisecond)
		frames = append(frames, tracking.Frame{
			ID:   id,
			Time: ts,
			Samples: []tracking.PositionSample{
				{Entity: "p1", Club: "KC", Jersey: &jersey, X: float64(id), Y: 20, Speed: float64(id) / 10, Dir: 90, Timestamp: ts},
				{Entity: "p2", Club: "BUF", X: float64(id) + 5, Y: 25, Speed: 3, Dir: 270, Timestamp: ts},
			},
		})
	}
	frames[0].Event = "pass_forward"
	frames[len(frames)-1].Event = "pass_arrived"

	table, err := tracking.NewSampleTable(1, 1, frames)
	require.NoError(t, err)
	w, err := tracking.ExtractWindow(table, "pass_forward", "pass_arrived")
	require.NoError(t, err)
	return w
}

func TestNewSyncMapValidation(t *testing.T) {
	t.Parallel()

	t.Run("accepts strictly increasing anchors", func(t *testing.T) {
		t.Parallel()
		m, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 45}, {Sample: 34, Frame: 117}})
		require.NoError(t, err)
		assert.Len(t, m.Points(), 2)
	})

	t.Run("rejects a single anchor", func(t *testing.T) {
		t.Parallel()
		_, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 45}})
		var serr *SyncError
		require.ErrorAs(t, err, &serr)
	})

	t.Run("rejects decreasing sample indices", func(t *testing.T) {
		t.Parallel()
		_, err := NewSyncMap([]SyncPoint{{Sample: 34, Frame: 45}, {Sample: 10, Frame: 117}})
		var serr *SyncError
		require.ErrorAs(t, err, &serr)
		assert.Contains(t, serr.Reason, "sample indices")
	})

	t.Run("rejects non-increasing video frames", func(t *testing.T) {
		t.Parallel()
		_, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 45}, {Sample: 34, Frame: 45}})
		var serr *SyncError
		require.ErrorAs(t, err, &serr)
		assert.Contains(t, serr.Reason, "video frames")
	})
}

func TestSyncMapInterpolation(t *testing.T) {
	t.Parallel()
	m, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 40}, {Sample: 20, Frame: 70}, {Sample: 30, Frame: 90}})
	require.NoError(t, err)

	t.Run("maps anchors exactly", func(t *testing.T) {
		t.Parallel()
		f, extrap := m.VideoFrameFor(20)
		assert.InDelta(t, 70, f, 1e-9)
		assert.False(t, extrap)
	})

	t.Run("interpolates within a segment", func(t *testing.T) {
		t.Parallel()
		f, extrap := m.VideoFrameFor(15)
		assert.InDelta(t, 55, f, 1e-9)
		assert.False(t, extrap)

		s, extrap := m.SampleFor(80)
		assert.InDelta(t, 25, s, 1e-9)
		assert.False(t, extrap)
	})

	t.Run("extrapolates with the nearest segment slope and flags it", func(t *testing.T) {
		t.Parallel()
		f, extrap := m.VideoFrameFor(5) // slope 3 on first segment
		assert.InDelta(t, 25, f, 1e-9)
		assert.True(t, extrap)

		f, extrap = m.VideoFrameFor(35) // slope 2 on last segment
		assert.InDelta(t, 100, f, 1e-9)
		assert.True(t, extrap)
	})

	t.Run("mapping is monotone", func(t *testing.T) {
		t.Parallel()
		prev := -1e18
		for frame := -20.0; frame <= 150; frame++ {
			s, _ := m.SampleFor(frame)
			assert.GreaterOrEqual(t, s, prev)
			prev = s
		}
	})
}

func TestResample(t *testing.T) {
	t.Parallel()
	w := testWindow(t, 10, 34) // 25 samples, 2.4s
	m, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 45}, {Sample: 34, Frame: 117}})
	require.NoError(t, err)
	s, err := New(w, m)
	require.NoError(t, err)

	t.Run("step count is round(duration*fps)", func(t *testing.T) {
		t.Parallel()
		series, err := s.Resample(30)
		require.NoError(t, err)
		assert.Len(t, series.Frames, 72) // round(2.4 * 30)
	})

	t.Run("timestamps strictly increase", func(t *testing.T) {
		t.Parallel()
		series, err := s.Resample(30)
		require.NoError(t, err)
		for i := 1; i < len(series.Frames); i++ {
			assert.Greater(t, series.Frames[i].TimeOffset, series.Frames[i-1].TimeOffset)
			assert.Greater(t, series.Frames[i].SampleID, series.Frames[i-1].SampleID)
		}
	})

	t.Run("continuous channels interpolate linearly", func(t *testing.T) {
		t.Parallel()
		series, err := s.Resample(30)
		require.NoError(t, err)
		// p1's x equals its tracking frame id, so interpolation must
		// reproduce the fractional sample id at every step.
		for _, f := range series.Frames {
			st := stateFor(t, f, "p1")
			assert.InDelta(t, f.SampleID, st.X, 1e-9)
		}
	})

	t.Run("interpolation never overshoots recorded extrema", func(t *testing.T) {
		t.Parallel()
		series, err := s.Resample(60)
		require.NoError(t, err)
		for _, f := range series.Frames {
			st := stateFor(t, f, "p1")
			assert.GreaterOrEqual(t, st.X, 10.0)
			assert.LessOrEqual(t, st.X, 34.0)
		}
	})

	t.Run("categorical fields carry forward", func(t *testing.T) {
		t.Parallel()
		series, err := s.Resample(30)
		require.NoError(t, err)
		for _, f := range series.Frames {
			st := stateFor(t, f, "p1")
			assert.Equal(t, "KC", st.Club)
			require.NotNil(t, st.Jersey)
			assert.Equal(t, 87, *st.Jersey)
		}
	})

	t.Run("rejects non-positive fps", func(t *testing.T) {
		t.Parallel()
		_, err := s.Resample(0)
		var serr *SyncError
		require.ErrorAs(t, err, &serr)
	})
}

func TestFrameAt(t *testing.T) {
	t.Parallel()
	w := testWindow(t, 10, 34)
	m, err := NewSyncMap([]SyncPoint{{Sample: 10, Frame: 45}, {Sample: 34, Frame: 117}})
	require.NoError(t, err)
	s, err := New(w, m)
	require.NoError(t, err)
	series, err := s.Resample(30)
	require.NoError(t, err)

	t.Run("anchor frames map to window edges", func(t *testing.T) {
		t.Parallel()
		f, low, ok := series.FrameAt(45)
		require.True(t, ok)
		assert.False(t, low)
		assert.Equal(t, 0, f.Index)

		f, low, ok = series.FrameAt(117)
		require.True(t, ok)
		assert.False(t, low)
		assert.Equal(t, len(series.Frames)-1, f.Index)
	})

	t.Run("monotone in video frame index", func(t *testing.T) {
		t.Parallel()
		prev := -1
		for vf := 40; vf <= 122; vf++ {
			f, _, ok := series.FrameAt(vf)
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, f.Index, prev)
			prev = f.Index
		}
	})

	t.Run("frames far outside the window have no mapping", func(t *testing.T) {
		t.Parallel()
		_, _, ok := series.FrameAt(0)
		assert.False(t, ok)
		_, _, ok = series.FrameAt(500)
		assert.False(t, ok)
	})

	t.Run("extrapolated frames are low confidence, not dropped", func(t *testing.T) {
		t.Parallel()
		f, low, ok := series.FrameAt(44)
		require.True(t, ok)
		assert.True(t, low)
		assert.Equal(t, 0, f.Index)
	})
}

func TestLerpAngleShortestArc(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, lerpAngle(350, 10, 0.5), 1e-9)
	assert.InDelta(t, 355, lerpAngle(350, 10, 0.25), 1e-9)
	assert.InDelta(t, 90, lerpAngle(90, 90, 0.7), 1e-9)
	assert.InDelta(t, 180, lerpAngle(170, 190, 0.5), 1e-9)
}

func stateFor(t *testing.T, f ResampledFrame, id tracking.EntityID) EntityState {
	t.Helper()
	for _, st := range f.States {
		if st.Entity == id {
			return st
		}
	}
	t.Fatalf("entity %s missing from frame %d", id, f.Index)
	return EntityState{}
}
