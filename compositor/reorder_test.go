package compositor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocv.io/x/gocv"
)

func testMat() gocv.Mat {
	return gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
}

func TestReorderBufferEmitsInOrder(t *testing.T) {
	rb := NewReorderBuffer(0, 8)
	defer rb.Close()

	// Arrivals deliberately shuffled.
	for _, idx := range []int{2, 0, 3, 1} {
		require.True(t, rb.Put(idx, testMat()))
	}

	for want := 0; want < 4; want++ {
		frame, idx, ok := rb.Take()
		require.True(t, ok)
		assert.Equal(t, want, idx)
		frame.Close()
	}
}

func TestReorderBufferBoundsAdmission(t *testing.T) {
	rb := NewReorderBuffer(0, 2)
	defer rb.Close()

	require.True(t, rb.Put(0, testMat()))
	require.True(t, rb.Put(1, testMat()))

	admitted := make(chan bool)
	go func() {
		admitted <- rb.Put(2, testMat())
	}()

	select {
	case <-admitted:
		t.Fatal("Put(2) must block while the window [0,2) is full")
	case <-time.After(50 * time.Millisecond):
	}

	// Taking index 0 advances the watermark and admits index 2.
	frame, idx, ok := rb.Take()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	frame.Close()

	select {
	case ok := <-admitted:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Put(2) still blocked after watermark advanced")
	}
}

func TestReorderBufferCloseReleasesStranded(t *testing.T) {
	rb := NewReorderBuffer(0, 8)

	require.True(t, rb.Put(0, testMat()))
	require.True(t, rb.Put(2, testMat())) // index 1 never arrives
	rb.Close()

	frame, idx, ok := rb.Take()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	frame.Close()

	_, _, ok = rb.Take()
	assert.False(t, ok, "gap at index 1 ends the stream after close")
	assert.Equal(t, 0, rb.Pending(), "stranded frames must be released")

	m := testMat()
	assert.False(t, rb.Put(3, m), "closed buffer rejects new frames")
	m.Close()
}

func TestFaultLog(t *testing.T) {
	t.Parallel()

	fl := NewFaultLog(3)
	assert.Empty(t, fl.Recent())
	assert.Zero(t, fl.Count())

	for i := 0; i < 5; i++ {
		fl.Add(i, "decode failed")
	}

	assert.Equal(t, 5, fl.Count(), "count includes evicted entries")
	recent := fl.Recent()
	require.Len(t, recent, 3)
	assert.Contains(t, recent[0], "frame 2:")
	assert.Contains(t, recent[2], "frame 4:")
}
