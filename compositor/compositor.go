package compositor

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"gocv.io/x/gocv"

	"fieldcast/calibration"
	"fieldcast/overlay"
	"fieldcast/timesync"
	"fieldcast/tracking"
)

const (
	// Maximum frames the reorder buffer may hold, regardless of available
	// memory.
	maxPendingFrames = 120

	faultLogLines = 100
)

// RoleFunc assigns the rendering role for an entity state. Nil means every
// entity renders neutral.
type RoleFunc func(timesync.EntityState) overlay.Role

// Options configures one composite run.
type Options struct {
	InputPath  string
	OutputPath string

	Codec              string        // fourcc, "" = "avc1"
	Workers            int           // 0 = NumCPU
	TrailLength        int           // 0 = 10
	FaultAbortFraction float64       // 0 = 0.10; fraction of unreadable frames that aborts
	FrameTimeout       time.Duration // 0 = 10s; per-frame decode deadline

	// Debugf, when set, receives component-tagged progress lines.
	Debugf func(component, message string)
}

// Summary reports what one run did. FramesRead counts frames actually
// decoded; substituted black frames appear only under Substituted.
type Summary struct {
	FramesRead    int
	Overlaid      int
	PassedThrough int
	Substituted   int
	LowConfidence int
	Faults        int
	FaultLines    []string

	Width   int
	Height  int
	FPS     float64
	Elapsed time.Duration
}

// Compositor drives decode → synchronize → calibrate → render → encode for
// one clip. All inputs are validated and immutable before Run starts, so the
// render stage parallelizes without shared mutable state.
type Compositor struct {
	series   *timesync.ResampledSeries
	calib    *calibration.Mapping
	renderer *overlay.Renderer
	meta     tracking.PlayMetadata
	roleFor  RoleFunc
	opts     Options
	faults   *FaultLog
}

// New validates the pipeline inputs eagerly, before any frame is touched.
func New(series *timesync.ResampledSeries, calib *calibration.Mapping, renderer *overlay.Renderer, meta tracking.PlayMetadata, roleFor RoleFunc, opts Options) (*Compositor, error) {
	if series == nil || calib == nil || renderer == nil {
		return nil, fmt.Errorf("compositor: series, calibration and renderer are required")
	}
	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, fmt.Errorf("compositor: input and output paths are required")
	}
	if opts.Codec == "" {
		opts.Codec = "avc1"
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.TrailLength <= 0 {
		opts.TrailLength = 10
	}
	if opts.FaultAbortFraction <= 0 {
		opts.FaultAbortFraction = 0.10
	}
	if opts.FaultAbortFraction > 1 {
		opts.FaultAbortFraction = 1
	}
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = 10 * time.Second
	}
	if roleFor == nil {
		roleFor = func(timesync.EntityState) overlay.Role { return overlay.RoleNeutral }
	}
	return &Compositor{
		series:   series,
		calib:    calib,
		renderer: renderer,
		meta:     meta,
		roleFor:  roleFor,
		opts:     opts,
		faults:   NewFaultLog(faultLogLines),
	}, nil
}

type renderJob struct {
	index int
	frame gocv.Mat
}

// decoded is one capture.Read result. ok false means the capture produced
// nothing (end of stream or a mid-stream fault).
type decoded struct {
	frame gocv.Mat
	ok    bool
}

// Run processes the whole clip. The output always holds exactly as many
// frames as the input: mapped frames carry the overlay, unmapped frames pass
// through untouched, unreadable frames become black substitutes until the
// fault budget is spent. Capture and writer are closed on every exit path.
func (c *Compositor) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	capture, err := gocv.VideoCaptureFile(c.opts.InputPath)
	if err != nil {
		return nil, &MediaIOError{Op: "open input " + c.opts.InputPath, Frame: -1, Err: err}
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	frameCount := int(capture.Get(gocv.VideoCaptureFrameCount))
	if fps <= 0 || width <= 0 || height <= 0 {
		return nil, &MediaIOError{Op: fmt.Sprintf("probe input: unusable stream properties (fps=%.2f %dx%d)", fps, width, height), Frame: -1}
	}
	c.debugf("VIDEO", fmt.Sprintf("input %s: %dx%d @ %.2f fps, %d frames", c.opts.InputPath, width, height, fps, frameCount))

	writer, err := gocv.VideoWriterFile(c.opts.OutputPath, c.opts.Codec, fps, width, height, true)
	if err != nil {
		return nil, &MediaIOError{Op: "open output " + c.opts.OutputPath, Frame: -1, Err: err}
	}
	defer writer.Close()
	if !writer.IsOpened() {
		return nil, &MediaIOError{Op: "open output " + c.opts.OutputPath + ": writer not opened", Frame: -1}
	}

	// Trails need strictly sequential advancement, so they are materialized
	// once up front; the per-frame render stage stays order-independent.
	firstMapped, lastMapped := c.series.MappedVideoRange()
	if firstMapped < 0 {
		firstMapped = 0
	}
	if frameCount > 0 && lastMapped > frameCount-1 {
		lastMapped = frameCount - 1
	}
	trails := overlay.PrecomputeTrails(c.series, c.calib, firstMapped, lastMapped, c.opts.TrailLength)
	c.debugf("VIDEO", fmt.Sprintf("precomputed trails for video frames %d..%d", firstMapped, lastMapped))

	capacity := reorderCapacity(width, height, c.opts.Workers)
	reorder := NewReorderBuffer(0, capacity)
	defer reorder.Close()
	c.debugf("VIDEO", fmt.Sprintf("%d workers, reorder window %d frames", c.opts.Workers, capacity))

	// One goroutine owns the capture for its whole lifetime. A timed-out read
	// abandons the pending result, never the capture itself, so teardown
	// cannot destroy the handle under an in-flight Read. The deferred stop
	// runs before the deferred capture.Close above.
	decodeCh := make(chan decoded)
	stopDecode := make(chan struct{})
	decoderDone := make(chan struct{})
	go func() {
		defer close(decoderDone)
		for {
			frame := gocv.NewMat()
			if ok := capture.Read(&frame); !ok || frame.Empty() {
				frame.Close()
				select {
				case decodeCh <- decoded{}:
					continue
				case <-stopDecode:
					return
				}
			}
			select {
			case decodeCh <- decoded{frame: frame, ok: true}:
			case <-stopDecode:
				frame.Close()
				return
			}
		}
	}()
	defer func() {
		close(stopDecode)
		<-decoderDone
	}()

	var (
		framesRead    atomic.Int64
		overlaid      atomic.Int64
		passedThrough atomic.Int64
		substituted   atomic.Int64
		lowConfidence atomic.Int64
	)

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan renderJob, c.opts.Workers)

	// Reader: sequential decode, black substitution on mid-stream faults.
	g.Go(func() error {
		defer close(jobs)
		for index := 0; frameCount <= 0 || index < frameCount; index++ {
			frame, err := c.readFrame(decodeCh, index)
			if err != nil {
				return err
			}
			if frame == nil {
				if frameCount <= 0 || index >= frameCount {
					return nil // end of stream
				}
				// Mid-stream decode fault: keep the output frame count
				// intact with a black frame, then check the budget.
				c.faults.Add(index, "decode failed, black frame substituted")
				log.Printf("[VIDEO] frame %d unreadable, substituting black", index)
				substituted.Add(1)
				if frac := float64(c.faults.Count()) / float64(frameCount); frac > c.opts.FaultAbortFraction {
					return &FatalIOError{
						Reason: fmt.Sprintf("unreadable frame fraction %.3f exceeds %.3f", frac, c.opts.FaultAbortFraction),
						Faults: c.faults.Count(),
						Frames: frameCount,
					}
				}
				black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
				frame = &black
			} else {
				framesRead.Add(1)
			}
			select {
			case jobs <- renderJob{index: index, frame: *frame}:
			case <-ctx.Done():
				frame.Close()
				return ctx.Err()
			}
		}
		return nil
	})

	// Workers: map, project, render. Unmapped frames pass through untouched.
	var workers sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for job := range jobs {
				mapped, extrapolated, ok := c.series.FrameAt(job.index)
				if !ok {
					passedThrough.Add(1)
				} else {
					if extrapolated {
						lowConfidence.Add(1)
					}
					states := c.projectStates(mapped)
					c.renderer.Render(&job.frame, states, trails[job.index], c.meta)
					overlaid.Add(1)
				}
				if !reorder.Put(job.index, job.frame) {
					job.frame.Close()
					for leftover := range jobs {
						leftover.frame.Close()
					}
					return nil
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		reorder.Close()
		return nil
	})

	// Writer: strictly increasing frame order out of the reorder buffer.
	g.Go(func() error {
		for {
			frame, index, ok := reorder.Take()
			if !ok {
				return nil
			}
			err := writer.Write(frame)
			frame.Close()
			if err != nil {
				reorder.Close()
				return &MediaIOError{Op: "encode", Frame: index, Err: err}
			}
		}
	})

	runErr := g.Wait()

	// On error paths frames can be stranded in the reorder window; release
	// them before reporting.
	reorder.Close()
	for {
		frame, _, ok := reorder.Take()
		if !ok {
			break
		}
		frame.Close()
	}

	summary := &Summary{
		FramesRead:    int(framesRead.Load()),
		Overlaid:      int(overlaid.Load()),
		PassedThrough: int(passedThrough.Load()),
		Substituted:   int(substituted.Load()),
		LowConfidence: int(lowConfidence.Load()),
		Faults:        c.faults.Count(),
		FaultLines:    c.faults.Recent(),
		Width:         width,
		Height:        height,
		FPS:           fps,
		Elapsed:       time.Since(started),
	}
	if runErr != nil {
		return summary, runErr
	}
	c.debugf("VIDEO", fmt.Sprintf("done: %d read, %d overlaid, %d passthrough, %d substituted in %s",
		summary.FramesRead, summary.Overlaid, summary.PassedThrough, summary.Substituted, summary.Elapsed.Round(time.Millisecond)))
	return summary, nil
}

// readFrame waits for the decoder's next result under the per-frame
// deadline. A nil Mat with nil error means the capture produced nothing
// (end of stream or a mid-stream fault, the caller decides which). On
// timeout the pending result stays with the decoder goroutine, which
// releases it at shutdown.
func (c *Compositor) readFrame(decodeCh <-chan decoded, index int) (*gocv.Mat, error) {
	select {
	case res := <-decodeCh:
		if !res.ok {
			return nil, nil
		}
		return &res.frame, nil
	case <-time.After(c.opts.FrameTimeout):
		return nil, &MediaIOError{Op: fmt.Sprintf("decode timed out after %s", c.opts.FrameTimeout), Frame: index}
	}
}

// projectStates turns one resampled frame into pixel-space render states.
func (c *Compositor) projectStates(mapped *timesync.ResampledFrame) []overlay.State {
	states := make([]overlay.State, 0, len(mapped.States))
	for _, es := range mapped.States {
		ground := calibration.Point{X: es.X, Y: es.Y}
		px := c.calib.ToPixel(ground)
		states = append(states, overlay.State{
			Entity: es.Entity,
			Club:   es.Club,
			Jersey: es.Jersey,
			Pixel:  image.Pt(int(math.Round(px.X)), int(math.Round(px.Y))),
			Ground: ground,
			Speed:  es.Speed,
			Dir:    es.Dir,
			Role:   c.roleFor(es),
		})
	}
	return states
}

func (c *Compositor) debugf(component, message string) {
	if c.opts.Debugf != nil {
		c.opts.Debugf(component, message)
	}
}

// reorderCapacity bounds the reorder window by available memory (a quarter
// of it, at three bytes per pixel), the pending-frame ceiling, and a floor
// of one frame per worker plus one.
func reorderCapacity(width, height, workers int) int {
	capacity := maxPendingFrames
	if vm, err := mem.VirtualMemory(); err == nil {
		if frameBytes := uint64(width) * uint64(height) * 3; frameBytes > 0 {
			if byMem := vm.Available / 4 / frameBytes; byMem < uint64(capacity) {
				capacity = int(byMem)
			}
		}
	}
	if floor := workers + 1; capacity < floor {
		capacity = floor
	}
	return capacity
}
