package compositor

import "fmt"

// MediaIOError reports a recoverable or frame-scoped media failure: open,
// decode, encode, or a per-frame timeout. Frame is -1 when the failure is
// not tied to one frame.
type MediaIOError struct {
	Op    string
	Frame int
	Err   error
}

func (e *MediaIOError) Error() string {
	if e.Frame >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("media i/o: %s (frame %d): %v", e.Op, e.Frame, e.Err)
		}
		return fmt.Sprintf("media i/o: %s (frame %d)", e.Op, e.Frame)
	}
	if e.Err != nil {
		return fmt.Sprintf("media i/o: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media i/o: %s", e.Op)
}

func (e *MediaIOError) Unwrap() error { return e.Err }

// FatalIOError aborts a run when the input degrades past the configured
// fault budget.
type FatalIOError struct {
	Reason string
	Faults int
	Frames int
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("fatal i/o: %s (%d faults over %d frames)", e.Reason, e.Faults, e.Frames)
}
