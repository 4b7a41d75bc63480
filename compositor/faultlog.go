package compositor

import (
	"fmt"
	"sync"
	"time"
)

// FaultLog stores the most recent per-frame fault lines in a circular buffer
// so a run summary can show what went wrong without unbounded growth.
type FaultLog struct {
	lines    []string
	maxLines int
	index    int
	full     bool
	count    int
	mutex    sync.RWMutex
}

// NewFaultLog creates a circular buffer keeping the last maxLines faults.
func NewFaultLog(maxLines int) *FaultLog {
	if maxLines < 1 {
		maxLines = 1
	}
	return &FaultLog{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
	}
}

// Add records a fault against a video frame index.
func (fl *FaultLog) Add(frame int, reason string) {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	fl.lines[fl.index] = fmt.Sprintf("[%s] frame %d: %s", time.Now().Format("15:04:05.000"), frame, reason)
	fl.index = (fl.index + 1) % fl.maxLines
	if fl.index == 0 {
		fl.full = true
	}
	fl.count++
}

// Count returns the total number of faults recorded, including ones the
// buffer has since evicted.
func (fl *FaultLog) Count() int {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()
	return fl.count
}

// Recent returns the retained fault lines, oldest first.
func (fl *FaultLog) Recent() []string {
	fl.mutex.RLock()
	defer fl.mutex.RUnlock()

	if !fl.full && fl.index == 0 {
		return []string{}
	}

	var result []string
	if fl.full {
		for i := 0; i < fl.maxLines; i++ {
			idx := (fl.index + i) % fl.maxLines
			if fl.lines[idx] != "" {
				result = append(result, fl.lines[idx])
			}
		}
	} else {
		for i := 0; i < fl.index; i++ {
			if fl.lines[i] != "" {
				result = append(result, fl.lines[i])
			}
		}
	}
	return result
}
