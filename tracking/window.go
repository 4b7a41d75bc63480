package tracking

import "fmt"

// ExtractWindow isolates the frames bounded by the first occurrence of
// startEvent and the first subsequent occurrence of endEvent, inclusive.
// Events are assumed unique per play in well-formed input; with duplicates the
// first occurrence after the previous anchor wins.
func ExtractWindow(table *SampleTable, startEvent, endEvent string) (*EventWindow, error) {
	return ExtractWindowAny(table, startEvent, []string{endEvent})
}

// ExtractWindowAny is ExtractWindow with several accepted end events: the
// window closes at the first frame after the start anchor tagged with any of
// them. The source data tags pass arrivals with one of several outcome events,
// so callers usually pass the full outcome list.
func ExtractWindowAny(table *SampleTable, startEvent string, endEvents []string) (*EventWindow, error) {
	if startEvent == "" || len(endEvents) == 0 {
		return nil, &DataIntegrityError{Op: "window", Reason: "start and end events required"}
	}

	accepted := make(map[string]bool, len(endEvents))
	for _, e := range endEvents {
		accepted[e] = true
	}

	start := -1
	for i, f := range table.Frames {
		if f.Event == startEvent {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, &DataIntegrityError{
			Op:     "window",
			Reason: fmt.Sprintf("start event %q not found", startEvent),
		}
	}

	end := -1
	for i := start + 1; i < len(table.Frames); i++ {
		if accepted[table.Frames[i].Event] {
			end = i
			break
		}
	}
	if end < 0 {
		// Distinguish "absent" from "present but before the start anchor" for
		// the error message.
		for i := 0; i < start; i++ {
			if accepted[table.Frames[i].Event] {
				return nil, &DataIntegrityError{
					Op:     "window",
					Reason: fmt.Sprintf("end event precedes start event %q", startEvent),
				}
			}
		}
		return nil, &DataIntegrityError{
			Op:     "window",
			Reason: fmt.Sprintf("no end event (%v) after start event %q", endEvents, startEvent),
		}
	}

	frames := table.Frames[start : end+1]
	if len(frames) < 2 {
		return nil, &DataIntegrityError{Op: "window", Reason: "window holds fewer than two frames"}
	}

	return &EventWindow{
		Frames:     frames,
		StartEvent: startEvent,
		EndEvent:   table.Frames[end].Event,
		StartID:    frames[0].ID,
		EndID:      frames[len(frames)-1].ID,
	}, nil
}
