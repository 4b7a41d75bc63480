package tracking

import (
	"fmt"
	"time"
)

// EntityID identifies one tracked entity (player or ball) within a clip.
type EntityID string

// BallEntity is the reserved id for the ball, which carries no player id in
// the source data.
const BallEntity EntityID = "ball"

// PositionSample is one entity's state at one tracking frame. Immutable once
// recorded.
type PositionSample struct {
	Entity EntityID
	Club   string // team/group tag, e.g. "KC", "football"
	Jersey *int   // nil for the ball and for rows without a jersey number

	X, Y   float64 // field position in yards
	Speed  float64 // yards/second
	Accel  float64 // yards/second^2
	Dist   float64 // incremental distance since previous sample, yards
	Orient float64 // orientation angle, degrees 0-360
	Dir    float64 // heading (direction of motion), degrees 0-360

	Timestamp time.Time
}

// Frame groups all entity samples recorded at one tracking frame id. Every
// sample in a frame shares the frame's timestamp.
type Frame struct {
	ID      int
	Time    time.Time
	Event   string // event tag for this frame id, "" when untagged
	Samples []PositionSample
}

// Sample returns the sample for the given entity, if present in this frame.
func (f *Frame) Sample(id EntityID) (PositionSample, bool) {
	for _, s := range f.Samples {
		if s.Entity == id {
			return s, true
		}
	}
	return PositionSample{}, false
}

// SampleTable is the ordered tracking series for one play: frames with
// strictly increasing ids, read-only after construction.
type SampleTable struct {
	GameID int64
	PlayID int64
	Frames []Frame
}

// NewSampleTable validates frame ordering and returns the table. Frame ids
// must be strictly increasing and timestamps must not run backwards.
func NewSampleTable(gameID, playID int64, frames []Frame) (*SampleTable, error) {
	if len(frames) == 0 {
		return nil, &DataIntegrityError{Op: "table", Reason: "no frames"}
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].ID <= frames[i-1].ID {
			return nil, &DataIntegrityError{
				Op:     "table",
				Reason: fmt.Sprintf("frame ids not strictly increasing: %d after %d", frames[i].ID, frames[i-1].ID),
			}
		}
		if frames[i].Time.Before(frames[i-1].Time) {
			return nil, &DataIntegrityError{
				Op:     "table",
				Reason: fmt.Sprintf("timestamp runs backwards at frame %d", frames[i].ID),
			}
		}
	}
	return &SampleTable{GameID: gameID, PlayID: playID, Frames: frames}, nil
}

// Entities returns the distinct entity ids present anywhere in the table, in
// first-seen order.
func (t *SampleTable) Entities() []EntityID {
	seen := make(map[EntityID]bool)
	var out []EntityID
	for _, f := range t.Frames {
		for _, s := range f.Samples {
			if !seen[s.Entity] {
				seen[s.Entity] = true
				out = append(out, s.Entity)
			}
		}
	}
	return out
}

// EventWindow is a contiguous slice of a SampleTable bounded by a start and
// an end event. Frames are shared with the parent table and must be treated
// as read-only.
type EventWindow struct {
	Frames     []Frame
	StartEvent string
	EndEvent   string
	StartID    int
	EndID      int
}

// SampleCount reports the number of tracking frames inside the window.
func (w *EventWindow) SampleCount() int { return len(w.Frames) }

// Elapsed reports the window duration in seconds, end timestamp minus start
// timestamp.
func (w *EventWindow) Elapsed() float64 {
	return w.Frames[len(w.Frames)-1].Time.Sub(w.Frames[0].Time).Seconds()
}

// Offset reports the window-relative frame offset for the i-th frame.
func (w *EventWindow) Offset(i int) int { return w.Frames[i].ID - w.StartID }

// PlayMetadata is static per-clip context for the info panel. It comes from
// the plays table, not from per-frame tracking data.
type PlayMetadata struct {
	GameID         int64
	PlayID         int64
	HomeTeam       string
	VisitorTeam    string
	PossessionTeam string
	DefensiveTeam  string
	Quarter        int
	Down           int
	YardsToGo      int
	PassResult     string
	Description    string
}

// Pair is one label/value line of the info panel, in display order.
type Pair struct {
	Label string
	Value string
}

// Pairs renders the metadata as ordered label/value lines.
func (m PlayMetadata) Pairs() []Pair {
	var pairs []Pair
	if m.HomeTeam != "" || m.VisitorTeam != "" {
		pairs = append(pairs, Pair{"Game", fmt.Sprintf("%s @ %s", m.VisitorTeam, m.HomeTeam)})
	}
	pairs = append(pairs,
		Pair{"Quarter", fmt.Sprintf("Q%d", m.Quarter)},
		Pair{"Down", fmt.Sprintf("%d & %d", m.Down, m.YardsToGo)},
		Pair{"Offense", m.PossessionTeam},
	)
	if m.PassResult != "" {
		pairs = append(pairs, Pair{"Result", passResultLabel(m.PassResult)})
	}
	return pairs
}

func passResultLabel(code string) string {
	switch code {
	case "C":
		return "Complete"
	case "I":
		return "Incomplete"
	case "IN":
		return "Intercepted"
	case "S":
		return "Sack"
	default:
		return code
	}
}

// DataIntegrityError reports malformed or misordered tracking input: missing
// anchor events, empty windows, non-monotonic frame ids.
type DataIntegrityError struct {
	Op     string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("tracking: %s: %s", e.Op, e.Reason)
}
