package tracking

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Tracking CSV column names, as shipped in the source exports.
const (
	colGameID = "gameId"
	colPlayID = "playId"
	colFrame  = "frameId"
	colEntity = "nflId"
	colClub   = "club"
	colJersey = "jerseyNumber"
	colTime   = "time"
	colEvent  = "event"
	colX      = "x"
	colY      = "y"
	colSpeed  = "s"
	colAccel  = "a"
	colDist   = "dis"
	colOrient = "o"
	colDir    = "dir"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

// LoadTrackingCSV reads a week-level tracking export and returns the
// SampleTable for one (game, play), with frames ordered by frame id. Rows
// with an empty entity id are the ball.
func LoadTrackingCSV(path string, gameID, playID int64) (*SampleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tracking csv: %w", err)
	}
	defer f.Close()

	table, err := ReadTracking(f, gameID, playID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// ReadTracking parses tracking rows from r, keeping only the requested play.
func ReadTracking(r io.Reader, gameID, playID int64) (*SampleTable, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colGameID, colPlayID, colFrame, colX, colY, colTime} {
		if _, ok := col[required]; !ok {
			return nil, &DataIntegrityError{Op: "load", Reason: fmt.Sprintf("missing column %q", required)}
		}
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	byFrame := make(map[int]*Frame)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		g, err := strconv.ParseInt(field(rec, colGameID), 10, 64)
		if err != nil {
			return nil, &DataIntegrityError{Op: "load", Reason: fmt.Sprintf("line %d: bad gameId", line)}
		}
		p, err := strconv.ParseInt(field(rec, colPlayID), 10, 64)
		if err != nil {
			return nil, &DataIntegrityError{Op: "load", Reason: fmt.Sprintf("line %d: bad playId", line)}
		}
		if g != gameID || p != playID {
			continue
		}

		frameID, err := strconv.Atoi(field(rec, colFrame))
		if err != nil {
			return nil, &DataIntegrityError{Op: "load", Reason: fmt.Sprintf("line %d: bad frameId", line)}
		}

		sample, ts, event, err := parseSampleRow(rec, field, line)
		if err != nil {
			return nil, err
		}

		fr, ok := byFrame[frameID]
		if !ok {
			fr = &Frame{ID: frameID, Time: ts, Event: event}
			byFrame[frameID] = fr
		} else {
			if !fr.Time.Equal(ts) {
				return nil, &DataIntegrityError{
					Op:     "load",
					Reason: fmt.Sprintf("frame %d carries two timestamps", frameID),
				}
			}
			if fr.Event == "" {
				fr.Event = event
			}
		}
		fr.Samples = append(fr.Samples, sample)
	}

	if len(byFrame) == 0 {
		return nil, &DataIntegrityError{
			Op:     "load",
			Reason: fmt.Sprintf("no rows for game %d play %d", gameID, playID),
		}
	}

	ids := make([]int, 0, len(byFrame))
	for id := range byFrame {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	frames := make([]Frame, 0, len(ids))
	for _, id := range ids {
		frames = append(frames, *byFrame[id])
	}
	return NewSampleTable(gameID, playID, frames)
}

func parseSampleRow(rec []string, field func([]string, string) string, line int) (PositionSample, time.Time, string, error) {
	parse := func(name string) (float64, error) {
		raw := field(rec, name)
		if raw == "" || raw == "NA" {
			return 0, nil
		}
		return strconv.ParseFloat(raw, 64)
	}

	var s PositionSample
	var err error
	for _, ch := range []struct {
		name string
		dst  *float64
	}{
		{colX, &s.X}, {colY, &s.Y}, {colSpeed, &s.Speed}, {colAccel, &s.Accel},
		{colDist, &s.Dist}, {colOrient, &s.Orient}, {colDir, &s.Dir},
	} {
		if *ch.dst, err = parse(ch.name); err != nil {
			return s, time.Time{}, "", &DataIntegrityError{
				Op:     "load",
				Reason: fmt.Sprintf("line %d: bad %s value", line, ch.name),
			}
		}
	}

	entity := field(rec, colEntity)
	if entity == "" || entity == "NA" {
		s.Entity = BallEntity
	} else {
		s.Entity = EntityID(entity)
	}
	s.Club = field(rec, colClub)

	if j := field(rec, colJersey); j != "" && j != "NA" && s.Entity != BallEntity {
		// Numbers occasionally export as "87.0".
		n, err := strconv.ParseFloat(j, 64)
		if err != nil {
			return s, time.Time{}, "", &DataIntegrityError{
				Op:     "load",
				Reason: fmt.Sprintf("line %d: bad jersey number %q", line, j),
			}
		}
		num := int(n)
		s.Jersey = &num
	}

	ts, err := parseTimestamp(field(rec, colTime))
	if err != nil {
		return s, time.Time{}, "", &DataIntegrityError{
			Op:     "load",
			Reason: fmt.Sprintf("line %d: %v", line, err),
		}
	}
	s.Timestamp = ts

	event := field(rec, colEvent)
	if event == "NA" {
		event = ""
	}
	return s, ts, event, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// LoadPlayMetadata reads the plays table and returns the metadata row for one
// (game, play) for the info panel.
func LoadPlayMetadata(path string, gameID, playID int64) (PlayMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return PlayMetadata{}, fmt.Errorf("open plays csv: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return PlayMetadata{}, fmt.Errorf("read plays header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PlayMetadata{}, err
		}
		g, _ := strconv.ParseInt(get(rec, "gameId"), 10, 64)
		p, _ := strconv.ParseInt(get(rec, "playId"), 10, 64)
		if g != gameID || p != playID {
			continue
		}
		return PlayMetadata{
			GameID:         gameID,
			PlayID:         playID,
			PossessionTeam: get(rec, "possessionTeam"),
			DefensiveTeam:  get(rec, "defensiveTeam"),
			Quarter:        atoi(get(rec, "quarter")),
			Down:           atoi(get(rec, "down")),
			YardsToGo:      atoi(get(rec, "yardsToGo")),
			PassResult:     get(rec, "passResult"),
			Description:    get(rec, "playDescription"),
		}, nil
	}
	return PlayMetadata{}, &DataIntegrityError{
		Op:     "metadata",
		Reason: fmt.Sprintf("no plays row for game %d play %d", gameID, playID),
	}
}

// LoadGameTeams fills home/visitor team tags from the games table. Missing
// game info is not fatal; the info panel simply omits the matchup line.
func LoadGameTeams(path string, meta *PlayMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open games csv: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read games header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		g, _ := strconv.ParseInt(get(rec, "gameId"), 10, 64)
		if g != meta.GameID {
			continue
		}
		meta.HomeTeam = get(rec, "homeTeamAbbr")
		meta.VisitorTeam = get(rec, "visitorTeamAbbr")
		return nil
	}
	return &DataIntegrityError{Op: "metadata", Reason: fmt.Sprintf("no games row for game %d", meta.GameID)}
}
