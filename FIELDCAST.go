package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldcast/calibration"
	"fieldcast/compositor"
	"fieldcast/config"
	"fieldcast/overlay"
	"fieldcast/timesync"
	"fieldcast/tracking"
)

const defaultEndEvents = "pass_arrived,pass_outcome_caught,pass_outcome_incomplete,pass_outcome_interception,pass_outcome_touchdown"

var (
	// Command-line flags
	configPath   = flag.String("config", "", "YAML config file with sync anchors and calibration points (required)\n\t\tExample: -config=clip.yml")
	inputVideo   = flag.String("input", "", "Broadcast video file to overlay (required)\n\t\tExample: -input=clip.mp4")
	outputVideo  = flag.String("output", "", "Output video file (required)\n\t\tExample: -output=clip_overlay.mp4")
	trackingPath = flag.String("tracking", "", "Tracking CSV covering the play (required)\n\t\tExample: -tracking=tracking_week_1.csv")
	playsPath    = flag.String("plays", "", "Plays CSV for the info panel (optional)")
	gamesPath    = flag.String("games", "", "Games CSV for home/visitor team tags (optional, needs -plays)")
	gameID       = flag.Int64("game", 0, "Game id selecting the play (required)")
	playID       = flag.Int64("play", 0, "Play id selecting the play (required)")
	startEvent   = flag.String("start-event", "pass_forward", "Event tag opening the overlay window")
	endEvents    = flag.String("end-events", defaultEndEvents, "Comma-separated event tags closing the window; the first one seen after the start wins")
	targetEntity = flag.String("target", "", "Entity id of the targeted receiver (optional; enables separation lines)")
	workersFlag  = flag.Int("workers", 0, "Render workers (0 = one per CPU; overrides config)")
	fpsFlag      = flag.Int("fps", 0, "Resample rate for tracking interpolation (overrides config)")
	debugMode    = flag.Bool("debug", false, "Enable component-tagged progress logging")
	debugVerbose = flag.Bool("debug-verbose", false, "Enable verbose debug output (per-frame mapping and calibration detail)")

	// Global debug logger instance
	globalDebugLogger *DebugLogger
)

// DebugLogger prints timestamped component-tagged lines to stdout. A single
// instance is shared by every pipeline stage.
type DebugLogger struct {
	enabled bool
	verbose bool
}

func NewDebugLogger(enabled, verbose bool) *DebugLogger {
	return &DebugLogger{enabled: enabled, verbose: verbose}
}

func (dl *DebugLogger) debugMsg(component, message string) {
	if dl == nil || !dl.enabled {
		return
	}
	fmt.Printf("[%s][%s] %s\n", time.Now().Format("15:04:05.000"), component, message)
}

// debugMsg is the global convenience function for unified debug logging
func debugMsg(component, message string) {
	globalDebugLogger.debugMsg(component, message)
}

// debugMsgVerbose only outputs if debug-verbose flag is enabled
func debugMsgVerbose(component, message string) {
	if globalDebugLogger == nil || !globalDebugLogger.verbose {
		return
	}
	globalDebugLogger.debugMsg(component, message)
}

func main() {
	flag.Parse()

	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Println("\nFIELDCAST - tracking data over broadcast video")
		fmt.Println("================================================================")
		fmt.Println("\nUSAGE EXAMPLES:")
		fmt.Println("\n  Basic overlay:")
		fmt.Println("    ./fieldcast -config=clip.yml -input=clip.mp4 -output=out.mp4 \\")
		fmt.Println("                -tracking=tracking_week_1.csv -game=2022091110 -play=345")
		fmt.Println("\n  With the info panel and targeted-receiver separation:")
		fmt.Println("    ./fieldcast ... -plays=plays.csv -games=games.csv -target=47857")
		fmt.Println("\n  Debug mode (per-stage progress):")
		fmt.Println("    ./fieldcast ... -debug")
		fmt.Println("\nFLAGS:")
		flag.Usage()
		fmt.Println("")
		os.Exit(0)
	}

	for _, required := range []struct{ name, value string }{
		{"config", *configPath},
		{"input", *inputVideo},
		{"output", *outputVideo},
		{"tracking", *trackingPath},
	} {
		if required.value == "" {
			fmt.Fprintf(os.Stderr, "Error: -%s flag is required\n\n", required.name)
			fmt.Println("Use -h for usage examples and flag descriptions")
			os.Exit(1)
		}
	}
	if *gameID == 0 || *playID == 0 {
		fmt.Fprintf(os.Stderr, "Error: -game and -play flags are required\n\n")
		fmt.Println("Use -h for usage examples and flag descriptions")
		os.Exit(1)
	}

	globalDebugLogger = NewDebugLogger(*debugMode || *debugVerbose, *debugVerbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if *workersFlag > 0 {
		cfg.Workers = *workersFlag
	}
	if *fpsFlag > 0 {
		cfg.TargetFPS = *fpsFlag
	}
	if len(cfg.SyncPoints) < 2 {
		fatal("config", fmt.Errorf("%s: at least 2 sync_points are required", *configPath))
	}
	if len(cfg.CalibrationPoints) < calibration.MinCorrespondences {
		fatal("config", fmt.Errorf("%s: at least %d calibration_points are required", *configPath, calibration.MinCorrespondences))
	}

	summary, err := run(cfg)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		fatal("pipeline", err)
	}
}

func run(cfg *config.Config) (*compositor.Summary, error) {
	debugMsg("LOAD", fmt.Sprintf("reading tracking data for game %d play %d from %s", *gameID, *playID, *trackingPath))
	table, err := tracking.LoadTrackingCSV(*trackingPath, *gameID, *playID)
	if err != nil {
		return nil, err
	}
	debugMsg("LOAD", fmt.Sprintf("%d tracking frames, %d entities", len(table.Frames), len(table.Entities())))

	ends := splitEvents(*endEvents)
	window, err := tracking.ExtractWindowAny(table, *startEvent, ends)
	if err != nil {
		return nil, err
	}
	debugMsg("WINDOW", fmt.Sprintf("%s -> %s: frames %d..%d (%.1fs)",
		window.StartEvent, window.EndEvent, window.StartID, window.EndID, window.Elapsed()))
	if expected := int(math.Round(window.Elapsed()*cfg.SampleRate)) + 1; window.SampleCount() != expected {
		debugMsg("WINDOW", fmt.Sprintf("sample count %d differs from the %.0f Hz expectation of %d; timestamps drive interpolation",
			window.SampleCount(), cfg.SampleRate, expected))
	}

	meta := tracking.PlayMetadata{GameID: *gameID, PlayID: *playID}
	if *playsPath != "" {
		meta, err = tracking.LoadPlayMetadata(*playsPath, *gameID, *playID)
		if err != nil {
			return nil, err
		}
		if *gamesPath != "" {
			if err := tracking.LoadGameTeams(*gamesPath, &meta); err != nil {
				return nil, err
			}
		}
		debugMsg("LOAD", fmt.Sprintf("play metadata: %s vs %s, Q%d %d&%d",
			meta.PossessionTeam, meta.DefensiveTeam, meta.Quarter, meta.Down, meta.YardsToGo))
	}

	syncMap, err := timesync.NewSyncMap(cfg.SyncAnchors())
	if err != nil {
		return nil, err
	}
	for _, p := range syncMap.Points() {
		debugMsgVerbose("SYNC", fmt.Sprintf("anchor: sample %d <-> video frame %d", p.Sample, p.Frame))
	}
	synchronizer, err := timesync.New(window, syncMap)
	if err != nil {
		return nil, err
	}
	series, err := synchronizer.Resample(cfg.TargetFPS)
	if err != nil {
		return nil, err
	}
	first, last := series.MappedVideoRange()
	debugMsg("SYNC", fmt.Sprintf("%d resampled steps at %d fps, mapped video frames %d..%d",
		len(series.Frames), cfg.TargetFPS, first, last))

	mapping, err := calibration.Fit(cfg.Correspondences(), cfg.PixelTolerance)
	if err != nil {
		return nil, err
	}
	debugMsg("CALIB", fmt.Sprintf("homography fitted, mean reprojection error %.2fpx", mapping.MeanReprojectionError()))

	renderer := overlay.NewRenderer(cfg.OverlayStyle())

	comp, err := compositor.New(series, mapping, renderer, meta, roleAssigner(meta), compositor.Options{
		InputPath:          *inputVideo,
		OutputPath:         *outputVideo,
		Workers:            cfg.Workers,
		TrailLength:        cfg.TrailLength,
		FaultAbortFraction: cfg.FaultAbortFraction,
		Debugf: func(component, message string) {
			debugMsg(component, message)
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return comp.Run(ctx)
}

// roleAssigner decides how each entity renders: the targeted receiver gets
// separation lines, the defensive club renders as opposition, everything
// else (ball included) stays neutral.
func roleAssigner(meta tracking.PlayMetadata) compositor.RoleFunc {
	target := tracking.EntityID(*targetEntity)
	return func(es timesync.EntityState) overlay.Role {
		switch {
		case target != "" && es.Entity == target:
			return overlay.RoleTarget
		case meta.DefensiveTeam != "" && es.Club == meta.DefensiveTeam:
			return overlay.RoleOpposing
		default:
			return overlay.RoleNeutral
		}
	}
}

func splitEvents(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func printSummary(s *compositor.Summary) {
	fmt.Printf("\n%dx%d @ %.2f fps, finished in %s\n", s.Width, s.Height, s.FPS, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("  frames: %d read, %d overlaid, %d passthrough, %d substituted\n",
		s.FramesRead, s.Overlaid, s.PassedThrough, s.Substituted)
	if s.LowConfidence > 0 {
		fmt.Printf("  low-confidence overlays (outside sync anchors): %d\n", s.LowConfidence)
	}
	if s.Faults > 0 {
		fmt.Printf("  faults: %d\n", s.Faults)
		for _, line := range s.FaultLines {
			fmt.Printf("    %s\n", line)
		}
	}
}

func fatal(stage string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", stage, err)
	os.Exit(1)
}
