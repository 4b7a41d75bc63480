package config

import (
	"fmt"
	"image/color"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fieldcast/calibration"
	"fieldcast/overlay"
	"fieldcast/timesync"
)

// SyncAnchor pairs one tracking frame id with the video frame it appears on.
type SyncAnchor struct {
	Sample int `yaml:"sample" validate:"gte=0"`
	Frame  int `yaml:"frame" validate:"gte=0"`
}

// CalibrationPoint pairs a ground position in yards with its pixel location.
type CalibrationPoint struct {
	Ground [2]float64 `yaml:"ground" validate:"required"`
	Pixel  [2]float64 `yaml:"pixel" validate:"required"`
}

// Style configures overlay colors and text sizing.
type Style struct {
	Colors        map[string]string `yaml:"colors"`
	LabelFontSize float64           `yaml:"label_font_size" validate:"gte=0"`
}

// Config is the full configuration for one composite run.
type Config struct {
	TargetFPS          int     `yaml:"target_fps" validate:"gte=0,lte=240"`
	TrailLength        int     `yaml:"trail_length" validate:"gte=1"`
	SeparationOpen     float64 `yaml:"separation_open" validate:"gt=0"`
	SeparationTight    float64 `yaml:"separation_tight" validate:"gt=0"`
	FaultAbortFraction float64 `yaml:"fault_abort_fraction" validate:"gt=0,lte=1"`
	SampleRate         float64 `yaml:"sample_rate" validate:"gt=0"`
	Workers            int     `yaml:"workers" validate:"gte=0"`
	PixelTolerance     float64 `yaml:"pixel_tolerance" validate:"gte=0"`

	SyncPoints        []SyncAnchor       `yaml:"sync_points" validate:"omitempty,min=2,dive"`
	CalibrationPoints []CalibrationPoint `yaml:"calibration_points" validate:"omitempty,min=4,dive"`

	Style Style `yaml:"style"`
}

// Default returns the documented defaults. Sync anchors and calibration
// points have no sensible defaults and stay empty.
func Default() Config {
	return Config{
		TargetFPS:          30,
		TrailLength:        10,
		SeparationOpen:     5.0,
		SeparationTight:    2.0,
		FaultAbortFraction: 0.10,
		SampleRate:         10,
		Workers:            0, // NumCPU
		PixelTolerance:     calibration.DefaultPixelTolerance,
		Style: Style{
			Colors: map[string]string{
				"offense": "#ff6b4b",
				"defense": "#4ecdc4",
				"ball":    "#ffd93d",
			},
			LabelFontSize: 0.5,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks struct tags plus the cross-field constraints tags cannot
// express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.SeparationTight >= c.SeparationOpen {
		return fmt.Errorf("separation_tight (%.2f) must be below separation_open (%.2f)", c.SeparationTight, c.SeparationOpen)
	}
	for key, hex := range c.Style.Colors {
		if _, err := ParseHexColor(hex); err != nil {
			return fmt.Errorf("style color %q: %w", key, err)
		}
	}
	return nil
}

// SyncAnchors converts the configured anchors for the synchronizer.
func (c *Config) SyncAnchors() []timesync.SyncPoint {
	out := make([]timesync.SyncPoint, len(c.SyncPoints))
	for i, a := range c.SyncPoints {
		out[i] = timesync.SyncPoint{Sample: a.Sample, Frame: a.Frame}
	}
	return out
}

// Correspondences converts the configured calibration points for fitting.
func (c *Config) Correspondences() []calibration.Correspondence {
	out := make([]calibration.Correspondence, len(c.CalibrationPoints))
	for i, p := range c.CalibrationPoints {
		out[i] = calibration.Correspondence{
			Ground: calibration.Point{X: p.Ground[0], Y: p.Ground[1]},
			Pixel:  calibration.Point{X: p.Pixel[0], Y: p.Pixel[1]},
		}
	}
	return out
}

// OverlayStyle builds the renderer style from defaults plus configured
// colors. Validate must have passed first; unparseable colors fall back to
// the defaults here.
func (c *Config) OverlayStyle() overlay.Style {
	style := overlay.DefaultStyle()
	for key, hex := range c.Style.Colors {
		if rgba, err := ParseHexColor(hex); err == nil {
			style.Colors[key] = rgba
		}
	}
	if c.Style.LabelFontSize > 0 {
		style.LabelFontSize = c.Style.LabelFontSize
	}
	style.SeparationOpen = c.SeparationOpen
	style.SeparationTight = c.SeparationTight
	return style
}

// ParseHexColor parses "#rrggbb" (or "rrggbb") into an opaque RGBA.
func ParseHexColor(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("hex color must be 6 digits, got %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("hex color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
