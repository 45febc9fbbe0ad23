// Package config is the run configuration surface: YAML-loadable, flag
// overridable, validated before anything touches a mesh.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/lotuspc25/XYZA/gcode"
	"github.com/lotuspc25/XYZA/toolpath"
)

type Outline struct {
	OffsetMM     float64 `yaml:"offset_mm"`
	SmoothPasses int     `yaml:"smooth_passes"`
}

type Heights struct {
	ZMode   string  `yaml:"z_mode"`
	GapMM   float64 `yaml:"gap_mm"`
	GapFrac float64 `yaml:"gap_frac"`
	WeightZ float64 `yaml:"score_weight_z"`
	WeightN float64 `yaml:"score_weight_normal"`
}

type Angles struct {
	DeadbandDeg        float64 `yaml:"deadband_deg"`
	MaxStepDeg         float64 `yaml:"max_step_deg"`
	SmoothWindow       int     `yaml:"smooth_window"`
	CornerMode         string  `yaml:"corner_mode"`
	CornerThresholdDeg float64 `yaml:"corner_threshold_deg"`
	CornerTurnDeg      float64 `yaml:"corner_turn_deg"`
	SnapTurnDeg        float64 `yaml:"snap_turn_deg"`
	AlphaStraight      float64 `yaml:"alpha_straight"`
	AlphaCorner        float64 `yaml:"alpha_corner"`
	MinXYStepMM        float64 `yaml:"min_xy_step_mm"`
	OffsetDeg          float64 `yaml:"offset_deg"`
	Reverse            bool    `yaml:"reverse"`
}

type ArcFit struct {
	Enabled   bool    `yaml:"enabled"`
	MaxDevMM  float64 `yaml:"max_dev_mm"`
	MinPoints int     `yaml:"min_points"`
	MinLenMM  float64 `yaml:"min_len_mm"`
	ZEpsMM    float64 `yaml:"z_eps_mm"`
}

type Motion struct {
	SafeZMM         float64 `yaml:"safe_z_mm"`
	FeedXY          float64 `yaml:"feed_xy"`
	FeedZ           float64 `yaml:"feed_z"`
	FeedTravel      float64 `yaml:"feed_travel"`
	FeedA           float64 `yaml:"feed_a"`
	JumpThresholdMM float64 `yaml:"jump_threshold_mm"`

	TurnRetract      bool    `yaml:"turn_retract"`
	TurnThresholdDeg float64 `yaml:"turn_threshold_deg"`

	ALift         bool    `yaml:"a_lift"`
	ALiftSharpDeg float64 `yaml:"a_lift_sharp_deg"`
	ALiftCritDeg  float64 `yaml:"a_lift_critical_deg"`
	ALiftXYMM     float64 `yaml:"a_lift_xy_small_mm"`
	ALiftSafeZMM  float64 `yaml:"a_lift_safe_z_mm"`

	AMinStepDeg float64 `yaml:"a_min_step_deg"`

	Park  bool    `yaml:"park"`
	ParkX float64 `yaml:"park_x"`
	ParkY float64 `yaml:"park_y"`
	ParkZ float64 `yaml:"park_z"`

	Spindle    bool    `yaml:"spindle"`
	SpindleRPM float64 `yaml:"spindle_rpm"`
}

type Config struct {
	SampleStepMM float64 `yaml:"sample_step_mm"`

	Outline Outline `yaml:"outline"`
	Heights Heights `yaml:"heights"`
	Angles  Angles  `yaml:"angles"`
	ArcFit  ArcFit  `yaml:"arc_fit"`
	Motion  Motion  `yaml:"motion"`
}

func Default() Config {
	ap := toolpath.DefaultAngleParams()
	fp := toolpath.DefaultFitParams()
	rp := toolpath.DefaultResolveParams()
	mc := gcode.DefaultConfig()

	return Config{
		SampleStepMM: 0.5,
		Outline: Outline{
			SmoothPasses: 1,
		},
		Heights: Heights{
			ZMode:   toolpath.ZTop.String(),
			GapMM:   rp.GapMM,
			GapFrac: rp.GapFrac,
			WeightZ: rp.WeightZ,
			WeightN: rp.WeightNormal,
		},
		Angles: Angles{
			DeadbandDeg:        ap.DeadbandDeg,
			MaxStepDeg:         ap.MaxStepDeg,
			SmoothWindow:       ap.SmoothWindow,
			CornerMode:         ap.CornerMode.String(),
			CornerThresholdDeg: ap.CornerThresholdDeg,
			CornerTurnDeg:      ap.CornerTurnDeg,
			SnapTurnDeg:        ap.SnapTurnDeg,
			AlphaStraight:      ap.AlphaStraight,
			AlphaCorner:        ap.AlphaCorner,
			MinXYStepMM:        ap.MinXYStepMM,
		},
		ArcFit: ArcFit{
			Enabled:   true,
			MaxDevMM:  fp.MaxDevMM,
			MinPoints: fp.MinPoints,
			MinLenMM:  fp.MinLenMM,
			ZEpsMM:    fp.ZEpsMM,
		},
		Motion: Motion{
			SafeZMM:          mc.SafeZMM,
			FeedXY:           mc.FeedXY,
			FeedZ:            mc.FeedZ,
			FeedTravel:       mc.FeedTravel,
			TurnRetract:      mc.TurnRetract.Enabled,
			TurnThresholdDeg: mc.TurnRetract.ThresholdDeg,
			ALift:            mc.ALift.Enabled,
			ALiftSharpDeg:    mc.ALift.SharpDeg,
			ALiftCritDeg:     mc.ALift.CriticalDeg,
			ALiftXYMM:        mc.ALift.XYSmallMM,
			AMinStepDeg:      0.05,
			SpindleRPM:       mc.Spindle.RPM,
		},
	}
}

// Load reads a YAML file over the defaults, so a partial file only overrides
// what it names.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects out-of-range values before a run starts rather than
// mid-toolpath.
func (c Config) Validate() error {
	if c.SampleStepMM <= 0 {
		return fmt.Errorf("config: sample_step_mm must be positive, got %g", c.SampleStepMM)
	}
	if _, err := toolpath.ParseZMode(c.Heights.ZMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := toolpath.ParseCornerMode(c.Angles.CornerMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Angles.MaxStepDeg < 0 {
		return fmt.Errorf("config: max_step_deg must not be negative, got %g", c.Angles.MaxStepDeg)
	}
	if c.ArcFit.MaxDevMM <= 0 {
		return fmt.Errorf("config: arc max_dev_mm must be positive, got %g", c.ArcFit.MaxDevMM)
	}
	if c.ArcFit.MinLenMM < 0 {
		return fmt.Errorf("config: arc min_len_mm must not be negative, got %g", c.ArcFit.MinLenMM)
	}
	for name, feed := range map[string]float64{
		"feed_xy":     c.Motion.FeedXY,
		"feed_z":      c.Motion.FeedZ,
		"feed_travel": c.Motion.FeedTravel,
	} {
		if feed <= 0 {
			return fmt.Errorf("config: %s must be positive, got %g", name, feed)
		}
	}
	if c.Motion.FeedA < 0 {
		return fmt.Errorf("config: feed_a must not be negative, got %g", c.Motion.FeedA)
	}
	if c.Motion.AMinStepDeg < 0 {
		return fmt.Errorf("config: a_min_step_deg must not be negative, got %g", c.Motion.AMinStepDeg)
	}
	if c.Motion.SpindleRPM < 0 {
		return fmt.Errorf("config: spindle_rpm must not be negative, got %g", c.Motion.SpindleRPM)
	}
	return nil
}

func (c Config) ZMode() toolpath.ZMode {
	m, _ := toolpath.ParseZMode(c.Heights.ZMode)
	return m
}

func (c Config) ResolveParams() toolpath.ResolveParams {
	return toolpath.ResolveParams{
		GapMM:        c.Heights.GapMM,
		GapFrac:      c.Heights.GapFrac,
		WeightZ:      c.Heights.WeightZ,
		WeightNormal: c.Heights.WeightN,
	}
}

func (c Config) AngleParams() toolpath.AngleParams {
	mode, _ := toolpath.ParseCornerMode(c.Angles.CornerMode)
	return toolpath.AngleParams{
		DeadbandDeg:        c.Angles.DeadbandDeg,
		MaxStepDeg:         c.Angles.MaxStepDeg,
		SmoothWindow:       c.Angles.SmoothWindow,
		CornerMode:         mode,
		CornerThresholdDeg: c.Angles.CornerThresholdDeg,
		CornerTurnDeg:      c.Angles.CornerTurnDeg,
		SnapTurnDeg:        c.Angles.SnapTurnDeg,
		AlphaStraight:      c.Angles.AlphaStraight,
		AlphaCorner:        c.Angles.AlphaCorner,
		MinXYStepMM:        c.Angles.MinXYStepMM,
		OffsetDeg:          c.Angles.OffsetDeg,
		Reverse:            c.Angles.Reverse,
	}
}

func (c Config) FitParams() toolpath.FitParams {
	return toolpath.FitParams{
		MaxDevMM:  c.ArcFit.MaxDevMM,
		MinPoints: c.ArcFit.MinPoints,
		MinLenMM:  c.ArcFit.MinLenMM,
		ZEpsMM:    c.ArcFit.ZEpsMM,
	}
}

func (c Config) GcodeConfig() gcode.Config {
	m := c.Motion
	return gcode.Config{
		SafeZMM:         m.SafeZMM,
		FeedXY:          m.FeedXY,
		FeedZ:           m.FeedZ,
		FeedTravel:      m.FeedTravel,
		FeedA:           m.FeedA,
		ArcZEpsMM:       c.ArcFit.ZEpsMM,
		JumpThresholdMM: m.JumpThresholdMM,
		StepMM:          c.SampleStepMM,
		TurnRetract: gcode.TurnRetractConfig{
			Enabled:      m.TurnRetract,
			ThresholdDeg: m.TurnThresholdDeg,
		},
		ALift: gcode.ALiftConfig{
			Enabled:     m.ALift,
			SharpDeg:    m.ALiftSharpDeg,
			CriticalDeg: m.ALiftCritDeg,
			XYSmallMM:   m.ALiftXYMM,
			SafeZMM:     m.ALiftSafeZMM,
		},
		AMinStepDeg: m.AMinStepDeg,
		Park: gcode.ParkConfig{
			Enabled: m.Park,
			X:       m.ParkX,
			Y:       m.ParkY,
			Z:       m.ParkZ,
		},
		Spindle: gcode.SpindleConfig{
			Enabled: m.Spindle,
			UseRPM:  m.SpindleRPM > 0,
			RPM:     m.SpindleRPM,
			OnCode:  "M3",
			OffCode: "M5",
			EmitOff: true,
		},
	}
}
