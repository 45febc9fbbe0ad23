// Package gcode emits a line-oriented motion program from toolpath segments.
// The emitter is a modal state machine: axis, feed and motion words are
// omitted whenever they repeat the previous command, and safety moves (jump
// repositioning, turn retracts, A-axis lifts) are inserted where the blade
// would otherwise pivot or drag through material.
package gcode

import "math"

type TurnRetractConfig struct {
	Enabled      bool
	ThresholdDeg float64
}

// ALiftConfig controls the lift-rotate-plunge sequence guarding large blade
// rotations. A change is critical at CriticalDeg regardless of travel, and
// sharp at SharpDeg when the lateral travel is at most XYSmallMM: a big
// rotation with almost no travel to absorb it.
type ALiftConfig struct {
	Enabled     bool
	SharpDeg    float64
	CriticalDeg float64
	XYSmallMM   float64
	// SafeZMM is the lift height for A rotations; zero falls back to the
	// main safe Z.
	SafeZMM float64
}

// ParkConfig drives optional G53 machine-coordinate park sequences at program
// start and end.
type ParkConfig struct {
	Enabled bool
	X, Y, Z float64
	A       float64
	HasA    bool
}

type SpindleConfig struct {
	Enabled bool
	UseRPM  bool
	RPM     float64
	OnCode  string
	OffCode string
	EmitOff bool
}

type Config struct {
	SafeZMM    float64
	FeedXY     float64
	FeedZ      float64
	FeedTravel float64
	// FeedA is the A-axis rotation feed used during lifts; zero falls
	// back to FeedXY.
	FeedA float64

	// ArcZEpsMM suppresses the Z word on arcs whose endpoint heights are
	// closer than this.
	ArcZEpsMM float64

	// JumpThresholdMM is the XY gap beyond which a segment start is
	// reached by lift-rapid-plunge instead of cutting. Zero derives
	// max(2mm, 4*StepMM).
	JumpThresholdMM float64
	// StepMM is the toolpath sample step, used only for the derived jump
	// threshold.
	StepMM float64

	TurnRetract TurnRetractConfig
	ALift       ALiftConfig
	// AMinStepDeg suppresses A words for changes smaller than this,
	// measured against the last emitted A.
	AMinStepDeg float64

	Park    ParkConfig
	Spindle SpindleConfig
}

func DefaultConfig() Config {
	return Config{
		SafeZMM:    5.0,
		FeedXY:     2000.0,
		FeedZ:      500.0,
		FeedTravel: 4000.0,
		ArcZEpsMM:  0.005,
		StepMM:     0.5,
		TurnRetract: TurnRetractConfig{
			Enabled:      true,
			ThresholdDeg: 45.0,
		},
		ALift: ALiftConfig{
			Enabled:     true,
			SharpDeg:    25.0,
			CriticalDeg: 45.0,
			XYSmallMM:   0.3,
		},
		Spindle: SpindleConfig{
			OnCode:  "M3",
			OffCode: "M5",
			RPM:     10000,
		},
	}
}

func (c Config) jumpThreshold() float64 {
	base := math.Max(2.0, 4*c.StepMM)
	if c.JumpThresholdMM > base {
		return c.JumpThresholdMM
	}
	return base
}

func (c Config) aLiftSafeZ() float64 {
	if c.ALift.SafeZMM != 0 {
		return c.ALift.SafeZMM
	}
	return c.SafeZMM
}

func (c Config) feedA() float64 {
	if c.FeedA > 0 {
		return c.FeedA
	}
	return c.FeedXY
}

// Stats describes one emitted program. Min/Max fields are zero when the
// program contained no motion.
type Stats struct {
	LineCount  int
	PointCount int
	Skipped    int

	MovesG0 int
	MovesG1 int
	MovesG2 int
	MovesG3 int

	ArcMode     bool
	ArcOK       int
	ArcFallback int

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
	MinA, MaxA float64
	HasA       bool

	ALiftDetected int
	ALiftApplied  int
	MaxADelta     float64
	MaxADeltaXY   float64
	TurnRetracts  int
}
