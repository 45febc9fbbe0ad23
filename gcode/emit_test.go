package gcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotuspc25/XYZA/toolpath"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Park.Enabled = false
	cfg.Spindle.Enabled = false
	return cfg
}

func TestEmptyProgramStillBracketed(t *testing.T) {
	text, stats := FromSegments(nil, testConfig(), false, 0)
	lines := strings.Split(text, "\n")

	assert.Equal(t, "(Generated by XYZA)", lines[0])
	assert.Contains(t, lines, "G21")
	assert.Contains(t, lines, "G90")
	assert.Contains(t, lines, "G54")
	assert.Equal(t, "M30", lines[len(lines)-1])
	assert.Equal(t, 0, stats.MovesG1)
	assert.Equal(t, 0, stats.MovesG2+stats.MovesG3)
}

func TestHeaderAndFooterWithSpindleAndPark(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spindle.Enabled = true
	cfg.Spindle.UseRPM = true
	cfg.Spindle.EmitOff = true
	cfg.Park.Enabled = true
	cfg.Park.Z = 50
	text, _ := FromSegments(nil, cfg, false, 0)

	assert.Contains(t, text, "M3 S10000")
	assert.Contains(t, text, "G53 G0 Z50.000")
	assert.Contains(t, text, "M5")
	idxOn := strings.Index(text, "M3 S10000")
	idxOff := strings.LastIndex(text, "M5")
	assert.Less(t, idxOn, idxOff)
}

func line(x0, y0, z0, a0, x1, y1, z1, a1 float64) toolpath.LineSeg {
	return toolpath.LineSeg{
		P0: toolpath.XYZA(x0, y0, z0, a0),
		P1: toolpath.XYZA(x1, y1, z1, a1),
	}
}

// A sharp corner while plunged must be taken in the air: rapid to safe Z,
// rotate A, rapid to the corner, plunge back down, in exactly that order.
func TestTurnRetractSequence(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.ThresholdDeg = 45
	cfg.AMinStepDeg = 0.05

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 1, 0, -1, 20),
		line(1, 0, -1, 20, 1, 1, -1, 80), // heading 0 -> 90, sharp
		line(1, 1, -1, 80, 2, 1, -1, 80),
	}
	text, stats := FromSegments(segs, cfg, true, 0)
	lines := strings.Split(text, "\n")

	// both corners are 90° while cutting
	require.Equal(t, 2, stats.TurnRetracts)

	want := []string{"Z5.000", "A80.000", "X1.000 Y1.000", "Z-1.000"}
	found := -1
	for i := 0; i+len(want) <= len(lines); i++ {
		ok := true
		for j, w := range want {
			if !strings.Contains(lines[i+j], w) {
				ok = false
				break
			}
		}
		if ok {
			found = i
			break
		}
	}
	require.GreaterOrEqual(t, found, 0, "retract sequence not found in:\n%s", text)
}

func TestTurnRetractSkippedAboveMaterial(t *testing.T) {
	cfg := testConfig()
	segs := []toolpath.Segment{
		line(0, 0, 10, 0, 1, 0, 10, 0),
		line(1, 0, 10, 0, 1, 1, 10, 0), // sharp corner, but above safe Z
	}
	_, stats := FromSegments(segs, cfg, true, 0)
	assert.Equal(t, 0, stats.TurnRetracts)
}

// A line running into an arc whose chord heading differs sharply must not
// retract: repositioning to the arc endpoint would collapse it to start == end
// and the G2/G3 would sweep a full circle through the material.
func TestTurnRetractSkippedForArcs(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.ThresholdDeg = 45
	cfg.ALift.Enabled = false

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 10, 0, -1, 0), // heading 0
		toolpath.ArcSeg{ // chord heading 90, quarter turn while cutting
			P0: toolpath.XYZ(10, 0, -1), P1: toolpath.XYZ(10, 5, -1),
			CX: 10, CY: 2.5, Radius: 2.5, CW: false,
			Z0: -1, Z1: -1,
		},
	}
	text, stats := FromSegments(segs, cfg, false, 0)

	assert.Equal(t, 0, stats.TurnRetracts)
	assert.Equal(t, 1, stats.ArcOK)
	// I/J offsets are relative to the arc start, not a retract target
	assert.Contains(t, text, "G3 X10.000 Y5.000 I0.000 J2.500")
	assert.NotContains(t, text, "J-2.500")
}

func TestAModalSuppression(t *testing.T) {
	cfg := testConfig()
	cfg.AMinStepDeg = 5
	cfg.TurnRetract.Enabled = false
	cfg.ALift.Enabled = false

	segs := []toolpath.Segment{
		line(0, 0, -1, 10, 1, 0, -1, 12), // dA=2 < 5, suppressed
		line(1, 0, -1, 12, 2, 0, -1, 13), // dA from last emitted (10) is 3, still suppressed
		line(2, 0, -1, 13, 3, 0, -1, 16), // dA from 10 is 6, emitted
	}
	text, _ := FromSegments(segs, cfg, true, 0)

	assert.NotContains(t, text, "A12.000")
	assert.NotContains(t, text, "A13.000")
	assert.Contains(t, text, "A16.000")
}

// A large rotation with almost no XY travel is executed as lift, rotate in
// air, plunge.
func TestALiftOnSharpRotationWithSmallXY(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.Enabled = false
	cfg.AMinStepDeg = 0.05

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 1, 0, -1, 0),
		line(1, 0, -1, 0, 1.1, 0, -1, 30), // dA=30 >= sharp 25, dXY=0.1 <= 0.3
	}
	text, stats := FromSegments(segs, cfg, true, 0)

	assert.Equal(t, 1, stats.ALiftDetected)
	assert.Equal(t, 1, stats.ALiftApplied)
	assert.Contains(t, text, "(A_LIFT reason=A_SHARP_XY_SMALL")
	assert.InDelta(t, 30.0, stats.MaxADelta, 1e-9)
}

func TestALiftCriticalIgnoresXYDistance(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.Enabled = false
	cfg.AMinStepDeg = 0.05

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 1, 0, -1, 0),
		line(1, 0, -1, 0, 10, 0, -1, 50), // dA=50 >= critical 45, dXY large
	}
	text, stats := FromSegments(segs, cfg, true, 0)

	assert.Equal(t, 1, stats.ALiftApplied)
	assert.Contains(t, text, "reason=A_CRITICAL")
}

func TestJumpRepositionSequence(t *testing.T) {
	cfg := testConfig()
	cfg.StepMM = 0.5 // jump threshold max(2, 4*0.5) = 2

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 1, 0, -1, 0),
		line(50, 50, -1, 0, 51, 50, -1, 0), // 70mm gap
	}
	text, _ := FromSegments(segs, cfg, true, 0)
	lines := strings.Split(text, "\n")

	found := false
	for i := 0; i+2 < len(lines); i++ {
		if strings.HasSuffix(lines[i], "Z5.000") &&
			strings.Contains(lines[i+1], "X50.000 Y50.000") &&
			strings.Contains(lines[i+2], "Z-1.000") &&
			strings.Contains(lines[i+2], "F500.00") {
			found = true
			break
		}
	}
	assert.True(t, found, "jump reposition sequence not found in:\n%s", text)
}

func TestModalWordEconomy(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.Enabled = false
	cfg.ALift.Enabled = false

	segs := []toolpath.Segment{
		line(0, 0, -1, 0, 1, 0, -1, 0),
		line(1, 0, -1, 0, 2, 0, -1, 0),
		line(2, 0, -1, 0, 3, 0, -1, 0),
	}
	text, _ := FromSegments(segs, cfg, false, 0)
	lines := strings.Split(text, "\n")

	g1Count := 0
	fCount := 0
	for _, l := range lines {
		if strings.Contains(l, "X2.000") || strings.Contains(l, "X3.000") {
			assert.NotContains(t, l, "G1", "motion word must be modal: %s", l)
			assert.NotContains(t, l, "F", "feed must be modal: %s", l)
		}
		if strings.HasPrefix(l, "G1") {
			g1Count++
		}
		if strings.Contains(l, "F2000.00") {
			fCount++
		}
	}
	assert.Equal(t, 1, fCount, "cutting feed emitted once")
	assert.Greater(t, g1Count, 0)
}

func TestArcEmission(t *testing.T) {
	cfg := testConfig()
	cfg.TurnRetract.Enabled = false
	cfg.ALift.Enabled = false

	arc := toolpath.ArcSeg{
		P0: toolpath.XYZ(10, 0, -1), P1: toolpath.XYZ(0, 10, -1),
		CX: 0, CY: 0, Radius: 10, CW: false,
		Z0: -1, Z1: -1,
	}
	text, stats := FromSegments([]toolpath.Segment{arc}, cfg, false, 0)

	assert.Equal(t, 1, stats.ArcOK)
	assert.Equal(t, 1, stats.MovesG3)
	assert.Contains(t, text, "G3 X0.000 Y10.000 I-10.000 J0.000")
	// constant-Z arc carries no Z word
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, "G3") {
			assert.NotContains(t, l, "Z")
		}
	}
}

func TestArcWithInterpolatedZ(t *testing.T) {
	cfg := testConfig()
	arc := toolpath.ArcSeg{
		P0: toolpath.XYZ(10, 0, -1), P1: toolpath.XYZ(0, 10, -2),
		CX: 0, CY: 0, Radius: 10, CW: true,
		ZInterp: true, Z0: -1, Z1: -2,
	}
	text, stats := FromSegments([]toolpath.Segment{arc}, cfg, false, 0)

	assert.Equal(t, 1, stats.MovesG2)
	assert.Contains(t, text, "G2 X0.000 Y10.000 Z-2.000 I-10.000 J0.000")
}

func TestFromPointsSkipsNonFinite(t *testing.T) {
	cfg := testConfig()
	pts := []toolpath.Point{
		toolpath.XYZ(0, 0, -1),
		{X: 1, Y: 0, Z: nan()},
		toolpath.XYZ(2, 0, -1),
	}
	text, stats := FromPoints(pts, cfg, false, toolpath.DefaultFitParams())

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.PointCount)
	assert.Contains(t, text, "X2.000")
	assert.NotContains(t, text, "NaN")
}

func TestFromPointsAllInvalid(t *testing.T) {
	pts := []toolpath.Point{{X: nan(), Y: 0, Z: 0}}
	text, stats := FromPoints(pts, testConfig(), false, toolpath.DefaultFitParams())
	assert.Equal(t, "", text)
	assert.Equal(t, 1, stats.Skipped)
}

func TestBoundsTracking(t *testing.T) {
	cfg := testConfig()
	segs := []toolpath.Segment{
		line(0, -5, -2, 10, 20, 5, -1, 40),
	}
	_, stats := FromSegments(segs, cfg, true, 0)

	assert.Equal(t, 0.0, stats.MinX)
	assert.Equal(t, 20.0, stats.MaxX)
	assert.Equal(t, -5.0, stats.MinY)
	assert.Equal(t, 5.0, stats.MaxY)
	assert.Equal(t, -2.0, stats.MinZ)
	assert.True(t, stats.HasA)
	assert.Equal(t, 10.0, stats.MinA)
	assert.Equal(t, 40.0, stats.MaxA)
}

func nan() float64 {
	var z float64
	return 0 / z
}
