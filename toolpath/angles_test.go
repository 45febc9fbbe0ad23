package toolpath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapDeg(t *testing.T) {
	assert.InDelta(t, -170.0, WrapDeg(190), 1e-9)
	assert.InDelta(t, 170.0, WrapDeg(-190), 1e-9)
	assert.InDelta(t, 10.0, WrapDeg(370), 1e-9)
	assert.InDelta(t, 0.0, WrapDeg(720), 1e-9)
}

func TestAngleDelta(t *testing.T) {
	assert.InDelta(t, 20.0, AngleDelta(170, 150), 1e-9)
	// shortest way across the branch cut
	assert.InDelta(t, -20.0, AngleDelta(170, -170), 1e-9)
}

func TestUnwrapRemovesBranchCuts(t *testing.T) {
	in := []float64{170, -170, -150, 175, -175}
	out := Unwrap(in)

	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, math.Abs(out[i]-out[i-1]), 180.0+1e-9)
	}
	// rewrapping recovers the input
	for i := range in {
		assert.InDelta(t, WrapDeg(in[i]), WrapDeg(out[i]), 1e-9)
	}
}

func xLine(n int, step float64) []XY {
	pts := make([]XY, n)
	for i := range pts {
		pts[i] = XY{X: float64(i) * step}
	}
	return pts
}

func TestSynthesizeFewPoints(t *testing.T) {
	angs, _ := SynthesizeAngles(nil, DefaultAngleParams())
	assert.Empty(t, angs)

	angs, _ = SynthesizeAngles([]XY{{1, 1}}, DefaultAngleParams())
	require.Len(t, angs, 1)
	assert.Equal(t, 0.0, angs[0])
}

func TestSynthesizeStraightLine(t *testing.T) {
	angs, stats := SynthesizeAngles(xLine(12, 1.0), DefaultAngleParams())
	require.Len(t, angs, 12)
	for _, a := range angs {
		assert.InDelta(t, 0.0, a, 1e-9)
	}
	assert.InDelta(t, 0.0, stats.TotalTravelDeg, 1e-9)
}

func TestSynthesizeOffsetAndReverse(t *testing.T) {
	prm := DefaultAngleParams()
	prm.OffsetDeg = 10
	prm.Reverse = true

	angs, _ := SynthesizeAngles(xLine(8, 1.0), prm)
	for _, a := range angs {
		assert.InDelta(t, 190.0, a, 1e-9)
	}
}

func lPath(arm int) []XY {
	pts := make([]XY, 0, 2*arm+1)
	for i := 0; i <= arm; i++ {
		pts = append(pts, XY{X: float64(i)})
	}
	for i := 1; i <= arm; i++ {
		pts = append(pts, XY{X: float64(arm), Y: float64(i)})
	}
	return pts
}

// Regardless of the corner geometry, the output A never changes by more than
// the rate limit per point.
func TestRateLimitBoundsEveryStep(t *testing.T) {
	prm := DefaultAngleParams()
	prm.MaxStepDeg = 5

	angs, stats := SynthesizeAngles(lPath(20), prm)
	for i := 1; i < len(angs); i++ {
		assert.LessOrEqual(t, math.Abs(angs[i]-angs[i-1]), prm.MaxStepDeg+1e-9)
	}
	assert.LessOrEqual(t, stats.MaxStepDeg, prm.MaxStepDeg+1e-9)
	assert.Greater(t, stats.TotalTravelDeg, 0.0)
}

func TestDeadbandHoldsTinyWiggle(t *testing.T) {
	pts := make([]XY, 20)
	for i := range pts {
		y := 0.0
		if i%2 == 1 {
			y = 0.0001 // ~0.006° heading wiggle
		}
		pts[i] = XY{X: float64(i), Y: y}
	}

	angs, stats := SynthesizeAngles(pts, DefaultAngleParams())
	assert.Greater(t, stats.DeadbandHits, 0)
	for _, a := range angs {
		assert.InDelta(t, 0.0, a, 0.01)
	}
}

func TestCoincidentPointsHoldHeading(t *testing.T) {
	pts := []XY{{0, 0}, {1, 0}, {1, 0}, {1, 0}, {2, 0}, {3, 0}}
	angs, stats := SynthesizeAngles(pts, DefaultAngleParams())

	assert.Greater(t, stats.HoldHits, 0)
	for _, a := range angs {
		require.False(t, math.IsNaN(a))
		assert.InDelta(t, 0.0, a, 1e-6)
	}
}

func TestCornerSnapReachesExactHeading(t *testing.T) {
	prm := DefaultAngleParams()
	prm.CornerMode = CornerSnap
	prm.MaxStepDeg = 0 // isolate the snap behavior

	angs, stats := SynthesizeAngles(lPath(5), prm)
	assert.Greater(t, stats.SnapHits, 0)
	assert.InDelta(t, 90.0, angs[len(angs)-1], 0.5)
}

func TestBlendModeConvergesAfterCorner(t *testing.T) {
	prm := DefaultAngleParams()
	prm.MaxStepDeg = 0
	prm.SmoothWindow = 0

	angs, stats := SynthesizeAngles(lPath(30), prm)
	assert.InDelta(t, 90.0, angs[len(angs)-1], 1.0)
	assert.Greater(t, stats.MaxRawDeltaDeg, 10.0)
}

func TestParseCornerMode(t *testing.T) {
	m, err := ParseCornerMode("snap")
	require.NoError(t, err)
	assert.Equal(t, CornerSnap, m)

	m, err = ParseCornerMode("blend")
	require.NoError(t, err)
	assert.Equal(t, CornerBlend, m)

	_, err = ParseCornerMode("fold")
	assert.Error(t, err)
}
