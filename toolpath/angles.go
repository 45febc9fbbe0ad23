package toolpath

import (
	"fmt"
	"math"
)

// CornerMode selects how the angle filter treats geometric corners.
type CornerMode int

const (
	// CornerBlend keeps smoothing through corners, with a weaker blend
	// near them so the heading still tracks the turn.
	CornerBlend CornerMode = iota
	// CornerSnap disables smoothing entirely at corners above the corner
	// threshold: the blade must point exactly along the new direction.
	CornerSnap
)

func (m CornerMode) String() string {
	if m == CornerSnap {
		return "snap"
	}
	return "blend"
}

func ParseCornerMode(s string) (CornerMode, error) {
	switch s {
	case "blend":
		return CornerBlend, nil
	case "snap":
		return CornerSnap, nil
	}
	return CornerBlend, fmt.Errorf("unrecognised corner mode: %q", s)
}

// AngleParams tune A-axis synthesis. All angles are degrees.
type AngleParams struct {
	// DeadbandDeg holds the previous output while the raw heading change
	// stays below it.
	DeadbandDeg float64
	// MaxStepDeg rate-limits the filtered sequence per point. Zero
	// disables the limit.
	MaxStepDeg float64
	// SmoothWindow is the centered moving-average width applied after the
	// sequential filter (blend mode only). Values <2 disable it.
	SmoothWindow int

	CornerMode CornerMode
	// CornerThresholdDeg is the turn at which snap mode forces an exact
	// heading.
	CornerThresholdDeg float64
	// CornerTurnDeg is the turn above which blend mode switches from
	// AlphaStraight to AlphaCorner smoothing strength.
	CornerTurnDeg float64
	// SnapTurnDeg forces full snap for the next 2 points once exceeded, so
	// smoothing lag is not re-introduced right after a hard corner.
	SnapTurnDeg float64

	// Smoothing strengths: the blend factor toward the target is
	// 1-strength, so straight runs (AlphaStraight) smooth harder than
	// corners (AlphaCorner).
	AlphaStraight float64
	AlphaCorner   float64

	// MinXYStepMM holds the previous raw heading when the local tangent
	// chord is shorter than this, to keep near-duplicate points from
	// injecting atan2 noise.
	MinXYStepMM float64

	// OffsetDeg is the fixed blade mounting offset; Reverse adds 180°.
	OffsetDeg float64
	Reverse   bool
}

func DefaultAngleParams() AngleParams {
	return AngleParams{
		DeadbandDeg:        0.5,
		MaxStepDeg:         5.0,
		SmoothWindow:       7,
		CornerMode:         CornerBlend,
		CornerThresholdDeg: 25.0,
		CornerTurnDeg:      12.0,
		SnapTurnDeg:        25.0,
		AlphaStraight:      0.25,
		AlphaCorner:        0.05,
		MinXYStepMM:        0.02,
	}
}

type AngleStats struct {
	// HoldHits counts raw headings held because the tangent chord was too
	// short.
	HoldHits int
	// DeadbandHits counts filter steps where the target was held at the
	// previous output.
	DeadbandHits int
	// SnapHits counts full-snap filter steps.
	SnapHits int
	// MaxRawDeltaDeg is the largest wrapped raw-vs-filtered difference
	// seen before filtering.
	MaxRawDeltaDeg float64
	// TotalTravelDeg and MaxStepDeg describe the rate-limited output.
	TotalTravelDeg float64
	MaxStepDeg     float64
}

// WrapDeg wraps an angle to (-180, 180].
func WrapDeg(a float64) float64 {
	w := math.Mod(a+180.0, 360.0)
	if w < 0 {
		w += 360.0
	}
	return w - 180.0
}

// AngleDelta returns the wrapped difference target-current in (-180, 180].
func AngleDelta(target, current float64) float64 {
	return WrapDeg(target - current)
}

func angleLerp(current, target, alpha float64) float64 {
	return current + alpha*AngleDelta(target, current)
}

// Unwrap removes ±360° branch-cut jumps so consecutive differences never
// exceed 180° in magnitude. Wrap(Unwrap(a)[i]) == Wrap(a[i]) for every i.
func Unwrap(angles []float64) []float64 {
	out := make([]float64, len(angles))
	copy(out, angles)
	shift := 0.0
	for i := 1; i < len(out); i++ {
		out[i] += shift
		diff := out[i] - out[i-1]
		if diff > 180.0 {
			out[i] -= 360.0
			shift -= 360.0
		} else if diff < -180.0 {
			out[i] += 360.0
			shift += 360.0
		}
	}
	return out
}

// SynthesizeAngles derives a per-point blade heading from the outline
// tangent, then filters it into something a rotary axis can track: unwrap,
// deadband, corner-aware smoothing or snap, and rate limiting, finally the
// fixed offset/reversal. Fewer than 2 points yields all zeros.
func SynthesizeAngles(pts []XY, prm AngleParams) ([]float64, AngleStats) {
	var stats AngleStats
	n := len(pts)
	if n < 2 {
		return make([]float64, n), stats
	}

	raw := make([]float64, n)
	turns := make([]float64, n)
	minStepSq := prm.MinXYStepMM * prm.MinXYStepMM

	for i := 0; i < n; i++ {
		var vx, vy float64
		switch {
		case i == 0:
			vx, vy = pts[1].X-pts[0].X, pts[1].Y-pts[0].Y
		case i == n-1:
			vx, vy = pts[n-1].X-pts[n-2].X, pts[n-1].Y-pts[n-2].Y
		default:
			vx, vy = pts[i+1].X-pts[i-1].X, pts[i+1].Y-pts[i-1].Y
		}
		lenSq := vx*vx + vy*vy
		switch {
		case lenSq < minStepSq && i > 0:
			raw[i] = raw[i-1]
			stats.HoldHits++
		case lenSq > 0:
			raw[i] = math.Atan2(vy, vx) * 180.0 / math.Pi
		case i > 0:
			raw[i] = raw[i-1]
		}

		turns[i] = turnAt(pts, i)
	}

	angs := Unwrap(raw)

	// sequential deadband + corner filter: a single carried "previous
	// output" threaded left to right
	filtered := make([]float64, 0, n)
	prev := angs[0]
	filtered = append(filtered, prev)
	snapLeft := 0
	for i := 1; i < n; i++ {
		diff := AngleDelta(angs[i], prev)
		stats.MaxRawDeltaDeg = math.Max(stats.MaxRawDeltaDeg, math.Abs(diff))

		target := angs[i]
		if math.Abs(diff) < prm.DeadbandDeg {
			target = prev
			stats.DeadbandHits++
		}

		var alpha float64
		if prm.CornerMode == CornerSnap && turns[i] >= prm.CornerThresholdDeg {
			alpha = 1.0
			stats.SnapHits++
		} else {
			strength := prm.AlphaStraight
			if turns[i] >= prm.CornerTurnDeg {
				strength = prm.AlphaCorner
			}
			if prm.SnapTurnDeg > 0 && turns[i] >= prm.SnapTurnDeg {
				if snapLeft < 2 {
					snapLeft = 2
				}
			}
			if snapLeft > 0 {
				alpha = 1.0
				snapLeft--
				stats.SnapHits++
			} else {
				alpha = clamp01(1.0 - strength)
			}
		}

		out := angleLerp(prev, target, alpha)
		filtered = append(filtered, out)
		prev = out
	}

	if prm.CornerMode != CornerSnap && prm.SmoothWindow > 1 && n > 2 {
		filtered = movingAverage(filtered, prm.SmoothWindow)
	}

	// rate limit
	limited := make([]float64, n)
	limited[0] = filtered[0]
	for i := 1; i < n; i++ {
		step := AngleDelta(filtered[i], limited[i-1])
		if prm.MaxStepDeg > 0 && math.Abs(step) > prm.MaxStepDeg {
			step = math.Copysign(prm.MaxStepDeg, step)
		}
		limited[i] = limited[i-1] + step
		stats.TotalTravelDeg += math.Abs(step)
		stats.MaxStepDeg = math.Max(stats.MaxStepDeg, math.Abs(step))
	}

	offset := prm.OffsetDeg
	if prm.Reverse {
		offset += 180.0
	}
	for i := range limited {
		limited[i] += offset
	}

	return limited, stats
}

// turnAt is the unsigned turning angle in degrees between the incoming and
// outgoing chord at index i. Degenerate chords turn 0.
func turnAt(pts []XY, i int) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var px, py, nx, ny float64
	switch {
	case i == 0:
		px, py = pts[1].X-pts[0].X, pts[1].Y-pts[0].Y
		nx, ny = pts[2].X-pts[1].X, pts[2].Y-pts[1].Y
	case i == n-1:
		px, py = pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y
		nx, ny = px, py
	default:
		px, py = pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y
		nx, ny = pts[i+1].X-pts[i].X, pts[i+1].Y-pts[i].Y
	}
	l1 := math.Hypot(px, py)
	l2 := math.Hypot(nx, ny)
	if l1 < 1e-6 || l2 < 1e-6 {
		return 0
	}
	dot := (px*nx + py*ny) / (l1 * l2)
	dot = math.Max(-1, math.Min(1, dot))
	return math.Acos(dot) * 180.0 / math.Pi
}

// movingAverage is a centered mean with the window shrinking symmetrically at
// the ends, so boundary values are not dragged toward zero.
func movingAverage(vals []float64, window int) []float64 {
	n := len(vals)
	half := window / 2
	out := make([]float64, n)
	for i := range vals {
		k := half
		if i < k {
			k = i
		}
		if n-1-i < k {
			k = n - 1 - i
		}
		sum := 0.0
		for j := i - k; j <= i+k; j++ {
			sum += vals[j]
		}
		out[i] = sum / float64(2*k+1)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
