package toolpath

import (
	"fmt"
	"math"
)

// Issue flags one suspicious point found by Validate or Analyze. Severity is
// in the unit of the check (degrees for angle checks, mm for distance checks).
type Issue struct {
	Index    int
	Type     string
	Severity float64
	Message  string
}

const (
	IssueInvalidNum = "INVALID_NUM"
	IssueXOutside   = "X_OUT_OF_TABLE"
	IssueYOutside   = "Y_OUT_OF_TABLE"
	IssueZTooLow    = "Z_TOO_LOW"
	IssueZTooHigh   = "Z_TOO_HIGH"
	IssueABelow     = "A_BELOW_LIMIT"
	IssueAAbove     = "A_ABOVE_LIMIT"
	IssueAJump      = "A_JUMP"
	IssueZSpike     = "Z_SPIKE"
	IssueDirSharp   = "DIR_SHARP"
	IssueXYSpike    = "XY_SPIKE"
)

// Limits are machine envelope bounds for Validate. Zero table dimensions
// disable the table checks; the Check* flags gate the rest because zero is a
// meaningful bound for them.
type Limits struct {
	TableWidthMM  float64
	TableHeightMM float64

	ZMinMM    float64
	CheckZMin bool
	ZMaxMM    float64
	CheckZMax bool

	AMinDeg float64
	AMaxDeg float64
	CheckA  bool
}

// Validate checks every point against the machine envelope.
func Validate(points []Point, lim Limits) []Issue {
	var issues []Issue

	for i, p := range points {
		if !p.Finite() {
			issues = append(issues, Issue{
				Index:   i,
				Type:    IssueInvalidNum,
				Message: "point has NaN or infinite coordinates",
			})
			continue
		}

		if lim.TableWidthMM > 0 && (p.X < 0 || p.X > lim.TableWidthMM) {
			issues = append(issues, Issue{
				Index:    i,
				Type:     IssueXOutside,
				Severity: p.X,
				Message:  fmt.Sprintf("X outside table (X=%.3f mm)", p.X),
			})
		}
		if lim.TableHeightMM > 0 && (p.Y < 0 || p.Y > lim.TableHeightMM) {
			issues = append(issues, Issue{
				Index:    i,
				Type:     IssueYOutside,
				Severity: p.Y,
				Message:  fmt.Sprintf("Y outside table (Y=%.3f mm)", p.Y),
			})
		}
		if lim.CheckZMin && p.Z < lim.ZMinMM {
			issues = append(issues, Issue{
				Index:    i,
				Type:     IssueZTooLow,
				Severity: lim.ZMinMM - p.Z,
				Message:  fmt.Sprintf("Z below allowed minimum (Z=%.3f mm)", p.Z),
			})
		}
		if lim.CheckZMax && p.Z > lim.ZMaxMM {
			issues = append(issues, Issue{
				Index:    i,
				Type:     IssueZTooHigh,
				Severity: p.Z - lim.ZMaxMM,
				Message:  fmt.Sprintf("Z above allowed maximum (Z=%.3f mm)", p.Z),
			})
		}
		if lim.CheckA && p.HasA {
			if p.A < lim.AMinDeg {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueABelow,
					Severity: lim.AMinDeg - p.A,
					Message:  fmt.Sprintf("A below allowed minimum (A=%.2f°)", p.A),
				})
			}
			if p.A > lim.AMaxDeg {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueAAbove,
					Severity: p.A - lim.AMaxDeg,
					Message:  fmt.Sprintf("A above allowed maximum (A=%.2f°)", p.A),
				})
			}
		}
	}

	return issues
}

// Thresholds tune Analyze. Zero values disable the corresponding check.
type Thresholds struct {
	AJumpDeg    float64
	ZSpikeMM    float64
	DirSharpDeg float64
	XYSpikeMM   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AJumpDeg:    30.0,
		ZSpikeMM:    2.0,
		DirSharpDeg: 30.0,
		XYSpikeMM:   0.3,
	}
}

// Analyze scans a toolpath for abrupt A jumps, Z spikes, sharp in-plane
// direction changes, and local XY bulges relative to a wide reference chord.
// It reports problems; it never modifies the path.
func Analyze(points []Point, th Thresholds) []Issue {
	var issues []Issue
	if len(points) < 3 {
		return issues
	}

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		p := points[i]

		if th.AJumpDeg > 0 && prev.HasA && p.HasA {
			da := math.Abs(AngleDelta(p.A, prev.A))
			if da >= th.AJumpDeg {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueAJump,
					Severity: da,
					Message:  fmt.Sprintf("abrupt A change: %.1f° -> %.1f° (|ΔA|=%.1f°)", prev.A, p.A, da),
				})
			}
		}

		if th.ZSpikeMM > 0 {
			dz := math.Abs(p.Z - prev.Z)
			if dz >= th.ZSpikeMM {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueZSpike,
					Severity: dz,
					Message:  fmt.Sprintf("abrupt Z change: %.3f mm -> %.3f mm (|ΔZ|=%.3f mm)", prev.Z, p.Z, dz),
				})
			}
		}
	}

	// vertex angle with both chords emanating from the corner point:
	// straight travel is 180°, a hairpin spike approaches 0°
	if th.DirSharpDeg > 0 {
		for i := 1; i < len(points)-1; i++ {
			v1x := points[i-1].X - points[i].X
			v1y := points[i-1].Y - points[i].Y
			v2x := points[i+1].X - points[i].X
			v2y := points[i+1].Y - points[i].Y
			ang := vectorAngleDeg(v1x, v1y, v2x, v2y)
			if ang > 0 && ang <= th.DirSharpDeg {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueDirSharp,
					Severity: ang,
					Message:  fmt.Sprintf("sharp direction change near point #%d (≈%.1f°)", i, ang),
				})
			}
		}
	}

	// local bulges: deviation of p[i] from the chord p[i-5]..p[i+5]; the
	// wide window makes shallow mm-scale bumps visible where a 3-point
	// window would not
	if th.XYSpikeMM > 0 && len(points) >= 11 {
		for i := 5; i < len(points)-5; i++ {
			d := pointChordDistXY(points[i], points[i-5], points[i+5])
			if d >= th.XYSpikeMM {
				issues = append(issues, Issue{
					Index:    i,
					Type:     IssueXYSpike,
					Severity: d,
					Message:  fmt.Sprintf("local contour bulge: deviation from reference chord ≈%.3f mm", d),
				})
			}
		}
	}

	return issues
}

func vectorAngleDeg(x1, y1, x2, y2 float64) float64 {
	n1 := math.Hypot(x1, y1)
	n2 := math.Hypot(x2, y2)
	if n1 < 1e-6 || n2 < 1e-6 {
		return 0
	}
	dot := (x1*x2 + y1*y2) / (n1 * n2)
	dot = math.Max(-1, math.Min(1, dot))
	return math.Acos(dot) * 180.0 / math.Pi
}

// pointChordDistXY is the XY distance from p to the segment a..b.
func pointChordDistXY(p, a, b Point) float64 {
	vx := b.X - a.X
	vy := b.Y - a.Y
	wx := p.X - a.X
	wy := p.Y - a.Y

	segLenSq := vx*vx + vy*vy
	if segLenSq <= 1e-9 {
		return math.Hypot(wx, wy)
	}

	t := (wx*vx + wy*vy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.X-(a.X+t*vx), p.Y-(a.Y+t*vy))
}
