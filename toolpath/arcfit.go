package toolpath

import "math"

// Segment is either a LineSeg or an ArcSeg. Adjacent segments share their
// endpoints: End() of one equals Start() of the next. That continuity is what
// the motion emitter relies on to produce a gap-free program.
type Segment interface {
	Start() Point
	End() Point
}

type LineSeg struct {
	P0, P1 Point
}

func (s LineSeg) Start() Point { return s.P0 }
func (s LineSeg) End() Point   { return s.P1 }

// ArcSeg is a circular XY arc. When ZInterp is set, Z0/Z1 differ and the
// emitter interpolates Z linearly along the arc; otherwise Z0 == Z1 is the
// window's average height.
type ArcSeg struct {
	P0, P1   Point
	CX, CY   float64
	Radius   float64
	CW       bool
	ZInterp  bool
	Z0, Z1   float64
	StartAng float64
	EndAng   float64
}

func (s ArcSeg) Start() Point { return s.P0 }
func (s ArcSeg) End() Point   { return s.P1 }

type FitParams struct {
	// MaxDevMM bounds the radial error of every window point from the
	// fitted circle.
	MaxDevMM float64
	// MinPoints is the smallest window an arc may span.
	MinPoints int
	// MinLenMM rejects arcs shorter than this along the arc.
	MinLenMM float64
	// ZEpsMM is the Z range below which an arc is emitted at constant
	// height.
	ZEpsMM float64
}

func DefaultFitParams() FitParams {
	return FitParams{
		MaxDevMM:  0.03,
		MinPoints: 8,
		MinLenMM:  2.0,
		ZEpsMM:    0.005,
	}
}

// FitFallbacks counts why arc candidates were rejected, per reason.
type FitFallbacks struct {
	Dev  int // radial deviation above MaxDevMM
	Len  int // arc shorter than MinLenMM
	Geom int // near-collinear window, circle fit singular
}

type FitStats struct {
	PointCount int
	Skipped    int // non-finite input points dropped
	Arcs       int
	Lines      int
	Fallback   FitFallbacks
}

func (f FitFallbacks) Total() int {
	return f.Dev + f.Len + f.Geom
}

// FitSegments greedily compresses runs of near-circular points into arcs,
// emitting single-point line segments wherever no acceptable arc starts.
// Every input point appears in the output exactly once, as a shared endpoint
// between neighbors.
func FitSegments(points []Point, prm FitParams) ([]Segment, FitStats) {
	var stats FitStats

	pts := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.Finite() {
			stats.Skipped++
			continue
		}
		pts = append(pts, p)
	}
	stats.PointCount = len(pts)
	if len(pts) < 2 {
		return nil, stats
	}
	if prm.MinPoints < 3 {
		prm.MinPoints = 3
	}

	var segs []Segment
	n := len(pts)
	i := 0

	for i < n-1 {
		if n-i >= prm.MinPoints {
			if arc, end, ok := tryArc(pts, i, prm, &stats.Fallback); ok {
				segs = append(segs, arc)
				stats.Arcs++
				i = end
				continue
			}
		}
		segs = append(segs, LineSeg{P0: pts[i], P1: pts[i+1]})
		stats.Lines++
		i++
	}

	return segs, stats
}

// tryArc fits a circle to the trial window starting at i and greedily extends
// it one point at a time, keeping the longest window that still satisfies the
// deviation and length checks. It returns the index the arc ends at, which
// becomes the start of the next segment.
func tryArc(pts []Point, i int, prm FitParams, fb *FitFallbacks) (ArcSeg, int, bool) {
	n := len(pts)
	j := i + prm.MinPoints - 1

	p0 := pts[i]
	pmid := pts[(i+j)/2]
	plast := pts[j]

	cx, cy, r, ok := circleFromThree(p0, pmid, plast)
	if !ok {
		fb.Geom++
		return ArcSeg{}, 0, false
	}

	chord := p0.distXY(plast)
	cross := (pmid.X-p0.X)*(plast.Y-p0.Y) - (pmid.Y-p0.Y)*(plast.X-p0.X)
	cw := cross < 0

	maxErr := maxRadialError(pts[i:j+1], cx, cy, r)
	arcLen := sweepAngle(centerAngle(cx, cy, p0), centerAngle(cx, cy, plast), cw) * r

	if maxErr > prm.MaxDevMM {
		fb.Dev++
		return ArcSeg{}, 0, false
	}
	if arcLen < prm.MinLenMM {
		fb.Len++
		return ArcSeg{}, 0, false
	}
	if r <= 1e-6 || chord <= 1e-6 {
		fb.Geom++
		return ArcSeg{}, 0, false
	}

	bestJ, bestCX, bestCY, bestR := j, cx, cy, r
	for k := j + 1; k < n; k++ {
		kcx, kcy, kr, kok := circleFromThree(p0, pts[(i+k)/2], pts[k])
		if !kok {
			fb.Geom++
			break
		}
		if maxRadialError(pts[i:k+1], kcx, kcy, kr) > prm.MaxDevMM {
			break
		}
		if sweepAngle(centerAngle(kcx, kcy, p0), centerAngle(kcx, kcy, pts[k]), cw)*kr < prm.MinLenMM {
			break
		}
		bestJ, bestCX, bestCY, bestR = k, kcx, kcy, kr
	}

	pEnd := pts[bestJ]
	zLo, zHi := pts[i].Z, pts[i].Z
	zSum := 0.0
	for _, p := range pts[i : bestJ+1] {
		zLo = math.Min(zLo, p.Z)
		zHi = math.Max(zHi, p.Z)
		zSum += p.Z
	}

	arc := ArcSeg{
		P0:       p0,
		P1:       pEnd,
		CX:       bestCX,
		CY:       bestCY,
		Radius:   bestR,
		CW:       cw,
		StartAng: centerAngle(bestCX, bestCY, p0),
		EndAng:   centerAngle(bestCX, bestCY, pEnd),
	}
	if zHi-zLo <= prm.ZEpsMM {
		avg := zSum / float64(bestJ-i+1)
		arc.Z0, arc.Z1 = avg, avg
	} else {
		arc.ZInterp = true
		arc.Z0, arc.Z1 = p0.Z, pEnd.Z
	}

	return arc, bestJ, true
}

// circleFromThree solves the circumscribed circle in XY. It reports !ok when
// the three points are near-collinear and the linear system degenerates.
func circleFromThree(p0, p1, p2 Point) (cx, cy, r float64, ok bool) {
	x1, y1 := p0.X, p0.Y
	x2, y2 := p1.X, p1.Y
	x3, y3 := p2.X, p2.Y

	d := 2 * (x1*(y2-y3) + x2*(y3-y1) + x3*(y1-y2))
	if math.Abs(d) < 1e-9 {
		return 0, 0, 0, false
	}

	s1 := x1*x1 + y1*y1
	s2 := x2*x2 + y2*y2
	s3 := x3*x3 + y3*y3

	cx = (s1*(y2-y3) + s2*(y3-y1) + s3*(y1-y2)) / d
	cy = (s1*(x3-x2) + s2*(x1-x3) + s3*(x2-x1)) / d
	r = math.Hypot(x1-cx, y1-cy)
	return cx, cy, r, true
}

func maxRadialError(pts []Point, cx, cy, r float64) float64 {
	if r < 1e-9 {
		return math.Inf(1)
	}
	maxErr := 0.0
	for _, p := range pts {
		err := math.Abs(math.Hypot(p.X-cx, p.Y-cy) - r)
		if err > maxErr {
			maxErr = err
		}
	}
	return maxErr
}

func centerAngle(cx, cy float64, p Point) float64 {
	return math.Atan2(p.Y-cy, p.X-cx)
}

// sweepAngle is the non-negative angle traversed from a1 to a2 in the given
// direction.
func sweepAngle(a1, a2 float64, cw bool) float64 {
	var diff float64
	if cw {
		diff = a1 - a2
	} else {
		diff = a2 - a1
	}
	for diff < 0 {
		diff += 2 * math.Pi
	}
	return diff
}
