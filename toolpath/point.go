// Package toolpath turns a 2D outline of a workpiece into machine poses for a
// tangential knife: per-point Z from ray queries against the solid, a rotary A
// angle following the cut tangent, and line/arc segments ready for G-code
// emission.
package toolpath

import "math"

// XY is a 2D outline sample in mm.
type XY struct {
	X, Y float64
}

// Point is a single machine pose. A is in degrees and continuous (not wrapped
// to ±180): the angle synthesizer unwraps headings so that the rotary axis
// never takes a 360° shortcut. HasA is false for points that never went
// through angle synthesis.
type Point struct {
	X, Y, Z float64
	A       float64
	HasA    bool
}

func XYZ(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z}
}

func XYZA(x, y, z, a float64) Point {
	return Point{X: x, Y: y, Z: z, A: a, HasA: true}
}

func (p Point) Finite() bool {
	ok := !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
	if ok && p.HasA {
		ok = !math.IsNaN(p.A) && !math.IsInf(p.A, 0)
	}
	return ok
}

func (p Point) distXY(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

func (p Point) dist3D(q Point) float64 {
	dx := q.X - p.X
	dy := q.Y - p.Y
	dz := q.Z - p.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// AssemblePoints zips the outline, resolved heights and synthesized angles
// into toolpath points. The slices are truncated to the shortest length.
func AssemblePoints(xy []XY, z []float64, a []float64) []Point {
	n := len(xy)
	if len(z) < n {
		n = len(z)
	}
	if len(a) < n {
		n = len(a)
	}
	pts := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, XYZA(xy[i].X, xy[i].Y, z[i], a[i]))
	}
	return pts
}

// ResampleByStep resamples the polyline to an approximately uniform arc-length
// step, interpolating X/Y/Z/A linearly. A zero or negative step returns a copy
// of the input. The first and last input points are always preserved.
func ResampleByStep(points []Point, stepMM float64) []Point {
	if len(points) == 0 {
		return nil
	}
	if stepMM <= 0 || len(points) < 2 {
		out := make([]Point, len(points))
		copy(out, points)
		return out
	}

	cum := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cum[i] = cum[i-1] + points[i-1].dist3D(points[i])
	}
	total := cum[len(cum)-1]
	if total <= 1e-6 {
		out := make([]Point, len(points))
		copy(out, points)
		return out
	}

	var targets []float64
	for s := 0.0; s < total; s += stepMM {
		targets = append(targets, s)
	}
	if targets[len(targets)-1] < total {
		targets = append(targets, total)
	}

	out := make([]Point, 0, len(targets))
	j := 0
	for _, ts := range targets {
		for j < len(cum)-2 && cum[j+1] < ts {
			j++
		}
		s0 := cum[j]
		s1 := cum[j+1]
		t := 0.0
		if s1-s0 > 1e-6 {
			t = (ts - s0) / (s1 - s0)
		}

		p0 := points[j]
		p1 := points[j+1]
		p := Point{
			X:    p0.X + t*(p1.X-p0.X),
			Y:    p0.Y + t*(p1.Y-p0.Y),
			Z:    p0.Z + t*(p1.Z-p0.Z),
			HasA: p0.HasA && p1.HasA,
		}
		if p.HasA {
			// angles are already unwrapped, plain lerp is exact
			p.A = p0.A + t*(p1.A-p0.A)
		}
		out = append(out, p)
	}
	return out
}
