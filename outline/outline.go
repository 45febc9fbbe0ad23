// Package outline extracts a machinable 2D contour from a solid: the convex
// silhouette of its upward-facing surface, optionally offset, smoothed, and
// resampled to a uniform step.
package outline

import (
	"errors"
	"math"
	"sort"

	"github.com/lotuspc25/XYZA/mesh"
	"github.com/lotuspc25/XYZA/toolpath"
)

// ErrDegenerateOutline is returned when the silhouette collapses below a
// polygon (fewer than 3 distinct hull points).
var ErrDegenerateOutline = errors.New("outline: degenerate silhouette, need at least 3 hull points")

// Params control contour post-processing. Zero values mean "skip the step".
type Params struct {
	// OffsetMM displaces the contour along its outward normals; positive
	// grows it, negative shrinks it.
	OffsetMM float64
	// SmoothPasses applies the closed-polyline neighbor blend this many
	// times.
	SmoothPasses int
	// SampleStepMM resamples the closed contour to this spacing.
	SampleStepMM float64
}

// smoothing weights for one pass: each vertex keeps most of itself and takes
// a little of each neighbor, then the triple is renormalized
const (
	smoothCenter   = 0.7
	smoothNeighbor = 0.15
)

// FromSolid projects the upward-facing triangles of the solid to XY and
// returns the processed convex silhouette as a closed polyline (first point
// repeated last).
func FromSolid(s *mesh.Solid, prm Params) ([]toolpath.XY, error) {
	var pts []toolpath.XY
	for _, tri := range s.Triangles {
		if tri.Normal.Z <= 0 {
			continue
		}
		pts = append(pts,
			toolpath.XY{X: tri.A.X, Y: tri.A.Y},
			toolpath.XY{X: tri.B.X, Y: tri.B.Y},
			toolpath.XY{X: tri.C.X, Y: tri.C.Y},
		)
	}
	return FromPoints(pts, prm)
}

// FromPoints is the point-cloud entry used by FromSolid and by tests.
func FromPoints(pts []toolpath.XY, prm Params) ([]toolpath.XY, error) {
	hull := convexHull(pts)
	if len(hull) < 3 {
		return nil, ErrDegenerateOutline
	}

	if prm.OffsetMM != 0 {
		hull = offsetClosed(hull, prm.OffsetMM)
	}
	for p := 0; p < prm.SmoothPasses; p++ {
		hull = smoothClosed(hull)
	}
	if prm.SampleStepMM > 0 {
		hull = resampleClosed(hull, prm.SampleStepMM)
		if len(hull) < 3 {
			return nil, ErrDegenerateOutline
		}
	}

	// close the loop
	hull = append(hull, hull[0])
	return hull, nil
}

// convexHull is Andrew's monotone chain, counter-clockwise, without the
// closing duplicate.
func convexHull(pts []toolpath.XY) []toolpath.XY {
	uniq := dedupe(pts)
	n := len(uniq)
	if n < 3 {
		return uniq
	}

	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].X != uniq[j].X {
			return uniq[i].X < uniq[j].X
		}
		return uniq[i].Y < uniq[j].Y
	})

	hull := make([]toolpath.XY, 0, 2*n)
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}

func dedupe(pts []toolpath.XY) []toolpath.XY {
	seen := make(map[toolpath.XY]struct{}, len(pts))
	out := make([]toolpath.XY, 0, len(pts))
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func cross(o, a, b toolpath.XY) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// offsetClosed displaces each vertex along the outward bisector of its two
// edge normals. The polygon is CCW, so outward is to the right of travel.
func offsetClosed(poly []toolpath.XY, dist float64) []toolpath.XY {
	n := len(poly)
	out := make([]toolpath.XY, n)
	for i := range poly {
		prev := poly[(i-1+n)%n]
		next := poly[(i+1)%n]

		nx1, ny1 := edgeNormal(prev, poly[i])
		nx2, ny2 := edgeNormal(poly[i], next)
		bx, by := nx1+nx2, ny1+ny2
		l := math.Hypot(bx, by)
		if l < 1e-9 {
			out[i] = poly[i]
			continue
		}
		out[i] = toolpath.XY{
			X: poly[i].X + dist*bx/l,
			Y: poly[i].Y + dist*by/l,
		}
	}
	return out
}

// edgeNormal is the unit outward normal of edge a->b on a CCW polygon.
func edgeNormal(a, b toolpath.XY) (float64, float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l < 1e-9 {
		return 0, 0
	}
	return dy / l, -dx / l
}

func smoothClosed(poly []toolpath.XY) []toolpath.XY {
	n := len(poly)
	if n < 3 {
		return poly
	}
	total := smoothCenter + 2*smoothNeighbor
	out := make([]toolpath.XY, n)
	for i := range poly {
		prev := poly[(i-1+n)%n]
		next := poly[(i+1)%n]
		out[i] = toolpath.XY{
			X: (smoothCenter*poly[i].X + smoothNeighbor*prev.X + smoothNeighbor*next.X) / total,
			Y: (smoothCenter*poly[i].Y + smoothNeighbor*prev.Y + smoothNeighbor*next.Y) / total,
		}
	}
	return out
}

// resampleClosed walks the closed perimeter and emits points every step mm.
// The returned polyline is open; the caller closes it.
func resampleClosed(poly []toolpath.XY, step float64) []toolpath.XY {
	n := len(poly)
	perim := 0.0
	for i := 0; i < n; i++ {
		perim += distXY(poly[i], poly[(i+1)%n])
	}
	if perim < step || perim < 1e-9 {
		return poly
	}

	count := int(perim / step)
	out := make([]toolpath.XY, 0, count)

	seg := 0
	segStart := 0.0
	segLen := distXY(poly[0], poly[1%n])
	for k := 0; k < count; k++ {
		target := float64(k) * step
		for target > segStart+segLen && seg < n-1 {
			segStart += segLen
			seg++
			segLen = distXY(poly[seg], poly[(seg+1)%n])
		}
		t := 0.0
		if segLen > 1e-9 {
			t = (target - segStart) / segLen
		}
		a := poly[seg]
		b := poly[(seg+1)%n]
		out = append(out, toolpath.XY{
			X: a.X + t*(b.X-a.X),
			Y: a.Y + t*(b.Y-a.Y),
		})
	}
	return out
}

func distXY(a, b toolpath.XY) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
