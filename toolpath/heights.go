package toolpath

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/lotuspc25/XYZA/mesh"
)

// ZMode selects how a Z height is picked from the ray hits at each outline
// point.
type ZMode int

const (
	// ZTop takes the highest hit (top surface).
	ZTop ZMode = iota
	// ZMid takes the midpoint of the extreme hit heights. The midpoint is
	// not a surface point; it is a deliberate average-height approximation.
	ZMid
	// ZBottom takes the lowest hit (bottom surface).
	ZBottom
	// ZTopCont prefers the hit nearest the previous resolved height and
	// falls back to ZTop beyond the continuity gap.
	ZTopCont
	// ZBottomCont is ZTopCont with a ZBottom fallback.
	ZBottomCont
	// ZScoreCont scores hits by height distance and normal similarity to
	// the previous hit, favoring smooth surface continuation.
	ZScoreCont
	// ZNearest3D takes the hit nearest the previous hit in 3D.
	ZNearest3D
	// ZDualCont casts from above and below, merges both hit pools, and
	// applies ZTopCont continuity.
	ZDualCont
)

var zModeNames = map[ZMode]string{
	ZTop:        "top",
	ZMid:        "mid",
	ZBottom:     "bottom",
	ZTopCont:    "top-cont",
	ZBottomCont: "bottom-cont",
	ZScoreCont:  "score-cont",
	ZNearest3D:  "nearest3d",
	ZDualCont:   "dual-cont",
}

func (m ZMode) String() string {
	if s, ok := zModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ZMode(%d)", int(m))
}

func ParseZMode(s string) (ZMode, error) {
	for m, name := range zModeNames {
		if s == name {
			return m, nil
		}
	}
	return ZTop, fmt.Errorf("unrecognised z mode: %q", s)
}

func (m ZMode) continuity() bool {
	switch m {
	case ZTopCont, ZBottomCont, ZScoreCont, ZNearest3D, ZDualCont:
		return true
	}
	return false
}

// Caster is the ray-query capability the resolver depends on. Implementations
// must support multiple hits per ray and be safe for concurrent read-only
// queries; mesh.Intersector is the canonical one.
type Caster interface {
	Cast(origin, dir r3.Vec) []mesh.RayHit
	Bounds() (min, max r3.Vec)
}

// ResolveParams are the continuity tuning constants. The defaults are
// empirical; they are exposed as parameters rather than baked in.
type ResolveParams struct {
	// GapMM is the floor of the continuity gap threshold; the effective
	// threshold is max(GapMM, GapFrac * solid Z extent).
	GapMM   float64
	GapFrac float64

	// ZScoreCont weights: score = WeightZ*|dz| - WeightNormal*dot(n0,n1).
	WeightZ      float64
	WeightNormal float64
}

func DefaultResolveParams() ResolveParams {
	return ResolveParams{
		GapMM:        5.0,
		GapFrac:      0.05,
		WeightZ:      1.0,
		WeightNormal: 5.0,
	}
}

// ResolveStats is observability output only; nothing downstream branches on
// it.
type ResolveStats struct {
	Mode ZMode
	// MultiHit counts points whose ray pierced more than one surface.
	MultiHit int
	// ContinuityUsed counts points where a previous hit existed and a
	// continuity-aware mode had candidates to choose between.
	ContinuityUsed int
	// Fallbacks counts continuity choices rejected by the gap threshold.
	Fallbacks int
	// Misses counts points with zero ray hits, resolved to the solid's
	// minimum Z.
	Misses int
}

// ResolveHeights casts a vertical ray at every outline point and picks a Z
// per the mode. Resolution is inherently sequential: continuity modes depend
// on the hit chosen for the previous point, so points are processed in order
// and the only carried state is that single previous hit. Cancellation is
// checked between points; a cancelled resolve returns no partial heights.
func ResolveHeights(ctx context.Context, caster Caster, pts []XY, mode ZMode, prm ResolveParams) ([]float64, ResolveStats, error) {
	stats := ResolveStats{Mode: mode}
	if len(pts) == 0 {
		return nil, stats, nil
	}

	min, max := caster.Bounds()
	zMin, zMax := min.Z, max.Z
	margin := math.Max(1.0, (zMax-zMin)*0.1)
	gap := math.Max(prm.GapMM, (zMax-zMin)*prm.GapFrac)

	down := r3.Vec{Z: -1}
	up := r3.Vec{Z: 1}

	zs := make([]float64, len(pts))
	var prev *mesh.RayHit

	for i, p := range pts {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		hits := caster.Cast(r3.Vec{X: p.X, Y: p.Y, Z: zMax + margin}, down)
		if mode == ZDualCont {
			hits = append(hits, caster.Cast(r3.Vec{X: p.X, Y: p.Y, Z: zMin - margin}, up)...)
		}

		if len(hits) > 1 {
			stats.MultiHit++
		}
		if prev != nil && mode.continuity() && len(hits) > 0 {
			stats.ContinuityUsed++
		}

		chosen, fallback := chooseHit(mode, prev, hits, gap, prm)
		if chosen == nil {
			// conservative failure mode: no interpolation from
			// neighbors, just the solid's floor
			zs[i] = zMin
			stats.Misses++
			continue
		}
		if fallback {
			stats.Fallbacks++
		}
		zs[i] = chosen.P.Z
		prev = chosen
	}

	return zs, stats, nil
}

func chooseHit(mode ZMode, prev *mesh.RayHit, hits []mesh.RayHit, gap float64, prm ResolveParams) (*mesh.RayHit, bool) {
	if len(hits) == 0 {
		return nil, false
	}

	switch mode {
	case ZTop:
		return topHit(hits), false
	case ZBottom:
		return bottomHit(hits), false
	case ZMid:
		hi := topHit(hits).P.Z
		lo := bottomHit(hits).P.Z
		h := hits[0]
		h.P.Z = (hi + lo) * 0.5
		return &h, false
	}

	if prev == nil {
		if mode == ZBottomCont {
			return bottomHit(hits), false
		}
		return topHit(hits), false
	}

	switch mode {
	case ZTopCont, ZBottomCont, ZDualCont:
		chosen := nearestZHit(hits, prev.P.Z)
		if math.Abs(chosen.P.Z-prev.P.Z) > gap {
			if mode == ZBottomCont {
				return bottomHit(hits), true
			}
			return topHit(hits), true
		}
		return chosen, false

	case ZScoreCont:
		var best *mesh.RayHit
		bestScore := math.Inf(1)
		for i := range hits {
			h := &hits[i]
			dz := math.Abs(h.P.Z - prev.P.Z)
			score := prm.WeightZ*dz - prm.WeightNormal*normalDot(prev.Normal, h.Normal)
			if score < bestScore {
				bestScore = score
				best = h
			}
		}
		return best, false

	case ZNearest3D:
		var best *mesh.RayHit
		bestDist := math.Inf(1)
		for i := range hits {
			h := &hits[i]
			d := r3.Norm(r3.Sub(h.P, prev.P))
			if d < bestDist {
				bestDist = d
				best = h
			}
		}
		return best, false
	}

	return topHit(hits), false
}

func topHit(hits []mesh.RayHit) *mesh.RayHit {
	best := &hits[0]
	for i := 1; i < len(hits); i++ {
		if hits[i].P.Z > best.P.Z {
			best = &hits[i]
		}
	}
	return best
}

func bottomHit(hits []mesh.RayHit) *mesh.RayHit {
	best := &hits[0]
	for i := 1; i < len(hits); i++ {
		if hits[i].P.Z < best.P.Z {
			best = &hits[i]
		}
	}
	return best
}

func nearestZHit(hits []mesh.RayHit, z float64) *mesh.RayHit {
	best := &hits[0]
	for i := 1; i < len(hits); i++ {
		if math.Abs(hits[i].P.Z-z) < math.Abs(best.P.Z-z) {
			best = &hits[i]
		}
	}
	return best
}

// normalDot is the cosine similarity of two face normals, 0 when either is
// missing (zero).
func normalDot(a, b r3.Vec) float64 {
	na := r3.Norm(a)
	nb := r3.Norm(b)
	if na < 1e-9 || nb < 1e-9 {
		return 0
	}
	return r3.Dot(a, b) / (na * nb)
}
