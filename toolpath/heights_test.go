package toolpath

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/lotuspc25/XYZA/mesh"
)

// fakeCaster serves canned hits per ray so resolver behavior can be pinned
// down without building meshes.
type fakeCaster struct {
	min, max r3.Vec
	cast     func(origin, dir r3.Vec) []mesh.RayHit
}

func (f *fakeCaster) Cast(origin, dir r3.Vec) []mesh.RayHit { return f.cast(origin, dir) }
func (f *fakeCaster) Bounds() (r3.Vec, r3.Vec)              { return f.min, f.max }

func hitAt(z float64, normal r3.Vec) mesh.RayHit {
	return mesh.RayHit{P: r3.Vec{Z: z}, Normal: normal}
}

func plates(zs ...float64) func(origin, dir r3.Vec) []mesh.RayHit {
	return func(origin, dir r3.Vec) []mesh.RayHit {
		if dir.Z > 0 {
			return nil
		}
		hits := make([]mesh.RayHit, 0, len(zs))
		for _, z := range zs {
			hits = append(hits, hitAt(z, r3.Vec{Z: 1}))
		}
		return hits
	}
}

func resolve(t *testing.T, c Caster, pts []XY, mode ZMode) ([]float64, ResolveStats) {
	t.Helper()
	zs, stats, err := ResolveHeights(context.Background(), c, pts, mode, DefaultResolveParams())
	require.NoError(t, err)
	require.Len(t, zs, len(pts))
	return zs, stats
}

func TestResolveTopMidBottom(t *testing.T) {
	c := &fakeCaster{max: r3.Vec{Z: 10}, cast: plates(0, 10)}
	pts := []XY{{1, 1}, {2, 2}}

	zs, stats := resolve(t, c, pts, ZTop)
	assert.Equal(t, []float64{10, 10}, zs)
	assert.Equal(t, 2, stats.MultiHit)

	zs, _ = resolve(t, c, pts, ZBottom)
	assert.Equal(t, []float64{0, 0}, zs)

	zs, _ = resolve(t, c, pts, ZMid)
	assert.Equal(t, []float64{5, 5}, zs)
}

// After a first point that pins the previous hit at a low surface, a
// continuity mode keeps following that surface where plain top would jump to
// the upper one.
func TestContinuityFollowsNearSurface(t *testing.T) {
	c := &fakeCaster{
		max: r3.Vec{Z: 10},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if origin.X < 0.5 {
				return []mesh.RayHit{hitAt(2, r3.Vec{Z: 1})}
			}
			return []mesh.RayHit{hitAt(0, r3.Vec{Z: 1}), hitAt(10, r3.Vec{Z: 1})}
		},
	}
	pts := []XY{{0, 0}, {1, 0}, {2, 0}}

	zs, stats := resolve(t, c, pts, ZTopCont)
	assert.Equal(t, []float64{2, 0, 0}, zs)
	assert.Equal(t, 2, stats.ContinuityUsed)
	assert.Equal(t, 0, stats.Fallbacks)

	zs, _ = resolve(t, c, pts, ZTop)
	assert.Equal(t, []float64{2, 10, 10}, zs)
}

// A hit beyond the continuity gap is rejected and the mode's base pick wins.
func TestContinuityGapFallback(t *testing.T) {
	c := &fakeCaster{
		max: r3.Vec{Z: 30},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if origin.X < 0.5 {
				return []mesh.RayHit{hitAt(0, r3.Vec{Z: 1})}
			}
			return []mesh.RayHit{hitAt(20, r3.Vec{Z: 1}), hitAt(30, r3.Vec{Z: 1})}
		},
	}
	pts := []XY{{0, 0}, {1, 0}}

	// gap = max(5, 0.05*30) = 5; nearest hit is 20mm away
	zs, stats := resolve(t, c, pts, ZTopCont)
	assert.Equal(t, []float64{0, 30}, zs)
	assert.Equal(t, 1, stats.Fallbacks)

	zs, _ = resolve(t, c, pts, ZBottomCont)
	assert.Equal(t, []float64{0, 20}, zs)
}

func TestBottomContStartsAtBottom(t *testing.T) {
	c := &fakeCaster{max: r3.Vec{Z: 10}, cast: plates(0, 10)}
	zs, _ := resolve(t, c, []XY{{0, 0}}, ZBottomCont)
	assert.Equal(t, []float64{0}, zs)
}

func TestScoreContPrefersMatchingNormal(t *testing.T) {
	up := r3.Vec{Z: 1}
	side := r3.Vec{X: 1}
	c := &fakeCaster{
		max: r3.Vec{Z: 10},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if origin.X < 0.5 {
				return []mesh.RayHit{hitAt(5, up)}
			}
			// near hit with a wrong-facing normal vs a farther hit
			// continuing the same surface
			return []mesh.RayHit{hitAt(5.5, side), hitAt(7, up)}
		},
	}
	pts := []XY{{0, 0}, {1, 0}}

	// scores: 0.5*1 - 0*5 = 0.5 vs 2*1 - 1*5 = -3
	zs, _ := resolve(t, c, pts, ZScoreCont)
	assert.Equal(t, []float64{5, 7}, zs)
}

func TestDualContMergesUpwardHits(t *testing.T) {
	upCasts := 0
	c := &fakeCaster{
		min: r3.Vec{Z: -2}, max: r3.Vec{Z: 10},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if dir.Z > 0 {
				upCasts++
				return []mesh.RayHit{hitAt(-2, r3.Vec{Z: -1})}
			}
			return []mesh.RayHit{hitAt(10, r3.Vec{Z: 1})}
		},
	}
	pts := []XY{{0, 0}, {1, 0}}

	_, stats := resolve(t, c, pts, ZTop)
	assert.Equal(t, 0, upCasts, "single-direction mode must not cast upward")
	assert.Equal(t, 0, stats.MultiHit)

	zs, stats := resolve(t, c, pts, ZDualCont)
	assert.Equal(t, 2, upCasts)
	assert.Equal(t, 2, stats.MultiHit)
	// first point takes the top of the merged pool, then continuity holds
	assert.Equal(t, []float64{10, 10}, zs)
}

func TestNearest3DFollowsPreviousHit(t *testing.T) {
	c := &fakeCaster{
		max: r3.Vec{Z: 10},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if origin.X < 0.5 {
				return []mesh.RayHit{hitAt(3, r3.Vec{Z: 1})}
			}
			return []mesh.RayHit{
				{P: r3.Vec{X: origin.X, Z: 2.5}, Normal: r3.Vec{Z: 1}},
				{P: r3.Vec{X: origin.X, Z: 9}, Normal: r3.Vec{Z: 1}},
			}
		},
	}

	zs, _ := resolve(t, c, []XY{{0, 0}, {1, 0}}, ZNearest3D)
	assert.Equal(t, []float64{3, 2.5}, zs)
}

// A miss resolves to the solid's floor and must not disturb the carried
// previous hit.
func TestMissResolvesToFloor(t *testing.T) {
	c := &fakeCaster{
		min: r3.Vec{Z: -3}, max: r3.Vec{Z: 10},
		cast: func(origin, dir r3.Vec) []mesh.RayHit {
			if origin.X > 0.5 && origin.X < 1.5 {
				return nil
			}
			return []mesh.RayHit{hitAt(4, r3.Vec{Z: 1}), hitAt(10, r3.Vec{Z: 1})}
		},
	}
	pts := []XY{{0, 0}, {1, 0}, {2, 0}}

	zs, stats := resolve(t, c, pts, ZTopCont)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, -3.0, zs[1])
	// prev is still the z=10 hit from point 0, not the floor
	assert.Equal(t, 10.0, zs[2])
}

func TestResolveCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &fakeCaster{max: r3.Vec{Z: 10}, cast: plates(5)}
	zs, _, err := ResolveHeights(ctx, c, []XY{{0, 0}, {1, 0}}, ZTop, DefaultResolveParams())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, zs)
}

func TestResolveEmptyOutline(t *testing.T) {
	c := &fakeCaster{max: r3.Vec{Z: 10}, cast: plates(5)}
	zs, _, err := ResolveHeights(context.Background(), c, nil, ZTop, DefaultResolveParams())
	require.NoError(t, err)
	assert.Empty(t, zs)
}

func TestParseZMode(t *testing.T) {
	for _, name := range []string{"top", "mid", "bottom", "top-cont", "bottom-cont", "score-cont", "nearest3d", "dual-cont"} {
		m, err := ParseZMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err := ParseZMode("sideways")
	assert.Error(t, err)
}
