package mesh

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// RayHit is one intersection between a ray and the solid surface. A zero
// Normal means the face had no usable normal.
type RayHit struct {
	P      r3.Vec
	Normal r3.Vec
}

const rayEpsilon = 1e-9

// Intersector answers ray queries against one solid. Vertical rays (the
// common case: the height resolver only ever casts along ±Z) are accelerated
// by an XY grid built once at construction; other directions scan all
// triangles. An Intersector is read-only after construction and safe for
// concurrent use.
type Intersector struct {
	solid *Solid

	cellSize float64
	nx, ny   int
	cells    [][]int32
}

func NewIntersector(s *Solid) *Intersector {
	in := &Intersector{solid: s}

	w := s.max.X - s.min.X
	h := s.max.Y - s.min.Y
	// aim for a few triangles per cell
	target := math.Sqrt(float64(len(s.Triangles)))
	in.cellSize = math.Max(w, h) / math.Max(1, target)
	if in.cellSize <= 0 || math.IsInf(in.cellSize, 0) || math.IsNaN(in.cellSize) {
		in.cellSize = 1
	}
	in.nx = int(w/in.cellSize) + 1
	in.ny = int(h/in.cellSize) + 1
	in.cells = make([][]int32, in.nx*in.ny)

	for i := range s.Triangles {
		t := &s.Triangles[i]
		minX := math.Min(t.A.X, math.Min(t.B.X, t.C.X))
		maxX := math.Max(t.A.X, math.Max(t.B.X, t.C.X))
		minY := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y))
		maxY := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y))
		cx0, cy0 := in.cellIndex(minX, minY)
		cx1, cy1 := in.cellIndex(maxX, maxY)
		for cy := cy0; cy <= cy1; cy++ {
			for cx := cx0; cx <= cx1; cx++ {
				n := cy*in.nx + cx
				in.cells[n] = append(in.cells[n], int32(i))
			}
		}
	}

	return in
}

func (in *Intersector) cellIndex(x, y float64) (int, int) {
	cx := int((x - in.solid.min.X) / in.cellSize)
	cy := int((y - in.solid.min.Y) / in.cellSize)
	if cx < 0 {
		cx = 0
	}
	if cx >= in.nx {
		cx = in.nx - 1
	}
	if cy < 0 {
		cy = 0
	}
	if cy >= in.ny {
		cy = in.ny - 1
	}
	return cx, cy
}

// Bounds exposes the solid's bounding box so that an Intersector satisfies
// the caster interface the height resolver consumes.
func (in *Intersector) Bounds() (min, max r3.Vec) {
	return in.solid.Bounds()
}

// Cast returns every intersection of the ray with the solid, ordered by
// distance along the ray. Multiple hits are expected with closed solids:
// a vertical ray through a plate reports both the top and bottom face.
func (in *Intersector) Cast(origin, dir r3.Vec) []RayHit {
	var hits []RayHit
	vertical := math.Abs(dir.X) < rayEpsilon && math.Abs(dir.Y) < rayEpsilon

	appendHit := func(i int32) {
		t := &in.solid.Triangles[i]
		if dist, ok := intersectTriangle(origin, dir, t); ok {
			hits = append(hits, RayHit{
				P:      r3.Add(origin, r3.Scale(dist, dir)),
				Normal: t.Normal,
			})
		}
	}

	if vertical {
		cx, cy := in.cellIndex(origin.X, origin.Y)
		for _, i := range in.cells[cy*in.nx+cx] {
			appendHit(i)
		}
	} else {
		for i := range in.solid.Triangles {
			appendHit(int32(i))
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		da := r3.Norm(r3.Sub(hits[a].P, origin))
		db := r3.Norm(r3.Sub(hits[b].P, origin))
		return da < db
	})

	return hits
}

// intersectTriangle is the Möller–Trumbore ray/triangle test. It returns the
// distance along dir (dir is assumed unit length) and whether the ray hits.
func intersectTriangle(origin, dir r3.Vec, t *Triangle) (float64, bool) {
	e1 := r3.Sub(t.B, t.A)
	e2 := r3.Sub(t.C, t.A)

	p := r3.Cross(dir, e2)
	det := r3.Dot(e1, p)
	if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det

	s := r3.Sub(origin, t.A)
	u := r3.Dot(s, p) * inv
	if u < -rayEpsilon || u > 1+rayEpsilon {
		return 0, false
	}

	q := r3.Cross(s, e1)
	v := r3.Dot(dir, q) * inv
	if v < -rayEpsilon || u+v > 1+rayEpsilon {
		return 0, false
	}

	dist := r3.Dot(e2, q) * inv
	if dist < rayEpsilon {
		return 0, false
	}
	return dist, true
}
