package mesh

import (
	"errors"
	"math"

	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle is one face of a solid, with a unit normal.
type Triangle struct {
	A, B, C r3.Vec
	Normal  r3.Vec
}

// Solid is an immutable triangle soup with precomputed bounds. A Solid is
// never mutated after construction, so it is safe for concurrent readers.
// Version identifies the geometry for cache keying: callers that rebuild a
// solid should bump the version rather than edit triangles in place.
type Solid struct {
	Triangles []Triangle
	Version   int

	min, max r3.Vec
}

var ErrNoTriangles = errors.New("mesh: solid has no triangles")

func NewSolid(tris []Triangle, version int) (*Solid, error) {
	if len(tris) == 0 {
		return nil, ErrNoTriangles
	}

	s := &Solid{
		Triangles: tris,
		Version:   version,
		min:       r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		max:       r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}

	for i := range s.Triangles {
		t := &s.Triangles[i]
		if t.Normal == (r3.Vec{}) {
			n := r3.Cross(r3.Sub(t.B, t.A), r3.Sub(t.C, t.A))
			if l := r3.Norm(n); l > 1e-12 {
				t.Normal = r3.Scale(1/l, n)
			}
		}
		for _, v := range [3]r3.Vec{t.A, t.B, t.C} {
			s.min.X = math.Min(s.min.X, v.X)
			s.min.Y = math.Min(s.min.Y, v.Y)
			s.min.Z = math.Min(s.min.Z, v.Z)
			s.max.X = math.Max(s.max.X, v.X)
			s.max.Y = math.Max(s.max.Y, v.Y)
			s.max.Z = math.Max(s.max.Z, v.Z)
		}
	}

	return s, nil
}

// FromSTL converts a parsed STL solid. STL files store float32 vertices;
// everything downstream works in float64 mm.
func FromSTL(src *stl.Solid, version int) (*Solid, error) {
	tris := make([]Triangle, 0, len(src.Triangles))
	for i := range src.Triangles {
		t := &src.Triangles[i]
		tris = append(tris, Triangle{
			A:      vecFromSTL(t.Vertices[0]),
			B:      vecFromSTL(t.Vertices[1]),
			C:      vecFromSTL(t.Vertices[2]),
			Normal: vecFromSTL(t.Normal),
		})
	}
	return NewSolid(tris, version)
}

func vecFromSTL(v stl.Vec3) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

// Bounds returns the axis-aligned bounding box of the solid.
func (s *Solid) Bounds() (min, max r3.Vec) {
	return s.min, s.max
}

func (s *Solid) ZExtent() float64 {
	return s.max.Z - s.min.Z
}
