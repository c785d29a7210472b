package culling

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/world"
)

// Plane is a*x + b*y + c*z + d = 0 with a unit normal pointing inwards.
type Plane struct {
	A, B, C, D float32
}

// Distance returns the signed distance of p from the plane.
func (p Plane) Distance(v mgl32.Vec3) float32 {
	return p.A*v.X() + p.B*v.Y() + p.C*v.Z() + p.D
}

// Frustum is six planes in the order left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts the planes of a combined projection*view matrix.
func FrustumFromMatrix(clip mgl32.Mat4) Frustum {
	// mgl32 matrices are column-major.
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	var f Frustum
	f.Planes[0] = normalizePlane(Plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03})
	f.Planes[1] = normalizePlane(Plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03})
	f.Planes[2] = normalizePlane(Plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13})
	f.Planes[3] = normalizePlane(Plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13})
	f.Planes[4] = normalizePlane(Plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23})
	f.Planes[5] = normalizePlane(Plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23})
	return f
}

func normalizePlane(p Plane) Plane {
	l := float32(math.Sqrt(float64(p.A*p.A + p.B*p.B + p.C*p.C)))
	if l == 0 {
		return p
	}
	return Plane{p.A / l, p.B / l, p.C / l, p.D / l}
}

// IntersectsAABB reports whether the box may be visible. It never rejects a
// box that overlaps the frustum, but may accept some boxes near its corners.
func (f *Frustum) IntersectsAABB(b world.AABB) bool {
	minx, miny, minz := b.Min.X(), b.Min.Y(), b.Min.Z()
	maxx, maxy, maxz := b.Max.X(), b.Max.Y(), b.Max.Z()
	for i := range f.Planes {
		p := &f.Planes[i]
		// Positive vertex: the box corner furthest along the normal.
		px := maxx
		if p.A < 0 {
			px = minx
		}
		py := maxy
		if p.B < 0 {
			py = miny
		}
		pz := maxz
		if p.C < 0 {
			pz = minz
		}
		if p.A*px+p.B*py+p.C*pz+p.D < 0 {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether v lies inside all six planes.
func (f *Frustum) ContainsPoint(v mgl32.Vec3) bool {
	for i := range f.Planes {
		if f.Planes[i].Distance(v) < 0 {
			return false
		}
	}
	return true
}
