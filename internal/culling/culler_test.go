package culling

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/world"
)

func grid(r int) []world.ChunkCoord {
	var out []world.ChunkCoord
	for x := -r; x <= r; x++ {
		for y := -r; y <= r; y++ {
			for z := -r; z <= r; z++ {
				out = append(out, world.ChunkCoord{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// inClip reports whether p lands inside the clip volume with a small slack
// so that rounding differences do not matter.
func inClip(vp mgl32.Mat4, p mgl32.Vec3) bool {
	c := vp.Mul4x1(p.Vec4(1))
	w := c.W() * 0.99
	if w <= 0 {
		return false
	}
	return c.X() >= -w && c.X() <= w && c.Y() >= -w && c.Y() <= w && c.Z() >= -w && c.Z() <= w
}

func TestCullNoFalseNegatives(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	candidates := grid(4)
	for trial := 0; trial < 20; trial++ {
		cam := NewCamera(16, 9)
		cam.Position = mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*40 - 20, rng.Float32()*40 - 20}
		cam.Yaw = rng.Float32() * 360
		cam.Pitch = rng.Float32()*170 - 85
		cam.Far = 200
		vp := cam.ViewProjection()

		vis := Cull(cam.Frustum(), cam.Position, candidates, Options{})
		kept := make(map[world.ChunkCoord]bool, vis.Len())
		for _, c := range vis.Coords {
			kept[c] = true
		}
		for _, c := range candidates {
			b := c.Bounds()
			for s := 0; s < 64; s++ {
				p := mgl32.Vec3{
					b.Min.X() + rng.Float32()*16,
					b.Min.Y() + rng.Float32()*16,
					b.Min.Z() + rng.Float32()*16,
				}
				if inClip(vp, p) && !kept[c] {
					t.Fatalf("trial %d: %v has visible point %v but was culled", trial, c, p)
				}
			}
		}
	}
}

func TestCullRejectsBehindCamera(t *testing.T) {
	cam := NewCamera(1, 1)
	cam.Position = mgl32.Vec3{8, 8, 8}
	// Looking along +X.
	vis := Cull(cam.Frustum(), cam.Position, []world.ChunkCoord{{X: 3}, {X: -3}}, Options{})
	if vis.Len() != 1 || vis.Coords[0] != (world.ChunkCoord{X: 3}) {
		t.Fatalf("visible = %v", vis.Coords)
	}
}

func TestCullContainsCameraChunk(t *testing.T) {
	cam := NewCamera(1, 1)
	cam.Position = mgl32.Vec3{8, 8, 8}
	cam.Pitch = 89
	vis := Cull(cam.Frustum(), cam.Position, []world.ChunkCoord{{}}, Options{})
	if vis.Len() != 1 {
		t.Fatalf("camera chunk culled")
	}
}

func TestCullDistanceFilter(t *testing.T) {
	cam := NewCamera(1, 1)
	cam.Position = mgl32.Vec3{8, 8, 8}
	cam.FOV = 170
	cam.Far = 1000
	candidates := []world.ChunkCoord{{X: 1}, {X: 2}, {X: 3}, {X: 2, Z: 2}}

	vis := Cull(cam.Frustum(), cam.Position, candidates, Options{Radius: 2, Metric: world.MetricChebyshev})
	if vis.Len() != 3 || vis.Contains(world.ChunkCoord{X: 3}) {
		t.Fatalf("chebyshev visible = %v", vis.Coords)
	}
	vis = Cull(cam.Frustum(), cam.Position, candidates, Options{Radius: 2, Metric: world.MetricEuclidean})
	if vis.Len() != 2 || vis.Contains(world.ChunkCoord{X: 2, Z: 2}) {
		t.Fatalf("euclidean visible = %v", vis.Coords)
	}
}

func TestCullOrdering(t *testing.T) {
	cam := NewCamera(1, 1)
	cam.Position = mgl32.Vec3{8, 8, 8}
	cam.FOV = 120
	candidates := []world.ChunkCoord{{X: 4}, {X: 1}, {X: 2, Z: 1}, {X: 2, Z: -1}, {X: 3}}
	vis := Cull(cam.Frustum(), cam.Position, candidates, Options{})

	want := []world.ChunkCoord{{X: 1}, {X: 2, Z: -1}, {X: 2, Z: 1}, {X: 3}, {X: 4}}
	if vis.Len() != len(want) {
		t.Fatalf("visible = %v", vis.Coords)
	}
	for i := range want {
		if vis.Coords[i] != want[i] {
			t.Fatalf("front-to-back = %v, want %v", vis.Coords, want)
		}
	}
	back := vis.BackToFront()
	for i := range want {
		if back[i] != want[len(want)-1-i] {
			t.Fatalf("back-to-front = %v", back)
		}
	}
}

func TestMarginKeepsEdgeChunk(t *testing.T) {
	cam := NewCamera(1, 1)
	cam.Position = mgl32.Vec3{8, 8, 8}
	cam.FOV = 30
	// Just outside the left edge of a narrow frustum looking along +X.
	edge := world.ChunkCoord{X: 2, Z: -2}
	vis := Cull(cam.Frustum(), cam.Position, []world.ChunkCoord{edge}, Options{})
	if vis.Len() != 0 {
		t.Fatalf("edge chunk inside the frustum without margin")
	}
	vis = Cull(cam.Frustum(), cam.Position, []world.ChunkCoord{edge}, Options{Margin: 32})
	if vis.Len() != 1 {
		t.Fatalf("margin did not keep the edge chunk")
	}
}

func BenchmarkCull(b *testing.B) {
	cam := NewCamera(16, 9)
	cam.Position = mgl32.Vec3{8, 8, 8}
	candidates := grid(12)
	f := cam.Frustum()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Cull(f, cam.Position, candidates, Options{Radius: 12})
	}
}
