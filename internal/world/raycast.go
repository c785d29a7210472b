package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/profiling"
)

// RaycastResult is the first solid block along a ray.
type RaycastResult struct {
	HitPosition      [3]int
	AdjacentPosition [3]int // last empty cell before the hit
	Distance         float32
	Hit              bool
}

const raycastStep = float32(0.02)

// Raycast marches from start along the unit vector dir and reports the
// first cell between minDist and maxDist for which solid returns true.
// Block (x, y, z) spans [x, x+1) on every axis.
func Raycast(start, dir mgl32.Vec3, minDist, maxDist float32, solid func(x, y, z int) bool) RaycastResult {
	defer profiling.Track("world.Raycast")()
	steps := int(maxDist / raycastStep)

	cell := func(p mgl32.Vec3) [3]int {
		return [3]int{
			int(math.Floor(float64(p.X()))),
			int(math.Floor(float64(p.Y()))),
			int(math.Floor(float64(p.Z()))),
		}
	}
	last := cell(start)
	for i := 0; i <= steps; i++ {
		dist := float32(i) * raycastStep
		if dist < minDist {
			continue
		}
		c := cell(start.Add(dir.Mul(dist)))
		if c != last && solid(c[0], c[1], c[2]) {
			return RaycastResult{HitPosition: c, AdjacentPosition: last, Distance: dist, Hit: true}
		}
		last = c
	}
	return RaycastResult{}
}
