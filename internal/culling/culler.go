// Package culling selects the chunks a camera can see and orders them for
// drawing.
package culling

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/profiling"
	"voxelrender/internal/world"
)

// Options bounds the visible set.
type Options struct {
	// Radius is the render distance in chunks around the camera's chunk.
	// Zero or negative disables the distance filter.
	Radius int
	Metric world.Metric
	// Margin inflates chunk bounds before the frustum test, in blocks.
	Margin float32
}

// VisibilitySet lists the visible chunks nearest first, with the squared
// distance from the camera to each chunk center.
type VisibilitySet struct {
	Coords    []world.ChunkCoord
	Distances []float32
}

// Len returns the number of visible chunks.
func (v *VisibilitySet) Len() int { return len(v.Coords) }

// BackToFront returns the chunks furthest first.
func (v *VisibilitySet) BackToFront() []world.ChunkCoord {
	out := make([]world.ChunkCoord, len(v.Coords))
	for i, c := range v.Coords {
		out[len(out)-1-i] = c
	}
	return out
}

// Contains reports whether c is in the set.
func (v *VisibilitySet) Contains(c world.ChunkCoord) bool {
	for _, vc := range v.Coords {
		if vc == c {
			return true
		}
	}
	return false
}

type entry struct {
	coord world.ChunkCoord
	dist  float32
}

// Cull keeps the candidates within render distance of eye whose bounds
// intersect f. Equal distances are ordered by coordinate, so the result is
// deterministic for a given input set.
func Cull(f Frustum, eye mgl32.Vec3, candidates []world.ChunkCoord, opts Options) VisibilitySet {
	defer profiling.Track("culling.Cull")()

	center := world.ChunkAt(eye)
	kept := make([]entry, 0, len(candidates))
	for _, c := range candidates {
		if opts.Radius > 0 && !opts.Metric.Within(center, c, opts.Radius) {
			continue
		}
		b := c.Bounds()
		if opts.Margin > 0 {
			b = b.Expand(opts.Margin)
		}
		if !f.IntersectsAABB(b) {
			continue
		}
		d := c.Center().Sub(eye)
		kept = append(kept, entry{coord: c, dist: d.Dot(d)})
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].dist != kept[j].dist {
			return kept[i].dist < kept[j].dist
		}
		return kept[i].coord.Less(kept[j].coord)
	})

	vs := VisibilitySet{
		Coords:    make([]world.ChunkCoord, len(kept)),
		Distances: make([]float32, len(kept)),
	}
	for i, e := range kept {
		vs.Coords[i] = e.coord
		vs.Distances[i] = e.dist
	}
	profiling.Count("culling.visible", len(kept))
	profiling.Count("culling.rejected", len(candidates)-len(kept))
	return vs
}
