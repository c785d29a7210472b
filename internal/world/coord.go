package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord addresses a chunk in chunk space.
type ChunkCoord struct {
	X, Y, Z int
}

// String formats the coordinate for logs.
func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Neighbor returns the coordinate of the chunk sharing face f.
func (c ChunkCoord) Neighbor(f Face) ChunkCoord {
	dx, dy, dz := f.Offset()
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

// Origin returns the world-space minimum corner of the chunk.
func (c ChunkCoord) Origin() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(c.X * ChunkSize),
		float32(c.Y * ChunkSize),
		float32(c.Z * ChunkSize),
	}
}

// Center returns the world-space center of the chunk.
func (c ChunkCoord) Center() mgl32.Vec3 {
	half := float32(ChunkSize) / 2
	return c.Origin().Add(mgl32.Vec3{half, half, half})
}

// Bounds returns the chunk's fixed spatial extent. Every block shape stays
// inside its cell, so this box encloses any mesh built for the chunk.
func (c ChunkCoord) Bounds() AABB {
	o := c.Origin()
	s := float32(ChunkSize)
	return AABB{Min: o, Max: o.Add(mgl32.Vec3{s, s, s})}
}

// Less orders coordinates by X, then Y, then Z.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// LocalPos is a block position inside a chunk.
type LocalPos struct {
	X, Y, Z int
}

// Valid reports whether the position lies inside the chunk grid.
func (p LocalPos) Valid() bool {
	return p.X >= 0 && p.X < ChunkSize &&
		p.Y >= 0 && p.Y < ChunkSize &&
		p.Z >= 0 && p.Z < ChunkSize
}

// ChunkCoordOf converts world block coordinates into the owning chunk and
// the local position inside it.
func ChunkCoordOf(x, y, z int) (ChunkCoord, LocalPos) {
	return ChunkCoord{X: floorDiv(x, ChunkSize), Y: floorDiv(y, ChunkSize), Z: floorDiv(z, ChunkSize)},
		LocalPos{X: mod(x, ChunkSize), Y: mod(y, ChunkSize), Z: mod(z, ChunkSize)}
}

// ChunkAt returns the chunk containing a world-space point.
func ChunkAt(p mgl32.Vec3) ChunkCoord {
	c, _ := ChunkCoordOf(
		int(math.Floor(float64(p.X()))),
		int(math.Floor(float64(p.Y()))),
		int(math.Floor(float64(p.Z()))),
	)
	return c
}

// AABB is an axis-aligned box in world space.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Expand grows the box by margin on every side.
func (b AABB) Expand(margin float32) AABB {
	m := mgl32.Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Contains reports whether p lies inside the box (inclusive).
func (b AABB) Contains(p mgl32.Vec3) bool {
	return p.X() >= b.Min.X() && p.X() <= b.Max.X() &&
		p.Y() >= b.Min.Y() && p.Y() <= b.Max.Y() &&
		p.Z() >= b.Min.Z() && p.Z() <= b.Max.Z()
}

// Metric selects how render distance is measured in chunk units.
type Metric uint8

const (
	// MetricChebyshev bounds a cube of chunks around the center.
	MetricChebyshev Metric = iota
	// MetricEuclidean bounds a sphere of chunks around the center.
	MetricEuclidean
)

// ParseMetric maps a configuration string to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "chebyshev", "":
		return MetricChebyshev, nil
	case "euclidean":
		return MetricEuclidean, nil
	}
	return 0, fmt.Errorf("world: unknown distance metric %q", s)
}

// String returns the configuration name of the metric.
func (m Metric) String() string {
	if m == MetricEuclidean {
		return "euclidean"
	}
	return "chebyshev"
}

// Within reports whether b lies within radius chunks of a.
func (m Metric) Within(a, b ChunkCoord, radius int) bool {
	dx, dy, dz := abs(b.X-a.X), abs(b.Y-a.Y), abs(b.Z-a.Z)
	if m == MetricEuclidean {
		return dx*dx+dy*dy+dz*dz <= radius*radius
	}
	return dx <= radius && dy <= radius && dz <= radius
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
