package world

import (
	"sync"
	"sync/atomic"
)

const (
	// Chunk dimensions (cubic)
	ChunkSize   = 16
	ChunkArea   = ChunkSize * ChunkSize
	ChunkVolume = ChunkArea * ChunkSize
)

// Grid is the raw block data of one chunk, indexed by Index.
type Grid [ChunkVolume]BlockID

// Index converts local coordinates to a flat grid index (x fastest, then z, then y).
func Index(x, y, z int) int {
	return (y*ChunkSize+z)*ChunkSize + x
}

// At returns the block at local coordinates. Out-of-range reads are air.
func (g *Grid) At(x, y, z int) BlockID {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize || z < 0 || z >= ChunkSize {
		return BlockAir
	}
	return g[Index(x, y, z)]
}

// Set writes the block at local coordinates, ignoring out-of-range writes.
func (g *Grid) Set(x, y, z int, id BlockID) {
	if x < 0 || x >= ChunkSize || y < 0 || y >= ChunkSize || z < 0 || z >= ChunkSize {
		return
	}
	g[Index(x, y, z)] = id
}

// Fill sets every block of the grid to id.
func (g *Grid) Fill(id BlockID) {
	for i := range g {
		g[i] = id
	}
}

// IsEmpty reports whether the grid holds only air.
func (g *Grid) IsEmpty() bool {
	for _, b := range g {
		if b != BlockAir {
			return false
		}
	}
	return true
}

// Chunk is a 16x16x16 region of the world. Chunks are owned by a ChunkStore
// and mutated only through it.
type Chunk struct {
	coord ChunkCoord
	mu    sync.RWMutex
	grid  Grid
	// generation is written while mu is held for writing so that a snapshot
	// taken under the read lock sees a grid and generation that match.
	generation atomic.Uint64
	bounds     AABB
}

func newChunk(coord ChunkCoord, grid *Grid, gen uint64) *Chunk {
	c := &Chunk{coord: coord, bounds: coord.Bounds()}
	if grid != nil {
		c.grid = *grid
	}
	c.generation.Store(gen)
	return c
}

// Coord returns the chunk's coordinate.
func (c *Chunk) Coord() ChunkCoord { return c.coord }

// Generation returns the chunk's current dirty generation.
func (c *Chunk) Generation() uint64 { return c.generation.Load() }

// Bounds returns the cached bounding volume of the chunk.
func (c *Chunk) Bounds() AABB { return c.bounds }

// Block returns the block at a local position.
func (c *Chunk) Block(p LocalPos) BlockID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid.At(p.X, p.Y, p.Z)
}

// copyGrid copies the block data and returns the generation it belongs to.
func (c *Chunk) copyGrid(dst *Grid) uint64 {
	c.mu.RLock()
	*dst = c.grid
	gen := c.generation.Load()
	c.mu.RUnlock()
	return gen
}
