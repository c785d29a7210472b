package world

import (
	"errors"
	"sync"
	"sync/atomic"

	"voxelrender/internal/profiling"
)

var (
	// ErrChunkExists is returned when loading a coordinate that is already loaded.
	ErrChunkExists = errors.New("world: chunk already loaded")

	// ErrChunkNotLoaded is returned when mutating a coordinate with no chunk.
	ErrChunkNotLoaded = errors.New("world: chunk not loaded")

	// ErrOutOfBounds is returned for local positions outside the chunk grid.
	ErrOutOfBounds = errors.New("world: local position out of chunk bounds")
)

const shardCount = 64

type shard struct {
	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
}

// ChunkStore manages the storage and retrieval of chunks.
//
// Chunks are spread over independently locked shards and every chunk guards
// its own grid, so a writer editing one chunk and mesh builds snapshotting
// other chunks never wait on each other.
type ChunkStore struct {
	shards [shardCount]shard

	// clock hands out generations. Generations are unique across the store so
	// a chunk that is unloaded and loaded again never repeats a value a cached
	// mesh was built from.
	clock    atomic.Uint64
	modCount atomic.Uint64 // Increases on any chunk add/remove
	count    atomic.Int64
}

// NewChunkStore creates a new chunk store.
func NewChunkStore() *ChunkStore {
	cs := &ChunkStore{}
	for i := range cs.shards {
		cs.shards[i].chunks = make(map[ChunkCoord]*Chunk)
	}
	return cs
}

func (cs *ChunkStore) shardFor(c ChunkCoord) *shard {
	h := uint32(c.X)*73856093 ^ uint32(c.Y)*19349663 ^ uint32(c.Z)*83492791
	return &cs.shards[h%shardCount]
}

func (cs *ChunkStore) chunk(c ChunkCoord) *Chunk {
	s := cs.shardFor(c)
	s.mu.RLock()
	ch := s.chunks[c]
	s.mu.RUnlock()
	return ch
}

// bump assigns a fresh generation to a chunk. Callers that changed the grid
// must hold the chunk's write lock.
func (cs *ChunkStore) bump(ch *Chunk) uint64 {
	gen := cs.clock.Add(1)
	ch.generation.Store(gen)
	return gen
}

// bumpNeighbor marks a loaded neighbour dirty, taking its write lock so that
// no snapshot can pair its new generation with its old neighbourhood.
func (cs *ChunkStore) bumpNeighbor(c ChunkCoord) {
	if nb := cs.chunk(c); nb != nil {
		nb.mu.Lock()
		cs.bump(nb)
		nb.mu.Unlock()
	}
}

func (cs *ChunkStore) bumpNeighbors(c ChunkCoord) {
	for _, f := range AllFaces {
		cs.bumpNeighbor(c.Neighbor(f))
	}
}

// LoadChunk installs block data at coord. A nil grid loads an all-air chunk.
// Loaded neighbours are bumped because their boundary faces towards coord
// were emitted conservatively while it was absent.
func (cs *ChunkStore) LoadChunk(coord ChunkCoord, grid *Grid) error {
	s := cs.shardFor(coord)
	s.mu.Lock()
	if _, ok := s.chunks[coord]; ok {
		s.mu.Unlock()
		return ErrChunkExists
	}
	s.chunks[coord] = newChunk(coord, grid, cs.clock.Add(1))
	s.mu.Unlock()

	cs.modCount.Add(1)
	cs.count.Add(1)
	cs.bumpNeighbors(coord)
	return nil
}

// ReplaceChunk loads block data at coord, overwriting any chunk already
// there. It returns the new generation.
func (cs *ChunkStore) ReplaceChunk(coord ChunkCoord, grid *Grid) uint64 {
	s := cs.shardFor(coord)
	s.mu.Lock()
	ch, ok := s.chunks[coord]
	if !ok {
		ch = newChunk(coord, grid, cs.clock.Add(1))
		s.chunks[coord] = ch
		s.mu.Unlock()
		cs.modCount.Add(1)
		cs.count.Add(1)
		cs.bumpNeighbors(coord)
		return ch.Generation()
	}
	s.mu.Unlock()

	ch.mu.Lock()
	if grid != nil {
		ch.grid = *grid
	} else {
		ch.grid = Grid{}
	}
	gen := cs.bump(ch)
	ch.mu.Unlock()
	cs.bumpNeighbors(coord)
	return gen
}

// UnloadChunk removes the chunk at coord. It reports whether a chunk was removed.
func (cs *ChunkStore) UnloadChunk(coord ChunkCoord) bool {
	s := cs.shardFor(coord)
	s.mu.Lock()
	_, ok := s.chunks[coord]
	if ok {
		delete(s.chunks, coord)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	cs.modCount.Add(1)
	cs.count.Add(-1)
	cs.bumpNeighbors(coord)
	return true
}

// HasChunk checks if a chunk exists.
func (cs *ChunkStore) HasChunk(coord ChunkCoord) bool {
	return cs.chunk(coord) != nil
}

// Generation returns the current dirty generation of the chunk at coord.
func (cs *ChunkStore) Generation(coord ChunkCoord) (uint64, bool) {
	ch := cs.chunk(coord)
	if ch == nil {
		return 0, false
	}
	return ch.Generation(), true
}

// SetBlock changes one block and bumps the chunk's generation. Edits on a
// chunk border also bump the neighbour across that border, whose face
// culling depends on the edited block. Writing the value already present is
// a no-op.
func (cs *ChunkStore) SetBlock(coord ChunkCoord, p LocalPos, id BlockID) error {
	if !p.Valid() {
		return ErrOutOfBounds
	}
	ch := cs.chunk(coord)
	if ch == nil {
		return ErrChunkNotLoaded
	}

	ch.mu.Lock()
	idx := Index(p.X, p.Y, p.Z)
	if ch.grid[idx] == id {
		ch.mu.Unlock()
		return nil
	}
	ch.grid[idx] = id
	cs.bump(ch)
	ch.mu.Unlock()

	if p.X == 0 {
		cs.bumpNeighbor(coord.Neighbor(FaceWest))
	} else if p.X == ChunkSize-1 {
		cs.bumpNeighbor(coord.Neighbor(FaceEast))
	}
	if p.Y == 0 {
		cs.bumpNeighbor(coord.Neighbor(FaceDown))
	} else if p.Y == ChunkSize-1 {
		cs.bumpNeighbor(coord.Neighbor(FaceUp))
	}
	if p.Z == 0 {
		cs.bumpNeighbor(coord.Neighbor(FaceNorth))
	} else if p.Z == ChunkSize-1 {
		cs.bumpNeighbor(coord.Neighbor(FaceSouth))
	}
	return nil
}

// SetBlockWorld is SetBlock addressed by world block coordinates.
func (cs *ChunkStore) SetBlockWorld(x, y, z int, id BlockID) error {
	coord, local := ChunkCoordOf(x, y, z)
	return cs.SetBlock(coord, local, id)
}

// BlockAt returns the block at world coordinates; unloaded space reads as air.
func (cs *ChunkStore) BlockAt(x, y, z int) BlockID {
	coord, local := ChunkCoordOf(x, y, z)
	ch := cs.chunk(coord)
	if ch == nil {
		return BlockAir
	}
	return ch.Block(local)
}

// InvalidateAll bumps the generation of every loaded chunk, forcing a full
// remesh. Used after the texture atlas is replaced.
func (cs *ChunkStore) InvalidateAll() {
	for i := range cs.shards {
		s := &cs.shards[i]
		s.mu.RLock()
		for _, ch := range s.chunks {
			ch.mu.Lock()
			cs.bump(ch)
			ch.mu.Unlock()
		}
		s.mu.RUnlock()
	}
}

// Snapshot copies the chunk at coord and its six neighbours. Each lock is
// held only for the copy. The center is copied first: a border edit writes
// the neighbour grid before bumping this chunk, so a neighbour copy is never
// older than the generation recorded here.
func (cs *ChunkStore) Snapshot(coord ChunkCoord) (*Neighborhood, bool) {
	ch := cs.chunk(coord)
	if ch == nil {
		return nil, false
	}
	n := &Neighborhood{Coord: coord, Center: new(Grid)}
	n.Generation = ch.copyGrid(n.Center)
	for _, f := range AllFaces {
		nb := cs.chunk(coord.Neighbor(f))
		if nb == nil {
			continue
		}
		g := new(Grid)
		nb.copyGrid(g)
		n.Neighbors[f] = g
	}
	return n, true
}

// Coords returns the coordinates of all loaded chunks in no particular order.
func (cs *ChunkStore) Coords() []ChunkCoord {
	out := make([]ChunkCoord, 0, cs.Len())
	for i := range cs.shards {
		s := &cs.shards[i]
		s.mu.RLock()
		for c := range s.chunks {
			out = append(out, c)
		}
		s.mu.RUnlock()
	}
	return out
}

// CoordsWithin returns the loaded chunks within radius of center. When the
// radius volume is smaller than the loaded set it probes the volume instead of
// scanning every chunk, so the cost follows the render distance.
func (cs *ChunkStore) CoordsWithin(center ChunkCoord, radius int, metric Metric) []ChunkCoord {
	return cs.AppendCoordsWithin(center, radius, metric, nil)
}

// AppendCoordsWithin is CoordsWithin appending to dst.
func (cs *ChunkStore) AppendCoordsWithin(center ChunkCoord, radius int, metric Metric, dst []ChunkCoord) []ChunkCoord {
	defer profiling.Track("world.CoordsWithin")()
	if radius < 0 {
		return dst
	}
	side := 2*radius + 1
	if int64(side)*int64(side)*int64(side) < cs.count.Load() {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				for dx := -radius; dx <= radius; dx++ {
					c := ChunkCoord{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz}
					if metric.Within(center, c, radius) && cs.HasChunk(c) {
						dst = append(dst, c)
					}
				}
			}
		}
		return dst
	}
	for i := range cs.shards {
		s := &cs.shards[i]
		s.mu.RLock()
		for c := range s.chunks {
			if metric.Within(center, c, radius) {
				dst = append(dst, c)
			}
		}
		s.mu.RUnlock()
	}
	return dst
}

// Len returns the number of loaded chunks.
func (cs *ChunkStore) Len() int {
	return int(cs.count.Load())
}

// ModCount returns the current modification count of the chunk map.
func (cs *ChunkStore) ModCount() uint64 {
	return cs.modCount.Load()
}
