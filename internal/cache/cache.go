// Package cache keeps the meshes of resident chunks together with their GPU
// buffer handles and decides when those buffers are uploaded and released.
package cache

import (
	"sort"
	"sync"

	"voxelrender/internal/gpu"
	"voxelrender/internal/logging"
	"voxelrender/internal/meshing"
	"voxelrender/internal/profiling"
	"voxelrender/internal/world"
)

// Entry is the cached state of one chunk.
type Entry struct {
	Mesh      *meshing.ChunkMesh
	Handle    gpu.BufferHandle // zero for empty meshes
	LastDrawn uint64

	// frame in which Get or Lookup last handed out Handle.
	seen uint64
}

type retired struct {
	handle gpu.BufferHandle
	frame  uint64
}

// Cache holds at most Capacity meshes, one per chunk. All methods are safe
// for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[world.ChunkCoord]*Entry
	capacity int
	// framesInFlight is how many frames after the retiring one may still
	// reference a released buffer.
	framesInFlight uint64

	frame      uint64
	nextHandle gpu.BufferHandle
	uploads    []gpu.Upload
	retired    []retired
	frees      []gpu.Free
}

// New creates a cache. capacity below one means unbounded.
func New(capacity, framesInFlight int) *Cache {
	return &Cache{
		entries:        make(map[world.ChunkCoord]*Entry),
		capacity:       capacity,
		framesInFlight: uint64(max(framesInFlight, 0)),
	}
}

// SetCapacity changes the resident limit. It takes effect at the next Trim.
func (c *Cache) SetCapacity(n int) {
	c.mu.Lock()
	c.capacity = n
	c.mu.Unlock()
}

// BeginFrame starts frame. Frames must increase.
func (c *Cache) BeginFrame(frame uint64) {
	c.mu.Lock()
	c.frame = frame
	c.mu.Unlock()
}

// Get returns the mesh of coord if it was built from generation gen.
func (c *Cache) Get(coord world.ChunkCoord, gen uint64) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[coord]
	if !ok || e.Mesh.Generation != gen {
		return Entry{}, false
	}
	e.seen = c.frame
	return *e, true
}

// Lookup returns the entry of coord whatever its generation.
func (c *Cache) Lookup(coord world.ChunkCoord) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[coord]
	if !ok {
		return Entry{}, false
	}
	e.seen = c.frame
	return *e, true
}

// Insert stores m unless the cache already holds a mesh of the same chunk at
// the same or a newer generation. It reports whether m was stored. The buffer
// of a replaced mesh is released only after the new one is uploaded.
func (c *Cache) Insert(m *meshing.ChunkMesh) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(m)
}

func (c *Cache) insertLocked(m *meshing.ChunkMesh) bool {
	old, ok := c.entries[m.Coord]
	if ok && old.Mesh.Generation >= m.Generation {
		profiling.Count("cache.discarded", 1)
		return false
	}

	e := &Entry{Mesh: m}
	if ok {
		e.LastDrawn = old.LastDrawn
		c.retireLocked(old)
	}
	if !m.Empty() {
		c.nextHandle++
		e.Handle = c.nextHandle
		c.uploads = append(c.uploads, gpu.MeshUpload(e.Handle, m))
	}
	c.entries[m.Coord] = e
	return true
}

// GetOrInsert returns the mesh of coord at generation gen, calling build
// when the cache does not hold it. build runs without the cache lock held.
func (c *Cache) GetOrInsert(coord world.ChunkCoord, gen uint64, build func() (*meshing.ChunkMesh, error)) (*meshing.ChunkMesh, error) {
	if e, ok := c.Get(coord, gen); ok {
		return e.Mesh, nil
	}
	m, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(m)
	// A concurrent insert may have won with the same or a newer mesh.
	return c.entries[coord].Mesh, nil
}

// MarkDrawn records that coord was drawn in frame.
func (c *Cache) MarkDrawn(coord world.ChunkCoord, frame uint64) {
	c.mu.Lock()
	if e, ok := c.entries[coord]; ok {
		e.LastDrawn = frame
	}
	c.mu.Unlock()
}

// Evict drops the entry of coord and schedules its buffer for release.
func (c *Cache) Evict(coord world.ChunkCoord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(coord)
}

func (c *Cache) evictLocked(coord world.ChunkCoord) bool {
	e, ok := c.entries[coord]
	if !ok {
		return false
	}
	delete(c.entries, coord)
	c.retireLocked(e)
	return true
}

func (c *Cache) retireLocked(e *Entry) {
	h := e.Handle
	if h == 0 {
		return
	}
	// Never uploaded and not handed to a draw this frame: drop the upload
	// instead of releasing later. A handed out handle keeps its upload so the
	// frame's draw finds the buffer, and is released like any other.
	if c.frame == 0 || e.seen != c.frame {
		for i, u := range c.uploads {
			if u.Handle == h {
				c.uploads = append(c.uploads[:i], c.uploads[i+1:]...)
				return
			}
		}
	}
	c.retired = append(c.retired, retired{handle: h, frame: c.frame})
}

// EvictBeyond drops every entry further than radius chunks from center.
func (c *Cache) EvictBeyond(center world.ChunkCoord, radius int, metric world.Metric) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for coord := range c.entries {
		if !metric.Within(center, coord, radius) {
			c.evictLocked(coord)
			n++
		}
	}
	if n > 0 {
		profiling.Count("cache.evicted", n)
	}
	return n
}

// Trim evicts least recently drawn entries until the cache is within
// capacity. Entries drawn in the current frame are never evicted, so the
// cache may stay over capacity when a frame draws more than it holds.
func (c *Cache) Trim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	over := len(c.entries) - c.capacity
	if c.capacity < 1 || over <= 0 {
		return 0
	}

	type candidate struct {
		coord world.ChunkCoord
		drawn uint64
	}
	cands := make([]candidate, 0, len(c.entries))
	for coord, e := range c.entries {
		if e.LastDrawn == c.frame && c.frame != 0 {
			continue
		}
		cands = append(cands, candidate{coord, e.LastDrawn})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].drawn != cands[j].drawn {
			return cands[i].drawn < cands[j].drawn
		}
		return cands[i].coord.Less(cands[j].coord)
	})

	n := min(over, len(cands))
	for _, cd := range cands[:n] {
		c.evictLocked(cd.coord)
	}
	if n > 0 {
		profiling.Count("cache.trimmed", n)
		logging.Logger().Debug("cache trimmed", "evicted", n, "resident", len(c.entries))
	}
	return n
}

// EndFrame makes the buffers retired at least framesInFlight frames before
// frame available to Drain.
func (c *Cache) EndFrame(frame uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := c.retired[:0]
	for _, r := range c.retired {
		if r.frame+c.framesInFlight <= frame {
			c.frees = append(c.frees, gpu.Free{Handle: r.handle})
		} else {
			keep = append(keep, r)
		}
	}
	c.retired = keep
}

// Drain returns and clears the pending uploads and releasable buffers.
// Uploads must be executed before the draws of the frame, frees after them.
func (c *Cache) Drain() ([]gpu.Upload, []gpu.Free) {
	c.mu.Lock()
	defer c.mu.Unlock()
	up, fr := c.uploads, c.frees
	c.uploads, c.frees = nil, nil
	return up, fr
}

// Clear drops every entry and retires all buffers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for coord := range c.entries {
		c.evictLocked(coord)
	}
}

// Len returns the number of resident meshes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Pending returns the number of retired buffers not yet released.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retired)
}
