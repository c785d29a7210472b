package world

import (
	"errors"
	"runtime"
	"sync"

	"voxelrender/internal/logging"
	"voxelrender/internal/profiling"
)

// ChunkLoader installs and removes chunk data. *ChunkStore satisfies it; the
// render pipeline wraps it so unloads also drop cached meshes.
type ChunkLoader interface {
	HasChunk(coord ChunkCoord) bool
	LoadChunk(coord ChunkCoord, grid *Grid) error
	UnloadChunk(coord ChunkCoord) bool
	Coords() []ChunkCoord
}

// ChunkStreamer manages asynchronous chunk generation and loading.
type ChunkStreamer struct {
	jobs       chan ChunkCoord
	pending    map[ChunkCoord]struct{}
	pendingMu  sync.Mutex
	maxPending int
	wg         sync.WaitGroup

	maxJobsPerCall int

	// Cached terrain heights per column (chunkX, chunkZ) -> maxChunkY
	heightCache   map[[2]int]int
	heightCacheMu sync.RWMutex

	loader ChunkLoader
	gen    TerrainGenerator
}

// NewChunkStreamer creates a new chunk streamer with one worker per CPU.
func NewChunkStreamer(loader ChunkLoader, gen TerrainGenerator) *ChunkStreamer {
	cs := &ChunkStreamer{
		jobs:           make(chan ChunkCoord, 4096),
		pending:        make(map[ChunkCoord]struct{}),
		maxJobsPerCall: 2048,
		maxPending:     16384,
		heightCache:    make(map[[2]int]int),
		loader:         loader,
		gen:            gen,
	}

	workers := max(runtime.NumCPU(), 1)
	cs.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go cs.worker()
	}

	return cs
}

// Close stops the background generation workers and waits for them to exit.
func (cs *ChunkStreamer) Close() {
	close(cs.jobs)
	cs.wg.Wait()
}

// Pending returns the number of queued or in-progress chunk loads.
func (cs *ChunkStreamer) Pending() int {
	cs.pendingMu.Lock()
	defer cs.pendingMu.Unlock()
	return len(cs.pending)
}

func (cs *ChunkStreamer) worker() {
	defer cs.wg.Done()
	for coord := range cs.jobs {
		cs.generateChunkSync(coord)
		cs.pendingMu.Lock()
		delete(cs.pending, coord)
		cs.pendingMu.Unlock()
	}
}

// generateChunkSync builds and installs a chunk if missing.
func (cs *ChunkStreamer) generateChunkSync(coord ChunkCoord) {
	if cs.loader.HasChunk(coord) {
		return
	}
	err := cs.loader.LoadChunk(coord, cs.gen.Fill(coord))
	if err != nil && !errors.Is(err, ErrChunkExists) {
		logging.Logger().Warn("chunk load failed", "coord", coord, "err", err)
	}
}

// columnTop returns the highest chunk Y holding terrain in a column.
func (cs *ChunkStreamer) columnTop(chunkX, chunkZ int) int {
	key := [2]int{chunkX, chunkZ}
	cs.heightCacheMu.RLock()
	cached, ok := cs.heightCache[key]
	cs.heightCacheMu.RUnlock()
	if ok {
		return cached
	}
	h := cs.gen.HeightAt(chunkX*ChunkSize+ChunkSize/2, chunkZ*ChunkSize+ChunkSize/2)
	top := max(floorDiv(h, ChunkSize), 0)
	cs.heightCacheMu.Lock()
	cs.heightCache[key] = top
	cs.heightCacheMu.Unlock()
	return top
}

// StreamChunksAroundSync loads the columns around center synchronously.
func (cs *ChunkStreamer) StreamChunksAroundSync(center ChunkCoord, radius int) {
	defer profiling.Track("world.StreamChunksAroundSync")()
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			top := cs.columnTop(center.X+dx, center.Z+dz)
			for cy := 0; cy <= top; cy++ {
				cs.generateChunkSync(ChunkCoord{X: center.X + dx, Y: cy, Z: center.Z + dz})
			}
		}
	}
}

// StreamChunksAroundAsync queues the columns around center in rings of
// increasing distance, so nearby chunks load first.
func (cs *ChunkStreamer) StreamChunksAroundAsync(center ChunkCoord, radius int) {
	defer profiling.Track("world.StreamChunksAroundAsync")()
	cx, cz := center.X, center.Z

	jobsPushed := 0

	for r := 0; r <= radius; r++ {
		if jobsPushed >= cs.maxJobsPerCall {
			break
		}

		if r == 0 {
			jobsPushed += cs.enqueueColumn(cx, cz)
			continue
		}

		x0 := cx - r
		x1 := cx + r
		z0 := cz - r
		z1 := cz + r

		for xk := x0; xk <= x1; xk++ {
			jobsPushed += cs.enqueueColumn(xk, z0)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for zk := z0 + 1; zk <= z1-1; zk++ {
			jobsPushed += cs.enqueueColumn(x1, zk)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for xk := x1; xk >= x0; xk-- {
			jobsPushed += cs.enqueueColumn(xk, z1)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for zk := z1 - 1; zk >= z0+1; zk-- {
			jobsPushed += cs.enqueueColumn(x0, zk)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
	}
}

// enqueueColumn enqueues all needed Y-chunks for a column.
func (cs *ChunkStreamer) enqueueColumn(chunkX, chunkZ int) int {
	cs.pendingMu.Lock()
	if cs.maxPending > 0 && len(cs.pending) >= cs.maxPending {
		cs.pendingMu.Unlock()
		return 0
	}
	cs.pendingMu.Unlock()

	top := cs.columnTop(chunkX, chunkZ)
	enq := 0
	for cy := 0; cy <= top; cy++ {
		if cs.requestChunkLimited(ChunkCoord{X: chunkX, Y: cy, Z: chunkZ}) {
			enq++
		}
	}
	return enq
}

// requestChunkLimited respects pending cap and returns true if enqueued.
func (cs *ChunkStreamer) requestChunkLimited(coord ChunkCoord) bool {
	if cs.loader.HasChunk(coord) {
		return false
	}

	cs.pendingMu.Lock()
	if _, ok := cs.pending[coord]; ok {
		cs.pendingMu.Unlock()
		return false
	}
	if cs.maxPending > 0 && len(cs.pending) >= cs.maxPending {
		cs.pendingMu.Unlock()
		return false
	}
	cs.pending[coord] = struct{}{}
	cs.pendingMu.Unlock()

	select {
	case cs.jobs <- coord:
		return true
	default:
		// queue full: rollback
		cs.pendingMu.Lock()
		delete(cs.pending, coord)
		cs.pendingMu.Unlock()
		return false
	}
}

// EvictFarChunks unloads chunks whose column lies outside radius of center
// and returns how many were removed.
func (cs *ChunkStreamer) EvictFarChunks(center ChunkCoord, radius int) int {
	removed := 0
	for _, c := range cs.loader.Coords() {
		dx, dz := c.X-center.X, c.Z-center.Z
		if dx*dx+dz*dz > radius*radius && cs.loader.UnloadChunk(c) {
			removed++
		}
	}

	cs.heightCacheMu.Lock()
	for key := range cs.heightCache {
		dx := key[0] - center.X
		dz := key[1] - center.Z
		if dx*dx+dz*dz > radius*radius {
			delete(cs.heightCache, key)
		}
	}
	cs.heightCacheMu.Unlock()

	return removed
}
