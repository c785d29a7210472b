// Package pipeline ties the chunk store, mesh workers, visibility culling,
// draw scheduling and the mesh cache into a per-frame loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"voxelrender/internal/atlas"
	"voxelrender/internal/cache"
	"voxelrender/internal/config"
	"voxelrender/internal/culling"
	"voxelrender/internal/gpu"
	"voxelrender/internal/logging"
	"voxelrender/internal/meshing"
	"voxelrender/internal/profiling"
	"voxelrender/internal/registry"
	"voxelrender/internal/scheduler"
	"voxelrender/internal/world"
)

var (
	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("pipeline: closed")
	// ErrDuplicateImage is returned when a face image id is registered twice.
	ErrDuplicateImage = errors.New("pipeline: duplicate face image")
)

// Stats summarizes one frame.
type Stats struct {
	Frame     uint64
	Visible   int
	Drawn     int
	Stale     int
	Missing   int
	Dirty     int
	Rebuilds  int // submitted this frame
	Deferred  int
	Completed int // results collected this frame
	Failed    int
	InFlight  int
	Queued    int // jobs waiting for a mesh worker
	Resident  int
	Evicted   int
}

// FrameOutput is what the GPU layer executes for one frame.
type FrameOutput struct {
	gpu.Frame
	ViewProjection mgl32.Mat4
	Stats          Stats
}

// Pipeline owns every stage of chunk rendering. Frame, Settle and Close
// must be called from a single goroutine; world edits and chunk loading may
// happen from any goroutine.
type Pipeline struct {
	reg    *registry.Registry
	holder *atlas.Holder
	store  *world.ChunkStore
	env    *meshing.Env
	pool   *meshing.WorkerPool
	cache  *cache.Cache
	sched  *scheduler.Scheduler

	mu       sync.Mutex
	settings config.Settings
	metric   world.Metric
	images   map[string]image.Image
	texture  *gpu.TextureUpload // installed atlas not yet handed to the GPU
	unloaded []world.ChunkCoord // cache evictions applied by the next Frame
	closed   bool

	frame uint64
}

// New creates a pipeline with the given settings and starts its mesh
// workers.
func New(s config.Settings) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	metric, err := world.ParseMetric(s.DistanceMetric)
	if err != nil {
		return nil, err
	}
	policy, err := scheduler.ParsePolicy(s.StalePolicy)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		reg:      registry.New(),
		store:    world.NewChunkStore(),
		cache:    cache.New(s.MaxResidentMeshes, s.FramesInFlight),
		settings: s,
		metric:   metric,
		images:   make(map[string]image.Image),
	}
	p.holder = atlas.NewHolder(p.onAtlasSwap)
	p.env = &meshing.Env{Store: p.store, Registry: p.reg, Atlas: p.holder, Lighting: lighting(s.Lighting)}
	p.pool = meshing.NewWorkerPool(s.MeshWorkers, s.MeshQueue, p.env.BuildMesh)
	// Results never outnumber the jobs allowed in flight, so workers never
	// block on a full results channel.
	p.sched = scheduler.New(scheduler.Options{
		Policy:      policy,
		Budget:      s.RebuildBudget,
		MaxInFlight: p.pool.Capacity(),
	})
	return p, nil
}

func lighting(l config.LightingSettings) meshing.Lighting {
	var out meshing.Lighting
	out.Ambient = l.Ambient
	out.AOStrength = l.AOStrength
	out.Faces[world.FaceUp] = l.Up
	out.Faces[world.FaceDown] = l.Down
	out.Faces[world.FaceNorth] = l.North
	out.Faces[world.FaceSouth] = l.South
	out.Faces[world.FaceEast] = l.East
	out.Faces[world.FaceWest] = l.West
	return out
}

func atlasOptions(a config.AtlasSettings) atlas.Options {
	return atlas.Options{
		PageSize: a.PageSize,
		MaxPages: a.MaxPages,
		Inset:    a.Inset,
		Gutter:   a.Gutter,
		TileSize: a.TileSize,
	}
}

// Registry returns the block registry.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Store returns the chunk store.
func (p *Pipeline) Store() *world.ChunkStore { return p.store }

// Atlas returns the installed atlas, or nil before BuildAtlas.
func (p *Pipeline) Atlas() *atlas.Atlas { return p.holder.Current() }

// Settings returns the settings in effect.
func (p *Pipeline) Settings() config.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// RegisterBlock adds a block type. Blocks must be registered before the
// first BuildAtlas.
func (p *Pipeline) RegisterBlock(d registry.BlockDescriptor) error {
	return p.reg.Register(d)
}

// RegisterFaceImage adds the image for a texture id. It is packed by the
// next BuildAtlas.
func (p *Pipeline) RegisterFaceImage(id string, img image.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.images[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateImage, id)
	}
	p.images[id] = img
	return nil
}

// BuildAtlas freezes the registry and packs every registered face image.
// While the new atlas is installed no mesh build runs; afterwards every
// chunk is invalidated so meshes pick up the new UVs. On error the
// previous atlas stays in use.
func (p *Pipeline) BuildAtlas() (*atlas.Atlas, error) {
	p.reg.Freeze()

	p.mu.Lock()
	imgs := make([]atlas.Image, 0, len(p.images))
	for id, img := range p.images {
		imgs = append(imgs, atlas.Image{ID: id, Img: img})
	}
	opts := atlasOptions(p.settings.Atlas)
	p.mu.Unlock()
	sort.Slice(imgs, func(i, j int) bool { return imgs[i].ID < imgs[j].ID })

	for _, id := range p.reg.TextureIDs() {
		if _, ok := p.imageFor(id); !ok {
			logging.Logger().Warn("block texture has no image", "texture", id)
		}
	}

	a, err := p.holder.Rebuild(imgs, opts)
	if err != nil {
		logging.Logger().Error("atlas build failed", "err", err)
		return nil, err
	}
	return a, nil
}

func (p *Pipeline) imageFor(id string) (image.Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	img, ok := p.images[id]
	return img, ok
}

// onAtlasSwap runs while the holder is exclusively locked.
func (p *Pipeline) onAtlasSwap(a *atlas.Atlas) {
	p.store.InvalidateAll()
	tex := gpu.AtlasTexture(a)
	p.mu.Lock()
	p.texture = &tex
	p.mu.Unlock()
}

// LoadChunk installs block data for coord.
func (p *Pipeline) LoadChunk(coord world.ChunkCoord, grid *world.Grid) error {
	return p.store.LoadChunk(coord, grid)
}

// UnloadChunk removes coord. Its cached mesh is evicted by the next Frame,
// after that frame's draws are scheduled.
func (p *Pipeline) UnloadChunk(coord world.ChunkCoord) bool {
	ok := p.store.UnloadChunk(coord)
	p.mu.Lock()
	p.unloaded = append(p.unloaded, coord)
	p.mu.Unlock()
	return ok
}

// HasChunk reports whether coord is loaded.
func (p *Pipeline) HasChunk(coord world.ChunkCoord) bool {
	return p.store.HasChunk(coord)
}

// Coords returns the loaded chunk coordinates.
func (p *Pipeline) Coords() []world.ChunkCoord {
	return p.store.Coords()
}

// SetBlock changes one block in world coordinates.
func (p *Pipeline) SetBlock(x, y, z int, id world.BlockID) error {
	return p.store.SetBlockWorld(x, y, z, id)
}

// BlockAt returns the block at world coordinates, air when unloaded.
func (p *Pipeline) BlockAt(x, y, z int) world.BlockID {
	return p.store.BlockAt(x, y, z)
}

// UpdateSettings applies new settings to the following frames. Worker and
// queue sizes only take effect in a new pipeline. Changed lighting
// invalidates every chunk.
func (p *Pipeline) UpdateSettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	metric, err := world.ParseMetric(s.DistanceMetric)
	if err != nil {
		return err
	}
	policy, err := scheduler.ParsePolicy(s.StalePolicy)
	if err != nil {
		return err
	}

	p.mu.Lock()
	relight := s.Lighting != p.settings.Lighting
	p.settings = s
	p.metric = metric
	p.mu.Unlock()

	opts := p.sched.Options()
	opts.Policy = policy
	opts.Budget = s.RebuildBudget
	p.sched.SetOptions(opts)
	p.cache.SetCapacity(s.MaxResidentMeshes)
	if relight {
		// Builds hold the atlas shared; the exclusive lock waits for them.
		p.holder.Exclusive(func() {
			p.env.Lighting = lighting(s.Lighting)
			p.store.InvalidateAll()
		})
	}
	return nil
}

// collect applies one finished mesh job.
func (p *Pipeline) collect(r meshing.Result, st *Stats) {
	p.sched.Complete(r.Coord)
	st.Completed++
	if r.Err != nil {
		st.Failed++
		if errors.Is(r.Err, world.ErrChunkNotLoaded) {
			logging.Logger().Debug("mesh skipped, chunk unloaded", "chunk", r.Coord)
		} else {
			logging.Logger().Warn("mesh build failed", "chunk", r.Coord, "err", r.Err)
		}
		return
	}
	if !p.store.HasChunk(r.Coord) {
		return
	}
	p.cache.Insert(r.Mesh)
}

// Frame runs one frame for cam: collect finished meshes, cull, schedule,
// submit rebuilds within budget and tidy the cache. It never waits for
// mesh builds.
func (p *Pipeline) Frame(cam culling.Camera) (FrameOutput, error) {
	defer profiling.Track("pipeline.Frame")()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return FrameOutput{}, ErrClosed
	}
	s, metric := p.settings, p.metric
	tex := p.texture
	p.texture = nil
	p.mu.Unlock()

	p.frame++
	st := Stats{Frame: p.frame}
	p.cache.BeginFrame(p.frame)

drain:
	for {
		select {
		case r := <-p.pool.Results():
			p.collect(r, &st)
		default:
			break drain
		}
	}

	center := world.ChunkAt(cam.Position)
	candidates := p.store.CoordsWithin(center, s.RenderDistance, metric)
	vis := culling.Cull(cam.Frustum(), cam.Position, candidates, culling.Options{
		Radius: s.RenderDistance,
		Metric: metric,
		Margin: s.FrustumMargin,
	})

	plan := p.sched.Schedule(&vis, p.store, p.cache)
	for _, c := range plan.Rebuild {
		ok, err := p.pool.Submit(c)
		if err != nil || !ok {
			// Retried next frame.
			p.sched.Complete(c)
			plan.Deferred++
			continue
		}
		st.Rebuilds++
	}

	for _, d := range plan.Draws {
		p.cache.MarkDrawn(d.Coord, p.frame)
	}
	p.mu.Lock()
	unloaded := p.unloaded
	p.unloaded = nil
	p.mu.Unlock()
	for _, c := range unloaded {
		// The chunk may have been loaded again since.
		if !p.store.HasChunk(c) && p.cache.Evict(c) {
			st.Evicted++
		}
	}
	st.Evicted += p.cache.EvictBeyond(center, s.RenderDistance, metric)
	st.Evicted += p.cache.Trim()
	p.cache.EndFrame(p.frame)
	uploads, frees := p.cache.Drain()

	st.Visible = plan.Visible
	st.Drawn = plan.Drawn
	st.Stale = plan.Stale
	st.Missing = plan.Missing
	st.Dirty = plan.Dirty
	st.Deferred = plan.Deferred
	st.InFlight = p.sched.InFlight()
	st.Queued = p.pool.QueueLength()
	st.Resident = p.cache.Len()
	logging.Logger().Debug("frame",
		"frame", st.Frame, "visible", st.Visible, "drawn", st.Drawn,
		"rebuilds", st.Rebuilds, "deferred", st.Deferred, "in_flight", st.InFlight)

	return FrameOutput{
		Frame: gpu.Frame{
			Texture: tex,
			Uploads: uploads,
			Draws:   plan.Draws,
			Frees:   frees,
		},
		ViewProjection: cam.ViewProjection(),
		Stats:          st,
	}, nil
}

// Settle waits until every submitted rebuild has completed and its result
// is cached. The next Frame draws them.
func (p *Pipeline) Settle(ctx context.Context) error {
	var st Stats
	for p.sched.InFlight() > 0 {
		select {
		case r := <-p.pool.Results():
			p.collect(r, &st)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Warmup meshes every loaded chunk whose cached mesh is missing or out of
// date, using up to MeshWorkers goroutines. It is meant for startup, before
// the first frame.
func (p *Pipeline) Warmup(ctx context.Context) error {
	defer profiling.Track("pipeline.Warmup")()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Settings().MeshWorkers)
	for _, c := range p.store.Coords() {
		gen, ok := p.store.Generation(c)
		if !ok {
			continue
		}
		if _, fresh := p.cache.Get(c, gen); fresh {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := p.cache.GetOrInsert(c, gen, func() (*meshing.ChunkMesh, error) {
				return p.env.BuildMesh(c)
			})
			if errors.Is(err, world.ErrChunkNotLoaded) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: warmup: %w", err)
	}
	logging.Logger().Info("warmup done", "resident", p.cache.Len())
	return nil
}

// Close stops the mesh workers and returns the buffers the GPU layer must
// release. Pending uploads are dropped.
func (p *Pipeline) Close() []gpu.Free {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.Shutdown()
	p.cache.Clear()
	p.cache.EndFrame(^uint64(0))
	_, frees := p.cache.Drain()
	return frees
}

var _ world.ChunkLoader = (*Pipeline)(nil)
