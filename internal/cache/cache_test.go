package cache

import (
	"errors"
	"sync"
	"testing"

	"voxelrender/internal/gpu"
	"voxelrender/internal/meshing"
	"voxelrender/internal/world"
)

func mesh(c world.ChunkCoord, gen uint64) *meshing.ChunkMesh {
	return &meshing.ChunkMesh{
		Coord:      c,
		Generation: gen,
		Vertices:   make([]meshing.Vertex, 4),
		Indices:    []uint32{0, 1, 2, 2, 3, 0},
		Opaque:     meshing.IndexRange{Count: 6},
	}
}

func TestInsertReplacesOnlyOlder(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{X: 1}
	if !c.Insert(mesh(at, 5)) {
		t.Fatalf("first insert rejected")
	}
	if c.Insert(mesh(at, 4)) || c.Insert(mesh(at, 5)) {
		t.Fatalf("older or equal generation replaced the entry")
	}
	if !c.Insert(mesh(at, 6)) {
		t.Fatalf("newer generation rejected")
	}
	if _, ok := c.Get(at, 5); ok {
		t.Fatalf("old generation still returned by Get")
	}
	e, ok := c.Lookup(at)
	if !ok || e.Mesh.Generation != 6 {
		t.Fatalf("lookup = %+v", e)
	}
}

func TestReplacedBufferReleasedAfterUpload(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{}
	c.BeginFrame(1)
	c.Insert(mesh(at, 1))
	c.EndFrame(1)
	up, fr := c.Drain()
	if len(up) != 1 || len(fr) != 0 {
		t.Fatalf("frame 1: %d uploads %d frees", len(up), len(fr))
	}
	first := up[0].Handle

	c.BeginFrame(2)
	c.Insert(mesh(at, 2))
	c.EndFrame(2)
	up, fr = c.Drain()
	if len(up) != 1 || len(fr) != 1 || fr[0].Handle != first || up[0].Handle == first {
		t.Fatalf("frame 2: uploads %+v frees %+v", up, fr)
	}
}

func TestReplaceBeforeUploadDropsUpload(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{}
	c.Insert(mesh(at, 1))
	c.Insert(mesh(at, 2))
	c.EndFrame(0)
	up, fr := c.Drain()
	if len(up) != 1 || up[0].Generation != 2 || len(fr) != 0 {
		t.Fatalf("uploads %+v frees %+v", up, fr)
	}
}

func TestEmptyMeshHasNoBuffer(t *testing.T) {
	c := New(0, 0)
	c.Insert(&meshing.ChunkMesh{Coord: world.ChunkCoord{}, Generation: 1})
	e, _ := c.Lookup(world.ChunkCoord{})
	up, _ := c.Drain()
	if e.Handle != 0 || len(up) != 0 {
		t.Fatalf("empty mesh got handle %d and %d uploads", e.Handle, len(up))
	}
}

func TestDeferredRelease(t *testing.T) {
	c := New(0, 2)
	at := world.ChunkCoord{}
	c.BeginFrame(1)
	c.Insert(mesh(at, 1))
	c.Drain()

	c.BeginFrame(5)
	c.Evict(at)
	for frame := uint64(5); frame < 7; frame++ {
		c.EndFrame(frame)
		if _, fr := c.Drain(); len(fr) != 0 {
			t.Fatalf("buffer released at frame %d, still in flight", frame)
		}
	}
	c.EndFrame(7)
	if _, fr := c.Drain(); len(fr) != 1 {
		t.Fatalf("buffer not released after frames in flight")
	}
}

func TestEvictBeyond(t *testing.T) {
	c := New(0, 0)
	for x := -3; x <= 3; x++ {
		c.Insert(mesh(world.ChunkCoord{X: x}, 1))
	}
	if n := c.EvictBeyond(world.ChunkCoord{}, 2, world.MetricChebyshev); n != 2 {
		t.Fatalf("evicted %d, want 2", n)
	}
	if c.Len() != 5 || c.Pending() != 0 {
		// Evicted before their upload was drained: nothing to release.
		t.Fatalf("len %d pending %d", c.Len(), c.Pending())
	}
}

func TestTrimLeastRecentlyDrawn(t *testing.T) {
	c := New(2, 0)
	a, b, d := world.ChunkCoord{X: 1}, world.ChunkCoord{X: 2}, world.ChunkCoord{X: 3}
	c.BeginFrame(1)
	for _, at := range []world.ChunkCoord{a, b, d} {
		c.Insert(mesh(at, 1))
	}
	c.MarkDrawn(a, 1)
	c.BeginFrame(2)
	c.MarkDrawn(d, 2)
	c.MarkDrawn(b, 2)

	if n := c.Trim(); n != 1 {
		t.Fatalf("trimmed %d", n)
	}
	if _, ok := c.Lookup(a); ok {
		t.Fatalf("least recently drawn entry survived")
	}

	// Everything left was drawn this frame: nothing may go.
	c.SetCapacity(1)
	if n := c.Trim(); n != 0 || c.Len() != 2 {
		t.Fatalf("trimmed entries drawn this frame")
	}
}

func TestGetOrInsert(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{Y: 1}
	calls := 0
	build := func() (*meshing.ChunkMesh, error) {
		calls++
		return mesh(at, 3), nil
	}
	for i := 0; i < 3; i++ {
		m, err := c.GetOrInsert(at, 3, build)
		if err != nil || m.Generation != 3 {
			t.Fatalf("GetOrInsert = %v, %v", m, err)
		}
	}
	if calls != 1 {
		t.Fatalf("build called %d times", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrInsert(at, 4, func() (*meshing.ChunkMesh, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("error not returned: %v", err)
	}
}

func TestConcurrentInserts(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{}
	var wg sync.WaitGroup
	for g := uint64(1); g <= 50; g++ {
		wg.Add(1)
		go func(g uint64) {
			defer wg.Done()
			c.Insert(mesh(at, g))
		}(g)
	}
	wg.Wait()
	e, _ := c.Lookup(at)
	if e.Mesh.Generation != 50 {
		t.Fatalf("generation %d survived, want 50", e.Mesh.Generation)
	}
	// Exactly one live buffer: every other upload was dropped or retired.
	c.EndFrame(0)
	up, fr := c.Drain()
	live := map[gpu.BufferHandle]bool{}
	for _, u := range up {
		live[u.Handle] = true
	}
	for _, f := range fr {
		delete(live, f.Handle)
	}
	if len(live) != 1 || !live[e.Handle] {
		t.Fatalf("live handles %v, want only %d", live, e.Handle)
	}
}

func TestEvictAfterLookupKeepsUpload(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{}
	c.BeginFrame(1)
	c.Insert(mesh(at, 1))
	e, ok := c.Lookup(at)
	if !ok {
		t.Fatalf("lookup missed")
	}
	draws := []gpu.DrawCommand{{Coord: at, Handle: e.Handle, IndexCount: 6, Generation: 1}}

	// Unloaded after the frame's draws were built.
	c.Evict(at)
	c.EndFrame(1)
	up, fr := c.Drain()
	if len(up) != 1 || len(fr) != 1 || up[0].Handle != e.Handle || fr[0].Handle != e.Handle {
		t.Fatalf("uploads %+v frees %+v", up, fr)
	}

	rec := gpu.NewRecorder()
	if err := gpu.Execute(rec, gpu.Frame{Texture: &gpu.TextureUpload{}, Uploads: up, Draws: draws, Frees: fr}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.Live() != 0 {
		t.Fatalf("live buffers %d", rec.Live())
	}
}

func TestEvictWithoutLookupDropsUpload(t *testing.T) {
	c := New(0, 0)
	at := world.ChunkCoord{}
	c.BeginFrame(1)
	c.Insert(mesh(at, 1))
	c.Evict(at)
	c.EndFrame(1)
	if up, fr := c.Drain(); len(up) != 0 || len(fr) != 0 {
		t.Fatalf("uploads %+v frees %+v", up, fr)
	}
}
