package meshing

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"voxelrender/internal/atlas"
	"voxelrender/internal/world"
)

func TestWorkerPoolDeliversResults(t *testing.T) {
	var calls atomic.Int32
	p := NewWorkerPool(3, 8, func(c world.ChunkCoord) (*ChunkMesh, error) {
		calls.Add(1)
		return &ChunkMesh{Coord: c}, nil
	})
	defer p.Shutdown()

	want := map[world.ChunkCoord]bool{}
	for i := 0; i < 8; i++ {
		c := world.ChunkCoord{X: i}
		ok, err := p.Submit(c)
		if err != nil || !ok {
			t.Fatalf("submit %v: ok=%v err=%v", c, ok, err)
		}
		want[c] = true
	}
	timeout := time.After(5 * time.Second)
	for len(want) > 0 {
		select {
		case r := <-p.Results():
			if r.Err != nil || r.Mesh.Coord != r.Coord {
				t.Fatalf("bad result %+v", r)
			}
			delete(want, r.Coord)
		case <-timeout:
			t.Fatalf("results missing: %v", want)
		}
	}
	if calls.Load() != 8 {
		t.Fatalf("build called %d times", calls.Load())
	}
}

func TestWorkerPoolSubmitNonBlocking(t *testing.T) {
	release := make(chan struct{})
	p := NewWorkerPool(1, 1, func(c world.ChunkCoord) (*ChunkMesh, error) {
		<-release
		return nil, nil
	})

	accepted := 0
	for i := 0; i < 10; i++ {
		if ok, _ := p.Submit(world.ChunkCoord{X: i}); ok {
			accepted++
		}
	}
	// One job running plus one queued at most.
	if accepted > 2 || accepted == 0 {
		t.Fatalf("accepted %d jobs", accepted)
	}
	close(release)
	p.Shutdown()

	if _, err := p.Submit(world.ChunkCoord{}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	p.Shutdown()
}

func TestEnvBuildMesh(t *testing.T) {
	store := world.NewChunkStore()
	env := &Env{Store: store, Registry: testRegistry(t), Atlas: atlas.NewHolder(nil), Lighting: DefaultLighting()}

	if _, err := env.BuildMesh(world.ChunkCoord{}); !errors.Is(err, ErrNoAtlas) {
		t.Fatalf("expected ErrNoAtlas, got %v", err)
	}
	if _, err := env.Atlas.Rebuild(nil, atlas.Options{PageSize: 64, MaxPages: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.BuildMesh(world.ChunkCoord{}); !errors.Is(err, world.ErrChunkNotLoaded) {
		t.Fatalf("expected ErrChunkNotLoaded, got %v", err)
	}

	g := new(world.Grid)
	g.Set(1, 1, 1, stone)
	if err := store.LoadChunk(world.ChunkCoord{}, g); err != nil {
		t.Fatal(err)
	}
	m, err := env.BuildMesh(world.ChunkCoord{})
	if err != nil {
		t.Fatal(err)
	}
	gen, _ := store.Generation(world.ChunkCoord{})
	if m.Generation != gen || m.AtlasEpoch != 1 || m.Faces != 6 {
		t.Fatalf("mesh gen %d (store %d) epoch %d faces %d", m.Generation, gen, m.AtlasEpoch, m.Faces)
	}
	// "stone" is not in this atlas.
	if m.MissingTextures != 6 {
		t.Fatalf("missing = %d", m.MissingTextures)
	}
}
