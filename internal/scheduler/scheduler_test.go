package scheduler

import (
	"testing"

	"voxelrender/internal/cache"
	"voxelrender/internal/culling"
	"voxelrender/internal/meshing"
	"voxelrender/internal/world"
)

type gens map[world.ChunkCoord]uint64

func (g gens) Generation(c world.ChunkCoord) (uint64, bool) {
	v, ok := g[c]
	return v, ok
}

func mesh(c world.ChunkCoord, gen uint64, opaque, translucent uint32) *meshing.ChunkMesh {
	n := opaque + translucent
	return &meshing.ChunkMesh{
		Coord:       c,
		Generation:  gen,
		Vertices:    make([]meshing.Vertex, 4),
		Indices:     make([]uint32, n),
		Opaque:      meshing.IndexRange{Count: opaque},
		Translucent: meshing.IndexRange{First: opaque, Count: translucent},
	}
}

// line returns n chunks along +X, nearest first.
func line(n int) *culling.VisibilitySet {
	vs := &culling.VisibilitySet{}
	for i := 0; i < n; i++ {
		vs.Coords = append(vs.Coords, world.ChunkCoord{X: i})
		vs.Distances = append(vs.Distances, float32(i*i))
	}
	return vs
}

func TestParsePolicy(t *testing.T) {
	for s, want := range map[string]Policy{"pop-in": PopIn, "stale-ok": StaleOK} {
		got, err := ParsePolicy(s)
		if err != nil || got != want || got.String() != s {
			t.Fatalf("ParsePolicy(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParsePolicy("eventually"); err == nil {
		t.Fatalf("unknown policy accepted")
	}
}

func TestBudgetCarriesOverNearestFirst(t *testing.T) {
	const m, k = 10, 3
	vis := line(m)
	g := gens{}
	for _, c := range vis.Coords {
		g[c] = 1
	}
	mc := cache.New(0, 0)
	s := New(Options{Policy: PopIn, Budget: k})

	next := 0
	for frame := 1; next < m; frame++ {
		p := s.Schedule(vis, g, mc)
		want := min(k, m-next)
		if len(p.Rebuild) != want {
			t.Fatalf("frame %d: %d rebuilds, want %d", frame, len(p.Rebuild), want)
		}
		if p.Deferred != m-next-want {
			t.Fatalf("frame %d: deferred %d, want %d", frame, p.Deferred, m-next-want)
		}
		for i, c := range p.Rebuild {
			if c.X != next+i {
				t.Fatalf("frame %d: rebuild %v out of distance order", frame, p.Rebuild)
			}
		}
		// Rebuilds finish before the next frame.
		for _, c := range p.Rebuild {
			mc.Insert(mesh(c, 1, 6, 0))
			s.Complete(c)
		}
		next += want
		if frame > 10 {
			t.Fatalf("rebuilds never finished")
		}
	}
	p := s.Schedule(vis, g, mc)
	if len(p.Rebuild) != 0 || p.Drawn != m || p.Missing != 0 {
		t.Fatalf("final frame: %+v", p)
	}
}

func TestInFlightNotResubmitted(t *testing.T) {
	vis := line(2)
	g := gens{vis.Coords[0]: 1, vis.Coords[1]: 1}
	s := New(Options{Budget: 5})
	mc := cache.New(0, 0)

	if p := s.Schedule(vis, g, mc); len(p.Rebuild) != 2 {
		t.Fatalf("first frame rebuilds %v", p.Rebuild)
	}
	if p := s.Schedule(vis, g, mc); len(p.Rebuild) != 0 || p.Dirty != 2 {
		t.Fatalf("in-flight chunks resubmitted: %+v", p)
	}
	s.Complete(vis.Coords[0])
	if p := s.Schedule(vis, g, mc); len(p.Rebuild) != 1 || p.Rebuild[0] != vis.Coords[0] {
		t.Fatalf("completed but still dirty chunk not resubmitted: %v", p.Rebuild)
	}
}

func TestMaxInFlight(t *testing.T) {
	vis := line(6)
	g := gens{}
	for _, c := range vis.Coords {
		g[c] = 1
	}
	s := New(Options{Budget: 5, MaxInFlight: 2})
	mc := cache.New(0, 0)
	if p := s.Schedule(vis, g, mc); len(p.Rebuild) != 2 || s.InFlight() != 2 {
		t.Fatalf("rebuilds %v in flight %d", p.Rebuild, s.InFlight())
	}
	if p := s.Schedule(vis, g, mc); len(p.Rebuild) != 0 {
		t.Fatalf("exceeded in-flight cap: %v", p.Rebuild)
	}
}

func TestStalePolicy(t *testing.T) {
	at := world.ChunkCoord{}
	vis := &culling.VisibilitySet{Coords: []world.ChunkCoord{at}, Distances: []float32{0}}
	g := gens{at: 2}
	mc := cache.New(0, 0)
	mc.Insert(mesh(at, 1, 6, 0))

	pop := New(Options{Policy: PopIn, Budget: 1})
	p := pop.Schedule(vis, g, mc)
	if len(p.Draws) != 0 || p.Missing != 1 || len(p.Rebuild) != 1 {
		t.Fatalf("pop-in drew a stale mesh: %+v", p)
	}

	stale := New(Options{Policy: StaleOK, Budget: 1})
	p = stale.Schedule(vis, g, mc)
	if len(p.Draws) != 1 || !p.Draws[0].Stale || p.Stale != 1 || len(p.Rebuild) != 1 {
		t.Fatalf("stale-ok did not draw the old mesh: %+v", p)
	}
	if p.Draws[0].Generation != 1 {
		t.Fatalf("drew generation %d", p.Draws[0].Generation)
	}
}

func TestDrawOrder(t *testing.T) {
	vis := line(3)
	g := gens{}
	mc := cache.New(0, 0)
	for _, c := range vis.Coords {
		g[c] = 1
		mc.Insert(mesh(c, 1, 6, 6))
	}
	p := New(Options{}).Schedule(vis, g, mc)
	if len(p.Draws) != 6 {
		t.Fatalf("draws = %d", len(p.Draws))
	}
	wantX := []int{0, 1, 2, 2, 1, 0}
	for i, d := range p.Draws {
		wantLayer := meshing.LayerOpaque
		if i >= 3 {
			wantLayer = meshing.LayerTranslucent
		}
		if d.Coord.X != wantX[i] || d.Layer != wantLayer {
			t.Fatalf("draw %d = %v %v, want x=%d %v", i, d.Coord, d.Layer, wantX[i], wantLayer)
		}
	}
	if tr := p.Draws[1].Transform; tr.Col(3).X() != 16 {
		t.Fatalf("transform does not translate to the chunk origin: %v", tr)
	}
	if p.Draws[3].IndexFirst != 6 || p.Draws[3].IndexCount != 6 {
		t.Fatalf("translucent range %d+%d", p.Draws[3].IndexFirst, p.Draws[3].IndexCount)
	}
}

func TestSkipsUnloadedAndEmpty(t *testing.T) {
	vis := line(2)
	g := gens{vis.Coords[0]: 1} // second chunk unloaded
	mc := cache.New(0, 0)
	mc.Insert(&meshing.ChunkMesh{Coord: vis.Coords[0], Generation: 1})
	p := New(Options{}).Schedule(vis, g, mc)
	if len(p.Draws) != 0 || len(p.Rebuild) != 0 || p.Missing != 0 {
		t.Fatalf("plan %+v", p)
	}
}
