package meshing

import (
	"bytes"
	"image"
	"math/rand"
	"testing"

	"voxelrender/internal/atlas"
	"voxelrender/internal/registry"
	"voxelrender/internal/world"
	"voxelrender/pkg/blockmodel"
)

const (
	stone  world.BlockID = 1
	glass  world.BlockID = 2
	flower world.BlockID = 3
	slab   world.BlockID = 4
	broken world.BlockID = 5
)

func testRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	r := registry.New()
	descs := []registry.BlockDescriptor{
		{ID: stone, Name: "stone", Textures: []string{"stone"}},
		{ID: glass, Name: "glass", Opacity: registry.Transparent, Textures: []string{"glass"}},
		{ID: flower, Name: "flower", Opacity: registry.Transparent, Shape: registry.ShapeCross, Textures: []string{"poppy"}},
		{ID: slab, Name: "slab", Shape: registry.ShapeCustom, Elements: []blockmodel.Element{{
			From: [3]float32{0, 0, 0},
			To:   [3]float32{16, 8, 16},
			Faces: map[string]blockmodel.Face{
				"up":   {Texture: "slab"},
				"down": {Texture: "slab", CullFace: "down"},
			},
		}}},
		{ID: broken, Name: "broken", Textures: []string{"not_in_atlas"}},
	}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Name, err)
		}
	}
	r.Freeze()
	return r
}

func testAtlas(t testing.TB) *atlas.Atlas {
	t.Helper()
	var imgs []atlas.Image
	for i, id := range []string{"stone", "glass", "poppy", "slab"} {
		img := image.NewRGBA(image.Rect(0, 0, 16, 16))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p] = uint8(i * 60)
			img.Pix[p+3] = 255
		}
		imgs = append(imgs, atlas.Image{ID: id, Img: img})
	}
	a, err := atlas.Build(imgs, atlas.Options{PageSize: 64, MaxPages: 1, Inset: 0.5})
	if err != nil {
		t.Fatalf("atlas: %v", err)
	}
	return a
}

func isolated(center *world.Grid) *world.Neighborhood {
	return world.NewNeighborhood(world.ChunkCoord{}, 1, center, [world.NumFaces]*world.Grid{})
}

func surrounded(center *world.Grid, fill world.BlockID) *world.Neighborhood {
	var nbs [world.NumFaces]*world.Grid
	for i := range nbs {
		g := new(world.Grid)
		g.Fill(fill)
		nbs[i] = g
	}
	return world.NewNeighborhood(world.ChunkCoord{}, 1, center, nbs)
}

func checkQuads(t *testing.T, m *ChunkMesh) {
	t.Helper()
	if len(m.Vertices) != m.Faces*4 {
		t.Fatalf("%d faces but %d vertices", m.Faces, len(m.Vertices))
	}
	if len(m.Indices) != m.Faces*6 {
		t.Fatalf("%d faces but %d indices", m.Faces, len(m.Indices))
	}
	if int(m.Opaque.Count+m.Translucent.Count) != len(m.Indices) {
		t.Fatalf("layer ranges %+v %+v do not cover %d indices", m.Opaque, m.Translucent, len(m.Indices))
	}
	for _, i := range m.Indices {
		if int(i) >= len(m.Vertices) {
			t.Fatalf("index %d out of range (%d vertices)", i, len(m.Vertices))
		}
	}
}

func TestFullChunkWithAbsentNeighbours(t *testing.T) {
	g := new(world.Grid)
	g.Fill(stone)
	m := Build(isolated(g), testRegistry(t), testAtlas(t), DefaultLighting())

	// Only boundary faces survive: 6 sides of 16x16 blocks.
	if m.Faces != 1536 {
		t.Fatalf("faces = %d, want 1536", m.Faces)
	}
	if len(m.Vertices) != 6144 || len(m.Indices) != 9216 {
		t.Fatalf("got %d vertices, %d indices", len(m.Vertices), len(m.Indices))
	}
	if m.Translucent.Count != 0 || m.Opaque.Count != 9216 {
		t.Fatalf("unexpected layer split %+v %+v", m.Opaque, m.Translucent)
	}
	checkQuads(t, m)
}

func TestFullChunkEnclosed(t *testing.T) {
	g := new(world.Grid)
	g.Fill(stone)
	m := Build(surrounded(g, stone), testRegistry(t), testAtlas(t), DefaultLighting())
	if !m.Empty() || m.Faces != 0 {
		t.Fatalf("enclosed chunk produced %d faces", m.Faces)
	}
}

func TestEmptyChunk(t *testing.T) {
	m := Build(isolated(new(world.Grid)), testRegistry(t), testAtlas(t), DefaultLighting())
	if !m.Empty() || len(m.Vertices) != 0 {
		t.Fatalf("air chunk produced geometry")
	}
	if m.Bounds != (world.ChunkCoord{}).Bounds() {
		t.Fatalf("bounds %+v", m.Bounds)
	}
}

func TestNoInteriorFaces(t *testing.T) {
	g := new(world.Grid)
	g.Set(4, 4, 4, stone)
	g.Set(5, 4, 4, stone)
	m := Build(isolated(g), testRegistry(t), testAtlas(t), DefaultLighting())
	if m.Faces != 10 {
		t.Fatalf("faces = %d, want 10", m.Faces)
	}
	for _, v := range m.Vertices {
		// The shared face lies on x=5 and faces east or west.
		if v.Pos[0] == 5 && (v.Normal == float32(world.FaceEast) || v.Normal == float32(world.FaceWest)) {
			t.Fatalf("interior face emitted: %+v", v)
		}
	}
	checkQuads(t, m)
}

func TestTransparentCulling(t *testing.T) {
	reg, atl := testRegistry(t), testAtlas(t)

	g := new(world.Grid)
	g.Set(4, 4, 4, glass)
	g.Set(5, 4, 4, glass)
	if m := Build(isolated(g), reg, atl, DefaultLighting()); m.Faces != 10 {
		t.Fatalf("glass wall: faces = %d, want 10", m.Faces)
	}

	// Stone shows through glass; the glass face against stone is hidden.
	g.Set(5, 4, 4, stone)
	m := Build(isolated(g), reg, atl, DefaultLighting())
	if m.Faces != 11 {
		t.Fatalf("glass+stone: faces = %d, want 11", m.Faces)
	}
	if m.Opaque.Count != 36 || m.Translucent.Count != 30 {
		t.Fatalf("layer split %+v %+v", m.Opaque, m.Translucent)
	}
	// Translucent indices point past the opaque vertices.
	for _, i := range m.Indices[m.Translucent.First:] {
		if i < 24 {
			t.Fatalf("translucent index %d refers to opaque vertex", i)
		}
	}
}

func TestBoundaryAgainstNeighbour(t *testing.T) {
	reg, atl := testRegistry(t), testAtlas(t)
	g := new(world.Grid)
	g.Set(15, 0, 0, stone)

	east := new(world.Grid)
	east.Set(0, 0, 0, stone)
	var nbs [world.NumFaces]*world.Grid
	nbs[world.FaceEast] = east
	m := Build(world.NewNeighborhood(world.ChunkCoord{}, 1, g, nbs), reg, atl, DefaultLighting())
	if m.Faces != 5 {
		t.Fatalf("faces = %d, want 5 (east face hidden by neighbour)", m.Faces)
	}

	// Absent neighbour: emitted conservatively.
	if m := Build(isolated(g), reg, atl, DefaultLighting()); m.Faces != 6 {
		t.Fatalf("faces = %d, want 6", m.Faces)
	}
}

func TestCrossShape(t *testing.T) {
	g := new(world.Grid)
	g.Set(3, 3, 3, flower)
	g.Set(3, 2, 3, stone)
	m := Build(isolated(g), testRegistry(t), testAtlas(t), DefaultLighting())

	// Stone: 6 faces (a cross never hides anything). Flower: 2 planes, both sides.
	if m.Faces != 10 {
		t.Fatalf("faces = %d, want 10", m.Faces)
	}
	if len(m.Vertices) != 24+8 {
		t.Fatalf("vertices = %d, want 32", len(m.Vertices))
	}
	if m.Translucent.Count != 24 {
		t.Fatalf("cross indices = %d, want 24", m.Translucent.Count)
	}
	for _, v := range m.Vertices[24:] {
		if v.Normal != NormalCross || v.AO != 1 {
			t.Fatalf("cross vertex %+v", v)
		}
	}
}

func TestCustomShape(t *testing.T) {
	reg, atl := testRegistry(t), testAtlas(t)
	g := new(world.Grid)
	g.Set(5, 5, 5, slab)
	g.Set(5, 6, 5, slab)
	m := Build(isolated(g), reg, atl, DefaultLighting())

	// Lower slab: up and down. Upper slab: up only, its down face is culled
	// against the slab below.
	if m.Faces != 3 {
		t.Fatalf("faces = %d, want 3", m.Faces)
	}
	e, _ := atl.Lookup("slab")
	found := false
	for _, v := range m.Vertices {
		if v.Normal == float32(world.FaceUp) && v.Pos[1] == 5.5 {
			found = true
			if !near(v.UV[0], e.U0) && !near(v.UV[0], e.U1) {
				t.Fatalf("up face uv %v outside entry %+v", v.UV, e)
			}
		}
	}
	if !found {
		t.Fatalf("lower slab top not at half height")
	}
}

func near(a, b float32) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}

func TestMissingTextureUsesPlaceholder(t *testing.T) {
	atl := testAtlas(t)
	g := new(world.Grid)
	g.Set(0, 0, 0, broken)
	m := Build(isolated(g), testRegistry(t), atl, DefaultLighting())
	if m.MissingTextures != 6 {
		t.Fatalf("missing = %d, want 6", m.MissingTextures)
	}
	ph := atl.Placeholder()
	if uv := m.Vertices[0].UV; uv != [2]float32{ph.U0, ph.V1} {
		t.Fatalf("uv %v is not the placeholder %+v", uv, ph)
	}
}

func TestAmbientOcclusionFlipsDiagonal(t *testing.T) {
	reg, atl := testRegistry(t), testAtlas(t)
	g := new(world.Grid)
	g.Set(5, 5, 5, stone)
	g.Set(6, 6, 4, stone) // touches only the (1,1,0) corner of the top face
	m := Build(isolated(g), reg, atl, DefaultLighting())

	base := -1
	for i, v := range m.Vertices {
		if v.Normal == float32(world.FaceUp) && v.Pos[1] == 6 {
			base = i
			break
		}
	}
	if base < 0 {
		t.Fatalf("top face of the lower block not emitted")
	}
	want := [4]float32{1, 1, 0.8, 1}
	for i := 0; i < 4; i++ {
		if got := m.Vertices[base+i].AO; !near(got, want[i]) {
			t.Fatalf("corner %d ao = %f, want %f", i, got, want[i])
		}
	}
	b := uint32(base)
	flipped := []uint32{b + 1, b + 2, b + 3, b + 3, b, b + 1}
	for q := 0; q+6 <= len(m.Indices); q += 6 {
		if m.Indices[q] == b+1 && m.Indices[q+1] == b+2 {
			for k := range flipped {
				if m.Indices[q+k] != flipped[k] {
					t.Fatalf("quad indices %v, want %v", m.Indices[q:q+6], flipped)
				}
			}
			return
		}
	}
	t.Fatalf("flipped quad not found")
}

func TestLightingTable(t *testing.T) {
	g := new(world.Grid)
	g.Set(8, 8, 8, stone)
	light := DefaultLighting()
	light.Ambient = 0.5
	m := Build(isolated(g), testRegistry(t), testAtlas(t), light)
	for _, v := range m.Vertices {
		f := world.Face(v.Normal)
		if v.Light != 0.5*light.Faces[f] {
			t.Fatalf("face %v light %f, want %f", f, v.Light, 0.5*light.Faces[f])
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	reg, atl := testRegistry(t), testAtlas(t)
	rng := rand.New(rand.NewSource(7))
	g := new(world.Grid)
	ids := []world.BlockID{world.BlockAir, world.BlockAir, stone, glass, flower, slab}
	for i := range g {
		g[i] = ids[rng.Intn(len(ids))]
	}
	n := surrounded(g, glass)
	first := Build(n, reg, atl, DefaultLighting())
	for i := 0; i < 3; i++ {
		again := Build(n, reg, atl, DefaultLighting())
		if !bytes.Equal(first.Bytes(), again.Bytes()) {
			t.Fatalf("run %d produced different bytes", i)
		}
	}
	if len(first.Bytes()) != first.SizeBytes() {
		t.Fatalf("Bytes length %d, SizeBytes %d", len(first.Bytes()), first.SizeBytes())
	}
}

func TestVertexLayoutMatchesEncoding(t *testing.T) {
	l := VertexLayout()[0]
	if l.ArrayStride != VertexSize {
		t.Fatalf("stride %d", l.ArrayStride)
	}
	last := l.Attributes[len(l.Attributes)-1]
	if last.Offset+4 != VertexSize {
		t.Fatalf("last attribute ends at %d", last.Offset+4)
	}
	b := EncodeVertices(nil, []Vertex{{Pos: [3]float32{1, 2, 3}}})
	if len(b) != VertexSize {
		t.Fatalf("encoded %d bytes", len(b))
	}
}

func BenchmarkBuildTerrain(b *testing.B) {
	reg, atl := testRegistry(b), testAtlas(b)
	gen := world.NewGenerator(42, world.Palette{Top: stone, Filler: stone, Base: stone})
	n := isolated(gen.Fill(world.ChunkCoord{X: 0, Y: 0, Z: 0}))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(n, reg, atl, DefaultLighting())
	}
}
