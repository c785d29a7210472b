package meshing

import (
	"voxelrender/internal/atlas"
	"voxelrender/internal/profiling"
	"voxelrender/internal/registry"
	"voxelrender/internal/world"
	"voxelrender/pkg/blockmodel"
)

// Lighting holds the static ambient lighting coefficients.
type Lighting struct {
	// Ambient scales every face.
	Ambient float32
	// Faces is the directional brightness per world.Face.
	Faces [world.NumFaces]float32
	// AOStrength is the darkening per occluding neighbour of a corner.
	// Zero disables ambient occlusion.
	AOStrength float32
}

// DefaultLighting returns the classic voxel shading: bright tops, dark
// bottoms, sides in between.
func DefaultLighting() Lighting {
	return Lighting{
		Ambient: 1,
		Faces: [world.NumFaces]float32{
			world.FaceNorth: 0.8,
			world.FaceSouth: 0.8,
			world.FaceEast:  0.6,
			world.FaceWest:  0.6,
			world.FaceUp:    1.0,
			world.FaceDown:  0.5,
		},
		AOStrength: 0.2,
	}
}

// faceCorners lists the unit-cube corners of each face, counter-clockwise
// seen from outside: bottom-left, bottom-right, top-right, top-left in the
// face's texture orientation.
var faceCorners = [world.NumFaces][4][3]float32{
	world.FaceNorth: {{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}},
	world.FaceSouth: {{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
	world.FaceEast:  {{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 1}},
	world.FaceWest:  {{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	world.FaceUp:    {{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}},
	world.FaceDown:  {{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
}

// crossPlanes are the two diagonal planes of a cross-shaped block.
var crossPlanes = [2][4][3]float32{
	{{0, 0, 0}, {1, 0, 1}, {1, 1, 1}, {0, 1, 0}},
	{{1, 0, 0}, {0, 0, 1}, {0, 1, 1}, {1, 1, 0}},
}

type layerBuf struct {
	verts []Vertex
	idx   []uint32
}

type builder struct {
	n     *world.Neighborhood
	reg   *registry.Registry
	atl   *atlas.Atlas
	light Lighting

	layers  [2]layerBuf
	faces   int
	missing int
}

// Build meshes the center chunk of n. It only reads its arguments, so any
// number of builds may run in parallel on shared registry and atlas values.
// Faces towards absent neighbours are emitted.
func Build(n *world.Neighborhood, reg *registry.Registry, atl *atlas.Atlas, light Lighting) *ChunkMesh {
	defer profiling.Track("meshing.Build")()

	b := builder{n: n, reg: reg, atl: atl, light: light}
	for y := 0; y < world.ChunkSize; y++ {
		for z := 0; z < world.ChunkSize; z++ {
			for x := 0; x < world.ChunkSize; x++ {
				id := n.Center[world.Index(x, y, z)]
				if id == world.BlockAir {
					continue
				}
				d := reg.Get(id)
				if !d.Visible() {
					continue
				}
				switch d.Shape {
				case registry.ShapeCube:
					b.cube(d, x, y, z)
				case registry.ShapeCross:
					b.cross(d, x, y, z)
				case registry.ShapeCustom:
					b.custom(d, x, y, z)
				}
			}
		}
	}
	return b.finish()
}

func (b *builder) finish() *ChunkMesh {
	op, tr := &b.layers[LayerOpaque], &b.layers[LayerTranslucent]
	m := &ChunkMesh{
		Coord:           b.n.Coord,
		Generation:      b.n.Generation,
		AtlasEpoch:      b.atl.Epoch(),
		Bounds:          b.n.Coord.Bounds(),
		Faces:           b.faces,
		MissingTextures: b.missing,
	}
	if len(op.idx)+len(tr.idx) == 0 {
		return m
	}

	m.Vertices = make([]Vertex, 0, len(op.verts)+len(tr.verts))
	m.Vertices = append(m.Vertices, op.verts...)
	m.Vertices = append(m.Vertices, tr.verts...)

	m.Indices = make([]uint32, 0, len(op.idx)+len(tr.idx))
	m.Indices = append(m.Indices, op.idx...)
	base := uint32(len(op.verts))
	for _, i := range tr.idx {
		m.Indices = append(m.Indices, i+base)
	}
	m.Opaque = IndexRange{First: 0, Count: uint32(len(op.idx))}
	m.Translucent = IndexRange{First: uint32(len(op.idx)), Count: uint32(len(tr.idx))}
	return m
}

func layerOf(d *registry.BlockDescriptor) Layer {
	if d.Opacity == registry.Opaque {
		return LayerOpaque
	}
	return LayerTranslucent
}

// texture resolves a texture id, counting placeholder fallbacks.
func (b *builder) texture(id string) atlas.Entry {
	e, ok := b.atl.UV(id)
	if !ok {
		b.missing++
	}
	return e
}

// exposed reports whether face f of the block at (x,y,z) can be seen.
func (b *builder) exposed(d *registry.BlockDescriptor, x, y, z int, f world.Face) bool {
	dx, dy, dz := f.Offset()
	nb, known := b.n.At(x+dx, y+dy, z+dz)
	if !known {
		return true
	}
	if nb == d.ID && d.Opacity == registry.Transparent {
		return false
	}
	nd := b.reg.Get(nb)
	if nd.Opacity != registry.Opaque {
		return true
	}
	return nd.Shape != d.Shape
}

func (b *builder) occludes(x, y, z int) bool {
	id, known := b.n.At(x, y, z)
	return known && b.reg.Get(id).Occludes()
}

// aoLevel returns the open-ness of a face corner, 0 (enclosed) to 3 (open),
// from the three blocks around the corner in the layer in front of the face.
func (b *builder) aoLevel(x, y, z int, f world.Face, c [3]float32) int {
	dx, dy, dz := f.Offset()
	adj := [3]int{x + dx, y + dy, z + dz}
	normal := [3]int{dx, dy, dz}

	var steps [2][3]int
	k := 0
	for axis := 0; axis < 3; axis++ {
		if normal[axis] != 0 {
			continue
		}
		dir := -1
		if c[axis] > 0.5 {
			dir = 1
		}
		steps[k][axis] = dir
		k++
	}
	s1 := b.occludes(adj[0]+steps[0][0], adj[1]+steps[0][1], adj[2]+steps[0][2])
	s2 := b.occludes(adj[0]+steps[1][0], adj[1]+steps[1][1], adj[2]+steps[1][2])
	if s1 && s2 {
		return 0
	}
	corner := b.occludes(
		adj[0]+steps[0][0]+steps[1][0],
		adj[1]+steps[0][1]+steps[1][1],
		adj[2]+steps[0][2]+steps[1][2],
	)
	level := 3
	for _, o := range [3]bool{s1, s2, corner} {
		if o {
			level--
		}
	}
	return level
}

func (b *builder) aoFactor(level int) float32 {
	return 1 - b.light.AOStrength*float32(3-level)
}

func cornerUVs(e atlas.Entry) [4][2]float32 {
	return [4][2]float32{{e.U0, e.V1}, {e.U1, e.V1}, {e.U1, e.V0}, {e.U0, e.V0}}
}

// quad appends one face. The diagonal is chosen so that ambient occlusion
// interpolates evenly across the two triangles.
func (b *builder) quad(l Layer, pos [4][3]float32, uv [4][2]float32, page int, light float32, ao [4]float32, normal float32) {
	buf := &b.layers[l]
	base := uint32(len(buf.verts))
	for i := 0; i < 4; i++ {
		buf.verts = append(buf.verts, Vertex{Pos: pos[i], UV: uv[i], Light: light, AO: ao[i], Normal: normal, Page: float32(page)})
	}
	if ao[0]+ao[2] < ao[1]+ao[3] {
		buf.idx = append(buf.idx, base+1, base+2, base+3, base+3, base, base+1)
	} else {
		buf.idx = append(buf.idx, base, base+1, base+2, base+2, base+3, base)
	}
	b.faces++
}

func (b *builder) cube(d *registry.BlockDescriptor, x, y, z int) {
	l := layerOf(d)
	fx, fy, fz := float32(x), float32(y), float32(z)
	for _, f := range world.AllFaces {
		if !b.exposed(d, x, y, z, f) {
			continue
		}
		var pos [4][3]float32
		var ao [4]float32
		for i, c := range faceCorners[f] {
			pos[i] = [3]float32{fx + c[0], fy + c[1], fz + c[2]}
			ao[i] = 1
			if b.light.AOStrength != 0 {
				ao[i] = b.aoFactor(b.aoLevel(x, y, z, f, c))
			}
		}
		e := b.texture(d.FaceTexture(f))
		b.quad(l, pos, cornerUVs(e), e.Page, b.light.Ambient*b.light.Faces[f], ao, float32(f))
	}
}

func (b *builder) cross(d *registry.BlockDescriptor, x, y, z int) {
	l := layerOf(d)
	e := b.texture(d.FaceTexture(world.FaceNorth))
	uv := cornerUVs(e)
	fx, fy, fz := float32(x), float32(y), float32(z)
	ao := [4]float32{1, 1, 1, 1}
	for _, plane := range crossPlanes {
		var pos [4][3]float32
		for i, c := range plane {
			pos[i] = [3]float32{fx + c[0], fy + c[1], fz + c[2]}
		}
		b.quad(l, pos, uv, e.Page, b.light.Ambient, ao, NormalCross)

		// Back side: same corners, reversed winding.
		buf := &b.layers[l]
		base := uint32(len(buf.verts) - 4)
		buf.idx = append(buf.idx, base, base+3, base+2, base+2, base+1, base)
		b.faces++
	}
}

func (b *builder) custom(d *registry.BlockDescriptor, x, y, z int) {
	l := layerOf(d)
	fx, fy, fz := float32(x), float32(y), float32(z)
	ao := [4]float32{1, 1, 1, 1}
	for _, el := range d.Elements {
		from := [3]float32{el.From[0] / 16, el.From[1] / 16, el.From[2] / 16}
		to := [3]float32{el.To[0] / 16, el.To[1] / 16, el.To[2] / 16}
		for _, f := range world.AllFaces {
			mf, ok := el.Faces[f.String()]
			if !ok {
				continue
			}
			if mf.CullFace != "" {
				if cf, ok := world.ParseFace(mf.CullFace); ok && !b.exposed(d, x, y, z, cf) {
					continue
				}
			}

			var pos [4][3]float32
			for i, c := range faceCorners[f] {
				for axis := 0; axis < 3; axis++ {
					pos[i][axis] = from[axis] + c[axis]*(to[axis]-from[axis])
				}
				pos[i][0] += fx
				pos[i][1] += fy
				pos[i][2] += fz
			}

			light := b.light.Ambient
			if el.Shaded() {
				light *= b.light.Faces[f]
			}
			e := b.texture(mf.Texture)
			b.quad(l, pos, subUVs(e, faceRect(mf, f, from, to)), e.Page, light, ao, float32(f))
		}
	}
}

// faceRect returns the face's texture sub-rectangle in 0..1 units. A zero
// UV selects the rectangle matching the element's extent on that face.
func faceRect(mf blockmodel.Face, f world.Face, from, to [3]float32) [4]float32 {
	if mf.UV != [4]float32{} {
		return [4]float32{mf.UV[0] / 16, mf.UV[1] / 16, mf.UV[2] / 16, mf.UV[3] / 16}
	}
	switch f {
	case world.FaceUp, world.FaceDown:
		return [4]float32{from[0], from[2], to[0], to[2]}
	case world.FaceNorth, world.FaceSouth:
		return [4]float32{from[0], 1 - to[1], to[0], 1 - from[1]}
	default:
		return [4]float32{from[2], 1 - to[1], to[2], 1 - from[1]}
	}
}

func subUVs(e atlas.Entry, r [4]float32) [4][2]float32 {
	du, dv := e.U1-e.U0, e.V1-e.V0
	u0, v0 := e.U0+r[0]*du, e.V0+r[1]*dv
	u1, v1 := e.U0+r[2]*du, e.V0+r[3]*dv
	return [4][2]float32{{u0, v1}, {u1, v1}, {u1, v0}, {u0, v0}}
}
