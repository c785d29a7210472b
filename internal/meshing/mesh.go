package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelrender/internal/world"
)

// Layer selects the render pass an index range belongs to.
type Layer uint8

const (
	LayerOpaque Layer = iota
	LayerTranslucent
)

func (l Layer) String() string {
	if l == LayerTranslucent {
		return "translucent"
	}
	return "opaque"
}

// IndexRange is a slice of a mesh's index buffer.
type IndexRange struct {
	First, Count uint32
}

// ChunkMesh is the geometry of one chunk at one generation. Opaque indices
// come first in the index buffer, translucent ones after them.
type ChunkMesh struct {
	Coord      world.ChunkCoord
	Generation uint64
	AtlasEpoch uint64

	Vertices []Vertex
	Indices  []uint32

	Opaque      IndexRange
	Translucent IndexRange

	Bounds world.AABB
	// Faces counts emitted quads.
	Faces int
	// MissingTextures counts faces drawn with the placeholder texture.
	MissingTextures int
}

// Empty reports whether the mesh has no geometry.
func (m *ChunkMesh) Empty() bool {
	return len(m.Indices) == 0
}

// Range returns the index range of a layer.
func (m *ChunkMesh) Range(l Layer) IndexRange {
	if l == LayerTranslucent {
		return m.Translucent
	}
	return m.Opaque
}

// Transform returns the model matrix placing chunk-local vertices in the world.
func (m *ChunkMesh) Transform() mgl32.Mat4 {
	o := m.Coord.Origin()
	return mgl32.Translate3D(o.X(), o.Y(), o.Z())
}

// VertexBytes returns the encoded vertex buffer.
func (m *ChunkMesh) VertexBytes() []byte {
	return EncodeVertices(make([]byte, 0, len(m.Vertices)*VertexSize), m.Vertices)
}

// IndexBytes returns the encoded index buffer.
func (m *ChunkMesh) IndexBytes() []byte {
	return EncodeIndices(make([]byte, 0, len(m.Indices)*4), m.Indices)
}

// SizeBytes returns the size of both encoded buffers.
func (m *ChunkMesh) SizeBytes() int {
	return len(m.Vertices)*VertexSize + len(m.Indices)*4
}

// Bytes returns the encoded vertex buffer followed by the encoded index
// buffer. Equal meshes encode to equal bytes.
func (m *ChunkMesh) Bytes() []byte {
	b := make([]byte, 0, m.SizeBytes())
	b = EncodeVertices(b, m.Vertices)
	return EncodeIndices(b, m.Indices)
}
