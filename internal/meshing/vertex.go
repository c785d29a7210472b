package meshing

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

// VertexSize is the byte stride of one encoded Vertex.
const VertexSize = 36

// NormalCross marks vertices of cross-shaped blocks, which have no single
// face normal. Other vertices carry their world.Face as the normal index.
const NormalCross = 6

// Vertex is one corner of an emitted quad. Positions are chunk-local; the
// draw command translates them to the chunk origin.
type Vertex struct {
	Pos    [3]float32
	UV     [2]float32
	Light  float32 // static ambient term for the face
	AO     float32 // ambient occlusion factor, 1 = unoccluded
	Normal float32 // face index 0..5, or NormalCross
	Page   float32 // atlas page (texture array layer)
}

// VertexLayout describes the encoded vertex for pipeline creation.
//
//	location 0: position (vec3<f32>)
//	location 1: uv (vec2<f32>)
//	location 2: light (f32)
//	location 3: ao (f32)
//	location 4: normal index (f32)
//	location 5: atlas page (f32)
func VertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: VertexSize,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32, Offset: 20, ShaderLocation: 2},
				{Format: gputypes.VertexFormatFloat32, Offset: 24, ShaderLocation: 3},
				{Format: gputypes.VertexFormatFloat32, Offset: 28, ShaderLocation: 4},
				{Format: gputypes.VertexFormatFloat32, Offset: 32, ShaderLocation: 5},
			},
		},
	}
}

// EncodeVertices appends the little-endian encoding of vs to dst.
func EncodeVertices(dst []byte, vs []Vertex) []byte {
	for i := range vs {
		v := &vs[i]
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Pos[0]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Pos[1]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Pos[2]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.UV[0]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.UV[1]))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Light))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.AO))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Normal))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Page))
	}
	return dst
}

// EncodeIndices appends the little-endian encoding of idx to dst.
func EncodeIndices(dst []byte, idx []uint32) []byte {
	for _, i := range idx {
		dst = binary.LittleEndian.AppendUint32(dst, i)
	}
	return dst
}
