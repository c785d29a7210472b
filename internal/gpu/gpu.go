// Package gpu describes the work a frame hands to the GPU layer: buffer
// uploads, draw commands and deferred buffer releases.
package gpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"voxelrender/internal/atlas"
	"voxelrender/internal/meshing"
	"voxelrender/internal/world"
)

var (
	// ErrUnknownHandle is returned when a draw or free names a buffer that was
	// never uploaded or was already released.
	ErrUnknownHandle = errors.New("gpu: unknown buffer handle")
	// ErrNoTexture is returned when drawing before an atlas texture exists.
	ErrNoTexture = errors.New("gpu: no atlas texture uploaded")
)

// BufferHandle names the vertex and index buffers of one uploaded mesh.
// Zero is never a valid handle.
type BufferHandle uint64

// Buffer usages for mesh uploads.
const (
	VertexUsage = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	IndexUsage  = gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
)

// Upload creates the buffers for handle from encoded mesh data.
type Upload struct {
	Handle     BufferHandle
	Coord      world.ChunkCoord
	Generation uint64

	Vertices    []byte
	Indices     []byte
	VertexUsage gputypes.BufferUsage
	IndexUsage  gputypes.BufferUsage
}

// MeshUpload encodes m for upload under h.
func MeshUpload(h BufferHandle, m *meshing.ChunkMesh) Upload {
	return Upload{
		Handle:      h,
		Coord:       m.Coord,
		Generation:  m.Generation,
		Vertices:    m.VertexBytes(),
		Indices:     m.IndexBytes(),
		VertexUsage: VertexUsage,
		IndexUsage:  IndexUsage,
	}
}

// Free releases the buffers of a handle.
type Free struct {
	Handle BufferHandle
}

// DrawCommand draws one layer of one chunk mesh.
type DrawCommand struct {
	Coord      world.ChunkCoord
	Handle     BufferHandle
	Layer      meshing.Layer
	IndexFirst uint32
	IndexCount uint32
	Transform  mgl32.Mat4
	// Generation is the generation of the mesh drawn; Stale marks a mesh
	// older than the chunk's current generation.
	Generation uint64
	Stale      bool
}

// TextureUpload replaces the atlas texture with the pages of an atlas.
type TextureUpload struct {
	Epoch  uint64
	Pages  []*image.RGBA
	Size   gputypes.Extent3D
	Format gputypes.TextureFormat
}

// AtlasTexture describes the pages of a as a 2D texture array.
func AtlasTexture(a *atlas.Atlas) TextureUpload {
	s := uint32(a.PageSize())
	return TextureUpload{
		Epoch: a.Epoch(),
		Pages: a.Pages(),
		Size: gputypes.Extent3D{
			Width:              s,
			Height:             s,
			DepthOrArrayLayers: uint32(len(a.Pages())),
		},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}
}

// Frame is everything one frame asks of the GPU, in execution order.
type Frame struct {
	Texture *TextureUpload
	Uploads []Upload
	Draws   []DrawCommand
	Frees   []Free
}

// Backend executes frames on a GPU or a stand-in.
type Backend interface {
	UploadTexture(t TextureUpload) error
	Upload(u Upload) error
	Draw(cmds []DrawCommand) error
	Free(h BufferHandle) error
}

// Execute runs f on b: texture, uploads, draws, then frees. Buffers freed by
// a frame may still be drawn by that frame.
func Execute(b Backend, f Frame) error {
	if f.Texture != nil {
		if err := b.UploadTexture(*f.Texture); err != nil {
			return fmt.Errorf("upload atlas texture: %w", err)
		}
	}
	for _, u := range f.Uploads {
		if err := b.Upload(u); err != nil {
			return fmt.Errorf("upload %v: %w", u.Coord, err)
		}
	}
	if err := b.Draw(f.Draws); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	for _, fr := range f.Frees {
		if err := b.Free(fr.Handle); err != nil {
			return fmt.Errorf("free %d: %w", fr.Handle, err)
		}
	}
	return nil
}
