// Package glbackend executes gpu frames with OpenGL 4.1. All methods must be
// called on the goroutine that owns the GL context.
package glbackend

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"voxelrender/internal/gpu"
	"voxelrender/internal/logging"
	"voxelrender/internal/meshing"
)

type meshBuffers struct {
	vao, vbo, ebo uint32
	indexCount    uint32
}

// Backend is a gpu.Backend drawing into the current GL framebuffer.
type Backend struct {
	prog     *program
	texture  uint32
	meshes   map[gpu.BufferHandle]*meshBuffers
	viewProj mgl32.Mat4
}

// New compiles the chunk shader. gl.Init must have been called.
func New() (*Backend, error) {
	p, err := newProgram()
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("gl backend ready", "renderer", gl.GoStr(gl.GetString(gl.RENDERER)))
	return &Backend{
		prog:     p,
		meshes:   make(map[gpu.BufferHandle]*meshBuffers),
		viewProj: mgl32.Ident4(),
	}, nil
}

// SetViewProjection sets the camera matrix used by the next Draw.
func (b *Backend) SetViewProjection(m mgl32.Mat4) {
	b.viewProj = m
}

// UploadTexture replaces the atlas texture array.
func (b *Backend) UploadTexture(t gpu.TextureUpload) error {
	if t.Format != gputypes.TextureFormatRGBA8Unorm {
		return fmt.Errorf("glbackend: unsupported texture format %v", t.Format)
	}
	if b.texture != 0 {
		gl.DeleteTextures(1, &b.texture)
	}
	gl.GenTextures(1, &b.texture)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, b.texture)
	gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, gl.RGBA8,
		int32(t.Size.Width), int32(t.Size.Height), int32(t.Size.DepthOrArrayLayers),
		0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	for i, page := range t.Pages {
		gl.TexSubImage3D(gl.TEXTURE_2D_ARRAY, 0, 0, 0, int32(i),
			int32(t.Size.Width), int32(t.Size.Height), 1,
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(page.Pix))
	}
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, 0)
	logging.Logger().Debug("atlas texture uploaded", "epoch", t.Epoch, "pages", len(t.Pages))
	return nil
}

// components maps a vertex format to its float component count.
func components(f gputypes.VertexFormat) (int32, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return 1, nil
	case gputypes.VertexFormatFloat32x2:
		return 2, nil
	case gputypes.VertexFormatFloat32x3:
		return 3, nil
	case gputypes.VertexFormatFloat32x4:
		return 4, nil
	}
	return 0, fmt.Errorf("glbackend: unsupported vertex format %v", f)
}

// Upload creates the buffers for one mesh.
func (b *Backend) Upload(u gpu.Upload) error {
	if _, ok := b.meshes[u.Handle]; ok {
		return fmt.Errorf("glbackend: handle %d uploaded twice", u.Handle)
	}
	if len(u.Vertices) == 0 || len(u.Indices) == 0 {
		return fmt.Errorf("glbackend: empty upload for %v", u.Coord)
	}

	m := &meshBuffers{indexCount: uint32(len(u.Indices) / 4)}
	gl.GenVertexArrays(1, &m.vao)
	gl.GenBuffers(1, &m.vbo)
	gl.GenBuffers(1, &m.ebo)

	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(u.Vertices), gl.Ptr(u.Vertices), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(u.Indices), gl.Ptr(u.Indices), gl.STATIC_DRAW)

	for _, layout := range meshing.VertexLayout() {
		for _, a := range layout.Attributes {
			n, err := components(a.Format)
			if err != nil {
				b.release(m)
				return err
			}
			gl.EnableVertexAttribArray(a.ShaderLocation)
			gl.VertexAttribPointer(a.ShaderLocation, n, gl.FLOAT, false, int32(layout.ArrayStride), gl.PtrOffset(int(a.Offset)))
		}
	}
	gl.BindVertexArray(0)

	b.meshes[u.Handle] = m
	return nil
}

// Draw renders the commands in order. Opaque commands write depth;
// translucent ones blend without writing it.
func (b *Backend) Draw(cmds []gpu.DrawCommand) error {
	gl.UseProgram(b.prog.id)
	gl.UniformMatrix4fv(b.prog.viewProj, 1, false, &b.viewProj[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, b.texture)
	gl.Uniform1i(b.prog.atlas, 0)
	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.Uniform1f(b.prog.alphaCutoff, 0.5)

	blending := false
	for i := range cmds {
		c := &cmds[i]
		m, ok := b.meshes[c.Handle]
		if !ok {
			return fmt.Errorf("%w: %d for %v", gpu.ErrUnknownHandle, c.Handle, c.Coord)
		}
		if translucent := c.Layer == meshing.LayerTranslucent; translucent != blending {
			blending = translucent
			b.setBlending(blending)
		}
		gl.UniformMatrix4fv(b.prog.model, 1, false, &c.Transform[0])
		gl.BindVertexArray(m.vao)
		gl.DrawElements(gl.TRIANGLES, int32(c.IndexCount), gl.UNSIGNED_INT, gl.PtrOffset(int(c.IndexFirst)*4))
	}
	if blending {
		b.setBlending(false)
	}
	gl.BindVertexArray(0)
	return nil
}

func (b *Backend) setBlending(on bool) {
	if on {
		gl.Uniform1f(b.prog.alphaCutoff, 0.01)
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
		return
	}
	gl.Uniform1f(b.prog.alphaCutoff, 0.5)
	gl.Disable(gl.BLEND)
	gl.DepthMask(true)
}

// Free deletes the buffers of h.
func (b *Backend) Free(h gpu.BufferHandle) error {
	m, ok := b.meshes[h]
	if !ok {
		return fmt.Errorf("%w: %d", gpu.ErrUnknownHandle, h)
	}
	b.release(m)
	delete(b.meshes, h)
	return nil
}

func (b *Backend) release(m *meshBuffers) {
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
	gl.DeleteVertexArrays(1, &m.vao)
}

// Close releases every GL object the backend owns.
func (b *Backend) Close() {
	for h, m := range b.meshes {
		b.release(m)
		delete(b.meshes, h)
	}
	if b.texture != 0 {
		gl.DeleteTextures(1, &b.texture)
		b.texture = 0
	}
	gl.DeleteProgram(b.prog.id)
}

var _ gpu.Backend = (*Backend)(nil)
