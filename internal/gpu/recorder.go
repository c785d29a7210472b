package gpu

import (
	"fmt"
	"sync"
)

type recordedBuffer struct {
	upload     Upload
	indexCount uint32
}

// Recorder is an in-memory Backend. It validates handle lifetimes and keeps
// the last frame's draws for inspection.
type Recorder struct {
	mu       sync.Mutex
	live     map[BufferHandle]recordedBuffer
	texture  *TextureUpload
	lastDraw []DrawCommand

	Uploads int
	Frees   int
	Frames  int
}

func NewRecorder() *Recorder {
	return &Recorder{live: make(map[BufferHandle]recordedBuffer)}
}

func (r *Recorder) UploadTexture(t TextureUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texture = &t
	return nil
}

func (r *Recorder) Upload(u Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Handle == 0 {
		return fmt.Errorf("%w: 0", ErrUnknownHandle)
	}
	if _, ok := r.live[u.Handle]; ok {
		return fmt.Errorf("gpu: handle %d uploaded twice", u.Handle)
	}
	r.live[u.Handle] = recordedBuffer{upload: u, indexCount: uint32(len(u.Indices) / 4)}
	r.Uploads++
	return nil
}

func (r *Recorder) Draw(cmds []DrawCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(cmds) > 0 && r.texture == nil {
		return ErrNoTexture
	}
	for _, c := range cmds {
		b, ok := r.live[c.Handle]
		if !ok {
			return fmt.Errorf("%w: %d for %v", ErrUnknownHandle, c.Handle, c.Coord)
		}
		if c.IndexFirst+c.IndexCount > b.indexCount {
			return fmt.Errorf("gpu: draw of %v reads indices %d..%d of %d",
				c.Coord, c.IndexFirst, c.IndexFirst+c.IndexCount, b.indexCount)
		}
	}
	r.lastDraw = append(r.lastDraw[:0], cmds...)
	r.Frames++
	return nil
}

func (r *Recorder) Free(h BufferHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(r.live, h)
	r.Frees++
	return nil
}

// Live returns the number of allocated handles.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// LastDraws returns a copy of the most recent draw list.
func (r *Recorder) LastDraws() []DrawCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DrawCommand(nil), r.lastDraw...)
}

// Texture returns the current atlas texture, or nil.
func (r *Recorder) Texture() *TextureUpload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.texture
}
