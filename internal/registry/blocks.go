package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"voxelrender/internal/world"
	"voxelrender/pkg/blockmodel"
)

var (
	// ErrFrozen is returned when registering after Freeze.
	ErrFrozen = errors.New("registry: frozen")

	// ErrDuplicateBlock is returned when an id or name is registered twice.
	ErrDuplicateBlock = errors.New("registry: duplicate block")

	// ErrInvalidDescriptor is returned for descriptors that cannot be meshed.
	ErrInvalidDescriptor = errors.New("registry: invalid block descriptor")
)

// Opacity decides how a block takes part in face culling.
type Opacity uint8

const (
	Opaque Opacity = iota
	Transparent
	NoRender
)

func (o Opacity) String() string {
	switch o {
	case Opaque:
		return "opaque"
	case Transparent:
		return "transparent"
	case NoRender:
		return "no-render"
	}
	return "unknown"
}

// Shape is the closed set of block geometries the mesher knows.
type Shape uint8

const (
	ShapeCube Shape = iota
	ShapeCross
	ShapeCustom
)

func (s Shape) String() string {
	switch s {
	case ShapeCube:
		return "cube"
	case ShapeCross:
		return "cross"
	case ShapeCustom:
		return "custom"
	}
	return "unknown"
}

// BlockDescriptor defines the render properties of a block type.
//
// Textures lists texture identifiers in one of three forms: one texture for
// every face, three textures as top, bottom and sides, or six textures in
// world.Face order (north, south, east, west, up, down). Cross blocks use
// Textures[0]. Custom blocks take textures from their elements.
type BlockDescriptor struct {
	ID       world.BlockID
	Name     string
	Textures []string
	Opacity  Opacity
	Shape    Shape
	Elements []blockmodel.Element

	faces [world.NumFaces]string
}

// FaceTexture returns the texture identifier for a cube face.
func (d *BlockDescriptor) FaceTexture(f world.Face) string {
	return d.faces[f]
}

// Occludes reports whether the block hides the faces of neighbours touching
// it: an opaque full cube.
func (d *BlockDescriptor) Occludes() bool {
	return d.Opacity == Opaque && d.Shape == ShapeCube
}

// Visible reports whether the mesher emits any geometry for the block.
func (d *BlockDescriptor) Visible() bool {
	return d.Opacity != NoRender
}

var unknownBlock = &BlockDescriptor{Name: "unknown", Opacity: NoRender}

// Registry maps block ids to descriptors. Blocks are registered during asset
// loading; after Freeze the registry is read-only and shared by mesh builds
// without locking.
type Registry struct {
	mu     sync.Mutex
	frozen atomic.Bool
	blocks []*BlockDescriptor // indexed by BlockID
	names  map[string]world.BlockID
}

// New creates a registry with air pre-registered as id 0.
func New() *Registry {
	r := &Registry{names: make(map[string]world.BlockID)}
	air := &BlockDescriptor{ID: world.BlockAir, Name: "air", Opacity: NoRender}
	r.blocks = append(r.blocks, air)
	r.names[air.Name] = air.ID
	return r
}

// Register adds a block descriptor. The descriptor is copied.
func (r *Registry) Register(desc BlockDescriptor) error {
	if r.frozen.Load() {
		return ErrFrozen
	}
	if err := resolve(&desc); err != nil {
		return fmt.Errorf("block %q: %w", desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	if int(desc.ID) < len(r.blocks) && r.blocks[desc.ID] != nil {
		return fmt.Errorf("%w: id %d", ErrDuplicateBlock, desc.ID)
	}
	if _, ok := r.names[desc.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateBlock, desc.Name)
	}
	for int(desc.ID) >= len(r.blocks) {
		r.blocks = append(r.blocks, nil)
	}
	d := desc
	r.blocks[desc.ID] = &d
	r.names[desc.Name] = desc.ID
	return nil
}

// resolve validates a descriptor and expands its texture list to six faces.
func resolve(d *BlockDescriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if d.Opacity > NoRender || d.Shape > ShapeCustom {
		return fmt.Errorf("%w: unknown opacity or shape", ErrInvalidDescriptor)
	}
	if d.Opacity == NoRender {
		return nil
	}

	switch d.Shape {
	case ShapeCustom:
		if len(d.Elements) == 0 {
			return fmt.Errorf("%w: custom shape without elements", ErrInvalidDescriptor)
		}
		// A model that does not fill its cell cannot hide its neighbours.
		if d.Opacity == Opaque && !blockmodel.HasFullCube(d.Elements) {
			d.Opacity = Transparent
		}
		return nil
	case ShapeCross:
		if len(d.Textures) == 0 {
			return fmt.Errorf("%w: cross shape without texture", ErrInvalidDescriptor)
		}
		for i := range d.faces {
			d.faces[i] = d.Textures[0]
		}
		return nil
	}

	switch len(d.Textures) {
	case 1:
		for i := range d.faces {
			d.faces[i] = d.Textures[0]
		}
	case 3:
		top, bottom, side := d.Textures[0], d.Textures[1], d.Textures[2]
		d.faces = [world.NumFaces]string{
			world.FaceNorth: side,
			world.FaceSouth: side,
			world.FaceEast:  side,
			world.FaceWest:  side,
			world.FaceUp:    top,
			world.FaceDown:  bottom,
		}
	case 6:
		copy(d.faces[:], d.Textures)
	default:
		return fmt.Errorf("%w: %d textures, want 1, 3 or 6", ErrInvalidDescriptor, len(d.Textures))
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Get returns the descriptor for id. Unknown ids resolve to a no-render
// descriptor so stray ids in chunk data never break meshing.
func (r *Registry) Get(id world.BlockID) *BlockDescriptor {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	if int(id) < len(r.blocks) {
		if d := r.blocks[id]; d != nil {
			return d
		}
	}
	return unknownBlock
}

// Lookup returns the id registered under name.
func (r *Registry) Lookup(name string) (world.BlockID, bool) {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	id, ok := r.names[name]
	return id, ok
}

// Len returns the number of registered blocks, air included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// TextureIDs returns every texture identifier referenced by a visible block,
// sorted and de-duplicated.
func (r *Registry) TextureIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, d := range r.blocks {
		if d == nil || !d.Visible() {
			continue
		}
		if d.Shape == ShapeCustom {
			for _, tex := range blockmodel.Textures(d.Elements) {
				add(tex)
			}
			continue
		}
		for _, tex := range d.faces {
			add(tex)
		}
	}
	sort.Strings(out)
	return out
}
