package meshing

import (
	"errors"

	"voxelrender/internal/atlas"
	"voxelrender/internal/registry"
	"voxelrender/internal/world"
)

// ErrNoAtlas is returned when a mesh is requested before any atlas was built.
var ErrNoAtlas = errors.New("meshing: no atlas installed")

// Env binds the shared read-only inputs of a mesh build.
type Env struct {
	Store    *world.ChunkStore
	Registry *registry.Registry
	Atlas    *atlas.Holder
	Lighting Lighting
}

// BuildMesh snapshots coord and meshes it against the current atlas. The
// atlas is held for the whole build, so an atlas swap waits for it and the
// mesh never mixes UVs from two atlases.
func (e *Env) BuildMesh(coord world.ChunkCoord) (*ChunkMesh, error) {
	atl := e.Atlas.Acquire()
	defer e.Atlas.Release()
	if atl == nil {
		return nil, ErrNoAtlas
	}

	n, ok := e.Store.Snapshot(coord)
	if !ok {
		return nil, world.ErrChunkNotLoaded
	}
	return Build(n, e.Registry, atl, e.Lighting), nil
}
