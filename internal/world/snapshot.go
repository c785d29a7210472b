package world

// Neighborhood is an immutable copy of a chunk and its six face neighbours,
// taken at one instant. Mesh builds read only from a Neighborhood, so block
// edits made while a build runs never affect it.
type Neighborhood struct {
	Coord      ChunkCoord
	Generation uint64
	Center     *Grid
	// Neighbors is indexed by Face; nil means the neighbour was not loaded.
	Neighbors [NumFaces]*Grid
}

// At returns the block at local coordinates that may step one block outside
// the chunk along at most one axis. known is false when the position falls in
// an absent neighbour or outside the six face neighbours (edges, corners).
func (n *Neighborhood) At(x, y, z int) (id BlockID, known bool) {
	out := 0
	var face Face
	switch {
	case x < 0:
		out, face, x = out+1, FaceWest, x+ChunkSize
	case x >= ChunkSize:
		out, face, x = out+1, FaceEast, x-ChunkSize
	}
	switch {
	case y < 0:
		out, face, y = out+1, FaceDown, y+ChunkSize
	case y >= ChunkSize:
		out, face, y = out+1, FaceUp, y-ChunkSize
	}
	switch {
	case z < 0:
		out, face, z = out+1, FaceNorth, z+ChunkSize
	case z >= ChunkSize:
		out, face, z = out+1, FaceSouth, z-ChunkSize
	}
	switch out {
	case 0:
		return n.Center.At(x, y, z), true
	case 1:
		g := n.Neighbors[face]
		if g == nil {
			return BlockAir, false
		}
		return g.At(x, y, z), true
	}
	return BlockAir, false
}

// NewNeighborhood builds a snapshot from caller-owned grids. It is meant for
// tests and tools; live snapshots come from ChunkStore.Snapshot.
func NewNeighborhood(coord ChunkCoord, gen uint64, center *Grid, neighbors [NumFaces]*Grid) *Neighborhood {
	return &Neighborhood{Coord: coord, Generation: gen, Center: center, Neighbors: neighbors}
}
