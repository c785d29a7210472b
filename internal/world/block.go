package world

import (
	"github.com/go-gl/mathgl/mgl32"
)

// BlockID identifies a block type in the registry.
type BlockID uint16

// BlockAir is always registered as the no-render block.
const BlockAir BlockID = 0

// Face identifies a face of a block. North faces -Z, East faces +X.
type Face uint8

const (
	FaceNorth Face = iota
	FaceSouth
	FaceEast
	FaceWest
	FaceUp
	FaceDown
)

// NumFaces is the number of faces of a cube.
const NumFaces = 6

// AllFaces lists the faces in meshing order.
var AllFaces = [NumFaces]Face{FaceNorth, FaceSouth, FaceEast, FaceWest, FaceUp, FaceDown}

var faceOffsets = [NumFaces][3]int{
	FaceNorth: {0, 0, -1},
	FaceSouth: {0, 0, 1},
	FaceEast:  {1, 0, 0},
	FaceWest:  {-1, 0, 0},
	FaceUp:    {0, 1, 0},
	FaceDown:  {0, -1, 0},
}

var faceNames = [NumFaces]string{"north", "south", "east", "west", "up", "down"}

// Offset returns the unit step towards the neighbour sharing this face.
func (f Face) Offset() (dx, dy, dz int) {
	o := faceOffsets[f]
	return o[0], o[1], o[2]
}

// Normal returns the outward unit normal of the face.
func (f Face) Normal() mgl32.Vec3 {
	o := faceOffsets[f]
	return mgl32.Vec3{float32(o[0]), float32(o[1]), float32(o[2])}
}

// Opposite returns the face pointing the other way.
func (f Face) Opposite() Face {
	switch f {
	case FaceNorth:
		return FaceSouth
	case FaceSouth:
		return FaceNorth
	case FaceEast:
		return FaceWest
	case FaceWest:
		return FaceEast
	case FaceUp:
		return FaceDown
	default:
		return FaceUp
	}
}

// String returns the block-model name of the face ("north", "up", ...).
func (f Face) String() string {
	if int(f) < NumFaces {
		return faceNames[f]
	}
	return "unknown"
}

// ParseFace maps a block-model direction name to a Face.
func ParseFace(name string) (Face, bool) {
	for i, n := range faceNames {
		if n == name {
			return Face(i), true
		}
	}
	return 0, false
}
