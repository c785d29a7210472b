package culling

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera. Yaw and Pitch are in degrees; yaw 0 looks
// along +X, pitch 90 straight up.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	FOV      float32 // vertical, degrees
	Aspect   float32
	Near     float32
	Far      float32
}

// NewCamera returns a camera at the origin sized for a width×height viewport.
func NewCamera(width, height int) Camera {
	return Camera{
		FOV:    60.0,
		Aspect: float32(width) / float32(height),
		Near:   0.1,
		Far:    1000.0,
	}
}

// Front returns the unit viewing direction.
func (c Camera) Front() mgl32.Vec3 {
	y := float64(mgl32.DegToRad(c.Yaw))
	p := float64(mgl32.DegToRad(c.Pitch))
	fx := float32(math.Cos(y) * math.Cos(p))
	fy := float32(math.Sin(p))
	fz := float32(math.Sin(y) * math.Cos(p))
	return mgl32.Vec3{fx, fy, fz}.Normalize()
}

func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front()), mgl32.Vec3{0, 1, 0})
}

func (c Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

// Frustum returns the camera's view volume.
func (c Camera) Frustum() Frustum {
	return FrustumFromMatrix(c.ViewProjection())
}
