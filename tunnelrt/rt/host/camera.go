package host

import (
	"github.com/gekko3d/tunnel"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera sits on the tube axis behind its near end and looks down the tube.
type Camera struct {
	FOV       float32 // degrees
	Near, Far float32
	// Setback is how far behind the near end the eye sits, in tube heights.
	Setback float32
}

func DefaultCamera() Camera {
	return Camera{FOV: 60, Near: 0.1, Far: 1000, Setback: 0.1}
}

func (c Camera) Eye(p *tunnel.Params) mgl32.Vec3 {
	return mgl32.Vec3{0, 0, -p.Height * (0.5 + c.Setback)}
}

func (c Camera) ViewProj(p *tunnel.Params, aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	proj := mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
	eye := c.Eye(p)
	view := mgl32.LookAtV(eye, mgl32.Vec3{0, 0, p.Height * 0.5}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}
