package soft

import (
	"math"

	"github.com/gekko3d/tunnel/tunnelrt/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// CPU mirror of shaders/construct.wgsl. Keep the two in step.

const (
	noiseCells = 8
	warpCells  = 2
)

type constructParams struct {
	radius, height float32
	offset, repeat float32
	density        float32
	bump           float32
	warpX, warpY   float32
}

func constructParamsOf(p *Program) constructParams {
	size := p.Vector(core.ParamSize)
	or := p.Vector(core.ParamOffsetRepeat)
	den := p.Vector(core.ParamDensity)
	disp := p.Vector(core.ParamDisplace)
	return constructParams{
		radius:  size.X(),
		height:  size.Y(),
		offset:  or.Y(),
		repeat:  max(or.W(), 1),
		density: max(den.X(), 1),
		bump:    disp.X(),
		warpX:   disp.Y(),
		warpY:   disp.Z(),
	}
}

func hash2(ix, iy int32) float32 {
	h := uint32(ix)*374761393 + uint32(iy)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float32(h&0xffffff) / 16777215
}

func wrap(a, m int) int {
	return ((a % m) + m) % m
}

func mix(a, b, t float32) float32 {
	return a + (b-a)*t
}

// valueNoise returns smooth value noise in [-1, 1] that tiles with the given
// whole number of cells on each axis.
func valueNoise(x, y, periodX, periodY float32) float32 {
	px := max(int(math.RoundToEven(float64(periodX))), 1)
	py := max(int(math.RoundToEven(float64(periodY))), 1)
	fx, fy := float32(math.Floor(float64(x))), float32(math.Floor(float64(y)))
	tx, ty := x-fx, y-fy
	ux, uy := tx*tx*(3-2*tx), ty*ty*(3-2*ty)
	ix, iy := int(fx), int(fy)
	x0, x1 := int32(wrap(ix, px)), int32(wrap(ix+1, px))
	y0, y1 := int32(wrap(iy, py)), int32(wrap(iy+1, py))
	a := mix(hash2(x0, y0), hash2(x1, y0), ux)
	b := mix(hash2(x0, y1), hash2(x1, y1), ux)
	return mix(a, b, uy)*2 - 1
}

// position evaluates pass 0 for texel (x, y) of a w x h buffer.
func position(x, y, w, h int, k constructParams) mgl32.Vec4 {
	u := float32(x) / float32(w)
	v := float32(y) / float32(h)

	lane := (v + k.offset) * noiseCells * k.density
	n := valueNoise(u*noiseCells*k.density, lane, noiseCells*k.density, noiseCells*k.density*k.repeat)
	r := k.radius + k.bump*n

	wlane := (v + k.offset) * warpCells * k.density
	wperiod := warpCells * k.density * k.repeat
	cx := k.warpX * valueNoise(3, wlane, noiseCells, wperiod)
	cy := k.warpY * valueNoise(5, wlane, noiseCells, wperiod)

	theta := 2 * math.Pi * float64(u)
	return mgl32.Vec4{
		cx + r*float32(math.Cos(theta)),
		cy + r*float32(math.Sin(theta)),
		(v - 0.5) * k.height,
		n,
	}
}

func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() < 1e-8 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

// normalA is the normal of quad triangle (x,y) (x+1,y) (x,y+1).
func normalA(src *Target, x, y int) mgl32.Vec4 {
	p00 := src.At(x, y).Vec3()
	p10 := src.At(x+1, y).Vec3()
	p01 := src.At(x, y+1).Vec3()
	return safeNormalize(p10.Sub(p00).Cross(p01.Sub(p00))).Vec4(0)
}

// normalB is the normal of the B triangle whose first vertex is (x,y):
// (x,y) (x,y+1) (x-1,y+1), the right half of quad (x-1,y).
func normalB(src *Target, x, y int) mgl32.Vec4 {
	p10 := src.At(x, y).Vec3()
	p11 := src.At(x, y+1).Vec3()
	p01 := src.At(x-1, y+1).Vec3()
	return safeNormalize(p11.Sub(p10).Cross(p01.Sub(p10))).Vec4(0)
}

// debugColor compresses an unbounded value into a displayable channel.
func debugColor(v float32) uint8 {
	c := 0.5 + 0.5*math.Tanh(float64(v)*debugScale)
	return uint8(math.Round(c * 255))
}

const debugScale = 0.2
