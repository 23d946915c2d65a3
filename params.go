package tunnel

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Topology resolution bounds. Slices and stacks are clamped into this range
// before anything sized by them is created.
const (
	MinResolution = 8
	MaxResolution = 100
)

// Params holds every externally configured tunnel parameter. Only Slices and
// Stacks change the topology; all other fields are read fresh every frame.
type Params struct {
	Radius float32 `json:"radius" toml:"radius"`
	Height float32 `json:"height" toml:"height"`

	Slices int `json:"slices" toml:"slices"`
	Stacks int `json:"stacks" toml:"stacks"`

	Offset float32 `json:"offset" toml:"offset"`
	Repeat int     `json:"repeat" toml:"repeat"`

	Density int     `json:"density" toml:"density"`
	Bump    float32 `json:"bump" toml:"bump"`
	Warp    float32 `json:"warp" toml:"warp"`

	SurfaceColor mgl32.Vec4 `json:"surface_color" toml:"surface_color"`
	LineColor    mgl32.Vec4 `json:"line_color" toml:"line_color"`

	Debug bool `json:"debug" toml:"debug"`
}

func DefaultParams() Params {
	return Params{
		Radius:       5,
		Height:       10,
		Slices:       40,
		Stacks:       40,
		Offset:       1,
		Repeat:       100,
		Density:      1,
		Bump:         1,
		Warp:         1,
		SurfaceColor: mgl32.Vec4{1, 1, 1, 1},
		LineColor:    mgl32.Vec4{1, 1, 1, 1},
	}
}

func ClampResolution(n int) int {
	if n < MinResolution {
		return MinResolution
	}
	if n > MaxResolution {
		return MaxResolution
	}
	return n
}

// Sanitize clamps the topology parameters in place.
func (p *Params) Sanitize() {
	p.Slices = ClampResolution(p.Slices)
	p.Stacks = ClampResolution(p.Stacks)
}

// SameTopology reports whether p and o produce the same lattice and buffer sizes.
func (p Params) SameTopology(o Params) bool {
	return p.Slices == o.Slices && p.Stacks == o.Stacks
}

// Construct kernel parameter packing.

func (p Params) SizeVector() mgl32.Vec4 {
	return mgl32.Vec4{p.Radius, p.Height, 0, 0}
}

// OffsetRepeatVector packs (reserved, offset, density, repeat). The first slot
// has no assigned meaning and is always zero.
func (p Params) OffsetRepeatVector() mgl32.Vec4 {
	return mgl32.Vec4{0, p.Offset, float32(p.Density), float32(p.Repeat)}
}

func (p Params) DensityVector() mgl32.Vec4 {
	d := float32(p.Density)
	return mgl32.Vec4{d, d, 0, 0}
}

func (p Params) DisplaceVector() mgl32.Vec4 {
	return mgl32.Vec4{p.Bump, p.Warp, p.Warp, 0}
}
