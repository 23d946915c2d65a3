package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"

	"github.com/go-gl/mathgl/mgl32"
)

// Backend-only uniforms.
const (
	paramExtent = "extent" // construct: destination width, height
	paramScale  = "scale"  // debug: value compression factor
)

const debugScale = 0.2

// uniformLayout maps parameter names to byte offsets in a program's uniform
// block. Offsets follow WGSL uniform layout rules (vec4 and mat4 are 16-aligned).
type uniformLayout struct {
	size     int
	vectors  map[string]int
	matrices map[string]int
}

var uniformLayouts = map[core.ProgramKind]uniformLayout{
	core.ProgramConstruct: {
		size: 80,
		vectors: map[string]int{
			core.ParamSize:         0,
			core.ParamOffsetRepeat: 16,
			core.ParamDensity:      32,
			core.ParamDisplace:     48,
			paramExtent:            64,
		},
	},
	core.ProgramSurface: {
		size:     80,
		vectors:  map[string]int{core.ParamColor: 64},
		matrices: map[string]int{core.ParamViewProj: 0},
	},
	core.ProgramLine: {
		size:     80,
		vectors:  map[string]int{core.ParamColor: 64},
		matrices: map[string]int{core.ParamViewProj: 0},
	},
	core.ProgramDebug: {
		size:    16,
		vectors: map[string]int{paramScale: 0},
	},
}

func layoutFor(kind core.ProgramKind) uniformLayout {
	l, ok := uniformLayouts[kind]
	if !ok {
		panic(fmt.Sprintf("gpu: no uniform layout for %s", kind))
	}
	return l
}

func putVec4(buf []byte, off int, v mgl32.Vec4) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(f))
	}
}

// putMat4 writes m column-major, as WGSL mat4x4<f32> expects.
func putMat4(buf []byte, off int, m mgl32.Mat4) {
	for i, f := range m {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(f))
	}
}

const vertexStride = 8

func vertexBytes(vs []lattice.Vertex) []byte {
	buf := make([]byte, len(vs)*vertexStride)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*vertexStride:], math.Float32bits(v.UV[0]))
		binary.LittleEndian.PutUint32(buf[i*vertexStride+4:], math.Float32bits(v.UV[1]))
	}
	return buf
}

// indexBytes packs uint16 indices, padding the byte length to a multiple of 4
// as queue writes require. The padding index is never drawn.
func indexBytes(idx []uint16) []byte {
	n := len(idx)
	if n%2 == 1 {
		n++
	}
	buf := make([]byte, n*2)
	for i, v := range idx {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return buf
}
