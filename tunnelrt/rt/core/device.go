package core

import (
	"errors"
	"fmt"

	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var (
	// ErrResourceAllocation marks a failed buffer, program or mesh creation.
	// The rebuild that hit it is abandoned and retried on the next tick.
	ErrResourceAllocation = errors.New("resource allocation failed")
	// ErrStaleResource marks a resource that was released behind the
	// pipeline's back.
	ErrStaleResource = errors.New("stale resource reference")
)

type Format int

const (
	FormatRGBA32Float Format = iota
)

type FilterMode int

const (
	FilterPoint FilterMode = iota
	FilterLinear
)

type WrapMode int

const (
	WrapRepeat WrapMode = iota
	WrapClamp
)

type TargetDesc struct {
	Label  string
	Width  int
	Height int
	Format Format
	Filter FilterMode
	Wrap   WrapMode
}

// Target is an off-screen floating-point render target used as a GPGPU buffer.
type Target interface {
	ID() uuid.UUID
	Width() int
	Height() int
	Alive() bool
	Release()
}

type ProgramKind int

const (
	ProgramConstruct ProgramKind = iota
	ProgramSurface
	ProgramLine
	ProgramDebug
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramConstruct:
		return "construct"
	case ProgramSurface:
		return "surface"
	case ProgramLine:
		return "line"
	case ProgramDebug:
		return "debug"
	}
	return fmt.Sprintf("ProgramKind(%d)", int(k))
}

// Construct program sub-passes.
const (
	PassPosition = 0
	PassNormalA  = 1
	PassNormalB  = 2
)

// Program parameter and texture slot names.
const (
	ParamSize         = "size"
	ParamOffsetRepeat = "offsetRepeat"
	ParamDensity      = "density"
	ParamDisplace     = "displace"
	ParamColor        = "color"
	ParamViewProj     = "viewProj"

	SlotPosition = "positionTex"
	SlotNormal   = "normalTex"
)

// Program is a GPU program instance with its own parameter and texture state.
type Program interface {
	Kind() ProgramKind
	SetVector(name string, v mgl32.Vec4)
	SetMatrix(name string, m mgl32.Mat4)
	SetTexture(name string, t Target)
	Texture(name string) Target
	Alive() bool
	Release()
}

// Mesh is lattice topology uploaded to the device.
type Mesh interface {
	VertexCount() int
	Alive() bool
	Release()
}

type Rect struct {
	X, Y, W, H int
}

type Device interface {
	CreateTarget(desc TargetDesc) (Target, error)
	CreateProgram(kind ProgramKind) (Program, error)
	CreateMesh(m *lattice.Mesh) (Mesh, error)
	// Blit runs sub-pass pass of p over every texel of dst, with src bound as
	// the pass input (src may be nil). Blits complete in issue order.
	Blit(src, dst Target, p Program, pass int) error
	DrawTexture(r Rect, t Target, p Program) error
}

func alive(r interface{ Alive() bool }) bool {
	return r != nil && r.Alive()
}
