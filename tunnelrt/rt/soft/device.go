// Package soft is a CPU implementation of core.Device. It runs the construct
// kernel in Go and paints overlay tiles and wireframes into an RGBA canvas.
// It backs headless runs and the numeric tests of the pipeline.
package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

var ErrOutOfMemory = errors.New("soft: out of target memory")

type OpKind int

const (
	OpBlit OpKind = iota
	OpDrawTexture
)

// Op is one recorded device command.
type Op struct {
	Kind OpKind
	Pass int
	Src  uuid.UUID
	Dst  uuid.UUID
	Rect core.Rect
}

type Target struct {
	id       uuid.UUID
	desc     core.TargetDesc
	texels   []mgl32.Vec4
	released bool
}

func (t *Target) ID() uuid.UUID         { return t.id }
func (t *Target) Width() int            { return t.desc.Width }
func (t *Target) Height() int           { return t.desc.Height }
func (t *Target) Label() string         { return t.desc.Label }
func (t *Target) Desc() core.TargetDesc { return t.desc }
func (t *Target) Alive() bool           { return t != nil && !t.released }

func (t *Target) Release() {
	t.released = true
	t.texels = nil
}

func (t *Target) index(x, y int) int {
	w, h := t.desc.Width, t.desc.Height
	if t.desc.Wrap == core.WrapClamp {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
	} else {
		x, y = wrap(x, w), wrap(y, h)
	}
	return y*w + x
}

// At fetches texel (x, y) using the target's address mode.
func (t *Target) At(x, y int) mgl32.Vec4 {
	return t.texels[t.index(x, y)]
}

func (t *Target) set(x, y int, v mgl32.Vec4) {
	t.texels[y*t.desc.Width+x] = v
}

type Program struct {
	kind     core.ProgramKind
	vectors  map[string]mgl32.Vec4
	matrices map[string]mgl32.Mat4
	textures map[string]core.Target
	released bool
}

func (p *Program) Kind() core.ProgramKind                { return p.kind }
func (p *Program) SetVector(name string, v mgl32.Vec4)   { p.vectors[name] = v }
func (p *Program) SetMatrix(name string, m mgl32.Mat4)   { p.matrices[name] = m }
func (p *Program) SetTexture(name string, t core.Target) { p.textures[name] = t }
func (p *Program) Texture(name string) core.Target       { return p.textures[name] }
func (p *Program) Vector(name string) mgl32.Vec4         { return p.vectors[name] }
func (p *Program) Matrix(name string) mgl32.Mat4         { return p.matrices[name] }
func (p *Program) Alive() bool                           { return p != nil && !p.released }
func (p *Program) Release()                              { p.released = true }

type Mesh struct {
	lattice  *lattice.Mesh
	released bool
}

func (m *Mesh) VertexCount() int       { return len(m.lattice.Vertices) }
func (m *Mesh) Lattice() *lattice.Mesh { return m.lattice }
func (m *Mesh) Alive() bool            { return m != nil && !m.released }
func (m *Mesh) Release()               { m.released = true }

type Device struct {
	log    tunnel.Logger
	canvas *image.RGBA

	targets  []*Target
	programs []*Program
	meshes   []*Mesh
	ops      []Op

	targetBudget int // remaining allocations before ErrOutOfMemory, <0 unlimited
	failPrograms map[core.ProgramKind]bool
}

// NewDevice returns a device whose overlay and wireframe output lands in a
// width x height canvas.
func NewDevice(width, height int, log tunnel.Logger) *Device {
	d := &Device{
		log:          tunnel.OrNop(log),
		canvas:       image.NewRGBA(image.Rect(0, 0, width, height)),
		targetBudget: -1,
		failPrograms: map[core.ProgramKind]bool{},
	}
	d.ClearCanvas(color.Black)
	return d
}

// FailTargets makes CreateTarget return ErrOutOfMemory once n more targets
// have been created. A negative n removes the limit.
func (d *Device) FailTargets(n int) {
	d.targetBudget = n
}

// FailPrograms makes CreateProgram fail for the given kinds. Calling it with
// no kinds clears the failures.
func (d *Device) FailPrograms(kinds ...core.ProgramKind) {
	d.failPrograms = map[core.ProgramKind]bool{}
	for _, k := range kinds {
		d.failPrograms[k] = true
	}
}

func (d *Device) CreateTarget(desc core.TargetDesc) (core.Target, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("soft: invalid target size %dx%d", desc.Width, desc.Height)
	}
	if desc.Format != core.FormatRGBA32Float {
		return nil, fmt.Errorf("soft: unsupported target format %d", desc.Format)
	}
	if d.targetBudget == 0 {
		return nil, ErrOutOfMemory
	}
	if d.targetBudget > 0 {
		d.targetBudget--
	}
	t := &Target{
		id:     uuid.New(),
		desc:   desc,
		texels: make([]mgl32.Vec4, desc.Width*desc.Height),
	}
	d.targets = append(pruneReleased(d.targets), t)
	return t, nil
}

func (d *Device) CreateProgram(kind core.ProgramKind) (core.Program, error) {
	if d.failPrograms[kind] {
		return nil, fmt.Errorf("soft: %s program unavailable", kind)
	}
	p := &Program{
		kind:     kind,
		vectors:  map[string]mgl32.Vec4{},
		matrices: map[string]mgl32.Mat4{},
		textures: map[string]core.Target{},
	}
	d.programs = append(pruneReleased(d.programs), p)
	return p, nil
}

func (d *Device) CreateMesh(m *lattice.Mesh) (core.Mesh, error) {
	mesh := &Mesh{lattice: m}
	d.meshes = append(pruneReleased(d.meshes), mesh)
	return mesh, nil
}

func (d *Device) target(t core.Target, what string) (*Target, error) {
	st, ok := t.(*Target)
	if !ok || !st.Alive() {
		return nil, fmt.Errorf("soft: %s target: %w", what, core.ErrStaleResource)
	}
	return st, nil
}

func (d *Device) program(p core.Program, kind core.ProgramKind) (*Program, error) {
	sp, ok := p.(*Program)
	if !ok || !sp.Alive() {
		return nil, fmt.Errorf("soft: %s program: %w", kind, core.ErrStaleResource)
	}
	if sp.kind != kind {
		return nil, fmt.Errorf("soft: want %s program, got %s", kind, sp.kind)
	}
	return sp, nil
}

func (d *Device) Blit(src, dst core.Target, p core.Program, pass int) error {
	out, err := d.target(dst, "destination")
	if err != nil {
		return err
	}
	prog, err := d.program(p, core.ProgramConstruct)
	if err != nil {
		return err
	}

	op := Op{Kind: OpBlit, Pass: pass, Dst: out.id}
	w, h := out.Width(), out.Height()
	switch pass {
	case core.PassPosition:
		k := constructParamsOf(prog)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.set(x, y, position(x, y, w, h, k))
			}
		}
	case core.PassNormalA, core.PassNormalB:
		in, err := d.target(src, "source")
		if err != nil {
			return err
		}
		if in == out {
			return fmt.Errorf("soft: pass %d reads and writes the same target", pass)
		}
		normal := normalA
		if pass == core.PassNormalB {
			normal = normalB
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.set(x, y, normal(in, x, y))
			}
		}
		op.Src = in.id
	default:
		return fmt.Errorf("soft: construct program has no pass %d", pass)
	}
	d.ops = append(d.ops, op)
	return nil
}

func (d *Device) DrawTexture(r core.Rect, t core.Target, p core.Program) error {
	in, err := d.target(t, "overlay")
	if err != nil {
		return err
	}
	if _, err := d.program(p, core.ProgramDebug); err != nil {
		return err
	}

	tile := image.NewRGBA(image.Rect(0, 0, in.Width(), in.Height()))
	for y := 0; y < in.Height(); y++ {
		for x := 0; x < in.Width(); x++ {
			v := in.At(x, y)
			tile.SetRGBA(x, y, color.RGBA{debugColor(v.X()), debugColor(v.Y()), debugColor(v.Z()), 255})
		}
	}
	dr := image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
	draw.NearestNeighbor.Scale(d.canvas, dr, tile, tile.Bounds(), draw.Src, nil)
	d.ops = append(d.ops, Op{Kind: OpDrawTexture, Dst: in.id, Rect: r})
	return nil
}

// DrawWireframe projects the line submesh of m through viewProj and strokes
// it into the canvas, fetching positions through the line program's binding.
func (d *Device) DrawWireframe(m core.Mesh, p core.Program, viewProj mgl32.Mat4) error {
	mesh, ok := m.(*Mesh)
	if !ok || !mesh.Alive() {
		return fmt.Errorf("soft: wireframe mesh: %w", core.ErrStaleResource)
	}
	prog, err := d.program(p, core.ProgramLine)
	if err != nil {
		return err
	}
	pos, err := d.target(prog.Texture(core.SlotPosition), "position")
	if err != nil {
		return err
	}

	c := prog.Vector(core.ParamColor)
	col := color.RGBA{
		uint8(mgl32.Clamp(c.X(), 0, 1) * 255),
		uint8(mgl32.Clamp(c.Y(), 0, 1) * 255),
		uint8(mgl32.Clamp(c.Z(), 0, 1) * 255),
		255,
	}
	lat := mesh.lattice
	project := func(i uint16) (mgl32.Vec2, bool) {
		x, y := lat.Texel(int(i))
		clip := viewProj.Mul4x1(pos.At(x, y).Vec3().Vec4(1))
		if clip.W() <= 1e-6 {
			return mgl32.Vec2{}, false
		}
		b := d.canvas.Bounds()
		ndc := clip.Vec3().Mul(1 / clip.W())
		return mgl32.Vec2{
			(ndc.X()*0.5 + 0.5) * float32(b.Dx()),
			(0.5 - ndc.Y()*0.5) * float32(b.Dy()),
		}, true
	}
	for i := 0; i+1 < len(lat.Lines); i += 2 {
		a, okA := project(lat.Lines[i])
		b, okB := project(lat.Lines[i+1])
		if okA && okB {
			d.stroke(a, b, col)
		}
	}
	return nil
}

func (d *Device) stroke(a, b mgl32.Vec2, c color.RGBA) {
	bounds := d.canvas.Bounds()
	steps := int(math.Ceil(float64(max(abs32(b.X()-a.X()), abs32(b.Y()-a.Y())))))
	if steps > 4*(bounds.Dx()+bounds.Dy()) {
		return
	}
	for s := 0; s <= steps; s++ {
		t := float32(0)
		if steps > 0 {
			t = float32(s) / float32(steps)
		}
		x := int(a.X() + (b.X()-a.X())*t)
		y := int(a.Y() + (b.Y()-a.Y())*t)
		if image.Pt(x, y).In(bounds) {
			d.canvas.SetRGBA(x, y, c)
		}
	}
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func (d *Device) Canvas() *image.RGBA {
	return d.canvas
}

func (d *Device) ClearCanvas(c color.Color) {
	draw.Draw(d.canvas, d.canvas.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// SavePNG writes the canvas to path.
func (d *Device) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(f, d.canvas); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	d.log.Infof("wrote snapshot %s", path)
	return nil
}

// Ops returns the commands recorded since the last ResetOps.
func (d *Device) Ops() []Op {
	return append([]Op(nil), d.ops...)
}

func (d *Device) ResetOps() {
	d.ops = d.ops[:0]
}

// Live counts resources that have not been released, dropping the records of
// released ones.
func (d *Device) Live() (targets, programs, meshes int) {
	d.targets = pruneReleased(d.targets)
	d.programs = pruneReleased(d.programs)
	d.meshes = pruneReleased(d.meshes)
	return len(d.targets), len(d.programs), len(d.meshes)
}

func pruneReleased[T interface{ Alive() bool }](s []T) []T {
	kept := s[:0]
	for _, r := range s {
		if r.Alive() {
			kept = append(kept, r)
		}
	}
	clear(s[len(kept):])
	return kept
}
