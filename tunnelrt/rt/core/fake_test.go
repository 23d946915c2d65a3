package core

import (
	"errors"
	"fmt"

	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

var errFakeOOM = errors.New("fake: out of memory")

type fakeTarget struct {
	id       uuid.UUID
	desc     TargetDesc
	released bool
	// stamp is the frame a pass last wrote into this target.
	stamp int
}

func (t *fakeTarget) ID() uuid.UUID { return t.id }
func (t *fakeTarget) Width() int    { return t.desc.Width }
func (t *fakeTarget) Height() int   { return t.desc.Height }
func (t *fakeTarget) Alive() bool   { return t != nil && !t.released }
func (t *fakeTarget) Release()      { t.released = true }

type fakeProgram struct {
	kind     ProgramKind
	vectors  map[string]mgl32.Vec4
	textures map[string]Target
	released bool
}

func (p *fakeProgram) Kind() ProgramKind                   { return p.kind }
func (p *fakeProgram) SetVector(name string, v mgl32.Vec4) { p.vectors[name] = v }
func (p *fakeProgram) SetMatrix(name string, m mgl32.Mat4) {}
func (p *fakeProgram) SetTexture(name string, t Target)    { p.textures[name] = t }
func (p *fakeProgram) Texture(name string) Target          { return p.textures[name] }
func (p *fakeProgram) Alive() bool                         { return p != nil && !p.released }
func (p *fakeProgram) Release()                            { p.released = true }

type fakeMesh struct {
	lat      *lattice.Mesh
	released bool
}

func (m *fakeMesh) VertexCount() int { return len(m.lat.Vertices) }
func (m *fakeMesh) Alive() bool      { return m != nil && !m.released }
func (m *fakeMesh) Release()         { m.released = true }

type blitOp struct {
	pass     int
	src, dst *fakeTarget
}

type fakeDevice struct {
	frame int

	targets  []*fakeTarget
	programs []*fakeProgram
	meshes   []*fakeMesh
	blits    []blitOp
	tiles    []Rect

	// failTargetAt fails the n-th CreateTarget call (1-based, 0 = never).
	failTargetAt int
	failKinds    map[ProgramKind]bool
	failMesh     bool
	targetCalls  int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{failKinds: map[ProgramKind]bool{}}
}

func (d *fakeDevice) CreateTarget(desc TargetDesc) (Target, error) {
	d.targetCalls++
	if d.failTargetAt != 0 && d.targetCalls == d.failTargetAt {
		return nil, errFakeOOM
	}
	t := &fakeTarget{id: uuid.New(), desc: desc}
	d.targets = append(d.targets, t)
	return t, nil
}

func (d *fakeDevice) CreateProgram(kind ProgramKind) (Program, error) {
	if d.failKinds[kind] {
		return nil, fmt.Errorf("fake: no %s program", kind)
	}
	p := &fakeProgram{kind: kind, vectors: map[string]mgl32.Vec4{}, textures: map[string]Target{}}
	d.programs = append(d.programs, p)
	return p, nil
}

func (d *fakeDevice) CreateMesh(m *lattice.Mesh) (Mesh, error) {
	if d.failMesh {
		return nil, errFakeOOM
	}
	fm := &fakeMesh{lat: m}
	d.meshes = append(d.meshes, fm)
	return fm, nil
}

func (d *fakeDevice) Blit(src, dst Target, p Program, pass int) error {
	dt := dst.(*fakeTarget)
	if dt.released || !p.Alive() {
		return ErrStaleResource
	}
	var st *fakeTarget
	if src != nil {
		st = src.(*fakeTarget)
		if st.released {
			return ErrStaleResource
		}
	}
	switch pass {
	case PassPosition:
		dt.stamp = d.frame
	default:
		dt.stamp = st.stamp
	}
	d.blits = append(d.blits, blitOp{pass: pass, src: st, dst: dt})
	return nil
}

func (d *fakeDevice) DrawTexture(r Rect, t Target, p Program) error {
	d.tiles = append(d.tiles, r)
	return nil
}

func (d *fakeDevice) liveTargets() []*fakeTarget {
	var out []*fakeTarget
	for _, t := range d.targets {
		if !t.released {
			out = append(out, t)
		}
	}
	return out
}

func (d *fakeDevice) liveMeshes() int {
	n := 0
	for _, m := range d.meshes {
		if !m.released {
			n++
		}
	}
	return n
}

func (d *fakeDevice) programsOf(kind ProgramKind) []*fakeProgram {
	var out []*fakeProgram
	for _, p := range d.programs {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}
