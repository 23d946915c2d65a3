package gpu

import (
	"fmt"

	"github.com/gekko3d/tunnel/tunnelrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// inputGroup is a bind group built around one sampled target.
type inputGroup struct {
	target *Target
	group  *wgpu.BindGroup
}

// Program owns a uniform block and the bind groups of one pipeline family.
// Surface and line programs have a single bind group over their texture
// slots, rebuilt after SetTexture. Construct and debug programs sample
// whatever target the call passes in, so they keep one group per input.
type Program struct {
	dev      *Device
	kind     core.ProgramKind
	layout   uniformLayout
	uniforms []byte
	dirty    bool
	buffer   *wgpu.Buffer

	textures map[string]core.Target
	group    *wgpu.BindGroup
	inputs   map[uuid.UUID]inputGroup

	released bool
}

func (p *Program) Kind() core.ProgramKind { return p.kind }
func (p *Program) Alive() bool            { return p != nil && !p.released }

func (p *Program) SetVector(name string, v mgl32.Vec4) {
	off, ok := p.layout.vectors[name]
	if !ok {
		panic(fmt.Sprintf("gpu: %s program has no vector %q", p.kind, name))
	}
	putVec4(p.uniforms, off, v)
	p.dirty = true
}

func (p *Program) SetMatrix(name string, m mgl32.Mat4) {
	off, ok := p.layout.matrices[name]
	if !ok {
		panic(fmt.Sprintf("gpu: %s program has no matrix %q", p.kind, name))
	}
	putMat4(p.uniforms, off, m)
	p.dirty = true
}

func (p *Program) SetTexture(name string, t core.Target) {
	p.textures[name] = t
	if p.group != nil {
		p.group.Release()
		p.group = nil
	}
}

func (p *Program) Texture(name string) core.Target {
	return p.textures[name]
}

func (p *Program) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.group != nil {
		p.group.Release()
	}
	for _, in := range p.inputs {
		in.group.Release()
	}
	p.inputs = nil
	if p.buffer != nil {
		p.buffer.Release()
	}
}

// flush uploads the uniform block if it changed since the last upload.
func (p *Program) flush() error {
	if !p.dirty {
		return nil
	}
	if err := p.dev.queue.WriteBuffer(p.buffer, 0, p.uniforms); err != nil {
		return fmt.Errorf("gpu: %s uniforms: %w", p.kind, err)
	}
	p.dirty = false
	return nil
}

func (p *Program) slot(name string) (*Target, error) {
	t, ok := p.textures[name].(*Target)
	if !ok || !t.Alive() {
		return nil, fmt.Errorf("gpu: %s program slot %s: %w", p.kind, name, core.ErrStaleResource)
	}
	return t, nil
}

// drawGroup returns the bind group over the program's texture slots.
func (p *Program) drawGroup() (*wgpu.BindGroup, error) {
	pos, err := p.slot(core.SlotPosition)
	if err != nil {
		return nil, err
	}
	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: p.buffer, Size: uint64(p.layout.size)},
		{Binding: 1, TextureView: pos.view},
		{Binding: 2, Sampler: pos.sampler},
	}
	if p.kind == core.ProgramSurface {
		normal, err := p.slot(core.SlotNormal)
		if err != nil {
			return nil, err
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: 3, TextureView: normal.view})
	}
	if p.group != nil {
		return p.group, nil
	}
	p.group, err = p.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("tunnel %s group", p.kind),
		Layout:  p.dev.layouts[p.kind],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s bind group: %w", p.kind, err)
	}
	return p.group, nil
}

// inputGroup returns the bind group that samples t, dropping groups whose
// target has been released.
func (p *Program) inputGroup(t *Target) (*wgpu.BindGroup, error) {
	for id, in := range p.inputs {
		if !in.target.Alive() {
			in.group.Release()
			delete(p.inputs, id)
		}
	}
	if in, ok := p.inputs[t.id]; ok {
		return in.group, nil
	}
	g, err := p.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  fmt.Sprintf("tunnel %s input %s", p.kind, t.desc.Label),
		Layout: p.dev.layouts[p.kind],
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: p.buffer, Size: uint64(p.layout.size)},
			{Binding: 1, TextureView: t.view},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s bind group: %w", p.kind, err)
	}
	p.inputs[t.id] = inputGroup{target: t, group: g}
	return g, nil
}

func (d *Device) CreateProgram(kind core.ProgramKind) (core.Program, error) {
	layout := layoutFor(kind)
	if _, ok := d.layouts[kind]; !ok {
		return nil, fmt.Errorf("gpu: %s pipeline unavailable", kind)
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("tunnel %s uniforms", kind),
		Size:  uint64(layout.size),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s uniforms: %w", kind, err)
	}
	p := &Program{
		dev:      d,
		kind:     kind,
		layout:   layout,
		uniforms: make([]byte, layout.size),
		dirty:    true,
		buffer:   buf,
		textures: map[string]core.Target{},
		inputs:   map[uuid.UUID]inputGroup{},
	}
	if kind == core.ProgramDebug {
		p.SetVector(paramScale, mgl32.Vec4{debugScale, 0, 0, 0})
	}
	return p, nil
}
