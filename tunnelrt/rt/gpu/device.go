// Package gpu implements core.Device on WebGPU. Buffers are RGBA32Float
// render targets; the construct passes are fullscreen-triangle draws into
// them, each submitted in order on the device queue.
package gpu

import (
	"fmt"

	"github.com/gekko3d/tunnel"
	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

type tile struct {
	rect   core.Rect
	target *Target
}

type Device struct {
	device        *wgpu.Device
	queue         *wgpu.Queue
	log           tunnel.Logger
	surfaceFormat wgpu.TextureFormat
	depthFormat   wgpu.TextureFormat

	layouts   map[core.ProgramKind]*wgpu.BindGroupLayout
	construct [3]*wgpu.RenderPipeline
	pipelines map[core.ProgramKind]*wgpu.RenderPipeline

	placeholderT *Target

	tiles        []tile
	debugProgram *Program
}

// NewDevice compiles the tunnel programs for a surface of the given color
// format. depthFormat may be TextureFormatUndefined to draw without depth.
func NewDevice(device *wgpu.Device, surfaceFormat, depthFormat wgpu.TextureFormat, log tunnel.Logger) (*Device, error) {
	d := &Device{
		device:        device,
		queue:         device.GetQueue(),
		log:           tunnel.OrNop(log),
		surfaceFormat: surfaceFormat,
		depthFormat:   depthFormat,
		layouts:       map[core.ProgramKind]*wgpu.BindGroupLayout{},
		pipelines:     map[core.ProgramKind]*wgpu.RenderPipeline{},
	}
	if err := d.setupLayouts(); err != nil {
		d.Release()
		return nil, err
	}
	if err := d.setupConstruct(); err != nil {
		d.Release()
		return nil, err
	}
	if err := d.setupDraw(); err != nil {
		d.Release()
		return nil, err
	}
	if err := d.setupDebug(); err != nil {
		// The overlay is optional.
		d.log.Warnf("gpu: debug pipeline: %v", err)
		d.layouts[core.ProgramDebug].Release()
		delete(d.layouts, core.ProgramDebug)
	}
	if err := d.setupPlaceholder(); err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

func uniformEntry(visibility wgpu.ShaderStage, size int) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: visibility,
		Buffer: wgpu.BufferBindingLayout{
			Type:           wgpu.BufferBindingTypeUniform,
			MinBindingSize: uint64(size),
		},
	}
}

func floatTextureEntry(binding uint32, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Texture: wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		},
	}
}

func pointSamplerEntry(binding uint32, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: visibility,
		Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering},
	}
}

func (d *Device) setupLayouts() error {
	vf := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	descs := map[core.ProgramKind][]wgpu.BindGroupLayoutEntry{
		core.ProgramConstruct: {
			uniformEntry(vf, layoutFor(core.ProgramConstruct).size),
			floatTextureEntry(1, wgpu.ShaderStageFragment),
		},
		core.ProgramSurface: {
			uniformEntry(vf, layoutFor(core.ProgramSurface).size),
			floatTextureEntry(1, wgpu.ShaderStageVertex),
			pointSamplerEntry(2, wgpu.ShaderStageVertex),
			floatTextureEntry(3, wgpu.ShaderStageVertex),
		},
		core.ProgramLine: {
			uniformEntry(vf, layoutFor(core.ProgramLine).size),
			floatTextureEntry(1, wgpu.ShaderStageVertex),
			pointSamplerEntry(2, wgpu.ShaderStageVertex),
		},
		core.ProgramDebug: {
			uniformEntry(vf, layoutFor(core.ProgramDebug).size),
			floatTextureEntry(1, wgpu.ShaderStageFragment),
		},
	}
	for kind, entries := range descs {
		bgl, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("tunnel %s BGL", kind),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("gpu: %s bind group layout: %w", kind, err)
		}
		d.layouts[kind] = bgl
	}
	return nil
}

func (d *Device) shaderModule(label, code string) (*wgpu.ShaderModule, error) {
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s: %w", label, err)
	}
	return m, nil
}

func (d *Device) pipelineLayout(kind core.ProgramKind) (*wgpu.PipelineLayout, error) {
	return d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            fmt.Sprintf("tunnel %s layout", kind),
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.layouts[kind]},
	})
}

var defaultMultisample = wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF}

func (d *Device) setupConstruct() error {
	module, err := d.shaderModule("tunnel construct", shaders.ConstructWGSL)
	if err != nil {
		return err
	}
	defer module.Release()
	layout, err := d.pipelineLayout(core.ProgramConstruct)
	if err != nil {
		return fmt.Errorf("gpu: construct layout: %w", err)
	}
	defer layout.Release()

	for pass, entry := range shaders.ConstructPasses {
		d.construct[pass], err = d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  "tunnel " + entry,
			Layout: layout,
			Vertex: wgpu.VertexState{
				Module:     module,
				EntryPoint: "vs_main",
			},
			Fragment: &wgpu.FragmentState{
				Module:     module,
				EntryPoint: entry,
				Targets: []wgpu.ColorTargetState{{
					Format:    wgpu.TextureFormatRGBA32Float,
					WriteMask: wgpu.ColorWriteMaskAll,
				}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeNone,
			},
			Multisample: defaultMultisample,
		})
		if err != nil {
			return fmt.Errorf("gpu: %s pipeline: %w", entry, err)
		}
	}
	return nil
}

func (d *Device) depthState() *wgpu.DepthStencilState {
	if d.depthFormat == wgpu.TextureFormatUndefined {
		return nil
	}
	return &wgpu.DepthStencilState{
		Format:            d.depthFormat,
		DepthWriteEnabled: true,
		DepthCompare:      wgpu.CompareFunctionLess,
		StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
	}
}

func (d *Device) setupDraw() error {
	vertexLayout := wgpu.VertexBufferLayout{
		ArrayStride: vertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{{
			Format:         wgpu.VertexFormatFloat32x2,
			Offset:         0,
			ShaderLocation: 0,
		}},
	}
	draws := []struct {
		kind     core.ProgramKind
		code     string
		topology wgpu.PrimitiveTopology
	}{
		{core.ProgramSurface, shaders.SurfaceWGSL, wgpu.PrimitiveTopologyTriangleList},
		{core.ProgramLine, shaders.LineWGSL, wgpu.PrimitiveTopologyLineList},
	}
	for _, dr := range draws {
		module, err := d.shaderModule(fmt.Sprintf("tunnel %s", dr.kind), dr.code)
		if err != nil {
			return err
		}
		layout, err := d.pipelineLayout(dr.kind)
		if err != nil {
			module.Release()
			return fmt.Errorf("gpu: %s layout: %w", dr.kind, err)
		}
		pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  fmt.Sprintf("tunnel %s pipeline", dr.kind),
			Layout: layout,
			Vertex: wgpu.VertexState{
				Module:     module,
				EntryPoint: "vs_main",
				Buffers:    []wgpu.VertexBufferLayout{vertexLayout},
			},
			Fragment: &wgpu.FragmentState{
				Module:     module,
				EntryPoint: "fs_main",
				Targets: []wgpu.ColorTargetState{{
					Format:    d.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  dr.topology,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeNone,
			},
			DepthStencil: d.depthState(),
			Multisample:  defaultMultisample,
		})
		module.Release()
		layout.Release()
		if err != nil {
			return fmt.Errorf("gpu: %s pipeline: %w", dr.kind, err)
		}
		d.pipelines[dr.kind] = pipeline
	}
	return nil
}

func (d *Device) setupDebug() error {
	module, err := d.shaderModule("tunnel debug", shaders.DebugWGSL)
	if err != nil {
		return err
	}
	defer module.Release()
	layout, err := d.pipelineLayout(core.ProgramDebug)
	if err != nil {
		return err
	}
	defer layout.Release()

	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "tunnel debug pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{Module: module, EntryPoint: "vs_main"},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    d.surfaceFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: defaultMultisample,
	})
	if err != nil {
		return err
	}
	d.pipelines[core.ProgramDebug] = pipeline
	return nil
}

// setupPlaceholder creates the 1x1 input bound to the position pass, which
// reads nothing.
func (d *Device) setupPlaceholder() error {
	t, err := d.CreateTarget(core.TargetDesc{Label: "tunnel placeholder", Width: 1, Height: 1})
	if err != nil {
		return err
	}
	d.placeholderT = t.(*Target)
	return nil
}

func (d *Device) liveTarget(t core.Target, what string) (*Target, error) {
	gt, ok := t.(*Target)
	if !ok || !gt.Alive() {
		return nil, fmt.Errorf("gpu: %s target: %w", what, core.ErrStaleResource)
	}
	return gt, nil
}

func (d *Device) liveProgram(p core.Program, kind core.ProgramKind) (*Program, error) {
	gp, ok := p.(*Program)
	if !ok || !gp.Alive() {
		return nil, fmt.Errorf("gpu: %s program: %w", kind, core.ErrStaleResource)
	}
	if gp.kind != kind {
		return nil, fmt.Errorf("gpu: want %s program, got %s", kind, gp.kind)
	}
	return gp, nil
}

func (d *Device) Blit(src, dst core.Target, p core.Program, pass int) error {
	if pass < 0 || pass >= len(d.construct) {
		return fmt.Errorf("gpu: construct program has no pass %d", pass)
	}
	out, err := d.liveTarget(dst, "destination")
	if err != nil {
		return err
	}
	prog, err := d.liveProgram(p, core.ProgramConstruct)
	if err != nil {
		return err
	}
	in := d.placeholderT
	if pass != core.PassPosition {
		if in, err = d.liveTarget(src, "source"); err != nil {
			return err
		}
		if in == out {
			return fmt.Errorf("gpu: pass %d reads and writes the same target", pass)
		}
	}

	prog.SetVector(paramExtent, mgl32.Vec4{float32(out.Width()), float32(out.Height()), 0, 0})
	if err := prog.flush(); err != nil {
		return err
	}
	group, err := prog.inputGroup(in)
	if err != nil {
		return err
	}

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu: pass %d encoder: %w", pass, err)
	}
	defer encoder.Release()
	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       out.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{},
		}},
	})
	rp.SetPipeline(d.construct[pass])
	rp.SetBindGroup(0, group, nil)
	rp.Draw(3, 1, 0, 0)
	if err := rp.End(); err != nil {
		return fmt.Errorf("gpu: pass %d: %w", pass, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu: pass %d finish: %w", pass, err)
	}
	defer cmd.Release()
	d.queue.Submit(cmd)
	return nil
}

// DrawTexture queues a debug tile; EncodeOverlay records the queued tiles.
func (d *Device) DrawTexture(r core.Rect, t core.Target, p core.Program) error {
	in, err := d.liveTarget(t, "overlay")
	if err != nil {
		return err
	}
	if _, err := d.liveProgram(p, core.ProgramDebug); err != nil {
		return err
	}
	d.debugProgram = p.(*Program)
	d.tiles = append(d.tiles, tile{rect: r, target: in})
	return nil
}

// EncodeDraw records the drawable's submeshes into pass: material i draws
// submesh i.
func (d *Device) EncodeDraw(pass *wgpu.RenderPassEncoder, dr core.Drawable) error {
	mesh, ok := dr.Mesh.(*Mesh)
	if !ok || !mesh.Alive() {
		return fmt.Errorf("gpu: draw mesh: %w", core.ErrStaleResource)
	}
	for i, mat := range dr.Materials {
		if i >= len(mesh.indices) {
			break
		}
		prog, ok := mat.(*Program)
		if !ok || !prog.Alive() {
			return fmt.Errorf("gpu: material %d: %w", i, core.ErrStaleResource)
		}
		if err := prog.flush(); err != nil {
			return err
		}
		group, err := prog.drawGroup()
		if err != nil {
			return err
		}
		pass.SetPipeline(d.pipelines[prog.kind])
		pass.SetBindGroup(0, group, nil)
		pass.SetVertexBuffer(0, mesh.vertices, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(mesh.indices[i], wgpu.IndexFormatUint16, 0, wgpu.WholeSize)
		pass.DrawIndexed(mesh.counts[i], 1, 0, 0, 0)
	}
	return nil
}

// EncodeOverlay records the tiles queued since the last call, each into its
// own viewport. pass must have no depth attachment. Tiles that do not fit a
// width x height attachment are dropped.
func (d *Device) EncodeOverlay(pass *wgpu.RenderPassEncoder, width, height int) error {
	tiles := d.tiles
	d.tiles = d.tiles[:0]
	prog := d.debugProgram
	if len(tiles) == 0 || !prog.Alive() {
		return nil
	}
	if err := prog.flush(); err != nil {
		return err
	}
	pass.SetPipeline(d.pipelines[core.ProgramDebug])
	for _, t := range tiles {
		r := t.rect
		if !t.target.Alive() || r.X+r.W > width || r.Y+r.H > height {
			continue
		}
		group, err := prog.inputGroup(t.target)
		if err != nil {
			return err
		}
		pass.SetViewport(float32(r.X), float32(r.Y), float32(r.W), float32(r.H), 0, 1)
		pass.SetBindGroup(0, group, nil)
		pass.Draw(3, 1, 0, 0)
	}
	pass.SetViewport(0, 0, float32(width), float32(height), 0, 1)
	return nil
}

func (d *Device) Release() {
	d.tiles = nil
	if d.placeholderT != nil {
		d.placeholderT.Release()
		d.placeholderT = nil
	}
	for i, p := range d.construct {
		if p != nil {
			p.Release()
			d.construct[i] = nil
		}
	}
	for kind, p := range d.pipelines {
		p.Release()
		delete(d.pipelines, kind)
	}
	for kind, l := range d.layouts {
		l.Release()
		delete(d.layouts, kind)
	}
}
