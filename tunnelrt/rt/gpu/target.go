package gpu

import (
	"fmt"

	"github.com/gekko3d/tunnel/tunnelrt/rt/core"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// Target is a float render target plus the sampler downstream programs read
// it with.
type Target struct {
	id       uuid.UUID
	desc     core.TargetDesc
	texture  *wgpu.Texture
	view     *wgpu.TextureView
	sampler  *wgpu.Sampler
	released bool
}

func (t *Target) ID() uuid.UUID { return t.id }
func (t *Target) Width() int    { return t.desc.Width }
func (t *Target) Height() int   { return t.desc.Height }
func (t *Target) Alive() bool   { return t != nil && !t.released }

func (t *Target) Release() {
	if t.released {
		return
	}
	t.released = true
	if t.sampler != nil {
		t.sampler.Release()
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.texture != nil {
		t.texture.Release()
	}
}

func textureFormat(f core.Format) (wgpu.TextureFormat, error) {
	switch f {
	case core.FormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float, nil
	}
	return wgpu.TextureFormatUndefined, fmt.Errorf("gpu: unsupported target format %d", f)
}

func filterMode(f core.FilterMode) wgpu.FilterMode {
	if f == core.FilterLinear {
		return wgpu.FilterModeLinear
	}
	return wgpu.FilterModeNearest
}

func addressMode(w core.WrapMode) wgpu.AddressMode {
	if w == core.WrapClamp {
		return wgpu.AddressModeClampToEdge
	}
	return wgpu.AddressModeRepeat
}

func (d *Device) CreateTarget(desc core.TargetDesc) (core.Target, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("gpu: invalid target size %dx%d", desc.Width, desc.Height)
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return nil, err
	}

	t := &Target{id: uuid.New(), desc: desc}
	t.texture, err = d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	t.view, err = t.texture.CreateView(nil)
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("create view %q: %w", desc.Label, err)
	}
	t.sampler, err = d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  addressMode(desc.Wrap),
		AddressModeV:  addressMode(desc.Wrap),
		AddressModeW:  addressMode(desc.Wrap),
		MagFilter:     filterMode(desc.Filter),
		MinFilter:     filterMode(desc.Filter),
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   1,
		Compare:       wgpu.CompareFunctionUndefined,
		MaxAnisotropy: 1,
	})
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}
	d.log.Debugf("gpu: target %s %dx%d", desc.Label, desc.Width, desc.Height)
	return t, nil
}
