package core

import (
	"fmt"

	"github.com/gekko3d/tunnel"
)

// Buffers is one generation of GPGPU buffers. All three share the same size.
type Buffers struct {
	Position Target
	NormalA  Target
	NormalB  Target

	Generation uint64
}

func (b *Buffers) All() []Target {
	if b == nil {
		return nil
	}
	return []Target{b.Position, b.NormalA, b.NormalB}
}

func (b *Buffers) Alive() bool {
	if b == nil {
		return false
	}
	return alive(b.Position) && alive(b.NormalA) && alive(b.NormalB)
}

func (b *Buffers) Size() (w, h int) {
	if b == nil || b.Position == nil {
		return 0, 0
	}
	return b.Position.Width(), b.Position.Height()
}

func (b *Buffers) release() {
	for _, t := range b.All() {
		if t != nil {
			t.Release()
		}
	}
}

// BufferPool owns the position and normal buffers.
type BufferPool struct {
	dev        Device
	log        tunnel.Logger
	current    *Buffers
	generation uint64
}

func NewBufferPool(dev Device, log tunnel.Logger) *BufferPool {
	return &BufferPool{dev: dev, log: tunnel.OrNop(log)}
}

// BufferSize is the buffer size for a lattice resolution.
func BufferSize(slices, stacks int) (w, h int) {
	return slices * 2, stacks
}

// Reallocate replaces the current buffers with a fresh set for (slices,
// stacks). When the size changes the old set is released first; when it does
// not, the new set is allocated before the old one is released. On error no
// new buffer is left allocated.
func (p *BufferPool) Reallocate(slices, stacks int) (*Buffers, error) {
	w, h := BufferSize(slices, stacks)
	cw, ch := p.current.Size()
	if p.current != nil && (cw != w || ch != h) {
		p.Release()
	}

	next, err := p.allocate(w, h)
	if err != nil {
		return nil, err
	}
	if p.current != nil {
		p.current.release()
	}
	p.current = next
	p.log.Debugf("buffers generation %d: %dx%d", next.Generation, w, h)
	return next, nil
}

func (p *BufferPool) allocate(w, h int) (*Buffers, error) {
	p.generation++
	next := &Buffers{Generation: p.generation}
	slots := []struct {
		label string
		dst   *Target
	}{
		{"position", &next.Position},
		{"normal-a", &next.NormalA},
		{"normal-b", &next.NormalB},
	}
	for _, s := range slots {
		t, err := p.dev.CreateTarget(TargetDesc{
			Label:  fmt.Sprintf("tunnel %s #%d", s.label, next.Generation),
			Width:  w,
			Height: h,
			Format: FormatRGBA32Float,
			Filter: FilterPoint,
			Wrap:   WrapRepeat,
		})
		if err != nil {
			next.release()
			return nil, fmt.Errorf("%s buffer %dx%d: %w: %w", s.label, w, h, ErrResourceAllocation, err)
		}
		*s.dst = t
	}
	return next, nil
}

// Current returns the live buffer set, or nil.
func (p *BufferPool) Current() *Buffers {
	return p.current
}

func (p *BufferPool) Alive() bool {
	return p.current.Alive()
}

func (p *BufferPool) Release() {
	if p.current == nil {
		return
	}
	p.current.release()
	p.current = nil
}
