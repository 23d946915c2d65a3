package gpu

import (
	"fmt"

	"github.com/gekko3d/tunnel/tunnelrt/rt/core"
	"github.com/gekko3d/tunnel/tunnelrt/rt/lattice"

	"github.com/cogentcore/webgpu/wgpu"
)

// Mesh is an uploaded lattice: one vertex buffer and one index buffer per
// submesh (surface A, surface B, lines).
type Mesh struct {
	vertices    *wgpu.Buffer
	vertexCount int
	indices     []*wgpu.Buffer
	counts      []uint32
	released    bool
}

func (m *Mesh) VertexCount() int { return m.vertexCount }
func (m *Mesh) Alive() bool      { return m != nil && !m.released }

func (m *Mesh) Release() {
	if m.released {
		return
	}
	m.released = true
	if m.vertices != nil {
		m.vertices.Release()
	}
	for _, b := range m.indices {
		if b != nil {
			b.Release()
		}
	}
}

func (d *Device) uploadBuffer(label string, usage wgpu.BufferUsage, data []byte) (*wgpu.Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, fmt.Errorf("write buffer %q: %w", label, err)
	}
	return buf, nil
}

func (d *Device) CreateMesh(lm *lattice.Mesh) (core.Mesh, error) {
	m := &Mesh{vertexCount: len(lm.Vertices)}
	var err error
	m.vertices, err = d.uploadBuffer("tunnel lattice vertices", wgpu.BufferUsageVertex, vertexBytes(lm.Vertices))
	if err != nil {
		return nil, err
	}
	for i, idx := range lm.Submeshes() {
		buf, err := d.uploadBuffer(fmt.Sprintf("tunnel lattice indices %d", i), wgpu.BufferUsageIndex, indexBytes(idx))
		if err != nil {
			m.Release()
			return nil, err
		}
		m.indices = append(m.indices, buf)
		m.counts = append(m.counts, uint32(len(idx)))
	}
	d.log.Debugf("gpu: uploaded lattice %dx%d (%d vertices)", lm.Columns, lm.Rows, m.vertexCount)
	return m, nil
}
