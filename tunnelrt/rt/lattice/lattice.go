// Package lattice builds the fixed-topology tube mesh that is draped over the
// GPU-computed position and normal buffers.
//
// A lattice for (slices, stacks) has Columns = 2*slices vertices per ring and
// Rows = stacks rings. Vertex i sits at column i%Columns, row i/Columns, and its
// UV is (column/Columns, row/Rows), which addresses exactly one texel of a
// Columns x Rows buffer. The ring is closed: column Columns-1 connects to
// column 0.
package lattice

import (
	"fmt"
	"math"
)

const (
	MinResolution = 8
	MaxResolution = 100
)

type Vertex struct {
	UV [2]float32
}

type Mesh struct {
	Slices, Stacks int
	Columns, Rows  int

	Vertices []Vertex

	// SurfaceA and SurfaceB hold the two triangles of every quad. Together
	// they cover the closed ring.
	SurfaceA []uint16
	SurfaceB []uint16
	Lines    []uint16
}

// Build returns a fresh lattice. Slices and stacks must already be clamped to
// [MinResolution, MaxResolution].
func Build(slices, stacks int) *Mesh {
	if slices < MinResolution || slices > MaxResolution || stacks < MinResolution || stacks > MaxResolution {
		panic(fmt.Sprintf("lattice: resolution %dx%d outside [%d, %d]", slices, stacks, MinResolution, MaxResolution))
	}

	cols := slices * 2
	rows := stacks
	m := &Mesh{
		Slices:   slices,
		Stacks:   stacks,
		Columns:  cols,
		Rows:     rows,
		Vertices: make([]Vertex, 0, cols*rows),
		SurfaceA: make([]uint16, 0, cols*(rows-1)*3),
		SurfaceB: make([]uint16, 0, cols*(rows-1)*3),
		Lines:    make([]uint16, 0, (cols*rows+cols*(rows-1))*2),
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			m.Vertices = append(m.Vertices, Vertex{UV: [2]float32{
				float32(col) / float32(cols),
				float32(row) / float32(rows),
			}})
		}
	}

	index := func(col, row int) uint16 {
		return uint16(row*cols + col%cols)
	}

	for row := 0; row < rows-1; row++ {
		for col := 0; col < cols; col++ {
			i00 := index(col, row)
			i10 := index(col+1, row)
			i01 := index(col, row+1)
			i11 := index(col+1, row+1)
			m.SurfaceA = append(m.SurfaceA, i00, i10, i01)
			m.SurfaceB = append(m.SurfaceB, i10, i11, i01)
		}
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			m.Lines = append(m.Lines, index(col, row), index(col+1, row))
			if row < rows-1 {
				m.Lines = append(m.Lines, index(col, row), index(col, row+1))
			}
		}
	}

	return m
}

// Submeshes returns the index sets in material order: surface A, surface B, lines.
func (m *Mesh) Submeshes() [][]uint16 {
	return [][]uint16{m.SurfaceA, m.SurfaceB, m.Lines}
}

func (m *Mesh) TexelCount() int {
	return m.Columns * m.Rows
}

// Texel resolves the UV of vertex i to the buffer texel it addresses.
func (m *Mesh) Texel(i int) (x, y int) {
	uv := m.Vertices[i].UV
	x = int(math.Round(float64(uv[0]) * float64(m.Columns)))
	y = int(math.Round(float64(uv[1]) * float64(m.Rows)))
	return x, y
}
