package terrain

// Vertex is one interleaved terrain vertex: position, normal and UV.
// The GPU layout is 8 consecutive float32 values (32 bytes).
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// VertexStride is the byte size of a Vertex in a vertex buffer.
const VertexStride = 32

// Mesh is CPU-side indexed triangle geometry.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// PlaneMesh builds a flat square in the XZ plane centered on the origin,
// facing +Y, with the given half-size. subdivisions is the number of
// interior cuts per side, so each side has subdivisions+2 vertices.
// Triangles wind counter-clockwise when viewed from above.
func PlaneMesh(halfSize float32, subdivisions int) *Mesh {
	if subdivisions < 0 {
		subdivisions = 0
	}
	side := subdivisions + 2
	size := 2 * halfSize

	m := &Mesh{
		Vertices: make([]Vertex, 0, side*side),
		Indices:  make([]uint32, 0, (side-1)*(side-1)*6),
	}

	last := float32(side - 1)
	for z := range side {
		tz := float32(z) / last
		for x := range side {
			tx := float32(x) / last
			m.Vertices = append(m.Vertices, Vertex{
				Position: [3]float32{(tx - 0.5) * size, 0, (tz - 0.5) * size},
				Normal:   [3]float32{0, 1, 0},
				UV:       [2]float32{tx, tz},
			})
		}
	}

	stride := uint32(side)
	for z := range uint32(side - 1) {
		for x := range uint32(side - 1) {
			quad := z*stride + x
			m.Indices = append(m.Indices,
				quad+stride+1, quad+1, quad+stride,
				quad, quad+stride, quad+1,
			)
		}
	}
	return m
}
