package buffer

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/distinct"
)

// Mesh is one entry of a buffer attach. A mesh may carry a vertex stream,
// polygon corners, or both.
type Mesh struct {
	Vertices       []Vertex `yaml:"vertices,omitempty"`
	ContinueWeight bool     `yaml:"continue_weight,omitempty"` // Add into existing slots instead of overwriting
	HasNormals     bool     `yaml:"has_normals,omitempty"`

	VertexReadOffset  uint16 `yaml:"read_offset,omitempty"`
	VertexWriteOffset uint16 `yaml:"write_offset,omitempty"`

	Corners     []Corner  `yaml:"corners,omitempty"`
	IndexList   []uint32  `yaml:"index_list,omitempty"` // Optional indirection into Corners
	Strippified bool      `yaml:"strippified,omitempty"`
	HasColors   bool      `yaml:"has_colors,omitempty"`
	Material    *Material `yaml:"material,omitempty"`
}

// NewVertexMesh creates a mesh holding only a vertex stream.
func NewVertexMesh(vertices []Vertex, continueWeight, hasNormals bool, writeOffset uint16) *Mesh {
	return &Mesh{
		Vertices:          vertices,
		ContinueWeight:    continueWeight,
		HasNormals:        hasNormals,
		VertexWriteOffset: writeOffset,
	}
}

// NewPolygonMesh creates a mesh holding triangle list corners.
// With optimize set, repeated corners are collapsed into an index list.
func NewPolygonMesh(corners []Corner, material *Material, hasColors, optimize bool) *Mesh {
	mesh := &Mesh{
		Corners:   corners,
		HasColors: hasColors,
		Material:  material,
	}

	if optimize {
		dist, remap, changed := distinct.CreateDistinct(corners)
		if changed {
			mesh.Corners = dist
			mesh.IndexList = make([]uint32, len(remap))
			for i, r := range remap {
				mesh.IndexList[i] = uint32(r)
			}
		}
	}

	return mesh
}

// HasVertices reports whether the mesh writes into the vertex cache.
func (m *Mesh) HasVertices() bool {
	return len(m.Vertices) > 0
}

// HasPolygons reports whether the mesh reads corners from the vertex cache.
func (m *Mesh) HasPolygons() bool {
	return len(m.Corners) > 0
}

// GetCorners returns the corners in drawing order, resolving the index list.
func (m *Mesh) GetCorners() ([]Corner, error) {
	if m.IndexList == nil {
		return m.Corners, nil
	}

	result := make([]Corner, len(m.IndexList))
	for i, idx := range m.IndexList {
		if int(idx) >= len(m.Corners) {
			return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d of %d: corner %d", i, len(m.IndexList), idx)
		}
		result[i] = m.Corners[idx]
	}
	return result, nil
}

// TriangleCorners returns the corners as a triangle list. Strips are
// unrolled with alternating winding and degenerate triangles dropped.
func (m *Mesh) TriangleCorners() ([]Corner, error) {
	corners, err := m.GetCorners()
	if err != nil {
		return nil, err
	}
	if !m.Strippified {
		return corners, nil
	}
	return StripToList(corners)
}

// StripToList converts a triangle strip into a triangle list.
func StripToList(strip []Corner) ([]Corner, error) {
	if len(strip) == 0 {
		return nil, nil
	}
	if len(strip) < 3 {
		return nil, errors.Wrapf(ErrInvalidStrip, "got %d corners", len(strip))
	}

	result := make([]Corner, 0, (len(strip)-2)*3)
	for i := 0; i < len(strip)-2; i++ {
		a, b, c := strip[i], strip[i+1], strip[i+2]
		if a.VertexIndex == b.VertexIndex || b.VertexIndex == c.VertexIndex || a.VertexIndex == c.VertexIndex {
			continue
		}
		if i%2 == 1 {
			a, b = b, a
		}
		result = append(result, a, b, c)
	}
	return result, nil
}

// ShiftOffsets moves both the read and write offset by offset.
func (m *Mesh) ShiftOffsets(offset uint16) {
	m.VertexReadOffset += offset
	m.VertexWriteOffset += offset
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := *m
	if m.Vertices != nil {
		c.Vertices = append([]Vertex(nil), m.Vertices...)
	}
	if m.Corners != nil {
		c.Corners = append([]Corner(nil), m.Corners...)
	}
	if m.IndexList != nil {
		c.IndexList = append([]uint32(nil), m.IndexList...)
	}
	if m.Material != nil {
		mat := *m.Material
		c.Material = &mat
	}
	return &c
}
