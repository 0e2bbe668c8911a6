package scene

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
)

// AttachFormat identifies the mesh format an attach is stored in.
type AttachFormat int

const (
	FormatBuffer AttachFormat = iota // Intermediate buffer meshes
	FormatBasic                      // BASIC (Sonic Adventure 1)
	FormatChunk                      // CHUNK (Sonic Adventure 2)
	FormatGC                         // GC (Sonic Adventure 2 Battle)
)

// ErrUnknownFormat is returned when parsing an unknown format name.
var ErrUnknownFormat = errors.New("unknown attach format")

// String returns a human-readable format name.
func (f AttachFormat) String() string {
	switch f {
	case FormatBuffer:
		return "Buffer"
	case FormatBasic:
		return "BASIC"
	case FormatChunk:
		return "CHUNK"
	case FormatGC:
		return "GC"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// ParseAttachFormat parses a format name, case insensitive.
func ParseAttachFormat(name string) (AttachFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "buffer", "":
		return FormatBuffer, nil
	case "basic":
		return FormatBasic, nil
	case "chunk":
		return FormatChunk, nil
	case "gc":
		return FormatGC, nil
	default:
		return FormatBuffer, errors.Wrapf(ErrUnknownFormat, "%q", name)
	}
}

// Attach is the mesh payload of a node. MeshData always holds the buffer
// representation; format specific converters keep it populated.
type Attach struct {
	Name     string
	Format   AttachFormat
	MeshData []*buffer.Mesh
}

// NewBufferAttach creates a buffer format attach.
func NewBufferAttach(name string, meshes ...*buffer.Mesh) *Attach {
	return &Attach{
		Name:     name,
		Format:   FormatBuffer,
		MeshData: meshes,
	}
}

// HasMeshData reports whether the buffer representation is available.
func (a *Attach) HasMeshData() bool {
	return a != nil && a.MeshData != nil
}

// VertexCount returns the number of vertex stream entries across all meshes.
func (a *Attach) VertexCount() int {
	n := 0
	for _, m := range a.MeshData {
		n += len(m.Vertices)
	}
	return n
}

// CornerCount returns the number of polygon corners across all meshes.
func (a *Attach) CornerCount() int {
	n := 0
	for _, m := range a.MeshData {
		if m.IndexList != nil {
			n += len(m.IndexList)
		} else {
			n += len(m.Corners)
		}
	}
	return n
}

// Clone returns a deep copy of the attach.
func (a *Attach) Clone() *Attach {
	c := &Attach{Name: a.Name, Format: a.Format}
	if a.MeshData != nil {
		c.MeshData = make([]*buffer.Mesh, len(a.MeshData))
		for i, m := range a.MeshData {
			c.MeshData[i] = m.Clone()
		}
	}
	return c
}
