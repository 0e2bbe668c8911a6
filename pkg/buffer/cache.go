package buffer

import (
	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/math"
)

// ResolvedCorner is a corner with its cache slot read back.
type ResolvedCorner struct {
	Position math.Vec3
	Normal   math.Vec3
	Color    Color
	Texcoord math.Vec2
}

// Triangle is a polygon produced by evaluating buffer meshes.
type Triangle struct {
	Corners  [3]ResolvedCorner
	Material *Material
}

type cacheSlot struct {
	position math.Vec3
	normal   math.Vec3
}

// Cache emulates the shared vertex cache buffer meshes write to. Nodes must
// be processed in scene traversal order; slots persist between calls so
// weighted vertex streams can accumulate across nodes.
type Cache struct {
	slots []cacheSlot
}

// NewCache allocates an empty cache.
func NewCache() *Cache {
	return &Cache{slots: make([]cacheSlot, CacheSize)}
}

// Reset clears every slot.
func (c *Cache) Reset() {
	clear(c.slots)
}

// Process runs the vertex phase of every mesh, then resolves the polygon
// corners of every mesh against the cache. world is the node's world matrix.
func (c *Cache) Process(meshes []*Mesh, world math.Mat4) ([]Triangle, error) {
	normalMatrix, ok := world.NormalMatrix()
	if !ok {
		return nil, ErrSingularTransform
	}

	for mi, mesh := range meshes {
		if err := c.writeVertices(mesh, world, normalMatrix); err != nil {
			return nil, errors.Wrapf(err, "mesh %d", mi)
		}
	}

	var triangles []Triangle
	for mi, mesh := range meshes {
		if !mesh.HasPolygons() {
			continue
		}
		tris, err := c.readPolygons(mesh)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d", mi)
		}
		triangles = append(triangles, tris...)
	}
	return triangles, nil
}

func (c *Cache) writeVertices(mesh *Mesh, world, normalMatrix math.Mat4) error {
	for _, v := range mesh.Vertices {
		slot := int(v.Index) + int(mesh.VertexWriteOffset)
		if slot >= CacheSize {
			return errors.Wrapf(ErrSlotOutOfRange, "write slot %d", slot)
		}

		if v.Weight == 0 {
			if !mesh.ContinueWeight {
				c.slots[slot] = cacheSlot{}
			}
			continue
		}

		pos := world.TransformPoint(v.Position).Scale(v.Weight)
		nrm := normalMatrix.TransformDirection(v.Normal).Scale(v.Weight)

		if mesh.ContinueWeight {
			c.slots[slot].position = c.slots[slot].position.Add(pos)
			c.slots[slot].normal = c.slots[slot].normal.Add(nrm)
		} else {
			c.slots[slot] = cacheSlot{position: pos, normal: nrm}
		}
	}
	return nil
}

func (c *Cache) readPolygons(mesh *Mesh) ([]Triangle, error) {
	corners, err := mesh.TriangleCorners()
	if err != nil {
		return nil, err
	}

	triangles := make([]Triangle, 0, len(corners)/3)
	for i := 0; i+2 < len(corners); i += 3 {
		var tri Triangle
		tri.Material = mesh.Material
		for j := 0; j < 3; j++ {
			corner := corners[i+j]
			slot := int(corner.VertexIndex) + int(mesh.VertexReadOffset)
			if slot >= CacheSize {
				return nil, errors.Wrapf(ErrSlotOutOfRange, "read slot %d", slot)
			}
			tri.Corners[j] = ResolvedCorner{
				Position: c.slots[slot].position,
				Normal:   c.slots[slot].normal,
				Color:    corner.Color,
				Texcoord: corner.Texcoord,
			}
		}
		triangles = append(triangles, tri)
	}
	return triangles, nil
}
