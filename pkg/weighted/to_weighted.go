package weighted

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// forwardCache is the scratch arena of the forward pass: one accumulator
// per vertex cache slot plus the per-node map from slot to output vertex.
type forwardCache struct {
	nodeCount int
	slots     []WeightedVertex
	vertexMap []int32
	touched   []int
}

func newForwardCache(nodeCount int) *forwardCache {
	c := &forwardCache{
		nodeCount: nodeCount,
		slots:     make([]WeightedVertex, buffer.CacheSize),
		vertexMap: make([]int32, buffer.CacheSize),
	}
	for i := range c.vertexMap {
		c.vertexMap[i] = -1
	}
	return c
}

// resetSlot turns a slot into a zero accumulator, reusing its weight slice.
func (c *forwardCache) resetSlot(slot int) *WeightedVertex {
	v := &c.slots[slot]
	v.Position = math.Vec3{}
	v.Normal = math.Vec3{}
	if len(v.Weights) != c.nodeCount {
		v.Weights = make([]float32, c.nodeCount)
	} else {
		clear(v.Weights)
	}
	return v
}

// slot returns an accumulator, initialising slots never written before.
func (c *forwardCache) slot(slot int) *WeightedVertex {
	if c.slots[slot].Weights == nil {
		return c.resetSlot(slot)
	}
	return &c.slots[slot]
}

// resetVertexMap forgets which slots were emitted for the previous node.
func (c *forwardCache) resetVertexMap() {
	for _, slot := range c.touched {
		c.vertexMap[slot] = -1
	}
	c.touched = c.touched[:0]
}

// ToWeightedBuffer converts the buffer attaches below root into weighted
// buffer attaches, one per node that has polygons. With
// combineAtDependencyRoots set, attaches sharing a dependency root are merged.
//
// Node indices in the result refer to root.GetObjects().
func ToWeightedBuffer(root *scene.Node, combineAtDependencyRoots bool) ([]*WeightedBufferAttach, error) {
	nodes := root.GetObjects()

	for _, node := range nodes {
		if a := node.Attach(); a != nil && !a.HasMeshData() {
			return nil, errors.Wrapf(ErrMissingBufferData, "node %q", node.Name)
		}
	}

	parents := scene.ParentIndices(nodes)
	worlds := make([]math.Mat4, len(nodes))
	cache := newForwardCache(len(nodes))

	var result []*WeightedBufferAttach

	for i, node := range nodes {
		local := node.LocalMatrix()
		switch {
		case parents[i] >= 0:
			worlds[i] = worlds[parents[i]].Mul(local)
		case node.Parent() != nil:
			worlds[i] = node.Parent().WorldMatrix().Mul(local)
		default:
			worlds[i] = local
		}

		attach := node.Attach()
		if attach == nil {
			continue
		}

		normalMatrix, ok := worlds[i].NormalMatrix()
		if !ok {
			return nil, errors.Wrapf(ErrDegenerateTransform, "node %q", node.Name)
		}

		if err := cache.writeVertices(attach.MeshData, i, worlds[i], normalMatrix); err != nil {
			return nil, errors.Wrapf(err, "node %q", node.Name)
		}

		vertices, corners, materials, err := cache.readPolygons(attach.MeshData)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", node.Name)
		}
		if len(corners) == 0 {
			continue
		}

		wba := NewWeightedBufferAttach(attach.Name, vertices, corners, materials, parents)
		logger.Debug("weighted attach created",
			zap.String("node", node.Name),
			zap.Int("vertices", len(vertices)),
			zap.Int("groups", len(corners)),
			zap.Ints("depending", wba.DependingNodeIndices),
			zap.Int("root", wba.DependencyRootIndex))
		result = append(result, wba)
	}

	if !combineAtDependencyRoots {
		return result, nil
	}
	return CombineAtDependencyRoots(result, parents)
}

func (c *forwardCache) writeVertices(meshes []*buffer.Mesh, nodeIndex int, world, normalMatrix math.Mat4) error {
	for mi, mesh := range meshes {
		for _, v := range mesh.Vertices {
			slot := int(v.Index) + int(mesh.VertexWriteOffset)
			if slot >= buffer.CacheSize {
				return errors.Wrapf(buffer.ErrSlotOutOfRange, "mesh %d: write slot %d", mi, slot)
			}

			if v.Weight == 0 {
				if !mesh.ContinueWeight {
					c.resetSlot(slot)
				}
				continue
			}

			pos := world.TransformPoint(v.Position).Scale(v.Weight)
			nrm := normalMatrix.TransformDirection(v.Normal).Scale(v.Weight)

			var acc *WeightedVertex
			if mesh.ContinueWeight {
				acc = c.slot(slot)
				acc.Position = acc.Position.Add(pos)
				acc.Normal = acc.Normal.Add(nrm)
			} else {
				acc = c.resetSlot(slot)
				acc.Position = pos
				acc.Normal = nrm
			}
			acc.Weights[nodeIndex] = v.Weight
		}
	}
	return nil
}

func (c *forwardCache) readPolygons(meshes []*buffer.Mesh) ([]WeightedVertex, [][]buffer.Corner, []*buffer.Material, error) {
	c.resetVertexMap()

	var vertices []WeightedVertex
	var corners [][]buffer.Corner
	var materials []*buffer.Material

	for mi, mesh := range meshes {
		if !mesh.HasPolygons() {
			continue
		}

		src, err := mesh.TriangleCorners()
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "mesh %d", mi)
		}

		dst := make([]buffer.Corner, len(src))
		for ci, corner := range src {
			slot := int(corner.VertexIndex) + int(mesh.VertexReadOffset)
			if slot >= buffer.CacheSize {
				return nil, nil, nil, errors.Wrapf(buffer.ErrSlotOutOfRange, "mesh %d: read slot %d", mi, slot)
			}

			if c.vertexMap[slot] < 0 {
				c.vertexMap[slot] = int32(len(vertices))
				c.touched = append(c.touched, slot)
				vertices = append(vertices, c.slot(slot).Clone())
			}

			corner.VertexIndex = uint16(c.vertexMap[slot])
			dst[ci] = corner
		}

		corners = append(corners, dst)
		materials = append(materials, copyMaterial(mesh.Material))
	}

	return vertices, corners, materials, nil
}

func copyMaterial(m *buffer.Material) *buffer.Material {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
