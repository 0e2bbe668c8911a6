package weighted

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/distinct"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// BufferResult is one weighted attach converted back into buffer attaches,
// one per node it writes to. Vertex streams start at slot 0 until the
// offset planner moves them.
type BufferResult struct {
	Label    string
	Attaches []*scene.Attach

	vertexCount   int
	attachIndices []int
	offset        int
}

// VertexCount returns the number of cache slots the result occupies.
func (r *BufferResult) VertexCount() int {
	return r.vertexCount
}

// AttachIndices returns the node index of every attach, in Attaches order.
func (r *BufferResult) AttachIndices() []int {
	return r.attachIndices
}

// Offset returns the start slot assigned by the offset planner.
func (r *BufferResult) Offset() int {
	return r.offset
}

// ModifyVertexOffset moves every mesh of the result by offset slots.
func (r *BufferResult) ModifyVertexOffset(offset int) {
	r.offset += offset
	for _, a := range r.Attaches {
		for _, m := range a.MeshData {
			m.ShiftOffsets(uint16(offset))
		}
	}
}

// BuildBufferResults converts weighted attaches into per node buffer
// attaches without touching a scene. Offsets are not planned yet.
//
// Depending node indices must be non-negative and strictly increasing, so
// that the polygons land on the last node to add weights.
func BuildBufferResults(attaches []*WeightedBufferAttach, optimize, ignoreWeights bool) ([]*BufferResult, error) {
	results := make([]*BufferResult, 0, len(attaches))
	for i, wba := range attaches {
		if err := validateNodeIndices(wba); err != nil {
			return nil, errors.Wrapf(err, "attach %d (%q)", i, wba.Label)
		}

		if len(wba.Vertices) > buffer.CacheSize {
			return nil, errors.Wrapf(ErrTooManyVertices, "attach %d (%q): %d vertices", i, wba.Label, len(wba.Vertices))
		}

		if err := validateCorners(wba); err != nil {
			return nil, errors.Wrapf(err, "attach %d (%q)", i, wba.Label)
		}

		var (
			result *BufferResult
			err    error
		)
		if wba.IsWeighted() && !ignoreWeights {
			result, err = weightedResult(wba, optimize)
		} else {
			result, err = rigidResult(wba, optimize)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "attach %d (%q)", i, wba.Label)
		}
		results = append(results, result)
	}
	return results, nil
}

// weightedResult splits the vertices by node. Every depending node gets a
// stream of the vertices it starts (first nonzero weight) and a stream of
// the vertices it continues. The highest node also draws the polygons.
func weightedResult(wba *WeightedBufferAttach, optimize bool) (*BufferResult, error) {
	polygons, err := polygonMeshes(wba.Corners, wba.Materials, optimize)
	if err != nil {
		return nil, err
	}

	result := &BufferResult{
		Label:         wba.Label,
		vertexCount:   len(wba.Vertices),
		attachIndices: make([]int, 0, len(wba.DependingNodeIndices)),
	}

	last := len(wba.DependingNodeIndices) - 1
	for i, nodeIndex := range wba.DependingNodeIndices {
		var initial, continued []buffer.Vertex
		for vi, v := range wba.Vertices {
			if nodeIndex >= len(v.Weights) || v.Weights[nodeIndex] == 0 {
				continue
			}

			bv := buffer.Vertex{
				Position: v.Position,
				Normal:   v.Normal,
				Index:    uint16(vi),
				Weight:   v.Weights[nodeIndex],
			}
			if v.FirstWeightIndex() == nodeIndex {
				initial = append(initial, bv)
			} else {
				continued = append(continued, bv)
			}
		}

		var meshes []*buffer.Mesh
		if len(initial) > 0 {
			meshes = append(meshes, buffer.NewVertexMesh(initial, false, true, 0))
		}
		if len(continued) > 0 {
			meshes = append(meshes, buffer.NewVertexMesh(continued, true, true, 0))
		}
		if i == last {
			meshes = append(meshes, polygons...)
		}

		result.Attaches = append(result.Attaches, scene.NewBufferAttach(fmt.Sprintf("%s_%d", wba.Label, nodeIndex), meshes...))
		result.attachIndices = append(result.attachIndices, nodeIndex)
	}

	return result, nil
}

type vertexKey struct {
	position math.Vec3
	normal   math.Vec3
}

// rigidResult puts every vertex and polygon on the dependency root.
func rigidResult(wba *WeightedBufferAttach, optimize bool) (*BufferResult, error) {
	vertices := wba.Vertices
	corners := wba.Corners

	if optimize {
		dist, remap, changed := distinct.CreateDistinctMap(vertices, func(v WeightedVertex) vertexKey {
			return vertexKey{position: v.Position, normal: v.Normal}
		})
		if changed {
			vertices = dist
			corners = make([][]buffer.Corner, len(wba.Corners))
			for gi, group := range wba.Corners {
				corners[gi] = make([]buffer.Corner, len(group))
				for ci, c := range group {
					c.VertexIndex = uint16(remap[c.VertexIndex])
					corners[gi][ci] = c
				}
			}
		}
	}

	polygons, err := polygonMeshes(corners, wba.Materials, optimize)
	if err != nil {
		return nil, err
	}

	bufVertices := make([]buffer.Vertex, len(vertices))
	for i, v := range vertices {
		bufVertices[i] = buffer.Vertex{
			Position: v.Position,
			Normal:   v.Normal,
			Index:    uint16(i),
			Weight:   1,
		}
	}

	meshes := append([]*buffer.Mesh{buffer.NewVertexMesh(bufVertices, false, true, 0)}, polygons...)
	return &BufferResult{
		Label:         wba.Label,
		Attaches:      []*scene.Attach{scene.NewBufferAttach(wba.Label, meshes...)},
		vertexCount:   len(vertices),
		attachIndices: []int{wba.DependencyRootIndex},
	}, nil
}

func polygonMeshes(corners [][]buffer.Corner, materials []*buffer.Material, optimize bool) ([]*buffer.Mesh, error) {
	meshes := make([]*buffer.Mesh, 0, len(corners))
	for gi, group := range corners {
		if len(group) == 0 {
			continue
		}

		var material *buffer.Material
		if gi < len(materials) {
			material = copyMaterial(materials[gi])
		}
		if material == nil {
			return nil, errors.Wrapf(ErrMissingMaterial, "polygon group %d", gi)
		}

		meshes = append(meshes, buffer.NewPolygonMesh(append([]buffer.Corner(nil), group...), material, hasColors(group), optimize))
	}
	return meshes, nil
}

func validateNodeIndices(wba *WeightedBufferAttach) error {
	if wba.DependencyRootIndex < 0 {
		return errors.Wrapf(ErrNodeIndexOutOfRange, "dependency root %d", wba.DependencyRootIndex)
	}
	prev := -1
	for _, n := range wba.DependingNodeIndices {
		if n <= prev {
			return errors.Wrapf(ErrNodeIndexOutOfRange, "depending nodes %v are not increasing", wba.DependingNodeIndices)
		}
		prev = n
	}
	return nil
}

func validateCorners(wba *WeightedBufferAttach) error {
	for gi, group := range wba.Corners {
		for ci, c := range group {
			if int(c.VertexIndex) >= len(wba.Vertices) {
				return errors.Wrapf(ErrCornerOutOfRange, "group %d corner %d: vertex %d of %d", gi, ci, c.VertexIndex, len(wba.Vertices))
			}
		}
	}
	return nil
}

func hasColors(corners []buffer.Corner) bool {
	for _, c := range corners {
		if c.Color != buffer.White {
			return true
		}
	}
	return false
}

// FromWeightedBuffer writes weighted attaches back onto the scene below
// root, replacing the attach of every node. Attaches must have been created
// from the same hierarchy, since node indices refer to root.GetObjects().
//
// For the buffer format the vertex streams are offset so that no two
// results share cache slots on a node, then moved into node local space.
// Other formats are handed to the converter registered for them.
func FromWeightedBuffer(root *scene.Node, attaches []*WeightedBufferAttach, format scene.AttachFormat, optimize, ignoreWeights bool) error {
	if format != scene.FormatBuffer {
		conv, err := lookupConverter(format)
		if err != nil {
			return err
		}
		return conv(root, attaches, optimize, ignoreWeights)
	}

	results, err := BuildBufferResults(attaches, optimize, ignoreWeights)
	if err != nil {
		return err
	}
	starts := PlanVertexOffsets(results)

	nodes := root.GetObjects()
	perNode := make([][]*scene.Attach, len(nodes))
	for ri, result := range results {
		if end := starts[ri] + result.VertexCount(); end > buffer.CacheSize {
			return errors.Wrapf(ErrTooManyVertices, "result %q ends at slot %d", result.Label, end)
		}
		for ai, idx := range result.attachIndices {
			if idx < 0 || idx >= len(nodes) {
				return errors.Wrapf(ErrNodeIndexOutOfRange, "result %q: node %d of %d", result.Label, idx, len(nodes))
			}
			perNode[idx] = append(perNode[idx], result.Attaches[ai])
		}
	}

	// Every target transform is checked before the scene is modified.
	worlds := scene.WorldMatrices(nodes)
	inverses := make([]math.Mat4, len(nodes))
	for i, node := range nodes {
		if len(perNode[i]) == 0 {
			continue
		}
		inv, ok := worlds[i].Invert()
		if !ok {
			return errors.Wrapf(ErrDegenerateTransform, "node %q", node.Name)
		}
		inverses[i] = inv
	}

	for i, node := range nodes {
		switch len(perNode[i]) {
		case 0:
			node.SetAttach(nil)
			continue
		case 1:
			node.SetAttach(perNode[i][0])
		default:
			var meshes []*buffer.Mesh
			for _, a := range perNode[i] {
				meshes = append(meshes, a.MeshData...)
			}
			node.SetAttach(scene.NewBufferAttach(node.Name+"_attach", meshes...))
		}

		relocalize(node.Attach(), inverses[i], worlds[i])
	}

	logger.Debug("buffer attaches written",
		zap.Int("weighted", len(attaches)),
		zap.Int("results", len(results)),
		zap.Ints("offsets", starts))
	return nil
}

// relocalize moves world space vertex streams into node space. Normals use
// the normal matrix of the inverse, which is the transposed world matrix.
func relocalize(attach *scene.Attach, inverse, world math.Mat4) {
	normalMatrix := world.Transpose()
	for _, mesh := range attach.MeshData {
		for vi := range mesh.Vertices {
			v := &mesh.Vertices[vi]
			v.Position = inverse.TransformPoint(v.Position)
			v.Normal = normalMatrix.TransformDirection(v.Normal)
		}
	}
}
