package weighted

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
)

// WeightedBufferAttach holds every polygon of one source attach together
// with the world space vertices it reads, blended from the depending nodes.
type WeightedBufferAttach struct {
	Label     string
	Vertices  []WeightedVertex
	Corners   [][]buffer.Corner // One corner list per polygon group
	Materials []*buffer.Material

	// DependingNodeIndices is the sorted set of nodes with a nonzero weight
	// in any vertex. It is empty for rigid attaches.
	DependingNodeIndices []int

	// DependencyRootIndex is the deepest node that is an ancestor of (or
	// equal to) every depending node. Rigid attaches belong to this node.
	DependencyRootIndex int
}

// NewWeightedBufferAttach builds an attach and derives its dependencies.
// parents holds the parent index of every node, -1 for the root.
//
// An attach depending on a single node is rigid: DependingNodeIndices is
// left empty and the node becomes the dependency root.
func NewWeightedBufferAttach(label string, vertices []WeightedVertex, corners [][]buffer.Corner, materials []*buffer.Material, parents []int) *WeightedBufferAttach {
	depending := dependingNodes(vertices)
	wba := &WeightedBufferAttach{
		Label:                label,
		Vertices:             vertices,
		Corners:              corners,
		Materials:            materials,
		DependingNodeIndices: depending,
		DependencyRootIndex:  dependencyRoot(depending, parents),
	}

	if len(depending) == 1 {
		wba.DependingNodeIndices = nil
	}
	return wba
}

// IsWeighted reports whether the attach blends between several nodes.
func (w *WeightedBufferAttach) IsWeighted() bool {
	return len(w.DependingNodeIndices) > 0
}

// CornerCount returns the number of corners across all polygon groups.
func (w *WeightedBufferAttach) CornerCount() int {
	n := 0
	for _, c := range w.Corners {
		n += len(c)
	}
	return n
}

// Clone returns a deep copy.
func (w *WeightedBufferAttach) Clone() *WeightedBufferAttach {
	c := &WeightedBufferAttach{
		Label:                w.Label,
		Vertices:             make([]WeightedVertex, len(w.Vertices)),
		Corners:              make([][]buffer.Corner, len(w.Corners)),
		Materials:            make([]*buffer.Material, len(w.Materials)),
		DependingNodeIndices: append([]int(nil), w.DependingNodeIndices...),
		DependencyRootIndex:  w.DependencyRootIndex,
	}
	for i, v := range w.Vertices {
		c.Vertices[i] = v.Clone()
	}
	for i, corners := range w.Corners {
		c.Corners[i] = append([]buffer.Corner(nil), corners...)
	}
	for i, m := range w.Materials {
		c.Materials[i] = copyMaterial(m)
	}
	return c
}

func dependingNodes(vertices []WeightedVertex) []int {
	set := make(map[int]struct{})
	for _, v := range vertices {
		for i, w := range v.Weights {
			if w != 0 {
				set[i] = struct{}{}
			}
		}
	}

	result := make([]int, 0, len(set))
	for i := range set {
		result = append(result, i)
	}
	sort.Ints(result)
	return result
}

// dependencyRoot intersects the ancestor chains (self included) of every
// depending node and returns the deepest common entry. Traversal order puts
// ancestors before descendants, so that is the highest common index.
func dependencyRoot(depending []int, parents []int) int {
	if len(depending) == 0 {
		return 0
	}

	common := ancestorSet(depending[0], parents)
	for _, idx := range depending[1:] {
		chain := ancestorSet(idx, parents)
		for a := range common {
			if _, ok := chain[a]; !ok {
				delete(common, a)
			}
		}
	}

	root := 0
	for a := range common {
		if a > root {
			root = a
		}
	}
	return root
}

func ancestorSet(index int, parents []int) map[int]struct{} {
	set := make(map[int]struct{})
	for i := index; i >= 0 && i < len(parents); i = parents[i] {
		if _, seen := set[i]; seen {
			break
		}
		set[i] = struct{}{}
	}
	return set
}

// CombineAtDependencyRoots merges attaches sharing a dependency root into
// one attach per root. Groups keep the order their root is first seen in;
// single member groups are returned unchanged.
func CombineAtDependencyRoots(attaches []*WeightedBufferAttach, parents []int) ([]*WeightedBufferAttach, error) {
	var order []int
	groups := make(map[int][]*WeightedBufferAttach)
	for _, wba := range attaches {
		root := wba.DependencyRootIndex
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], wba)
	}

	result := make([]*WeightedBufferAttach, 0, len(order))
	for _, root := range order {
		group := groups[root]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}

		merged, err := mergeGroup(group, parents)
		if err != nil {
			return nil, errors.Wrapf(err, "dependency root %d", root)
		}
		result = append(result, merged)
	}
	return result, nil
}

func mergeGroup(group []*WeightedBufferAttach, parents []int) (*WeightedBufferAttach, error) {
	var vertices []WeightedVertex
	var corners [][]buffer.Corner
	var materials []*buffer.Material

	for _, wba := range group {
		offset := len(vertices)
		if offset+len(wba.Vertices) > buffer.CacheSize {
			return nil, errors.Wrapf(ErrTooManyVertices, "merging %q: %d vertices", wba.Label, offset+len(wba.Vertices))
		}
		vertices = append(vertices, wba.Vertices...)

		for _, src := range wba.Corners {
			dst := make([]buffer.Corner, len(src))
			for i, c := range src {
				c.VertexIndex += uint16(offset)
				dst[i] = c
			}
			corners = append(corners, dst)
		}
		materials = append(materials, wba.Materials...)
	}

	// The merged dependencies are recomputed from the vertex weights; this
	// equals the union of the members' sets before rigid normalisation.
	merged := NewWeightedBufferAttach(group[0].Label, vertices, corners, materials, parents)
	merged.DependencyRootIndex = group[0].DependencyRootIndex
	return merged, nil
}
