// Package weighted converts buffer attaches on a scene graph to and from
// weighted buffer attaches: world space vertices blended from any number of
// nodes, with polygons grouped by the nodes they depend on.
package weighted

import (
	"sort"

	"github.com/Faultbox/sa3d-weighted/pkg/math"
)

// WeightedVertex is a world space vertex with one weight slot per scene node.
type WeightedVertex struct {
	Position math.Vec3
	Normal   math.Vec3
	Weights  []float32 // Indexed by node traversal index
}

// WeightPair is a nonzero weight and the node it belongs to.
type WeightPair struct {
	Index  int
	Weight float32
}

// NewWeightedVertex creates a vertex with nodeCount zeroed weight slots.
func NewWeightedVertex(position, normal math.Vec3, nodeCount int) WeightedVertex {
	return WeightedVertex{
		Position: position,
		Normal:   normal,
		Weights:  make([]float32, nodeCount),
	}
}

// WeightCount returns the number of nonzero weights.
func (v WeightedVertex) WeightCount() int {
	n := 0
	for _, w := range v.Weights {
		if w != 0 {
			n++
		}
	}
	return n
}

// WeightMap returns the nonzero weights ordered by node index.
func (v WeightedVertex) WeightMap() []WeightPair {
	var pairs []WeightPair
	for i, w := range v.Weights {
		if w != 0 {
			pairs = append(pairs, WeightPair{Index: i, Weight: w})
		}
	}
	return pairs
}

// FirstWeightIndex returns the lowest node index with a nonzero weight, or -1.
func (v WeightedVertex) FirstWeightIndex() int {
	for i, w := range v.Weights {
		if w != 0 {
			return i
		}
	}
	return -1
}

// LastWeightIndex returns the highest node index with a nonzero weight, or -1.
func (v WeightedVertex) LastWeightIndex() int {
	for i := len(v.Weights) - 1; i >= 0; i-- {
		if v.Weights[i] != 0 {
			return i
		}
	}
	return -1
}

// MaxWeightIndex returns the node index of the largest weight, or -1.
// On ties the lowest index wins.
func (v WeightedVertex) MaxWeightIndex() int {
	idx := -1
	var best float32
	for i, w := range v.Weights {
		if w != 0 && (idx < 0 || w > best) {
			idx = i
			best = w
		}
	}
	return idx
}

// Clone returns a copy that does not share the weight slice.
func (v WeightedVertex) Clone() WeightedVertex {
	c := v
	if v.Weights != nil {
		c.Weights = make([]float32, len(v.Weights))
		copy(c.Weights, v.Weights)
	}
	return c
}

// Equal reports whether position, normal and every weight match.
func (v WeightedVertex) Equal(other WeightedVertex) bool {
	if v.Position != other.Position || v.Normal != other.Normal {
		return false
	}
	if len(v.Weights) != len(other.Weights) {
		return false
	}
	for i := range v.Weights {
		if v.Weights[i] != other.Weights[i] {
			return false
		}
	}
	return true
}

// Compare orders vertices lexicographically by their weights only.
// The first differing slot decides; a shorter weight list sorts first.
func (v WeightedVertex) Compare(other WeightedVertex) int {
	n := min(len(v.Weights), len(other.Weights))
	for i := 0; i < n; i++ {
		switch {
		case v.Weights[i] < other.Weights[i]:
			return -1
		case v.Weights[i] > other.Weights[i]:
			return 1
		}
	}
	switch {
	case len(v.Weights) < len(other.Weights):
		return -1
	case len(v.Weights) > len(other.Weights):
		return 1
	}
	return 0
}

// SortByWeights stable sorts vertices with Compare.
func SortByWeights(vertices []WeightedVertex) {
	sort.SliceStable(vertices, func(i, j int) bool {
		return vertices[i].Compare(vertices[j]) < 0
	})
}
