package weighted

import (
	"testing"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

const eps = 1e-4

func testMaterial() *buffer.Material {
	m := buffer.DefaultMaterial()
	return &m
}

func testCorners(indices ...uint16) []buffer.Corner {
	corners := make([]buffer.Corner, len(indices))
	for i, idx := range indices {
		corners[i] = buffer.Corner{
			VertexIndex: idx,
			Color:       buffer.White,
			Texcoord:    math.Vec2{X: float32(i), Y: float32(idx)},
		}
	}
	return corners
}

// rigidMeshes builds a vertex stream with full weights and one triangle list.
func rigidMeshes(positions []math.Vec3, tris ...uint16) []*buffer.Mesh {
	vertices := make([]buffer.Vertex, len(positions))
	for i, p := range positions {
		vertices[i] = buffer.Vertex{
			Position: p,
			Normal:   math.Vec3{Y: 1},
			Index:    uint16(i),
			Weight:   1,
		}
	}
	return []*buffer.Mesh{
		buffer.NewVertexMesh(vertices, false, true, 0),
		buffer.NewPolygonMesh(testCorners(tris...), testMaterial(), false, false),
	}
}

func weightedVertex(nodeCount int, position math.Vec3, weights map[int]float32) WeightedVertex {
	v := NewWeightedVertex(position, math.Vec3{Y: 1}, nodeCount)
	for i, w := range weights {
		v.Weights[i] = w
	}
	return v
}

// evaluate replays every buffer attach through a vertex cache in traversal
// order and returns the world space triangles.
func evaluate(t *testing.T, root *scene.Node) []buffer.Triangle {
	t.Helper()

	nodes := root.GetObjects()
	worlds := scene.WorldMatrices(nodes)
	cache := buffer.NewCache()

	var tris []buffer.Triangle
	for i, node := range nodes {
		if node.Attach() == nil {
			continue
		}
		got, err := cache.Process(node.Attach().MeshData, worlds[i])
		if err != nil {
			t.Fatalf("evaluating %s: %v", node.Name, err)
		}
		tris = append(tris, got...)
	}
	return tris
}

func compareTriangles(t *testing.T, got, want []buffer.Triangle) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %d triangles, got %d", len(want), len(got))
	}
	for i := range want {
		for j := 0; j < 3; j++ {
			g, w := got[i].Corners[j], want[i].Corners[j]
			if !g.Position.ApproxEqual(w.Position, eps) {
				t.Errorf("triangle %d corner %d position = %v, want %v", i, j, g.Position, w.Position)
			}
			if !g.Normal.ApproxEqual(w.Normal, eps) {
				t.Errorf("triangle %d corner %d normal = %v, want %v", i, j, g.Normal, w.Normal)
			}
			if g.Texcoord != w.Texcoord || g.Color != w.Color {
				t.Errorf("triangle %d corner %d attributes = %+v, want %+v", i, j, g, w)
			}
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
