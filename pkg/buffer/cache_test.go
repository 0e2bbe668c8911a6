package buffer

import (
	"errors"
	"testing"

	"github.com/Faultbox/sa3d-weighted/pkg/math"
)

func triangleMesh(material *Material, indices ...uint16) *Mesh {
	corners := make([]Corner, len(indices))
	for i, idx := range indices {
		corners[i] = corner(idx)
	}
	return NewPolygonMesh(corners, material, false, false)
}

func TestCacheProcess_Rigid(t *testing.T) {
	mat := DefaultMaterial()
	cache := NewCache()
	meshes := []*Mesh{
		NewVertexMesh([]Vertex{
			{Position: math.Vec3{X: 0}, Normal: math.Vec3{Y: 1}, Index: 0, Weight: 1},
			{Position: math.Vec3{X: 1}, Normal: math.Vec3{Y: 1}, Index: 1, Weight: 1},
			{Position: math.Vec3{Z: 1}, Normal: math.Vec3{Y: 1}, Index: 2, Weight: 1},
		}, false, true, 10),
		triangleMesh(&mat, 0, 1, 2),
	}
	meshes[1].VertexReadOffset = 10

	tris, err := cache.Process(meshes, math.Translate(0, 5, 0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(tris) != 1 {
		t.Fatalf("expected 1 triangle, got %d", len(tris))
	}

	want := []math.Vec3{{Y: 5}, {X: 1, Y: 5}, {Y: 5, Z: 1}}
	for i, c := range tris[0].Corners {
		if c.Position != want[i] {
			t.Errorf("corner %d position = %v, want %v", i, c.Position, want[i])
		}
		if c.Normal != (math.Vec3{Y: 1}) {
			t.Errorf("corner %d normal = %v, want (0,1,0)", i, c.Normal)
		}
	}
	if tris[0].Material != &mat {
		t.Error("triangle should keep the mesh material")
	}
}

func TestCacheProcess_WeightedAccumulation(t *testing.T) {
	mat := DefaultMaterial()
	cache := NewCache()

	// First node writes half of the slot, second continues it
	first := []*Mesh{NewVertexMesh([]Vertex{{Position: math.Vec3{X: 2}, Index: 0, Weight: 0.5}}, false, true, 0)}
	if _, err := cache.Process(first, math.Identity()); err != nil {
		t.Fatalf("Process first: %v", err)
	}

	second := []*Mesh{
		NewVertexMesh([]Vertex{{Position: math.Vec3{X: 2}, Index: 0, Weight: 0.5}}, true, true, 0),
		triangleMesh(&mat, 0, 0, 0),
	}
	tris, err := cache.Process(second, math.Translate(10, 0, 0))
	if err != nil {
		t.Fatalf("Process second: %v", err)
	}

	// 0.5 * 2 + 0.5 * 12
	if got := tris[0].Corners[0].Position.X; got != 7 {
		t.Errorf("blended X = %v, want 7", got)
	}
}

func TestCacheProcess_ZeroWeightReset(t *testing.T) {
	mat := DefaultMaterial()
	cache := NewCache()

	stale := []*Mesh{NewVertexMesh([]Vertex{{Position: math.Vec3{X: 9}, Index: 4, Weight: 1}}, false, true, 0)}
	if _, err := cache.Process(stale, math.Identity()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	reset := []*Mesh{
		NewVertexMesh([]Vertex{{Index: 4, Weight: 0}}, false, true, 0),
		triangleMesh(&mat, 4, 4, 4),
	}
	tris, err := cache.Process(reset, math.Identity())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tris[0].Corners[0].Position != (math.Vec3{}) {
		t.Errorf("zero weight should reset the slot, got %v", tris[0].Corners[0].Position)
	}

	// A continuing zero weight leaves the slot alone
	cache.Reset()
	if _, err := cache.Process(stale, math.Identity()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	keep := []*Mesh{
		NewVertexMesh([]Vertex{{Index: 4, Weight: 0}}, true, true, 0),
		triangleMesh(&mat, 4, 4, 4),
	}
	tris, err = cache.Process(keep, math.Identity())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tris[0].Corners[0].Position.X != 9 {
		t.Errorf("continuing zero weight should keep the slot, got %v", tris[0].Corners[0].Position)
	}
}

func TestCacheProcess_Errors(t *testing.T) {
	cache := NewCache()

	overflow := []*Mesh{NewVertexMesh([]Vertex{{Index: 10, Weight: 1}}, false, false, 0xFFFF)}
	if _, err := cache.Process(overflow, math.Identity()); !errors.Is(err, ErrSlotOutOfRange) {
		t.Errorf("expected ErrSlotOutOfRange, got %v", err)
	}

	if _, err := cache.Process(nil, math.Scale(0, 1, 1)); !errors.Is(err, ErrSingularTransform) {
		t.Errorf("expected ErrSingularTransform, got %v", err)
	}
}
