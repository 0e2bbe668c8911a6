package gltfio

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdmath "math"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

const eps = 1e-4

var triangle = [][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}}

// writeMatrices appends a float MAT4 accessor to the document.
func writeMatrices(doc *gltf.Document, mats []math.Mat4) uint32 {
	if len(doc.Buffers) == 0 {
		doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	}
	buf := doc.Buffers[0]

	data := make([]byte, 64*len(mats))
	for i, m := range mats {
		for j, f := range m {
			binary.LittleEndian.PutUint32(data[i*64+j*4:], stdmath.Float32bits(f))
		}
	}

	offset := uint32(len(buf.Data))
	buf.Data = append(buf.Data, data...)
	buf.ByteLength += uint32(len(data))

	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: uint32(len(data)),
	})
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(uint32(len(doc.BufferViews) - 1)),
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorMat4,
		Count:         uint32(len(mats)),
	})
	return uint32(len(doc.Accessors) - 1)
}

func addTriangleMesh(doc *gltf.Document, name string, extra map[string]uint32) uint32 {
	indices := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	attributes := map[string]uint32{
		"POSITION": modeler.WritePosition(doc, triangle),
		"NORMAL":   modeler.WriteNormal(doc, [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}),
	}
	for k, v := range extra {
		attributes[k] = v
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: name,
		Primitives: []*gltf.Primitive{{
			Indices:    &indices,
			Attributes: attributes,
		}},
	})
	return uint32(len(doc.Meshes) - 1)
}

func rigidDocument() *gltf.Document {
	doc := gltf.NewDocument()
	mesh := addTriangleMesh(doc, "tri", nil)
	doc.Nodes = []*gltf.Node{{
		Name:        "body",
		Mesh:        gltf.Index(mesh),
		Translation: [3]float32{5, 0, 0},
		Rotation:    [4]float32{0, 0, 0, 1},
		Scale:       [3]float32{2, 2, 2},
	}}
	doc.Scenes[0].Nodes = []uint32{0}
	return doc
}

// skinnedDocument: root (joint 0) -> bone (joint 1, one unit up), and a
// skinned mesh node under root whose middle vertex is shared half and half.
func skinnedDocument() *gltf.Document {
	doc := gltf.NewDocument()
	joints := modeler.WriteJoints(doc, [][4]uint16{{0, 0, 0, 0}, {0, 1, 0, 0}, {1, 0, 0, 0}})
	weights := modeler.WriteWeights(doc, [][4]float32{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}, {1, 0, 0, 0}})
	mesh := addTriangleMesh(doc, "skinned", map[string]uint32{"JOINTS_0": joints, "WEIGHTS_0": weights})
	ibm := writeMatrices(doc, []math.Mat4{math.Identity(), math.Translate(0, -1, 0)})

	doc.Skins = []*gltf.Skin{{Joints: []uint32{0, 1}, InverseBindMatrices: gltf.Index(ibm)}}
	doc.Nodes = []*gltf.Node{
		{Name: "root", Children: []uint32{1, 2}, Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}},
		{Name: "bone", Translation: [3]float32{0, 1, 0}, Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}},
		{Name: "mesh", Mesh: gltf.Index(mesh), Skin: gltf.Index(0), Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}},
	}
	doc.Scenes[0].Nodes = []uint32{0}
	return doc
}

func positions(t *testing.T, root *scene.Node) []math.Vec3 {
	t.Helper()

	drawn, err := Evaluate(root)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var out []math.Vec3
	for _, nt := range drawn {
		for _, tri := range nt.Triangles {
			for _, c := range tri.Corners {
				out = append(out, c.Position)
			}
		}
	}
	return out
}

func TestImportRigid(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{}).Import(rigidDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if root.Name != "body" || root.Attach() == nil {
		t.Fatalf("expected body root with attach, got %q", root.Name)
	}
	if root.Scale != (math.Vec3{X: 2, Y: 2, Z: 2}) {
		t.Errorf("scale = %v", root.Scale)
	}

	// Local vertex data is restored, world positions are scaled and moved.
	verts := root.Attach().MeshData[0].Vertices
	if !verts[2].Position.ApproxEqual(math.Vec3{X: 1, Y: 1}, eps) {
		t.Errorf("local vertex 2 = %v, want (1,1,0)", verts[2].Position)
	}

	want := []math.Vec3{{X: 5}, {X: 5, Y: 2}, {X: 7, Y: 2}}
	got := positions(t, root)
	if len(got) != len(want) {
		t.Fatalf("expected %d corners, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].ApproxEqual(want[i], eps) {
			t.Errorf("corner %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestImportSkinned(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{}).Import(skinnedDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	bone := root.FindByName("bone")
	mesh := root.FindByName("mesh")
	if root.Attach() == nil || bone.Attach() == nil {
		t.Fatal("expected the weighted mesh to be split over root and bone")
	}
	if mesh.Attach() != nil {
		t.Error("skinned mesh node should not keep an attach")
	}

	var continued bool
	for _, m := range bone.Attach().MeshData {
		if m.ContinueWeight {
			continued = true
		}
	}
	if !continued {
		t.Error("bone should continue the shared vertex")
	}

	got := positions(t, root)
	for i, p := range triangle {
		if !got[i].ApproxEqual(math.Vec3FromArray(p), eps) {
			t.Errorf("corner %d = %v, want %v", i, got[i], p)
		}
	}
}

func TestImportIgnoreWeights(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{IgnoreWeights: true, Optimize: true}).Import(skinnedDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if root.Attach() == nil || root.FindByName("bone").Attach() != nil {
		t.Fatal("expected a single rigid attach on the dependency root")
	}
	for _, v := range root.Attach().MeshData[0].Vertices {
		if v.Weight != 1 {
			t.Errorf("vertex %d weight = %v, want 1", v.Index, v.Weight)
		}
	}
}

func TestImportMultipleRoots(t *testing.T) {
	doc := rigidDocument()
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "marker"})
	doc.Scenes[0].Nodes = []uint32{0, 1}

	root, err := NewImporter(nil, ImportOptions{}).Import(doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if root.Name != "root" || len(root.Children()) != 2 {
		t.Errorf("expected synthetic root with 2 children, got %q with %d", root.Name, len(root.Children()))
	}
}

func TestImportMatrixNode(t *testing.T) {
	doc := rigidDocument()
	doc.Nodes[0].Translation = [3]float32{}
	doc.Nodes[0].Scale = [3]float32{1, 1, 1}
	doc.Nodes[0].Matrix = [16]float32(math.FromTRS(math.Vec3{Y: 3}, math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.5), math.Vec3{X: 1, Y: 1, Z: 1}))

	root, err := NewImporter(nil, ImportOptions{}).Import(doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !root.Position.ApproxEqual(math.Vec3{Y: 3}, eps) {
		t.Errorf("position = %v, want (0,3,0)", root.Position)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() *gltf.Document
		want  error
	}{
		{
			name:  "empty scene",
			build: gltf.NewDocument,
			want:  ErrNoScene,
		},
		{
			name: "missing position",
			build: func() *gltf.Document {
				doc := rigidDocument()
				delete(doc.Meshes[0].Primitives[0].Attributes, "POSITION")
				return doc
			},
			want: ErrMissingAttribute,
		},
		{
			name: "joint outside scene",
			build: func() *gltf.Document {
				doc := skinnedDocument()
				doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "orphan"})
				doc.Skins[0].Joints = []uint32{0, 3}
				return doc
			},
			want: ErrInvalidSkin,
		},
		{
			name: "too few bind matrices",
			build: func() *gltf.Document {
				doc := skinnedDocument()
				doc.Skins[0].InverseBindMatrices = gltf.Index(writeMatrices(doc, []math.Mat4{math.Identity()}))
				return doc
			},
			want: ErrInvalidSkin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImporter(nil, ImportOptions{}).Import(tt.build())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConvertMaterial(t *testing.T) {
	doc := gltf.NewDocument()
	factor := [4]float32{1, 0.5, 0, 1}
	doc.Materials = []*gltf.Material{{
		DoubleSided: true,
		AlphaMode:   gltf.AlphaBlend,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor:  &factor,
			BaseColorTexture: &gltf.TextureInfo{Index: 3},
		},
	}}

	m := convertMaterial(doc, gltf.Index(0))
	if m.BackfaceCulling || !m.UseAlpha || !m.UseTexture || m.TextureIndex != 3 {
		t.Errorf("unexpected material flags %+v", m)
	}
	if m.Diffuse != (buffer.Color{R: 255, G: 128, B: 0, A: 255}) {
		t.Errorf("diffuse = %v", m.Diffuse)
	}

	if d := convertMaterial(doc, nil); *d != buffer.DefaultMaterial() {
		t.Errorf("missing material should use the default, got %+v", d)
	}
}

func TestExport(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{}).Import(skinnedDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	doc, err := Export(root, ExportOptions{Scale: 2}, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if len(doc.Meshes) != 1 || len(doc.Nodes) != 1 || len(doc.Materials) != 1 {
		t.Fatalf("expected 1 mesh, node and material, got %d, %d, %d", len(doc.Meshes), len(doc.Nodes), len(doc.Materials))
	}
	if doc.Nodes[0].Name != "bone" {
		t.Errorf("polygons should be drawn by bone, got %q", doc.Nodes[0].Name)
	}

	prim := doc.Meshes[0].Primitives[0]
	got, err := modeler.ReadPosition(doc, doc.Accessors[prim.Attributes["POSITION"]], nil)
	if err != nil {
		t.Fatalf("ReadPosition: %v", err)
	}
	for i, p := range triangle {
		want := math.Vec3FromArray(p).Scale(2)
		if !math.Vec3FromArray(got[i]).ApproxEqual(want, eps) {
			t.Errorf("exported position %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestEncode(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{}).Import(rigidDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	doc, err := Export(root, ExportOptions{}, nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var glb bytes.Buffer
	if err := Encode(&glb, doc, true); err != nil {
		t.Fatalf("Encode binary: %v", err)
	}
	if !bytes.HasPrefix(glb.Bytes(), []byte("glTF")) {
		t.Error("binary output should start with the glTF magic")
	}

	var text bytes.Buffer
	if err := Encode(&text, doc, false); err != nil {
		t.Fatalf("Encode text: %v", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(text.Bytes()), []byte("{")) {
		t.Error("text output should be JSON")
	}
}

func TestExportFileRoundTrip(t *testing.T) {
	root, err := NewImporter(nil, ImportOptions{}).Import(skinnedDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	path := filepath.Join(t.TempDir(), "preview.glb")
	if err := ExportFile(path, root, ExportOptions{}, false, nil); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	// The preview is itself importable; its triangles are already in world space.
	again, err := NewImporter(nil, ImportOptions{}).ImportFile(path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	got := positions(t, again)
	for i, p := range triangle {
		if !got[i].ApproxEqual(math.Vec3FromArray(p), eps) {
			t.Errorf("corner %d = %v, want %v", i, got[i], p)
		}
	}
}
