package inspect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
	"github.com/Faultbox/sa3d-weighted/pkg/weighted"
)

func testScene() *scene.Node {
	material := buffer.DefaultMaterial()
	vertex := func(i uint16, w float32, x float32) buffer.Vertex {
		return buffer.Vertex{Position: math.Vec3{X: x}, Normal: math.Vec3{Y: 1}, Index: i, Weight: w}
	}
	corners := []buffer.Corner{{VertexIndex: 0}, {VertexIndex: 1}, {VertexIndex: 2}}

	root := scene.NewNode("root")
	root.SetAttach(scene.NewBufferAttach("root_attach",
		buffer.NewVertexMesh([]buffer.Vertex{vertex(0, 1, 0), vertex(1, 0.5, 1)}, false, true, 0)))

	arm := root.NewChild("arm")
	arm.Position = math.Vec3{Y: 1}
	arm.SetAttach(scene.NewBufferAttach("arm_attach",
		buffer.NewVertexMesh([]buffer.Vertex{vertex(1, 0.5, 1)}, true, true, 0),
		buffer.NewVertexMesh([]buffer.Vertex{vertex(2, 1, 2)}, false, true, 0),
		buffer.NewPolygonMesh(corners, &material, false, false)))
	arm.NewChild("hand")
	return root
}

func TestWriteSceneReport(t *testing.T) {
	var buf bytes.Buffer
	WriteSceneReport(&buf, testScene())
	out := buf.String()

	for _, want := range []string{
		"   0 root",
		"   1   arm",
		"   2     hand",
		`"arm_attach": 3 meshes, 2 vertices, 3 corners`,
		"continue 1 vertices slots 1-1",
		"list 3 corners read offset 0",
		"Nodes:    3",
		"Attaches: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("scene report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteWeightedReport(t *testing.T) {
	root := testScene()
	attaches, err := weighted.ToWeightedBuffer(root, false)
	if err != nil {
		t.Fatalf("ToWeightedBuffer: %v", err)
	}

	var buf bytes.Buffer
	WriteWeightedReport(&buf, attaches, NodeNames(root))
	out := buf.String()

	for _, want := range []string{"arm_attach", "weighted", "root 0:root", "depends on 0:root, 1:arm, max 2 influences", "1 attaches, 1 weighted"} {
		if !strings.Contains(out, want) {
			t.Errorf("weighted report missing %q:\n%s", want, out)
		}
	}
}

func TestWritePlanReport(t *testing.T) {
	root := testScene()
	attaches, err := weighted.ToWeightedBuffer(root, false)
	if err != nil {
		t.Fatalf("ToWeightedBuffer: %v", err)
	}
	results, err := weighted.BuildBufferResults(append(attaches, attaches[0].Clone()), false, false)
	if err != nil {
		t.Fatalf("BuildBufferResults: %v", err)
	}
	starts := weighted.PlanVertexOffsets(results)

	var buf bytes.Buffer
	WritePlanReport(&buf, results, starts, nil)
	out := buf.String()

	for _, want := range []string{"slots     0-3", "slots     3-6", "nodes 0 1", "high water mark 6 of 65536"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "OVERFLOW") {
		t.Errorf("unexpected overflow:\n%s", out)
	}
}

func TestNodeName(t *testing.T) {
	names := []string{"root", ""}
	tests := []struct {
		index int
		want  string
	}{
		{0, "0:root"},
		{1, "1"},
		{5, "5"},
	}
	for _, tt := range tests {
		if got := nodeName(names, tt.index); got != tt.want {
			t.Errorf("nodeName(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestSDump(t *testing.T) {
	out := SDump(buffer.Corner{VertexIndex: 7, Color: buffer.White})
	if !strings.Contains(out, "VertexIndex: (uint16) 7") {
		t.Errorf("unexpected dump:\n%s", out)
	}
	if strings.Contains(out, "0x") && strings.Contains(out, "(*") {
		t.Errorf("dump should not contain pointer addresses:\n%s", out)
	}
}
