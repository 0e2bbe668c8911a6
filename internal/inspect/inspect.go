// Package inspect renders human readable reports of buffered scenes,
// weighted attaches and vertex offset plans.
package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
	"github.com/Faultbox/sa3d-weighted/pkg/weighted"
)

var spewConfig *spew.ConfigState

func init() {
	spewConfig = spew.NewDefaultConfig()
	spewConfig.DisableCapacities = true
	spewConfig.DisablePointerAddresses = true
	spewConfig.SortKeys = true
}

// Dump writes a spew dump of the values.
func Dump(w io.Writer, a ...interface{}) {
	spewConfig.Fdump(w, a...)
}

// SDump returns a spew dump of the values.
func SDump(a ...interface{}) string {
	return spewConfig.Sdump(a...)
}

// NodeNames returns the names of the nodes below root in traversal order.
func NodeNames(root *scene.Node) []string {
	nodes := root.GetObjects()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}

func nodeName(names []string, index int) string {
	if index >= 0 && index < len(names) && names[index] != "" {
		return fmt.Sprintf("%d:%s", index, names[index])
	}
	return fmt.Sprintf("%d", index)
}

// WriteSceneReport prints the node tree with a summary of every attach.
func WriteSceneReport(w io.Writer, root *scene.Node) {
	nodes := root.GetObjects()
	parents := scene.ParentIndices(nodes)
	depth := make([]int, len(nodes))

	var attaches, vertices, corners int
	for i, n := range nodes {
		if p := parents[i]; p >= 0 {
			depth[i] = depth[p] + 1
		}

		fmt.Fprintf(w, "%4d %s%s", i, strings.Repeat("  ", depth[i]), n.Name)
		a := n.Attach()
		if a == nil {
			fmt.Fprintln(w)
			continue
		}

		attaches++
		vertices += a.VertexCount()
		corners += a.CornerCount()
		fmt.Fprintf(w, "  [%s %q: %d meshes, %d vertices, %d corners]\n",
			a.Format, a.Name, len(a.MeshData), a.VertexCount(), a.CornerCount())

		for mi, m := range a.MeshData {
			fmt.Fprintf(w, "%s       mesh %d: %s\n", strings.Repeat("  ", depth[i]), mi, describeMesh(m))
		}
	}

	fmt.Fprintf(w, "\nNodes:    %d\n", len(nodes))
	fmt.Fprintf(w, "Attaches: %d\n", attaches)
	fmt.Fprintf(w, "Vertices: %d\n", vertices)
	fmt.Fprintf(w, "Corners:  %d\n", corners)
}

func describeMesh(m *buffer.Mesh) string {
	var parts []string
	if m.HasVertices() {
		lo, hi := slotSpan(m)
		mode := "write"
		if m.ContinueWeight {
			mode = "continue"
		}
		parts = append(parts, fmt.Sprintf("%s %d vertices slots %d-%d", mode, len(m.Vertices), lo, hi))
	}
	if m.HasPolygons() {
		kind := "list"
		if m.Strippified {
			kind = "strip"
		}
		n := len(m.Corners)
		if m.IndexList != nil {
			n = len(m.IndexList)
		}
		parts = append(parts, fmt.Sprintf("%s %d corners read offset %d", kind, n, m.VertexReadOffset))
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

func slotSpan(m *buffer.Mesh) (int, int) {
	lo, hi := -1, -1
	for _, v := range m.Vertices {
		s := int(v.Index) + int(m.VertexWriteOffset)
		if lo < 0 || s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// WriteWeightedReport prints one line per weighted attach followed by its
// dependencies. names maps node indices to names and may be nil.
func WriteWeightedReport(w io.Writer, attaches []*weighted.WeightedBufferAttach, names []string) {
	var weightedCount int
	for i, wba := range attaches {
		kind := "rigid"
		if wba.IsWeighted() {
			kind = "weighted"
			weightedCount++
		}

		fmt.Fprintf(w, "%3d %-24s %-8s %5d vertices %3d groups %6d corners  root %s\n",
			i, wba.Label, kind, len(wba.Vertices), len(wba.Corners), wba.CornerCount(),
			nodeName(names, wba.DependencyRootIndex))

		if wba.IsWeighted() {
			deps := make([]string, len(wba.DependingNodeIndices))
			for j, d := range wba.DependingNodeIndices {
				deps[j] = nodeName(names, d)
			}
			fmt.Fprintf(w, "    depends on %s, max %d influences\n", strings.Join(deps, ", "), maxInfluences(wba))
		}
	}
	fmt.Fprintf(w, "\n%d attaches, %d weighted\n", len(attaches), weightedCount)
}

func maxInfluences(wba *weighted.WeightedBufferAttach) int {
	best := 0
	for _, v := range wba.Vertices {
		if n := v.WeightCount(); n > best {
			best = n
		}
	}
	return best
}

// WritePlanReport prints the slot range planned for every result and the
// highest slot in use.
func WritePlanReport(w io.Writer, results []*weighted.BufferResult, starts []int, names []string) {
	end := 0
	for i, r := range results {
		nodes := make([]string, len(r.AttachIndices()))
		for j, idx := range r.AttachIndices() {
			nodes[j] = nodeName(names, idx)
		}

		start := 0
		if i < len(starts) {
			start = starts[i]
		}
		last := start + r.VertexCount()
		end = max(end, last)

		status := ""
		if last > buffer.CacheSize {
			status = "  OVERFLOW"
		}
		fmt.Fprintf(w, "%3d %-24s slots %5d-%-5d (%4d)  nodes %s%s\n",
			i, r.Label, start, last, r.VertexCount(), strings.Join(nodes, " "), status)
	}
	fmt.Fprintf(w, "\n%d results, cache high water mark %d of %d\n", len(results), end, buffer.CacheSize)
}
