package sceneio

import (
	"os"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/weighted"
)

// ErrWeightIndex is returned when a stored weight, dependency root or
// depending node names a node outside of the document's node list.
var ErrWeightIndex = errors.New("weight refers to an unknown node")

// WeightedDocument is a set of weighted attaches together with the names of
// the nodes their weight indices refer to, in traversal order.
type WeightedDocument struct {
	Nodes    []string
	Attaches []*weighted.WeightedBufferAttach
}

type weightedDoc struct {
	Version  int                  `yaml:"version"`
	Nodes    []string             `yaml:"nodes"`
	Attaches []*weightedAttachDoc `yaml:"attaches"`
}

type weightedAttachDoc struct {
	Label     string              `yaml:"label"`
	Depending []int               `yaml:"depending,flow,omitempty"`
	Root      int                 `yaml:"root"`
	Vertices  []weightedVertexDoc `yaml:"vertices"`
	Groups    []groupDoc          `yaml:"groups"`
}

type weightedVertexDoc struct {
	Position [3]float32  `yaml:"position,flow"`
	Normal   [3]float32  `yaml:"normal,flow"`
	Weights  []weightDoc `yaml:"weights,flow"`
}

type weightDoc struct {
	Node   int     `yaml:"node"`
	Weight float32 `yaml:"weight"`
}

type groupDoc struct {
	Material *buffer.Material `yaml:"material,omitempty"`
	Corners  []buffer.Corner  `yaml:"corners"`
}

// MarshalWeighted encodes a weighted document. Only nonzero weights are
// stored.
func MarshalWeighted(doc WeightedDocument) ([]byte, error) {
	out := weightedDoc{Version: Version, Nodes: doc.Nodes}
	for _, wba := range doc.Attaches {
		a := &weightedAttachDoc{
			Label:     wba.Label,
			Depending: wba.DependingNodeIndices,
			Root:      wba.DependencyRootIndex,
			Vertices:  make([]weightedVertexDoc, len(wba.Vertices)),
			Groups:    make([]groupDoc, len(wba.Corners)),
		}
		for i, v := range wba.Vertices {
			vd := weightedVertexDoc{Position: v.Position.Array(), Normal: v.Normal.Array()}
			for _, p := range v.WeightMap() {
				vd.Weights = append(vd.Weights, weightDoc{Node: p.Index, Weight: p.Weight})
			}
			a.Vertices[i] = vd
		}
		for i, corners := range wba.Corners {
			a.Groups[i].Corners = corners
			if i < len(wba.Materials) {
				a.Groups[i].Material = wba.Materials[i]
			}
		}
		out.Attaches = append(out.Attaches, a)
	}
	return yaml.Marshal(out)
}

// ParseWeighted decodes a weighted document. Weight arrays are expanded to
// one slot per listed node. The stored dependency root is kept as is, so
// attaches merged at a shared root survive a round trip. Depending node
// lists are sorted and deduplicated, and every weight of a weighted attach
// must name one of its depending nodes.
func ParseWeighted(data []byte) (WeightedDocument, error) {
	var in weightedDoc
	if err := yaml.Unmarshal(data, &in); err != nil {
		return WeightedDocument{}, errors.Wrap(err, "decoding weighted document")
	}
	if in.Version != Version {
		return WeightedDocument{}, errors.Wrapf(ErrUnsupportedVersion, "version %d", in.Version)
	}

	doc := WeightedDocument{Nodes: in.Nodes}
	nodeCount := len(in.Nodes)

	for ai, a := range in.Attaches {
		if a == nil {
			continue
		}

		if a.Root < 0 || a.Root >= nodeCount {
			return WeightedDocument{}, errors.Wrapf(ErrWeightIndex, "attach %d: root %d of %d", ai, a.Root, nodeCount)
		}
		for _, n := range a.Depending {
			if n < 0 || n >= nodeCount {
				return WeightedDocument{}, errors.Wrapf(ErrWeightIndex, "attach %d: depending node %d of %d", ai, n, nodeCount)
			}
		}

		wba := &weighted.WeightedBufferAttach{
			Label:               a.Label,
			Vertices:            make([]weighted.WeightedVertex, len(a.Vertices)),
			DependencyRootIndex: a.Root,
		}
		if len(a.Depending) > 0 {
			depending := slices.Clone(a.Depending)
			slices.Sort(depending)
			wba.DependingNodeIndices = slices.Compact(depending)
		}

		for vi, vd := range a.Vertices {
			v := weighted.NewWeightedVertex(math.Vec3FromArray(vd.Position), math.Vec3FromArray(vd.Normal), nodeCount)
			for _, w := range vd.Weights {
				if w.Node < 0 || w.Node >= nodeCount {
					return WeightedDocument{}, errors.Wrapf(ErrWeightIndex, "attach %d vertex %d: node %d of %d", ai, vi, w.Node, nodeCount)
				}
				if w.Weight != 0 && wba.IsWeighted() && !slices.Contains(wba.DependingNodeIndices, w.Node) {
					return WeightedDocument{}, errors.Wrapf(ErrWeightIndex, "attach %d vertex %d: node %d is not a depending node", ai, vi, w.Node)
				}
				v.Weights[w.Node] = w.Weight
			}
			wba.Vertices[vi] = v
		}

		for _, g := range a.Groups {
			wba.Corners = append(wba.Corners, g.Corners)
			wba.Materials = append(wba.Materials, g.Material)
		}

		doc.Attaches = append(doc.Attaches, wba)
	}
	return doc, nil
}

// ParseWeightedFile reads a weighted document from disk.
func ParseWeightedFile(path string) (WeightedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WeightedDocument{}, errors.Wrap(err, "reading weighted file")
	}
	doc, err := ParseWeighted(data)
	if err != nil {
		return WeightedDocument{}, errors.Wrapf(err, "%s", path)
	}
	return doc, nil
}

// WriteWeightedFile writes a weighted document to disk.
func WriteWeightedFile(path string, doc WeightedDocument) error {
	data, err := MarshalWeighted(doc)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing weighted file")
}
