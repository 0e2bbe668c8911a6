package gltfio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// ExportOptions control the preview export.
type ExportOptions struct {
	Scale float32 // Uniform scale applied to positions, 0 means 1
}

// NodeTriangles are the world space triangles a node drew.
type NodeTriangles struct {
	Node      *scene.Node
	Triangles []buffer.Triangle
}

// Evaluate replays every buffer attach below root through one vertex cache
// in traversal order, the way the game draws the model.
func Evaluate(root *scene.Node) ([]NodeTriangles, error) {
	nodes := root.GetObjects()
	worlds := scene.WorldMatrices(nodes)
	cache := buffer.NewCache()

	var result []NodeTriangles
	for i, node := range nodes {
		attach := node.Attach()
		if attach == nil {
			continue
		}
		if !attach.HasMeshData() {
			return nil, errors.Errorf("node %q: attach %q has no buffer data", node.Name, attach.Name)
		}

		tris, err := cache.Process(attach.MeshData, worlds[i])
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", node.Name)
		}
		if len(tris) > 0 {
			result = append(result, NodeTriangles{Node: node, Triangles: tris})
		}
	}
	return result, nil
}

// Export evaluates the scene and builds a glTF document holding one mesh
// per drawing node, one primitive per material.
func Export(root *scene.Node, opts ExportOptions, log *zap.Logger) (*gltf.Document, error) {
	if log == nil {
		log = zap.NewNop()
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	drawn, err := Evaluate(root)
	if err != nil {
		return nil, err
	}

	doc := gltf.NewDocument()
	materials := make(map[buffer.Material]uint32)

	for _, nt := range drawn {
		var order []buffer.Material
		groups := make(map[buffer.Material][]buffer.Triangle)
		for _, tri := range nt.Triangles {
			key := buffer.DefaultMaterial()
			if tri.Material != nil {
				key = *tri.Material
			}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], tri)
		}

		mesh := &gltf.Mesh{Name: nt.Node.Name}
		for _, key := range order {
			matIndex, ok := materials[key]
			if !ok {
				matIndex = uint32(len(doc.Materials))
				doc.Materials = append(doc.Materials, exportMaterial(key, matIndex))
				materials[key] = matIndex
			}
			mesh.Primitives = append(mesh.Primitives, writePrimitive(doc, groups[key], scale, matIndex))
		}

		doc.Meshes = append(doc.Meshes, mesh)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)))
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:     nt.Node.Name,
			Mesh:     gltf.Index(uint32(len(doc.Meshes) - 1)),
			Matrix:   [16]float32(math.Identity()),
			Rotation: [4]float32{0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
		})

		log.Debug("preview mesh written",
			zap.String("node", nt.Node.Name),
			zap.Int("triangles", len(nt.Triangles)),
			zap.Int("primitives", len(mesh.Primitives)))
	}

	return doc, nil
}

func writePrimitive(doc *gltf.Document, tris []buffer.Triangle, scale float32, material uint32) *gltf.Primitive {
	count := len(tris) * 3
	positions := make([][3]float32, 0, count)
	normals := make([][3]float32, 0, count)
	uvs := make([][2]float32, 0, count)
	colors := make([][4]uint8, 0, count)
	indices := make([]uint32, 0, count)

	for _, tri := range tris {
		for _, c := range tri.Corners {
			indices = append(indices, uint32(len(positions)))
			positions = append(positions, c.Position.Scale(scale).Array())

			n := c.Normal
			if n.Length() < 1e-6 {
				n = math.Vec3{Y: 1}
			}
			normals = append(normals, n.Normalize().Array())
			uvs = append(uvs, c.Texcoord.Array())
			colors = append(colors, [4]uint8{c.Color.R, c.Color.G, c.Color.B, c.Color.A})
		}
	}

	indicesAccessor := modeler.WriteIndices(doc, indices)
	return &gltf.Primitive{
		Indices: &indicesAccessor,
		Attributes: map[string]uint32{
			"POSITION":   modeler.WritePosition(doc, positions),
			"NORMAL":     modeler.WriteNormal(doc, normals),
			"TEXCOORD_0": modeler.WriteTextureCoord(doc, uvs),
			"COLOR_0":    modeler.WriteColor(doc, colors),
		},
		Material: gltf.Index(material),
	}
}

func exportMaterial(m buffer.Material, index uint32) *gltf.Material {
	factor := [4]float32{
		float32(m.Diffuse.R) / 255,
		float32(m.Diffuse.G) / 255,
		float32(m.Diffuse.B) / 255,
		float32(m.Diffuse.A) / 255,
	}

	out := &gltf.Material{
		Name:        fmt.Sprintf("material_%d", index),
		DoubleSided: !m.BackfaceCulling,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
		},
	}
	if m.UseAlpha {
		out.AlphaMode = gltf.AlphaBlend
	}
	if m.UseTexture {
		out.Name = fmt.Sprintf("material_%d_tex%d", index, m.TextureIndex)
	}
	return out
}

// Encode writes the document as .glb when binary is set, .gltf otherwise.
func Encode(w io.Writer, doc *gltf.Document, binary bool) error {
	if !binary {
		for _, b := range doc.Buffers {
			b.EmbeddedResource()
		}
	}

	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = binary
	return errors.Wrap(encoder.Encode(doc), "encoding gltf")
}

// ExportFile evaluates root and writes the preview to path. A .glb
// extension forces binary output.
func ExportFile(path string, root *scene.Node, opts ExportOptions, binary bool, log *zap.Logger) error {
	doc, err := Export(root, opts, log)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".glb") {
		binary = true
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating preview file")
	}
	defer f.Close()

	if err := Encode(f, doc, binary); err != nil {
		return err
	}
	return f.Close()
}
