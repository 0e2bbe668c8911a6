// Package gltfio imports glTF models into buffered scenes and exports
// evaluated buffer scenes as glTF previews.
package gltfio

import (
	"encoding/binary"
	stdmath "math"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
	"github.com/Faultbox/sa3d-weighted/pkg/weighted"
)

// Import errors.
var (
	ErrNoScene          = errors.New("gltf document has no nodes to import")
	ErrMissingAttribute = errors.New("gltf primitive is missing a required attribute")
	ErrInvalidSkin      = errors.New("gltf skin is invalid")
)

// ImportOptions control how glTF meshes become buffer attaches.
type ImportOptions struct {
	CombineAtDependencyRoots bool
	Optimize                 bool
	IgnoreWeights            bool
}

// Importer converts glTF documents into buffered scene graphs.
type Importer struct {
	log  *zap.Logger
	opts ImportOptions
}

// NewImporter creates an importer. A nil logger discards output.
func NewImporter(log *zap.Logger, opts ImportOptions) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{log: log, opts: opts}
}

// ImportFile opens a .gltf or .glb file and imports it.
func (im *Importer) ImportFile(path string) (*scene.Node, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return im.Import(doc)
}

// Import builds a scene graph from the document's default scene. Every
// mesh is read in bind pose as a weighted attach and written back onto the
// scene as buffer attaches. A document with several root nodes gets a
// synthetic root.
func (im *Importer) Import(doc *gltf.Document) (*scene.Node, error) {
	root, byIndex, err := buildHierarchy(doc)
	if err != nil {
		return nil, err
	}

	nodes := root.GetObjects()
	parents := scene.ParentIndices(nodes)
	worlds := scene.WorldMatrices(nodes)

	traversal := make(map[uint32]int, len(byIndex))
	for gi, n := range byIndex {
		traversal[gi] = scene.IndexOf(nodes, n)
	}

	var attaches []*weighted.WeightedBufferAttach
	for gi := range doc.Nodes {
		src := doc.Nodes[gi]
		idx, ok := traversal[uint32(gi)]
		if !ok || src.Mesh == nil {
			continue
		}
		if int(*src.Mesh) >= len(doc.Meshes) {
			return nil, errors.Errorf("node %q: mesh %d out of range", src.Name, *src.Mesh)
		}

		wba, err := im.readMesh(doc, src, idx, traversal, worlds, parents)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", src.Name)
		}
		if wba != nil {
			attaches = append(attaches, wba)
		}
	}

	if im.opts.CombineAtDependencyRoots {
		attaches, err = weighted.CombineAtDependencyRoots(attaches, parents)
		if err != nil {
			return nil, err
		}
	}

	if err := weighted.FromWeightedBuffer(root, attaches, scene.FormatBuffer, im.opts.Optimize, im.opts.IgnoreWeights); err != nil {
		return nil, err
	}

	im.log.Info("gltf imported",
		zap.Int("nodes", len(nodes)),
		zap.Int("attaches", len(attaches)))
	return root, nil
}

// buildHierarchy creates scene nodes for every glTF node reachable from the
// default scene, keyed by glTF node index.
func buildHierarchy(doc *gltf.Document) (*scene.Node, map[uint32]*scene.Node, error) {
	var roots []uint32
	switch {
	case doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		roots = doc.Scenes[0].Nodes
	default:
		// No scene: every node without a parent is a root.
		child := make(map[uint32]bool)
		for _, n := range doc.Nodes {
			for _, c := range n.Children {
				child[c] = true
			}
		}
		for i := range doc.Nodes {
			if !child[uint32(i)] {
				roots = append(roots, uint32(i))
			}
		}
	}
	if len(roots) == 0 {
		return nil, nil, ErrNoScene
	}

	byIndex := make(map[uint32]*scene.Node)
	var visit func(gi uint32, parent *scene.Node) (*scene.Node, error)
	visit = func(gi uint32, parent *scene.Node) (*scene.Node, error) {
		if int(gi) >= len(doc.Nodes) {
			return nil, errors.Errorf("node index %d out of range", gi)
		}
		if _, seen := byIndex[gi]; seen {
			return nil, errors.Errorf("node %d is referenced twice", gi)
		}

		src := doc.Nodes[gi]
		n := scene.NewNode(src.Name)
		setTransform(n, src)
		byIndex[gi] = n

		if parent != nil {
			parent.AddChild(n)
		}
		for _, c := range src.Children {
			if _, err := visit(c, n); err != nil {
				return nil, err
			}
		}
		return n, nil
	}

	var root *scene.Node
	if len(roots) > 1 {
		root = scene.NewNode("root")
	}
	for _, r := range roots {
		n, err := visit(r, root)
		if err != nil {
			return nil, nil, err
		}
		if root == nil {
			root = n
		}
	}
	return root, byIndex, nil
}

// setTransform copies a node's TRS, or decomposes its matrix when one is
// given. Zero rotation and scale mean the glTF defaults.
func setTransform(n *scene.Node, src *gltf.Node) {
	if m := math.Mat4(src.Matrix); m != (math.Mat4{}) && m != math.Identity() {
		n.Position, n.Rotation, n.Scale = m.Decompose()
		return
	}

	n.Position = math.Vec3FromArray(src.Translation)
	if src.Rotation != [4]float32{} {
		n.Rotation = math.QuatFromArray(src.Rotation)
	}
	if src.Scale != [3]float32{} {
		n.Scale = math.Vec3FromArray(src.Scale)
	}
}

// readMesh reads every triangle primitive of a node's mesh into a single
// weighted attach with one polygon group per primitive.
func (im *Importer) readMesh(doc *gltf.Document, node *gltf.Node, nodeIndex int, traversal map[uint32]int, worlds []math.Mat4, parents []int) (*weighted.WeightedBufferAttach, error) {
	mesh := doc.Meshes[*node.Mesh]
	nodeCount := len(worlds)

	var skin *skinBinding
	if node.Skin != nil {
		var err error
		if skin, err = readSkin(doc, *node.Skin, traversal, worlds); err != nil {
			return nil, err
		}
	}

	world := worlds[nodeIndex]
	normalMatrix, ok := world.NormalMatrix()
	if !ok {
		return nil, weighted.ErrDegenerateTransform
	}

	var (
		vertices  []weighted.WeightedVertex
		corners   [][]buffer.Corner
		materials []*buffer.Material
	)

	for pi, prim := range mesh.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != gltf.PrimitiveTriangleStrip {
			im.log.Warn("skipping non triangle primitive",
				zap.String("mesh", mesh.Name),
				zap.Int("primitive", pi))
			continue
		}

		p, err := readPrimitive(doc, prim)
		if err != nil {
			return nil, errors.Wrapf(err, "primitive %d", pi)
		}

		base := len(vertices)
		if base+len(p.positions) > buffer.CacheSize {
			return nil, errors.Wrapf(weighted.ErrTooManyVertices, "mesh %q: %d vertices", mesh.Name, base+len(p.positions))
		}

		for vi, pos := range p.positions {
			v := weighted.NewWeightedVertex(math.Vec3{}, math.Vec3{}, nodeCount)
			normal := math.Vec3{Y: 1}
			if p.normals != nil {
				normal = math.Vec3FromArray(p.normals[vi])
			}

			if skin != nil && p.joints != nil && p.weights != nil && skin.apply(&v, math.Vec3FromArray(pos), normal, p.joints[vi], p.weights[vi]) {
				vertices = append(vertices, v)
				continue
			}

			v.Position = world.TransformPoint(math.Vec3FromArray(pos))
			v.Normal = normalMatrix.TransformDirection(normal).Normalize()
			v.Weights[nodeIndex] = 1
			vertices = append(vertices, v)
		}

		group := make([]buffer.Corner, len(p.indices))
		for ci, idx := range p.indices {
			if int(idx) >= len(p.positions) {
				return nil, errors.Wrapf(weighted.ErrCornerOutOfRange, "primitive %d index %d", pi, idx)
			}
			c := buffer.Corner{VertexIndex: uint16(base + int(idx)), Color: buffer.White}
			if p.texcoords != nil {
				c.Texcoord = math.Vec2{X: p.texcoords[idx][0], Y: p.texcoords[idx][1]}
			}
			if p.colors != nil {
				col := p.colors[idx]
				c.Color = buffer.Color{R: col[0], G: col[1], B: col[2], A: col[3]}
			}
			group[ci] = c
		}
		if prim.Mode == gltf.PrimitiveTriangleStrip {
			if group, err = buffer.StripToList(group); err != nil {
				return nil, errors.Wrapf(err, "primitive %d", pi)
			}
		}

		corners = append(corners, group)
		materials = append(materials, convertMaterial(doc, prim.Material))
	}

	if len(corners) == 0 {
		return nil, nil
	}

	label := mesh.Name
	if label == "" {
		label = node.Name
	}
	wba := weighted.NewWeightedBufferAttach(label, vertices, corners, materials, parents)
	im.log.Debug("gltf mesh read",
		zap.String("mesh", label),
		zap.Int("vertices", len(vertices)),
		zap.Bool("skinned", skin != nil),
		zap.Int("root", wba.DependencyRootIndex))
	return wba, nil
}

type primitiveData struct {
	positions [][3]float32
	normals   [][3]float32
	texcoords [][2]float32
	colors    [][4]uint8
	joints    [][4]uint16
	weights   [][4]float32
	indices   []uint32
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*primitiveData, error) {
	accessor := func(name string) (*gltf.Accessor, error) {
		idx, ok := prim.Attributes[name]
		if !ok {
			return nil, nil
		}
		if int(idx) >= len(doc.Accessors) {
			return nil, errors.Errorf("%s accessor %d out of range", name, idx)
		}
		return doc.Accessors[idx], nil
	}

	var p primitiveData

	acr, err := accessor("POSITION")
	if err != nil {
		return nil, err
	}
	if acr == nil {
		return nil, errors.Wrap(ErrMissingAttribute, "POSITION")
	}
	if p.positions, err = modeler.ReadPosition(doc, acr, nil); err != nil {
		return nil, errors.Wrap(err, "reading positions")
	}

	if acr, err = accessor("NORMAL"); err != nil {
		return nil, err
	} else if acr != nil {
		if p.normals, err = modeler.ReadNormal(doc, acr, nil); err != nil {
			return nil, errors.Wrap(err, "reading normals")
		}
	}

	if acr, err = accessor("TEXCOORD_0"); err != nil {
		return nil, err
	} else if acr != nil {
		if p.texcoords, err = modeler.ReadTextureCoord(doc, acr, nil); err != nil {
			return nil, errors.Wrap(err, "reading texture coordinates")
		}
	}

	if acr, err = accessor("COLOR_0"); err != nil {
		return nil, err
	} else if acr != nil {
		if p.colors, err = modeler.ReadColor(doc, acr, nil); err != nil {
			return nil, errors.Wrap(err, "reading colors")
		}
	}

	if acr, err = accessor("JOINTS_0"); err != nil {
		return nil, err
	} else if acr != nil {
		if p.joints, err = modeler.ReadJoints(doc, acr, nil); err != nil {
			return nil, errors.Wrap(err, "reading joints")
		}
	}

	if acr, err = accessor("WEIGHTS_0"); err != nil {
		return nil, err
	} else if acr != nil {
		if p.weights, err = modeler.ReadWeights(doc, acr, nil); err != nil {
			return nil, errors.Wrap(err, "reading weights")
		}
	}

	if prim.Indices != nil {
		if int(*prim.Indices) >= len(doc.Accessors) {
			return nil, errors.Errorf("index accessor %d out of range", *prim.Indices)
		}
		if p.indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil); err != nil {
			return nil, errors.Wrap(err, "reading indices")
		}
	} else {
		p.indices = make([]uint32, len(p.positions))
		for i := range p.indices {
			p.indices[i] = uint32(i)
		}
	}

	n := len(p.positions)
	if (p.normals != nil && len(p.normals) != n) ||
		(p.texcoords != nil && len(p.texcoords) != n) ||
		(p.colors != nil && len(p.colors) != n) ||
		(p.joints != nil && len(p.joints) != n) ||
		(p.weights != nil && len(p.weights) != n) {
		return nil, errors.Errorf("attribute counts differ from %d positions", n)
	}
	return &p, nil
}

// skinBinding maps a skin's joints to scene nodes and bind matrices.
type skinBinding struct {
	nodes    []int       // traversal index per joint
	matrices []math.Mat4 // joint world * inverse bind matrix
	normals  []math.Mat4
}

func readSkin(doc *gltf.Document, index uint32, traversal map[uint32]int, worlds []math.Mat4) (*skinBinding, error) {
	if int(index) >= len(doc.Skins) {
		return nil, errors.Wrapf(ErrInvalidSkin, "skin %d out of range", index)
	}
	skin := doc.Skins[index]

	inverseBind, err := readInverseBindMatrices(doc, skin)
	if err != nil {
		return nil, err
	}

	b := &skinBinding{
		nodes:    make([]int, len(skin.Joints)),
		matrices: make([]math.Mat4, len(skin.Joints)),
		normals:  make([]math.Mat4, len(skin.Joints)),
	}
	for j, joint := range skin.Joints {
		idx, ok := traversal[joint]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidSkin, "joint %d is not part of the scene", joint)
		}
		b.nodes[j] = idx
		b.matrices[j] = worlds[idx].Mul(inverseBind[j])

		nm, ok := b.matrices[j].NormalMatrix()
		if !ok {
			return nil, errors.Wrapf(weighted.ErrDegenerateTransform, "joint %d", joint)
		}
		b.normals[j] = nm
	}
	return b, nil
}

// apply writes the bind pose position, normal and node weights of a
// skinned vertex. It reports false when the vertex has no usable weight.
func (b *skinBinding) apply(v *weighted.WeightedVertex, pos, normal math.Vec3, joints [4]uint16, weights [4]float32) bool {
	var total float32
	for i, w := range weights {
		if w > 0 && int(joints[i]) < len(b.nodes) {
			total += w
		}
	}
	if total == 0 {
		return false
	}

	for i, w := range weights {
		j := int(joints[i])
		if w <= 0 || j >= len(b.nodes) {
			continue
		}
		w /= total
		v.Position = v.Position.Add(b.matrices[j].TransformPoint(pos).Scale(w))
		v.Normal = v.Normal.Add(b.normals[j].TransformDirection(normal).Scale(w))
		v.Weights[b.nodes[j]] += w
	}
	v.Normal = v.Normal.Normalize()
	return true
}

// readInverseBindMatrices decodes the skin's MAT4 float accessor straight
// from its buffer view. A missing accessor means identity matrices.
func readInverseBindMatrices(doc *gltf.Document, skin *gltf.Skin) ([]math.Mat4, error) {
	result := make([]math.Mat4, len(skin.Joints))
	if skin.InverseBindMatrices == nil {
		for i := range result {
			result[i] = math.Identity()
		}
		return result, nil
	}

	if int(*skin.InverseBindMatrices) >= len(doc.Accessors) {
		return nil, errors.Wrap(ErrInvalidSkin, "inverse bind matrix accessor out of range")
	}
	acr := doc.Accessors[*skin.InverseBindMatrices]
	if acr.BufferView == nil || int(*acr.BufferView) >= len(doc.BufferViews) {
		return nil, errors.Wrap(ErrInvalidSkin, "inverse bind matrices have no buffer view")
	}
	if acr.Type != gltf.AccessorMat4 || acr.ComponentType != gltf.ComponentFloat {
		return nil, errors.Wrap(ErrInvalidSkin, "inverse bind matrices must be float MAT4")
	}
	if int(acr.Count) < len(skin.Joints) {
		return nil, errors.Wrapf(ErrInvalidSkin, "%d inverse bind matrices for %d joints", acr.Count, len(skin.Joints))
	}

	view := doc.BufferViews[*acr.BufferView]
	if int(view.Buffer) >= len(doc.Buffers) {
		return nil, errors.Wrap(ErrInvalidSkin, "inverse bind matrix buffer out of range")
	}
	data := doc.Buffers[view.Buffer].Data

	stride := uint32(64)
	if view.ByteStride != 0 {
		stride = view.ByteStride
	}
	for i := range result {
		offset := view.ByteOffset + acr.ByteOffset + uint32(i)*stride
		if int(offset)+64 > len(data) {
			return nil, errors.Wrapf(ErrInvalidSkin, "inverse bind matrix %d outside of buffer", i)
		}
		result[i] = readMatrix(data[offset : offset+64])
	}
	return result, nil
}

func readMatrix(data []byte) math.Mat4 {
	var m math.Mat4
	for i := range m {
		m[i] = stdmath.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return m
}

func convertMaterial(doc *gltf.Document, index *uint32) *buffer.Material {
	m := buffer.DefaultMaterial()
	if index == nil || int(*index) >= len(doc.Materials) {
		return &m
	}

	src := doc.Materials[*index]
	m.BackfaceCulling = !src.DoubleSided
	m.UseAlpha = src.AlphaMode == gltf.AlphaBlend

	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			m.Diffuse = colorFromFactor(*pbr.BaseColorFactor)
		}
		if pbr.BaseColorTexture != nil {
			m.UseTexture = true
			m.TextureIndex = pbr.BaseColorTexture.Index
		}
	}
	return &m
}

func colorFromFactor(f [4]float32) buffer.Color {
	ch := func(v float32) uint8 {
		return uint8(stdmath.Round(float64(min(max(v, 0), 1) * 255)))
	}
	return buffer.Color{R: ch(f[0]), G: ch(f[1]), B: ch(f[2]), A: ch(f[3])}
}
