// Package sceneio stores buffered scene graphs and weighted attaches as YAML.
package sceneio

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/sa3d-weighted/pkg/buffer"
	"github.com/Faultbox/sa3d-weighted/pkg/math"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
)

// Version is the document version written by this package.
const Version = 1

// Scene document errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported scene document version")
	ErrMissingRoot        = errors.New("scene document has no root node")
)

type sceneDocument struct {
	Version int      `yaml:"version"`
	Root    *nodeDoc `yaml:"root"`
}

type nodeDoc struct {
	Name     string     `yaml:"name"`
	Position [3]float32 `yaml:"position,flow"`
	Rotation [4]float32 `yaml:"rotation,flow"` // x, y, z, w
	Scale    [3]float32 `yaml:"scale,flow"`
	Attach   *attachDoc `yaml:"attach,omitempty"`
	Children []*nodeDoc `yaml:"children,omitempty"`
}

type attachDoc struct {
	Name   string         `yaml:"name"`
	Format string         `yaml:"format"`
	Meshes []*buffer.Mesh `yaml:"meshes,omitempty"`
}

// MarshalScene encodes the scene below root.
func MarshalScene(root *scene.Node) ([]byte, error) {
	if root == nil {
		return nil, ErrMissingRoot
	}
	return yaml.Marshal(sceneDocument{Version: Version, Root: encodeNode(root)})
}

func encodeNode(n *scene.Node) *nodeDoc {
	doc := &nodeDoc{
		Name:     n.Name,
		Position: n.Position.Array(),
		Rotation: n.Rotation.Array(),
		Scale:    n.Scale.Array(),
	}
	if a := n.Attach(); a != nil {
		doc.Attach = &attachDoc{
			Name:   a.Name,
			Format: a.Format.String(),
			Meshes: a.MeshData,
		}
	}
	for _, c := range n.Children() {
		doc.Children = append(doc.Children, encodeNode(c))
	}
	return doc
}

// ParseScene decodes a scene document and returns its root node.
func ParseScene(data []byte) (*scene.Node, error) {
	var doc sceneDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding scene document")
	}
	if doc.Version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", doc.Version)
	}
	if doc.Root == nil {
		return nil, ErrMissingRoot
	}
	return decodeNode(doc.Root, nil)
}

func decodeNode(doc *nodeDoc, parent *scene.Node) (*scene.Node, error) {
	n := scene.NewNode(doc.Name)
	n.Position = math.Vec3FromArray(doc.Position)
	n.Rotation = math.QuatFromArray(doc.Rotation)
	n.Scale = math.Vec3FromArray(doc.Scale)

	if doc.Attach != nil {
		format, err := scene.ParseAttachFormat(doc.Attach.Format)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", doc.Name)
		}
		n.SetAttach(&scene.Attach{
			Name:     doc.Attach.Name,
			Format:   format,
			MeshData: doc.Attach.Meshes,
		})
	}

	if parent != nil {
		parent.AddChild(n)
	}
	for _, c := range doc.Children {
		if c == nil {
			continue
		}
		if _, err := decodeNode(c, n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// ParseSceneFile reads a scene document from disk.
func ParseSceneFile(path string) (*scene.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scene file")
	}
	root, err := ParseScene(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return root, nil
}

// WriteSceneFile writes the scene below root to disk.
func WriteSceneFile(path string, root *scene.Node) error {
	data, err := MarshalScene(root)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "writing scene file")
}
