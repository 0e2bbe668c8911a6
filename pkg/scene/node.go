// Package scene provides the node hierarchy that buffer attaches hang off.
//
// Node indices used throughout the conversion code are positions in the
// depth-first pre-order traversal returned by GetObjects. Parents always
// come before their children in that order.
package scene

import (
	"github.com/Faultbox/sa3d-weighted/pkg/math"
)

// Node is a scene graph node with a local TRS transform and an optional
// attach. A node owns its children and its attach exclusively.
type Node struct {
	Name     string
	Position math.Vec3
	Rotation math.Quat
	Scale    math.Vec3

	parent   *Node
	children []*Node
	attach   *Attach
}

// NewNode creates a node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:     name,
		Rotation: math.QuatIdentity(),
		Scale:    math.Vec3{X: 1, Y: 1, Z: 1},
	}
}

// Parent returns the parent node, nil for a root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the ordered child list. The slice must not be modified.
func (n *Node) Children() []*Node {
	return n.children
}

// AddChild appends child, detaching it from its previous parent first.
func (n *Node) AddChild(child *Node) *Node {
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	return child
}

// NewChild creates a node and appends it to n.
func (n *Node) NewChild(name string) *Node {
	return n.AddChild(NewNode(name))
}

// RemoveChild detaches child. Returns false if child is not a child of n.
func (n *Node) RemoveChild(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Attach returns the node's attach, nil if it has none.
func (n *Node) Attach() *Attach {
	return n.attach
}

// SetAttach replaces the node's attach and returns the previous one.
func (n *Node) SetAttach(a *Attach) *Attach {
	prev := n.attach
	n.attach = a
	return prev
}

// LocalMatrix returns the node transform as T * R * S.
func (n *Node) LocalMatrix() math.Mat4 {
	return math.FromTRS(n.Position, n.Rotation, n.Scale)
}

// WorldMatrix returns the node transform relative to the scene root.
func (n *Node) WorldMatrix() math.Mat4 {
	world := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		world = p.LocalMatrix().Mul(world)
	}
	return world
}

// Root returns the topmost ancestor.
func (n *Node) Root() *Node {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// GetObjects returns n and all of its descendants in depth-first pre-order.
func (n *Node) GetObjects() []*Node {
	var nodes []*Node
	var walk func(*Node)
	walk = func(node *Node) {
		nodes = append(nodes, node)
		for _, c := range node.children {
			walk(c)
		}
	}
	walk(n)
	return nodes
}

// IndexOf returns the traversal index of node within nodes, -1 if absent.
func IndexOf(nodes []*Node, node *Node) int {
	for i, n := range nodes {
		if n == node {
			return i
		}
	}
	return -1
}

// ParentIndices maps every node to the index of its parent within nodes.
// Roots, and nodes whose parent is not part of nodes, map to -1.
func ParentIndices(nodes []*Node) []int {
	index := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	parents := make([]int, len(nodes))
	for i, n := range nodes {
		parents[i] = -1
		if n.parent == nil {
			continue
		}
		if p, ok := index[n.parent]; ok {
			parents[i] = p
		}
	}
	return parents
}

// WorldMatrices computes the world matrix of every node in a traversal
// list in a single pass. Parents must precede their children.
func WorldMatrices(nodes []*Node) []math.Mat4 {
	parents := ParentIndices(nodes)
	worlds := make([]math.Mat4, len(nodes))
	for i, n := range nodes {
		local := n.LocalMatrix()
		if p := parents[i]; p >= 0 {
			worlds[i] = worlds[p].Mul(local)
		} else if n.parent != nil {
			worlds[i] = n.parent.WorldMatrix().Mul(local)
		} else {
			worlds[i] = local
		}
	}
	return worlds
}

// FindByName returns the first node in traversal order with the given name.
func (n *Node) FindByName(name string) *Node {
	for _, node := range n.GetObjects() {
		if node.Name == name {
			return node
		}
	}
	return nil
}
