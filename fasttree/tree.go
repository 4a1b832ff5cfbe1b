package fasttree

import (
	"math"
)

// NodeKind discriminates the node variants in a tree arena.
type NodeKind uint8

const (
	// LeafNode is a terminal node carrying a scalar output.
	LeafNode NodeKind = iota
	// NumericalNode routes documents whose feature value is <= Threshold
	// (bin <= BinThreshold during training) to the left child.
	NumericalNode
	// CategoricalNode routes documents whose feature bin is in Categories
	// to the left child.
	CategoricalNode
)

// Node is a single node in a tree. Trees are flat arenas of nodes referenced
// by index, which keeps serialization trivial and scoring allocation-free.
type Node struct {
	Kind NodeKind

	// Split information (non-leaf nodes).
	SplitFeature int32
	BinThreshold uint32   // bins <= BinThreshold route left
	Threshold    float64  // raw-value equivalent of BinThreshold
	Categories   []uint32 // bin values routed left, ascending
	Gain         float64

	// Children (-1 for leaves).
	LeftChild  int32
	RightChild int32

	// Leaf information.
	LeafValue float64
	Count     int32 // documents reaching this node during training
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.Kind == LeafNode }

// Tree is a single decision tree over binned features. Internal nodes carry
// both the training-time bin threshold and the equivalent raw-value
// threshold, so a finalized tree routes raw feature vectors without the
// dataset's bin tables.
type Tree struct {
	Nodes     []Node
	NumLeaves int

	// QuantileSamples holds up to QuantileSampleCount labels sampled from
	// each leaf's training documents, indexed by leaf order (see LeafOrder).
	QuantileSamples [][]float64
}

// Predict routes a raw feature vector to a leaf and returns its output.
// It is a pure function and safe for concurrent use.
func (t *Tree) Predict(features []float64) float64 {
	nodeIdx := int32(0)
	for nodeIdx >= 0 && int(nodeIdx) < len(t.Nodes) {
		node := &t.Nodes[nodeIdx]

		switch node.Kind {
		case LeafNode:
			return node.LeafValue

		case NumericalNode:
			v := features[node.SplitFeature]
			if math.IsNaN(v) {
				// Missing values follow the majority (left) branch.
				nodeIdx = node.LeftChild
			} else if v <= node.Threshold {
				nodeIdx = node.LeftChild
			} else {
				nodeIdx = node.RightChild
			}

		case CategoricalNode:
			bin := uint32(math.Round(features[node.SplitFeature]))
			if containsBin(node.Categories, bin) {
				nodeIdx = node.LeftChild
			} else {
				nodeIdx = node.RightChild
			}
		}
	}
	return 0
}

// LeafOrder returns the node indices of leaves in arena order. The i-th
// entry corresponds to QuantileSamples[i].
func (t *Tree) LeafOrder() []int32 {
	order := make([]int32, 0, t.NumLeaves)
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			order = append(order, int32(i))
		}
	}
	return order
}

// MaxLeafOutput returns the largest absolute leaf value in the tree.
func (t *Tree) MaxLeafOutput() float64 {
	maxOut := 0.0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			if a := math.Abs(t.Nodes[i].LeafValue); a > maxOut {
				maxOut = a
			}
		}
	}
	return maxOut
}

func containsBin(categories []uint32, bin uint32) bool {
	// Categories are small and sorted; linear scan beats binary search here.
	for _, c := range categories {
		if c == bin {
			return true
		}
		if c > bin {
			return false
		}
	}
	return false
}
