package spatial

// IndexNode is the contract every tree family's Branch/Leaf (or, for Cover
// Tree, single-point node) variant implements so the dual-tree traversal
// engine (C9) can operate over any of them uniformly.
//
// Families model Branch/Leaf as tagged variants of one node type living in a per-tree arena; see
// each package's node.go for the concrete layout.
type IndexNode interface {
	// Pivot returns the node's representative vector for bounding and
	// dispatch (the vantage point, ball center, KD split-plane corner,
	// or — for Cover Tree — the node's sole owned point).
	Pivot() Vector

	// Radius is an upper bound on dist(Pivot(), x) for every point x
	// contained in the node.
	Radius() float64

	// FurthestPointDistance bounds the distance from Pivot to a point
	// the node owns directly (its own leaf contents, not descendants).
	FurthestPointDistance() float64

	// FurthestDescendantDistance bounds the distance from Pivot to any
	// point reachable through this node, owned or not.
	FurthestDescendantDistance() float64

	// MinNodeDistance and MaxNodeDistance bound dist(x, y) for x ranging
	// over this node's points and y over other's.
	MinNodeDistance(other IndexNode) float64
	MaxNodeDistance(other IndexNode) float64

	Parent() IndexNode

	NumPoints() int
	Point(k int) PointId

	NumChildren() int
	Child(k int) IndexNode
}

// SelfLeafAdapter wraps a node whose family does not keep all points
// strictly in leaves (Cover Tree: every internal node owns exactly one
// point) so it simultaneously exposes its own owned point as a virtual,
// zero-radius self-leaf child. A family wires this up by supplying distOf,
// the same metric-aware point-to-node distance its other nodes already use
// to implement MinNodeDistance/MaxNodeDistance.
type SelfLeafAdapter struct {
	IndexNode
	distOf func(p Vector, n IndexNode) (min, max float64)
}

// NewSelfLeafAdapter builds a SelfLeafAdapter. distOf must return the
// (min, max) bounds on the distance from point p to any point reachable
// through node n — exactly what the wrapped family already computes to
// implement its own MinNodeDistance/MaxNodeDistance.
func NewSelfLeafAdapter(n IndexNode, distOf func(p Vector, n IndexNode) (min, max float64)) SelfLeafAdapter {
	return SelfLeafAdapter{IndexNode: n, distOf: distOf}
}

func (a SelfLeafAdapter) NumChildren() int { return a.IndexNode.NumChildren() + 1 }

func (a SelfLeafAdapter) Child(k int) IndexNode {
	if k == a.IndexNode.NumChildren() {
		return selfLeaf{owner: a.IndexNode, distOf: a.distOf}
	}
	return a.IndexNode.Child(k)
}

// selfLeaf is the virtual zero-radius child exposing the adapted node's own
// point(s).
type selfLeaf struct {
	owner  IndexNode
	distOf func(p Vector, n IndexNode) (min, max float64)
}

func (l selfLeaf) Pivot() Vector                       { return l.owner.Pivot() }
func (l selfLeaf) Radius() float64                     { return 0 }
func (l selfLeaf) FurthestPointDistance() float64      { return 0 }
func (l selfLeaf) FurthestDescendantDistance() float64 { return 0 }

func (l selfLeaf) MinNodeDistance(other IndexNode) float64 {
	min, _ := l.distOf(l.owner.Pivot(), other)
	return min
}

func (l selfLeaf) MaxNodeDistance(other IndexNode) float64 {
	_, max := l.distOf(l.owner.Pivot(), other)
	return max
}

func (l selfLeaf) Parent() IndexNode     { return l.owner }
func (l selfLeaf) NumPoints() int        { return l.owner.NumPoints() }
func (l selfLeaf) Point(k int) PointId   { return l.owner.Point(k) }
func (l selfLeaf) NumChildren() int      { return 0 }
func (l selfLeaf) Child(k int) IndexNode { panic("spatial: selfLeaf has no children") }
