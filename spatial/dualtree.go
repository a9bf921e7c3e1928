package spatial

import (
	"container/heap"
	"math"
)

// BaseCaseFunc computes and records dist(R[rId], Q[qId]) — a single
// point-pair distance evaluation.
type BaseCaseFunc func(rId, qId PointId)

// ScoreFunc returns a lower bound on dist(rNode, qNode), or math.NaN() to
// prune the pair outright.
type ScoreFunc func(rNode, qNode IndexNode) float64

// nodePair is one (reference, query) node pair waiting to be recursed into,
// ordered ascending by Score for the priority queue in DFS.
type nodePair struct {
	r, q  IndexNode
	score float64
}

type pairHeap []nodePair

func (h pairHeap) Len() int            { return len(h) }
func (h pairHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h pairHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x interface{}) { *h = append(*h, x.(nodePair)) }
func (h *pairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Traversal runs the dual-tree algorithm that answers a bulk
// query — every point of Q against every point of R — by exploiting
// node-to-node score bounds instead of one single-tree search per query
// point. It owns the per-call B() bound cache so a caller's Score closure
// can look up a query node's current k-NN upper bound in O(1).
//
// Improved selects the score-collapsing traversal variant: when every
// reference-child score for a given Q-child is equal within Tolerance, a
// single (R, Q-child) pair is enqueued instead of the full cross product of
// R's children against that Q-child — this collapses the common case where
// R's bound doesn't discriminate between its own children for this query
// region.
type Traversal struct {
	Improved  bool
	Tolerance float64
}

// NewTraversal builds a Traversal. improved selects the score-collapsing
// variant above; its tolerance defaults to 1e-9.
func NewTraversal(improved bool) *Traversal {
	return &Traversal{Improved: improved, Tolerance: 1e-9}
}

// DFS recurses r and q's node pair, calling base on every owned point pair
// and score to decide which child pairs to keep exploring. Pruned pairs
// (score is NaN) are dropped; surviving
// pairs are drained from a priority queue ordered ascending by score, so
// the most promising pairs are explored (and can tighten the caller's B()
// bounds) first.
func (t *Traversal) DFS(r, q IndexNode, base BaseCaseFunc, score ScoreFunc) {
	queue := &pairHeap{}
	t.step(r, q, base, score, queue)
	for queue.Len() > 0 {
		top := heap.Pop(queue).(nodePair)
		t.step(top.r, top.q, base, score, queue)
	}
}

func (t *Traversal) step(r, q IndexNode, base BaseCaseFunc, score ScoreFunc, queue *pairHeap) {
	// 1. Base case every owned point pair.
	for i := 0; i < r.NumPoints(); i++ {
		rid := r.Point(i)
		for j := 0; j < q.NumPoints(); j++ {
			qid := q.Point(j)
			base(rid, qid)
		}
	}

	rHasChildren := r.NumChildren() > 0
	qHasChildren := q.NumChildren() > 0

	switch {
	case rHasChildren && qHasChildren:
		for qi := 0; qi < q.NumChildren(); qi++ {
			qc := q.Child(qi)
			t.enqueueRChildren(r, qc, score, queue)
		}
	case rHasChildren && !qHasChildren:
		t.enqueueRChildren(r, q, score, queue)
	case !rHasChildren && qHasChildren:
		for qi := 0; qi < q.NumChildren(); qi++ {
			qc := q.Child(qi)
			s := score(r, qc)
			if !math.IsNaN(s) {
				heap.Push(queue, nodePair{r: r, q: qc, score: s})
			}
		}
	default:
		// Both are leaves with no further children: base cases above
		// already covered this pair completely.
	}
}

// enqueueRChildren scores qNode against every child of r, implementing the
// "improved" collapse when all scores agree.
func (t *Traversal) enqueueRChildren(r, qNode IndexNode, score ScoreFunc, queue *pairHeap) {
	n := r.NumChildren()
	if n == 0 {
		return
	}
	scores := make([]float64, n)
	allEqual := t.Improved
	for i := 0; i < n; i++ {
		scores[i] = score(r.Child(i), qNode)
		if t.Improved && i > 0 && !math.IsNaN(scores[i]) && !math.IsNaN(scores[0]) {
			if math.Abs(scores[i]-scores[0]) > t.Tolerance {
				allEqual = false
			}
		} else if t.Improved && (math.IsNaN(scores[i]) != math.IsNaN(scores[0])) {
			allEqual = false
		}
	}
	// The collapsed pair only makes progress when qNode can still be split,
	// so a leaf qNode always gets the full list of R's children.
	if allEqual && n > 1 && qNode.NumChildren() > 0 && !math.IsNaN(scores[0]) {
		heap.Push(queue, nodePair{r: r, q: qNode, score: scores[0]})
		return
	}
	for i := 0; i < n; i++ {
		if !math.IsNaN(scores[i]) {
			heap.Push(queue, nodePair{r: r.Child(i), q: qNode, score: scores[i]})
		}
	}
}

// BCache is the per-query-node upper-bound cache a k-NN Score callback
// needs, keyed by an opaque identity (typically the node's arena index,
// cast to int) so families don't need IndexNode to be comparable.
type BCache struct {
	bound map[int]float64
}

// NewBCache creates an empty bound cache.
func NewBCache() *BCache { return &BCache{bound: make(map[int]float64)} }

// Get returns the cached bound for key, or +Inf if none is recorded yet.
func (c *BCache) Get(key int) float64 {
	if v, ok := c.bound[key]; ok {
		return v
	}
	return math.Inf(1)
}

// Set records the bound for key.
func (c *BCache) Set(key int, v float64) { c.bound[key] = v }
