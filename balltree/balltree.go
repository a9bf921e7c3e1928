// Package balltree implements Ball Tree (C5): pivot+radius balls under
// three construction modes and four pivot policies, with incremental
// insert, using the same functional-options/BuildStats idiom as the rest of
// this module. The anchors-hierarchy agglomeration follows
// katalvlaran/lvlath's Prim-style greedy-merge-by-priority-queue shape
// (graph/prim_kruskal.go), generalized from edge costs to ball-merge
// costs.
package balltree

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
	"github.com/coredex/spatial/internal/parallel"
	"github.com/coredex/spatial/internal/stat"
)

// ConstructionMethod selects how a Ball Tree partitions a subset.
type ConstructionMethod int

const (
	TopDownFarthest ConstructionMethod = iota
	KDStyle
	AnchorsHierarchy
)

// PivotSelection selects how a node's representative vector is chosen.
type PivotSelection int

const (
	Centroid PivotSelection = iota
	Medoid
	MedoidApprox
	RandomPivot
)

// medoidApproxThreshold is the subset size below which MedoidApprox falls
// back to the exact medoid.
const medoidApproxThreshold = 1000

// Config configures Ball Tree construction.
type Config struct {
	LeafSize           int
	ConstructionMethod ConstructionMethod
	PivotSelection     PivotSelection
	Rand               *rand.Rand
}

type Option func(*Config)

func WithLeafSize(n int) Option                       { return func(c *Config) { c.LeafSize = n } }
func WithConstructionMethod(m ConstructionMethod) Option { return func(c *Config) { c.ConstructionMethod = m } }
func WithPivotSelection(p PivotSelection) Option      { return func(c *Config) { c.PivotSelection = p } }
func WithRand(r *rand.Rand) Option                    { return func(c *Config) { c.Rand = r } }

func defaultConfig() Config {
	return Config{LeafSize: 40, ConstructionMethod: TopDownFarthest, PivotSelection: Centroid}
}

type nodeRecord struct {
	parent int
	isLeaf bool

	pivot  spatial.Vector
	radius float64
	size   int // count of points reachable through this node ("size_z")

	// branch
	left, right int

	// leaf
	ids []spatial.PointId
}

// Collection is a Ball Tree.
type Collection struct {
	store *spatial.VectorStore
	cfg   Config
	rnd   *rand.Rand
	nodes []nodeRecord
	root  int

	buildStats *spatial.BuildStats
	queryStats *spatial.QueryStats
	built      bool
}

func New(opts ...Option) *Collection {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Collection{cfg: cfg, buildStats: spatial.NewBuildStats(), queryStats: spatial.NewQueryStats()}
}

// Build constructs the tree. metric must be subadditive.
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if c.cfg.LeafSize < 2 {
		return spatial.NewError(spatial.KindInvalidArgument, "balltree.Build", spatial.ErrInvalidArgument)
	}
	if metric == nil || !metric.IsSubadditive() {
		return spatial.NewError(spatial.KindInvalidMetric, "balltree.Build", spatial.ErrInvalidMetric)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "balltree.Build", ctx.Err())
	default:
	}

	c.rnd = c.cfg.Rand
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(1))
	}

	start := time.Now()
	c.store = spatial.NewVectorStore(vectors, metric)
	c.nodes = nil
	c.built = false

	n := len(vectors)
	if n == 0 {
		c.built = true
		c.root = -1
		c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
		return nil
	}

	ids := make([]spatial.PointId, n)
	for i := range ids {
		ids[i] = spatial.PointId(i)
	}

	root, err := c.build(ctx, ids, -1, parallelBuild)
	if err != nil {
		c.nodes = nil
		return err
	}
	c.root = root
	c.built = true
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

func (c *Collection) newNode() int {
	c.nodes = append(c.nodes, nodeRecord{left: -1, right: -1})
	return len(c.nodes) - 1
}

func (c *Collection) makeLeaf(ids []spatial.PointId, parent int) int {
	pivot := c.computePivot(ids)
	radius := c.radiusOf(pivot, ids)
	idx := c.newNode()
	c.nodes[idx] = nodeRecord{parent: parent, isLeaf: true, ids: append([]spatial.PointId(nil), ids...), pivot: pivot, radius: radius, size: len(ids), left: -1, right: -1}
	return idx
}

func (c *Collection) build(ctx context.Context, ids []spatial.PointId, parent int, parallelBuild bool) (int, error) {
	select {
	case <-ctx.Done():
		return -1, spatial.NewFatalError(spatial.KindInterrupted, "balltree.build", ctx.Err())
	default:
	}
	if len(ids) <= c.cfg.LeafSize {
		return c.makeLeaf(ids, parent), nil
	}

	switch c.cfg.ConstructionMethod {
	case TopDownFarthest:
		return c.buildTopDownFarthest(ctx, ids, parent, parallelBuild)
	case KDStyle:
		return c.buildKDStyle(ctx, ids, parent, parallelBuild)
	case AnchorsHierarchy:
		return c.buildAnchorsHierarchy(ctx, ids, parent, parallelBuild)
	default:
		return c.buildTopDownFarthest(ctx, ids, parent, parallelBuild)
	}
}

func (c *Collection) buildTopDownFarthest(ctx context.Context, ids []spatial.PointId, parent int, parallelBuild bool) (int, error) {
	metric := c.store.GetDistanceMetric()
	pivot := c.computePivot(ids)

	f1 := ids[0]
	var maxD float64 = -1
	for _, id := range ids {
		d := metric.Dist(pivot, c.store.Get(id))
		if d > maxD {
			maxD = d
			f1 = id
		}
	}
	f1Vec := c.store.Get(f1)
	f2 := ids[0]
	maxD = -1
	for _, id := range ids {
		d := metric.Dist(f1Vec, c.store.Get(id))
		if d > maxD {
			maxD = d
			f2 = id
		}
	}
	if maxD == 0 {
		return c.makeLeaf(ids, parent), nil
	}
	f2Vec := c.store.Get(f2)

	var leftIDs, rightIDs []spatial.PointId
	for _, id := range ids {
		v := c.store.Get(id)
		if metric.Dist(f1Vec, v) <= metric.Dist(f2Vec, v) {
			leftIDs = append(leftIDs, id)
		} else {
			rightIDs = append(rightIDs, id)
		}
	}
	if len(leftIDs) == 0 || len(rightIDs) == 0 {
		return c.makeLeaf(ids, parent), nil
	}
	return c.finishBranch(ctx, ids, leftIDs, rightIDs, parent, parallelBuild)
}

func (c *Collection) buildKDStyle(ctx context.Context, ids []spatial.PointId, parent int, parallelBuild bool) (int, error) {
	dim := c.store.Get(ids[0]).Dim()
	points := make([][]float64, len(ids))
	for i, id := range ids {
		v := c.store.Get(id)
		row := make([]float64, dim)
		for d := 0; d < dim; d++ {
			row[d] = v.At(d)
		}
		points[i] = row
	}
	axis, spread := spreadOf(points, dim)
	if spread == 0 {
		return c.makeLeaf(ids, parent), nil
	}

	sorted := append([]spatial.PointId(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return c.store.Get(sorted[i]).At(axis) < c.store.Get(sorted[j]).At(axis)
	})
	median := len(sorted) / 2
	for median > 0 && c.store.Get(sorted[median-1]).At(axis) == c.store.Get(sorted[median]).At(axis) {
		median--
	}
	if median == 0 {
		median = len(sorted) / 2
	}
	leftIDs := sorted[:median]
	rightIDs := sorted[median:]
	return c.finishBranch(ctx, ids, leftIDs, rightIDs, parent, parallelBuild)
}

// spreadOf returns the axis with the greatest per-coordinate spread across
// points, via internal/stat's gonum-backed WidestAxis (the widest-variance
// axis tracks the widest min/max spread closely enough for a split choice,
// and saves a second pass over the same columns).
func spreadOf(points [][]float64, dim int) (axis int, spread float64) {
	bestAxis, _ := stat.WidestAxis(points, dim)
	min, max := points[0][bestAxis], points[0][bestAxis]
	for _, p := range points {
		if p[bestAxis] < min {
			min = p[bestAxis]
		}
		if p[bestAxis] > max {
			max = p[bestAxis]
		}
	}
	return bestAxis, max - min
}

func (c *Collection) finishBranch(ctx context.Context, ownerIDs, leftIDs, rightIDs []spatial.PointId, parent int, parallelBuild bool) (int, error) {
	idx := c.newNode()
	c.nodes[idx] = nodeRecord{parent: parent, isLeaf: false, left: -1, right: -1}

	buildLeft := func(ctx context.Context) error {
		li, err := c.build(ctx, leftIDs, idx, parallelBuild)
		if err != nil {
			return err
		}
		c.nodes[idx].left = li
		return nil
	}
	buildRight := func(ctx context.Context) error {
		ri, err := c.build(ctx, rightIDs, idx, parallelBuild)
		if err != nil {
			return err
		}
		c.nodes[idx].right = ri
		return nil
	}

	if parallelBuild {
		forked, err := parallel.Fork(ctx, len(ownerIDs), parallel.Threshold, buildLeft, buildRight)
		if forked {
			c.buildStats.RecordParallelFanout(2)
		}
		if err != nil {
			return -1, err
		}
	} else {
		if err := buildLeft(ctx); err != nil {
			return -1, err
		}
		if err := buildRight(ctx); err != nil {
			return -1, err
		}
	}

	pivot := c.computePivot(ownerIDs)
	radius := c.radiusOf(pivot, ownerIDs)
	c.nodes[idx].pivot = pivot
	c.nodes[idx].radius = radius
	c.nodes[idx].size = len(ownerIDs)
	return idx, nil
}

// buildAnchorsHierarchy implements the middle-out construction: Moore's
// anchors procedure picks K = ceil(sqrt(n)) anchors, each owns its nearest
// points, a subtree is built per anchor, and the K subtrees are
// agglomerated by greedy lowest-cost merge.
func (c *Collection) buildAnchorsHierarchy(ctx context.Context, ids []spatial.PointId, parent int, parallelBuild bool) (int, error) {
	metric := c.store.GetDistanceMetric()
	n := len(ids)
	K := int(math.Ceil(math.Sqrt(float64(n))))
	if K < 2 {
		return c.makeLeaf(ids, parent), nil
	}

	anchors := []spatial.PointId{ids[c.rnd.Intn(n)]}
	ownership := make([]int, n) // index into anchors, per ids[i]

	reassign := func() {
		for i, id := range ids {
			v := c.store.Get(id)
			best, bestD := 0, math.Inf(1)
			for ai, a := range anchors {
				d := metric.Dist(v, c.store.Get(a))
				if d < bestD {
					bestD = d
					best = ai
				}
			}
			ownership[i] = best
		}
	}
	reassign()

	for len(anchors) < K {
		// Anchor with the largest radius (farthest owned point distance).
		radii := make([]float64, len(anchors))
		farthestIdx := make([]int, len(anchors))
		for i, id := range ids {
			a := ownership[i]
			d := metric.Dist(c.store.Get(anchors[a]), c.store.Get(id))
			if d > radii[a] {
				radii[a] = d
				farthestIdx[a] = i
			}
		}
		worst := 0
		for a := 1; a < len(anchors); a++ {
			if radii[a] > radii[worst] {
				worst = a
			}
		}
		newAnchor := ids[farthestIdx[worst]]
		anchors = append(anchors, newAnchor)
		reassign()
	}

	type clusterT struct {
		nodeIdx int
		pivot   spatial.Vector
		radius  float64
		size    int
		alive   bool
	}
	ownedByAnchor := make([][]spatial.PointId, 0, len(anchors))
	for ai := range anchors {
		var owned []spatial.PointId
		for i, id := range ids {
			if ownership[i] == ai {
				owned = append(owned, id)
			}
		}
		if len(owned) > 0 {
			ownedByAnchor = append(ownedByAnchor, owned)
		}
	}
	if len(ownedByAnchor) == 1 {
		// Every point tied to one anchor (all identical): recursing would
		// see the same ids again, so stop here with a zero-radius leaf.
		return c.makeLeaf(ids, parent), nil
	}

	subRoots := make([]int, len(ownedByAnchor))
	if parallelBuild && len(ownedByAnchor) > 1 {
		tasks := make([]func(ctx context.Context) error, len(ownedByAnchor))
		for i, owned := range ownedByAnchor {
			i, owned := i, owned
			tasks[i] = func(ctx context.Context) error {
				sub, err := c.build(ctx, owned, -1, parallelBuild)
				if err != nil {
					return err
				}
				subRoots[i] = sub
				return nil
			}
		}
		if err := parallel.ForkN(ctx, 0, tasks...); err != nil {
			return -1, err
		}
		c.buildStats.RecordParallelFanout(int64(len(tasks)))
	} else {
		for i, owned := range ownedByAnchor {
			sub, err := c.build(ctx, owned, -1, parallelBuild)
			if err != nil {
				return -1, err
			}
			subRoots[i] = sub
		}
	}

	clusters := make([]clusterT, 0, len(ownedByAnchor))
	for _, sub := range subRoots {
		clusters = append(clusters, clusterT{
			nodeIdx: sub, pivot: c.nodes[sub].pivot, radius: c.nodes[sub].radius, size: c.nodes[sub].size, alive: true,
		})
	}
	if len(clusters) == 1 {
		c.nodes[clusters[0].nodeIdx].parent = parent
		return clusters[0].nodeIdx, nil
	}

	mergeCost := func(i, j int) (pivot spatial.Vector, radius float64) {
		ci, cj := clusters[i], clusters[j]
		if c.cfg.PivotSelection == Centroid {
			wi, wj := float64(ci.size), float64(cj.size)
			total := wi + wj
			dim := ci.pivot.Dim()
			merged := make([]float64, dim)
			for d := 0; d < dim; d++ {
				merged[d] = (ci.pivot.At(d)*wi + cj.pivot.At(d)*wj) / total
			}
			pivot = spatial.DenseVector(merged)
		} else if metric.Dist(ci.pivot, cj.pivot)+cj.radius <= ci.radius {
			pivot = ci.pivot
		} else {
			pivot = cj.pivot
		}
		radius = math.Max(metric.Dist(pivot, ci.pivot)+ci.radius, metric.Dist(pivot, cj.pivot)+cj.radius)
		return
	}

	pq := heap.NewPriorityQueue[[2]int]()
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			_, r := mergeCost(i, j)
			pq.Push([2]int{i, j}, r)
		}
	}

	active := len(clusters)
	for active > 1 {
		pair, _, ok := pq.Pop()
		if !ok {
			break
		}
		i, j := pair[0], pair[1]
		if i >= len(clusters) || j >= len(clusters) || !clusters[i].alive || !clusters[j].alive {
			continue
		}
		pivot, radius := mergeCost(i, j)
		branchIdx := c.newNode()
		c.nodes[branchIdx] = nodeRecord{parent: -1, isLeaf: false, left: clusters[i].nodeIdx, right: clusters[j].nodeIdx, pivot: pivot, radius: radius, size: clusters[i].size + clusters[j].size}
		c.nodes[clusters[i].nodeIdx].parent = branchIdx
		c.nodes[clusters[j].nodeIdx].parent = branchIdx

		clusters[i].alive = false
		clusters[j].alive = false
		newIdx := len(clusters)
		clusters = append(clusters, clusterT{nodeIdx: branchIdx, pivot: pivot, radius: radius, size: clusters[i].size + clusters[j].size, alive: true})
		for k := 0; k < newIdx; k++ {
			if clusters[k].alive {
				_, r := mergeCost(newIdx, k)
				pq.Push([2]int{newIdx, k}, r)
			}
		}
		active--
	}

	for k := range clusters {
		if clusters[k].alive {
			c.nodes[clusters[k].nodeIdx].parent = parent
			return clusters[k].nodeIdx, nil
		}
	}
	return -1, spatial.NewError(spatial.KindInvalidState, "balltree.buildAnchorsHierarchy", spatial.ErrInvalidState)
}

func (c *Collection) radiusOf(pivot spatial.Vector, ids []spatial.PointId) float64 {
	metric := c.store.GetDistanceMetric()
	var max float64
	for _, id := range ids {
		d := metric.Dist(pivot, c.store.Get(id))
		if d > max {
			max = d
		}
	}
	return max
}

func (c *Collection) computePivot(ids []spatial.PointId) spatial.Vector {
	switch c.cfg.PivotSelection {
	case Medoid:
		return c.store.Get(c.exactMedoid(ids))
	case MedoidApprox:
		if len(ids) < medoidApproxThreshold {
			return c.store.Get(c.exactMedoid(ids))
		}
		return c.store.Get(c.approxMedoid(ids))
	case RandomPivot:
		return c.store.Get(ids[c.rnd.Intn(len(ids))])
	default:
		return c.centroidOf(ids)
	}
}

func (c *Collection) centroidOf(ids []spatial.PointId) spatial.Vector {
	dim := c.store.Get(ids[0]).Dim()
	column := make([]float64, len(ids))
	out := make([]float64, dim)
	for d := 0; d < dim; d++ {
		for i, id := range ids {
			column[i] = c.store.Get(id).At(d)
		}
		out[d] = stat.Mean(column)
	}
	return spatial.DenseVector(out)
}

// exactMedoid scans all pairs, pruning a candidate's running sum as soon
// as it exceeds the current best.
func (c *Collection) exactMedoid(ids []spatial.PointId) spatial.PointId {
	metric := c.store.GetDistanceMetric()
	best := ids[0]
	bestSum := math.Inf(1)
	for _, cand := range ids {
		cv := c.store.Get(cand)
		sum := 0.0
		for _, other := range ids {
			sum += metric.Dist(cv, c.store.Get(other))
			if sum >= bestSum {
				break
			}
		}
		if sum < bestSum {
			bestSum = sum
			best = cand
		}
	}
	return best
}

// approxMedoid samples a fixed-size subset and returns the exact medoid of
// the sample.
func (c *Collection) approxMedoid(ids []spatial.PointId) spatial.PointId {
	const sampleSize = 256
	sample := ids
	if len(ids) > sampleSize {
		perm := c.rnd.Perm(len(ids))[:sampleSize]
		sample = make([]spatial.PointId, sampleSize)
		for i, p := range perm {
			sample[i] = ids[p]
		}
	}
	return c.exactMedoid(sample)
}

// Size returns the number of points held in the store.
func (c *Collection) Size() int { return c.store.Size() }

// Get returns the vector for id.
func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Insert descends by smaller pivot distance, expanding radii along the
// path, then rebuilds an overflowing leaf in place.
func (c *Collection) Insert(v spatial.Vector) error {
	if !c.built {
		return spatial.NewError(spatial.KindInvalidState, "balltree.Insert", spatial.ErrInvalidState)
	}
	id := c.store.Append(v)
	c.buildStats.RecordInsert()

	if c.root < 0 {
		c.root = c.makeLeaf([]spatial.PointId{id}, -1)
		return nil
	}

	metric := c.store.GetDistanceMetric()
	cur := c.root
	for {
		n := &c.nodes[cur]
		d := metric.Dist(n.pivot, v)
		if d > n.radius {
			n.radius = d
		}
		n.size++
		if n.isLeaf {
			n.ids = append(n.ids, id)
			if len(n.ids) > c.cfg.LeafSize*c.cfg.LeafSize {
				c.rebuildLeafInPlace(cur)
			}
			return nil
		}
		left, right := &c.nodes[n.left], &c.nodes[n.right]
		dl := metric.Dist(left.pivot, v)
		dr := metric.Dist(right.pivot, v)
		if dl <= dr {
			cur = n.left
		} else {
			cur = n.right
		}
	}
}

// rebuildLeafInPlace rebuilds an overflowing leaf's points into a fresh
// subtree and grafts it back into the same arena slot so the parent's
// child link remains valid.
func (c *Collection) rebuildLeafInPlace(leafIdx int) {
	ids := append([]spatial.PointId(nil), c.nodes[leafIdx].ids...)
	parent := c.nodes[leafIdx].parent

	newRoot, err := c.build(context.Background(), ids, parent, false)
	if err != nil {
		return
	}
	c.nodes[leafIdx] = c.nodes[newRoot]
	c.nodes[leafIdx].parent = parent
	if !c.nodes[leafIdx].isLeaf {
		c.nodes[c.nodes[leafIdx].left].parent = leafIdx
		c.nodes[c.nodes[leafIdx].right].parent = leafIdx
	}
	c.buildStats.RecordRebuild()
}

// Search returns the k nearest neighbours to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "balltree.Search", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "balltree.Search", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	bounded := heap.NewBounded[spatial.PointId](k)
	if c.root >= 0 {
		c.searchKNN(c.root, q, bounded)
	}
	items := bounded.Drain()
	ids := make([]spatial.PointId, len(items))
	dists := make([]float64, len(items))
	for i, it := range items {
		ids[i] = it.Value
		dists[i] = it.Priority
	}
	return ids, dists, nil
}

func (c *Collection) searchKNN(idx int, q spatial.Vector, bounded *heap.Bounded[spatial.PointId]) {
	n := &c.nodes[idx]
	metric := c.store.GetDistanceMetric()
	dPivot := metric.Dist(n.pivot, q)

	tau := math.Inf(1)
	if bounded.Full() {
		tau = bounded.WorstPriority()
	}
	if dPivot-n.radius >= tau {
		return
	}

	if n.isLeaf {
		for _, id := range n.ids {
			d := metric.Dist(q, c.store.Get(id))
			bounded.Push(id, d)
		}
		return
	}

	left, right := &c.nodes[n.left], &c.nodes[n.right]
	dl := metric.Dist(left.pivot, q)
	dr := metric.Dist(right.pivot, q)
	if dl <= dr {
		c.searchKNN(n.left, q, bounded)
		c.searchKNN(n.right, q, bounded)
	} else {
		c.searchKNN(n.right, q, bounded)
		c.searchKNN(n.left, q, bounded)
	}
}

// SearchRadius returns every point within rng of q.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "balltree.SearchRadius", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "balltree.SearchRadius", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	var ids []spatial.PointId
	var dists []float64
	if c.root >= 0 {
		c.searchRadius(c.root, q, rng, &ids, &dists)
	}

	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return dists[order[i]] < dists[order[j]] })
	outIDs := make([]spatial.PointId, len(ids))
	outDists := make([]float64, len(ids))
	for i, o := range order {
		outIDs[i] = ids[o]
		outDists[i] = dists[o]
	}
	return outIDs, outDists, nil
}

func (c *Collection) searchRadius(idx int, q spatial.Vector, rng float64, ids *[]spatial.PointId, dists *[]float64) {
	n := &c.nodes[idx]
	metric := c.store.GetDistanceMetric()
	dPivot := metric.Dist(n.pivot, q)
	if dPivot-n.radius > rng {
		return
	}
	if n.isLeaf {
		for _, id := range n.ids {
			d := metric.Dist(q, c.store.Get(id))
			if d <= rng {
				*ids = append(*ids, id)
				*dists = append(*dists, d)
			}
		}
		return
	}
	c.searchRadius(n.left, q, rng, ids, dists)
	c.searchRadius(n.right, q, rng, ids, dists)
}

func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
