// Package vptree implements the Vantage-Point Tree family (C4): VP, the
// incremental SVP variant, and VPMV (min-variance split), all as config
// variants of one package modeled as a configuration struct with an enum
// tag rather than separate types. The vantage-point/median-split shape and
// its container/heap-based k-NN queue follow Lyrichu/hh_vectordb's
// core/vp_tree.go; the functional-options/BuildStats idiom follows the
// rest of this module.
package vptree

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

// VPSelection selects how a branch picks its vantage point.
type VPSelection int

const (
	// Random uniformly samples one point from the subset as vp.
	Random VPSelection = iota
	// Sampling draws S candidates, ranks each by spread (mean absolute
	// deviation from median distance to a second sample), and picks the
	// highest-spread candidate.
	Sampling
)

// SplitPolicy selects how a branch picks its split index once distances to
// the vantage point are sorted.
type SplitPolicy int

const (
	// Median splits at floor(n/2).
	Median SplitPolicy = iota
	// MinVariance scans candidate split positions in
	// [maxLeafSize, n-maxLeafSize] and picks the one minimizing the
	// weighted sum of variances of the two halves (the VPMV variant).
	MinVariance
)

// Config configures VP-Tree construction.
type Config struct {
	MaxLeafSize int
	VPSelection VPSelection
	SampleSize  int
	SplitPolicy SplitPolicy
	// Incremental enables SVP behavior: Insert descends and expands
	// overflowing leaves in place instead of refusing with InvalidState.
	Incremental bool
	Rand        *rand.Rand
}

// Option configures a Collection before Build.
type Option func(*Config)

func WithMaxLeafSize(n int) Option    { return func(c *Config) { c.MaxLeafSize = n } }
func WithVPSelection(s VPSelection) Option { return func(c *Config) { c.VPSelection = s } }
func WithSampleSize(n int) Option     { return func(c *Config) { c.SampleSize = n } }
func WithSplitPolicy(p SplitPolicy) Option { return func(c *Config) { c.SplitPolicy = p } }
func WithIncremental(b bool) Option   { return func(c *Config) { c.Incremental = b } }
func WithRand(r *rand.Rand) Option    { return func(c *Config) { c.Rand = r } }

func defaultConfig() Config {
	return Config{MaxLeafSize: 8, VPSelection: Random, SampleSize: 10, SplitPolicy: Median}
}

type leafItem struct {
	id        spatial.PointId
	distToVP  float64 // distance to the nearest ancestor branch's vantage point
}

type nodeRecord struct {
	parent int
	isLeaf bool

	// branch fields
	vp                                       spatial.PointId
	leftLow, leftHigh, rightLow, rightHigh   float64
	left, right                              int

	// leaf fields
	items []leafItem
}

// Collection is a VP-Tree (or SVP, when Config.Incremental is set).
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

// New creates an unbuilt Collection.
func New(opts ...Option) *Collection {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Collection{
		cfg:        cfg,
		buildStats: spatial.NewBuildStats(),
		queryStats: spatial.NewQueryStats(),
	}
}

// Build constructs the tree. metric must be subadditive: the VP family
// needs the triangle inequality for its interval-pruning search.
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if c.cfg.MaxLeafSize < 5 {
		return spatial.NewError(spatial.KindInvalidArgument, "vptree.Build", spatial.ErrInvalidArgument)
	}
	if metric == nil || !metric.IsSubadditive() {
		return spatial.NewError(spatial.KindInvalidMetric, "vptree.Build", spatial.ErrInvalidMetric)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "vptree.Build", ctx.Err())
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

	root, err := c.build(ctx, ids, nil, -1, parallelBuild)
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

// build recurses a subset; distsToParentVP holds, for each id (parallel
// slice), its distance to the nearest ancestor branch's vantage point —
// nil at the root, where no such ancestor exists yet.
func (c *Collection) build(ctx context.Context, ids []spatial.PointId, distsToParentVP []float64, parent int, parallelBuild bool) (int, error) {
	select {
	case <-ctx.Done():
		return -1, spatial.NewFatalError(spatial.KindInterrupted, "vptree.build", ctx.Err())
	default:
	}
	if len(ids) <= c.cfg.MaxLeafSize {
		items := make([]leafItem, len(ids))
		for i, id := range ids {
			d := 0.0
			if distsToParentVP != nil {
				d = distsToParentVP[i]
			}
			items[i] = leafItem{id: id, distToVP: d}
		}
		idx := c.newNode()
		c.nodes[idx] = nodeRecord{parent: parent, isLeaf: true, items: items, left: -1, right: -1}
		return idx, nil
	}

	vpPos := c.selectVP(ids)
	vpID := ids[vpPos]
	vpVec := c.store.Get(vpID)
	metric := c.store.GetDistanceMetric()

	others := make([]spatial.PointId, 0, len(ids)-1)
	dists := make([]float64, 0, len(ids)-1)
	for i, id := range ids {
		if i == vpPos {
			continue
		}
		others = append(others, id)
		dists = append(dists, metric.Dist(vpVec, c.store.Get(id)))
	}

	sort.Sort(byDist{others, dists})

	s := c.chooseSplit(dists)

	leftIDs, leftDists := others[:s], dists[:s]
	rightIDs, rightDists := others[s:], dists[s:]

	var leftLow, leftHigh, rightLow, rightHigh float64
	if len(leftDists) > 0 {
		leftLow, leftHigh = minMax(leftDists)
	}
	if len(rightDists) > 0 {
		rightLow, rightHigh = minMax(rightDists)
	}

	idx := c.newNode()
	c.nodes[idx] = nodeRecord{
		parent: parent, isLeaf: false, vp: vpID,
		leftLow: leftLow, leftHigh: leftHigh, rightLow: rightLow, rightHigh: rightHigh,
		left: -1, right: -1,
	}

	buildLeft := func(ctx context.Context) error {
		li, err := c.build(ctx, leftIDs, leftDists, idx, parallelBuild)
		if err != nil {
			return err
		}
		c.nodes[idx].left = li
		return nil
	}
	buildRight := func(ctx context.Context) error {
		ri, err := c.build(ctx, rightIDs, rightDists, idx, parallelBuild)
		if err != nil {
			return err
		}
		c.nodes[idx].right = ri
		return nil
	}

	if parallelBuild {
		forked, err := parallel.Fork(ctx, len(ids), parallel.Threshold, buildLeft, buildRight)
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
	return idx, nil
}

type byDist struct {
	ids   []spatial.PointId
	dists []float64
}

func (b byDist) Len() int      { return len(b.ids) }
func (b byDist) Swap(i, j int) { b.ids[i], b.ids[j] = b.ids[j], b.ids[i]; b.dists[i], b.dists[j] = b.dists[j], b.dists[i] }
func (b byDist) Less(i, j int) bool { return b.dists[i] < b.dists[j] }

func minMax(xs []float64) (min, max float64) {
	min, max = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return
}

func (c *Collection) selectVP(ids []spatial.PointId) int {
	if c.cfg.VPSelection == Random || len(ids) <= 2 {
		return c.rnd.Intn(len(ids))
	}
	metric := c.store.GetDistanceMetric()
	s := c.cfg.SampleSize
	if s <= 0 || s > len(ids) {
		s = len(ids)
	}
	candidates := sampleIndices(c.rnd, len(ids), s)
	secondSample := sampleIndices(c.rnd, len(ids), s)

	bestPos, bestSpread := candidates[0], -1.0
	for _, pos := range candidates {
		cv := c.store.Get(ids[pos])
		ds := make([]float64, 0, len(secondSample))
		for _, sp := range secondSample {
			if sp == pos {
				continue
			}
			ds = append(ds, metric.Dist(cv, c.store.Get(ids[sp])))
		}
		if len(ds) == 0 {
			continue
		}
		med := stat.Median(ds)
		var spread float64
		for _, d := range ds {
			spread += math.Abs(d - med)
		}
		spread /= float64(len(ds))
		if spread > bestSpread {
			bestSpread = spread
			bestPos = pos
		}
	}
	return bestPos
}

func sampleIndices(r *rand.Rand, n, k int) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	perm := r.Perm(n)
	return perm[:k]
}

func (c *Collection) chooseSplit(dists []float64) int {
	n := len(dists)
	if c.cfg.SplitPolicy == Median || n < 2*c.cfg.MaxLeafSize {
		s := n / 2
		if s < 1 {
			s = 1
		}
		if s > n-1 {
			s = n - 1
		}
		return s
	}
	lo, hi := c.cfg.MaxLeafSize, n-c.cfg.MaxLeafSize
	if lo < 1 {
		lo = 1
	}
	if hi > n-1 {
		hi = n - 1
	}
	if lo > hi {
		return n / 2
	}
	bestS, bestCost := lo, math.Inf(1)
	for s := lo; s <= hi; s++ {
		left, right := dists[:s], dists[s:]
		cost := float64(len(left))*stat.Variance(left) + float64(len(right))*stat.Variance(right)
		if cost < bestCost {
			bestCost = cost
			bestS = s
		}
	}
	return bestS
}

// Insert adds a point incrementally — only legal when Config.Incremental
// is set (the SVP variant); otherwise it returns InvalidState.
func (c *Collection) Insert(v spatial.Vector) error {
	if !c.cfg.Incremental {
		return spatial.NewError(spatial.KindInvalidState, "vptree.Insert", spatial.ErrInvalidState)
	}
	if !c.built {
		return spatial.NewError(spatial.KindInvalidState, "vptree.Insert", spatial.ErrInvalidState)
	}
	id := c.store.Append(v)
	metric := c.store.GetDistanceMetric()

	if c.root < 0 {
		idx := c.newNode()
		c.nodes[idx] = nodeRecord{parent: -1, isLeaf: true, items: []leafItem{{id: id, distToVP: 0}}, left: -1, right: -1}
		c.root = idx
		c.buildStats.RecordInsert()
		return nil
	}

	cur := c.root
	parentX := 0.0
	haveParentX := false
	for {
		n := &c.nodes[cur]
		if n.isLeaf {
			d := 0.0
			if haveParentX {
				d = parentX
			}
			n.items = append(n.items, leafItem{id: id, distToVP: d})
			if len(n.items) > c.cfg.MaxLeafSize*c.cfg.MaxLeafSize {
				c.rebuildLeafInPlace(cur)
			}
			c.buildStats.RecordInsert()
			return nil
		}
		x := metric.Dist(v, c.store.Get(n.vp))
		middle := (n.leftHigh + n.rightLow) / 2
		if x <= middle {
			if x < n.leftLow {
				n.leftLow = x
			}
			if x > n.leftHigh {
				n.leftHigh = x
			}
			cur = n.left
		} else {
			if x < n.rightLow {
				n.rightLow = x
			}
			if x > n.rightHigh {
				n.rightHigh = x
			}
			cur = n.right
		}
		parentX = x
		haveParentX = true
	}
}

// rebuildLeafInPlace expands an overflowing leaf into a small VP subtree,
// grafting it back at the same arena index so the parent's child link
// stays valid.
func (c *Collection) rebuildLeafInPlace(leafIdx int) {
	leaf := c.nodes[leafIdx]
	ids := make([]spatial.PointId, len(leaf.items))
	dists := make([]float64, len(leaf.items))
	for i, it := range leaf.items {
		ids[i] = it.id
		dists[i] = it.distToVP
	}
	newRoot, err := c.build(context.Background(), ids, dists, leaf.parent, false)
	if err != nil {
		return
	}
	c.nodes[leafIdx] = c.nodes[newRoot]
	c.nodes[leafIdx].parent = leaf.parent
	if !c.nodes[leafIdx].isLeaf {
		c.nodes[c.nodes[leafIdx].left].parent = leafIdx
		c.nodes[c.nodes[leafIdx].right].parent = leafIdx
	}
	c.buildStats.RecordRebuild()
}

func (c *Collection) Size() int {
	if c.store == nil {
		return 0
	}
	return c.store.Size()
}

func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

func currentTau(bounded *heap.Bounded[spatial.PointId]) float64 {
	if bounded.Full() {
		return bounded.WorstPriority()
	}
	return math.Inf(1)
}

func intervalIntersects(low, high, x, tau float64) bool {
	return high >= x-tau && low <= x+tau
}

// Search returns the k nearest points to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "vptree.Search", spatial.ErrInvalidState)
	}
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "vptree.Search", spatial.ErrInvalidArgument)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if c.store.Size() == 0 || c.root < 0 {
		return nil, nil, nil
	}
	metric := c.store.GetDistanceMetric()
	qInfo := metric.BuildQueryInfo(q)
	bounded := heap.NewBounded[spatial.PointId](k)
	c.searchKNN(c.root, q, qInfo, math.NaN(), bounded)
	items := bounded.Drain()
	ids := make([]spatial.PointId, len(items))
	dists := make([]float64, len(items))
	for i, it := range items {
		ids[i] = it.Value
		dists[i] = it.Priority
	}
	return ids, dists, nil
}

func (c *Collection) searchKNN(idx int, q spatial.Vector, qInfo spatial.QueryInfo, parentX float64, bounded *heap.Bounded[spatial.PointId]) {
	n := &c.nodes[idx]
	if n.isLeaf {
		for _, item := range n.items {
			if !math.IsNaN(parentX) {
				tau := currentTau(bounded)
				if !intervalIntersects(item.distToVP, item.distToVP, parentX, tau) {
					continue
				}
			}
			d := c.store.DistToQuery(item.id, q, qInfo)
			bounded.Push(item.id, d)
		}
		return
	}

	x := c.store.DistToQuery(n.vp, q, qInfo)
	bounded.Push(n.vp, x)

	middle := (n.leftHigh + n.rightLow) / 2
	nearIsLeft := x <= middle
	nearIdx, farIdx := n.right, n.left
	nearLow, nearHigh, farLow, farHigh := n.rightLow, n.rightHigh, n.leftLow, n.leftHigh
	if nearIsLeft {
		nearIdx, farIdx = n.left, n.right
		nearLow, nearHigh, farLow, farHigh = n.leftLow, n.leftHigh, n.rightLow, n.rightHigh
	}

	tau := currentTau(bounded)
	if intervalIntersects(nearLow, nearHigh, x, tau) {
		c.searchKNN(nearIdx, q, qInfo, x, bounded)
	}
	tau = currentTau(bounded)
	if intervalIntersects(farLow, farHigh, x, tau) {
		c.searchKNN(farIdx, q, qInfo, x, bounded)
	}
}

// SearchRadius returns every point within range of q.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "vptree.SearchRadius", spatial.ErrInvalidState)
	}
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "vptree.SearchRadius", spatial.ErrInvalidArgument)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if c.store.Size() == 0 || c.root < 0 {
		return nil, nil, nil
	}
	metric := c.store.GetDistanceMetric()
	qInfo := metric.BuildQueryInfo(q)

	var ids []spatial.PointId
	var dists []float64
	c.searchRadius(c.root, q, qInfo, rng, math.NaN(), &ids, &dists)

	type pair struct {
		id spatial.PointId
		d  float64
	}
	pairs := make([]pair, len(ids))
	for i := range ids {
		pairs[i] = pair{ids[i], dists[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].d < pairs[j].d })
	for i := range pairs {
		ids[i], dists[i] = pairs[i].id, pairs[i].d
	}
	return ids, dists, nil
}

func (c *Collection) searchRadius(idx int, q spatial.Vector, qInfo spatial.QueryInfo, rng, parentX float64, ids *[]spatial.PointId, dists *[]float64) {
	n := &c.nodes[idx]
	if n.isLeaf {
		for _, item := range n.items {
			if !math.IsNaN(parentX) {
				if !intervalIntersects(item.distToVP, item.distToVP, parentX, rng) {
					continue
				}
			}
			d := c.store.DistToQuery(item.id, q, qInfo)
			if d <= rng {
				*ids = append(*ids, item.id)
				*dists = append(*dists, d)
			}
		}
		return
	}
	x := c.store.DistToQuery(n.vp, q, qInfo)
	if x <= rng {
		*ids = append(*ids, n.vp)
		*dists = append(*dists, x)
	}
	if intervalIntersects(n.leftLow, n.leftHigh, x, rng) {
		c.searchRadius(n.left, q, qInfo, rng, x, ids, dists)
	}
	if intervalIntersects(n.rightLow, n.rightHigh, x, rng) {
		c.searchRadius(n.right, q, qInfo, rng, x, ids, dists)
	}
}

func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
