// Package kdtree implements the KD-Tree family (C3): axis-aligned splits
// over a PNormMetric, using the same functional-options configuration and
// k-NN/radius search shape as the rest of this module, as a recursive arena
// tree with index-based parent/child links rather than pointer-heavy nodes.
package kdtree

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
	"github.com/coredex/spatial/internal/parallel"
	"github.com/coredex/spatial/internal/stat"
)

// PivotSelection selects how a branch picks its split axis.
type PivotSelection int

const (
	// Incremental cycles axis = depth mod dim.
	Incremental PivotSelection = iota
	// Variance picks the axis of greatest variance over the subset,
	// falling back to Incremental when every axis has non-finite
	// variance.
	Variance
)

// Config configures KD-Tree construction.
type Config struct {
	LeafNodeSize   int
	PivotSelection PivotSelection
}

// Option configures a Collection before Build using the functional-options
// idiom shared by every family in this module.
type Option func(*Config)

// WithLeafNodeSize sets the leaf threshold (default 15).
func WithLeafNodeSize(n int) Option {
	return func(c *Config) { c.LeafNodeSize = n }
}

// WithPivotSelection sets the axis-selection policy.
func WithPivotSelection(p PivotSelection) Option {
	return func(c *Config) { c.PivotSelection = p }
}

func defaultConfig() Config {
	return Config{LeafNodeSize: 15, PivotSelection: Incremental}
}

type nodeRecord struct {
	parent int

	isLeaf bool

	// branch fields
	axis       int
	splitValue float64
	left       int
	right      int

	// leaf fields
	ids []spatial.PointId

	// bounds, filled in a post-build pass
	pivot              spatial.Vector
	furthestPoint      float64
	furthestDescendant float64
}

// Collection is a KD-Tree built once from a full vector list.
type Collection struct {
	store *spatial.VectorStore
	cfg   Config
	nodes []nodeRecord
	root  int

	dim int

	buildStats *spatial.BuildStats
	queryStats *spatial.QueryStats
	built      bool
}

// New creates an unbuilt Collection with the given options applied over the
// defaults (leaf size 15, Incremental axis selection).
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

// Build constructs the tree from vectors under metric. metric must
// implement spatial.PNormMetric; any other metric is refused with
// spatial.ErrInvalidMetric.
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if c.cfg.LeafNodeSize < 1 {
		return spatial.NewError(spatial.KindInvalidArgument, "kdtree.Build", spatial.ErrInvalidArgument)
	}
	pnorm, ok := metric.(spatial.PNormMetric)
	if !ok {
		return spatial.NewError(spatial.KindInvalidMetric, "kdtree.Build", spatial.ErrInvalidMetric)
	}
	_ = pnorm

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
	c.dim = vectors[0].Dim()

	ids := make([]spatial.PointId, n)
	for i := range ids {
		ids[i] = spatial.PointId(i)
	}

	root, err := c.build(ctx, ids, 0, -1, parallelBuild)
	if err != nil {
		c.nodes = nil
		c.built = false
		return err
	}
	c.root = root
	c.computeBounds(c.root)
	c.built = true
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

func (c *Collection) newNode() int {
	c.nodes = append(c.nodes, nodeRecord{left: -1, right: -1})
	return len(c.nodes) - 1
}

func (c *Collection) build(ctx context.Context, ids []spatial.PointId, depth int, parent int, parallelBuild bool) (int, error) {
	select {
	case <-ctx.Done():
		return -1, spatial.NewFatalError(spatial.KindInterrupted, "kdtree.build", ctx.Err())
	default:
	}

	if len(ids) <= c.cfg.LeafNodeSize {
		idx := c.newNode()
		c.nodes[idx] = nodeRecord{parent: parent, isLeaf: true, ids: append([]spatial.PointId(nil), ids...), left: -1, right: -1}
		return idx, nil
	}

	axis := c.chooseAxis(ids, depth)

	sort.Slice(ids, func(i, j int) bool {
		return c.store.Get(ids[i]).At(axis) < c.store.Get(ids[j]).At(axis)
	})

	median := len(ids) / 2
	for median+1 < len(ids) && c.store.Get(ids[median]).At(axis) == c.store.Get(ids[median+1]).At(axis) {
		median++
	}
	if median == len(ids)-1 {
		// All-equal subset on this axis (or ties exhausted every slot):
		// produce a leaf rather than an empty-right-side branch.
		idx := c.newNode()
		c.nodes[idx] = nodeRecord{parent: parent, isLeaf: true, ids: append([]spatial.PointId(nil), ids...), left: -1, right: -1}
		return idx, nil
	}

	splitValue := c.store.Get(ids[median]).At(axis)
	leftIDs := ids[:median+1]
	rightIDs := ids[median+1:]

	idx := c.newNode()
	c.nodes[idx] = nodeRecord{parent: parent, isLeaf: false, axis: axis, splitValue: splitValue, left: -1, right: -1}

	buildLeft := func(ctx context.Context) error {
		li, err := c.build(ctx, leftIDs, depth+1, idx, parallelBuild)
		if err != nil {
			return err
		}
		c.nodes[idx].left = li
		return nil
	}
	buildRight := func(ctx context.Context) error {
		ri, err := c.build(ctx, rightIDs, depth+1, idx, parallelBuild)
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

func (c *Collection) chooseAxis(ids []spatial.PointId, depth int) int {
	if c.cfg.PivotSelection == Incremental {
		return depth % c.dim
	}
	points := make([][]float64, len(ids))
	for i, id := range ids {
		v := c.store.Get(id)
		row := make([]float64, c.dim)
		for d := 0; d < c.dim; d++ {
			row[d] = v.At(d)
		}
		points[i] = row
	}
	axis, variance := stat.WidestAxis(points, c.dim)
	if math.IsNaN(variance) || math.IsInf(variance, 0) {
		return depth % c.dim
	}
	return axis
}

// computeBounds fills pivot/furthestPoint/furthestDescendant bottom-up so
// the tree can satisfy spatial.IndexNode for dual-tree traversal (C9).
func (c *Collection) computeBounds(idx int) {
	if idx < 0 {
		return
	}
	n := &c.nodes[idx]
	metric := c.store.GetDistanceMetric()

	if n.isLeaf {
		if len(n.ids) == 0 {
			n.pivot = spatial.DenseVector(make([]float64, c.dim))
			return
		}
		centroid := make([]float64, c.dim)
		for _, id := range n.ids {
			v := c.store.Get(id)
			for d := 0; d < c.dim; d++ {
				centroid[d] += v.At(d)
			}
		}
		for d := range centroid {
			centroid[d] /= float64(len(n.ids))
		}
		pivot := spatial.DenseVector(centroid)
		n.pivot = pivot
		var maxD float64
		for _, id := range n.ids {
			d := metric.Dist(pivot, c.store.Get(id))
			if d > maxD {
				maxD = d
			}
		}
		n.furthestPoint = maxD
		n.furthestDescendant = maxD
		return
	}

	c.computeBounds(n.left)
	c.computeBounds(n.right)
	left := &c.nodes[n.left]
	right := &c.nodes[n.right]

	centroid := make([]float64, c.dim)
	lp, rp := left.pivot, right.pivot
	for d := 0; d < c.dim; d++ {
		centroid[d] = (lp.At(d) + rp.At(d)) / 2
	}
	pivot := spatial.DenseVector(centroid)
	n.pivot = pivot
	n.furthestPoint = 0
	dl := metric.Dist(pivot, lp) + left.furthestDescendant
	dr := metric.Dist(pivot, rp) + right.furthestDescendant
	n.furthestDescendant = math.Max(dl, dr)
}

// Insert is not supported: KD-Tree is a non-incremental family.
func (c *Collection) Insert(v spatial.Vector) error {
	return spatial.NewError(spatial.KindInvalidState, "kdtree.Insert", spatial.ErrInvalidState)
}

// Size returns the number of stored vectors.
func (c *Collection) Size() int {
	if c.store == nil {
		return 0
	}
	return c.store.Size()
}

// Get returns the vector for id.
func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

// GetDistanceMetric returns the active metric.
func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

// SetDistanceMetric swaps the metric without restructuring the tree;
// callers that change metrics on a live tree are expected to rebuild.
func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Search returns the k nearest points to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "kdtree.Search", spatial.ErrInvalidState)
	}
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "kdtree.Search", spatial.ErrInvalidArgument)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if c.store.Size() == 0 || c.root < 0 {
		return nil, nil, nil
	}
	metric := c.store.GetDistanceMetric()
	qInfo := metric.BuildQueryInfo(q)
	bounded := heap.NewBounded[spatial.PointId](k)
	c.searchKNN(c.root, q, qInfo, bounded)
	items := bounded.Drain()
	ids := make([]spatial.PointId, len(items))
	dists := make([]float64, len(items))
	for i, it := range items {
		ids[i] = it.Value
		dists[i] = it.Priority
	}
	return ids, dists, nil
}

func (c *Collection) searchKNN(idx int, q spatial.Vector, qInfo spatial.QueryInfo, bounded *heap.Bounded[spatial.PointId]) {
	n := &c.nodes[idx]
	if n.isLeaf {
		for _, id := range n.ids {
			d := c.store.DistToQuery(id, q, qInfo)
			bounded.Push(id, d)
		}
		return
	}
	targetS := q.At(n.axis)
	diff := targetS - n.splitValue
	var near, far int
	if diff <= 0 {
		near, far = n.left, n.right
	} else {
		near, far = n.right, n.left
	}
	c.searchKNN(near, q, qInfo, bounded)

	tau := math.Inf(1)
	if bounded.Full() {
		tau = bounded.WorstPriority()
	}
	if tau > math.Abs(diff) {
		c.searchKNN(far, q, qInfo, bounded)
	}
}

// SearchRadius returns every point within range of q.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "kdtree.SearchRadius", spatial.ErrInvalidState)
	}
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "kdtree.SearchRadius", spatial.ErrInvalidArgument)
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
	c.searchRadius(c.root, q, qInfo, rng, &ids, &dists)

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

func (c *Collection) searchRadius(idx int, q spatial.Vector, qInfo spatial.QueryInfo, rng float64, ids *[]spatial.PointId, dists *[]float64) {
	n := &c.nodes[idx]
	if n.isLeaf {
		for _, id := range n.ids {
			d := c.store.DistToQuery(id, q, qInfo)
			if d <= rng {
				*ids = append(*ids, id)
				*dists = append(*dists, d)
			}
		}
		return
	}
	targetS := q.At(n.axis)
	diff := targetS - n.splitValue
	var near, far int
	if diff <= 0 {
		near, far = n.left, n.right
	} else {
		near, far = n.right, n.left
	}
	c.searchRadius(near, q, qInfo, rng, ids, dists)
	if rng > math.Abs(diff) {
		c.searchRadius(far, q, qInfo, rng, ids, dists)
	}
}

// BuildStatsSnapshot exposes observability state.
func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }

// QueryStatsSnapshot exposes observability state.
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
