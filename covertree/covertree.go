// Package covertree implements Cover Tree (C6): a level-indexed covering
// tree built exclusively by incremental insertion, with covdist/sepdist
// invariants maintained at base 1.3. Each node owns exactly one point,
// the same single-point-owning node shape vptree uses, generalized to
// carry an explicit level; covdist/sepdist values are served from a
// process-wide memoized pow table rather than recomputed per call, and
// LooseBounds trades an exact maxdist for covdist(level+1).
package covertree

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
	pkgerrors "github.com/pkg/errors"
)

const defaultBase = 1.3

// covdistTableHalf is the half-width of the memoized pow table: levels in
// [-covdistTableHalf, covdistTableHalf-1] are served from the table;
// outside that range falls back to math.Pow.
const covdistTableHalf = 256

var (
	covdistTable     [2 * covdistTableHalf]float64
	covdistTableOnce sync.Once
)

func initCovdistTable() {
	for i := range covdistTable {
		level := i - covdistTableHalf
		covdistTable[i] = math.Pow(defaultBase, float64(level))
	}
}

// powBase returns base^level, served from a process-wide memoized table
// when level falls within its range.
func powBase(level int) float64 {
	covdistTableOnce.Do(initCovdistTable)
	idx := level + covdistTableHalf
	if idx >= 0 && idx < len(covdistTable) {
		return covdistTable[idx]
	}
	return math.Pow(defaultBase, float64(level))
}

func covdist(level int) float64 { return powBase(level) }
func sepdist(level int) float64 { return powBase(level - 1) }

// Config configures a Cover Tree.
type Config struct {
	// Base is fixed at 1.3; exposed for documentation, not meant to be
	// overridden by Option.
	Base        float64
	LooseBounds bool
	Rand        *rand.Rand
}

type Option func(*Config)

// WithLooseBounds sets maxdist(c) := covdist(c.level+1) instead of lazily
// computing and invalidating it on structural change.
func WithLooseBounds(loose bool) Option { return func(c *Config) { c.LooseBounds = loose } }

func WithRand(r *rand.Rand) Option { return func(c *Config) { c.Rand = r } }

func defaultConfig() Config { return Config{Base: defaultBase, LooseBounds: false} }

type nodeRecord struct {
	parent   int
	point    spatial.PointId
	level    int
	children []int

	maxdist      float64
	maxdistValid bool
}

// Collection is a Cover Tree.
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
	return &Collection{cfg: cfg, root: -1, buildStats: spatial.NewBuildStats(), queryStats: spatial.NewQueryStats()}
}

// Build constructs the tree by incremental insertion in a shuffled,
// deterministically-seeded order. metric must satisfy the triangle inequality.
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if metric == nil || !metric.IsValidMetric() {
		return spatial.NewError(spatial.KindInvalidMetric, "covertree.Build", spatial.ErrInvalidMetric)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "covertree.Build", ctx.Err())
	default:
	}

	c.rnd = c.cfg.Rand
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(1))
	}

	start := time.Now()
	c.store = spatial.NewVectorStore(nil, metric)
	c.nodes = nil
	c.root = -1
	c.built = false

	order := c.rnd.Perm(len(vectors))
	for _, i := range order {
		id := c.store.Append(vectors[i])
		if err := c.insert(id); err != nil {
			return err
		}
	}
	c.built = true

	if !c.cfg.LooseBounds {
		c.precomputeMaxdist()
	}
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

func (c *Collection) newNode(point spatial.PointId, level, parent int) int {
	c.nodes = append(c.nodes, nodeRecord{parent: parent, point: point, level: level})
	idx := len(c.nodes) - 1
	if parent >= 0 {
		c.nodes[parent].children = append(c.nodes[parent].children, idx)
	}
	return idx
}

// insert is the only construction path. Loop guard bounds the
// promote-above-root climb to avoid runaway recursion on pathological
// inputs.
const maxPromoteIterations = 10000

func (c *Collection) insert(x spatial.PointId) error {
	if c.root < 0 {
		c.root = c.newNode(x, 0, -1)
		return nil
	}

	metric := c.store.GetDistanceMetric()
	xVec := c.store.Get(x)
	rootVec := c.store.Get(c.nodes[c.root].point)
	d := metric.Dist(rootVec, xVec)

	if d > covdist(c.nodes[c.root].level) {
		iterations := 0
		for d > 2*covdist(c.nodes[c.root].level) {
			iterations++
			if iterations > maxPromoteIterations {
				return spatial.NewFatalError(spatial.KindInvalidState, "covertree.insert",
					pkgerrors.New("promote-above-root loop exceeded guard"))
			}
			leaf := c.detachArbitraryLeaf(c.root)
			if leaf < 0 {
				// Root has no detachable descendant left; stop climbing.
				break
			}
			oldRootLevel := c.nodes[c.root].level
			c.nodes[leaf].parent = -1
			c.nodes[leaf].level = oldRootLevel + 1
			c.nodes[leaf].children = append(c.nodes[leaf].children, c.root)
			c.nodes[c.root].parent = leaf
			c.root = leaf
			rootVec = c.store.Get(c.nodes[c.root].point)
			d = metric.Dist(rootVec, xVec)
		}
		newRoot := c.newNode(x, c.nodes[c.root].level+1, -1)
		c.nodes[c.root].parent = newRoot
		c.nodes[newRoot].children = append(c.nodes[newRoot].children, c.root)
		c.root = newRoot
		c.invalidateAncestors(newRoot)
		return nil
	}

	return c.descendInsert(c.root, x)
}

// descendInsert scans p's children in insertion order; the first child q
// with d(q,x) <= covdist(q.level) becomes the recursion target, else x is
// added as a new child of p at level p.level-1.
func (c *Collection) descendInsert(p int, x spatial.PointId) error {
	metric := c.store.GetDistanceMetric()
	xVec := c.store.Get(x)
	for _, childIdx := range c.nodes[p].children {
		childVec := c.store.Get(c.nodes[childIdx].point)
		if metric.Dist(childVec, xVec) <= covdist(c.nodes[childIdx].level) {
			c.invalidateAncestors(p)
			return c.descendInsert(childIdx, x)
		}
	}
	c.newNode(x, c.nodes[p].level-1, p)
	c.invalidateAncestors(p)
	return nil
}

func (c *Collection) detachArbitraryLeaf(root int) int {
	cur := root
	for len(c.nodes[cur].children) > 0 {
		cur = c.nodes[cur].children[0]
	}
	if cur == root {
		return -1
	}
	parent := c.nodes[cur].parent
	siblings := c.nodes[parent].children
	for i, s := range siblings {
		if s == cur {
			c.nodes[parent].children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	c.nodes[cur].parent = -1
	return cur
}

func (c *Collection) invalidateAncestors(idx int) {
	if c.cfg.LooseBounds {
		return
	}
	for idx >= 0 {
		c.nodes[idx].maxdistValid = false
		idx = c.nodes[idx].parent
	}
}

func (c *Collection) precomputeMaxdist() {
	if c.root >= 0 {
		c.maxdistOf(c.root)
	}
}

// maxdistOf computes (or, outside loose-bounds mode, lazily caches) the
// upper bound on the distance from idx's point to any descendant's point.
func (c *Collection) maxdistOf(idx int) float64 {
	if c.cfg.LooseBounds {
		return covdist(c.nodes[idx].level + 1)
	}
	n := &c.nodes[idx]
	if n.maxdistValid {
		return n.maxdist
	}
	metric := c.store.GetDistanceMetric()
	selfVec := c.store.Get(n.point)
	var max float64
	for _, ch := range n.children {
		childVec := c.store.Get(c.nodes[ch].point)
		d := metric.Dist(selfVec, childVec) + c.maxdistOf(ch)
		if d > max {
			max = d
		}
	}
	n.maxdist = max
	n.maxdistValid = true
	return max
}

func (c *Collection) Size() int { return c.store.Size() }

func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Insert adds a new point via the same incremental path used at build
// time.
func (c *Collection) Insert(v spatial.Vector) error {
	if !c.built {
		return spatial.NewError(spatial.KindInvalidState, "covertree.Insert", spatial.ErrInvalidState)
	}
	id := c.store.Append(v)
	c.buildStats.RecordInsert()
	return c.insert(id)
}

type childDist struct {
	idx  int
	dist float64
}

// Search returns the k nearest neighbours to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "covertree.Search", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "covertree.Search", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	bounded := heap.NewBounded[spatial.PointId](k)
	if c.root >= 0 {
		c.searchKNN(c.root, q, k, bounded)
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

func (c *Collection) searchKNN(idx int, q spatial.Vector, k int, bounded *heap.Bounded[spatial.PointId]) {
	n := &c.nodes[idx]
	metric := c.store.GetDistanceMetric()
	x := metric.Dist(c.store.Get(n.point), q)
	bounded.Push(n.point, x)

	if len(n.children) == 0 {
		return
	}
	childDists := make([]childDist, len(n.children))
	for i, ch := range n.children {
		d := metric.Dist(c.store.Get(c.nodes[ch].point), q)
		childDists[i] = childDist{idx: ch, dist: d}
	}
	sort.Slice(childDists, func(i, j int) bool { return childDists[i].dist < childDists[j].dist })

	for _, cd := range childDists {
		if bounded.Len() < k || bounded.WorstPriority() > cd.dist-c.maxdistOf(cd.idx) {
			c.searchKNN(cd.idx, q, k, bounded)
		}
	}
}

// SearchRadius returns every point within rng of q.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "covertree.SearchRadius", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "covertree.SearchRadius", spatial.ErrInvalidState)
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
	x := metric.Dist(c.store.Get(n.point), q)
	if x <= rng {
		*ids = append(*ids, n.point)
		*dists = append(*dists, x)
	}
	for _, ch := range n.children {
		d := metric.Dist(c.store.Get(c.nodes[ch].point), q)
		if d-c.maxdistOf(ch) <= rng {
			c.searchRadius(ch, q, rng, ids, dists)
		}
	}
}

func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
