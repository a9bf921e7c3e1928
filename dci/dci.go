// Package dci implements DCI (C8): composite indices of random 1-D
// projections, searched by an outward-walking two-sided iterator per
// simple index and an m-vote admission rule per composite index.
// Euclidean-only. Uses the same seeded-*rand.Rand idiom as vptree/
// balltree's WithRand for the projection-direction draws, and
// internal/heap.PriorityQueue (itself modeled on
// katalvlaran/lvlath's Prim-style greedy-pop-and-reinsert loop, reused
// here for the projection-gap walk instead of a merge cost) for the
// per-composite-index vote ordering.
package dci

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
	"github.com/coredex/spatial/internal/parallel"
)

// Config configures DCI.
type Config struct {
	// M is the number of simple indices per composite index.
	M int
	// L is the number of composite indices.
	L    int
	Rand *rand.Rand
}

type Option func(*Config)

func WithM(m int) Option           { return func(c *Config) { c.M = m } }
func WithL(l int) Option           { return func(c *Config) { c.L = l } }
func WithRand(r *rand.Rand) Option { return func(c *Config) { c.Rand = r } }

func defaultConfig() Config { return Config{M: 15, L: 3} }

// simpleIndex is one (j, l) position: a unit random direction and a
// sorted (key, id) array of every training point's projection onto it.
type simpleIndex struct {
	direction []float64
	keys      []float64
	ids       []spatial.PointId
}

// Collection is a DCI index.
type Collection struct {
	store *spatial.VectorStore
	cfg   Config
	rnd   *rand.Rand
	// indices[l][j] is the simple index at composite l, slot j.
	indices [][]simpleIndex

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

// Build draws m*L unit random directions and projects every vector onto
// each, storing a sorted (key, id) array per (j, l) position.
// metric must be metrics.Euclidean{} (or another type implementing
// spatial.EuclideanMarker) — DCI's projection bound only holds for L2.
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if c.cfg.M < 1 || c.cfg.L < 1 {
		return spatial.NewFatalError(spatial.KindInvalidArgument, "dci.Build",
			pkgerrors.Errorf("invalid hyperparameters: M=%d L=%d, both must be >= 1", c.cfg.M, c.cfg.L))
	}
	if !isEuclidean(metric) {
		return spatial.NewError(spatial.KindInvalidMetric, "dci.Build", spatial.ErrInvalidMetric)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "dci.Build", ctx.Err())
	default:
	}

	c.rnd = c.cfg.Rand
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(1))
	}

	start := time.Now()
	c.store = spatial.NewVectorStore(vectors, metric)
	c.built = false

	n := len(vectors)
	if n == 0 {
		c.indices = nil
		c.built = true
		c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
		return nil
	}
	dim := vectors[0].Dim()

	c.indices = make([][]simpleIndex, c.cfg.L)
	for l := 0; l < c.cfg.L; l++ {
		c.indices[l] = make([]simpleIndex, c.cfg.M)
		for j := 0; j < c.cfg.M; j++ {
			c.indices[l][j].direction = randomUnitVector(c.rnd, dim)
		}
	}

	build := func(l, j int) error {
		dir := c.indices[l][j].direction
		keys := make([]float64, n)
		ids := make([]spatial.PointId, n)
		for i := 0; i < n; i++ {
			keys[i] = dotProduct(vectors[i], dir)
			ids[i] = spatial.PointId(i)
		}
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
		sortedKeys := make([]float64, n)
		sortedIDs := make([]spatial.PointId, n)
		for i, o := range order {
			sortedKeys[i] = keys[o]
			sortedIDs[i] = ids[o]
		}
		c.indices[l][j].keys = sortedKeys
		c.indices[l][j].ids = sortedIDs
		return nil
	}

	if parallelBuild {
		tasks := make([]func(ctx context.Context) error, 0, c.cfg.L*c.cfg.M)
		for l := 0; l < c.cfg.L; l++ {
			for j := 0; j < c.cfg.M; j++ {
				l, j := l, j
				tasks = append(tasks, func(context.Context) error { return build(l, j) })
			}
		}
		c.buildStats.RecordParallelFanout(int64(len(tasks)))
		if err := parallel.ForkN(ctx, 0, tasks...); err != nil {
			return spatial.NewFatalError(spatial.KindInterrupted, "dci.Build", err)
		}
	} else {
		for l := 0; l < c.cfg.L; l++ {
			for j := 0; j < c.cfg.M; j++ {
				_ = build(l, j)
			}
		}
	}

	c.built = true
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

func isEuclidean(metric spatial.Metric) bool {
	if metric == nil {
		return false
	}
	marker, ok := metric.(spatial.EuclideanMarker)
	return ok && marker.IsEuclidean()
}

func randomUnitVector(r *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	var norm float64
	for d := range v {
		v[d] = r.NormFloat64()
		norm += v[d] * v[d]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for d := range v {
		v[d] /= norm
	}
	return v
}

func dotProduct(v spatial.Vector, dir []float64) float64 {
	var sum float64
	for d := 0; d < v.Dim(); d++ {
		sum += v.At(d) * dir[d]
	}
	return sum
}

func (c *Collection) Size() int { return c.store.Size() }

func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Insert is not supported: adding a point requires re-sorting every
// simple index's (key, id) array.
func (c *Collection) Insert(v spatial.Vector) error {
	return spatial.NewError(spatial.KindInvalidState, "dci.Insert", spatial.ErrInvalidState)
}

// outwardIterator walks a sorted (key, id) array outward from a query
// projection q in order of increasing |key - q|.
type outwardIterator struct {
	idx    *simpleIndex
	q      float64
	lo, hi int
}

func newOutwardIterator(idx *simpleIndex, q float64) *outwardIterator {
	pos := sort.SearchFloat64s(idx.keys, q)
	return &outwardIterator{idx: idx, q: q, lo: pos - 1, hi: pos}
}

func (it *outwardIterator) peek() (spatial.PointId, float64, bool) {
	hasLo := it.lo >= 0
	hasHi := it.hi < len(it.idx.keys)
	switch {
	case !hasLo && !hasHi:
		return 0, 0, false
	case !hasLo:
		return it.idx.ids[it.hi], it.idx.keys[it.hi] - it.q, true
	case !hasHi:
		return it.idx.ids[it.lo], it.q - it.idx.keys[it.lo], true
	default:
		gapLo := it.q - it.idx.keys[it.lo]
		gapHi := it.idx.keys[it.hi] - it.q
		if gapLo <= gapHi {
			return it.idx.ids[it.lo], gapLo, true
		}
		return it.idx.ids[it.hi], gapHi, true
	}
}

func (it *outwardIterator) advance() {
	hasLo := it.lo >= 0
	hasHi := it.hi < len(it.idx.keys)
	switch {
	case !hasLo && !hasHi:
		return
	case !hasLo:
		it.hi++
	case !hasHi:
		it.lo--
	default:
		gapLo := it.q - it.idx.keys[it.lo]
		gapHi := it.idx.keys[it.hi] - it.q
		if gapLo <= gapHi {
			it.lo--
		} else {
			it.hi++
		}
	}
}

// runComposite executes up to maxRounds rounds of the m-vote admission
// algorithm for composite index l, returning its candidate set. The
// priority queue is keyed by each iterator's next gap.
func runComposite(iterators []*outwardIterator, m, maxRounds int) map[spatial.PointId]bool {
	votes := make(map[spatial.PointId]int)
	candidates := make(map[spatial.PointId]bool)

	pq := heap.NewPriorityQueue[int]()
	for j, it := range iterators {
		if _, gap, ok := it.peek(); ok {
			pq.Push(j, gap)
		}
	}

	for round := 0; round < maxRounds && pq.Len() > 0; round++ {
		j, _, ok := pq.Pop()
		if !ok {
			break
		}
		id, _, ok := iterators[j].peek()
		if !ok {
			continue
		}
		votes[id]++
		if votes[id] == m {
			candidates[id] = true
		}
		iterators[j].advance()
		if _, gap, ok := iterators[j].peek(); ok {
			pq.Push(j, gap)
		}
	}
	return candidates
}

// Search returns the k nearest neighbours to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "dci.Search", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "dci.Search", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	n := c.store.Size()
	if n == 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}

	logTerm := math.Log(float64(n)) - math.Log(float64(k))
	if logTerm < 1 {
		logTerm = 1
	}
	k1 := int(math.Ceil(float64(c.cfg.M) * float64(k) * logTerm))
	if k1 < 1 {
		k1 = 1
	}
	maxK1 := n * c.cfg.M
	if k1 > maxK1 {
		k1 = maxK1
	}

	union := make(map[spatial.PointId]bool)
	for {
		union = make(map[spatial.PointId]bool)
		for l := 0; l < c.cfg.L; l++ {
			iterators := make([]*outwardIterator, c.cfg.M)
			for j := 0; j < c.cfg.M; j++ {
				qproj := dotProduct(q, c.indices[l][j].direction)
				iterators[j] = newOutwardIterator(&c.indices[l][j], qproj)
			}
			cands := runComposite(iterators, c.cfg.M, k1)
			for id := range cands {
				union[id] = true
			}
		}

		if len(union) >= k || k1 >= maxK1 {
			break
		}
		k1 *= 2
		if k1 > maxK1 {
			k1 = maxK1
		}
	}

	metric := c.store.GetDistanceMetric()
	ids := make([]spatial.PointId, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	dists := make([]float64, len(ids))
	for i, id := range ids {
		dists[i] = metric.Dist(q, c.store.Get(id))
	}
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })
	if len(order) > k {
		order = order[:k]
	}
	outIDs := make([]spatial.PointId, len(order))
	outDists := make([]float64, len(order))
	for i, o := range order {
		outIDs[i] = ids[o]
		outDists[i] = dists[o]
	}
	return outIDs, outDists, nil
}

// SearchRadius walks each simple iterator outward until its projection
// gap exceeds rng, accepting only ids appearing in every composite
// index's candidate set.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "dci.SearchRadius", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "dci.SearchRadius", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if c.store.Size() == 0 {
		return nil, nil, nil
	}

	counts := make(map[spatial.PointId]int)
	for l := 0; l < c.cfg.L; l++ {
		seenInL := make(map[spatial.PointId]bool)
		for j := 0; j < c.cfg.M; j++ {
			qproj := dotProduct(q, c.indices[l][j].direction)
			it := newOutwardIterator(&c.indices[l][j], qproj)
			for {
				id, gap, ok := it.peek()
				if !ok || gap > rng {
					break
				}
				seenInL[id] = true
				it.advance()
			}
		}
		for id := range seenInL {
			counts[id]++
		}
	}

	var ids []spatial.PointId
	for id, cnt := range counts {
		if cnt == c.cfg.L {
			ids = append(ids, id)
		}
	}

	metric := c.store.GetDistanceMetric()
	var outIDs []spatial.PointId
	var outDists []float64
	for _, id := range ids {
		d := metric.Dist(q, c.store.Get(id))
		if d <= rng {
			outIDs = append(outIDs, id)
			outDists = append(outDists, d)
		}
	}
	order := make([]int, len(outIDs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return outDists[order[a]] < outDists[order[b]] })
	sortedIDs := make([]spatial.PointId, len(outIDs))
	sortedDists := make([]float64, len(outIDs))
	for i, o := range order {
		sortedIDs[i] = outIDs[o]
		sortedDists[i] = outDists[o]
	}
	return sortedIDs, sortedDists, nil
}

func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
