// Package rbc implements Random Ball Cover (C7): a two-level structure of
// randomly-chosen representatives, each owning a set of points, searched
// with triangle-inequality pruning. Built on the same flat VectorStore plus
// bookkeeping-slice idiom kdtree/vptree use (parallel slices rather than
// pointer-heavy trees); the representative/owned-point bookkeeping mirrors
// the shape of balltree's pivot+radius leaves, reduced to exactly two
// levels.
package rbc

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
)

// Config configures Random Ball Cover.
type Config struct {
	// OneShot selects the approximate variant: each representative
	// claims its S nearest points without exclusivity, sacrificing
	// exactness for O(sqrt(n)) queries.
	OneShot bool
	// S is the number of points each representative claims under
	// OneShot; ignored otherwise (defaults to ceil(sqrt(n)) at Build).
	S    int
	Rand *rand.Rand
}

type Option func(*Config)

func WithOneShot(oneShot bool) Option { return func(c *Config) { c.OneShot = oneShot } }
func WithS(s int) Option              { return func(c *Config) { c.S = s } }
func WithRand(r *rand.Rand) Option    { return func(c *Config) { c.Rand = r } }

func defaultConfig() Config { return Config{} }

type owned struct {
	id   spatial.PointId
	dist float64 // distance to the owning representative
}

type repRecord struct {
	id     spatial.PointId
	radius float64 // farthest owned point's distance ("rep radius")
	owned  []owned
}

// Collection is a Random Ball Cover index.
type Collection struct {
	store *spatial.VectorStore
	cfg   Config
	rnd   *rand.Rand
	reps  []repRecord

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

// Build picks R = ceil(sqrt(n)) representatives uniformly at random and
// assigns ownership to them (exact or one-shot, per Config.OneShot).
func (c *Collection) Build(ctx context.Context, parallelBuild bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if metric == nil || !metric.IsSubadditive() {
		return spatial.NewError(spatial.KindInvalidMetric, "rbc.Build", spatial.ErrInvalidMetric)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "rbc.Build", ctx.Err())
	default:
	}

	c.rnd = c.cfg.Rand
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(1))
	}

	start := time.Now()
	c.store = spatial.NewVectorStore(vectors, metric)
	c.reps = nil
	c.built = false

	n := len(vectors)
	if n == 0 {
		c.built = true
		c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
		return nil
	}

	R := int(math.Ceil(math.Sqrt(float64(n))))
	if R < 1 {
		R = 1
	}
	if R > n {
		R = n
	}
	repIdx := c.rnd.Perm(n)[:R]
	isRep := make([]bool, n)
	c.reps = make([]repRecord, R)
	for i, ri := range repIdx {
		c.reps[i] = repRecord{id: spatial.PointId(ri)}
		isRep[ri] = true
	}

	if c.cfg.OneShot {
		s := c.cfg.S
		if s <= 0 {
			s = R
		}
		c.buildOneShot(n, isRep, s)
	} else {
		c.buildExact(n, isRep)
	}

	c.built = true
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

// buildExact assigns every non-representative point to its nearest
// representative exclusively.
func (c *Collection) buildExact(n int, isRep []bool) {
	metric := c.store.GetDistanceMetric()
	for i := 0; i < n; i++ {
		if isRep[i] {
			continue
		}
		v := c.store.Get(spatial.PointId(i))
		best, bestD := 0, math.Inf(1)
		for ri := range c.reps {
			d := metric.Dist(v, c.store.Get(c.reps[ri].id))
			if d < bestD {
				bestD = d
				best = ri
			}
		}
		c.reps[best].owned = append(c.reps[best].owned, owned{id: spatial.PointId(i), dist: bestD})
		if bestD > c.reps[best].radius {
			c.reps[best].radius = bestD
		}
	}
}

// buildOneShot lets every representative independently claim its s
// nearest points, without exclusivity.
func (c *Collection) buildOneShot(n int, isRep []bool, s int) {
	metric := c.store.GetDistanceMetric()
	for ri := range c.reps {
		repVec := c.store.Get(c.reps[ri].id)
		bounded := heap.NewBounded[spatial.PointId](s)
		for i := 0; i < n; i++ {
			if spatial.PointId(i) == c.reps[ri].id {
				continue
			}
			d := metric.Dist(repVec, c.store.Get(spatial.PointId(i)))
			bounded.Push(spatial.PointId(i), d)
		}
		for _, item := range bounded.Drain() {
			c.reps[ri].owned = append(c.reps[ri].owned, owned{id: item.Value, dist: item.Priority})
			if item.Priority > c.reps[ri].radius {
				c.reps[ri].radius = item.Priority
			}
		}
	}
}

func (c *Collection) Size() int { return c.store.Size() }

func (c *Collection) Get(id spatial.PointId) spatial.Vector { return c.store.Get(id) }

func (c *Collection) GetDistanceMetric() spatial.Metric { return c.store.GetDistanceMetric() }

func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Insert is not supported: Random Ball Cover's representative assignment
// is a global randomized partition, not amenable to incremental update.
func (c *Collection) Insert(v spatial.Vector) error {
	return spatial.NewError(spatial.KindInvalidState, "rbc.Insert", spatial.ErrInvalidState)
}

// Search returns the k nearest neighbours to q.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "rbc.Search", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "rbc.Search", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if len(c.reps) == 0 {
		return nil, nil, nil
	}

	metric := c.store.GetDistanceMetric()
	qRep := make([]float64, len(c.reps))
	for i := range c.reps {
		qRep[i] = metric.Dist(q, c.store.Get(c.reps[i].id))
	}

	b := 0
	for i := 1; i < len(qRep); i++ {
		if qRep[i] < qRep[b] {
			b = i
		}
	}

	bounded := heap.NewBounded[spatial.PointId](k)
	bounded.Push(c.reps[b].id, qRep[b])
	for _, ow := range c.reps[b].owned {
		d := metric.Dist(q, c.store.Get(ow.id))
		bounded.Push(ow.id, d)
	}

	if !c.cfg.OneShot {
		for i := range c.reps {
			if i == b {
				continue
			}
			tau := math.Inf(1)
			if bounded.Full() {
				tau = bounded.WorstPriority()
			}
			if qRep[i] > tau+c.reps[i].radius {
				continue
			}
			if qRep[i] > 3*qRep[b] {
				continue
			}
			// The representative is itself a dataset point at exact
			// distance qRep[i] (rd=0 in the same bound used for its
			// owned points).
			tau = math.Inf(1)
			if bounded.Full() {
				tau = bounded.WorstPriority()
			}
			if qRep[i] <= tau {
				bounded.Push(c.reps[i].id, qRep[i])
			}
			for _, ow := range c.reps[i].owned {
				tau = math.Inf(1)
				if bounded.Full() {
					tau = bounded.WorstPriority()
				}
				if qRep[i] > tau+ow.dist {
					continue
				}
				d := metric.Dist(q, c.store.Get(ow.id))
				bounded.Push(ow.id, d)
			}
		}
	} else {
		// One-shot sacrifices exactness: only the single closest
		// representative's claimed points are considered.
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

// SearchRadius returns every point within rng of q.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "rbc.SearchRadius", spatial.ErrInvalidArgument)
	}
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "rbc.SearchRadius", spatial.ErrInvalidState)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	if len(c.reps) == 0 {
		return nil, nil, nil
	}

	metric := c.store.GetDistanceMetric()
	qRep := make([]float64, len(c.reps))
	for i := range c.reps {
		qRep[i] = metric.Dist(q, c.store.Get(c.reps[i].id))
	}
	b := 0
	for i := 1; i < len(qRep); i++ {
		if qRep[i] < qRep[b] {
			b = i
		}
	}

	var ids []spatial.PointId
	var dists []float64
	addIfInRange := func(id spatial.PointId, d float64) {
		if d <= rng {
			ids = append(ids, id)
			dists = append(dists, d)
		}
	}

	addIfInRange(c.reps[b].id, qRep[b])
	for _, ow := range c.reps[b].owned {
		d := metric.Dist(q, c.store.Get(ow.id))
		addIfInRange(ow.id, d)
	}

	if !c.cfg.OneShot {
		for i := range c.reps {
			if i == b {
				continue
			}
			if qRep[i] > rng+c.reps[i].radius {
				continue
			}
			addIfInRange(c.reps[i].id, qRep[i])
			for _, ow := range c.reps[i].owned {
				if qRep[i] > rng+ow.dist {
					continue
				}
				d := metric.Dist(q, c.store.Get(ow.id))
				addIfInRange(ow.id, d)
			}
		}
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

func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
