// Package bruteforce implements VectorArray (C2): the exhaustive O(n)
// baseline every other family's tests diff their results against, and the
// fallback a caller can always fall back to. Size/Get/SetDistanceMetric
// delegate to the held spatial.VectorStore, the same way every family in
// this module centralizes them.
package bruteforce

import (
	"context"
	"sort"
	"time"

	"github.com/coredex/spatial"
	internalheap "github.com/coredex/spatial/internal/heap"
)

// Collection is the brute-force VectorArray: no tree structure at all, just
// a VectorStore and a linear scan per query.
type Collection struct {
	store      *spatial.VectorStore
	buildStats *spatial.BuildStats
	queryStats *spatial.QueryStats
	built      bool
}

// New creates an empty, unbuilt Collection.
func New() *Collection {
	return &Collection{
		buildStats: spatial.NewBuildStats(),
		queryStats: spatial.NewQueryStats(),
	}
}

// Build constructs the collection from vectors and metric. parallel has no
// effect here — a linear scan has no recursive structure to fork — but the
// flag is still accepted to keep the signature uniform with every other
// family's Collection.
func (c *Collection) Build(ctx context.Context, parallel bool, vectors []spatial.Vector, metric spatial.Metric) error {
	if metric == nil {
		return spatial.NewError(spatial.KindInvalidArgument, "bruteforce.Build", spatial.ErrInvalidArgument)
	}
	select {
	case <-ctx.Done():
		return spatial.NewFatalError(spatial.KindInterrupted, "bruteforce.Build", ctx.Err())
	default:
	}
	start := time.Now()
	c.store = spatial.NewVectorStore(vectors, metric)
	c.built = true
	c.buildStats.RecordBuild(time.Since(start).Nanoseconds())
	return nil
}

// Insert appends a point to the scanned set; VectorArray has no structural
// invariant to preserve, so insert is always legal (unlike KD-Tree/RBC).
func (c *Collection) Insert(v spatial.Vector) error {
	if !c.built {
		return spatial.NewError(spatial.KindInvalidState, "bruteforce.Insert", spatial.ErrInvalidState)
	}
	c.store.Append(v)
	c.buildStats.RecordInsert()
	return nil
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

// SetDistanceMetric swaps the metric.
func (c *Collection) SetDistanceMetric(m spatial.Metric) { c.store.SetDistanceMetric(m) }

// Search returns the k nearest points to q, ascending by distance. For
// k > Size, returns Size entries.
func (c *Collection) Search(q spatial.Vector, k int) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "bruteforce.Search", spatial.ErrInvalidState)
	}
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "bruteforce.Search", spatial.ErrInvalidArgument)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	n := c.store.Size()
	if n == 0 {
		return nil, nil, nil
	}
	metric := c.store.GetDistanceMetric()
	qInfo := metric.BuildQueryInfo(q)
	bounded := internalheap.NewBounded[spatial.PointId](k)
	for i := 0; i < n; i++ {
		id := spatial.PointId(i)
		d := c.store.DistToQuery(id, q, qInfo)
		bounded.Push(id, d)
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

// SearchRadius returns every point within range of q, ascending by
// distance.
func (c *Collection) SearchRadius(q spatial.Vector, rng float64) ([]spatial.PointId, []float64, error) {
	if !c.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "bruteforce.SearchRadius", spatial.ErrInvalidState)
	}
	if rng <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "bruteforce.SearchRadius", spatial.ErrInvalidArgument)
	}
	start := time.Now()
	defer func() { c.queryStats.RecordQuery(time.Since(start).Nanoseconds()) }()

	n := c.store.Size()
	metric := c.store.GetDistanceMetric()
	qInfo := metric.BuildQueryInfo(q)

	type hit struct {
		id spatial.PointId
		d  float64
	}
	var hits []hit
	for i := 0; i < n; i++ {
		id := spatial.PointId(i)
		d := c.store.DistToQuery(id, q, qInfo)
		if d <= rng {
			hits = append(hits, hit{id, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
	ids := make([]spatial.PointId, len(hits))
	dists := make([]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
		dists[i] = h.d
	}
	return ids, dists, nil
}

// BuildStatsSnapshot exposes observability state (ambient stack §1).
func (c *Collection) BuildStatsSnapshot() spatial.BuildStatsSnapshot { return c.buildStats.Snapshot() }

// QueryStatsSnapshot exposes observability state (ambient stack §1).
func (c *Collection) QueryStatsSnapshot() spatial.QueryStatsSnapshot { return c.queryStats.Snapshot() }
