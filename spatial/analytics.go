package spatial

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/coredex/spatial/internal/stat"
)

// BuildStats tracks operational statistics for a collection's build/insert
// lifecycle. This module carries no logging-library dependency, so
// BuildStats/QueryStats are its ambient observability layer — atomic
// counters and nanosecond timers sampled with time.Now()/defer, exposed via
// an immutable Snapshot().
type BuildStats struct {
	BuildCount    atomic.Int64
	InsertCount   atomic.Int64
	RebuildCount  atomic.Int64 // incremental leaf/subtree rebuilds
	ParallelFanout atomic.Int64 // cumulative goroutines spawned across builds
	CreatedAt     time.Time
	LastBuildAt   atomic.Int64 // Unix nanoseconds
	LastBuildNs   atomic.Int64
}

// NewBuildStats creates a build-stats tracker.
func NewBuildStats() *BuildStats {
	return &BuildStats{CreatedAt: time.Now()}
}

// RecordBuild records a completed Build call and its wall-clock duration.
func (b *BuildStats) RecordBuild(durationNs int64) {
	b.BuildCount.Add(1)
	b.LastBuildNs.Store(durationNs)
	b.LastBuildAt.Store(time.Now().UnixNano())
}

// RecordInsert records a successful incremental insert.
func (b *BuildStats) RecordInsert() { b.InsertCount.Add(1) }

// RecordRebuild records a structural rebuild triggered by insertion (e.g. an
// overflowing Ball Tree leaf, or an expanding VP-Tree leaf).
func (b *BuildStats) RecordRebuild() { b.RebuildCount.Add(1) }

// RecordParallelFanout records how many goroutines a parallel build step
// spawned.
func (b *BuildStats) RecordParallelFanout(n int64) { b.ParallelFanout.Add(n) }

// BuildStatsSnapshot is an immutable point-in-time view of BuildStats.
type BuildStatsSnapshot struct {
	BuildCount     int64
	InsertCount    int64
	RebuildCount   int64
	ParallelFanout int64
	CreatedAt      time.Time
	LastBuildAt    time.Time
	LastBuildNs    int64
}

// Snapshot takes an immutable copy of the current counters.
func (b *BuildStats) Snapshot() BuildStatsSnapshot {
	return BuildStatsSnapshot{
		BuildCount:     b.BuildCount.Load(),
		InsertCount:    b.InsertCount.Load(),
		RebuildCount:   b.RebuildCount.Load(),
		ParallelFanout: b.ParallelFanout.Load(),
		CreatedAt:      b.CreatedAt,
		LastBuildAt:    time.Unix(0, b.LastBuildAt.Load()),
		LastBuildNs:    b.LastBuildNs.Load(),
	}
}

// QueryStats tracks query-path statistics: count and latency distribution
// across Search/SearchRadius calls.
type QueryStats struct {
	QueryCount       atomic.Int64
	TotalQueryTimeNs atomic.Int64
	LastQueryTimeNs  atomic.Int64
	MinQueryTimeNs   atomic.Int64
	MaxQueryTimeNs   atomic.Int64
	LastQueryAt      atomic.Int64
}

// NewQueryStats creates a query-stats tracker.
func NewQueryStats() *QueryStats {
	q := &QueryStats{}
	q.MinQueryTimeNs.Store(math.MaxInt64)
	return q
}

// RecordQuery records one query's wall-clock duration.
func (q *QueryStats) RecordQuery(durationNs int64) {
	q.QueryCount.Add(1)
	q.TotalQueryTimeNs.Add(durationNs)
	q.LastQueryTimeNs.Store(durationNs)
	q.LastQueryAt.Store(time.Now().UnixNano())

	for {
		cur := q.MinQueryTimeNs.Load()
		if durationNs >= cur || q.MinQueryTimeNs.CompareAndSwap(cur, durationNs) {
			break
		}
	}
	for {
		cur := q.MaxQueryTimeNs.Load()
		if durationNs <= cur || q.MaxQueryTimeNs.CompareAndSwap(cur, durationNs) {
			break
		}
	}
}

// QueryStatsSnapshot is an immutable point-in-time view of QueryStats.
type QueryStatsSnapshot struct {
	QueryCount      int64
	AvgQueryTimeNs  int64
	MinQueryTimeNs  int64
	MaxQueryTimeNs  int64
	LastQueryTimeNs int64
	LastQueryAt     time.Time
}

// Snapshot takes an immutable copy of the current counters.
func (q *QueryStats) Snapshot() QueryStatsSnapshot {
	var avg int64
	qc := q.QueryCount.Load()
	if qc > 0 {
		avg = q.TotalQueryTimeNs.Load() / qc
	}
	minNs := q.MinQueryTimeNs.Load()
	if minNs == math.MaxInt64 {
		minNs = 0
	}
	return QueryStatsSnapshot{
		QueryCount:      qc,
		AvgQueryTimeNs:  avg,
		MinQueryTimeNs:  minNs,
		MaxQueryTimeNs:  q.MaxQueryTimeNs.Load(),
		LastQueryTimeNs: q.LastQueryTimeNs.Load(),
		LastQueryAt:     time.Unix(0, q.LastQueryAt.Load()),
	}
}

// Reset zeroes every counter.
func (q *QueryStats) Reset() {
	q.QueryCount.Store(0)
	q.TotalQueryTimeNs.Store(0)
	q.LastQueryTimeNs.Store(0)
	q.MinQueryTimeNs.Store(math.MaxInt64)
	q.MaxQueryTimeNs.Store(0)
	q.LastQueryAt.Store(0)
}

// DistributionStats summarizes a set of distances returned by a query —
// useful for a caller inspecting how tight a k-NN or radius result was.
type DistributionStats struct {
	Count    int
	Min      float64
	Max      float64
	Mean     float64
	Median   float64
	StdDev   float64
	Variance float64
}

// ComputeDistributionStats calculates distribution statistics from a slice
// of distances (e.g. a k-NN result's distance column), via internal/stat's
// gonum-backed Mean/Variance/Median — the same helpers the tree families
// use for split/pivot selection.
func ComputeDistributionStats(distances []float64) DistributionStats {
	n := len(distances)
	if n == 0 {
		return DistributionStats{}
	}
	min, max := distances[0], distances[0]
	for _, d := range distances[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	variance := stat.Variance(distances)
	return DistributionStats{
		Count:    n,
		Min:      min,
		Max:      max,
		Mean:     stat.Mean(distances),
		Median:   stat.Median(distances),
		StdDev:   math.Sqrt(variance),
		Variance: variance,
	}
}
