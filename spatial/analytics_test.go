package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildStats(t *testing.T) {
	b := NewBuildStats()
	assert.Equal(t, int64(0), b.BuildCount.Load())
	assert.Equal(t, int64(0), b.InsertCount.Load())
	assert.False(t, b.CreatedAt.IsZero())
}

func TestBuildStatsRecordBuild(t *testing.T) {
	b := NewBuildStats()
	b.RecordBuild(1500)
	b.RecordBuild(2500)
	snap := b.Snapshot()
	assert.Equal(t, int64(2), snap.BuildCount)
	assert.Equal(t, int64(2500), snap.LastBuildNs)
	assert.False(t, snap.LastBuildAt.IsZero())
}

func TestBuildStatsRecordInsertAndRebuild(t *testing.T) {
	b := NewBuildStats()
	b.RecordInsert()
	b.RecordInsert()
	b.RecordRebuild()
	snap := b.Snapshot()
	assert.Equal(t, int64(2), snap.InsertCount)
	assert.Equal(t, int64(1), snap.RebuildCount)
}

func TestBuildStatsRecordParallelFanout(t *testing.T) {
	b := NewBuildStats()
	b.RecordParallelFanout(2)
	b.RecordParallelFanout(4)
	snap := b.Snapshot()
	assert.Equal(t, int64(6), snap.ParallelFanout)
}

func TestNewQueryStats(t *testing.T) {
	q := NewQueryStats()
	snap := q.Snapshot()
	assert.Equal(t, int64(0), snap.QueryCount)
	assert.Equal(t, int64(0), snap.MinQueryTimeNs)
	assert.Equal(t, int64(0), snap.MaxQueryTimeNs)
}

func TestQueryStatsRecordQuery(t *testing.T) {
	q := NewQueryStats()
	q.RecordQuery(1000)
	q.RecordQuery(2000)
	q.RecordQuery(500)

	snap := q.Snapshot()
	assert.Equal(t, int64(3), snap.QueryCount)
	assert.Equal(t, int64(500), snap.MinQueryTimeNs)
	assert.Equal(t, int64(2000), snap.MaxQueryTimeNs)
	assert.Equal(t, int64(500), snap.LastQueryTimeNs)
	assert.Equal(t, int64((1000+2000+500)/3), snap.AvgQueryTimeNs)
}

func TestQueryStatsReset(t *testing.T) {
	q := NewQueryStats()
	q.RecordQuery(1000)
	q.Reset()
	snap := q.Snapshot()
	assert.Equal(t, int64(0), snap.QueryCount)
	assert.Equal(t, int64(0), snap.MinQueryTimeNs)
	assert.Equal(t, int64(0), snap.MaxQueryTimeNs)
}

func TestQueryStatsMinMaxUnaffectedByOrder(t *testing.T) {
	ascending := NewQueryStats()
	for _, d := range []int64{100, 200, 300, 400} {
		ascending.RecordQuery(d)
	}
	descending := NewQueryStats()
	for _, d := range []int64{400, 300, 200, 100} {
		descending.RecordQuery(d)
	}
	assert.Equal(t, ascending.Snapshot().MinQueryTimeNs, descending.Snapshot().MinQueryTimeNs)
	assert.Equal(t, ascending.Snapshot().MaxQueryTimeNs, descending.Snapshot().MaxQueryTimeNs)
}

func TestQueryStatsSnapshotMinDefaultsToZeroNotMaxInt64(t *testing.T) {
	q := NewQueryStats()
	assert.NotEqual(t, int64(math.MaxInt64), q.Snapshot().MinQueryTimeNs)
}

func TestComputeDistributionStatsEmpty(t *testing.T) {
	stats := ComputeDistributionStats(nil)
	assert.Equal(t, DistributionStats{}, stats)
}

func TestComputeDistributionStats(t *testing.T) {
	stats := ComputeDistributionStats([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, 3.0, stats.Mean)
	assert.Equal(t, 3.0, stats.Median)
	assert.InDelta(t, 2.0, stats.Variance, 1e-9)
	assert.InDelta(t, math.Sqrt(2.0), stats.StdDev, 1e-9)
}

func TestComputeDistributionStatsUnordered(t *testing.T) {
	// ComputeDistributionStats must not assume its input is sorted.
	stats := ComputeDistributionStats([]float64{5, 1, 3})
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, 3.0, stats.Median)
}
