package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndReadBack(t *testing.T) {
	r := NewRecorder()

	r.RecordAccess("inst-1", "u1")
	r.RecordMemory("inst-1", 128)
	r.RecordCPU("inst-1", 12.5)

	samples := r.Samples("inst-1")
	require.Len(t, samples, 3)
	assert.Equal(t, SampleAccess, samples[0].Type)
	assert.Equal(t, float64(1), samples[0].Value)
	assert.Equal(t, "u1", samples[0].UserID)
	assert.Equal(t, SampleMemory, samples[1].Type)
	assert.Equal(t, float64(128), samples[1].Value)
	assert.Equal(t, SampleCPU, samples[2].Type)

	assert.Nil(t, r.Samples("unknown"))
}

func TestRetentionTrimsOldestInBatches(t *testing.T) {
	r := NewRecorder()

	for i := 0; i < 1050; i++ {
		r.RecordMemory("inst-1", float64(i))
	}

	samples := r.Samples("inst-1")
	assert.LessOrEqual(t, len(samples), maxSamplesPerInstance)

	// The oldest entries are gone; the newest survives.
	assert.Greater(t, samples[0].Value, float64(0))
	assert.Equal(t, float64(1049), samples[len(samples)-1].Value)

	// Values stay in insertion order after trimming.
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, samples[i-1].Value+1, samples[i].Value)
	}
}

func TestAccessSampleRetentionBound(t *testing.T) {
	r := NewRecorder()

	for i := 0; i < 1050; i++ {
		r.RecordAccess("inst-1", "u1")
	}
	assert.LessOrEqual(t, len(r.Samples("inst-1")), maxSamplesPerInstance)
}

func TestRemove(t *testing.T) {
	r := NewRecorder()
	r.RecordAccess("inst-1", "u1")
	r.Remove("inst-1")
	assert.Nil(t, r.Samples("inst-1"))
	assert.Equal(t, 0, r.AggregatedMetrics().TotalInstances)
}

func TestAggregatedMetrics(t *testing.T) {
	r := NewRecorder()

	r.RecordAccess("inst-1", "u1")
	r.RecordAccess("inst-1", "u2")
	r.RecordAccess("inst-2", "u1")
	r.RecordAccess("inst-2", "")
	r.RecordMemory("inst-1", 100)
	r.RecordMemory("inst-2", 300)
	r.RecordCPU("inst-1", 10)
	r.RecordCPU("inst-2", 30)

	agg := r.AggregatedMetrics()
	assert.Equal(t, 2, agg.TotalInstances)
	assert.Equal(t, 4, agg.TotalAccessSamples)
	assert.Equal(t, 2, agg.DistinctUsers)
	assert.InDelta(t, 200, agg.AvgMemoryMB, 0.001)
	assert.InDelta(t, 20, agg.AvgCPUPercent, 0.001)
}

func TestAggregatedMetricsEmpty(t *testing.T) {
	r := NewRecorder()
	agg := r.AggregatedMetrics()
	assert.Zero(t, agg.TotalInstances)
	assert.Zero(t, agg.AvgMemoryMB)
	assert.Zero(t, agg.AvgCPUPercent)
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRecorder()
	done := make(chan struct{})

	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			id := fmt.Sprintf("inst-%d", g%2)
			for i := 0; i < 200; i++ {
				r.RecordAccess(id, "u1")
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	agg := r.AggregatedMetrics()
	assert.Equal(t, 2, agg.TotalInstances)
	assert.Equal(t, 1600, agg.TotalAccessSamples)
}
