package metrics

import (
	"sync"
	"time"

	"mcpbridge/internal/api"
)

const (
	// maxSamplesPerInstance bounds the per-instance sample log.
	maxSamplesPerInstance = 1000

	// trimBatchSize is how many of the oldest samples are dropped in one go
	// once the bound is exceeded. Trimming in batches keeps inserts amortized
	// O(1) instead of shifting the slice on every write.
	trimBatchSize = 100
)

// SampleType identifies what a sample measures.
type SampleType string

const (
	// SampleAccess records one successful lookup; its value is always 1.
	SampleAccess SampleType = "access"

	// SampleMemory records resident memory in megabytes.
	SampleMemory SampleType = "memory"

	// SampleCPU records CPU usage as a percentage.
	SampleCPU SampleType = "cpu"
)

// Sample is one timestamped measurement for an instance.
type Sample struct {
	Type      SampleType
	Value     float64
	Timestamp time.Time
	UserID    string
}

// Recorder keeps a bounded in-memory time series of per-instance samples.
// It is consumed by the cleanup sweeper and external monitoring and depends
// on nothing else.
type Recorder struct {
	mu      sync.RWMutex
	samples map[string][]Sample
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		samples: make(map[string][]Sample),
	}
}

// RecordAccess appends an access sample for the instance. The optional user
// id feeds the distinct-user aggregation.
func (r *Recorder) RecordAccess(instanceID, userID string) {
	r.record(instanceID, Sample{
		Type:      SampleAccess,
		Value:     1,
		Timestamp: time.Now(),
		UserID:    userID,
	})
}

// RecordMemory appends a memory sample in megabytes.
func (r *Recorder) RecordMemory(instanceID string, memoryMB float64) {
	r.record(instanceID, Sample{
		Type:      SampleMemory,
		Value:     memoryMB,
		Timestamp: time.Now(),
	})
}

// RecordCPU appends a CPU usage sample as a percentage.
func (r *Recorder) RecordCPU(instanceID string, cpuPercent float64) {
	r.record(instanceID, Sample{
		Type:      SampleCPU,
		Value:     cpuPercent,
		Timestamp: time.Now(),
	})
}

func (r *Recorder) record(instanceID string, sample Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := append(r.samples[instanceID], sample)
	if len(samples) > maxSamplesPerInstance {
		samples = samples[trimBatchSize:]
	}
	r.samples[instanceID] = samples
}

// Samples returns a copy of the stored samples for one instance.
func (r *Recorder) Samples(instanceID string) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.samples[instanceID]
	if stored == nil {
		return nil
	}
	out := make([]Sample, len(stored))
	copy(out, stored)
	return out
}

// Remove discards all samples for an instance. Called when the owning
// manager destroys the instance.
func (r *Recorder) Remove(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.samples, instanceID)
}

// AggregatedMetrics computes a summary across all tracked instances. Means
// are 0 when no samples of that type exist; the function never divides by
// zero.
func (r *Recorder) AggregatedMetrics() api.AggregatedMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agg api.AggregatedMetrics
	agg.TotalInstances = len(r.samples)

	users := make(map[string]bool)
	var memSum, cpuSum float64
	var memCount, cpuCount int

	for _, samples := range r.samples {
		for _, s := range samples {
			switch s.Type {
			case SampleAccess:
				agg.TotalAccessSamples++
				if s.UserID != "" {
					users[s.UserID] = true
				}
			case SampleMemory:
				memSum += s.Value
				memCount++
			case SampleCPU:
				cpuSum += s.Value
				cpuCount++
			}
		}
	}

	agg.DistinctUsers = len(users)
	if memCount > 0 {
		agg.AvgMemoryMB = memSum / float64(memCount)
	}
	if cpuCount > 0 {
		agg.AvgCPUPercent = cpuSum / float64(cpuCount)
	}
	return agg
}
