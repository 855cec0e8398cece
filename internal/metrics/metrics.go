package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Lane mirrors producer.Mode without importing it, to avoid a cycle
// (producer records metrics as jobs are submitted).
type Lane int

const (
	LaneRealtime Lane = iota
	LaneDelay
	LaneUnique
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks system-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalJobsProcessed atomic.Int64
	totalJobsCompleted atomic.Int64
	totalJobsFailed    atomic.Int64

	// Job tracking by lane and group (protected by mutex)
	mu             sync.RWMutex
	jobsByLane     map[Lane]int64
	queueDepths    map[string]int64
	totalDuration  time.Duration
	startTime      time.Time
	activeUnits    int64
	totalUnits     int64
	errorCount     int64
	operationCount int64
}

// Metrics represents a snapshot of current system metrics
type Metrics struct {
	TotalJobsProcessed int64                   `json:"total_jobs_processed"`
	TotalJobsCompleted int64                   `json:"total_jobs_completed"`
	TotalJobsFailed    int64                   `json:"total_jobs_failed"`
	JobsByLane         map[Lane]int64 `json:"jobs_by_lane"`
	QueueDepths        map[string]int64        `json:"queue_depths"`
	AvgJobDuration     time.Duration           `json:"avg_job_duration"`
	UnitUtilization    float64                 `json:"unit_utilization"`
	ErrorRate          float64                 `json:"error_rate"`
	Uptime             time.Duration           `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		jobsByLane:  make(map[Lane]int64),
		queueDepths: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// RecordJobSubmitted increments the jobs processed counter for a lane.
func (c *Collector) RecordJobSubmitted(mode Lane) {
	c.totalJobsProcessed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByLane[mode]++
}

// RecordJobCompleted records a successfully completed job
func (c *Collector) RecordJobCompleted(duration time.Duration) {
	c.totalJobsCompleted.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.operationCount++
}

// RecordJobFailed records a failed job
func (c *Collector) RecordJobFailed(duration time.Duration) {
	c.totalJobsFailed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.operationCount++
	c.errorCount++
}

// RecordQueueDepth updates the current queue depth for a group.
func (c *Collector) RecordQueueDepth(group string, depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepths[group] = depth
}

// RecordUnitActivity updates unit utilization metrics.
func (c *Collector) RecordUnitActivity(active, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeUnits = active
	c.totalUnits = total
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	jobsByLane := make(map[Lane]int64, len(c.jobsByLane))
	for k, v := range c.jobsByLane {
		jobsByLane[k] = v
	}

	queueDepths := make(map[string]int64, len(c.queueDepths))
	for k, v := range c.queueDepths {
		queueDepths[k] = v
	}

	var avgDuration time.Duration
	if c.operationCount > 0 {
		avgDuration = c.totalDuration / time.Duration(c.operationCount)
	}

	var utilization float64
	if c.totalUnits > 0 {
		utilization = float64(c.activeUnits) / float64(c.totalUnits) * 100
	}

	var errorRate float64
	totalOps := c.operationCount
	if totalOps > 0 {
		errorRate = float64(c.errorCount) / float64(totalOps) * 100
	}

	return Metrics{
		TotalJobsProcessed: c.totalJobsProcessed.Load(),
		TotalJobsCompleted: c.totalJobsCompleted.Load(),
		TotalJobsFailed:    c.totalJobsFailed.Load(),
		JobsByLane:         jobsByLane,
		QueueDepths:        queueDepths,
		AvgJobDuration:     avgDuration,
		UnitUtilization:    utilization,
		ErrorRate:          errorRate,
		Uptime:             time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.totalJobsProcessed.Store(0)
	c.totalJobsCompleted.Store(0)
	c.totalJobsFailed.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByLane = make(map[Lane]int64)
	c.queueDepths = make(map[string]int64)
	c.totalDuration = 0
	c.startTime = time.Now()
	c.activeUnits = 0
	c.totalUnits = 0
	c.errorCount = 0
	c.operationCount = 0
}

// GetMetrics returns metrics from the global collector
func GetMetrics() Metrics {
	return Default().GetMetrics()
}

// ResetMetrics resets the global collector
func ResetMetrics() {
	Default().Reset()
}
