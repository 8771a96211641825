package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/google/uuid"
)

// BakeStats is the progress of one bake as seen by the Profiler.
type BakeStats struct {
	TotalFrames   int
	SampledFrames int
	Started       time.Time
	Finished      time.Time
	Err           error
}

// Done reports whether the bake has finished, successfully or not.
func (s BakeStats) Done() bool {
	return !s.Finished.IsZero()
}

// Elapsed returns the sampling wall time so far, or the total once finished.
func (s BakeStats) Elapsed(now time.Time) time.Duration {
	if s.Done() {
		return s.Finished.Sub(s.Started)
	}
	return now.Sub(s.Started)
}

// FramesPerSecond returns the sampling throughput.
func (s BakeStats) FramesPerSecond(now time.Time) float64 {
	elapsed := s.Elapsed(now).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.SampledFrames) / elapsed
}

// Profiler tracks bake throughput and memory statistics for performance monitoring.
// It satisfies vat.BakeObserver and outputs stats through common.Logger at a configurable interval.
type Profiler struct {
	mu             sync.Mutex
	now            func() time.Time
	updateInterval time.Duration
	lastLog        time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	bakes          map[uuid.UUID]*BakeStats
}

var _ vat.BakeObserver = &Profiler{}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		now:            time.Now,
		updateInterval: time.Second,
		bakes:          make(map[uuid.UUID]*BakeStats),
	}
}

// SetUpdateInterval changes how often progress is logged while sampling.
func (p *Profiler) SetUpdateInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateInterval = d
}

// BakeStarted begins tracking a bake.
func (p *Profiler) BakeStarted(id uuid.UUID, totalFrames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.bakes[id] = &BakeStats{TotalFrames: totalFrames, Started: now}
	if p.lastLog.IsZero() {
		p.lastLog = now
	}
}

// FrameSampled counts one sampled frame and logs throughput when the update interval has elapsed.
func (p *Profiler) FrameSampled(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.bakes[id]
	if !ok {
		return
	}
	s.SampledFrames++

	now := p.now()
	if now.Sub(p.lastLog) < p.updateInterval {
		return
	}
	p.lastLog = now
	common.Logger().Info("bake progress",
		"bake", id.String(),
		"frames", s.SampledFrames,
		"total", s.TotalFrames,
		"fps", s.FramesPerSecond(now),
	)
}

// BakeFinished stops tracking time for a bake and logs its throughput alongside heap statistics.
// Statistics include: heap usage, allocation since the last report, GC count and max pause time.
func (p *Profiler) BakeFinished(id uuid.UUID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.bakes[id]
	if !ok {
		return
	}
	now := p.now()
	s.Finished = now
	s.Err = err

	runtime.ReadMemStats(&p.memStats)
	// Alloc: bytes of allocated heap objects (live memory)
	// TotalAlloc: cumulative bytes allocated, tracks churn
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	churnMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024

	gcCount := p.memStats.NumGC
	var maxPauseUs uint64
	startIdx := p.lastGCCount
	if gcCount-startIdx > 256 {
		startIdx = gcCount - 256
	}
	// PauseNs is a circular buffer of the last 256 GC pauses
	for i := startIdx; i < gcCount; i++ {
		maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc

	log := common.Logger().With("bake", id.String())
	attrs := []any{
		"frames", s.SampledFrames,
		"elapsed", s.Elapsed(now),
		"fps", s.FramesPerSecond(now),
		"heap_mb", allocMB,
		"alloc_mb", churnMB,
		"gc", gcCount,
		"gc_max_pause_us", maxPauseUs,
	}
	if err != nil {
		log.Warn("bake aborted", append(attrs, "error", err)...)
		return
	}
	log.Info("bake profiled", attrs...)
}

// Stats returns a snapshot of a bake's progress.
//
// Parameters:
//   - id: the bake id
//
// Returns:
//   - BakeStats: the snapshot
//   - bool: false if the bake was never started under this profiler
func (p *Profiler) Stats(id uuid.UUID) (BakeStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.bakes[id]
	if !ok {
		return BakeStats{}, false
	}
	return *s, true
}

// Forget drops a finished bake's statistics.
func (p *Profiler) Forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bakes, id)
}
