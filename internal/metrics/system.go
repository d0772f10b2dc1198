package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// SystemSampler tracks process resource usage for the health endpoint.
type SystemSampler struct {
	mu          sync.RWMutex
	cpuPercent  float64
	memoryStats runtime.MemStats
	lastUpdate  time.Time
}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{lastUpdate: time.Now()}
}

// Update refreshes CPU and memory statistics. Call from a sampling loop,
// not from request handlers: the CPU probe blocks for its sample window.
func (s *SystemSampler) Update() {
	cpuPercents, err := cpu.Percent(time.Second, false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil && len(cpuPercents) > 0 {
		current := cpuPercents[0]
		if s.cpuPercent == 0 {
			s.cpuPercent = current
		} else {
			// Exponential moving average to smooth spikes
			const alpha = 0.3
			s.cpuPercent = alpha*current + (1-alpha)*s.cpuPercent
		}
	}

	runtime.ReadMemStats(&s.memoryStats)
	s.lastUpdate = time.Now()
}

// Snapshot returns the most recent sample as a health-endpoint payload.
func (s *SystemSampler) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"cpu_percent": s.cpuPercent,
		"heap_alloc":  s.memoryStats.HeapAlloc,
		"heap_sys":    s.memoryStats.HeapSys,
		"num_gc":      s.memoryStats.NumGC,
		"goroutines":  runtime.NumGoroutine(),
		"sampled_at":  s.lastUpdate.Unix(),
	}
}
