package stability

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemoryStats tracks heap samples taken while operations run.
type MemoryStats struct {
	MaxAlloc     uint64    `json:"max_alloc"`
	CurrentAlloc uint64    `json:"current_alloc"`
	CheckCount   int64     `json:"check_count"`
	GCCount      int64     `json:"gc_count"`
	LastCheck    time.Time `json:"last_check"`
	Violations   int64     `json:"violations"`
}

type memoryMonitor struct {
	threshold uint64
	period    time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	active int
	done   chan struct{}
	s      MemoryStats
}

func newMemoryMonitor(thresholdMB int, period time.Duration, logger *slog.Logger) *memoryMonitor {
	return &memoryMonitor{
		threshold: uint64(thresholdMB) * 1024 * 1024,
		period:    period,
		logger:    logger,
	}
}

// start samples the heap until every started operation has stopped.
// Overlapping operations share one sampling goroutine.
func (mm *memoryMonitor) start() func() {
	if mm.threshold == 0 || mm.period <= 0 {
		return func() {}
	}

	mm.mu.Lock()
	mm.active++
	if mm.active == 1 {
		mm.done = make(chan struct{})
		go mm.loop(mm.done)
	}
	mm.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			mm.mu.Lock()
			mm.active--
			if mm.active == 0 {
				close(mm.done)
			}
			mm.mu.Unlock()
		})
	}
}

func (mm *memoryMonitor) loop(done <-chan struct{}) {
	ticker := time.NewTicker(mm.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mm.check()
		case <-done:
			return
		}
	}
}

func (mm *memoryMonitor) check() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	mm.mu.Lock()
	mm.s.CurrentAlloc = ms.Alloc
	mm.s.CheckCount++
	mm.s.LastCheck = time.Now()
	if ms.Alloc > mm.s.MaxAlloc {
		mm.s.MaxAlloc = ms.Alloc
	}
	over := ms.Alloc > mm.threshold
	if over {
		mm.s.Violations++
		mm.s.GCCount++
	}
	mm.mu.Unlock()

	if over {
		mm.logger.Warn("memory threshold exceeded", "alloc_mb", ms.Alloc/1024/1024, "threshold_mb", mm.threshold/1024/1024)
		runtime.GC()
	}
}

func (mm *memoryMonitor) stats() MemoryStats {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.s
}

func (mm *memoryMonitor) reset() {
	mm.mu.Lock()
	mm.s = MemoryStats{}
	mm.mu.Unlock()
}
