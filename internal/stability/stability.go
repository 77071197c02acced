// Package stability runs engine work behind panic recovery and a deadline,
// keeping a short history of recovered panics for health reporting.
package stability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrPanic marks an error produced by a recovered panic.
var ErrPanic = errors.New("operation panicked")

// Config configures the manager.
type Config struct {
	// Timeout bounds every operation; zero leaves only the caller's deadline.
	Timeout time.Duration `json:"timeout"`
	// MaxPanics is the number of panic records kept.
	MaxPanics int `json:"max_panics"`
	// MemoryThresholdMB triggers a forced GC when the heap grows past it; zero disables monitoring.
	MemoryThresholdMB int `json:"memory_threshold_mb"`
	// CheckPeriod is how often the heap is sampled while an operation runs.
	CheckPeriod time.Duration `json:"check_period"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           2 * time.Minute,
		MaxPanics:         10,
		MemoryThresholdMB: 1024,
		CheckPeriod:       5 * time.Second,
	}
}

// PanicRecord stores information about a recovered panic.
type PanicRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace"`
}

// Health summarises recent stability events.
type Health struct {
	Healthy    bool        `json:"healthy"`
	PanicCount int         `json:"panic_count"`
	Timeout    string      `json:"timeout"`
	Memory     MemoryStats `json:"memory"`
}

// Manager recovers panics, applies deadlines and samples memory.
type Manager struct {
	config  Config
	logger  *slog.Logger
	monitor *memoryMonitor

	mu     sync.RWMutex
	panics []PanicRecord
}

// NewManager creates a manager with the default configuration.
func NewManager(logger *slog.Logger) *Manager {
	return NewManagerWithConfig(DefaultConfig(), logger)
}

// NewManagerWithConfig creates a manager with a custom configuration.
func NewManagerWithConfig(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxPanics <= 0 {
		config.MaxPanics = DefaultConfig().MaxPanics
	}
	return &Manager{
		config:  config,
		logger:  logger,
		monitor: newMemoryMonitor(config.MemoryThresholdMB, config.CheckPeriod, logger),
	}
}

// Run executes fn on its own goroutine. A panic inside fn is recovered,
// recorded and returned as an error wrapping ErrPanic; a deadline or a
// cancelled ctx returns ctx's error without waiting for fn.
func Run[T any](ctx context.Context, m *Manager, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	runCtx, cancel := m.deadline(ctx)
	defer cancel()

	stop := m.monitor.start()
	defer stop()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.record(operation, r, string(debug.Stack()))
				done <- result{err: fmt.Errorf("%w in %s: %v", ErrPanic, operation, r)}
			}
		}()
		v, err := fn(runCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-runCtx.Done():
		return zero, fmt.Errorf("%s: %w", operation, runCtx.Err())
	}
}

// Protect calls fn on the current goroutine and turns a panic into an error
// wrapping ErrPanic. Use it inside goroutines that Run cannot see.
func (m *Manager) Protect(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.record(operation, r, string(debug.Stack()))
			err = fmt.Errorf("%w in %s: %v", ErrPanic, operation, r)
		}
	}()
	return fn()
}

func (m *Manager) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.Timeout)
}

func (m *Manager) record(operation string, value any, stack string) {
	m.mu.Lock()
	m.panics = append(m.panics, PanicRecord{
		Timestamp:  time.Now(),
		Operation:  operation,
		Message:    fmt.Sprint(value),
		StackTrace: stack,
	})
	if len(m.panics) > m.config.MaxPanics {
		m.panics = m.panics[len(m.panics)-m.config.MaxPanics:]
	}
	m.mu.Unlock()

	m.logger.Error("panic recovered", "operation", operation, "panic", value)
}

// Panics returns the recent panic records, oldest first.
func (m *Manager) Panics() []PanicRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PanicRecord, len(m.panics))
	copy(out, m.panics)
	return out
}

// PanicCount returns the number of recorded panics.
func (m *Manager) PanicCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.panics)
}

// Health reports the manager's current state.
func (m *Manager) Health() Health {
	count := m.PanicCount()
	mem := m.monitor.stats()
	return Health{
		Healthy:    count < m.config.MaxPanics && mem.Violations < 10,
		PanicCount: count,
		Timeout:    m.config.Timeout.String(),
		Memory:     mem,
	}
}

// Reset clears the panic history and memory statistics.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.panics = nil
	m.mu.Unlock()
	m.monitor.reset()
}
