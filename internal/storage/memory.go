package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/per"
)

// MemoryBackend implements Backend over an in-memory prioritized buffer.
// The buffer's tree walk is not atomic, so every call holds mu for its
// whole duration.
type MemoryBackend struct {
	mu       sync.Mutex
	buffer   *per.Buffer[*Transition]
	envIndex map[string]uint64 // EnvID -> live transitions
	bytes    uint64
	stored   uint64
	evicted  uint64
	closed   bool

	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewMemoryBackend creates a new in-memory prioritized backend
func NewMemoryBackend(capacity int, collector *metrics.Collector, logger zerolog.Logger, opts ...per.Option) (*MemoryBackend, error) {
	buffer, err := per.New[*Transition](capacity, opts...)
	if err != nil {
		return nil, fmt.Errorf("create replay buffer: %w", err)
	}

	return &MemoryBackend{
		buffer:   buffer,
		envIndex: make(map[string]uint64),
		metrics:  collector,
		logger:   logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Store implements Backend.Store
func (m *MemoryBackend) Store(ctx context.Context, transition *Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	ev, err := m.storeLocked(transition)
	if err != nil {
		return err
	}
	evicted := 0
	if ev {
		evicted++
	}
	m.report(1, evicted)
	return nil
}

// StoreBatch implements Backend.StoreBatch
func (m *MemoryBackend) StoreBatch(ctx context.Context, transitions []*Transition) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(transitions))
	evicted := 0
	for _, transition := range transitions {
		ev, err := m.storeLocked(transition)
		if err != nil {
			m.report(len(ids), evicted)
			return ids, err
		}
		if ev {
			evicted++
		}
		ids = append(ids, transition.ID)
	}

	m.report(len(ids), evicted)
	return ids, nil
}

// Sample implements Backend.Sample
func (m *MemoryBackend) Sample(ctx context.Context, batchSize int) (*SampleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	batch, err := m.buffer.Sample(batchSize)
	if err != nil {
		return nil, err
	}

	result := &SampleResult{
		TreeIndices: batch.Indices,
		Transitions: batch.Items,
		Priorities:  make([]float64, len(batch.Indices)),
		Weights:     batch.Weights,
		Beta:        batch.Beta,
	}
	for i, idx := range batch.Indices {
		_, p, err := m.buffer.Slot(idx - m.buffer.Capacity() + 1)
		if err != nil {
			return nil, err
		}
		result.Priorities[i] = p
	}

	m.metrics.BatchSampled(len(result.TreeIndices), time.Since(start))
	m.metrics.BufferState(m.buffer.Len(), m.buffer.Total(), m.buffer.Beta())

	return result, nil
}

// UpdatePriorities implements Backend.UpdatePriorities
func (m *MemoryBackend) UpdatePriorities(ctx context.Context, treeIndices []int, absErrors []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if err := m.buffer.BatchUpdate(treeIndices, absErrors); err != nil {
		return err
	}

	m.metrics.PrioritiesUpdated(len(treeIndices))
	m.metrics.BufferState(m.buffer.Len(), m.buffer.Total(), m.buffer.Beta())
	return nil
}

// GetStats implements Backend.GetStats
func (m *MemoryBackend) GetStats(ctx context.Context, envID string) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		Capacity:         uint64(m.buffer.Capacity()),
		Size:             uint64(m.buffer.Len()),
		TotalStored:      m.stored,
		Evicted:          m.evicted,
		TotalPriority:    m.buffer.Total(),
		MaxPriority:      m.buffer.MaxPriority(),
		MinPriority:      m.buffer.MinPriority(),
		Beta:             m.buffer.Beta(),
		TransitionsByEnv: make(map[string]uint64),
		StorageBytes:     m.bytes,
	}

	for env, count := range m.envIndex {
		if envID == "" || env == envID {
			stats.TransitionsByEnv[env] = count
		}
	}

	// Find oldest and newest live timestamps
	for i := 0; i < m.buffer.Len(); i++ {
		t, _, err := m.buffer.Slot(i)
		if err != nil {
			return nil, err
		}
		if envID != "" && t.EnvID != envID {
			continue
		}
		ts := t.Timestamp
		if stats.OldestTimestamp == nil || ts.Before(*stats.OldestTimestamp) {
			stats.OldestTimestamp = &ts
		}
		if stats.NewestTimestamp == nil || ts.After(*stats.NewestTimestamp) {
			stats.NewestTimestamp = &ts
		}
	}

	return stats, nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.envIndex = nil

	return nil
}

// Helper methods

func (m *MemoryBackend) storeLocked(transition *Transition) (bool, error) {
	if transition == nil {
		return false, fmt.Errorf("transition is nil")
	}

	// Generate ID if not provided
	if transition.ID == "" {
		transition.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if transition.Timestamp.IsZero() {
		transition.Timestamp = time.Now()
	}

	// The slot under the cursor is overwritten once the buffer is full
	var old *Transition
	if m.buffer.Len() == m.buffer.Capacity() {
		prev, _, err := m.buffer.Slot(m.buffer.Cursor())
		if err != nil {
			return false, err
		}
		old = prev
	}

	if err := m.buffer.Store(transition); err != nil {
		return false, err
	}
	m.stored++

	if old != nil {
		m.forget(old)
		m.evicted++
		m.logger.Debug().
			Str("transition_id", old.ID).
			Str("env_id", old.EnvID).
			Msg("evicted transition")
	}

	m.bytes += transition.sizeBytes()
	if transition.EnvID != "" {
		m.envIndex[transition.EnvID]++
	}

	return old != nil, nil
}

func (m *MemoryBackend) forget(t *Transition) {
	m.bytes -= t.sizeBytes()
	if t.EnvID == "" {
		return
	}
	if m.envIndex[t.EnvID] <= 1 {
		delete(m.envIndex, t.EnvID)
		return
	}
	m.envIndex[t.EnvID]--
}

func (m *MemoryBackend) report(stored, evicted int) {
	if stored == 0 {
		return
	}
	m.metrics.TransitionsStored(stored, evicted)
	m.metrics.BufferState(m.buffer.Len(), m.buffer.Total(), m.buffer.Beta())
}
