package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by every Backend call after Close
var ErrClosed = errors.New("replay backend is closed")

// Transition represents a single experience transition
type Transition struct {
	ID         string            `json:"id"`
	EnvID      string            `json:"env_id"`
	EpisodeID  string            `json:"episode_id"`
	StepNumber uint32            `json:"step_number"`
	State      []byte            `json:"state"`
	Action     []byte            `json:"action"`
	NextState  []byte            `json:"next_state"`
	Reward     float32           `json:"reward"`
	Done       bool              `json:"done"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata"`
}

func (t *Transition) sizeBytes() uint64 {
	// ~100 bytes of struct overhead
	return uint64(len(t.State)+len(t.Action)+len(t.NextState)) + 100
}

// SampleResult is a prioritized mini-batch. TreeIndices, Transitions,
// Priorities and Weights are parallel.
type SampleResult struct {
	TreeIndices []int
	Transitions []*Transition
	Priorities  []float64
	Weights     []float64
	Beta        float64
}

// Stats represents replay buffer statistics
type Stats struct {
	Capacity         uint64
	Size             uint64
	TotalStored      uint64
	Evicted          uint64
	TotalPriority    float64
	MaxPriority      float64
	MinPriority      float64
	Beta             float64
	TransitionsByEnv map[string]uint64
	OldestTimestamp  *time.Time
	NewestTimestamp  *time.Time
	StorageBytes     uint64
}

// Backend defines the interface for prioritized replay buffer implementations
type Backend interface {
	// Store a single transition at the current maximum priority
	Store(ctx context.Context, transition *Transition) error

	// Store multiple transitions in order
	StoreBatch(ctx context.Context, transitions []*Transition) ([]string, error)

	// Sample a prioritized batch with importance-sampling weights
	Sample(ctx context.Context, batchSize int) (*SampleResult, error)

	// Update priorities from absolute errors observed for sampled tree indices
	UpdatePriorities(ctx context.Context, treeIndices []int, absErrors []float64) error

	// Get buffer statistics, optionally restricted to one environment
	GetStats(ctx context.Context, envID string) (*Stats, error)

	// Close the backend and cleanup resources
	Close() error
}
