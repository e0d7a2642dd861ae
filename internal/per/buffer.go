// Package per implements a prioritized experience replay buffer on top of a
// sum tree.
package per

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cartridge/prioreplay/internal/sumtree"
)

const (
	DefaultAlpha         = 0.6
	DefaultBeta          = 0.4
	DefaultBetaIncrement = 0.001
	DefaultEpsilon       = 0.01
	DefaultAbsErrorCap   = 1.0
)

var (
	ErrInvalidParameter = errors.New("invalid replay parameter")
	ErrInvalidBatchSize = errors.New("batch size must be in [1, capacity]")
	ErrLengthMismatch   = errors.New("indices and errors must have the same length")
	ErrInvalidPriority  = sumtree.ErrInvalidPriority
	ErrEmpty            = errors.New("replay buffer has no priority mass to sample from")
)

// Batch is the result of a Sample call. Indices, Items and Weights are
// parallel and Indices are the tree indices expected by BatchUpdate.
type Batch[T any] struct {
	Indices []int
	Items   []T
	Weights []float64
	Beta    float64
}

// Buffer is a prioritized replay buffer. It is not safe for concurrent use;
// callers sharing a Buffer must serialize every call.
type Buffer[T any] struct {
	tree *sumtree.Tree[T]
	rng  *rand.Rand

	alpha         float64
	beta          float64
	betaIncrement float64
	epsilon       float64
	absErrorCap   float64
}

// Option configures a Buffer
type Option func(*options)

type options struct {
	alpha         float64
	beta          float64
	betaIncrement float64
	epsilon       float64
	absErrorCap   float64
	rng           *rand.Rand
}

// WithAlpha sets how strongly priority shapes the sampling distribution.
func WithAlpha(alpha float64) Option {
	return func(o *options) { o.alpha = alpha }
}

// WithBeta sets the initial importance-sampling exponent.
func WithBeta(beta float64) Option {
	return func(o *options) { o.beta = beta }
}

// WithBetaIncrement sets how much beta grows on each Sample call.
func WithBetaIncrement(inc float64) Option {
	return func(o *options) { o.betaIncrement = inc }
}

// WithEpsilon sets the floor added to every error before it becomes a priority.
func WithEpsilon(epsilon float64) Option {
	return func(o *options) { o.epsilon = epsilon }
}

// WithAbsErrorCap sets the clip applied to error magnitudes.
func WithAbsErrorCap(c float64) Option {
	return func(o *options) { o.absErrorCap = c }
}

// WithRand sets the random source used for sampling.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// New creates a Buffer with the given fixed capacity
func New[T any](capacity int, opts ...Option) (*Buffer[T], error) {
	o := options{
		alpha:         DefaultAlpha,
		beta:          DefaultBeta,
		betaIncrement: DefaultBetaIncrement,
		epsilon:       DefaultEpsilon,
		absErrorCap:   DefaultAbsErrorCap,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	tree, err := sumtree.New[T](capacity)
	if err != nil {
		return nil, err
	}

	rng := o.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Buffer[T]{
		tree:          tree,
		rng:           rng,
		alpha:         o.alpha,
		beta:          o.beta,
		betaIncrement: o.betaIncrement,
		epsilon:       o.epsilon,
		absErrorCap:   o.absErrorCap,
	}, nil
}

func (o options) validate() error {
	switch {
	case !finite(o.alpha) || o.alpha < 0:
		return fmt.Errorf("%w: alpha %v must be >= 0", ErrInvalidParameter, o.alpha)
	case !finite(o.beta) || o.beta < 0 || o.beta > 1:
		return fmt.Errorf("%w: beta %v must be in [0, 1]", ErrInvalidParameter, o.beta)
	case !finite(o.betaIncrement) || o.betaIncrement < 0:
		return fmt.Errorf("%w: beta increment %v must be >= 0", ErrInvalidParameter, o.betaIncrement)
	case !finite(o.epsilon) || o.epsilon <= 0:
		return fmt.Errorf("%w: epsilon %v must be > 0", ErrInvalidParameter, o.epsilon)
	case !finite(o.absErrorCap) || o.absErrorCap <= 0:
		return fmt.Errorf("%w: abs error cap %v must be > 0", ErrInvalidParameter, o.absErrorCap)
	}
	return nil
}

// Store adds a transition with the highest leaf priority seen so far, or the
// error cap when nothing has been prioritized yet.
func (b *Buffer[T]) Store(transition T) error {
	maxPriority := b.tree.MaxLeaf()
	if maxPriority == 0 {
		maxPriority = b.absErrorCap
	}
	return b.tree.Add(maxPriority, transition)
}

// Sample draws n transitions with stratified priority-proportional sampling
// and returns their normalized importance-sampling weights. Beta is annealed
// before drawing. n may exceed the number of live items, in which case items
// repeat.
func (b *Buffer[T]) Sample(n int) (Batch[T], error) {
	if n < 1 || n > b.tree.Capacity() {
		return Batch[T]{}, fmt.Errorf("%w: got %d, capacity %d", ErrInvalidBatchSize, n, b.tree.Capacity())
	}
	total := b.tree.Total()
	if total <= 0 {
		return Batch[T]{}, ErrEmpty
	}

	b.beta = math.Min(1, b.beta+b.betaIncrement)

	batch := Batch[T]{
		Indices: make([]int, n),
		Items:   make([]T, n),
		Weights: make([]float64, n),
		Beta:    b.beta,
	}

	segment := total / float64(n)
	capacity := float64(b.tree.Capacity())
	below := math.Nextafter(total, 0)
	maxWeight := 0.0

	for i := 0; i < n; i++ {
		lo := segment * float64(i)
		v := lo + b.rng.Float64()*segment
		if v >= total {
			v = below
		}
		// v == 0 would tie into an empty leftmost leaf; leaf order only
		// follows slot order when capacity is a power of two.
		if v <= 0 {
			v = math.SmallestNonzeroFloat64
		}

		idx, priority, item := b.tree.GetLeaf(v)
		prob := priority / total
		w := math.Pow(capacity*prob, -b.beta)

		batch.Indices[i] = idx
		batch.Items[i] = item
		batch.Weights[i] = w
		if w > maxWeight {
			maxWeight = w
		}
	}

	for i := range batch.Weights {
		batch.Weights[i] /= maxWeight
	}

	return batch, nil
}

// BatchUpdate converts absolute errors into priorities and writes them to the
// given tree indices. The batch is validated as a whole; on error no priority
// is changed.
func (b *Buffer[T]) BatchUpdate(treeIndices []int, absErrors []float64) error {
	if len(treeIndices) != len(absErrors) {
		return fmt.Errorf("%w: %d indices vs %d errors", ErrLengthMismatch, len(treeIndices), len(absErrors))
	}

	lo, hi := b.tree.Capacity()-1, 2*b.tree.Capacity()-2
	for i, idx := range treeIndices {
		if idx < lo || idx > hi {
			return fmt.Errorf("%w: index %d at position %d", sumtree.ErrIndexOutOfRange, idx, i)
		}
		if e := absErrors[i]; !finite(e) || e < 0 {
			return fmt.Errorf("%w: error %v at position %d", ErrInvalidPriority, e, i)
		}
	}

	for i, idx := range treeIndices {
		if err := b.tree.Update(idx, b.Priority(absErrors[i])); err != nil {
			return err
		}
	}
	return nil
}

// Priority returns the leaf priority assigned to an absolute error:
// (min(e, cap) + epsilon)^alpha. Clipping before adding epsilon departs on
// purpose from the add-then-clip order of the reference PER memory, so
// priorities reach up to (cap+epsilon)^alpha rather than cap^alpha and Store
// hands that ceiling to new items.
func (b *Buffer[T]) Priority(absError float64) float64 {
	return math.Pow(math.Min(absError, b.absErrorCap)+b.epsilon, b.alpha)
}

// Alpha returns the priority exponent.
func (b *Buffer[T]) Alpha() float64 { return b.alpha }

// Beta returns the current importance-sampling exponent.
func (b *Buffer[T]) Beta() float64 { return b.beta }

// Len returns the number of live transitions.
func (b *Buffer[T]) Len() int { return b.tree.Len() }

// Capacity returns the fixed number of slots.
func (b *Buffer[T]) Capacity() int { return b.tree.Capacity() }

// Total returns the sum of all leaf priorities.
func (b *Buffer[T]) Total() float64 { return b.tree.Total() }

// Cursor returns the slot the next Store overwrites.
func (b *Buffer[T]) Cursor() int { return b.tree.Cursor() }

// MaxPriority returns the largest leaf priority.
func (b *Buffer[T]) MaxPriority() float64 { return b.tree.MaxLeaf() }

// MinPriority returns the smallest priority among written slots.
func (b *Buffer[T]) MinPriority() float64 { return b.tree.MinLeaf() }

// Slot returns the item stored at slot i, for inspection.
func (b *Buffer[T]) Slot(i int) (T, float64, error) {
	p, item, err := b.tree.Leaf(i)
	return item, p, err
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
