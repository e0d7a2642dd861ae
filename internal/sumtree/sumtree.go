// Package sumtree implements a fixed-capacity sum tree stored as a flat array.
//
// Leaves hold per-item priorities and every internal node holds the sum of its
// two children, so the root is the total priority of the tree. Slot i is
// backed by the leaf at tree index capacity-1+i.
package sumtree

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrInvalidPriority = errors.New("priority must be a non-negative finite number")
	ErrIndexOutOfRange = errors.New("tree index is not a leaf")
)

// Tree is a sum tree over payloads of type T. It is not safe for concurrent use.
type Tree[T any] struct {
	capacity int
	nodes    []float64 // [internal: capacity-1][leaves: capacity]
	slots    []T
	cursor   int
	size     int
}

// New creates an empty tree holding up to capacity payloads
func New[T any](capacity int) (*Tree[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	return &Tree[T]{
		capacity: capacity,
		nodes:    make([]float64, 2*capacity-1),
		slots:    make([]T, capacity),
	}, nil
}

// Add writes payload into the slot under the write cursor with the given
// priority and advances the cursor. Once the tree is full the oldest slot is
// overwritten regardless of its priority.
func (t *Tree[T]) Add(priority float64, payload T) error {
	if err := checkPriority(priority); err != nil {
		return err
	}

	t.slots[t.cursor] = payload
	t.set(t.capacity-1+t.cursor, priority)

	t.cursor = (t.cursor + 1) % t.capacity
	if t.size < t.capacity {
		t.size++
	}
	return nil
}

// Update sets the priority of the leaf at treeIndex and propagates the change
// to every ancestor.
func (t *Tree[T]) Update(treeIndex int, priority float64) error {
	if !t.isLeaf(treeIndex) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIndexOutOfRange, treeIndex, t.capacity-1, len(t.nodes)-1)
	}
	if err := checkPriority(priority); err != nil {
		return err
	}

	t.set(treeIndex, priority)
	return nil
}

func (t *Tree[T]) set(idx int, priority float64) {
	delta := priority - t.nodes[idx]
	t.nodes[idx] = priority
	for idx != 0 {
		idx = (idx - 1) / 2
		t.nodes[idx] += delta
	}
}

// GetLeaf walks from the root to the leaf whose cumulative priority range
// contains v. Ties descend left, so v == 0 lands on the leftmost leaf even when
// its priority is zero. v is expected in [0, Total()).
func (t *Tree[T]) GetLeaf(v float64) (int, float64, T) {
	idx := 0
	for {
		left := 2*idx + 1
		if left >= len(t.nodes) {
			break
		}
		right := left + 1

		// A right subtree that rounded down to zero never owns v.
		l, r := t.nodes[left], t.nodes[right]
		if v <= l || r <= 0 {
			idx = left
		} else {
			v -= l
			idx = right
		}
	}

	return idx, t.nodes[idx], t.slots[t.DataIndex(idx)]
}

// Total returns the sum of all leaf priorities.
func (t *Tree[T]) Total() float64 {
	return t.nodes[0]
}

// Capacity returns the fixed number of slots.
func (t *Tree[T]) Capacity() int {
	return t.capacity
}

// Len returns how many slots have been written, at most Capacity.
func (t *Tree[T]) Len() int {
	return t.size
}

// Cursor returns the slot that the next Add will overwrite.
func (t *Tree[T]) Cursor() int {
	return t.cursor
}

// MaxLeaf returns the largest leaf priority, or 0 for an empty tree.
func (t *Tree[T]) MaxLeaf() float64 {
	highest := 0.0
	for _, p := range t.nodes[t.capacity-1:] {
		if p > highest {
			highest = p
		}
	}
	return highest
}

// MinLeaf returns the smallest priority among written leaves, or 0 for an
// empty tree.
func (t *Tree[T]) MinLeaf() float64 {
	if t.size == 0 {
		return 0
	}
	leaves := t.nodes[t.capacity-1:]
	lowest := math.Inf(1)
	for i := 0; i < t.size; i++ {
		if leaves[i] < lowest {
			lowest = leaves[i]
		}
	}
	return lowest
}

// Leaf returns the priority and payload stored in slot i.
func (t *Tree[T]) Leaf(i int) (float64, T, error) {
	if i < 0 || i >= t.capacity {
		var zero T
		return 0, zero, fmt.Errorf("%w: slot %d of %d", ErrIndexOutOfRange, i, t.capacity)
	}
	return t.nodes[t.capacity-1+i], t.slots[i], nil
}

// DataIndex converts a leaf tree index into its slot index.
func (t *Tree[T]) DataIndex(treeIndex int) int {
	return treeIndex - t.capacity + 1
}

func (t *Tree[T]) isLeaf(treeIndex int) bool {
	return treeIndex >= t.capacity-1 && treeIndex < len(t.nodes)
}

func checkPriority(p float64) error {
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPriority, p)
	}
	return nil
}
