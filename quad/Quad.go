package quad

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned when a tree is built with a capacity < 1
	ErrInvalidCapacity = errors.New("capacity must be at least 1")
	// ErrDegenerateBoundary is returned when a tree is built on a rect without area
	ErrDegenerateBoundary = errors.New("boundary must have a positive width and height")
)

// Unlimited is the default MaxDepth: nodes split as long as their boundary allows it
const Unlimited = -1

// Quadtree stores points and finds the ones inside a rect.
// ListTree and ArrayTree implement it.
type Quadtree[T Coord] interface {
	// Insert returns false if the point falls outside the tree, or if the
	// node it belongs to is full and can't be split any further
	Insert(Point[T]) bool
	BatchInsert([]Point[T])

	Query(Rect[T]) []Point[T]
	QueryAppend([]Point[T], Rect[T]) []Point[T]
	Trace(Rect[T]) Trace

	Boundary() Rect[T]
	Capacity() int
	Len() int
	Root() View[T]
}

// View gives read-only access to one node of a tree
type View[T Coord] interface {
	Boundary() Rect[T]
	Divided() bool
	Depth() int
	// Points returns a copy of the points stored directly in this node
	Points() []Point[T]
	// Children returns NE, NW, SE, SW, or four nils if the node isn't divided
	Children() [4]View[T]
}

// Trace reports what a query did
type Trace struct {
	Found   int `json:"found"`
	Visited int `json:"visited"` // nodes whose boundary was tested
	Pruned  int `json:"pruned"`  // visited nodes that didn't intersect the query
}

// Option configures a tree at construction
type Option func(*options)

type options struct {
	maxDepth int
}

// WithMaxDepth stops nodes at depth d (root is 0) from splitting.
// A full node at that depth rejects the points routed to it.
func WithMaxDepth(d int) Option {
	return func(o *options) {
		o.maxDepth = d
	}
}

func buildOptions(opts []Option) options {
	o := options{maxDepth: Unlimited}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) canSplit(depth int) bool {
	return o.maxDepth == Unlimited || depth < o.maxDepth
}

func checkArgs[T Coord](boundary Rect[T], capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("quad: capacity %d: %w", capacity, ErrInvalidCapacity)
	}
	if !boundary.Valid() {
		return fmt.Errorf("quad: boundary %v: %w", boundary, ErrDegenerateBoundary)
	}
	return nil
}

// Walk visits v and its descendants in pre-order (NE, NW, SE, SW).
// Returning false from fn skips the children of that node.
func Walk[T Coord](v View[T], fn func(View[T]) bool) {
	if v == nil {
		return
	}
	stack := []View[T]{v}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(node) || !node.Divided() {
			continue
		}
		children := node.Children()
		// reversed so NE pops first
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
