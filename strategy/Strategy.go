// Package strategy runs higher level searches on top of a quadtree:
// dense sliding windows and density based clustering.
package strategy

import (
	"errors"

	"geeo.io/QuadServer/quad"
)

var (
	// ErrInvalidWindow is returned for a window size or step <= 0
	ErrInvalidWindow = errors.New("window size and step must be positive")
	// ErrTooManyWindows is returned when a scan would run more than MaxWindows queries
	ErrTooManyWindows = errors.New("too many windows")
	// ErrInvalidEpsilon is returned for an epsilon <= 0
	ErrInvalidEpsilon = errors.New("epsilon must be positive")
	// ErrInvalidMinSamples is returned for min samples < 1
	ErrInvalidMinSamples = errors.New("min samples must be at least 1")
)

// Querier is the part of a tree the strategies need
type Querier[T quad.Coord] interface {
	Boundary() quad.Rect[T]
	Query(quad.Rect[T]) []quad.Point[T]
}
