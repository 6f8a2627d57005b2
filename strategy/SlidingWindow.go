package strategy

import (
	"fmt"

	"geeo.io/QuadServer/quad"
)

// MaxWindows bounds the number of queries a single scan may run
const MaxWindows = 1 << 16

// WindowOptions configures SlidingWindow
type WindowOptions[T quad.Coord] struct {
	Size      T   `json:"size"`
	Step      T   `json:"step"`
	Threshold int `json:"threshold"`
}

// Window is a square holding at least Threshold points
type Window[T quad.Coord] struct {
	Rect   quad.Rect[T]    `json:"rect"`
	Count  int             `json:"count"`
	Points []quad.Point[T] `json:"points"`
	Label  string          `json:"label,omitempty"`
}

// SlidingWindow moves a Size x Size square over the boundary of q, Step by
// Step, from the top left corner. Windows start at X, X+Step, ... while they
// still fit in the boundary (same for Y); rows are scanned x first.
func SlidingWindow[T quad.Coord](q Querier[T], opts WindowOptions[T]) ([]Window[T], error) {
	if opts.Size <= 0 || opts.Step <= 0 {
		return nil, fmt.Errorf("strategy: size %v step %v: %w", opts.Size, opts.Step, ErrInvalidWindow)
	}
	b := q.Boundary()
	lastX := b.X + b.Width - opts.Size
	lastY := b.Y + b.Height - opts.Size
	if n := steps(b.X, lastX, opts.Step) * steps(b.Y, lastY, opts.Step); n > MaxWindows {
		return nil, fmt.Errorf("strategy: %.0f windows: %w", n, ErrTooManyWindows)
	}

	res := []Window[T]{}
	for x := b.X; x <= lastX; x += opts.Step {
		for y := b.Y; y <= lastY; y += opts.Step {
			r := quad.NewRect(x, y, opts.Size, opts.Size)
			points := q.Query(r)
			if len(points) >= opts.Threshold {
				res = append(res, Window[T]{Rect: r, Count: len(points), Points: points})
			}
		}
	}
	return res, nil
}

// number of positions from start to last included
func steps[T quad.Coord](start, last, step T) float64 {
	if last < start {
		return 0
	}
	return float64(last-start)/float64(step) + 1
}
