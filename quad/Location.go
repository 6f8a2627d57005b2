package quad

// Coord is the set of coordinate types a quadtree can be built on.
// Integer coordinates split regions with floor division, real coordinates
// split them exactly.
type Coord interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Point models a point x/y
type Point[T Coord] struct {
	X T `json:"x"`
	Y T `json:"y"`
}

// NewPoint creates a new Point
func NewPoint[T Coord](x, y T) Point[T] {
	return Point[T]{X: x, Y: y}
}

// Rect models an axis aligned rect (x, y, width, height)
// (x, y) is the top left corner, y grows downward
type Rect[T Coord] struct {
	X      T `json:"x"`
	Y      T `json:"y"`
	Width  T `json:"w"`
	Height T `json:"h"`
}

// NewRect creates a new Rect
func NewRect[T Coord](x, y, width, height T) Rect[T] {
	return Rect[T]{X: x, Y: y, Width: width, Height: height}
}

// Contains is half-open: a point on the right or bottom edge belongs to the next region
func (r Rect[T]) Contains(p Point[T]) bool {
	return r.X <= p.X && p.X < r.X+r.Width &&
		r.Y <= p.Y && p.Y < r.Y+r.Height
}

// Intersects treats both rects as closed, touching edges intersect
func (r Rect[T]) Intersects(o Rect[T]) bool {
	return !(o.X > r.x2() || o.x2() < r.X ||
		o.Y > r.y2() || o.y2() < r.Y)
}

// ContainsRect returns true if o lies entirely within r
func (r Rect[T]) ContainsRect(o Rect[T]) bool {
	return r.X <= o.X && r.Y <= o.Y && r.x2() >= o.x2() && r.y2() >= o.y2()
}

// Valid returns true if the rect has a positive area
func (r Rect[T]) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Size returns the size of a Rect
func (r Rect[T]) Size() [2]T {
	return [2]T{r.Width, r.Height}
}

// Center returns the middle of the rect, floored for integer coordinates
func (r Rect[T]) Center() Point[T] {
	return Point[T]{r.X + r.Width/2, r.Y + r.Height/2}
}

func (r Rect[T]) x2() T {
	return r.X + r.Width
}
func (r Rect[T]) y2() T {
	return r.Y + r.Height
}

// a rect splits while both halves are non-empty: floor division stops
// integer rects at width 1, rounding stops tiny real rects far from 0
func (r Rect[T]) splittable() bool {
	mx, my := r.X+r.Width/2, r.Y+r.Height/2
	return r.X < mx && mx < r.x2() && r.Y < my && my < r.y2()
}

// split4 returns the quadrants in NE, NW, SE, SW order.
// The east and south halves take the remainder. West and north edges are
// computed with the same sums as their neighbours' edges, so they match
// exactly; the far edges are widened when rounding would leave them short of
// r's, so every point r contains lies in one quadrant.
func (r Rect[T]) split4() [4]Rect[T] {
	hw := r.Width / 2
	hh := r.Height / 2
	mx, my := r.X+hw, r.Y+hh
	ew := reach(mx, r.Width-hw, r.x2())
	sh := reach(my, r.Height-hh, r.y2())
	return [4]Rect[T]{
		{mx, r.Y, ew, hh},  // north east
		{r.X, r.Y, hw, hh}, // north west
		{mx, my, ew, sh},   // south east
		{r.X, my, hw, sh},  // south west
	}
}

// reach grows w until from+w is at least end. It never loops for integers.
func reach[T Coord](from, w, end T) T {
	for step := end - (from + w); from+w < end; step += step {
		w += step
	}
	return w
}
