package quad

// ListTree is a node of the node-recursive quadtree.
// Each node keeps its own points in a slice and, once full, owns four
// children reached by pointer. Points stored before a split stay where
// they are: only the overflow goes down.
type ListTree[T Coord] struct {
	boundary Rect[T]
	capacity int
	depth    int
	opts     *options
	size     int // points in this subtree

	points  []Point[T]
	divided bool

	ne, nw, se, sw *ListTree[T]
}

// NewListTree creates the root of a node-recursive quadtree
func NewListTree[T Coord](boundary Rect[T], capacity int, opts ...Option) (*ListTree[T], error) {
	if err := checkArgs(boundary, capacity); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return newListNode(boundary, capacity, 0, &o), nil
}

func newListNode[T Coord](boundary Rect[T], capacity int, depth int, opts *options) *ListTree[T] {
	return &ListTree[T]{
		boundary: boundary,
		capacity: capacity,
		depth:    depth,
		opts:     opts,
		points:   make([]Point[T], 0, capacity),
	}
}

// Insert adds a point to the tree (recursive)
func (q *ListTree[T]) Insert(p Point[T]) bool {
	if !q.boundary.Contains(p) {
		return false
	}
	if !q.divided && len(q.points) < q.capacity {
		q.points = append(q.points, p)
		q.size++
		return true
	}
	if !q.divided {
		if !q.boundary.splittable() || !q.opts.canSplit(q.depth) {
			return false
		}
		q.subdivide()
	}
	if q.ne.Insert(p) || q.nw.Insert(p) || q.se.Insert(p) || q.sw.Insert(p) {
		q.size++
		return true
	}
	return false
}

// BatchInsert inserts each point in turn, failures are ignored
func (q *ListTree[T]) BatchInsert(points []Point[T]) {
	for _, p := range points {
		q.Insert(p)
	}
}

func (q *ListTree[T]) subdivide() {
	rects := q.boundary.split4()
	q.ne = newListNode(rects[0], q.capacity, q.depth+1, q.opts)
	q.nw = newListNode(rects[1], q.capacity, q.depth+1, q.opts)
	q.se = newListNode(rects[2], q.capacity, q.depth+1, q.opts)
	q.sw = newListNode(rects[3], q.capacity, q.depth+1, q.opts)
	q.divided = true
}

// Query returns the points inside r: this node's points first, then the
// NE, NW, SE and SW subtrees
func (q *ListTree[T]) Query(r Rect[T]) []Point[T] {
	return q.QueryAppend(make([]Point[T], 0), r)
}

// QueryAppend appends the points inside r to dst (recursive)
func (q *ListTree[T]) QueryAppend(dst []Point[T], r Rect[T]) []Point[T] {
	if !q.boundary.Intersects(r) {
		return dst
	}
	for _, p := range q.points {
		if r.Contains(p) {
			dst = append(dst, p)
		}
	}
	if q.divided {
		dst = q.ne.QueryAppend(dst, r)
		dst = q.nw.QueryAppend(dst, r)
		dst = q.se.QueryAppend(dst, r)
		dst = q.sw.QueryAppend(dst, r)
	}
	return dst
}

// Trace runs a query and counts the nodes it looked at
func (q *ListTree[T]) Trace(r Rect[T]) Trace {
	var t Trace
	q.trace(r, &t)
	return t
}

func (q *ListTree[T]) trace(r Rect[T], t *Trace) {
	t.Visited++
	if !q.boundary.Intersects(r) {
		t.Pruned++
		return
	}
	for _, p := range q.points {
		if r.Contains(p) {
			t.Found++
		}
	}
	if q.divided {
		q.ne.trace(r, t)
		q.nw.trace(r, t)
		q.se.trace(r, t)
		q.sw.trace(r, t)
	}
}

// Boundary returns the rect this node is responsible for
func (q *ListTree[T]) Boundary() Rect[T] {
	return q.boundary
}

// Capacity returns the number of points a node holds before splitting
func (q *ListTree[T]) Capacity() int {
	return q.capacity
}

// Len returns the number of points stored under this node
func (q *ListTree[T]) Len() int {
	return q.size
}

// Root returns the node itself as a View
func (q *ListTree[T]) Root() View[T] {
	return q
}

// Divided is true once the node has split
func (q *ListTree[T]) Divided() bool {
	return q.divided
}

// Depth of the node, the root is 0
func (q *ListTree[T]) Depth() int {
	return q.depth
}

// Points returns a copy of the points held by this node
func (q *ListTree[T]) Points() []Point[T] {
	res := make([]Point[T], len(q.points))
	copy(res, q.points)
	return res
}

// Children returns NE, NW, SE, SW
func (q *ListTree[T]) Children() [4]View[T] {
	if !q.divided {
		return [4]View[T]{}
	}
	return [4]View[T]{q.ne, q.nw, q.se, q.sw}
}
