package quad

import "slices"

// ArrayTree is the capacity-array quadtree.
//
// Nodes live in one slice and reference their children by index. Point
// storage is a second flat slice: node i owns exactly capacity slots,
// slots[i*capacity:(i+1)*capacity], and a fill count. A node's window never
// grows; splitting a node appends four nodes and their windows to the arena.
//
// Insert and Query walk the tree with an explicit stack, so tree depth
// never turns into call depth.
type ArrayTree[T Coord] struct {
	capacity int
	opts     options
	size     int

	nodes []arrayNode[T]
	slots []Point[T]

	work []int32 // insert stack, reused between calls
}

type arrayNode[T Coord] struct {
	boundary Rect[T]
	depth    int32
	count    int32
	first    int32 // index of the NE child, then NW, SE, SW. 0 while undivided (0 is the root)
}

// NewArrayTree creates a capacity-array quadtree
func NewArrayTree[T Coord](boundary Rect[T], capacity int, opts ...Option) (*ArrayTree[T], error) {
	if err := checkArgs(boundary, capacity); err != nil {
		return nil, err
	}
	t := &ArrayTree[T]{
		capacity: capacity,
		opts:     buildOptions(opts),
		nodes:    []arrayNode[T]{{boundary: boundary}},
		slots:    make([]Point[T], capacity),
		work:     make([]int32, 0, 32),
	}
	return t, nil
}

// Insert stores p in the first node on the stack that contains it and
// still has a free slot. Full nodes are split on the way down.
func (t *ArrayTree[T]) Insert(p Point[T]) bool {
	stack := append(t.work[:0], 0)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[i]
		if !n.boundary.Contains(p) {
			continue
		}
		if int(n.count) < t.capacity {
			t.slots[int(i)*t.capacity+int(n.count)] = p
			n.count++
			t.size++
			t.work = stack
			return true
		}
		if n.first == 0 {
			if !n.boundary.splittable() || !t.opts.canSplit(int(n.depth)) {
				continue
			}
			t.subdivide(i) // n is stale after this
		}
		first := t.nodes[i].first
		stack = append(stack, first, first+1, first+2, first+3)
	}
	t.work = stack
	return false
}

// BatchInsert inserts each point in turn, failures are ignored
func (t *ArrayTree[T]) BatchInsert(points []Point[T]) {
	for _, p := range points {
		t.Insert(p)
	}
}

func (t *ArrayTree[T]) subdivide(i int32) {
	parent := t.nodes[i]
	first := int32(len(t.nodes))
	for _, rect := range parent.boundary.split4() {
		t.nodes = append(t.nodes, arrayNode[T]{boundary: rect, depth: parent.depth + 1})
	}
	grow := 4 * t.capacity
	t.slots = slices.Grow(t.slots, grow)[:len(t.slots)+grow]
	t.nodes[i].first = first
}

// Query returns the points inside r. Each node's points come before its
// subtrees, which are visited SW, SE, NW, NE (children are pushed in NE,
// NW, SE, SW order and popped in reverse).
func (t *ArrayTree[T]) Query(r Rect[T]) []Point[T] {
	return t.QueryAppend(make([]Point[T], 0), r)
}

// QueryAppend appends the points inside r to dst. It only reads the tree.
func (t *ArrayTree[T]) QueryAppend(dst []Point[T], r Rect[T]) []Point[T] {
	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[i]
		if !n.boundary.Intersects(r) {
			continue
		}
		for _, p := range t.nodeSlots(i) {
			if r.Contains(p) {
				dst = append(dst, p)
			}
		}
		if n.first != 0 {
			stack = append(stack, n.first, n.first+1, n.first+2, n.first+3)
		}
	}
	return dst
}

// Trace runs a query and counts the nodes it looked at
func (t *ArrayTree[T]) Trace(r Rect[T]) Trace {
	var res Trace
	stack := make([]int32, 1, 32)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		res.Visited++
		n := &t.nodes[i]
		if !n.boundary.Intersects(r) {
			res.Pruned++
			continue
		}
		for _, p := range t.nodeSlots(i) {
			if r.Contains(p) {
				res.Found++
			}
		}
		if n.first != 0 {
			stack = append(stack, n.first, n.first+1, n.first+2, n.first+3)
		}
	}
	return res
}

func (t *ArrayTree[T]) nodeSlots(i int32) []Point[T] {
	base := int(i) * t.capacity
	return t.slots[base : base+int(t.nodes[i].count)]
}

// Boundary returns the rect covered by the tree
func (t *ArrayTree[T]) Boundary() Rect[T] {
	return t.nodes[0].boundary
}

// Capacity returns the number of slots per node
func (t *ArrayTree[T]) Capacity() int {
	return t.capacity
}

// Len returns the number of points stored
func (t *ArrayTree[T]) Len() int {
	return t.size
}

// NumNodes returns the size of the node arena
func (t *ArrayTree[T]) NumNodes() int {
	return len(t.nodes)
}

// Root returns a read-only view on the root node
func (t *ArrayTree[T]) Root() View[T] {
	return arrayView[T]{t, 0}
}

type arrayView[T Coord] struct {
	t *ArrayTree[T]
	i int32
}

func (v arrayView[T]) Boundary() Rect[T] {
	return v.t.nodes[v.i].boundary
}
func (v arrayView[T]) Divided() bool {
	return v.t.nodes[v.i].first != 0
}
func (v arrayView[T]) Depth() int {
	return int(v.t.nodes[v.i].depth)
}
func (v arrayView[T]) Points() []Point[T] {
	return slices.Clone(v.t.nodeSlots(v.i))
}
func (v arrayView[T]) Children() [4]View[T] {
	first := v.t.nodes[v.i].first
	if first == 0 {
		return [4]View[T]{}
	}
	return [4]View[T]{
		arrayView[T]{v.t, first},
		arrayView[T]{v.t, first + 1},
		arrayView[T]{v.t, first + 2},
		arrayView[T]{v.t, first + 3},
	}
}
