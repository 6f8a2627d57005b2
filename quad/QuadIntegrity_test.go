package quad

import (
	"math/rand"
	"testing"
)

// deep checks on any tree, through its View

func checkIntegrity[T Coord](t *testing.T, v View[T], capacity int) {
	t.Helper()
	Walk(v, func(node View[T]) bool {
		points := node.Points()
		if len(points) > capacity {
			t.Fatalf("node %v holds %d points, capacity is %d", node.Boundary(), len(points), capacity)
		}
		for _, p := range points {
			if !node.Boundary().Contains(p) {
				t.Fatalf("point %v stored in node %v", p, node.Boundary())
			}
		}
		if !node.Divided() {
			return true
		}
		if len(points) < capacity {
			t.Fatalf("node %v split before it was full", node.Boundary())
		}
		for _, child := range node.Children() {
			if child == nil {
				t.Fatal("divided node with a nil child")
			}
			if child.Depth() != node.Depth()+1 {
				t.Fatal("child's depth isn't parent's depth + 1")
			}
		}
		checkTiling(t, node.Boundary(), node.Children())
		return true
	})
}

// checkTiling makes sure the quadrants share their inner edges exactly and
// reach the outer edges of b, so no point of b falls between them
func checkTiling[T Coord](t *testing.T, b Rect[T], children [4]View[T]) {
	t.Helper()
	ne, nw, se, sw := children[0].Boundary(), children[1].Boundary(), children[2].Boundary(), children[3].Boundary()
	if nw.X != b.X || sw.X != b.X || nw.Y != b.Y || ne.Y != b.Y {
		t.Fatalf("quadrants of %v don't start at its corner: %v %v %v %v", b, ne, nw, se, sw)
	}
	if ne.X != nw.x2() || se.X != sw.x2() || sw.Y != nw.y2() || se.Y != ne.y2() {
		t.Fatalf("quadrants of %v leave a gap inside it: %v %v %v %v", b, ne, nw, se, sw)
	}
	if ne.x2() < b.x2() || se.x2() < b.x2() || sw.y2() < b.y2() || se.y2() < b.y2() {
		t.Fatalf("quadrants of %v stop short of its edges: %v %v %v %v", b, ne, nw, se, sw)
	}
	for _, c := range [4]Rect[T]{ne, nw, se, sw} {
		if !c.Valid() {
			t.Fatalf("empty quadrant %v in %v", c, b)
		}
	}
}

func countDivided[T Coord](v View[T]) int {
	n := 0
	Walk(v, func(node View[T]) bool {
		if node.Divided() {
			n++
		}
		return true
	})
	return n
}

func TestIntegrity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bounds := range []Rect[int]{
		NewRect(0, 0, 1024, 1024),
		NewRect(-333, 17, 999, 777),
		NewRect(0, 0, 3, 1000),
	} {
		for name, build := range species {
			q := mustBuild(t, build, bounds, 3)
			inserted := 0
			for _, p := range randomPoints(rng, 5000, bounds) {
				if q.Insert(p) {
					inserted++
				}
			}
			if q.Len() != inserted {
				t.Errorf("%s: Len is %d, %d points were accepted", name, q.Len(), inserted)
			}
			checkIntegrity(t, q.Root(), q.Capacity())
			if s := CollectStats(q.Root(), q.Capacity()); s.Points != inserted {
				t.Errorf("%s: the tree holds %d points, %d were accepted", name, s.Points, inserted)
			}
		}
	}
}

func TestIntegrityFloat(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, bounds := range []Rect[float64]{
		NewRect(0.0, 0.0, 256.0, 256.0),
		NewRect(-285.7361274176251, -119.34281070031398, 31.806817433032986, 46.88998449024232),
		NewRect(-180.0, -90.0, 360.0, 180.0),
		NewRect(0.1, 0.2, 0.7, 0.3),
	} {
		list, _ := NewListTree(bounds, 2)
		array, _ := NewArrayTree(bounds, 2)
		refused := 0
		for i := 0; i < 3000; i++ {
			p := NewPoint(bounds.X+rng.Float64()*bounds.Width, bounds.Y+rng.Float64()*bounds.Height)
			if !bounds.Contains(p) {
				continue
			}
			if !list.Insert(p) {
				refused++
			}
			if !array.Insert(p) {
				refused++
			}
		}
		if refused > 0 {
			t.Errorf("%v: %d points inside the boundary were refused", bounds, refused)
		}
		if list.Len() != array.Len() {
			t.Errorf("%v: list holds %d points, array %d", bounds, list.Len(), array.Len())
		}
		checkIntegrity[float64](t, list, 2)
		checkIntegrity(t, array.Root(), 2)
	}
}
